// Package keyring implements the key store: transferable key parsing
// and grouping, identity and fingerprint lookup, passphrase unlocking
// of secret material, RSA key generation with self-certification, and
// atomic persistence of the public and secret rings.
package keyring

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"encoding/hex"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/xlog"
	"github.com/effective-security/xpgp/packet"
	"github.com/effective-security/xpgp/pgperrors"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/xpgp", "keyring")

// Key is one transferable key: the primary key, its user ID and
// self-certification, plus any additional packets (subkeys, foreign
// certifications) preserved for lossless rewrites.
type Key struct {
	// Public is always set. For secret entries it aliases the public
	// half of Secret.
	Public *packet.PublicKey
	// Secret is set when the entry carries secret material.
	Secret  *packet.SecretKey
	UserID  *packet.UserID
	SelfSig *packet.Signature
	// Extra holds uninterpreted trailing packets belonging to this key.
	Extra []packet.Packet
}

// KeyInfo is the listing projection of a Key.
type KeyInfo struct {
	Identity    string    `json:"identity" yaml:"identity"`
	Fingerprint string    `json:"fingerprint" yaml:"fingerprint"`
	Algorithm   string    `json:"algorithm" yaml:"algorithm"`
	Bits        int       `json:"bits" yaml:"bits"`
	CreatedAt   time.Time `json:"created_at" yaml:"created_at"`
	HasSecret   bool      `json:"has_secret" yaml:"has_secret"`
}

// Identity returns the user ID string, or "" when the key has none.
func (k *Key) Identity() string {
	if k.UserID == nil {
		return ""
	}
	return k.UserID.ID
}

// FingerprintHex returns the lower-case hex fingerprint.
func (k *Key) FingerprintHex() string {
	fp := k.Public.Fingerprint()
	return hex.EncodeToString(fp[:])
}

// Info returns the listing projection.
func (k *Key) Info() KeyInfo {
	return KeyInfo{
		Identity:    k.Identity(),
		Fingerprint: k.FingerprintHex(),
		Algorithm:   k.Public.Algo.String(),
		Bits:        k.Public.BitLength(),
		CreatedAt:   k.Public.CreationTime,
		HasSecret:   k.Secret != nil,
	}
}

// Matches reports whether the key matches the query: a case-insensitive
// substring of the user ID, the full hex fingerprint, or the 16-digit
// hex key ID.
func (k *Key) Matches(query string) bool {
	if query == "" {
		return false
	}
	q := strings.ToLower(query)
	if strings.Contains(strings.ToLower(k.Identity()), q) {
		return true
	}
	fp := k.FingerprintHex()
	if q == fp || (len(q) == 16 && q == fp[24:]) {
		return true
	}
	return false
}

// UnlockSecret returns an unlocked copy of the secret key packet. The
// stored entry stays protected; the caller must Wipe the copy when the
// operation completes. A missing secret half yields ErrNotFound, a bad
// passphrase ErrWrongPassphrase.
func (k *Key) UnlockSecret(passphrase []byte) (*packet.SecretKey, error) {
	if k.Secret == nil {
		return nil, errors.WithMessagef(pgperrors.ErrNotFound, "no secret material for %q", k.Identity())
	}
	cp := *k.Secret
	if err := cp.Decrypt(passphrase); err != nil {
		return nil, err
	}
	return &cp, nil
}

// publicEntry returns the public-ring projection of the key.
func (k *Key) publicEntry() *Key {
	pub := *k.Public
	return &Key{
		Public:  &pub,
		UserID:  k.UserID,
		SelfSig: k.SelfSig,
	}
}

// Generate creates a fresh RSA key pair of the given strength,
// self-certifies the identity, and protects the secret material with
// the passphrase when one is supplied.
func Generate(bits int, identity string, passphrase []byte) (*Key, error) {
	if bits < 1024 || bits > 8192 {
		return nil, errors.WithMessagef(pgperrors.ErrInvalidInput, "key strength %d bits", bits)
	}
	if identity == "" {
		return nil, errors.WithMessage(pgperrors.ErrInvalidInput, "empty identity")
	}

	start := time.Now()
	priv, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	logger.KV(xlog.DEBUG, "op", "generate", "bits", bits, "elapsed", time.Since(start).String())

	now := time.Now().UTC().Truncate(time.Second)
	sk := packet.NewRSASecretKey(now, priv)
	uid := &packet.UserID{ID: identity}

	sig := &packet.Signature{
		SigType:      packet.SigTypePositiveCert,
		PubKeyAlgo:   packet.PubKeyAlgoRSA,
		Hash:         crypto.SHA256,
		CreationTime: now,
		// AES-256, AES-128 and the SHA-2 family; without these a
		// sender falls back to the RFC 4880 implicit defaults.
		PreferredSymmetric: []byte{9, 7},
		PreferredHash:      []byte{8, 9, 10},
	}
	if err := sig.SignUserID(uid, &sk.PublicKey, sk); err != nil {
		return nil, err
	}

	if len(passphrase) > 0 {
		if err := sk.Encrypt(passphrase); err != nil {
			return nil, err
		}
	}
	return &Key{
		Public:  &sk.PublicKey,
		Secret:  sk,
		UserID:  uid,
		SelfSig: sig,
	}, nil
}
