package packet

import (
	"bytes"
	"crypto"
	"crypto/cipher"
	"crypto/dsa" //nolint:staticcheck // OpenPGP algorithm 17
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha1"
	"io"
	"math/big"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/xpgp/cryptoutil"
	"github.com/effective-security/xpgp/pgperrors"
	"github.com/effective-security/xpgp/s2k"
)

// Secret key protection modes (the "S2K usage" octet).
const (
	s2kUsagePlain    = 0
	s2kUsageChecksum = 255
	s2kUsageSHA1     = 254
)

// SecretKey is a secret key packet (tag 5): the public key fields
// followed by the algorithm-specific secret material, optionally
// encrypted under a passphrase-derived key.
type SecretKey struct {
	PublicKey

	// Encrypted reports whether the secret material still needs a
	// passphrase. It is false for unprotected keys and after Decrypt.
	Encrypted bool

	RSAPriv *rsa.PrivateKey
	DSAPriv *dsa.PrivateKey

	s2kUsage  byte
	cipher    cryptoutil.CipherFunction
	s2kParams *s2k.Params
	iv        []byte
	encrypted []byte
}

// PacketTag implements Packet.
func (sk *SecretKey) PacketTag() Tag {
	return TagSecretKey
}

// NewRSASecretKey builds an unprotected secret key packet around a
// freshly generated RSA key. Call Encrypt to protect it before
// serialization.
func NewRSASecretKey(creation time.Time, priv *rsa.PrivateKey) *SecretKey {
	return &SecretKey{
		PublicKey: *NewRSAPublicKey(creation, &priv.PublicKey),
		RSAPriv:   priv,
	}
}

// parseSecretKey reads a secret key packet body.
func parseSecretKey(r io.Reader) (*SecretKey, error) {
	pub, err := parsePublicKey(r, TagPublicKey)
	if err != nil {
		return nil, err
	}
	sk := &SecretKey{PublicKey: *pub}

	usage, err := readByte(r)
	if err != nil {
		return nil, errors.WithMessage(pgperrors.ErrDecode, "secret key: truncated S2K usage")
	}
	sk.s2kUsage = usage

	switch usage {
	case s2kUsagePlain:
		rest, err := io.ReadAll(r)
		if err != nil {
			return nil, errors.WithMessage(pgperrors.ErrDecode, "secret key: truncated material")
		}
		if err := sk.parsePlainMaterial(rest); err != nil {
			return nil, err
		}
		return sk, nil

	case s2kUsageSHA1, s2kUsageChecksum:
		cipherID, err := readByte(r)
		if err != nil {
			return nil, errors.WithMessage(pgperrors.ErrDecode, "secret key: truncated cipher ID")
		}
		sk.cipher = cryptoutil.CipherFunction(cipherID)
		if sk.cipher.KeySize() == 0 {
			return nil, errors.WithMessagef(pgperrors.ErrUnsupported, "secret key cipher %d", cipherID)
		}
		sk.s2kParams, err = s2k.Parse(r)
		if err != nil {
			return nil, err
		}
		sk.iv = make([]byte, sk.cipher.BlockSize())
		if _, err := io.ReadFull(r, sk.iv); err != nil {
			return nil, errors.WithMessage(pgperrors.ErrDecode, "secret key: truncated IV")
		}
		sk.encrypted, err = io.ReadAll(r)
		if err != nil {
			return nil, errors.WithMessage(pgperrors.ErrDecode, "secret key: truncated ciphertext")
		}
		sk.Encrypted = true
		return sk, nil
	}
	return nil, errors.WithMessagef(pgperrors.ErrUnsupported, "secret key S2K usage %d", usage)
}

// parsePlainMaterial parses the secret MPIs followed by a two-octet
// checksum.
func (sk *SecretKey) parsePlainMaterial(data []byte) error {
	if len(data) < 2 {
		return errors.WithMessage(pgperrors.ErrDecode, "secret key: material too short")
	}
	body, sum := data[:len(data)-2], data[len(data)-2:]
	if simpleChecksum(body) != uint16(sum[0])<<8|uint16(sum[1]) {
		return errors.WithMessage(pgperrors.ErrDecode, "secret key: checksum mismatch")
	}
	return sk.parseSecretMPIs(bytes.NewReader(body))
}

// parseSecretMPIs fills the private key structures from the decrypted
// algorithm-specific material.
func (sk *SecretKey) parseSecretMPIs(r io.Reader) error {
	switch sk.Algo {
	case PubKeyAlgoRSA, PubKeyAlgoRSAEncryptOnly, PubKeyAlgoRSASignOnly:
		d, err := readBigMPI(r)
		if err != nil {
			return err
		}
		p, err := readBigMPI(r)
		if err != nil {
			return err
		}
		q, err := readBigMPI(r)
		if err != nil {
			return err
		}
		// u (p^-1 mod q) is recomputed by Precompute.
		if _, err := readBigMPI(r); err != nil {
			return err
		}
		priv := &rsa.PrivateKey{
			PublicKey: *sk.RSA,
			D:         d,
			Primes:    []*big.Int{p, q},
		}
		if err := priv.Validate(); err != nil {
			return errors.WithMessage(pgperrors.ErrDecode, "secret key: invalid RSA material")
		}
		priv.Precompute()
		sk.RSAPriv = priv
	case PubKeyAlgoDSA:
		x, err := readBigMPI(r)
		if err != nil {
			return err
		}
		sk.DSAPriv = &dsa.PrivateKey{PublicKey: *sk.DSA, X: x}
	default:
		return errors.WithMessagef(pgperrors.ErrUnsupported, "secret key algorithm %d", sk.Algo)
	}
	sk.Encrypted = false
	return nil
}

// serializeSecretMPIs writes the algorithm-specific secret material.
func (sk *SecretKey) serializeSecretMPIs(w io.Writer) error {
	switch sk.Algo {
	case PubKeyAlgoRSA, PubKeyAlgoRSAEncryptOnly, PubKeyAlgoRSASignOnly:
		priv := sk.RSAPriv
		u := new(big.Int).ModInverse(priv.Primes[0], priv.Primes[1])
		for _, v := range []*big.Int{priv.D, priv.Primes[0], priv.Primes[1], u} {
			if err := writeBigMPI(w, v); err != nil {
				return err
			}
		}
		return nil
	case PubKeyAlgoDSA:
		return writeBigMPI(w, sk.DSAPriv.X)
	}
	return errors.WithMessagef(pgperrors.ErrUnsupported, "secret key algorithm %d", sk.Algo)
}

// Decrypt unlocks the secret material in place using the passphrase.
// It is a no-op for unprotected keys. A wrong passphrase yields
// pgperrors.ErrWrongPassphrase; the derived key is wiped either way.
func (sk *SecretKey) Decrypt(passphrase []byte) error {
	if !sk.Encrypted {
		return nil
	}

	key := sk.s2kParams.Key(passphrase, sk.cipher.KeySize())
	defer cryptoutil.Wipe(key)

	block, err := sk.cipher.New(key)
	if err != nil {
		return err
	}
	data := make([]byte, len(sk.encrypted))
	cipher.NewCFBDecrypter(block, sk.iv).XORKeyStream(data, sk.encrypted)
	defer cryptoutil.Wipe(data)

	switch sk.s2kUsage {
	case s2kUsageSHA1:
		if len(data) < sha1.Size {
			return errors.WithMessage(pgperrors.ErrWrongPassphrase, "secret key too short")
		}
		body, sum := data[:len(data)-sha1.Size], data[len(data)-sha1.Size:]
		digest := sha1.Sum(body)
		if !bytes.Equal(digest[:], sum) {
			return errors.WithStack(pgperrors.ErrWrongPassphrase)
		}
		data = body
	case s2kUsageChecksum:
		if len(data) < 2 {
			return errors.WithMessage(pgperrors.ErrWrongPassphrase, "secret key too short")
		}
		body, sum := data[:len(data)-2], data[len(data)-2:]
		if simpleChecksum(body) != uint16(sum[0])<<8|uint16(sum[1]) {
			return errors.WithStack(pgperrors.ErrWrongPassphrase)
		}
		data = body
	}

	if err := sk.parseSecretMPIs(bytes.NewReader(data)); err != nil {
		// The checksum passed, so garbled MPIs mean corrupt data
		// rather than a bad passphrase.
		return err
	}
	return nil
}

// Encrypt protects the secret material under the passphrase using
// iterated-salted S2K and AES-256 CFB with a SHA-1 integrity trailer,
// then drops the plaintext private key from the packet.
func (sk *SecretKey) Encrypt(passphrase []byte) error {
	if len(passphrase) == 0 {
		return errors.WithMessage(pgperrors.ErrInvalidInput, "empty passphrase")
	}

	var plain bytes.Buffer
	if err := sk.serializeSecretMPIs(&plain); err != nil {
		return err
	}
	digest := sha1.Sum(plain.Bytes())
	plain.Write(digest[:])

	params, err := s2k.New(crypto.SHA256)
	if err != nil {
		return err
	}
	sk.s2kParams = params
	sk.cipher = cryptoutil.CipherAES256
	sk.s2kUsage = s2kUsageSHA1

	key := params.Key(passphrase, sk.cipher.KeySize())
	defer cryptoutil.Wipe(key)
	block, err := sk.cipher.New(key)
	if err != nil {
		return err
	}
	sk.iv = make([]byte, sk.cipher.BlockSize())
	if _, err := io.ReadFull(rand.Reader, sk.iv); err != nil {
		return errors.WithStack(err)
	}

	sk.encrypted = make([]byte, plain.Len())
	cipher.NewCFBEncrypter(block, sk.iv).XORKeyStream(sk.encrypted, plain.Bytes())
	cryptoutil.Wipe(plain.Bytes())

	sk.Encrypted = true
	sk.RSAPriv = nil
	sk.DSAPriv = nil
	return nil
}

// Wipe drops references to decrypted material. For protected keys the
// packet can be unlocked again with Decrypt.
func (sk *SecretKey) Wipe() {
	if sk.s2kUsage == s2kUsagePlain {
		return
	}
	sk.RSAPriv = nil
	sk.DSAPriv = nil
	sk.Encrypted = true
}

// Serialize writes the complete packet.
func (sk *SecretKey) Serialize(w io.Writer) error {
	var body bytes.Buffer
	if err := sk.serializePayload(&body); err != nil {
		return err
	}

	if sk.s2kUsage == s2kUsageSHA1 || sk.s2kUsage == s2kUsageChecksum {
		if len(sk.encrypted) == 0 {
			return errors.WithMessage(pgperrors.ErrInvalidInput, "secret key: no encrypted material")
		}
		body.WriteByte(sk.s2kUsage)
		body.WriteByte(byte(sk.cipher))
		if err := sk.s2kParams.Serialize(&body); err != nil {
			return err
		}
		body.Write(sk.iv)
		body.Write(sk.encrypted)
	} else {
		var plain bytes.Buffer
		if err := sk.serializeSecretMPIs(&plain); err != nil {
			return err
		}
		body.WriteByte(s2kUsagePlain)
		sum := simpleChecksum(plain.Bytes())
		body.Write(plain.Bytes())
		body.WriteByte(byte(sum >> 8))
		body.WriteByte(byte(sum))
	}
	return serializeBody(w, TagSecretKey, body.Bytes())
}

// simpleChecksum is the mod-65536 sum of the octets, RFC 4880
// section 5.5.3.
func simpleChecksum(b []byte) uint16 {
	var sum uint16
	for _, v := range b {
		sum += uint16(v)
	}
	return sum
}
