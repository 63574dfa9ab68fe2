// Package engine orchestrates OpenPGP sessions: it owns the key store,
// serializes operations, and exposes encrypt, decrypt, sign, verify and
// key management as a single façade. Secret material never outlives the
// operation that unlocked it.
package engine

import (
	"bytes"
	"context"
	"crypto"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/xlog"
	"github.com/effective-security/xpgp/armor"
	"github.com/effective-security/xpgp/cryptoutil"
	"github.com/effective-security/xpgp/keyring"
	"github.com/effective-security/xpgp/metricskey"
	"github.com/effective-security/xpgp/pgperrors"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/xpgp", "engine")

// Message defaults.
const (
	defaultCipher = cryptoutil.CipherAES256
	defaultHash   = crypto.SHA256
)

// Engine is the session orchestrator. All public operations run under
// a single mutex: callers block until the engine is free, requests are
// never rejected for concurrency reasons.
type Engine struct {
	mu    sync.Mutex
	cfg   *Config
	store *keyring.Store
}

// New opens the key rings named by the configuration. Missing ring
// files start empty.
func New(cfg *Config) (*Engine, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	store, err := keyring.Open(cfg.PublicRingPath(), cfg.SecretRingPath())
	if err != nil {
		return nil, err
	}
	return &Engine{cfg: cfg, store: store}, nil
}

// session holds the per-operation copy of the caller's passphrase. The
// copy is wiped when the operation returns, so the engine never retains
// secret input beyond a single call.
type session struct {
	passphrase []byte
}

func newSession(passphrase []byte) *session {
	s := &session{}
	if len(passphrase) > 0 {
		s.passphrase = bytes.Clone(passphrase)
	}
	return s
}

func (s *session) close() {
	cryptoutil.Wipe(s.passphrase)
	s.passphrase = nil
}

// identityOrDefault falls back to the configured default identity.
func (e *Engine) identityOrDefault(identity string) (string, error) {
	if identity == "" {
		identity = e.cfg.DefaultIdentity
	}
	if identity == "" {
		return "", errors.WithMessage(pgperrors.ErrInvalidInput, "no identity specified and no default configured")
	}
	return identity, nil
}

// ListKeys returns every key in the store.
func (e *Engine) ListKeys() []keyring.KeyInfo {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.store.List()
}

// GenerateKey creates a new RSA key pair, self-certifies the identity,
// adds it to both rings and persists them. The context is checked after
// the expensive prime generation and before any state changes.
func (e *Engine) GenerateKey(ctx context.Context, bits int, identity string, passphrase []byte) (*keyring.KeyInfo, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	defer metricskey.PerfKeyOperation.MeasureSince(time.Now(), "generate")

	sess := newSession(passphrase)
	defer sess.close()

	key, err := keyring.Generate(bits, identity, sess.passphrase)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, errors.WithStack(err)
	}

	e.store.AddKey(key)
	if err := e.store.Persist(); err != nil {
		return nil, err
	}

	info := key.Info()
	logger.KV(xlog.INFO,
		"op", "generate",
		"identity", identity,
		"fingerprint", info.Fingerprint,
		"bits", bits,
	)
	return &info, nil
}

// ExportKey returns the armored public key block for the identity.
func (e *Engine) ExportKey(identity string) ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	key, err := e.store.Find(identity)
	if err != nil {
		return nil, err
	}
	data, err := keyring.ExportKey(key, false)
	if err != nil {
		return nil, err
	}
	return armor.EncodeBytes(data, armor.PublicKeyBlock)
}

// ExportSecretKey returns the armored secret key block for the
// identity. The exported material keeps its passphrase protection.
func (e *Engine) ExportSecretKey(identity string) ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	key, err := e.store.FindSecret(identity)
	if err != nil {
		return nil, err
	}
	data, err := keyring.ExportKey(key, true)
	if err != nil {
		return nil, err
	}
	return armor.EncodeBytes(data, armor.PrivateKeyBlock)
}

// ImportKeyData adds the keys found in the given binary or armored
// block to the store and persists the rings. It returns the number of
// new entries.
func (e *Engine) ImportKeyData(data []byte) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(data) == 0 {
		return 0, errors.WithMessage(pgperrors.ErrInvalidInput, "empty key data")
	}
	raw, err := maybeDearmor(data)
	if err != nil {
		return 0, err
	}
	ring, err := keyring.ParseRing(bytes.NewReader(raw))
	if err != nil {
		return 0, err
	}
	if len(ring.Keys) == 0 {
		return 0, errors.WithMessage(pgperrors.ErrDecode, "no keys in input")
	}

	added := 0
	for _, k := range ring.Keys {
		if e.store.AddKey(k) {
			added++
		}
	}
	if added > 0 {
		if err := e.store.Persist(); err != nil {
			return 0, err
		}
	}
	logger.KV(xlog.INFO, "op", "import", "keys", len(ring.Keys), "added", added)
	return added, nil
}

// ImportKey imports keys from a file.
func (e *Engine) ImportKey(path string) (int, error) {
	data, err := readFile(path)
	if err != nil {
		return 0, err
	}
	return e.ImportKeyData(data)
}

// maybeDearmor strips ASCII armor when present and returns the binary
// payload.
func maybeDearmor(data []byte) ([]byte, error) {
	if !armor.IsArmored(data) {
		return data, nil
	}
	block, err := armor.DecodeBytes(data)
	if err != nil {
		return nil, err
	}
	return block.Bytes, nil
}
