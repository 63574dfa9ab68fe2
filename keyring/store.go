package keyring

import (
	"bytes"
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/xlog"
	"github.com/effective-security/xpgp/pgperrors"
)

// Store holds the public and secret rings backed by two files. A
// missing ring file loads as an empty ring; Persist rewrites each file
// atomically via a temporary file and rename.
type Store struct {
	pubPath string
	secPath string

	Public *KeyRing
	Secret *KeyRing
}

// Open loads both rings.
func Open(pubPath, secPath string) (*Store, error) {
	pub, err := loadRing(pubPath)
	if err != nil {
		return nil, errors.WithMessagef(err, "public ring %s", pubPath)
	}
	sec, err := loadRing(secPath)
	if err != nil {
		return nil, errors.WithMessagef(err, "secret ring %s", secPath)
	}
	logger.KV(xlog.TRACE,
		"op", "open",
		"public_keys", len(pub.Keys),
		"secret_keys", len(sec.Keys),
	)
	return &Store{
		pubPath: pubPath,
		secPath: secPath,
		Public:  pub,
		Secret:  sec,
	}, nil
}

func loadRing(path string) (*KeyRing, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &KeyRing{}, nil
	}
	if err != nil {
		return nil, errors.WithMessage(pgperrors.ErrIO, err.Error())
	}
	if len(data) == 0 {
		return &KeyRing{}, nil
	}
	return ParseRing(bytes.NewReader(data))
}

// Find returns the key matching the query, preferring entries with
// secret material.
func (s *Store) Find(query string) (*Key, error) {
	if k, err := s.Secret.Lookup(query); err == nil {
		return k, nil
	}
	return s.Public.Lookup(query)
}

// FindSecret returns a secret key matching the query.
func (s *Store) FindSecret(query string) (*Key, error) {
	return s.Secret.Lookup(query)
}

// FindSecretByKeyID returns the secret key with the given key ID.
func (s *Store) FindSecretByKeyID(id uint64) (*Key, error) {
	return s.Secret.LookupByKeyID(id)
}

// FindByKeyID returns any key with the given key ID.
func (s *Store) FindByKeyID(id uint64) (*Key, error) {
	if k, err := s.Secret.LookupByKeyID(id); err == nil {
		return k, nil
	}
	return s.Public.LookupByKeyID(id)
}

// List returns the merged listing: every key once, secret entries
// first retaining ring order.
func (s *Store) List() []KeyInfo {
	seen := map[[20]byte]bool{}
	var out []KeyInfo
	for _, k := range s.Secret.Keys {
		seen[k.Public.Fingerprint()] = true
		out = append(out, k.Info())
	}
	for _, k := range s.Public.Keys {
		if !seen[k.Public.Fingerprint()] {
			out = append(out, k.Info())
		}
	}
	return out
}

// AddKey inserts the key into the secret ring when it carries secret
// material, and its public projection into the public ring. Reports
// whether either ring changed.
func (s *Store) AddKey(k *Key) bool {
	changed := false
	if k.Secret != nil {
		changed = s.Secret.Add(k)
	}
	if s.Public.Add(k.publicEntry()) {
		changed = true
	}
	return changed
}

// Persist rewrites both ring files. Each file is written to a
// temporary sibling and renamed into place so a crash never leaves a
// truncated ring. The secret ring is written mode 0600.
func (s *Store) Persist() error {
	var pub, sec bytes.Buffer
	if err := s.Public.Serialize(&pub); err != nil {
		return err
	}
	if err := s.Secret.Serialize(&sec); err != nil {
		return err
	}
	if err := writeFileAtomic(s.pubPath, pub.Bytes(), 0644); err != nil {
		return err
	}
	if err := writeFileAtomic(s.secPath, sec.Bytes(), 0600); err != nil {
		return err
	}
	logger.KV(xlog.DEBUG,
		"op", "persist",
		"public_keys", len(s.Public.Keys),
		"secret_keys", len(s.Secret.Keys),
	)
	return nil
}

func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.WithMessage(pgperrors.ErrIO, err.Error())
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp*")
	if err != nil {
		return errors.WithMessage(pgperrors.ErrIO, err.Error())
	}
	name := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(name)
		return errors.WithMessage(pgperrors.ErrIO, err.Error())
	}
	if err := tmp.Chmod(perm); err != nil {
		tmp.Close()
		os.Remove(name)
		return errors.WithMessage(pgperrors.ErrIO, err.Error())
	}
	if err := tmp.Close(); err != nil {
		os.Remove(name)
		return errors.WithMessage(pgperrors.ErrIO, err.Error())
	}
	if err := os.Rename(name, path); err != nil {
		os.Remove(name)
		return errors.WithMessage(pgperrors.ErrIO, err.Error())
	}
	return nil
}
