package cryptoutil

import (
	"crypto"
	_ "crypto/sha1"   // hash registry
	_ "crypto/sha256" // hash registry
	_ "crypto/sha512" // hash registry
	"hash"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/xpgp/pgperrors"
)

// hashes maps OpenPGP hash algorithm IDs (RFC 4880 section 9.4) to Go
// hashes. MD5 and RIPEMD-160 are intentionally absent.
var hashes = map[byte]crypto.Hash{
	2:  crypto.SHA1,
	8:  crypto.SHA256,
	9:  crypto.SHA384,
	10: crypto.SHA512,
	11: crypto.SHA224,
}

// HashFromID returns the Go hash for an OpenPGP hash algorithm ID.
func HashFromID(id byte) (crypto.Hash, error) {
	h, ok := hashes[id]
	if !ok || !h.Available() {
		return 0, errors.WithMessagef(pgperrors.ErrUnsupported, "hash algorithm %d", id)
	}
	return h, nil
}

// HashToID returns the OpenPGP algorithm ID for a Go hash.
func HashToID(h crypto.Hash) (byte, error) {
	for id, hh := range hashes {
		if hh == h {
			return id, nil
		}
	}
	return 0, errors.WithMessagef(pgperrors.ErrUnsupported, "hash %v has no OpenPGP ID", h)
}

// Digest hashes data with the given algorithm.
func Digest(h crypto.Hash, data []byte) []byte {
	d := h.New()
	d.Write(data)
	return d.Sum(nil)
}

// NewHash returns a new hash.Hash for the algorithm ID.
func NewHash(id byte) (hash.Hash, error) {
	h, err := HashFromID(id)
	if err != nil {
		return nil, err
	}
	return h.New(), nil
}
