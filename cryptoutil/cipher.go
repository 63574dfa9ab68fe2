// Package cryptoutil implements the cryptographic core of the OpenPGP
// engine: cipher and hash algorithm registries, the OpenPGP variant of
// CFB mode, session key generation and wrapping, and the raw RSA/DSA
// signature operations. It works on standard library crypto types and
// has no knowledge of packet framing.
package cryptoutil

import (
	"crypto/aes"
	"crypto/cipher"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/xpgp/pgperrors"
	"golang.org/x/crypto/cast5"
)

// CipherFunction is an OpenPGP symmetric algorithm ID, RFC 4880
// section 9.2.
type CipherFunction byte

// Supported symmetric algorithms.
const (
	CipherCAST5  CipherFunction = 3
	CipherAES128 CipherFunction = 7
	CipherAES256 CipherFunction = 9
)

// KeySize returns the cipher key size in bytes, or 0 if unsupported.
func (c CipherFunction) KeySize() int {
	switch c {
	case CipherCAST5:
		return cast5.KeySize
	case CipherAES128:
		return 16
	case CipherAES256:
		return 32
	}
	return 0
}

// BlockSize returns the cipher block size in bytes, or 0 if unsupported.
func (c CipherFunction) BlockSize() int {
	switch c {
	case CipherCAST5:
		return 8
	case CipherAES128, CipherAES256:
		return 16
	}
	return 0
}

// New instantiates the block cipher with the given key.
func (c CipherFunction) New(key []byte) (cipher.Block, error) {
	if len(key) != c.KeySize() {
		return nil, errors.WithMessagef(pgperrors.ErrInvalidInput, "cipher %d: key size %d", c, len(key))
	}
	switch c {
	case CipherCAST5:
		b, err := cast5.NewCipher(key)
		return b, errors.WithStack(err)
	case CipherAES128, CipherAES256:
		b, err := aes.NewCipher(key)
		return b, errors.WithStack(err)
	}
	return nil, errors.WithMessagef(pgperrors.ErrUnsupported, "cipher algorithm %d", c)
}
