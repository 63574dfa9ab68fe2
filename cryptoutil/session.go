package cryptoutil

import (
	"crypto/rand"
	"crypto/rsa"
	"io"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/xpgp/pgperrors"
)

// GenerateSessionKey returns a fresh random session key for the cipher.
func GenerateSessionKey(c CipherFunction) ([]byte, error) {
	size := c.KeySize()
	if size == 0 {
		return nil, errors.WithMessagef(pgperrors.ErrUnsupported, "cipher algorithm %d", c)
	}
	key := make([]byte, size)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, errors.WithStack(err)
	}
	return key, nil
}

// sessionKeyChecksum is the two-octet sum of the session key bytes,
// RFC 4880 section 5.1.
func sessionKeyChecksum(key []byte) uint16 {
	var sum uint16
	for _, b := range key {
		sum += uint16(b)
	}
	return sum
}

// WrapSessionKey encrypts cipherFunc||sessionKey||checksum to the
// recipient RSA key with PKCS#1 v1.5 padding. The result is the raw
// RSA ciphertext; the packet layer frames it as an MPI.
func WrapSessionKey(pub *rsa.PublicKey, c CipherFunction, sessionKey []byte) ([]byte, error) {
	m := make([]byte, 0, len(sessionKey)+3)
	m = append(m, byte(c))
	m = append(m, sessionKey...)
	sum := sessionKeyChecksum(sessionKey)
	m = append(m, byte(sum>>8), byte(sum))

	out, err := rsa.EncryptPKCS1v15(rand.Reader, pub, m)
	Wipe(m)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return out, nil
}

// UnwrapSessionKey decrypts an RSA-wrapped session key and validates
// the trailing checksum. A padding or checksum failure yields
// pgperrors.ErrDecrypt without exposing which of the two it was.
func UnwrapSessionKey(priv *rsa.PrivateKey, ciphertext []byte) (CipherFunction, []byte, error) {
	// the ciphertext travels as an MPI and may have lost leading zeros
	m, err := rsa.DecryptPKCS1v15(rand.Reader, priv, PadToKeySize(&priv.PublicKey, ciphertext))
	if err != nil {
		return 0, nil, errors.WithMessage(pgperrors.ErrDecrypt, "session key unwrap")
	}
	if len(m) < 4 {
		Wipe(m)
		return 0, nil, errors.WithMessage(pgperrors.ErrDecrypt, "session key too short")
	}
	c := CipherFunction(m[0])
	key := m[1 : len(m)-2]
	sum := uint16(m[len(m)-2])<<8 | uint16(m[len(m)-1])
	if sum != sessionKeyChecksum(key) || c.KeySize() != len(key) {
		Wipe(m)
		return 0, nil, errors.WithMessage(pgperrors.ErrDecrypt, "session key checksum")
	}
	out := append([]byte{}, key...)
	Wipe(m)
	return c, out, nil
}
