package cryptoutil

import (
	"crypto"
	"crypto/dsa" //nolint:staticcheck // required for OpenPGP algorithm 17
	"crypto/rand"
	"crypto/rsa"
	"math/big"

	"github.com/cockroachdb/errors"
)

// SignRSA produces a PKCS#1 v1.5 signature over digest.
func SignRSA(priv *rsa.PrivateKey, hashFunc crypto.Hash, digest []byte) ([]byte, error) {
	sig, err := rsa.SignPKCS1v15(rand.Reader, priv, hashFunc, digest)
	return sig, errors.WithStack(err)
}

// VerifyRSA reports whether sig is a valid PKCS#1 v1.5 signature over
// digest. An invalid signature is a false result, never an error.
// MPI encoding strips leading zero octets, so sig may arrive shorter
// than the modulus; it is left-padded back to the key size, which
// crypto/rsa requires.
func VerifyRSA(pub *rsa.PublicKey, hashFunc crypto.Hash, digest, sig []byte) bool {
	return rsa.VerifyPKCS1v15(pub, hashFunc, digest, PadToKeySize(pub, sig)) == nil
}

// PadToKeySize left-pads value with zero octets to the size of the RSA
// modulus.
func PadToKeySize(pub *rsa.PublicKey, value []byte) []byte {
	k := (pub.N.BitLen() + 7) / 8
	if len(value) >= k {
		return value
	}
	padded := make([]byte, k)
	copy(padded[k-len(value):], value)
	return padded
}

// SignDSA produces a DSA signature over digest, truncated to the
// subgroup size per FIPS 186-3 section 4.6.
func SignDSA(priv *dsa.PrivateKey, digest []byte) (r, s *big.Int, err error) {
	subgroup := (priv.Q.BitLen() + 7) / 8
	if len(digest) > subgroup {
		digest = digest[:subgroup]
	}
	r, s, err = dsa.Sign(rand.Reader, priv, digest)
	return r, s, errors.WithStack(err)
}

// VerifyDSA reports whether (r, s) is a valid DSA signature over digest.
func VerifyDSA(pub *dsa.PublicKey, digest []byte, r, s *big.Int) bool {
	subgroup := (pub.Q.BitLen() + 7) / 8
	if len(digest) > subgroup {
		digest = digest[:subgroup]
	}
	return dsa.Verify(pub, digest, r, s)
}
