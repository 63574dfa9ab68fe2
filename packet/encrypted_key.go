package packet

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/xpgp/cryptoutil"
	"github.com/effective-security/xpgp/pgperrors"
)

// EncryptedKey is a public-key encrypted session key packet (tag 1).
type EncryptedKey struct {
	KeyID uint64
	Algo  PublicKeyAlgorithm

	encrypted []byte
}

// PacketTag implements Packet.
func (ek *EncryptedKey) PacketTag() Tag {
	return TagEncryptedKey
}

func parseEncryptedKey(r io.Reader) (*EncryptedKey, error) {
	var fixed [10]byte
	if _, err := io.ReadFull(r, fixed[:]); err != nil {
		return nil, errors.WithMessage(pgperrors.ErrDecode, "encrypted session key: truncated")
	}
	if fixed[0] != 3 {
		return nil, errors.WithMessagef(pgperrors.ErrUnsupported, "encrypted session key version %d", fixed[0])
	}
	ek := &EncryptedKey{
		KeyID: binary.BigEndian.Uint64(fixed[1:9]),
		Algo:  PublicKeyAlgorithm(fixed[9]),
	}
	var err error
	switch ek.Algo {
	case PubKeyAlgoRSA, PubKeyAlgoRSAEncryptOnly:
		ek.encrypted, err = readMPI(r)
		if err != nil {
			return nil, err
		}
	default:
		return nil, errors.WithMessagef(pgperrors.ErrUnsupported, "encrypted session key algorithm %d", ek.Algo)
	}
	return ek, nil
}

// Decrypt unwraps the session key with the unlocked secret key.
func (ek *EncryptedKey) Decrypt(sk *SecretKey) (cryptoutil.CipherFunction, []byte, error) {
	if sk.Encrypted {
		return 0, nil, errors.WithMessage(pgperrors.ErrInvalidInput, "encrypted session key: secret key is locked")
	}
	if sk.RSAPriv == nil {
		return 0, nil, errors.WithMessagef(pgperrors.ErrUnsupported, "encrypted session key algorithm %d", ek.Algo)
	}
	return cryptoutil.UnwrapSessionKey(sk.RSAPriv, ek.encrypted)
}

// SerializeEncryptedKey wraps the session key to the recipient public
// key and writes the complete packet.
func SerializeEncryptedKey(w io.Writer, pub *PublicKey, cf cryptoutil.CipherFunction, sessionKey []byte) error {
	if pub.RSA == nil {
		return errors.WithMessagef(pgperrors.ErrUnsupported, "session key wrap for algorithm %d", pub.Algo)
	}
	wrapped, err := cryptoutil.WrapSessionKey(pub.RSA, cf, sessionKey)
	if err != nil {
		return err
	}

	var body bytes.Buffer
	body.WriteByte(3)
	var keyID [8]byte
	binary.BigEndian.PutUint64(keyID[:], pub.KeyID())
	body.Write(keyID[:])
	body.WriteByte(byte(pub.Algo))
	if err := writeMPI(&body, wrapped); err != nil {
		return err
	}
	return serializeBody(w, TagEncryptedKey, body.Bytes())
}
