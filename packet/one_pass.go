package packet

import (
	"crypto"
	"encoding/binary"
	"io"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/xpgp/cryptoutil"
	"github.com/effective-security/xpgp/pgperrors"
)

// OnePassSignature (tag 4) announces an upcoming signature so a
// verifier can hash the literal data in a single pass.
type OnePassSignature struct {
	SigType    SignatureType
	Hash       crypto.Hash
	PubKeyAlgo PublicKeyAlgorithm
	KeyID      uint64
	IsLast     bool
}

// PacketTag implements Packet.
func (ops *OnePassSignature) PacketTag() Tag {
	return TagOnePassSignature
}

func parseOnePassSignature(r io.Reader) (*OnePassSignature, error) {
	var buf [13]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return nil, errors.WithMessage(pgperrors.ErrDecode, "one-pass signature: truncated")
	}
	if buf[0] != 3 {
		return nil, errors.WithMessagef(pgperrors.ErrUnsupported, "one-pass signature version %d", buf[0])
	}
	h, err := cryptoutil.HashFromID(buf[2])
	if err != nil {
		return nil, err
	}
	return &OnePassSignature{
		SigType:    SignatureType(buf[1]),
		Hash:       h,
		PubKeyAlgo: PublicKeyAlgorithm(buf[3]),
		KeyID:      binary.BigEndian.Uint64(buf[4:12]),
		IsLast:     buf[12] != 0,
	}, nil
}

// Serialize writes the complete packet.
func (ops *OnePassSignature) Serialize(w io.Writer) error {
	hashID, err := cryptoutil.HashToID(ops.Hash)
	if err != nil {
		return err
	}
	var body [13]byte
	body[0] = 3
	body[1] = byte(ops.SigType)
	body[2] = hashID
	body[3] = byte(ops.PubKeyAlgo)
	binary.BigEndian.PutUint64(body[4:12], ops.KeyID)
	if ops.IsLast {
		body[12] = 1
	}
	return serializeBody(w, TagOnePassSignature, body[:])
}
