package packet

import (
	"io"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/xpgp/pgperrors"
)

// UserID is a User ID packet (tag 13), conventionally of the form
// "Name (Comment) <email>".
type UserID struct {
	ID string
}

// PacketTag implements Packet.
func (u *UserID) PacketTag() Tag {
	return TagUserID
}

func parseUserID(r io.Reader) (*UserID, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.WithMessage(pgperrors.ErrDecode, "user ID: truncated")
	}
	return &UserID{ID: string(b)}, nil
}

// Serialize writes the complete packet.
func (u *UserID) Serialize(w io.Writer) error {
	return serializeBody(w, TagUserID, []byte(u.ID))
}

// signaturePrefix returns 0xb4 || len32 || id, the form in which a
// user ID is fed into certification signatures.
func (u *UserID) signaturePrefix() []byte {
	out := make([]byte, 5, 5+len(u.ID))
	out[0] = 0xb4
	out[1] = byte(len(u.ID) >> 24)
	out[2] = byte(len(u.ID) >> 16)
	out[3] = byte(len(u.ID) >> 8)
	out[4] = byte(len(u.ID))
	return append(out, u.ID...)
}
