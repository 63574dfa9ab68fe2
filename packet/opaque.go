package packet

import (
	"io"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/xpgp/pgperrors"
)

// Opaque holds a packet the engine does not interpret. The body is
// preserved so rings containing foreign packets re-serialize without
// loss.
type Opaque struct {
	RawTag   Tag
	Contents []byte
}

// PacketTag implements Packet.
func (o *Opaque) PacketTag() Tag {
	return o.RawTag
}

func parseOpaque(r io.Reader, tag Tag) (*Opaque, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.WithMessagef(pgperrors.ErrDecode, "packet %d: truncated", tag)
	}
	return &Opaque{RawTag: tag, Contents: b}, nil
}

// Serialize writes the packet back out unchanged.
func (o *Opaque) Serialize(w io.Writer) error {
	return serializeBody(w, o.RawTag, o.Contents)
}
