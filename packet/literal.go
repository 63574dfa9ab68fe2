package packet

import (
	"encoding/binary"
	"io"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/xpgp/pgperrors"
)

// LiteralData is a literal data packet (tag 11). Body streams the
// payload and must be drained before reading further packets.
type LiteralData struct {
	// Format is 'b' for binary or 't'/'u' for text.
	Format   byte
	FileName string
	Time     uint32
	Body     io.Reader
}

// PacketTag implements Packet.
func (l *LiteralData) PacketTag() Tag {
	return TagLiteralData
}

func parseLiteralData(r io.Reader) (*LiteralData, error) {
	format, err := readByte(r)
	if err != nil {
		return nil, errors.WithMessage(pgperrors.ErrDecode, "literal data: truncated")
	}
	nameLen, err := readByte(r)
	if err != nil {
		return nil, errors.WithMessage(pgperrors.ErrDecode, "literal data: truncated")
	}
	name := make([]byte, nameLen)
	if _, err := io.ReadFull(r, name); err != nil {
		return nil, errors.WithMessage(pgperrors.ErrDecode, "literal data: truncated file name")
	}
	var ts [4]byte
	if _, err := io.ReadFull(r, ts[:]); err != nil {
		return nil, errors.WithMessage(pgperrors.ErrDecode, "literal data: truncated timestamp")
	}
	return &LiteralData{
		Format:   format,
		FileName: string(name),
		Time:     binary.BigEndian.Uint32(ts[:]),
		Body:     r,
	}, nil
}

// SerializeLiteral returns a WriteCloser that frames everything
// written to it as a binary literal data packet, streaming with
// partial body lengths so the total size need not be known up front.
func SerializeLiteral(w io.Writer, fileName string, t uint32) (io.WriteCloser, error) {
	if len(fileName) > 255 {
		fileName = fileName[:255]
	}
	if _, err := w.Write([]byte{0xc0 | byte(TagLiteralData)}); err != nil {
		return nil, errors.WithStack(err)
	}
	plw := &partialLengthWriter{w: w}

	hdr := make([]byte, 0, 6+len(fileName))
	hdr = append(hdr, 'b', byte(len(fileName)))
	hdr = append(hdr, fileName...)
	var ts [4]byte
	binary.BigEndian.PutUint32(ts[:], t)
	hdr = append(hdr, ts[:]...)
	if _, err := plw.Write(hdr); err != nil {
		return nil, err
	}
	return plw, nil
}
