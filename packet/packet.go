// Package packet implements the OpenPGP binary packet framing from
// RFC 4880 section 4: tag and length headers in both old and new
// format, partial body lengths for streaming, multi-precision integer
// encoding, and the packet types the engine produces and consumes.
// Packet semantics that require cryptography delegate to cryptoutil.
package packet

import (
	"io"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/xlog"
	"github.com/effective-security/xpgp/pgperrors"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/xpgp", "packet")

// Tag identifies a packet type, RFC 4880 section 4.3.
type Tag uint8

// Packet tags understood by the engine.
const (
	TagEncryptedKey        Tag = 1
	TagSignature           Tag = 2
	TagOnePassSignature    Tag = 4
	TagSecretKey           Tag = 5
	TagPublicKey           Tag = 6
	TagSecretSubkey        Tag = 7
	TagCompressedData      Tag = 8
	TagSymmetricallyEnc    Tag = 9
	TagLiteralData         Tag = 11
	TagTrust               Tag = 12
	TagUserID              Tag = 13
	TagPublicSubkey        Tag = 14
	TagSymmetricallyEncMDC Tag = 18
	TagMDC                 Tag = 19
)

// Packet is a parsed OpenPGP packet.
type Packet interface {
	// PacketTag reports the wire tag of the packet.
	PacketTag() Tag
}

// readByte reads exactly one octet.
func readByte(r io.Reader) (byte, error) {
	var buf [1]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return buf[0], nil
}

// readHeader decodes a packet header. length is -1 for old-format
// indeterminate length (body runs to EOF). partial reports a new-format
// partial body length, in which case length is the first chunk size.
func readHeader(r io.Reader) (tag Tag, length int64, partial bool, err error) {
	first, err := readByte(r)
	if err != nil {
		return 0, 0, false, err
	}
	if first&0x80 == 0 {
		return 0, 0, false, errors.WithMessage(pgperrors.ErrDecode, "packet: tag byte missing high bit")
	}

	if first&0x40 == 0 {
		// Old format: tag in bits 5..2, length type in bits 1..0.
		tag = Tag((first >> 2) & 0x0f)
		var buf [4]byte
		switch first & 0x03 {
		case 0:
			if _, err = io.ReadFull(r, buf[:1]); err != nil {
				return 0, 0, false, errors.WithMessage(pgperrors.ErrDecode, "packet: truncated length")
			}
			length = int64(buf[0])
		case 1:
			if _, err = io.ReadFull(r, buf[:2]); err != nil {
				return 0, 0, false, errors.WithMessage(pgperrors.ErrDecode, "packet: truncated length")
			}
			length = int64(buf[0])<<8 | int64(buf[1])
		case 2:
			if _, err = io.ReadFull(r, buf[:4]); err != nil {
				return 0, 0, false, errors.WithMessage(pgperrors.ErrDecode, "packet: truncated length")
			}
			length = int64(buf[0])<<24 | int64(buf[1])<<16 | int64(buf[2])<<8 | int64(buf[3])
		case 3:
			length = -1
		}
		return tag, length, false, nil
	}

	// New format: tag in bits 5..0, variable length octets follow.
	tag = Tag(first & 0x3f)
	length, partial, err = readNewLength(r)
	if err != nil {
		return 0, 0, false, err
	}
	return tag, length, partial, nil
}

// readNewLength decodes a new-format length field, RFC 4880
// section 4.2.2.
func readNewLength(r io.Reader) (length int64, partial bool, err error) {
	b0, err := readByte(r)
	if err != nil {
		return 0, false, errors.WithMessage(pgperrors.ErrDecode, "packet: truncated length")
	}
	switch {
	case b0 < 192:
		return int64(b0), false, nil
	case b0 < 224:
		b1, err := readByte(r)
		if err != nil {
			return 0, false, errors.WithMessage(pgperrors.ErrDecode, "packet: truncated length")
		}
		return (int64(b0)-192)<<8 + int64(b1) + 192, false, nil
	case b0 == 255:
		var buf [4]byte
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return 0, false, errors.WithMessage(pgperrors.ErrDecode, "packet: truncated length")
		}
		return int64(buf[0])<<24 | int64(buf[1])<<16 | int64(buf[2])<<8 | int64(buf[3]), false, nil
	default:
		// 224..254: partial body length, a power of two.
		return int64(1) << (b0 & 0x1f), true, nil
	}
}

// serializeHeader writes a new-format header with a definite length.
func serializeHeader(w io.Writer, tag Tag, length int) error {
	buf := make([]byte, 1, 6)
	buf[0] = 0xc0 | byte(tag)
	switch {
	case length < 192:
		buf = append(buf, byte(length))
	case length < 8384:
		length -= 192
		buf = append(buf, 192+byte(length>>8), byte(length))
	default:
		buf = append(buf, 255, byte(length>>24), byte(length>>16), byte(length>>8), byte(length))
	}
	_, err := w.Write(buf)
	return errors.WithStack(err)
}

// serializeBody writes a complete packet with a definite length.
func serializeBody(w io.Writer, tag Tag, body []byte) error {
	if err := serializeHeader(w, tag, len(body)); err != nil {
		return err
	}
	_, err := w.Write(body)
	return errors.WithStack(err)
}

// partialLengthReader reassembles a body split into partial-length
// chunks into a single stream.
type partialLengthReader struct {
	r         io.Reader
	remaining int64
	partial   bool
}

func (p *partialLengthReader) Read(buf []byte) (int, error) {
	for p.remaining == 0 {
		if !p.partial {
			return 0, io.EOF
		}
		var err error
		p.remaining, p.partial, err = readNewLength(p.r)
		if err != nil {
			return 0, err
		}
	}
	if int64(len(buf)) > p.remaining {
		buf = buf[:p.remaining]
	}
	n, err := p.r.Read(buf)
	p.remaining -= int64(n)
	if err == io.EOF && (p.remaining > 0 || p.partial) {
		err = errors.WithMessage(pgperrors.ErrDecode, "packet: truncated partial body")
	}
	return n, err
}

// partialChunkSize is the power-of-two chunk emitted while streaming.
const partialChunkSize = 1 << 13

// partialLengthWriter emits a body as partial-length chunks, closing
// with a definite-length final chunk. The packet tag byte must already
// have been written.
type partialLengthWriter struct {
	w   io.Writer
	buf []byte
}

func (p *partialLengthWriter) Write(data []byte) (int, error) {
	total := len(data)
	p.buf = append(p.buf, data...)
	for len(p.buf) >= 2*partialChunkSize {
		// The encoded octet 0xe0|13 is 224+13, i.e. a 2^13 chunk.
		if _, err := p.w.Write([]byte{224 + 13}); err != nil {
			return 0, errors.WithStack(err)
		}
		if _, err := p.w.Write(p.buf[:partialChunkSize]); err != nil {
			return 0, errors.WithStack(err)
		}
		p.buf = p.buf[partialChunkSize:]
	}
	return total, nil
}

func (p *partialLengthWriter) Close() error {
	// Final chunk uses a definite length, which may be zero.
	length := len(p.buf)
	var hdr []byte
	switch {
	case length < 192:
		hdr = []byte{byte(length)}
	case length < 8384:
		l := length - 192
		hdr = []byte{192 + byte(l>>8), byte(l)}
	default:
		hdr = []byte{255, byte(length >> 24), byte(length >> 16), byte(length >> 8), byte(length)}
	}
	if _, err := p.w.Write(hdr); err != nil {
		return errors.WithStack(err)
	}
	if _, err := p.w.Write(p.buf); err != nil {
		return errors.WithStack(err)
	}
	p.buf = nil
	return nil
}
