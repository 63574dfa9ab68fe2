package packet

import (
	"io"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/xlog"
	"github.com/effective-security/xpgp/pgperrors"
)

// Reader iterates lazily over a stream of packets. Packets with
// streaming bodies (literal data, encrypted data) borrow the
// underlying reader; they must be drained before calling Next again.
type Reader struct {
	r io.Reader
}

// NewReader returns a Reader over r.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: r}
}

// spanReader reads exactly n octets; running out of input early is a
// hard decode error, not a short body.
type spanReader struct {
	r io.Reader
	n int64
}

func (s *spanReader) Read(p []byte) (int, error) {
	if s.n <= 0 {
		return 0, io.EOF
	}
	if int64(len(p)) > s.n {
		p = p[:s.n]
	}
	n, err := s.r.Read(p)
	s.n -= int64(n)
	if err == io.EOF && s.n > 0 {
		err = errors.WithMessage(pgperrors.ErrDecode, "packet: truncated body")
	}
	return n, err
}

// Next returns the next packet, or io.EOF at the end of the stream.
// Malformed framing yields pgperrors.ErrDecode.
func (rd *Reader) Next() (Packet, error) {
	tag, length, partial, err := readHeader(rd.r)
	if err == io.EOF {
		return nil, io.EOF
	}
	if err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, errors.WithMessage(pgperrors.ErrDecode, "packet: truncated header")
		}
		return nil, err
	}

	var body io.Reader
	switch {
	case length < 0:
		body = rd.r
	case partial:
		body = &partialLengthReader{r: rd.r, remaining: length, partial: true}
	default:
		body = &spanReader{r: rd.r, n: length}
	}

	// Streaming packets borrow the body reader.
	switch tag {
	case TagLiteralData:
		return parseLiteralData(body)
	case TagSymmetricallyEnc:
		return parseSymmetricallyEncrypted(body, false)
	case TagSymmetricallyEncMDC:
		return parseSymmetricallyEncrypted(body, true)
	}

	var p Packet
	switch tag {
	case TagEncryptedKey:
		p, err = parseEncryptedKey(body)
	case TagSignature:
		p, err = parseSignature(body)
	case TagOnePassSignature:
		p, err = parseOnePassSignature(body)
	case TagSecretKey:
		p, err = parseSecretKey(body)
	case TagPublicKey, TagPublicSubkey:
		p, err = parsePublicKey(body, tag)
	case TagUserID:
		p, err = parseUserID(body)
	default:
		// Unknown and uninterpreted tags are preserved opaquely for
		// forward compatibility.
		logger.KV(xlog.TRACE, "reason", "opaque_packet", "tag", uint8(tag))
		p, err = parseOpaque(body, tag)
	}
	if err != nil {
		return nil, err
	}
	// Drain any remainder so the next header starts cleanly.
	if _, err := io.Copy(io.Discard, body); err != nil {
		return nil, errors.WithMessage(pgperrors.ErrDecode, "packet: truncated body")
	}
	return p, nil
}
