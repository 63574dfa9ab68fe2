package packet

import (
	"crypto/rand"
	"crypto/sha1"
	"crypto/subtle"
	"hash"
	"io"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/xpgp/cryptoutil"
	"github.com/effective-security/xpgp/pgperrors"
)

// SymmetricallyEncrypted is a symmetrically encrypted data packet,
// either the legacy tag 9 form or the integrity protected tag 18 form
// with a trailing modification detection code.
type SymmetricallyEncrypted struct {
	MDC  bool
	Body io.Reader
}

// PacketTag implements Packet.
func (se *SymmetricallyEncrypted) PacketTag() Tag {
	if se.MDC {
		return TagSymmetricallyEncMDC
	}
	return TagSymmetricallyEnc
}

func parseSymmetricallyEncrypted(r io.Reader, mdc bool) (*SymmetricallyEncrypted, error) {
	if mdc {
		version, err := readByte(r)
		if err != nil {
			return nil, errors.WithMessage(pgperrors.ErrDecode, "encrypted data: truncated")
		}
		if version != 1 {
			return nil, errors.WithMessagef(pgperrors.ErrUnsupported, "encrypted data version %d", version)
		}
	}
	return &SymmetricallyEncrypted{MDC: mdc, Body: r}, nil
}

// Decrypt returns a reader over the plaintext packets inside. For MDC
// packets the reader verifies the modification detection code and
// fails the final read with pgperrors.ErrAuthentication on mismatch.
// A wrong session key is detected by the quick-check bytes and yields
// pgperrors.ErrDecrypt.
func (se *SymmetricallyEncrypted) Decrypt(cf cryptoutil.CipherFunction, key []byte) (io.Reader, error) {
	block, err := cf.New(key)
	if err != nil {
		return nil, err
	}

	prefix := make([]byte, block.BlockSize()+2)
	if _, err := io.ReadFull(se.Body, prefix); err != nil {
		return nil, errors.WithMessage(pgperrors.ErrDecode, "encrypted data: truncated prefix")
	}

	resync := cryptoutil.Resync
	if se.MDC {
		resync = cryptoutil.NoResync
	}
	stream, plainPrefix := cryptoutil.NewOCFBDecrypter(block, prefix, resync)
	if stream == nil {
		return nil, errors.WithMessage(pgperrors.ErrDecrypt, "encrypted data: session key mismatch")
	}

	plaintext := &streamReader{r: se.Body, stream: stream}
	if !se.MDC {
		return plaintext, nil
	}

	h := sha1.New()
	h.Write(plainPrefix)
	return &mdcReader{in: plaintext, h: h}, nil
}

// streamReader applies a cipher stream to an io.Reader.
type streamReader struct {
	r      io.Reader
	stream interface{ XORKeyStream(dst, src []byte) }
}

func (s *streamReader) Read(p []byte) (int, error) {
	n, err := s.r.Read(p)
	if n > 0 {
		s.stream.XORKeyStream(p[:n], p[:n])
	}
	return n, err
}

const mdcTrailerSize = 22 // 0xd3 0x14 plus a SHA-1 digest

// mdcReader withholds the trailing MDC packet from the plaintext
// stream and verifies it at EOF.
type mdcReader struct {
	in       io.Reader
	h        hash.Hash
	pending  []byte
	srcEOF   bool
	verified bool
}

func (r *mdcReader) Read(p []byte) (int, error) {
	for !r.srcEOF && len(r.pending) < mdcTrailerSize+len(p) {
		chunk := make([]byte, 4096)
		n, err := r.in.Read(chunk)
		r.pending = append(r.pending, chunk[:n]...)
		if err == io.EOF {
			r.srcEOF = true
		} else if err != nil {
			return 0, err
		}
	}

	if avail := len(r.pending) - mdcTrailerSize; avail > 0 {
		n := avail
		if n > len(p) {
			n = len(p)
		}
		copy(p, r.pending[:n])
		r.h.Write(r.pending[:n])
		r.pending = r.pending[n:]
		return n, nil
	}

	if r.verified {
		return 0, io.EOF
	}
	if len(r.pending) != mdcTrailerSize || r.pending[0] != 0xd3 || r.pending[1] != 0x14 {
		return 0, errors.WithMessage(pgperrors.ErrAuthentication, "missing MDC trailer")
	}
	r.h.Write(r.pending[:2])
	if subtle.ConstantTimeCompare(r.h.Sum(nil), r.pending[2:]) != 1 {
		return 0, errors.WithStack(pgperrors.ErrAuthentication)
	}
	r.verified = true
	return 0, io.EOF
}

// SerializeSymmetricallyEncrypted returns a WriteCloser that encrypts
// the packets written to it into a tag 18 integrity protected packet,
// appending the MDC on Close.
func SerializeSymmetricallyEncrypted(w io.Writer, cf cryptoutil.CipherFunction, key []byte) (io.WriteCloser, error) {
	block, err := cf.New(key)
	if err != nil {
		return nil, err
	}

	if _, err := w.Write([]byte{0xc0 | byte(TagSymmetricallyEncMDC)}); err != nil {
		return nil, errors.WithStack(err)
	}
	plw := &partialLengthWriter{w: w}
	if _, err := plw.Write([]byte{1}); err != nil { // version
		return nil, err
	}

	randBlock := make([]byte, block.BlockSize())
	if _, err := io.ReadFull(rand.Reader, randBlock); err != nil {
		return nil, errors.WithStack(err)
	}
	stream, prefix := cryptoutil.NewOCFBEncrypter(block, randBlock, cryptoutil.NoResync)
	if _, err := plw.Write(prefix); err != nil {
		return nil, err
	}

	h := sha1.New()
	h.Write(randBlock)
	h.Write(randBlock[block.BlockSize()-2:])

	return &mdcWriter{
		w:      plw,
		stream: stream,
		h:      h,
	}, nil
}

// mdcWriter hashes and encrypts the plaintext, then writes the MDC
// packet and closes the framing on Close.
type mdcWriter struct {
	w      io.WriteCloser
	stream interface{ XORKeyStream(dst, src []byte) }
	h      hash.Hash
}

func (m *mdcWriter) Write(p []byte) (int, error) {
	m.h.Write(p)
	buf := make([]byte, len(p))
	m.stream.XORKeyStream(buf, p)
	if _, err := m.w.Write(buf); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (m *mdcWriter) Close() error {
	m.h.Write([]byte{0xd3, 0x14})
	trailer := make([]byte, 2, mdcTrailerSize)
	trailer[0], trailer[1] = 0xd3, 0x14
	trailer = m.h.Sum(trailer)
	m.stream.XORKeyStream(trailer, trailer)
	if _, err := m.w.Write(trailer); err != nil {
		return err
	}
	return m.w.Close()
}
