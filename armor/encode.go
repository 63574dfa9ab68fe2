package armor

import (
	"bytes"
	"encoding/base64"
	"io"
	"sort"

	"github.com/cockroachdb/errors"
)

// encoder streams binary data into an armored block. The CRC trailer
// and END banner are written on Close.
type encoder struct {
	w         io.Writer
	blockType string
	crc       uint32
	b64       io.WriteCloser
	breaker   *lineBreaker
	err       error
}

// lineBreaker wraps the base64 stream at lineWidth columns.
type lineBreaker struct {
	w    io.Writer
	used int
}

func (l *lineBreaker) Write(p []byte) (int, error) {
	total := 0
	for len(p) > 0 {
		n := lineWidth - l.used
		if n > len(p) {
			n = len(p)
		}
		written, err := l.w.Write(p[:n])
		total += written
		if err != nil {
			return total, err
		}
		l.used += n
		p = p[n:]
		if l.used == lineWidth {
			if _, err := l.w.Write([]byte{'\n'}); err != nil {
				return total, err
			}
			l.used = 0
		}
	}
	return total, nil
}

func (l *lineBreaker) Close() error {
	if l.used > 0 {
		_, err := l.w.Write([]byte{'\n'})
		return err
	}
	return nil
}

// Encode returns a WriteCloser that armors everything written to it
// as a block of the given type. Close finishes the block.
func Encode(w io.Writer, blockType string, headers map[string]string) (io.WriteCloser, error) {
	if _, err := io.WriteString(w, beginMark+blockType+tailMark+"\n"); err != nil {
		return nil, errors.WithStack(err)
	}
	// Deterministic header order.
	keys := make([]string, 0, len(headers))
	for k := range headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if _, err := io.WriteString(w, k+": "+headers[k]+"\n"); err != nil {
			return nil, errors.WithStack(err)
		}
	}
	if _, err := io.WriteString(w, "\n"); err != nil {
		return nil, errors.WithStack(err)
	}

	e := &encoder{
		w:         w,
		blockType: blockType,
		crc:       crc24Init,
		breaker:   &lineBreaker{w: w},
	}
	e.b64 = base64.NewEncoder(base64.StdEncoding, e.breaker)
	return e, nil
}

func (e *encoder) Write(p []byte) (int, error) {
	e.crc = crc24(e.crc, p)
	return e.b64.Write(p)
}

func (e *encoder) Close() error {
	if err := e.b64.Close(); err != nil {
		return errors.WithStack(err)
	}
	if err := e.breaker.Close(); err != nil {
		return errors.WithStack(err)
	}
	trail := "=" + base64.StdEncoding.EncodeToString(crcBytes(e.crc)) + "\n"
	if _, err := io.WriteString(e.w, trail+endMark+e.blockType+tailMark+"\n"); err != nil {
		return errors.WithStack(err)
	}
	return nil
}

// EncodeBytes armors data as a block of the given type.
func EncodeBytes(data []byte, blockType string) ([]byte, error) {
	var buf bytes.Buffer
	w, err := Encode(&buf, blockType, nil)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(data); err != nil {
		return nil, errors.WithStack(err)
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
