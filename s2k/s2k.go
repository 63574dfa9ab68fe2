// Package s2k implements the OpenPGP string-to-key transformations from
// RFC 4880 section 3.7: deriving symmetric cipher keys from passphrases
// using simple, salted and iterated-salted digest schemes.
package s2k

import (
	"crypto"
	"crypto/rand"
	"hash"
	"io"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/xpgp/pgperrors"
)

// S2K modes.
const (
	ModeSimple   = 0
	ModeSalted   = 1
	ModeIterated = 3
)

// Params describes a parsed or generated S2K specifier.
type Params struct {
	Mode     byte
	Hash     crypto.Hash
	Salt     []byte
	EncCount byte // encoded iteration count, mode 3 only
}

var hashIDs = map[byte]crypto.Hash{
	2:  crypto.SHA1,
	8:  crypto.SHA256,
	9:  crypto.SHA384,
	10: crypto.SHA512,
	11: crypto.SHA224,
}

// HashFromID maps an OpenPGP hash algorithm ID to a crypto.Hash.
func HashFromID(id byte) (crypto.Hash, bool) {
	h, ok := hashIDs[id]
	return h, ok && h.Available()
}

// HashToID maps a crypto.Hash back to its OpenPGP algorithm ID.
func HashToID(h crypto.Hash) (byte, bool) {
	for id, hh := range hashIDs {
		if hh == h {
			return id, true
		}
	}
	return 0, false
}

// decodeCount converts an encoded iteration octet to the byte count
// actually hashed.
func decodeCount(c byte) int {
	return (16 + int(c&15)) << (uint32(c>>4) + 6)
}

// New returns iterated-salted parameters with a fresh random salt and
// the conventional 65536-byte count (encoded 0x60).
func New(h crypto.Hash) (*Params, error) {
	salt := make([]byte, 8)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, errors.WithStack(err)
	}
	return &Params{
		Mode:     ModeIterated,
		Hash:     h,
		Salt:     salt,
		EncCount: 0x60,
	}, nil
}

// Parse reads an S2K specifier from r.
func Parse(r io.Reader) (*Params, error) {
	var buf [9]byte
	if _, err := io.ReadFull(r, buf[:2]); err != nil {
		return nil, errors.WithMessage(pgperrors.ErrDecode, "s2k: truncated specifier")
	}
	h, ok := HashFromID(buf[1])
	if !ok {
		return nil, errors.WithMessagef(pgperrors.ErrUnsupported, "s2k: hash algorithm %d", buf[1])
	}
	p := &Params{Mode: buf[0], Hash: h}
	switch p.Mode {
	case ModeSimple:
		return p, nil
	case ModeSalted, ModeIterated:
		if _, err := io.ReadFull(r, buf[:8]); err != nil {
			return nil, errors.WithMessage(pgperrors.ErrDecode, "s2k: truncated salt")
		}
		p.Salt = append([]byte{}, buf[:8]...)
		if p.Mode == ModeIterated {
			if _, err := io.ReadFull(r, buf[:1]); err != nil {
				return nil, errors.WithMessage(pgperrors.ErrDecode, "s2k: truncated count")
			}
			p.EncCount = buf[0]
		}
		return p, nil
	}
	return nil, errors.WithMessagef(pgperrors.ErrUnsupported, "s2k: mode %d", p.Mode)
}

// Serialize writes the S2K specifier to w.
func (p *Params) Serialize(w io.Writer) error {
	id, ok := HashToID(p.Hash)
	if !ok {
		return errors.WithMessage(pgperrors.ErrUnsupported, "s2k: hash has no algorithm ID")
	}
	out := []byte{p.Mode, id}
	if p.Mode == ModeSalted || p.Mode == ModeIterated {
		out = append(out, p.Salt...)
	}
	if p.Mode == ModeIterated {
		out = append(out, p.EncCount)
	}
	_, err := w.Write(out)
	return errors.WithStack(err)
}

// Key derives keySize bytes of symmetric key material from the
// passphrase. When one digest is too short the digest is run again
// with an increasing zero-byte preload, per the RFC.
func (p *Params) Key(passphrase []byte, keySize int) []byte {
	out := make([]byte, 0, keySize)
	h := p.Hash.New()
	for pass := 0; len(out) < keySize; pass++ {
		h.Reset()
		for i := 0; i < pass; i++ {
			h.Write([]byte{0})
		}
		switch p.Mode {
		case ModeSimple:
			h.Write(passphrase)
		case ModeSalted:
			h.Write(p.Salt)
			h.Write(passphrase)
		case ModeIterated:
			writeIterated(h, p.Salt, passphrase, decodeCount(p.EncCount))
		}
		out = append(out, h.Sum(nil)...)
	}
	return out[:keySize]
}

// writeIterated feeds salt||passphrase repeatedly into h until count
// bytes have been hashed, but never less than one full salt||passphrase.
func writeIterated(h hash.Hash, salt, passphrase []byte, count int) {
	combined := make([]byte, 0, len(salt)+len(passphrase))
	combined = append(combined, salt...)
	combined = append(combined, passphrase...)
	if count < len(combined) {
		count = len(combined)
	}
	for count > len(combined) {
		h.Write(combined)
		count -= len(combined)
	}
	h.Write(combined[:count])
}
