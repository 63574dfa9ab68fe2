// Package armor implements OpenPGP ASCII armor: the text-safe transport
// encoding with a BEGIN/END banner, optional headers, a base64 body and
// a CRC-24 checksum trailer.
package armor

import (
	"bufio"
	"bytes"
	"encoding/base64"
	"io"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/xpgp/pgperrors"
)

// Block types produced and consumed by the engine.
const (
	Message         = "PGP MESSAGE"
	PublicKeyBlock  = "PGP PUBLIC KEY BLOCK"
	PrivateKeyBlock = "PGP PRIVATE KEY BLOCK"
	Signature       = "PGP SIGNATURE"
)

const (
	beginMark = "-----BEGIN "
	endMark   = "-----END "
	tailMark  = "-----"
	lineWidth = 64
)

// Block is a decoded armored block.
type Block struct {
	// Type is the block type from the BEGIN banner, e.g. "PGP MESSAGE".
	Type string
	// Header holds the armor headers, if any.
	Header map[string]string
	// Bytes is the decoded binary body.
	Bytes []byte
}

// crc24 implements the OpenPGP CRC-24 with the standard seed and
// polynomial from RFC 4880 section 6.1.
func crc24(crc uint32, d []byte) uint32 {
	for _, b := range d {
		crc ^= uint32(b) << 16
		for i := 0; i < 8; i++ {
			crc <<= 1
			if crc&0x1000000 != 0 {
				crc ^= 0x1864cfb
			}
		}
	}
	return crc & 0xffffff
}

const crc24Init = 0xb704ce

func crcBytes(crc uint32) []byte {
	return []byte{byte(crc >> 16), byte(crc >> 8), byte(crc)}
}

// Decode reads the first armored block from r. Data before the BEGIN
// banner is skipped. A corrupt banner, body or checksum yields
// pgperrors.ErrDecode.
func Decode(r io.Reader) (*Block, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 4096), 1<<20)

	var blockType string
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if strings.HasPrefix(line, beginMark) && strings.HasSuffix(line, tailMark) {
			blockType = strings.TrimSuffix(strings.TrimPrefix(line, beginMark), tailMark)
			break
		}
	}
	if blockType == "" {
		return nil, errors.WithMessage(pgperrors.ErrDecode, "armor: no BEGIN banner")
	}

	block := &Block{
		Type:   blockType,
		Header: map[string]string{},
	}

	// Headers run until the first empty line. Armor without headers may
	// go straight into base64, so a line without a colon ends the header
	// section and is treated as body.
	var b64 strings.Builder
	inHeader := true
	var crcLine string
	closed := false

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case inHeader && line == "":
			inHeader = false
		case inHeader && strings.Contains(line, ": "):
			kv := strings.SplitN(line, ": ", 2)
			block.Header[kv[0]] = kv[1]
		case strings.HasPrefix(line, endMark):
			if strings.TrimSuffix(strings.TrimPrefix(line, endMark), tailMark) != blockType {
				return nil, errors.WithMessage(pgperrors.ErrDecode, "armor: END banner type mismatch")
			}
			closed = true
		case strings.HasPrefix(line, "=") && len(line) == 5:
			crcLine = line[1:]
		case line != "":
			inHeader = false
			b64.WriteString(line)
		}
		if closed {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.WithStack(err)
	}
	if !closed {
		return nil, errors.WithMessage(pgperrors.ErrDecode, "armor: missing END banner")
	}

	body, err := base64.StdEncoding.DecodeString(b64.String())
	if err != nil {
		return nil, errors.WithMessage(pgperrors.ErrDecode, "armor: invalid base64 body")
	}
	block.Bytes = body

	// The CRC-24 trailer is optional on input: RFC 4880 producers
	// always emit it, but newer generators omit it, so a block without
	// one is accepted. A trailer that is present must match.
	if crcLine != "" {
		want, err := base64.StdEncoding.DecodeString(crcLine)
		if err != nil || len(want) != 3 {
			return nil, errors.WithMessage(pgperrors.ErrDecode, "armor: invalid checksum encoding")
		}
		if !bytes.Equal(want, crcBytes(crc24(crc24Init, body))) {
			return nil, errors.WithMessage(pgperrors.ErrDecode, "armor: checksum mismatch")
		}
	}
	return block, nil
}

// DecodeBytes decodes the first armored block in data.
func DecodeBytes(data []byte) (*Block, error) {
	return Decode(bytes.NewReader(data))
}

// IsArmored reports whether data looks like an armored block rather
// than binary packets.
func IsArmored(data []byte) bool {
	return bytes.HasPrefix(bytes.TrimLeft(data, " \t\r\n"), []byte(beginMark))
}
