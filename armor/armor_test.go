package armor_test

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/xpgp/armor"
	"github.com/effective-security/xpgp/pgperrors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	xarmor "golang.org/x/crypto/openpgp/armor"
)

func TestRoundTrip(t *testing.T) {
	cases := [][]byte{
		{},
		{0x00},
		[]byte("hello, armor"),
		bytes.Repeat([]byte{0xa5, 0x5a, 0xff}, 1000),
	}
	for _, data := range cases {
		enc, err := armor.EncodeBytes(data, armor.Message)
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(string(enc), "-----BEGIN PGP MESSAGE-----"))

		block, err := armor.DecodeBytes(enc)
		require.NoError(t, err)
		assert.Equal(t, armor.Message, block.Type)
		assert.Equal(t, data, block.Bytes)
	}
}

func TestCorruptChecksum(t *testing.T) {
	enc, err := armor.EncodeBytes([]byte("payload"), armor.Message)
	require.NoError(t, err)

	// Flip one character in the "=XXXX" trailer.
	idx := bytes.LastIndexByte(enc, '=')
	require.True(t, idx >= 0)
	mutated := append([]byte{}, enc...)
	if mutated[idx+1] == 'A' {
		mutated[idx+1] = 'B'
	} else {
		mutated[idx+1] = 'A'
	}

	_, err = armor.DecodeBytes(mutated)
	require.Error(t, err)
	assert.True(t, errors.Is(err, pgperrors.ErrDecode))
}

func TestMissingChecksumAccepted(t *testing.T) {
	enc, err := armor.EncodeBytes([]byte("payload"), armor.Message)
	require.NoError(t, err)

	// Drop the "=XXXX" trailer line entirely. Newer generators omit
	// it, so the decoder must accept the block without one.
	lines := bytes.Split(enc, []byte("\n"))
	kept := lines[:0]
	for _, line := range lines {
		if len(line) == 5 && line[0] == '=' {
			continue
		}
		kept = append(kept, line)
	}

	block, err := armor.DecodeBytes(bytes.Join(kept, []byte("\n")))
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), block.Bytes)
}

func TestMissingBanner(t *testing.T) {
	_, err := armor.DecodeBytes([]byte("no armor here"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, pgperrors.ErrDecode))

	_, err = armor.DecodeBytes([]byte("-----BEGIN PGP MESSAGE-----\n\nAAAA\n"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, pgperrors.ErrDecode))
}

func TestHeaders(t *testing.T) {
	var buf bytes.Buffer
	w, err := armor.Encode(&buf, armor.PublicKeyBlock, map[string]string{
		"Version": "xpgp",
		"Comment": "test block",
	})
	require.NoError(t, err)
	_, err = w.Write([]byte{1, 2, 3})
	require.NoError(t, err)
	require.NoError(t, w.Close())

	block, err := armor.DecodeBytes(buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, "xpgp", block.Header["Version"])
	assert.Equal(t, "test block", block.Header["Comment"])
	assert.Equal(t, []byte{1, 2, 3}, block.Bytes)
}

func TestIsArmored(t *testing.T) {
	enc, err := armor.EncodeBytes([]byte("x"), armor.Message)
	require.NoError(t, err)
	assert.True(t, armor.IsArmored(enc))
	assert.True(t, armor.IsArmored(append([]byte("\n  \n"), enc...)))
	assert.False(t, armor.IsArmored([]byte{0xc6, 0x01, 0x02}))
}

// TestInterop cross-checks against the x/crypto implementation in both
// directions.
func TestInterop(t *testing.T) {
	data := []byte("interop payload with some length to it")

	// Ours -> theirs.
	enc, err := armor.EncodeBytes(data, armor.Message)
	require.NoError(t, err)
	theirBlock, err := xarmor.Decode(bytes.NewReader(enc))
	require.NoError(t, err)
	assert.Equal(t, armor.Message, theirBlock.Type)
	got, err := io.ReadAll(theirBlock.Body)
	require.NoError(t, err)
	assert.Equal(t, data, got)

	// Theirs -> ours.
	var buf bytes.Buffer
	w, err := xarmor.Encode(&buf, armor.Message, nil)
	require.NoError(t, err)
	_, err = w.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	ourBlock, err := armor.DecodeBytes(buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, data, ourBlock.Bytes)
}
