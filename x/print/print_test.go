package print_test

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/effective-security/xpgp/keyring"
	"github.com/effective-security/xpgp/x/print"
)

func Test_JSON(t *testing.T) {
	w := bytes.NewBuffer([]byte{})
	print.JSON(w, struct{}{})
	assert.Equal(t, "{}\n", w.String())
}

func Test_Keys(t *testing.T) {
	list := []keyring.KeyInfo{
		{
			Identity:    "Alice <alice@example.com>",
			Fingerprint: "0102030405060708090a0b0c0d0e0f1011121314",
			Algorithm:   "RSA",
			Bits:        2048,
			CreatedAt:   time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
			HasSecret:   true,
		},
		{
			Identity:    "Bob <bob@example.com>",
			Fingerprint: "1413121110f0e0d0c0b0a090807060504030201",
			Algorithm:   "RSA",
			Bits:        4096,
		},
	}

	w := bytes.NewBuffer([]byte{})
	print.Keys(w, list)

	out := w.String()
	assert.Contains(t, out, "1. [sec] Alice <alice@example.com>")
	assert.Contains(t, out, "2. [pub] Bob <bob@example.com>")
	assert.Contains(t, out, "Fingerprint: 0102030405060708090A0B0C0D0E0F1011121314")
	assert.Contains(t, out, "Algorithm: RSA-2048")
	assert.Contains(t, out, "Created: 2024-03-01T12:00:00Z")
}
