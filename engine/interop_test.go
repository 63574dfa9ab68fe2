package engine_test

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	xopenpgp "golang.org/x/crypto/openpgp"

	"github.com/effective-security/xpgp/engine"
)

// newInteropEngine generates an unprotected key so the reference
// implementation can use the exported secret material directly.
func newInteropEngine(t *testing.T) (*engine.Engine, xopenpgp.EntityList) {
	t.Helper()
	eng, err := engine.New(&engine.Config{
		HomeDir:         t.TempDir(),
		DefaultIdentity: testIdentity,
	})
	require.NoError(t, err)
	_, err = eng.GenerateKey(context.Background(), 1024, testIdentity, nil)
	require.NoError(t, err)

	sec, err := eng.ExportSecretKey(testIdentity)
	require.NoError(t, err)
	entities, err := xopenpgp.ReadArmoredKeyRing(bytes.NewReader(sec))
	require.NoError(t, err)
	require.Len(t, entities, 1)
	return eng, entities
}

// TestReferenceDecryptsOurMessage checks that messages produced here
// decrypt with the reference implementation.
func TestReferenceDecryptsOurMessage(t *testing.T) {
	eng, entities := newInteropEngine(t)

	msg, err := eng.EncryptData([]byte("interop plaintext"), "")
	require.NoError(t, err)

	md, err := xopenpgp.ReadMessage(bytes.NewReader(msg), entities, nil, nil)
	require.NoError(t, err)
	plain, err := io.ReadAll(md.UnverifiedBody)
	require.NoError(t, err)
	assert.Equal(t, []byte("interop plaintext"), plain)
}

// TestReferenceVerifiesOurSignature checks one-pass signed messages
// against the reference implementation.
func TestReferenceVerifiesOurSignature(t *testing.T) {
	eng, entities := newInteropEngine(t)

	msg, err := eng.SignData([]byte("signed interop"), "", nil)
	require.NoError(t, err)

	md, err := xopenpgp.ReadMessage(bytes.NewReader(msg), entities, nil, nil)
	require.NoError(t, err)
	require.True(t, md.IsSigned)

	plain, err := io.ReadAll(md.UnverifiedBody)
	require.NoError(t, err)
	assert.Equal(t, []byte("signed interop"), plain)
	assert.NoError(t, md.SignatureError)
	require.NotNil(t, md.SignedBy)
}

// TestReferenceChecksDetachedSignature round-trips a detached
// signature through the reference verifier.
func TestReferenceChecksDetachedSignature(t *testing.T) {
	eng, entities := newInteropEngine(t)
	data := []byte("detached interop")

	sig, err := eng.SignDetached(data, "", nil)
	require.NoError(t, err)

	signer, err := xopenpgp.CheckDetachedSignature(entities, bytes.NewReader(data), bytes.NewReader(sig))
	require.NoError(t, err)
	require.NotNil(t, signer)
}

// TestDecryptReferenceMessage decrypts a message produced by the
// reference implementation.
func TestDecryptReferenceMessage(t *testing.T) {
	eng, entities := newInteropEngine(t)

	var buf bytes.Buffer
	w, err := xopenpgp.Encrypt(&buf, entities, nil, nil, nil)
	require.NoError(t, err)
	_, err = w.Write([]byte("from the reference"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	plain, err := eng.DecryptData(buf.Bytes(), nil)
	require.NoError(t, err)
	assert.Equal(t, []byte("from the reference"), plain)
}

// TestVerifyReferenceSignature verifies a detached signature produced
// by the reference implementation.
func TestVerifyReferenceSignature(t *testing.T) {
	eng, entities := newInteropEngine(t)
	data := []byte("reference signed this")

	var sig bytes.Buffer
	require.NoError(t, xopenpgp.DetachSign(&sig, entities[0], bytes.NewReader(data), nil))

	res, err := eng.VerifyDetached(data, sig.Bytes())
	require.NoError(t, err)
	assert.True(t, res.Valid)
}
