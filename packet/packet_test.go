package packet_test

import (
	"bytes"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"io"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/xpgp/cryptoutil"
	"github.com/effective-security/xpgp/packet"
	"github.com/effective-security/xpgp/pgperrors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	xpacket "golang.org/x/crypto/openpgp/packet"
)

func testRSAKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	priv, err := rsa.GenerateKey(rand.Reader, 1024)
	require.NoError(t, err)
	return priv
}

func TestLiteralRoundTrip(t *testing.T) {
	for _, size := range []int{0, 1, 100, 40000} {
		data := bytes.Repeat([]byte{0x42}, size)

		var buf bytes.Buffer
		w, err := packet.SerializeLiteral(&buf, "file.bin", 12345)
		require.NoError(t, err)
		_, err = w.Write(data)
		require.NoError(t, err)
		require.NoError(t, w.Close())

		p, err := packet.NewReader(&buf).Next()
		require.NoError(t, err)
		lit, ok := p.(*packet.LiteralData)
		require.True(t, ok)
		assert.Equal(t, byte('b'), lit.Format)
		assert.Equal(t, "file.bin", lit.FileName)
		assert.Equal(t, uint32(12345), lit.Time)

		got, err := io.ReadAll(lit.Body)
		require.NoError(t, err)
		assert.Equal(t, data, got)
	}
}

func TestReaderSkipsUnknownTags(t *testing.T) {
	var buf bytes.Buffer
	uid := &packet.UserID{ID: "alice <alice@example.com>"}
	require.NoError(t, uid.Serialize(&buf))
	// Tag 60 is in the private/experimental range.
	buf.Write([]byte{0xc0 | 60, 3, 1, 2, 3})
	require.NoError(t, uid.Serialize(&buf))

	rd := packet.NewReader(&buf)
	p1, err := rd.Next()
	require.NoError(t, err)
	require.IsType(t, &packet.UserID{}, p1)

	p2, err := rd.Next()
	require.NoError(t, err)
	op, ok := p2.(*packet.Opaque)
	require.True(t, ok)
	assert.Equal(t, packet.Tag(60), op.RawTag)
	assert.Equal(t, []byte{1, 2, 3}, op.Contents)

	_, err = rd.Next()
	require.NoError(t, err)
	_, err = rd.Next()
	assert.Equal(t, io.EOF, err)
}

func TestMalformedHeaderIsDecodeError(t *testing.T) {
	// High bit clear.
	_, err := packet.NewReader(bytes.NewReader([]byte{0x01, 0x02})).Next()
	require.Error(t, err)
	assert.True(t, errors.Is(err, pgperrors.ErrDecode))

	// Length larger than the remaining input.
	_, err = packet.NewReader(bytes.NewReader([]byte{0xc0 | 13, 10, 'a', 'b'})).Next()
	require.Error(t, err)
	assert.True(t, errors.Is(err, pgperrors.ErrDecode))
}

func TestZeroLengthBody(t *testing.T) {
	var buf bytes.Buffer
	uid := &packet.UserID{ID: ""}
	require.NoError(t, uid.Serialize(&buf))

	p, err := packet.NewReader(&buf).Next()
	require.NoError(t, err)
	assert.Equal(t, "", p.(*packet.UserID).ID)
}

func TestPublicKeyRoundTripReference(t *testing.T) {
	priv := testRSAKey(t)
	pk := packet.NewRSAPublicKey(time.Unix(1700000000, 0), &priv.PublicKey)

	var buf bytes.Buffer
	require.NoError(t, pk.Serialize(&buf))
	wire := buf.Bytes()

	p, err := packet.NewReader(bytes.NewReader(wire)).Next()
	require.NoError(t, err)
	parsed, ok := p.(*packet.PublicKey)
	require.True(t, ok)
	assert.Equal(t, pk.Fingerprint(), parsed.Fingerprint())
	assert.Equal(t, pk.KeyID(), parsed.KeyID())
	assert.Equal(t, 0, parsed.RSA.N.Cmp(priv.N))

	// The reference implementation must agree on the fingerprint.
	xp, err := xpacket.Read(bytes.NewReader(wire))
	require.NoError(t, err)
	xpk, ok := xp.(*xpacket.PublicKey)
	require.True(t, ok)
	assert.Equal(t, pk.Fingerprint(), xpk.Fingerprint)
	assert.Equal(t, pk.KeyID(), xpk.KeyId)
}

func TestSecretKeyProtection(t *testing.T) {
	priv := testRSAKey(t)
	sk := packet.NewRSASecretKey(time.Unix(1700000000, 0), priv)
	require.NoError(t, sk.Encrypt([]byte("hunter2")))
	assert.True(t, sk.Encrypted)
	assert.Nil(t, sk.RSAPriv)

	var buf bytes.Buffer
	require.NoError(t, sk.Serialize(&buf))

	p, err := packet.NewReader(&buf).Next()
	require.NoError(t, err)
	parsed, ok := p.(*packet.SecretKey)
	require.True(t, ok)
	assert.True(t, parsed.Encrypted)
	assert.Equal(t, sk.Fingerprint(), parsed.Fingerprint())

	err = parsed.Decrypt([]byte("wrong"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, pgperrors.ErrWrongPassphrase))
	assert.True(t, parsed.Encrypted)
	assert.Nil(t, parsed.RSAPriv)

	require.NoError(t, parsed.Decrypt([]byte("hunter2")))
	assert.False(t, parsed.Encrypted)
	require.NotNil(t, parsed.RSAPriv)
	assert.Equal(t, 0, parsed.RSAPriv.D.Cmp(priv.D))

	parsed.Wipe()
	assert.True(t, parsed.Encrypted)
	assert.Nil(t, parsed.RSAPriv)
}

func TestUnprotectedSecretKeyRoundTrip(t *testing.T) {
	priv := testRSAKey(t)
	sk := packet.NewRSASecretKey(time.Unix(1700000000, 0), priv)

	var buf bytes.Buffer
	require.NoError(t, sk.Serialize(&buf))

	p, err := packet.NewReader(&buf).Next()
	require.NoError(t, err)
	parsed := p.(*packet.SecretKey)
	assert.False(t, parsed.Encrypted)
	require.NotNil(t, parsed.RSAPriv)
	assert.Equal(t, 0, parsed.RSAPriv.D.Cmp(priv.D))
}

func TestSelfSignatureReference(t *testing.T) {
	priv := testRSAKey(t)
	sk := packet.NewRSASecretKey(time.Unix(1700000000, 0), priv)
	uid := &packet.UserID{ID: "alice <alice@example.com>"}

	sig := &packet.Signature{
		SigType:            packet.SigTypePositiveCert,
		PubKeyAlgo:         packet.PubKeyAlgoRSA,
		Hash:               crypto.SHA256,
		PreferredSymmetric: []byte{9, 7},
		PreferredHash:      []byte{8, 9, 10},
	}
	require.NoError(t, sig.SignUserID(uid, &sk.PublicKey, sk))
	assert.True(t, sig.VerifyUserID(uid, &sk.PublicKey, &sk.PublicKey))

	// Serialize key + uid + sig and let x/crypto verify the binding.
	var buf bytes.Buffer
	require.NoError(t, sk.PublicKey.Serialize(&buf))
	require.NoError(t, uid.Serialize(&buf))
	require.NoError(t, sig.Serialize(&buf))

	xp, err := xpacket.Read(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	xpk := xp.(*xpacket.PublicKey)

	rd := xpacket.NewReader(bytes.NewReader(buf.Bytes()))
	_, err = rd.Next() // public key
	require.NoError(t, err)
	_, err = rd.Next() // user id
	require.NoError(t, err)
	xsigPkt, err := rd.Next()
	require.NoError(t, err)
	xsig, ok := xsigPkt.(*xpacket.Signature)
	require.True(t, ok)
	assert.Equal(t, []uint8{9, 7}, xsig.PreferredSymmetric)
	assert.Equal(t, []uint8{8, 9, 10}, xsig.PreferredHash)

	require.NoError(t, xpk.VerifyUserIdSignature(uid.ID, xpk, xsig))
}

func TestSignatureReserializeLossless(t *testing.T) {
	priv := testRSAKey(t)
	sk := packet.NewRSASecretKey(time.Now(), priv)
	sig := &packet.Signature{
		SigType:    packet.SigTypeBinary,
		PubKeyAlgo: packet.PubKeyAlgoRSA,
		Hash:       crypto.SHA256,
	}
	h := crypto.SHA256.New()
	h.Write([]byte("data"))
	require.NoError(t, sig.Sign(h, sk))

	var first bytes.Buffer
	require.NoError(t, sig.Serialize(&first))

	p, err := packet.NewReader(bytes.NewReader(first.Bytes())).Next()
	require.NoError(t, err)
	parsed := p.(*packet.Signature)

	var second bytes.Buffer
	require.NoError(t, parsed.Serialize(&second))
	assert.Equal(t, first.Bytes(), second.Bytes())

	h2 := crypto.SHA256.New()
	h2.Write([]byte("data"))
	assert.True(t, parsed.Verify(h2, &sk.PublicKey))

	h3 := crypto.SHA256.New()
	h3.Write([]byte("datA"))
	assert.False(t, parsed.Verify(h3, &sk.PublicKey))
}

func TestSignatureLeadingZeroSurvivesWire(t *testing.T) {
	priv := testRSAKey(t)
	sk := packet.NewRSASecretKey(time.Now(), priv)
	pub := &sk.PublicKey

	// The MPI wire form drops leading zero octets, so hunt for a
	// signature whose raw value starts with one and make sure it still
	// verifies after a serialize/parse round trip.
	found := false
	for i := 0; i < 4096 && !found; i++ {
		msg := []byte{byte(i >> 8), byte(i)}
		sig := &packet.Signature{
			SigType:    packet.SigTypeBinary,
			PubKeyAlgo: packet.PubKeyAlgoRSA,
			Hash:       crypto.SHA256,
		}
		h := crypto.SHA256.New()
		h.Write(msg)
		require.NoError(t, sig.Sign(h, sk))
		if sig.RSASignature[0] != 0 {
			continue
		}
		found = true

		var buf bytes.Buffer
		require.NoError(t, sig.Serialize(&buf))

		p, err := packet.NewReader(bytes.NewReader(buf.Bytes())).Next()
		require.NoError(t, err)
		parsed := p.(*packet.Signature)
		require.Less(t, len(parsed.RSASignature), len(sig.RSASignature))

		h2 := crypto.SHA256.New()
		h2.Write(msg)
		assert.True(t, parsed.Verify(h2, pub))
	}
	require.True(t, found, "no signature with a leading zero octet produced")
}

func TestEncryptedKeyRoundTrip(t *testing.T) {
	priv := testRSAKey(t)
	sk := packet.NewRSASecretKey(time.Now(), priv)

	sessionKey, err := cryptoutil.GenerateSessionKey(cryptoutil.CipherAES256)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, packet.SerializeEncryptedKey(&buf, &sk.PublicKey, cryptoutil.CipherAES256, sessionKey))

	p, err := packet.NewReader(&buf).Next()
	require.NoError(t, err)
	ek, ok := p.(*packet.EncryptedKey)
	require.True(t, ok)
	assert.Equal(t, sk.KeyID(), ek.KeyID)

	cf, got, err := ek.Decrypt(sk)
	require.NoError(t, err)
	assert.Equal(t, cryptoutil.CipherAES256, cf)
	assert.Equal(t, sessionKey, got)
}

func TestSymmetricallyEncryptedMDC(t *testing.T) {
	key, err := cryptoutil.GenerateSessionKey(cryptoutil.CipherAES128)
	require.NoError(t, err)

	plaintext := []byte("integrity protected payload")
	var buf bytes.Buffer
	w, err := packet.SerializeSymmetricallyEncrypted(&buf, cryptoutil.CipherAES128, key)
	require.NoError(t, err)
	_, err = w.Write(plaintext)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	p, err := packet.NewReader(bytes.NewReader(buf.Bytes())).Next()
	require.NoError(t, err)
	se, ok := p.(*packet.SymmetricallyEncrypted)
	require.True(t, ok)
	require.True(t, se.MDC)

	contents, err := se.Decrypt(cryptoutil.CipherAES128, key)
	require.NoError(t, err)
	got, err := io.ReadAll(contents)
	require.NoError(t, err)
	assert.Equal(t, plaintext, got)
}

func TestSymmetricallyEncryptedMDCTamper(t *testing.T) {
	key, err := cryptoutil.GenerateSessionKey(cryptoutil.CipherAES128)
	require.NoError(t, err)

	var buf bytes.Buffer
	w, err := packet.SerializeSymmetricallyEncrypted(&buf, cryptoutil.CipherAES128, key)
	require.NoError(t, err)
	_, err = w.Write([]byte("payload under protection"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	// Flip a byte near the end of the ciphertext, inside the MDC.
	wire := buf.Bytes()
	wire[len(wire)-3] ^= 0x01

	p, err := packet.NewReader(bytes.NewReader(wire)).Next()
	require.NoError(t, err)
	se := p.(*packet.SymmetricallyEncrypted)

	contents, err := se.Decrypt(cryptoutil.CipherAES128, key)
	require.NoError(t, err)
	_, err = io.ReadAll(contents)
	require.Error(t, err)
	assert.True(t, errors.Is(err, pgperrors.ErrAuthentication))
}

func TestSymmetricallyEncryptedWrongKey(t *testing.T) {
	key, err := cryptoutil.GenerateSessionKey(cryptoutil.CipherAES128)
	require.NoError(t, err)

	var buf bytes.Buffer
	w, err := packet.SerializeSymmetricallyEncrypted(&buf, cryptoutil.CipherAES128, key)
	require.NoError(t, err)
	_, err = w.Write([]byte("payload"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	other, err := cryptoutil.GenerateSessionKey(cryptoutil.CipherAES128)
	require.NoError(t, err)

	p, err := packet.NewReader(bytes.NewReader(buf.Bytes())).Next()
	require.NoError(t, err)
	se := p.(*packet.SymmetricallyEncrypted)

	_, err = se.Decrypt(cryptoutil.CipherAES128, other)
	require.Error(t, err)
	assert.True(t, errors.Is(err, pgperrors.ErrDecrypt))
}

func TestOnePassSignatureRoundTrip(t *testing.T) {
	ops := &packet.OnePassSignature{
		SigType:    packet.SigTypeBinary,
		Hash:       crypto.SHA256,
		PubKeyAlgo: packet.PubKeyAlgoRSA,
		KeyID:      0x1122334455667788,
		IsLast:     true,
	}
	var buf bytes.Buffer
	require.NoError(t, ops.Serialize(&buf))

	p, err := packet.NewReader(&buf).Next()
	require.NoError(t, err)
	parsed, ok := p.(*packet.OnePassSignature)
	require.True(t, ok)
	assert.Equal(t, ops.KeyID, parsed.KeyID)
	assert.Equal(t, ops.Hash, parsed.Hash)
	assert.True(t, parsed.IsLast)
}
