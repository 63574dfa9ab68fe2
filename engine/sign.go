package engine

import (
	"bytes"
	"io"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/xlog"
	"github.com/effective-security/xpgp/armor"
	"github.com/effective-security/xpgp/keyring"
	"github.com/effective-security/xpgp/metricskey"
	"github.com/effective-security/xpgp/packet"
	"github.com/effective-security/xpgp/pgperrors"
)

// VerifyResult reports the outcome of a signature check. A tampered
// message or a mismatched key is a negative result, not an error:
// Valid is false and the error is nil.
type VerifyResult struct {
	Valid             bool      `json:"valid" yaml:"valid"`
	SignerFingerprint string    `json:"signer_fingerprint" yaml:"signer_fingerprint"`
	SignedAt          time.Time `json:"signed_at" yaml:"signed_at"`
}

// SignData produces a one-pass signed message: one-pass marker, the
// literal data, then the signature.
func (e *Engine) SignData(data []byte, identity string, passphrase []byte) ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	defer metricskey.PerfPGPOperation.MeasureSince(time.Now(), "sign")

	sig, err := e.signBinary(data, identity, passphrase)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	out, closeOut, err := e.messageWriter(&buf)
	if err != nil {
		return nil, err
	}

	ops := &packet.OnePassSignature{
		SigType:    sig.SigType,
		Hash:       sig.Hash,
		PubKeyAlgo: sig.PubKeyAlgo,
		KeyID:      *sig.IssuerKeyID,
		IsLast:     true,
	}
	if err := ops.Serialize(out); err != nil {
		return nil, err
	}
	lit, err := packet.SerializeLiteral(out, "", uint32(sig.CreationTime.Unix()))
	if err != nil {
		return nil, err
	}
	if _, err := lit.Write(data); err != nil {
		return nil, err
	}
	if err := lit.Close(); err != nil {
		return nil, err
	}
	if err := sig.Serialize(out); err != nil {
		return nil, err
	}
	if err := closeOut(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// SignDetached produces a bare signature packet over the data.
func (e *Engine) SignDetached(data []byte, identity string, passphrase []byte) ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	sig, err := e.signBinary(data, identity, passphrase)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := sig.Serialize(&buf); err != nil {
		return nil, err
	}
	if !e.cfg.Armor {
		return buf.Bytes(), nil
	}
	return armor.EncodeBytes(buf.Bytes(), armor.Signature)
}

// signBinary resolves and unlocks the signing key and signs the data.
// Callers hold the engine mutex.
func (e *Engine) signBinary(data []byte, identity string, passphrase []byte) (*packet.Signature, error) {
	identity, err := e.identityOrDefault(identity)
	if err != nil {
		return nil, err
	}
	entry, err := e.store.FindSecret(identity)
	if err != nil {
		return nil, err
	}
	if !entry.Public.Algo.CanSign() {
		return nil, errors.WithMessagef(pgperrors.ErrUnsupported, "key %s cannot sign", entry.FingerprintHex())
	}

	sess := newSession(passphrase)
	defer sess.close()

	sk, err := entry.UnlockSecret(sess.passphrase)
	if err != nil {
		return nil, err
	}
	defer sk.Wipe()

	sig := &packet.Signature{
		SigType:    packet.SigTypeBinary,
		PubKeyAlgo: entry.Public.Algo,
		Hash:       defaultHash,
	}
	h := sig.Hash.New()
	h.Write(data)
	if err := sig.Sign(h, sk); err != nil {
		return nil, err
	}
	logger.KV(xlog.DEBUG,
		"op", "sign",
		"signer", entry.FingerprintHex(),
		"data_size", len(data),
	)
	return sig, nil
}

// VerifyData checks a one-pass signed message produced by SignData and
// returns the verdict. An unknown signer yields ErrNotFound.
func (e *Engine) VerifyData(data []byte) (*VerifyResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	defer metricskey.PerfPGPOperation.MeasureSince(time.Now(), "verify")

	if len(data) == 0 {
		return nil, errors.WithMessage(pgperrors.ErrInvalidInput, "empty message")
	}
	raw, err := maybeDearmor(data)
	if err != nil {
		return nil, err
	}

	var body []byte
	var sig *packet.Signature

	rd := packet.NewReader(bytes.NewReader(raw))
loop:
	for {
		p, err := rd.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		switch pkt := p.(type) {
		case *packet.OnePassSignature, *packet.Opaque:
		case *packet.LiteralData:
			body, err = io.ReadAll(pkt.Body)
			if err != nil {
				return nil, err
			}
		case *packet.Signature:
			sig = pkt
			break loop
		default:
			return nil, errors.WithMessagef(pgperrors.ErrDecode, "unexpected %T in signed message", p)
		}
	}
	if sig == nil {
		return nil, errors.WithMessage(pgperrors.ErrDecode, "message has no signature")
	}
	if body == nil {
		return nil, errors.WithMessage(pgperrors.ErrDecode, "message has no literal data")
	}
	return e.verdict(sig, body)
}

// VerifyDetached checks a detached signature over the given data.
func (e *Engine) VerifyDetached(data, signature []byte) (*VerifyResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	raw, err := maybeDearmor(signature)
	if err != nil {
		return nil, err
	}
	p, err := packet.NewReader(bytes.NewReader(raw)).Next()
	if err != nil {
		return nil, err
	}
	sig, ok := p.(*packet.Signature)
	if !ok {
		return nil, errors.WithMessagef(pgperrors.ErrDecode, "expected a signature packet, got %T", p)
	}
	return e.verdict(sig, data)
}

// verdict resolves the signer and checks the signature. Callers hold
// the engine mutex.
func (e *Engine) verdict(sig *packet.Signature, body []byte) (*VerifyResult, error) {
	if sig.IssuerKeyID == nil {
		return nil, errors.WithMessage(pgperrors.ErrNotFound, "signature names no issuer")
	}
	signer, err := e.findSigner(*sig.IssuerKeyID)
	if err != nil {
		return nil, err
	}

	h := sig.Hash.New()
	h.Write(body)
	res := &VerifyResult{
		Valid:             sig.Verify(h, signer.Public),
		SignerFingerprint: signer.FingerprintHex(),
		SignedAt:          sig.CreationTime,
	}
	logger.KV(xlog.DEBUG,
		"op", "verify",
		"signer", res.SignerFingerprint,
		"valid", res.Valid,
	)
	return res, nil
}

func (e *Engine) findSigner(keyID uint64) (*keyring.Key, error) {
	return e.store.FindByKeyID(keyID)
}
