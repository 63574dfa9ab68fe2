package engine

import (
	"bufio"
	"bytes"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/xlog"
	"github.com/effective-security/xpgp/armor"
	"github.com/effective-security/xpgp/cryptoutil"
	"github.com/effective-security/xpgp/keyring"
	"github.com/effective-security/xpgp/metricskey"
	"github.com/effective-security/xpgp/packet"
	"github.com/effective-security/xpgp/pgperrors"
)

// EncryptData encrypts the plaintext to the recipient's public key and
// returns the complete message: a session key packet followed by the
// integrity-protected payload. An empty plaintext is legal and yields
// a valid message. Output is armored when the configuration says so.
func (e *Engine) EncryptData(data []byte, identity string) ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	defer metricskey.PerfPGPOperation.MeasureSince(time.Now(), "encrypt")

	identity, err := e.identityOrDefault(identity)
	if err != nil {
		return nil, err
	}
	key, err := e.store.Find(identity)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	out, closeOut, err := e.messageWriter(&buf)
	if err != nil {
		return nil, err
	}
	if err := encryptTo(out, key, "", bytes.NewReader(data)); err != nil {
		return nil, err
	}
	if err := closeOut(); err != nil {
		return nil, err
	}
	logger.KV(xlog.DEBUG,
		"op", "encrypt",
		"recipient", key.FingerprintHex(),
		"plaintext_size", len(data),
	)
	return buf.Bytes(), nil
}

// EncryptFile encrypts inPath to outPath, streaming through the
// partial-length writer so the file is never held in memory whole.
func (e *Engine) EncryptFile(inPath, outPath, identity string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	identity, err := e.identityOrDefault(identity)
	if err != nil {
		return err
	}
	key, err := e.store.Find(identity)
	if err != nil {
		return err
	}

	in, err := os.Open(inPath)
	if err != nil {
		return errors.WithMessage(pgperrors.ErrIO, err.Error())
	}
	defer in.Close()

	f, err := os.OpenFile(outPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return errors.WithMessage(pgperrors.ErrIO, err.Error())
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	out, closeOut, err := e.messageWriter(w)
	if err != nil {
		return err
	}
	if err := encryptTo(out, key, filepath.Base(inPath), in); err != nil {
		return err
	}
	if err := closeOut(); err != nil {
		return err
	}
	if err := w.Flush(); err != nil {
		return errors.WithMessage(pgperrors.ErrIO, err.Error())
	}
	return errors.WithStack(f.Close())
}

// messageWriter wraps w in ASCII armor when configured, returning the
// payload writer and a close function that finalizes the armor.
func (e *Engine) messageWriter(w io.Writer) (io.Writer, func() error, error) {
	if !e.cfg.Armor {
		return w, func() error { return nil }, nil
	}
	aw, err := armor.Encode(w, armor.Message, nil)
	if err != nil {
		return nil, nil, err
	}
	return aw, aw.Close, nil
}

// encryptTo writes the binary message packets: one encrypted session
// key, then the MDC-protected literal data.
func encryptTo(w io.Writer, key *keyring.Key, fileName string, plaintext io.Reader) error {
	if !key.Public.Algo.CanEncrypt() {
		return errors.WithMessagef(pgperrors.ErrUnsupported, "key %s cannot encrypt", key.FingerprintHex())
	}

	sessionKey, err := cryptoutil.GenerateSessionKey(defaultCipher)
	if err != nil {
		return err
	}
	defer cryptoutil.Wipe(sessionKey)

	if err := packet.SerializeEncryptedKey(w, key.Public, defaultCipher, sessionKey); err != nil {
		return err
	}
	enc, err := packet.SerializeSymmetricallyEncrypted(w, defaultCipher, sessionKey)
	if err != nil {
		return err
	}
	lit, err := packet.SerializeLiteral(enc, fileName, uint32(time.Now().Unix()))
	if err != nil {
		return err
	}
	if _, err := io.Copy(lit, plaintext); err != nil {
		return errors.WithMessage(pgperrors.ErrIO, err.Error())
	}
	if err := lit.Close(); err != nil {
		return err
	}
	return enc.Close()
}

// DecryptData decrypts a binary or armored message and returns the
// plaintext. A tampered payload yields ErrAuthentication, a wrong
// passphrase ErrWrongPassphrase, and a missing secret key ErrNotFound.
func (e *Engine) DecryptData(data []byte, passphrase []byte) ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	defer metricskey.PerfPGPOperation.MeasureSince(time.Now(), "decrypt")

	if len(data) == 0 {
		return nil, errors.WithMessage(pgperrors.ErrInvalidInput, "empty message")
	}
	raw, err := maybeDearmor(data)
	if err != nil {
		return nil, err
	}

	sess := newSession(passphrase)
	defer sess.close()

	var out bytes.Buffer
	if err := e.decryptMessage(bytes.NewReader(raw), sess, &out); err != nil {
		return nil, err
	}
	// empty plaintext decrypts to empty output, not to an error
	return out.Bytes(), nil
}

// DecryptFile decrypts inPath to outPath, streaming the literal body.
func (e *Engine) DecryptFile(inPath, outPath string, passphrase []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	in, err := os.Open(inPath)
	if err != nil {
		return errors.WithMessage(pgperrors.ErrIO, err.Error())
	}
	defer in.Close()

	src := bufio.NewReader(in)
	peek, _ := src.Peek(64)
	var payload io.Reader = src
	if armor.IsArmored(peek) {
		block, err := armor.Decode(src)
		if err != nil {
			return err
		}
		payload = bytes.NewReader(block.Bytes)
	}

	sess := newSession(passphrase)
	defer sess.close()

	f, err := os.OpenFile(outPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return errors.WithMessage(pgperrors.ErrIO, err.Error())
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	if err := e.decryptMessage(payload, sess, w); err != nil {
		return err
	}
	if err := w.Flush(); err != nil {
		return errors.WithMessage(pgperrors.ErrIO, err.Error())
	}
	return errors.WithStack(f.Close())
}

// decryptMessage walks the packet sequence, unwraps the session key
// with a local secret key, and copies the literal body to out. The
// decrypted stream is drained so the trailing integrity packet is
// always checked.
func (e *Engine) decryptMessage(r io.Reader, sess *session, out io.Writer) error {
	rd := packet.NewReader(r)

	var encKeys []*packet.EncryptedKey
	for {
		p, err := rd.Next()
		if err == io.EOF {
			return errors.WithMessage(pgperrors.ErrDecode, "no encrypted payload in message")
		}
		if err != nil {
			return err
		}
		switch pkt := p.(type) {
		case *packet.EncryptedKey:
			encKeys = append(encKeys, pkt)
		case *packet.SymmetricallyEncrypted:
			return e.openPayload(pkt, encKeys, sess, out)
		case *packet.Opaque:
			// skipped for forward compatibility
		default:
			return errors.WithMessagef(pgperrors.ErrDecode, "unexpected %T in encrypted message", p)
		}
	}
}

func (e *Engine) openPayload(se *packet.SymmetricallyEncrypted, encKeys []*packet.EncryptedKey, sess *session, out io.Writer) error {
	if len(encKeys) == 0 {
		return errors.WithMessage(pgperrors.ErrDecode, "message has no session key packet")
	}

	lastErr := errors.WithMessage(pgperrors.ErrNotFound, "no secret key for any recipient")
	for _, ek := range encKeys {
		entry, err := e.store.FindSecretByKeyID(ek.KeyID)
		if err != nil {
			lastErr = err
			continue
		}
		sk, err := entry.UnlockSecret(sess.passphrase)
		if err != nil {
			// wrong passphrase is terminal, not a reason to try
			// other recipients
			return err
		}
		cf, sessionKey, err := ek.Decrypt(sk)
		sk.Wipe()
		if err != nil {
			lastErr = err
			continue
		}
		defer cryptoutil.Wipe(sessionKey)

		dec, err := se.Decrypt(cf, sessionKey)
		if err != nil {
			return err
		}
		return copyLiteral(dec, out)
	}
	return lastErr
}

// copyLiteral extracts the literal data from the decrypted stream and
// drains the remainder so the integrity trailer is verified.
func copyLiteral(dec io.Reader, out io.Writer) error {
	rd := packet.NewReader(dec)
	for {
		p, err := rd.Next()
		if err == io.EOF {
			return errors.WithMessage(pgperrors.ErrDecode, "no literal data in message")
		}
		if err != nil {
			return err
		}
		switch pkt := p.(type) {
		case *packet.LiteralData:
			if _, err := io.Copy(out, pkt.Body); err != nil {
				return err
			}
			_, err := io.Copy(io.Discard, dec)
			return err
		case *packet.Opaque:
		default:
			return errors.WithMessagef(pgperrors.ErrDecode, "unexpected %T in decrypted payload", p)
		}
	}
}

func readFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WithMessage(pgperrors.ErrIO, err.Error())
	}
	return data, nil
}
