package packet

import (
	"bytes"
	"crypto"
	"encoding/binary"
	"hash"
	"io"
	"math/big"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/xpgp/cryptoutil"
	"github.com/effective-security/xpgp/pgperrors"
)

// SignatureType is an OpenPGP signature type, RFC 4880 section 5.2.1.
type SignatureType byte

// Signature types used by the engine.
const (
	SigTypeBinary       SignatureType = 0x00
	SigTypeText         SignatureType = 0x01
	SigTypeGenericCert  SignatureType = 0x10
	SigTypePositiveCert SignatureType = 0x13
)

// Subpacket types.
const (
	subpacketCreationTime  = 2
	subpacketPrefSymmetric = 11
	subpacketIssuer        = 16
	subpacketPrefHash      = 21
)

// Signature is a version 4 signature packet (tag 2).
type Signature struct {
	SigType      SignatureType
	PubKeyAlgo   PublicKeyAlgorithm
	Hash         crypto.Hash
	CreationTime time.Time
	IssuerKeyID  *uint64

	// Algorithm preferences on self-certifications. Implementations
	// encrypting to this key pick from these lists.
	PreferredSymmetric []byte
	PreferredHash      []byte

	RSASignature     []byte
	DSASigR, DSASigS *big.Int

	// hashSuffix is the v4 trailer hashed after the signed data:
	// the first six octets of the packet, the hashed subpacket area
	// and the final length trailer.
	hashSuffix []byte
	left16     [2]byte
	// rawBody preserves parsed packets byte for byte so foreign
	// signatures survive a ring rewrite.
	rawBody []byte
}

// PacketTag implements Packet.
func (sig *Signature) PacketTag() Tag {
	return TagSignature
}

// parseSignature reads a v4 signature packet body.
func parseSignature(r io.Reader) (*Signature, error) {
	body, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.WithMessage(pgperrors.ErrDecode, "signature: truncated")
	}
	if len(body) < 8 {
		return nil, errors.WithMessage(pgperrors.ErrDecode, "signature: too short")
	}
	if body[0] != 4 {
		return nil, errors.WithMessagef(pgperrors.ErrUnsupported, "signature version %d", body[0])
	}

	sig := &Signature{
		SigType:    SignatureType(body[1]),
		PubKeyAlgo: PublicKeyAlgorithm(body[2]),
		rawBody:    body,
	}
	sig.Hash, err = cryptoutil.HashFromID(body[3])
	if err != nil {
		return nil, err
	}

	hashedLen := int(body[4])<<8 | int(body[5])
	if 6+hashedLen+2 > len(body) {
		return nil, errors.WithMessage(pgperrors.ErrDecode, "signature: hashed area overflow")
	}
	hashed := body[6 : 6+hashedLen]
	if err := sig.parseSubpackets(hashed, true); err != nil {
		return nil, err
	}

	sig.hashSuffix = make([]byte, 0, 6+hashedLen+6)
	sig.hashSuffix = append(sig.hashSuffix, body[:6+hashedLen]...)
	sig.hashSuffix = append(sig.hashSuffix, 0x04, 0xff,
		byte((6+hashedLen)>>24), byte((6+hashedLen)>>16), byte((6+hashedLen)>>8), byte(6+hashedLen))

	rest := body[6+hashedLen:]
	unhashedLen := int(rest[0])<<8 | int(rest[1])
	if 2+unhashedLen+2 > len(rest) {
		return nil, errors.WithMessage(pgperrors.ErrDecode, "signature: unhashed area overflow")
	}
	if err := sig.parseSubpackets(rest[2:2+unhashedLen], false); err != nil {
		return nil, err
	}
	rest = rest[2+unhashedLen:]
	sig.left16[0], sig.left16[1] = rest[0], rest[1]

	mpis := bytes.NewReader(rest[2:])
	switch sig.PubKeyAlgo {
	case PubKeyAlgoRSA, PubKeyAlgoRSASignOnly:
		sig.RSASignature, err = readMPI(mpis)
		if err != nil {
			return nil, err
		}
	case PubKeyAlgoDSA:
		if sig.DSASigR, err = readBigMPI(mpis); err != nil {
			return nil, err
		}
		if sig.DSASigS, err = readBigMPI(mpis); err != nil {
			return nil, err
		}
	default:
		return nil, errors.WithMessagef(pgperrors.ErrUnsupported, "signature algorithm %d", sig.PubKeyAlgo)
	}
	return sig, nil
}

// parseSubpackets walks a subpacket area. Unknown subpackets are
// skipped unless marked critical.
func (sig *Signature) parseSubpackets(area []byte, hashed bool) error {
	for len(area) > 0 {
		var length int
		switch {
		case area[0] < 192:
			length = int(area[0])
			area = area[1:]
		case area[0] < 255:
			if len(area) < 2 {
				return errors.WithMessage(pgperrors.ErrDecode, "signature: truncated subpacket length")
			}
			length = (int(area[0])-192)<<8 + int(area[1]) + 192
			area = area[2:]
		default:
			if len(area) < 5 {
				return errors.WithMessage(pgperrors.ErrDecode, "signature: truncated subpacket length")
			}
			length = int(binary.BigEndian.Uint32(area[1:5]))
			area = area[5:]
		}
		if length == 0 || length > len(area) {
			return errors.WithMessage(pgperrors.ErrDecode, "signature: subpacket length overflow")
		}
		typ := area[0] & 0x7f
		critical := area[0]&0x80 != 0
		contents := area[1:length]
		area = area[length:]

		switch typ {
		case subpacketCreationTime:
			if len(contents) != 4 {
				return errors.WithMessage(pgperrors.ErrDecode, "signature: invalid creation time")
			}
			sig.CreationTime = time.Unix(int64(binary.BigEndian.Uint32(contents)), 0).UTC()
		case subpacketPrefSymmetric:
			sig.PreferredSymmetric = append([]byte(nil), contents...)
		case subpacketPrefHash:
			sig.PreferredHash = append([]byte(nil), contents...)
		case subpacketIssuer:
			if len(contents) != 8 {
				return errors.WithMessage(pgperrors.ErrDecode, "signature: invalid issuer")
			}
			id := binary.BigEndian.Uint64(contents)
			sig.IssuerKeyID = &id
		default:
			if critical && hashed {
				return errors.WithMessagef(pgperrors.ErrUnsupported, "critical signature subpacket %d", typ)
			}
		}
	}
	return nil
}

// buildHashSuffix constructs the hashed trailer for a signature being
// created: the creation time plus any algorithm preferences.
func (sig *Signature) buildHashSuffix() error {
	hashID, err := cryptoutil.HashToID(sig.Hash)
	if err != nil {
		return err
	}

	var hashed bytes.Buffer
	var ts [4]byte
	binary.BigEndian.PutUint32(ts[:], uint32(sig.CreationTime.Unix()))
	hashed.WriteByte(5)
	hashed.WriteByte(subpacketCreationTime)
	hashed.Write(ts[:])
	if len(sig.PreferredSymmetric) > 0 {
		hashed.WriteByte(byte(1 + len(sig.PreferredSymmetric)))
		hashed.WriteByte(subpacketPrefSymmetric)
		hashed.Write(sig.PreferredSymmetric)
	}
	if len(sig.PreferredHash) > 0 {
		hashed.WriteByte(byte(1 + len(sig.PreferredHash)))
		hashed.WriteByte(subpacketPrefHash)
		hashed.Write(sig.PreferredHash)
	}

	hl := hashed.Len()
	sig.hashSuffix = make([]byte, 0, 6+hl+6)
	sig.hashSuffix = append(sig.hashSuffix, 4, byte(sig.SigType), byte(sig.PubKeyAlgo), hashID,
		byte(hl>>8), byte(hl))
	sig.hashSuffix = append(sig.hashSuffix, hashed.Bytes()...)
	l := 6 + hl
	sig.hashSuffix = append(sig.hashSuffix, 0x04, 0xff, byte(l>>24), byte(l>>16), byte(l>>8), byte(l))
	return nil
}

// finalizeDigest feeds the trailer into h and returns the digest,
// recording the left 16 bits.
func (sig *Signature) finalizeDigest(h hash.Hash) []byte {
	h.Write(sig.hashSuffix)
	digest := h.Sum(nil)
	sig.left16[0], sig.left16[1] = digest[0], digest[1]
	return digest
}

// Sign completes the signature over the data already written to h
// using the unlocked secret key.
func (sig *Signature) Sign(h hash.Hash, sk *SecretKey) error {
	if sk.Encrypted {
		return errors.WithMessage(pgperrors.ErrInvalidInput, "signature: secret key is locked")
	}
	if sig.CreationTime.IsZero() {
		sig.CreationTime = time.Now().UTC().Truncate(time.Second)
	}
	if sig.IssuerKeyID == nil {
		id := sk.KeyID()
		sig.IssuerKeyID = &id
	}
	if err := sig.buildHashSuffix(); err != nil {
		return err
	}
	digest := sig.finalizeDigest(h)

	var err error
	switch sig.PubKeyAlgo {
	case PubKeyAlgoRSA, PubKeyAlgoRSASignOnly:
		sig.RSASignature, err = cryptoutil.SignRSA(sk.RSAPriv, sig.Hash, digest)
	case PubKeyAlgoDSA:
		sig.DSASigR, sig.DSASigS, err = cryptoutil.SignDSA(sk.DSAPriv, digest)
	default:
		err = errors.WithMessagef(pgperrors.ErrUnsupported, "signature algorithm %d", sig.PubKeyAlgo)
	}
	if err != nil {
		return err
	}
	sig.rawBody = nil
	return nil
}

// Verify reports whether the signature over the data written to h was
// produced by pk. An invalid signature is a normal false result.
func (sig *Signature) Verify(h hash.Hash, pk *PublicKey) bool {
	suffix := sig.hashSuffix
	if suffix == nil {
		return false
	}
	h.Write(suffix)
	digest := h.Sum(nil)
	if digest[0] != sig.left16[0] || digest[1] != sig.left16[1] {
		return false
	}

	switch sig.PubKeyAlgo {
	case PubKeyAlgoRSA, PubKeyAlgoRSASignOnly:
		if pk.RSA == nil {
			return false
		}
		return cryptoutil.VerifyRSA(pk.RSA, sig.Hash, digest, sig.RSASignature)
	case PubKeyAlgoDSA:
		if pk.DSA == nil || sig.DSASigR == nil || sig.DSASigS == nil {
			return false
		}
		return cryptoutil.VerifyDSA(pk.DSA, digest, sig.DSASigR, sig.DSASigS)
	}
	return false
}

// SignUserID certifies the binding between the user ID and the public
// key, as used for self-signatures on generated keys.
func (sig *Signature) SignUserID(id *UserID, pub *PublicKey, sk *SecretKey) error {
	h := sig.Hash.New()
	h.Write(pub.signaturePrefix())
	h.Write(id.signaturePrefix())
	return sig.Sign(h, sk)
}

// VerifyUserID reports whether the signature certifies the binding
// between id and pub, checked against the signer key.
func (sig *Signature) VerifyUserID(id *UserID, pub *PublicKey, signer *PublicKey) bool {
	h := sig.Hash.New()
	h.Write(pub.signaturePrefix())
	h.Write(id.signaturePrefix())
	return sig.Verify(h, signer)
}

// Serialize writes the complete packet. Parsed signatures round-trip
// byte for byte.
func (sig *Signature) Serialize(w io.Writer) error {
	if sig.rawBody != nil {
		return serializeBody(w, TagSignature, sig.rawBody)
	}
	if sig.hashSuffix == nil {
		return errors.WithMessage(pgperrors.ErrInvalidInput, "signature: not signed")
	}

	var body bytes.Buffer
	// Everything up to the trailer is the start of the wire form.
	body.Write(sig.hashSuffix[:len(sig.hashSuffix)-6])

	// Unhashed area: the issuer key ID.
	if sig.IssuerKeyID != nil {
		var issuer [8]byte
		binary.BigEndian.PutUint64(issuer[:], *sig.IssuerKeyID)
		body.Write([]byte{0, 10, 9, subpacketIssuer})
		body.Write(issuer[:])
	} else {
		body.Write([]byte{0, 0})
	}
	body.Write(sig.left16[:])

	switch sig.PubKeyAlgo {
	case PubKeyAlgoRSA, PubKeyAlgoRSASignOnly:
		if err := writeMPI(&body, sig.RSASignature); err != nil {
			return err
		}
	case PubKeyAlgoDSA:
		if err := writeBigMPI(&body, sig.DSASigR); err != nil {
			return err
		}
		if err := writeBigMPI(&body, sig.DSASigS); err != nil {
			return err
		}
	default:
		return errors.WithMessagef(pgperrors.ErrUnsupported, "signature algorithm %d", sig.PubKeyAlgo)
	}
	return serializeBody(w, TagSignature, body.Bytes())
}
