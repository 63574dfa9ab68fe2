package packet

import (
	"bytes"
	"crypto/dsa" //nolint:staticcheck // OpenPGP algorithm 17
	"crypto/rsa"
	"crypto/sha1"
	"encoding/binary"
	"io"
	"math/big"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/xpgp/pgperrors"
)

// PublicKeyAlgorithm is an OpenPGP public key algorithm ID, RFC 4880
// section 9.1.
type PublicKeyAlgorithm byte

// Public key algorithms.
const (
	PubKeyAlgoRSA            PublicKeyAlgorithm = 1
	PubKeyAlgoRSAEncryptOnly PublicKeyAlgorithm = 2
	PubKeyAlgoRSASignOnly    PublicKeyAlgorithm = 3
	PubKeyAlgoElGamal        PublicKeyAlgorithm = 16
	PubKeyAlgoDSA            PublicKeyAlgorithm = 17
)

// CanEncrypt reports whether the algorithm supports encryption.
func (a PublicKeyAlgorithm) CanEncrypt() bool {
	switch a {
	case PubKeyAlgoRSA, PubKeyAlgoRSAEncryptOnly, PubKeyAlgoElGamal:
		return true
	}
	return false
}

// CanSign reports whether the algorithm supports signing.
func (a PublicKeyAlgorithm) CanSign() bool {
	switch a {
	case PubKeyAlgoRSA, PubKeyAlgoRSASignOnly, PubKeyAlgoDSA:
		return true
	}
	return false
}

// String returns the display name used in key listings.
func (a PublicKeyAlgorithm) String() string {
	switch a {
	case PubKeyAlgoRSA, PubKeyAlgoRSAEncryptOnly, PubKeyAlgoRSASignOnly:
		return "RSA"
	case PubKeyAlgoElGamal:
		return "ElGamal"
	case PubKeyAlgoDSA:
		return "DSA"
	}
	return "unknown"
}

// ElGamalKey holds ElGamal public material. The engine parses these
// keys for ring fidelity but does not operate with them.
type ElGamalKey struct {
	P, G, Y *big.Int
}

// PublicKey is a version 4 public key packet (tag 6 or 14).
type PublicKey struct {
	CreationTime time.Time
	Algo         PublicKeyAlgorithm
	RSA          *rsa.PublicKey
	DSA          *dsa.PublicKey
	ElGamal      *ElGamalKey

	tag         Tag
	fingerprint [20]byte
}

// PacketTag implements Packet.
func (pk *PublicKey) PacketTag() Tag {
	if pk.tag == 0 {
		return TagPublicKey
	}
	return pk.tag
}

// NewRSAPublicKey builds a v4 public key packet around an RSA key.
func NewRSAPublicKey(creation time.Time, pub *rsa.PublicKey) *PublicKey {
	pk := &PublicKey{
		CreationTime: creation.Truncate(time.Second),
		Algo:         PubKeyAlgoRSA,
		RSA:          pub,
		tag:          TagPublicKey,
	}
	pk.computeFingerprint()
	return pk
}

// parsePublicKey reads the v4 public key fields from r. tag is 6 or 14.
func parsePublicKey(r io.Reader, tag Tag) (*PublicKey, error) {
	var fixed [6]byte
	if _, err := io.ReadFull(r, fixed[:]); err != nil {
		return nil, errors.WithMessage(pgperrors.ErrDecode, "public key: truncated header")
	}
	if fixed[0] != 4 {
		return nil, errors.WithMessagef(pgperrors.ErrUnsupported, "public key version %d", fixed[0])
	}
	pk := &PublicKey{
		CreationTime: time.Unix(int64(binary.BigEndian.Uint32(fixed[1:5])), 0).UTC(),
		Algo:         PublicKeyAlgorithm(fixed[5]),
		tag:          tag,
	}

	switch pk.Algo {
	case PubKeyAlgoRSA, PubKeyAlgoRSAEncryptOnly, PubKeyAlgoRSASignOnly:
		n, err := readBigMPI(r)
		if err != nil {
			return nil, err
		}
		e, err := readBigMPI(r)
		if err != nil {
			return nil, err
		}
		if !e.IsInt64() || e.Int64() > int64(1)<<31 {
			return nil, errors.WithMessage(pgperrors.ErrDecode, "public key: oversized RSA exponent")
		}
		pk.RSA = &rsa.PublicKey{N: n, E: int(e.Int64())}
	case PubKeyAlgoDSA:
		var vals [4]*big.Int
		for i := range vals {
			v, err := readBigMPI(r)
			if err != nil {
				return nil, err
			}
			vals[i] = v
		}
		pk.DSA = &dsa.PublicKey{
			Parameters: dsa.Parameters{P: vals[0], Q: vals[1], G: vals[2]},
			Y:          vals[3],
		}
	case PubKeyAlgoElGamal:
		var vals [3]*big.Int
		for i := range vals {
			v, err := readBigMPI(r)
			if err != nil {
				return nil, err
			}
			vals[i] = v
		}
		pk.ElGamal = &ElGamalKey{P: vals[0], G: vals[1], Y: vals[2]}
	default:
		return nil, errors.WithMessagef(pgperrors.ErrUnsupported, "public key algorithm %d", pk.Algo)
	}

	pk.computeFingerprint()
	return pk, nil
}

// serializePayload writes the packet body without the header.
func (pk *PublicKey) serializePayload(w io.Writer) error {
	var fixed [6]byte
	fixed[0] = 4
	binary.BigEndian.PutUint32(fixed[1:5], uint32(pk.CreationTime.Unix()))
	fixed[5] = byte(pk.Algo)
	if _, err := w.Write(fixed[:]); err != nil {
		return errors.WithStack(err)
	}

	switch pk.Algo {
	case PubKeyAlgoRSA, PubKeyAlgoRSAEncryptOnly, PubKeyAlgoRSASignOnly:
		if err := writeBigMPI(w, pk.RSA.N); err != nil {
			return err
		}
		return writeBigMPI(w, big.NewInt(int64(pk.RSA.E)))
	case PubKeyAlgoDSA:
		for _, v := range []*big.Int{pk.DSA.P, pk.DSA.Q, pk.DSA.G, pk.DSA.Y} {
			if err := writeBigMPI(w, v); err != nil {
				return err
			}
		}
		return nil
	case PubKeyAlgoElGamal:
		for _, v := range []*big.Int{pk.ElGamal.P, pk.ElGamal.G, pk.ElGamal.Y} {
			if err := writeBigMPI(w, v); err != nil {
				return err
			}
		}
		return nil
	}
	return errors.WithMessagef(pgperrors.ErrUnsupported, "public key algorithm %d", pk.Algo)
}

// Serialize writes the complete packet.
func (pk *PublicKey) Serialize(w io.Writer) error {
	var body bytes.Buffer
	if err := pk.serializePayload(&body); err != nil {
		return err
	}
	return serializeBody(w, pk.PacketTag(), body.Bytes())
}

// computeFingerprint derives the v4 fingerprint: SHA-1 over 0x99, the
// two-octet body length and the body.
func (pk *PublicKey) computeFingerprint() {
	h := sha1.New()
	h.Write(pk.signaturePrefix())
	copy(pk.fingerprint[:], h.Sum(nil))
}

// signaturePrefix returns 0x99 || len16 || body, the form in which a
// key is fed into fingerprints and key signatures.
func (pk *PublicKey) signaturePrefix() []byte {
	var body bytes.Buffer
	// The payload is in-memory material serialized moments ago; an
	// encoding failure here is not reachable.
	_ = pk.serializePayload(&body)
	out := make([]byte, 3, 3+body.Len())
	out[0] = 0x99
	out[1] = byte(body.Len() >> 8)
	out[2] = byte(body.Len())
	return append(out, body.Bytes()...)
}

// Fingerprint returns the 20-byte v4 fingerprint.
func (pk *PublicKey) Fingerprint() [20]byte {
	return pk.fingerprint
}

// KeyID returns the low 64 bits of the fingerprint.
func (pk *PublicKey) KeyID() uint64 {
	return binary.BigEndian.Uint64(pk.fingerprint[12:])
}

// BitLength returns the public key strength in bits.
func (pk *PublicKey) BitLength() int {
	switch pk.Algo {
	case PubKeyAlgoRSA, PubKeyAlgoRSAEncryptOnly, PubKeyAlgoRSASignOnly:
		return pk.RSA.N.BitLen()
	case PubKeyAlgoDSA:
		return pk.DSA.P.BitLen()
	case PubKeyAlgoElGamal:
		return pk.ElGamal.P.BitLen()
	}
	return 0
}
