package keyring

import (
	"bytes"
	"io"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/xpgp/packet"
	"github.com/effective-security/xpgp/pgperrors"
)

// KeyRing is an ordered collection of transferable keys, unique by
// primary key fingerprint.
type KeyRing struct {
	Keys []*Key
}

// serializer is implemented by every concrete packet type.
type serializer interface {
	Serialize(w io.Writer) error
}

// ParseRing reads a binary sequence of transferable keys. Packets that
// do not belong to any key block are a decode error, except for opaque
// packets which are skipped for forward compatibility.
func ParseRing(r io.Reader) (*KeyRing, error) {
	ring := &KeyRing{}
	rd := packet.NewReader(r)

	var cur *Key
	for {
		p, err := rd.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}

		switch pkt := p.(type) {
		case *packet.PublicKey:
			if pkt.PacketTag() == packet.TagPublicSubkey {
				if cur == nil {
					return nil, errors.WithMessage(pgperrors.ErrDecode, "subkey outside key block")
				}
				cur.Extra = append(cur.Extra, pkt)
				continue
			}
			cur = &Key{Public: pkt}
			ring.Keys = append(ring.Keys, cur)
		case *packet.SecretKey:
			cur = &Key{Public: &pkt.PublicKey, Secret: pkt}
			ring.Keys = append(ring.Keys, cur)
		case *packet.UserID:
			if cur == nil {
				return nil, errors.WithMessage(pgperrors.ErrDecode, "user ID outside key block")
			}
			if cur.UserID == nil {
				cur.UserID = pkt
			} else {
				cur.Extra = append(cur.Extra, pkt)
			}
		case *packet.Signature:
			if cur == nil {
				return nil, errors.WithMessage(pgperrors.ErrDecode, "signature outside key block")
			}
			if cur.SelfSig == nil && isSelfCert(pkt, cur) {
				cur.SelfSig = pkt
			} else {
				cur.Extra = append(cur.Extra, pkt)
			}
		case *packet.Opaque:
			if cur != nil {
				cur.Extra = append(cur.Extra, pkt)
			}
		default:
			return nil, errors.WithMessagef(pgperrors.ErrDecode, "unexpected packet %T in key ring", p)
		}
	}
	return ring, nil
}

func isSelfCert(sig *packet.Signature, key *Key) bool {
	if sig.SigType < packet.SigTypeGenericCert || sig.SigType > packet.SigTypePositiveCert {
		return false
	}
	return sig.IssuerKeyID == nil || *sig.IssuerKeyID == key.Public.KeyID()
}

// Serialize writes the ring as a binary packet sequence. Secret
// entries are written with their secret material; use SerializePublic
// for the public projection.
func (r *KeyRing) Serialize(w io.Writer) error {
	for _, k := range r.Keys {
		if err := serializeKey(w, k, k.Secret != nil); err != nil {
			return err
		}
	}
	return nil
}

// SerializePublic writes the public projection of the ring.
func (r *KeyRing) SerializePublic(w io.Writer) error {
	for _, k := range r.Keys {
		if err := serializeKey(w, k, false); err != nil {
			return err
		}
	}
	return nil
}

func serializeKey(w io.Writer, k *Key, secret bool) error {
	var pkts []serializer
	if secret {
		pkts = append(pkts, k.Secret)
	} else {
		pkts = append(pkts, k.Public)
	}
	if k.UserID != nil {
		pkts = append(pkts, k.UserID)
	}
	if k.SelfSig != nil {
		pkts = append(pkts, k.SelfSig)
	}
	for _, p := range k.Extra {
		s, ok := p.(serializer)
		if !ok {
			return errors.WithMessagef(pgperrors.ErrUnsupported, "packet tag %d is not serializable", p.PacketTag())
		}
		pkts = append(pkts, s)
	}
	for _, p := range pkts {
		if err := p.Serialize(w); err != nil {
			return err
		}
	}
	return nil
}

// ExportKey serializes a single transferable key.
func ExportKey(k *Key, secret bool) ([]byte, error) {
	if secret && k.Secret == nil {
		return nil, errors.WithMessagef(pgperrors.ErrNotFound, "no secret material for %q", k.Identity())
	}
	var buf bytes.Buffer
	if err := serializeKey(&buf, k, secret); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Lookup returns the first key matching the query, or ErrNotFound.
func (r *KeyRing) Lookup(query string) (*Key, error) {
	for _, k := range r.Keys {
		if k.Matches(query) {
			return k, nil
		}
	}
	return nil, errors.WithMessagef(pgperrors.ErrNotFound, "no key matching %q", query)
}

// LookupByKeyID returns the key with the given 64-bit key ID.
func (r *KeyRing) LookupByKeyID(id uint64) (*Key, error) {
	for _, k := range r.Keys {
		if k.Public.KeyID() == id {
			return k, nil
		}
	}
	return nil, errors.WithMessagef(pgperrors.ErrNotFound, "no key with ID %016X", id)
}

// Add inserts the key unless an entry with the same fingerprint is
// already present. An existing public entry is upgraded in place when
// the new key carries secret material. Reports whether the ring
// changed.
func (r *KeyRing) Add(k *Key) bool {
	fp := k.Public.Fingerprint()
	for i, existing := range r.Keys {
		if existing.Public.Fingerprint() != fp {
			continue
		}
		if existing.Secret == nil && k.Secret != nil {
			r.Keys[i] = k
			return true
		}
		return false
	}
	r.Keys = append(r.Keys, k)
	return true
}
