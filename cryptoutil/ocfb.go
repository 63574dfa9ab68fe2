package cryptoutil

import (
	"crypto/cipher"
)

// OpenPGP CFB mode, RFC 4880 section 13.9. Unlike standard CFB the IV
// is all zeros and a random block plus a two-byte repeat is encrypted
// first; "resync" mode then realigns the feedback register on the
// repeated bytes, non-resync mode (used by integrity protected packets)
// continues the stream unaligned.

// ResyncOption selects between the two OpenPGP CFB variants.
type ResyncOption bool

// Resync options.
const (
	Resync   ResyncOption = true
	NoResync ResyncOption = false
)

type ocfbEncrypter struct {
	block   cipher.Block
	reg     []byte
	regUsed int
}

// NewOCFBEncrypter returns a stream cipher for OpenPGP CFB encryption
// and the encrypted prefix that must precede the ciphertext. rand must
// hold blockSize random bytes.
func NewOCFBEncrypter(block cipher.Block, rand []byte, resync ResyncOption) (cipher.Stream, []byte) {
	bs := block.BlockSize()
	if len(rand) != bs {
		return nil, nil
	}

	x := &ocfbEncrypter{
		block: block,
		reg:   make([]byte, bs),
	}
	prefix := make([]byte, bs+2)

	block.Encrypt(x.reg, x.reg)
	for i := 0; i < bs; i++ {
		prefix[i] = rand[i] ^ x.reg[i]
	}
	block.Encrypt(x.reg, prefix[:bs])
	prefix[bs] = x.reg[0] ^ rand[bs-2]
	prefix[bs+1] = x.reg[1] ^ rand[bs-1]

	if resync {
		block.Encrypt(x.reg, prefix[2:])
	} else {
		x.reg[0] = prefix[bs]
		x.reg[1] = prefix[bs+1]
		x.regUsed = 2
	}
	return x, prefix
}

func (x *ocfbEncrypter) XORKeyStream(dst, src []byte) {
	for i := 0; i < len(src); i++ {
		if x.regUsed == len(x.reg) {
			x.block.Encrypt(x.reg, x.reg)
			x.regUsed = 0
		}
		x.reg[x.regUsed] ^= src[i]
		dst[i] = x.reg[x.regUsed]
		x.regUsed++
	}
}

type ocfbDecrypter struct {
	block   cipher.Block
	reg     []byte
	regUsed int
}

// NewOCFBDecrypter returns a stream cipher for OpenPGP CFB decryption
// together with the recovered plaintext prefix, which integrity
// protected packets feed into the MDC hash. prefix is the blockSize+2
// encrypted prefix; nil is returned when the quick-check bytes do not
// match, which signals a wrong session key.
func NewOCFBDecrypter(block cipher.Block, prefix []byte, resync ResyncOption) (cipher.Stream, []byte) {
	bs := block.BlockSize()
	if len(prefix) != bs+2 {
		return nil, nil
	}

	x := &ocfbDecrypter{
		block: block,
		reg:   make([]byte, bs),
	}
	plain := make([]byte, bs+2)

	x.block.Encrypt(x.reg, x.reg)
	for i := 0; i < bs; i++ {
		plain[i] = prefix[i] ^ x.reg[i]
	}
	x.block.Encrypt(x.reg, prefix[:bs])
	plain[bs] = prefix[bs] ^ x.reg[0]
	plain[bs+1] = prefix[bs+1] ^ x.reg[1]

	if plain[bs-2] != plain[bs] || plain[bs-1] != plain[bs+1] {
		return nil, nil
	}

	if resync {
		x.block.Encrypt(x.reg, prefix[2:])
	} else {
		x.reg[0] = prefix[bs]
		x.reg[1] = prefix[bs+1]
		x.regUsed = 2
	}
	return x, plain
}

func (x *ocfbDecrypter) XORKeyStream(dst, src []byte) {
	for i := 0; i < len(src); i++ {
		if x.regUsed == len(x.reg) {
			x.block.Encrypt(x.reg, x.reg)
			x.regUsed = 0
		}
		c := src[i]
		dst[i] = src[i] ^ x.reg[x.regUsed]
		x.reg[x.regUsed] = c
		x.regUsed++
	}
}
