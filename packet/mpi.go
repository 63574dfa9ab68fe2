package packet

import (
	"io"
	"math/big"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/xpgp/pgperrors"
)

// readMPI reads a multi-precision integer: a two-octet bit count
// followed by exactly the octets needed to hold it.
func readMPI(r io.Reader) ([]byte, error) {
	var hdr [2]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, errors.WithMessage(pgperrors.ErrDecode, "mpi: truncated bit count")
	}
	bits := int(hdr[0])<<8 | int(hdr[1])
	out := make([]byte, (bits+7)/8)
	if _, err := io.ReadFull(r, out); err != nil {
		return nil, errors.WithMessage(pgperrors.ErrDecode, "mpi: truncated value")
	}
	return out, nil
}

// readBigMPI reads an MPI into a big.Int.
func readBigMPI(r io.Reader) (*big.Int, error) {
	b, err := readMPI(r)
	if err != nil {
		return nil, err
	}
	return new(big.Int).SetBytes(b), nil
}

// writeMPI writes value as an MPI, stripping leading zero octets so
// the bit count is exact.
func writeMPI(w io.Writer, value []byte) error {
	for len(value) > 0 && value[0] == 0 {
		value = value[1:]
	}
	bits := 0
	if len(value) > 0 {
		bits = (len(value)-1)*8 + bitLen(value[0])
	}
	if _, err := w.Write([]byte{byte(bits >> 8), byte(bits)}); err != nil {
		return errors.WithStack(err)
	}
	_, err := w.Write(value)
	return errors.WithStack(err)
}

// writeBigMPI writes a big.Int as an MPI.
func writeBigMPI(w io.Writer, v *big.Int) error {
	return writeMPI(w, v.Bytes())
}

func bitLen(b byte) int {
	n := 0
	for b != 0 {
		n++
		b >>= 1
	}
	return n
}
