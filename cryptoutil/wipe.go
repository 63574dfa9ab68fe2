package cryptoutil

import "runtime"

// Wipe zeroes the buffer. Best effort: it reduces the window in which
// secret material sits in memory, it is not a guarantee against copies
// made by the garbage collector.
//
//go:noinline
func Wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
	runtime.KeepAlive(&b)
}
