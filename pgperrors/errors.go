// Package pgperrors defines the error taxonomy shared by the OpenPGP
// engine packages. Callers classify failures with errors.Is against the
// sentinels below; packages attach context with errors.WithMessage.
package pgperrors

import (
	"github.com/cockroachdb/errors"
)

var (
	// ErrDecode is returned on malformed packet or armor framing.
	// The operation aborts; the input cannot be partially consumed.
	ErrDecode = errors.New("xpgp: malformed data")

	// ErrNotFound is returned when an identity or fingerprint is not
	// present in the key ring.
	ErrNotFound = errors.New("xpgp: key not found")

	// ErrWrongPassphrase is returned when secret key material fails to
	// unlock with the supplied passphrase.
	ErrWrongPassphrase = errors.New("xpgp: incorrect passphrase")

	// ErrAuthentication is returned when the modification detection code
	// of an encrypted message fails to verify.
	ErrAuthentication = errors.New("xpgp: message integrity check failed")

	// ErrDecrypt is returned when session key unwrapping or message
	// decryption fails for reasons other than a bad MDC.
	ErrDecrypt = errors.New("xpgp: decryption failed")

	// ErrIO is returned on backing store read/write failures. The ring
	// is left unmodified.
	ErrIO = errors.New("xpgp: key ring storage error")

	// ErrInvalidInput is returned when an operation precondition is
	// violated, such as a missing identity.
	ErrInvalidInput = errors.New("xpgp: invalid input")

	// ErrUnsupported is returned for well-formed data that uses an
	// algorithm or packet version the engine does not implement.
	ErrUnsupported = errors.New("xpgp: unsupported")
)
