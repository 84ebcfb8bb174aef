// Package errs defines the failure taxonomy shared by the signing and
// validation engine.
//
// Every failure that aborts an operation carries a Kind and a Code. Callers
// match codes with errors.Is against the sentinels below and branch on
// KindOf when only the category matters (for example to pick an HTTP status).
// A negative validation verdict is never an error.
package errs

import (
	"errors"
	"fmt"
)

// Kind is the broad category of a failure.
type Kind int

const (
	// KindUnknown is reported for errors that did not originate here.
	KindUnknown Kind = iota
	// KindInput covers missing or invalid caller input.
	KindInput
	// KindStructural covers PDFs that cannot be parsed or reserialized.
	KindStructural
	// KindCrypto covers key, algorithm and digest failures.
	KindCrypto
	// KindExternalTool covers failed or timed out helper processes.
	KindExternalTool
)

// String returns the name of the kind.
func (k Kind) String() string {
	switch k {
	case KindInput:
		return "InputError"
	case KindStructural:
		return "StructuralError"
	case KindCrypto:
		return "CryptoError"
	case KindExternalTool:
		return "ExternalToolError"
	default:
		return "UnknownError"
	}
}

// Error is a classified failure.
type Error struct {
	Kind Kind
	Code string
	Op   string
	Err  error
}

func (e *Error) Error() string {
	msg := e.Code
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error with the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

func define(kind Kind, code string) *Error {
	return &Error{Kind: kind, Code: code}
}

// Input errors
var (
	ErrBadPassphrase      = define(KindInput, "BadPassphrase")
	ErrMalformedContainer = define(KindInput, "MalformedContainer")
	ErrNoPrivateKey       = define(KindInput, "NoPrivateKey")
	ErrMissingCertificate = define(KindInput, "MissingCertificate")
	ErrInvalidPDF         = define(KindInput, "InvalidPDF")
	ErrInvalidPageIndex   = define(KindInput, "InvalidPageIndex")
	ErrInvalidImage       = define(KindInput, "InvalidImage")
	ErrInvalidMarker      = define(KindInput, "InvalidMarker")
	ErrInvalidPlacement   = define(KindInput, "InvalidPlacement")
	ErrInvalidRequest     = define(KindInput, "InvalidRequest")
)

// Structural errors
var (
	ErrUnparseablePDF       = define(KindStructural, "UnparseablePDF")
	ErrSerialization        = define(KindStructural, "SerializationFailed")
	ErrPlaceholderTooSmall  = define(KindStructural, "PlaceholderTooSmall")
	ErrReservedSlotOverflow = define(KindStructural, "ReservedSlotOverflow")
)

// Crypto errors
var (
	ErrKeyMismatch          = define(KindCrypto, "KeyMismatch")
	ErrDigestMismatch       = define(KindCrypto, "DigestMismatch")
	ErrUnsupportedAlgorithm = define(KindCrypto, "UnsupportedAlgorithm")
)

// External tool errors
var (
	ErrExternalToolFailure = define(KindExternalTool, "ExternalToolFailure")
)

// Wrap classifies cause under the given sentinel. The result matches the
// sentinel with errors.Is and unwraps to cause.
func Wrap(sentinel *Error, op string, cause error) error {
	return &Error{Kind: sentinel.Kind, Code: sentinel.Code, Op: op, Err: cause}
}

// Wrapf is Wrap with a formatted cause.
func Wrapf(sentinel *Error, op string, format string, args ...any) error {
	return Wrap(sentinel, op, fmt.Errorf(format, args...))
}

// KindOf returns the kind of the first classified error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// CodeOf returns the code of the first classified error in err's chain.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}
