// Package exterr defines the failure kinds produced while reading, parsing,
// and installing extension packages. Every error that reaches a user-facing
// diagnostic is an *Error carrying one Kind and the file or manifest key it
// concerns.
package exterr

import (
	"errors"
	"fmt"
)

// Kind classifies a package failure.
type Kind int

const (
	// BadRootElementType means the manifest is not JSON or its root is not
	// an object.
	BadRootElementType Kind = iota + 1
	// MissingFile means a file the manifest references does not exist.
	MissingFile
	// InvalidManifest means a manifest key has a missing or invalid value.
	InvalidManifest
	// CannotReadFile means a file could not be opened or read.
	CannotReadFile
	// BadMagicNumber means the container header is not recognized.
	BadMagicNumber
	// InvalidSignature means the container signature does not verify.
	InvalidSignature
	// EmptyOrTruncatedContainer means the container ends early.
	EmptyOrTruncatedContainer
)

// Diagnostic fragments shared with tests that match reported messages.
const (
	MsgBadRootElementType = "Root value must be an object."
	MsgMissingFile        = "Required file is missing"
	MsgInvalidManifest    = "Invalid value for"
	MsgBadMagicNumber     = "Package header has a bad magic number."
	MsgInvalidSignature   = "Package signature is invalid."
	MsgEmptyOrTruncated   = "Package file is empty or truncated."
)

func (k Kind) String() string {
	switch k {
	case BadRootElementType:
		return "bad_root_element_type"
	case MissingFile:
		return "missing_file"
	case InvalidManifest:
		return "invalid_manifest"
	case CannotReadFile:
		return "cannot_read_file"
	case BadMagicNumber:
		return "bad_magic_number"
	case InvalidSignature:
		return "invalid_signature"
	case EmptyOrTruncatedContainer:
		return "empty_or_truncated_container"
	default:
		return "unknown"
	}
}

// Error is a classified package failure. Subject names the file reference,
// manifest key, or file the failure is about; it may be empty.
type Error struct {
	Kind    Kind
	Subject string
	Err     error
}

// Sentinels for errors.Is. They match any *Error of the same Kind.
var (
	ErrBadRootElementType        = &Error{Kind: BadRootElementType}
	ErrMissingFile               = &Error{Kind: MissingFile}
	ErrInvalidManifest           = &Error{Kind: InvalidManifest}
	ErrCannotReadFile            = &Error{Kind: CannotReadFile}
	ErrBadMagicNumber            = &Error{Kind: BadMagicNumber}
	ErrInvalidSignature          = &Error{Kind: InvalidSignature}
	ErrEmptyOrTruncatedContainer = &Error{Kind: EmptyOrTruncatedContainer}
)

// New returns an *Error of the given kind.
func New(kind Kind, subject string, err error) *Error {
	return &Error{Kind: kind, Subject: subject, Err: err}
}

// Reason returns the human-readable diagnostic for the failure.
func (e *Error) Reason() string {
	switch e.Kind {
	case BadRootElementType:
		if e.Err != nil {
			return fmt.Sprintf("Manifest is not valid JSON. %s. %s", e.Err, MsgBadRootElementType)
		}
		return "Manifest is not valid JSON. " + MsgBadRootElementType
	case MissingFile:
		return fmt.Sprintf("%s: '%s'.", MsgMissingFile, e.Subject)
	case InvalidManifest:
		return fmt.Sprintf("%s '%s'.", MsgInvalidManifest, e.Subject)
	case CannotReadFile:
		return fmt.Sprintf("Could not read '%s' file.", e.Subject)
	case BadMagicNumber:
		return MsgBadMagicNumber
	case InvalidSignature:
		return MsgInvalidSignature
	case EmptyOrTruncatedContainer:
		return MsgEmptyOrTruncated
	default:
		return "Unknown error."
	}
}

func (e *Error) Error() string {
	if e.Err != nil && e.Kind != BadRootElementType {
		return e.Reason() + " (" + e.Err.Error() + ")"
	}
	return e.Reason()
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is an *Error of the same Kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// KindOf returns the Kind of the first *Error in err's chain, or zero.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

// Reason returns the diagnostic for err: the *Error's Reason when one is in
// the chain, otherwise err's message.
func Reason(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Reason()
	}
	return err.Error()
}
