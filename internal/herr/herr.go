// Package herr defines the error kinds shared across the core and a
// wrapper that lets callers test for a kind with errors.Is/As while still
// carrying the underlying cause, the same way fmt.Errorf("...: %w", err)
// layers over a lower-level error and exposes comparable sentinels.
package herr

import (
	"errors"
	"fmt"
)

// Kind enumerates the error kinds a core operation can fail with.
type Kind string

const (
	NotFound  Kind = "not-found"
	WrongKind Kind = "wrong-kind"
	Mismatch  Kind = "mismatch"
	Malformed Kind = "malformed"
	Overflow  Kind = "overflow"
	Duplicate Kind = "duplicate"
	Underflow Kind = "underflow"
	IOError   Kind = "io-error"
	Canceled  Kind = "canceled"
	Fatal     Kind = "fatal"
)

// Error pairs a Kind with a human-readable message and an optional
// underlying cause.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is reports whether target is an *Error with the same Kind, so callers can
// write errors.Is(err, herr.New(herr.NotFound, "")) — or, more commonly,
// use Is(err, kind) below.
func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return other.Kind == e.Kind
	}
	return false
}

// New constructs an *Error with no cause.
func New(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap constructs an *Error with an underlying cause.
func Wrap(kind Kind, cause error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// Is reports whether err's Kind equals kind, unwrapping as needed.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// KindOf extracts the Kind from err, returning ("", false) if err is not (or
// does not wrap) an *Error.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}
