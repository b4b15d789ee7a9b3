// Package corerr defines the error taxonomy shared across the run control
// plane: a small set of kinds (not concrete error types) that every
// component wraps its failures into, so callers can branch on Is/As instead
// of string matching.
package corerr

import (
	"errors"
	"fmt"
)

// Kind classifies a failure the way §7 of the run control plane spec does.
type Kind string

const (
	KindValidation Kind = "validation"
	KindConflict   Kind = "conflict"
	KindResource   Kind = "resource"
	KindTransient  Kind = "transient"
	KindIntegrity  Kind = "integrity"
	KindNotFound   Kind = "not_found"
	KindFatal      Kind = "fatal"
)

// Error is a taxonomy-classified error with a stable machine code, carried
// alongside a human message and an optional wrapped cause.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is matches on Kind and Code, ignoring Message/Cause, so sentinel-style
// comparisons (`errors.Is(err, corerr.New(corerr.KindNotFound, "run.not_found", ""))`)
// work across call sites that format messages differently.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Code != "" && t.Code != e.Code {
		return false
	}
	return t.Kind == e.Kind
}

// New builds a taxonomy error with no wrapped cause.
func New(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

// Wrap builds a taxonomy error wrapping an existing cause.
func Wrap(kind Kind, code, message string, cause error) *Error {
	return &Error{Kind: kind, Code: code, Message: message, Cause: cause}
}

// Of reports the Kind of err if it (or something it wraps) is a *Error.
func Of(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}

// IsKind reports whether err's taxonomy kind matches k.
func IsKind(err error, k Kind) bool {
	kind, ok := Of(err)
	return ok && kind == k
}

// Retryable reports whether the taxonomy kind is one §7 allows the retry
// primitive (H) to retry without surfacing to the caller.
func Retryable(err error) bool {
	return IsKind(err, KindTransient)
}
