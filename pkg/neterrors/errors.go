// Package neterrors defines the tagged error kinds shared across netwatch's
// collaborators. Each kind is a distinct sentinel-compatible
// error type so callers can branch with errors.Is/errors.As instead of
// string matching or throwing for control flow.
package neterrors

import "fmt"

// Kind identifies which of the catalogued error classes an error belongs to.
type Kind string

const (
	KindUnavailable       Kind = "unavailable"
	KindAuth              Kind = "auth"
	KindTimeout           Kind = "timeout"
	KindCircuitOpen       Kind = "circuit_open"
	KindCancelled         Kind = "cancelled"
	KindParse             Kind = "parse"
	KindUnknownSuggestion Kind = "unknown_suggestion"
	KindUnknownDevice     Kind = "unknown_device"
	KindUnknownNode       Kind = "unknown_node"
	KindInsufficientData  Kind = "insufficient_data"
	KindInvariant         Kind = "invariant"
)

// Error is a tagged error: a Kind plus a human-readable message and an
// optional wrapped cause.
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

// Is lets errors.Is(err, neterrors.New(KindTimeout, "")) match any *Error
// with the same Kind, independent of message or cause.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// New builds an *Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap builds an *Error of the given kind around a lower-level cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Sentinels for errors.Is comparisons that don't care about message/cause.
var (
	ErrUnavailable       = New(KindUnavailable, "unavailable")
	ErrAuth              = New(KindAuth, "auth")
	ErrTimeout           = New(KindTimeout, "timeout")
	ErrCircuitOpen       = New(KindCircuitOpen, "circuit open")
	ErrCancelled         = New(KindCancelled, "cancelled")
	ErrParse             = New(KindParse, "parse")
	ErrUnknownSuggestion = New(KindUnknownSuggestion, "unknown suggestion")
	ErrUnknownDevice     = New(KindUnknownDevice, "unknown device")
	ErrUnknownNode       = New(KindUnknownNode, "unknown node")
	ErrInsufficientData  = New(KindInsufficientData, "insufficient data")
	ErrInvariant         = New(KindInvariant, "invariant violated")
)

// Of reports the Kind of err, if err is (or wraps) an *Error.
func Of(err error) (Kind, bool) {
	var e *Error
	if ok := asError(err, &e); ok {
		return e.Kind, true
	}
	return "", false
}

// asError is a tiny errors.As shim kept local to avoid importing errors
// twice for a one-line helper.
func asError(err error, target **Error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
