package domain

import (
	"errors"
	"fmt"
)

// Kind is a stable error category that survives all the way to the API
// boundary, where it is mapped onto an HTTP status code.
type Kind string

const (
	KindNotFound          Kind = "not_found"
	KindForbidden         Kind = "forbidden"
	KindInvalidInput      Kind = "invalid_input"
	KindConflict          Kind = "conflict"
	KindInvalidTransition Kind = "invalid_transition"
	KindGatewayError      Kind = "gateway_error"
	KindInternal          Kind = "internal"
)

// Error carries a Kind, a human-readable message and optional structured
// details (e.g. the available quantity on an insufficient-stock conflict).
type Error struct {
	Kind    Kind
	Message string
	Details map[string]any
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// Is makes errors.Is(err, &Error{Kind: k}) match on Kind alone.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Kind == t.Kind
}

func NotFound(msg string) *Error {
	return &Error{Kind: KindNotFound, Message: msg}
}

func Forbidden(msg string) *Error {
	return &Error{Kind: KindForbidden, Message: msg}
}

func InvalidInput(msg string) *Error {
	return &Error{Kind: KindInvalidInput, Message: msg}
}

func Conflict(msg string, details map[string]any) *Error {
	return &Error{Kind: KindConflict, Message: msg, Details: details}
}

func InvalidTransition(msg string) *Error {
	return &Error{Kind: KindInvalidTransition, Message: msg}
}

func GatewayError(msg string, cause error) *Error {
	return &Error{Kind: KindGatewayError, Message: msg, cause: cause}
}

func Internal(msg string, cause error) *Error {
	return &Error{Kind: KindInternal, Message: msg, cause: cause}
}

// KindOf extracts the Kind of err, defaulting to KindInternal for errors that
// did not originate in this package.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}
