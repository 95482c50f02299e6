package gateway

import (
	"errors"
	"fmt"
)

// Kind classifies a gateway failure. Callers branch on kinds to decide
// whether an error is retryable, user-facing, or an expected branch of a
// compound mutation (notFound).
type Kind string

const (
	KindNetwork    Kind = "network"
	KindTimeout    Kind = "timeout"
	KindPermission Kind = "permission"
	KindNotFound   Kind = "not_found"
	KindValidation Kind = "validation"
	KindConfig     Kind = "config"
	KindUnknown    Kind = "unknown"
)

// Error is the typed error returned by every gateway operation.
type Error struct {
	Kind    Kind
	Message string

	// Field carries field-level detail for validation errors when available.
	Field string

	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := string(e.Kind) + ": " + e.Message
	if e.Field != "" {
		msg += " (field " + e.Field + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes the underlying cause for errors.Is/As chains.
func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates a typed gateway error.
func NewError(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// WrapError wraps an underlying cause with a kind. The original error stays
// reachable through errors.Unwrap.
func WrapError(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// KindOf extracts the Kind from an error chain. Errors that never passed
// through the gateway report KindUnknown.
func KindOf(err error) Kind {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Kind
	}
	return KindUnknown
}

// IsNotFound reports whether err is a notFound gateway error. Compound
// mutations treat this as an expected branch, not a failure.
func IsNotFound(err error) bool {
	return KindOf(err) == KindNotFound
}

// Retryable reports whether the gateway's own bounded retry applies.
// Permission, notFound and validation failures are surfaced immediately.
func (k Kind) Retryable() bool {
	return k == KindNetwork || k == KindTimeout
}
