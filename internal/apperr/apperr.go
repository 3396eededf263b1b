// Package apperr defines the error kinds surfaced by the sync, store,
// analysis and job layers.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies a failure for callers that need a machine-readable
// category alongside the human-readable message.
type Kind string

const (
	KindConnectivity Kind = "connectivity"
	KindValidation   Kind = "validation"
	KindNotFound     Kind = "not_found"
	KindIntegrity    Kind = "integrity"
)

// Error is a classified failure. Op names the operation that failed.
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	switch {
	case e.Op != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %s: %v", e.Kind, e.Op, e.Message, e.Err)
	case e.Op != "":
		return fmt.Sprintf("%s: %s: %s", e.Kind, e.Op, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	default:
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// New returns a classified error without an underlying cause.
func New(kind Kind, op, message string) *Error {
	return &Error{Kind: kind, Op: op, Message: message}
}

// Wrap returns a classified error wrapping err.
func Wrap(kind Kind, op string, err error, message string) *Error {
	return &Error{Kind: kind, Op: op, Message: message, Err: err}
}

// Connectivity wraps err as a connectivity failure.
func Connectivity(op string, err error) *Error {
	return &Error{Kind: KindConnectivity, Op: op, Message: "endpoint unreachable", Err: err}
}

// Validationf returns a validation failure with a formatted message.
func Validationf(op, format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Op: op, Message: fmt.Sprintf(format, args...)}
}

// NotFoundf returns a not-found failure with a formatted message.
func NotFoundf(op, format string, args ...any) *Error {
	return &Error{Kind: KindNotFound, Op: op, Message: fmt.Sprintf(format, args...)}
}

// KindOf reports the Kind of the first *Error in err's chain, or "" if
// err is unclassified.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Is reports whether err (or any error in its chain) has the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// IsNotFound reports whether err is a not-found failure.
func IsNotFound(err error) bool { return Is(err, KindNotFound) }

// IsConnectivity reports whether err is a connectivity failure.
func IsConnectivity(err error) bool { return Is(err, KindConnectivity) }

// IsIntegrity reports whether err is a store integrity failure.
func IsIntegrity(err error) bool { return Is(err, KindIntegrity) }

// Message returns the human-readable text for err, preferring the
// classified message when one is present.
func Message(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		if e.Err != nil {
			return fmt.Sprintf("%s: %v", e.Message, e.Err)
		}
		return e.Message
	}
	return err.Error()
}
