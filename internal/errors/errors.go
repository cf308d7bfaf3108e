// Package errors implements the control plane's error taxonomy as a
// small tagged-union type instead of exception-style control flow.
// Every fallible operation in the supervisor returns a *Error (or a
// plain wrapped error for truly local failures). The control loop
// returns such errors to its caller without inspecting Kind; the CLI
// entrypoint checks for KindInvariantViolation to choose exit code 2.
package errors

import (
	"errors"
	"fmt"
)

// Kind classifies a failure not by Go type, but by how the control
// loop must react to it.
type Kind string

const (
	// KindInvariantViolation marks corrupted/impossible state. Always fatal.
	KindInvariantViolation Kind = "invariant_violation"

	// KindTransientIO marks a retryable I/O failure (KV store, filesystem, subprocess spawn).
	KindTransientIO Kind = "transient_io"

	// KindProviderFailure marks a classified provider-process failure.
	KindProviderFailure Kind = "provider_failure"

	// KindValidationFailure marks a failed acceptance criterion; never halts the loop by itself.
	KindValidationFailure Kind = "validation_failure"

	// KindAmbiguity marks an agent response that asked the operator a question.
	KindAmbiguity Kind = "ambiguity"
)

// Error is the supervisor's structured error type.
type Error struct {
	Kind    Kind
	Message string
	Details string
	Cause   error
}

// New creates an Error with no underlying cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf creates an Error with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind and message to an underlying error.
func Wrap(err error, kind Kind, message string) *Error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Message: message, Cause: err}
}

// Wrapf is Wrap with a formatted message.
func Wrapf(err error, kind Kind, format string, args ...any) *Error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: err}
}

// WithDetails attaches free-form details, modifying e in place.
func (e *Error) WithDetails(details string) *Error {
	e.Details = details
	return e
}

// WithDetailsf attaches formatted details, modifying e in place.
func (e *Error) WithDetailsf(format string, args ...any) *Error {
	e.Details = fmt.Sprintf(format, args...)
	return e
}

func (e *Error) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Kind, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap exposes the underlying cause to errors.Is/errors.As.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether err carries the given Kind.
func Is(err error, kind Kind) bool {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind == kind
	}
	return false
}

// IsFatal reports whether err must stop the control loop outright:
// only invariant violations qualify. Provider and validation failures
// are absorbed by retry, backoff, or blocking the task; critical halts
// are states the loop writes itself, not errors that bubble up.
func IsFatal(err error) bool {
	var appErr *Error
	if !errors.As(err, &appErr) {
		return false
	}
	return appErr.Kind == KindInvariantViolation
}
