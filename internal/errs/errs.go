// Package errs defines the error taxonomy shared across the orchestration
// core. Every error that crosses a package boundary carries a Kind so
// callers can branch on category without string matching.
package errs

import (
	"errors"
	"fmt"
)

// Kind categorizes an error for retry logic, HTTP status mapping, and
// logging. Unlike a sentinel error, a Kind survives fmt.Errorf("%w", ...)
// wrapping through Wrap below.
type Kind string

const (
	KindAuth         Kind = "auth"
	KindQuota        Kind = "quota_exceeded"
	KindRateLimit    Kind = "rate_limit"
	KindUpstream     Kind = "upstream"
	KindTimeout      Kind = "timeout"
	KindMissingInput Kind = "missing_input"
	KindLoopBound    Kind = "loop_bound"
	KindToolStatus   Kind = "tool_status"
	KindCancelled    Kind = "cancelled"
	KindConfig       Kind = "config"
	KindNotFound     Kind = "not_found"
)

// IsRetryable reports whether an error of this kind may succeed on retry.
func (k Kind) IsRetryable() bool {
	switch k {
	case KindRateLimit, KindUpstream, KindTimeout:
		return true
	default:
		return false
	}
}

// Error is the concrete error type carrying a Kind, a message, and an
// optional cause.
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

// New constructs an *Error with no cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap constructs an *Error carrying cause, so errors.Is/As on cause still
// works through the chain.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// KindOf extracts the Kind from an error chain, returning "" if none of the
// wrapped errors are an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Is reports whether err's chain contains an *Error of the given kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

var (
	// ErrLoopBoundExceeded is returned when a goto chain exceeds its cap.
	ErrLoopBoundExceeded = New(KindLoopBound, "goto bound exceeded")
	// ErrCancelled is returned when a caller-supplied context is cancelled
	// mid-execution.
	ErrCancelled = New(KindCancelled, "execution cancelled")
)
