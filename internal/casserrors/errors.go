// Package casserrors provides the closed error taxonomy for the search core.
//
// Every error that crosses a component boundary is one of seven kinds;
// library- or parser-specific errors are wrapped before they escape.
package casserrors

import (
	"errors"
	"fmt"
)

// Kind is one of the seven closed error variants.
type Kind string

const (
	// KindInvalidInput covers bad dimension, empty query, unknown filter value.
	KindInvalidInput Kind = "InvalidInput"
	// KindCorrupt covers CRC failure, file size mismatch, out-of-bounds offset.
	KindCorrupt Kind = "Corrupt"
	// KindUnavailable covers missing model files or a daemon that isn't running.
	KindUnavailable Kind = "Unavailable"
	// KindOverloaded covers daemon backpressure with a retry-after hint.
	KindOverloaded Kind = "Overloaded"
	// KindTimeout covers an exceeded per-call deadline.
	KindTimeout Kind = "Timeout"
	// KindCancelled covers cooperative cancellation observed by the planner.
	KindCancelled Kind = "Cancelled"
	// KindFailed covers generic internal failures.
	KindFailed Kind = "Failed"
)

// Error is the structured error type used across the search core.
type Error struct {
	Kind       Kind
	Message    string
	Details    map[string]string
	Cause      error
	RetryAfter *int // milliseconds, set only for KindOverloaded
	Suggestion string
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

// Unwrap supports errors.Is/As chaining to the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches by Kind, so errors.Is treats two errors of the same kind as
// equivalent regardless of message or cause.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Kind == t.Kind
	}
	return false
}

// WithDetail attaches a key-value detail and returns the error for chaining.
func (e *Error) WithDetail(key, value string) *Error {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithSuggestion attaches an actionable suggestion and returns the error for chaining.
func (e *Error) WithSuggestion(s string) *Error {
	e.Suggestion = s
	return e
}

// New creates an Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap creates an Error of the given kind wrapping an existing error.
func Wrap(kind Kind, message string, cause error) *Error {
	if cause == nil {
		return nil
	}
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Overloaded creates a KindOverloaded error carrying a retry-after hint in milliseconds.
func Overloaded(message string, retryAfterMs int) *Error {
	return &Error{Kind: KindOverloaded, Message: message, RetryAfter: &retryAfterMs}
}

// KindOf extracts the Kind from err, or "" if err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsKind reports whether err is an *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// Retryable reports whether the error kind permits a caller-driven retry
// (Overloaded, and Timeout per the planner's reconnect-and-retry policy).
func Retryable(err error) bool {
	switch KindOf(err) {
	case KindOverloaded, KindTimeout:
		return true
	default:
		return false
	}
}
