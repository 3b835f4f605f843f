// Package autherr defines the failure taxonomy of a login attempt.
//
// Every terminal failure carries a Kind so the CLI can map it to a distinct
// exit code and print actionable guidance.
package autherr

import (
	"errors"
	"fmt"
)

// Kind identifies a class of login failure.
type Kind string

// Failure kinds
const (
	// KindPortOutOfRange is returned when the port is outside 1024-65535
	KindPortOutOfRange Kind = "port_out_of_range"

	// KindPortUnavailable is returned when the port cannot be bound (in use or TIME_WAIT)
	KindPortUnavailable Kind = "port_unavailable"

	// KindListenerBindFailed is returned when binding fails for a reason other than the port being taken
	KindListenerBindFailed Kind = "listener_bind_failed"

	// KindTimeout is returned when no callback arrives in time
	KindTimeout Kind = "timeout"

	// KindStateMismatch is returned when the callback state does not match the attempt
	KindStateMismatch Kind = "state_mismatch"

	// KindAuthorizationDenied is returned when the user or provider declined the request
	KindAuthorizationDenied Kind = "authorization_denied"

	// KindProviderError is returned for error or malformed callbacks and provider failures
	KindProviderError Kind = "provider_error"

	// KindExchangeFailed is returned when the token endpoint rejects the code
	KindExchangeFailed Kind = "exchange_failed"

	// KindCacheCleanupWarning is a non-fatal cache hygiene problem
	KindCacheCleanupWarning Kind = "cache_cleanup_warning"

	// KindCancelled is returned when the operator interrupts the attempt
	KindCancelled Kind = "cancelled"
)

// Error is a login failure with an operator-facing hint.
type Error struct {
	// Kind is the failure class
	Kind Kind

	// Message describes what went wrong
	Message string

	// Hint suggests what the operator can do next (may be empty)
	Hint string

	// Cause is the underlying error
	Cause error
}

// Error returns the error message
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates a new error of the given kind.
func New(kind Kind, message string, cause error) *Error {
	return &Error{
		Kind:    kind,
		Message: message,
		Cause:   cause,
	}
}

// Newf creates a new error of the given kind with a formatted message and no cause.
func Newf(kind Kind, format string, args ...any) *Error {
	return New(kind, fmt.Sprintf(format, args...), nil)
}

// WithHint sets the operator hint and returns the error for chaining.
func (e *Error) WithHint(format string, args ...any) *Error {
	e.Hint = fmt.Sprintf(format, args...)
	return e
}

// KindOf returns the Kind of the first *Error in err's chain, or "" if there is none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// HintOf returns the hint of the first *Error in err's chain.
func HintOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Hint
	}
	return ""
}

// Process exit codes per failure kind
const (
	ExitGeneric             = 1
	ExitPortOutOfRange      = 10
	ExitPortUnavailable     = 11
	ExitListenerBindFailed  = 12
	ExitTimeout             = 13
	ExitStateMismatch       = 14
	ExitAuthorizationDenied = 15
	ExitProviderError       = 16
	ExitExchangeFailed      = 17
	ExitCancelled           = 130
)

var exitCodes = map[Kind]int{
	KindPortOutOfRange:      ExitPortOutOfRange,
	KindPortUnavailable:     ExitPortUnavailable,
	KindListenerBindFailed:  ExitListenerBindFailed,
	KindTimeout:             ExitTimeout,
	KindStateMismatch:       ExitStateMismatch,
	KindAuthorizationDenied: ExitAuthorizationDenied,
	KindProviderError:       ExitProviderError,
	KindExchangeFailed:      ExitExchangeFailed,
	KindCancelled:           ExitCancelled,
}

// ExitCode maps err to a process exit code. nil maps to 0.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	if code, ok := exitCodes[KindOf(err)]; ok {
		return code
	}
	return ExitGeneric
}
