// Package fault defines the typed error taxonomy shared by the adapters,
// the resilience layer, and the orchestrator. Adapters raise *fault.Error
// values; the resilience layer uses Retryable to separate transient from
// terminal failures; the orchestrator maps kinds onto degradation paths
// and HTTP status codes.
package fault

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Kind classifies a failure. The zero value is KindUnknown.
type Kind int

const (
	KindUnknown Kind = iota
	// KindValidation: malformed input, rejected before any downstream call.
	KindValidation
	// KindUnavailable: transport failure or remote 5xx. Retryable.
	KindUnavailable
	// KindThrottled: provider rate limit. Retryable with backoff; may carry
	// a retry-after hint.
	KindThrottled
	// KindCircuitOpen: the breaker forbids the call. Terminal for this
	// request; triggers the degraded path in the orchestrator.
	KindCircuitOpen
	// KindDeadline: per-call or per-request deadline expired. Not retried.
	KindDeadline
	// KindConfig: dimension mismatch, missing credentials. Fatal for the caller.
	KindConfig
	// KindNotFound: referenced entity is absent; handled locally by filtering.
	KindNotFound
)

// String returns the snake_case name used in logs and API error codes.
func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindUnavailable:
		return "unavailable"
	case KindThrottled:
		return "throttled"
	case KindCircuitOpen:
		return "circuit_open"
	case KindDeadline:
		return "deadline_exceeded"
	case KindConfig:
		return "config_invalid"
	case KindNotFound:
		return "not_found"
	default:
		return "unknown"
	}
}

// Error is a classified failure from a dependency or the pipeline itself.
type Error struct {
	Kind Kind
	// Op names the failed operation, e.g. "embedding.embed" or "search.query".
	Op string
	// RetryAfter is the provider's retry-after hint, when it sent one.
	// Zero means no hint.
	RetryAfter time.Duration
	// Err is the underlying cause, possibly nil for synthesized errors.
	Err error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds a classified error wrapping cause.
func New(kind Kind, op string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Err: cause}
}

// Newf builds a classified error with a formatted message and no cause chain.
func Newf(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// KindOf extracts the Kind from an error chain. Context cancellation and
// deadline expiry classify as KindDeadline even when unwrapped; unclassified
// errors return KindUnknown.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return KindDeadline
	}
	return KindUnknown
}

// Retryable reports whether the resilience layer may retry after this error.
// Only throttling and transport unavailability are transient; everything
// else propagates immediately.
func Retryable(err error) bool {
	switch KindOf(err) {
	case KindThrottled, KindUnavailable:
		return true
	default:
		return false
	}
}

// RetryAfter returns the provider's retry-after hint from the chain, or zero.
func RetryAfter(err error) time.Duration {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.RetryAfter
	}
	return 0
}

// IsKind reports whether the chain contains a fault of the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
