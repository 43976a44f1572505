package fluxgate

import (
	"errors"
	"fmt"
)

// Sentinel errors identifying the kinds of failure the core can surface.
// Matching these with errors.Is lets callers branch on kind without
// depending on a concrete type.
var (
	// ErrConfig marks an invalid rule, band, scope, or configuration value.
	// Fails fast at build/load time; the offending rule-set is never cached.
	ErrConfig = errors.New("fluxgate: config error")

	// ErrStoreUnavailable marks the shared token-bucket store being
	// unreachable or timing out. The rate limiter applies it to store
	// errors after the resilience envelope's retries are exhausted.
	ErrStoreUnavailable = errors.New("fluxgate: store unavailable")

	// ErrCircuitOpen is surfaced when the resilience envelope's circuit
	// breaker is OPEN with fallback strategy FAIL_CLOSED.
	ErrCircuitOpen = errors.New("fluxgate: circuit breaker open")

	// ErrMissingRuleSet marks a rule-set id the provider could not find.
	ErrMissingRuleSet = errors.New("fluxgate: rule-set not found")

	// ErrCancelled marks a request cancelled during a retry or
	// wait-for-refill sleep.
	ErrCancelled = errors.New("fluxgate: cancelled")
)

// OpError wraps an underlying cause with the logical operation that
// produced it, e.g. "store:ConsumeToken" or "ruleset:findById". It
// implements Unwrap and Is so callers can match both the concrete cause
// and the sentinel kind via errors.Is.
type OpError struct {
	Op    string
	Kind  error
	Cause error
}

func (e *OpError) Error() string {
	if e == nil {
		return ""
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Op)
}

func (e *OpError) Unwrap() error { return e.Cause }

func (e *OpError) Is(target error) bool {
	return target == e.Kind
}

// NewOpError builds an OpError tagging cause with kind and op. If cause is
// nil, kind alone is returned unwrapped.
func NewOpError(kind error, op string, cause error) error {
	if cause == nil {
		return kind
	}
	return &OpError{Op: op, Kind: kind, Cause: cause}
}
