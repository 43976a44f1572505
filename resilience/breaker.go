// Package resilience is the §4.8 envelope wrapping calls into the
// distributed store with retry and a circuit breaker. It never wraps
// in-process logic (cache lookups, key resolution) — only the store
// call itself.
package resilience

import (
	"sync/atomic"
	"time"
)

type breakerState int32

const (
	stateClosed breakerState = iota
	stateOpen
	stateHalfOpen
)

// FallbackStrategy governs what the envelope does while the breaker is
// OPEN.
type FallbackStrategy string

const (
	// FailOpen returns success without calling the store — a deliberate
	// degraded-availability choice for rate limiting.
	FailOpen FallbackStrategy = "FAIL_OPEN"
	// FailClosed rejects calls with a circuit-open error.
	FailClosed FallbackStrategy = "FAIL_CLOSED"
)

// BreakerConfig configures the circuit breaker half of the envelope.
type BreakerConfig struct {
	FailureThreshold              int
	WaitDurationInOpenState       time.Duration
	PermittedCallsInHalfOpenState int
	Fallback                      FallbackStrategy
}

// DefaultBreakerConfig matches §4.8's defaults.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold:              5,
		WaitDurationInOpenState:       30 * time.Second,
		PermittedCallsInHalfOpenState: 3,
		Fallback:                      FailClosed,
	}
}

func (c BreakerConfig) withDefaults() BreakerConfig {
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = 5
	}
	if c.WaitDurationInOpenState <= 0 {
		c.WaitDurationInOpenState = 30 * time.Second
	}
	if c.PermittedCallsInHalfOpenState <= 0 {
		c.PermittedCallsInHalfOpenState = 3
	}
	if c.Fallback == "" {
		c.Fallback = FailClosed
	}
	return c
}

// Breaker is the CLOSED/OPEN/HALF_OPEN state cell of §4.8. State
// transitions are compare-and-set on a single atomic word; counters
// reset on every transition.
type Breaker struct {
	config BreakerConfig

	state            int32 // atomic breakerState
	failureCount     int32 // atomic, counts consecutive failures while CLOSED
	halfOpenSuccess  int32 // atomic, counts consecutive successes while HALF_OPEN
	openedAtUnixNano int64 // atomic
}

// NewBreaker builds a Breaker starting CLOSED.
func NewBreaker(config BreakerConfig) *Breaker {
	return &Breaker{config: config.withDefaults()}
}

// Allow reports whether a call may be attempted right now, transitioning
// OPEN to HALF_OPEN once waitDurationInOpenState has elapsed.
func (b *Breaker) Allow() bool {
	switch breakerState(atomic.LoadInt32(&b.state)) {
	case stateOpen:
		openedAt := atomic.LoadInt64(&b.openedAtUnixNano)
		if time.Since(time.Unix(0, openedAt)) < b.config.WaitDurationInOpenState {
			return false
		}
		// Only one goroutine wins the CAS that flips to HALF_OPEN, but every
		// caller that reaches this point then sees HALF_OPEN and is admitted.
		atomic.CompareAndSwapInt32(&b.state, int32(stateOpen), int32(stateHalfOpen))
		return breakerState(atomic.LoadInt32(&b.state)) == stateHalfOpen
	default:
		return true
	}
}

// OnSuccess records a successful call.
func (b *Breaker) OnSuccess() {
	switch breakerState(atomic.LoadInt32(&b.state)) {
	case stateHalfOpen:
		if atomic.AddInt32(&b.halfOpenSuccess, 1) >= int32(b.config.PermittedCallsInHalfOpenState) {
			b.transitionTo(stateClosed)
		}
	case stateClosed:
		atomic.StoreInt32(&b.failureCount, 0)
	}
}

// OnFailure records a failed call.
func (b *Breaker) OnFailure() {
	switch breakerState(atomic.LoadInt32(&b.state)) {
	case stateHalfOpen:
		b.transitionTo(stateOpen)
	case stateClosed:
		if atomic.AddInt32(&b.failureCount, 1) >= int32(b.config.FailureThreshold) {
			b.transitionTo(stateOpen)
		}
	}
}

func (b *Breaker) transitionTo(s breakerState) {
	atomic.StoreInt32(&b.state, int32(s))
	atomic.StoreInt32(&b.failureCount, 0)
	atomic.StoreInt32(&b.halfOpenSuccess, 0)
	if s == stateOpen {
		atomic.StoreInt64(&b.openedAtUnixNano, time.Now().UnixNano())
	}
}

// State reports the breaker's current state as a metrics-friendly
// lowercase string.
func (b *Breaker) State() string {
	switch breakerState(atomic.LoadInt32(&b.state)) {
	case stateOpen:
		return "open"
	case stateHalfOpen:
		return "half_open"
	default:
		return "closed"
	}
}

// Fallback reports the configured OPEN-state fallback.
func (b *Breaker) Fallback() FallbackStrategy {
	return b.config.Fallback
}
