package resilience

import (
	"context"

	"github.com/fluxgate/fluxgate/store"
)

// Config configures an Envelope.
type Config struct {
	Retry   RetryConfig
	Breaker BreakerConfig
}

// DefaultConfig matches §4.8's retry and breaker defaults.
func DefaultConfig() Config {
	return Config{Retry: DefaultRetryConfig(), Breaker: DefaultBreakerConfig()}
}

// Envelope wraps a store.Backend with retry and a circuit breaker,
// itself implementing store.Backend so callers (the rate limiter) are
// unaware whether they are talking to a bare backend or a guarded one.
// It only guards TryConsume; Close and Ping pass through untouched.
type Envelope struct {
	backend store.Backend
	retry   RetryConfig
	breaker *Breaker
}

// New wraps backend with the resilience envelope.
func New(backend store.Backend, config Config) *Envelope {
	return &Envelope{
		backend: backend,
		retry:   config.Retry.withDefaults(),
		breaker: NewBreaker(config.Breaker),
	}
}

// TryConsume implements store.Backend. While the breaker is OPEN, no
// call reaches the backend: FAIL_OPEN synthesizes an allow for every
// band, FAIL_CLOSED returns ErrCircuitOpen (the caller maps this to
// fluxgate.ErrCircuitOpen at the fluxgate boundary).
func (e *Envelope) TryConsume(ctx context.Context, req store.ConsumeRequest) ([]store.BandResult, error) {
	if !e.breaker.Allow() {
		if e.breaker.Fallback() == FailOpen {
			return fallbackAllow(req), nil
		}
		return nil, ErrCircuitOpen
	}

	var results []store.BandResult
	err := do(ctx, e.retry, func() error {
		var callErr error
		results, callErr = e.backend.TryConsume(ctx, req)
		return callErr
	})
	if err != nil {
		e.breaker.OnFailure()
		return nil, err
	}
	e.breaker.OnSuccess()
	return results, nil
}

// Close releases the wrapped backend.
func (e *Envelope) Close() error {
	return e.backend.Close()
}

// Ping delegates to the wrapped backend if it supports health checks.
func (e *Envelope) Ping(ctx context.Context) error {
	if p, ok := e.backend.(store.Healthy); ok {
		return p.Ping(ctx)
	}
	return nil
}

// State reports the breaker's current state, for monitoring.
func (e *Envelope) State() string {
	return e.breaker.State()
}

func fallbackAllow(req store.ConsumeRequest) []store.BandResult {
	results := make([]store.BandResult, len(req.Bands))
	for i, band := range req.Bands {
		results[i] = store.BandResult{
			Consumed:        true,
			RemainingTokens: band.Capacity,
			NanosToWait:     0,
			ResetTimeMillis: 0,
		}
	}
	return results
}

var _ store.Backend = (*Envelope)(nil)
var _ store.Healthy = (*Envelope)(nil)
