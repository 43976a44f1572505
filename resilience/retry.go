package resilience

import (
	"context"
	"errors"
	"time"

	retry "github.com/avast/retry-go/v4"

	"github.com/fluxgate/fluxgate/store"
)

// RetryConfig configures the §4.8 retry policy.
type RetryConfig struct {
	Attempts     uint
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
	IsRetryable  func(err error) bool
}

// DefaultRetryConfig matches §4.8's defaults: 3 attempts, 100ms initial
// backoff, 2x multiplier, 2s max backoff.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		Attempts:     3,
		InitialDelay: 100 * time.Millisecond,
		Multiplier:   2.0,
		MaxDelay:     2 * time.Second,
		IsRetryable:  IsRetryable,
	}
}

func (c RetryConfig) withDefaults() RetryConfig {
	if c.Attempts == 0 {
		c.Attempts = 3
	}
	if c.InitialDelay <= 0 {
		c.InitialDelay = 100 * time.Millisecond
	}
	if c.Multiplier <= 0 {
		c.Multiplier = 2.0
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 2 * time.Second
	}
	if c.IsRetryable == nil {
		c.IsRetryable = IsRetryable
	}
	return c
}

// IsRetryable is the default retry predicate (§4.8): retries on
// store.ErrUnavailable, context.DeadlineExceeded, and any error that
// self-identifies as retryable via a Retryable() bool method. Everything
// else, including context.Canceled, propagates immediately.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, store.ErrUnavailable) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var r interface{ Retryable() bool }
	if errors.As(err, &r) {
		return r.Retryable()
	}
	return false
}

// do runs fn under the retry policy, honoring ctx cancellation between
// attempts.
func do(ctx context.Context, cfg RetryConfig, fn func() error) error {
	cfg = cfg.withDefaults()
	delay := func(n uint, _ error, _ *retry.Config) time.Duration {
		d := float64(cfg.InitialDelay)
		for i := uint(0); i < n; i++ {
			d *= cfg.Multiplier
		}
		if time.Duration(d) > cfg.MaxDelay {
			return cfg.MaxDelay
		}
		return time.Duration(d)
	}
	return retry.Do(
		fn,
		retry.Context(ctx),
		retry.Attempts(cfg.Attempts),
		retry.DelayType(delay),
		retry.LastErrorOnly(true),
		retry.RetryIf(cfg.IsRetryable),
	)
}
