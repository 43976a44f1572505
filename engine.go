package fluxgate

import (
	"context"
	"fmt"
	"time"
)

// OnMissingRuleSetStrategy governs engine behavior when a rule-set id is
// not found (§4.7).
type OnMissingRuleSetStrategy string

const (
	OnMissingThrow OnMissingRuleSetStrategy = "THROW"
	OnMissingAllow OnMissingRuleSetStrategy = "ALLOW"
)

// EngineConfig configures an Engine. Use NewEngine with Option values
// rather than constructing this directly.
type EngineConfig struct {
	Provider         RuleSetProvider
	Limiter          *RateLimiter
	OnMissingRuleSet OnMissingRuleSetStrategy
	Metrics          MetricsRecorder
}

// Option configures an Engine, mirroring the teacher's functional-options
// style (ratelimit.Option in the teacher's options.go).
type Option func(*EngineConfig) error

// WithProvider sets the rule-set provider (typically a *CachingProvider).
func WithProvider(provider RuleSetProvider) Option {
	return func(c *EngineConfig) error {
		if provider == nil {
			return fmt.Errorf("fluxgate: provider cannot be nil")
		}
		c.Provider = provider
		return nil
	}
}

// WithRateLimiter sets the rate limiter (C4).
func WithRateLimiter(limiter *RateLimiter) Option {
	return func(c *EngineConfig) error {
		if limiter == nil {
			return fmt.Errorf("fluxgate: rate limiter cannot be nil")
		}
		c.Limiter = limiter
		return nil
	}
}

// WithOnMissingRuleSet sets the missing-rule-set strategy (default THROW).
func WithOnMissingRuleSet(strategy OnMissingRuleSetStrategy) Option {
	return func(c *EngineConfig) error {
		if strategy != OnMissingThrow && strategy != OnMissingAllow {
			return fmt.Errorf("fluxgate: invalid OnMissingRuleSetStrategy %q", strategy)
		}
		c.OnMissingRuleSet = strategy
		return nil
	}
}

// WithMetrics sets the metrics sink (C10). Defaults to a no-op recorder.
func WithMetrics(recorder MetricsRecorder) Option {
	return func(c *EngineConfig) error {
		c.Metrics = recorder
		return nil
	}
}

// Engine is C7: the single entry point, (ruleSetId, context) -> Verdict.
type Engine struct {
	config EngineConfig
}

// NewEngine builds an Engine from functional options.
func NewEngine(opts ...Option) (*Engine, error) {
	config := EngineConfig{OnMissingRuleSet: OnMissingThrow, Metrics: NoopMetrics{}}
	for _, opt := range opts {
		if err := opt(&config); err != nil {
			return nil, err
		}
	}
	if config.Provider == nil {
		return nil, fmt.Errorf("fluxgate: provider is required")
	}
	if config.Limiter == nil {
		return nil, fmt.Errorf("fluxgate: rate limiter is required")
	}
	return &Engine{config: config}, nil
}

// Check resolves ruleSetId via the configured provider and delegates to the
// rate limiter, applying the missing-rule-set policy (§4.7).
func (e *Engine) Check(ctx context.Context, ruleSetId string, reqCtx RequestContext, permits int64) (Verdict, error) {
	if permits == 0 {
		permits = 1
	}

	ruleSet, found, err := e.config.Provider.FindById(ctx, ruleSetId)
	if err != nil {
		return Verdict{}, NewOpError(ErrStoreUnavailable, "engine.findRuleSet", err)
	}
	if !found {
		if e.config.OnMissingRuleSet == OnMissingAllow {
			e.config.Metrics.RecordMissingRuleSet(ruleSetId)
			return allowedWithoutRule(), nil
		}
		return Verdict{}, NewOpError(ErrMissingRuleSet, ruleSetId, nil)
	}

	start := time.Now()
	verdict, err := e.config.Limiter.Check(ctx, *ruleSet, reqCtx, permits)
	e.config.Metrics.RecordLatency(ruleSetId, time.Since(start))
	if err != nil {
		e.config.Metrics.RecordError(ruleSetId, err)
		return Verdict{}, err
	}

	e.config.Metrics.RecordVerdict(ruleSetId, verdict)
	return verdict, nil
}
