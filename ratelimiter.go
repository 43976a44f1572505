package fluxgate

import (
	"context"
	"errors"
	"fmt"

	"github.com/fluxgate/fluxgate/resilience"
	"github.com/fluxgate/fluxgate/store"
)

// RateLimiter is C4: given a request, it picks a rule, resolves its key,
// composes the one bucket key shared by all of the rule's bands, and
// delegates to the token-bucket store in one atomic all-or-nothing call
// (§4.4).
type RateLimiter struct {
	backend  store.Backend
	resolver KeyResolver
}

// NewRateLimiter constructs a RateLimiter. resolver defaults to
// DefaultKeyResolver when nil.
func NewRateLimiter(backend store.Backend, resolver KeyResolver) *RateLimiter {
	if resolver == nil {
		resolver = DefaultKeyResolver
	}
	return &RateLimiter{backend: backend, resolver: resolver}
}

// Check evaluates ruleSet against ctx for the given number of permits,
// per §4.4. If no enabled rule matches, returns an unconditional allow.
func (rl *RateLimiter) Check(ctx context.Context, ruleSet RuleSet, reqCtx RequestContext, permits int64) (Verdict, error) {
	if permits <= 0 {
		return Verdict{}, NewOpError(ErrConfig, "limiter.permits", fmt.Errorf("permits must be positive, got %d", permits))
	}

	rule, ok := ruleSet.FirstMatch()
	if !ok {
		return allowedWithoutRule(), nil
	}

	scopeValue, err := rl.resolver.Resolve(rule, reqCtx)
	if err != nil {
		return Verdict{}, err
	}

	bucketKey := BucketKey(rule.RuleSetId, rule.Id, scopeValue)
	bands := make([]store.BandSpec, len(rule.Bands))
	for i, band := range rule.Bands {
		bands[i] = store.BandSpec{
			Label:       band.Label,
			WindowNanos: band.WindowNanos(),
			Capacity:    band.Capacity,
			TTL:         band.TTL(),
		}
	}

	results, err := rl.backend.TryConsume(ctx, store.ConsumeRequest{Key: bucketKey, Bands: bands, Permits: permits})
	if err != nil {
		if errors.Is(err, resilience.ErrCircuitOpen) {
			return Verdict{}, NewOpError(ErrCircuitOpen, "limiter.tryConsume", err)
		}
		if errors.Is(err, store.ErrInvalidRequest) {
			return Verdict{}, NewOpError(ErrConfig, "limiter.tryConsume", err)
		}
		return Verdict{}, NewOpError(ErrStoreUnavailable, "limiter.tryConsume", err)
	}

	verdict := Verdict{
		Allowed:         true,
		MatchedRule:     &rule,
		Key:             bucketKey,
		RemainingTokens: unlimitedRemaining,
	}
	for _, r := range results {
		if !r.Consumed {
			verdict.Allowed = false
		}
		if r.RemainingTokens < verdict.RemainingTokens {
			verdict.RemainingTokens = r.RemainingTokens
		}
		if r.NanosToWait > verdict.NanosToWaitForRefill {
			verdict.NanosToWaitForRefill = r.NanosToWait
		}
	}
	if verdict.Allowed {
		verdict.NanosToWaitForRefill = 0
	}
	return verdict, nil
}
