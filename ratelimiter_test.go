package fluxgate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fluxgate/fluxgate/resilience"
	"github.com/fluxgate/fluxgate/store"
)

// fakeBackend is a minimal store.Backend test double: it returns the
// configured results (or error) on every call, recording calls so tests
// can assert on TryConsume arguments.
type fakeBackend struct {
	results []store.BandResult
	err     error
	calls   int
	lastReq store.ConsumeRequest
}

func (f *fakeBackend) TryConsume(_ context.Context, req store.ConsumeRequest) ([]store.BandResult, error) {
	f.calls++
	f.lastReq = req
	if f.err != nil {
		return nil, f.err
	}
	return f.results, nil
}

func (f *fakeBackend) Close() error { return nil }

func bandOf(t *testing.T, window time.Duration, capacity int64, label string) Band {
	t.Helper()
	b, err := NewBand(window, capacity, label)
	require.NoError(t, err)
	return b
}

func mustRule(t *testing.T, opts ...func(*RuleBuilder) *RuleBuilder) Rule {
	t.Helper()
	builder := NewRule("r1").Scope(ScopeGlobal).RuleSetId("rs1").AddBand(bandOf(t, time.Second, 10, "burst"))
	for _, opt := range opts {
		builder = opt(builder)
	}
	rule, err := builder.Build()
	require.NoError(t, err)
	return rule
}

func TestRateLimiterCheckAllowed(t *testing.T) {
	backend := &fakeBackend{results: []store.BandResult{{Consumed: true, RemainingTokens: 9}}}
	limiter := NewRateLimiter(backend, nil)

	rule := mustRule(t)
	ruleSet := RuleSet{Id: "rs1", Rules: []Rule{rule}}

	verdict, err := limiter.Check(context.Background(), ruleSet, RequestContext{}, 1)
	require.NoError(t, err)
	require.True(t, verdict.Allowed)
	require.Equal(t, int64(9), verdict.RemainingTokens)
	require.Equal(t, int64(0), verdict.NanosToWaitForRefill)
	require.Equal(t, 1, backend.calls)
}

func TestRateLimiterCheckRejectedAcrossBands(t *testing.T) {
	backend := &fakeBackend{results: []store.BandResult{
		{Consumed: true, RemainingTokens: 5},
		{Consumed: false, RemainingTokens: 0, NanosToWait: int64(2 * time.Second)},
	}}
	limiter := NewRateLimiter(backend, nil)

	rule := mustRule(t, func(b *RuleBuilder) *RuleBuilder {
		return b.AddBand(bandOf(t, time.Minute, 100, "sustained"))
	})
	ruleSet := RuleSet{Id: "rs1", Rules: []Rule{rule}}

	verdict, err := limiter.Check(context.Background(), ruleSet, RequestContext{}, 1)
	require.NoError(t, err)
	require.False(t, verdict.Allowed)
	require.Equal(t, int64(0), verdict.RemainingTokens, "the tightest band's remaining wins")
	require.Equal(t, int64(2*time.Second), verdict.NanosToWaitForRefill)
}

func TestRateLimiterCheckNoMatchingRule(t *testing.T) {
	backend := &fakeBackend{}
	limiter := NewRateLimiter(backend, nil)

	ruleSet := RuleSet{Id: "rs1", Rules: []Rule{{Id: "r1", Enabled: false}}}
	verdict, err := limiter.Check(context.Background(), ruleSet, RequestContext{}, 1)
	require.NoError(t, err)
	require.True(t, verdict.Allowed)
	require.Equal(t, unlimitedRemaining, verdict.RemainingTokens)
	require.Equal(t, 0, backend.calls)
}

func TestRateLimiterCheckRejectsNonPositivePermits(t *testing.T) {
	limiter := NewRateLimiter(&fakeBackend{}, nil)
	ruleSet := RuleSet{Id: "rs1", Rules: []Rule{mustRule(t)}}

	_, err := limiter.Check(context.Background(), ruleSet, RequestContext{}, 0)
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrConfig))
}

func TestRateLimiterCheckWrapsStoreErrors(t *testing.T) {
	backend := &fakeBackend{err: store.ErrUnavailable}
	limiter := NewRateLimiter(backend, nil)
	ruleSet := RuleSet{Id: "rs1", Rules: []Rule{mustRule(t)}}

	_, err := limiter.Check(context.Background(), ruleSet, RequestContext{}, 1)
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrStoreUnavailable))
}

func TestRateLimiterCheckMapsCircuitOpen(t *testing.T) {
	backend := &fakeBackend{err: resilience.ErrCircuitOpen}
	limiter := NewRateLimiter(backend, nil)
	ruleSet := RuleSet{Id: "rs1", Rules: []Rule{mustRule(t)}}

	_, err := limiter.Check(context.Background(), ruleSet, RequestContext{}, 1)
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrCircuitOpen))
}

func TestRateLimiterBuildsOneBandSpecPerBand(t *testing.T) {
	backend := &fakeBackend{results: []store.BandResult{
		{Consumed: true}, {Consumed: true},
	}}
	limiter := NewRateLimiter(backend, nil)

	rule := mustRule(t, func(b *RuleBuilder) *RuleBuilder {
		return b.AddBand(bandOf(t, time.Minute, 100, "sustained"))
	})
	ruleSet := RuleSet{Id: "rs1", Rules: []Rule{rule}}

	_, err := limiter.Check(context.Background(), ruleSet, RequestContext{ClientIp: "9.9.9.9"}, 3)
	require.NoError(t, err)
	require.Len(t, backend.lastReq.Bands, 2)
	require.Equal(t, int64(3), backend.lastReq.Permits)
	require.Equal(t, "fluxgate:rs1:r1:global", backend.lastReq.Key, "every band shares one bucket key")
	require.Equal(t, "burst", backend.lastReq.Bands[0].Label)
	require.Equal(t, "sustained", backend.lastReq.Bands[1].Label)
}
