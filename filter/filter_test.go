package filter

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"

	"github.com/fluxgate/fluxgate"
	"github.com/fluxgate/fluxgate/store"
)

type fakeBackend struct {
	results []store.BandResult
	err     error
}

func (f *fakeBackend) TryConsume(context.Context, store.ConsumeRequest) ([]store.BandResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.results, nil
}

func (f *fakeBackend) Close() error { return nil }

func bandOf(t *testing.T, window time.Duration, capacity int64, label string) fluxgate.Band {
	t.Helper()
	b, err := fluxgate.NewBand(window, capacity, label)
	require.NoError(t, err)
	return b
}

func newTestApp(t *testing.T, backend store.Backend, policy fluxgate.OnLimitExceedPolicy, cfg Config) *fiber.App {
	t.Helper()
	rule, err := fluxgate.NewRule("r1").
		Scope(fluxgate.ScopeGlobal).
		RuleSetId("rs1").
		OnLimitExceed(policy).
		AddBand(bandOf(t, time.Minute, 10, "sustained")).
		Build()
	require.NoError(t, err)

	provider := fluxgate.StaticProvider{"rs1": {Id: "rs1", Rules: []fluxgate.Rule{rule}}}
	limiter := fluxgate.NewRateLimiter(backend, nil)
	engine, err := fluxgate.NewEngine(fluxgate.WithProvider(provider), fluxgate.WithRateLimiter(limiter))
	require.NoError(t, err)

	cfg.RuleSetId = "rs1"
	f := New(engine, cfg)

	app := fiber.New()
	app.Use(f.Handler())
	app.Get("/api/*", func(c *fiber.Ctx) error { return c.SendString("ok") })
	return app
}

func TestHandlerAllowsMatchingRequest(t *testing.T) {
	backend := &fakeBackend{results: []store.BandResult{{Consumed: true, RemainingTokens: 9}}}
	app := newTestApp(t, backend, fluxgate.PolicyRejectRequest, Config{})

	resp, err := app.Test(httptest.NewRequest("GET", "/api/users", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.Equal(t, "9", resp.Header.Get("X-RateLimit-Remaining"))
}

func TestHandlerBypassesNonMatchingPath(t *testing.T) {
	backend := &fakeBackend{err: fluxgate.ErrStoreUnavailable}
	app := newTestApp(t, backend, fluxgate.PolicyRejectRequest, Config{Excludes: []string{"/api/**"}})

	resp, err := app.Test(httptest.NewRequest("GET", "/api/users", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode, "excluded path must never reach the engine")
}

func TestHandlerRejectsOverLimit(t *testing.T) {
	backend := &fakeBackend{results: []store.BandResult{
		{Consumed: false, RemainingTokens: 0, NanosToWait: int64(3 * time.Second)},
	}}
	app := newTestApp(t, backend, fluxgate.PolicyRejectRequest, Config{})

	resp, err := app.Test(httptest.NewRequest("GET", "/api/users", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusTooManyRequests, resp.StatusCode)
	require.Equal(t, "3", resp.Header.Get("Retry-After"))
}

func TestHandlerWaitForRefillSucceedsOnRetry(t *testing.T) {
	calls := 0
	backend := &waitBackend{
		onCall: func() ([]store.BandResult, error) {
			calls++
			if calls == 1 {
				return []store.BandResult{{Consumed: false, NanosToWait: int64(20 * time.Millisecond)}}, nil
			}
			return []store.BandResult{{Consumed: true, RemainingTokens: 1}}, nil
		},
	}
	app := newTestApp(t, backend, fluxgate.PolicyWaitForRefill, Config{})

	resp, err := app.Test(httptest.NewRequest("GET", "/api/users", nil), int(time.Second.Milliseconds()))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.Equal(t, 2, calls)
}

func TestHandlerWaitForRefillRejectsWhenWaitExceedsMax(t *testing.T) {
	backend := &fakeBackend{results: []store.BandResult{
		{Consumed: false, NanosToWait: int64(10 * time.Second)},
	}}
	app := newTestApp(t, backend, fluxgate.PolicyWaitForRefill, Config{MaxWaitTimeMs: 100})

	resp, err := app.Test(httptest.NewRequest("GET", "/api/users", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusTooManyRequests, resp.StatusCode)
}

type waitBackend struct {
	onCall func() ([]store.BandResult, error)
}

func (w *waitBackend) TryConsume(context.Context, store.ConsumeRequest) ([]store.BandResult, error) {
	return w.onCall()
}

func (w *waitBackend) Close() error { return nil }

func TestCancelledErrorIsMatchesSentinel(t *testing.T) {
	err := NewCancelledError(context.Canceled)
	require.ErrorIs(t, err, fluxgate.ErrCancelled)
}
