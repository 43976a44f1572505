package resilience

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fluxgate/fluxgate/store"
)

type stubBackend struct {
	err     error
	results []store.BandResult
	calls   int
}

func (s *stubBackend) TryConsume(context.Context, store.ConsumeRequest) ([]store.BandResult, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.results, nil
}

func (s *stubBackend) Close() error { return nil }

func fastConfig(fallback FallbackStrategy) Config {
	return Config{
		Retry:   RetryConfig{Attempts: 1, InitialDelay: time.Millisecond, Multiplier: 2, MaxDelay: time.Millisecond},
		Breaker: BreakerConfig{FailureThreshold: 2, WaitDurationInOpenState: 10 * time.Millisecond, PermittedCallsInHalfOpenState: 1, Fallback: fallback},
	}
}

func TestEnvelopeTryConsumePassesThroughOnSuccess(t *testing.T) {
	backend := &stubBackend{results: []store.BandResult{{Consumed: true, RemainingTokens: 4}}}
	env := New(backend, fastConfig(FailClosed))

	results, err := env.TryConsume(context.Background(), store.ConsumeRequest{Permits: 1})
	require.NoError(t, err)
	require.Equal(t, int64(4), results[0].RemainingTokens)
	require.Equal(t, "closed", env.State())
}

func TestEnvelopeOpensBreakerAndFailsClosed(t *testing.T) {
	backend := &stubBackend{err: store.ErrUnavailable}
	env := New(backend, fastConfig(FailClosed))

	req := store.ConsumeRequest{Permits: 1}
	_, err := env.TryConsume(context.Background(), req)
	require.Error(t, err)
	_, err = env.TryConsume(context.Background(), req)
	require.Error(t, err)
	require.Equal(t, "open", env.State())

	_, err = env.TryConsume(context.Background(), req)
	require.ErrorIs(t, err, ErrCircuitOpen)
}

func TestEnvelopeOpenBreakerFailsOpen(t *testing.T) {
	backend := &stubBackend{err: store.ErrUnavailable}
	env := New(backend, fastConfig(FailOpen))

	req := store.ConsumeRequest{
		Key:     "k",
		Bands:   []store.BandSpec{{Label: "default", Capacity: 10}},
		Permits: 1,
	}
	_, err := env.TryConsume(context.Background(), req)
	require.Error(t, err)
	_, err = env.TryConsume(context.Background(), req)
	require.Error(t, err)
	require.Equal(t, "open", env.State())

	results, err := env.TryConsume(context.Background(), req)
	require.NoError(t, err)
	require.True(t, results[0].Consumed)
	require.Equal(t, int64(10), results[0].RemainingTokens)
}

func TestEnvelopeHalfOpenProbeCloses(t *testing.T) {
	backend := &stubBackend{err: store.ErrUnavailable}
	env := New(backend, fastConfig(FailClosed))

	req := store.ConsumeRequest{Permits: 1}
	env.TryConsume(context.Background(), req)
	env.TryConsume(context.Background(), req)
	require.Equal(t, "open", env.State())

	time.Sleep(15 * time.Millisecond)
	backend.err = nil
	backend.results = []store.BandResult{{Consumed: true}}

	_, err := env.TryConsume(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, "closed", env.State())
}

func TestEnvelopePingReturnsNilWhenBackendHasNoPing(t *testing.T) {
	backend := &stubBackend{}
	env := New(backend, DefaultConfig())
	require.NoError(t, env.Ping(context.Background()))
}

func TestEnvelopeCloseDelegates(t *testing.T) {
	backend := &stubBackend{}
	env := New(backend, DefaultConfig())
	require.NoError(t, env.Close())
}
