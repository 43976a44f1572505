// Package composite provides automatic failover between a primary and a
// secondary token-bucket store, adapted from the teacher's
// internal/backends/composite circuit breaker. This is a store-level
// failover layer beneath the resilience envelope's own circuit breaker
// (resilience/breaker.go): composite swaps backends transparently so
// calls keep succeeding in degraded mode, while the envelope's breaker
// decides whether the caller should even see an allow/reject verdict.
package composite

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/fluxgate/fluxgate/internal/health"
	"github.com/fluxgate/fluxgate/store"
)

type breakerState int32

const (
	stateClosed breakerState = iota
	stateHalfOpen
	stateOpen
)

// BreakerConfig configures the store-failover breaker.
type BreakerConfig struct {
	FailureThreshold int32
	RecoveryTimeout  time.Duration
}

// Config configures the composite store.
type Config struct {
	Primary        store.Backend
	Secondary      store.Backend
	CircuitBreaker BreakerConfig
	HealthChecker  health.Config
}

// Backend fails over from Primary to Secondary when Primary trips its
// breaker, and recovers once the health checker observes Primary is
// healthy again.
type Backend struct {
	primary, secondary store.Backend

	state        int32 // atomic breakerState
	failureCount int32 // atomic
	openedAt     int64 // atomic unix nanos

	config  BreakerConfig
	checker *health.Checker
}

// New constructs a composite store. Both Primary and Secondary are
// required.
func New(cfg Config) (*Backend, error) {
	if cfg.Primary == nil {
		return nil, fmt.Errorf("fluxgate/store/composite: primary backend required")
	}
	if cfg.Secondary == nil {
		return nil, fmt.Errorf("fluxgate/store/composite: secondary backend required")
	}
	if cfg.CircuitBreaker.FailureThreshold <= 0 {
		cfg.CircuitBreaker.FailureThreshold = 5
	}
	if cfg.CircuitBreaker.RecoveryTimeout <= 0 {
		cfg.CircuitBreaker.RecoveryTimeout = 30 * time.Second
	}
	if cfg.HealthChecker.Interval <= 0 {
		cfg.HealthChecker.Interval = 10 * time.Second
	}
	if cfg.HealthChecker.Timeout <= 0 {
		cfg.HealthChecker.Timeout = 2 * time.Second
	}

	b := &Backend{
		primary:   cfg.Primary,
		secondary: cfg.Secondary,
		config:    cfg.CircuitBreaker,
	}
	b.checker = health.New(healthPinger{cfg.Primary}, cfg.HealthChecker, b.onPrimaryHealthy)
	b.checker.Start()
	return b, nil
}

type healthPinger struct{ backend store.Backend }

func (h healthPinger) Ping(ctx context.Context) error {
	if p, ok := h.backend.(store.Healthy); ok {
		return p.Ping(ctx)
	}
	_, err := h.backend.TryConsume(ctx, store.ConsumeRequest{Permits: 0})
	return err
}

func (b *Backend) isOpen() bool {
	current := breakerState(atomic.LoadInt32(&b.state))
	switch current {
	case stateOpen:
		openedAt := atomic.LoadInt64(&b.openedAt)
		if time.Since(time.Unix(0, openedAt)) >= b.config.RecoveryTimeout {
			if atomic.CompareAndSwapInt32(&b.state, int32(stateOpen), int32(stateHalfOpen)) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

func (b *Backend) shouldTrip(err error) bool {
	if err == nil {
		return false
	}
	if atomic.AddInt32(&b.failureCount, 1) >= b.config.FailureThreshold {
		b.open()
		return true
	}
	return false
}

func (b *Backend) open() {
	atomic.StoreInt32(&b.state, int32(stateOpen))
	atomic.StoreInt64(&b.openedAt, time.Now().UnixNano())
}

func (b *Backend) close() {
	atomic.StoreInt32(&b.state, int32(stateClosed))
	atomic.StoreInt32(&b.failureCount, 0)
}

func (b *Backend) onPrimaryHealthy() {
	if breakerState(atomic.LoadInt32(&b.state)) == stateOpen {
		b.close()
	}
}

// TryConsume tries the primary, failing over to the secondary once the
// breaker trips; a successful half-open probe closes the breaker again.
func (b *Backend) TryConsume(ctx context.Context, req store.ConsumeRequest) ([]store.BandResult, error) {
	if b.isOpen() {
		return b.secondary.TryConsume(ctx, req)
	}

	result, err := b.primary.TryConsume(ctx, req)
	if b.shouldTrip(err) {
		return b.secondary.TryConsume(ctx, req)
	}
	if err == nil {
		if breakerState(atomic.LoadInt32(&b.state)) == stateHalfOpen {
			b.close()
		} else {
			atomic.StoreInt32(&b.failureCount, 0)
		}
	}
	return result, err
}

// State reports the current breaker state, for monitoring.
func (b *Backend) State() string {
	switch breakerState(atomic.LoadInt32(&b.state)) {
	case stateOpen:
		return "open"
	case stateHalfOpen:
		return "half_open"
	default:
		return "closed"
	}
}

// Close stops health monitoring and closes both backends.
func (b *Backend) Close() error {
	b.checker.Stop()
	primaryErr := b.primary.Close()
	secondaryErr := b.secondary.Close()
	if primaryErr != nil {
		return primaryErr
	}
	return secondaryErr
}
