// Package health adapts the teacher's internal/healthchecker into a
// generic pinger checker used by store/composite's failover.
package health

import (
	"context"
	"time"
)

// Pinger is anything that can report liveness.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Config configures the periodic health check.
type Config struct {
	Interval time.Duration
	Timeout  time.Duration
}

// Checker polls a Pinger on an interval and calls onHealthy whenever a
// probe succeeds.
type Checker struct {
	pinger    Pinger
	config    Config
	stopOnce  chan struct{}
	onHealthy func()
}

// New constructs a Checker. Call Start to begin polling.
func New(pinger Pinger, config Config, onHealthy func()) *Checker {
	return &Checker{
		pinger:    pinger,
		config:    config,
		stopOnce:  make(chan struct{}),
		onHealthy: onHealthy,
	}
}

// Start begins background polling. A zero Interval disables polling.
func (c *Checker) Start() {
	if c.config.Interval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(c.config.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				c.probe()
			case <-c.stopOnce:
				return
			}
		}
	}()
}

// Stop ends background polling.
func (c *Checker) Stop() {
	select {
	case <-c.stopOnce:
	default:
		close(c.stopOnce)
	}
}

func (c *Checker) probe() {
	timeout := c.config.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := c.pinger.Ping(ctx); err == nil && c.onHealthy != nil {
		c.onHealthy()
	}
}

// Healthy runs a single synchronous probe and reports whether it succeeded.
func (c *Checker) Healthy(ctx context.Context) bool {
	return c.pinger.Ping(ctx) == nil
}
