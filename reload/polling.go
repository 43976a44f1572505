package reload

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fluxgate/fluxgate"
)

// DefaultPollingInterval and DefaultPollingInitialDelay match §4.6's
// defaults.
const (
	DefaultPollingInterval     = 30 * time.Second
	DefaultPollingInitialDelay = 10 * time.Second
)

// Polling is a ReloadStrategy that periodically emits a full-reload
// event, used as a fallback when pub/sub is unavailable and for defense
// in depth alongside it.
type Polling struct {
	interval     time.Duration
	initialDelay time.Duration

	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewPolling builds a Polling strategy. interval defaults to
// DefaultPollingInterval when zero or negative; initialDelay defaults to
// DefaultPollingInitialDelay when negative, and zero starts polling
// without a delay.
func NewPolling(interval, initialDelay time.Duration) *Polling {
	if interval <= 0 {
		interval = DefaultPollingInterval
	}
	if initialDelay < 0 {
		initialDelay = DefaultPollingInitialDelay
	}
	return &Polling{interval: interval, initialDelay: initialDelay, stopCh: make(chan struct{})}
}

// Run blocks, emitting a full-reload ReloadEvent to sink every interval
// after the initial delay, until Stop is called.
func (p *Polling) Run(sink fluxgate.ReloadSink) error {
	select {
	case <-p.stopCh:
		return nil
	case <-time.After(p.initialDelay):
	}

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopCh:
			return nil
		case now := <-ticker.C:
			sink.HandleReloadEvent(fluxgate.ReloadEvent{
				Source:        fluxgate.ReloadSourcePolling,
				Timestamp:     now,
				CorrelationId: uuid.NewString(),
			})
		}
	}
}

// Stop terminates the polling loop. Safe to call more than once.
func (p *Polling) Stop() {
	p.stopOnce.Do(func() { close(p.stopCh) })
}

var _ fluxgate.ReloadStrategy = (*Polling)(nil)
