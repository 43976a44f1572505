package reload

import (
	"sync"

	"github.com/google/uuid"
	cronlib "github.com/robfig/cron/v3"

	"github.com/fluxgate/fluxgate"
)

// DefaultCronSchedule runs once a day, as a defense-in-depth full reload
// independent of the polling interval (e.g. to recover from a missed
// pub/sub message that polling's shorter cadence also covers, but on a
// predictable wall-clock schedule operators can reason about).
const DefaultCronSchedule = "0 3 * * *"

// Cron is a supplemental ReloadStrategy that emits a full-reload event
// on a standard 5-field cron schedule, using the robfig/cron/v3
// scheduler rather than a hand-rolled ticker.
type Cron struct {
	schedule string

	mu      sync.Mutex
	sched   *cronlib.Cron
	stopped chan struct{}
}

// NewCron builds a Cron strategy. schedule defaults to
// DefaultCronSchedule when empty.
func NewCron(schedule string) *Cron {
	if schedule == "" {
		schedule = DefaultCronSchedule
	}
	return &Cron{schedule: schedule, stopped: make(chan struct{})}
}

// Run starts the cron scheduler and blocks until Stop is called.
func (c *Cron) Run(sink fluxgate.ReloadSink) error {
	sched := cronlib.New()
	_, err := sched.AddFunc(c.schedule, func() {
		sink.HandleReloadEvent(fluxgate.ReloadEvent{
			Source:        fluxgate.ReloadSourcePolling,
			Metadata:      map[string]any{"trigger": "cron"},
			CorrelationId: uuid.NewString(),
		})
	})
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.sched = sched
	c.mu.Unlock()

	sched.Start()
	<-c.stopped
	<-sched.Stop().Done()
	return nil
}

// Stop terminates the cron scheduler. Safe to call more than once.
func (c *Cron) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	select {
	case <-c.stopped:
	default:
		close(c.stopped)
	}
}

var _ fluxgate.ReloadStrategy = (*Cron)(nil)
