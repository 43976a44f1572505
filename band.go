package fluxgate

import (
	"fmt"
	"time"
)

// Band is a single rate dimension: a capacity of permits that refills over
// a window. Bands are immutable once built.
type Band struct {
	Window   time.Duration
	Capacity int64
	Label    string
}

// NewBand validates and constructs a Band. An empty label becomes
// "default", matching the bucket-key convention in §3.
func NewBand(window time.Duration, capacity int64, label string) (Band, error) {
	if capacity < 1 {
		return Band{}, NewOpError(ErrConfig, "band.capacity", fmt.Errorf("capacity must be >= 1, got %d", capacity))
	}
	if window <= 0 {
		return Band{}, NewOpError(ErrConfig, "band.window", fmt.Errorf("window must be > 0, got %s", window))
	}
	if label == "" {
		label = "default"
	}
	return Band{Window: window, Capacity: capacity, Label: label}, nil
}

// WindowNanos returns the band's window expressed in nanoseconds, the unit
// the token-bucket store's integer refill arithmetic operates in.
func (b Band) WindowNanos() int64 {
	return b.Window.Nanoseconds()
}

// TTL computes the store key's TTL per §4.3: ceil(windowSeconds * 1.1),
// capped at 24 hours, but never shorter than the window itself, so a
// window longer than 24 hours gets a TTL equal to the window. Uses only
// integer arithmetic, consistent with the store's refill math.
func (b Band) TTL() time.Duration {
	const capNanos = int64(24 * time.Hour)
	windowNanos := b.Window.Nanoseconds()
	// ceil(windowNanos * 1.1) via integer division: (windowNanos*11 + 9) / 10
	ttlNanos := (windowNanos*11 + 9) / 10
	if ttlNanos > capNanos {
		ttlNanos = capNanos
	}
	if ttlNanos < windowNanos {
		ttlNanos = windowNanos
	}
	return time.Duration(ttlNanos)
}
