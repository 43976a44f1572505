// Package memory is an in-process token-bucket store. It implements the
// same refill algorithm as store/redis, against a sync.Map instead of a
// remote script, so the engine is testable without a live Redis and so an
// embedded single-process filter has a legitimate store of its own.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/fluxgate/fluxgate/store"
)

// mutexPool reduces allocations for per-key locks, mirroring the teacher's
// backends/memory mutex pool.
var mutexPool = sync.Pool{
	New: func() any { return &sync.Mutex{} },
}

type bucket struct {
	tokens          int64
	lastRefillNanos int64
	expiresAt       time.Time
}

// Backend is an in-memory Backend implementation. The zero value is not
// usable; construct with New.
type Backend struct {
	locks  sync.Map // map[string]*sync.Mutex
	values sync.Map // map[string]*bucket

	cleanupStop chan struct{}
	cleanupWG   sync.WaitGroup
}

// New creates an in-memory store with periodic expired-key cleanup.
func New() *Backend {
	return NewWithCleanup(10 * time.Minute)
}

// NewWithCleanup creates an in-memory store with a custom cleanup interval.
// interval <= 0 disables the background sweep.
func NewWithCleanup(interval time.Duration) *Backend {
	b := &Backend{cleanupStop: make(chan struct{})}
	if interval > 0 {
		b.cleanupWG.Add(1)
		go b.cleanupLoop(interval)
	}
	return b
}

func (b *Backend) cleanupLoop(interval time.Duration) {
	defer b.cleanupWG.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			b.sweep()
		case <-b.cleanupStop:
			return
		}
	}
}

func (b *Backend) sweep() {
	now := time.Now()
	b.values.Range(func(k, v any) bool {
		bk := v.(*bucket)
		if now.After(bk.expiresAt) {
			b.values.Delete(k)
		}
		return true
	})
}

func (b *Backend) lockFor(key string) *sync.Mutex {
	if existing, ok := b.locks.Load(key); ok {
		return existing.(*sync.Mutex)
	}
	m := mutexPool.Get().(*sync.Mutex)
	actual, loaded := b.locks.LoadOrStore(key, m)
	if loaded {
		mutexPool.Put(m)
	}
	return actual.(*sync.Mutex)
}

// TryConsume implements the §4.3 algorithm per band, holding every band's
// lock for the whole call, and commits every band only if all bands
// allowed (§4.4 point 4): bands are first evaluated read-only, and only
// written back once every band has been confirmed to allow the request.
func (b *Backend) TryConsume(ctx context.Context, req store.ConsumeRequest) ([]store.BandResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if req.Permits <= 0 {
		return nil, store.ErrInvalidRequest
	}

	now := time.Now().UnixNano()
	results := make([]store.BandResult, len(req.Bands))

	// Lock every band's mutex up front, in a fixed key order, so the whole
	// multi-band check is atomic and concurrent calls that share a subset
	// of keys can never deadlock on lock order.
	order := make([]int, len(req.Bands))
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(i, j int) bool { return req.Bands[order[i]].Label < req.Bands[order[j]].Label })
	locks := make([]*sync.Mutex, len(req.Bands))
	for _, i := range order {
		locks[i] = b.lockFor(bandMapKey(req.Key, req.Bands[i].Label))
		locks[i].Lock()
	}
	defer func() {
		for _, i := range order {
			locks[i].Unlock()
		}
	}()

	allAllowed := true
	newStates := make([]*bucket, len(req.Bands))
	for i, band := range req.Bands {
		bk := b.loadOrInit(req.Key, band, now)
		elapsed := now - bk.lastRefillNanos
		if elapsed < 0 {
			elapsed = 0
		}
		refill := (elapsed * band.Capacity) / band.WindowNanos
		tokens := bk.tokens + refill
		if tokens > band.Capacity {
			tokens = band.Capacity
		}

		if tokens >= req.Permits {
			newStates[i] = &bucket{
				tokens:          tokens - req.Permits,
				lastRefillNanos: now,
				expiresAt:       time.Now().Add(band.TTL),
			}
			results[i] = store.BandResult{
				Consumed:        true,
				RemainingTokens: tokens - req.Permits,
				ResetTimeMillis: (now + band.WindowNanos) / int64(time.Millisecond),
			}
		} else {
			allAllowed = false
			deficit := req.Permits - tokens
			wait := ceilDiv(deficit*band.WindowNanos, band.Capacity)
			results[i] = store.BandResult{
				Consumed:        false,
				RemainingTokens: tokens,
				NanosToWait:     wait,
				ResetTimeMillis: (now + wait) / int64(time.Millisecond),
			}
			// Read-only rejection: do not advance lastRefillNanos (§4.3).
			newStates[i] = nil
		}
	}

	if !allAllowed {
		// None of the bands are written back; rejection leaves state
		// untouched for every band, including ones that individually
		// would have allowed the request.
		return results, nil
	}

	for i, band := range req.Bands {
		b.values.Store(bandMapKey(req.Key, band.Label), newStates[i])
	}
	return results, nil
}

func (b *Backend) loadOrInit(reqKey string, band store.BandSpec, now int64) *bucket {
	if v, ok := b.values.Load(bandMapKey(reqKey, band.Label)); ok {
		bk := v.(*bucket)
		if time.Now().Before(bk.expiresAt) {
			return bk
		}
	}
	return &bucket{tokens: band.Capacity, lastRefillNanos: now}
}

// bandMapKey derives this store's internal per-band map key. Unlike the
// Redis backend, the in-memory store has no cluster-routing constraint, so
// each band still gets its own distinct internal key even though callers
// now address the whole request by one shared ConsumeRequest.Key.
func bandMapKey(reqKey, label string) string {
	return reqKey + ":" + label
}

func ceilDiv(a, b int64) int64 {
	if b == 0 {
		return 0
	}
	if a <= 0 {
		return 0
	}
	return (a + b - 1) / b
}

// Ping succeeds for the in-memory store unless ctx is already done, in
// which case it returns ctx.Err().
func (b *Backend) Ping(ctx context.Context) error { return ctx.Err() }

// Close stops the cleanup goroutine.
func (b *Backend) Close() error {
	close(b.cleanupStop)
	b.cleanupWG.Wait()
	return nil
}
