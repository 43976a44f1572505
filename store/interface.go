// Package store defines the token-bucket store contract (§4.3) and its
// concrete backends. A Backend performs atomic multi-band consumption
// against a shared clock so that distributed callers cannot drift.
package store

import (
	"context"
	"time"
)

// BandSpec describes one band's rate parameters for a single consume call.
type BandSpec struct {
	// Label identifies this band within the shared bucket key (e.g.
	// "burst", "default"); every band in a ConsumeRequest is stored under
	// ConsumeRequest.Key and distinguished only by Label, so a cluster
	// store can route the whole call with a single key (§4.3).
	Label string
	// WindowNanos is the band's refill window in nanoseconds.
	WindowNanos int64
	// Capacity is the maximum number of tokens the band holds.
	Capacity int64
	// TTL is the key expiry, computed per §4.3 (ceil(window*1.1), capped
	// at 24h, never shorter than the window).
	TTL time.Duration
}

// BandResult is the per-band outcome of one TryConsume call.
type BandResult struct {
	Consumed        bool
	RemainingTokens int64
	NanosToWait     int64
	ResetTimeMillis int64
}

// ConsumeRequest batches every band a rule must check in one atomic call.
// Key is the single fully-qualified bucket key shared by every band in
// Bands, per §3: fluxgate:{ruleSetId}:{ruleId}:{scopeValue}. Packing all
// bands for one rule/scope under this one key, rather than one key per
// band, is what lets a cluster-mode store service the whole call with a
// single-key script invocation instead of a multi-key CROSSSLOT error
// (§4.3 "Cluster mode").
type ConsumeRequest struct {
	Key     string
	Bands   []BandSpec
	Permits int64
}

// Backend is the contract every token-bucket store implementation
// satisfies. TryConsume must be atomic end-to-end: concurrent callers
// observe a linearizable total order of successful consumptions per
// (bucketKey, band), and a rejection on any band leaves every band's
// persisted state untouched (§4.3, §4.4 point 4).
type Backend interface {
	// TryConsume evaluates every band in req and commits the consumption
	// only if every band allows it (all-or-nothing). Returns one
	// BandResult per band in req.Bands, in the same order.
	TryConsume(ctx context.Context, req ConsumeRequest) ([]BandResult, error)

	// Close releases resources held by the backend.
	Close() error
}

// Healthy backends can additionally report liveness, for the composite
// store's health checker and the resilience envelope's Ping pass-through
// (§9 supplement).
type Healthy interface {
	Ping(ctx context.Context) error
}
