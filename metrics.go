package fluxgate

import "time"

// MetricsRecorder is C10: allow/deny counts, remaining-tokens gauge, and
// latency, recorded without the engine depending on any particular metrics
// backend.
type MetricsRecorder interface {
	RecordVerdict(ruleSetId string, verdict Verdict)
	RecordMissingRuleSet(ruleSetId string)
	RecordError(ruleSetId string, err error)
	// RecordLatency records how long one rate-limiter decision took for
	// ruleSetId, including the store round-trip.
	RecordLatency(ruleSetId string, d time.Duration)
}

// NoopMetrics discards everything; it is the Engine's default.
type NoopMetrics struct{}

func (NoopMetrics) RecordVerdict(string, Verdict)       {}
func (NoopMetrics) RecordMissingRuleSet(string)         {}
func (NoopMetrics) RecordError(string, error)           {}
func (NoopMetrics) RecordLatency(string, time.Duration) {}
