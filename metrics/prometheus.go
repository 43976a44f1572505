// Package metrics is the Prometheus-backed MetricsRecorder (C10), grounded
// on the prometheus/client_golang usage in howardjohn-kgateway and the
// go-coffee example (other_examples).
package metrics

import (
	"time"

	"github.com/fluxgate/fluxgate"
	"github.com/prometheus/client_golang/prometheus"
)

// Recorder implements fluxgate.MetricsRecorder against a Prometheus
// registry.
type Recorder struct {
	decisions       *prometheus.CounterVec
	remainingTokens *prometheus.GaugeVec
	errors          *prometheus.CounterVec
	missingRuleSets *prometheus.CounterVec
	latency         *prometheus.HistogramVec
}

// New registers fluxgate's metrics on reg and returns a Recorder. Pass
// prometheus.DefaultRegisterer to use the global registry.
func New(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fluxgate",
			Name:      "decisions_total",
			Help:      "Rate-limit decisions by rule-set and outcome.",
		}, []string{"rule_set", "allowed"}),
		remainingTokens: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "fluxgate",
			Name:      "remaining_tokens",
			Help:      "Remaining tokens in the tightest band of the last decision.",
		}, []string{"rule_set"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fluxgate",
			Name:      "errors_total",
			Help:      "Errors encountered while evaluating a rule-set.",
		}, []string{"rule_set"}),
		missingRuleSets: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fluxgate",
			Name:      "missing_rule_set_total",
			Help:      "Checks against a rule-set id the provider could not find.",
		}, []string{"rule_set"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "fluxgate",
			Name:      "decision_latency_seconds",
			Help:      "Time to evaluate one rate-limit decision, including the store round-trip.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"rule_set"}),
	}
	reg.MustRegister(r.decisions, r.remainingTokens, r.errors, r.missingRuleSets, r.latency)
	return r
}

func (r *Recorder) RecordVerdict(ruleSetId string, verdict fluxgate.Verdict) {
	allowed := "false"
	if verdict.Allowed {
		allowed = "true"
	}
	r.decisions.WithLabelValues(ruleSetId, allowed).Inc()
	if verdict.RemainingTokens >= 0 {
		r.remainingTokens.WithLabelValues(ruleSetId).Set(float64(verdict.RemainingTokens))
	}
}

func (r *Recorder) RecordMissingRuleSet(ruleSetId string) {
	r.missingRuleSets.WithLabelValues(ruleSetId).Inc()
}

func (r *Recorder) RecordError(ruleSetId string, _ error) {
	r.errors.WithLabelValues(ruleSetId).Inc()
}

func (r *Recorder) RecordLatency(ruleSetId string, d time.Duration) {
	r.latency.WithLabelValues(ruleSetId).Observe(d.Seconds())
}

var _ fluxgate.MetricsRecorder = (*Recorder)(nil)
