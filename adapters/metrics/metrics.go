// Package metrics provides Prometheus metrics collection for the engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector holds all Prometheus metrics for the guardrail engine.
type Collector struct {
	// Guardrail checks
	ChecksTotal   *prometheus.CounterVec // by metric and action
	CheckDuration prometheus.Histogram

	// Metering
	EventsRecorded  *prometheus.CounterVec // by metric
	EventsDuplicate prometheus.Counter
	PeriodRollovers prometheus.Counter

	// Analytics
	AnalysisDuration prometheus.Histogram
	AnalysisTimeouts prometheus.Counter

	// Alerts
	AlertsEmitted    *prometheus.CounterVec // by type and severity
	AlertsSuppressed prometheus.Counter
	EvaluateRuns     prometheus.Counter
}

// New creates a new metrics collector with all metrics registered.
func New() *Collector {
	return &Collector{
		ChecksTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "guardrail",
				Name:      "checks_total",
				Help:      "Total number of admission checks by metric and action",
			},
			[]string{"metric", "action"},
		),
		CheckDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "guardrail",
				Name:      "check_duration_seconds",
				Help:      "Admission check latency",
				Buckets:   []float64{0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01},
			},
		),
		EventsRecorded: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "guardrail",
				Name:      "usage_events_total",
				Help:      "Usage events recorded by metric",
			},
			[]string{"metric"},
		),
		EventsDuplicate: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: "guardrail",
				Name:      "usage_events_duplicate_total",
				Help:      "Usage events dropped by idempotency dedupe",
			},
		),
		PeriodRollovers: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: "guardrail",
				Name:      "period_rollovers_total",
				Help:      "Billing period rollovers performed",
			},
		),
		AnalysisDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "guardrail",
				Name:      "cost_analysis_duration_seconds",
				Help:      "Cost attribution analysis latency",
				Buckets:   prometheus.DefBuckets,
			},
		),
		AnalysisTimeouts: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: "guardrail",
				Name:      "cost_analysis_timeouts_total",
				Help:      "Analyses that exceeded their budget and degraded to cache",
			},
		),
		AlertsEmitted: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "guardrail",
				Name:      "alerts_emitted_total",
				Help:      "Alerts created by type and severity",
			},
			[]string{"type", "severity"},
		),
		AlertsSuppressed: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: "guardrail",
				Name:      "alerts_suppressed_total",
				Help:      "Alert candidates suppressed by the cooldown dedupe rule",
			},
		),
		EvaluateRuns: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: "guardrail",
				Name:      "alert_evaluate_runs_total",
				Help:      "Periodic alert evaluation sweeps",
			},
		),
	}
}
