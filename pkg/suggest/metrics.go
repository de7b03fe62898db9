package suggest

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	globalMetrics *Metrics
	metricsOnce   sync.Once
)

// Metrics holds Prometheus metrics for the suggestion engine.
type Metrics struct {
	// Request flow
	RequestsTotal   *prometheus.CounterVec
	RequestDuration prometheus.Histogram

	// Gate outcomes
	SuppressionsTotal *prometheus.CounterVec

	// Suggestion sources
	ActionsTotal *prometheus.CounterVec
}

// NewMetrics creates and registers Prometheus metrics for the suggestion
// engine.
//
// This function uses sync.Once to ensure metrics are only registered once
// globally, preventing "duplicate metrics collector registration" panics.
//
// All metrics are prefixed with "suggest_" for namespacing.
//
// Metrics:
//   - suggest_requests_total{status} - Count of suggestion requests
//   - suggest_request_duration_seconds - Histogram of request latency
//   - suggest_suppressions_total{reason} - Count of gate suppressions
//   - suggest_actions_total{source} - Count of emitted actions by source
func NewMetrics() *Metrics {
	metricsOnce.Do(func() {
		globalMetrics = &Metrics{
			RequestsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "suggest_requests_total",
					Help: "Total number of suggestion requests",
				},
				[]string{"status"}, // "ok" or "error"
			),

			RequestDuration: promauto.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "suggest_request_duration_seconds",
					Help:    "Duration of suggestion requests in seconds",
					Buckets: prometheus.DefBuckets,
				},
			),

			SuppressionsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "suggest_suppressions_total",
					Help: "Total number of requests suppressed by a precondition gate",
				},
				[]string{"reason"}, // "locale", "low_confidence", "sensitive", "input_length"
			),

			ActionsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "suggest_actions_total",
					Help: "Total number of suggested actions by source",
				},
				[]string{"source"}, // "model", "rule", "annotation"
			),
		}
	})
	return globalMetrics
}
