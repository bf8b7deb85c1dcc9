// Package metrics holds the process-wide prometheus collectors.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Namespace is the prefix of every metric name.
const Namespace = "passby"

// NewCounter creates a counter vector under the global namespace.
func NewCounter(name, subsystem, help string, labels []string) *prometheus.CounterVec {
	return promauto.NewCounterVec(prometheus.CounterOpts{Namespace: Namespace, Subsystem: subsystem, Name: name, Help: help}, labels)
}

// NewHistogramWithBuckets creates a histogram vector with custom buckets.
func NewHistogramWithBuckets(name, subsystem, help string, labels []string, buckets []float64) *prometheus.HistogramVec {
	return promauto.NewHistogramVec(prometheus.HistogramOpts{Namespace: Namespace, Subsystem: subsystem, Name: name, Help: help, Buckets: buckets}, labels)
}

var (
	observations = NewCounter("observations_total", "correlator", "Observation reports by outcome", []string{"status"})

	sweptRows = NewCounter("deleted_rows_total", "sweeper", "Rows removed by expiry sweepers", []string{"sweeper"})
	sweepRuns = NewHistogramWithBuckets(
		"pass_seconds",
		"sweeper",
		"Duration of one sweeper pass",
		[]string{"sweeper", "result"},
		prometheus.ExponentialBuckets(0.01, 2, 14),
	)
	sweepFallbacks = NewCounter("fallback_total", "sweeper", "Passes that switched to the per-owner strategy", []string{"sweeper"})

	published = NewCounter("published_total", "events", "Event publish attempts", []string{"subject", "result"})
)

// Observation counts one observation report outcome.
func Observation(status string) { observations.WithLabelValues(status).Inc() }

// SweepDeleted adds n deleted rows for sweeper.
func SweepDeleted(sweeper string, n int64) {
	if n > 0 {
		sweptRows.WithLabelValues(sweeper).Add(float64(n))
	}
}

// SweepPass records the latency of one pass.
func SweepPass(sweeper string, took time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	sweepRuns.WithLabelValues(sweeper, result).Observe(took.Seconds())
}

// SweepFallback counts a switch to the per-owner strategy.
func SweepFallback(sweeper string) { sweepFallbacks.WithLabelValues(sweeper).Inc() }

// Published counts one publish attempt.
func Published(subject string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	published.WithLabelValues(subject, result).Inc()
}

// Handler exposes the default registry.
func Handler() http.Handler { return promhttp.Handler() }
