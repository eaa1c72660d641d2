// Package telemetry exposes Prometheus counters for acquisition outcomes
// and discovery results. Label sets are closed enums, so cardinality stays
// bounded.
package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	coordinatorOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "novacat_coordinator_outcomes_total",
		Help: "Coordinator executions by terminal outcome",
	}, []string{"outcome"})

	coordinatorErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "novacat_coordinator_errors_total",
		Help: "Coordinator executions that crashed with an infrastructure error",
	})

	discoveryRecords = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "novacat_discovery_records_total",
		Help: "Discovery records processed by result",
	}, []string{"result"})

	quarantineNotifyFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "novacat_quarantine_notify_failures_total",
		Help: "Quarantine notifications that failed to deliver (best-effort, non-fatal)",
	})

	attemptDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "novacat_attempt_duration_seconds",
		Help:    "Task attempt durations by task name",
		Buckets: prometheus.ExponentialBuckets(0.01, 4, 8),
	}, []string{"task"})
)

// CoordinatorOutcome counts one coordinator execution by terminal outcome.
func CoordinatorOutcome(outcome string) {
	coordinatorOutcomes.WithLabelValues(outcome).Inc()
}

// CoordinatorError counts one coordinator infrastructure failure.
func CoordinatorError() {
	coordinatorErrors.Inc()
}

// DiscoveryRecord counts one discovery record by result
// (created, reused, error).
func DiscoveryRecord(result string) {
	discoveryRecords.WithLabelValues(result).Inc()
}

// QuarantineNotifyFailure counts one dropped quarantine notification.
func QuarantineNotifyFailure() {
	quarantineNotifyFailures.Inc()
}

// AttemptDuration records one task attempt duration.
func AttemptDuration(task string, seconds float64) {
	attemptDuration.WithLabelValues(task).Observe(seconds)
}

// Handler returns the Prometheus scrape handler for embedding in a metrics
// endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
