// Package prometheus provides a Prometheus implementation of the metrics interface.
package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"booklib/metrics"
)

// PrometheusMetrics implements the Metrics interface using Prometheus.
type PrometheusMetrics struct {
	// Refresh unit metrics
	refreshStartedTotal   *prometheus.CounterVec
	refreshCompletedTotal *prometheus.CounterVec
	refreshSkippedTotal   *prometheus.CounterVec
	refreshFailedTotal    *prometheus.CounterVec
	refreshDuration       *prometheus.HistogramVec

	// Transport metrics
	retryAttemptsTotal *prometheus.CounterVec
	rateLimitWait      prometheus.Histogram

	// Permit pool metrics
	permitWait prometheus.Histogram

	// Batch metrics
	batchUnitsTotal *prometheus.CounterVec

	// Cache metrics
	cacheUpdatesTotal prometheus.Counter
	cacheEntries      prometheus.Gauge

	// Worker metrics
	workerRunsTotal *prometheus.CounterVec
}

var _ metrics.Metrics = (*PrometheusMetrics)(nil)

// Config holds configuration for PrometheusMetrics.
type Config struct {
	// Namespace is the prefix for all metrics (e.g., "booklib")
	Namespace string
	// Subsystem is an optional subsystem name
	Subsystem string
	// Registry is the Prometheus registry to use. If nil, the default registry is used.
	Registry prometheus.Registerer
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		Namespace: "booklib",
		Subsystem: "refresh",
		Registry:  prometheus.DefaultRegisterer,
	}
}

// New creates a new PrometheusMetrics instance with the given configuration.
func New(cfg Config) *PrometheusMetrics {
	if cfg.Registry == nil {
		cfg.Registry = prometheus.DefaultRegisterer
	}

	factory := promauto.With(cfg.Registry)

	return &PrometheusMetrics{
		refreshStartedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "units_started_total",
			Help:      "Total number of refresh units started",
		}, []string{"task_type"}),

		refreshCompletedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "units_completed_total",
			Help:      "Total number of refresh units completed successfully",
		}, []string{"task_type"}),

		refreshSkippedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "units_skipped_total",
			Help:      "Total number of refresh units skipped by the idempotency ledger",
		}, []string{"task_type"}),

		refreshFailedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "units_failed_total",
			Help:      "Total number of refresh units failed after retries",
		}, []string{"task_type", "reason"}),

		refreshDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "unit_duration_seconds",
			Help:      "Wall-clock duration of successful refresh units",
			Buckets:   prometheus.DefBuckets,
		}, []string{"task_type"}),

		retryAttemptsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "retry_attempts_total",
			Help:      "Total number of retried transport attempts",
		}, []string{"reason"}),

		rateLimitWait: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "rate_limit_wait_seconds",
			Help:      "Time spent honoring rate-limit wait hints",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		}),

		permitWait: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "permit_wait_seconds",
			Help:      "Time spent waiting for a concurrency permit",
			Buckets:   []float64{0.001, 0.01, 0.1, 0.5, 1, 5, 30},
		}),

		batchUnitsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "batch_units_total",
			Help:      "Total number of batch units by terminal status",
		}, []string{"status"}),

		cacheUpdatesTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "cache_updates_total",
			Help:      "Total number of recommendation cache updates",
		}),

		cacheEntries: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "cache_entries",
			Help:      "Number of entries in the last recommendation cache update",
		}),

		workerRunsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "worker_runs_total",
			Help:      "Total number of periodic worker runs",
		}, []string{"result"}),
	}
}

// RefreshStarted records a refresh unit acquiring a permit and starting.
func (m *PrometheusMetrics) RefreshStarted(taskType string) {
	m.refreshStartedTotal.WithLabelValues(taskType).Inc()
}

// RefreshCompleted records a successful refresh unit and its duration.
func (m *PrometheusMetrics) RefreshCompleted(taskType string, duration time.Duration) {
	m.refreshCompletedTotal.WithLabelValues(taskType).Inc()
	m.refreshDuration.WithLabelValues(taskType).Observe(duration.Seconds())
}

// RefreshSkipped records a unit skipped by the idempotency ledger.
func (m *PrometheusMetrics) RefreshSkipped(taskType string) {
	m.refreshSkippedTotal.WithLabelValues(taskType).Inc()
}

// RefreshFailed records a failed refresh unit.
func (m *PrometheusMetrics) RefreshFailed(taskType string, reason string) {
	m.refreshFailedTotal.WithLabelValues(taskType, reason).Inc()
}

// RetryAttempt records one retried transport attempt.
func (m *PrometheusMetrics) RetryAttempt(reason string) {
	m.retryAttemptsTotal.WithLabelValues(reason).Inc()
}

// RateLimitWait records time spent honoring a rate-limit hint.
func (m *PrometheusMetrics) RateLimitWait(duration time.Duration) {
	m.rateLimitWait.Observe(duration.Seconds())
}

// PermitWait records time spent waiting for a concurrency permit.
func (m *PrometheusMetrics) PermitWait(duration time.Duration) {
	m.permitWait.Observe(duration.Seconds())
}

// BatchCompleted records the aggregate outcome counts of a batch.
func (m *PrometheusMetrics) BatchCompleted(succeeded, skipped, failed int) {
	m.batchUnitsTotal.WithLabelValues("success").Add(float64(succeeded))
	m.batchUnitsTotal.WithLabelValues("skipped").Add(float64(skipped))
	m.batchUnitsTotal.WithLabelValues("failed").Add(float64(failed))
}

// CacheUpdated records a recommendation cache update.
func (m *PrometheusMetrics) CacheUpdated(entries int) {
	m.cacheUpdatesTotal.Inc()
	m.cacheEntries.Set(float64(entries))
}

// WorkerRun records one periodic worker run.
func (m *PrometheusMetrics) WorkerRun(success bool) {
	result := "success"
	if !success {
		result = "failure"
	}
	m.workerRunsTotal.WithLabelValues(result).Inc()
}
