// Package metrics provides the metrics interface for the refresher.
package metrics

import (
	"time"
)

// Metrics defines the interface for collecting observability metrics.
// Implementations can use Prometheus, StatsD, or other metrics backends.
type Metrics interface {
	// Refresh unit metrics
	RefreshStarted(taskType string)
	RefreshCompleted(taskType string, duration time.Duration)
	RefreshSkipped(taskType string)
	RefreshFailed(taskType string, reason string)

	// Transport metrics
	RetryAttempt(reason string)
	RateLimitWait(duration time.Duration)

	// Permit pool metrics
	PermitWait(duration time.Duration)

	// Batch metrics
	BatchCompleted(succeeded, skipped, failed int)

	// Cache metrics
	CacheUpdated(entries int)

	// Worker metrics
	WorkerRun(success bool)
}

// NoopMetrics is a no-op implementation of Metrics for testing or when metrics are disabled.
type NoopMetrics struct{}

var _ Metrics = (*NoopMetrics)(nil)

func (n *NoopMetrics) RefreshStarted(taskType string)                    {}
func (n *NoopMetrics) RefreshCompleted(taskType string, d time.Duration) {}
func (n *NoopMetrics) RefreshSkipped(taskType string)                    {}
func (n *NoopMetrics) RefreshFailed(taskType string, reason string)      {}
func (n *NoopMetrics) RetryAttempt(reason string)                        {}
func (n *NoopMetrics) RateLimitWait(duration time.Duration)              {}
func (n *NoopMetrics) PermitWait(duration time.Duration)                 {}
func (n *NoopMetrics) BatchCompleted(succeeded, skipped, failed int)     {}
func (n *NoopMetrics) CacheUpdated(entries int)                          {}
func (n *NoopMetrics) WorkerRun(success bool)                            {}
