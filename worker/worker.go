// Package worker provides the periodic refresh worker that drives the
// daily recommendation recomputation.
package worker

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"booklib"
	"booklib/event"
	"booklib/metrics"
)

// Refresher is the refresh surface the worker drives.
type Refresher interface {
	RefreshWeeklyRecommendations(ctx context.Context) booklib.Outcome
	RefreshAllBooks(ctx context.Context) (booklib.Summary, error)
}

// Config holds the configuration for the refresh worker.
type Config struct {
	// Interval is the time between refresh runs.
	Interval time.Duration
	// RefreshBooks also refreshes every book's cache on each run.
	RefreshBooks bool
}

// DefaultConfig returns the default configuration for the refresh worker.
func DefaultConfig() Config {
	return Config{
		Interval:     24 * time.Hour,
		RefreshBooks: false,
	}
}

// Logger defines the logging interface.
type Logger interface {
	Printf(format string, v ...any)
}

// defaultLogger is the default logger implementation.
type defaultLogger struct{}

func (l *defaultLogger) Printf(format string, v ...any) {
	log.Printf("[RefreshWorker] "+format, v...)
}

// Worker periodically invokes the refresher. The idempotency ledger makes
// overlapping runs harmless: a run that finds today's work already recorded
// reports Skipped.
type Worker struct {
	refresher Refresher
	events    event.EventBus
	metrics   metrics.Metrics
	config    Config
	logger    Logger

	// State
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex

	// Counters
	runCount   int64
	succeeded  int64
	skipped    int64
	failed     int64
	countersMu sync.RWMutex
}

// WorkerOption is a function that configures the Worker.
type WorkerOption func(*Worker)

// WithRefresher sets the refresher for the worker.
func WithRefresher(r Refresher) WorkerOption {
	return func(w *Worker) {
		w.refresher = r
	}
}

// WithEventBus sets the event bus for the worker.
func WithEventBus(e event.EventBus) WorkerOption {
	return func(w *Worker) {
		w.events = e
	}
}

// WithMetrics sets the metrics collector for the worker.
func WithMetrics(m metrics.Metrics) WorkerOption {
	return func(w *Worker) {
		w.metrics = m
	}
}

// WithConfig sets the configuration for the worker.
func WithConfig(cfg Config) WorkerOption {
	return func(w *Worker) {
		w.config = cfg
	}
}

// WithLogger sets the logger for the worker.
func WithLogger(l Logger) WorkerOption {
	return func(w *Worker) {
		w.logger = l
	}
}

// NewWorker creates a new refresh worker with the given options.
func NewWorker(opts ...WorkerOption) *Worker {
	w := &Worker{
		config:  DefaultConfig(),
		metrics: &metrics.NoopMetrics{},
		logger:  &defaultLogger{},
		stopCh:  make(chan struct{}),
	}

	for _, opt := range opts {
		opt(w)
	}

	return w
}

// Start starts the refresh worker.
// It runs in the background and refreshes on the configured interval,
// beginning with an immediate run.
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("refresh worker already running")
	}
	w.running = true
	w.stopCh = make(chan struct{})
	w.mu.Unlock()

	w.wg.Add(1)
	go w.run(ctx)

	w.logger.Printf("started with interval=%v, refreshBooks=%v", w.config.Interval, w.config.RefreshBooks)
	return nil
}

// Stop stops the refresh worker gracefully.
func (w *Worker) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	close(w.stopCh)
	w.mu.Unlock()

	w.wg.Wait()
	w.logger.Printf("stopped")
}

// IsRunning returns true if the worker is running.
func (w *Worker) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

// run is the main loop of the refresh worker.
func (w *Worker) run(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.config.Interval)
	defer ticker.Stop()

	// Run immediately on start
	w.refresh(ctx)

	for {
		select {
		case <-ticker.C:
			w.refresh(ctx)
		case <-w.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

// refresh performs a single refresh run.
func (w *Worker) refresh(ctx context.Context) {
	w.publishEvent(ctx, event.NewEvent(event.EventWorkerRunStarted))
	w.incrementRun()

	outcome := w.refresher.RefreshWeeklyRecommendations(ctx)
	w.record(outcome)

	runOK := outcome.Status != booklib.StatusFailed

	if w.config.RefreshBooks {
		summary, err := w.refresher.RefreshAllBooks(ctx)
		if err != nil {
			w.logger.Printf("book refresh batch failed: %v", err)
			runOK = false
		} else {
			w.logger.Printf("book refresh batch: %d success, %d skipped, %d failed",
				summary.Succeeded, summary.Skipped, summary.Failed)
			w.addCounts(int64(summary.Succeeded), int64(summary.Skipped), int64(summary.Failed))
			if summary.Failed > 0 {
				runOK = false
			}
		}
	}

	w.metrics.WorkerRun(runOK)
	w.publishEvent(ctx, event.NewEvent(event.EventWorkerRunFinished).
		WithData("ok", runOK))
}

// record updates counters and logs one weekly refresh outcome.
func (w *Worker) record(outcome booklib.Outcome) {
	switch outcome.Status {
	case booklib.StatusSuccess:
		w.logger.Printf("weekly recommendations refreshed in %v (task %.8s)", outcome.Duration, outcome.TaskID)
		w.addCounts(1, 0, 0)
	case booklib.StatusSkipped:
		w.logger.Printf("weekly recommendations already refreshed today (task %.8s)", outcome.TaskID)
		w.addCounts(0, 1, 0)
	case booklib.StatusFailed:
		w.logger.Printf("weekly recommendation refresh failed: %v", outcome.Err)
		w.addCounts(0, 0, 1)
	}
}

// RunOnce performs a single refresh run synchronously.
// This is useful for testing and one-shot invocations.
func (w *Worker) RunOnce(ctx context.Context) {
	w.refresh(ctx)
}

// publishEvent publishes an event to the event bus.
func (w *Worker) publishEvent(ctx context.Context, e event.Event) {
	if w.events != nil {
		w.events.Publish(ctx, e)
	}
}

// Counter methods

func (w *Worker) incrementRun() {
	w.countersMu.Lock()
	defer w.countersMu.Unlock()
	w.runCount++
}

func (w *Worker) addCounts(succeeded, skipped, failed int64) {
	w.countersMu.Lock()
	defer w.countersMu.Unlock()
	w.succeeded += succeeded
	w.skipped += skipped
	w.failed += failed
}

// Stats holds the current statistics of the refresh worker.
type Stats struct {
	RunCount  int64
	Succeeded int64
	Skipped   int64
	Failed    int64
	IsRunning bool
}

// Stats returns the current statistics of the refresh worker.
func (w *Worker) Stats() Stats {
	w.countersMu.RLock()
	defer w.countersMu.RUnlock()
	return Stats{
		RunCount:  w.runCount,
		Succeeded: w.succeeded,
		Skipped:   w.skipped,
		Failed:    w.failed,
		IsRunning: w.IsRunning(),
	}
}

// ResetStats resets the statistics counters.
func (w *Worker) ResetStats() {
	w.countersMu.Lock()
	defer w.countersMu.Unlock()
	w.runCount = 0
	w.succeeded = 0
	w.skipped = 0
	w.failed = 0
}
