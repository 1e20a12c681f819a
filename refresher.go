package booklib

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"booklib/event"
	"booklib/ledger"
	"booklib/metrics"
	"booklib/tracing"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"
)

// Refresher orchestrates idempotent recommendation refreshes with bounded
// concurrency. Each logical unit of work is checked against the idempotency
// ledger, executed through the retrying transport under a shared permit
// pool, and recorded back into the ledger on success. Failures within one
// unit never propagate to sibling units.
type Refresher struct {
	// Dependencies
	ledger    ledger.Ledger
	transport Transport
	metrics   metrics.Metrics
	tracer    tracing.Tracer
	events    event.EventBus
	logger    Logger

	// permits bounds concurrent outbound calls. Capacity is fixed for the
	// refresher's lifetime.
	permits *semaphore.Weighted

	// now supplies the calendar day for task key derivation.
	now func() time.Time

	config Config
}

// RefresherOption is a function that configures the Refresher.
type RefresherOption func(*Refresher)

// WithLedger sets the idempotency ledger.
func WithLedger(l ledger.Ledger) RefresherOption {
	return func(r *Refresher) {
		r.ledger = l
	}
}

// WithTransport sets the retrying transport.
func WithTransport(t Transport) RefresherOption {
	return func(r *Refresher) {
		r.transport = t
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(m metrics.Metrics) RefresherOption {
	return func(r *Refresher) {
		r.metrics = m
	}
}

// WithTracer sets the tracer.
func WithTracer(t tracing.Tracer) RefresherOption {
	return func(r *Refresher) {
		r.tracer = t
	}
}

// WithEventBus sets the event bus.
func WithEventBus(e event.EventBus) RefresherOption {
	return func(r *Refresher) {
		r.events = e
	}
}

// WithRefresherConfig sets the configuration.
func WithRefresherConfig(cfg Config) RefresherOption {
	return func(r *Refresher) {
		r.config = cfg
	}
}

// WithRefresherLogger sets the logger.
func WithRefresherLogger(l Logger) RefresherOption {
	return func(r *Refresher) {
		r.logger = l
	}
}

// WithClock sets the time source used for task key derivation.
func WithClock(now func() time.Time) RefresherOption {
	return func(r *Refresher) {
		r.now = now
	}
}

// NewRefresher creates a new Refresher with the given options.
// A ledger must be provided; the transport defaults to a retrying HTTP
// client built from the configuration.
func NewRefresher(opts ...RefresherOption) (*Refresher, error) {
	r := &Refresher{
		config:  DefaultConfig(),
		metrics: &metrics.NoopMetrics{},
		tracer:  &tracing.NoopTracer{},
		logger:  &defaultLogger{prefix: "[Refresher] "},
		now:     time.Now,
	}

	for _, opt := range opts {
		opt(r)
	}

	if r.ledger == nil {
		return nil, fmt.Errorf("%w: a ledger is required", ErrInvalidConfig)
	}
	if err := r.config.Validate(); err != nil {
		return nil, err
	}

	if r.transport == nil {
		r.transport = NewClient(
			WithClientConfig(r.config),
			WithClientMetrics(r.metrics),
		)
	}

	r.permits = semaphore.NewWeighted(r.config.MaxConcurrent)

	return r, nil
}

// Close releases the transport's connection pool.
func (r *Refresher) Close() {
	r.transport.Close()
}

// Config returns the refresher configuration.
func (r *Refresher) Config() Config {
	return r.config
}

// unit describes one logical refresh unit.
type unit struct {
	taskID   string
	taskType string
	method   string
	url      string
	bookID   int64
}

// RefreshWeeklyRecommendations triggers the weekly recommendation
// recomputation once per calendar day. A second invocation on the same day
// returns a Skipped outcome with reason "already_completed".
func (r *Refresher) RefreshWeeklyRecommendations(ctx context.Context) Outcome {
	return r.refreshUnit(ctx, unit{
		taskID:   DeriveTaskKey(TaskTypeWeeklyRecommendations, "", r.now()),
		taskType: TaskTypeWeeklyRecommendations,
		method:   http.MethodPost,
		url:      r.config.BaseURL + r.config.TriggerPath,
	})
}

// RefreshBookCache refreshes the cache for a single book by fetching it
// through the catalog API.
func (r *Refresher) RefreshBookCache(ctx context.Context, bookID int64) Outcome {
	id := strconv.FormatInt(bookID, 10)
	return r.refreshUnit(ctx, unit{
		taskID:   DeriveTaskKey(TaskTypeBookCache, id, r.now()),
		taskType: TaskTypeBookCache,
		method:   http.MethodGet,
		url:      r.config.BaseURL + r.config.BooksPath + "/" + id,
		bookID:   bookID,
	})
}

// RefreshBooks refreshes the cache for the given books. Every unit is
// launched concurrently, bounded by the shared permit pool; the returned
// outcome list matches the input order regardless of completion order.
func (r *Refresher) RefreshBooks(ctx context.Context, bookIDs []int64) Summary {
	batchID := uuid.NewString()
	ctx, span := r.tracer.StartBatch(ctx, batchID, len(bookIDs))
	defer span.End()

	r.publishEvent(ctx, event.NewEvent(event.EventBatchStarted).
		WithData("batch_id", batchID).
		WithData("size", len(bookIDs)))

	// Results are indexed by input position, not completion time.
	outcomes := make([]Outcome, len(bookIDs))
	var wg sync.WaitGroup
	for i, id := range bookIDs {
		wg.Add(1)
		go func(idx int, bookID int64) {
			defer wg.Done()
			outcomes[idx] = r.RefreshBookCache(ctx, bookID)
		}(i, id)
	}
	wg.Wait()

	summary := Summarize(outcomes)
	r.metrics.BatchCompleted(summary.Succeeded, summary.Skipped, summary.Failed)
	r.publishEvent(ctx, event.NewEvent(event.EventBatchCompleted).
		WithData("batch_id", batchID).
		WithData("succeeded", summary.Succeeded).
		WithData("skipped", summary.Skipped).
		WithData("failed", summary.Failed))
	r.logger.Printf("batch %s completed: %d success, %d skipped, %d failed",
		batchID, summary.Succeeded, summary.Skipped, summary.Failed)

	return summary
}

// RefreshAllBooks enumerates the catalog and refreshes every book.
// Enumeration failure is the only error that fails the batch; per-unit
// failures are reported in the summary.
func (r *Refresher) RefreshAllBooks(ctx context.Context) (Summary, error) {
	data, err := r.transport.Do(ctx, http.MethodGet, r.config.BaseURL+r.config.BooksPath, nil)
	if err != nil {
		return Summary{}, fmt.Errorf("%w: list books: %v", ErrCatalogUnavailable, err)
	}

	var books []struct {
		ID int64 `json:"id"`
	}
	if err := json.Unmarshal(data, &books); err != nil {
		return Summary{}, fmt.Errorf("%w: decode book list: %v", ErrCatalogUnavailable, err)
	}

	ids := make([]int64, len(books))
	for i, b := range books {
		ids[i] = b.ID
	}

	r.logger.Printf("found %d books", len(ids))
	return r.RefreshBooks(ctx, ids), nil
}

// refreshUnit executes one refresh unit:
// ledger check, permit acquisition, remote call, ledger mark.
// The permit is released unconditionally on every exit path.
func (r *Refresher) refreshUnit(ctx context.Context, u unit) Outcome {
	ctx, span := r.tracer.StartUnit(ctx, u.taskID, u.taskType)
	defer span.End()

	completed, err := r.ledger.IsCompleted(ctx, u.taskID)
	if err != nil {
		// The unit cannot safely determine its own completion status, so the
		// ledger error is fatal for this unit and not retried here.
		return r.failUnit(ctx, span, u, fmt.Errorf("%w: %v", ErrLedgerUnavailable, err), 0)
	}
	if completed {
		r.logger.Printf("task %.8s already completed today, skipping", u.taskID)
		r.metrics.RefreshSkipped(u.taskType)
		r.publishEvent(ctx, event.NewEvent(event.EventUnitSkipped).
			WithTaskID(u.taskID).
			WithTaskType(u.taskType))
		return Outcome{
			TaskID:   u.taskID,
			TaskType: u.taskType,
			BookID:   u.bookID,
			Status:   StatusSkipped,
			Reason:   ReasonAlreadyCompleted,
		}
	}

	permitStart := time.Now()
	if err := r.permits.Acquire(ctx, 1); err != nil {
		return r.failUnit(ctx, span, u, fmt.Errorf("acquire permit: %w", err), 0)
	}
	defer r.permits.Release(1)
	r.metrics.PermitWait(time.Since(permitStart))

	r.metrics.RefreshStarted(u.taskType)
	r.publishEvent(ctx, event.NewEvent(event.EventUnitStarted).
		WithTaskID(u.taskID).
		WithTaskType(u.taskType))

	start := time.Now()
	payload, err := r.transport.Do(ctx, u.method, u.url, nil)
	duration := time.Since(start)
	if err != nil {
		return r.failUnit(ctx, span, u, err, duration)
	}

	if err := r.ledger.MarkCompleted(ctx, u.taskID); err != nil {
		return r.failUnit(ctx, span, u, fmt.Errorf("%w: %v", ErrLedgerUnavailable, err), duration)
	}

	out := Outcome{
		TaskID:   u.taskID,
		TaskType: u.taskType,
		BookID:   u.bookID,
		Status:   StatusSuccess,
		Payload:  payload,
		Duration: duration,
	}
	if u.taskType == TaskTypeBookCache {
		out.Title = bookTitle(payload)
	}

	r.logger.Printf("task %.8s completed in %v", u.taskID, duration)
	r.metrics.RefreshCompleted(u.taskType, duration)
	r.publishEvent(ctx, event.NewEvent(event.EventUnitSuccess).
		WithTaskID(u.taskID).
		WithTaskType(u.taskType).
		WithData("duration", duration))

	return out
}

// failUnit builds a Failed outcome and reports it.
func (r *Refresher) failUnit(ctx context.Context, span tracing.Span, u unit, err error, duration time.Duration) Outcome {
	r.logger.Printf("task %.8s failed: %v", u.taskID, err)
	span.SetError(err)
	r.metrics.RefreshFailed(u.taskType, failReason(err))
	r.publishEvent(ctx, event.NewEvent(event.EventUnitFailed).
		WithTaskID(u.taskID).
		WithTaskType(u.taskType).
		WithError(err))

	return Outcome{
		TaskID:   u.taskID,
		TaskType: u.taskType,
		BookID:   u.bookID,
		Status:   StatusFailed,
		Duration: duration,
		Err:      err,
	}
}

// publishEvent publishes an event to the event bus.
func (r *Refresher) publishEvent(ctx context.Context, e event.Event) {
	if r.events != nil {
		r.events.Publish(ctx, e)
	}
}

// failReason maps an error to a metrics label.
func failReason(err error) string {
	switch {
	case errors.Is(err, ErrLedgerUnavailable):
		return "ledger"
	case errors.Is(err, ErrRetriesExhausted):
		return "retries_exhausted"
	default:
		return "transport"
	}
}

// bookTitle extracts the title from a catalog book payload.
func bookTitle(payload []byte) string {
	var book struct {
		Title string `json:"title"`
	}
	if err := json.Unmarshal(payload, &book); err != nil {
		return ""
	}
	return book.Title
}
