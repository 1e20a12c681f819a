package booklib

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"
)

// ============================================================================
// Mocks
// ============================================================================

// memoryLedger is an in-memory ledger for tests.
type memoryLedger struct {
	mu        sync.Mutex
	completed map[string]bool
	checkErr  error
	markErr   error
}

func newMemoryLedger() *memoryLedger {
	return &memoryLedger{completed: make(map[string]bool)}
}

func (l *memoryLedger) IsCompleted(ctx context.Context, taskKey string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.checkErr != nil {
		return false, l.checkErr
	}
	return l.completed[taskKey], nil
}

func (l *memoryLedger) MarkCompleted(ctx context.Context, taskKey string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.markErr != nil {
		return l.markErr
	}
	l.completed[taskKey] = true
	return nil
}

// fakeTransport records calls and answers with configurable responses.
type fakeTransport struct {
	mu       sync.Mutex
	calls    []string
	inFlight int
	maxSeen  int
	delay    time.Duration

	// failURLs maps URL substrings to errors.
	failURLs map[string]error

	// respond builds the response body per URL. Defaults to a book payload.
	respond func(method, url string) []byte
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{failURLs: make(map[string]error)}
}

func (f *fakeTransport) Do(ctx context.Context, method, url string, body []byte) ([]byte, error) {
	f.mu.Lock()
	f.calls = append(f.calls, method+" "+url)
	f.inFlight++
	if f.inFlight > f.maxSeen {
		f.maxSeen = f.inFlight
	}
	delay := f.delay
	f.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}

	f.mu.Lock()
	f.inFlight--
	var failErr error
	for sub, err := range f.failURLs {
		if strings.Contains(url, sub) {
			failErr = err
		}
	}
	respond := f.respond
	f.mu.Unlock()

	if failErr != nil {
		return nil, failErr
	}
	if respond != nil {
		return respond(method, url), nil
	}
	return []byte(`{"id":1,"title":"The Go Programming Language"}`), nil
}

func (f *fakeTransport) Close() {}

func (f *fakeTransport) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// fixedClock returns a frozen time source.
func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

var testDay = time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC)

func newTestRefresher(t *testing.T, l *memoryLedger, tr Transport, opts ...RefresherOption) *Refresher {
	t.Helper()
	base := []RefresherOption{
		WithLedger(l),
		WithTransport(tr),
		WithClock(fixedClock(testDay)),
	}
	r, err := NewRefresher(append(base, opts...)...)
	if err != nil {
		t.Fatalf("failed to build refresher: %v", err)
	}
	return r
}

// ============================================================================
// Construction
// ============================================================================

func TestNewRefresher_RequiresLedger(t *testing.T) {
	_, err := NewRefresher(WithTransport(newFakeTransport()))
	if !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig without a ledger, got %v", err)
	}
}

func TestNewRefresher_RejectsInvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxConcurrent = 0
	_, err := NewRefresher(
		WithLedger(newMemoryLedger()),
		WithTransport(newFakeTransport()),
		WithRefresherConfig(cfg),
	)
	if !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig for zero concurrency, got %v", err)
	}
}

// ============================================================================
// Single-unit semantics
// ============================================================================

func TestRefreshWeeklyRecommendations_FirstRunSucceeds(t *testing.T) {
	ledger := newMemoryLedger()
	transport := newFakeTransport()
	r := newTestRefresher(t, ledger, transport)

	out := r.RefreshWeeklyRecommendations(context.Background())

	if out.Status != StatusSuccess {
		t.Fatalf("expected success, got %s (%v)", out.Status, out.Err)
	}
	if out.TaskType != TaskTypeWeeklyRecommendations {
		t.Errorf("unexpected task type: %s", out.TaskType)
	}
	if transport.callCount() != 1 {
		t.Errorf("expected 1 call, got %d", transport.callCount())
	}
	if !ledger.completed[out.TaskID] {
		t.Error("expected task to be recorded in ledger")
	}
}

func TestRefreshWeeklyRecommendations_SecondRunSkips(t *testing.T) {
	ledger := newMemoryLedger()
	transport := newFakeTransport()
	r := newTestRefresher(t, ledger, transport)

	first := r.RefreshWeeklyRecommendations(context.Background())
	second := r.RefreshWeeklyRecommendations(context.Background())

	if first.Status != StatusSuccess {
		t.Fatalf("expected first run to succeed, got %s", first.Status)
	}
	if second.Status != StatusSkipped {
		t.Fatalf("expected second run to skip, got %s", second.Status)
	}
	if second.Reason != ReasonAlreadyCompleted {
		t.Errorf("expected reason %q, got %q", ReasonAlreadyCompleted, second.Reason)
	}
	if transport.callCount() != 1 {
		t.Errorf("expected the skip to make no remote call, got %d calls", transport.callCount())
	}
}

func TestRefreshBookCache_NextDayRunsAgain(t *testing.T) {
	ledger := newMemoryLedger()
	transport := newFakeTransport()

	day := testDay
	r, err := NewRefresher(
		WithLedger(ledger),
		WithTransport(transport),
		WithClock(func() time.Time { return day }),
	)
	if err != nil {
		t.Fatalf("failed to build refresher: %v", err)
	}

	if out := r.RefreshBookCache(context.Background(), 7); out.Status != StatusSuccess {
		t.Fatalf("expected success, got %s", out.Status)
	}
	if out := r.RefreshBookCache(context.Background(), 7); out.Status != StatusSkipped {
		t.Fatalf("expected same-day skip, got %s", out.Status)
	}

	day = day.AddDate(0, 0, 1)
	if out := r.RefreshBookCache(context.Background(), 7); out.Status != StatusSuccess {
		t.Fatalf("expected next-day rerun, got %s", out.Status)
	}
}

func TestRefreshBookCache_TitleExtracted(t *testing.T) {
	ledger := newMemoryLedger()
	transport := newFakeTransport()
	transport.respond = func(method, url string) []byte {
		return []byte(`{"id":7,"title":"Dune","author":"Frank Herbert"}`)
	}
	r := newTestRefresher(t, ledger, transport)

	out := r.RefreshBookCache(context.Background(), 7)
	if out.Status != StatusSuccess {
		t.Fatalf("expected success, got %s", out.Status)
	}
	if out.Title != "Dune" {
		t.Errorf("expected title Dune, got %q", out.Title)
	}
	if out.BookID != 7 {
		t.Errorf("expected book ID 7, got %d", out.BookID)
	}
}

func TestRefreshUnit_LedgerCheckErrorFailsWithoutRemoteCall(t *testing.T) {
	ledger := newMemoryLedger()
	ledger.checkErr = errors.New("redis down")
	transport := newFakeTransport()
	r := newTestRefresher(t, ledger, transport)

	out := r.RefreshBookCache(context.Background(), 1)

	if out.Status != StatusFailed {
		t.Fatalf("expected failure, got %s", out.Status)
	}
	if !errors.Is(out.Err, ErrLedgerUnavailable) {
		t.Errorf("expected ErrLedgerUnavailable, got %v", out.Err)
	}
	if transport.callCount() != 0 {
		t.Errorf("expected no remote call on ledger error, got %d", transport.callCount())
	}
}

func TestRefreshUnit_MarkErrorFailsUnit(t *testing.T) {
	ledger := newMemoryLedger()
	ledger.markErr = errors.New("redis down")
	transport := newFakeTransport()
	r := newTestRefresher(t, ledger, transport)

	out := r.RefreshBookCache(context.Background(), 1)

	if out.Status != StatusFailed {
		t.Fatalf("expected failure, got %s", out.Status)
	}
	if !errors.Is(out.Err, ErrLedgerUnavailable) {
		t.Errorf("expected ErrLedgerUnavailable, got %v", out.Err)
	}
}

func TestRefreshUnit_TransportFailureDoesNotMarkLedger(t *testing.T) {
	ledger := newMemoryLedger()
	transport := newFakeTransport()
	transport.failURLs["/books/1"] = fmt.Errorf("%w: 3 attempts, last status 500", ErrRetriesExhausted)
	r := newTestRefresher(t, ledger, transport)

	out := r.RefreshBookCache(context.Background(), 1)

	if out.Status != StatusFailed {
		t.Fatalf("expected failure, got %s", out.Status)
	}
	if !errors.Is(out.Err, ErrRetriesExhausted) {
		t.Errorf("expected ErrRetriesExhausted, got %v", out.Err)
	}
	if len(ledger.completed) != 0 {
		t.Error("failed unit must not be marked completed")
	}

	// A failed unit is eligible to run again.
	transport.failURLs = map[string]error{}
	if out := r.RefreshBookCache(context.Background(), 1); out.Status != StatusSuccess {
		t.Errorf("expected retry after failure to succeed, got %s", out.Status)
	}
}

// ============================================================================
// Batch semantics
// ============================================================================

func TestRefreshBooks_OrderPreserved(t *testing.T) {
	ledger := newMemoryLedger()
	transport := newFakeTransport()
	transport.delay = 5 * time.Millisecond
	r := newTestRefresher(t, ledger, transport)

	ids := []int64{10, 20, 30, 40, 50}
	summary := r.RefreshBooks(context.Background(), ids)

	if summary.Total() != len(ids) {
		t.Fatalf("expected %d outcomes, got %d", len(ids), summary.Total())
	}
	for i, out := range summary.Outcomes {
		if out.BookID != ids[i] {
			t.Errorf("outcome %d: expected book %d, got %d", i, ids[i], out.BookID)
		}
	}
}

func TestRefreshBooks_MixedOutcomes(t *testing.T) {
	ledger := newMemoryLedger()
	transport := newFakeTransport()
	transport.failURLs["/books/30"] = errors.New("connection refused")
	r := newTestRefresher(t, ledger, transport)

	// Pre-complete book 20 so it skips.
	preKey := DeriveTaskKey(TaskTypeBookCache, "20", testDay)
	ledger.completed[preKey] = true

	summary := r.RefreshBooks(context.Background(), []int64{10, 20, 30, 40})

	if summary.Succeeded != 2 || summary.Skipped != 1 || summary.Failed != 1 {
		t.Fatalf("expected 2/1/1, got %d/%d/%d", summary.Succeeded, summary.Skipped, summary.Failed)
	}

	wantStatus := []Status{StatusSuccess, StatusSkipped, StatusFailed, StatusSuccess}
	for i, out := range summary.Outcomes {
		if out.Status != wantStatus[i] {
			t.Errorf("outcome %d: expected %s, got %s", i, wantStatus[i], out.Status)
		}
	}
}

func TestRefreshBooks_ConcurrencyBounded(t *testing.T) {
	ledger := newMemoryLedger()
	transport := newFakeTransport()
	transport.delay = 20 * time.Millisecond

	cfg := DefaultConfig()
	cfg.MaxConcurrent = 2
	r := newTestRefresher(t, ledger, transport, WithRefresherConfig(cfg))

	summary := r.RefreshBooks(context.Background(), []int64{1, 2, 3, 4, 5, 6})

	if summary.Succeeded != 6 {
		t.Fatalf("expected all 6 to succeed, got %d", summary.Succeeded)
	}

	transport.mu.Lock()
	maxSeen := transport.maxSeen
	transport.mu.Unlock()
	if maxSeen > 2 {
		t.Errorf("expected at most 2 in flight, saw %d", maxSeen)
	}
}

func TestRefreshBooks_PartialFailureScenario(t *testing.T) {
	ledger := newMemoryLedger()
	transport := newFakeTransport()
	transport.delay = 5 * time.Millisecond
	transport.failURLs["/books/33"] = fmt.Errorf("%w: 3 attempts, last status 503", ErrRetriesExhausted)

	cfg := DefaultConfig()
	cfg.MaxConcurrent = 2
	r := newTestRefresher(t, ledger, transport, WithRefresherConfig(cfg))

	ids := []int64{11, 22, 33, 44, 55}
	summary := r.RefreshBooks(context.Background(), ids)

	if summary.Succeeded != 4 || summary.Skipped != 0 || summary.Failed != 1 {
		t.Fatalf("expected 4/0/1, got %d/%d/%d", summary.Succeeded, summary.Skipped, summary.Failed)
	}
	if summary.Total() != 5 {
		t.Fatalf("expected 5 outcomes, got %d", summary.Total())
	}
	for i, out := range summary.Outcomes {
		if out.BookID != ids[i] {
			t.Errorf("outcome %d: expected book %d, got %d", i, ids[i], out.BookID)
		}
	}
	if summary.Outcomes[2].Status != StatusFailed {
		t.Errorf("expected unit for book 33 to fail, got %s", summary.Outcomes[2].Status)
	}

	transport.mu.Lock()
	maxSeen := transport.maxSeen
	transport.mu.Unlock()
	if maxSeen > 2 {
		t.Errorf("expected at most 2 in flight, saw %d", maxSeen)
	}
}

func TestRefreshBooks_Empty(t *testing.T) {
	r := newTestRefresher(t, newMemoryLedger(), newFakeTransport())

	summary := r.RefreshBooks(context.Background(), nil)
	if summary.Total() != 0 {
		t.Errorf("expected empty summary, got %d outcomes", summary.Total())
	}
}

func TestRefreshAllBooks(t *testing.T) {
	ledger := newMemoryLedger()
	transport := newFakeTransport()
	transport.respond = func(method, url string) []byte {
		if strings.HasSuffix(url, "/books") {
			return []byte(`[{"id":1,"title":"A"},{"id":2,"title":"B"},{"id":3,"title":"C"}]`)
		}
		return []byte(`{"id":1,"title":"A"}`)
	}
	r := newTestRefresher(t, ledger, transport)

	summary, err := r.RefreshAllBooks(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if summary.Total() != 3 {
		t.Fatalf("expected 3 outcomes, got %d", summary.Total())
	}
	if summary.Succeeded != 3 {
		t.Errorf("expected 3 successes, got %d", summary.Succeeded)
	}
}

func TestRefreshAllBooks_ListFailure(t *testing.T) {
	ledger := newMemoryLedger()
	transport := newFakeTransport()
	transport.failURLs["/books"] = errors.New("connection refused")
	r := newTestRefresher(t, ledger, transport)

	_, err := r.RefreshAllBooks(context.Background())
	if !errors.Is(err, ErrCatalogUnavailable) {
		t.Fatalf("expected ErrCatalogUnavailable, got %v", err)
	}
}

// ============================================================================
// Failure reasons
// ============================================================================

func TestFailReason(t *testing.T) {
	tests := []struct {
		err    error
		reason string
	}{
		{fmt.Errorf("%w: x", ErrLedgerUnavailable), "ledger"},
		{fmt.Errorf("%w: 3 attempts", ErrRetriesExhausted), "retries_exhausted"},
		{errors.New("connection refused"), "transport"},
	}

	for _, tt := range tests {
		if got := failReason(tt.err); got != tt.reason {
			t.Errorf("failReason(%v) = %s, want %s", tt.err, got, tt.reason)
		}
	}
}
