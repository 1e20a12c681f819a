package recommend

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"booklib/catalog"
)

// ============================================================================
// Test Helpers
// ============================================================================

// mockCache is a minimal mock of the Redis commands the service uses.
type mockCache struct {
	redis.Cmdable
	store   map[string][]byte
	ttls    map[string]time.Duration
	getErr  error
	setErr  error
	setuses int
}

func newMockCache() *mockCache {
	return &mockCache{
		store: make(map[string][]byte),
		ttls:  make(map[string]time.Duration),
	}
}

func (m *mockCache) Get(ctx context.Context, key string) *redis.StringCmd {
	cmd := redis.NewStringCmd(ctx)
	if m.getErr != nil {
		cmd.SetErr(m.getErr)
		return cmd
	}
	data, ok := m.store[key]
	if !ok {
		cmd.SetErr(redis.Nil)
		return cmd
	}
	cmd.SetVal(string(data))
	return cmd
}

func (m *mockCache) SetEx(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	cmd := redis.NewStatusCmd(ctx)
	if m.setErr != nil {
		cmd.SetErr(m.setErr)
		return cmd
	}
	m.setuses++
	m.store[key] = value.([]byte)
	m.ttls[key] = expiration
	cmd.SetVal("OK")
	return cmd
}

// topRatedStore answers TopRated with a fixed book list.
type topRatedStore struct {
	catalog.Store
	books []catalog.Book
	err   error
	calls int
}

func (s *topRatedStore) TopRated(ctx context.Context, limit int) ([]catalog.Book, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	if limit < len(s.books) {
		return s.books[:limit], nil
	}
	return s.books, nil
}

func ratedBooks() []catalog.Book {
	return []catalog.Book{
		{ID: 3, Title: "A", Author: "X", AverageRating: 9.4, TotalRatings: 7},
		{ID: 1, Title: "B", Author: "Y", AverageRating: 8.2, TotalRatings: 12},
	}
}

// ============================================================================
// Refresh
// ============================================================================

func TestRefresh(t *testing.T) {
	store := &topRatedStore{books: ratedBooks()}
	cache := newMockCache()
	svc := New(store, cache)

	jobID, err := svc.Refresh(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if jobID == "" {
		t.Error("expected non-empty job id")
	}

	data, ok := cache.store[CacheKey]
	if !ok {
		t.Fatal("expected recommendation set to be cached")
	}
	var recs []Recommendation
	if err := json.Unmarshal(data, &recs); err != nil {
		t.Fatalf("cached payload not JSON: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("expected 2 recommendations, got %d", len(recs))
	}
	if recs[0].ID != 3 || recs[0].Rating != 9.4 {
		t.Errorf("unexpected first recommendation: %+v", recs[0])
	}

	if got := cache.ttls[CacheKey]; got != 7*24*time.Hour {
		t.Errorf("expected one-week TTL, got %v", got)
	}
}

func TestRefresh_DistinctJobIDs(t *testing.T) {
	svc := New(&topRatedStore{books: ratedBooks()}, newMockCache())

	first, err := svc.Refresh(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := svc.Refresh(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first == second {
		t.Error("expected each refresh to get its own job id")
	}
}

func TestRefresh_StoreError(t *testing.T) {
	store := &topRatedStore{err: errors.New("db down")}
	cache := newMockCache()
	svc := New(store, cache)

	if _, err := svc.Refresh(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if cache.setuses != 0 {
		t.Error("expected nothing cached on compute failure")
	}
}

func TestRefresh_CacheError(t *testing.T) {
	store := &topRatedStore{books: ratedBooks()}
	cache := newMockCache()
	cache.setErr = errors.New("redis down")
	svc := New(store, cache)

	if _, err := svc.Refresh(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

// ============================================================================
// Current
// ============================================================================

func TestCurrent_CacheHit(t *testing.T) {
	store := &topRatedStore{books: ratedBooks()}
	cache := newMockCache()
	cached := []Recommendation{{ID: 9, Title: "Cached", Rating: 7.0}}
	data, _ := json.Marshal(cached)
	cache.store[CacheKey] = data

	svc := New(store, cache)
	recs, err := svc.Current(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(recs) != 1 || recs[0].Title != "Cached" {
		t.Errorf("expected cached set, got %+v", recs)
	}
	if store.calls != 0 {
		t.Errorf("expected no store call on cache hit, got %d", store.calls)
	}
}

func TestCurrent_CacheMissRecomputes(t *testing.T) {
	store := &topRatedStore{books: ratedBooks()}
	cache := newMockCache()
	svc := New(store, cache)

	recs, err := svc.Current(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("expected 2 recommendations, got %d", len(recs))
	}
	if store.calls != 1 {
		t.Errorf("expected 1 store call, got %d", store.calls)
	}
	if _, ok := cache.store[CacheKey]; !ok {
		t.Error("expected recomputed set to be cached")
	}
}

func TestCurrent_CacheError(t *testing.T) {
	store := &topRatedStore{books: ratedBooks()}
	cache := newMockCache()
	cache.getErr = errors.New("redis down")
	svc := New(store, cache)

	if _, err := svc.Current(context.Background()); err == nil {
		t.Fatal("expected error when the cache is unavailable")
	}
	if store.calls != 0 {
		t.Error("a cache failure must not fall through to the store")
	}
}

func TestCurrent_CorruptCache(t *testing.T) {
	cache := newMockCache()
	cache.store[CacheKey] = []byte("{not json")
	svc := New(&topRatedStore{}, cache)

	if _, err := svc.Current(context.Background()); err == nil {
		t.Fatal("expected error for corrupt cached payload")
	}
}
