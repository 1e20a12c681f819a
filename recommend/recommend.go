// Package recommend computes weekly book recommendations and caches them
// in Redis for the catalog API.
package recommend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"booklib/catalog"
	"booklib/metrics"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// CacheKey is the Redis key holding the current recommendation set.
const CacheKey = "weekly_recommendations"

// cacheTTL keeps a recommendation set for one week.
const cacheTTL = 7 * 24 * time.Hour

// topN is the number of books in a recommendation set.
const topN = 5

// Recommendation is one recommended book.
type Recommendation struct {
	ID           int64   `json:"id"`
	Title        string  `json:"title"`
	Author       string  `json:"author"`
	Rating       float64 `json:"rating"`
	TotalRatings int     `json:"total_ratings"`
}

// Service computes and caches weekly recommendations.
type Service struct {
	store   catalog.Store
	cache   redis.Cmdable
	metrics metrics.Metrics
}

// ServiceOption is a functional option for configuring Service
type ServiceOption func(*Service)

// WithMetrics sets the metrics collector.
func WithMetrics(m metrics.Metrics) ServiceOption {
	return func(s *Service) {
		s.metrics = m
	}
}

// New creates a recommendation service over the given store and cache.
func New(store catalog.Store, cache redis.Cmdable, opts ...ServiceOption) *Service {
	s := &Service{
		store:   store,
		cache:   cache,
		metrics: &metrics.NoopMetrics{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Refresh recomputes the recommendation set, caches it, and returns an
// opaque job identifier as the acknowledgment. Calling it again within the
// same window recomputes and overwrites; the operation is idempotent at the
// cache level.
func (s *Service) Refresh(ctx context.Context) (string, error) {
	recs, err := s.compute(ctx)
	if err != nil {
		return "", err
	}
	if err := s.put(ctx, recs); err != nil {
		return "", err
	}
	return uuid.NewString(), nil
}

// Current returns the cached recommendation set, recomputing on a miss.
func (s *Service) Current(ctx context.Context) ([]Recommendation, error) {
	data, err := s.cache.Get(ctx, CacheKey).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("read recommendation cache: %w", err)
		}
		recs, err := s.compute(ctx)
		if err != nil {
			return nil, err
		}
		if err := s.put(ctx, recs); err != nil {
			return nil, err
		}
		return recs, nil
	}

	var recs []Recommendation
	if err := json.Unmarshal(data, &recs); err != nil {
		return nil, fmt.Errorf("decode recommendation cache: %w", err)
	}
	return recs, nil
}

// compute builds the top-rated recommendation set from the catalog.
func (s *Service) compute(ctx context.Context) ([]Recommendation, error) {
	books, err := s.store.TopRated(ctx, topN)
	if err != nil {
		return nil, fmt.Errorf("top rated books: %w", err)
	}

	recs := make([]Recommendation, 0, len(books))
	for _, b := range books {
		recs = append(recs, Recommendation{
			ID:           b.ID,
			Title:        b.Title,
			Author:       b.Author,
			Rating:       b.AverageRating,
			TotalRatings: b.TotalRatings,
		})
	}
	return recs, nil
}

// put writes the recommendation set to the cache.
func (s *Service) put(ctx context.Context, recs []Recommendation) error {
	data, err := json.Marshal(recs)
	if err != nil {
		return fmt.Errorf("encode recommendations: %w", err)
	}
	if err := s.cache.SetEx(ctx, CacheKey, data, cacheTTL).Err(); err != nil {
		return fmt.Errorf("cache recommendations: %w", err)
	}
	s.metrics.CacheUpdated(len(recs))
	return nil
}
