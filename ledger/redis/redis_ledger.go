// Package redis provides a Redis implementation of the ledger.Ledger interface.
package redis

import (
	"context"
	"fmt"
	"time"

	"booklib/ledger"

	"github.com/redis/go-redis/v9"
)

// Ensure RedisLedger implements ledger.Ledger
var _ ledger.Ledger = (*RedisLedger)(nil)

// completionTTL is exactly one calendar day. A marker written now expires
// 86,400 seconds later; its absence means "not yet completed today".
const completionTTL = 24 * time.Hour

// RedisLedger implements the completion ledger using Redis.
// Correctness rests on Redis read-after-write consistency for a single key,
// which this type assumes but does not verify.
type RedisLedger struct {
	client redis.Cmdable
	prefix string
}

// Option is a functional option for configuring RedisLedger
type Option func(*RedisLedger)

// WithPrefix sets the key prefix for completion markers
func WithPrefix(prefix string) Option {
	return func(l *RedisLedger) {
		l.prefix = prefix
	}
}

// New creates a new Redis-backed ledger
func New(client redis.Cmdable, opts ...Option) *RedisLedger {
	l := &RedisLedger{
		client: client,
		prefix: "refresh:completed:",
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// IsCompleted reports whether a completion marker exists for the task key.
func (l *RedisLedger) IsCompleted(ctx context.Context, taskKey string) (bool, error) {
	n, err := l.client.Exists(ctx, l.prefix+taskKey).Result()
	if err != nil {
		return false, fmt.Errorf("ledger exists %s: %w", taskKey, err)
	}
	return n > 0, nil
}

// MarkCompleted writes the completion marker with the one-day expiry.
// The marker carries no payload beyond existence.
func (l *RedisLedger) MarkCompleted(ctx context.Context, taskKey string) error {
	if err := l.client.SetEx(ctx, l.prefix+taskKey, "1", completionTTL).Err(); err != nil {
		return fmt.Errorf("ledger setex %s: %w", taskKey, err)
	}
	return nil
}
