// Package ledger provides the idempotency ledger for refresh tasks.
package ledger

import "context"

// Ledger defines the interface for the completion ledger.
// It records which task keys have already completed today, backed by an
// external key-value store. A marker is not a lock: it provides idempotency
// for finished work, not mutual exclusion for in-flight work.
type Ledger interface {
	// IsCompleted reports whether the task key was already completed today.
	// An error means the store itself was unreachable and must be propagated
	// by the caller, not swallowed.
	IsCompleted(ctx context.Context, taskKey string) (bool, error)

	// MarkCompleted writes the completion marker for the task key with a
	// one-day expiry. Overwriting an existing marker is an effective no-op.
	MarkCompleted(ctx context.Context, taskKey string) error
}
