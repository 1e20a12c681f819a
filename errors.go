package booklib

import "errors"

// Transport errors
var (
	// ErrRetriesExhausted indicates all retry attempts were consumed without a success
	ErrRetriesExhausted = errors.New("retries exhausted")

	// ErrRateLimited indicates the remote endpoint returned a rate-limit response
	ErrRateLimited = errors.New("rate limited")
)

// Refresher errors
var (
	// ErrLedgerUnavailable indicates the idempotency ledger could not be reached
	ErrLedgerUnavailable = errors.New("idempotency ledger unavailable")

	// ErrCatalogUnavailable indicates the work list could not be enumerated
	ErrCatalogUnavailable = errors.New("catalog unavailable")
)

// Config errors
var (
	// ErrInvalidConfig indicates the configuration is invalid
	ErrInvalidConfig = errors.New("invalid configuration")
)
