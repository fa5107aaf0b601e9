package domain

import (
	"errors"
	"fmt"
)

// Domain errors represent business logic failures.
// These are distinct from infrastructure errors.
var (
	// ErrNotFound indicates a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput indicates malformed or invalid input.
	ErrInvalidInput = errors.New("invalid input")

	// ErrCheckpointTerminal indicates a mutation was attempted on a
	// checkpoint already in COMPLETED or FAILED state.
	ErrCheckpointTerminal = errors.New("checkpoint is terminal")

	// ErrSyncInProgress indicates a sync is already running for the query.
	ErrSyncInProgress = errors.New("sync in progress")

	// ErrRetriesExhausted indicates an item failed every retry attempt.
	ErrRetriesExhausted = errors.New("retries exhausted")
)

// ErrorCategory is the closed classification of upstream failures.
// The category decides how the pipeline reacts: transient errors are retried
// a bounded number of times, systemic errors pause the whole run through the
// circuit breaker, permanent errors go straight to the dead-letter queue.
type ErrorCategory string

const (
	// CategoryTransient is a retryable single-item failure.
	CategoryTransient ErrorCategory = "transient"
	// CategorySystemic is an upstream-wide failure (unavailable, auth
	// expired, quota exhausted).
	CategorySystemic ErrorCategory = "systemic"
	// CategoryPermanent is a non-retryable per-item failure (validation,
	// permanently missing resource).
	CategoryPermanent ErrorCategory = "permanent"
)

// Valid reports whether the category is one of the closed set.
func (c ErrorCategory) Valid() bool {
	switch c {
	case CategoryTransient, CategorySystemic, CategoryPermanent:
		return true
	default:
		return false
	}
}

// Classifier maps a transport error to an ErrorCategory. Each upstream
// adapter supplies its own classifier so the retry and breaker logic stays
// decoupled from any specific API's error types. A nil error must never be
// passed to a classifier.
type Classifier func(error) ErrorCategory

// ItemError attaches an item ID and a category to an underlying error.
type ItemError struct {
	ItemID   string
	Category ErrorCategory
	Err      error
}

// Error implements the error interface.
func (e *ItemError) Error() string {
	return fmt.Sprintf("item %s (%s): %v", e.ItemID, e.Category, e.Err)
}

// Unwrap returns the underlying error.
func (e *ItemError) Unwrap() error {
	return e.Err
}
