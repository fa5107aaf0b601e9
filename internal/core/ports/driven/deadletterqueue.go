package driven

import (
	"context"

	"github.com/custodia-labs/mailsync-cli/internal/core/domain"
)

// DeadLetterQueue is the durable record of items that exhausted retries.
// It converts silently dropped failures into durably queued work for
// operator inspection and manual replay.
type DeadLetterQueue interface {
	// Record stores an entry. Repeated records for the same item and
	// operation are idempotent: the attempt count increments and the
	// last-seen timestamp advances, no duplicate entry is created.
	Record(ctx context.Context, entry *domain.DeadLetterEntry) error

	// List returns entries matching the filter, most recent first.
	List(ctx context.Context, filter domain.DeadLetterFilter) ([]domain.DeadLetterEntry, error)

	// Clear removes every entry for an item. Operator action only.
	// Returns domain.ErrNotFound if no entry exists.
	Clear(ctx context.Context, itemID string) error
}
