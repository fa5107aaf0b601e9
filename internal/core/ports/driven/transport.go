package driven

import (
	"context"

	"github.com/custodia-labs/mailsync-cli/internal/core/domain"
)

// ItemOutcome is the per-item result demultiplexed from a batch response.
// Exactly one of Item and Err is set.
type ItemOutcome struct {
	ItemID string
	Item   *domain.Item
	Err    error
}

// BatchTransport executes operations against the upstream mail API.
// Implementations own the wire format; the core only depends on per-item
// success/error decomposition.
type BatchTransport interface {
	// ExecuteBatch applies the operation to a chunk of item IDs in a
	// single round-trip and returns one outcome per requested ID.
	// A non-nil error means the batch call itself failed and no
	// per-item outcomes are available.
	ExecuteBatch(ctx context.Context, op domain.Operation, itemIDs []string) ([]ItemOutcome, error)

	// Execute applies the operation to a single item. Used by the
	// sequential fallback path when the batching protocol is failing.
	Execute(ctx context.Context, op domain.Operation, itemID string) (*domain.Item, error)

	// MaxBatchSize returns the protocol-imposed upper bound on items
	// per batch call.
	MaxBatchSize() int
}

// ItemEnumerator lists candidate item IDs for a query. The order must be
// stable across calls with the same query; resume correctness depends on
// it (owned by the fetch-trigger layer).
type ItemEnumerator interface {
	// Enumerate returns the full, bounded, ordered candidate ID set.
	Enumerate(ctx context.Context, query string) ([]string, error)
}

// ItemSink receives each successfully processed item (owned by the
// storage/formatting layer).
type ItemSink interface {
	// Put consumes one item outcome. Sink errors are per-item: they
	// fail the item, never the run.
	Put(ctx context.Context, op domain.Operation, item *domain.Item) error
}
