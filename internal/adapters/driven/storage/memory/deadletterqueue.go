package memory

import (
	"context"
	"slices"
	"sync"

	"github.com/custodia-labs/mailsync-cli/internal/core/domain"
	"github.com/custodia-labs/mailsync-cli/internal/core/ports/driven"
)

// Ensure DeadLetterQueue implements the interface.
var _ driven.DeadLetterQueue = (*DeadLetterQueue)(nil)

// dlqKey identifies one dead-letter entry: the same item can fail under
// different operations.
type dlqKey struct {
	itemID    string
	operation domain.Operation
}

// DeadLetterQueue is an in-memory implementation of driven.DeadLetterQueue
// for tests. It is not durable.
type DeadLetterQueue struct {
	mu      sync.RWMutex
	entries map[dlqKey]domain.DeadLetterEntry
}

// NewDeadLetterQueue creates a new in-memory dead-letter queue.
func NewDeadLetterQueue() *DeadLetterQueue {
	return &DeadLetterQueue{
		entries: make(map[dlqKey]domain.DeadLetterEntry),
	}
}

// Record stores an entry, incrementing the attempt count when the item
// already failed this operation before.
func (q *DeadLetterQueue) Record(_ context.Context, entry *domain.DeadLetterEntry) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	key := dlqKey{itemID: entry.ItemID, operation: entry.Operation}
	if existing, ok := q.entries[key]; ok {
		existing.AttemptCount++
		existing.LastSeenAt = entry.LastSeenAt
		existing.ErrorCategory = entry.ErrorCategory
		existing.ErrorMessage = entry.ErrorMessage
		q.entries[key] = existing
		return nil
	}
	q.entries[key] = *entry
	return nil
}

// List returns entries matching the filter, most recently seen first.
func (q *DeadLetterQueue) List(_ context.Context, filter domain.DeadLetterFilter) ([]domain.DeadLetterEntry, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	var result []domain.DeadLetterEntry
	for _, entry := range q.entries {
		if filter.Matches(entry) {
			result = append(result, entry)
		}
	}
	slices.SortFunc(result, func(a, b domain.DeadLetterEntry) int {
		return b.LastSeenAt.Compare(a.LastSeenAt)
	})
	return result, nil
}

// Clear removes every entry for an item.
func (q *DeadLetterQueue) Clear(_ context.Context, itemID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	found := false
	for key := range q.entries {
		if key.itemID == itemID {
			delete(q.entries, key)
			found = true
		}
	}
	if !found {
		return domain.ErrNotFound
	}
	return nil
}
