package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/custodia-labs/mailsync-cli/internal/core/domain"
	"github.com/custodia-labs/mailsync-cli/internal/core/ports/driven"
)

// deadLetterQueue implements driven.DeadLetterQueue.
type deadLetterQueue struct {
	store *Store
}

var _ driven.DeadLetterQueue = (*deadLetterQueue)(nil)

// Record stores an entry. A repeat record for the same item and operation
// increments the attempt count and advances last_seen_at in place, so a
// chronically failing item produces one row, not one per run.
func (q *deadLetterQueue) Record(ctx context.Context, entry *domain.DeadLetterEntry) error {
	now := time.Now().UTC()
	firstSeen := entry.FirstSeenAt
	if firstSeen.IsZero() {
		firstSeen = now
	}

	_, err := q.store.db.ExecContext(ctx, `
		INSERT INTO dead_letters (item_id, operation, error_category, error_message,
			attempt_count, first_seen_at, last_seen_at)
		VALUES (?, ?, ?, ?, 1, ?, ?)
		ON CONFLICT(item_id, operation) DO UPDATE SET
			error_category = excluded.error_category,
			error_message = excluded.error_message,
			attempt_count = attempt_count + 1,
			last_seen_at = excluded.last_seen_at
	`, entry.ItemID, string(entry.Operation), string(entry.ErrorCategory),
		entry.ErrorMessage, firstSeen, now)

	if err != nil {
		return fmt.Errorf("recording dead letter: %w", err)
	}
	return nil
}

// List returns entries matching the filter, most recent first.
func (q *deadLetterQueue) List(ctx context.Context, filter domain.DeadLetterFilter) ([]domain.DeadLetterEntry, error) {
	query := `
		SELECT item_id, operation, error_category, error_message,
			attempt_count, first_seen_at, last_seen_at
		FROM dead_letters`

	var conditions []string
	var args []any
	if filter.Operation != "" {
		conditions = append(conditions, "operation = ?")
		args = append(args, string(filter.Operation))
	}
	if filter.Category != "" {
		conditions = append(conditions, "error_category = ?")
		args = append(args, string(filter.Category))
	}
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY last_seen_at DESC"

	rows, err := q.store.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying dead letters: %w", err)
	}
	defer rows.Close()

	var entries []domain.DeadLetterEntry //nolint:prealloc // size unknown from query
	for rows.Next() {
		var entry domain.DeadLetterEntry
		var operation, category string
		var firstSeen, lastSeen sql.NullTime
		if err := rows.Scan(&entry.ItemID, &operation, &category, &entry.ErrorMessage,
			&entry.AttemptCount, &firstSeen, &lastSeen); err != nil {
			return nil, fmt.Errorf("scanning dead letter: %w", err)
		}
		entry.Operation = domain.Operation(operation)
		entry.ErrorCategory = domain.ErrorCategory(category)
		if firstSeen.Valid {
			entry.FirstSeenAt = firstSeen.Time
		}
		if lastSeen.Valid {
			entry.LastSeenAt = lastSeen.Time
		}
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating dead letters: %w", err)
	}
	return entries, nil
}

// Clear removes every entry for an item.
func (q *deadLetterQueue) Clear(ctx context.Context, itemID string) error {
	res, err := q.store.db.ExecContext(ctx, "DELETE FROM dead_letters WHERE item_id = ?", itemID)
	if err != nil {
		return fmt.Errorf("clearing dead letters: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("clearing dead letters: %w", err)
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}
