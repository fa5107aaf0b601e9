package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/custodia-labs/mailsync-cli/internal/core/domain"
	"github.com/custodia-labs/mailsync-cli/internal/core/ports/driven"
)

// checkpointStore implements driven.CheckpointStore.
type checkpointStore struct {
	store *Store
}

var _ driven.CheckpointStore = (*checkpointStore)(nil)

// Save stores or replaces a checkpoint. The upsert is a single statement,
// so SQLite's journalling makes the write atomic: a crash mid-write leaves
// the prior row readable.
func (s *checkpointStore) Save(ctx context.Context, cp *domain.SyncCheckpoint) error {
	failedJSON, err := json.Marshal(cp.FailedItemIDs)
	if err != nil {
		return fmt.Errorf("marshalling failed item ids: %w", err)
	}
	metadataJSON, err := json.Marshal(cp.Metadata)
	if err != nil {
		return fmt.Errorf("marshalling metadata: %w", err)
	}

	_, err = s.store.db.ExecContext(ctx, `
		INSERT INTO sync_checkpoints (sync_id, query, operation, state, total_items,
			processed_items, last_item_id, failed_item_ids, output_location, metadata,
			created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(sync_id) DO UPDATE SET
			query = excluded.query,
			operation = excluded.operation,
			state = excluded.state,
			total_items = excluded.total_items,
			processed_items = excluded.processed_items,
			last_item_id = excluded.last_item_id,
			failed_item_ids = excluded.failed_item_ids,
			output_location = excluded.output_location,
			metadata = excluded.metadata,
			updated_at = excluded.updated_at
	`, cp.SyncID, cp.Query, string(cp.Operation), string(cp.State), cp.TotalItems,
		cp.ProcessedItems, cp.LastItemID, string(failedJSON), cp.OutputLocation,
		string(metadataJSON), cp.CreatedAt, cp.UpdatedAt)

	if err != nil {
		return fmt.Errorf("saving checkpoint: %w", err)
	}
	return nil
}

// Get retrieves a checkpoint by sync ID.
func (s *checkpointStore) Get(ctx context.Context, syncID string) (*domain.SyncCheckpoint, error) {
	row := s.store.db.QueryRowContext(ctx, `
		SELECT sync_id, query, operation, state, total_items, processed_items,
			last_item_id, failed_item_ids, output_location, metadata, created_at, updated_at
		FROM sync_checkpoints WHERE sync_id = ?
	`, syncID)

	cp, err := scanCheckpoint(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return cp, nil
}

// GetLatestResumable returns the most recently updated IN_PROGRESS or
// INTERRUPTED checkpoint for the query.
func (s *checkpointStore) GetLatestResumable(ctx context.Context, query string) (*domain.SyncCheckpoint, error) {
	row := s.store.db.QueryRowContext(ctx, `
		SELECT sync_id, query, operation, state, total_items, processed_items,
			last_item_id, failed_item_ids, output_location, metadata, created_at, updated_at
		FROM sync_checkpoints
		WHERE query = ? AND state IN (?, ?)
		ORDER BY updated_at DESC
		LIMIT 1
	`, query, string(domain.SyncInProgress), string(domain.SyncInterrupted))

	cp, err := scanCheckpoint(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return cp, nil
}

// List returns all retained checkpoints, most recently updated first.
func (s *checkpointStore) List(ctx context.Context) ([]domain.SyncCheckpoint, error) {
	rows, err := s.store.db.QueryContext(ctx, `
		SELECT sync_id, query, operation, state, total_items, processed_items,
			last_item_id, failed_item_ids, output_location, metadata, created_at, updated_at
		FROM sync_checkpoints
		ORDER BY updated_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("querying checkpoints: %w", err)
	}
	defer rows.Close()

	var checkpoints []domain.SyncCheckpoint //nolint:prealloc // size unknown from query
	for rows.Next() {
		cp, err := scanCheckpoint(rows)
		if err != nil {
			return nil, err
		}
		checkpoints = append(checkpoints, *cp)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating checkpoints: %w", err)
	}
	return checkpoints, nil
}

// Delete removes a checkpoint.
func (s *checkpointStore) Delete(ctx context.Context, syncID string) error {
	res, err := s.store.db.ExecContext(ctx, "DELETE FROM sync_checkpoints WHERE sync_id = ?", syncID)
	if err != nil {
		return fmt.Errorf("deleting checkpoint: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// rowScanner covers *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanCheckpoint(row rowScanner) (*domain.SyncCheckpoint, error) {
	var cp domain.SyncCheckpoint
	var operation, state, failedJSON, metadataJSON string
	var createdAt, updatedAt sql.NullTime

	if err := row.Scan(&cp.SyncID, &cp.Query, &operation, &state, &cp.TotalItems,
		&cp.ProcessedItems, &cp.LastItemID, &failedJSON, &cp.OutputLocation,
		&metadataJSON, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning checkpoint: %w", err)
	}

	cp.Operation = domain.Operation(operation)
	cp.State = domain.SyncState(state)
	if failedJSON != jsonNull {
		if err := json.Unmarshal([]byte(failedJSON), &cp.FailedItemIDs); err != nil {
			return nil, fmt.Errorf("unmarshaling failed item ids: %w", err)
		}
	}
	if metadataJSON != jsonNull {
		if err := json.Unmarshal([]byte(metadataJSON), &cp.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshaling metadata: %w", err)
		}
	}
	if createdAt.Valid {
		cp.CreatedAt = createdAt.Time
	}
	if updatedAt.Valid {
		cp.UpdatedAt = updatedAt.Time
	}
	return &cp, nil
}
