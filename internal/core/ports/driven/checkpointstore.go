package driven

import (
	"context"

	"github.com/custodia-labs/mailsync-cli/internal/core/domain"
)

// CheckpointStore persists sync run checkpoints. Every write must be
// atomic: a crash mid-write leaves the prior checkpoint readable, never a
// torn record.
type CheckpointStore interface {
	// Save stores or replaces a checkpoint atomically.
	Save(ctx context.Context, cp *domain.SyncCheckpoint) error

	// Get retrieves a checkpoint by sync ID.
	// Returns domain.ErrNotFound if it does not exist.
	Get(ctx context.Context, syncID string) (*domain.SyncCheckpoint, error)

	// GetLatestResumable returns the most recently updated checkpoint in
	// IN_PROGRESS or INTERRUPTED state matching the query, or
	// domain.ErrNotFound if no resumable run exists. This is the sole
	// resume-discovery mechanism.
	GetLatestResumable(ctx context.Context, query string) (*domain.SyncCheckpoint, error)

	// List returns all retained checkpoints, most recently updated first.
	List(ctx context.Context) ([]domain.SyncCheckpoint, error)

	// Delete removes a checkpoint. Explicit cleanup only; the pipeline
	// never deletes checkpoints automatically.
	Delete(ctx context.Context, syncID string) error
}
