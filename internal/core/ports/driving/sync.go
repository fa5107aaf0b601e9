package driving

import (
	"context"

	"github.com/custodia-labs/mailsync-cli/internal/core/domain"
)

// SyncOrchestrator drives bulk synchronisation runs.
type SyncOrchestrator interface {
	// Run executes one sync run to a terminal or interrupted state and
	// returns its checkpoint. The returned checkpoint is non-nil even
	// when err is non-nil, so callers can always report progress and
	// resumability.
	Run(ctx context.Context, req RunRequest) (*domain.SyncCheckpoint, error)

	// Status returns live progress for the run identified by query.
	Status(ctx context.Context, query string) (*SyncStatus, error)
}

// RunRequest describes one sync run.
type RunRequest struct {
	// Query is the caller-owned selection criteria for the item set.
	Query string

	// Operation is the bulk action to apply.
	Operation domain.Operation

	// Resume continues the latest resumable checkpoint for Query
	// instead of starting fresh.
	Resume bool

	// OutputLocation and Metadata are opaque caller context persisted
	// into the checkpoint for resume.
	OutputLocation string
	Metadata       map[string]string
}

// SyncStatus is a point-in-time snapshot of a running sync.
type SyncStatus struct {
	SyncID         string
	Query          string
	Running        bool
	TotalItems     int
	ProcessedItems int
	FailedItems    int
	DeadLettered   int
}
