package domain

import (
	"slices"
	"time"
)

// SyncState is the lifecycle state of a sync run.
type SyncState string

const (
	// SyncPending is the initial state before any work has started.
	SyncPending SyncState = "pending"
	// SyncInProgress indicates the run is actively processing items.
	SyncInProgress SyncState = "in_progress"
	// SyncCompleted indicates the run finished cleanly. Terminal.
	SyncCompleted SyncState = "completed"
	// SyncFailed indicates the run aborted unrecoverably. Terminal.
	SyncFailed SyncState = "failed"
	// SyncInterrupted indicates the run was stopped externally and can
	// be resumed.
	SyncInterrupted SyncState = "interrupted"
)

// Terminal reports whether the state is final. Terminal checkpoints are
// immutable and never resumed.
func (s SyncState) Terminal() bool {
	return s == SyncCompleted || s == SyncFailed
}

// Resumable reports whether a run in this state may be continued.
func (s SyncState) Resumable() bool {
	return s == SyncInProgress || s == SyncInterrupted
}

// SyncCheckpoint is the durable record of a sync run's progress. It is
// created at run start, mutated on every progress update, and marked with a
// final state at run end. Checkpoints are retained for audit until explicit
// cleanup.
type SyncCheckpoint struct {
	// SyncID uniquely identifies one sync run.
	SyncID string `json:"sync_id"`
	// Query is the caller-owned selection criteria defining the item set.
	Query string `json:"query"`
	// Operation is the bulk action this run applies.
	Operation Operation `json:"operation"`
	// State is the lifecycle state of the run.
	State SyncState `json:"state"`
	// TotalItems is the size of the enumerated candidate set.
	TotalItems int `json:"total_items"`
	// ProcessedItems counts items acknowledged as processed, including
	// permanent failures routed to the dead-letter queue.
	ProcessedItems int `json:"processed_items"`
	// LastItemID is the resume cursor: the last item acknowledged in
	// enumeration order.
	LastItemID string `json:"last_item_id"`
	// FailedItemIDs lists items dead-lettered during this run.
	FailedItemIDs []string `json:"failed_item_ids,omitempty"`
	// OutputLocation is caller-owned context needed to resume.
	OutputLocation string `json:"output_location,omitempty"`
	// Metadata is opaque caller-owned context carried across resumes.
	Metadata map[string]string `json:"metadata,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewSyncCheckpoint creates a pending checkpoint for a fresh run.
// The caller supplies the unique sync ID.
func NewSyncCheckpoint(syncID, query string, op Operation, outputLocation string, metadata map[string]string) *SyncCheckpoint {
	now := time.Now().UTC()
	return &SyncCheckpoint{
		SyncID:         syncID,
		Query:          query,
		Operation:      op,
		State:          SyncPending,
		OutputLocation: outputLocation,
		Metadata:       metadata,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// Start transitions the checkpoint to IN_PROGRESS and records the size of
// the enumerated item set.
func (c *SyncCheckpoint) Start(totalItems int) error {
	if c.State.Terminal() {
		return ErrCheckpointTerminal
	}
	if totalItems < c.ProcessedItems {
		return ErrInvalidInput
	}
	c.State = SyncInProgress
	c.TotalItems = totalItems
	c.touch()
	return nil
}

// ApplyProgress advances the processed counter and resume cursor.
// Counters are monotonically non-decreasing; delta must not overshoot the
// known total.
func (c *SyncCheckpoint) ApplyProgress(delta int, lastItemID string, failedIDs []string) error {
	if c.State.Terminal() {
		return ErrCheckpointTerminal
	}
	if delta < 0 || c.ProcessedItems+delta > c.TotalItems {
		return ErrInvalidInput
	}
	c.ProcessedItems += delta
	if lastItemID != "" {
		c.LastItemID = lastItemID
	}
	for _, id := range failedIDs {
		if !slices.Contains(c.FailedItemIDs, id) {
			c.FailedItemIDs = append(c.FailedItemIDs, id)
		}
	}
	c.touch()
	return nil
}

// MarkCompleted transitions the run to its successful terminal state.
func (c *SyncCheckpoint) MarkCompleted() error {
	return c.finish(SyncCompleted)
}

// MarkFailed transitions the run to its unrecoverable terminal state.
func (c *SyncCheckpoint) MarkFailed() error {
	return c.finish(SyncFailed)
}

// MarkInterrupted records that the run was stopped and may be resumed.
func (c *SyncCheckpoint) MarkInterrupted() error {
	return c.finish(SyncInterrupted)
}

func (c *SyncCheckpoint) finish(state SyncState) error {
	if c.State.Terminal() {
		return ErrCheckpointTerminal
	}
	c.State = state
	c.touch()
	return nil
}

func (c *SyncCheckpoint) touch() {
	c.UpdatedAt = time.Now().UTC()
}
