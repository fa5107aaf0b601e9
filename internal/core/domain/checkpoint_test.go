package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSyncState_Terminal(t *testing.T) {
	tests := []struct {
		state    SyncState
		terminal bool
	}{
		{SyncPending, false},
		{SyncInProgress, false},
		{SyncCompleted, true},
		{SyncFailed, true},
		{SyncInterrupted, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.state), func(t *testing.T) {
			assert.Equal(t, tt.terminal, tt.state.Terminal())
		})
	}
}

func TestSyncState_Resumable(t *testing.T) {
	tests := []struct {
		state     SyncState
		resumable bool
	}{
		{SyncPending, false},
		{SyncInProgress, true},
		{SyncCompleted, false},
		{SyncFailed, false},
		{SyncInterrupted, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.state), func(t *testing.T) {
			assert.Equal(t, tt.resumable, tt.state.Resumable())
		})
	}
}

func TestNewSyncCheckpoint(t *testing.T) {
	cp := NewSyncCheckpoint("sync-1", "label:INBOX", OperationFetch, "/tmp/out", map[string]string{"format": "eml"})

	assert.Equal(t, "sync-1", cp.SyncID)
	assert.Equal(t, "label:INBOX", cp.Query)
	assert.Equal(t, OperationFetch, cp.Operation)
	assert.Equal(t, SyncPending, cp.State)
	assert.Zero(t, cp.ProcessedItems)
	assert.Equal(t, "/tmp/out", cp.OutputLocation)
	assert.Equal(t, "eml", cp.Metadata["format"])
	assert.False(t, cp.CreatedAt.IsZero())
	assert.Equal(t, cp.CreatedAt, cp.UpdatedAt)
}

func TestSyncCheckpoint_Start(t *testing.T) {
	cp := NewSyncCheckpoint("sync-1", "q", OperationFetch, "", nil)

	require.NoError(t, cp.Start(250))
	assert.Equal(t, SyncInProgress, cp.State)
	assert.Equal(t, 250, cp.TotalItems)
}

func TestSyncCheckpoint_ApplyProgress(t *testing.T) {
	cp := NewSyncCheckpoint("sync-1", "q", OperationFetch, "", nil)
	require.NoError(t, cp.Start(100))

	require.NoError(t, cp.ApplyProgress(50, "item-50", []string{"item-37"}))
	assert.Equal(t, 50, cp.ProcessedItems)
	assert.Equal(t, "item-50", cp.LastItemID)
	assert.Equal(t, []string{"item-37"}, cp.FailedItemIDs)

	// Repeated failed IDs are not duplicated.
	require.NoError(t, cp.ApplyProgress(10, "item-60", []string{"item-37"}))
	assert.Equal(t, []string{"item-37"}, cp.FailedItemIDs)

	// Empty cursor keeps the previous one.
	require.NoError(t, cp.ApplyProgress(0, "", nil))
	assert.Equal(t, "item-60", cp.LastItemID)
}

func TestSyncCheckpoint_ApplyProgress_Invalid(t *testing.T) {
	cp := NewSyncCheckpoint("sync-1", "q", OperationFetch, "", nil)
	require.NoError(t, cp.Start(10))

	assert.ErrorIs(t, cp.ApplyProgress(-1, "", nil), ErrInvalidInput)
	assert.ErrorIs(t, cp.ApplyProgress(11, "", nil), ErrInvalidInput)
	assert.Zero(t, cp.ProcessedItems)
}

func TestSyncCheckpoint_TerminalIsImmutable(t *testing.T) {
	tests := []struct {
		name   string
		finish func(*SyncCheckpoint) error
	}{
		{"completed", (*SyncCheckpoint).MarkCompleted},
		{"failed", (*SyncCheckpoint).MarkFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cp := NewSyncCheckpoint("sync-1", "q", OperationFetch, "", nil)
			require.NoError(t, cp.Start(10))
			require.NoError(t, tt.finish(cp))

			assert.ErrorIs(t, cp.ApplyProgress(1, "x", nil), ErrCheckpointTerminal)
			assert.ErrorIs(t, cp.MarkInterrupted(), ErrCheckpointTerminal)
			assert.ErrorIs(t, cp.Start(10), ErrCheckpointTerminal)
		})
	}
}

func TestSyncCheckpoint_InterruptedIsResumable(t *testing.T) {
	cp := NewSyncCheckpoint("sync-1", "q", OperationFetch, "", nil)
	require.NoError(t, cp.Start(10))
	require.NoError(t, cp.MarkInterrupted())

	assert.True(t, cp.State.Resumable())

	// Resuming re-enters IN_PROGRESS and keeps progress.
	require.NoError(t, cp.ApplyProgress(3, "item-3", nil))
	require.NoError(t, cp.Start(10))
	assert.Equal(t, SyncInProgress, cp.State)
	assert.Equal(t, 3, cp.ProcessedItems)
}
