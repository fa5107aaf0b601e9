package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/mailsync-cli/internal/core/domain"
)

func newCheckpoint(id, query string) *domain.SyncCheckpoint {
	return domain.NewSyncCheckpoint(id, query, domain.OperationFetch, "", nil)
}

func TestCheckpointStore_SaveAndGet(t *testing.T) {
	store := NewCheckpointStore()
	ctx := context.Background()

	cp := newCheckpoint("sync-1", "label:INBOX")
	require.NoError(t, cp.Start(10))
	require.NoError(t, store.Save(ctx, cp))

	got, err := store.Get(ctx, "sync-1")
	require.NoError(t, err)
	assert.Equal(t, cp.SyncID, got.SyncID)
	assert.Equal(t, domain.SyncInProgress, got.State)

	// Returned checkpoint is a copy; mutations don't leak back.
	got.ProcessedItems = 99
	again, err := store.Get(ctx, "sync-1")
	require.NoError(t, err)
	assert.Zero(t, again.ProcessedItems)
}

func TestCheckpointStore_Get_NotFound(t *testing.T) {
	store := NewCheckpointStore()

	_, err := store.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCheckpointStore_GetLatestResumable(t *testing.T) {
	store := NewCheckpointStore()
	ctx := context.Background()

	older := newCheckpoint("sync-1", "q")
	require.NoError(t, older.Start(10))
	require.NoError(t, store.Save(ctx, older))

	time.Sleep(5 * time.Millisecond)

	newer := newCheckpoint("sync-2", "q")
	require.NoError(t, newer.Start(10))
	require.NoError(t, newer.MarkInterrupted())
	require.NoError(t, store.Save(ctx, newer))

	// Completed runs never surface as resumable.
	done := newCheckpoint("sync-3", "q")
	require.NoError(t, done.Start(10))
	require.NoError(t, done.MarkCompleted())
	require.NoError(t, store.Save(ctx, done))

	got, err := store.GetLatestResumable(ctx, "q")
	require.NoError(t, err)
	assert.Equal(t, "sync-2", got.SyncID)

	_, err = store.GetLatestResumable(ctx, "other-query")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCheckpointStore_ListAndDelete(t *testing.T) {
	store := NewCheckpointStore()
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, newCheckpoint("sync-1", "a")))
	require.NoError(t, store.Save(ctx, newCheckpoint("sync-2", "b")))

	all, err := store.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	require.NoError(t, store.Delete(ctx, "sync-1"))
	assert.ErrorIs(t, store.Delete(ctx, "sync-1"), domain.ErrNotFound)

	all, err = store.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}
