package file

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/mailsync-cli/internal/core/domain"
)

func newTestStore(t *testing.T) *CheckpointStore {
	t.Helper()
	store, err := NewCheckpointStore(t.TempDir())
	require.NoError(t, err)
	return store
}

func TestCheckpointStore_SaveGetRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	cp := domain.NewSyncCheckpoint("sync-1", "label:archive", domain.OperationFetch, "/tmp/out", map[string]string{"format": "eml"})
	require.NoError(t, cp.Start(100))
	require.NoError(t, cp.ApplyProgress(40, "msg-039", []string{"msg-007"}))
	require.NoError(t, store.Save(ctx, cp))

	got, err := store.Get(ctx, "sync-1")
	require.NoError(t, err)
	assert.Equal(t, cp.SyncID, got.SyncID)
	assert.Equal(t, domain.SyncInProgress, got.State)
	assert.Equal(t, 40, got.ProcessedItems)
	assert.Equal(t, "msg-039", got.LastItemID)
	assert.Equal(t, []string{"msg-007"}, got.FailedItemIDs)
	assert.Equal(t, map[string]string{"format": "eml"}, got.Metadata)
}

func TestCheckpointStore_GetNotFound(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCheckpointStore_LatestResumablePicksNewest(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	older := domain.NewSyncCheckpoint("sync-old", "q", domain.OperationFetch, "", nil)
	require.NoError(t, older.Start(10))
	require.NoError(t, older.MarkInterrupted())
	older.UpdatedAt = time.Now().UTC().Add(-time.Hour)
	require.NoError(t, store.Save(ctx, older))

	terminal := domain.NewSyncCheckpoint("sync-done", "q", domain.OperationFetch, "", nil)
	require.NoError(t, terminal.Start(10))
	require.NoError(t, terminal.MarkCompleted())
	require.NoError(t, store.Save(ctx, terminal))

	newer := domain.NewSyncCheckpoint("sync-new", "q", domain.OperationFetch, "", nil)
	require.NoError(t, newer.Start(10))
	require.NoError(t, newer.MarkInterrupted())
	require.NoError(t, store.Save(ctx, newer))

	got, err := store.GetLatestResumable(ctx, "q")
	require.NoError(t, err)
	assert.Equal(t, "sync-new", got.SyncID)

	_, err = store.GetLatestResumable(ctx, "other")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCheckpointStore_LeftoverTempFilesIgnored(t *testing.T) {
	dir := t.TempDir()
	store, err := NewCheckpointStore(dir)
	require.NoError(t, err)
	ctx := context.Background()

	cp := domain.NewSyncCheckpoint("sync-1", "q", domain.OperationFetch, "", nil)
	require.NoError(t, store.Save(ctx, cp))

	// A crash between write and rename leaves a temp file behind.
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".mailsync-tmp-crashed"), []byte("{"), 0600))

	list, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "sync-1", list[0].SyncID)
}

func TestCheckpointStore_Delete(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	cp := domain.NewSyncCheckpoint("sync-1", "q", domain.OperationFetch, "", nil)
	require.NoError(t, store.Save(ctx, cp))

	require.NoError(t, store.Delete(ctx, "sync-1"))
	assert.ErrorIs(t, store.Delete(ctx, "sync-1"), domain.ErrNotFound)
}
