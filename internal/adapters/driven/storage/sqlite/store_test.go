package sqlite

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/mailsync-cli/internal/core/domain"
)

// setupTestStore creates a temporary SQLite store for testing.
func setupTestStore(t *testing.T) (*Store, func()) {
	t.Helper()

	tempDir, err := os.MkdirTemp("", "mailsync-test-*")
	require.NoError(t, err)

	store, err := NewStore(tempDir)
	require.NoError(t, err)
	require.NotNil(t, store)

	cleanup := func() {
		assert.NoError(t, store.Close())
		assert.NoError(t, os.RemoveAll(tempDir))
	}
	return store, cleanup
}

func testCheckpoint(syncID, query string) *domain.SyncCheckpoint {
	cp := domain.NewSyncCheckpoint(syncID, query, domain.OperationFetch, "/tmp/out", map[string]string{"format": "eml"})
	cp.CreatedAt = cp.CreatedAt.Truncate(time.Second)
	cp.UpdatedAt = cp.UpdatedAt.Truncate(time.Second)
	return cp
}

func TestStore_CreatesSchemaOnce(t *testing.T) {
	tempDir, err := os.MkdirTemp("", "mailsync-test-*")
	require.NoError(t, err)
	defer os.RemoveAll(tempDir)

	store, err := NewStore(tempDir)
	require.NoError(t, err)
	require.NoError(t, store.Close())

	// Reopening runs migrations idempotently.
	store, err = NewStore(tempDir)
	require.NoError(t, err)
	assert.NoError(t, store.Close())
}

func TestCheckpointStore_SaveAndGet(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	ctx := context.Background()
	checkpoints := store.CheckpointStore()

	cp := testCheckpoint("sync-1", "label:archive")
	require.NoError(t, cp.Start(250))
	require.NoError(t, cp.ApplyProgress(120, "msg-119", []string{"msg-050"}))
	require.NoError(t, checkpoints.Save(ctx, cp))

	got, err := checkpoints.Get(ctx, "sync-1")
	require.NoError(t, err)
	assert.Equal(t, cp.SyncID, got.SyncID)
	assert.Equal(t, cp.Query, got.Query)
	assert.Equal(t, domain.OperationFetch, got.Operation)
	assert.Equal(t, domain.SyncInProgress, got.State)
	assert.Equal(t, 250, got.TotalItems)
	assert.Equal(t, 120, got.ProcessedItems)
	assert.Equal(t, "msg-119", got.LastItemID)
	assert.Equal(t, []string{"msg-050"}, got.FailedItemIDs)
	assert.Equal(t, "/tmp/out", got.OutputLocation)
	assert.Equal(t, map[string]string{"format": "eml"}, got.Metadata)
}

func TestCheckpointStore_GetNotFound(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	_, err := store.CheckpointStore().Get(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCheckpointStore_SurvivesReopen(t *testing.T) {
	tempDir, err := os.MkdirTemp("", "mailsync-test-*")
	require.NoError(t, err)
	defer os.RemoveAll(tempDir)

	ctx := context.Background()

	store, err := NewStore(tempDir)
	require.NoError(t, err)
	cp := testCheckpoint("sync-1", "label:archive")
	require.NoError(t, cp.Start(100))
	require.NoError(t, cp.ApplyProgress(40, "msg-039", nil))
	require.NoError(t, store.CheckpointStore().Save(ctx, cp))
	require.NoError(t, store.Close())

	// A fresh process sees the persisted resume point.
	store, err = NewStore(tempDir)
	require.NoError(t, err)
	defer store.Close()

	got, err := store.CheckpointStore().GetLatestResumable(ctx, "label:archive")
	require.NoError(t, err)
	assert.Equal(t, "sync-1", got.SyncID)
	assert.Equal(t, 40, got.ProcessedItems)
	assert.Equal(t, "msg-039", got.LastItemID)
}

func TestCheckpointStore_GetLatestResumable(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	ctx := context.Background()
	checkpoints := store.CheckpointStore()

	completed := testCheckpoint("sync-done", "q")
	require.NoError(t, completed.Start(10))
	require.NoError(t, completed.MarkCompleted())
	require.NoError(t, checkpoints.Save(ctx, completed))

	older := testCheckpoint("sync-old", "q")
	require.NoError(t, older.Start(10))
	require.NoError(t, older.MarkInterrupted())
	older.UpdatedAt = time.Now().UTC().Add(-time.Hour)
	require.NoError(t, checkpoints.Save(ctx, older))

	newer := testCheckpoint("sync-new", "q")
	require.NoError(t, newer.Start(10))
	require.NoError(t, newer.MarkInterrupted())
	require.NoError(t, checkpoints.Save(ctx, newer))

	otherQuery := testCheckpoint("sync-other", "different")
	require.NoError(t, otherQuery.Start(10))
	require.NoError(t, otherQuery.MarkInterrupted())
	require.NoError(t, checkpoints.Save(ctx, otherQuery))

	got, err := checkpoints.GetLatestResumable(ctx, "q")
	require.NoError(t, err)
	assert.Equal(t, "sync-new", got.SyncID)

	// Terminal-only queries have nothing to resume.
	_, err = checkpoints.GetLatestResumable(ctx, "nothing-here")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCheckpointStore_ListAndDelete(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	ctx := context.Background()
	checkpoints := store.CheckpointStore()

	require.NoError(t, checkpoints.Save(ctx, testCheckpoint("sync-1", "a")))
	require.NoError(t, checkpoints.Save(ctx, testCheckpoint("sync-2", "b")))

	list, err := checkpoints.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 2)

	require.NoError(t, checkpoints.Delete(ctx, "sync-1"))
	assert.ErrorIs(t, checkpoints.Delete(ctx, "sync-1"), domain.ErrNotFound)

	list, err = checkpoints.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "sync-2", list[0].SyncID)
}

func TestDeadLetterQueue_RecordIsIdempotent(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	ctx := context.Background()
	queue := store.DeadLetterQueue()

	first := domain.NewDeadLetterEntry("msg-37", domain.OperationFetch, domain.CategoryPermanent, "400 invalid id")
	require.NoError(t, queue.Record(ctx, first))

	// Same item and operation again, different error detail.
	second := domain.NewDeadLetterEntry("msg-37", domain.OperationFetch, domain.CategoryTransient, "timeout")
	require.NoError(t, queue.Record(ctx, second))

	entries, err := queue.List(ctx, domain.DeadLetterFilter{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, 2, entries[0].AttemptCount)
	assert.Equal(t, domain.CategoryTransient, entries[0].ErrorCategory)
	assert.Equal(t, "timeout", entries[0].ErrorMessage)
	assert.False(t, entries[0].LastSeenAt.Before(entries[0].FirstSeenAt))
}

func TestDeadLetterQueue_SurvivesReopen(t *testing.T) {
	tempDir, err := os.MkdirTemp("", "mailsync-test-*")
	require.NoError(t, err)
	defer os.RemoveAll(tempDir)

	ctx := context.Background()

	store, err := NewStore(tempDir)
	require.NoError(t, err)

	queue := store.DeadLetterQueue()
	require.NoError(t, queue.Record(ctx, domain.NewDeadLetterEntry("msg-37", domain.OperationFetch, domain.CategoryPermanent, "400 invalid id")))
	require.NoError(t, queue.Record(ctx, domain.NewDeadLetterEntry("msg-37", domain.OperationFetch, domain.CategoryPermanent, "400 invalid id")))
	require.NoError(t, store.Close())

	reopened, err := NewStore(tempDir)
	require.NoError(t, err)
	defer reopened.Close()

	entries, err := reopened.DeadLetterQueue().List(ctx, domain.DeadLetterFilter{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "msg-37", entries[0].ItemID)
	assert.Equal(t, 2, entries[0].AttemptCount)
	assert.Equal(t, "400 invalid id", entries[0].ErrorMessage)
}

func TestDeadLetterQueue_SeparateEntriesPerOperation(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	ctx := context.Background()
	queue := store.DeadLetterQueue()

	require.NoError(t, queue.Record(ctx, domain.NewDeadLetterEntry("msg-1", domain.OperationFetch, domain.CategoryPermanent, "x")))
	require.NoError(t, queue.Record(ctx, domain.NewDeadLetterEntry("msg-1", domain.OperationTrash, domain.CategoryPermanent, "y")))

	entries, err := queue.List(ctx, domain.DeadLetterFilter{})
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	byOp, err := queue.List(ctx, domain.DeadLetterFilter{Operation: domain.OperationTrash})
	require.NoError(t, err)
	require.Len(t, byOp, 1)
	assert.Equal(t, domain.OperationTrash, byOp[0].Operation)
}

func TestDeadLetterQueue_FilterByCategory(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	ctx := context.Background()
	queue := store.DeadLetterQueue()

	require.NoError(t, queue.Record(ctx, domain.NewDeadLetterEntry("msg-1", domain.OperationFetch, domain.CategoryPermanent, "x")))
	require.NoError(t, queue.Record(ctx, domain.NewDeadLetterEntry("msg-2", domain.OperationFetch, domain.CategoryTransient, "y")))

	entries, err := queue.List(ctx, domain.DeadLetterFilter{Category: domain.CategoryTransient})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "msg-2", entries[0].ItemID)
}

func TestDeadLetterQueue_ClearRemovesAllOperations(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	ctx := context.Background()
	queue := store.DeadLetterQueue()

	require.NoError(t, queue.Record(ctx, domain.NewDeadLetterEntry("msg-1", domain.OperationFetch, domain.CategoryPermanent, "x")))
	require.NoError(t, queue.Record(ctx, domain.NewDeadLetterEntry("msg-1", domain.OperationTrash, domain.CategoryPermanent, "y")))

	require.NoError(t, queue.Clear(ctx, "msg-1"))

	entries, err := queue.List(ctx, domain.DeadLetterFilter{})
	require.NoError(t, err)
	assert.Empty(t, entries)

	assert.ErrorIs(t, queue.Clear(ctx, "msg-1"), domain.ErrNotFound)
}
