package cli

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/custodia-labs/mailsync-cli/internal/core/domain"
	"github.com/custodia-labs/mailsync-cli/internal/core/ports/driving"
)

// mockOrchestrator implements driving.SyncOrchestrator for testing.
type mockOrchestrator struct {
	lastReq    driving.RunRequest
	checkpoint *domain.SyncCheckpoint
	runErr     error
}

func (m *mockOrchestrator) Run(_ context.Context, req driving.RunRequest) (*domain.SyncCheckpoint, error) {
	m.lastReq = req
	return m.checkpoint, m.runErr
}

func (m *mockOrchestrator) Status(_ context.Context, _ string) (*driving.SyncStatus, error) {
	return &driving.SyncStatus{}, nil
}

func completedCheckpoint(query string) *domain.SyncCheckpoint {
	cp := domain.NewSyncCheckpoint("sync-1", query, domain.OperationFetch, "", nil)
	cp.State = domain.SyncCompleted
	cp.TotalItems = 10
	cp.ProcessedItems = 10
	return cp
}

func setupSyncTest(orch *mockOrchestrator) func() {
	oldFactory := syncFactory
	syncFactory = func(string) (driving.SyncOrchestrator, error) {
		return orch, nil
	}
	return func() {
		syncFactory = oldFactory
		syncOperation = "fetch"
		syncResume = false
		syncOutput = ""
	}
}

func executeSync(args ...string) (*bytes.Buffer, error) {
	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs(append([]string{"sync"}, args...))
	defer rootCmd.SetArgs(nil)
	err := rootCmd.Execute()
	return buf, err
}

func TestSyncCmd_FactoryNotConfigured(t *testing.T) {
	oldFactory := syncFactory
	syncFactory = nil
	defer func() { syncFactory = oldFactory }()

	_, err := executeSync("--query", "label:old")

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "sync service not configured")
}

func TestSyncCmd_RequiresQuery(t *testing.T) {
	cleanup := setupSyncTest(&mockOrchestrator{checkpoint: completedCheckpoint("")})
	defer cleanup()

	// Flag state persists across Execute calls in the same process.
	syncCmd.Flag("query").Changed = false
	syncQuery = ""

	_, err := executeSync()

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "query")
}

func TestSyncCmd_RejectsUnknownOperation(t *testing.T) {
	cleanup := setupSyncTest(&mockOrchestrator{})
	defer cleanup()

	_, err := executeSync("--query", "label:old", "--operation", "shred")

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown operation")
}

func TestSyncCmd_CompletedRunPrintsSummary(t *testing.T) {
	orch := &mockOrchestrator{checkpoint: completedCheckpoint("label:old")}
	cleanup := setupSyncTest(orch)
	defer cleanup()

	buf, err := executeSync("--query", "label:old")

	assert.NoError(t, err)
	assert.Contains(t, buf.String(), "Sync complete: 10/10 messages processed")
	assert.Equal(t, "label:old", orch.lastReq.Query)
	assert.Equal(t, domain.OperationFetch, orch.lastReq.Operation)
	assert.False(t, orch.lastReq.Resume)
}

func TestSyncCmd_PassesOperationAndResume(t *testing.T) {
	orch := &mockOrchestrator{checkpoint: completedCheckpoint("label:old")}
	cleanup := setupSyncTest(orch)
	defer cleanup()

	_, err := executeSync("--query", "label:old", "--operation", "trash", "--resume")

	assert.NoError(t, err)
	assert.Equal(t, domain.OperationTrash, orch.lastReq.Operation)
	assert.True(t, orch.lastReq.Resume)
}

func TestSyncCmd_InterruptedRunSuggestsResume(t *testing.T) {
	cp := completedCheckpoint("label:old")
	cp.State = domain.SyncInterrupted
	cp.ProcessedItems = 4
	orch := &mockOrchestrator{checkpoint: cp, runErr: context.Canceled}
	cleanup := setupSyncTest(orch)
	defer cleanup()

	buf, err := executeSync("--query", "label:old")

	assert.Error(t, err)
	assert.Contains(t, buf.String(), "Sync interrupted at 4/10")
	assert.Contains(t, buf.String(), "--resume")
}

func TestSyncCmd_FailedRunReportsDeadLetters(t *testing.T) {
	cp := completedCheckpoint("label:old")
	cp.State = domain.SyncFailed
	cp.ProcessedItems = 7
	cp.FailedItemIDs = []string{"msg-002", "msg-005"}
	orch := &mockOrchestrator{checkpoint: cp, runErr: errors.New("quota exhausted")}
	cleanup := setupSyncTest(orch)
	defer cleanup()

	buf, err := executeSync("--query", "label:old")

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "quota exhausted")
	assert.Contains(t, buf.String(), "Sync failed at 7/10")
	assert.Contains(t, buf.String(), "mailsync deadletter list")
}

func TestSyncCmd_FactoryErrorPropagates(t *testing.T) {
	oldFactory := syncFactory
	syncFactory = func(string) (driving.SyncOrchestrator, error) {
		return nil, errors.New("output directory not writable")
	}
	defer func() { syncFactory = oldFactory }()

	_, err := executeSync("--query", "label:old")

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "output directory not writable")
}
