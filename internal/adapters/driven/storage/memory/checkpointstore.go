package memory

import (
	"context"
	"maps"
	"slices"
	"sync"

	"github.com/custodia-labs/mailsync-cli/internal/core/domain"
	"github.com/custodia-labs/mailsync-cli/internal/core/ports/driven"
)

// Ensure CheckpointStore implements the interface.
var _ driven.CheckpointStore = (*CheckpointStore)(nil)

// CheckpointStore is an in-memory implementation of driven.CheckpointStore
// for tests and ephemeral runs. It is not durable.
type CheckpointStore struct {
	mu          sync.RWMutex
	checkpoints map[string]domain.SyncCheckpoint
}

// NewCheckpointStore creates a new in-memory checkpoint store.
func NewCheckpointStore() *CheckpointStore {
	return &CheckpointStore{
		checkpoints: make(map[string]domain.SyncCheckpoint),
	}
}

// Save stores or replaces a checkpoint.
func (s *CheckpointStore) Save(_ context.Context, cp *domain.SyncCheckpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checkpoints[cp.SyncID] = cloneCheckpoint(cp)
	return nil
}

// Get retrieves a checkpoint by sync ID.
func (s *CheckpointStore) Get(_ context.Context, syncID string) (*domain.SyncCheckpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cp, ok := s.checkpoints[syncID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	clone := cloneCheckpoint(&cp)
	return &clone, nil
}

// GetLatestResumable returns the most recently updated resumable
// checkpoint for the query.
func (s *CheckpointStore) GetLatestResumable(_ context.Context, query string) (*domain.SyncCheckpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest *domain.SyncCheckpoint
	for id := range s.checkpoints {
		cp := s.checkpoints[id]
		if cp.Query != query || !cp.State.Resumable() {
			continue
		}
		if latest == nil || cp.UpdatedAt.After(latest.UpdatedAt) {
			clone := cloneCheckpoint(&cp)
			latest = &clone
		}
	}
	if latest == nil {
		return nil, domain.ErrNotFound
	}
	return latest, nil
}

// List returns all checkpoints, most recently updated first.
func (s *CheckpointStore) List(_ context.Context) ([]domain.SyncCheckpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.SyncCheckpoint, 0, len(s.checkpoints))
	for id := range s.checkpoints {
		result = append(result, cloneCheckpoint(ptr(s.checkpoints[id])))
	}
	slices.SortFunc(result, func(a, b domain.SyncCheckpoint) int {
		return b.UpdatedAt.Compare(a.UpdatedAt)
	})
	return result, nil
}

// Delete removes a checkpoint.
func (s *CheckpointStore) Delete(_ context.Context, syncID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.checkpoints[syncID]; !ok {
		return domain.ErrNotFound
	}
	delete(s.checkpoints, syncID)
	return nil
}

// cloneCheckpoint copies a checkpoint so callers never alias stored state.
func cloneCheckpoint(cp *domain.SyncCheckpoint) domain.SyncCheckpoint {
	clone := *cp
	clone.FailedItemIDs = slices.Clone(cp.FailedItemIDs)
	clone.Metadata = maps.Clone(cp.Metadata)
	return clone
}

func ptr[T any](v T) *T { return &v }
