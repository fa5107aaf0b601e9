// Package file provides a filesystem-backed checkpoint store. One JSON
// file per sync run, written atomically, so checkpoints survive crashes
// and can be inspected or copied with ordinary tools.
package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/custodia-labs/mailsync-cli/internal/core/domain"
	"github.com/custodia-labs/mailsync-cli/internal/core/ports/driven"
)

// Ensure CheckpointStore implements the interface.
var _ driven.CheckpointStore = (*CheckpointStore)(nil)

// CheckpointStore persists checkpoints as one JSON file per sync run
// under a directory. Writes go through a temp-file-and-rename sequence,
// so a crash mid-write leaves the prior file intact.
type CheckpointStore struct {
	dir string
}

// NewCheckpointStore creates a checkpoint store rooted at dir.
// If dir is empty, defaults to ~/.mailsync/checkpoints.
func NewCheckpointStore(dir string) (*CheckpointStore, error) {
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("getting home directory: %w", err)
		}
		dir = filepath.Join(home, ".mailsync", "checkpoints")
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("creating checkpoint directory: %w", err)
	}
	return &CheckpointStore{dir: dir}, nil
}

// Save stores or replaces a checkpoint atomically.
func (s *CheckpointStore) Save(_ context.Context, cp *domain.SyncCheckpoint) error {
	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return fmt.Errorf("marshalling checkpoint: %w", err)
	}
	return atomicWrite(s.path(cp.SyncID), data)
}

// Get retrieves a checkpoint by sync ID.
func (s *CheckpointStore) Get(_ context.Context, syncID string) (*domain.SyncCheckpoint, error) {
	return s.read(s.path(syncID))
}

// GetLatestResumable returns the most recently updated resumable
// checkpoint for the query.
func (s *CheckpointStore) GetLatestResumable(ctx context.Context, query string) (*domain.SyncCheckpoint, error) {
	all, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	for i := range all {
		if all[i].Query == query && all[i].State.Resumable() {
			return &all[i], nil
		}
	}
	return nil, domain.ErrNotFound
}

// List returns all retained checkpoints, most recently updated first.
func (s *CheckpointStore) List(_ context.Context) ([]domain.SyncCheckpoint, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("reading checkpoint directory: %w", err)
	}

	var checkpoints []domain.SyncCheckpoint //nolint:prealloc // temp files are skipped
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") || strings.HasPrefix(name, ".") {
			continue
		}
		cp, err := s.read(filepath.Join(s.dir, name))
		if err != nil {
			return nil, err
		}
		checkpoints = append(checkpoints, *cp)
	}

	sort.Slice(checkpoints, func(i, j int) bool {
		return checkpoints[i].UpdatedAt.After(checkpoints[j].UpdatedAt)
	})
	return checkpoints, nil
}

// Delete removes a checkpoint.
func (s *CheckpointStore) Delete(_ context.Context, syncID string) error {
	err := os.Remove(s.path(syncID))
	if os.IsNotExist(err) {
		return domain.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("deleting checkpoint: %w", err)
	}
	return nil
}

func (s *CheckpointStore) path(syncID string) string {
	return filepath.Join(s.dir, syncID+".json")
}

func (s *CheckpointStore) read(path string) (*domain.SyncCheckpoint, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading checkpoint: %w", err)
	}

	var cp domain.SyncCheckpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return &cp, nil
}

// atomicWrite writes content to a temp file in the target directory,
// syncs it, and renames it over the destination. Rename within one
// filesystem is atomic, so readers see either the old or the new file.
func atomicWrite(path string, content []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".mailsync-tmp-*.json")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	defer func() {
		// Clean up temp file on any failure
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}()

	if _, err := tmp.Write(content); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("atomic rename: %w", err)
	}
	return nil
}
