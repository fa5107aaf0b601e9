// Package eml writes fetched messages to the local filesystem as RFC 2822
// .eml files, one file per message.
package eml

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/custodia-labs/mailsync-cli/internal/core/domain"
	"github.com/custodia-labs/mailsync-cli/internal/core/ports/driven"
	"github.com/custodia-labs/mailsync-cli/internal/logger"
)

// Ensure Sink implements the interface.
var _ driven.ItemSink = (*Sink)(nil)

// Sink persists fetched message payloads under a directory. Trash and
// delete operations carry no payload and pass through untouched.
type Sink struct {
	dir string
}

// NewSink creates a sink rooted at dir, creating it if needed.
func NewSink(dir string) (*Sink, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}
	return &Sink{dir: dir}, nil
}

// Put writes one fetched message to <dir>/<id>.eml. Errors are per-item;
// the caller dead-letters the item and continues the run.
func (s *Sink) Put(_ context.Context, op domain.Operation, item *domain.Item) error {
	if op != domain.OperationFetch {
		return nil
	}
	if len(item.Payload) == 0 {
		logger.Debug("Message %s has an empty payload, writing empty file", item.ID)
	}

	path := filepath.Join(s.dir, item.ID+".eml")
	if err := os.WriteFile(path, item.Payload, 0600); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

// Dir returns the output directory.
func (s *Sink) Dir() string {
	return s.dir
}
