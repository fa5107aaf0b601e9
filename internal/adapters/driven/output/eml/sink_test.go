package eml

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/mailsync-cli/internal/core/domain"
)

func TestSink_WritesFetchedMessage(t *testing.T) {
	dir := t.TempDir()
	sink, err := NewSink(filepath.Join(dir, "messages"))
	require.NoError(t, err)

	item := &domain.Item{ID: "m1", Payload: []byte("From: a@example.com\r\n\r\nhello")}
	require.NoError(t, sink.Put(context.Background(), domain.OperationFetch, item))

	data, err := os.ReadFile(filepath.Join(dir, "messages", "m1.eml"))
	require.NoError(t, err)
	assert.Equal(t, item.Payload, data)
}

func TestSink_IgnoresNonFetchOperations(t *testing.T) {
	sink, err := NewSink(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, sink.Put(context.Background(), domain.OperationTrash, &domain.Item{ID: "m1"}))
	require.NoError(t, sink.Put(context.Background(), domain.OperationDelete, &domain.Item{ID: "m2"}))

	entries, err := os.ReadDir(sink.Dir())
	require.NoError(t, err)
	assert.Empty(t, entries)
}
