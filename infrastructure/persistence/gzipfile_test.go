package persistence

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/platformforge/transfer-coordinator/infrastructure/state"
)

func newTestBackend(t *testing.T) *GzipFileBackend {
	t.Helper()
	dir := t.TempDir()
	backend, err := NewGzipFileBackend(dir, nil)
	require.NoError(t, err)
	return backend
}

func TestGzipFileBackend_SaveLoadRoundTrip(t *testing.T) {
	backend := newTestBackend(t)
	ctx := context.Background()

	payload := []byte(`{"transferId":"t-1","opaque":{"_transferId":"t-1","blob":[1,2,3]}}`)
	require.NoError(t, backend.Save(ctx, "platform_exports", payload))

	got, err := backend.Load(ctx, "platform_exports")
	require.NoError(t, err)
	require.Equal(t, payload, got)
}

func TestGzipFileBackend_LoadMissingReturnsNotFound(t *testing.T) {
	backend := newTestBackend(t)
	ctx := context.Background()

	_, err := backend.Load(ctx, "does_not_exist")
	require.ErrorIs(t, err, state.ErrNotFound)
}

func TestGzipFileBackend_LoadCorruptFileReturnsNotFound(t *testing.T) {
	backend := newTestBackend(t)
	ctx := context.Background()

	path := backend.pathFor("transaction_logs")
	require.NoError(t, os.WriteFile(path, []byte("not a gzip stream"), 0o644))

	_, err := backend.Load(ctx, "transaction_logs")
	require.ErrorIs(t, err, state.ErrNotFound)
}

func TestGzipFileBackend_DeleteAndList(t *testing.T) {
	backend := newTestBackend(t)
	ctx := context.Background()

	require.NoError(t, backend.Save(ctx, "a", []byte("1")))
	require.NoError(t, backend.Save(ctx, "b", []byte("2")))

	keys, err := backend.List(ctx, "")
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"a", "b"}, keys)

	require.NoError(t, backend.Delete(ctx, "a"))
	_, err = backend.Load(ctx, "a")
	require.ErrorIs(t, err, state.ErrNotFound)

	// Deleting an already-absent key is not an error.
	require.NoError(t, backend.Delete(ctx, "a"))
}

func TestGzipFileBackend_SaveIsAtomic(t *testing.T) {
	backend := newTestBackend(t)
	ctx := context.Background()

	require.NoError(t, backend.Save(ctx, "x", []byte("first")))

	entries, err := os.ReadDir(backend.baseDir)
	require.NoError(t, err)
	for _, entry := range entries {
		require.False(t, filepathHasTmpPrefix(entry.Name()), "leftover temp file: %s", entry.Name())
	}

	require.NoError(t, backend.Save(ctx, "x", []byte("second")))
	got, err := backend.Load(ctx, "x")
	require.NoError(t, err)
	require.Equal(t, []byte("second"), got)
}

func filepathHasTmpPrefix(name string) bool {
	return filepath.Ext(name) == ".gz" && len(name) > 4 && name[:4] == "tmp-"
}
