package exportstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/platformforge/transfer-coordinator/domain/transfer"
	"github.com/platformforge/transfer-coordinator/infrastructure/persistence"
	"github.com/platformforge/transfer-coordinator/infrastructure/state"
)

func newGzipBackendForTest(dir string) (state.PersistenceBackend, error) {
	return persistence.NewGzipFileBackend(dir, nil)
}

func TestPutGetDelete(t *testing.T) {
	store := New(10, nil, nil)
	ctx := context.Background()

	store.Put(ctx, transfer.ExportRecord{ExportID: "E1", PlatformName: "base", TimestampMs: 1})
	rec, ok := store.Get("E1")
	require.True(t, ok)
	require.Equal(t, "base", rec.PlatformName)

	store.Delete(ctx, "E1")
	_, ok = store.Get("E1")
	require.False(t, ok)
}

func TestPutIsIdempotentOnExportID(t *testing.T) {
	store := New(10, nil, nil)
	ctx := context.Background()
	store.Put(ctx, transfer.ExportRecord{ExportID: "E1", PlatformName: "first", TimestampMs: 1})
	store.Put(ctx, transfer.ExportRecord{ExportID: "E1", PlatformName: "second", TimestampMs: 2})

	require.Equal(t, 1, store.Len())
	rec, _ := store.Get("E1")
	require.Equal(t, "second", rec.PlatformName)
}

func TestBoundedEviction(t *testing.T) {
	store := New(3, nil, nil)
	ctx := context.Background()
	for i, id := range []string{"E1", "E2", "E3", "E4"} {
		store.Put(ctx, transfer.ExportRecord{ExportID: id, TimestampMs: int64(i + 1)})
	}

	remaining := store.List()
	require.Len(t, remaining, 3)
	ids := map[string]bool{}
	for _, rec := range remaining {
		ids[rec.ExportID] = true
	}
	require.True(t, ids["E2"] && ids["E3"] && ids["E4"])
	require.False(t, ids["E1"])
}

func TestListSortedDescending(t *testing.T) {
	store := New(10, nil, nil)
	ctx := context.Background()
	store.Put(ctx, transfer.ExportRecord{ExportID: "E1", TimestampMs: 1})
	store.Put(ctx, transfer.ExportRecord{ExportID: "E2", TimestampMs: 2})

	list := store.List()
	require.Len(t, list, 2)
	require.Equal(t, "E2", list[0].ExportID)
}

func TestLoadMissingFileYieldsEmptyStore(t *testing.T) {
	dir := t.TempDir()
	backend, err := newGzipBackendForTest(dir)
	require.NoError(t, err)

	store := New(10, backend, nil)
	require.NoError(t, store.Load(context.Background()))
	require.Equal(t, 0, store.Len())
}

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	backend, err := newGzipBackendForTest(dir)
	require.NoError(t, err)

	store := New(10, backend, nil)
	store.Put(context.Background(), transfer.ExportRecord{ExportID: "E1", PlatformName: "base", TimestampMs: 1})

	// Force an immediate flush instead of waiting out the debounce window.
	store.flush(context.Background())

	reloaded := New(10, backend, nil)
	require.NoError(t, reloaded.Load(context.Background()))
	rec, ok := reloaded.Get("E1")
	require.True(t, ok)
	require.Equal(t, "base", rec.PlatformName)
}
