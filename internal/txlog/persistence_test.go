package txlog

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/platformforge/transfer-coordinator/domain/transfer"
	"github.com/platformforge/transfer-coordinator/infrastructure/persistence"
)

type fakeActiveProvider struct {
	transfers []*transfer.Transfer
}

func (f *fakeActiveProvider) ActiveTransfers() []*transfer.Transfer { return f.transfers }

func TestArchivePersistAndLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	backend, err := persistence.NewGzipFileBackend(dir, nil)
	require.NoError(t, err)

	archive := NewArchive(backend)
	tr := &transfer.Transfer{TransferID: "t-1", Status: transfer.StatusCompleted, StartedAt: 1000, CompletedAt: 2000}
	require.NoError(t, archive.Persist(context.Background(), tr, nil, 2000))

	reloaded := NewArchive(backend)
	require.NoError(t, reloaded.Load(context.Background()))
	require.Len(t, reloaded.Records(), 1)
	require.Equal(t, "t-1", reloaded.Records()[0].TransferID)
}

func TestArchiveBoundedFIFO(t *testing.T) {
	archive := NewArchive(nil)
	for i := 0; i < 12; i++ {
		tr := &transfer.Transfer{TransferID: intToID(i), Status: transfer.StatusCompleted, StartedAt: int64(i)}
		require.NoError(t, archive.Persist(context.Background(), tr, nil, int64(i)))
	}

	records := archive.Records()
	require.Len(t, records, MaxPersistedLogs)
	require.Equal(t, intToID(2), records[0].TransferID)
	require.Equal(t, intToID(11), records[len(records)-1].TransferID)
}

func TestArchiveUpsertReplacesExisting(t *testing.T) {
	archive := NewArchive(nil)
	tr := &transfer.Transfer{TransferID: "t-1", Status: transfer.StatusAwaitingValidation, StartedAt: 1}
	require.NoError(t, archive.Persist(context.Background(), tr, nil, 1))

	tr.Status = transfer.StatusCompleted
	require.NoError(t, archive.Persist(context.Background(), tr, nil, 2))

	records := archive.Records()
	require.Len(t, records, 1)
	require.Equal(t, transfer.StatusCompleted, records[0].TransferInfo.Status)
}

func TestGetTransferSummariesZeroLimit(t *testing.T) {
	archive := NewArchive(nil)
	summaries := GetTransferSummaries(&fakeActiveProvider{}, archive, 0)
	require.Empty(t, summaries)
}

func TestGetTransferSummariesUnionsActiveAndPersisted(t *testing.T) {
	archive := NewArchive(nil)
	persistedTransfer := &transfer.Transfer{TransferID: "t-old", Status: transfer.StatusCompleted, StartedAt: 100}
	require.NoError(t, archive.Persist(context.Background(), persistedTransfer, nil, 100))

	active := &fakeActiveProvider{transfers: []*transfer.Transfer{
		{TransferID: "t-new", Status: transfer.StatusTransporting, StartedAt: 200},
	}}

	summaries := GetTransferSummaries(active, archive, 10)
	require.Len(t, summaries, 2)
	require.Equal(t, "t-new", summaries[0]["transferId"])
	require.Equal(t, "t-old", summaries[1]["transferId"])
}

func TestGetTransferSummariesActiveWinsOverPersistedDuplicate(t *testing.T) {
	archive := NewArchive(nil)
	stale := &transfer.Transfer{TransferID: "t-1", Status: transfer.StatusFailed, StartedAt: 100}
	require.NoError(t, archive.Persist(context.Background(), stale, nil, 100))

	active := &fakeActiveProvider{transfers: []*transfer.Transfer{
		{TransferID: "t-1", Status: transfer.StatusCompleted, StartedAt: 100},
	}}

	summaries := GetTransferSummaries(active, archive, 10)
	require.Len(t, summaries, 1)
	require.Equal(t, transfer.StatusCompleted, summaries[0]["status"])
}

func intToID(i int) string {
	return "t-" + string(rune('a'+i))
}
