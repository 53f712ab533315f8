package txlog

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/platformforge/transfer-coordinator/domain/transfer"
	"github.com/platformforge/transfer-coordinator/infrastructure/state"
)

const (
	persistenceKey = "transaction_logs"

	// MaxPersistedLogs is N from spec §3/§4.3: the persisted array is
	// capped at 10 entries, FIFO eviction.
	MaxPersistedLogs = 10
)

// Archive holds the bounded, durably persisted record of completed
// transfers, independent of the live in-memory event streams in Logger.
type Archive struct {
	mu      sync.RWMutex
	records []transfer.PersistedLog

	backend state.PersistenceBackend
}

// NewArchive constructs an empty archive. backend may be nil to disable
// persistence.
func NewArchive(backend state.PersistenceBackend) *Archive {
	return &Archive{backend: backend}
}

// Persist synthesizes a detailed record for tr (including its full event
// stream) and upserts it into the persisted array keyed by TransferID,
// truncating to the newest MaxPersistedLogs records, then atomically
// rewrites the file. Errors are logged by the caller and never propagate —
// the in-memory state remains authoritative for the process lifetime
// (spec §4.3).
func (a *Archive) Persist(ctx context.Context, tr *transfer.Transfer, events []transfer.Event, nowMs int64) error {
	var lastEventAtMs int64
	if len(events) > 0 {
		lastEventAtMs = events[len(events)-1].TimestampMs
	}

	record := transfer.PersistedLog{
		TransferID:   tr.TransferID,
		TransferInfo: tr,
		Summary:      BuildDetailedTransferSummary(tr, lastEventAtMs, nowMs),
		Events:       events,
		SavedAtMs:    nowMs,
	}

	a.mu.Lock()
	a.upsertLocked(record)
	snapshot := make([]transfer.PersistedLog, len(a.records))
	copy(snapshot, a.records)
	a.mu.Unlock()

	if a.backend == nil {
		return nil
	}
	data, err := json.Marshal(snapshot)
	if err != nil {
		return err
	}
	return a.backend.Save(ctx, persistenceKey, data)
}

// upsertLocked must be called with mu held for writing.
func (a *Archive) upsertLocked(record transfer.PersistedLog) {
	replaced := false
	for i, existing := range a.records {
		if existing.TransferID == record.TransferID {
			a.records[i] = record
			replaced = true
			break
		}
	}
	if !replaced {
		a.records = append(a.records, record)
	}

	sort.Slice(a.records, func(i, j int) bool { return a.records[i].SavedAtMs < a.records[j].SavedAtMs })
	if len(a.records) > MaxPersistedLogs {
		a.records = a.records[len(a.records)-MaxPersistedLogs:]
	}
}

// Load performs a tolerant startup read: a missing file yields an empty
// archive; a malformed file or one whose top-level JSON value is not an
// array logs nothing itself (caller logs) and yields empty.
func (a *Archive) Load(ctx context.Context) error {
	if a.backend == nil {
		return nil
	}
	data, err := a.backend.Load(ctx, persistenceKey)
	if err != nil {
		if err == state.ErrNotFound {
			return nil
		}
		return err
	}

	var loaded []transfer.PersistedLog
	if err := json.Unmarshal(data, &loaded); err != nil {
		return err
	}

	a.mu.Lock()
	a.records = loaded
	a.mu.Unlock()
	return nil
}

// Records returns a copy of the currently persisted archive, newest last.
func (a *Archive) Records() []transfer.PersistedLog {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]transfer.PersistedLog, len(a.records))
	copy(out, a.records)
	return out
}

// ActiveTransferProvider supplies the orchestrator's currently active
// transfers, used by GetTransferSummaries to union with the persisted
// archive.
type ActiveTransferProvider interface {
	ActiveTransfers() []*transfer.Transfer
}

// GetTransferSummaries unions active transfers and persisted-but-no-longer-
// active logs by TransferID (active wins on duplicates, since it is the
// more current view), sorted by StartedAt descending, truncated to limit.
// limit=0 returns an empty list (spec §8 boundary behavior).
func GetTransferSummaries(active ActiveTransferProvider, archive *Archive, limit int) []map[string]any {
	if limit == 0 {
		return []map[string]any{}
	}

	nowMs := time.Now().UnixMilli()
	seen := make(map[string]bool)

	type entry struct {
		summary   map[string]any
		startedAt int64
	}
	var entries []entry

	for _, tr := range active.ActiveTransfers() {
		seen[tr.TransferID] = true
		entries = append(entries, entry{summary: BuildDetailedTransferSummary(tr, 0, nowMs), startedAt: tr.StartedAt})
	}

	for _, record := range archive.Records() {
		if seen[record.TransferID] {
			continue
		}
		seen[record.TransferID] = true
		entries = append(entries, entry{summary: record.Summary, startedAt: record.TransferInfo.StartedAt})
	}

	sort.SliceStable(entries, func(i, j int) bool { return entries[i].startedAt > entries[j].startedAt })

	if limit > 0 && limit < len(entries) {
		entries = entries[:limit]
	}

	summaries := make([]map[string]any, len(entries))
	for i, e := range entries {
		summaries[i] = e.summary
	}
	return summaries
}
