// Package exportstore holds exported platform payloads in memory, bounded
// by count, with debounced atomic persistence to a gzip-compressed JSON
// file (infrastructure/persistence).
package exportstore

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/platformforge/transfer-coordinator/domain/transfer"
	"github.com/platformforge/transfer-coordinator/infrastructure/logging"
	"github.com/platformforge/transfer-coordinator/infrastructure/state"
)

const persistenceKey = "platform_exports"

// DefaultMaxExports is the eviction cap on the number of stored exports.
const DefaultMaxExports = 100

// debounceWindow batches rapid consecutive inserts into one flush.
const debounceWindow = 200 * time.Millisecond

// Store holds the in-memory export index plus a debounced persistence
// pipeline. Safe for concurrent use.
type Store struct {
	mu      sync.RWMutex
	records map[string]*transfer.ExportRecord
	maxSize int

	backend state.PersistenceBackend
	logger  *logging.Logger

	flushMu      sync.Mutex
	flushPending bool
	flushTimer   *time.Timer
}

// New constructs an empty store. backend may be nil to disable persistence
// (used in unit tests that only exercise the in-memory semantics).
func New(maxSize int, backend state.PersistenceBackend, logger *logging.Logger) *Store {
	if maxSize <= 0 {
		maxSize = DefaultMaxExports
	}
	return &Store{
		records: make(map[string]*transfer.ExportRecord),
		maxSize: maxSize,
		backend: backend,
		logger:  logger,
	}
}

// Put inserts or replaces a record (idempotent on ExportID), evicts the
// oldest entries by timestamp beyond maxSize, and schedules a debounced
// flush.
func (s *Store) Put(ctx context.Context, record transfer.ExportRecord) {
	s.mu.Lock()
	s.records[record.ExportID] = &record
	s.evictLocked()
	s.mu.Unlock()

	s.scheduleFlush(ctx)
}

// evictLocked must be called with mu held for writing.
func (s *Store) evictLocked() {
	if len(s.records) <= s.maxSize {
		return
	}
	type entry struct {
		id string
		ts int64
	}
	entries := make([]entry, 0, len(s.records))
	for id, rec := range s.records {
		entries = append(entries, entry{id: id, ts: rec.TimestampMs})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].ts < entries[j].ts })

	excess := len(entries) - s.maxSize
	for i := 0; i < excess; i++ {
		delete(s.records, entries[i].id)
	}
}

// Get returns the record for exportID, or (zero, false) if absent.
func (s *Store) Get(exportID string) (transfer.ExportRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[exportID]
	if !ok {
		return transfer.ExportRecord{}, false
	}
	return *rec, true
}

// Delete unconditionally removes a record and schedules a flush.
func (s *Store) Delete(ctx context.Context, exportID string) {
	s.mu.Lock()
	delete(s.records, exportID)
	s.mu.Unlock()

	s.scheduleFlush(ctx)
}

// List returns all records sorted by timestamp descending.
func (s *Store) List() []transfer.ExportRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]transfer.ExportRecord, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, *rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TimestampMs > out[j].TimestampMs })
	return out
}

// Len reports the current number of stored exports.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// scheduleFlush debounces consecutive writes into a single persisted flush.
func (s *Store) scheduleFlush(ctx context.Context) {
	if s.backend == nil {
		return
	}
	s.flushMu.Lock()
	defer s.flushMu.Unlock()

	if s.flushPending {
		return
	}
	s.flushPending = true
	s.flushTimer = time.AfterFunc(debounceWindow, func() {
		s.flushMu.Lock()
		s.flushPending = false
		s.flushMu.Unlock()
		s.flush(ctx)
	})
}

// flush serializes the full index and writes it through the persistence
// backend. Errors are logged and swallowed (spec §7): in-memory state
// remains authoritative; a later successful write catches up.
func (s *Store) flush(ctx context.Context) {
	s.mu.RLock()
	snapshot := make(map[string]*transfer.ExportRecord, len(s.records))
	for id, rec := range s.records {
		snapshot[id] = rec
	}
	s.mu.RUnlock()

	data, err := json.Marshal(snapshot)
	if err != nil {
		if s.logger != nil {
			s.logger.WithError(err).Error("marshal export index failed")
		}
		return
	}

	start := time.Now()
	err = s.backend.Save(ctx, persistenceKey, data)
	if s.logger != nil {
		s.logger.LogPersistenceWrite(ctx, persistenceKey, time.Since(start), err)
	}
}

// Load replaces the in-memory index from the persistence backend. A
// missing or corrupt file yields an empty store (spec §4.2) — the backend
// itself already translates those cases to state.ErrNotFound.
func (s *Store) Load(ctx context.Context) error {
	if s.backend == nil {
		return nil
	}
	data, err := s.backend.Load(ctx, persistenceKey)
	if err != nil {
		if err == state.ErrNotFound {
			return nil
		}
		return err
	}

	var loaded map[string]*transfer.ExportRecord
	if err := json.Unmarshal(data, &loaded); err != nil {
		if s.logger != nil {
			s.logger.WithError(err).Warn("discarding corrupt export index, starting empty")
		}
		return nil
	}

	s.mu.Lock()
	s.records = loaded
	if s.records == nil {
		s.records = make(map[string]*transfer.ExportRecord)
	}
	s.mu.Unlock()
	return nil
}
