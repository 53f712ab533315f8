// Package txlog implements the Transaction Logger: an append-only,
// per-transfer event stream with phase aggregation, bounded durable
// persistence, and live subscriber notification.
package txlog

import (
	"sync"
	"time"

	"github.com/platformforge/transfer-coordinator/domain/transfer"
	"github.com/platformforge/transfer-coordinator/infrastructure/logging"
)

// Notifier pushes an incremental log update to the Subscription Manager.
type Notifier interface {
	EmitLogUpdate(transferID string, event transfer.Event)
}

// Logger is the in-memory transaction log; the bounded persisted archive
// is the separate Archive type. Safe for concurrent use.
type Logger struct {
	mu     sync.RWMutex
	events map[string][]transfer.Event

	notifier Notifier
	logger   *logging.Logger
}

// New constructs an empty transaction logger. notifier may be nil (no
// live subscriber fan-out, used by tests that only check log content).
func New(notifier Notifier, logger *logging.Logger) *Logger {
	return &Logger{
		events:   make(map[string][]transfer.Event),
		notifier: notifier,
		logger:   logger,
	}
}

// LogEvent appends an event for transferID. startedAtMs is the owning
// transfer's StartedAt (0 if the transfer is unknown to the caller, per
// spec §8 boundary behavior: "logEvent with no prior transfer returns
// gracefully, elapsedMs=0"). elapsedMs and deltaMs are computed here so
// every caller gets identical semantics regardless of which orchestrator
// step is logging.
func (l *Logger) LogEvent(transferID string, eventType transfer.EventType, message string, startedAtMs int64, payload map[string]any) transfer.Event {
	now := time.Now()
	nowMs := now.UnixMilli()

	l.mu.Lock()
	history := l.events[transferID]

	var elapsedMs, deltaMs int64
	if startedAtMs > 0 {
		elapsedMs = nowMs - startedAtMs
	}
	if len(history) > 0 {
		deltaMs = nowMs - history[len(history)-1].TimestampMs
	}

	event := transfer.Event{
		Timestamp:   now.UTC().Format(time.RFC3339Nano),
		TimestampMs: nowMs,
		ElapsedMs:   elapsedMs,
		DeltaMs:     deltaMs,
		EventType:   eventType,
		Message:     message,
		Payload:     payload,
	}
	l.events[transferID] = append(history, event)
	l.mu.Unlock()

	if l.notifier != nil {
		l.notifier.EmitLogUpdate(transferID, event)
	}
	if l.logger != nil {
		l.logger.WithField("transfer_id", transferID).WithField("event_type", string(eventType)).Debug(message)
	}
	return event
}

// Events returns a copy of the recorded events for transferID.
func (l *Logger) Events(transferID string) []transfer.Event {
	l.mu.RLock()
	defer l.mu.RUnlock()
	history := l.events[transferID]
	out := make([]transfer.Event, len(history))
	copy(out, history)
	return out
}

// DropTransfer removes the in-memory event history for a transferID once
// it has been persisted and is no longer active. Persisted records are
// unaffected.
func (l *Logger) DropTransfer(transferID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.events, transferID)
}
