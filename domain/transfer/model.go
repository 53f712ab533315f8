// Package transfer defines the data model for platform migrations: the
// Transfer saga record, its phase timing, and the export it carries.
package transfer

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a Transfer. The orchestrator package
// drives the transitions between these states.
type Status string

const (
	StatusCreating            Status = "creating"
	StatusTransporting        Status = "transporting"
	StatusAwaitingValidation  Status = "awaiting_validation"
	StatusCleanup             Status = "cleanup"
	StatusCompleted           Status = "completed"
	StatusFailed              Status = "failed"
	StatusCleanupFailed       Status = "cleanup_failed"
	StatusError               Status = "error"
)

// Terminal reports whether status is one of the four terminal states (P1).
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCleanupFailed, StatusError:
		return true
	default:
		return false
	}
}

// NormalizeStatus maps legacy/external status spellings to the canonical
// internal name. The only known legacy alias is "importing" -> "transporting"
// (spec §9, open question: be lenient on read, strict on write).
func NormalizeStatus(raw string) Status {
	if raw == "importing" {
		return StatusTransporting
	}
	return Status(raw)
}

// Phase name constants. Each transfer opens and closes at most one instance
// of each phase, in this order.
const (
	PhaseTransmission = "transmission"
	PhaseValidation   = "validation"
	PhaseCleanup      = "cleanup"
)

// PhaseTiming records the start/end/duration of one named phase.
type PhaseTiming struct {
	StartMs    int64 `json:"startMs"`
	EndMs      int64 `json:"endMs,omitempty"`
	DurationMs int64 `json:"durationMs,omitempty"`
}

// Closed reports whether EndMs has been recorded for this phase.
func (p PhaseTiming) Closed() bool {
	return p.EndMs > 0
}

// ExportRecord is the opaque payload produced by a source instance's export
// RPC. ExportData is never inspected beyond payloadmetrics extraction
// (internal/exportstore) and must round-trip byte-for-byte.
type ExportRecord struct {
	ExportID         string `json:"exportId"`
	PlatformName     string `json:"platformName"`
	PlatformIndex    int    `json:"platformIndex"`
	ForceName        string `json:"forceName"`
	SourceInstanceID int    `json:"sourceInstanceId"`
	ExportData       []byte `json:"exportData"`
	TimestampMs      int64  `json:"timestamp"`
	Size             int    `json:"size"`
}

// Transfer is the central saga entity, mutated only by the orchestrator on
// the transfer's own serialized execution context (spec §5).
type Transfer struct {
	TransferID string `json:"transferId"`

	ExportID      string `json:"exportId"`
	PlatformName  string `json:"platformName"`
	PlatformIndex int    `json:"platformIndex"`
	ForceName     string `json:"forceName"`

	SourceInstanceID   int    `json:"sourceInstanceId"`
	SourceInstanceName string `json:"sourceInstanceName"`
	TargetInstanceID   int    `json:"targetInstanceId"`
	TargetInstanceName string `json:"targetInstanceName"`

	Status Status `json:"status"`

	StartedAt   int64 `json:"startedAt"`
	CompletedAt int64 `json:"completedAt,omitempty"`
	FailedAt    int64 `json:"failedAt,omitempty"`

	Error string `json:"error,omitempty"`

	Phases map[string]*PhaseTiming `json:"phases"`

	ExportMetrics      map[string]any `json:"exportMetrics,omitempty"`
	PayloadMetrics     map[string]any `json:"payloadMetrics,omitempty"`
	ImportMetrics      map[string]any `json:"importMetrics,omitempty"`
	ValidationResult   map[string]any `json:"validationResult,omitempty"`
	SourceVerification map[string]any `json:"sourceVerification,omitempty"`

	// validationTimerID correlates a transfer to its armed timeout (not
	// persisted; runtime handle lives in the orchestrator's timer table).
	validationTimerID string
}

// NewTransferID generates a transferId in the spec's documented shape:
// transfer_{unixMillis}_{random}.
func NewTransferID(nowMs int64) string {
	suffix := uuid.New().String()[:8]
	return fmt.Sprintf("transfer_%d_%s", nowMs, suffix)
}

// NewExportID generates a globally unique export identifier.
func NewExportID() string {
	return "export_" + uuid.New().String()
}

// NowMs returns the current time as Unix milliseconds, the timestamp unit
// used throughout the transfer/event model.
func NowMs() int64 {
	return time.Now().UnixMilli()
}

// OpenPhase records phases[name].StartMs = nowMs, creating the entry if
// absent. Re-opening an already-open phase is a no-op on StartMs.
func (t *Transfer) OpenPhase(name string, nowMs int64) {
	if t.Phases == nil {
		t.Phases = make(map[string]*PhaseTiming)
	}
	if existing, ok := t.Phases[name]; ok && existing.StartMs != 0 {
		return
	}
	t.Phases[name] = &PhaseTiming{StartMs: nowMs}
}

// ClosePhase records EndMs/DurationMs for an already-open phase. Closing a
// phase that was never opened is a no-op returning 0 (spec §8 boundary:
// "endPhase on an un-started phase returns 0 and does not raise").
func (t *Transfer) ClosePhase(name string, nowMs int64) int64 {
	if t.Phases == nil {
		return 0
	}
	p, ok := t.Phases[name]
	if !ok || p.StartMs == 0 {
		return 0
	}
	p.EndMs = nowMs
	p.DurationMs = nowMs - p.StartMs
	return p.DurationMs
}

// HasArmedValidationTimer reports whether a validation timer handle is set.
func (t *Transfer) HasArmedValidationTimer() bool {
	return t.validationTimerID != ""
}

// ArmValidationTimer records the timer handle used to disarm later.
func (t *Transfer) ArmValidationTimer(id string) {
	t.validationTimerID = id
}

// DisarmValidationTimer clears the timer handle.
func (t *Transfer) DisarmValidationTimer() {
	t.validationTimerID = ""
}
