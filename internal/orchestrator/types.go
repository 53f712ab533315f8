// Package orchestrator drives the transfer saga state machine: it fans out
// RPCs to source/target instances, arms validation timeouts, applies
// rollback on failure, and is the one component that mutates a Transfer
// record.
package orchestrator

import (
	"time"
)

// StartTransferRequest is the input to HandleStartPlatformTransferRequest: a
// one-shot export-then-transfer from a live platform.
type StartTransferRequest struct {
	SourceInstanceID    int
	TargetInstanceID    string // integer id or display name
	SourcePlatformIndex int
	ForceName           string
}

// TransferExistingRequest is the input to HandleTransferPlatformRequest: a
// transfer from an already-stored export.
type TransferExistingRequest struct {
	ExportID         string
	TargetInstanceID string
}

// TransferResult is the operator-facing outcome of either entry point. Per
// spec §7, these never propagate as errors beyond the RPC boundary.
type TransferResult struct {
	Success    bool   `json:"success"`
	TransferID string `json:"transferId,omitempty"`
	Error      string `json:"error,omitempty"`
}

// ValidationEvent is the target's TransferValidationEvent callback.
type ValidationEvent struct {
	TransferID       string
	Success          bool
	PlatformName     string
	SourceInstanceID int
	Validation       map[string]any
	Metrics          map[string]any
}

// Config controls the orchestrator's timing constants (spec §6 "Observed
// timings") and active-transfer bound.
type Config struct {
	ExportStoreTimeout time.Duration
	ExportPollInterval time.Duration
	ValidationTimeout  time.Duration
	TickFactor         float64
	MaxActiveTransfers int
}

// DefaultConfig returns the spec's documented defaults.
func DefaultConfig() Config {
	return Config{
		ExportStoreTimeout: 10 * time.Second,
		ExportPollInterval: 100 * time.Millisecond,
		ValidationTimeout:  120 * time.Second,
		TickFactor:         16.67,
		MaxActiveTransfers: 100,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.ExportStoreTimeout <= 0 {
		c.ExportStoreTimeout = d.ExportStoreTimeout
	}
	if c.ExportPollInterval <= 0 {
		c.ExportPollInterval = d.ExportPollInterval
	}
	if c.ValidationTimeout <= 0 {
		c.ValidationTimeout = d.ValidationTimeout
	}
	if c.TickFactor <= 0 {
		c.TickFactor = d.TickFactor
	}
	if c.MaxActiveTransfers <= 0 {
		c.MaxActiveTransfers = d.MaxActiveTransfers
	}
	return c
}

// defaultForceName is substituted when a request omits forceName.
const defaultForceName = "player"

func coalesceForceName(forceName string) string {
	if forceName == "" {
		return defaultForceName
	}
	return forceName
}
