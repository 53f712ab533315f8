package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/platformforge/transfer-coordinator/domain/transfer"
	"github.com/platformforge/transfer-coordinator/internal/txlog"
)

// HandleTransferValidation processes a TransferValidationEvent callback from
// a target instance (spec §4.5). A callback for an unknown (already pruned
// or never-seen) transferId is a stale event and is dropped.
func (o *Orchestrator) HandleTransferValidation(ctx context.Context, event ValidationEvent) {
	lock := o.txLock(event.TransferID)
	lock.Lock()
	defer lock.Unlock()

	tr, ok := o.GetTransfer(event.TransferID)
	if !ok {
		if o.logger != nil {
			o.logger.WithField("transfer_id", event.TransferID).Warn("validation event for unknown transfer, dropping")
		}
		return
	}

	o.cancelValidationTimer(tr)
	validationMs := tr.ClosePhase(transfer.PhaseValidation, transfer.NowMs())

	importMetrics := txlog.ConvertTickMetrics(event.Metrics, o.cfg.TickFactor)

	o.txLog.LogEvent(tr.TransferID, transfer.EventValidationReceived, "validation result received", tr.StartedAt, map[string]any{
		"success":      event.Success,
		"validationMs": validationMs,
	})

	tr.ImportMetrics = importMetrics
	tr.ValidationResult = event.Validation

	o.runValidationBranch(ctx, tr, event)

	o.pruneOldTransfers()

	if o.metrics != nil {
		if validationMs > 0 {
			o.metrics.RecordPhaseDuration(transfer.PhaseValidation, time.Duration(validationMs)*time.Millisecond)
		}
	}
}

// runValidationBranch dispatches to the success/failure branch, converting
// any panic raised by a collaborator call into a terminal error status
// (spec §4.5 step 9: "any exception ... transitions to status=error").
func (o *Orchestrator) runValidationBranch(ctx context.Context, tr *transfer.Transfer, event ValidationEvent) {
	defer func() {
		if r := recover(); r != nil {
			tr.Status = transfer.StatusError
			tr.Error = fmt.Sprintf("internal error: %v", r)
			tr.FailedAt = transfer.NowMs()
			_ = o.client.TransferStatusUpdate(ctx, tr.SourceInstanceID, tr.TransferID, tr.PlatformName, "Internal error, transfer aborted", "red")
			_ = o.client.TransferStatusUpdate(ctx, tr.TargetInstanceID, tr.TransferID, tr.PlatformName, "Internal error, transfer aborted", "red")
			o.subs.EmitTransferUpdate(tr)
			o.persist(ctx, tr)
			if o.metrics != nil {
				o.metrics.RecordTransferResult(string(transfer.ResultFor(tr.Status)))
			}
		}
	}()

	if event.Success {
		o.handleValidationSuccess(ctx, tr)
	} else {
		o.handleValidationFailure(ctx, tr, event.Validation)
	}
}

// handleValidationSuccess runs source cleanup after a successful target
// validation (spec §4.5).
func (o *Orchestrator) handleValidationSuccess(ctx context.Context, tr *transfer.Transfer) {
	tr.OpenPhase(transfer.PhaseCleanup, transfer.NowMs())

	_ = o.client.TransferStatusUpdate(ctx, tr.SourceInstanceID, tr.TransferID, tr.PlatformName, "Transfer validated, cleaning up source...", "yellow")
	_ = o.client.TransferStatusUpdate(ctx, tr.TargetInstanceID, tr.TransferID, tr.PlatformName, "Transfer validated, cleaning up source...", "yellow")

	deleteResult, err := o.client.DeleteSourcePlatformRequest(ctx, tr.SourceInstanceID, tr.PlatformIndex, tr.PlatformName, tr.ForceName)
	cleanupMs := tr.ClosePhase(transfer.PhaseCleanup, transfer.NowMs())

	deleteErr := ""
	if err != nil {
		deleteErr = err.Error()
	} else if !deleteResult.Success {
		deleteErr = deleteResult.Error
	}

	if deleteErr == "" {
		tr.Status = transfer.StatusCompleted
		tr.CompletedAt = transfer.NowMs()
		o.txLog.LogEvent(tr.TransferID, transfer.EventTransferCompleted, "transfer completed", tr.StartedAt, map[string]any{"cleanupMs": cleanupMs})

		_ = o.client.TransferStatusUpdate(ctx, tr.SourceInstanceID, tr.TransferID, tr.PlatformName, "Transfer complete", "green")
		_ = o.client.TransferStatusUpdate(ctx, tr.TargetInstanceID, tr.TransferID, tr.PlatformName, "Transfer complete", "green")

		o.subs.EmitTransferUpdate(tr)
		o.persist(ctx, tr)

		o.exports.Delete(ctx, tr.ExportID)
		if o.metrics != nil {
			o.metrics.SetExportsStored(o.exports.Len())
		}
		o.subs.QueueTreeBroadcast(ctx, tr.ForceName)
	} else {
		tr.Status = transfer.StatusCleanupFailed
		tr.Error = deleteErr
		tr.FailedAt = transfer.NowMs()
		o.txLog.LogEvent(tr.TransferID, transfer.EventTransferFailed, "source cleanup failed after successful validation", tr.StartedAt, map[string]any{
			"error":     deleteErr,
			"cleanupMs": cleanupMs,
		})

		_ = o.client.TransferStatusUpdate(ctx, tr.SourceInstanceID, tr.TransferID, tr.PlatformName, "Cleanup failed: "+deleteErr, "red")

		o.subs.EmitTransferUpdate(tr)
		o.persist(ctx, tr)
	}

	if o.metrics != nil {
		o.metrics.RecordTransferResult(string(transfer.ResultFor(tr.Status)))
		if d, ok := tr.Phases[transfer.PhaseCleanup]; ok {
			o.metrics.RecordPhaseDuration(transfer.PhaseCleanup, time.Duration(d.DurationMs)*time.Millisecond)
		}
	}
}

// handleValidationFailure rolls back the source platform after a target
// validation mismatch (spec §4.5).
func (o *Orchestrator) handleValidationFailure(ctx context.Context, tr *transfer.Transfer, validation map[string]any) {
	errorMsg := extractValidationError(validation)

	o.txLog.LogEvent(tr.TransferID, transfer.EventValidationFailed, "target validation failed", tr.StartedAt, map[string]any{
		"error":      errorMsg,
		"validation": validation,
	})

	_ = o.client.TransferStatusUpdate(ctx, tr.SourceInstanceID, tr.TransferID, tr.PlatformName, "Validation failed, rolling back...", "red")
	_ = o.client.TransferStatusUpdate(ctx, tr.TargetInstanceID, tr.TransferID, tr.PlatformName, "Validation failed, rolling back...", "red")

	rollbackErr := o.tryUnlockSource(ctx, tr)
	if rollbackErr != "" {
		_ = o.client.TransferStatusUpdate(ctx, tr.SourceInstanceID, tr.TransferID, tr.PlatformName, "Rollback failed: "+rollbackErr, "red")
	} else {
		_ = o.client.TransferStatusUpdate(ctx, tr.SourceInstanceID, tr.TransferID, tr.PlatformName, "Rolled back", "orange")
	}

	tr.Status = transfer.StatusFailed
	tr.Error = errorMsg
	tr.FailedAt = transfer.NowMs()
	o.txLog.LogEvent(tr.TransferID, transfer.EventTransferFailed, "transfer failed", tr.StartedAt, map[string]any{"error": errorMsg})

	o.subs.EmitTransferUpdate(tr)
	o.persist(ctx, tr)

	if o.metrics != nil {
		o.metrics.RecordTransferResult(string(transfer.ResultFor(tr.Status)))
	}
}

func extractValidationError(validation map[string]any) string {
	if validation == nil {
		return "validation failed"
	}
	if msg, ok := validation["mismatchDetails"].(string); ok && msg != "" {
		return msg
	}
	return "validation failed"
}

// tryUnlockSource issues a rollback unlock RPC to the source instance,
// returning "" on success or the failure reason otherwise (spec §4.5).
func (o *Orchestrator) tryUnlockSource(ctx context.Context, tr *transfer.Transfer) string {
	o.txLog.LogEvent(tr.TransferID, transfer.EventRollbackAttempt, "attempting to unlock source platform", tr.StartedAt, nil)

	result, err := o.client.UnlockSourcePlatformRequest(ctx, tr.SourceInstanceID, tr.PlatformName, tr.ForceName)
	if err != nil {
		o.txLog.LogEvent(tr.TransferID, transfer.EventRollbackFailed, "rollback failed", tr.StartedAt, map[string]any{"error": err.Error()})
		return err.Error()
	}
	if !result.Success {
		o.txLog.LogEvent(tr.TransferID, transfer.EventRollbackFailed, "rollback failed", tr.StartedAt, map[string]any{"error": result.Error})
		return result.Error
	}
	o.txLog.LogEvent(tr.TransferID, transfer.EventRollbackSuccess, "source unlocked", tr.StartedAt, nil)
	return ""
}

// scheduleValidationTimeout arms a one-shot timer at cfg.ValidationTimeout
// (default 120s). If it fires before a real callback disarms it, a
// synthetic validation-failure event drives the same failure path (spec
// §4.5 "Validation timeout").
func (o *Orchestrator) scheduleValidationTimeout(transferID string) {
	timer := time.AfterFunc(o.cfg.ValidationTimeout, func() {
		o.fireValidationTimeout(transferID)
	})

	o.timersMu.Lock()
	o.timers[transferID] = timer
	o.timersMu.Unlock()

	if tr, ok := o.GetTransfer(transferID); ok {
		tr.ArmValidationTimer(transferID)
	}
}

// cancelValidationTimer disarms transferID's validation timer, if any. Safe
// to call even if the timer already fired.
func (o *Orchestrator) cancelValidationTimer(tr *transfer.Transfer) {
	o.timersMu.Lock()
	timer, ok := o.timers[tr.TransferID]
	if ok {
		delete(o.timers, tr.TransferID)
	}
	o.timersMu.Unlock()
	if ok {
		timer.Stop()
	}
	tr.DisarmValidationTimer()
}

func (o *Orchestrator) fireValidationTimeout(transferID string) {
	o.timersMu.Lock()
	_, stillArmed := o.timers[transferID]
	delete(o.timers, transferID)
	o.timersMu.Unlock()
	if !stillArmed {
		return
	}

	tr, ok := o.GetTransfer(transferID)
	if !ok || tr.Status != transfer.StatusAwaitingValidation {
		return
	}

	o.txLog.LogEvent(transferID, transfer.EventValidationTimeout, "validation timed out, no callback within the deadline", tr.StartedAt, nil)

	o.HandleTransferValidation(context.Background(), ValidationEvent{
		TransferID:       transferID,
		Success:          false,
		SourceInstanceID: tr.SourceInstanceID,
		PlatformName:     tr.PlatformName,
		Validation: map[string]any{
			"itemCountMatch":  false,
			"fluidCountMatch": false,
			"mismatchDetails": "Validation timeout - no response received within 2 minutes",
		},
	})

	if o.metrics != nil {
		o.metrics.RecordValidationTimeout()
	}
}
