package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/platformforge/transfer-coordinator/domain/transfer"
	"github.com/platformforge/transfer-coordinator/internal/exportstore"
)

// HandleStartPlatformTransferRequest is a one-shot end-to-end transfer from
// a live platform: export, wait for the export to land in the store, then
// delegate to transferPlatform (spec §4.5).
func (o *Orchestrator) HandleStartPlatformTransferRequest(ctx context.Context, req StartTransferRequest) TransferResult {
	sourceInst, ok := o.tree.ResolveInstanceByID(req.SourceInstanceID)
	if !ok || sourceInst.Status != transfer.InstanceConnected {
		return TransferResult{Error: "source instance is not a resolvable connected instance"}
	}
	targetID, targetName, ok := o.tree.ResolveTargetInstance(req.TargetInstanceID)
	if !ok {
		return TransferResult{Error: "target instance not found"}
	}
	if sourceInst.ID == targetID {
		return TransferResult{Error: "source and target instance must differ"}
	}
	if req.SourcePlatformIndex <= 0 {
		return TransferResult{Error: "sourcePlatformIndex must be a positive integer"}
	}
	forceName := coalesceForceName(req.ForceName)

	exportStart := time.Now()
	exportResult, err := o.client.ExportPlatformRequest(ctx, sourceInst.ID, req.SourcePlatformIndex, forceName)
	exportRequestMs := time.Since(exportStart).Milliseconds()
	if err != nil {
		return TransferResult{Error: fmt.Sprintf("export request failed: %v", err)}
	}
	if !exportResult.Success {
		return TransferResult{Error: fmt.Sprintf("source refused export: %s", exportResult.Error)}
	}

	waitStart := time.Now()
	deadline := waitStart.Add(o.cfg.ExportStoreTimeout)
	var found bool
	for {
		if _, ok := o.exports.Get(exportResult.ExportID); ok {
			found = true
			break
		}
		if !time.Now().Before(deadline) {
			break
		}
		select {
		case <-ctx.Done():
			return TransferResult{Error: ctx.Err().Error()}
		case <-time.After(o.cfg.ExportPollInterval):
		}
	}
	if !found {
		return TransferResult{Error: "timed out waiting for export to be stored"}
	}
	waitForStoredMs := time.Since(waitStart).Milliseconds()

	exportMetrics := map[string]any{
		"exportRequestMs":   exportRequestMs,
		"waitForStoredMs":   waitForStoredMs,
		"exportPrepTotalMs": exportRequestMs + waitForStoredMs,
	}

	return o.transferPlatform(ctx, exportResult.ExportID, targetID, targetName, exportMetrics)
}

// HandleTransferPlatformRequest transfers an already-stored export (spec
// §4.5).
func (o *Orchestrator) HandleTransferPlatformRequest(ctx context.Context, req TransferExistingRequest) TransferResult {
	targetID, targetName, ok := o.tree.ResolveTargetInstance(req.TargetInstanceID)
	if !ok {
		return TransferResult{Error: "target instance not found"}
	}
	return o.transferPlatform(ctx, req.ExportID, targetID, targetName, nil)
}

// transferPlatform is the core saga entry point shared by both public
// operations (spec §4.5).
func (o *Orchestrator) transferPlatform(ctx context.Context, exportID string, targetID int, targetName string, exportMetrics map[string]any) TransferResult {
	record, ok := o.exports.Get(exportID)
	if !ok {
		return TransferResult{Error: "export not found"}
	}
	if record.SourceInstanceID == targetID {
		return TransferResult{Error: "source and target instance must differ"}
	}

	nowMs := transfer.NowMs()
	transferID := transfer.NewTransferID(nowMs)
	payloadMetrics := exportstore.ExtractPayloadMetrics(record.ExportData)
	sourceName := o.tree.ResolveInstanceName(record.SourceInstanceID)

	tr := &transfer.Transfer{
		TransferID:         transferID,
		ExportID:           exportID,
		PlatformName:       record.PlatformName,
		PlatformIndex:      record.PlatformIndex,
		ForceName:          record.ForceName,
		SourceInstanceID:   record.SourceInstanceID,
		SourceInstanceName: sourceName,
		TargetInstanceID:   targetID,
		TargetInstanceName: targetName,
		Status:             transfer.StatusTransporting,
		StartedAt:          nowMs,
		Phases:             make(map[string]*transfer.PhaseTiming),
		ExportMetrics:      exportMetrics,
		PayloadMetrics:     payloadMetrics,
	}

	o.register(tr)

	o.txLog.LogEvent(transferID, transfer.EventTransferCreated, "transfer created", tr.StartedAt, map[string]any{
		"exportId":         exportID,
		"sourceInstanceId": tr.SourceInstanceID,
		"targetInstanceId": tr.TargetInstanceID,
	})
	o.subs.EmitTransferUpdate(tr)
	o.subs.QueueTreeBroadcast(ctx, tr.ForceName)

	transmissionStart := transfer.NowMs()
	tr.OpenPhase(transfer.PhaseTransmission, transmissionStart)

	importResult, err := o.client.ImportPlatformRequest(ctx, targetID, exportID, record.ExportData, tr.ForceName, transferID, record.SourceInstanceID)

	transmissionMs := tr.ClosePhase(transfer.PhaseTransmission, transfer.NowMs())

	if err != nil {
		o.handleImportFailure(ctx, tr, err.Error(), transmissionMs)
		return TransferResult{Success: true, TransferID: transferID}
	}
	if !importResult.Success {
		o.handleImportFailure(ctx, tr, importResult.Error, transmissionMs)
		return TransferResult{Success: true, TransferID: transferID}
	}

	tr.Status = transfer.StatusAwaitingValidation
	tr.OpenPhase(transfer.PhaseValidation, transfer.NowMs())
	o.txLog.LogEvent(transferID, transfer.EventImportStarted, "import accepted by target, awaiting validation", tr.StartedAt, map[string]any{
		"transmissionMs": transmissionMs,
	})
	o.subs.EmitTransferUpdate(tr)

	o.scheduleValidationTimeout(transferID)

	return TransferResult{Success: true, TransferID: transferID}
}

// handleImportFailure transitions tr to failed after a refused or erroring
// import, attempting a source rollback (spec §4.5).
func (o *Orchestrator) handleImportFailure(ctx context.Context, tr *transfer.Transfer, importErr string, transmissionMs int64) {
	tr.Status = transfer.StatusFailed
	tr.Error = importErr
	tr.FailedAt = transfer.NowMs()

	o.txLog.LogEvent(tr.TransferID, transfer.EventImportFailed, "target refused import", tr.StartedAt, map[string]any{
		"error":          importErr,
		"transmissionMs": transmissionMs,
	})

	if rollbackErr := o.tryUnlockSource(ctx, tr); rollbackErr != "" {
		tr.Error = fmt.Sprintf("%s; rollback failed: %s", tr.Error, rollbackErr)
	}

	o.subs.EmitTransferUpdate(tr)
	o.persist(ctx, tr)

	if o.metrics != nil {
		o.metrics.RecordTransferResult(string(transfer.ResultFor(tr.Status)))
	}
}

// persist synthesizes and writes tr's durable transaction-log record,
// logging (but never propagating) a failure (spec §4.3, §7).
func (o *Orchestrator) persist(ctx context.Context, tr *transfer.Transfer) {
	events := o.txLog.Events(tr.TransferID)
	if err := o.archive.Persist(ctx, tr, events, transfer.NowMs()); err != nil && o.logger != nil {
		o.logger.WithError(err).WithField("transfer_id", tr.TransferID).Error("failed to persist transaction log")
	}
	if o.metrics != nil {
		o.metrics.SetTransactionLogsPersisted(len(o.archive.Records()))
	}
}
