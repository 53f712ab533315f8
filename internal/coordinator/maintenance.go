package coordinator

import (
	"github.com/platformforge/transfer-coordinator/domain/transfer"
)

// maintenanceValidationGraceMs pads the configured validation timeout before
// a still-awaiting-validation transfer is flagged as stuck: the sweep only
// ever runs on its own cron cadence, so a transfer legitimately mid-timeout
// shouldn't be logged as suspicious every tick.
const maintenanceValidationGraceMs = 5000

// runMaintenanceSweep is a diagnostic-only periodic check (spec §11/§12):
// it never mutates a Transfer itself — the validation timer armed in
// internal/orchestrator is the sole source of truth for expiry — it only
// surfaces transfers that outlived their timer without resolving, and
// reports current store sizes to metrics.
func (c *Coordinator) runMaintenanceSweep() {
	nowMs := transfer.NowMs()

	for _, tr := range c.orch.ActiveTransfers() {
		if tr.Status != transfer.StatusAwaitingValidation {
			continue
		}
		phase, ok := tr.Phases[transfer.PhaseValidation]
		if !ok || phase.Closed() {
			continue
		}
		elapsed := nowMs - phase.StartMs
		if elapsed > c.validationTimeoutMs+maintenanceValidationGraceMs && c.logger != nil {
			c.logger.WithFields(map[string]interface{}{
				"transfer_id": tr.TransferID,
				"elapsed_ms":  elapsed,
			}).Warn("transfer still awaiting validation past its configured timeout")
		}
	}

	if c.metrics != nil {
		c.metrics.SetExportsStored(c.exports.Len())
		c.metrics.SetTransactionLogsPersisted(len(c.archive.Records()))
		c.metrics.SetActiveTransfers(len(c.orch.ActiveTransfers()))
	}
}
