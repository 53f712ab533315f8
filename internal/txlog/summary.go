package txlog

import (
	"fmt"

	"github.com/platformforge/transfer-coordinator/domain/transfer"
)

// BuildPhaseSummary flattens tr.Phases to {<phase>Ms: durationMs, ...},
// skipping any phase with no recorded DurationMs (still open, or never
// started).
func BuildPhaseSummary(tr *transfer.Transfer) map[string]int64 {
	summary := make(map[string]int64, len(tr.Phases))
	for name, timing := range tr.Phases {
		if timing.DurationMs == 0 {
			continue
		}
		summary[name+"Ms"] = timing.DurationMs
	}
	return summary
}

// BuildTransferSummary returns the minimal summary used in list views.
func BuildTransferSummary(tr *transfer.Transfer) map[string]any {
	return map[string]any{
		"transferId":         tr.TransferID,
		"status":              tr.Status,
		"platformName":        tr.PlatformName,
		"sourceInstanceId":    tr.SourceInstanceID,
		"sourceInstanceName":  tr.SourceInstanceName,
		"targetInstanceId":    tr.TargetInstanceID,
		"targetInstanceName":  tr.TargetInstanceName,
		"startedAt":           tr.StartedAt,
		"completedAt":         tr.CompletedAt,
		"failedAt":            tr.FailedAt,
		"error":               tr.Error,
	}
}

// BuildDetailedTransferSummary returns the rich summary used for
// single-transfer views and persisted records: derived result, total
// duration (clamped to >= 0), a human-formatted duration string, the
// phase summary, and the embedded metrics/validation blocks.
func BuildDetailedTransferSummary(tr *transfer.Transfer, lastEventAtMs int64, nowMs int64) map[string]any {
	summary := BuildTransferSummary(tr)

	endMs := tr.CompletedAt
	if endMs == 0 {
		endMs = tr.FailedAt
	}
	if endMs == 0 {
		endMs = lastEventAtMs
	}
	if endMs == 0 {
		endMs = nowMs
	}

	totalDurationMs := endMs - tr.StartedAt
	if totalDurationMs < 0 {
		totalDurationMs = 0
	}

	summary["result"] = transfer.ResultFor(tr.Status)
	summary["totalDurationMs"] = totalDurationMs
	summary["totalDurationFormatted"] = formatDuration(totalDurationMs)
	summary["phases"] = BuildPhaseSummary(tr)
	summary["exportMetrics"] = tr.ExportMetrics
	summary["payloadMetrics"] = tr.PayloadMetrics
	summary["importMetrics"] = tr.ImportMetrics
	summary["validationResult"] = tr.ValidationResult
	return summary
}

// formatDuration renders a millisecond duration as "Xms" under one second,
// "X.Xs" otherwise — the format used in transfer summaries (spec §4.3),
// distinct from infrastructure/logging's general-purpose log-field
// formatter.
func formatDuration(ms int64) string {
	if ms < 1000 {
		return fmt.Sprintf("%dms", ms)
	}
	return fmt.Sprintf("%.1fs", float64(ms)/1000.0)
}
