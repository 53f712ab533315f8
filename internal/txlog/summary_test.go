package txlog

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/platformforge/transfer-coordinator/domain/transfer"
)

func TestBuildPhaseSummarySkipsOpenPhases(t *testing.T) {
	tr := &transfer.Transfer{Phases: map[string]*transfer.PhaseTiming{
		transfer.PhaseTransmission: {StartMs: 0, EndMs: 500, DurationMs: 500},
		transfer.PhaseValidation:   {StartMs: 500},
	}}

	summary := BuildPhaseSummary(tr)
	require.Equal(t, int64(500), summary["transmissionMs"])
	_, hasValidation := summary["validationMs"]
	require.False(t, hasValidation)
}

func TestBuildDetailedTransferSummaryResult(t *testing.T) {
	tr := &transfer.Transfer{
		TransferID: "t-1",
		Status:     transfer.StatusCompleted,
		StartedAt:  1000,
		CompletedAt: 2500,
	}
	summary := BuildDetailedTransferSummary(tr, 0, 3000)
	require.Equal(t, transfer.ResultSuccess, summary["result"])
	require.Equal(t, int64(1500), summary["totalDurationMs"])
	require.Equal(t, "1.5s", summary["totalDurationFormatted"])
}

func TestBuildDetailedTransferSummaryClampsNegativeDuration(t *testing.T) {
	tr := &transfer.Transfer{TransferID: "t-1", Status: transfer.StatusFailed, StartedAt: 5000, FailedAt: 4000}
	summary := BuildDetailedTransferSummary(tr, 0, 6000)
	require.Equal(t, int64(0), summary["totalDurationMs"])
}
