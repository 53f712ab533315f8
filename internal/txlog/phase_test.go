package txlog

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/platformforge/transfer-coordinator/domain/transfer"
)

func TestStartEndPhase(t *testing.T) {
	tr := &transfer.Transfer{}
	StartPhase(tr, transfer.PhaseTransmission, 1000)
	duration := EndPhase(tr, transfer.PhaseTransmission, 1800)
	require.Equal(t, int64(800), duration)
}

func TestConvertTickMetricsNil(t *testing.T) {
	require.Nil(t, ConvertTickMetrics(nil, 0))
}

func TestConvertTickMetricsConvertsTickFields(t *testing.T) {
	raw := map[string]any{
		"importTicks": float64(60),
		"entityCount": float64(5),
	}
	converted := ConvertTickMetrics(raw, TickToMillisecondFactor)

	ms, ok := converted["importMs"].(float64)
	require.True(t, ok)
	require.InDelta(t, 60*TickToMillisecondFactor, ms, 0.01)
	require.Equal(t, float64(5), converted["entityCount"])
	_, hasRawTicks := converted["importTicks"]
	require.False(t, hasRawTicks)
}

func TestFormatDuration(t *testing.T) {
	require.Equal(t, "500ms", formatDuration(500))
	require.Equal(t, "1.5s", formatDuration(1500))
}
