package txlog

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/platformforge/transfer-coordinator/domain/transfer"
)

type captureNotifier struct {
	events []transfer.Event
}

func (c *captureNotifier) EmitLogUpdate(transferID string, event transfer.Event) {
	c.events = append(c.events, event)
}

func TestLogEventElapsedAndDelta(t *testing.T) {
	notifier := &captureNotifier{}
	logger := New(notifier, nil)

	first := logger.LogEvent("t-1", transfer.EventTransferCreated, "created", 0, nil)
	require.Equal(t, int64(0), first.ElapsedMs)
	require.Equal(t, int64(0), first.DeltaMs)

	second := logger.LogEvent("t-1", transfer.EventImportStarted, "import started", first.TimestampMs, nil)
	require.GreaterOrEqual(t, second.DeltaMs, int64(0))
	require.GreaterOrEqual(t, second.ElapsedMs, int64(0))

	require.Len(t, notifier.events, 2)
}

func TestLogEventWithNoPriorTransferReturnsGracefully(t *testing.T) {
	logger := New(nil, nil)
	event := logger.LogEvent("unknown", transfer.EventTransferCreated, "created", 0, nil)
	require.Equal(t, int64(0), event.ElapsedMs)
}

func TestEventsReturnsCopy(t *testing.T) {
	logger := New(nil, nil)
	logger.LogEvent("t-1", transfer.EventTransferCreated, "created", 0, nil)

	events := logger.Events("t-1")
	events[0].Message = "mutated"

	require.Equal(t, "created", logger.Events("t-1")[0].Message)
}

func TestDropTransfer(t *testing.T) {
	logger := New(nil, nil)
	logger.LogEvent("t-1", transfer.EventTransferCreated, "created", 0, nil)
	logger.DropTransfer("t-1")
	require.Empty(t, logger.Events("t-1"))
}
