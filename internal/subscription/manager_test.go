package subscription

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/platformforge/transfer-coordinator/domain/transfer"
)

type capturingTransport struct {
	mu    sync.Mutex
	calls []string
}

func (c *capturingTransport) Push(ctx context.Context, clientID, channel string, payload any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, clientID+"|"+channel)
	return nil
}

func (c *capturingTransport) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.calls)
}

type fakeTreeBuilder struct{}

func (fakeTreeBuilder) BuildTree(ctx context.Context, forceName string) transfer.TreeSnapshot {
	return transfer.TreeSnapshot{ForceName: forceName}
}

func TestSubscribeAndEmitTransferUpdate(t *testing.T) {
	transport := &capturingTransport{}
	mgr := New(fakeTreeBuilder{}, transport, DefaultConfig(), nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	mgr.Subscribe(ctx, "client-1", TransferChannel("t-1"))

	mgr.EmitTransferUpdate(&transfer.Transfer{TransferID: "t-1", Status: transfer.StatusTransporting})

	require.Eventually(t, func() bool { return transport.count() == 1 }, time.Second, 5*time.Millisecond)
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	transport := &capturingTransport{}
	mgr := New(fakeTreeBuilder{}, transport, DefaultConfig(), nil, nil)

	ctx := context.Background()
	mgr.Subscribe(ctx, "client-1", TransferChannel("t-1"))
	mgr.Unsubscribe("client-1", TransferChannel("t-1"))

	mgr.EmitTransferUpdate(&transfer.Transfer{TransferID: "t-1"})
	time.Sleep(20 * time.Millisecond)
	require.Equal(t, 0, transport.count())
}

func TestCoalescingDropsIntermediateFrames(t *testing.T) {
	box := newMailbox()
	box.Send("first")
	dropped := box.Send("second")
	require.True(t, dropped)

	payload, ok := box.Take()
	require.True(t, ok)
	require.Equal(t, "second", payload)
}

func TestQueueTreeBroadcastCoalescesBurst(t *testing.T) {
	transport := &capturingTransport{}
	mgr := New(fakeTreeBuilder{}, transport, Config{TreeBroadcastWindow: 50 * time.Millisecond}, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	mgr.Subscribe(ctx, "client-1", TreeChannel("player"))

	for i := 0; i < 5; i++ {
		mgr.QueueTreeBroadcast(ctx, "player")
	}

	time.Sleep(200 * time.Millisecond)
	require.LessOrEqual(t, transport.count(), 2)
	require.GreaterOrEqual(t, transport.count(), 1)
}
