// Package subscription fans out tree/transfer/log updates to connected UI
// clients with coalescing and per-force rate limiting, so a slow client or
// a burst of tree changes can never stall the orchestrator.
package subscription

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/platformforge/transfer-coordinator/domain/transfer"
	"github.com/platformforge/transfer-coordinator/infrastructure/logging"
	"github.com/platformforge/transfer-coordinator/infrastructure/metrics"
	"github.com/platformforge/transfer-coordinator/infrastructure/ratelimit"
)

// Transport delivers one coalesced frame to a client over whatever duplex
// connection internal/transport maintains for it.
type Transport interface {
	Push(ctx context.Context, clientID, channel string, payload any) error
}

// TreeBuilder computes an on-demand tree snapshot for a force, matching
// internal/platformtree.Tree.BuildTree.
type TreeBuilder interface {
	BuildTree(ctx context.Context, forceName string) transfer.TreeSnapshot
}

// TreeChannel/TransferChannel/LogChannel build the canonical channel key
// for each subscription dimension.
func TreeChannel(forceName string) string { return "tree:" + forceName }
func TransferChannel(transferID string) string {
	return fmt.Sprintf("transfer:%s", transferID)
}
func LogChannel(transferID string) string { return fmt.Sprintf("log:%s", transferID) }

type clientState struct {
	channels map[string]*mailbox
}

// Manager holds per-client subscriptions and drives coalesced delivery.
type Manager struct {
	mu      sync.Mutex
	clients map[string]*clientState

	tree      TreeBuilder
	transport Transport
	logger    *logging.Logger
	metrics   *metrics.Metrics

	window       time.Duration
	forceLimiter *ratelimit.Registry
	pendingMu    sync.Mutex
	pendingForce map[string]bool
}

// Config controls the tree-broadcast rate-limit window (spec §4.4
// recommends 250-500ms).
type Config struct {
	TreeBroadcastWindow time.Duration
}

func DefaultConfig() Config {
	return Config{TreeBroadcastWindow: 250 * time.Millisecond}
}

func New(tree TreeBuilder, transport Transport, cfg Config, logger *logging.Logger, m *metrics.Metrics) *Manager {
	if cfg.TreeBroadcastWindow <= 0 {
		cfg = DefaultConfig()
	}
	return &Manager{
		clients:      make(map[string]*clientState),
		tree:         tree,
		transport:    transport,
		logger:       logger,
		metrics:      m,
		window:       cfg.TreeBroadcastWindow,
		forceLimiter: ratelimit.NewRegistry(ratelimit.Config{Burst: 1, Window: cfg.TreeBroadcastWindow}),
		pendingForce: make(map[string]bool),
	}
}

// Subscribe adds channel to clientID's subscription set, starting a
// dedicated delivery goroutine for the (client, channel) mailbox.
func (m *Manager) Subscribe(ctx context.Context, clientID, channel string) {
	m.mu.Lock()
	state, ok := m.clients[clientID]
	if !ok {
		state = &clientState{channels: make(map[string]*mailbox)}
		m.clients[clientID] = state
	}
	if _, exists := state.channels[channel]; exists {
		m.mu.Unlock()
		return
	}
	box := newMailbox()
	state.channels[channel] = box
	m.mu.Unlock()

	go m.dispatch(ctx, clientID, channel, box)
}

// Unsubscribe removes channel from clientID's subscription set.
func (m *Manager) Unsubscribe(clientID, channel string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	state, ok := m.clients[clientID]
	if !ok {
		return
	}
	delete(state.channels, channel)
	if len(state.channels) == 0 {
		delete(m.clients, clientID)
	}
}

// Disconnect removes every subscription for clientID.
func (m *Manager) Disconnect(clientID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.clients, clientID)
}

// dispatch is the per-(client,channel) delivery loop: block on the
// mailbox's notify signal, then push whatever is currently pending
// (coalesced). Stops once the client or channel is gone.
func (m *Manager) dispatch(ctx context.Context, clientID, channel string, box *mailbox) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-box.notify:
		}

		if !m.stillSubscribed(clientID, channel, box) {
			return
		}
		payload, ok := box.Take()
		if !ok {
			continue
		}
		if err := m.transport.Push(ctx, clientID, channel, payload); err != nil && m.logger != nil {
			m.logger.WithError(err).WithField("client_id", clientID).WithField("channel", channel).Warn("subscriber push failed")
		}
	}
}

func (m *Manager) stillSubscribed(clientID, channel string, box *mailbox) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	state, ok := m.clients[clientID]
	if !ok {
		return false
	}
	return state.channels[channel] == box
}

// broadcast coalesces payload into every subscriber's mailbox for channel,
// recording a metric for each delivery attempt and each frame a full
// mailbox forced out.
func (m *Manager) broadcast(channel string, payload any) {
	m.mu.Lock()
	var boxes []*mailbox
	for _, state := range m.clients {
		if box, ok := state.channels[channel]; ok {
			boxes = append(boxes, box)
		}
	}
	m.mu.Unlock()

	for _, box := range boxes {
		dropped := box.Send(payload)
		if m.metrics != nil {
			m.metrics.RecordBroadcast(channel)
			if dropped {
				m.metrics.RecordBroadcastDropped(channel)
			}
		}
	}
}

// EmitTransferUpdate pushes a transfer's current state to its channel
// subscribers. Not rate-limited; coalesced per client.
func (m *Manager) EmitTransferUpdate(tr *transfer.Transfer) {
	m.broadcast(TransferChannel(tr.TransferID), tr)
}

// EmitLogUpdate pushes one transaction-log event incrementally.
func (m *Manager) EmitLogUpdate(transferID string, event transfer.Event) {
	m.broadcast(LogChannel(transferID), event)
}

// EmitTreeUpdate computes the current tree snapshot for forceName on
// demand and pushes it to tree subscribers of that force.
func (m *Manager) EmitTreeUpdate(ctx context.Context, forceName string) {
	if m.tree == nil {
		return
	}
	snapshot := m.tree.BuildTree(ctx, forceName)
	m.broadcast(TreeChannel(forceName), snapshot)
}

// QueueTreeBroadcast coalesces back-to-back tree broadcasts for forceName:
// if one is already pending within the rate-limit window, this call is
// dropped — the pending broadcast computes its snapshot at fire time, so
// it always carries the latest state (spec §4.4).
func (m *Manager) QueueTreeBroadcast(ctx context.Context, forceName string) {
	limiter := m.limiterFor(forceName)

	m.pendingMu.Lock()
	if m.pendingForce[forceName] {
		m.pendingMu.Unlock()
		return
	}
	if limiter.Allow() {
		m.pendingMu.Unlock()
		m.EmitTreeUpdate(ctx, forceName)
		return
	}
	m.pendingForce[forceName] = true
	m.pendingMu.Unlock()

	time.AfterFunc(m.window, func() {
		m.pendingMu.Lock()
		m.pendingForce[forceName] = false
		m.pendingMu.Unlock()
		m.EmitTreeUpdate(ctx, forceName)
	})
}

func (m *Manager) limiterFor(forceName string) *ratelimit.Limiter {
	return m.forceLimiter.For(forceName)
}
