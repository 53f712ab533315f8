package orchestrator

import (
	"sort"
	"sync"
	"time"

	"github.com/platformforge/transfer-coordinator/domain/transfer"
	"github.com/platformforge/transfer-coordinator/infrastructure/logging"
	"github.com/platformforge/transfer-coordinator/infrastructure/metrics"
	"github.com/platformforge/transfer-coordinator/internal/exportstore"
	"github.com/platformforge/transfer-coordinator/internal/platformtree"
	"github.com/platformforge/transfer-coordinator/internal/subscription"
	"github.com/platformforge/transfer-coordinator/internal/transport"
	"github.com/platformforge/transfer-coordinator/internal/txlog"
)

// Orchestrator is the Transfer Orchestrator (spec §4.5): the heart of the
// core. Cross-transfer shared state (the active-transfer map) is guarded by
// mu; per-transfer mutation is additionally serialized by a per-transferId
// lock so that a validation callback and a racing timeout never mutate the
// same Transfer concurrently (spec §5).
type Orchestrator struct {
	mu     sync.Mutex
	active map[string]*transfer.Transfer

	txLocksMu sync.Mutex
	txLocks   map[string]*sync.Mutex

	timersMu sync.Mutex
	timers   map[string]*time.Timer

	tree    *platformtree.Tree
	exports *exportstore.Store
	txLog   *txlog.Logger
	archive *txlog.Archive
	subs    *subscription.Manager
	client  transport.InstanceClient
	metrics *metrics.Metrics
	logger  *logging.Logger

	cfg Config
}

// New wires the orchestrator to its collaborators. Any of metrics/logger may
// be nil.
func New(
	tree *platformtree.Tree,
	exports *exportstore.Store,
	txLog *txlog.Logger,
	archive *txlog.Archive,
	subs *subscription.Manager,
	client transport.InstanceClient,
	m *metrics.Metrics,
	logger *logging.Logger,
	cfg Config,
) *Orchestrator {
	return &Orchestrator{
		active:  make(map[string]*transfer.Transfer),
		txLocks: make(map[string]*sync.Mutex),
		timers:  make(map[string]*time.Timer),
		tree:    tree,
		exports: exports,
		txLog:   txLog,
		archive: archive,
		subs:    subs,
		client:  client,
		metrics: m,
		logger:  logger,
		cfg:     cfg.withDefaults(),
	}
}

// ActiveTransfers implements txlog.ActiveTransferProvider.
func (o *Orchestrator) ActiveTransfers() []*transfer.Transfer {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]*transfer.Transfer, 0, len(o.active))
	for _, tr := range o.active {
		out = append(out, tr)
	}
	return out
}

// GetTransfer returns the active transfer by id, if any.
func (o *Orchestrator) GetTransfer(transferID string) (*transfer.Transfer, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	tr, ok := o.active[transferID]
	return tr, ok
}

// txLock returns (and lazily creates) the per-transfer serialization lock.
func (o *Orchestrator) txLock(transferID string) *sync.Mutex {
	o.txLocksMu.Lock()
	defer o.txLocksMu.Unlock()
	l, ok := o.txLocks[transferID]
	if !ok {
		l = &sync.Mutex{}
		o.txLocks[transferID] = l
	}
	return l
}

// register inserts tr into the active map and prunes beyond the configured
// cap (spec §4.5 "Pruning active transfers").
func (o *Orchestrator) register(tr *transfer.Transfer) {
	o.mu.Lock()
	o.active[tr.TransferID] = tr
	o.pruneLocked()
	activeCount := len(o.active)
	o.mu.Unlock()

	if o.metrics != nil {
		o.metrics.SetActiveTransfers(activeCount)
	}
}

// pruneOldTransfers removes the oldest active transfers by StartedAt beyond
// MaxActiveTransfers. Persisted logs are unaffected (spec §4.5).
func (o *Orchestrator) pruneOldTransfers() {
	o.mu.Lock()
	o.pruneLocked()
	activeCount := len(o.active)
	o.mu.Unlock()

	if o.metrics != nil {
		o.metrics.SetActiveTransfers(activeCount)
	}
}

// pruneLocked must be called with mu held.
func (o *Orchestrator) pruneLocked() {
	if len(o.active) <= o.cfg.MaxActiveTransfers {
		return
	}
	ids := make([]string, 0, len(o.active))
	for id := range o.active {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		return o.active[ids[i]].StartedAt < o.active[ids[j]].StartedAt
	})

	excess := len(ids) - o.cfg.MaxActiveTransfers
	for i := 0; i < excess; i++ {
		id := ids[i]
		if o.txLog != nil {
			o.txLog.DropTransfer(id)
		}
		delete(o.active, id)
	}
}

