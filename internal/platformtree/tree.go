// Package platformtree resolves instance identifiers and builds the live
// instance/platform snapshot the orchestrator and control plane depend on.
package platformtree

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/platformforge/transfer-coordinator/domain/transfer"
	"github.com/platformforge/transfer-coordinator/infrastructure/logging"
)

// PlatformLister issues the opaque InstanceListPlatformsRequest RPC to one
// instance. Implemented by internal/coordinator's treeLister adapter over
// transport.Client; faked in tests.
type PlatformLister interface {
	ListPlatforms(ctx context.Context, instanceID int, forceName string) ([]transfer.PlatformSummary, error)
}

// Tree is the instance directory plus platform-enumeration fan-out. The
// directory itself (which instances exist, their connection status) is
// managed externally via Register/SetStatus/Remove — the core treats it as
// a directory it queries, not a lifecycle it owns (spec §3).
type Tree struct {
	mu        sync.RWMutex
	instances map[int]*transfer.Instance

	lister  PlatformLister
	timeout time.Duration
	logger  *logging.Logger
}

// Config controls the per-instance RPC timeout used by buildTree.
type Config struct {
	ListTimeout time.Duration
}

// DefaultConfig returns a timeout short enough that one wedged instance
// cannot stall a tree snapshot for long.
func DefaultConfig() Config {
	return Config{ListTimeout: 2 * time.Second}
}

// New constructs a Tree. lister may be nil in tests that only exercise
// resolution, not buildTree.
func New(lister PlatformLister, cfg Config, logger *logging.Logger) *Tree {
	if cfg.ListTimeout <= 0 {
		cfg = DefaultConfig()
	}
	return &Tree{
		instances: make(map[int]*transfer.Instance),
		lister:    lister,
		timeout:   cfg.ListTimeout,
		logger:    logger,
	}
}

// Register adds or replaces a known instance.
func (t *Tree) Register(instance transfer.Instance) {
	t.mu.Lock()
	defer t.mu.Unlock()
	copyInstance := instance
	t.instances[instance.ID] = &copyInstance
}

// SetStatus updates the connection status of a known instance. A no-op if
// the instance id is unknown.
func (t *Tree) SetStatus(id int, status transfer.ConnectionStatus) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if inst, ok := t.instances[id]; ok {
		inst.Status = status
	}
}

// Remove marks an instance deleted rather than dropping it from the
// directory outright, so resolution can still report "deleted" rather than
// "unknown" for recently-removed instances.
func (t *Tree) Remove(id int) {
	t.SetStatus(id, transfer.InstanceDeleted)
}

// ResolveTargetInstance accepts either an integer id or a display name and
// returns the canonical (id, name), or (0, "", false) if unresolvable or
// deleted.
func (t *Tree) ResolveTargetInstance(identifier string) (id int, name string, ok bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if parsed, err := strconv.Atoi(strings.TrimSpace(identifier)); err == nil {
		inst, found := t.instances[parsed]
		if !found || inst.Status == transfer.InstanceDeleted {
			return 0, "", false
		}
		return inst.ID, inst.Name, true
	}

	needle := strings.TrimSpace(identifier)
	for _, inst := range t.instances {
		if inst.Name == needle && inst.Status != transfer.InstanceDeleted {
			return inst.ID, inst.Name, true
		}
	}
	return 0, "", false
}

// ResolveInstanceByID looks an instance up strictly by its integer id.
func (t *Tree) ResolveInstanceByID(id int) (transfer.Instance, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	inst, ok := t.instances[id]
	if !ok || inst.Status == transfer.InstanceDeleted {
		return transfer.Instance{}, false
	}
	return *inst, true
}

// ResolveInstanceName returns the display name for an instance id, or ""
// if unknown or deleted.
func (t *Tree) ResolveInstanceName(id int) string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	inst, ok := t.instances[id]
	if !ok || inst.Status == transfer.InstanceDeleted {
		return ""
	}
	return inst.Name
}

// BuildTree enumerates platforms across all connected instances in
// parallel. A per-instance RPC failure (timeout, transport error) is
// reflected as Status=disconnected with an empty platform list, never
// omitted and never returned as an error — callers rely on presence for
// disambiguation (spec §4.1). Failures are folded into a single
// *multierror.Error for one debug-level log line.
func (t *Tree) BuildTree(ctx context.Context, forceName string) transfer.TreeSnapshot {
	t.mu.RLock()
	snapshot := make([]transfer.Instance, 0, len(t.instances))
	for _, inst := range t.instances {
		if inst.Status == transfer.InstanceDeleted {
			continue
		}
		snapshot = append(snapshot, *inst)
	}
	t.mu.RUnlock()

	results := make([]transfer.InstanceSnapshot, len(snapshot))
	var wg sync.WaitGroup
	var mu sync.Mutex
	var errs *multierror.Error

	for i, inst := range snapshot {
		wg.Add(1)
		go func(i int, inst transfer.Instance) {
			defer wg.Done()
			result := transfer.InstanceSnapshot{Instance: inst}

			if inst.Status != transfer.InstanceConnected || t.lister == nil {
				result.Instance.Status = transfer.InstanceDisconnected
				results[i] = result
				return
			}

			callCtx, cancel := context.WithTimeout(ctx, t.timeout)
			platforms, err := t.lister.ListPlatforms(callCtx, inst.ID, forceName)
			cancel()

			if err != nil {
				result.Instance.Status = transfer.InstanceDisconnected
				result.Platforms = nil
				mu.Lock()
				errs = multierror.Append(errs, errInstanceUnreachable(inst, err))
				mu.Unlock()
			} else {
				result.Platforms = platforms
			}
			results[i] = result
		}(i, inst)
	}
	wg.Wait()

	if errs != nil && t.logger != nil {
		t.logger.WithError(errs.ErrorOrNil()).Debug("one or more instances failed to list platforms")
	}

	return transfer.TreeSnapshot{
		ForceName: forceName,
		Instances: results,
		BuiltAtMs: transfer.NowMs(),
	}
}

type instanceUnreachableError struct {
	instanceID   int
	instanceName string
	cause        error
}

func (e *instanceUnreachableError) Error() string {
	return "instance " + strconv.Itoa(e.instanceID) + " (" + e.instanceName + ") unreachable: " + e.cause.Error()
}

func (e *instanceUnreachableError) Unwrap() error { return e.cause }

func errInstanceUnreachable(inst transfer.Instance, cause error) error {
	return &instanceUnreachableError{instanceID: inst.ID, instanceName: inst.Name, cause: cause}
}
