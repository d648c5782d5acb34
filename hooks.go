package blockquote

import (
	"sync"

	"github.com/agentstation/blockquote/pkg/logging"
	"github.com/agentstation/blockquote/pkg/reconcile"
)

// Hook function types for reconciliation events
type (
	// ReconciledHook is called after every successful reconciliation run
	ReconciledHook func(result reconcile.Result)

	// ReconcileFailedHook is called after a failed run with whatever the
	// run completed before it stopped
	ReconcileFailedHook func(result reconcile.Result, err error)

	// RecordDeletedHook is called once for every record newly marked
	// deleted, after the change was written
	RecordDeletedHook func(id string)
)

// Hooks provides event callback registration.
type Hooks interface {
	// OnReconciled registers a callback for completed reconciliation runs
	OnReconciled(ReconciledHook)

	// OnReconcileFailed registers a callback for failed reconciliation runs
	OnReconcileFailed(ReconcileFailedHook)

	// OnRecordDeleted registers a callback for records marked deleted
	OnRecordDeleted(RecordDeletedHook)
}

var _ Hooks = (*client)(nil)

// hooks manages event callbacks
type hooks struct {
	mu              sync.RWMutex
	onReconciled    []ReconciledHook
	onFailed        []ReconcileFailedHook
	onRecordDeleted []RecordDeletedHook
}

func newHooks() *hooks {
	return &hooks{}
}

func (h *hooks) addReconciled(fn ReconciledHook) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onReconciled = append(h.onReconciled, fn)
}

func (h *hooks) addFailed(fn ReconcileFailedHook) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onFailed = append(h.onFailed, fn)
}

func (h *hooks) addRecordDeleted(fn RecordDeletedHook) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onRecordDeleted = append(h.onRecordDeleted, fn)
}

// trigger fires deletion hooks for every committed deletion, then either
// the reconciled or the failed hooks. A panicking hook is logged and does
// not stop the others.
func (h *hooks) trigger(res *reconcile.Result, runErr error) {
	if res == nil {
		return
	}

	h.mu.RLock()
	deleted := h.onRecordDeleted
	reconciled := h.onReconciled
	failed := h.onFailed
	h.mu.RUnlock()

	for _, id := range res.MarkedDeleted {
		for _, fn := range deleted {
			safeCall("record_deleted", func() { fn(id) })
		}
	}

	if runErr != nil {
		for _, fn := range failed {
			safeCall("reconcile_failed", func() { fn(*res, runErr) })
		}
		return
	}
	for _, fn := range reconciled {
		safeCall("reconciled", func() { fn(*res) })
	}
}

func safeCall(hook string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			logging.Error().Str("hook", hook).Interface("panic", r).Msg("Hook panicked")
		}
	}()
	fn()
}

// OnReconciled registers a callback for completed reconciliation runs.
func (c *client) OnReconciled(fn ReconciledHook) {
	c.hooks.addReconciled(fn)
}

// OnReconcileFailed registers a callback for failed reconciliation runs.
func (c *client) OnReconcileFailed(fn ReconcileFailedHook) {
	c.hooks.addFailed(fn)
}

// OnRecordDeleted registers a callback for records marked deleted.
func (c *client) OnRecordDeleted(fn RecordDeletedHook) {
	c.hooks.addRecordDeleted(fn)
}
