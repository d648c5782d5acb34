package blockquote

import (
	"context"

	"github.com/agentstation/blockquote/pkg/errors"
	"github.com/agentstation/blockquote/pkg/logging"
	"github.com/agentstation/blockquote/pkg/reconcile"
)

// Reconciler runs reconciliation passes.
type Reconciler interface {
	// Reconcile runs one pass over the due records. It fails with
	// errors.ErrReconcileInProgress while another pass is running.
	Reconcile(ctx context.Context) (*reconcile.Result, error)
}

var _ Reconciler = (*client)(nil)

// Reconcile runs one reconciliation pass.
func (c *client) Reconcile(ctx context.Context) (*reconcile.Result, error) {
	if c.job == nil {
		return nil, errors.NewConfigError("source", "no source configured", nil)
	}

	if !c.reconcileMu.TryLock() {
		logging.FromContext(ctx).Debug().Msg("Reconciliation already running, skipping")
		return nil, errors.ErrReconcileInProgress
	}
	defer c.reconcileMu.Unlock()

	res, err := c.job.Run(ctx)
	c.hooks.trigger(res, err)
	return res, err
}
