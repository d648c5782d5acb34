package blockquote

import (
	"context"
	"time"

	"github.com/agentstation/blockquote/pkg/errors"
	"github.com/agentstation/blockquote/pkg/logging"
)

// AutoReconciler provides controls for automatic reconciliation.
type AutoReconciler interface {
	// AutoReconcileOn starts reconciling on a fixed interval
	AutoReconcileOn() error

	// AutoReconcileOff stops automatic reconciliation and waits for the
	// loop to exit
	AutoReconcileOff()
}

var _ AutoReconciler = (*client)(nil)

// AutoReconcileOn starts the reconcile loop. Calling it again restarts the
// loop.
func (c *client) AutoReconcileOn() error {
	if c.job == nil {
		return errors.NewConfigError("source", "no source configured", nil)
	}
	interval := c.options.autoReconcileInterval
	if interval <= 0 {
		return errors.NewValidationError("autoReconcileInterval", interval, "must be positive")
	}

	c.autoMu.Lock()
	defer c.autoMu.Unlock()
	c.stopLocked()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	c.autoCancel = cancel
	c.autoDone = done

	go c.autoReconcile(ctx, interval, done)
	return nil
}

// AutoReconcileOff stops the reconcile loop.
func (c *client) AutoReconcileOff() {
	c.autoMu.Lock()
	defer c.autoMu.Unlock()
	c.stopLocked()
}

// stopLocked cancels the running loop and waits for it to exit. Callers
// hold autoMu; the loop never takes it.
func (c *client) stopLocked() {
	cancel, done := c.autoCancel, c.autoDone
	c.autoCancel, c.autoDone = nil, nil
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (c *client) autoReconcile(ctx context.Context, interval time.Duration, done chan struct{}) {
	defer close(done)

	logger := logging.Default().With().Str("component", "auto_reconcile").Logger()
	logger.Info().Dur("interval", interval).Msg("Auto-reconcile started")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("Auto-reconcile stopped")
			return
		case <-ticker.C:
			runCtx, cancel := context.WithTimeout(ctx, c.options.autoReconcileTimeout)
			_, err := c.Reconcile(logging.WithLogger(runCtx, &logger))
			cancel()

			switch {
			case err == nil:
			case errors.Is(err, errors.ErrReconcileInProgress):
				logger.Debug().Msg("Previous reconciliation still running")
			case ctx.Err() != nil:
				return
			default:
				// a failed tick never stops the loop
				logger.Error().Err(err).Msg("Auto-reconcile failed")
			}
		}
	}
}
