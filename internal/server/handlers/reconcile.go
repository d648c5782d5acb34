package handlers

import (
	"net/http"

	"github.com/agentstation/blockquote/internal/server/response"
	"github.com/agentstation/blockquote/pkg/errors"
)

// HandleReconcile handles POST /api/v1/reconcile. It runs one
// reconciliation tick and answers 409 while another run is in progress.
// Completion and failure events and cache invalidation come from the
// client hooks.
func (h *Handlers) HandleReconcile(w http.ResponseWriter, r *http.Request) {
	client, err := h.App.Client()
	if err != nil {
		response.ErrorFromType(w, err)
		return
	}

	res, err := client.Reconcile(r.Context())
	if errors.Is(err, errors.ErrReconcileInProgress) {
		response.ErrorFromType(w, err)
		return
	}
	if err != nil {
		h.Logger.Error().Err(err).Msg("Manual reconciliation failed")
		response.ErrorFromType(w, err)
		return
	}

	response.OK(w, res)
}
