package handlers

import (
	"net/http"

	"github.com/agentstation/blockquote/internal/server/response"
	"github.com/agentstation/blockquote/pkg/records"
)

// HandleHealth handles GET /api/v1/health (liveness).
func (h *Handlers) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	response.OK(w, map[string]any{
		"status":  "healthy",
		"service": "blockquote-api",
		"version": h.App.Version(),
	})
}

// HandleReady handles GET /api/v1/ready. The service is ready once the
// client and its store are reachable.
func (h *Handlers) HandleReady(w http.ResponseWriter, r *http.Request) {
	client, err := h.App.Client()
	if err != nil {
		response.ServiceUnavailable(w, "Client not available")
		return
	}
	_, total, err := client.List(r.Context(), records.Page{Limit: 1})
	if err != nil {
		h.Logger.Warn().Err(err).Msg("Readiness probe failed")
		response.ServiceUnavailable(w, "Record store not available")
		return
	}

	response.OK(w, map[string]any{
		"status":  "ready",
		"records": total,
		"cache": map[string]any{
			"items": h.Cache.ItemCount(),
		},
		"websocket_clients": h.Hub.ClientCount(),
		"sse_clients":       h.SSE.ClientCount(),
	})
}
