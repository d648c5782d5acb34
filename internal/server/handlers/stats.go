package handlers

import (
	"net/http"
	"runtime"
	"time"

	"github.com/agentstation/blockquote/internal/server/response"
	"github.com/agentstation/blockquote/pkg/records"
)

// HandleStats handles GET /api/v1/stats.
func (h *Handlers) HandleStats(w http.ResponseWriter, r *http.Request) {
	client, err := h.App.Client()
	if err != nil {
		response.ErrorFromType(w, err)
		return
	}

	_, total, err := client.List(r.Context(), records.Page{Limit: 1})
	if err != nil {
		response.ErrorFromType(w, err)
		return
	}

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	response.OK(w, map[string]any{
		"runtime": map[string]any{
			"uptime_seconds": int64(time.Since(h.StartTime).Seconds()),
			"goroutines":     runtime.NumGoroutine(),
			"memory_mb":      memStats.Alloc / 1024 / 1024,
			"memory_sys_mb":  memStats.Sys / 1024 / 1024,
		},
		"records": map[string]any{
			"total": total,
		},
		"events": map[string]any{
			"published_total": h.Broker.EventsPublished(),
			"dropped_total":   h.Broker.EventsDropped(),
			"queue_depth":     h.Broker.QueueDepth(),
		},
		"realtime": map[string]any{
			"websocket_clients": h.Hub.ClientCount(),
			"sse_clients":       h.SSE.ClientCount(),
		},
		"cache": h.Cache.GetStats(),
	})
}
