package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/agentstation/blockquote/internal/server/events"
	ws "github.com/agentstation/blockquote/internal/server/websocket"
)

// HandleWebSocket handles WebSocket connections at /api/v1/updates/ws.
func (h *Handlers) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.Upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.Logger.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	clientID := fmt.Sprintf("%s-%d", r.RemoteAddr, time.Now().UnixNano())
	client := ws.NewClient(clientID, h.Hub, conn)
	h.Hub.Register(client)

	h.Broker.Publish(events.ClientConnected, map[string]any{
		"client_id": clientID,
		"transport": "websocket",
	})

	go client.WritePump()
	go client.ReadPump()
}

// HandleSSE handles Server-Sent Events at /api/v1/updates/stream.
func (h *Handlers) HandleSSE(w http.ResponseWriter, r *http.Request) {
	h.SSE.ServeHTTP(w, r)
}
