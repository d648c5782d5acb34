// Package adapters connects the event broker to the real-time transports.
package adapters

import (
	"strconv"

	"github.com/agentstation/blockquote/internal/server/events"
	"github.com/agentstation/blockquote/internal/server/sse"
	ws "github.com/agentstation/blockquote/internal/server/websocket"
)

var (
	_ events.Subscriber = (*WebSocketSubscriber)(nil)
	_ events.Subscriber = (*SSESubscriber)(nil)
)

// WebSocketSubscriber forwards events to every WebSocket client.
type WebSocketSubscriber struct {
	hub *ws.Hub
}

// NewWebSocketSubscriber creates a subscriber for hub.
func NewWebSocketSubscriber(hub *ws.Hub) *WebSocketSubscriber {
	return &WebSocketSubscriber{hub: hub}
}

// Send implements events.Subscriber.
func (w *WebSocketSubscriber) Send(ev events.Event) error {
	w.hub.Broadcast(ws.Message{
		Seq:       ev.Seq,
		Type:      string(ev.Type),
		Timestamp: ev.Timestamp,
		Data:      ev.Data,
	})
	return nil
}

// Close is a no-op; the hub stops with the server context.
func (w *WebSocketSubscriber) Close() error { return nil }

// SSESubscriber forwards events to every SSE stream. The event sequence
// number becomes the SSE id.
type SSESubscriber struct {
	broadcaster *sse.Broadcaster
}

// NewSSESubscriber creates a subscriber for broadcaster.
func NewSSESubscriber(broadcaster *sse.Broadcaster) *SSESubscriber {
	return &SSESubscriber{broadcaster: broadcaster}
}

// Send implements events.Subscriber.
func (s *SSESubscriber) Send(ev events.Event) error {
	s.broadcaster.Broadcast(sse.Event{
		Event: string(ev.Type),
		ID:    strconv.FormatUint(ev.Seq, 10),
		Data:  ev.Data,
	})
	return nil
}

// Close is a no-op; the broadcaster stops with the server context.
func (s *SSESubscriber) Close() error { return nil }
