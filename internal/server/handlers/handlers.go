// Package handlers provides HTTP request handlers for the blockquote API.
package handlers

import (
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/agentstation/blockquote/cmd/application"
	"github.com/agentstation/blockquote/internal/server/cache"
	"github.com/agentstation/blockquote/internal/server/events"
	"github.com/agentstation/blockquote/internal/server/sse"
	ws "github.com/agentstation/blockquote/internal/server/websocket"
)

// Deps are the collaborators shared by every handler.
type Deps struct {
	App       application.Application
	Cache     *cache.Cache
	Broker    *events.Broker
	Hub       *ws.Hub
	SSE       *sse.Broadcaster
	Upgrader  websocket.Upgrader
	Logger    *zerolog.Logger
	StartTime time.Time
}

// Handlers serves the API endpoints.
type Handlers struct {
	Deps
}

// New creates the handlers.
func New(deps Deps) *Handlers {
	return &Handlers{Deps: deps}
}
