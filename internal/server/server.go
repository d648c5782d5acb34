// Package server provides the HTTP API for blockquote: record reads and
// writes, a manual reconciliation trigger, health probes, Prometheus
// metrics and real-time record events over WebSocket and SSE.
package server

import (
	"context"
	"net/http"
	"slices"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/agentstation/blockquote/cmd/application"
	"github.com/agentstation/blockquote/internal/server/cache"
	"github.com/agentstation/blockquote/internal/server/events"
	"github.com/agentstation/blockquote/internal/server/events/adapters"
	"github.com/agentstation/blockquote/internal/server/sse"
	ws "github.com/agentstation/blockquote/internal/server/websocket"
	"github.com/agentstation/blockquote/pkg/reconcile"
)

// Server holds the HTTP server state and dependencies.
type Server struct {
	app            application.Application
	cache          *cache.Cache
	broker         *events.Broker
	wsHub          *ws.Hub
	sseBroadcaster *sse.Broadcaster
	upgrader       websocket.Upgrader
	logger         *zerolog.Logger
	config         Config
	ctx            context.Context
	cancel         context.CancelFunc
	services       errgroup.Group
	startTime      time.Time
}

// New creates a new server instance with the given configuration.
func New(app application.Application, cfg Config) (*Server, error) {
	logger := app.Logger()

	if cfg.CacheTTL == 0 {
		cfg.CacheTTL = DefaultConfig().CacheTTL
	}
	if cfg.PathPrefix == "" {
		cfg.PathPrefix = DefaultConfig().PathPrefix
	}

	broker := events.NewBroker(logger)
	wsHub := ws.NewHub(logger)
	sseBroadcaster := sse.NewBroadcaster(logger)

	broker.Subscribe(adapters.NewWebSocketSubscriber(wsHub))
	broker.Subscribe(adapters.NewSSESubscriber(sseBroadcaster))
	logger.Debug().Msg("Real-time transports subscribed to event broker")

	ctx, cancel := context.WithCancel(context.Background())

	server := &Server{
		app:            app,
		cache:          cache.New(cfg.CacheTTL, cfg.CacheTTL*2),
		broker:         broker,
		wsHub:          wsHub,
		sseBroadcaster: sseBroadcaster,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin(cfg),
		},
		logger:    logger,
		config:    cfg,
		ctx:       ctx,
		cancel:    cancel,
		startTime: time.Now(),
	}

	if err := server.connectHooks(); err != nil {
		cancel()
		return nil, err
	}

	return server, nil
}

// connectHooks publishes client events to the broker and keeps the read
// cache consistent with reconciliation writes.
func (s *Server) connectHooks() error {
	client, err := s.app.Client()
	if err != nil {
		return err
	}

	client.OnRecordDeleted(func(id string) {
		s.cache.InvalidateRecord(id)
		s.broker.Publish(events.RecordDeleted, map[string]any{
			"id": id,
		})
		s.logger.Debug().
			Str("record_id", id).
			Msg("Record deleted event published")
	})

	client.OnReconciled(func(res reconcile.Result) {
		if res.Upserted > 0 {
			s.cache.Clear()
		}
		s.broker.Publish(events.ReconcileCompleted, res)
	})

	// a failed run may still have written part of its batch
	client.OnReconcileFailed(func(res reconcile.Result, err error) {
		if res.Upserted > 0 {
			s.cache.Clear()
		}
		s.broker.Publish(events.ReconcileFailed, map[string]any{
			"error":  err.Error(),
			"result": res,
		})
	})

	s.logger.Info().Msg("Client hooks connected to event broker")
	return nil
}

// Start runs the broker, the WebSocket hub and the SSE broadcaster until
// Shutdown is called.
func (s *Server) Start() {
	for _, run := range []func(context.Context){
		s.broker.Run,
		s.wsHub.Run,
		s.sseBroadcaster.Run,
	} {
		s.services.Go(func() error {
			run(s.ctx)
			return nil
		})
	}
	s.logger.Debug().Msg("Background services started")
}

// checkOrigin admits WebSocket upgrades from the CORS origins when CORS is
// restricted to a list, and from anywhere otherwise.
func checkOrigin(cfg Config) func(*http.Request) bool {
	if !cfg.CORSEnabled || len(cfg.CORSOrigins) == 0 || slices.Contains(cfg.CORSOrigins, "*") {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || slices.Contains(cfg.CORSOrigins, origin)
	}
}

// Handler returns the configured http.Handler with middleware chain applied.
func (s *Server) Handler() http.Handler {
	return s.setupRouter()
}

// Shutdown stops background services and waits for them until ctx is done.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info().Msg("Shutting down server background services")
	s.cancel()

	done := make(chan struct{})
	go func() {
		_ = s.services.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info().Msg("Background services shut down successfully")
		return nil
	case <-ctx.Done():
		s.logger.Warn().Msg("Background services shutdown timed out")
		return ctx.Err()
	}
}

// Cache returns the server's cache instance.
func (s *Server) Cache() *cache.Cache {
	return s.cache
}

// Broker returns the event broker for publishing events.
func (s *Server) Broker() *events.Broker {
	return s.broker
}

// Config returns the effective configuration.
func (s *Server) Config() Config {
	return s.config
}

// StartTime returns the server start time for uptime calculations.
func (s *Server) StartTime() time.Time {
	return s.startTime
}
