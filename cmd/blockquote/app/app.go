// Package app wires configuration, logging, metrics and the blockquote
// client together for the CLI and owns their lifecycle.
package app

import (
	"context"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"

	"github.com/agentstation/blockquote"
	"github.com/agentstation/blockquote/cmd/application"
	"github.com/agentstation/blockquote/internal/metrics"
	"github.com/agentstation/blockquote/internal/sources/local"
	"github.com/agentstation/blockquote/internal/sources/xapi"
	"github.com/agentstation/blockquote/internal/store/sqlite"
	"github.com/agentstation/blockquote/pkg/errors"
	"github.com/agentstation/blockquote/pkg/reconcile"
	"github.com/agentstation/blockquote/pkg/records"
	"github.com/agentstation/blockquote/pkg/sources"
)

var _ application.Application = (*App)(nil)

// App holds the application dependencies.
type App struct {
	version string
	commit  string
	date    string
	builtBy string

	config *Config
	logger *zerolog.Logger

	registry *prometheus.Registry
	metrics  *metrics.Metrics

	// client is created lazily on first use
	mu     sync.Mutex
	client blockquote.Client
}

// New creates an App with configuration loaded from the environment.
func New(version, commit, date, builtBy string, opts ...Option) (*App, error) {
	app := &App{
		version: version,
		commit:  commit,
		date:    date,
		builtBy: builtBy,
	}

	config, err := LoadConfig()
	if err != nil {
		return nil, errors.WrapResource("load", "config", "", err)
	}
	app.config = config

	logger := NewLogger(config)
	app.logger = &logger

	app.registry = prometheus.NewRegistry()
	app.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	app.metrics = metrics.New(app.registry)

	for _, opt := range opts {
		if err := opt(app); err != nil {
			return nil, err
		}
	}

	return app, nil
}

// Version returns the version information.
func (a *App) Version() string { return a.version }

// Commit returns the git commit hash.
func (a *App) Commit() string { return a.commit }

// Date returns the build date.
func (a *App) Date() string { return a.date }

// BuiltBy returns the build system identifier.
func (a *App) BuiltBy() string { return a.builtBy }

// Config returns the application configuration.
func (a *App) Config() *Config { return a.config }

// Logger returns the application logger.
func (a *App) Logger() *zerolog.Logger { return a.logger }

// OutputFormat returns the configured output format.
func (a *App) OutputFormat() string { return a.config.Format }

// Metrics returns the reconciliation and HTTP collectors.
func (a *App) Metrics() *metrics.Metrics { return a.metrics }

// Gatherer returns the registry backing Metrics.
func (a *App) Gatherer() prometheus.Gatherer { return a.registry }

// Client returns the blockquote client, creating it on first use.
func (a *App) Client() (blockquote.Client, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.client != nil {
		return a.client, nil
	}

	store, err := sqlite.Open(a.config.DBPath)
	if err != nil {
		return nil, err
	}

	opts, err := a.clientOptions(store)
	if err != nil {
		store.Close()
		return nil, err
	}

	client, err := blockquote.New(opts...)
	if err != nil {
		store.Close()
		return nil, errors.WrapResource("create", "client", "", err)
	}

	a.client = client
	return client, nil
}

func (a *App) clientOptions(store records.Repository) ([]blockquote.Option, error) {
	cfg := a.config
	opts := []blockquote.Option{
		blockquote.WithStore(store),
		blockquote.WithObserver(a.metrics),
		blockquote.WithAutoReconcileInterval(cfg.ReconcileInterval),
		blockquote.WithMaxThreadDepth(cfg.MaxThreadDepth),
		blockquote.WithReconcileOptions(
			reconcile.WithBatchSize(cfg.BatchSize),
			reconcile.WithFetchConcurrency(cfg.FetchConcurrency),
			reconcile.WithUpsertConcurrency(cfg.UpsertConcurrency),
			reconcile.WithOperationTimeout(cfg.OperationTimeout),
			reconcile.WithLogger(a.logger),
		),
	}

	src, err := a.source()
	if err != nil {
		return nil, err
	}
	if src != nil {
		a.logger.Debug().Str("source", src.Name()).Msg("Using source")
		opts = append(opts, blockquote.WithSource(src))
	} else {
		a.logger.Debug().Msg("No source configured, reconcile and track are unavailable")
	}

	return opts, nil
}

// source picks the YAML fixture source when a posts file is configured,
// the X API when a token is, and nothing otherwise.
func (a *App) source() (sources.Source, error) {
	cfg := a.config
	switch {
	case cfg.PostsFile != "":
		return local.New(local.WithPostsFile(cfg.PostsFile))
	case cfg.XBearerToken != "":
		return xapi.New(cfg.XBearerToken,
			xapi.WithBaseURL(cfg.XAPIURL),
			xapi.WithTimeout(cfg.HTTPTimeout),
			xapi.WithLogger(a.logger),
		)
	default:
		return nil, nil
	}
}

// Shutdown stops auto-reconciliation and closes the record store.
func (a *App) Shutdown(_ context.Context) error {
	a.mu.Lock()
	client := a.client
	a.client = nil
	a.mu.Unlock()

	if client == nil {
		return nil
	}
	return client.Close()
}

// Option is a functional option for configuring the App.
type Option func(*App) error

// WithConfig sets a custom configuration.
func WithConfig(config *Config) Option {
	return func(a *App) error {
		if config == nil {
			return errors.NewValidationError("config", nil, "cannot be nil")
		}
		a.config = config
		return nil
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *zerolog.Logger) Option {
	return func(a *App) error {
		a.logger = logger
		return nil
	}
}

// WithClient sets the client, mainly for tests. Shutdown closes it.
func WithClient(client blockquote.Client) Option {
	return func(a *App) error {
		a.client = client
		return nil
	}
}
