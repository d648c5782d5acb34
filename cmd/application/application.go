// Package application provides the application interface for blockquote
// commands and the HTTP server.
//
// Commands accept this interface rather than the concrete App type, so
// tests can hand them a mock:
//
//	mock := &application.Mock{
//	    ClientFunc: func() (blockquote.Client, error) {
//	        return testClient, nil
//	    },
//	}
//	cmd := reconcile.NewCommand(mock)
package application

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/agentstation/blockquote"
	"github.com/agentstation/blockquote/internal/metrics"
)

// Application provides what commands need.
//
// Thread Safety: All methods must be safe for concurrent access.
type Application interface {
	// Client returns the blockquote client, creating it on first use.
	Client() (blockquote.Client, error)

	// Metrics returns the collectors observing reconciliation runs.
	Metrics() *metrics.Metrics

	// Gatherer returns the registry the collectors are registered with.
	Gatherer() prometheus.Gatherer

	// Logger returns the configured logger instance.
	Logger() *zerolog.Logger

	// OutputFormat returns the configured output format (table, json, yaml).
	OutputFormat() string

	// Version returns the application version string.
	Version() string

	// Commit returns the git commit hash.
	Commit() string

	// Date returns the build date.
	Date() string

	// BuiltBy returns the build system identifier.
	BuiltBy() string
}
