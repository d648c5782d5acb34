// Package constants provides shared constants used throughout blockquote.
// This includes reconciliation defaults, timeouts, limits and file permissions
// that should be consistent across the library, the server and the CLI.
package constants

import "time"

// Reconciliation defaults
const (
	// DefaultBatchSize is the maximum number of due records pulled per run
	DefaultBatchSize = 25

	// DefaultFetchConcurrency bounds concurrent calls to the external source
	DefaultFetchConcurrency = 5

	// DefaultUpsertConcurrency bounds concurrent writes to the record store
	DefaultUpsertConcurrency = 5

	// DefaultReconcileInterval is the period of automatic reconciliation
	DefaultReconcileInterval = 5 * time.Minute

	// ReconcileContextTimeout bounds one automatic reconciliation pass
	ReconcileContextTimeout = 2 * time.Minute

	// DefaultMaxThreadDepth is the number of quote/reply hops followed before truncating
	DefaultMaxThreadDepth = 8
)

// Due-date tiers. A record of age below a threshold is next due after the
// paired interval; older records fall through to StaleInterval.
const (
	FreshAge      = 1 * time.Hour
	FreshInterval = 10 * time.Minute

	RecentAge      = 8 * time.Hour
	RecentInterval = 30 * time.Minute

	DayAge      = 24 * time.Hour
	DayInterval = 1 * time.Hour

	StaleInterval = 7 * 24 * time.Hour
)

// Timeout constants
const (
	// DefaultHTTPTimeout is the standard timeout for HTTP requests to external sources
	DefaultHTTPTimeout = 30 * time.Second

	// DefaultOperationTimeout bounds a single fetch or upsert inside a
	// reconciliation run. It exceeds DefaultHTTPTimeout so the HTTP client
	// reports a slow source first.
	DefaultOperationTimeout = 45 * time.Second

	// CommandTimeout is the default timeout for CLI commands
	CommandTimeout = 10 * time.Minute

	// ShutdownTimeout bounds graceful server shutdown
	ShutdownTimeout = 10 * time.Second
)

// File permission constants
const (
	// DirPermissions is the default permission for created directories (rwxr-xr-x)
	DirPermissions = 0755

	// FilePermissions is the default permission for created files (rw-r--r--)
	FilePermissions = 0644
)

// Limits
const (
	// DefaultPageSize is the default number of records per listing page
	DefaultPageSize = 100

	// MaxPageSize is the largest listing page accepted
	MaxPageSize = 1000

	// ChannelBufferSize is the default buffer size for event channels
	ChannelBufferSize = 100
)

// Cache constants
const (
	// CacheTTL is the default time-to-live for cached API responses
	CacheTTL = 1 * time.Minute

	// CacheCleanupInterval is how often to clean expired cache entries
	CacheCleanupInterval = 5 * time.Minute
)

// Output formats
const (
	FormatTable = "table"
	FormatJSON  = "json"
	FormatYAML  = "yaml"
	FormatWide  = "wide"
)

// External source defaults
const (
	// DefaultXAPIURL is the base URL of the X API v2
	DefaultXAPIURL = "https://api.x.com"

	// SourceX names the X API source in errors and logs
	SourceX = "x"
)

// Storage defaults
const (
	// DefaultDBPath is the SQLite database used when none is configured
	DefaultDBPath = "blockquote.db"
)

// TimeFormatHuman is a human-readable time format for tables.
const TimeFormatHuman = "Jan 2, 2006 15:04 MST"
