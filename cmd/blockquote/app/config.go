package app

import (
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/agentstation/blockquote/pkg/constants"
	"github.com/agentstation/blockquote/pkg/errors"
)

// Config holds the application configuration loaded from config files,
// environment variables and .env files.
type Config struct {
	// Global flags
	Verbose bool
	Quiet   bool
	NoColor bool
	Format  string

	ConfigFile string

	// Storage
	DBPath string

	// Sources. PostsFile selects the offline YAML source over the X API.
	PostsFile    string
	XBearerToken string
	XAPIURL      string
	HTTPTimeout  time.Duration

	// Reconciliation
	OperationTimeout  time.Duration
	BatchSize         int
	FetchConcurrency  int
	UpsertConcurrency int
	ReconcileInterval time.Duration
	MaxThreadDepth    int

	// Logging
	LogLevel  string
	LogFormat string
	LogOutput string
}

// envBindings maps config keys to the environment variables that set them.
var envBindings = map[string][]string{
	"db_path":            {"BLOCKQUOTE_DB_PATH"},
	"posts_file":         {"BLOCKQUOTE_POSTS_FILE"},
	"x_bearer_token":     {"X_BEARER_TOKEN"},
	"x_api_url":          {"X_API_URL"},
	"http_timeout":       {"BLOCKQUOTE_HTTP_TIMEOUT"},
	"operation_timeout":  {"BLOCKQUOTE_OPERATION_TIMEOUT"},
	"batch_size":         {"BLOCKQUOTE_BATCH_SIZE"},
	"fetch_concurrency":  {"BLOCKQUOTE_FETCH_CONCURRENCY"},
	"upsert_concurrency": {"BLOCKQUOTE_UPSERT_CONCURRENCY"},
	"reconcile_interval": {"BLOCKQUOTE_RECONCILE_INTERVAL"},
	"max_thread_depth":   {"BLOCKQUOTE_MAX_THREAD_DEPTH"},
	"verbose":            {"VERBOSE"},
	"quiet":              {"QUIET"},
	"no_color":           {"NO_COLOR"},
	"format":             {"BLOCKQUOTE_FORMAT", "FORMAT"},
	"log_level":          {"LOG_LEVEL"},
	"log_format":         {"LOG_FORMAT"},
	"log_output":         {"LOG_OUTPUT"},
}

// LoadConfig loads configuration from all sources in order of precedence:
//  1. Command-line flags (applied later by UpdateFromFlags)
//  2. Environment variables
//  3. .env files
//  4. Config file (~/.blockquote.yaml or ./.blockquote.yaml)
//  5. Defaults
func LoadConfig() (*Config, error) {
	loadEnvFiles()

	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	for key, envs := range envBindings {
		if err := v.BindEnv(append([]string{key}, envs...)...); err != nil {
			return nil, errors.NewConfigError("env", "bind "+key, err)
		}
	}

	v.SetDefault("db_path", constants.DefaultDBPath)
	v.SetDefault("x_api_url", constants.DefaultXAPIURL)
	v.SetDefault("http_timeout", constants.DefaultHTTPTimeout)
	v.SetDefault("operation_timeout", constants.DefaultOperationTimeout)
	v.SetDefault("batch_size", constants.DefaultBatchSize)
	v.SetDefault("fetch_concurrency", constants.DefaultFetchConcurrency)
	v.SetDefault("upsert_concurrency", constants.DefaultUpsertConcurrency)
	v.SetDefault("reconcile_interval", constants.DefaultReconcileInterval)
	v.SetDefault("max_thread_depth", constants.DefaultMaxThreadDepth)
	v.SetDefault("log_format", "auto")
	v.SetDefault("log_output", "stderr")

	if configFile := os.Getenv("BLOCKQUOTE_CONFIG"); configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(home)
		}
		v.AddConfigPath(".")
		v.SetConfigType("yaml")
		v.SetConfigName(".blockquote")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, errors.NewConfigError("file", "read "+v.ConfigFileUsed(), err)
		}
	}

	config := &Config{
		Verbose: v.GetBool("verbose"),
		Quiet:   v.GetBool("quiet"),
		NoColor: v.GetBool("no_color"),
		Format:  v.GetString("format"),

		ConfigFile: v.ConfigFileUsed(),

		DBPath: v.GetString("db_path"),

		PostsFile:    v.GetString("posts_file"),
		XBearerToken: v.GetString("x_bearer_token"),
		XAPIURL:      v.GetString("x_api_url"),
		HTTPTimeout:  v.GetDuration("http_timeout"),

		OperationTimeout:  v.GetDuration("operation_timeout"),
		BatchSize:         v.GetInt("batch_size"),
		FetchConcurrency:  v.GetInt("fetch_concurrency"),
		UpsertConcurrency: v.GetInt("upsert_concurrency"),
		ReconcileInterval: v.GetDuration("reconcile_interval"),
		MaxThreadDepth:    v.GetInt("max_thread_depth"),

		LogLevel:  v.GetString("log_level"),
		LogFormat: v.GetString("log_format"),
		LogOutput: v.GetString("log_output"),
	}

	return config, config.Validate()
}

// Validate rejects values the client would refuse later.
func (c *Config) Validate() error {
	for name, n := range map[string]int{
		"batch_size":         c.BatchSize,
		"fetch_concurrency":  c.FetchConcurrency,
		"upsert_concurrency": c.UpsertConcurrency,
	} {
		if n < 1 {
			return errors.NewValidationError(name, n, "must be at least 1")
		}
	}
	if c.MaxThreadDepth < 0 {
		return errors.NewValidationError("max_thread_depth", c.MaxThreadDepth, "cannot be negative")
	}
	if c.OperationTimeout < 0 {
		return errors.NewValidationError("operation_timeout", c.OperationTimeout, "cannot be negative")
	}
	if c.ReconcileInterval <= 0 {
		return errors.NewValidationError("reconcile_interval", c.ReconcileInterval, "must be positive")
	}
	return nil
}

// UpdateFromFlags applies parsed flags, which take precedence over
// config files and the environment.
func (c *Config) UpdateFromFlags(verbose, quiet, noColor bool, format, logLevel string) {
	c.Verbose = c.Verbose || verbose
	c.Quiet = c.Quiet || quiet
	c.NoColor = c.NoColor || noColor
	if format != "" {
		c.Format = format
	}
	if logLevel != "" {
		c.LogLevel = logLevel
	}
}

// loadEnvFiles loads .env then .env.local. godotenv never overrides
// variables that are already set.
func loadEnvFiles() {
	for _, envFile := range []string{".env", ".env.local"} {
		_ = godotenv.Load(envFile)
	}
}
