package app

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/agentstation/blockquote/cmd/blockquote/cmd/reconcile"
	"github.com/agentstation/blockquote/cmd/blockquote/cmd/records"
	"github.com/agentstation/blockquote/cmd/blockquote/cmd/serve"
	"github.com/agentstation/blockquote/cmd/blockquote/cmd/track"
	"github.com/agentstation/blockquote/cmd/blockquote/cmd/version"
	"github.com/agentstation/blockquote/internal/cmd/output"
)

// rootFlags holds persistent flag values. They are kept apart from Config
// so unset flags do not clobber values loaded from the environment.
type rootFlags struct {
	verbose  bool
	quiet    bool
	noColor  bool
	format   string
	logLevel string
}

// Execute runs the CLI with the given arguments.
func (a *App) Execute(ctx context.Context, args []string) error {
	rootCmd := a.createRootCommand()
	rootCmd.SetArgs(args)
	return rootCmd.ExecuteContext(ctx)
}

func (a *App) createRootCommand() *cobra.Command {
	flags := &rootFlags{}

	rootCmd := &cobra.Command{
		Use:     "blockquote",
		Short:   "Track quote posts and notice when the quoted post disappears",
		Version: a.version,
		Long: `blockquote keeps a local record of quote posts and periodically checks
whether the post each one quotes still exists upstream. Records whose
quoted post is gone or no longer visible are marked deleted.

Run "blockquote serve" for the HTTP API with automatic reconciliation, or
call "blockquote reconcile" from cron for a single pass.`,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setupCommand(flags)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddGroup(
		&cobra.Group{ID: "core", Title: "Core Commands:"},
		&cobra.Group{ID: "records", Title: "Record Commands:"},
	)

	pf := rootCmd.PersistentFlags()
	pf.BoolVarP(&flags.verbose, "verbose", "v", false, "verbose output (shortcut for --log-level=debug)")
	pf.BoolVarP(&flags.quiet, "quiet", "q", false, "minimal output (shortcut for --log-level=warn)")
	pf.BoolVar(&flags.noColor, "no-color", false, "disable colored output")
	pf.StringVarP(&flags.format, "format", "o", "", "output format: table, json, yaml, wide")
	pf.StringVar(&flags.logLevel, "log-level", "", "log level: trace, debug, info, warn, error (overrides -v/-q)")

	rootCmd.SetVersionTemplate("blockquote {{.Version}}\n")

	a.registerCommands(rootCmd)
	return rootCmd
}

// setupCommand applies flags before any command runs.
func (a *App) setupCommand(flags *rootFlags) error {
	if _, err := output.ParseFormat(flags.format); err != nil {
		return err
	}

	a.config.UpdateFromFlags(flags.verbose, flags.quiet, flags.noColor, flags.format, flags.logLevel)

	logger := NewLogger(a.config)
	a.logger = &logger
	return nil
}

func (a *App) registerCommands(rootCmd *cobra.Command) {
	core := []*cobra.Command{
		reconcile.NewCommand(a),
		serve.NewCommand(a),
		track.NewCommand(a),
	}
	for _, cmd := range core {
		cmd.GroupID = "core"
		rootCmd.AddCommand(cmd)
	}

	recordsCmd := records.NewCommand(a)
	recordsCmd.GroupID = "records"
	rootCmd.AddCommand(recordsCmd)

	rootCmd.AddCommand(version.NewCommand(a))
}

// ExitOnError prints err and exits with status 1. A nil err is a no-op.
func ExitOnError(err error) {
	if err != nil {
		_, _ = os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(1)
	}
}
