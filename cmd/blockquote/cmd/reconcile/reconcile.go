// Package reconcile provides the reconcile command.
package reconcile

import (
	"github.com/spf13/cobra"

	"github.com/agentstation/blockquote/cmd/application"
	"github.com/agentstation/blockquote/internal/cmd/emoji"
	"github.com/agentstation/blockquote/internal/cmd/output"
	"github.com/agentstation/blockquote/internal/cmd/table"
)

// NewCommand creates the reconcile command.
func NewCommand(app application.Application) *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Run one reconciliation pass over due records",
		Long: `Reconcile selects the records whose next check is due, re-fetches their
quote posts from the source and marks records deleted when the quoted post
is gone or no longer visible.

A run that fails part way still prints what it managed before the error.`,
		Example: `  blockquote reconcile
  blockquote reconcile -o json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, app)
		},
	}
}

func run(cmd *cobra.Command, app application.Application) error {
	client, err := app.Client()
	if err != nil {
		return err
	}

	logger := app.Logger()
	res, runErr := client.Reconcile(cmd.Context())
	if res != nil {
		format := output.DetectFormat(app.OutputFormat())
		if err := output.Print(cmd.OutOrStdout(), format, table.ResultToTableData(res), res); err != nil {
			return err
		}
	}
	if runErr != nil {
		logger.Error().Err(runErr).Msg("Reconciliation failed")
		return runErr
	}

	if len(res.MarkedDeleted) > 0 {
		logger.Info().Strs("ids", res.MarkedDeleted).Msg("Records marked deleted")
	}
	if output.DetectFormat(app.OutputFormat()).IsTable() {
		cmd.Printf("%s Reconciled %d records\n", emoji.Success, res.Upserted)
	}
	return nil
}
