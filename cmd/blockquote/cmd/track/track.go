// Package track provides the track command.
package track

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/agentstation/blockquote/cmd/application"
	"github.com/agentstation/blockquote/internal/cmd/output"
	"github.com/agentstation/blockquote/internal/cmd/table"
	"github.com/agentstation/blockquote/pkg/errors"
	"github.com/agentstation/blockquote/pkg/records"
)

// NewCommand creates the track command.
func NewCommand(app application.Application) *cobra.Command {
	return &cobra.Command{
		Use:   "track <post-id>...",
		Short: "Start tracking quote posts",
		Long: `Track fetches each post from the source and stores it as a record. Only
posts that quote another post can be tracked.`,
		Example: `  blockquote track 1800000000000000001
  blockquote track 1800000000000000001 1800000000000000002 -o yaml`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, args, app)
		},
	}
}

func run(cmd *cobra.Command, ids []string, app application.Application) error {
	client, err := app.Client()
	if err != nil {
		return err
	}

	logger := app.Logger()
	tracked := make([]records.Record, 0, len(ids))
	var errs []error
	for _, id := range ids {
		rec, err := client.Track(cmd.Context(), id)
		if err != nil {
			logger.Warn().Err(err).Str("post_id", id).Msg("Failed to track post")
			errs = append(errs, err)
			continue
		}
		tracked = append(tracked, *rec)
	}

	format := output.DetectFormat(app.OutputFormat())
	if len(tracked) > 0 {
		tbl := table.RecordsToTableData(tracked, format == output.FormatWide, time.Now())
		if err := output.Print(cmd.OutOrStdout(), format, tbl, tracked); err != nil {
			return err
		}
	}
	return errors.Join(errs...)
}
