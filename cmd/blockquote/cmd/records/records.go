// Package records provides commands that read and write stored records.
package records

import (
	"fmt"
	"os"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/spf13/cobra"

	"github.com/agentstation/blockquote/cmd/application"
	"github.com/agentstation/blockquote/internal/cmd/emoji"
	"github.com/agentstation/blockquote/internal/cmd/output"
	"github.com/agentstation/blockquote/internal/cmd/table"
	"github.com/agentstation/blockquote/pkg/constants"
	"github.com/agentstation/blockquote/pkg/errors"
	"github.com/agentstation/blockquote/pkg/records"
)

// NewCommand creates the records command and its subcommands.
func NewCommand(app application.Application) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "records",
		Aliases: []string{"record", "rec"},
		Short:   "List, show and import tracked records",
	}

	cmd.AddCommand(
		newListCommand(app),
		newGetCommand(app),
		newImportCommand(app),
	)
	return cmd
}

func newListCommand(app application.Application) *cobra.Command {
	var page records.Page

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List records, newest first",
		Example: `  blockquote records list
  blockquote records list --limit 20 --offset 40 -o wide`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := app.Client()
			if err != nil {
				return err
			}

			recs, total, err := client.List(cmd.Context(), page)
			if err != nil {
				return err
			}

			format := output.DetectFormat(app.OutputFormat())
			tbl := table.RecordsToTableData(recs, format == output.FormatWide, time.Now())
			raw := map[string]any{"items": recs, "total": total}
			if err := output.Print(cmd.OutOrStdout(), format, tbl, raw); err != nil {
				return err
			}
			if format.IsTable() {
				cmd.Printf("\nShowing %d of %d records\n", len(recs), total)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&page.Limit, "limit", constants.DefaultPageSize, "maximum number of records to show")
	cmd.Flags().IntVar(&page.Offset, "offset", 0, "number of records to skip")
	return cmd
}

func newGetCommand(app application.Application) *cobra.Command {
	return &cobra.Command{
		Use:     "get <id>",
		Aliases: []string{"show"},
		Short:   "Show a single record",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := app.Client()
			if err != nil {
				return err
			}

			rec, err := client.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			format := output.DetectFormat(app.OutputFormat())
			return output.Print(cmd.OutOrStdout(), format, table.RecordToTableData(rec, time.Now()), rec)
		},
	}
}

func newImportCommand(app application.Application) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file.yaml>",
		Short: "Upsert records from a YAML file",
		Long: `Import reads a YAML list of records and upserts each one. Existing
records with the same id are replaced.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			recs, err := readRecords(args[0])
			if err != nil {
				return err
			}

			client, err := app.Client()
			if err != nil {
				return err
			}

			for i := range recs {
				if err := client.Upsert(cmd.Context(), recs[i]); err != nil {
					return errors.NewOperationError(recs[i].ID, err)
				}
			}

			cmd.Printf("%s Imported %d records from %s\n", emoji.Success, len(recs), args[0])
			return nil
		},
	}
}

func readRecords(path string) ([]records.Record, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from the command line
	if err != nil {
		return nil, errors.WrapIO("read", path, err)
	}

	var recs []records.Record
	if err := yaml.Unmarshal(data, &recs); err != nil {
		return nil, errors.WrapParse("yaml", path, err)
	}
	for i, r := range recs {
		if r.ID == "" {
			return nil, errors.NewParseError("yaml", path, fmt.Sprintf("record %d has no id", i), nil)
		}
	}
	return recs, nil
}
