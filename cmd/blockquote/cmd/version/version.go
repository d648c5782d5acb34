// Package version provides the version command.
package version

import (
	"runtime"

	"github.com/spf13/cobra"

	"github.com/agentstation/blockquote/cmd/application"
	"github.com/agentstation/blockquote/internal/cmd/output"
	"github.com/agentstation/blockquote/internal/cmd/table"
)

// Info is the build information shown by the version command.
type Info struct {
	Version   string `json:"version" yaml:"version"`
	Commit    string `json:"commit" yaml:"commit"`
	Date      string `json:"date" yaml:"date"`
	BuiltBy   string `json:"built_by" yaml:"built_by"`
	GoVersion string `json:"go_version" yaml:"go_version"`
	Platform  string `json:"platform" yaml:"platform"`
}

// NewCommand creates the version command.
func NewCommand(app application.Application) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			info := Info{
				Version:   app.Version(),
				Commit:    app.Commit(),
				Date:      app.Date(),
				BuiltBy:   app.BuiltBy(),
				GoVersion: runtime.Version(),
				Platform:  runtime.GOOS + "/" + runtime.GOARCH,
			}

			keys := []string{"version", "commit", "date", "built_by", "go_version", "platform"}
			tbl := table.PropertiesToTableData(keys, map[string]string{
				"version":    info.Version,
				"commit":     info.Commit,
				"date":       info.Date,
				"built_by":   info.BuiltBy,
				"go_version": info.GoVersion,
				"platform":   info.Platform,
			})

			format := output.DetectFormat(app.OutputFormat())
			return output.Print(cmd.OutOrStdout(), format, tbl, info)
		},
	}
}
