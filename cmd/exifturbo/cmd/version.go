package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/exif-turbo/exifturbo/internal/output"
	"github.com/exif-turbo/exifturbo/internal/store"
	"github.com/exif-turbo/exifturbo/pkg/version"
)

type versionReport struct {
	version.BuildInfo
	IndexSchema int `json:"index_schema"`
}

func newVersionCmd() *cobra.Command {
	var jsonOutput, shortOutput bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Long: `Print the exifturbo build and the index schema it reads and writes.

An index written with a different schema must be rebuilt with 'exifturbo index'.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			w := cmd.OutOrStdout()
			switch {
			case shortOutput:
				_, err := fmt.Fprintln(w, version.Short())
				return err
			case jsonOutput:
				return output.New(w).JSON(versionReport{BuildInfo: version.GetInfo(), IndexSchema: store.SchemaVersion})
			}
			_, err := fmt.Fprintf(w, "%s\nindex schema %d\n", version.String(), store.SchemaVersion)
			return err
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output version info as JSON")
	cmd.Flags().BoolVar(&shortOutput, "short", false, "Output only the version number")
	cmd.MarkFlagsMutuallyExclusive("json", "short")

	return cmd
}
