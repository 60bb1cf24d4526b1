package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/exif-turbo/exifturbo/internal/output"
	"github.com/exif-turbo/exifturbo/internal/preflight"
)

type doctorReport struct {
	Status string                  `json:"status"`
	Checks []preflight.CheckResult `json:"checks"`
}

func newDoctorCmd(a *app) *cobra.Command {
	var (
		verbose    bool
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check system requirements and diagnose issues",
		Long: `Run system diagnostics to ensure exifturbo can operate correctly.

Checks:
  - exiftool on PATH (a warning when the built-in EXIF reader is enabled)
  - Disk space and write permissions for the index directory
  - The index file, when it exists
  - Configured folders
  - File descriptor limits

Use --verbose for detailed diagnostic information.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			checker := preflight.New(
				preflight.WithVerbose(verbose),
				preflight.WithOutput(cmd.OutOrStdout()),
				preflight.WithLogger(a.logger),
			)
			report := checker.RunAll(cmd.Context(), a.cfg)

			if jsonOutput {
				doc := doctorReport{Status: report.Status(), Checks: report.Results}
				if err := output.New(cmd.OutOrStdout()).JSON(doc); err != nil {
					return err
				}
			} else {
				checker.PrintResults(report)
			}

			if report.Failed() {
				return fmt.Errorf("system check failed")
			}
			if err := preflight.MarkPassed(a.dataDir()); err != nil {
				a.logger.Debug("failed to mark preflight as passed", slog.String("error", err.Error()))
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Show detailed diagnostic information")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output results as JSON")

	return cmd
}
