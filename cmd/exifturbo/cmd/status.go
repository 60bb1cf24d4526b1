package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/exif-turbo/exifturbo/internal/extract"
	"github.com/exif-turbo/exifturbo/internal/ui"
)

func newStatusCmd(a *app) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show index size, freshness and extractor health",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			info, err := collectStatus(cmd.Context(), a)
			if err != nil {
				return err
			}
			r := ui.NewStatusRenderer(cmd.OutOrStdout(), ui.DetectNoColor() || !ui.IsTTY(cmd.OutOrStdout()))
			if jsonOutput {
				return r.RenderJSON(info)
			}
			return r.Render(info)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output status as JSON")

	return cmd
}

// collectStatus reads index statistics, when an index exists, and probes
// exiftool.
func collectStatus(ctx context.Context, a *app) (ui.StatusInfo, error) {
	info := ui.StatusInfo{DBPath: a.cfg.DB}

	if fileExists(a.cfg.DB) {
		st, err := a.openReadOnly(ctx)
		if err != nil {
			return info, err
		}
		stats, err := st.Stats(ctx)
		_ = st.Close()
		if err != nil {
			return info, err
		}
		info.Files = stats.Files
		info.Tags = stats.Tags
		info.MediaBytes = stats.MediaBytes
		info.DBBytes = stats.SizeBytes
		info.LastIndexed = stats.LastIndexed
	}

	tool := extract.NewExifTool(
		extract.WithToolPath(a.cfg.Extractor.ExifToolPath),
		extract.WithLogger(a.logger))
	info.Extractor = tool.Name()
	ver, err := tool.Version(ctx)
	switch {
	case err == nil:
		info.ExtractorStatus = "ready"
		info.ExtractorDetail = "version " + ver
	case a.cfg.FallbackEnabled():
		info.ExtractorStatus = "fallback"
		info.ExtractorDetail = fmt.Sprintf("%v; using the built-in EXIF reader", err)
	default:
		info.ExtractorStatus = "error"
		info.ExtractorDetail = err.Error()
	}
	return info, nil
}
