package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/exif-turbo/exifturbo/internal/config"
	"github.com/exif-turbo/exifturbo/internal/index"
	"github.com/exif-turbo/exifturbo/internal/output"
	"github.com/exif-turbo/exifturbo/internal/preflight"
	"github.com/exif-turbo/exifturbo/internal/store"
	"github.com/exif-turbo/exifturbo/internal/ui"
)

// indexOptions holds CLI flags for index.
type indexOptions struct {
	workers   int
	batchSize int
	hash      bool
	noTUI     bool
	export    string
	skipCheck bool
}

func newIndexCmd(a *app) *cobra.Command {
	var opts indexOptions

	cmd := &cobra.Command{
		Use:   "index [folders...]",
		Short: "Index image metadata under one or more folders",
		Long: `Walk the folders, extract metadata from new and modified images and
write it to the index. Files that disappeared are removed from the index.

Unchanged files are skipped by size and modification time; --hash also
compares content fingerprints when those look the same.

Per-file failures are reported in the summary and do not fail the run.

Examples:
  exifturbo index ~/Pictures
  exifturbo index /mnt/photos --workers 4 --export photos.json
  exifturbo index --hash --no-tui`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIndex(cmd.Context(), cmd, a, args, opts)
		},
	}

	cmd.Flags().IntVar(&opts.workers, "workers", 0, "Parallel extractions (default from config)")
	cmd.Flags().IntVar(&opts.batchSize, "batch-size", 0, "Records per commit (default from config)")
	cmd.Flags().BoolVar(&opts.hash, "hash", false, "Also compare content fingerprints to detect changes")
	cmd.Flags().BoolVar(&opts.noTUI, "no-tui", false, "Plain text progress instead of the interactive dashboard")
	cmd.Flags().StringVar(&opts.export, "export", "", "Write every record as JSON to this file after indexing")
	cmd.Flags().BoolVar(&opts.skipCheck, "skip-check", false, "Skip pre-flight system checks")

	return cmd
}

// applyIndexFlags copies explicitly set flags over the configuration.
func applyIndexFlags(cfg *config.Config, opts indexOptions) {
	if opts.workers > 0 {
		cfg.Index.Workers = opts.workers
	}
	if opts.batchSize > 0 {
		cfg.Index.BatchSize = opts.batchSize
	}
	if opts.hash {
		cfg.Index.ChangePolicy = config.PolicyHash
	}
	if opts.export != "" {
		cfg.Index.ExportPath = opts.export
	}
}

func runIndex(ctx context.Context, cmd *cobra.Command, a *app, args []string, opts indexOptions) error {
	folders, err := a.folders(args)
	if err != nil {
		return err
	}
	applyIndexFlags(a.cfg, opts)
	a.cfg.Folders = folders
	out := output.New(cmd.ErrOrStderr())

	if !opts.skipCheck && preflight.NeedsCheck(a.dataDir()) {
		if err := runPreflight(ctx, a); err != nil {
			return err
		}
	}

	st, err := a.openWritable(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	runOpts, err := index.OptionsFromConfig(a.cfg)
	if err != nil {
		return err
	}

	renderer := ui.NewRenderer(ui.NewConfig(cmd.OutOrStdout(),
		ui.WithForcePlain(opts.noTUI),
		ui.WithNoColor(ui.DetectNoColor()),
		ui.WithTarget(strings.Join(folders, ", "))))
	if err := renderer.Start(ctx); err != nil {
		a.logger.Warn("failed to start progress renderer", slog.String("error", err.Error()))
	}

	orch, err := index.New(index.Dependencies{
		Store:     st,
		Extractor: a.newExtractor(),
		Renderer:  renderer,
		Logger:    a.logger,
	}, runOpts)
	if err != nil {
		_ = renderer.Stop()
		return err
	}

	sum, err := orch.Run(ctx, folders)
	_ = renderer.Stop()
	if sum != nil && sum.Cancelled {
		out.Warning("Indexing cancelled; the index holds every batch committed so far")
		return err
	}
	if err != nil {
		return err
	}
	for _, dir := range sum.Incomplete {
		out.Warningf("%s could not be read completely; missing files there were kept", dir)
	}

	if path := a.cfg.Index.ExportPath; path != "" {
		n, err := exportTo(ctx, st, path)
		if err != nil {
			return err
		}
		out.Successf("Exported %d records to %s", n, path)
	}
	return nil
}

// runPreflight runs the checks silently and remembers a pass.
func runPreflight(ctx context.Context, a *app) error {
	checker := preflight.New(
		preflight.WithOutput(io.Discard),
		preflight.WithLogger(a.logger),
	)
	report := checker.RunAll(ctx, a.cfg)
	if report.Failed() {
		for _, r := range report.Critical() {
			a.logger.Error("preflight_failed", slog.String("check", r.Name), slog.String("message", r.Message))
		}
		return fmt.Errorf("system check failed, run 'exifturbo doctor' for details")
	}
	if err := preflight.MarkPassed(a.dataDir()); err != nil {
		a.logger.Debug("failed to mark preflight as passed", slog.String("error", err.Error()))
	}
	return nil
}

func exportTo(ctx context.Context, st *store.Store, path string) (int, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("failed to create export file: %w", err)
	}
	n, err := st.Export(ctx, f)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return 0, fmt.Errorf("failed to export %s: %w", path, err)
	}
	return n, nil
}
