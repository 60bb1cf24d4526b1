package cmd

import (
	"context"
	"log/slog"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/exif-turbo/exifturbo/internal/index"
	"github.com/exif-turbo/exifturbo/internal/output"
	"github.com/exif-turbo/exifturbo/internal/store"
	"github.com/exif-turbo/exifturbo/internal/ui"
	"github.com/exif-turbo/exifturbo/internal/watcher"
)

func newWatchCmd(a *app) *cobra.Command {
	var forcePolling bool

	cmd := &cobra.Command{
		Use:   "watch [folders...]",
		Short: "Index folders and keep the index current as files change",
		Long: `Run an index pass over the folders, then watch them and re-index the
folders that change. Bursts of events are debounced (watch.debounce).

Polling is used when native file notifications are unavailable.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			folders, err := a.folders(args)
			if err != nil {
				return err
			}
			a.cfg.Folders = folders

			st, err := a.openWritable(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = st.Close() }()

			renderer := ui.NewPlainRenderer(ui.NewConfig(cmd.OutOrStdout()))
			orch, err := a.newOrchestrator(st, renderer)
			if err != nil {
				return err
			}
			out := output.New(cmd.ErrOrStderr())
			return a.watchFolders(ctx, orch, folders, forcePolling, func(_ *index.Summary, err error) {
				if err != nil {
					out.Errorf("re-index failed: %v", err)
				}
			})
		},
	}

	cmd.Flags().BoolVar(&forcePolling, "poll", false, "Poll for changes instead of using file notifications")

	return cmd
}

func (a *app) newOrchestrator(st *store.Store, renderer ui.Renderer) (*index.Orchestrator, error) {
	opts, err := index.OptionsFromConfig(a.cfg)
	if err != nil {
		return nil, err
	}
	return index.New(index.Dependencies{
		Store:     st,
		Extractor: a.newExtractor(),
		Renderer:  renderer,
		Logger:    a.logger,
	}, opts)
}

// watchFolders runs an initial pass and then re-indexes folders as the
// watcher reports changes, until ctx is cancelled. Cancellation is not an
// error.
func (a *app) watchFolders(ctx context.Context, orch *index.Orchestrator, folders []string, forcePolling bool, onRun func(*index.Summary, error)) error {
	sum, err := orch.Run(ctx, folders)
	if sum != nil && sum.Cancelled {
		return nil
	}
	if err != nil {
		return err
	}

	scanOpts, err := index.OptionsFromConfig(a.cfg)
	if err != nil {
		return err
	}
	w, err := watcher.NewHybridWatcher(watcher.Options{
		DebounceWindow: a.cfg.DebounceWindow(),
		ForcePolling:   forcePolling,
		Scan:           scanOpts.Scan,
	}, a.logger)
	if err != nil {
		return err
	}
	coord, err := index.NewCoordinator(index.CoordinatorConfig{
		Orchestrator: orch,
		Roots:        folders,
		OnRun:        onRun,
		Logger:       a.logger,
	})
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := w.Start(gctx, folders...)
		if gctx.Err() != nil {
			return nil
		}
		return err
	})
	g.Go(func() error {
		err := coord.Run(gctx, w.Events())
		if gctx.Err() != nil {
			return nil
		}
		return err
	})
	g.Go(func() error {
		for err := range w.Errors() {
			a.logger.Warn("watcher_error", slog.String("error", err.Error()))
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		return w.Stop()
	})
	return g.Wait()
}
