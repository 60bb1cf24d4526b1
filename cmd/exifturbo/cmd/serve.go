package cmd

import (
	"context"
	"log/slog"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/exif-turbo/exifturbo/internal/httpapi"
	"github.com/exif-turbo/exifturbo/internal/index"
	"github.com/exif-turbo/exifturbo/internal/mcp"
	"github.com/exif-turbo/exifturbo/internal/metrics"
	"github.com/exif-turbo/exifturbo/internal/store"
	"github.com/exif-turbo/exifturbo/internal/ui"
)

// metricsInterval is how often store gauges are refreshed for /metrics.
const metricsInterval = 30 * time.Second

// serveOptions holds CLI flags for serve.
type serveOptions struct {
	httpAddr string
	watch    bool
}

func newServeCmd(a *app) *cobra.Command {
	var opts serveOptions

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the index over HTTP or MCP",
		Long: `Serve queries against the index.

With --http, a JSON API is served:
  GET /api/search?q=...&limit=&offset=&sort=&desc=
  GET /api/records/{id}
  GET /api/records?path=...
  GET /api/stats
  GET /healthz
  GET /metrics

Without --http, an MCP server runs on stdin/stdout for AI assistants.
Nothing but protocol messages is written to stdout in that mode.

With --watch, the configured folders are indexed first and kept current
while serving.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if opts.httpAddr == "" {
				opts.httpAddr = a.cfg.Server.HTTPAddr
			}
			return runServe(cmd.Context(), a, opts)
		},
	}

	cmd.Flags().StringVar(&opts.httpAddr, "http", "", "Serve the JSON API on this address, e.g. 127.0.0.1:8080")
	cmd.Flags().BoolVar(&opts.watch, "watch", false, "Index and watch the configured folders while serving")

	return cmd
}

func runServe(ctx context.Context, a *app, opts serveOptions) error {
	var (
		st   *store.Store
		orch *index.Orchestrator
		err  error
	)
	if opts.watch {
		if _, err := a.folders(nil); err != nil {
			return err
		}
		st, err = a.openWritable(ctx)
		if err == nil {
			orch, err = a.newOrchestrator(st, ui.Discard())
		}
	} else {
		st, err = a.openReadOnly(ctx)
	}
	if err != nil {
		if st != nil {
			_ = st.Close()
		}
		return err
	}
	defer func() { _ = st.Close() }()

	engine, err := a.newEngine(st)
	if err != nil {
		return err
	}
	var lastRun func() *index.Summary
	if orch != nil {
		lastRun = orch.LastSummary
	}

	// The watcher stops with the server.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)
	if orch != nil {
		g.Go(func() error {
			return a.watchFolders(gctx, orch, a.cfg.Folders, false, nil)
		})
	}

	if opts.httpAddr != "" {
		collector := metrics.NewCollector(st, metricsInterval, a.logger)
		collector.Start()
		defer collector.Stop()

		api := httpapi.New(engine, st,
			httpapi.WithLogger(a.logger),
			httpapi.WithLastRun(lastRun))
		g.Go(func() error {
			defer cancel()
			return api.ListenAndServe(gctx, opts.httpAddr)
		})
	} else {
		srv, err := mcp.NewServer(engine, st,
			mcp.WithLogger(a.logger),
			mcp.WithLastRun(lastRun))
		if err != nil {
			return err
		}
		g.Go(func() error {
			defer cancel()
			err := srv.Serve(gctx, "stdio")
			if gctx.Err() != nil {
				return nil
			}
			return err
		})
	}

	err = g.Wait()
	a.logger.Info("serve_stopped", slog.Any("error", err))
	return err
}
