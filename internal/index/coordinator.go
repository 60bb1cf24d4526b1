package index

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"sync"

	"github.com/exif-turbo/exifturbo/internal/errors"
	"github.com/exif-turbo/exifturbo/internal/logging"
	"github.com/exif-turbo/exifturbo/internal/watcher"
)

// CoordinatorConfig contains configuration for the Coordinator.
type CoordinatorConfig struct {
	// Orchestrator runs the incremental passes. Required.
	Orchestrator *Orchestrator

	// Roots limits which folders events may trigger. Empty accepts the
	// root carried by each event.
	Roots []string

	// OnRun is called after every triggered run (optional).
	OnRun func(*Summary, error)

	Logger *slog.Logger
}

// Coordinator turns debounced watch batches into incremental index runs of
// the folders they touched. Unchanged files cost a stat, so re-running a
// whole folder is how single-file events are applied.
type Coordinator struct {
	config CoordinatorConfig
	roots  map[string]bool
	logger *slog.Logger
	mu     sync.Mutex
}

// NewCoordinator creates a new index coordinator.
func NewCoordinator(config CoordinatorConfig) (*Coordinator, error) {
	if config.Orchestrator == nil {
		return nil, fmt.Errorf("orchestrator is required")
	}
	c := &Coordinator{
		config: config,
		logger: logging.OrDiscard(config.Logger),
	}
	if len(config.Roots) > 0 {
		roots, err := rootsOf(config.Roots)
		if err != nil {
			return nil, err
		}
		c.roots = make(map[string]bool, len(roots))
		for _, r := range roots {
			c.roots[r] = true
		}
	}
	return c, nil
}

// HandleEvents applies one batch. It returns a nil summary when no event
// concerns a watched folder.
func (c *Coordinator) HandleEvents(ctx context.Context, events []watcher.FileEvent) (*Summary, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	sc := c.config.Orchestrator.Scanner()
	affected := make(map[string]bool)
	for _, e := range events {
		if e.Root == "" || (c.roots != nil && !c.roots[e.Root]) {
			continue
		}
		affected[e.Root] = true

		switch {
		case e.Operation == watcher.OpMarkerChange:
			sc.InvalidateDir(filepath.Dir(e.Path))
		case e.IsDir:
			sc.InvalidateDir(e.Path)
		}

		c.logger.Debug("file event",
			slog.String("path", e.Path),
			slog.String("operation", e.Operation.String()),
			slog.Bool("is_dir", e.IsDir))
	}
	if len(affected) == 0 {
		return nil, nil
	}

	roots := make([]string, 0, len(affected))
	for r := range affected {
		roots = append(roots, r)
	}
	sort.Strings(roots)

	c.logger.Info("watch_reindex", slog.Int("events", len(events)), slog.Any("folders", roots))
	return c.config.Orchestrator.Run(ctx, roots)
}

// Run consumes batches until the channel closes or ctx is cancelled.
// Batches that queued up during a run are merged into the next one. Run
// errors are logged and reported to OnRun. Store errors and other fatal
// errors end the loop and are returned; anything else keeps it going.
func (c *Coordinator) Run(ctx context.Context, batches <-chan []watcher.FileEvent) error {
	for {
		var events []watcher.FileEvent
		select {
		case <-ctx.Done():
			return ctx.Err()
		case batch, ok := <-batches:
			if !ok {
				return nil
			}
			events = append(events, batch...)
		}

	drain:
		for {
			select {
			case batch, ok := <-batches:
				if !ok {
					break drain
				}
				events = append(events, batch...)
			default:
				break drain
			}
		}

		sum, err := c.HandleEvents(ctx, events)
		if sum == nil && err == nil {
			continue
		}
		if err != nil && ctx.Err() == nil {
			c.logger.Warn("watch_reindex_failed", slog.String("error", err.Error()))
		}
		if c.config.OnRun != nil {
			c.config.OnRun(sum, err)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if isStoreFailure(err) {
			return err
		}
	}
}

func isStoreFailure(err error) bool {
	return err != nil && (errors.GetCategory(err) == errors.CategoryStore || errors.IsFatal(err))
}
