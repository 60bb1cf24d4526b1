package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"

	"github.com/exif-turbo/exifturbo/internal/logging"
)

// HybridWatcher watches with fsnotify and falls back to polling when
// fsnotify cannot be created or runs out of watch descriptors.
type HybridWatcher struct {
	fsWatcher   *fsnotify.Watcher
	pollWatcher *PollingWatcher
	useFsnotify bool
	debouncer   *Debouncer
	logger      *slog.Logger
	opts        Options

	events chan []FileEvent
	errors chan error
	stopCh chan struct{}

	mu      sync.RWMutex
	roots   []string
	dirs    map[string]bool
	stopped bool

	droppedBatches atomic.Uint64
}

var _ Watcher = (*HybridWatcher)(nil)

// NewHybridWatcher creates a watcher. It never fails for lack of fsnotify;
// the polling fallback is chosen instead.
func NewHybridWatcher(opts Options, logger *slog.Logger) (*HybridWatcher, error) {
	opts = opts.WithDefaults()
	logger = logging.OrDiscard(logger)

	h := &HybridWatcher{
		debouncer: NewDebouncer(opts.DebounceWindow, opts.EventBufferSize, logger),
		logger:    logger,
		opts:      opts,
		events:    make(chan []FileEvent, opts.EventBufferSize),
		errors:    make(chan error, 10),
		stopCh:    make(chan struct{}),
		dirs:      make(map[string]bool),
	}

	if !opts.ForcePolling {
		fsw, err := fsnotify.NewWatcher()
		if err == nil {
			h.fsWatcher = fsw
			h.useFsnotify = true
			return h, nil
		}
		logger.Warn("fsnotify unavailable, falling back to polling", slog.String("error", err.Error()))
	}
	h.pollWatcher = NewPollingWatcher(opts.PollInterval, opts.Scan, logger)
	return h, nil
}

// Start watches roots and blocks until Stop or ctx cancellation. Every root
// must be an existing directory.
func (h *HybridWatcher) Start(ctx context.Context, roots ...string) error {
	abs, err := absRoots(roots)
	if err != nil {
		return err
	}
	if len(abs) == 0 {
		return fmt.Errorf("no folders to watch")
	}
	for _, r := range abs {
		info, err := os.Stat(r)
		if err != nil {
			return fmt.Errorf("watch %s: %w", r, err)
		}
		if !info.IsDir() {
			return fmt.Errorf("watch %s: not a directory", r)
		}
	}

	h.mu.Lock()
	h.roots = abs
	h.mu.Unlock()

	go h.forwardDebouncedEvents(ctx)

	if h.useFsnotify {
		if err := h.addRoots(); err != nil {
			h.logger.Warn("fsnotify watch failed, falling back to polling", slog.String("error", err.Error()))
			_ = h.fsWatcher.Close()
			h.mu.Lock()
			h.useFsnotify = false
			h.pollWatcher = NewPollingWatcher(h.opts.PollInterval, h.opts.Scan, h.logger)
			h.mu.Unlock()
			return h.startPolling(ctx)
		}
		h.logger.Info("watching", slog.Any("folders", abs), slog.String("mode", "fsnotify"))
		return h.startFsnotify(ctx)
	}
	return h.startPolling(ctx)
}

func (h *HybridWatcher) startFsnotify(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			_ = h.Stop()
			return ctx.Err()
		case <-h.stopCh:
			return nil
		case event, ok := <-h.fsWatcher.Events:
			if !ok {
				return nil
			}
			h.handleFsnotifyEvent(event)
		case err, ok := <-h.fsWatcher.Errors:
			if !ok {
				return nil
			}
			h.emitError(err)
		}
	}
}

func (h *HybridWatcher) startPolling(ctx context.Context) error {
	h.logger.Info("watching", slog.Any("folders", h.roots), slog.String("mode", "polling"),
		slog.Duration("interval", h.opts.PollInterval))

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-h.stopCh:
				return
			case event, ok := <-h.pollWatcher.Events():
				if !ok {
					return
				}
				h.debouncer.Add(event)
			}
		}
	}()

	err := h.pollWatcher.Start(ctx, h.roots...)
	if ctx.Err() != nil {
		_ = h.Stop()
	}
	return err
}

// handleFsnotifyEvent converts and filters one fsnotify event.
func (h *HybridWatcher) handleFsnotifyEvent(event fsnotify.Event) {
	path := filepath.Clean(event.Name)

	h.mu.RLock()
	watchedDir := h.dirs[path]
	roots := h.roots
	h.mu.RUnlock()

	isDir := watchedDir
	if info, err := os.Stat(path); err == nil {
		isDir = info.IsDir()
	}

	var op Operation
	switch {
	case event.Op&fsnotify.Create != 0:
		op = OpCreate
	case event.Op&fsnotify.Write != 0:
		op = OpModify
	case event.Op&fsnotify.Remove != 0:
		op = OpDelete
	case event.Op&fsnotify.Rename != 0:
		op = OpRename
	default:
		// Chmod
		return
	}

	fe, ok := classify(&h.opts.Scan, roots, path, isDir, op)
	if !ok {
		return
	}

	switch {
	case op == OpCreate && isDir:
		if err := h.addRecursive(fe.Root, path); err != nil {
			h.emitError(fmt.Errorf("watch new directory %s: %w", path, err))
		}
	case (op == OpDelete || op == OpRename) && watchedDir:
		h.forgetDir(path)
	}

	h.debouncer.Add(fe)
}

func (h *HybridWatcher) addRoots() error {
	for _, r := range h.roots {
		if err := h.addRecursive(r, r); err != nil {
			return err
		}
	}
	return nil
}

// addRecursive watches dir and every relevant directory below it.
func (h *HybridWatcher) addRecursive(root, dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == dir {
				return err
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != root {
			if _, ok := classify(&h.opts.Scan, []string{root}, path, true, OpCreate); !ok {
				return filepath.SkipDir
			}
		}
		if err := h.fsWatcher.Add(path); err != nil {
			return err
		}
		h.mu.Lock()
		h.dirs[path] = true
		h.mu.Unlock()
		return nil
	})
}

func (h *HybridWatcher) forgetDir(dir string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	prefix := dir + string(filepath.Separator)
	for d := range h.dirs {
		if d == dir || strings.HasPrefix(d, prefix) {
			delete(h.dirs, d)
		}
	}
}

func (h *HybridWatcher) forwardDebouncedEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-h.stopCh:
			return
		case events, ok := <-h.debouncer.Output():
			if !ok {
				return
			}
			h.emitEvents(events)
		}
	}
}

func (h *HybridWatcher) emitEvents(events []FileEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.stopped {
		return
	}

	select {
	case h.events <- events:
	default:
		count := h.droppedBatches.Add(1)
		h.logger.Warn("event buffer full, dropping batch",
			slog.Int("batch_size", len(events)),
			slog.Uint64("total_dropped_batches", count))
	}
}

// DroppedBatches returns the number of batches dropped because the
// consumer was too slow.
func (h *HybridWatcher) DroppedBatches() uint64 {
	return h.droppedBatches.Load()
}

func (h *HybridWatcher) emitError(err error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.stopped {
		return
	}
	select {
	case h.errors <- err:
	default:
	}
}

// Stop stops the watcher and releases resources.
func (h *HybridWatcher) Stop() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.stopped {
		return nil
	}

	h.stopped = true
	close(h.stopCh)
	h.debouncer.Stop()

	if h.useFsnotify && h.fsWatcher != nil {
		_ = h.fsWatcher.Close()
	}
	if h.pollWatcher != nil {
		_ = h.pollWatcher.Stop()
	}

	close(h.events)
	close(h.errors)
	return nil
}

// Events returns the channel of debounced batches.
func (h *HybridWatcher) Events() <-chan []FileEvent {
	return h.events
}

// Errors returns the channel of non-fatal errors.
func (h *HybridWatcher) Errors() <-chan error {
	return h.errors
}

// WatcherType returns "fsnotify" or "polling".
func (h *HybridWatcher) WatcherType() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.useFsnotify {
		return "fsnotify"
	}
	return "polling"
}

// Roots returns the folders being watched.
func (h *HybridWatcher) Roots() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return append([]string(nil), h.roots...)
}
