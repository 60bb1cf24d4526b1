package watcher

import (
	"context"
	"io/fs"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/exif-turbo/exifturbo/internal/logging"
	"github.com/exif-turbo/exifturbo/internal/scanner"
)

// PollingWatcher finds changes by diffing periodic snapshots of the roots.
// Used when fsnotify is unavailable or runs out of watches.
type PollingWatcher struct {
	interval time.Duration
	scan     scanner.ScanOptions
	logger   *slog.Logger
	state    map[string]fileSnapshot
	events   chan FileEvent
	stopCh   chan struct{}
	mu       sync.Mutex
	stopped  bool
	roots    []string
}

type fileSnapshot struct {
	root    string
	modTime time.Time
	size    int64
	isDir   bool
}

// NewPollingWatcher creates a polling watcher using the index filters.
func NewPollingWatcher(interval time.Duration, scan scanner.ScanOptions, logger *slog.Logger) *PollingWatcher {
	return &PollingWatcher{
		interval: interval,
		scan:     scan,
		logger:   logging.OrDiscard(logger),
		state:    make(map[string]fileSnapshot),
		events:   make(chan FileEvent, 1024),
		stopCh:   make(chan struct{}),
	}
}

// Start takes a baseline snapshot and then polls until stopped.
func (p *PollingWatcher) Start(ctx context.Context, roots ...string) error {
	if err := p.Baseline(roots...); err != nil {
		return err
	}

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = p.Stop()
			return ctx.Err()
		case <-p.stopCh:
			return nil
		case <-ticker.C:
			p.Poll()
		}
	}
}

// Baseline records the current state of roots; later polls report
// differences from it.
func (p *PollingWatcher) Baseline(roots ...string) error {
	abs, err := absRoots(roots)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.roots = abs
	p.state = p.snapshot()
	return nil
}

// Poll compares the roots with the last snapshot and emits the differences.
func (p *PollingWatcher) Poll() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stopped {
		return
	}

	current := p.snapshot()
	for path, snap := range current {
		prev, ok := p.state[path]
		switch {
		case !ok:
			p.emitEvent(path, snap, OpCreate)
		case !snap.isDir && (!prev.modTime.Equal(snap.modTime) || prev.size != snap.size):
			p.emitEvent(path, snap, OpModify)
		}
	}
	for path, snap := range p.state {
		if _, ok := current[path]; !ok {
			p.emitEvent(path, snap, OpDelete)
		}
	}

	p.state = current
}

// snapshot walks every root. Unreadable subtrees, including a missing root,
// are left out, so their files show up as deleted; the index never
// tombstones a folder it could not walk completely.
func (p *PollingWatcher) snapshot() map[string]fileSnapshot {
	out := make(map[string]fileSnapshot)
	for _, root := range p.roots {
		_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				p.logger.Warn("poll skipped unreadable path",
					slog.String("path", path),
					slog.String("error", err.Error()))
				if d == nil || d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
			if path == root {
				return nil
			}

			rel, err := filepath.Rel(root, path)
			if err != nil {
				return nil
			}
			if !scanner.Relevant(rel, d.IsDir(), &p.scan) {
				if d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}

			info, err := d.Info()
			if err != nil {
				return nil
			}
			out[path] = fileSnapshot{
				root:    root,
				modTime: info.ModTime(),
				size:    info.Size(),
				isDir:   d.IsDir(),
			}
			return nil
		})
	}
	return out
}

// emitEvent must be called with the lock held.
func (p *PollingWatcher) emitEvent(path string, snap fileSnapshot, op Operation) {
	if !snap.isDir && p.scan.IsMarker(filepath.Base(path)) {
		op = OpMarkerChange
	}
	event := FileEvent{
		Path:      path,
		Root:      snap.root,
		Operation: op,
		IsDir:     snap.isDir,
		Timestamp: time.Now(),
	}
	select {
	case p.events <- event:
	default:
		p.logger.Warn("polling watcher buffer full, dropping event",
			slog.String("path", event.Path),
			slog.String("op", event.Operation.String()))
	}
}

// Stop stops the polling watcher.
func (p *PollingWatcher) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stopped {
		return nil
	}

	p.stopped = true
	close(p.stopCh)
	close(p.events)
	return nil
}

// Events returns the channel of raw, undebounced events.
func (p *PollingWatcher) Events() <-chan FileEvent {
	return p.events
}
