package watcher

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	"github.com/exif-turbo/exifturbo/internal/scanner"
)

// Operation represents a file system operation type.
type Operation int

const (
	// OpCreate indicates a new file or directory was created.
	OpCreate Operation = iota
	// OpModify indicates an existing file was modified.
	OpModify
	// OpDelete indicates a file or directory was deleted.
	OpDelete
	// OpRename indicates a file or directory was moved away. The new name
	// arrives as a separate OpCreate.
	OpRename
	// OpMarkerChange indicates a marker file (.nomedia) appeared or went
	// away, so a whole directory may enter or leave the index.
	OpMarkerChange
)

// String returns a human-readable representation of the operation.
func (op Operation) String() string {
	switch op {
	case OpCreate:
		return "CREATE"
	case OpModify:
		return "MODIFY"
	case OpDelete:
		return "DELETE"
	case OpRename:
		return "RENAME"
	case OpMarkerChange:
		return "MARKER_CHANGE"
	default:
		return "UNKNOWN"
	}
}

// FileEvent represents a file system event.
type FileEvent struct {
	// Path is the absolute path of the file or directory.
	Path string

	// Root is the watched folder Path belongs to.
	Root string

	Operation Operation
	IsDir     bool
	Timestamp time.Time
}

// Watcher defines the interface for file system watching.
type Watcher interface {
	// Start watches roots recursively until Stop is called or ctx is
	// cancelled.
	Start(ctx context.Context, roots ...string) error

	// Stop releases resources. Safe to call multiple times.
	Stop() error

	// Events returns debounced batches. Closed when the watcher stops.
	Events() <-chan []FileEvent

	// Errors returns non-fatal watcher errors. Closed when the watcher stops.
	Errors() <-chan error
}

// Options configures the watcher behavior.
type Options struct {
	// DebounceWindow is the quiet period before a batch is emitted.
	// Default: 500ms
	DebounceWindow time.Duration

	// PollInterval is the interval for polling mode.
	// Default: 30s
	PollInterval time.Duration

	// EventBufferSize is the number of batches buffered for the consumer.
	// Default: 64
	EventBufferSize int

	// ForcePolling skips fsnotify entirely.
	ForcePolling bool

	// Scan holds the filters the index uses; events the index would ignore
	// are dropped.
	Scan scanner.ScanOptions
}

// DefaultOptions returns the default watcher options.
func DefaultOptions() Options {
	return Options{
		DebounceWindow:  500 * time.Millisecond,
		PollInterval:    30 * time.Second,
		EventBufferSize: 64,
	}
}

// WithDefaults returns options with defaults applied for zero values.
func (o Options) WithDefaults() Options {
	defaults := DefaultOptions()
	if o.DebounceWindow <= 0 {
		o.DebounceWindow = defaults.DebounceWindow
	}
	if o.PollInterval <= 0 {
		o.PollInterval = defaults.PollInterval
	}
	if o.EventBufferSize <= 0 {
		o.EventBufferSize = defaults.EventBufferSize
	}
	return o
}

// rootOf returns the watched root containing path, preferring the deepest.
func rootOf(roots []string, path string) (string, bool) {
	best := ""
	for _, r := range roots {
		if path != r && !strings.HasPrefix(path, r+string(filepath.Separator)) {
			continue
		}
		if len(r) > len(best) {
			best = r
		}
	}
	return best, best != ""
}

// classify applies the scan filters to a raw change. It returns false for
// changes the index would never see.
func classify(opts *scanner.ScanOptions, roots []string, path string, isDir bool, op Operation) (FileEvent, bool) {
	root, ok := rootOf(roots, path)
	if !ok {
		return FileEvent{}, false
	}
	rel, err := filepath.Rel(root, path)
	if err != nil || !scanner.Relevant(rel, isDir, opts) {
		return FileEvent{}, false
	}
	if !isDir && opts.IsMarker(filepath.Base(path)) {
		op = OpMarkerChange
	}
	return FileEvent{
		Path:      path,
		Root:      root,
		Operation: op,
		IsDir:     isDir,
		Timestamp: time.Now(),
	}, true
}

// absRoots resolves and dedupes watch roots.
func absRoots(roots []string) ([]string, error) {
	seen := make(map[string]bool, len(roots))
	out := make([]string, 0, len(roots))
	for _, r := range roots {
		abs, err := scanner.AbsFolder(r)
		if err != nil {
			return nil, err
		}
		if !seen[abs] {
			seen[abs] = true
			out = append(out, abs)
		}
	}
	return out, nil
}
