package watcher

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/exif-turbo/exifturbo/internal/logging"
)

// Debouncer coalesces rapid file events into batches. Events for the same
// path within the window are merged:
//   - CREATE + MODIFY = CREATE
//   - CREATE + DELETE = nothing
//   - MODIFY + DELETE = DELETE
//   - DELETE + CREATE = MODIFY
//
// Marker changes are never merged away.
type Debouncer struct {
	window  time.Duration
	logger  *slog.Logger
	pending map[string]*pendingEvent
	mu      sync.Mutex
	output  chan []FileEvent
	timer   *time.Timer
	stopped bool
	dropped int
}

type pendingEvent struct {
	event   FileEvent
	firstOp Operation
}

// NewDebouncer creates a debouncer emitting at most buffer batches ahead of
// the consumer.
func NewDebouncer(window time.Duration, buffer int, logger *slog.Logger) *Debouncer {
	if buffer <= 0 {
		buffer = DefaultOptions().EventBufferSize
	}
	return &Debouncer{
		window:  window,
		logger:  logging.OrDiscard(logger),
		pending: make(map[string]*pendingEvent),
		output:  make(chan []FileEvent, buffer),
	}
}

// Add queues an event and restarts the quiet-period timer.
func (d *Debouncer) Add(event FileEvent) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}

	if existing, ok := d.pending[event.Path]; ok {
		op, keep := merge(existing.firstOp, event.Operation)
		if !keep {
			delete(d.pending, event.Path)
		} else {
			existing.event = event
			existing.event.Operation = op
		}
	} else {
		d.pending[event.Path] = &pendingEvent{event: event, firstOp: event.Operation}
	}

	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.window, d.flush)
}

// merge combines the first operation seen in a window with a later one.
func merge(first, next Operation) (Operation, bool) {
	if first == OpMarkerChange || next == OpMarkerChange {
		return OpMarkerChange, true
	}
	switch {
	case first == OpCreate && next == OpModify:
		return OpCreate, true
	case first == OpCreate && next == OpDelete:
		return 0, false
	case first == OpDelete && next == OpCreate:
		return OpModify, true
	default:
		return next, true
	}
}

// Flush emits pending events now instead of waiting for the window.
func (d *Debouncer) Flush() {
	d.flush()
}

func (d *Debouncer) flush() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped || len(d.pending) == 0 {
		return
	}

	events := make([]FileEvent, 0, len(d.pending))
	for _, pe := range d.pending {
		events = append(events, pe.event)
	}
	sort.Slice(events, func(i, j int) bool { return events[i].Path < events[j].Path })
	d.pending = make(map[string]*pendingEvent)

	select {
	case d.output <- events:
	default:
		d.dropped++
		d.logger.Warn("debouncer output full, dropping batch",
			slog.Int("batch_size", len(events)),
			slog.Int("total_dropped", d.dropped))
	}
}

// Output returns the channel of debounced batches.
func (d *Debouncer) Output() <-chan []FileEvent {
	return d.output
}

// Dropped returns how many batches were lost to a slow consumer.
func (d *Debouncer) Dropped() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dropped
}

// Stop discards pending events and closes the output channel. Safe to call
// multiple times.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}

	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
	}
	d.pending = nil
	close(d.output)
}
