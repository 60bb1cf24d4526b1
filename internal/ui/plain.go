package ui

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"
)

// PlainRenderer writes one line per event, for pipes and CI.
type PlainRenderer struct {
	mu  sync.Mutex
	out io.Writer
}

// NewPlainRenderer creates a plain text renderer.
func NewPlainRenderer(cfg Config) *PlainRenderer {
	return &PlainRenderer{out: cfg.Output}
}

// Start implements Renderer.
func (r *PlainRenderer) Start(context.Context) error { return nil }

// UpdateProgress implements Renderer.
func (r *PlainRenderer) UpdateProgress(event ProgressEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	msg := event.Message
	if msg == "" {
		msg = event.CurrentFile
	}
	switch {
	case event.Total > 0:
		_, _ = fmt.Fprintf(r.out, "[%s] %d/%d %s\n", event.Stage.Icon(), event.Current, event.Total, msg)
	case msg != "":
		_, _ = fmt.Fprintf(r.out, "[%s] %s\n", event.Stage.Icon(), msg)
	}
}

// AddError implements Renderer.
func (r *PlainRenderer) AddError(event ErrorEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	prefix := "ERROR"
	if event.IsWarn {
		prefix = "WARN"
	}
	if event.File != "" {
		_, _ = fmt.Fprintf(r.out, "%s: %s: %v\n", prefix, event.File, event.Err)
		return
	}
	_, _ = fmt.Fprintf(r.out, "%s: %v\n", prefix, event.Err)
}

// Complete implements Renderer.
func (r *PlainRenderer) Complete(stats CompletionStats) {
	r.mu.Lock()
	defer r.mu.Unlock()

	head := "Complete"
	if stats.Cancelled {
		head = "Cancelled"
	}
	_, _ = fmt.Fprintf(r.out, "%s: %d scanned, %d indexed, %d unchanged, %d deleted in %s",
		head, stats.Scanned, stats.Indexed, stats.Unchanged, stats.Deleted, stats.Duration.Round(100*time.Millisecond))
	if stats.Errors > 0 || stats.Warnings > 0 {
		_, _ = fmt.Fprintf(r.out, " (%d errors, %d warnings)", stats.Errors, stats.Warnings)
	}
	_, _ = fmt.Fprintln(r.out)

	if stats.New > 0 || stats.Modified > 0 {
		_, _ = fmt.Fprintf(r.out, "  New: %d  Modified: %d  Skipped: %d\n", stats.New, stats.Modified, stats.Skipped)
	}
	if stats.Stages.Scan > 0 || stats.Stages.Extract > 0 {
		_, _ = fmt.Fprintln(r.out, "Stage Breakdown:")
		_, _ = fmt.Fprintf(r.out, "  Scan:    %s\n", stats.Stages.Scan.Round(time.Millisecond))
		if stats.Stages.Extract > 0 && stats.Indexed > 0 {
			rate := float64(stats.Indexed) / stats.Stages.Extract.Seconds()
			_, _ = fmt.Fprintf(r.out, "  Extract: %s (%d files @ %.1f/sec)\n", stats.Stages.Extract.Round(time.Millisecond), stats.Indexed, rate)
		}
		_, _ = fmt.Fprintf(r.out, "  Commit:  %s\n", stats.Stages.Commit.Round(time.Millisecond))
		if stats.Stages.Tombstone > 0 {
			_, _ = fmt.Fprintf(r.out, "  Prune:   %s\n", stats.Stages.Tombstone.Round(time.Millisecond))
		}
	}
	if stats.Extractor != "" {
		_, _ = fmt.Fprintf(r.out, "Extractor: %s\n", stats.Extractor)
	}
}

// Stop implements Renderer.
func (r *PlainRenderer) Stop() error { return nil }

var _ Renderer = (*PlainRenderer)(nil)
