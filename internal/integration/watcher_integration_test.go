package integration

import (
	"context"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/exif-turbo/exifturbo/internal/index"
	"github.com/exif-turbo/exifturbo/internal/query"
	"github.com/exif-turbo/exifturbo/internal/watcher"
)

// startWatching runs a watcher and coordinator over root until the test ends.
func startWatching(t *testing.T, p *pipeline, root string, forcePolling bool) *atomic.Int32 {
	t.Helper()
	w, err := watcher.NewHybridWatcher(watcher.Options{
		DebounceWindow: 50 * time.Millisecond,
		PollInterval:   100 * time.Millisecond,
		ForcePolling:   forcePolling,
		Scan:           p.opts.Scan,
	}, nil)
	require.NoError(t, err)

	runs := &atomic.Int32{}
	coord, err := index.NewCoordinator(index.CoordinatorConfig{
		Orchestrator: p.orch,
		Roots:        []string{root},
		OnRun:        func(*index.Summary, error) { runs.Add(1) },
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{}, 2)
	go func() { _ = w.Start(ctx, root); done <- struct{}{} }()
	go func() { _ = coord.Run(ctx, w.Events()); done <- struct{}{} }()
	t.Cleanup(func() {
		cancel()
		_ = w.Stop()
		<-done
		<-done
	})

	// let the watcher register its watches or take its baseline
	time.Sleep(300 * time.Millisecond)
	return runs
}

func testWatchPicksUpChanges(t *testing.T, forcePolling bool) {
	ctx := context.Background()
	p := newPipeline(t)
	root := t.TempDir()
	writePhoto(t, filepath.Join(root, "old.jpg"), "IFD0:Make=Leica")
	_, err := p.orch.Run(ctx, []string{root})
	require.NoError(t, err)

	runs := startWatching(t, p, root, forcePolling)

	// When: a photo is added to a new subfolder
	writePhoto(t, filepath.Join(root, "new", "fresh.jpg"), "IFD0:Make=Pentax")

	// Then: it becomes searchable without a manual run
	require.Eventually(t, func() bool {
		res, err := p.engine.Search(context.Background(), "make:pentax", query.Options{})
		return err == nil && res.Total == 1
	}, 10*time.Second, 50*time.Millisecond)
	assert.Positive(t, runs.Load())
	assert.Equal(t, []string{"old.jpg"}, p.paths(t, "make:leica"))
}

func TestWatch_Fsnotify_IndexesNewFiles(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	testWatchPicksUpChanges(t, false)
}

func TestWatch_Polling_IndexesNewFiles(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	testWatchPicksUpChanges(t, true)
}
