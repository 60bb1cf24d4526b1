package watcher

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receive(t *testing.T, d *Debouncer, timeout time.Duration) []FileEvent {
	t.Helper()
	select {
	case events := <-d.Output():
		return events
	case <-time.After(timeout):
		t.Fatal("timeout waiting for debounced events")
		return nil
	}
}

func TestDebouncer_SingleEvent_PassesThrough(t *testing.T) {
	// Given: a debouncer with short window
	d := NewDebouncer(50*time.Millisecond, 4, nil)
	defer d.Stop()

	// When: a single event is added
	d.Add(FileEvent{Path: "/photos/a.jpg", Root: "/photos", Operation: OpCreate})

	// Then: the event passes through after the window
	events := receive(t, d, 500*time.Millisecond)
	require.Len(t, events, 1)
	assert.Equal(t, "/photos/a.jpg", events[0].Path)
	assert.Equal(t, "/photos", events[0].Root)
	assert.Equal(t, OpCreate, events[0].Operation)
}

func TestDebouncer_BurstBecomesOneBatch(t *testing.T) {
	// Given: a debouncer with short window
	d := NewDebouncer(100*time.Millisecond, 4, nil)
	defer d.Stop()

	// When: a camera import writes several files and rewrites one
	for _, p := range []string{"/p/c.jpg", "/p/a.jpg", "/p/b.jpg", "/p/a.jpg"} {
		d.Add(FileEvent{Path: p, Operation: OpModify})
		time.Sleep(10 * time.Millisecond)
	}

	// Then: one batch arrives, one event per path, sorted by path
	events := receive(t, d, time.Second)
	require.Len(t, events, 3)
	assert.Equal(t, "/p/a.jpg", events[0].Path)
	assert.Equal(t, "/p/b.jpg", events[1].Path)
	assert.Equal(t, "/p/c.jpg", events[2].Path)
}

func TestDebouncer_CreateThenDelete_NoEvent(t *testing.T) {
	d := NewDebouncer(50*time.Millisecond, 4, nil)
	defer d.Stop()

	d.Add(FileEvent{Path: "/p/tmp.jpg", Operation: OpCreate})
	d.Add(FileEvent{Path: "/p/tmp.jpg", Operation: OpDelete})

	select {
	case events := <-d.Output():
		t.Fatalf("unexpected batch %v", events)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestMerge(t *testing.T) {
	tests := []struct {
		name        string
		first, next Operation
		want        Operation
		keep        bool
	}{
		{"create then modify", OpCreate, OpModify, OpCreate, true},
		{"create then delete", OpCreate, OpDelete, 0, false},
		{"modify then delete", OpModify, OpDelete, OpDelete, true},
		{"delete then create", OpDelete, OpCreate, OpModify, true},
		{"modify then modify", OpModify, OpModify, OpModify, true},
		{"rename then create", OpRename, OpCreate, OpCreate, true},
		{"marker then delete", OpMarkerChange, OpDelete, OpMarkerChange, true},
		{"create then marker", OpCreate, OpMarkerChange, OpMarkerChange, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, keep := merge(tt.first, tt.next)
			assert.Equal(t, tt.keep, keep)
			if tt.keep {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestDebouncer_FlushEmitsImmediately(t *testing.T) {
	d := NewDebouncer(time.Hour, 4, nil)
	defer d.Stop()

	d.Add(FileEvent{Path: "/p/a.jpg", Operation: OpDelete})
	d.Flush()

	events := receive(t, d, 100*time.Millisecond)
	require.Len(t, events, 1)
	assert.Equal(t, OpDelete, events[0].Operation)
}

func TestDebouncer_FullOutputDropsBatch(t *testing.T) {
	// Given: a one-batch buffer nobody reads
	d := NewDebouncer(time.Hour, 1, nil)
	defer d.Stop()

	// When: two batches are flushed
	d.Add(FileEvent{Path: "/p/a.jpg", Operation: OpCreate})
	d.Flush()
	d.Add(FileEvent{Path: "/p/b.jpg", Operation: OpCreate})
	d.Flush()

	// Then: the second is counted as dropped
	assert.Equal(t, 1, d.Dropped())
	events := receive(t, d, 100*time.Millisecond)
	assert.Equal(t, "/p/a.jpg", events[0].Path)
}

func TestDebouncer_Stop_ClosesOutput(t *testing.T) {
	d := NewDebouncer(time.Hour, 4, nil)
	d.Add(FileEvent{Path: "/p/a.jpg", Operation: OpCreate})

	d.Stop()
	d.Stop()
	d.Add(FileEvent{Path: "/p/b.jpg", Operation: OpCreate})

	_, ok := <-d.Output()
	assert.False(t, ok, "channel should be closed")
}
