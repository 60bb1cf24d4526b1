package ui

import (
	"bytes"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
)

func TestNewTUIRenderer_RejectsNonTTY(t *testing.T) {
	r, err := NewTUIRenderer(NewConfig(&bytes.Buffer{}))

	assert.Error(t, err)
	assert.Nil(t, r)
}

func TestNewRenderer_FallsBackToPlain(t *testing.T) {
	r := NewRenderer(NewConfig(&bytes.Buffer{}))
	_, ok := r.(*PlainRenderer)
	assert.True(t, ok)

	r = NewRenderer(NewConfig(&bytes.Buffer{}, WithForcePlain(true)))
	_, ok = r.(*PlainRenderer)
	assert.True(t, ok)
}

func TestIndexModel_StageIndicators(t *testing.T) {
	// Given: a model during extraction
	tracker := NewProgressTracker()
	tracker.SetStage(StageExtracting, 100)
	tracker.Update(40, 0, "/photos/trip/IMG_0001.JPG")
	m := newIndexModel(tracker, "/photos")
	m.styles = NoColorStyles()

	// When: rendering
	view := m.View()

	// Then: stages, counts and the current file are shown
	assert.Contains(t, view, "● Scan")
	assert.Contains(t, view, "Extract")
	assert.Contains(t, view, "○ Commit")
	assert.Contains(t, view, "○ Prune")
	assert.Contains(t, view, "40 / 100 files")
	assert.Contains(t, view, "IMG_0001.JPG")
	assert.Contains(t, view, "exifturbo • /photos")
}

func TestIndexModel_StatusBar(t *testing.T) {
	tracker := NewProgressTracker()
	tracker.AddError(ErrorEvent{IsWarn: true})
	tracker.AddError(ErrorEvent{})
	m := newIndexModel(tracker, "")
	m.styles = NoColorStyles()

	view := m.View()

	assert.Contains(t, view, "1 skipped")
	assert.Contains(t, view, "1 failed")
}

func TestIndexModel_Complete(t *testing.T) {
	// Given: a model receiving the completion message
	m := newIndexModel(NewProgressTracker(), "")
	m.styles = NoColorStyles()

	// When: the run completes
	_, cmd := m.Update(completeMsg(CompletionStats{Scanned: 12, Indexed: 10, Unchanged: 2, Duration: 90 * time.Second}))

	// Then: the program quits and shows the summary
	assert.NotNil(t, cmd)
	view := m.View()
	assert.Contains(t, view, "Index complete")
	assert.Contains(t, view, "12")
	assert.Contains(t, view, "1m 30s")
}

func TestIndexModel_WindowResize(t *testing.T) {
	m := newIndexModel(NewProgressTracker(), "")

	m.Update(tea.WindowSizeMsg{Width: 30, Height: 10})

	assert.Equal(t, 30, m.width)
	assert.Equal(t, 20, m.bar.Width)
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{1500 * time.Millisecond, "2s"},
		{2 * time.Minute, "2m"},
		{125 * time.Second, "2m 5s"},
		{3*time.Hour + 5*time.Minute, "3h 5m"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, formatDuration(tt.in))
	}
}

func TestTruncatePath(t *testing.T) {
	assert.Equal(t, "/a/b.jpg", truncatePath("/a/b.jpg", 20))

	got := truncatePath("/very/long/library/path/IMG_0001.JPG", 24)
	assert.Len(t, got, 24)
	assert.Contains(t, got, "IMG_0001.JPG")
	assert.True(t, len(got) > 3 && got[:3] == "...")

	assert.Len(t, truncatePath("averyveryverylongfilename.jpg", 10), 10)
}
