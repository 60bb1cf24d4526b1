package ui

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusRenderer_Render(t *testing.T) {
	// Given: a populated index
	buf := &bytes.Buffer{}
	r := NewStatusRenderer(buf, true)

	// When: rendering
	err := r.Render(StatusInfo{
		DBPath:          "/home/me/.exifturbo/index.db",
		Files:           1200,
		Tags:            48000,
		MediaBytes:      3 * 1024 * 1024 * 1024,
		DBBytes:         12 * 1024 * 1024,
		LastIndexed:     time.Now().Add(-2 * time.Hour),
		Extractor:       "exiftool",
		ExtractorStatus: "ready",
		ExtractorDetail: "version 12.76",
	})
	require.NoError(t, err)

	// Then: each field is shown
	out := buf.String()
	assert.Contains(t, out, "Index: /home/me/.exifturbo/index.db")
	assert.Contains(t, out, "Files:        1200")
	assert.Contains(t, out, "Media size:   3.0 GB")
	assert.Contains(t, out, "Index size:   12.0 MB")
	assert.Contains(t, out, "2 hours ago")
	assert.Contains(t, out, "Extractor: exiftool (ready)")
	assert.Contains(t, out, "version 12.76")
}

func TestStatusRenderer_NeverIndexed(t *testing.T) {
	buf := &bytes.Buffer{}
	require.NoError(t, NewStatusRenderer(buf, true).Render(StatusInfo{DBPath: "x.db"}))

	assert.Contains(t, buf.String(), "Last indexed: never")
	assert.NotContains(t, buf.String(), "Extractor:")
}

func TestStatusRenderer_RenderJSON(t *testing.T) {
	buf := &bytes.Buffer{}
	r := NewStatusRenderer(buf, true)

	require.NoError(t, r.RenderJSON(StatusInfo{DBPath: "x.db", Files: 3, ExtractorStatus: "fallback"}))

	var parsed map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &parsed))
	assert.Equal(t, "x.db", parsed["db_path"])
	assert.Equal(t, float64(3), parsed["files"])
	assert.Equal(t, "fallback", parsed["extractor_status"])
	assert.NotContains(t, parsed, "extractor_detail")
}

func TestFormatBytes(t *testing.T) {
	assert.Equal(t, "512 B", FormatBytes(512))
	assert.Equal(t, "1.5 KB", FormatBytes(1536))
	assert.Equal(t, "2.0 MB", FormatBytes(2*1024*1024))
	assert.Equal(t, "1.0 TB", FormatBytes(1024*1024*1024*1024))
}

func TestFormatTime(t *testing.T) {
	assert.Equal(t, "just now", formatTime(time.Now()))
	assert.Equal(t, "1 minute ago", formatTime(time.Now().Add(-90*time.Second)))
	assert.Equal(t, "3 days ago", formatTime(time.Now().Add(-73*time.Hour)))
}
