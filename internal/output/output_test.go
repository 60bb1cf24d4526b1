package output

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/exif-turbo/exifturbo/internal/query"
	"github.com/exif-turbo/exifturbo/internal/store"
)

func TestWriter_Status_PrintsIconAndMessage(t *testing.T) {
	// Given: a writer with a buffer
	buf := &bytes.Buffer{}
	w := New(buf)

	// When: printing a status message
	w.Status("🔍", "Checking exiftool...")

	// Then: output contains icon and message
	assert.Equal(t, "🔍 Checking exiftool...\n", buf.String())
}

func TestWriter_Status_NoIconIndents(t *testing.T) {
	buf := &bytes.Buffer{}
	New(buf).Status("", "detail")
	assert.Equal(t, "   detail\n", buf.String())
}

func TestWriter_Levels(t *testing.T) {
	buf := &bytes.Buffer{}
	w := New(buf)

	w.Successf("indexed %d files", 3)
	w.Warningf("%d warnings", 1)
	w.Errorf("failed: %s", "disk")
	w.Newline()

	lines := strings.Split(buf.String(), "\n")
	require.Len(t, lines, 5)
	assert.Contains(t, lines[0], "✅")
	assert.Contains(t, lines[0], "indexed 3 files")
	assert.Contains(t, lines[1], "⚠️")
	assert.Contains(t, lines[1], "1 warnings")
	assert.Contains(t, lines[2], "❌")
	assert.Contains(t, lines[2], "failed: disk")
	assert.Empty(t, lines[3])
}

func TestWriter_JSON(t *testing.T) {
	buf := &bytes.Buffer{}

	require.NoError(t, New(buf).JSON(map[string]int{"files": 2}))

	var got map[string]int
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, 2, got["files"])
	assert.Contains(t, buf.String(), "\n  ")
}

func testResult() *query.Result {
	return &query.Result{
		Query:  "make:canon",
		Total:  3,
		Offset: 0,
		Took:   2 * time.Millisecond,
		Hits: []query.Hit{
			{
				Path:           "/photos/a.jpg",
				MatchedColumns: []string{"make"},
				Record: &store.FileRecord{Path: "/photos/a.jpg", Columns: store.Columns{
					Make: "Canon", Model: "Canon EOS R5", Lens: "RF 50mm", Date: "2023:06:01 12:00:00",
				}},
			},
			{Path: "/photos/b.jpg"},
		},
	}
}

func TestWriter_SearchResults(t *testing.T) {
	// Given: a page of two hits out of three
	buf := &bytes.Buffer{}

	// When: rendering it
	New(buf).SearchResults(testResult())

	// Then: header, paths, details and the next offset are shown
	out := buf.String()
	assert.Contains(t, out, `3 results for "make:canon" (showing 1-2`)
	assert.Contains(t, out, "/photos/a.jpg\n    Canon EOS R5 | RF 50mm | 2023:06:01 12:00:00 | matched: make\n")
	assert.Contains(t, out, "/photos/b.jpg\n")
	assert.Contains(t, out, "1 more, use --offset 2")
}

func TestWriter_SearchResults_Empty(t *testing.T) {
	buf := &bytes.Buffer{}
	New(buf).SearchResults(&query.Result{Query: "lens:fisheye"})
	assert.Equal(t, "No photos match \"lens:fisheye\"\n", buf.String())
}

func TestWriter_SearchResults_PastTheEnd(t *testing.T) {
	buf := &bytes.Buffer{}
	New(buf).SearchResults(&query.Result{Total: 4, Offset: 10})
	assert.Equal(t, "4 results for everything, none at offset 10\n", buf.String())
}

func TestWriter_Record(t *testing.T) {
	buf := &bytes.Buffer{}
	rec := &store.FileRecord{
		Path:     "/photos/a.jpg",
		Size:     1024,
		ModTime:  time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
		Columns:  store.Columns{Make: "Canon", ISO: "400"},
		Overflow: map[string]string{"XMP:Label": "Red"},
	}

	require.NoError(t, New(buf).Record(rec))

	out := buf.String()
	assert.Contains(t, out, "/photos/a.jpg")
	assert.Contains(t, out, "2024-01-02 03:04:05")
	// keys sorted: XMP:Label (uppercase) before iso before make
	xmp := strings.Index(out, "XMP:Label")
	iso := strings.Index(out, "iso")
	mk := strings.Index(out, "make")
	assert.True(t, xmp < iso && iso < mk, out)
}
