package mcp

import (
	"time"

	"github.com/exif-turbo/exifturbo/internal/store"
)

// SearchPhotosInput defines the input schema for the search_photos tool.
type SearchPhotosInput struct {
	Query  string `json:"query" jsonschema:"structured query, e.g. make:canon \"golden hour\" NOT *.png; empty lists everything"`
	Limit  int    `json:"limit,omitempty" jsonschema:"maximum number of results, default 10, at most 50"`
	Offset int    `json:"offset,omitempty" jsonschema:"number of results to skip"`
	Sort   string `json:"sort,omitempty" jsonschema:"relevance (default), path, date, iso, aperture, focal, size, mtime and other sortable columns"`
	Desc   bool   `json:"desc,omitempty" jsonschema:"sort descending"`
}

// SearchPhotosOutput defines the output schema for the search_photos tool.
type SearchPhotosOutput struct {
	Query   string        `json:"query"`
	Total   int           `json:"total" jsonschema:"number of matching photos before paging"`
	Offset  int           `json:"offset"`
	Results []PhotoResult `json:"results"`
}

// PhotoResult is one search hit trimmed for agents.
type PhotoResult struct {
	ID             int64    `json:"id"`
	Path           string   `json:"path"`
	MimeType       string   `json:"mime_type"`
	Score          float64  `json:"score"`
	MatchedColumns []string `json:"matched_columns,omitempty" jsonschema:"columns that contributed to the match"`
	Camera         string   `json:"camera,omitempty"`
	Lens           string   `json:"lens,omitempty"`
	Date           string   `json:"date,omitempty"`
	Title          string   `json:"title,omitempty"`
	Keywords       string   `json:"keywords,omitempty"`
}

// GetRecordInput defines the input schema for the get_record tool. One of
// ID and Path is required.
type GetRecordInput struct {
	ID   int64  `json:"id,omitempty" jsonschema:"record id from search_photos"`
	Path string `json:"path,omitempty" jsonschema:"absolute file path"`
}

// GetRecordOutput returns a full record including overflow tags.
type GetRecordOutput struct {
	MimeType string            `json:"mime_type"`
	Record   *store.FileRecord `json:"record"`
}

// IndexStatusInput defines the input schema for the index_status tool (no parameters).
type IndexStatusInput struct{}

// IndexStatusOutput defines the output schema for the index_status tool.
type IndexStatusOutput struct {
	DBPath      string   `json:"db_path"`
	Files       int      `json:"files"`
	Tags        int      `json:"tags"`
	SizeBytes   int64    `json:"size_bytes"`
	LastIndexed string   `json:"last_indexed,omitempty"`
	Columns     []string `json:"columns" jsonschema:"column names usable as column:term"`
	SortKeys    []string `json:"sort_keys"`
	LastRun     *RunInfo `json:"last_run,omitempty" jsonschema:"most recent index run of this process"`
}

// RunInfo summarizes an index run.
type RunInfo struct {
	Folders    []string `json:"folders"`
	Indexed    int      `json:"indexed"`
	Unchanged  int      `json:"unchanged"`
	Deleted    int      `json:"deleted"`
	Errors     int      `json:"errors"`
	Warnings   int      `json:"warnings"`
	Cancelled  bool     `json:"cancelled"`
	StartedAt  string   `json:"started_at"`
	DurationMS int64    `json:"duration_ms"`
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
