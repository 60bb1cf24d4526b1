package mcp

import (
	"fmt"
	"strings"

	"github.com/exif-turbo/exifturbo/internal/query"
)

// FormatSearchResults renders a result page as markdown for clients that
// show tool text rather than structured output.
func FormatSearchResults(res *query.Result) string {
	if res == nil || res.Total == 0 {
		q := ""
		if res != nil {
			q = res.Query
		}
		return fmt.Sprintf("No photos found for \"%s\"", q)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "## Photos matching \"%s\"\n\n", res.Query)
	fmt.Fprintf(&sb, "Showing %d-%d of %d\n\n", res.Offset+1, res.Offset+len(res.Hits), res.Total)

	for i, h := range res.Hits {
		fmt.Fprintf(&sb, "%d. `%s`", res.Offset+i+1, h.Path)
		if h.Record != nil {
			var parts []string
			c := &h.Record.Columns
			if cam := c.Camera(); cam != "" {
				parts = append(parts, cam)
			}
			if c.Lens != "" {
				parts = append(parts, c.Lens)
			}
			if c.Date != "" {
				parts = append(parts, c.Date)
			}
			if len(parts) > 0 {
				fmt.Fprintf(&sb, " - %s", strings.Join(parts, ", "))
			}
		}
		if len(h.MatchedColumns) > 0 {
			fmt.Fprintf(&sb, " (matched: %s)", strings.Join(h.MatchedColumns, ", "))
		}
		sb.WriteString("\n")
	}

	if rest := res.Total - res.Offset - len(res.Hits); rest > 0 {
		fmt.Fprintf(&sb, "\n%d more; pass offset=%d for the next page.\n", rest, res.Offset+len(res.Hits))
	}
	return sb.String()
}

func toPhotoResult(h query.Hit) PhotoResult {
	r := PhotoResult{
		ID:             h.ID,
		Path:           h.Path,
		MimeType:       MimeTypeForPath(h.Path),
		Score:          h.Score,
		MatchedColumns: h.MatchedColumns,
	}
	if h.Record != nil {
		c := &h.Record.Columns
		r.Camera = c.Camera()
		r.Lens = c.Lens
		r.Date = c.Date
		r.Title = c.Title
		r.Keywords = c.Keywords
	}
	return r
}
