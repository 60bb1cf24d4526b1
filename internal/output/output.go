// Package output renders command results for the terminal.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/exif-turbo/exifturbo/internal/query"
	"github.com/exif-turbo/exifturbo/internal/store"
)

// Writer provides formatted output for CLI.
type Writer struct {
	out io.Writer
}

// New creates a new output Writer.
func New(out io.Writer) *Writer {
	return &Writer{out: out}
}

// Status prints a status message with an icon.
// Errors from writing are intentionally ignored for console output.
func (w *Writer) Status(icon, msg string) {
	if icon != "" {
		_, _ = fmt.Fprintf(w.out, "%s %s\n", icon, msg)
	} else {
		_, _ = fmt.Fprintf(w.out, "   %s\n", msg)
	}
}

// Statusf prints a formatted status message with an icon.
func (w *Writer) Statusf(icon, format string, args ...any) {
	w.Status(icon, fmt.Sprintf(format, args...))
}

// Success prints a success message with checkmark.
func (w *Writer) Success(msg string) {
	w.Status("✅", msg)
}

// Successf prints a formatted success message.
func (w *Writer) Successf(format string, args ...any) {
	w.Success(fmt.Sprintf(format, args...))
}

// Warning prints a warning message.
func (w *Writer) Warning(msg string) {
	w.Status("⚠️ ", msg)
}

// Warningf prints a formatted warning message.
func (w *Writer) Warningf(format string, args ...any) {
	w.Warning(fmt.Sprintf(format, args...))
}

// Error prints an error message.
func (w *Writer) Error(msg string) {
	w.Status("❌", msg)
}

// Errorf prints a formatted error message.
func (w *Writer) Errorf(format string, args ...any) {
	w.Error(fmt.Sprintf(format, args...))
}

// Newline prints an empty line.
func (w *Writer) Newline() {
	_, _ = fmt.Fprintln(w.out)
}

// JSON writes v as indented JSON.
func (w *Writer) JSON(v any) error {
	enc := json.NewEncoder(w.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// SearchResults prints one page of hits, one path per line with a short
// description underneath.
func (w *Writer) SearchResults(res *query.Result) {
	if res.Total == 0 {
		_, _ = fmt.Fprintf(w.out, "No photos match %q\n", res.Query)
		return
	}

	label := "everything"
	if strings.TrimSpace(res.Query) != "" {
		label = fmt.Sprintf("%q", res.Query)
	}
	if len(res.Hits) == 0 {
		_, _ = fmt.Fprintf(w.out, "%d results for %s, none at offset %d\n", res.Total, label, res.Offset)
		return
	}
	_, _ = fmt.Fprintf(w.out, "%d results for %s (showing %d-%d, %s)\n\n",
		res.Total, label, res.Offset+1, res.Offset+len(res.Hits), res.Took.Round(time.Microsecond))

	for _, h := range res.Hits {
		_, _ = fmt.Fprintln(w.out, h.Path)
		if line := describe(h); line != "" {
			_, _ = fmt.Fprintf(w.out, "    %s\n", line)
		}
	}

	if rest := res.Total - res.Offset - len(res.Hits); rest > 0 {
		_, _ = fmt.Fprintf(w.out, "\n%d more, use --offset %d\n", rest, res.Offset+len(res.Hits))
	}
}

func describe(h query.Hit) string {
	var parts []string
	if h.Record != nil {
		c := &h.Record.Columns
		for _, v := range []string{c.Camera(), c.Lens, c.Date, c.Title} {
			if v != "" {
				parts = append(parts, v)
			}
		}
	}
	if len(h.MatchedColumns) > 0 {
		parts = append(parts, "matched: "+strings.Join(h.MatchedColumns, ", "))
	}
	return strings.Join(parts, " | ")
}

// Record prints every non-empty column and overflow tag of rec as an
// aligned two-column list. Overflow tags are sorted by name.
func (w *Writer) Record(rec *store.FileRecord) error {
	tw := tabwriter.NewWriter(w.out, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintf(tw, "path\t%s\n", rec.Path)
	_, _ = fmt.Fprintf(tw, "size\t%d\n", rec.Size)
	_, _ = fmt.Fprintf(tw, "mtime\t%s\n", rec.ModTime.Format("2006-01-02 15:04:05"))

	md := rec.Metadata()
	keys := make([]string, 0, len(md))
	for k := range md {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		_, _ = fmt.Fprintf(tw, "%s\t%s\n", k, md[k])
	}
	return tw.Flush()
}
