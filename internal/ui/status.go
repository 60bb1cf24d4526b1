package ui

import (
	"encoding/json"
	"fmt"
	"io"
	"time"
)

// StatusInfo describes an index for the status command.
type StatusInfo struct {
	DBPath      string    `json:"db_path"`
	Files       int       `json:"files"`
	Tags        int       `json:"tags"`
	MediaBytes  int64     `json:"media_bytes"`
	DBBytes     int64     `json:"db_bytes"`
	LastIndexed time.Time `json:"last_indexed"`

	Extractor       string `json:"extractor"`
	ExtractorStatus string `json:"extractor_status"` // "ready", "fallback", "error"
	ExtractorDetail string `json:"extractor_detail,omitempty"`
}

// StatusRenderer prints StatusInfo.
type StatusRenderer struct {
	out    io.Writer
	styles Styles
}

// NewStatusRenderer creates a status renderer.
func NewStatusRenderer(out io.Writer, noColor bool) *StatusRenderer {
	return &StatusRenderer{out: out, styles: GetStyles(noColor)}
}

// Render writes info as aligned text.
func (r *StatusRenderer) Render(info StatusInfo) error {
	_, _ = fmt.Fprintf(r.out, "%s\n\n", r.styles.Header.Render("Index: "+info.DBPath))

	_, _ = fmt.Fprintf(r.out, "  Files:        %d\n", info.Files)
	_, _ = fmt.Fprintf(r.out, "  Tags:         %d\n", info.Tags)
	_, _ = fmt.Fprintf(r.out, "  Media size:   %s\n", FormatBytes(info.MediaBytes))
	_, _ = fmt.Fprintf(r.out, "  Index size:   %s\n", FormatBytes(info.DBBytes))
	if info.LastIndexed.IsZero() {
		_, _ = fmt.Fprintf(r.out, "  Last indexed: %s\n", r.styles.Warning.Render("never"))
	} else {
		_, _ = fmt.Fprintf(r.out, "  Last indexed: %s\n", formatTime(info.LastIndexed))
	}
	_, _ = fmt.Fprintln(r.out)

	if info.Extractor != "" {
		_, _ = fmt.Fprintf(r.out, "  Extractor: %s (%s)\n", info.Extractor, r.renderStatus(info.ExtractorStatus))
		if info.ExtractorDetail != "" {
			_, _ = fmt.Fprintf(r.out, "    %s\n", r.styles.Label.Render(info.ExtractorDetail))
		}
	}
	return nil
}

// RenderJSON writes info as indented JSON.
func (r *StatusRenderer) RenderJSON(info StatusInfo) error {
	enc := json.NewEncoder(r.out)
	enc.SetIndent("", "  ")
	return enc.Encode(info)
}

func (r *StatusRenderer) renderStatus(status string) string {
	switch status {
	case "ready":
		return r.styles.Success.Render(status)
	case "fallback":
		return r.styles.Warning.Render(status)
	case "error":
		return r.styles.Error.Render(status)
	default:
		return status
	}
}

func formatTime(t time.Time) string {
	diff := time.Since(t)
	switch {
	case diff < time.Minute:
		return "just now"
	case diff < time.Hour:
		return plural(int(diff.Minutes()), "minute") + " ago"
	case diff < 24*time.Hour:
		return plural(int(diff.Hours()), "hour") + " ago"
	case diff < 7*24*time.Hour:
		return plural(int(diff.Hours()/24), "day") + " ago"
	default:
		return t.Local().Format("2006-01-02 15:04")
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return "1 " + unit
	}
	return fmt.Sprintf("%d %ss", n, unit)
}

// FormatBytes formats a byte count for humans.
func FormatBytes(bytes int64) string {
	const (
		KB = 1024
		MB = 1024 * KB
		GB = 1024 * MB
		TB = 1024 * GB
	)
	switch {
	case bytes >= TB:
		return fmt.Sprintf("%.1f TB", float64(bytes)/float64(TB))
	case bytes >= GB:
		return fmt.Sprintf("%.1f GB", float64(bytes)/float64(GB))
	case bytes >= MB:
		return fmt.Sprintf("%.1f MB", float64(bytes)/float64(MB))
	case bytes >= KB:
		return fmt.Sprintf("%.1f KB", float64(bytes)/float64(KB))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
