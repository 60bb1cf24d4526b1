// Package scanner walks photo folders and streams the image files it finds.
// It honors the configured extensions, exclusion globs, hidden-file policy
// and .nomedia marker files.
package scanner

import (
	"strings"
	"time"
)

// FileInfo contains what the walk observed about one file.
type FileInfo struct {
	Path    string    // Absolute, cleaned path; the record key
	Root    string    // Absolute folder the walk started from
	RelPath string    // Slash-separated path relative to Root
	Size    int64     // File size in bytes
	ModTime time.Time // Last modification time
}

// ScanOptions configures the scanner behavior.
type ScanOptions struct {
	// Extensions lists accepted extensions with the leading dot, compared
	// case-insensitively. Empty accepts every regular file.
	Extensions []string

	// ExcludePatterns are globs over RelPath (see matchDirPattern).
	ExcludePatterns []string

	// IncludeHidden also walks dot-files and dot-directories.
	IncludeHidden bool

	// FollowSymlinks indexes symlinked files (directories are never followed).
	FollowSymlinks bool

	// MarkerFile skips any directory that contains a file with this name.
	// Empty means DefaultMarkerFile; "-" disables markers.
	MarkerFile string
}

// ScanResult is returned from the scanner channel. A result with Error set
// means part of Root could not be read, so the walk of Root is incomplete.
type ScanResult struct {
	File  *FileInfo
	Root  string
	Error error
}

// DefaultMarkerFile is the Android convention for "no media here".
const DefaultMarkerFile = ".nomedia"

// IsMarker reports whether name is the configured marker file.
func (o *ScanOptions) IsMarker(name string) bool {
	m := o.marker()
	return m != "" && name == m
}

func (o *ScanOptions) marker() string {
	switch o.MarkerFile {
	case "":
		return DefaultMarkerFile
	case "-":
		return ""
	default:
		return o.MarkerFile
	}
}

// extensionSet lowercases the configured extensions. Nil accepts all.
func extensionSet(exts []string) map[string]bool {
	if len(exts) == 0 {
		return nil
	}
	set := make(map[string]bool, len(exts))
	for _, e := range exts {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" {
			continue
		}
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		set[e] = true
	}
	return set
}

// extension returns the lowercased file extension (including the dot).
func extension(name string) string {
	for i := len(name) - 1; i >= 0; i-- {
		if name[i] == '.' {
			return strings.ToLower(name[i:])
		}
		if name[i] == '/' || name[i] == '\\' {
			break
		}
	}
	return ""
}

func isHidden(name string) bool {
	return len(name) > 1 && name[0] == '.'
}
