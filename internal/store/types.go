// Package store persists normalized photo metadata in a single SQLite file:
// a typed files table, an overflow tags table and an FTS5 index over both.
package store

import (
	"path/filepath"
	"strings"
	"time"
)

// FileRecord is one indexed file. Path is the identity: re-indexing a path
// replaces the whole record, including its overflow tags.
type FileRecord struct {
	// ID is assigned by the store and stays stable across re-indexes.
	ID int64 `json:"id"`

	Path    string    `json:"path"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"mtime"`

	// Fingerprint is the hex SHA-256 of the content, set only under the
	// hash change policy.
	Fingerprint string    `json:"fingerprint,omitempty"`
	IndexedAt   time.Time `json:"indexed_at"`

	Columns  Columns           `json:"columns"`
	Overflow map[string]string `json:"overflow,omitempty"`
}

// Filename returns the base name of the record's path.
func (r *FileRecord) Filename() string {
	return filepath.Base(r.Path)
}

// Columns holds the fixed schema. Every field is optional; an empty string
// means the file had no usable value.
type Columns struct {
	Make        string `json:"make,omitempty"`
	Model       string `json:"model,omitempty"`
	Lens        string `json:"lens,omitempty"`
	Date        string `json:"date,omitempty"`
	GPS         string `json:"gps,omitempty"`
	ISO         string `json:"iso,omitempty"`
	Aperture    string `json:"aperture,omitempty"`
	Exposure    string `json:"exposure,omitempty"`
	Focal       string `json:"focal,omitempty"`
	Width       string `json:"width,omitempty"`
	Height      string `json:"height,omitempty"`
	Orientation string `json:"orientation,omitempty"`
	Software    string `json:"software,omitempty"`
	Artist      string `json:"artist,omitempty"`
	Copyright   string `json:"copyright,omitempty"`
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	Keywords    string `json:"keywords,omitempty"`
	Rating      string `json:"rating,omitempty"`

	Typed Typed `json:"typed"`
}

// Typed carries parsed values of numeric and date columns for sorting and
// range filtering. The text form in Columns is what gets indexed.
type Typed struct {
	TakenAt   *time.Time `json:"taken_at,omitempty"`
	Latitude  *float64   `json:"latitude,omitempty"`
	Longitude *float64   `json:"longitude,omitempty"`
	ISO       *int64     `json:"iso,omitempty"`
	Aperture  *float64   `json:"aperture,omitempty"`
	Exposure  *float64   `json:"exposure,omitempty"`
	Focal     *float64   `json:"focal,omitempty"`
	Width     *int64     `json:"width,omitempty"`
	Height    *int64     `json:"height,omitempty"`
	Rating    *int64     `json:"rating,omitempty"`
}

// Camera is make and model joined, with the make dropped when the model
// already starts with it ("Canon" + "Canon EOS R5").
func (c *Columns) Camera() string {
	switch {
	case c.Make == "":
		return c.Model
	case c.Model == "":
		return c.Make
	case len(c.Model) >= len(c.Make) && strings.EqualFold(c.Model[:len(c.Make)], c.Make):
		return c.Model
	default:
		return c.Make + " " + c.Model
	}
}

// Signature is the stored change-detection state of a path.
type Signature struct {
	ID          int64
	Size        int64
	ModTime     time.Time
	Fingerprint string
}

// Stats summarizes the store.
type Stats struct {
	Files int `json:"files"`
	Tags  int `json:"tags"`
	// MediaBytes is the total size of the indexed files.
	MediaBytes int64 `json:"media_bytes"`
	// SizeBytes is the on-disk size of the index itself.
	SizeBytes   int64     `json:"size_bytes"`
	LastIndexed time.Time `json:"last_indexed,omitempty"`
}
