package store

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"slices"
)

// ExportRecord is one element of the JSON export.
type ExportRecord struct {
	Path     string            `json:"path"`
	Filename string            `json:"filename"`
	MTime    float64           `json:"mtime"`
	Size     int64             `json:"size"`
	Metadata map[string]string `json:"metadata"`
}

// Metadata flattens the record into one map: the non-empty schema columns
// under their column names plus every overflow tag.
func (r *FileRecord) Metadata() map[string]string {
	m := make(map[string]string, len(r.Overflow)+8)
	for k, v := range r.Overflow {
		m[k] = v
	}
	c := &r.Columns
	for name, v := range map[string]string{
		"make": c.Make, "model": c.Model, "lens": c.Lens, "date": c.Date, "gps": c.GPS,
		"iso": c.ISO, "aperture": c.Aperture, "exposure": c.Exposure, "focal": c.Focal,
		"width": c.Width, "height": c.Height, "orientation": c.Orientation,
		"software": c.Software, "artist": c.Artist, "copyright": c.Copyright,
		"title": c.Title, "description": c.Description, "keywords": c.Keywords, "rating": c.Rating,
	} {
		if v != "" {
			m[name] = v
		}
	}
	return m
}

// Export writes every record as an indented JSON array ordered by path,
// reading one snapshot in chunks. It returns the number of records written.
func (s *Store) Export(ctx context.Context, w io.Writer) (int, error) {
	bw := bufio.NewWriter(w)
	n := 0

	err := s.View(ctx, func(v *View) error {
		ids, err := v.AllIDs(ctx)
		if err != nil {
			return err
		}
		ids, err = v.Order(ctx, ids, "path", false)
		if err != nil {
			return err
		}

		if _, err := bw.WriteString("["); err != nil {
			return err
		}
		for chunk := range slices.Chunk(ids, inChunk) {
			if err := ctx.Err(); err != nil {
				return err
			}
			recs, err := v.Records(ctx, chunk)
			if err != nil {
				return err
			}
			for _, r := range recs {
				data, err := json.MarshalIndent(ExportRecord{
					Path:     r.Path,
					Filename: r.Filename(),
					MTime:    float64(r.ModTime.UnixNano()) / 1e9,
					Size:     r.Size,
					Metadata: r.Metadata(),
				}, "  ", "  ")
				if err != nil {
					return fmt.Errorf("failed to encode %s: %w", r.Path, err)
				}
				sep := ",\n  "
				if n == 0 {
					sep = "\n  "
				}
				if _, err := bw.WriteString(sep); err != nil {
					return err
				}
				if _, err := bw.Write(data); err != nil {
					return err
				}
				n++
			}
		}
		if n > 0 {
			_, err = bw.WriteString("\n]\n")
		} else {
			_, err = bw.WriteString("]\n")
		}
		return err
	})
	if err != nil {
		return n, err
	}
	return n, bw.Flush()
}
