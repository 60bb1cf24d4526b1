// Package extract reads raw metadata from image files.
//
// The primary extractor shells out to exiftool once per file. An in-process
// reader built on goexif serves as a fallback when exiftool is missing or
// keeps failing. Both return flat "Group:Tag" keys so the normalizer sees a
// single shape.
package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/exif-turbo/exifturbo/internal/errors"
)

// Metadata maps "Group:Tag" (or a bare "Tag") to its text value.
type Metadata map[string]string

// Extractor returns the raw metadata of one file. Per-file failures are
// *errors.ExtractionError values; a cancelled ctx yields ctx.Err().
type Extractor interface {
	Extract(ctx context.Context, path string) (Metadata, error)
	Name() string
}

// statFile maps stat failures to KindNotFound and rejects directories.
func statFile(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return errors.NewExtractionError(errors.KindNotFound, path, err)
	}
	if !info.Mode().IsRegular() {
		return errors.NewExtractionError(errors.KindUnsupportedFormat, path, fmt.Errorf("not a regular file"))
	}
	return nil
}

// flatten turns one exiftool -g1 object into Group:Tag pairs.
func flatten(obj map[string]json.RawMessage) Metadata {
	md := make(Metadata, len(obj)*4)
	for key, raw := range obj {
		if key == "SourceFile" {
			continue
		}
		var group map[string]json.RawMessage
		if err := json.Unmarshal(raw, &group); err == nil {
			for tag, v := range group {
				if s, ok := scalar(v); ok {
					md[key+":"+tag] = s
				}
			}
			continue
		}
		if s, ok := scalar(raw); ok {
			md[key] = s
		}
	}
	return md
}

// scalar renders a JSON value as text. Arrays are joined with ", ";
// nested objects keep their compact JSON form.
func scalar(raw json.RawMessage) (string, bool) {
	var v any
	dec := json.NewDecoder(strings.NewReader(string(raw)))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		return "", false
	}
	return render(v, raw)
}

func render(v any, raw json.RawMessage) (string, bool) {
	switch t := v.(type) {
	case nil:
		return "", false
	case string:
		return t, true
	case json.Number:
		return t.String(), true
	case bool:
		if t {
			return "true", true
		}
		return "false", true
	case []any:
		parts := make([]string, 0, len(t))
		for _, item := range t {
			if s, ok := render(item, nil); ok {
				parts = append(parts, s)
			}
		}
		if len(parts) == 0 {
			return "", false
		}
		return strings.Join(parts, ", "), true
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return string(raw), len(raw) > 0
		}
		return string(b), true
	}
}

// Keys returns the metadata keys in sorted order.
func (m Metadata) Keys() []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
