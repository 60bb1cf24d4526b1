// Package normalize maps raw extractor output onto the fixed column schema.
//
// Raw keys are "Group:Tag" as produced by exiftool -g1 (or a bare "Tag").
// For each column a fixed table lists the accepted tag names in order of
// preference; when several keys compete, the preferred tag name wins, then
// the group rank (Composite, EXIF, XMP, IPTC, others), then the key itself.
// Only the winning key is consumed. Every other non-empty key ends up in the
// overflow map, so nothing is dropped.
package normalize

import (
	stderrors "errors"
	"fmt"
	"slices"
	"strings"

	"github.com/exif-turbo/exifturbo/internal/errors"
	"github.com/exif-turbo/exifturbo/internal/store"
)

type entry struct {
	key   string
	group string
	base  string
	value string
}

func groupRank(group string) int {
	g := strings.ToLower(group)
	switch {
	case g == "composite":
		return 0
	case g == "exif" || g == "exififd" || strings.HasPrefix(g, "ifd") || g == "subifd" || g == "gps" || g == "interopifd":
		return 1
	case strings.HasPrefix(g, "xmp"):
		return 2
	case strings.HasPrefix(g, "iptc"):
		return 3
	case g == "":
		return 4
	default:
		return 5
	}
}

// Normalize builds a record for path from raw metadata. The record is always
// usable: when a value cannot be coerced the text is kept and a
// *errors.NormalizationError is returned alongside it (joined if several).
// Size, mtime and fingerprint are left for the caller.
func Normalize(path string, raw map[string]string) (rec *store.FileRecord, err error) {
	defer func() {
		if p := recover(); p != nil {
			rec = overflowOnly(path, raw)
			err = errors.NewNormalizationError(path, "", fmt.Errorf("mapping panicked: %v", p))
		}
	}()

	entries := collect(raw)
	consumed := make(map[string]bool)
	rec = &store.FileRecord{Path: path}

	var warnings []error
	for _, r := range rules {
		best := pick(entries, consumed, r.tags)
		if best == nil {
			continue
		}
		consumed[best.key] = true
		if cerr := r.apply(&rec.Columns, best.value); cerr != nil {
			warnings = append(warnings, errors.NewNormalizationError(path, r.column, cerr))
		}
	}

	if gerr := applyGPS(&rec.Columns, entries, consumed); gerr != nil {
		warnings = append(warnings, errors.NewNormalizationError(path, "gps", gerr))
	}

	for _, e := range entries {
		if consumed[e.key] {
			continue
		}
		if rec.Overflow == nil {
			rec.Overflow = make(map[string]string)
		}
		rec.Overflow[e.key] = e.value
	}

	return rec, stderrors.Join(warnings...)
}

// collect cleans raw values and drops empty ones. Entries are sorted by key
// so every later choice is deterministic.
func collect(raw map[string]string) []entry {
	entries := make([]entry, 0, len(raw))
	for k, v := range raw {
		v = clean(v)
		k = strings.TrimSpace(strings.ToValidUTF8(k, "�"))
		if v == "" || k == "" {
			continue
		}
		e := entry{key: k, base: k, value: v}
		if i := strings.LastIndexByte(k, ':'); i >= 0 {
			e.group, e.base = k[:i], k[i+1:]
		}
		entries = append(entries, e)
	}
	slices.SortFunc(entries, func(a, b entry) int { return strings.Compare(a.key, b.key) })
	return entries
}

func clean(v string) string {
	return strings.TrimSpace(strings.ToValidUTF8(v, "�"))
}

// pick returns the best unconsumed entry whose base name is one of tags.
func pick(entries []entry, consumed map[string]bool, tags []string) *entry {
	var (
		best     *entry
		bestPref int
		bestRank int
	)
	for i := range entries {
		e := &entries[i]
		if consumed[e.key] {
			continue
		}
		pref := slices.IndexFunc(tags, func(t string) bool { return strings.EqualFold(t, e.base) })
		if pref < 0 {
			continue
		}
		rank := groupRank(e.group)
		if best == nil || pref < bestPref || (pref == bestPref && rank < bestRank) {
			best, bestPref, bestRank = e, pref, rank
		}
	}
	return best
}

// overflowOnly keeps every usable raw value as overflow so the file stays
// searchable by path and by tag text.
func overflowOnly(path string, raw map[string]string) *store.FileRecord {
	rec := &store.FileRecord{Path: path}
	for k, v := range raw {
		k = strings.TrimSpace(strings.ToValidUTF8(k, "�"))
		if v = clean(v); v != "" && k != "" {
			if rec.Overflow == nil {
				rec.Overflow = make(map[string]string)
			}
			rec.Overflow[k] = v
		}
	}
	return rec
}
