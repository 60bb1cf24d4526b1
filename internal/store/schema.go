package store

import (
	"slices"
	"sort"
	"strings"
)

// Column is one searchable stream of the full-text index.
type Column struct {
	// Name is the canonical, lowercase column name used in "name:term".
	Name    string
	Aliases []string

	// Hidden columns are used internally and cannot be named in queries.
	Hidden bool

	// sortExpr is the SQL expression ordering by this column, if sortable.
	sortExpr string

	tokens func(r *FileRecord) []string
}

// Sortable reports whether results can be ordered by this column.
func (c Column) Sortable() bool { return c.sortExpr != "" }

func textColumn(name string, get func(c *Columns) string, aliases ...string) Column {
	return Column{
		Name:    name,
		Aliases: aliases,
		tokens:  func(r *FileRecord) []string { return Tokenize(get(&r.Columns)) },
	}
}

func sortable(c Column, expr string) Column {
	c.sortExpr = expr
	return c
}

// columns is the FTS5 column order. Changing it requires a schema version bump.
var columns = []Column{
	sortable(Column{Name: "path", Aliases: []string{"file", "folder"}, tokens: func(r *FileRecord) []string { return PathTokens(r.Path) }}, "path"),
	sortable(Column{Name: "filename", Aliases: []string{"name"}, tokens: func(r *FileRecord) []string { return Tokenize(r.Filename()) }}, "filename"),
	{Name: "extension", Hidden: true, tokens: func(r *FileRecord) []string { return ExtensionTokens(r.Path) }},
	sortable(textColumn("camera", func(c *Columns) string { return c.Camera() }, "cam"), "camera"),
	sortable(textColumn("make", func(c *Columns) string { return c.Make }, "manufacturer"), "make"),
	sortable(textColumn("model", func(c *Columns) string { return c.Model }), "model"),
	sortable(textColumn("lens", func(c *Columns) string { return c.Lens }), "lens"),
	sortable(textColumn("date", func(c *Columns) string { return c.Date }, "taken", "datetime"), "COALESCE(taken_at, date)"),
	textColumn("gps", func(c *Columns) string { return c.GPS }, "location"),
	sortable(textColumn("iso", func(c *Columns) string { return c.ISO }), "iso_value"),
	sortable(textColumn("aperture", func(c *Columns) string { return c.Aperture }, "fnumber"), "aperture_value"),
	sortable(textColumn("exposure", func(c *Columns) string { return c.Exposure }, "shutter"), "exposure_value"),
	sortable(textColumn("focal", func(c *Columns) string { return c.Focal }, "focallength"), "focal_value"),
	sortable(textColumn("width", func(c *Columns) string { return c.Width }), "width_value"),
	sortable(textColumn("height", func(c *Columns) string { return c.Height }), "height_value"),
	textColumn("orientation", func(c *Columns) string { return c.Orientation }),
	textColumn("software", func(c *Columns) string { return c.Software }),
	textColumn("artist", func(c *Columns) string { return c.Artist }, "author", "creator"),
	textColumn("copyright", func(c *Columns) string { return c.Copyright }),
	sortable(textColumn("title", func(c *Columns) string { return c.Title }), "title"),
	textColumn("description", func(c *Columns) string { return c.Description }, "caption"),
	textColumn("keywords", func(c *Columns) string { return c.Keywords }, "keyword", "subject"),
	sortable(textColumn("rating", func(c *Columns) string { return c.Rating }), "rating_value"),
	{Name: "tags", Aliases: []string{"tag", "meta"}, tokens: overflowTokens},
}

var columnIndex = func() map[string]int {
	m := make(map[string]int)
	for i, c := range columns {
		m[c.Name] = i
		for _, a := range c.Aliases {
			m[a] = i
		}
	}
	return m
}()

// Extra sort keys that are not FTS columns.
var extraSorts = map[string]string{
	"size":  "size",
	"mtime": "mtime_ns",
}

// LookupColumn resolves a query column name case-insensitively, including
// aliases. Hidden columns are never returned.
func LookupColumn(name string) (Column, bool) {
	i, ok := columnIndex[strings.ToLower(name)]
	if !ok || columns[i].Hidden {
		return Column{}, false
	}
	return columns[i], true
}

// ColumnNames returns the queryable column names in index order.
func ColumnNames() []string {
	names := make([]string, 0, len(columns))
	for _, c := range columns {
		if !c.Hidden {
			names = append(names, c.Name)
		}
	}
	return names
}

// SortKeys returns every name accepted by Store.Order.
func SortKeys() []string {
	var keys []string
	for _, c := range columns {
		if c.Sortable() {
			keys = append(keys, c.Name)
		}
	}
	for k := range extraSorts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortExpr(key string) (string, bool) {
	if expr, ok := extraSorts[strings.ToLower(key)]; ok {
		return expr, true
	}
	c, ok := LookupColumn(key)
	if !ok || !c.Sortable() {
		return "", false
	}
	return c.sortExpr, true
}

// ExtensionColumn is the hidden stream holding each file's extension.
const ExtensionColumn = "extension"

// Entry is the full-text projection of a FileRecord: one token stream per
// column, aligned with the FTS5 table's columns.
type Entry struct {
	Streams [][]string
}

// NewEntry tokenizes every column of r.
func NewEntry(r *FileRecord) Entry {
	e := Entry{Streams: make([][]string, len(columns))}
	for i, c := range columns {
		e.Streams[i] = c.tokens(r)
	}
	return e
}

// Tokens returns the stream for a column name, or nil.
func (e Entry) Tokens(column string) []string {
	i, ok := columnIndex[column]
	if !ok {
		return nil
	}
	return e.Streams[i]
}

// ColumnStreams yields visible column names with their tokens, skipping
// empty streams.
func (e Entry) ColumnStreams() map[string][]string {
	out := make(map[string][]string)
	for i, c := range columns {
		if c.Hidden || len(e.Streams[i]) == 0 {
			continue
		}
		out[c.Name] = e.Streams[i]
	}
	return out
}

func overflowTokens(r *FileRecord) []string {
	keys := make([]string, 0, len(r.Overflow))
	for k := range r.Overflow {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	var tokens []string
	for _, k := range keys {
		tokens = append(tokens, Tokenize(k)...)
		tokens = append(tokens, Tokenize(r.Overflow[k])...)
	}
	return tokens
}
