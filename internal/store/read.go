package store

import (
	"cmp"
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/exif-turbo/exifturbo/internal/errors"
)

// inChunk bounds the number of bound parameters per IN (...) query.
const inChunk = 500

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// View reads one consistent committed snapshot of the store.
type View struct {
	q querier
}

// View runs fn inside a read transaction. Every read fn makes sees the same
// committed state, even if a writer commits meanwhile.
func (s *Store) View(ctx context.Context, fn func(v *View) error) error {
	if s.closed.Load() {
		return errors.ErrStoreClosed
	}
	tx, err := s.rdb.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin read transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()
	return fn(&View{q: tx})
}

// Leaf is a single full-text lookup: a token sequence that must appear
// contiguously in one column. An empty Column searches every column.
type Leaf struct {
	Column string
	Tokens []string
	// Prefix makes the last token match any token it starts.
	Prefix bool
}

// Expr renders the leaf as an FTS5 MATCH expression. Tokens come from
// Tokenize and never contain quotes.
func (l Leaf) Expr() string {
	expr := `"` + strings.Join(l.Tokens, " ") + `"`
	if l.Prefix {
		expr += " *"
	}
	if l.Column != "" {
		expr = l.Column + " : " + expr
	}
	return expr
}

// Match returns the ids of documents matching leaf with their BM25 score,
// negated so that higher is better.
func (v *View) Match(ctx context.Context, leaf Leaf) (map[int64]float64, error) {
	if len(leaf.Tokens) == 0 {
		return map[int64]float64{}, nil
	}

	rows, err := v.q.QueryContext(ctx,
		`SELECT rowid, bm25(files_fts) FROM files_fts WHERE files_fts MATCH ?`, leaf.Expr())
	if err != nil {
		return nil, fmt.Errorf("match %s: %w", leaf.Expr(), err)
	}
	defer rows.Close()

	out := make(map[int64]float64)
	for rows.Next() {
		var id int64
		var score float64
		if err := rows.Scan(&id, &score); err != nil {
			return nil, fmt.Errorf("failed to scan match: %w", err)
		}
		out[id] = -score
	}
	return out, rows.Err()
}

// AllIDs returns every document id, the universe NOT is evaluated against.
func (v *View) AllIDs(ctx context.Context) ([]int64, error) {
	rows, err := v.q.QueryContext(ctx, `SELECT id FROM files`)
	if err != nil {
		return nil, fmt.Errorf("failed to query ids: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Count returns the number of indexed files.
func (v *View) Count(ctx context.Context) (int, error) {
	var n int
	if err := v.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM files`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count files: %w", err)
	}
	return n, nil
}

// Order sorts ids by a sort key (see SortKeys). Missing values sort last
// in either direction; ties fall back to path ascending.
func (v *View) Order(ctx context.Context, ids []int64, key string, desc bool) ([]int64, error) {
	expr, ok := sortExpr(key)
	if !ok {
		return nil, errors.ValidationError(fmt.Sprintf("cannot sort by %q", key), nil).
			WithSuggestion("Sortable keys: " + strings.Join(SortKeys(), ", "))
	}

	type keyed struct {
		id   int64
		val  any
		path string
	}
	all := make([]keyed, 0, len(ids))
	for chunk := range slices.Chunk(ids, inChunk) {
		query := fmt.Sprintf(`SELECT id, %s, path FROM files WHERE id IN (%s)`, expr, placeholders(len(chunk)))
		rows, err := v.q.QueryContext(ctx, query, int64Args(chunk)...)
		if err != nil {
			return nil, fmt.Errorf("failed to read sort keys: %w", err)
		}
		for rows.Next() {
			var k keyed
			if err := rows.Scan(&k.id, &k.val, &k.path); err != nil {
				rows.Close()
				return nil, fmt.Errorf("failed to scan sort key: %w", err)
			}
			all = append(all, k)
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, err
		}
	}

	slices.SortStableFunc(all, func(a, b keyed) int {
		an, bn := isEmpty(a.val), isEmpty(b.val)
		switch {
		case an && bn:
		case an:
			return 1
		case bn:
			return -1
		default:
			c := compareValues(a.val, b.val)
			if desc {
				c = -c
			}
			if c != 0 {
				return c
			}
		}
		return strings.Compare(a.path, b.path)
	})

	out := make([]int64, len(all))
	for i, k := range all {
		out[i] = k.id
	}
	return out, nil
}

// Paths returns the path of each id.
func (v *View) Paths(ctx context.Context, ids []int64) (map[int64]string, error) {
	out := make(map[int64]string, len(ids))
	for chunk := range slices.Chunk(ids, inChunk) {
		rows, err := v.q.QueryContext(ctx,
			fmt.Sprintf(`SELECT id, path FROM files WHERE id IN (%s)`, placeholders(len(chunk))), int64Args(chunk)...)
		if err != nil {
			return nil, fmt.Errorf("failed to read paths: %w", err)
		}
		for rows.Next() {
			var id int64
			var p string
			if err := rows.Scan(&id, &p); err != nil {
				rows.Close()
				return nil, fmt.Errorf("failed to scan path: %w", err)
			}
			out[id] = p
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Records loads full records, overflow included, in the order of ids.
// Unknown ids are skipped.
func (v *View) Records(ctx context.Context, ids []int64) ([]*FileRecord, error) {
	byID := make(map[int64]*FileRecord, len(ids))
	for chunk := range slices.Chunk(ids, inChunk) {
		args := int64Args(chunk)
		in := placeholders(len(chunk))

		rows, err := v.q.QueryContext(ctx,
			fmt.Sprintf(`SELECT id, %s FROM files WHERE id IN (%s)`, strings.Join(fileColumns, ", "), in), args...)
		if err != nil {
			return nil, fmt.Errorf("failed to read records: %w", err)
		}
		for rows.Next() {
			r, err := scanRecord(rows)
			if err != nil {
				rows.Close()
				return nil, err
			}
			byID[r.ID] = r
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, err
		}

		if err := v.loadTags(ctx, in, args, byID); err != nil {
			return nil, err
		}
	}

	out := make([]*FileRecord, 0, len(ids))
	for _, id := range ids {
		if r, ok := byID[id]; ok {
			out = append(out, r)
		}
	}
	return out, nil
}

func (v *View) loadTags(ctx context.Context, in string, args []any, byID map[int64]*FileRecord) error {
	rows, err := v.q.QueryContext(ctx,
		fmt.Sprintf(`SELECT file_id, name, value FROM tags WHERE file_id IN (%s)`, in), args...)
	if err != nil {
		return fmt.Errorf("failed to read tags: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id int64
		var name, value string
		if err := rows.Scan(&id, &name, &value); err != nil {
			return fmt.Errorf("failed to scan tag: %w", err)
		}
		r, ok := byID[id]
		if !ok {
			continue
		}
		if r.Overflow == nil {
			r.Overflow = make(map[string]string)
		}
		r.Overflow[name] = value
	}
	return rows.Err()
}

// Get returns the record with the given id, or nil if there is none.
func (v *View) Get(ctx context.Context, id int64) (*FileRecord, error) {
	recs, err := v.Records(ctx, []int64{id})
	if err != nil || len(recs) == 0 {
		return nil, err
	}
	return recs[0], nil
}

// GetByPath returns the record for path, or nil if it is not indexed.
func (v *View) GetByPath(ctx context.Context, path string) (*FileRecord, error) {
	var id int64
	err := v.q.QueryRowContext(ctx, `SELECT id FROM files WHERE path = ?`, path).Scan(&id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up %s: %w", path, err)
	}
	return v.Get(ctx, id)
}

// Signatures returns the change-detection state of every stored path
// inside folder (recursively), keyed by path.
func (v *View) Signatures(ctx context.Context, folder string) (map[string]Signature, error) {
	lo, hi := folderRange(folder)
	rows, err := v.q.QueryContext(ctx,
		`SELECT id, path, size, mtime_ns, fingerprint FROM files WHERE path >= ? AND path < ?`, lo, hi)
	if err != nil {
		return nil, fmt.Errorf("failed to read signatures: %w", err)
	}
	defer rows.Close()

	out := make(map[string]Signature)
	for rows.Next() {
		var (
			sig   Signature
			path  string
			mtime int64
		)
		if err := rows.Scan(&sig.ID, &path, &sig.Size, &mtime, &sig.Fingerprint); err != nil {
			return nil, fmt.Errorf("failed to scan signature: %w", err)
		}
		sig.ModTime = time.Unix(0, mtime)
		out[path] = sig
	}
	return out, rows.Err()
}

// Stats summarizes the snapshot.
func (v *View) Stats(ctx context.Context) (*Stats, error) {
	st := &Stats{}
	var last sql.NullInt64
	err := v.q.QueryRowContext(ctx, `SELECT COUNT(*), MAX(indexed_at), COALESCE(SUM(size), 0) FROM files`).
		Scan(&st.Files, &last, &st.MediaBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to read stats: %w", err)
	}
	if last.Valid {
		st.LastIndexed = time.Unix(0, last.Int64)
	}
	if err := v.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM tags`).Scan(&st.Tags); err != nil {
		return nil, fmt.Errorf("failed to read stats: %w", err)
	}
	return st, nil
}

// Signatures reads the stored signatures under folder.
func (s *Store) Signatures(ctx context.Context, folder string) (map[string]Signature, error) {
	var out map[string]Signature
	err := s.View(ctx, func(v *View) error {
		var err error
		out, err = v.Signatures(ctx, folder)
		return err
	})
	return out, err
}

// Stats returns store statistics including the on-disk size.
func (s *Store) Stats(ctx context.Context) (*Stats, error) {
	var st *Stats
	err := s.View(ctx, func(v *View) error {
		var err error
		st, err = v.Stats(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	for _, suffix := range []string{"", "-wal"} {
		if info, err := os.Stat(s.path + suffix); err == nil {
			st.SizeBytes += info.Size()
		}
	}
	return st, nil
}

// folderRange returns the half-open byte range [lo, hi) covering every path
// strictly inside folder.
func folderRange(folder string) (string, string) {
	clean := filepath.Clean(folder)
	sep := string(filepath.Separator)
	prefix := clean
	if !strings.HasSuffix(prefix, sep) {
		prefix += sep
	}
	return prefix, prefix[:len(prefix)-1] + string(rune(filepath.Separator+1))
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*FileRecord, error) {
	var r FileRecord
	var mtime, indexed int64
	var filename, camera string
	var takenAt, iso, width, height, rating sql.NullInt64
	var lat, lon, aperture, exposure, focal sql.NullFloat64
	c := &r.Columns
	err := row.Scan(&r.ID,
		&r.Path, &filename, &r.Size, &mtime, &r.Fingerprint, &indexed,
		&camera, &c.Make, &c.Model, &c.Lens,
		&c.Date, &takenAt, &c.GPS, &lat, &lon,
		&c.ISO, &iso, &c.Aperture, &aperture, &c.Exposure, &exposure,
		&c.Focal, &focal, &c.Width, &width, &c.Height, &height,
		&c.Orientation, &c.Software, &c.Artist, &c.Copyright, &c.Title, &c.Description, &c.Keywords,
		&c.Rating, &rating)
	if err != nil {
		return nil, fmt.Errorf("failed to scan record: %w", err)
	}

	r.ModTime = time.Unix(0, mtime)
	r.IndexedAt = time.Unix(0, indexed)

	t := &c.Typed
	if takenAt.Valid {
		ts := time.Unix(takenAt.Int64, 0).UTC()
		t.TakenAt = &ts
	}
	t.Latitude = floatPtr(lat)
	t.Longitude = floatPtr(lon)
	t.ISO = intPtr(iso)
	t.Aperture = floatPtr(aperture)
	t.Exposure = floatPtr(exposure)
	t.Focal = floatPtr(focal)
	t.Width = intPtr(width)
	t.Height = intPtr(height)
	t.Rating = intPtr(rating)
	return &r, nil
}

func floatPtr(n sql.NullFloat64) *float64 {
	if !n.Valid {
		return nil
	}
	v := n.Float64
	return &v
}

func intPtr(n sql.NullInt64) *int64 {
	if !n.Valid {
		return nil
	}
	v := n.Int64
	return &v
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func int64Args(ids []int64) []any {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}

func isEmpty(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		return x == ""
	case []byte:
		return len(x) == 0
	}
	return false
}

// compareValues orders SQLite values the way SQLite does: numbers before
// text, numbers numerically, text bytewise.
func compareValues(a, b any) int {
	af, aNum := toFloat(a)
	bf, bNum := toFloat(b)
	switch {
	case aNum && bNum:
		return cmp.Compare(af, bf)
	case aNum:
		return -1
	case bNum:
		return 1
	}
	return strings.Compare(toString(a), toString(b))
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case int64:
		return float64(x), true
	case float64:
		return x, true
	}
	return 0, false
}

func toString(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case []byte:
		return string(x)
	}
	return fmt.Sprint(v)
}
