package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/exif-turbo/exifturbo/internal/errors"
)

type opKind int

const (
	opUpsert opKind = iota
	opDelete
)

type op struct {
	kind opKind
	rec  *FileRecord
	path string
}

// fileColumns lists the writable files columns in recordArgs order.
var fileColumns = []string{
	"path", "filename", "size", "mtime_ns", "fingerprint", "indexed_at",
	"camera", "make", "model", "lens",
	"date", "taken_at", "gps", "latitude", "longitude",
	"iso", "iso_value", "aperture", "aperture_value", "exposure", "exposure_value",
	"focal", "focal_value", "width", "width_value", "height", "height_value",
	"orientation", "software", "artist", "copyright", "title", "description", "keywords",
	"rating", "rating_value",
}

func recordArgs(r *FileRecord) []any {
	c := &r.Columns
	t := &c.Typed
	return []any{
		r.Path, r.Filename(), r.Size, r.ModTime.UnixNano(), r.Fingerprint, r.IndexedAt.UnixNano(),
		c.Camera(), c.Make, c.Model, c.Lens,
		c.Date, nullTime(t.TakenAt), c.GPS, nullFloat(t.Latitude), nullFloat(t.Longitude),
		c.ISO, nullInt(t.ISO), c.Aperture, nullFloat(t.Aperture), c.Exposure, nullFloat(t.Exposure),
		c.Focal, nullFloat(t.Focal), c.Width, nullInt(t.Width), c.Height, nullInt(t.Height),
		c.Orientation, c.Software, c.Artist, c.Copyright, c.Title, c.Description, c.Keywords,
		c.Rating, nullInt(t.Rating),
	}
}

// Upsert buffers rec for the next CommitBatch. The committed row replaces
// any previous record for rec.Path wholesale; rec.ID is set on commit.
func (s *Store) Upsert(rec *FileRecord) error {
	if rec == nil || rec.Path == "" {
		return errors.ValidationError("upsert: record has no path", nil)
	}
	return s.enqueue(op{kind: opUpsert, rec: rec, path: rec.Path})
}

// Delete buffers the removal of path for the next CommitBatch. Deleting a
// path that is not indexed is not an error.
func (s *Store) Delete(path string) error {
	if path == "" {
		return errors.ValidationError("delete: empty path", nil)
	}
	return s.enqueue(op{kind: opDelete, path: path})
}

func (s *Store) enqueue(o op) error {
	if s.wdb == nil {
		return errors.StoreError(errors.ErrCodeStoreOpen, "index opened read-only", nil)
	}

	s.wmu.Lock()
	defer s.wmu.Unlock()

	if s.closed.Load() {
		return errors.ErrStoreClosed
	}
	s.pending = append(s.pending, o)
	return nil
}

// Pending returns the number of buffered operations.
func (s *Store) Pending() int {
	s.wmu.Lock()
	defer s.wmu.Unlock()
	return len(s.pending)
}

// CommitBatch applies every buffered operation, in order, in one
// transaction. On failure nothing from the batch is visible and the buffer
// is dropped; the store stays at the previous commit.
func (s *Store) CommitBatch(ctx context.Context) error {
	s.wmu.Lock()
	defer s.wmu.Unlock()

	if s.closed.Load() {
		return errors.ErrStoreClosed
	}
	if len(s.pending) == 0 {
		return nil
	}

	batch := s.pending
	s.pending = nil

	start := time.Now()
	ids, err := s.apply(ctx, batch)
	if err != nil {
		return errors.StoreError(errors.ErrCodeStoreCommit,
			fmt.Sprintf("commit batch of %d operations", len(batch)), classify(err)).
			WithDetail("index", s.path)
	}

	for i, o := range batch {
		if o.kind == opUpsert {
			o.rec.ID = ids[i]
		}
	}

	s.logger.Debug("batch_committed",
		slog.Int("operations", len(batch)),
		slog.Duration("duration", time.Since(start)))
	return nil
}

// apply runs batch inside one transaction. The writer DSN sets
// _txlock=immediate, so BeginTx takes the write lock up front.
func (s *Store) apply(ctx context.Context, batch []op) ([]int64, error) {
	tx, err := s.wdb.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmts, err := prepareWrite(ctx, tx)
	if err != nil {
		return nil, err
	}
	defer stmts.Close()

	ids := make([]int64, len(batch))
	for i, o := range batch {
		switch o.kind {
		case opUpsert:
			ids[i], err = stmts.upsert(ctx, o.rec)
		case opDelete:
			err = stmts.remove(ctx, o.path)
		}
		if err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit: %w", err)
	}
	return ids, nil
}

type writeStmts struct {
	upsertFile *sql.Stmt
	deleteFTS  *sql.Stmt
	deleteTags *sql.Stmt
	deleteFile *sql.Stmt
	insertTag  *sql.Stmt
	insertFTS  *sql.Stmt
	lookupID   *sql.Stmt
}

func prepareWrite(ctx context.Context, tx *sql.Tx) (*writeStmts, error) {
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(fileColumns)), ",")
	updates := make([]string, 0, len(fileColumns)-1)
	for _, c := range fileColumns[1:] {
		updates = append(updates, c+" = excluded."+c)
	}
	fts := ftsColumnNames()

	w := &writeStmts{}
	stmts := []struct {
		dst   **sql.Stmt
		query string
	}{
		{&w.upsertFile, fmt.Sprintf(`INSERT INTO files (%s) VALUES (%s)
			ON CONFLICT(path) DO UPDATE SET %s
			RETURNING id`, strings.Join(fileColumns, ", "), placeholders, strings.Join(updates, ", "))},
		{&w.deleteFTS, `DELETE FROM files_fts WHERE rowid = ?`},
		{&w.deleteTags, `DELETE FROM tags WHERE file_id = ?`},
		{&w.deleteFile, `DELETE FROM files WHERE id = ?`},
		{&w.insertTag, `INSERT INTO tags (file_id, name, value) VALUES (?, ?, ?)`},
		{&w.insertFTS, fmt.Sprintf(`INSERT INTO files_fts (rowid, %s) VALUES (?%s)`,
			strings.Join(fts, ", "), strings.Repeat(", ?", len(fts)))},
		{&w.lookupID, `SELECT id FROM files WHERE path = ?`},
	}

	for _, st := range stmts {
		stmt, err := tx.PrepareContext(ctx, st.query)
		if err != nil {
			w.Close()
			return nil, fmt.Errorf("failed to prepare statement: %w", err)
		}
		*st.dst = stmt
	}
	return w, nil
}

func (w *writeStmts) Close() {
	for _, st := range []*sql.Stmt{w.upsertFile, w.deleteFTS, w.deleteTags, w.deleteFile, w.insertTag, w.insertFTS, w.lookupID} {
		if st != nil {
			_ = st.Close()
		}
	}
}

// upsert writes the files row, then rebuilds tags and the FTS row from
// scratch so no tag from an older version of the file survives.
func (w *writeStmts) upsert(ctx context.Context, r *FileRecord) (int64, error) {
	var id int64
	if err := w.upsertFile.QueryRowContext(ctx, recordArgs(r)...).Scan(&id); err != nil {
		return 0, fmt.Errorf("failed to upsert %s: %w", r.Path, err)
	}

	// FTS5 has no REPLACE, so clear first.
	if _, err := w.deleteFTS.ExecContext(ctx, id); err != nil {
		return 0, fmt.Errorf("failed to clear index entry for %s: %w", r.Path, err)
	}
	if _, err := w.deleteTags.ExecContext(ctx, id); err != nil {
		return 0, fmt.Errorf("failed to clear tags for %s: %w", r.Path, err)
	}

	for name, value := range r.Overflow {
		if _, err := w.insertTag.ExecContext(ctx, id, name, value); err != nil {
			return 0, fmt.Errorf("failed to store tag %s for %s: %w", name, r.Path, err)
		}
	}

	entry := NewEntry(r)
	args := make([]any, 0, len(entry.Streams)+1)
	args = append(args, id)
	for _, stream := range entry.Streams {
		args = append(args, joinTokens(stream))
	}
	if _, err := w.insertFTS.ExecContext(ctx, args...); err != nil {
		return 0, fmt.Errorf("failed to index %s: %w", r.Path, err)
	}
	return id, nil
}

func (w *writeStmts) remove(ctx context.Context, path string) error {
	var id int64
	err := w.lookupID.QueryRowContext(ctx, path).Scan(&id)
	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to look up %s: %w", path, err)
	}

	for _, st := range []*sql.Stmt{w.deleteFTS, w.deleteTags, w.deleteFile} {
		if _, err := st.ExecContext(ctx, id); err != nil {
			return fmt.Errorf("failed to delete %s: %w", path, err)
		}
	}
	return nil
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Unix()
}

func nullFloat(f *float64) any {
	if f == nil {
		return nil
	}
	return *f
}

func nullInt(i *int64) any {
	if i == nil {
		return nil
	}
	return *i
}
