package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"

	_ "modernc.org/sqlite" // Pure Go SQLite driver with FTS5 (no CGO)

	"github.com/exif-turbo/exifturbo/internal/errors"
	"github.com/exif-turbo/exifturbo/internal/logging"
)

// SchemaVersion is bumped whenever the tables or the FTS column order change.
const SchemaVersion = 1

// Options configures Open.
type Options struct {
	// ReadOnly opens only the reader pool. The file must already exist.
	ReadOnly bool

	Logger *slog.Logger

	// Retry governs retries of SQLITE_BUSY while opening. Zero value means
	// errors.DefaultRetryConfig().
	Retry errors.RetryConfig
}

// Store is an open index file. Writes are buffered by Upsert and Delete and
// applied by CommitBatch in one IMMEDIATE transaction on a single writer
// connection. Reads use a separate pool and see the last committed state.
type Store struct {
	path   string
	wdb    *sql.DB
	rdb    *sql.DB
	lock   *writerLock
	logger *slog.Logger

	wmu     sync.Mutex
	pending []op

	closed atomic.Bool
}

const busyTimeoutMS = 5000

func dsn(path string, reader bool) string {
	params := []string{
		fmt.Sprintf("_pragma=busy_timeout(%d)", busyTimeoutMS),
		"_pragma=foreign_keys(1)",
		"_pragma=synchronous(NORMAL)",
	}
	if reader {
		params = append(params, "_pragma=query_only(1)")
	} else {
		params = append(params, "_pragma=journal_mode(WAL)", "_txlock=immediate")
	}
	return path + "?" + strings.Join(params, "&")
}

// Open opens or creates the index at path.
func Open(ctx context.Context, path string, opts Options) (*Store, error) {
	if path == "" {
		return nil, errors.StoreError(errors.ErrCodeInvalidPath, "index path is empty", nil)
	}
	logger := logging.OrDiscard(opts.Logger)
	retry := opts.Retry
	if retry.MaxRetries == 0 && retry.InitialDelay == 0 {
		retry = errors.DefaultRetryConfig()
	}
	retry.ShouldRetry = isBusy

	s := &Store{path: path, logger: logger}

	if opts.ReadOnly {
		if _, err := os.Stat(path); err != nil {
			return nil, errors.StoreError(errors.ErrCodeFileNotFound, fmt.Sprintf("index not found: %s", path), err).
				WithSuggestion("Run 'exifturbo index' to build the index first")
		}
	} else {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, errors.StoreError(errors.ErrCodeFilePermission, fmt.Sprintf("create index directory for %s", path), err)
		}

		s.lock = newWriterLock(path)
		ok, err := s.lock.TryLock()
		if err != nil {
			return nil, errors.StoreError(errors.ErrCodeStoreOpen, "lock index", err)
		}
		if !ok {
			return nil, errors.StoreError(errors.ErrCodeStoreLocked, fmt.Sprintf("index %s is being written by another process", path), nil).
				WithSuggestion("Wait for the other exifturbo run to finish")
		}

		wdb, err := sql.Open("sqlite", dsn(path, false))
		if err != nil {
			s.release()
			return nil, errors.StoreError(errors.ErrCodeStoreOpen, fmt.Sprintf("open %s", path), err)
		}
		// Single writer: one connection means one write transaction at a time.
		wdb.SetMaxOpenConns(1)
		wdb.SetMaxIdleConns(1)
		wdb.SetConnMaxLifetime(0)
		s.wdb = wdb

		err = errors.Retry(ctx, retry, func() error {
			return classify(s.initSchema(ctx))
		})
		if err != nil {
			s.release()
			return nil, asStoreError(errors.ErrCodeStoreOpen, fmt.Sprintf("initialize %s", path), err)
		}
	}

	rdb, err := sql.Open("sqlite", dsn(path, true))
	if err != nil {
		s.release()
		return nil, errors.StoreError(errors.ErrCodeStoreOpen, fmt.Sprintf("open %s", path), err)
	}
	rdb.SetMaxOpenConns(max(4, runtime.GOMAXPROCS(0)))
	s.rdb = rdb

	err = errors.Retry(ctx, retry, func() error {
		return classify(s.checkSchema(ctx))
	})
	if err != nil {
		s.release()
		return nil, asStoreError(errors.ErrCodeCorruptIndex, fmt.Sprintf("validate %s", path), err)
	}

	logger.Debug("store_opened",
		slog.String("path", path),
		slog.Bool("read_only", opts.ReadOnly))
	return s, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY
	);

	CREATE TABLE IF NOT EXISTS files (
		id             INTEGER PRIMARY KEY,
		path           TEXT NOT NULL UNIQUE,
		filename       TEXT NOT NULL,
		size           INTEGER NOT NULL,
		mtime_ns       INTEGER NOT NULL,
		fingerprint    TEXT NOT NULL DEFAULT '',
		indexed_at     INTEGER NOT NULL,
		camera         TEXT NOT NULL DEFAULT '',
		make           TEXT NOT NULL DEFAULT '',
		model          TEXT NOT NULL DEFAULT '',
		lens           TEXT NOT NULL DEFAULT '',
		date           TEXT NOT NULL DEFAULT '',
		taken_at       INTEGER,
		gps            TEXT NOT NULL DEFAULT '',
		latitude       REAL,
		longitude      REAL,
		iso            TEXT NOT NULL DEFAULT '',
		iso_value      INTEGER,
		aperture       TEXT NOT NULL DEFAULT '',
		aperture_value REAL,
		exposure       TEXT NOT NULL DEFAULT '',
		exposure_value REAL,
		focal          TEXT NOT NULL DEFAULT '',
		focal_value    REAL,
		width          TEXT NOT NULL DEFAULT '',
		width_value    INTEGER,
		height         TEXT NOT NULL DEFAULT '',
		height_value   INTEGER,
		orientation    TEXT NOT NULL DEFAULT '',
		software       TEXT NOT NULL DEFAULT '',
		artist         TEXT NOT NULL DEFAULT '',
		copyright      TEXT NOT NULL DEFAULT '',
		title          TEXT NOT NULL DEFAULT '',
		description    TEXT NOT NULL DEFAULT '',
		keywords       TEXT NOT NULL DEFAULT '',
		rating         TEXT NOT NULL DEFAULT '',
		rating_value   INTEGER
	);

	-- Overflow tags live in rows, so a new tag name needs no migration.
	CREATE TABLE IF NOT EXISTS tags (
		file_id INTEGER NOT NULL REFERENCES files(id) ON DELETE CASCADE,
		name    TEXT NOT NULL,
		value   TEXT NOT NULL,
		PRIMARY KEY (file_id, name)
	) WITHOUT ROWID;

	CREATE INDEX IF NOT EXISTS tags_name ON tags(name);

	-- rowid = files.id. Streams are pre-tokenized in Go.
	CREATE VIRTUAL TABLE IF NOT EXISTS files_fts USING fts5(
		` + strings.Join(ftsColumnNames(), ",\n\t\t") + `,
		tokenize = 'unicode61 remove_diacritics 0'
	);
	`
	if _, err := s.wdb.ExecContext(ctx, schema); err != nil {
		return err
	}
	_, err := s.wdb.ExecContext(ctx, `INSERT OR IGNORE INTO schema_version (version) VALUES (?)`, SchemaVersion)
	return err
}

func (s *Store) checkSchema(ctx context.Context) error {
	var version int
	err := s.rdb.QueryRowContext(ctx, `SELECT MAX(version) FROM schema_version`).Scan(&version)
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if version != SchemaVersion {
		return fmt.Errorf("unsupported schema version %d (want %d)", version, SchemaVersion)
	}

	var count int
	err = s.rdb.QueryRowContext(ctx, `SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='files_fts'`).Scan(&count)
	if err != nil {
		return fmt.Errorf("read schema: %w", err)
	}
	if count == 0 {
		return fmt.Errorf("FTS5 table 'files_fts' missing")
	}
	return nil
}

func ftsColumnNames() []string {
	names := make([]string, len(columns))
	for i, c := range columns {
		names[i] = c.Name
	}
	return names
}

// Path returns the index file path.
func (s *Store) Path() string { return s.path }

// ReadOnly reports whether the store was opened without a writer.
func (s *Store) ReadOnly() bool { return s.wdb == nil }

// Close checkpoints the WAL and closes both pools. Uncommitted buffered
// writes are discarded. Close is idempotent.
func (s *Store) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}

	s.wmu.Lock()
	defer s.wmu.Unlock()

	if n := len(s.pending); n > 0 {
		s.logger.Warn("store_closed_with_pending_writes", slog.Int("pending", n))
		s.pending = nil
	}

	var firstErr error
	if s.wdb != nil {
		_, _ = s.wdb.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	}
	if err := s.release(); err != nil {
		firstErr = err
	}
	return firstErr
}

func (s *Store) release() error {
	var firstErr error
	for _, db := range []*sql.DB{s.rdb, s.wdb} {
		if db == nil {
			continue
		}
		if err := db.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if s.lock != nil {
		if err := s.lock.Unlock(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// isBusy reports lock contention that a retry can resolve.
func isBusy(err error) bool {
	return errors.GetCode(err) == errors.ErrCodeStoreBusy
}

// classify maps SQLite contention errors to ErrCodeStoreBusy and passes
// everything else through.
func classify(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	if strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked") {
		return errors.New(errors.ErrCodeStoreBusy, msg, err)
	}
	return err
}

func asStoreError(code, msg string, err error) error {
	if errors.IsFatal(err) {
		return err
	}
	return errors.StoreError(code, msg, err)
}
