package store

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/exif-turbo/exifturbo/internal/errors"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "index.db"), Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func record(path string, cols Columns, overflow map[string]string) *FileRecord {
	return &FileRecord{
		Path:      path,
		Size:      1024,
		ModTime:   time.Unix(1700000000, 123456789),
		IndexedAt: time.Now(),
		Columns:   cols,
		Overflow:  overflow,
	}
}

func commit(t *testing.T, s *Store, recs ...*FileRecord) {
	t.Helper()
	for _, r := range recs {
		require.NoError(t, s.Upsert(r))
	}
	require.NoError(t, s.CommitBatch(context.Background()))
}

func match(t *testing.T, s *Store, leaf Leaf) []string {
	t.Helper()
	ctx := context.Background()
	var paths []string
	err := s.View(ctx, func(v *View) error {
		hits, err := v.Match(ctx, leaf)
		if err != nil {
			return err
		}
		ids := make([]int64, 0, len(hits))
		for id := range hits {
			ids = append(ids, id)
		}
		ordered, err := v.Order(ctx, ids, "path", false)
		if err != nil {
			return err
		}
		byID, err := v.Paths(ctx, ordered)
		if err != nil {
			return err
		}
		for _, id := range ordered {
			paths = append(paths, byID[id])
		}
		return nil
	})
	require.NoError(t, err)
	return paths
}

func TestStore_UpsertAndMatch(t *testing.T) {
	// Given: two committed records
	s := openTestStore(t)
	commit(t, s,
		record("/photos/a.jpg", Columns{Make: "Canon", Model: "Canon EOS R5"}, nil),
		record("/photos/b.JPG", Columns{Make: "Nikon", Model: "Z 6"}, map[string]string{"MakerNotes:ShutterCount": "4242"}),
	)

	// Then: column-scoped, unscoped, prefix and overflow lookups work
	assert.Equal(t, []string{"/photos/a.jpg"}, match(t, s, Leaf{Column: "camera", Tokens: []string{"canon"}}))
	assert.Equal(t, []string{"/photos/b.JPG"}, match(t, s, Leaf{Tokens: []string{"nikon"}}))
	assert.Equal(t, []string{"/photos/a.jpg", "/photos/b.JPG"}, match(t, s, Leaf{Column: ExtensionColumn, Tokens: []string{"jpg"}}))
	assert.Equal(t, []string{"/photos/a.jpg"}, match(t, s, Leaf{Column: "model", Tokens: []string{"eo"}, Prefix: true}))
	assert.Equal(t, []string{"/photos/b.JPG"}, match(t, s, Leaf{Column: "tags", Tokens: []string{"4242"}}))
}

func TestStore_MatchScoresArePositive(t *testing.T) {
	s := openTestStore(t)
	commit(t, s, record("/p/a.jpg", Columns{Keywords: "red sports car"}, nil))

	ctx := context.Background()
	require.NoError(t, s.View(ctx, func(v *View) error {
		hits, err := v.Match(ctx, Leaf{Tokens: []string{"red", "sports", "car"}})
		require.NoError(t, err)
		require.Len(t, hits, 1)
		for _, score := range hits {
			assert.Greater(t, score, 0.0)
		}
		return nil
	}))
}

func TestStore_PhraseRequiresAdjacency(t *testing.T) {
	s := openTestStore(t)
	commit(t, s, record("/p/a.jpg", Columns{Description: "red sports car"}, nil))

	assert.Empty(t, match(t, s, Leaf{Tokens: []string{"red", "car"}}))
	assert.Len(t, match(t, s, Leaf{Tokens: []string{"red", "sports", "car"}}), 1)
}

func TestStore_ReplaceNotMerge(t *testing.T) {
	// Given: a record with a lens and an overflow tag
	s := openTestStore(t)
	commit(t, s, record("/p/a.jpg", Columns{Lens: "Sigma Art"}, map[string]string{"XMP:Label": "Purple"}))
	require.Len(t, match(t, s, Leaf{Tokens: []string{"sigma"}}), 1)

	// When: the file is re-indexed without them
	commit(t, s, record("/p/a.jpg", Columns{Make: "Fujifilm"}, nil))

	// Then: the old values are no longer searchable
	assert.Empty(t, match(t, s, Leaf{Tokens: []string{"sigma"}}))
	assert.Empty(t, match(t, s, Leaf{Tokens: []string{"purple"}}))
	assert.Len(t, match(t, s, Leaf{Tokens: []string{"fujifilm"}}), 1)

	st, err := s.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, st.Files)
	assert.Equal(t, 0, st.Tags)
}

func TestStore_IDIsStableAcrossReindex(t *testing.T) {
	s := openTestStore(t)
	first := record("/p/a.jpg", Columns{}, nil)
	commit(t, s, first)
	second := record("/p/a.jpg", Columns{Title: "again"}, nil)
	commit(t, s, second)

	assert.NotZero(t, first.ID)
	assert.Equal(t, first.ID, second.ID)
}

func TestStore_DeleteRemovesRecordAndEntry(t *testing.T) {
	s := openTestStore(t)
	commit(t, s,
		record("/p/a.jpg", Columns{Make: "Canon"}, map[string]string{"k": "v"}),
		record("/p/b.jpg", Columns{Make: "Canon"}, nil),
	)

	require.NoError(t, s.Delete("/p/a.jpg"))
	require.NoError(t, s.Delete("/p/never-indexed.jpg"))
	require.NoError(t, s.CommitBatch(context.Background()))

	assert.Equal(t, []string{"/p/b.jpg"}, match(t, s, Leaf{Tokens: []string{"canon"}}))
	st, err := s.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, st.Files)
	assert.Equal(t, 0, st.Tags)
}

func TestStore_UncommittedWritesAreInvisible(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.Upsert(record("/p/a.jpg", Columns{Make: "Canon"}, nil)))

	assert.Equal(t, 1, s.Pending())
	assert.Empty(t, match(t, s, Leaf{Tokens: []string{"canon"}}))

	require.NoError(t, s.CommitBatch(context.Background()))
	assert.Equal(t, 0, s.Pending())
	assert.Len(t, match(t, s, Leaf{Tokens: []string{"canon"}}), 1)
}

func TestStore_FailedCommitLeavesPreviousState(t *testing.T) {
	// Given: one committed record
	s := openTestStore(t)
	commit(t, s, record("/p/a.jpg", Columns{Make: "Canon"}, nil))

	// When: a batch is committed with a cancelled context
	require.NoError(t, s.Upsert(record("/p/b.jpg", Columns{Make: "Canon"}, nil)))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := s.CommitBatch(ctx)

	// Then: the commit fails as a fatal store error and nothing changed
	require.Error(t, err)
	assert.True(t, errors.IsFatal(err))
	assert.Equal(t, errors.ErrCodeStoreCommit, errors.GetCode(err))
	assert.Equal(t, []string{"/p/a.jpg"}, match(t, s, Leaf{Tokens: []string{"canon"}}))
	assert.Equal(t, 0, s.Pending())
}

func TestStore_SignaturesAreScopedToFolder(t *testing.T) {
	s := openTestStore(t)
	commit(t, s,
		record("/photos/2023/a.jpg", Columns{}, nil),
		record("/photos/2023/sub/b.jpg", Columns{}, nil),
		record("/photos/2023-extra/c.jpg", Columns{}, nil),
		record("/other/d.jpg", Columns{}, nil),
	)

	sigs, err := s.Signatures(context.Background(), "/photos/2023")
	require.NoError(t, err)

	assert.Len(t, sigs, 2)
	assert.Contains(t, sigs, "/photos/2023/a.jpg")
	assert.Contains(t, sigs, "/photos/2023/sub/b.jpg")
	sig := sigs["/photos/2023/a.jpg"]
	assert.Equal(t, int64(1024), sig.Size)
	assert.Equal(t, time.Unix(1700000000, 123456789).UnixNano(), sig.ModTime.UnixNano())
}

func TestStore_RecordsRoundTripTypedValues(t *testing.T) {
	s := openTestStore(t)
	iso := int64(400)
	f := 2.8
	taken := time.Date(2023, 7, 14, 10, 30, 0, 0, time.UTC)
	rec := record("/p/a.jpg", Columns{
		Make: "Canon", ISO: "400", Aperture: "2.8", Date: "2023:07:14 10:30:00",
		Typed: Typed{ISO: &iso, Aperture: &f, TakenAt: &taken},
	}, map[string]string{"EXIF:Flash": "Off"})
	commit(t, s, rec)

	ctx := context.Background()
	var got *FileRecord
	require.NoError(t, s.View(ctx, func(v *View) error {
		var err error
		got, err = v.GetByPath(ctx, "/p/a.jpg")
		return err
	}))

	require.NotNil(t, got)
	assert.Equal(t, rec.ID, got.ID)
	assert.Equal(t, "Canon", got.Columns.Make)
	require.NotNil(t, got.Columns.Typed.ISO)
	assert.Equal(t, int64(400), *got.Columns.Typed.ISO)
	require.NotNil(t, got.Columns.Typed.TakenAt)
	assert.True(t, taken.Equal(*got.Columns.Typed.TakenAt))
	assert.Nil(t, got.Columns.Typed.Width)
	assert.Equal(t, map[string]string{"EXIF:Flash": "Off"}, got.Overflow)
}

func TestView_OrderBySortKey(t *testing.T) {
	s := openTestStore(t)
	i100, i3200 := int64(100), int64(3200)
	a := record("/p/a.jpg", Columns{ISO: "3200", Typed: Typed{ISO: &i3200}}, nil)
	b := record("/p/b.jpg", Columns{}, nil)
	c := record("/p/c.jpg", Columns{ISO: "100", Typed: Typed{ISO: &i100}}, nil)
	commit(t, s, a, b, c)

	ctx := context.Background()
	require.NoError(t, s.View(ctx, func(v *View) error {
		asc, err := v.Order(ctx, []int64{a.ID, b.ID, c.ID}, "ISO", false)
		require.NoError(t, err)
		assert.Equal(t, []int64{c.ID, a.ID, b.ID}, asc)

		desc, err := v.Order(ctx, []int64{a.ID, b.ID, c.ID}, "iso", true)
		require.NoError(t, err)
		assert.Equal(t, []int64{a.ID, c.ID, b.ID}, desc)

		_, err = v.Order(ctx, []int64{a.ID}, "gps", false)
		assert.Error(t, err)
		return nil
	}))
}

func TestStore_Export(t *testing.T) {
	s := openTestStore(t)
	commit(t, s,
		record("/p/b.jpg", Columns{Make: "Nikon"}, map[string]string{"EXIF:Flash": "On"}),
		record("/p/a.jpg", Columns{}, nil),
	)

	var buf bytes.Buffer
	n, err := s.Export(context.Background(), &buf)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	var got []ExportRecord
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	require.Len(t, got, 2)
	assert.Equal(t, "/p/a.jpg", got[0].Path)
	assert.Equal(t, "b.jpg", got[1].Filename)
	assert.Equal(t, "Nikon", got[1].Metadata["make"])
	assert.Equal(t, "On", got[1].Metadata["EXIF:Flash"])
	assert.InDelta(t, 1700000000.123, got[1].MTime, 0.001)
}

func TestStore_ExportEmpty(t *testing.T) {
	s := openTestStore(t)
	var buf bytes.Buffer
	n, err := s.Export(context.Background(), &buf)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.JSONEq(t, "[]", buf.String())
}

func TestOpen_SecondWriterIsRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.db")
	s, err := Open(context.Background(), path, Options{})
	require.NoError(t, err)
	defer s.Close()

	_, err = Open(context.Background(), path, Options{})

	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrStoreLocked)
}

func TestOpen_ReadOnlyRequiresExistingIndex(t *testing.T) {
	_, err := Open(context.Background(), filepath.Join(t.TempDir(), "missing.db"), Options{ReadOnly: true})

	assert.Equal(t, errors.ErrCodeFileNotFound, errors.GetCode(err))
}

func TestOpen_ReaderSeesWriterCommits(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.db")
	w, err := Open(context.Background(), path, Options{})
	require.NoError(t, err)
	defer w.Close()

	r, err := Open(context.Background(), path, Options{ReadOnly: true})
	require.NoError(t, err)
	defer r.Close()

	commit(t, w, record("/p/a.jpg", Columns{Make: "Leica"}, nil))

	assert.Equal(t, []string{"/p/a.jpg"}, match(t, r, Leaf{Tokens: []string{"leica"}}))
	assert.ErrorContains(t, r.Upsert(record("/p/x.jpg", Columns{}, nil)), "read-only")
}

func TestStore_ConcurrentReadsDuringCommits(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 20; i++ {
			_ = s.Upsert(record(filepath.Join("/p", string(rune('a'+i))+".jpg"), Columns{Make: "Canon"}, nil))
			_ = s.CommitBatch(ctx)
		}
	}()

	for i := 0; i < 20; i++ {
		require.NoError(t, s.View(ctx, func(v *View) error {
			n, err := v.Count(ctx)
			if err != nil {
				return err
			}
			ids, err := v.AllIDs(ctx)
			if err != nil {
				return err
			}
			assert.Len(t, ids, n)
			return nil
		}))
	}
	wg.Wait()
}

func TestStore_ClosedStore(t *testing.T) {
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "index.db"), Options{})
	require.NoError(t, err)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	assert.ErrorIs(t, s.Upsert(record("/p/a.jpg", Columns{}, nil)), errors.ErrStoreClosed)
	assert.ErrorIs(t, s.View(context.Background(), func(*View) error { return nil }), errors.ErrStoreClosed)
}
