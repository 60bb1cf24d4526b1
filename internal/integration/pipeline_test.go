package integration

import (
	"bufio"
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/exif-turbo/exifturbo/internal/config"
	"github.com/exif-turbo/exifturbo/internal/extract"
	"github.com/exif-turbo/exifturbo/internal/index"
	"github.com/exif-turbo/exifturbo/internal/query"
	"github.com/exif-turbo/exifturbo/internal/scanner"
	"github.com/exif-turbo/exifturbo/internal/store"
)

// tagFileExtractor reads "Group:Tag=value" lines from the file itself, so
// rewriting a fixture changes its metadata.
type tagFileExtractor struct{}

func (tagFileExtractor) Name() string { return "tagfile" }

func (tagFileExtractor) Extract(ctx context.Context, path string) (extract.Metadata, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	md := extract.Metadata{}
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		if k, v, ok := strings.Cut(sc.Text(), "="); ok {
			md[k] = v
		}
	}
	return md, sc.Err()
}

type pipeline struct {
	store  *store.Store
	orch   *index.Orchestrator
	engine *query.Engine
	opts   index.Options
}

func newPipeline(t *testing.T) *pipeline {
	t.Helper()
	ctx := context.Background()
	st, err := store.Open(ctx, filepath.Join(t.TempDir(), "index.db"), store.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	opts := index.Options{
		Workers:   4,
		BatchSize: 2,
		Scan:      scanner.ScanOptions{Extensions: config.DefaultExtensions},
	}
	orch, err := index.New(index.Dependencies{Store: st, Extractor: tagFileExtractor{}}, opts)
	require.NoError(t, err)
	engine, err := query.NewEngine(st)
	require.NoError(t, err)
	return &pipeline{store: st, orch: orch, engine: engine, opts: opts}
}

func writePhoto(t *testing.T, path string, tags ...string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(tags, "\n")), 0o644))
}

func (p *pipeline) paths(t *testing.T, q string) []string {
	t.Helper()
	res, err := p.engine.Search(context.Background(), q, query.Options{Limit: 100, Sort: "path"})
	require.NoError(t, err)
	out := make([]string, 0, len(res.Hits))
	for _, h := range res.Hits {
		out = append(out, filepath.Base(h.Path))
	}
	return out
}

func TestIndexThenSearch_EndToEnd(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	ctx := context.Background()
	p := newPipeline(t)

	// Given: three photos in two subfolders and one non-image file
	root := t.TempDir()
	writePhoto(t, filepath.Join(root, "trip", "one.jpg"), "IFD0:Make=Canon", "IPTC:Keywords=beach, sunset")
	writePhoto(t, filepath.Join(root, "trip", "two.jpg"), "IFD0:Make=Nikon", "IPTC:Keywords=mountain")
	writePhoto(t, filepath.Join(root, "town", "three.png"), "IFD0:Make=Canon", "IPTC:Keywords=city lights")
	writePhoto(t, filepath.Join(root, "notes.txt"), "IFD0:Make=Canon")

	// When: indexing the folder
	sum, err := p.orch.Run(ctx, []string{root})

	// Then: only images are indexed and every query form finds them
	require.NoError(t, err)
	assert.Equal(t, 3, sum.Indexed)
	assert.Empty(t, sum.Errors)

	assert.Equal(t, []string{"one.jpg", "three.png"}, p.paths(t, "make:canon"))
	assert.Equal(t, []string{"one.jpg", "three.png"}, p.paths(t, "keywords:beach OR keywords:city"))
	assert.Equal(t, []string{"one.jpg"}, p.paths(t, "canon NOT city"))
	assert.Equal(t, []string{"three.png"}, p.paths(t, `"city lights"`))
	assert.Equal(t, []string{"two.jpg"}, p.paths(t, "moun*"))
	assert.Len(t, p.paths(t, ""), 3)
}

func TestReindex_AppliesModificationsAndDeletions(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	ctx := context.Background()
	p := newPipeline(t)

	root := t.TempDir()
	one := filepath.Join(root, "one.jpg")
	two := filepath.Join(root, "two.jpg")
	three := filepath.Join(root, "three.jpg")
	writePhoto(t, one, "IFD0:Make=Canon")
	writePhoto(t, two, "IFD0:Make=Nikon")
	writePhoto(t, three, "IFD0:Make=Canon")
	_, err := p.orch.Run(ctx, []string{root})
	require.NoError(t, err)

	// Given: one photo rewritten and another removed
	writePhoto(t, two, "IFD0:Make=Canon", "IFD0:Model=EOS R8")
	later := time.Now().Add(time.Hour)
	require.NoError(t, os.Chtimes(two, later, later))
	require.NoError(t, os.Remove(three))

	// When: indexing again
	sum, err := p.orch.Run(ctx, []string{root})

	// Then: only the changed file is re-extracted and the removed one is gone
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Modified)
	assert.Equal(t, 1, sum.Unchanged)
	assert.Equal(t, 1, sum.Deleted)
	assert.Equal(t, []string{"one.jpg", "two.jpg"}, p.paths(t, "make:canon"))
	assert.Equal(t, []string{"two.jpg"}, p.paths(t, `model:"eos r8"`))

	stats, err := p.store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Files)
}

func TestReindex_SecondRunIsNoop(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	ctx := context.Background()
	p := newPipeline(t)
	root := t.TempDir()
	writePhoto(t, filepath.Join(root, "a.jpg"), "IFD0:Make=Fujifilm")

	_, err := p.orch.Run(ctx, []string{root})
	require.NoError(t, err)
	sum, err := p.orch.Run(ctx, []string{root})

	require.NoError(t, err)
	assert.Equal(t, 0, sum.Indexed)
	assert.Equal(t, 1, sum.Unchanged)
	assert.Equal(t, sum, p.orch.LastSummary())
}
