package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/exif-turbo/exifturbo/internal/config"
	"github.com/exif-turbo/exifturbo/internal/errors"
	"github.com/exif-turbo/exifturbo/internal/query"
	"github.com/exif-turbo/exifturbo/internal/store"
)

// isolate points config, logs and exiftool at a temporary home.
func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(home, ".config"))
	t.Setenv("EXIFTURBO_DB", "")
	t.Setenv("EXIFTURBO_EXIFTOOL", filepath.Join(home, "no-such-exiftool"))
	return home
}

// execute runs the CLI with args and returns stdout.
func execute(t *testing.T, home string, args ...string) (string, error) {
	t.Helper()
	a := &app{}
	root := newRootCmd(a)
	stdout := &bytes.Buffer{}
	root.SetOut(stdout)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs(append(args, "--log-file", filepath.Join(home, "test.log")))

	err := root.ExecuteContext(context.Background())
	require.NoError(t, a.teardown())
	return stdout.String(), err
}

// seedIndex writes two records straight into a new index file.
func seedIndex(t *testing.T, dir string) string {
	t.Helper()
	ctx := context.Background()
	db := filepath.Join(dir, "index.db")
	st, err := store.Open(ctx, db, store.Options{})
	require.NoError(t, err)

	mtime := time.Unix(1700000000, 0)
	for _, rec := range []*store.FileRecord{
		{Path: "/photos/alps/summit.jpg", Size: 100, ModTime: mtime, Columns: store.Columns{
			Make: "Canon", Model: "Canon EOS R6", Lens: "RF 24-105mm", Keywords: "mountain, snow",
		}, Overflow: map[string]string{"XMP:Label": "Green"}},
		{Path: "/photos/coast/pier.jpg", Size: 200, ModTime: mtime, Columns: store.Columns{
			Make: "Sony", Model: "ILCE-7M4", Keywords: "sea, pier",
		}},
	} {
		rec.IndexedAt = mtime
		require.NoError(t, st.Upsert(rec))
	}
	require.NoError(t, st.CommitBatch(ctx))
	require.NoError(t, st.Close())
	return db
}

func TestSearchCmd_JSON(t *testing.T) {
	// Given: an index with a Canon and a Sony photo
	home := isolate(t)
	db := seedIndex(t, home)

	// When: searching for the Canon with JSON output
	out, err := execute(t, home, "search", "make:canon", "--db", db, "-f", "json")

	// Then: exactly that photo is returned
	require.NoError(t, err)
	var res query.Result
	require.NoError(t, json.Unmarshal([]byte(out), &res), out)
	assert.Equal(t, 1, res.Total)
	require.Len(t, res.Hits, 1)
	assert.Equal(t, "/photos/alps/summit.jpg", res.Hits[0].Path)
}

func TestSearchCmd_TextAndPaging(t *testing.T) {
	home := isolate(t)
	db := seedIndex(t, home)

	out, err := execute(t, home, "search", "--db", db, "-n", "1", "--sort", "path")

	require.NoError(t, err)
	assert.Contains(t, out, "2 results for everything (showing 1-1")
	assert.Contains(t, out, "/photos/alps/summit.jpg")
	assert.NotContains(t, out, "/photos/coast/pier.jpg")
	assert.Contains(t, out, "use --offset 1")
}

func TestSearchCmd_Errors(t *testing.T) {
	home := isolate(t)
	db := seedIndex(t, home)

	// Given: a query with an unknown column
	_, err := execute(t, home, "search", "shutter:fast", "--db", db)

	// Then: the error is a query syntax error carrying its code
	var qe *errors.QuerySyntaxError
	require.True(t, stderrors.As(err, &qe), "got %v", err)
	assert.Equal(t, errors.ErrCodeUnknownColumn, errors.GetCode(err))
	assert.Contains(t, errors.FormatForCLI(err), "^")

	_, err = execute(t, home, "search", "x", "--db", db, "-f", "yaml")
	assert.Error(t, err)

	_, err = execute(t, home, "search", "x", "--db", filepath.Join(home, "missing.db"))
	assert.Equal(t, errors.ErrCodeFileNotFound, errors.GetCode(err))
}

func TestShowCmd(t *testing.T) {
	home := isolate(t)
	db := seedIndex(t, home)

	// When: showing a record by path
	out, err := execute(t, home, "show", "/photos/alps/summit.jpg", "--db", db, "--json")

	// Then: columns and overflow tags are present
	require.NoError(t, err)
	var rec store.FileRecord
	require.NoError(t, json.Unmarshal([]byte(out), &rec), out)
	assert.Equal(t, "Canon EOS R6", rec.Columns.Model)
	assert.Equal(t, "Green", rec.Overflow["XMP:Label"])

	text, err := execute(t, home, "show", "/photos/alps/summit.jpg", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, text, "RF 24-105mm")

	_, err = execute(t, home, "show", "/photos/nowhere.jpg", "--db", db)
	assert.Equal(t, errors.ErrCodeFileNotFound, errors.GetCode(err))
}

func TestStatusCmd_JSON(t *testing.T) {
	home := isolate(t)
	db := seedIndex(t, home)

	out, err := execute(t, home, "status", "--db", db, "--json")

	require.NoError(t, err)
	var info map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &info), out)
	assert.Equal(t, db, info["db_path"])
	assert.Equal(t, float64(2), info["files"])
	assert.Equal(t, float64(300), info["media_bytes"])
	assert.Equal(t, "fallback", info["extractor_status"])
}

func TestStatusCmd_NoIndexYet(t *testing.T) {
	home := isolate(t)

	out, err := execute(t, home, "status", "--db", filepath.Join(home, "new.db"), "--json")

	require.NoError(t, err)
	assert.Contains(t, out, `"files": 0`)
}

func TestIndexCmd_RequiresFolders(t *testing.T) {
	home := isolate(t)

	_, err := execute(t, home, "index", "--db", filepath.Join(home, "index.db"), "--skip-check")

	assert.Equal(t, errors.ErrCodeInvalidInput, errors.GetCode(err))
}

func TestIndexCmd_PerFileFailuresDoNotFail(t *testing.T) {
	// Given: a folder with a file no extractor can read
	home := isolate(t)
	photos := filepath.Join(home, "photos")
	require.NoError(t, os.MkdirAll(photos, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(photos, "broken.jpg"), []byte("not a jpeg"), 0o644))
	db := filepath.Join(home, "data", "index.db")
	export := filepath.Join(home, "export.json")

	// When: indexing it with an export
	_, err := execute(t, home, "index", photos, "--db", db, "--no-tui", "--skip-check", "--export", export)

	// Then: the run succeeds and the export is a JSON array
	require.NoError(t, err)
	assert.FileExists(t, db)
	data, err := os.ReadFile(export)
	require.NoError(t, err)
	var records []store.ExportRecord
	require.NoError(t, json.Unmarshal(data, &records), string(data))
}

func TestApplyIndexFlags(t *testing.T) {
	cfg := config.NewConfig()

	applyIndexFlags(cfg, indexOptions{workers: 3, hash: true, export: "out.json"})

	assert.Equal(t, 3, cfg.Index.Workers)
	assert.Equal(t, config.NewConfig().Index.BatchSize, cfg.Index.BatchSize)
	assert.Equal(t, config.PolicyHash, cfg.Index.ChangePolicy)
	assert.Equal(t, "out.json", cfg.Index.ExportPath)
}

func TestDoctorCmd_JSON(t *testing.T) {
	home := isolate(t)

	out, _ := execute(t, home, "doctor", "--db", filepath.Join(home, "index.db"), "--json")

	var report doctorReport
	require.NoError(t, json.Unmarshal([]byte(out), &report), out)
	assert.NotEmpty(t, report.Status)
	names := make([]string, 0, len(report.Checks))
	for _, c := range report.Checks {
		names = append(names, c.Name)
	}
	assert.Contains(t, names, "exiftool")
}

func TestRootCmd_Subcommands(t *testing.T) {
	root := NewRootCmd()
	for _, name := range []string{"index", "search", "show", "serve", "watch", "doctor", "status", "config", "init", "version"} {
		c, _, err := root.Find([]string{name})
		require.NoError(t, err)
		assert.Equal(t, name, c.Name())
	}
}

func TestRootCmd_InvalidConfigFails(t *testing.T) {
	home := isolate(t)
	t.Setenv("EXIFTURBO_CHANGE_POLICY", "sometimes")

	_, err := execute(t, home, "status", "--db", filepath.Join(home, "index.db"))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "change_policy")
}

func TestConfigCmd_ShowsOverrides(t *testing.T) {
	home := isolate(t)
	t.Setenv("EXIFTURBO_WORKERS", "7")
	db := filepath.Join(home, "custom.db")

	out, err := execute(t, home, "config", "--db", db)

	require.NoError(t, err)
	assert.Contains(t, out, "db: "+db)
	assert.Contains(t, out, "workers: 7")
}

func TestInitCmd_WritesTemplateOnce(t *testing.T) {
	home := isolate(t)
	t.Chdir(t.TempDir())

	out, err := execute(t, home, "init")
	require.NoError(t, err)
	assert.Contains(t, out, projectConfigName)

	_, err = execute(t, home, "init")
	assert.Error(t, err)

	_, err = execute(t, home, "init", "--force")
	assert.NoError(t, err)
}
