package scanner

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var photoExts = []string{".jpg", ".jpeg", ".tif", ".png"}

func writeFiles(t *testing.T, root string, paths ...string) {
	t.Helper()
	for _, p := range paths {
		full := filepath.Join(root, filepath.FromSlash(p))
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, os.WriteFile(full, []byte("x"), 0o644))
	}
}

// collect drains a scan and returns sorted relative paths plus any errors.
func collect(t *testing.T, s *Scanner, root string, opts *ScanOptions) ([]string, []error) {
	t.Helper()
	results, err := s.Scan(context.Background(), root, opts)
	require.NoError(t, err)

	var paths []string
	var errs []error
	for r := range results {
		if r.Error != nil {
			errs = append(errs, r.Error)
			continue
		}
		paths = append(paths, r.File.RelPath)
	}
	sort.Strings(paths)
	return paths, errs
}

func newScanner(t *testing.T) *Scanner {
	t.Helper()
	s, err := New(nil)
	require.NoError(t, err)
	return s
}

func TestScanner_Scan_FiltersByExtension(t *testing.T) {
	// Given: a folder with images and other files
	root := t.TempDir()
	writeFiles(t, root, "a.jpg", "B.JPG", "sub/c.tif", "notes.txt", "sub/d.xmp", "e.Jpeg")

	// When: scanning for photo extensions
	paths, errs := collect(t, newScanner(t), root, &ScanOptions{Extensions: photoExts})

	// Then: only images are returned, case-insensitively
	assert.Empty(t, errs)
	assert.Equal(t, []string{"B.JPG", "a.jpg", "e.Jpeg", "sub/c.tif"}, paths)
}

func TestScanner_Scan_EmptyExtensionsAcceptsAll(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, "a.jpg", "notes.txt")

	paths, _ := collect(t, newScanner(t), root, &ScanOptions{})

	assert.Equal(t, []string{"a.jpg", "notes.txt"}, paths)
}

func TestScanner_Scan_ReturnsCorrectMetadata(t *testing.T) {
	// Given: one file with known size and mtime
	root := t.TempDir()
	writeFiles(t, root, "2024/trip/a.jpg")
	full := filepath.Join(root, "2024", "trip", "a.jpg")
	require.NoError(t, os.WriteFile(full, []byte("hello"), 0o644))
	mtime := time.Date(2024, 3, 4, 5, 6, 7, 0, time.UTC)
	require.NoError(t, os.Chtimes(full, mtime, mtime))

	// When: scanning
	results, err := newScanner(t).Scan(context.Background(), root, nil)
	require.NoError(t, err)
	var files []*FileInfo
	for r := range results {
		require.NoError(t, r.Error)
		files = append(files, r.File)
	}

	// Then: the record has absolute path, root and relative path
	require.Len(t, files, 1)
	f := files[0]
	absRoot, _ := AbsFolder(root)
	assert.Equal(t, filepath.Join(absRoot, "2024", "trip", "a.jpg"), f.Path)
	assert.Equal(t, absRoot, f.Root)
	assert.Equal(t, "2024/trip/a.jpg", f.RelPath)
	assert.Equal(t, int64(5), f.Size)
	assert.True(t, f.ModTime.Equal(mtime))
}

func TestScanner_Scan_SkipsHidden(t *testing.T) {
	// Given: hidden files and directories
	root := t.TempDir()
	writeFiles(t, root, "a.jpg", ".b.jpg", ".cache/c.jpg", "sub/.d.jpg")

	// When: scanning with defaults
	paths, _ := collect(t, newScanner(t), root, &ScanOptions{Extensions: photoExts})

	// Then: hidden entries are skipped
	assert.Equal(t, []string{"a.jpg"}, paths)

	// And: IncludeHidden brings them back
	paths, _ = collect(t, newScanner(t), root, &ScanOptions{Extensions: photoExts, IncludeHidden: true})
	assert.Equal(t, []string{".b.jpg", ".cache/c.jpg", "a.jpg", "sub/.d.jpg"}, paths)
}

func TestScanner_Scan_ExcludePatterns(t *testing.T) {
	// Given: NAS thumbnail folders and a raw folder
	root := t.TempDir()
	writeFiles(t, root,
		"a.jpg",
		"@eaDir/a.jpg/SYNOPHOTO_THUMB_M.jpg",
		"2024/@eaDir/b.jpg",
		"raw/c.jpg",
		"raw2/d.jpg",
		"2024/e.tmp.jpg",
		"2024/f.jpg",
	)

	// When: scanning with exclusions
	paths, _ := collect(t, newScanner(t), root, &ScanOptions{
		Extensions:      photoExts,
		ExcludePatterns: []string{"**/@eaDir/**", "raw/**", "**/*.tmp.jpg"},
	})

	// Then: excluded paths are gone
	assert.Equal(t, []string{"2024/f.jpg", "a.jpg", "raw2/d.jpg"}, paths)
}

func TestScanner_Scan_MarkerFile(t *testing.T) {
	// Given: a directory marked with .nomedia
	root := t.TempDir()
	writeFiles(t, root, "keep/a.jpg", "skip/b.jpg", "skip/deeper/c.jpg", "skip/.nomedia")
	s := newScanner(t)

	// When: scanning
	paths, _ := collect(t, s, root, &ScanOptions{Extensions: photoExts})

	// Then: the marked tree is skipped
	assert.Equal(t, []string{"keep/a.jpg"}, paths)

	// When: the marker is removed and the cache invalidated
	require.NoError(t, os.Remove(filepath.Join(root, "skip", ".nomedia")))
	absRoot, _ := AbsFolder(root)
	s.InvalidateDir(filepath.Join(absRoot, "skip"))
	paths, _ = collect(t, s, root, &ScanOptions{Extensions: photoExts})

	// Then: the directory is scanned again
	assert.Equal(t, []string{"keep/a.jpg", "skip/b.jpg", "skip/deeper/c.jpg"}, paths)
}

func TestScanner_Scan_MarkerDisabled(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, "skip/b.jpg", "skip/.nomedia")

	paths, _ := collect(t, newScanner(t), root, &ScanOptions{Extensions: photoExts, MarkerFile: "-"})

	assert.Equal(t, []string{"skip/b.jpg"}, paths)
}

func TestScanner_Scan_CachedMarkerIsStaleUntilInvalidated(t *testing.T) {
	// Given: a scanner that has already looked at a directory
	root := t.TempDir()
	writeFiles(t, root, "d/a.jpg")
	s := newScanner(t)
	paths, _ := collect(t, s, root, &ScanOptions{Extensions: photoExts})
	require.Equal(t, []string{"d/a.jpg"}, paths)

	// When: a marker appears and the whole cache is purged
	writeFiles(t, root, "d/.nomedia")
	s.InvalidateCache()
	paths, _ = collect(t, s, root, &ScanOptions{Extensions: photoExts})

	// Then: the directory is skipped
	assert.Empty(t, paths)
}

func TestScanner_Scan_SkipsSymlinks(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks need privileges on windows")
	}
	// Given: a symlink to an image outside the folder
	root := t.TempDir()
	outside := t.TempDir()
	writeFiles(t, outside, "real.jpg")
	writeFiles(t, root, "a.jpg")
	require.NoError(t, os.Symlink(filepath.Join(outside, "real.jpg"), filepath.Join(root, "link.jpg")))

	// When/Then: symlinks are skipped by default
	paths, _ := collect(t, newScanner(t), root, &ScanOptions{Extensions: photoExts})
	assert.Equal(t, []string{"a.jpg"}, paths)

	// And: followed on request
	paths, _ = collect(t, newScanner(t), root, &ScanOptions{Extensions: photoExts, FollowSymlinks: true})
	assert.Equal(t, []string{"a.jpg", "link.jpg"}, paths)
}

func TestScanner_Scan_UnreadableDirectoryIsReported(t *testing.T) {
	if runtime.GOOS == "windows" || os.Geteuid() == 0 {
		t.Skip("permission bits are not enforced here")
	}
	// Given: a directory without read permission
	root := t.TempDir()
	writeFiles(t, root, "a.jpg", "locked/b.jpg")
	locked := filepath.Join(root, "locked")
	require.NoError(t, os.Chmod(locked, 0o000))
	t.Cleanup(func() { _ = os.Chmod(locked, 0o755) })

	// When: scanning
	paths, errs := collect(t, newScanner(t), root, &ScanOptions{Extensions: photoExts})

	// Then: readable files still come through and the failure is reported
	assert.Equal(t, []string{"a.jpg"}, paths)
	assert.NotEmpty(t, errs)
}

func TestScanner_Scan_DirectoryRemovedMidWalk(t *testing.T) {
	// Given: more files in "a" than the channel holds, so the walk stalls
	// there until the reader catches up, and a later album "b"
	root := t.TempDir()
	names := make([]string, 0, resultBuffer+10)
	for i := range resultBuffer + 10 {
		names = append(names, fmt.Sprintf("a/%04d.jpg", i))
	}
	writeFiles(t, root, names...)
	writeFiles(t, root, "b/x.jpg")

	results, err := newScanner(t).Scan(context.Background(), root, &ScanOptions{Extensions: photoExts})
	require.NoError(t, err)

	// When: "b" is deleted after the root was listed but before it is entered
	first := <-results
	require.NoError(t, first.Error)
	require.NoError(t, os.RemoveAll(filepath.Join(root, "b")))

	var files int
	var errs []error
	for r := range results {
		if r.Error != nil {
			errs = append(errs, r.Error)
			continue
		}
		files++
	}

	// Then: the vanished album is simply unobserved, not a scan error
	assert.Empty(t, errs)
	assert.Equal(t, resultBuffer+9, files)
}

func TestScanner_Scan_NonExistentDirectory(t *testing.T) {
	_, err := newScanner(t).Scan(context.Background(), filepath.Join(t.TempDir(), "missing"), nil)
	assert.Error(t, err)
}

func TestScanner_Scan_RootIsFile(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, "a.jpg")

	_, err := newScanner(t).Scan(context.Background(), filepath.Join(root, "a.jpg"), nil)
	assert.Error(t, err)
}

func TestScanner_Scan_EmptyDirectory(t *testing.T) {
	paths, errs := collect(t, newScanner(t), t.TempDir(), nil)
	assert.Empty(t, paths)
	assert.Empty(t, errs)
}

func TestScanner_Scan_CancellationClosesChannel(t *testing.T) {
	// Given: more files than the channel buffer holds
	root := t.TempDir()
	for i := range resultBuffer * 2 {
		writeFiles(t, root, filepath.Join("d", string(rune('a'+i%26)), "f"+string(rune('a'+i/26))+".jpg"))
	}
	ctx, cancel := context.WithCancel(context.Background())
	results, err := newScanner(t).Scan(ctx, root, &ScanOptions{Extensions: photoExts})
	require.NoError(t, err)

	// When: cancelling after reading a few results
	for range 3 {
		<-results
	}
	cancel()

	// Then: the channel closes without being drained to the end
	done := make(chan struct{})
	go func() {
		for range results {
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("channel did not close after cancellation")
	}
}

func TestMatchDirPattern(t *testing.T) {
	tests := []struct {
		relPath string
		pattern string
		want    bool
	}{
		{"@eaDir", "**/@eaDir/**", true},
		{"2024/@eaDir", "**/@eaDir/**", true},
		{"2024/eaDir", "**/@eaDir/**", false},
		{"raw", "raw/**", true},
		{"raw/sub", "raw/**", true},
		{"raw2", "raw/**", false},
		{"exports", "exports", true},
		{"exports/x", "exports", true},
		{"other", "exports", false},
	}
	for _, tt := range tests {
		t.Run(tt.relPath+"~"+tt.pattern, func(t *testing.T) {
			assert.Equal(t, tt.want, matchDirPattern(tt.relPath, tt.pattern))
		})
	}
}

func TestMatchFilePattern(t *testing.T) {
	tests := []struct {
		relPath string
		pattern string
		want    bool
	}{
		{"a.tmp.jpg", "**/*.tmp.jpg", true},
		{"x/y/a.tmp.jpg", "**/*.tmp.jpg", true},
		{"x/a.jpg", "**/*.tmp.jpg", false},
		{"x/@eaDir/a.jpg", "**/@eaDir/**", true},
		{"a.jpg", "**/@eaDir/**", false},
		{"raw/a.jpg", "raw/**", true},
		{"raw2/a.jpg", "raw/**", false},
		{"2024/IMG_0001.jpg", "2024/IMG_*.jpg", true},
		{"2025/IMG_0001.jpg", "2024/IMG_*.jpg", false},
		{"deep/Thumbs.db", "Thumbs.db", true},
		{"deep/IMG_1.jpg", "IMG_?.jpg", true},
	}
	for _, tt := range tests {
		t.Run(tt.relPath+"~"+tt.pattern, func(t *testing.T) {
			base := filepath.Base(tt.relPath)
			assert.Equal(t, tt.want, matchFilePattern(base, tt.relPath, tt.pattern))
		})
	}
}

func TestExtensionSet(t *testing.T) {
	set := extensionSet([]string{"JPG", ".Tiff", " ", ".png"})
	assert.Equal(t, map[string]bool{".jpg": true, ".tiff": true, ".png": true}, set)
	assert.Nil(t, extensionSet(nil))
}

func TestRelevant(t *testing.T) {
	opts := &ScanOptions{
		Extensions:      []string{".jpg"},
		ExcludePatterns: []string{"**/@eaDir/**", "*.tmp.jpg"},
	}

	tests := []struct {
		rel   string
		isDir bool
		want  bool
	}{
		{"a.jpg", false, true},
		{"sub/B.JPG", false, true},
		{"a.txt", false, false},
		{".hidden.jpg", false, false},
		{".cache/a.jpg", false, false},
		{"x/@eaDir/a.jpg", false, false},
		{"a.tmp.jpg", false, false},
		{"sub", true, true},
		{".git", true, false},
		{"sub/.nomedia", false, true},
		{".", true, false},
	}
	for _, tt := range tests {
		t.Run(tt.rel, func(t *testing.T) {
			assert.Equal(t, tt.want, Relevant(tt.rel, tt.isDir, opts))
		})
	}

	assert.True(t, Relevant(".cache/a.jpg", false, &ScanOptions{IncludeHidden: true}))
	assert.False(t, Relevant("sub/.nomedia", false, &ScanOptions{MarkerFile: "-"}))
}
