package scanner

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/exif-turbo/exifturbo/internal/logging"
)

// markerCacheSize bounds the per-directory marker lookups kept between
// runs of a long-lived scanner (watch mode).
const markerCacheSize = 4096

// resultBuffer is the channel capacity; the orchestrator drains it as
// fast as it can classify.
const resultBuffer = 256

// Scanner discovers image files under a folder.
type Scanner struct {
	// markerCache remembers whether a directory holds a marker file.
	markerCache *lru.Cache[string, bool]
	logger      *slog.Logger
}

// New creates a new Scanner instance.
func New(logger *slog.Logger) (*Scanner, error) {
	cache, err := lru.New[string, bool](markerCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create marker cache: %w", err)
	}
	return &Scanner{
		markerCache: cache,
		logger:      logging.OrDiscard(logger),
	}, nil
}

// Scan walks root and streams matching files. A root that does not exist
// or is not a directory is an error; anything unreadable below it is sent
// on the channel. The channel is closed when the walk ends.
func (s *Scanner) Scan(ctx context.Context, root string, opts *ScanOptions) (<-chan ScanResult, error) {
	if opts == nil {
		opts = &ScanOptions{}
	}

	absRoot, err := AbsFolder(root)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(absRoot)
	if err != nil {
		return nil, fmt.Errorf("failed to stat folder: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("not a directory: %s", absRoot)
	}

	results := make(chan ScanResult, resultBuffer)
	go func() {
		defer close(results)
		s.walk(ctx, absRoot, opts, results)
	}()
	return results, nil
}

// AbsFolder returns the absolute, cleaned form of a folder argument.
func AbsFolder(root string) (string, error) {
	if root == "" {
		root = "."
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("failed to get absolute path: %w", err)
	}
	return filepath.Clean(abs), nil
}

func (s *Scanner) walk(ctx context.Context, absRoot string, opts *ScanOptions, results chan<- ScanResult) {
	exts := extensionSet(opts.Extensions)
	marker := opts.marker()

	send := func(r ScanResult) error {
		select {
		case results <- r:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	err := filepath.WalkDir(absRoot, func(path string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			// A subdirectory removed mid-walk was never observed, like a
			// vanished file. A missing root is still an error.
			if errors.Is(err, fs.ErrNotExist) && path != absRoot {
				if d != nil && d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
			// Report and keep walking; the root is marked incomplete.
			s.logger.Warn("unreadable path", slog.String("path", path), slog.String("error", err.Error()))
			if sendErr := send(ScanResult{Root: absRoot, Error: err}); sendErr != nil {
				return sendErr
			}
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		relPath, err := filepath.Rel(absRoot, path)
		if err != nil {
			return nil
		}
		relPath = filepath.ToSlash(relPath)

		if d.IsDir() {
			if relPath == "." {
				if marker != "" && s.hasMarker(path, marker) {
					return filepath.SkipDir
				}
				return nil
			}
			if s.shouldExcludeDir(d.Name(), relPath, marker, path, opts) {
				return filepath.SkipDir
			}
			return nil
		}

		if !opts.IncludeHidden && isHidden(d.Name()) {
			return nil
		}
		if exts != nil && !exts[extension(d.Name())] {
			return nil
		}
		if matchesAnyPattern(relPath, opts.ExcludePatterns) {
			return nil
		}

		var info fs.FileInfo
		switch {
		case d.Type()&fs.ModeSymlink != 0:
			if !opts.FollowSymlinks {
				return nil
			}
			info, err = os.Stat(path)
		case d.Type().IsRegular():
			info, err = d.Info()
		default:
			return nil
		}
		if err != nil {
			// Gone between readdir and stat; it was never observed.
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return send(ScanResult{Root: absRoot, Error: err})
		}
		if !info.Mode().IsRegular() {
			return nil
		}

		return send(ScanResult{
			Root: absRoot,
			File: &FileInfo{
				Path:    path,
				Root:    absRoot,
				RelPath: relPath,
				Size:    info.Size(),
				ModTime: info.ModTime(),
			},
		})
	})

	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		_ = send(ScanResult{Root: absRoot, Error: err})
	}
}

// shouldExcludeDir checks hidden names, exclusion globs and marker files.
func (s *Scanner) shouldExcludeDir(name, relPath, marker, absPath string, opts *ScanOptions) bool {
	if !opts.IncludeHidden && isHidden(name) {
		return true
	}
	for _, pattern := range opts.ExcludePatterns {
		if matchDirPattern(relPath, pattern) {
			return true
		}
	}
	return marker != "" && s.hasMarker(absPath, marker)
}

func (s *Scanner) hasMarker(dir, marker string) bool {
	if v, ok := s.markerCache.Get(dir); ok {
		return v
	}
	_, err := os.Lstat(filepath.Join(dir, marker))
	found := err == nil
	s.markerCache.Add(dir, found)
	if found {
		s.logger.Debug("skipping marked directory", slog.String("dir", dir))
	}
	return found
}

// InvalidateDir forgets the cached marker lookup for dir, e.g. after a
// marker file was created or removed there.
func (s *Scanner) InvalidateDir(dir string) {
	s.markerCache.Remove(filepath.Clean(dir))
}

// InvalidateCache clears all cached marker lookups.
func (s *Scanner) InvalidateCache() {
	s.markerCache.Purge()
}

// matchDirPattern checks if a directory path matches a pattern.
func matchDirPattern(relPath, pattern string) bool {
	// **/name/** matches name at any depth
	if strings.HasPrefix(pattern, "**/") {
		name := strings.TrimSuffix(strings.TrimPrefix(pattern, "**/"), "/**")
		if strings.ContainsAny(name, "*?[") {
			return false
		}
		for _, part := range strings.Split(relPath, "/") {
			if part == name {
				return true
			}
		}
		return false
	}

	// dir/** matches dir itself and anything below it
	if strings.HasSuffix(pattern, "/**") {
		prefix := strings.TrimSuffix(pattern, "/**")
		return relPath == prefix || strings.HasPrefix(relPath, prefix+"/")
	}

	return relPath == pattern || strings.HasPrefix(relPath, pattern+"/")
}

// matchFilePattern checks if a file matches a pattern.
func matchFilePattern(baseName, relPath, pattern string) bool {
	// Files inside an excluded directory
	if strings.HasSuffix(pattern, "/**") {
		if strings.HasPrefix(pattern, "**/") {
			dir := parentDir(relPath)
			return dir != "" && matchDirPattern(dir, pattern)
		}
		prefix := strings.TrimSuffix(pattern, "/**")
		return strings.HasPrefix(relPath, prefix+"/")
	}

	// **/*.ext style patterns match the base name at any depth
	if strings.HasPrefix(pattern, "**/") {
		matched, err := path.Match(strings.TrimPrefix(pattern, "**/"), baseName)
		return err == nil && matched
	}

	// Patterns with a directory part match the whole relative path
	if strings.Contains(pattern, "/") {
		matched, err := path.Match(pattern, relPath)
		return err == nil && matched
	}

	matched, err := path.Match(pattern, baseName)
	return err == nil && matched
}

// matchesAnyPattern checks if a path matches any of the given patterns.
func matchesAnyPattern(relPath string, patterns []string) bool {
	baseName := relPath[strings.LastIndexByte(relPath, '/')+1:]
	for _, pattern := range patterns {
		if matchFilePattern(baseName, relPath, pattern) {
			return true
		}
	}
	return false
}

func parentDir(relPath string) string {
	i := strings.LastIndexByte(relPath, '/')
	if i < 0 {
		return ""
	}
	return relPath[:i]
}

// Relevant reports whether a change at relPath can alter what a walk with
// opts returns. Marker files are always relevant.
func Relevant(relPath string, isDir bool, opts *ScanOptions) bool {
	if opts == nil {
		opts = &ScanOptions{}
	}
	relPath = filepath.ToSlash(relPath)
	if relPath == "." || relPath == "" {
		return false
	}

	dir := parentDir(relPath)
	for _, part := range strings.Split(dir, "/") {
		if part == "" {
			continue
		}
		if !opts.IncludeHidden && isHidden(part) {
			return false
		}
	}
	for _, pattern := range opts.ExcludePatterns {
		if dir != "" && matchDirPattern(dir, pattern) {
			return false
		}
	}

	name := relPath[strings.LastIndexByte(relPath, '/')+1:]
	if opts.IsMarker(name) {
		return true
	}
	if isDir {
		return opts.IncludeHidden || !isHidden(name)
	}
	if !opts.IncludeHidden && isHidden(name) {
		return false
	}
	if exts := extensionSet(opts.Extensions); exts != nil && !exts[extension(name)] {
		return false
	}
	return !matchesAnyPattern(relPath, opts.ExcludePatterns)
}
