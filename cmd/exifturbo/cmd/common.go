package cmd

import (
	"context"
	"os"
	"path/filepath"

	"github.com/exif-turbo/exifturbo/internal/errors"
	"github.com/exif-turbo/exifturbo/internal/extract"
	"github.com/exif-turbo/exifturbo/internal/query"
	"github.com/exif-turbo/exifturbo/internal/store"
)

// openReadOnly opens the configured index for queries.
func (a *app) openReadOnly(ctx context.Context) (*store.Store, error) {
	return store.Open(ctx, a.cfg.DB, store.Options{ReadOnly: true, Logger: a.logger})
}

// openWritable opens the configured index for an index or watch run.
func (a *app) openWritable(ctx context.Context) (*store.Store, error) {
	return store.Open(ctx, a.cfg.DB, store.Options{Logger: a.logger})
}

func (a *app) newEngine(st *store.Store) (*query.Engine, error) {
	return query.NewEngine(st,
		query.WithCacheSize(a.cfg.Search.CacheSize),
		query.WithDefaultLimit(a.cfg.Search.DefaultLimit),
		query.WithLogger(a.logger))
}

// newExtractor returns exiftool, wrapped with the in-process reader and a
// circuit breaker unless the fallback is disabled.
func (a *app) newExtractor() extract.Extractor {
	tool := extract.NewExifTool(
		extract.WithToolPath(a.cfg.Extractor.ExifToolPath),
		extract.WithTimeout(a.cfg.ExtractTimeout()),
		extract.WithLogger(a.logger))
	if !a.cfg.FallbackEnabled() {
		return tool
	}
	breaker := errors.NewCircuitBreaker("exiftool",
		errors.WithMaxFailures(a.cfg.Extractor.MaxFailures),
		errors.WithResetTimeout(a.cfg.BreakerReset()))
	return extract.NewFallback(tool, extract.NewGoExif(), breaker, a.logger)
}

// folders returns the folders named on the command line, or the configured
// ones when none were given.
func (a *app) folders(args []string) ([]string, error) {
	folders := args
	if len(folders) == 0 {
		folders = a.cfg.Folders
	}
	if len(folders) == 0 {
		return nil, errors.ValidationError("no folders to index", nil).
			WithSuggestion("Pass folders as arguments or list them under 'folders' in .exifturbo.yaml")
	}
	return folders, nil
}

// dataDir is the directory holding the index file.
func (a *app) dataDir() string {
	return filepath.Dir(a.cfg.DB)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
