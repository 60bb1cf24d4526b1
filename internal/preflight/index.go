package preflight

import (
	"context"
	"fmt"
	"os"

	"github.com/exif-turbo/exifturbo/internal/store"
)

// CheckIndex opens an existing index read-only and reads its statistics.
// A missing index is fine; the first index run creates it.
func (c *Checker) CheckIndex(ctx context.Context, dbPath string) CheckResult {
	result := CheckResult{
		Name:     "index",
		Group:    GroupIndex,
		Required: true,
	}

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		result.Status = StatusPass
		result.Message = "not created yet"
		result.Details = dbPath
		return result
	}

	st, err := store.Open(ctx, dbPath, store.Options{ReadOnly: true, Logger: c.logger})
	if err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("cannot open %s", dbPath)
		result.Details = err.Error()
		return result
	}
	defer func() { _ = st.Close() }()

	stats, err := st.Stats(ctx)
	if err != nil {
		result.Status = StatusFail
		result.Message = "cannot read index statistics"
		result.Details = err.Error()
		return result
	}

	result.Status = StatusPass
	result.Message = fmt.Sprintf("%d files, %d overflow tags, %s", stats.Files, stats.Tags, formatBytes(uint64(stats.SizeBytes)))
	result.Details = dbPath
	return result
}
