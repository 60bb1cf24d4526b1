package preflight

import (
	"fmt"
	"os"
	"syscall"
)

// MinDiskSpaceBytes is the free space below which indexing is refused.
const MinDiskSpaceBytes = 64 << 20

// CheckDiskSpace checks the filesystem holding the index. Besides the
// fixed floor, a large batch can grow the WAL by about the size of the
// index, so less than twice the current footprint is a warning.
func (c *Checker) CheckDiskSpace(dir string, indexBytes int64) CheckResult {
	result := CheckResult{
		Name:     "disk_space",
		Group:    GroupSystem,
		Required: true,
	}

	var st syscall.Statfs_t
	if err := syscall.Statfs(dir, &st); err != nil {
		result.Status = StatusFail
		result.Message = "cannot read free space"
		result.Details = err.Error()
		return result
	}
	free := st.Bavail * uint64(st.Bsize)
	headroom := uint64(max(2*indexBytes, MinDiskSpaceBytes))

	result.Message = formatBytes(free) + " free"
	switch {
	case free < MinDiskSpaceBytes:
		result.Status = StatusFail
		result.Details = fmt.Sprintf("at least %s is required", formatBytes(MinDiskSpaceBytes))
	case free < headroom:
		result.Status = StatusWarn
		result.Details = fmt.Sprintf("the index uses %s; large runs may need %s", formatBytes(uint64(indexBytes)), formatBytes(headroom))
	default:
		result.Status = StatusPass
	}
	return result
}

// indexFootprint sums the database file and its WAL and shared-memory
// companions. A missing index counts as zero.
func indexFootprint(dbPath string) int64 {
	var total int64
	for _, p := range []string{dbPath, dbPath + "-wal", dbPath + "-shm"} {
		if info, err := os.Stat(p); err == nil {
			total += info.Size()
		}
	}
	return total
}

// formatBytes renders n with a binary unit, e.g. "1.5 GiB".
func formatBytes(n uint64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := uint64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
