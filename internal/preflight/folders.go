package preflight

import (
	"fmt"
	"os"
)

// CheckFolders reports one result per configured folder. Folders are
// optional: a missing one is skipped by index runs, never tombstoned.
func (c *Checker) CheckFolders(folders []string) []CheckResult {
	if len(folders) == 0 {
		return []CheckResult{{
			Name:    "folders",
			Group:   GroupLibrary,
			Status:  StatusWarn,
			Message: "no folders configured; pass them to index or add folders: to the config",
		}}
	}

	results := make([]CheckResult, 0, len(folders))
	for _, f := range folders {
		results = append(results, checkFolder(f))
	}
	return results
}

func checkFolder(path string) CheckResult {
	result := CheckResult{Name: "folder " + path, Group: GroupLibrary}

	info, err := os.Stat(path)
	switch {
	case err != nil:
		result.Status = StatusWarn
		result.Message = "not accessible"
		result.Details = err.Error()
		return result
	case !info.IsDir():
		result.Status = StatusWarn
		result.Message = "not a directory"
		return result
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		result.Status = StatusWarn
		result.Message = "not readable"
		result.Details = err.Error()
		return result
	}

	result.Status = StatusPass
	result.Message = fmt.Sprintf("%d entries", len(entries))
	return result
}
