package preflight

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/exif-turbo/exifturbo/pkg/version"
)

// MarkerFile is written next to the index once preflight passes, so index
// runs skip the checks until the binary is upgraded.
const MarkerFile = ".preflight-passed"

type marker struct {
	PassedAt time.Time `json:"passed_at"`
	Version  string    `json:"version"`
}

// NeedsCheck reports whether checks should run: the marker is missing,
// unreadable, or was written by another version.
func NeedsCheck(dataDir string) bool {
	m, err := readMarker(dataDir)
	return err != nil || m.Version != version.Version
}

// MarkPassed records that preflight passed for this version.
func MarkPassed(dataDir string) error {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return fmt.Errorf("create marker directory: %w", err)
	}
	data, err := json.Marshal(marker{PassedAt: time.Now().UTC(), Version: version.Version})
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dataDir, MarkerFile), data, 0o644)
}

// ClearMarker removes the marker, forcing a re-check on the next run.
func ClearMarker(dataDir string) error {
	err := os.Remove(filepath.Join(dataDir, MarkerFile))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove marker file: %w", err)
	}
	return nil
}

// MarkerAge returns how long ago preflight passed, or zero without a marker.
func MarkerAge(dataDir string) time.Duration {
	m, err := readMarker(dataDir)
	if err != nil {
		return 0
	}
	return time.Since(m.PassedAt)
}

func readMarker(dataDir string) (marker, error) {
	var m marker
	data, err := os.ReadFile(filepath.Join(dataDir, MarkerFile))
	if err != nil {
		return m, err
	}
	err = json.Unmarshal(data, &m)
	return m, err
}
