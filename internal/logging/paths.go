package logging

import (
	"os"
	"path/filepath"
)

// DefaultDataDir returns ~/.exifturbo, falling back to the temp directory
// if the home directory is unavailable.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".exifturbo")
	}
	return filepath.Join(home, ".exifturbo")
}

// DefaultLogDir returns the default log directory (~/.exifturbo/logs/).
func DefaultLogDir() string {
	return filepath.Join(DefaultDataDir(), "logs")
}

// DefaultLogPath returns the default log file path.
func DefaultLogPath() string {
	return filepath.Join(DefaultLogDir(), "exifturbo.log")
}
