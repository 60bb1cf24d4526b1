package store

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// writerLock keeps a second exifturbo process from writing to the same index
// file. SQLite would serialize the transactions anyway, but two runs
// tombstoning against each other's half-finished scans would not be safe.
type writerLock struct {
	flock  *flock.Flock
	locked bool
}

func newWriterLock(dbPath string) *writerLock {
	return &writerLock{flock: flock.New(dbPath + ".lock")}
}

// TryLock acquires the lock without blocking. It returns false if another
// process holds it.
func (l *writerLock) TryLock() (bool, error) {
	if err := os.MkdirAll(filepath.Dir(l.flock.Path()), 0o755); err != nil {
		return false, fmt.Errorf("failed to create lock directory: %w", err)
	}
	ok, err := l.flock.TryLock()
	if err != nil {
		return false, fmt.Errorf("failed to acquire lock: %w", err)
	}
	l.locked = ok
	return ok, nil
}

// Unlock is safe to call on an unlocked lock.
func (l *writerLock) Unlock() error {
	if !l.locked {
		return nil
	}
	l.locked = false
	if err := l.flock.Unlock(); err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}
	return nil
}
