// Package change decides whether a scanned file needs re-extraction.
package change

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/exif-turbo/exifturbo/internal/store"
)

// Policy selects how a file's identity is compared between runs.
type Policy string

const (
	// PolicyMtime compares size and modification time.
	PolicyMtime Policy = "mtime"
	// PolicyHash additionally accepts an equal SHA-256 of the content when
	// only the modification time moved.
	PolicyHash Policy = "hash"
)

// Status is the outcome of comparing a file against its stored signature.
type Status int

const (
	New Status = iota
	Unchanged
	Modified
)

func (s Status) String() string {
	switch s {
	case New:
		return "new"
	case Unchanged:
		return "unchanged"
	case Modified:
		return "modified"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// NeedsExtract reports whether the file must go through the extractor.
func (s Status) NeedsExtract() bool { return s != Unchanged }

// Current is what the scanner observed for one file.
type Current struct {
	Size    int64
	ModTime time.Time
	// Fingerprint is filled by the caller under PolicyHash.
	Fingerprint string
}

// ParsePolicy validates a configured policy name. Empty means mtime.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case "", PolicyMtime:
		return PolicyMtime, nil
	case PolicyHash:
		return PolicyHash, nil
	default:
		return "", fmt.Errorf("unknown change policy %q (want %q or %q)", s, PolicyMtime, PolicyHash)
	}
}

// Classify compares a file against the stored signature. A nil stored
// signature means the path was never indexed.
//
// Modification times are compared at nanosecond precision, so a file
// rewritten within the same second still counts as modified.
func Classify(stored *store.Signature, cur Current, policy Policy) Status {
	if stored == nil {
		return New
	}
	if stored.Size != cur.Size {
		return Modified
	}
	if stored.ModTime.Equal(cur.ModTime) {
		return Unchanged
	}
	if policy == PolicyHash && stored.Fingerprint != "" && stored.Fingerprint == cur.Fingerprint {
		return Unchanged
	}
	return Modified
}

// NeedsFingerprint reports whether Classify could use a content hash for
// this file. Callers hash only then.
func NeedsFingerprint(stored *store.Signature, cur Current, policy Policy) bool {
	return policy == PolicyHash &&
		stored != nil &&
		stored.Fingerprint != "" &&
		stored.Size == cur.Size &&
		!stored.ModTime.Equal(cur.ModTime)
}

// Fingerprint returns the hex SHA-256 of the file at path.
func Fingerprint(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer func() { _ = f.Close() }()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
