package index

import (
	"encoding/json"
	"time"
)

// State is the phase an Orchestrator is in.
type State int

const (
	StateIdle State = iota
	StateScanning
	StateExtracting
	StateCommitting
	StateTombstoning
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateScanning:
		return "scanning"
	case StateExtracting:
		return "extracting"
	case StateCommitting:
		return "committing"
	case StateTombstoning:
		return "tombstoning"
	default:
		return "unknown"
	}
}

// FileError is one per-file problem of a run.
type FileError struct {
	Path string
	Err  error
}

// MarshalJSON renders the error as text.
func (e FileError) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Path  string `json:"path"`
		Error string `json:"error"`
	}{e.Path, e.Err.Error()})
}

// Summary is the outcome of a run. Counts cover every folder of the run.
type Summary struct {
	Folders []string `json:"folders"`

	// Scanned is the number of distinct files the walk observed.
	Scanned   int `json:"scanned"`
	New       int `json:"new"`
	Modified  int `json:"modified"`
	Unchanged int `json:"unchanged"`
	// Indexed is the number of records written by this run.
	Indexed int `json:"indexed"`
	// Skipped files were selected for extraction but not written.
	Skipped int `json:"skipped"`
	Deleted int `json:"deleted"`

	// Errors are files that could not be indexed. Warnings are files that
	// were indexed with losses, or that vanished, and unreadable folders.
	Errors   []FileError `json:"errors"`
	Warnings []FileError `json:"warnings"`

	// Incomplete lists folders whose walk hit an unreadable path; they
	// were not tombstoned.
	Incomplete []string `json:"incomplete,omitempty"`

	Cancelled bool          `json:"cancelled"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration_ns"`
}

func (s *Summary) addError(path string, err error) {
	s.Errors = append(s.Errors, FileError{Path: path, Err: err})
}

func (s *Summary) addWarning(path string, err error) {
	s.Warnings = append(s.Warnings, FileError{Path: path, Err: err})
}
