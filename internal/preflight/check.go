package preflight

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/exif-turbo/exifturbo/internal/config"
	"github.com/exif-turbo/exifturbo/internal/logging"
)

// CheckStatus is the outcome of one check.
type CheckStatus int

const (
	StatusPass CheckStatus = iota
	StatusWarn
	StatusFail
)

var statusNames = [...]string{"PASS", "WARN", "FAIL"}

func (s CheckStatus) String() string {
	if s < 0 || int(s) >= len(statusNames) {
		return "UNKNOWN"
	}
	return statusNames[s]
}

// MarshalText encodes the status by name, so JSON reports stay readable.
func (s CheckStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText accepts the names produced by MarshalText.
func (s *CheckStatus) UnmarshalText(b []byte) error {
	for i, name := range statusNames {
		if strings.EqualFold(name, string(b)) {
			*s = CheckStatus(i)
			return nil
		}
	}
	return fmt.Errorf("unknown check status %q", b)
}

// Group names the part of the setup a check covers. PrintResults lists
// checks group by group in this order.
type Group string

const (
	GroupExtractor Group = "extractor"
	GroupIndex     Group = "index"
	GroupLibrary   Group = "library"
	GroupSystem    Group = "system"
)

var groupOrder = []Group{GroupExtractor, GroupIndex, GroupLibrary, GroupSystem}

var groupTitles = map[Group]string{
	GroupExtractor: "Metadata extraction",
	GroupIndex:     "Index",
	GroupLibrary:   "Photo folders",
	GroupSystem:    "System",
}

// CheckResult holds the result of a single check.
type CheckResult struct {
	Name     string      `json:"name"`
	Group    Group       `json:"group"`
	Status   CheckStatus `json:"status"`
	Message  string      `json:"message"`
	Details  string      `json:"details,omitempty"`
	Required bool        `json:"required"`
}

// IsCritical reports a failed required check. Index runs refuse to start
// while one is present.
func (r CheckResult) IsCritical() bool {
	return r.Required && r.Status == StatusFail
}

// Report is the outcome of RunAll.
type Report struct {
	Results []CheckResult
}

// Failed reports whether any required check failed.
func (r Report) Failed() bool {
	return len(r.Critical()) > 0
}

// Critical returns the failed required checks.
func (r Report) Critical() []CheckResult {
	var out []CheckResult
	for _, res := range r.Results {
		if res.IsCritical() {
			out = append(out, res)
		}
	}
	return out
}

// Warnings returns warnings and failed optional checks.
func (r Report) Warnings() []CheckResult {
	var out []CheckResult
	for _, res := range r.Results {
		if res.Status == StatusWarn || (res.Status == StatusFail && !res.Required) {
			out = append(out, res)
		}
	}
	return out
}

// Status summarizes the report as "ready", "ready_with_warnings" or
// "failed".
func (r Report) Status() string {
	switch {
	case r.Failed():
		return "failed"
	case len(r.Warnings()) > 0:
		return "ready_with_warnings"
	default:
		return "ready"
	}
}

// Checker runs the checks.
type Checker struct {
	verbose bool
	output  io.Writer
	logger  *slog.Logger
}

// Option configures a Checker.
type Option func(*Checker)

// WithVerbose prints check details.
func WithVerbose(verbose bool) Option {
	return func(c *Checker) {
		c.verbose = verbose
	}
}

// WithOutput sets where PrintResults writes.
func WithOutput(w io.Writer) Option {
	return func(c *Checker) {
		c.output = w
	}
}

// WithLogger sets the logger used by checks that run external tools.
func WithLogger(l *slog.Logger) Option {
	return func(c *Checker) {
		c.logger = l
	}
}

// New creates a Checker.
func New(opts ...Option) *Checker {
	c := &Checker{output: os.Stdout}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = logging.OrDiscard(c.logger)
	return c
}

// RunAll runs every check for cfg.
func (c *Checker) RunAll(ctx context.Context, cfg *config.Config) Report {
	dataDir := existingDir(filepath.Dir(cfg.DB))

	results := []CheckResult{
		c.CheckExifTool(ctx, cfg.Extractor.ExifToolPath, cfg.FallbackEnabled()),
		c.CheckIndex(ctx, cfg.DB),
		c.CheckIndexDir(dataDir),
		c.CheckDiskSpace(dataDir, indexFootprint(cfg.DB)),
	}
	results = append(results, c.CheckFolders(cfg.Folders)...)
	results = append(results, c.CheckFileDescriptors())
	return Report{Results: results}
}

// PrintResults writes the report grouped by area, then the summary.
func (c *Checker) PrintResults(report Report) {
	w := c.output
	_, _ = fmt.Fprintln(w, "exifturbo doctor")

	for _, g := range groupOrder {
		var rows []CheckResult
		for _, r := range report.Results {
			if r.Group == g {
				rows = append(rows, r)
			}
		}
		if len(rows) == 0 {
			continue
		}
		_, _ = fmt.Fprintf(w, "\n%s\n", groupTitles[g])
		for _, r := range rows {
			_, _ = fmt.Fprintf(w, "  [%s] %s: %s\n", r.Status, r.Name, r.Message)
			if c.verbose && r.Details != "" {
				_, _ = fmt.Fprintf(w, "         %s\n", r.Details)
			}
		}
	}

	crit, warn := report.Critical(), report.Warnings()
	_, _ = fmt.Fprintf(w, "\nStatus: %s (%d checks, %d failed, %d warnings)\n",
		strings.ToUpper(report.Status()), len(report.Results), len(crit), len(warn))
	for _, r := range crit {
		_, _ = fmt.Fprintf(w, "  - %s: %s\n", r.Name, r.Message)
	}
}

// CheckIndexDir checks that the directory holding the index accepts new
// files. SQLite needs it for the WAL and the lock file as well.
func (c *Checker) CheckIndexDir(dir string) CheckResult {
	result := CheckResult{
		Name:     "index_dir",
		Group:    GroupIndex,
		Required: true,
	}

	f, err := os.CreateTemp(dir, ".exifturbo-preflight-*")
	if err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("cannot write to %s", dir)
		result.Details = err.Error()
		return result
	}
	_ = f.Close()
	_ = os.Remove(f.Name())

	result.Status = StatusPass
	result.Message = "writable"
	result.Details = dir
	return result
}

// existingDir returns dir or its closest existing ancestor, so checks run
// before the index directory has been created.
func existingDir(dir string) string {
	for {
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return dir
		}
		dir = parent
	}
}
