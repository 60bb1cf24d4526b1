package extract

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"github.com/exif-turbo/exifturbo/internal/errors"
	"github.com/exif-turbo/exifturbo/internal/logging"
)

const (
	// DefaultExifToolPath is resolved through PATH.
	DefaultExifToolPath = "exiftool"
	// DefaultTimeout bounds one exiftool invocation.
	DefaultTimeout = 30 * time.Second

	// waitDelay is how long to wait for output pipes after the process is
	// killed; exiftool can leave a child holding stdout.
	waitDelay = 2 * time.Second
	// maxStderr caps the stderr kept for error messages.
	maxStderr = 4 << 10
)

// ExifTool extracts metadata by running exiftool once per file.
type ExifTool struct {
	path    string
	timeout time.Duration
	logger  *slog.Logger
}

// ExifToolOption configures an ExifTool.
type ExifToolOption func(*ExifTool)

// WithToolPath sets the exiftool binary. Empty keeps the default.
func WithToolPath(path string) ExifToolOption {
	return func(e *ExifTool) {
		if path != "" {
			e.path = path
		}
	}
}

// WithTimeout sets the per-file deadline. Non-positive keeps the default.
func WithTimeout(d time.Duration) ExifToolOption {
	return func(e *ExifTool) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) ExifToolOption {
	return func(e *ExifTool) {
		e.logger = l
	}
}

// NewExifTool creates an exiftool-backed extractor.
func NewExifTool(opts ...ExifToolOption) *ExifTool {
	e := &ExifTool{
		path:    DefaultExifToolPath,
		timeout: DefaultTimeout,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = logging.OrDiscard(e.logger)
	return e
}

// Name implements Extractor.
func (e *ExifTool) Name() string { return "exiftool" }

// Extract runs `exiftool -json -g1 -n -- path` and flattens the result.
func (e *ExifTool) Extract(ctx context.Context, path string) (Metadata, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := statFile(path); err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(runCtx, e.path, "-json", "-g1", "-n", "--", path)
	cmd.Stdout = &stdout
	cmd.Stderr = &limitedBuffer{buf: &stderr, max: maxStderr}
	cmd.WaitDelay = waitDelay

	start := time.Now()
	runErr := cmd.Run()

	// Parent cancellation is not a per-file failure.
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if stderrors.Is(runCtx.Err(), context.DeadlineExceeded) {
		e.logger.Warn("exiftool timed out", slog.String("path", path), slog.Duration("timeout", e.timeout))
		return nil, errors.NewExtractionError(errors.KindTimeout, path,
			fmt.Errorf("no result after %s", e.timeout))
	}

	var execErr *exec.Error
	if stderrors.As(runErr, &execErr) {
		return nil, errors.NewExtractionError(errors.KindToolFailure, path, runErr)
	}

	md, toolErr, parseErr := parseOutput(stdout.Bytes())
	switch {
	case toolErr != "":
		return nil, errors.NewExtractionError(errors.KindUnsupportedFormat, path, stderrors.New(toolErr))
	case runErr != nil:
		return nil, errors.NewExtractionError(errors.KindToolFailure, path, withStderr(runErr, stderr.String()))
	case parseErr != nil:
		return nil, errors.NewExtractionError(errors.KindToolFailure, path, withStderr(parseErr, stderr.String()))
	}

	e.logger.Debug("extracted",
		slog.String("path", path),
		slog.Int("tags", len(md)),
		slog.Duration("took", time.Since(start)))
	return md, nil
}

// Version runs `exiftool -ver`.
func (e *ExifTool) Version(ctx context.Context) (string, error) {
	runCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	cmd := exec.CommandContext(runCtx, e.path, "-ver")
	cmd.WaitDelay = waitDelay
	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("run %s -ver: %w", e.path, err)
	}
	return strings.TrimSpace(string(out)), nil
}

// parseOutput decodes exiftool's JSON array. toolErr carries exiftool's own
// per-file "Error" tag, which it reports for unknown or damaged files.
func parseOutput(out []byte) (md Metadata, toolErr string, err error) {
	out = bytes.TrimSpace(out)
	if len(out) == 0 {
		return nil, "", stderrors.New("empty output")
	}
	var items []map[string]json.RawMessage
	if err := json.Unmarshal(out, &items); err != nil {
		return nil, "", fmt.Errorf("malformed output: %w", err)
	}
	if len(items) == 0 {
		return nil, "", stderrors.New("no result object")
	}
	md = flatten(items[0])
	for _, key := range []string{"ExifTool:Error", "Error"} {
		if msg, ok := md[key]; ok {
			return md, msg, nil
		}
	}
	return md, "", nil
}

func withStderr(err error, stderr string) error {
	stderr = strings.TrimSpace(stderr)
	if stderr == "" {
		return err
	}
	return fmt.Errorf("%w: %s", err, stderr)
}

// limitedBuffer keeps at most max bytes and discards the rest.
type limitedBuffer struct {
	buf *bytes.Buffer
	max int
}

func (b *limitedBuffer) Write(p []byte) (int, error) {
	if room := b.max - b.buf.Len(); room > 0 {
		if len(p) > room {
			b.buf.Write(p[:room])
		} else {
			b.buf.Write(p)
		}
	}
	return len(p), nil
}
