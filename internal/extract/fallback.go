package extract

import (
	"context"
	stderrors "errors"
	"log/slog"

	"github.com/exif-turbo/exifturbo/internal/errors"
	"github.com/exif-turbo/exifturbo/internal/logging"
)

// Fallback sends files to the primary extractor through a circuit breaker
// and retries tool failures on the secondary. Other failure kinds are
// returned unchanged: a file exiftool cannot read is not one goexif can.
type Fallback struct {
	primary   Extractor
	secondary Extractor
	breaker   *errors.CircuitBreaker
	logger    *slog.Logger
}

// NewFallback wraps primary. A nil breaker gets the package defaults.
func NewFallback(primary, secondary Extractor, breaker *errors.CircuitBreaker, logger *slog.Logger) *Fallback {
	if breaker == nil {
		breaker = errors.NewCircuitBreaker(primary.Name())
	}
	return &Fallback{
		primary:   primary,
		secondary: secondary,
		breaker:   breaker,
		logger:    logging.OrDiscard(logger),
	}
}

// Name implements Extractor.
func (f *Fallback) Name() string {
	return f.primary.Name() + "+" + f.secondary.Name()
}

// Breaker exposes the circuit breaker for status reporting.
func (f *Fallback) Breaker() *errors.CircuitBreaker { return f.breaker }

// Extract implements Extractor.
func (f *Fallback) Extract(ctx context.Context, path string) (Metadata, error) {
	md, err := errors.Guard(f.breaker, func() (Metadata, error) {
		return f.primary.Extract(ctx, path)
	}, isToolFailure)
	if err == nil {
		return md, nil
	}

	if !stderrors.Is(err, errors.ErrCircuitOpen) && !isToolFailure(err) {
		return nil, err
	}
	f.logger.Debug("falling back",
		slog.String("path", path),
		slog.String("extractor", f.secondary.Name()),
		slog.String("breaker", f.breaker.State().String()),
		slog.String("error", err.Error()))
	return f.secondary.Extract(ctx, path)
}

func isToolFailure(err error) bool {
	kind, ok := errors.ExtractionKindOf(err)
	return ok && kind == errors.KindToolFailure
}
