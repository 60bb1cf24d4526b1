package extract

import (
	"context"
	stderrors "errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/exif-turbo/exifturbo/internal/errors"
)

type stubExtractor struct {
	name  string
	calls int
	md    Metadata
	kind  errors.ExtractionKind
}

func (s *stubExtractor) Name() string { return s.name }

func (s *stubExtractor) Extract(_ context.Context, path string) (Metadata, error) {
	s.calls++
	if s.kind != "" {
		return nil, errors.NewExtractionError(s.kind, path, stderrors.New("stub"))
	}
	return s.md, nil
}

func TestFallback_UsesPrimaryWhenHealthy(t *testing.T) {
	primary := &stubExtractor{name: "p", md: Metadata{"IFD0:Make": "Canon"}}
	secondary := &stubExtractor{name: "s"}
	f := NewFallback(primary, secondary, nil, nil)

	md, err := f.Extract(context.Background(), "/a.jpg")

	require.NoError(t, err)
	assert.Equal(t, "Canon", md["IFD0:Make"])
	assert.Equal(t, 0, secondary.calls)
	assert.Equal(t, "p+s", f.Name())
}

func TestFallback_ToolFailureGoesToSecondary(t *testing.T) {
	primary := &stubExtractor{name: "p", kind: errors.KindToolFailure}
	secondary := &stubExtractor{name: "s", md: Metadata{"EXIF:Make": "Nikon"}}
	f := NewFallback(primary, secondary, nil, nil)

	md, err := f.Extract(context.Background(), "/a.jpg")

	require.NoError(t, err)
	assert.Equal(t, "Nikon", md["EXIF:Make"])
	assert.Equal(t, 1, primary.calls)
	assert.Equal(t, 1, secondary.calls)
}

func TestFallback_OtherKindsAreReturned(t *testing.T) {
	for _, kind := range []errors.ExtractionKind{errors.KindUnsupportedFormat, errors.KindTimeout, errors.KindNotFound} {
		t.Run(string(kind), func(t *testing.T) {
			primary := &stubExtractor{name: "p", kind: kind}
			secondary := &stubExtractor{name: "s"}
			f := NewFallback(primary, secondary, nil, nil)

			_, err := f.Extract(context.Background(), "/a.jpg")

			requireKind(t, err, kind)
			assert.Equal(t, 0, secondary.calls)
			assert.Equal(t, 0, f.Breaker().Failures())
		})
	}
}

func TestFallback_OpenBreakerSkipsPrimary(t *testing.T) {
	// Given a breaker that opens after two tool failures
	primary := &stubExtractor{name: "p", kind: errors.KindToolFailure}
	secondary := &stubExtractor{name: "s", md: Metadata{}}
	cb := errors.NewCircuitBreaker("exiftool", errors.WithMaxFailures(2), errors.WithResetTimeout(time.Hour))
	f := NewFallback(primary, secondary, cb, nil)

	// When extracting five files
	for range 5 {
		_, err := f.Extract(context.Background(), "/a.jpg")
		require.NoError(t, err)
	}

	// Then the primary is only tried until the breaker opens
	assert.Equal(t, 2, primary.calls)
	assert.Equal(t, 5, secondary.calls)
	assert.Equal(t, errors.StateOpen, cb.State())
}

func TestGoExif_NotAnImage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.jpg")
	require.NoError(t, os.WriteFile(path, []byte("plain text, no markers"), 0o644))

	_, err := NewGoExif().Extract(context.Background(), path)

	requireKind(t, err, errors.KindUnsupportedFormat)
}

func TestGoExif_Missing(t *testing.T) {
	_, err := NewGoExif().Extract(context.Background(), filepath.Join(t.TempDir(), "none.jpg"))

	requireKind(t, err, errors.KindNotFound)
}

func TestGoExif_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewGoExif().Extract(ctx, "/whatever.jpg")

	assert.ErrorIs(t, err, context.Canceled)
}

func TestRational(t *testing.T) {
	assert.Equal(t, "28", rational(28, 1))
	assert.Equal(t, "1/250", rational(1, 250))
	assert.Equal(t, "", rational(1, 0))
}
