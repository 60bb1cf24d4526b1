package errors

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractionError_KindAndCode(t *testing.T) {
	tests := []struct {
		kind ExtractionKind
		code string
	}{
		{KindNotFound, ErrCodeExtractNotFound},
		{KindUnsupportedFormat, ErrCodeExtractUnsupported},
		{KindToolFailure, ErrCodeExtractToolFailure},
		{KindTimeout, ErrCodeExtractTimeout},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			// Given: an extraction error wrapped by a caller
			err := fmt.Errorf("worker: %w", NewExtractionError(tt.kind, "/photos/a.jpg", context.DeadlineExceeded))

			// Then: kind and code are both recoverable from the chain
			kind, ok := ExtractionKindOf(err)
			require.True(t, ok)
			assert.Equal(t, tt.kind, kind)
			assert.Equal(t, tt.code, GetCode(err))
			assert.Equal(t, SeverityWarning, mustTurbo(t, err).Severity)
			assert.Contains(t, err.Error(), "/photos/a.jpg")
		})
	}
}

func TestExtractionKindOf_ForeignError(t *testing.T) {
	_, ok := ExtractionKindOf(errors.New("boom"))
	assert.False(t, ok)
}

func TestNormalizationError_CarriesField(t *testing.T) {
	err := NewNormalizationError("/p/a.jpg", "iso", errors.New(`parse "abc"`))

	var ne *NormalizationError
	require.True(t, errors.As(err, &ne))
	assert.Equal(t, "iso", ne.Field)
	assert.Equal(t, ErrCodeNormalizeFailed, GetCode(err))
	assert.Contains(t, err.Error(), "field iso")
}

func TestQuerySyntaxError_Caret(t *testing.T) {
	// Given: a syntax error at position 6
	err := NewQuerySyntaxError(`camera "canon`, 7, "unterminated phrase")

	// Then: the message names the position and the caret points at it
	assert.Contains(t, err.Error(), "position 7")
	assert.Equal(t, "camera \"canon\n       ^", err.Caret())
	assert.Equal(t, CategoryValidation, GetCategory(err))
}

func TestUnknownColumnError(t *testing.T) {
	err := NewUnknownColumnError("foo:bar", 0, "foo")

	assert.Equal(t, ErrCodeUnknownColumn, GetCode(err))
	assert.Contains(t, err.Error(), `unknown column "foo"`)
}

func mustTurbo(t *testing.T, err error) *TurboError {
	t.Helper()
	te, ok := AsTurbo(err)
	require.True(t, ok)
	return te
}
