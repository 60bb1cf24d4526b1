package errors

import (
	"errors"
	"fmt"
)

// ExtractionKind names why metadata could not be read from a file.
type ExtractionKind string

const (
	KindNotFound          ExtractionKind = "not_found"
	KindUnsupportedFormat ExtractionKind = "unsupported_format"
	KindToolFailure       ExtractionKind = "tool_failure"
	KindTimeout           ExtractionKind = "timeout"
)

var kindCodes = map[ExtractionKind]string{
	KindNotFound:          ErrCodeExtractNotFound,
	KindUnsupportedFormat: ErrCodeExtractUnsupported,
	KindToolFailure:       ErrCodeExtractToolFailure,
	KindTimeout:           ErrCodeExtractTimeout,
}

// ExtractionError is a per-file failure of the metadata extractor.
// The orchestrator records it and moves on to the next file.
type ExtractionError struct {
	Kind ExtractionKind
	Path string
	Err  *TurboError
}

// NewExtractionError builds an ExtractionError for path.
func NewExtractionError(kind ExtractionKind, path string, cause error) *ExtractionError {
	msg := fmt.Sprintf("extract %s: %s", path, kind)
	if cause != nil {
		msg = fmt.Sprintf("extract %s: %s: %v", path, kind, cause)
	}
	te := New(kindCodes[kind], msg, cause).WithDetail("path", path)
	if kind == KindToolFailure {
		te.Suggestion = "Run 'exifturbo doctor' to check the exiftool installation"
	}
	return &ExtractionError{Kind: kind, Path: path, Err: te}
}

func (e *ExtractionError) Error() string { return e.Err.Error() }

func (e *ExtractionError) Unwrap() error { return e.Err }

// ExtractionKindOf returns the extraction kind in err's chain.
func ExtractionKindOf(err error) (ExtractionKind, bool) {
	var ee *ExtractionError
	if errors.As(err, &ee) {
		return ee.Kind, true
	}
	return "", false
}

// NormalizationError reports a tag that could not be mapped or coerced.
// The record it accompanies is still usable.
type NormalizationError struct {
	Path  string
	Field string
	Err   *TurboError
}

// NewNormalizationError builds a NormalizationError for one field of path.
// An empty field means the whole record fell back to overflow-only.
func NewNormalizationError(path, field string, cause error) *NormalizationError {
	msg := fmt.Sprintf("normalize %s", path)
	if field != "" {
		msg = fmt.Sprintf("normalize %s: field %s", path, field)
	}
	if cause != nil {
		msg += ": " + cause.Error()
	}
	te := New(ErrCodeNormalizeFailed, msg, cause).WithDetail("path", path)
	if field != "" {
		te.WithDetail("field", field)
	}
	return &NormalizationError{Path: path, Field: field, Err: te}
}

func (e *NormalizationError) Error() string { return e.Err.Error() }

func (e *NormalizationError) Unwrap() error { return e.Err }

// QuerySyntaxError is a malformed query. Pos is the zero-based byte offset
// of the offending input.
type QuerySyntaxError struct {
	Query string
	Pos   int
	Err   *TurboError
}

// NewQuerySyntaxError builds a syntax error pointing at pos in query.
func NewQuerySyntaxError(query string, pos int, msg string) *QuerySyntaxError {
	return newQueryError(ErrCodeInvalidQuery, query, pos, msg)
}

// NewUnknownColumnError reports a column prefix that is not in the schema.
func NewUnknownColumnError(query string, pos int, column string) *QuerySyntaxError {
	e := newQueryError(ErrCodeUnknownColumn, query, pos, fmt.Sprintf("unknown column %q", column))
	e.Err.WithDetail("column", column)
	return e
}

func newQueryError(code, query string, pos int, msg string) *QuerySyntaxError {
	te := New(code, msg, nil).
		WithDetail("position", fmt.Sprint(pos)).
		WithSuggestion(`Quote phrases with "..." and put terms on both sides of AND, OR and NOT`)
	return &QuerySyntaxError{Query: query, Pos: pos, Err: te}
}

func (e *QuerySyntaxError) Error() string {
	return fmt.Sprintf("%s at position %d", e.Err.Error(), e.Pos)
}

func (e *QuerySyntaxError) Unwrap() error { return e.Err }

// Caret renders the query with a marker under the offending position.
func (e *QuerySyntaxError) Caret() string {
	pos := e.Pos
	if pos > len(e.Query) {
		pos = len(e.Query)
	}
	marker := make([]byte, pos)
	for i := range marker {
		if e.Query[i] == '\t' {
			marker[i] = '\t'
		} else {
			marker[i] = ' '
		}
	}
	return e.Query + "\n" + string(marker) + "^"
}
