package errors

import (
	"errors"
	"fmt"
)

// TurboError is the structured error type for exifturbo.
// It carries enough context for the CLI, the logs and the JSON API to
// render the same failure consistently.
type TurboError struct {
	// Code is the unique error code (e.g., "ERR_206_STORE_COMMIT").
	Code string

	// Message is the human-readable error message.
	Message string

	Category Category
	Severity Severity

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error that caused this error.
	Cause error

	Retryable bool

	// Suggestion is an actionable hint for the operator.
	Suggestion string
}

// Error implements the error interface.
func (e *TurboError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *TurboError) Unwrap() error {
	return e.Cause
}

// Is matches errors by code, so sentinel values such as ErrStoreClosed
// work with errors.Is.
func (e *TurboError) Is(target error) bool {
	if t, ok := target.(*TurboError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
func (e *TurboError) WithDetail(key, value string) *TurboError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithSuggestion adds an actionable suggestion for the user.
func (e *TurboError) WithSuggestion(suggestion string) *TurboError {
	e.Suggestion = suggestion
	return e
}

// New creates a TurboError. Category, severity and the retryable flag are
// derived from the code.
func New(code string, message string, cause error) *TurboError {
	return &TurboError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap creates a TurboError from an existing error, reusing its message.
func Wrap(code string, err error) *TurboError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// Sentinels for errors.Is checks.
var (
	ErrStoreClosed = New(ErrCodeStoreClosed, "store is closed", nil)
	ErrStoreLocked = New(ErrCodeStoreLocked, "store is locked by another writer", nil)
)

// ConfigError creates a configuration-related error.
func ConfigError(message string, cause error) *TurboError {
	return New(ErrCodeConfigInvalid, message, cause)
}

// StoreError creates a fatal store error. A run that sees one aborts and
// leaves the store at its last committed batch.
func StoreError(code string, message string, cause error) *TurboError {
	e := New(code, message, cause)
	if e.Category != CategoryStore {
		e.Category = CategoryStore
	}
	return e
}

// ValidationError creates a validation-related error.
func ValidationError(message string, cause error) *TurboError {
	return New(ErrCodeInvalidInput, message, cause)
}

// QueryExecutionError reports a query that parsed but could not be run.
func QueryExecutionError(message string, cause error) *TurboError {
	return New(ErrCodeSearchFailed, message, cause).
		WithSuggestion("Check that the index exists and is readable")
}

// InternalError creates an internal error.
func InternalError(message string, cause error) *TurboError {
	return New(ErrCodeInternal, message, cause)
}

// AsTurbo finds the first TurboError in err's chain.
func AsTurbo(err error) (*TurboError, bool) {
	var te *TurboError
	if errors.As(err, &te) {
		return te, true
	}
	return nil, false
}

// IsRetryable reports whether err carries the Retryable flag.
func IsRetryable(err error) bool {
	if te, ok := AsTurbo(err); ok {
		return te.Retryable
	}
	return false
}

// IsFatal checks if an error has fatal severity.
func IsFatal(err error) bool {
	if te, ok := AsTurbo(err); ok {
		return te.Severity == SeverityFatal
	}
	return false
}

// GetCode extracts the error code, or "" for foreign errors.
func GetCode(err error) string {
	if te, ok := AsTurbo(err); ok {
		return te.Code
	}
	return ""
}

// GetCategory extracts the category, or "" for foreign errors.
func GetCategory(err error) Category {
	if te, ok := AsTurbo(err); ok {
		return te.Category
	}
	return ""
}
