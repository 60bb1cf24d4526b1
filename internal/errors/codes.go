// Package errors provides the structured error type shared by the indexer,
// the store and the query engine.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration errors
//   - 2XX: Store and file IO errors
//   - 3XX: Metadata extraction and normalization errors
//   - 4XX: Validation and query syntax errors
//   - 5XX: Internal and query execution errors
package errors

// Category classifies an error by the subsystem that raised it.
type Category string

const (
	CategoryConfig     Category = "CONFIG"
	CategoryStore      Category = "STORE"
	CategoryExtraction Category = "EXTRACTION"
	CategoryValidation Category = "VALIDATION"
	CategoryInternal   Category = "INTERNAL"
)

// Severity tells callers whether a run can continue after the error.
type Severity string

const (
	// SeverityFatal aborts the current run.
	SeverityFatal Severity = "FATAL"
	// SeverityError fails one operation; the caller may continue.
	SeverityError Severity = "ERROR"
	// SeverityWarning is reported in a run summary and otherwise ignored.
	SeverityWarning Severity = "WARNING"
)

const (
	// Config errors (100-199)
	ErrCodeConfigNotFound = "ERR_101_CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid  = "ERR_102_CONFIG_INVALID"

	// Store errors (200-299)
	ErrCodeFileNotFound   = "ERR_201_FILE_NOT_FOUND"
	ErrCodeFilePermission = "ERR_202_FILE_PERMISSION"
	ErrCodeDiskFull       = "ERR_203_DISK_FULL"
	ErrCodeStoreOpen      = "ERR_204_STORE_OPEN"
	ErrCodeCorruptIndex   = "ERR_205_CORRUPT_INDEX"
	ErrCodeStoreCommit    = "ERR_206_STORE_COMMIT"
	ErrCodeStoreBusy      = "ERR_207_STORE_BUSY"
	ErrCodeStoreClosed    = "ERR_208_STORE_CLOSED"
	ErrCodeStoreLocked    = "ERR_209_STORE_LOCKED"

	// Extraction errors (300-399)
	ErrCodeExtractNotFound    = "ERR_301_EXTRACT_NOT_FOUND"
	ErrCodeExtractUnsupported = "ERR_302_EXTRACT_UNSUPPORTED"
	ErrCodeExtractToolFailure = "ERR_303_EXTRACT_TOOL_FAILURE"
	ErrCodeExtractTimeout     = "ERR_304_EXTRACT_TIMEOUT"
	ErrCodeNormalizeFailed    = "ERR_310_NORMALIZE_FAILED"

	// Validation errors (400-499)
	ErrCodeInvalidInput  = "ERR_401_INVALID_INPUT"
	ErrCodeInvalidQuery  = "ERR_403_INVALID_QUERY"
	ErrCodeUnknownColumn = "ERR_404_UNKNOWN_COLUMN"
	ErrCodeInvalidPath   = "ERR_406_INVALID_PATH"

	// Internal errors (500-599)
	ErrCodeInternal     = "ERR_501_INTERNAL"
	ErrCodeSearchFailed = "ERR_503_SEARCH_FAILED"
	ErrCodeIndexFailed  = "ERR_505_INDEX_FAILED"
)

// categoryFromCode extracts category from error code.
func categoryFromCode(code string) Category {
	if len(code) < 7 {
		return CategoryInternal
	}

	// "2" from "ERR_205_CORRUPT_INDEX"
	switch code[4] {
	case '1':
		return CategoryConfig
	case '2':
		return CategoryStore
	case '3':
		return CategoryExtraction
	case '4':
		return CategoryValidation
	default:
		return CategoryInternal
	}
}

func severityFromCode(code string) Severity {
	switch code {
	case ErrCodeCorruptIndex, ErrCodeDiskFull, ErrCodeStoreOpen, ErrCodeStoreCommit, ErrCodeStoreLocked:
		return SeverityFatal
	}

	// Per-file pipeline failures only degrade a run.
	if categoryFromCode(code) == CategoryExtraction {
		return SeverityWarning
	}

	return SeverityError
}

func isRetryableCode(code string) bool {
	switch code {
	case ErrCodeStoreBusy, ErrCodeExtractTimeout:
		return true
	default:
		return false
	}
}
