// Package errors provides structured error handling for ragingest.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration errors
//   - 2XX: IO errors (object storage, disk)
//   - 3XX: Network errors
//   - 4XX: Validation errors
//   - 5XX: Internal errors (registry, index)
package errors

// Category defines error categories for classification.
type Category string

const (
	// CategoryConfig indicates configuration-related errors.
	CategoryConfig Category = "CONFIG"
	// CategoryIO indicates object storage and disk errors.
	CategoryIO Category = "IO"
	// CategoryNetwork indicates network-related errors.
	CategoryNetwork Category = "NETWORK"
	// CategoryValidation indicates input validation errors.
	CategoryValidation Category = "VALIDATION"
	// CategoryInternal indicates registry, index, and unexpected errors.
	CategoryInternal Category = "INTERNAL"
)

// Severity defines error severity levels.
type Severity string

const (
	// SeverityFatal indicates the system state needs operator attention.
	SeverityFatal Severity = "FATAL"
	// SeverityError indicates the event failed; redelivery may fix it.
	SeverityError Severity = "ERROR"
	// SeverityWarning indicates degraded operation, continuing.
	SeverityWarning Severity = "WARNING"
	// SeverityInfo indicates informational only.
	SeverityInfo Severity = "INFO"
)

// Error codes organized by category.
const (
	// Config errors (100-199)
	ErrCodeConfigNotFound = "ERR_101_CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid  = "ERR_102_CONFIG_INVALID"

	// IO errors (200-299)
	ErrCodeFetchFailed    = "ERR_201_FETCH_FAILED"
	ErrCodeObjectTooLarge = "ERR_204_OBJECT_TOO_LARGE"

	// Network errors (300-399)
	ErrCodeNetworkTimeout = "ERR_301_NETWORK_TIMEOUT"
	ErrCodeNotifyFailed   = "ERR_302_NOTIFY_FAILED"

	// Validation errors (400-499)
	ErrCodeInvalidInput      = "ERR_401_INVALID_INPUT"
	ErrCodeDimensionMismatch = "ERR_402_DIMENSION_MISMATCH"
	ErrCodeInvalidPath       = "ERR_406_INVALID_PATH"
	ErrCodeInvalidMessage    = "ERR_407_INVALID_MESSAGE"

	// Internal errors (500-599)
	ErrCodeInternal          = "ERR_501_INTERNAL"
	ErrCodeEmbeddingFailed   = "ERR_502_EMBEDDING_FAILED"
	ErrCodeChunkingFailed    = "ERR_504_CHUNKING_FAILED"
	ErrCodeIndexFailed       = "ERR_505_INDEX_FAILED"
	ErrCodeRegistryWrite     = "ERR_506_REGISTRY_WRITE"
	ErrCodeRegistryRead      = "ERR_507_REGISTRY_READ"
	ErrCodeClaimContended    = "ERR_508_CLAIM_CONTENDED"
	ErrCodeInconsistentState = "ERR_509_INCONSISTENT_STATE"
)

// categoryFromCode extracts category from error code.
func categoryFromCode(code string) Category {
	if len(code) < 7 {
		return CategoryInternal
	}

	// Extract numeric portion (e.g., "201" from "ERR_201_FETCH_FAILED")
	switch code[4] {
	case '1':
		return CategoryConfig
	case '2':
		return CategoryIO
	case '3':
		return CategoryNetwork
	case '4':
		return CategoryValidation
	default:
		return CategoryInternal
	}
}

// severityFromCode determines severity based on error code.
func severityFromCode(code string) Severity {
	switch code {
	case ErrCodeInconsistentState:
		return SeverityFatal
	case ErrCodeNotifyFailed:
		return SeverityWarning
	}

	if isRetryableCode(code) {
		return SeverityWarning
	}

	return SeverityError
}

// isRetryableCode checks if an error code represents a transient condition.
func isRetryableCode(code string) bool {
	switch code {
	case ErrCodeNetworkTimeout, ErrCodeFetchFailed, ErrCodeClaimContended:
		return true
	default:
		return false
	}
}
