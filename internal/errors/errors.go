package errors

import (
	stderrors "errors"
	"fmt"
)

// PipelineError is the structured error type for ragingest.
// Every worker step returns one so callers branch on Code, not on message text.
type PipelineError struct {
	// Code is the unique error code (e.g., "ERR_201_FETCH_FAILED").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category is the error category (Config, IO, Network, etc.).
	Category Category

	// Severity is the error severity level.
	Severity Severity

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error that caused this error.
	Cause error

	// Retryable indicates if redelivery of the same event may succeed.
	Retryable bool
}

// Error implements the error interface.
func (e *PipelineError) Error() string {
	if e.Cause != nil && e.Cause.Error() != e.Message {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *PipelineError) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches the target error by code.
// This enables errors.Is() to work with PipelineError sentinels.
func (e *PipelineError) Is(target error) bool {
	if t, ok := target.(*PipelineError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
// Returns the error for method chaining.
func (e *PipelineError) WithDetail(key, value string) *PipelineError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// New creates a new PipelineError with the given code and message.
// Category, severity, and retryable flag are derived from the code.
func New(code string, message string, cause error) *PipelineError {
	return &PipelineError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap creates a PipelineError from an existing error.
// The error's message becomes the PipelineError message.
func Wrap(code string, err error) *PipelineError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// ConfigError creates a configuration-related error.
func ConfigError(message string, cause error) *PipelineError {
	return New(ErrCodeConfigInvalid, message, cause)
}

// FetchError reports that an object could not be read from storage.
func FetchError(key string, cause error) *PipelineError {
	return New(ErrCodeFetchFailed, "fetch "+key, cause).WithDetail("key", key)
}

// MalformedPathError reports an object key that does not follow
// <visibility>/<owner>/<...path>.
func MalformedPathError(key string, reason string) *PipelineError {
	return New(ErrCodeInvalidPath, fmt.Sprintf("malformed storage path %q: %s", key, reason), nil).
		WithDetail("key", key)
}

// MalformedMessageError reports a queue body that is not a notification document.
func MalformedMessageError(messageID string, cause error) *PipelineError {
	return New(ErrCodeInvalidMessage, "malformed message "+messageID, cause).
		WithDetail("message_id", messageID)
}

// RegistryReadError reports a registry lookup fault.
func RegistryReadError(message string, cause error) *PipelineError {
	return New(ErrCodeRegistryRead, message, cause)
}

// RegistryWriteError reports a registry put or delete fault.
func RegistryWriteError(message string, cause error) *PipelineError {
	return New(ErrCodeRegistryWrite, message, cause)
}

// ClaimContendedError reports that a concurrent ingestion holds the fingerprint.
func ClaimContendedError(fingerprint string) *PipelineError {
	return New(ErrCodeClaimContended, "fingerprint claimed by a concurrent ingestion", nil).
		WithDetail("fingerprint", fingerprint)
}

// IndexError reports an extract, embed, store, or row deletion failure.
func IndexError(message string, cause error) *PipelineError {
	return New(ErrCodeIndexFailed, message, cause)
}

// InconsistentStateError reports that the registry no longer reflects the
// index: a rollback after a failed index operation could not be completed.
func InconsistentStateError(fingerprint, path string, indexErr, rollbackErr error) *PipelineError {
	return New(ErrCodeInconsistentState,
		fmt.Sprintf("registry entry %s survived failed indexing (index: %v)", fingerprint, indexErr),
		rollbackErr).
		WithDetail("fingerprint", fingerprint).
		WithDetail("path", path)
}

// NotificationError reports a failed best-effort push. Never fatal.
func NotificationError(message string, cause error) *PipelineError {
	return New(ErrCodeNotifyFailed, message, cause)
}

// InternalError creates an internal error.
func InternalError(message string, cause error) *PipelineError {
	return New(ErrCodeInternal, message, cause)
}

// IsRetryable checks if an error is retryable.
// Returns true if the error chain contains a PipelineError with Retryable set.
func IsRetryable(err error) bool {
	var pe *PipelineError
	if stderrors.As(err, &pe) {
		return pe.Retryable
	}
	return false
}

// IsFatal checks if an error has fatal severity.
// Fatal errors must reach an operator.
func IsFatal(err error) bool {
	var pe *PipelineError
	if stderrors.As(err, &pe) {
		return pe.Severity == SeverityFatal
	}
	return false
}

// GetCode extracts the error code from the first PipelineError in the chain.
// Returns empty string if there is none.
func GetCode(err error) string {
	var pe *PipelineError
	if stderrors.As(err, &pe) {
		return pe.Code
	}
	return ""
}

// GetCategory extracts the category from the first PipelineError in the chain.
// Returns empty string if there is none.
func GetCategory(err error) Category {
	var pe *PipelineError
	if stderrors.As(err, &pe) {
		return pe.Category
	}
	return ""
}
