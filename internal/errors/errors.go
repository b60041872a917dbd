package errors

import (
	"fmt"
)

// SearchKitError is the structured error type for SearchKit.
// Engines return it; the index handle logs it and converts it to a plain result.
type SearchKitError struct {
	// Code is the unique error code (e.g., "ERR_402_DOCUMENT_REJECTED").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category is the error category (Config, IO, Validation, Internal).
	Category Category

	// Severity is the error severity level.
	Severity Severity

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error that caused this error.
	Cause error

	// Retryable indicates if the operation can be retried.
	Retryable bool

	// Suggestion is an actionable suggestion for the user.
	Suggestion string
}

// Error implements the error interface.
func (e *SearchKitError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *SearchKitError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is a SearchKitError with the same code.
func (e *SearchKitError) Is(target error) bool {
	if t, ok := target.(*SearchKitError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
func (e *SearchKitError) WithDetail(key, value string) *SearchKitError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithSuggestion adds an actionable suggestion for the user.
func (e *SearchKitError) WithSuggestion(suggestion string) *SearchKitError {
	e.Suggestion = suggestion
	return e
}

// New creates a new SearchKitError with the given code and message.
// Category, severity, and retryable flag are derived from the code.
func New(code string, message string, cause error) *SearchKitError {
	return &SearchKitError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap creates a SearchKitError from an existing error.
// The error's message becomes the SearchKitError message.
func Wrap(code string, err error) *SearchKitError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// ConfigError creates a configuration-related error.
func ConfigError(message string, cause error) *SearchKitError {
	return New(ErrCodeConfigInvalid, message, cause)
}

// EngineUnavailable reports an operation on a closed or missing engine.
func EngineUnavailable(op string) *SearchKitError {
	return New(ErrCodeEngineUnavailable, fmt.Sprintf("%s: index engine is not available", op), nil).
		WithDetail("op", op)
}

// DocumentRejected reports a document the engine declined to add or replace.
func DocumentRejected(uri, reason string) *SearchKitError {
	return New(ErrCodeDocumentRejected, fmt.Sprintf("document %s rejected: %s", uri, reason), nil).
		WithDetail("uri", uri)
}

// ContentUnreadable reports file content that could not be turned into text.
func ContentUnreadable(path string, cause error) *SearchKitError {
	return New(ErrCodeContentUnreadable, fmt.Sprintf("cannot read text from %s", path), cause).
		WithDetail("path", path)
}

// UnsupportedMIME reports a MIME type with no registered extractor.
func UnsupportedMIME(path, mimeType string) *SearchKitError {
	return New(ErrCodeUnsupportedMIME, fmt.Sprintf("no extractor for %s (%s)", path, mimeType), nil).
		WithDetail("path", path).
		WithDetail("mime_type", mimeType)
}

// IsFatal checks if an error has fatal severity.
func IsFatal(err error) bool {
	if se, ok := asSearchKitError(err); ok {
		return se.Severity == SeverityFatal
	}
	return false
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	if se, ok := asSearchKitError(err); ok {
		return se.Retryable
	}
	return false
}

// GetCode extracts the error code from a SearchKitError anywhere in the chain.
// Returns empty string if there is none.
func GetCode(err error) string {
	if se, ok := asSearchKitError(err); ok {
		return se.Code
	}
	return ""
}

// HasCode reports whether err carries the given code.
func HasCode(err error, code string) bool {
	return GetCode(err) == code
}

// asSearchKitError walks the Unwrap chain looking for a SearchKitError.
func asSearchKitError(err error) (*SearchKitError, bool) {
	for err != nil {
		if se, ok := err.(*SearchKitError); ok {
			return se, true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return nil, false
		}
		err = u.Unwrap()
	}
	return nil, false
}
