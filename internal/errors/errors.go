// Package errors provides a lightweight structured error type (SiteforgeError)
// for category-based classification in the CLI and deploy surfaces.
package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCategory represents the category of a siteforge error for classification
type ErrorCategory string

const (
	// User-facing configuration and input errors
	CategoryConfig     ErrorCategory = "config"
	CategoryValidation ErrorCategory = "validation"

	// Build and processing errors
	CategoryTask        ErrorCategory = "task"
	CategoryFingerprint ErrorCategory = "fingerprint"
	CategoryRevision    ErrorCategory = "revision"
	CategoryFileSystem  ErrorCategory = "filesystem"

	// Deploy-time errors
	CategoryDeploy  ErrorCategory = "deploy"
	CategoryNetwork ErrorCategory = "network"

	// Runtime and infrastructure errors
	CategoryInternal ErrorCategory = "internal"
)

// ErrorSeverity indicates how critical an error is
type ErrorSeverity string

const (
	SeverityFatal   ErrorSeverity = "fatal"   // Stops execution
	SeverityError   ErrorSeverity = "error"   // Error, but not fatal
	SeverityWarning ErrorSeverity = "warning" // Continues with degraded functionality
)

// SiteforgeError is a structured error with category, retryability, and context
type SiteforgeError struct {
	Category  ErrorCategory `json:"category"`
	Severity  ErrorSeverity `json:"severity"`
	Message   string        `json:"message"`
	Cause     error         `json:"cause,omitempty"`
	Retryable bool          `json:"retryable"`
	Context   ContextFields `json:"context,omitempty"`
}

// ContextFields carries structured context for SiteforgeError
type ContextFields map[string]any

// Error implements the error interface
func (e *SiteforgeError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s (%s): %s: %v", e.Category, e.Severity, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s (%s): %s", e.Category, e.Severity, e.Message)
}

// Unwrap implements error unwrapping for Go 1.13+ error handling
func (e *SiteforgeError) Unwrap() error {
	return e.Cause
}

// WithContext adds context information to the error
func (e *SiteforgeError) WithContext(key string, value any) *SiteforgeError {
	if e.Context == nil {
		e.Context = make(ContextFields)
	}
	e.Context[key] = value
	return e
}

// New creates a new SiteforgeError
func New(category ErrorCategory, severity ErrorSeverity, message string) *SiteforgeError {
	return &SiteforgeError{
		Category: category,
		Severity: severity,
		Message:  message,
	}
}

// Wrap creates a new SiteforgeError that wraps an existing error
func Wrap(err error, category ErrorCategory, severity ErrorSeverity, message string) *SiteforgeError {
	return &SiteforgeError{
		Category: category,
		Severity: severity,
		Message:  message,
		Cause:    err,
	}
}

// WrapRetryable creates a new retryable SiteforgeError that wraps an existing error
func WrapRetryable(err error, category ErrorCategory, severity ErrorSeverity, message string) *SiteforgeError {
	return &SiteforgeError{
		Category:  category,
		Severity:  severity,
		Message:   message,
		Cause:     err,
		Retryable: true,
	}
}

// IsCategory checks if an error (anywhere in its wrap chain) belongs to a
// specific category
func IsCategory(err error, category ErrorCategory) bool {
	var se *SiteforgeError
	if stderrors.As(err, &se) {
		return se.Category == category
	}
	return false
}

// IsRetryable checks if an error (anywhere in its wrap chain) is retryable
func IsRetryable(err error) bool {
	var se *SiteforgeError
	if stderrors.As(err, &se) {
		return se.Retryable
	}
	return false
}

// GetCategory extracts the category from an error's wrap chain, or returns
// CategoryInternal if no SiteforgeError is present
func GetCategory(err error) ErrorCategory {
	var se *SiteforgeError
	if stderrors.As(err, &se) {
		return se.Category
	}
	return CategoryInternal
}
