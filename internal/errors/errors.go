// Package errors defines the stable error taxonomy for the enhancement core.
// Nothing in the core is allowed to abort a request: every code here marks a
// condition the pipeline recovers from locally.
package errors

import (
	"errors"
	"fmt"
)

// ErrorCode represents stable error codes for all failure modes
type ErrorCode string

const (
	// SourceUnavailable indicates a context source adapter failed; the
	// request proceeds with whatever context was gathered.
	SourceUnavailable ErrorCode = "SOURCE_UNAVAILABLE"
	// BudgetExceeded indicates assembled context exceeded the token budget;
	// handled internally by summarization or truncation.
	BudgetExceeded ErrorCode = "BUDGET_EXCEEDED"
	// CacheUnavailable indicates the cache store is unreachable; the
	// pipeline degrades to always-miss.
	CacheUnavailable ErrorCode = "CACHE_UNAVAILABLE"
	// FingerprintCollision indicates divergent content was written under
	// the same fingerprint. Logged as a data-integrity warning.
	FingerprintCollision ErrorCode = "FINGERPRINT_COLLISION"
	// SummaryFailed indicates the best-effort LLM summarization path
	// failed; the item falls back to hard truncation.
	SummaryFailed ErrorCode = "SUMMARY_FAILED"
	// InvalidConfig indicates a configuration value failed validation.
	InvalidConfig ErrorCode = "INVALID_CONFIG"
	// InternalError indicates an unexpected error
	InternalError ErrorCode = "INTERNAL_ERROR"
)

// PceError represents a pce error with a stable code, message, and cause.
type PceError struct {
	Code    ErrorCode   `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
	cause   error
}

// New creates a new PceError
func New(code ErrorCode, message string, cause error) *PceError {
	return &PceError{
		Code:    code,
		Message: message,
		cause:   cause,
	}
}

// Error implements the error interface
func (e *PceError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *PceError) Unwrap() error {
	return e.cause
}

// WithDetails attaches structured details to the error
func (e *PceError) WithDetails(details interface{}) *PceError {
	e.Details = details
	return e
}

// CodeOf extracts the ErrorCode from err, or InternalError if err is not
// a PceError.
func CodeOf(err error) ErrorCode {
	var pe *PceError
	if errors.As(err, &pe) {
		return pe.Code
	}
	return InternalError
}

// Is reports whether err carries the given code.
func Is(err error, code ErrorCode) bool {
	var pe *PceError
	return errors.As(err, &pe) && pe.Code == code
}
