package core

import (
	"errors"
	"fmt"
)

// ExecutionError represents a structured error with category and details
type ExecutionError struct {
	Category ErrorCategory
	Code     string                 // Machine-readable code: element_not_found, wait_timeout, etc.
	Message  string                 // Human-readable message
	Details  map[string]interface{} // Additional context
	Cause    error                  // Underlying error
}

// Error implements the error interface
func (e *ExecutionError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying error for errors.Is/As support
func (e *ExecutionError) Unwrap() error {
	return e.Cause
}

// Is matches execution errors by code, so a copy made with WithCause or
// WithMessage still satisfies errors.Is against the predefined value.
func (e *ExecutionError) Is(target error) bool {
	t, ok := target.(*ExecutionError)
	if !ok {
		return false
	}
	return t.Code != "" && t.Code == e.Code
}

// WithCause returns a copy of the error with the given cause
func (e *ExecutionError) WithCause(cause error) *ExecutionError {
	return &ExecutionError{
		Category: e.Category,
		Code:     e.Code,
		Message:  e.Message,
		Details:  e.Details,
		Cause:    cause,
	}
}

// WithMessage returns a copy of the error with a custom message
func (e *ExecutionError) WithMessage(msg string) *ExecutionError {
	return &ExecutionError{
		Category: e.Category,
		Code:     e.Code,
		Message:  msg,
		Details:  e.Details,
		Cause:    e.Cause,
	}
}

// WithDetails returns a copy of the error with additional details
func (e *ExecutionError) WithDetails(details map[string]interface{}) *ExecutionError {
	merged := make(map[string]interface{})
	for k, v := range e.Details {
		merged[k] = v
	}
	for k, v := range details {
		merged[k] = v
	}
	return &ExecutionError{
		Category: e.Category,
		Code:     e.Code,
		Message:  e.Message,
		Details:  merged,
		Cause:    e.Cause,
	}
}

// Predefined errors
var (
	// Assertion errors
	ErrElementNotFound = &ExecutionError{
		Category: ErrCategoryAssertion,
		Code:     "element_not_found",
		Message:  "element not found",
	}

	// Timeout errors
	ErrWaitTimeout = &ExecutionError{
		Category: ErrCategoryTimeout,
		Code:     "wait_timeout",
		Message:  "expected condition not met",
	}

	// Connection errors
	ErrServerUnreachable = &ExecutionError{
		Category: ErrCategoryConnection,
		Code:     "server_unreachable",
		Message:  "could not connect to automation server",
	}
	ErrSessionRejected = &ExecutionError{
		Category: ErrCategoryConnection,
		Code:     "session_rejected",
		Message:  "remote end rejected the session request",
	}
	ErrSessionLost = &ExecutionError{
		Category: ErrCategoryConnection,
		Code:     "session_lost",
		Message:  "remote session no longer exists",
	}

	// Config errors
	ErrInvalidConfig = &ExecutionError{
		Category: ErrCategoryConfig,
		Code:     "invalid_config",
		Message:  "invalid configuration",
	}
	ErrMissingRequired = &ExecutionError{
		Category: ErrCategoryConfig,
		Code:     "missing_required",
		Message:  "missing required field",
	}
	ErrMalformedURL = &ExecutionError{
		Category: ErrCategoryConfig,
		Code:     "malformed_url",
		Message:  "malformed hub URL",
	}

	// Report errors
	ErrReportFailed = &ExecutionError{
		Category: ErrCategoryReport,
		Code:     "report_failed",
		Message:  "failed to report job result",
	}
)

// CategoryOf returns the category of the first ExecutionError in err's chain,
// or ErrCategoryNone for plain errors.
func CategoryOf(err error) ErrorCategory {
	if err == nil {
		return ErrCategoryNone
	}
	var execErr *ExecutionError
	if errors.As(err, &execErr) {
		return execErr.Category
	}
	return ErrCategoryNone
}
