package core

import "fmt"

// StepStatus represents the execution status of a step or scenario
type StepStatus int

const (
	StatusPending StepStatus = iota // Not yet started
	StatusRunning                   // Currently executing
	StatusPassed                    // Completed successfully
	StatusFailed                    // Expected text never appeared, or an assertion failed
	StatusErrored                   // Unexpected error (session, network, element lookup)
	StatusSkipped                   // Not executed because an earlier step failed
)

// String returns the string representation of StepStatus
func (s StepStatus) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusRunning:
		return "running"
	case StatusPassed:
		return "passed"
	case StatusFailed:
		return "failed"
	case StatusErrored:
		return "errored"
	case StatusSkipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// MarshalText lets statuses serialize as their names in report files.
func (s StepStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a status name written by MarshalText.
func (s *StepStatus) UnmarshalText(text []byte) error {
	for v := StatusPending; v <= StatusSkipped; v++ {
		if v.String() == string(text) {
			*s = v
			return nil
		}
	}
	return fmt.Errorf("unknown status %q", text)
}

// IsTerminal returns true if the status is a final state
func (s StepStatus) IsTerminal() bool {
	switch s {
	case StatusPassed, StatusFailed, StatusErrored, StatusSkipped:
		return true
	default:
		return false
	}
}

// IsSuccess returns true if the status indicates success
func (s StepStatus) IsSuccess() bool {
	return s == StatusPassed
}

// ErrorCategory classifies the type of error for better debugging and reporting
type ErrorCategory int

const (
	ErrCategoryNone       ErrorCategory = iota // No error
	ErrCategoryAssertion                       // Element not found, text mismatch
	ErrCategoryTimeout                         // Expected condition not met in time
	ErrCategoryConnection                      // Hub unreachable, session rejected
	ErrCategoryConfig                          // Malformed URL, missing credentials or capabilities
	ErrCategoryReport                          // Job result could not be sent to the device farm
)

// String returns the string representation of ErrorCategory
func (c ErrorCategory) String() string {
	switch c {
	case ErrCategoryNone:
		return "none"
	case ErrCategoryAssertion:
		return "assertion"
	case ErrCategoryTimeout:
		return "timeout"
	case ErrCategoryConnection:
		return "connection"
	case ErrCategoryConfig:
		return "config"
	case ErrCategoryReport:
		return "report"
	default:
		return "unknown"
	}
}

// MarshalText lets categories serialize as their names in report files.
func (c ErrorCategory) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText parses a category name written by MarshalText.
func (c *ErrorCategory) UnmarshalText(text []byte) error {
	for v := ErrCategoryNone; v <= ErrCategoryReport; v++ {
		if v.String() == string(text) {
			*c = v
			return nil
		}
	}
	return fmt.Errorf("unknown error category %q", text)
}
