package core

import (
	"time"
)

// Step actions recorded in StepResult.Action
const (
	ActionLocate     = "locate"
	ActionInput      = "input"
	ActionClick      = "click"
	ActionScreenshot = "screenshot"
)

// StepResult captures the outcome of a single scripted UI interaction
type StepResult struct {
	// Identity
	Index  int     `json:"index"`  // 0-based position in the scenario
	Name   string  `json:"name"`   // Fixture field name: loanAmount, calculate, ...
	Action string  `json:"action"` // locate, input, click, screenshot
	Target Locator `json:"target"`

	// Status
	Status   StepStatus    `json:"status"`
	Category ErrorCategory `json:"errorCategory,omitempty"`

	// Timing
	StartTime time.Time     `json:"startTime"`
	Duration  time.Duration `json:"duration"`

	// Output
	Message     string       `json:"message,omitempty"`
	Error       string       `json:"error,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

// ConditionResult is the explicit outcome of polling one expected condition.
type ConditionResult struct {
	Name     string        `json:"name"`
	Target   Locator       `json:"target"`
	Expected string        `json:"expected"`
	Actual   string        `json:"actual,omitempty"` // Last text observed
	Met      bool          `json:"met"`
	TimedOut bool          `json:"timedOut,omitempty"`
	Polls    int           `json:"polls"`
	Duration time.Duration `json:"duration"`

	// Swallowed marks a timeout that was logged and ignored (legacy parity mode).
	Swallowed bool `json:"swallowed,omitempty"`
}

// PhaseTimings mirrors the per-phase timings printed after each scenario.
type PhaseTimings struct {
	Allocate time.Duration `json:"allocate"` // session creation
	Locate   time.Duration `json:"locate"`
	Populate time.Duration `json:"populate"`
	Assert   time.Duration `json:"assert"`
}

// Total returns the scripted execution time, excluding session allocation.
func (p PhaseTimings) Total() time.Duration {
	return p.Locate + p.Populate + p.Assert
}

// ScenarioResult captures the complete outcome of one scenario on one device
type ScenarioResult struct {
	// Identity
	Name      string        `json:"name"`
	JobName   string        `json:"jobName"`
	SessionID string        `json:"sessionId,omitempty"`
	Device    *PlatformInfo `json:"device,omitempty"`

	// Status (aggregated from steps and conditions)
	Status   StepStatus    `json:"status"`
	Category ErrorCategory `json:"errorCategory,omitempty"`

	// Timing
	StartTime time.Time     `json:"startTime"`
	Duration  time.Duration `json:"duration"`
	Timings   PhaseTimings  `json:"timings"`

	// Results
	Steps       []StepResult      `json:"steps"`
	Conditions  []ConditionResult `json:"conditions"`
	Attachments []Attachment      `json:"attachments,omitempty"`

	// Summary (computed)
	TotalSteps  int `json:"totalSteps"`
	PassedSteps int `json:"passedSteps"`
	FailedSteps int `json:"failedSteps"`
	UnmetCount  int `json:"unmetConditions"`

	// Error info (if scenario failed)
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`

	// ReportError is set when the pass/fail signal could not be delivered.
	ReportError string `json:"reportError,omitempty"`
}

// ComputeSummary calculates step and condition counts
func (r *ScenarioResult) ComputeSummary() {
	r.TotalSteps = len(r.Steps)
	r.PassedSteps = 0
	r.FailedSteps = 0
	r.UnmetCount = 0

	for _, step := range r.Steps {
		switch step.Status {
		case StatusPassed:
			r.PassedSteps++
		case StatusFailed, StatusErrored:
			r.FailedSteps++
		}
	}
	for _, c := range r.Conditions {
		if !c.Met {
			r.UnmetCount++
		}
	}
}

// AggregateStatus determines the scenario status from step and condition results
// Rules:
// - Any errored step → StatusErrored
// - Any failed step, or any unmet condition that was not swallowed → StatusFailed
// - Otherwise → StatusPassed
func (r *ScenarioResult) AggregateStatus() StepStatus {
	failed := false
	for _, step := range r.Steps {
		switch step.Status {
		case StatusErrored:
			return StatusErrored
		case StatusFailed:
			failed = true
		}
	}
	for _, c := range r.Conditions {
		if !c.Met && !c.Swallowed {
			failed = true
		}
	}
	if failed {
		return StatusFailed
	}
	return StatusPassed
}

// SuiteResult captures the outcome of running a scenario across a device matrix
type SuiteResult struct {
	// Identity
	Name  string `json:"name"`
	RunID string `json:"runId"`

	// Timing
	StartTime time.Time     `json:"startTime"`
	Duration  time.Duration `json:"duration"` // wall clock

	// Results (matrix order)
	Scenarios []ScenarioResult `json:"scenarios"`

	// Summary
	Total   int `json:"total"`
	Passed  int `json:"passed"`
	Failed  int `json:"failed"`
	Errored int `json:"errored"`
	Skipped int `json:"skipped"`
}

// ComputeSummary calculates scenario counts
func (s *SuiteResult) ComputeSummary() {
	s.Total = len(s.Scenarios)
	s.Passed, s.Failed, s.Errored, s.Skipped = 0, 0, 0, 0

	for _, sc := range s.Scenarios {
		switch sc.Status {
		case StatusPassed:
			s.Passed++
		case StatusFailed:
			s.Failed++
		case StatusErrored:
			s.Errored++
		case StatusSkipped:
			s.Skipped++
		}
	}
}

// Success returns true if every scenario passed
func (s *SuiteResult) Success() bool {
	for _, sc := range s.Scenarios {
		if !sc.Status.IsSuccess() {
			return false
		}
	}
	return len(s.Scenarios) > 0
}
