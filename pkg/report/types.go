// Package report provides JSON-based run reporting with live updates.
//
// Layout:
//   - report.json: run index (small, frequently updated, mutex-protected)
//   - devices/device-XXX.json: full scenario result per matrix row
//   - assets/device-XXX/: screenshots captured on that device
//   - allure-results/: Allure results generated once the run ends
//
// The index is the single source of truth for run and device status.
package report

import (
	"time"

	"github.com/devicelab-dev/loancalc-runner/pkg/core"
)

// Version is the report schema version.
const Version = "1.0.0"

// ============================================================================
// INDEX (report.json)
// ============================================================================

// Index is the main report file that binds everything together.
type Index struct {
	Version     string          `json:"version"`
	RunID       string          `json:"runId"`
	UpdateSeq   uint64          `json:"updateSeq"`
	Status      core.StepStatus `json:"status"`
	StartTime   time.Time       `json:"startTime"`
	EndTime     *time.Time      `json:"endTime,omitempty"`
	LastUpdated time.Time       `json:"lastUpdated"`
	Scenario    string          `json:"scenario"`
	App         App             `json:"app"`
	Runner      RunnerInfo      `json:"runner"`
	Summary     Summary         `json:"summary"`
	Devices     []DeviceEntry   `json:"devices"`
}

// App identifies the application under test.
type App struct {
	ID      string `json:"id"`                // Upload reference, e.g. sauce-storage:LoanCalc.apk
	Package string `json:"package,omitempty"` // Android package name
}

// RunnerInfo contains runner settings that shape the results.
type RunnerInfo struct {
	Version               string `json:"version"`
	Hub                   string `json:"hub,omitempty"` // Redacted
	Region                string `json:"region,omitempty"`
	RealDevices           bool   `json:"realDevices"`
	LegacySwallowTimeouts bool   `json:"legacySwallowTimeouts,omitempty"`
}

// Summary contains aggregated counts.
type Summary struct {
	Total   int `json:"total"`
	Passed  int `json:"passed"`
	Failed  int `json:"failed"`
	Errored int `json:"errored"`
	Skipped int `json:"skipped"`
	Running int `json:"running"`
	Pending int `json:"pending"`
}

// DeviceEntry is the index entry for one matrix row.
type DeviceEntry struct {
	Index           int                `json:"index"` // Matrix position
	ID              string             `json:"id"`    // device-000
	PlatformName    string             `json:"platformName"`
	DeviceName      string             `json:"deviceName"`
	PlatformVersion string             `json:"platformVersion"`
	JobName         string             `json:"jobName"`
	DataFile        string             `json:"dataFile"`
	AssetsDir       string             `json:"assetsDir"`
	Status          core.StepStatus    `json:"status"`
	Category        core.ErrorCategory `json:"errorCategory,omitempty"`
	SessionID       string             `json:"sessionId,omitempty"`
	UpdateSeq       uint64             `json:"updateSeq"`
	StartTime       *time.Time         `json:"startTime,omitempty"`
	EndTime         *time.Time         `json:"endTime,omitempty"`
	Duration        *int64             `json:"duration,omitempty"` // milliseconds
	Timings         *core.PhaseTimings `json:"timings,omitempty"`
	Conditions      ConditionSummary   `json:"conditions"`
	Error           *string            `json:"error,omitempty"`
	ReportError     *string            `json:"reportError,omitempty"`
}

// Label returns "<platform> <device> <version>".
func (d DeviceEntry) Label() string {
	return d.PlatformName + " " + d.DeviceName + " " + d.PlatformVersion
}

// ConditionSummary counts expected-condition outcomes for a device.
type ConditionSummary struct {
	Total     int `json:"total"`
	Met       int `json:"met"`
	TimedOut  int `json:"timedOut"`
	Swallowed int `json:"swallowed"`
}

// ============================================================================
// UPDATE TYPES
// ============================================================================

// DeviceUpdate contains the fields to update in the index for a device.
type DeviceUpdate struct {
	Status      core.StepStatus
	Category    core.ErrorCategory
	SessionID   string
	StartTime   *time.Time
	EndTime     *time.Time
	Duration    *int64
	Timings     *core.PhaseTimings
	Conditions  *ConditionSummary
	Error       *string
	ReportError *string
}
