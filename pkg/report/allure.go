package report

import (
	"encoding/json"
	"fmt"
	"hash/fnv"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/devicelab-dev/loancalc-runner/pkg/core"
	"github.com/devicelab-dev/loancalc-runner/pkg/logger"
)

// Allure result schema types.

// AllureResult represents a single test result in Allure format.
type AllureResult struct {
	UUID          string              `json:"uuid"`
	HistoryID     string              `json:"historyId"`
	FullName      string              `json:"fullName"`
	Name          string              `json:"name"`
	Status        string              `json:"status"`
	Stage         string              `json:"stage"`
	Start         int64               `json:"start"`
	Stop          int64               `json:"stop"`
	Labels        []AllureLabel       `json:"labels"`
	Parameters    []AllureParameter   `json:"parameters"`
	StatusDetails AllureStatusDetails `json:"statusDetails"`
	Steps         []AllureStep        `json:"steps"`
	Attachments   []AllureAttachment  `json:"attachments"`
}

// AllureStep represents a step within a test result.
type AllureStep struct {
	Name          string              `json:"name"`
	Status        string              `json:"status"`
	Stage         string              `json:"stage"`
	Start         int64               `json:"start"`
	Stop          int64               `json:"stop"`
	StatusDetails AllureStatusDetails `json:"statusDetails"`
	Steps         []AllureStep        `json:"steps"`
	Attachments   []AllureAttachment  `json:"attachments"`
}

// AllureAttachment represents a file attachment.
type AllureAttachment struct {
	Name   string `json:"name"`
	Source string `json:"source"`
	Type   string `json:"type"`
}

// AllureLabel represents a label on a test result.
type AllureLabel struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// AllureParameter is a name/value pair shown with the result.
type AllureParameter struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// AllureStatusDetails holds failure message and trace.
type AllureStatusDetails struct {
	Message string `json:"message"`
	Trace   string `json:"trace"`
}

// AllureCategory defines a failure category with regex matching.
type AllureCategory struct {
	Name            string   `json:"name"`
	MatchedStatuses []string `json:"matchedStatuses"`
	MessageRegex    string   `json:"messageRegex"`
}

// GenerateAllure generates Allure-compatible result files in <reportDir>/allure-results/.
func GenerateAllure(reportDir string) error {
	index, details, err := ReadReport(reportDir)
	if err != nil {
		return fmt.Errorf("read report: %w", err)
	}

	allureDir := filepath.Join(reportDir, "allure-results")
	if err := os.MkdirAll(allureDir, 0o755); err != nil {
		return fmt.Errorf("create allure-results dir: %w", err)
	}

	// One result file per device
	for i := range index.Devices {
		entry := &index.Devices[i]
		var result *core.ScenarioResult
		if details[i] != nil {
			result = details[i].Result
		}

		ar := buildAllureResult(entry, result, index)

		data, err := json.MarshalIndent(ar, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal allure result for %s: %w", entry.ID, err)
		}

		resultPath := filepath.Join(allureDir, ar.UUID+"-result.json")
		if err := os.WriteFile(resultPath, data, 0o644); err != nil {
			return fmt.Errorf("write allure result %s: %w", entry.ID, err)
		}
		if result != nil {
			copyAttachments(reportDir, allureDir, result)
		}
	}

	if err := writeAllureCategories(allureDir); err != nil {
		return err
	}
	return writeAllureEnvironment(allureDir, index)
}

// buildAllureResult builds an AllureResult from a device entry and its scenario result.
func buildAllureResult(entry *DeviceEntry, result *core.ScenarioResult, index *Index) AllureResult {
	var startMs, stopMs int64
	if entry.StartTime != nil {
		startMs = entry.StartTime.UnixMilli()
	}
	if entry.EndTime != nil {
		stopMs = entry.EndTime.UnixMilli()
	} else if entry.StartTime != nil && entry.Duration != nil {
		stopMs = startMs + *entry.Duration
	}

	labels := []AllureLabel{
		{Name: "suite", Value: index.Scenario},
		{Name: "subSuite", Value: entry.Label()},
		{Name: "framework", Value: "appium"},
		{Name: "host", Value: entry.DeviceName},
		{Name: "thread", Value: entry.ID},
		{Name: "severity", Value: "normal"},
	}

	params := []AllureParameter{
		{Name: "platformName", Value: entry.PlatformName},
		{Name: "deviceName", Value: entry.DeviceName},
		{Name: "platformVersion", Value: entry.PlatformVersion},
	}
	if entry.SessionID != "" {
		params = append(params, AllureParameter{Name: "sessionId", Value: entry.SessionID})
	}

	var details AllureStatusDetails
	if entry.Error != nil {
		details.Message = *entry.Error
	}
	if entry.ReportError != nil {
		details.Trace = "job result not delivered: " + *entry.ReportError
	}

	steps := []AllureStep{}
	attachments := []AllureAttachment{}
	if result != nil {
		steps = buildAllureSteps(result)
		attachments = toAllureAttachments(result.Attachments)
	}

	name := index.Scenario + " [" + entry.Label() + "]"
	return AllureResult{
		UUID:          uuid.NewString(),
		HistoryID:     fnv32aHash(index.Scenario + ":" + entry.Label()),
		FullName:      name,
		Name:          name,
		Status:        mapAllureStatus(entry.Status),
		Stage:         "finished",
		Start:         startMs,
		Stop:          stopMs,
		Labels:        labels,
		Parameters:    params,
		StatusDetails: details,
		Steps:         steps,
		Attachments:   attachments,
	}
}

// buildAllureSteps turns scripted steps and polled conditions into Allure steps.
func buildAllureSteps(result *core.ScenarioResult) []AllureStep {
	steps := make([]AllureStep, 0, len(result.Steps)+len(result.Conditions))

	for _, s := range result.Steps {
		start := s.StartTime.UnixMilli()
		name := s.Action + " " + s.Name
		step := AllureStep{
			Name:        name,
			Status:      mapAllureStatus(s.Status),
			Stage:       "finished",
			Start:       start,
			Stop:        start + s.Duration.Milliseconds(),
			Steps:       []AllureStep{},
			Attachments: toAllureAttachments(s.Attachments),
		}
		if s.Error != "" {
			step.StatusDetails.Message = s.Error
		}
		steps = append(steps, step)
	}

	// Conditions are polled together once the inputs are populated.
	assertStart := result.StartTime.Add(result.Timings.Locate + result.Timings.Populate).UnixMilli()
	for _, c := range result.Conditions {
		status := "passed"
		var details AllureStatusDetails
		if !c.Met {
			status = "failed"
			details.Message = fmt.Sprintf("expected %q in %s, last saw %q after %d polls", c.Expected, c.Target, c.Actual, c.Polls)
			if c.Swallowed {
				// Logged and ignored in legacy mode; keep it visible without failing the step.
				status = "broken"
			}
		}
		steps = append(steps, AllureStep{
			Name:          fmt.Sprintf("wait for %s = %s", c.Name, c.Expected),
			Status:        status,
			Stage:         "finished",
			Start:         assertStart,
			Stop:          assertStart + c.Duration.Milliseconds(),
			StatusDetails: details,
			Steps:         []AllureStep{},
			Attachments:   []AllureAttachment{},
		})
	}

	return steps
}

func toAllureAttachments(in []core.Attachment) []AllureAttachment {
	out := make([]AllureAttachment, 0, len(in))
	for _, a := range in {
		if a.Path == "" {
			continue
		}
		out = append(out, AllureAttachment{
			Name:   a.Name,
			Source: allureSource(a.Path),
			Type:   a.ContentType,
		})
	}
	return out
}

// allureSource flattens an asset path into a unique file name in allure-results/.
func allureSource(path string) string {
	return strings.ReplaceAll(filepath.ToSlash(path), "/", "-")
}

// copyAttachments copies a scenario's screenshots into allure-results/.
func copyAttachments(reportDir, allureDir string, result *core.ScenarioResult) {
	all := append([]core.Attachment(nil), result.Attachments...)
	for _, s := range result.Steps {
		all = append(all, s.Attachments...)
	}
	for _, a := range all {
		if a.Path == "" {
			continue
		}
		copyFile(filepath.Join(reportDir, a.Path), filepath.Join(allureDir, allureSource(a.Path)))
	}
}

// copyFile copies a single file from src to dst, ignoring missing sources.
func copyFile(src, dst string) {
	in, err := os.Open(src) //#nosec G304 -- src is inside the report directory
	if err != nil {
		return
	}
	defer in.Close()

	out, err := os.Create(dst) //#nosec G304 -- dst is inside the report directory
	if err != nil {
		return
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		logger.Warn("failed to copy %s to %s: %v", src, dst, err)
	}
}

// mapAllureStatus maps a run status to an Allure status string.
func mapAllureStatus(s core.StepStatus) string {
	switch s {
	case core.StatusPassed:
		return "passed"
	case core.StatusFailed:
		return "failed"
	case core.StatusErrored:
		return "broken"
	case core.StatusSkipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// fnv32aHash returns a hex-encoded FNV-32a hash of the input string.
func fnv32aHash(s string) string {
	h := fnv.New32a()
	h.Write([]byte(s))
	return fmt.Sprintf("%08x", h.Sum32())
}

// writeAllureCategories writes categories.json for failure categorization.
func writeAllureCategories(allureDir string) error {
	categories := []AllureCategory{
		{Name: "Expected Condition Not Met", MatchedStatuses: []string{"failed"}, MessageRegex: "(?i).*expected .* last saw.*|.*timed out.*"},
		{Name: "Element Not Found", MatchedStatuses: []string{"failed", "broken"}, MessageRegex: "(?i).*element not found.*|.*no such element.*"},
		{Name: "Session Not Created", MatchedStatuses: []string{"broken"}, MessageRegex: "(?i).*session.*rejected.*|.*open session.*"},
		{Name: "Hub Unreachable", MatchedStatuses: []string{"broken"}, MessageRegex: "(?i).*unreachable.*|.*connection.*"},
		{Name: "Configuration", MatchedStatuses: []string{"broken"}, MessageRegex: "(?i).*credential.*|.*missing.*|.*malformed.*"},
	}

	data, err := json.MarshalIndent(categories, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal categories: %w", err)
	}

	path := filepath.Join(allureDir, "categories.json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write categories.json: %w", err)
	}
	return nil
}

// writeAllureEnvironment writes environment.properties with run metadata.
func writeAllureEnvironment(allureDir string, index *Index) error {
	var b strings.Builder
	b.WriteString("framework=appium\n")
	fmt.Fprintf(&b, "run.id=%s\n", index.RunID)
	fmt.Fprintf(&b, "run.start=%s\n", index.StartTime.Format(time.RFC3339))

	if index.App.ID != "" {
		fmt.Fprintf(&b, "app.id=%s\n", index.App.ID)
	}
	if index.App.Package != "" {
		fmt.Fprintf(&b, "app.package=%s\n", index.App.Package)
	}
	if index.Runner.Version != "" {
		fmt.Fprintf(&b, "runner.version=%s\n", index.Runner.Version)
	}
	if index.Runner.Hub != "" {
		fmt.Fprintf(&b, "sauce.hub=%s\n", index.Runner.Hub)
	}
	if index.Runner.Region != "" {
		fmt.Fprintf(&b, "sauce.region=%s\n", index.Runner.Region)
	}
	fmt.Fprintf(&b, "devices.real=%t\n", index.Runner.RealDevices)

	path := filepath.Join(allureDir, "environment.properties")
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("write environment.properties: %w", err)
	}
	return nil
}
