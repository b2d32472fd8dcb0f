package report

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/devicelab-dev/loancalc-runner/pkg/core"
	"github.com/devicelab-dev/loancalc-runner/pkg/logger"
)

// DeviceDetail is the content of devices/device-XXX.json.
type DeviceDetail struct {
	ID     string               `json:"id"`
	Label  string               `json:"label"`
	Result *core.ScenarioResult `json:"result,omitempty"`
}

// DeviceWriter writes updates for a single matrix row.
// Each device worker has its own DeviceWriter, so no locking is needed.
type DeviceWriter struct {
	detail    *DeviceDetail
	path      string
	assetsDir string
	assetsRel string
	index     *IndexWriter
	start     time.Time
}

// NewDeviceWriter creates a DeviceWriter for an index entry.
func NewDeviceWriter(entry DeviceEntry, outputDir string, index *IndexWriter) *DeviceWriter {
	assetsDir := filepath.Join(outputDir, entry.AssetsDir)
	if err := ensureDir(assetsDir); err != nil {
		logger.Warn("create %s: %v", assetsDir, err)
	}

	return &DeviceWriter{
		detail:    &DeviceDetail{ID: entry.ID, Label: entry.Label()},
		path:      filepath.Join(outputDir, entry.DataFile),
		assetsDir: assetsDir,
		assetsRel: entry.AssetsDir,
		index:     index,
	}
}

// Start marks the device as running.
func (w *DeviceWriter) Start() {
	w.start = time.Now()
	w.flush()
	w.index.UpdateDevice(w.detail.ID, &DeviceUpdate{
		Status:    core.StatusRunning,
		StartTime: &w.start,
	})
}

// SessionOpened records the remote session ID once allocation succeeds.
func (w *DeviceWriter) SessionOpened(sessionID string) {
	w.index.UpdateDevice(w.detail.ID, &DeviceUpdate{
		Status:    core.StatusRunning,
		SessionID: sessionID,
	})
}

// SaveScreenshot saves a screenshot and returns its path relative to the
// report directory.
func (w *DeviceWriter) SaveScreenshot(stepIdx int, name string, data []byte) (string, error) {
	filename := fmt.Sprintf("step-%03d-%s.png", stepIdx, name)
	if err := os.WriteFile(filepath.Join(w.assetsDir, filename), data, 0o644); err != nil {
		return "", err
	}
	return filepath.Join(w.assetsRel, filename), nil
}

// End records the final scenario result.
func (w *DeviceWriter) End(result *core.ScenarioResult) {
	w.detail.Result = result
	w.flush()

	now := time.Now()
	var duration int64
	if !w.start.IsZero() {
		duration = now.Sub(w.start).Milliseconds()
	}

	update := &DeviceUpdate{
		Status:     result.Status,
		Category:   result.Category,
		SessionID:  result.SessionID,
		EndTime:    &now,
		Duration:   &duration,
		Timings:    &result.Timings,
		Conditions: summarizeConditions(result.Conditions),
	}
	if result.Error != "" {
		msg := result.Error
		update.Error = &msg
	}
	if result.ReportError != "" {
		msg := result.ReportError
		update.ReportError = &msg
	}
	w.index.UpdateDevice(w.detail.ID, update)
}

// GetDetail returns the current device detail (for reading).
func (w *DeviceWriter) GetDetail() *DeviceDetail {
	return w.detail
}

func (w *DeviceWriter) flush() {
	if err := atomicWriteJSON(w.path, w.detail); err != nil {
		logger.Warn("write %s: %v", w.path, err)
	}
}

func summarizeConditions(conditions []core.ConditionResult) *ConditionSummary {
	s := &ConditionSummary{Total: len(conditions)}
	for _, c := range conditions {
		if c.Met {
			s.Met++
		}
		if c.TimedOut {
			s.TimedOut++
		}
		if c.Swallowed {
			s.Swallowed++
		}
	}
	return s
}
