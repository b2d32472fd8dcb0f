package report

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/devicelab-dev/loancalc-runner/pkg/core"
	"github.com/devicelab-dev/loancalc-runner/pkg/logger"
)

// IndexWriter provides thread-safe updates to the report index.
// Every device worker updates the index concurrently.
type IndexWriter struct {
	mu        sync.Mutex
	outputDir string
	path      string
	index     *Index

	// Debouncing for progress updates
	pending map[string]*DeviceUpdate
	timer   *time.Timer
	closed  bool
}

// NewIndexWriter creates a new IndexWriter.
func NewIndexWriter(outputDir string, index *Index) *IndexWriter {
	return &IndexWriter{
		outputDir: outputDir,
		path:      filepath.Join(outputDir, "report.json"),
		index:     index,
		pending:   make(map[string]*DeviceUpdate),
	}
}

// Start marks the run as started.
func (w *IndexWriter) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := time.Now()
	w.index.Status = core.StatusRunning
	w.index.StartTime = now
	w.index.LastUpdated = now

	w.flushLocked()
}

// UpdateDevice updates a device entry in the index.
// Terminal states flush immediately; progress updates are debounced.
func (w *IndexWriter) UpdateDevice(deviceID string, update *DeviceUpdate) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if prev, ok := w.pending[deviceID]; ok {
		update = mergeUpdate(prev, update)
	}
	w.pending[deviceID] = update

	if update.Status.IsTerminal() || w.closed {
		w.flushLocked()
		return
	}

	// Debounced flush for progress updates (100ms)
	if w.timer == nil {
		w.timer = time.AfterFunc(100*time.Millisecond, w.flush)
	}
}

// End marks the run as complete.
func (w *IndexWriter) End() {
	w.mu.Lock()
	defer w.mu.Unlock()

	for id, update := range w.pending {
		w.applyUpdate(id, update)
	}
	w.pending = make(map[string]*DeviceUpdate)

	now := time.Now()
	w.index.EndTime = &now
	w.index.Status = w.computeRunStatus()

	w.flushLocked()
}

// Close flushes any pending updates and stops the debounce timer.
func (w *IndexWriter) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	w.flushLocked()
}

// GetIndex returns a copy of the current index.
func (w *IndexWriter) GetIndex() Index {
	w.mu.Lock()
	defer w.mu.Unlock()

	idx := *w.index
	idx.Devices = append([]DeviceEntry(nil), w.index.Devices...)
	return idx
}

func (w *IndexWriter) flush() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.flushLocked()
}

// flushLocked flushes while holding the lock.
func (w *IndexWriter) flushLocked() {
	for id, update := range w.pending {
		w.applyUpdate(id, update)
	}
	w.pending = make(map[string]*DeviceUpdate)

	w.index.UpdateSeq++
	w.index.LastUpdated = time.Now()
	w.index.Summary = w.computeSummary()

	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}

	if err := atomicWriteJSON(w.path, w.index); err != nil {
		logger.Warn("write %s: %v", w.path, err)
	}
}

// mergeUpdate folds next into prev so a debounced update keeps fields
// (start time, session ID) that only an earlier update carried.
func mergeUpdate(prev, next *DeviceUpdate) *DeviceUpdate {
	merged := *next
	if merged.SessionID == "" {
		merged.SessionID = prev.SessionID
	}
	if merged.StartTime == nil {
		merged.StartTime = prev.StartTime
	}
	return &merged
}

// applyUpdate applies a DeviceUpdate to the index.
func (w *IndexWriter) applyUpdate(deviceID string, update *DeviceUpdate) {
	for i := range w.index.Devices {
		if w.index.Devices[i].ID != deviceID {
			continue
		}
		d := &w.index.Devices[i]
		d.Status = update.Status
		d.Category = update.Category
		if update.SessionID != "" {
			d.SessionID = update.SessionID
		}
		if update.StartTime != nil {
			d.StartTime = update.StartTime
		}
		if update.EndTime != nil {
			d.EndTime = update.EndTime
		}
		if update.Duration != nil {
			d.Duration = update.Duration
		}
		if update.Timings != nil {
			d.Timings = update.Timings
		}
		if update.Conditions != nil {
			d.Conditions = *update.Conditions
		}
		if update.Error != nil {
			d.Error = update.Error
		}
		if update.ReportError != nil {
			d.ReportError = update.ReportError
		}
		d.UpdateSeq++
		return
	}
}

// computeSummary calculates summary from device statuses.
func (w *IndexWriter) computeSummary() Summary {
	var s Summary
	for _, d := range w.index.Devices {
		s.Total++
		switch d.Status {
		case core.StatusPassed:
			s.Passed++
		case core.StatusFailed:
			s.Failed++
		case core.StatusErrored:
			s.Errored++
		case core.StatusSkipped:
			s.Skipped++
		case core.StatusRunning:
			s.Running++
		case core.StatusPending:
			s.Pending++
		}
	}
	return s
}

// computeRunStatus determines overall run status from devices.
func (w *IndexWriter) computeRunStatus() core.StepStatus {
	var failed, errored, skipped bool
	for _, d := range w.index.Devices {
		switch d.Status {
		case core.StatusFailed:
			failed = true
		case core.StatusErrored:
			errored = true
		case core.StatusSkipped:
			skipped = true
		case core.StatusPassed:
		default:
			return core.StatusRunning
		}
	}

	switch {
	case errored:
		return core.StatusErrored
	case failed:
		return core.StatusFailed
	case skipped:
		return core.StatusSkipped
	default:
		return core.StatusPassed
	}
}
