// Package executor runs a fixture across the device matrix, one session per
// row, and records the outcome in the run report.
package executor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/devicelab-dev/loancalc-runner/pkg/core"
	"github.com/devicelab-dev/loancalc-runner/pkg/device"
	"github.com/devicelab-dev/loancalc-runner/pkg/flow"
	"github.com/devicelab-dev/loancalc-runner/pkg/logger"
	"github.com/devicelab-dev/loancalc-runner/pkg/report"
	"github.com/devicelab-dev/loancalc-runner/pkg/sauce"
)

// FinishTimeout bounds reporting and quitting a session, which happens even
// after the run context is cancelled.
const FinishTimeout = 30 * time.Second

// SessionOpener opens one remote session per matrix row.
// Implementations: sauce.Factory, mock sessions for dry runs.
type SessionOpener interface {
	OpenSession(ctx context.Context, spec device.Spec, jobName string) (core.Session, error)
}

// OpenerFunc adapts a function to SessionOpener.
type OpenerFunc func(ctx context.Context, spec device.Spec, jobName string) (core.Session, error)

// OpenSession implements SessionOpener.
func (f OpenerFunc) OpenSession(ctx context.Context, spec device.Spec, jobName string) (core.Session, error) {
	return f(ctx, spec, jobName)
}

// RunnerConfig configures the parallel runner.
type RunnerConfig struct {
	OutputDir string // Report output directory
	Parallel  int    // Worker count (0 = one per matrix row)
	Scenario  ScenarioOptions

	// Run metadata for reports
	App    report.App
	Runner report.RunnerInfo

	// Live progress callbacks. They are called from worker goroutines.
	OnDeviceStart func(idx, total int, label string)
	OnDeviceEnd   func(label string, result *core.ScenarioResult)
}

// RunResult contains the outcome of a run across the matrix.
type RunResult struct {
	core.SuiteResult
	Status    core.StepStatus // Overall status as written to report.json
	ReportDir string
}

// workItem represents a matrix row and its index.
type workItem struct {
	spec  device.Spec
	entry report.DeviceEntry
}

// ParallelRunner runs a fixture on every matrix row using a work queue.
type ParallelRunner struct {
	opener   SessionOpener
	scenario *ScenarioRunner
	config   RunnerConfig
}

// NewParallelRunner creates a parallel runner.
func NewParallelRunner(opener SessionOpener, config RunnerConfig) *ParallelRunner {
	return &ParallelRunner{
		opener:   opener,
		scenario: NewScenarioRunner(config.Scenario),
		config:   config,
	}
}

// Run executes fx on every spec. Workers pull rows from a shared queue; each
// worker owns exactly one session at a time. Results keep matrix order.
func (pr *ParallelRunner) Run(ctx context.Context, fx *flow.Fixture, specs []device.Spec) (*RunResult, error) {
	if len(specs) == 0 {
		return nil, fmt.Errorf("device matrix is empty")
	}
	if err := fx.Validate(); err != nil {
		return nil, err
	}

	index := report.BuildSkeleton(specs, report.BuilderConfig{
		OutputDir: pr.config.OutputDir,
		Scenario:  fx.Name,
		App:       pr.config.App,
		Runner:    pr.config.Runner,
	})
	if err := report.WriteSkeleton(pr.config.OutputDir, index); err != nil {
		return nil, err
	}
	entries := append([]report.DeviceEntry(nil), index.Devices...)

	indexWriter := report.NewIndexWriter(pr.config.OutputDir, index)
	defer indexWriter.Close()

	indexWriter.Start()
	startTime := time.Now()

	workQueue := make(chan workItem, len(specs))
	for i, spec := range specs {
		workQueue <- workItem{spec: spec, entry: entries[i]}
	}
	close(workQueue)

	workers := pr.config.Parallel
	if workers <= 0 || workers > len(specs) {
		workers = len(specs)
	}
	logger.Info("Running %s on %d device(s) with %d worker(s)", fx.Name, len(specs), workers)

	results := make([]core.ScenarioResult, len(specs))
	var resultsMu sync.Mutex
	var wg sync.WaitGroup

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for item := range workQueue {
				result := pr.runDevice(ctx, fx, item, indexWriter, len(specs))

				resultsMu.Lock()
				results[item.entry.Index] = *result
				resultsMu.Unlock()
			}
		}()
	}
	wg.Wait()

	indexWriter.End()
	final := indexWriter.GetIndex()

	run := &RunResult{
		SuiteResult: core.SuiteResult{
			Name:      fx.Name,
			RunID:     index.RunID,
			StartTime: startTime,
			Duration:  time.Since(startTime),
			Scenarios: results,
		},
		Status:    final.Status,
		ReportDir: pr.config.OutputDir,
	}
	run.ComputeSummary()
	return run, nil
}

// runDevice opens a session for one row, runs the scenario, reports the job
// result and releases the session.
func (pr *ParallelRunner) runDevice(ctx context.Context, fx *flow.Fixture, item workItem, iw *report.IndexWriter, total int) *core.ScenarioResult {
	label := item.spec.String()
	log := logger.For(label)
	dw := report.NewDeviceWriter(item.entry, pr.config.OutputDir, iw)

	info := &core.PlatformInfo{
		Platform:    item.spec.PlatformName,
		OSVersion:   item.spec.PlatformVersion,
		DeviceName:  item.spec.DeviceName,
		IsSimulator: item.spec.IsEmulator(),
		AppID:       fx.AppID,
	}

	if ctx.Err() != nil {
		result := &core.ScenarioResult{
			Name:      fx.Name,
			JobName:   fx.Name,
			Device:    info,
			Status:    core.StatusSkipped,
			StartTime: time.Now(),
			Message:   "run cancelled",
		}
		dw.End(result)
		return result
	}

	dw.Start()
	if pr.config.OnDeviceStart != nil {
		pr.config.OnDeviceStart(item.entry.Index, total, label)
	}

	allocStart := time.Now()
	session, err := pr.opener.OpenSession(ctx, item.spec, fx.Name)
	if err != nil {
		result := &core.ScenarioResult{
			Name:      fx.Name,
			JobName:   fx.Name,
			Device:    info,
			Status:    core.StatusErrored,
			Category:  core.CategoryOf(err),
			StartTime: allocStart,
			Duration:  time.Since(allocStart),
			Timings:   core.PhaseTimings{Allocate: time.Since(allocStart)},
			Error:     err.Error(),
		}
		if ctx.Err() != nil {
			result.Status = core.StatusSkipped
			result.Message = "run cancelled"
		}
		log.Error("Session not created: %v", err)
		pr.end(dw, label, result)
		return result
	}
	allocation := time.Since(allocStart)
	dw.SessionOpened(session.SessionID())

	if err := sauce.Annotate(ctx, session, "Running "+fx.Name); err != nil {
		log.Warn("Annotate job: %v", err)
	}

	result := pr.scenario.Run(ctx, session, fx)
	result.Device = info
	result.Timings.Allocate = allocation
	pr.saveScreenshots(dw, result, log)

	// Report and release even if the run was cancelled meanwhile.
	finishCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), FinishTimeout)
	defer cancel()
	if err := sauce.Finish(finishCtx, session, result.Status.IsSuccess()); err != nil {
		result.ReportError = err.Error()
	}

	pr.end(dw, label, result)
	return result
}

func (pr *ParallelRunner) end(dw *report.DeviceWriter, label string, result *core.ScenarioResult) {
	dw.End(result)
	if pr.config.OnDeviceEnd != nil {
		pr.config.OnDeviceEnd(label, result)
	}
}

// saveScreenshots writes in-memory screenshots to the device's assets and
// lists them on the scenario.
func (pr *ParallelRunner) saveScreenshots(dw *report.DeviceWriter, result *core.ScenarioResult, log logger.Scoped) {
	for i := range result.Steps {
		step := &result.Steps[i]
		for j := range step.Attachments {
			a := &step.Attachments[j]
			if len(a.Body) == 0 {
				continue
			}
			path, err := dw.SaveScreenshot(step.Index, step.Name, a.Body)
			if err != nil {
				log.Warn("Save screenshot %s: %v", step.Name, err)
				continue
			}
			a.Path = path
			result.Attachments = append(result.Attachments, *a)
		}
	}
}
