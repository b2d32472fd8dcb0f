package executor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/devicelab-dev/loancalc-runner/pkg/core"
	"github.com/devicelab-dev/loancalc-runner/pkg/flow"
	"github.com/devicelab-dev/loancalc-runner/pkg/logger"
)

// Defaults for expected-condition polling.
const (
	DefaultTimeout      = 30 * time.Second
	DefaultPollInterval = 500 * time.Millisecond
)

// Screenshot names recorded around the trigger click.
const (
	ShotBeforeTrigger = "before-calculate"
	ShotAfterTrigger  = "after-calculate"
)

// ScenarioOptions configure a ScenarioRunner.
type ScenarioOptions struct {
	// Timeout bounds the wait shared by all expectations. A fixture timeout
	// takes precedence. Default: 30s.
	Timeout time.Duration
	// PollInterval is the pause between polls. Default: 500ms.
	PollInterval time.Duration
	// LegacySwallowTimeouts logs unmet expectations to Stderr and still
	// reports the scenario as passed.
	LegacySwallowTimeouts bool
	// Screenshots captures the screen before and after the trigger click.
	Screenshots bool
	// Stdout receives per-phase timing lines. Nil discards them.
	Stdout io.Writer
	// Stderr receives swallowed timeout lines. Default: os.Stderr.
	Stderr io.Writer
}

// ScenarioRunner drives one fixture over one session.
type ScenarioRunner struct {
	opts ScenarioOptions
}

// NewScenarioRunner creates a ScenarioRunner, filling option defaults.
func NewScenarioRunner(opts ScenarioOptions) *ScenarioRunner {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.Stdout == nil {
		opts.Stdout = io.Discard
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	return &ScenarioRunner{opts: opts}
}

// scenarioRun holds the state of one Run call.
type scenarioRun struct {
	ctx     context.Context
	session core.Session
	fixture *flow.Fixture
	opts    ScenarioOptions
	log     logger.Scoped
	result  *core.ScenarioResult
	ids     map[string]string
}

// Run executes the fixture: locate every field, type the inputs, click the
// trigger, then poll every expectation under one shared deadline. The
// session is neither created nor released here.
func (r *ScenarioRunner) Run(ctx context.Context, session core.Session, fx *flow.Fixture) *core.ScenarioResult {
	sr := &scenarioRun{
		ctx:     ctx,
		session: session,
		fixture: fx,
		opts:    r.opts,
		log:     logger.For(session.SessionID()),
		ids:     make(map[string]string),
		result: &core.ScenarioResult{
			Name:      fx.Name,
			JobName:   fx.Name,
			SessionID: session.SessionID(),
			StartTime: time.Now(),
		},
	}
	if fx.Timeout > 0 {
		sr.opts.Timeout = fx.Timeout
	}

	err := sr.execute()
	sr.finish(err)
	return sr.result
}

func (sr *scenarioRun) execute() error {
	start := time.Now()
	if err := sr.locate(); err != nil {
		return err
	}
	sr.result.Timings.Locate = time.Since(start)
	sr.progress("Locating elements took %.2f secs", sr.result.Timings.Locate.Seconds())

	start = time.Now()
	if err := sr.populate(); err != nil {
		return err
	}
	sr.result.Timings.Populate = time.Since(start)
	sr.progress("Populating elements took %.2f secs", sr.result.Timings.Populate.Seconds())

	start = time.Now()
	err := sr.assert()
	sr.result.Timings.Assert = time.Since(start)
	sr.progress("Asserting results took %.2f secs", sr.result.Timings.Assert.Seconds())
	sr.progress("Total test execution took %.2f secs", sr.result.Timings.Total().Seconds())
	return err
}

// locate resolves every fixture field to an element ID.
func (sr *scenarioRun) locate() error {
	for _, field := range sr.fixture.Locators() {
		step := sr.begin(field.Name, core.ActionLocate, field.Locator)
		id, err := sr.session.FindElement(sr.ctx, field.Locator)
		if err != nil {
			sr.fail(step, err)
			return err
		}
		sr.ids[field.Name] = id
		sr.pass(step, "")
	}
	return nil
}

// populate clears and types every input, then clicks the trigger between two screenshots.
func (sr *scenarioRun) populate() error {
	for _, in := range sr.fixture.Inputs {
		step := sr.begin(in.Name, core.ActionInput, in.Locator)
		if err := sr.session.Clear(sr.ctx, sr.ids[in.Name]); err != nil {
			sr.fail(step, err)
			return err
		}
		if err := sr.session.SendKeys(sr.ctx, sr.ids[in.Name], in.Value); err != nil {
			sr.fail(step, err)
			return err
		}
		sr.pass(step, in.Value)
	}

	sr.screenshot(ShotBeforeTrigger)

	trigger := sr.fixture.Trigger
	step := sr.begin(trigger.Name, core.ActionClick, trigger.Locator)
	if err := sr.session.Click(sr.ctx, sr.ids[trigger.Name]); err != nil {
		sr.fail(step, err)
		return err
	}
	sr.pass(step, "")

	sr.screenshot(ShotAfterTrigger)
	return nil
}

// screenshot captures the screen when enabled. A failed capture is recorded
// as a skipped step and never fails the scenario.
func (sr *scenarioRun) screenshot(name string) {
	if !sr.opts.Screenshots {
		return
	}
	step := sr.begin(name, core.ActionScreenshot, core.Locator{})
	data, err := sr.session.Screenshot(sr.ctx)
	if err != nil {
		s := sr.step(step)
		s.Status = core.StatusSkipped
		s.Error = err.Error()
		s.Duration = time.Since(s.StartTime)
		sr.log.Warn("Screenshot %s failed: %v", name, err)
		return
	}
	s := sr.step(step)
	s.Attachments = append(s.Attachments, core.NewScreenshotAttachment("", data))
	sr.pass(step, "")
}

// assert polls all expectations until each is met or the shared deadline passes.
func (sr *scenarioRun) assert() error {
	conditions, err := pollExpectations(sr.ctx, sr.session, sr.fixture.Expectations, sr.ids, sr.opts.Timeout, sr.opts.PollInterval)
	sr.result.Conditions = conditions
	if err != nil {
		return err
	}

	var unmet []string
	for i := range sr.result.Conditions {
		c := &sr.result.Conditions[i]
		if c.Met {
			continue
		}
		unmet = append(unmet, c.Name)
		if sr.opts.LegacySwallowTimeouts {
			c.Swallowed = true
			fmt.Fprintf(sr.opts.Stderr, "Expected Condition Not Met: text ('%s') to be present in element found by %s\n", c.Expected, c.Target)
			sr.log.Warn("Swallowed timeout for %s: expected %q, last saw %q", c.Name, c.Expected, c.Actual)
		}
	}
	if len(unmet) == 0 || sr.opts.LegacySwallowTimeouts {
		return nil
	}
	return core.ErrWaitTimeout.WithMessage(fmt.Sprintf(
		"expected condition not met within %s: %s", sr.opts.Timeout, strings.Join(unmet, ", ")))
}

func (sr *scenarioRun) finish(err error) {
	res := sr.result
	res.Duration = time.Since(res.StartTime)
	res.ComputeSummary()
	res.Status = res.AggregateStatus()

	if err != nil {
		res.Error = err.Error()
		res.Category = core.CategoryOf(err)
		switch {
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			res.Status = core.StatusSkipped
			res.Message = "run cancelled"
		case res.Category == core.ErrCategoryConnection, res.Status == core.StatusPassed:
			// The session died, or an error occurred outside any step.
			res.Status = core.StatusErrored
		}
	}
	if res.Status == core.StatusPassed && res.UnmetCount > 0 {
		res.Message = fmt.Sprintf("%d expected condition(s) not met; timeouts swallowed", res.UnmetCount)
	}

	sr.log.Info("Scenario %s %s in %s", res.Name, res.Status, res.Duration.Round(time.Millisecond))
}

// begin appends a running step and returns its index.
func (sr *scenarioRun) begin(name, action string, target core.Locator) int {
	idx := len(sr.result.Steps)
	sr.result.Steps = append(sr.result.Steps, core.StepResult{
		Index:     idx,
		Name:      name,
		Action:    action,
		Target:    target,
		Status:    core.StatusRunning,
		StartTime: time.Now(),
	})
	return idx
}

func (sr *scenarioRun) step(idx int) *core.StepResult {
	return &sr.result.Steps[idx]
}

func (sr *scenarioRun) pass(idx int, msg string) {
	s := sr.step(idx)
	s.Status = core.StatusPassed
	s.Message = msg
	s.Duration = time.Since(s.StartTime)
	sr.log.Debug("%s %s (%s) ok", s.Action, s.Name, s.Target)
}

// fail marks a step failed when the element could not be found or matched,
// and errored for everything else (network, session).
func (sr *scenarioRun) fail(idx int, err error) {
	s := sr.step(idx)
	s.Category = core.CategoryOf(err)
	if s.Category == core.ErrCategoryAssertion {
		s.Status = core.StatusFailed
	} else {
		s.Status = core.StatusErrored
	}
	s.Error = err.Error()
	s.Duration = time.Since(s.StartTime)
	sr.log.Error("%s %s (%s): %v", s.Action, s.Name, s.Target, err)
}

func (sr *scenarioRun) progress(format string, args ...interface{}) {
	fmt.Fprintf(sr.opts.Stdout, format+"\n", args...)
	sr.log.Info(format, args...)
}
