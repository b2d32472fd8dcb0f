package executor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devicelab-dev/loancalc-runner/pkg/core"
	"github.com/devicelab-dev/loancalc-runner/pkg/device"
	"github.com/devicelab-dev/loancalc-runner/pkg/driver/mock"
	"github.com/devicelab-dev/loancalc-runner/pkg/flow"
	"github.com/devicelab-dev/loancalc-runner/pkg/report"
)

// mockFarm hands out one mock session per OpenSession call and remembers them.
type mockFarm struct {
	mu       sync.Mutex
	sessions map[string]*mock.Session // by device label
	configFn func(spec device.Spec) (mock.Config, error)

	active    int32
	maxActive int32
	opens     int32
}

func newMockFarm(configFn func(spec device.Spec) (mock.Config, error)) *mockFarm {
	return &mockFarm{sessions: make(map[string]*mock.Session), configFn: configFn}
}

func (f *mockFarm) OpenSession(ctx context.Context, spec device.Spec, jobName string) (core.Session, error) {
	atomic.AddInt32(&f.opens, 1)
	cfg, err := f.configFn(spec)
	if err != nil {
		return nil, err
	}
	n := atomic.AddInt32(&f.active, 1)
	for {
		peak := atomic.LoadInt32(&f.maxActive)
		if n <= peak || atomic.CompareAndSwapInt32(&f.maxActive, peak, n) {
			break
		}
	}
	cfg.ID = "session-" + spec.PlatformVersion
	s := mock.New(cfg)

	f.mu.Lock()
	f.sessions[spec.String()] = s
	f.mu.Unlock()
	return releasing{Session: s, farm: f}, nil
}

func (f *mockFarm) session(spec device.Spec) *mock.Session {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sessions[spec.String()]
}

// releasing decrements the farm's active count when the session quits.
type releasing struct {
	*mock.Session
	farm *mockFarm
}

func (r releasing) Quit(ctx context.Context) error {
	atomic.AddInt32(&r.farm.active, -1)
	return r.Session.Quit(ctx)
}

func threeRows() []device.Spec {
	return []device.Spec{
		{PlatformName: "Android", DeviceName: "Android GoogleAPI Emulator", PlatformVersion: "9.0"},
		{PlatformName: "Android", DeviceName: "Android GoogleAPI Emulator", PlatformVersion: "10.0"},
		{PlatformName: "Android", DeviceName: "Android GoogleAPI Emulator", PlatformVersion: "11.0"},
	}
}

func testRunnerConfig(t *testing.T) RunnerConfig {
	return RunnerConfig{
		OutputDir: t.TempDir(),
		Scenario:  fastOptions(),
		App:       report.App{ID: "sauce-storage:LoanCalc.apk", Package: flow.LoanCalcAppID},
		Runner:    report.RunnerInfo{Version: "test"},
	}
}

func TestParallelRunner_AllPass(t *testing.T) {
	fx := flow.CarLoanFixture()
	farm := newMockFarm(func(device.Spec) (mock.Config, error) {
		return mock.Config{Outputs: outputsFor(fx)}, nil
	})

	var started int32
	cfg := testRunnerConfig(t)
	cfg.OnDeviceStart = func(idx, total int, label string) {
		atomic.AddInt32(&started, 1)
		assert.Equal(t, 3, total)
	}

	specs := threeRows()
	result, err := NewParallelRunner(farm, cfg).Run(context.Background(), fx, specs)
	require.NoError(t, err)

	assert.Equal(t, core.StatusPassed, result.Status)
	assert.True(t, result.Success())
	assert.Equal(t, 3, result.Passed)
	assert.EqualValues(t, 3, started)

	for i, spec := range specs {
		sc := result.Scenarios[i]
		require.NotNil(t, sc.Device, "row %d", i)
		assert.Equal(t, spec.PlatformVersion, sc.Device.OSVersion, "results keep matrix order")
		assert.Equal(t, "session-"+spec.PlatformVersion, sc.SessionID)

		s := farm.session(spec)
		require.NotNil(t, s)
		assert.True(t, s.Closed(), "session for %s not released", spec)
		assert.Equal(t, []string{"sauce:context=Running calculateCarLoan", "sauce:job-result=passed"}, s.Scripts())
	}

	index, _, err := report.ReadReport(cfg.OutputDir)
	require.NoError(t, err)
	assert.Equal(t, core.StatusPassed, index.Status)
	assert.Equal(t, result.RunID, index.RunID)
	assert.Equal(t, 3, index.Summary.Passed)
}

func TestParallelRunner_LimitsWorkers(t *testing.T) {
	fx := flow.CarLoanFixture()
	farm := newMockFarm(func(device.Spec) (mock.Config, error) {
		return mock.Config{Outputs: outputsFor(fx), OutputDelay: 20 * time.Millisecond}, nil
	})

	cfg := testRunnerConfig(t)
	cfg.Parallel = 1

	result, err := NewParallelRunner(farm, cfg).Run(context.Background(), fx, threeRows())
	require.NoError(t, err)

	assert.Equal(t, 3, result.Passed)
	assert.EqualValues(t, 1, atomic.LoadInt32(&farm.maxActive))
}

func TestParallelRunner_OpenFailureErrorsRow(t *testing.T) {
	fx := flow.CarLoanFixture()
	farm := newMockFarm(func(spec device.Spec) (mock.Config, error) {
		if spec.PlatformVersion == "10.0" {
			return mock.Config{}, fmt.Errorf("open session on %s: %w", spec, core.ErrSessionRejected)
		}
		return mock.Config{Outputs: outputsFor(fx)}, nil
	})

	cfg := testRunnerConfig(t)
	result, err := NewParallelRunner(farm, cfg).Run(context.Background(), fx, threeRows())
	require.NoError(t, err)

	assert.Equal(t, core.StatusPassed, result.Scenarios[0].Status)
	assert.Equal(t, core.StatusErrored, result.Scenarios[1].Status)
	assert.Equal(t, core.ErrCategoryConnection, result.Scenarios[1].Category)
	assert.Equal(t, core.StatusPassed, result.Scenarios[2].Status)
	assert.Equal(t, 1, result.Errored)
	assert.Equal(t, core.StatusErrored, result.Status)
	assert.False(t, result.Success())
}

func TestParallelRunner_TimeoutReportsFailed(t *testing.T) {
	fx := flow.CarLoanFixture()
	farm := newMockFarm(func(device.Spec) (mock.Config, error) {
		return mock.Config{}, nil // outputs never appear
	})

	cfg := testRunnerConfig(t)
	specs := threeRows()[:1]
	result, err := NewParallelRunner(farm, cfg).Run(context.Background(), fx, specs)
	require.NoError(t, err)

	assert.Equal(t, core.StatusFailed, result.Scenarios[0].Status)
	assert.Equal(t, core.ErrCategoryTimeout, result.Scenarios[0].Category)
	s := farm.session(specs[0])
	assert.Contains(t, s.Scripts(), "sauce:job-result=failed")
	assert.True(t, s.Closed())
}

func TestParallelRunner_LegacyTimeoutReportsPassed(t *testing.T) {
	fx := flow.CarLoanFixture()
	farm := newMockFarm(func(device.Spec) (mock.Config, error) {
		return mock.Config{}, nil
	})

	cfg := testRunnerConfig(t)
	cfg.Scenario.LegacySwallowTimeouts = true
	specs := threeRows()[:1]
	result, err := NewParallelRunner(farm, cfg).Run(context.Background(), fx, specs)
	require.NoError(t, err)

	assert.Equal(t, core.StatusPassed, result.Scenarios[0].Status)
	assert.Equal(t, 4, result.Scenarios[0].UnmetCount)
	assert.Contains(t, farm.session(specs[0]).Scripts(), "sauce:job-result=passed")
}

func TestParallelRunner_ReportErrorRecorded(t *testing.T) {
	fx := flow.CarLoanFixture()
	farm := newMockFarm(func(device.Spec) (mock.Config, error) {
		return mock.Config{Outputs: outputsFor(fx), ScriptErr: errors.New("script channel closed")}, nil
	})

	cfg := testRunnerConfig(t)
	specs := threeRows()[:1]
	result, err := NewParallelRunner(farm, cfg).Run(context.Background(), fx, specs)
	require.NoError(t, err)

	sc := result.Scenarios[0]
	assert.Equal(t, core.StatusPassed, sc.Status, "a reporting failure does not change the scenario outcome")
	assert.Contains(t, sc.ReportError, "script channel closed")
	assert.True(t, farm.session(specs[0]).Closed(), "session is quit even when reporting fails")

	index, _, err := report.ReadReport(cfg.OutputDir)
	require.NoError(t, err)
	require.NotNil(t, index.Devices[0].ReportError)
}

func TestParallelRunner_Cancelled(t *testing.T) {
	fx := flow.CarLoanFixture()
	farm := newMockFarm(func(device.Spec) (mock.Config, error) {
		return mock.Config{Outputs: outputsFor(fx)}, nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := NewParallelRunner(farm, testRunnerConfig(t)).Run(ctx, fx, threeRows())
	require.NoError(t, err)

	assert.Equal(t, 3, result.Skipped)
	assert.EqualValues(t, 0, atomic.LoadInt32(&farm.opens))
	assert.Equal(t, core.StatusSkipped, result.Status)
}

func TestParallelRunner_SavesScreenshots(t *testing.T) {
	fx := flow.CarLoanFixture()
	farm := newMockFarm(func(device.Spec) (mock.Config, error) {
		return mock.Config{Outputs: outputsFor(fx)}, nil
	})

	cfg := testRunnerConfig(t)
	cfg.Scenario.Screenshots = true
	result, err := NewParallelRunner(farm, cfg).Run(context.Background(), fx, threeRows()[:1])
	require.NoError(t, err)

	sc := result.Scenarios[0]
	require.Len(t, sc.Attachments, 2)
	for _, a := range sc.Attachments {
		_, err := os.Stat(filepath.Join(cfg.OutputDir, a.Path))
		assert.NoError(t, err, a.Path)
	}
}

func TestParallelRunner_Errors(t *testing.T) {
	farm := newMockFarm(func(device.Spec) (mock.Config, error) { return mock.Config{}, nil })
	runner := NewParallelRunner(farm, testRunnerConfig(t))

	_, err := runner.Run(context.Background(), flow.CarLoanFixture(), nil)
	assert.Error(t, err)

	bad := flow.CarLoanFixture()
	bad.Expectations = nil
	_, err = runner.Run(context.Background(), bad, threeRows())
	assert.Error(t, err)
}

func TestOpenerFunc(t *testing.T) {
	var called bool
	opener := OpenerFunc(func(ctx context.Context, spec device.Spec, jobName string) (core.Session, error) {
		called = true
		assert.Equal(t, "job", jobName)
		return mock.New(mock.Config{}), nil
	})

	s, err := opener.OpenSession(context.Background(), threeRows()[0], "job")
	require.NoError(t, err)
	assert.True(t, called)
	assert.Equal(t, "mock-session", s.SessionID())
}
