package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/devicelab-dev/loancalc-runner/pkg/config"
	"github.com/devicelab-dev/loancalc-runner/pkg/core"
	"github.com/devicelab-dev/loancalc-runner/pkg/device"
	"github.com/devicelab-dev/loancalc-runner/pkg/driver/mock"
	"github.com/devicelab-dev/loancalc-runner/pkg/executor"
	"github.com/devicelab-dev/loancalc-runner/pkg/flow"
	"github.com/devicelab-dev/loancalc-runner/pkg/logger"
	"github.com/devicelab-dev/loancalc-runner/pkg/report"
	"github.com/devicelab-dev/loancalc-runner/pkg/sauce"
	"github.com/devicelab-dev/loancalc-runner/pkg/validator"
)

var runCommand = &cli.Command{
	Name:  "run",
	Usage: "Run the loan calculator scenario across the device matrix",
	Description: `Open one remote session per device matrix row, enter the loan,
press Calculate and poll the four result fields for the expected figures.

Reports are generated in the output directory:
  report.json            run index with per-device status
  devices/               full per-device results
  assets/                screenshots
  allure-results/        Allure results
  loancalc-runner.log    debug log`,
	Flags: []cli.Flag{
		&cli.BoolFlag{
			Name:    "real-devices",
			Usage:   "Use the real-device matrix instead of emulators",
			EnvVars: []string{config.EnvRealDevices},
		},
		&cli.IntFlag{
			Name:  "parallel",
			Usage: "Number of concurrent sessions (0 = one per device)",
		},
		&cli.StringFlag{
			Name:    "fixture",
			Aliases: []string{"f"},
			Usage:   "Fixture YAML (default: built-in car loan fixture)",
		},
		&cli.DurationFlag{
			Name:  "timeout",
			Usage: "Wait for expected results; overrides a fixture's timeout (default: 30s)",
		},
		&cli.DurationFlag{
			Name:  "poll-interval",
			Usage: "Poll period for expected results (default: 500ms)",
		},
		&cli.BoolFlag{
			Name:  "legacy-swallow-timeouts",
			Usage: "Log unmet expectations to stderr instead of failing the scenario",
		},
		&cli.BoolFlag{
			Name:  "screenshots",
			Usage: "Capture screenshots around Calculate",
			Value: true,
		},
		&cli.StringFlag{
			Name:  "output",
			Usage: "Output directory for reports (default: ./reports/<timestamp>)",
		},
		&cli.BoolFlag{
			Name:  "flatten",
			Usage: "Write reports directly to --output without a timestamp subfolder",
		},
		&cli.BoolFlag{
			Name:  "dry-run",
			Usage: "Run against in-memory sessions instead of Sauce Labs",
		},
		&cli.StringSliceFlag{
			Name:    "env",
			Aliases: []string{"e"},
			Usage:   "Fixture variables (KEY=VALUE)",
		},
	},
	Action: runScenario,
}

// RunConfig holds the resolved settings for one run.
type RunConfig struct {
	Config    *config.Config
	OutputDir string
	// TimeoutSet marks --timeout as given, so it wins over the fixture.
	TimeoutSet bool
	DryRun     bool
	Verbose    bool
}

func runScenario(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	applyRunFlags(c, cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}

	output := ""
	if c.IsSet("output") {
		output = c.String("output")
	} else if cfg.Output != config.DefaultOutput {
		output = cfg.Output
	}
	outputDir, err := resolveOutputDir(output, c.Bool("flatten"))
	if err != nil {
		return err
	}

	return executeRun(c.Context, &RunConfig{
		Config:     cfg,
		OutputDir:  outputDir,
		TimeoutSet: c.IsSet("timeout"),
		DryRun:     c.Bool("dry-run"),
		Verbose:    c.Bool("verbose"),
	}, c.App.Writer, c.App.ErrWriter)
}

// applyRunFlags overrides config values with explicitly set run flags.
func applyRunFlags(c *cli.Context, cfg *config.Config) {
	if c.IsSet("real-devices") {
		cfg.RealDevices = c.Bool("real-devices")
	}
	if c.IsSet("parallel") {
		cfg.Parallel = c.Int("parallel")
	}
	if c.IsSet("fixture") {
		cfg.Fixture = c.String("fixture")
	}
	if c.IsSet("timeout") {
		cfg.Timeout = c.Duration("timeout")
	}
	if c.IsSet("poll-interval") {
		cfg.PollInterval = c.Duration("poll-interval")
	}
	if c.IsSet("legacy-swallow-timeouts") {
		cfg.LegacySwallowTimeouts = c.Bool("legacy-swallow-timeouts")
	}
	if c.IsSet("screenshots") {
		shots := c.Bool("screenshots")
		cfg.Screenshots = &shots
	}

	// CLI variables override config variables
	env := parseEnvVars(c.StringSlice("env"))
	if len(env) > 0 && cfg.Env == nil {
		cfg.Env = make(map[string]string, len(env))
	}
	for k, v := range env {
		cfg.Env[k] = v
	}
}

// resolveOutputDir determines the output directory based on flags.
// - No --output: ./reports/<timestamp>/
// - --output given: <output>/<timestamp>/
// - --output + --flatten: <output>/ (error if --output not given)
func resolveOutputDir(output string, flatten bool) (string, error) {
	if flatten && output == "" {
		return "", fmt.Errorf("--flatten requires --output to be specified")
	}

	baseDir := output
	if baseDir == "" {
		baseDir = "./" + config.DefaultOutput
	}

	if flatten {
		return filepath.Clean(baseDir), nil
	}

	// Create timestamp-based subfolder
	timestamp := time.Now().Format("2006-01-02_15-04-05")
	return filepath.Join(baseDir, timestamp), nil
}

func parseEnvVars(envs []string) map[string]string {
	result := make(map[string]string)
	for _, e := range envs {
		parts := strings.SplitN(e, "=", 2)
		if len(parts) == 2 {
			result[parts[0]] = parts[1]
		}
	}
	return result
}

func executeRun(ctx context.Context, rc *RunConfig, stdout, stderr io.Writer) error {
	cfg := rc.Config
	if ctx == nil {
		ctx = context.Background()
	}
	if stdout == nil {
		stdout = os.Stdout
	}
	if stderr == nil {
		stderr = os.Stderr
	}
	out := &lockedWriter{w: stdout}

	// 1. Create output directory
	if err := os.MkdirAll(rc.OutputDir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	// 2. Initialize logging
	logPath := filepath.Join(rc.OutputDir, "loancalc-runner.log")
	if err := logger.Init(logPath); err != nil {
		fmt.Fprintf(out, "Warning: Failed to initialize logger: %v\n", err)
	}
	defer logger.Close()

	logger.Info("=== Run started ===")
	logger.Info("Output directory: %s", rc.OutputDir)
	logger.Info("Real devices: %v, parallel: %d, timeout: %s, poll: %s",
		cfg.RealDevices, cfg.Parallel, cfg.Timeout, cfg.PollInterval)
	if rc.DryRun {
		logger.Info("Dry run: using in-memory sessions")
	}

	// 3. Load and check the fixture
	fx, err := loadFixture(cfg, rc.TimeoutSet)
	if err != nil {
		logger.Error("Fixture load failed: %v", err)
		return err
	}
	if errs := validator.CheckFixture(fx); len(errs) > 0 {
		for _, e := range errs {
			logger.Error("Fixture check: %v", e)
		}
		return fmt.Errorf("fixture %q is invalid: %w", fx.Name, errors.Join(errs...))
	}

	specs, err := cfg.DeviceMatrix()
	if err != nil {
		return err
	}

	// 4. Session opener
	opener, hub, err := buildOpener(cfg, fx, rc.DryRun)
	if err != nil {
		logger.Error("Session factory: %v", err)
		return err
	}

	// Cancel on SIGINT/SIGTERM; open sessions still get their result and quit
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case sig := <-sigCh:
			logger.Info("Received signal %v, cancelling run", sig)
			fmt.Fprintf(stderr, "\nReceived %v, finishing open sessions...\n", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	fmt.Fprintf(out, "\n  %sloancalc-runner %s%s  %s (%d devices)\n",
		color(colorBold), Version, color(colorReset), fx.Name, len(specs))

	runner := executor.NewParallelRunner(opener, executor.RunnerConfig{
		OutputDir: rc.OutputDir,
		Parallel:  cfg.Parallel,
		Scenario: executor.ScenarioOptions{
			Timeout:               cfg.Timeout,
			PollInterval:          cfg.PollInterval,
			LegacySwallowTimeouts: cfg.LegacySwallowTimeouts,
			Screenshots:           cfg.CaptureScreenshots(),
			Stdout:                out,
			Stderr:                stderr,
		},
		App: report.App{
			ID:      appReference(cfg),
			Package: fx.AppID,
		},
		Runner: report.RunnerInfo{
			Version:               Version,
			Hub:                   hub,
			Region:                cfg.Sauce.Region,
			RealDevices:           cfg.RealDevices,
			LegacySwallowTimeouts: cfg.LegacySwallowTimeouts,
		},
		OnDeviceStart: func(idx, total int, label string) {
			onDeviceStart(out, idx, total, label)
		},
		OnDeviceEnd: func(label string, result *core.ScenarioResult) {
			onDeviceEnd(out, label, result)
		},
	})

	// 5. Execute
	result, err := runner.Run(ctx, fx, specs)
	if err != nil {
		logger.Error("Run failed: %v", err)
		return err
	}

	// 6. Summary and reports
	printSummary(out, result, specs)

	if err := report.GenerateAllure(rc.OutputDir); err != nil {
		logger.Warn("Allure generation failed: %v", err)
		fmt.Fprintf(out, "  %s⚠%s Warning: failed to generate Allure results: %v\n", color(colorYellow), color(colorReset), err)
	}
	fmt.Fprintf(out, "\n  Report: %s\n", filepath.Join(rc.OutputDir, "report.json"))
	fmt.Fprintf(out, "  Allure: %s\n", filepath.Join(rc.OutputDir, "allure-results"))
	if rc.Verbose {
		fmt.Fprintf(out, "  Log:    %s\n", logPath)
	}

	logger.Info("=== Run finished: %s ===", result.Status)
	if result.Status != core.StatusPassed {
		return cli.Exit("", 1)
	}
	return nil
}

// loadFixture parses the configured fixture file or returns the built-in one.
// An explicit --timeout replaces the fixture's own timeout.
func loadFixture(cfg *config.Config, timeoutSet bool) (*flow.Fixture, error) {
	fx := flow.CarLoanFixture()
	if cfg.Fixture != "" {
		var err error
		fx, err = flow.ParseFile(cfg.Fixture, cfg.Env)
		if err != nil {
			return nil, fmt.Errorf("failed to load fixture: %w", err)
		}
	}
	if timeoutSet {
		fx.Timeout = cfg.Timeout
	}
	return fx, nil
}

// buildOpener returns the session opener and the redacted hub for reports.
func buildOpener(cfg *config.Config, fx *flow.Fixture, dryRun bool) (executor.SessionOpener, string, error) {
	if dryRun {
		return dryRunOpener(fx), "", nil
	}

	factory, err := sauce.NewFactory(sauce.Options{
		Credentials: cfg.Credentials(),
		Region:      cfg.Sauce.Region,
		Endpoint:    cfg.Sauce.Endpoint,
		App:         cfg.App,
	})
	if err != nil {
		return nil, "", err
	}
	hub, _ := sauce.HubURL(cfg.Credentials(), cfg.Sauce.Region, cfg.Sauce.Endpoint)
	return factory, redactHub(hub), nil
}

// dryRunOpener opens in-memory sessions that show the fixture's expected
// text once the trigger is clicked.
func dryRunOpener(fx *flow.Fixture) executor.SessionOpener {
	outputs := make(map[string]string, len(fx.Expectations))
	for _, exp := range fx.Expectations {
		outputs[exp.Locator.Value] = exp.Expected
	}
	return executor.OpenerFunc(func(ctx context.Context, spec device.Spec, jobName string) (core.Session, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		id := strings.ReplaceAll(strings.ToLower(spec.DeviceName+"-"+spec.PlatformVersion), " ", "-")
		return mock.New(mock.Config{ID: "dry-run-" + id, Outputs: outputs}), nil
	})
}

func redactHub(hub string) string {
	u, err := url.Parse(hub)
	if err != nil {
		return ""
	}
	return u.Redacted()
}

func appReference(cfg *config.Config) string {
	if cfg.App.App != "" {
		return cfg.App.App
	}
	return sauce.DefaultApp
}

// Live progress callbacks

func onDeviceStart(w io.Writer, idx, total int, label string) {
	fmt.Fprintf(w, "\n  %s[%d/%d]%s %s%s%s\n",
		color(colorCyan), idx+1, total, color(colorReset),
		color(colorBold), label, color(colorReset))
}

func onDeviceEnd(w io.Writer, label string, result *core.ScenarioResult) {
	dur := formatDuration(result.Duration.Milliseconds())
	switch result.Status {
	case core.StatusPassed:
		fmt.Fprintf(w, "    %s✓%s %s (%s)\n", color(colorGreen), color(colorReset), label, dur)
		if result.UnmetCount > 0 {
			fmt.Fprintf(w, "      %s╰─%s %d expectation(s) timed out (swallowed)\n", color(colorGray), color(colorReset), result.UnmetCount)
		}
	case core.StatusSkipped:
		fmt.Fprintf(w, "    %s-%s %s skipped\n", color(colorCyan), color(colorReset), label)
	default:
		fmt.Fprintf(w, "    %s✗%s %s (%s)\n", color(colorRed), color(colorReset), label, dur)
		if result.Error != "" {
			fmt.Fprintf(w, "      %s╰─%s %s\n", color(colorGray), color(colorReset), result.Error)
		}
	}
}

func printSummary(w io.Writer, result *executor.RunResult, specs []device.Spec) {
	fmt.Fprintln(w)
	if result.Passed > 0 {
		fmt.Fprintf(w, "  %s%d devices passing%s (%s)\n", color(colorGreen), result.Passed, color(colorReset), formatDuration(result.Duration.Milliseconds()))
	}
	if n := result.Failed + result.Errored; n > 0 {
		fmt.Fprintf(w, "  %s%d devices failing%s\n", color(colorRed), n, color(colorReset))
	}
	if result.Skipped > 0 {
		fmt.Fprintf(w, "  %s%d devices skipped%s\n", color(colorCyan), result.Skipped, color(colorReset))
	}
	fmt.Fprintln(w)

	tableWidth := 92
	fmt.Fprintln(w, strings.Repeat("═", tableWidth))
	fmt.Fprintf(w, "  %-36s %8s %6s %11s %10s  %-14s\n", "Device", "Status", "Steps", "Conditions", "Duration", "Session")
	fmt.Fprintln(w, strings.Repeat("─", tableWidth))

	for i, sc := range result.Scenarios {
		var status, statusColor string
		switch sc.Status {
		case core.StatusPassed:
			status, statusColor = "✓ PASS", color(colorGreen)
		case core.StatusSkipped:
			status, statusColor = "- SKIP", color(colorCyan)
		case core.StatusErrored:
			status, statusColor = "✗ ERROR", color(colorRed)
		default:
			status, statusColor = "✗ FAIL", color(colorRed)
		}

		name := sc.Name
		if i < len(specs) {
			name = specs[i].String()
		}
		if len(name) > 36 {
			name = name[:33] + "..."
		}

		met := 0
		for _, cond := range sc.Conditions {
			if cond.Met {
				met++
			}
		}
		session := sc.SessionID
		if len(session) > 14 {
			session = session[:14]
		}

		fmt.Fprintf(w, "  %-36s %s%8s%s %6d %11s %10s  %-14s\n",
			name, statusColor, status, color(colorReset),
			sc.TotalSteps, fmt.Sprintf("%d/%d", met, len(sc.Conditions)),
			formatDuration(sc.Duration.Milliseconds()), session)
	}

	fmt.Fprintln(w, strings.Repeat("─", tableWidth))
	statusColor := color(colorGreen)
	if !result.Success() {
		statusColor = color(colorRed)
	}
	fmt.Fprintf(w, "  %s%-36s%s %s%8s%s %6s %11s %10s\n",
		color(colorBold), "TOTAL", color(colorReset),
		statusColor, fmt.Sprintf("%d/%d", result.Passed, result.Total), color(colorReset),
		"", "", formatDuration(result.Duration.Milliseconds()))
	fmt.Fprintln(w, strings.Repeat("═", tableWidth))
}
