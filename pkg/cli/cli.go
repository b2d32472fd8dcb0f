// Package cli provides the command-line interface for loancalc-runner.
package cli

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/urfave/cli/v2"

	"github.com/devicelab-dev/loancalc-runner/pkg/config"
	"github.com/devicelab-dev/loancalc-runner/pkg/sauce"
)

// Version is set at build time.
var Version = "dev"

// GlobalFlags are available to all commands.
var GlobalFlags = []cli.Flag{
	&cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Config file (default: ./loancalc.yaml)",
		EnvVars: []string{config.EnvConfig},
	},
	&cli.StringFlag{
		Name:    "sauce-username",
		Usage:   "Sauce Labs username",
		EnvVars: []string{sauce.EnvUsername},
	},
	&cli.StringFlag{
		Name:    "sauce-access-key",
		Usage:   "Sauce Labs access key",
		EnvVars: []string{sauce.EnvAccessKey},
	},
	&cli.StringFlag{
		Name:    "region",
		Usage:   "Sauce Labs data center (default: " + sauce.DefaultRegion + ")",
		EnvVars: []string{sauce.EnvRegion},
	},
	&cli.StringFlag{
		Name:  "endpoint",
		Usage: "Hub URL override, e.g. a local Appium server",
	},
	&cli.BoolFlag{
		Name:    "verbose",
		Usage:   "Enable verbose logging",
		EnvVars: []string{"LOANCALC_VERBOSE"},
	},
	&cli.BoolFlag{
		Name:  "no-ansi",
		Usage: "Disable ANSI colors",
	},
}

// NewApp builds the application. Execute runs it against os.Args.
func NewApp() *cli.App {
	return &cli.App{
		Name:    "loancalc-runner",
		Usage:   "Run the loan calculator UI test on the Sauce Labs device farm",
		Version: Version,
		Description: `loancalc-runner opens one Appium session per device matrix row,
enters a car loan into the calculator app and checks the computed figures.

Examples:
  loancalc-runner run
  loancalc-runner run --real-devices --parallel 1
  loancalc-runner run --fixture fixtures/carloan.yaml -e APP_PKG=io.billmeyer.loancalc
  loancalc-runner run --dry-run --output out --flatten
  loancalc-runner calc --price 30000 --term 72
  loancalc-runner validate fixtures/`,
		Flags: GlobalFlags,
		Before: func(c *cli.Context) error {
			if c.Bool("no-ansi") {
				colorsEnabled = false
			}
			return nil
		},
		Commands: []*cli.Command{
			runCommand,
			devicesCommand,
			calcCommand,
			validateCommand,
		},
	}
}

// Execute runs the CLI.
func Execute() {
	if err := NewApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig resolves the config file and environment, then applies the
// global flags on top.
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.Resolve(c.String("config"))
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if c.IsSet("sauce-username") {
		cfg.Sauce.Username = c.String("sauce-username")
	}
	if c.IsSet("sauce-access-key") {
		cfg.Sauce.AccessKey = c.String("sauce-access-key")
	}
	if c.IsSet("region") {
		cfg.Sauce.Region = c.String("region")
	}
	if c.IsSet("endpoint") {
		cfg.Sauce.Endpoint = c.String("endpoint")
	}
	return cfg, nil
}

// ANSI color codes
const (
	colorReset  = "\033[0m"
	colorBold   = "\033[1m"
	colorGreen  = "\033[32m"
	colorRed    = "\033[31m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorGray   = "\033[90m"
)

// colorsEnabled determines if ANSI colors should be used
var colorsEnabled = true

func init() {
	// Respect NO_COLOR environment variable
	if os.Getenv("NO_COLOR") != "" {
		colorsEnabled = false
		return
	}
	// Check if stdout is a terminal
	if fileInfo, err := os.Stdout.Stat(); err == nil {
		if (fileInfo.Mode() & os.ModeCharDevice) == 0 {
			colorsEnabled = false
		}
	}
}

// color returns the color code if colors are enabled, empty string otherwise
func color(c string) string {
	if colorsEnabled {
		return c
	}
	return ""
}

// formatDuration formats milliseconds to a human-readable string.
// Shows milliseconds for values < 1s, seconds otherwise.
func formatDuration(ms int64) string {
	if ms < 1000 {
		return fmt.Sprintf("%dms", ms)
	}
	if ms < 60000 {
		return fmt.Sprintf("%.1fs", float64(ms)/1000)
	}
	mins := ms / 60000
	secs := (ms % 60000) / 1000
	return fmt.Sprintf("%dm %ds", mins, secs)
}

// lockedWriter serializes writes from device workers.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}
