// Package config handles configuration for loancalc-runner.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/devicelab-dev/loancalc-runner/pkg/core"
	"github.com/devicelab-dev/loancalc-runner/pkg/device"
	"github.com/devicelab-dev/loancalc-runner/pkg/sauce"
)

// EnvConfig names the config file when --config is not given.
const EnvConfig = "LOANCALC_CONFIG"

// EnvRealDevices switches the built-in matrix to real devices.
const EnvRealDevices = "LOANCALC_REAL_DEVICES"

// Defaults.
const (
	DefaultTimeout      = 30 * time.Second
	DefaultPollInterval = 500 * time.Millisecond
	DefaultOutput       = "reports"
)

// Sauce holds device-farm connection settings.
type Sauce struct {
	Username  string `yaml:"username"`
	AccessKey string `yaml:"accessKey"`
	Region    string `yaml:"region"`
	Endpoint  string `yaml:"endpoint"` // Hub override (local Appium, tunnel)
}

// Config represents the workspace configuration (loancalc.yaml).
type Config struct {
	Sauce Sauce            `yaml:"sauce"`
	App   sauce.AppOptions `yaml:"app"`

	// Device settings
	RealDevices bool          `yaml:"realDevices"` // Use the real-device matrix
	Devices     []device.Spec `yaml:"devices"`     // Replaces the built-in matrix

	// Scenario settings
	Fixture      string            `yaml:"fixture"`      // Fixture YAML; empty = built-in car loan fixture
	Env          map[string]string `yaml:"env"`          // Variables for ${...} in fixtures
	Timeout      time.Duration     `yaml:"timeout"`      // Expected-condition wait
	PollInterval time.Duration     `yaml:"pollInterval"` // Expected-condition poll period

	// Execution settings
	Parallel              int    `yaml:"parallel"`              // Workers; 0 = one per device
	LegacySwallowTimeouts bool   `yaml:"legacySwallowTimeouts"` // Log timeouts instead of failing
	Screenshots           *bool  `yaml:"screenshots"`           // Default: true
	Output                string `yaml:"output"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Timeout:      DefaultTimeout,
		PollInterval: DefaultPollInterval,
		Output:       DefaultOutput,
	}
}

// Load loads configuration from a file. Unset fields keep their defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path) //#nosec G304 -- user-provided config file
	if err != nil {
		return nil, err
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, core.ErrInvalidConfig.WithMessage(fmt.Sprintf("parse %s", path)).WithCause(err)
	}
	cfg.fillDefaults()

	return cfg, nil
}

// LoadFromDir looks for loancalc.yaml or loancalc.yml in the directory.
func LoadFromDir(dir string) (*Config, error) {
	for _, name := range []string{"loancalc.yaml", "loancalc.yml"} {
		configPath := filepath.Join(dir, name)
		if _, err := os.Stat(configPath); err == nil {
			return Load(configPath)
		}
	}

	// No config file found, return defaults
	return Default(), nil
}

// Resolve loads path if given, then $LOANCALC_CONFIG, then the working
// directory, and applies environment overrides.
func Resolve(path string) (*Config, error) {
	var (
		cfg *Config
		err error
	)
	switch {
	case path != "":
		cfg, err = Load(path)
	case os.Getenv(EnvConfig) != "":
		cfg, err = Load(os.Getenv(EnvConfig))
	default:
		cfg, err = LoadFromDir(".")
	}
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides file values with SAUCE_* and LOANCALC_* variables.
func (c *Config) ApplyEnv() error {
	if v := os.Getenv(sauce.EnvUsername); v != "" {
		c.Sauce.Username = v
	}
	if v := os.Getenv(sauce.EnvAccessKey); v != "" {
		c.Sauce.AccessKey = v
	}
	if v := os.Getenv(sauce.EnvRegion); v != "" {
		c.Sauce.Region = v
	}
	if v := os.Getenv(EnvRealDevices); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return core.ErrInvalidConfig.WithMessage(fmt.Sprintf("%s=%q is not a boolean", EnvRealDevices, v))
		}
		c.RealDevices = b
	}
	return nil
}

// Validate checks values that cannot be defaulted.
func (c *Config) Validate() error {
	if c.Timeout <= 0 {
		return core.ErrInvalidConfig.WithMessage("timeout must be positive")
	}
	if c.PollInterval <= 0 || c.PollInterval > c.Timeout {
		return core.ErrInvalidConfig.WithMessage("pollInterval must be positive and not exceed timeout")
	}
	if c.Parallel < 0 {
		return core.ErrInvalidConfig.WithMessage("parallel must not be negative")
	}
	return nil
}

// Credentials returns the Sauce Labs credentials.
func (c *Config) Credentials() sauce.Credentials {
	return sauce.Credentials{Username: c.Sauce.Username, AccessKey: c.Sauce.AccessKey}
}

// CaptureScreenshots reports whether screenshots are enabled.
func (c *Config) CaptureScreenshots() bool {
	return c.Screenshots == nil || *c.Screenshots
}

// DeviceMatrix returns the configured devices or the built-in matrix.
func (c *Config) DeviceMatrix() ([]device.Spec, error) {
	return device.Resolve(c.Devices, c.RealDevices)
}

func (c *Config) fillDefaults() {
	if c.Timeout == 0 {
		c.Timeout = DefaultTimeout
	}
	if c.PollInterval == 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.Output == "" {
		c.Output = DefaultOutput
	}
}
