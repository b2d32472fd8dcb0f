// Package device provides the device matrix a run fans out over.
package device

import (
	"fmt"
	"strings"

	"github.com/devicelab-dev/loancalc-runner/pkg/core"
)

// Spec is one row of the device matrix.
type Spec struct {
	PlatformName    string `yaml:"platformName" json:"platformName"`
	DeviceName      string `yaml:"deviceName" json:"deviceName"`
	PlatformVersion string `yaml:"platformVersion" json:"platformVersion"`
}

// String returns "<platform> <device> <version>" for logs and report entries.
func (s Spec) String() string {
	return fmt.Sprintf("%s %s %s", s.PlatformName, s.DeviceName, s.PlatformVersion)
}

// Validate requires all three fields to be non-empty.
func (s Spec) Validate() error {
	var missing []string
	if strings.TrimSpace(s.PlatformName) == "" {
		missing = append(missing, "platformName")
	}
	if strings.TrimSpace(s.DeviceName) == "" {
		missing = append(missing, "deviceName")
	}
	if strings.TrimSpace(s.PlatformVersion) == "" {
		missing = append(missing, "platformVersion")
	}
	if len(missing) > 0 {
		return core.ErrMissingRequired.WithMessage(
			fmt.Sprintf("device %q missing %s", s.String(), strings.Join(missing, ", ")))
	}
	return nil
}

// IsEmulator reports whether the row targets a virtual device.
func (s Spec) IsEmulator() bool {
	name := strings.ToLower(s.DeviceName)
	return strings.Contains(name, "emulator") || strings.Contains(name, "simulator")
}

// Real devices are matched by a device-name pattern on the device farm.
var realDevices = []Spec{
	{PlatformName: "Android", DeviceName: "Google.*", PlatformVersion: "9"},
}

var virtualDevices = []Spec{
	{PlatformName: "Android", DeviceName: "Android GoogleAPI Emulator", PlatformVersion: "9.0"},
	{PlatformName: "Android", DeviceName: "Android GoogleAPI Emulator", PlatformVersion: "10.0"},
}

// Matrix returns the built-in device list. The returned slice is a copy.
func Matrix(useReal bool) []Spec {
	if useReal {
		return append([]Spec(nil), realDevices...)
	}
	return append([]Spec(nil), virtualDevices...)
}

// Rows returns the matrix as (platform, device, version) string triples.
func Rows(specs []Spec) [][3]string {
	rows := make([][3]string, len(specs))
	for i, s := range specs {
		rows[i] = [3]string{s.PlatformName, s.DeviceName, s.PlatformVersion}
	}
	return rows
}

// Resolve returns the configured override list when present, otherwise the
// built-in matrix. Override rows are validated.
func Resolve(override []Spec, useReal bool) ([]Spec, error) {
	if len(override) == 0 {
		return Matrix(useReal), nil
	}
	for i, s := range override {
		if err := s.Validate(); err != nil {
			return nil, fmt.Errorf("devices[%d]: %w", i, err)
		}
	}
	return append([]Spec(nil), override...), nil
}
