// Package sauce opens Appium sessions on the Sauce Labs device farm and
// reports job results back to it.
package sauce

import (
	"fmt"
	"sort"
	"strings"

	"github.com/devicelab-dev/loancalc-runner/pkg/core"
	"github.com/devicelab-dev/loancalc-runner/pkg/device"
)

// Defaults for the loan calculator app.
const (
	DefaultApp            = "sauce-storage:LoanCalc.apk"
	DefaultAutomationName = "UiAutomator2"
	DefaultAppiumVersion  = "1.16.0"
)

// Capability keys sent in alwaysMatch.
const (
	CapPlatformName    = "platformName"
	CapPlatformVersion = "appium:platformVersion"
	CapDeviceName      = "appium:deviceName"
	CapAutomationName  = "appium:automationName"
	CapApp             = "appium:app"
	CapSauceOptions    = "sauce:options"
)

// AppOptions describe the app under test and the automation engine.
type AppOptions struct {
	App            string `yaml:"app"`
	AutomationName string `yaml:"automationName"`
	AppiumVersion  string `yaml:"appiumVersion"`
}

func (o AppOptions) withDefaults() AppOptions {
	if o.App == "" {
		o.App = DefaultApp
	}
	if o.AutomationName == "" {
		o.AutomationName = DefaultAutomationName
	}
	if o.AppiumVersion == "" {
		o.AppiumVersion = DefaultAppiumVersion
	}
	return o
}

// Capabilities is the flat capability set for one session.
type Capabilities map[string]interface{}

// BuildCapabilities describes the remote environment for one matrix row.
// jobName labels the job on the Sauce Labs dashboard.
func BuildCapabilities(spec device.Spec, jobName string, app AppOptions) Capabilities {
	app = app.withDefaults()
	return Capabilities{
		CapPlatformName:    spec.PlatformName,
		CapPlatformVersion: spec.PlatformVersion,
		CapDeviceName:      spec.DeviceName,
		CapAutomationName:  app.AutomationName,
		CapApp:             app.App,
		CapSauceOptions: map[string]interface{}{
			"name":          jobName,
			"appiumVersion": app.AppiumVersion,
		},
	}
}

// JobName returns the name of the Sauce Labs job.
func (c Capabilities) JobName() string {
	opts, _ := c[CapSauceOptions].(map[string]interface{})
	name, _ := opts["name"].(string)
	return name
}

// requiredKeys are checked by Validate. "sauce:options.name" is the job name.
var requiredKeys = []string{
	CapPlatformName,
	CapPlatformVersion,
	CapDeviceName,
	CapAutomationName,
	CapApp,
	CapSauceOptions + ".name",
}

// Validate requires every key in requiredKeys to be present and non-empty.
func (c Capabilities) Validate() error {
	var missing []string
	for _, key := range requiredKeys {
		if strings.TrimSpace(c.lookup(key)) == "" {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return core.ErrMissingRequired.
			WithMessage(fmt.Sprintf("missing capabilities: %s", strings.Join(missing, ", "))).
			WithDetails(map[string]interface{}{"missing": missing})
	}
	return nil
}

func (c Capabilities) lookup(key string) string {
	if parent, child, ok := strings.Cut(key, "."); ok {
		nested, _ := c[parent].(map[string]interface{})
		v, _ := nested[child].(string)
		return v
	}
	v, _ := c[key].(string)
	return v
}
