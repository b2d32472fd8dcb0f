// Package core provides the execution model types for loancalc-runner.
package core

import (
	"context"
	"fmt"
)

// Locator strategies understood by Appium's UiAutomator2 driver.
const (
	ByID              = "id"
	ByAccessibilityID = "accessibility id"
	ByXPath           = "xpath"
	ByClassName       = "class name"
)

// Locator identifies a UI element on the remote device.
type Locator struct {
	Strategy string `yaml:"by" json:"by"`
	Value    string `yaml:"value" json:"value"`
}

// ID returns a resource-id locator.
func ID(value string) Locator {
	return Locator{Strategy: ByID, Value: value}
}

// IsZero reports whether the locator is unset.
func (l Locator) IsZero() bool {
	return l.Strategy == "" && l.Value == ""
}

// String returns a readable form used in logs and messages.
func (l Locator) String() string {
	return fmt.Sprintf("%s=%s", l.Strategy, l.Value)
}

// Session is a live remote automation session on one device.
// A session is owned by exactly one goroutine from creation until Quit and
// is passed explicitly to whatever needs it.
// Implementations: appium.Client (remote hub), mock.Session (tests).
type Session interface {
	// SessionID returns the remote session identifier
	SessionID() string

	// FindElement locates a single element and returns its element ID
	FindElement(ctx context.Context, loc Locator) (string, error)

	// Clear empties an editable element
	Clear(ctx context.Context, elementID string) error

	// SendKeys types text into an element
	SendKeys(ctx context.Context, elementID, text string) error

	// Click clicks an element
	Click(ctx context.Context, elementID string) error

	// ElementText returns the visible text of an element
	ElementText(ctx context.Context, elementID string) (string, error)

	// Screenshot captures the current screen as PNG
	Screenshot(ctx context.Context) ([]byte, error)

	// ExecuteScript runs a script through the session's script channel.
	// Device farms use it for vendor hooks such as "sauce:job-result=passed".
	ExecuteScript(ctx context.Context, script string, args ...interface{}) (interface{}, error)

	// Quit ends the remote session
	Quit(ctx context.Context) error
}

// PlatformInfo contains device and platform details
type PlatformInfo struct {
	Platform    string `json:"platform"`    // Android
	OSVersion   string `json:"osVersion"`   // e.g., "9.0", "10.0"
	DeviceName  string `json:"deviceName"`  // e.g., "Android GoogleAPI Emulator"
	IsSimulator bool   `json:"isSimulator"` // Emulator vs real device
	AppID       string `json:"appId,omitempty"`
}
