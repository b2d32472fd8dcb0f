// Package mock provides an in-memory session for running scenarios without a device farm.
package mock

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/devicelab-dev/loancalc-runner/pkg/core"
)

// Session is a mock implementation of core.Session for testing and dry runs.
type Session struct {
	// Configuration
	Config Config

	mu        sync.Mutex
	id        string
	sent      map[string]string
	clicks    []string
	scripts   []string
	clickedAt time.Time
	quit      bool
}

// Config configures mock session behavior.
type Config struct {
	// ID is the session ID to report. Default: "mock-session".
	ID string
	// Outputs maps locator values to the text they show once the trigger is clicked.
	Outputs map[string]string
	// OutputDelay is how long after a click the outputs appear.
	OutputDelay time.Duration
	// Missing lists locator values that FindElement cannot locate.
	Missing []string
	// ScriptErr, if set, is returned from every ExecuteScript call.
	ScriptErr error
	// QuitErr, if set, is returned from Quit.
	QuitErr error
}

// New creates a new mock session.
func New(cfg Config) *Session {
	if cfg.ID == "" {
		cfg.ID = "mock-session"
	}
	return &Session{
		Config: cfg,
		id:     cfg.ID,
		sent:   make(map[string]string),
	}
}

// elementPrefix turns locator values into element IDs and back.
const elementPrefix = "mock-element:"

// SessionID implements core.Session.
func (s *Session) SessionID() string {
	return s.id
}

// FindElement returns a deterministic element ID unless the locator is listed as missing.
func (s *Session) FindElement(ctx context.Context, loc core.Locator) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	for _, m := range s.Config.Missing {
		if m == loc.Value {
			return "", core.ErrElementNotFound.WithMessage(fmt.Sprintf("element not found: %s", loc))
		}
	}
	return elementPrefix + loc.Value, nil
}

// SendKeys records typed text per element.
func (s *Session) SendKeys(ctx context.Context, elementID, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent[strings.TrimPrefix(elementID, elementPrefix)] += text
	return nil
}

// Clear empties the element's typed text.
func (s *Session) Clear(ctx context.Context, elementID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent[strings.TrimPrefix(elementID, elementPrefix)] = ""
	return nil
}

// Click records the click and starts the output delay clock.
func (s *Session) Click(ctx context.Context, elementID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clicks = append(s.clicks, strings.TrimPrefix(elementID, elementPrefix))
	s.clickedAt = time.Now()
	return nil
}

// ElementText returns the configured output once a click has happened and the delay passed.
func (s *Session) ElementText(ctx context.Context, elementID string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	value := strings.TrimPrefix(elementID, elementPrefix)
	if typed, ok := s.sent[value]; ok {
		return typed, nil
	}
	if s.clickedAt.IsZero() || time.Since(s.clickedAt) < s.Config.OutputDelay {
		return "", nil
	}
	return s.Config.Outputs[value], nil
}

// Screenshot returns a mock PNG image.
func (s *Session) Screenshot(ctx context.Context) ([]byte, error) {
	// Minimal valid PNG (1x1 transparent pixel)
	return []byte{
		0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A, // PNG signature
		0x00, 0x00, 0x00, 0x0D, 0x49, 0x48, 0x44, 0x52, // IHDR chunk
		0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x01,
		0x08, 0x06, 0x00, 0x00, 0x00, 0x1F, 0x15, 0xC4,
		0x89, 0x00, 0x00, 0x00, 0x0A, 0x49, 0x44, 0x41,
		0x54, 0x78, 0x9C, 0x63, 0x00, 0x01, 0x00, 0x00,
		0x05, 0x00, 0x01, 0x0D, 0x0A, 0x2D, 0xB4, 0x00,
		0x00, 0x00, 0x00, 0x49, 0x45, 0x4E, 0x44, 0xAE,
		0x42, 0x60, 0x82,
	}, nil
}

// ExecuteScript records the script.
func (s *Session) ExecuteScript(ctx context.Context, script string, args ...interface{}) (interface{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scripts = append(s.scripts, script)
	if s.Config.ScriptErr != nil {
		return nil, s.Config.ScriptErr
	}
	return nil, nil
}

// Quit marks the session closed.
func (s *Session) Quit(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.quit = true
	return s.Config.QuitErr
}

// Sent returns the text typed into the element with the given locator value.
func (s *Session) Sent(value string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sent[value]
}

// Clicks returns the locator values clicked, in order.
func (s *Session) Clicks() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.clicks...)
}

// Scripts returns the scripts executed, in order.
func (s *Session) Scripts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.scripts...)
}

// Closed reports whether Quit was called.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.quit
}
