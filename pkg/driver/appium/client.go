// Package appium implements core.Session over the W3C WebDriver protocol
// spoken by Appium servers and device-farm hubs.
package appium

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/devicelab-dev/loancalc-runner/pkg/core"
)

// W3C WebDriver element identifier key (standard constant)
const w3cElementKey = "element-6066-11e4-a52e-4f735466cecf"

// DefaultHTTPTimeout bounds a single WebDriver call. Session creation on a
// device farm includes device allocation and app install, so it is generous.
const DefaultHTTPTimeout = 5 * time.Minute

// WebDriverError is an error reported by the remote end in a W3C error body.
type WebDriverError struct {
	Status  int    // HTTP status code
	Code    string // W3C error code: "no such element", "session not created", ...
	Message string
}

func (e *WebDriverError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Client handles HTTP communication with an Appium server or hub.
// A connected Client is one remote session handle.
type Client struct {
	serverURL    string
	sessionID    string
	client       *http.Client
	platform     string // android, ios
	capabilities map[string]interface{}
}

// NewClient creates a new Appium client. serverURL may carry basic-auth
// credentials in its userinfo, which net/http sends on every request.
func NewClient(serverURL string) *Client {
	return &Client{
		serverURL: strings.TrimSuffix(serverURL, "/"),
		client: &http.Client{
			Timeout: DefaultHTTPTimeout,
		},
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.client = hc
	return c
}

// Connect creates a new session with the given capabilities.
func (c *Client) Connect(ctx context.Context, capabilities map[string]interface{}) error {
	body := map[string]interface{}{
		"capabilities": map[string]interface{}{
			"alwaysMatch": capabilities,
			"firstMatch":  []interface{}{map[string]interface{}{}},
		},
	}

	resp, err := c.post(ctx, "/session", body)
	if err != nil {
		var wdErr *WebDriverError
		if errors.As(err, &wdErr) {
			return core.ErrSessionRejected.WithCause(err)
		}
		return err
	}

	// W3C puts sessionId inside value; older hubs return it at the top level.
	value, _ := resp["value"].(map[string]interface{})
	if value != nil {
		c.sessionID, _ = value["sessionId"].(string)
	}
	if c.sessionID == "" {
		c.sessionID, _ = resp["sessionId"].(string)
	}
	if c.sessionID == "" {
		return core.ErrSessionRejected.WithMessage("no session ID in response")
	}

	c.capabilities = capabilities
	if value != nil {
		if caps, ok := value["capabilities"].(map[string]interface{}); ok {
			c.capabilities = caps
		}
	}
	if platform, ok := c.capabilities["platformName"].(string); ok {
		c.platform = strings.ToLower(platform)
	} else if platform, ok := capabilities["platformName"].(string); ok {
		c.platform = strings.ToLower(platform)
	}

	return nil
}

// Disconnect closes the session.
func (c *Client) Disconnect(ctx context.Context) error {
	if c.sessionID == "" {
		return nil
	}
	_, err := c.delete(ctx, c.sessionPath())
	c.sessionID = ""
	return err
}

// Quit implements core.Session.
func (c *Client) Quit(ctx context.Context) error {
	return c.Disconnect(ctx)
}

// SessionID implements core.Session.
func (c *Client) SessionID() string {
	return c.sessionID
}

// Platform returns the platform (android/ios).
func (c *Client) Platform() string {
	return c.platform
}

// Capabilities returns the capabilities the remote end granted.
func (c *Client) Capabilities() map[string]interface{} {
	return c.capabilities
}

// RedactedURL returns the server URL with any password masked, for logs.
func (c *Client) RedactedURL() string {
	u, err := url.Parse(c.serverURL)
	if err != nil {
		return "<invalid url>"
	}
	return u.Redacted()
}

// HTTP Helpers

func (c *Client) sessionPath() string {
	return "/session/" + c.sessionID
}

func (c *Client) elementPath(elementID string) string {
	return c.sessionPath() + "/element/" + elementID
}

func (c *Client) get(ctx context.Context, path string) (map[string]interface{}, error) {
	return c.request(ctx, http.MethodGet, path, nil)
}

func (c *Client) post(ctx context.Context, path string, body interface{}) (map[string]interface{}, error) {
	if body == nil {
		// W3C requires a JSON body on every POST.
		body = map[string]interface{}{}
	}
	return c.request(ctx, http.MethodPost, path, body)
}

func (c *Client) delete(ctx context.Context, path string) (map[string]interface{}, error) {
	return c.request(ctx, http.MethodDelete, path, nil)
}

func (c *Client) request(ctx context.Context, method, path string, body interface{}) (map[string]interface{}, error) {
	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.serverURL+path, bodyReader)
	if err != nil {
		return nil, core.ErrMalformedURL.WithCause(err)
	}

	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, core.ErrServerUnreachable.WithCause(redactURLError(err))
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var result map[string]interface{}
	if len(respBody) > 0 {
		if err := json.Unmarshal(respBody, &result); err != nil {
			if resp.StatusCode >= http.StatusBadRequest {
				return nil, &WebDriverError{
					Status:  resp.StatusCode,
					Code:    "unknown error",
					Message: strings.TrimSpace(string(respBody)),
				}
			}
			return nil, fmt.Errorf("failed to parse response: %w", err)
		}
	}

	// Check for WebDriver error
	if errValue, ok := result["value"].(map[string]interface{}); ok {
		if errType, ok := errValue["error"].(string); ok {
			errMsg, _ := errValue["message"].(string)
			wdErr := &WebDriverError{Status: resp.StatusCode, Code: errType, Message: errMsg}
			if errType == "invalid session id" {
				return result, core.ErrSessionLost.WithCause(wdErr)
			}
			return result, wdErr
		}
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return result, &WebDriverError{
			Status:  resp.StatusCode,
			Code:    "unknown error",
			Message: http.StatusText(resp.StatusCode),
		}
	}

	return result, nil
}

// redactURLError strips credentials from the URL embedded in a *url.Error.
func redactURLError(err error) error {
	var urlErr *url.Error
	if !errors.As(err, &urlErr) {
		return err
	}
	if u, perr := url.Parse(urlErr.URL); perr == nil {
		urlErr.URL = u.Redacted()
	}
	return urlErr
}

func extractElementID(value map[string]interface{}) string {
	// W3C format
	if id, ok := value[w3cElementKey].(string); ok {
		return id
	}
	// Legacy format
	if id, ok := value["ELEMENT"].(string); ok {
		return id
	}
	return ""
}
