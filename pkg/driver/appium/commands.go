package appium

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/devicelab-dev/loancalc-runner/pkg/core"
)

// Element Operations

// FindElement implements core.Session.
func (c *Client) FindElement(ctx context.Context, loc core.Locator) (string, error) {
	id, err := c.FindElementBy(ctx, loc.Strategy, loc.Value)
	if err != nil {
		var wdErr *WebDriverError
		if errors.As(err, &wdErr) && wdErr.Code == "no such element" {
			return "", core.ErrElementNotFound.WithMessage(fmt.Sprintf("element not found: %s", loc)).WithCause(err)
		}
		return "", err
	}
	return id, nil
}

// FindElementBy finds a single element with a raw W3C strategy.
func (c *Client) FindElementBy(ctx context.Context, strategy, value string) (string, error) {
	body := map[string]interface{}{
		"using": strategy,
		"value": value,
	}

	resp, err := c.post(ctx, c.sessionPath()+"/element", body)
	if err != nil {
		return "", err
	}

	elemValue, ok := resp["value"].(map[string]interface{})
	if !ok {
		return "", fmt.Errorf("element not found")
	}

	id := extractElementID(elemValue)
	if id == "" {
		return "", fmt.Errorf("no element ID in response")
	}
	return id, nil
}

// SendKeys implements core.Session using the element value endpoint.
func (c *Client) SendKeys(ctx context.Context, elementID, text string) error {
	chars := make([]string, 0, len(text))
	for _, ch := range text {
		chars = append(chars, string(ch))
	}
	_, err := c.post(ctx, c.elementPath(elementID)+"/value", map[string]interface{}{
		"text":  text,
		"value": chars, // JSONWP hubs read value
	})
	return err
}

// Click implements core.Session.
func (c *Client) Click(ctx context.Context, elementID string) error {
	_, err := c.post(ctx, c.elementPath(elementID)+"/click", nil)
	return err
}

// Clear implements core.Session.
func (c *Client) Clear(ctx context.Context, elementID string) error {
	_, err := c.post(ctx, c.elementPath(elementID)+"/clear", nil)
	return err
}

// ElementText implements core.Session.
func (c *Client) ElementText(ctx context.Context, elementID string) (string, error) {
	resp, err := c.get(ctx, c.elementPath(elementID)+"/text")
	if err != nil {
		return "", err
	}
	text, _ := resp["value"].(string)
	return text, nil
}

// Screen Operations

// Screenshot implements core.Session and returns PNG bytes.
func (c *Client) Screenshot(ctx context.Context) ([]byte, error) {
	resp, err := c.get(ctx, c.sessionPath()+"/screenshot")
	if err != nil {
		return nil, err
	}
	encoded, ok := resp["value"].(string)
	if !ok {
		return nil, fmt.Errorf("invalid screenshot response")
	}
	return base64.StdEncoding.DecodeString(encoded)
}

// Scripts

// ExecuteScript implements core.Session.
func (c *Client) ExecuteScript(ctx context.Context, script string, args ...interface{}) (interface{}, error) {
	if args == nil {
		args = []interface{}{}
	}
	resp, err := c.post(ctx, c.sessionPath()+"/execute/sync", map[string]interface{}{
		"script": script,
		"args":   args,
	})
	if err != nil {
		return nil, err
	}
	return resp["value"], nil
}
