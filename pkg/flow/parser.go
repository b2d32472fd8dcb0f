package flow

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/devicelab-dev/loancalc-runner/pkg/core"
	"github.com/devicelab-dev/loancalc-runner/pkg/jsengine"
	"github.com/devicelab-dev/loancalc-runner/pkg/loan"
)

// ParseError represents a parsing error with location info.
type ParseError struct {
	Path    string
	Line    int
	Message string
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s:%d: %s", e.Path, e.Line, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

// rawFixture mirrors the YAML layout before locators are resolved and
// expressions expanded.
type rawFixture struct {
	Name    string       `yaml:"name"`
	AppID   string       `yaml:"appId"`
	Timeout string       `yaml:"timeout"`
	Loan    *loan.Inputs `yaml:"loan"`
	Inputs  []rawField   `yaml:"inputs"`
	Trigger *rawField    `yaml:"trigger"`
	Expect  []rawField   `yaml:"expect"`
}

// rawField accepts a locator either as {by, value} or as one shorthand key.
type rawField struct {
	Name            string        `yaml:"name"`
	Locator         *core.Locator `yaml:"locator"`
	ID              string        `yaml:"id"`
	AccessibilityID string        `yaml:"accessibilityId"`
	XPath           string        `yaml:"xpath"`
	ClassName       string        `yaml:"className"`
	Value           string        `yaml:"value"`
	Text            string        `yaml:"text"`

	line int
}

func (f *rawField) UnmarshalYAML(node *yaml.Node) error {
	type plain rawField
	var p plain
	if err := node.Decode(&p); err != nil {
		return err
	}
	*f = rawField(p)
	f.line = node.Line
	return nil
}

func (f *rawField) locator() (core.Locator, error) {
	var found []core.Locator
	if f.Locator != nil {
		found = append(found, *f.Locator)
	}
	if f.ID != "" {
		found = append(found, core.ID(f.ID))
	}
	if f.AccessibilityID != "" {
		found = append(found, core.Locator{Strategy: core.ByAccessibilityID, Value: f.AccessibilityID})
	}
	if f.XPath != "" {
		found = append(found, core.Locator{Strategy: core.ByXPath, Value: f.XPath})
	}
	if f.ClassName != "" {
		found = append(found, core.Locator{Strategy: core.ByClassName, Value: f.ClassName})
	}

	switch len(found) {
	case 0:
		return core.Locator{}, fmt.Errorf("field %q has no locator", f.Name)
	case 1:
		return found[0], nil
	default:
		return core.Locator{}, fmt.Errorf("field %q has more than one locator", f.Name)
	}
}

// ParseFile parses a fixture YAML file.
func ParseFile(path string, vars map[string]string) (*Fixture, error) {
	data, err := os.ReadFile(path) //#nosec G304 -- path is user-provided fixture file
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return Parse(data, path, vars)
}

// Parse parses fixture YAML content. vars are exposed to ${...} expressions
// alongside APP_ID, inputs (the loan block) and loan (its computed outputs).
func Parse(data []byte, sourcePath string, vars map[string]string) (*Fixture, error) {
	if strings.TrimSpace(string(data)) == "" {
		return nil, &ParseError{Path: sourcePath, Line: 1, Message: "empty fixture file"}
	}

	var raw rawFixture
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, &ParseError{Path: sourcePath, Message: err.Error()}
	}

	fx := &Fixture{
		Name:       raw.Name,
		SourcePath: sourcePath,
		AppID:      raw.AppID,
		Loan:       raw.Loan,
	}
	if raw.Timeout != "" {
		d, err := time.ParseDuration(raw.Timeout)
		if err != nil {
			return nil, &ParseError{Path: sourcePath, Message: fmt.Sprintf("invalid timeout %q", raw.Timeout)}
		}
		fx.Timeout = d
	}

	engine := jsengine.New()
	engine.SetVariables(vars)
	engine.SetVariable("APP_ID", raw.AppID)
	if raw.Loan != nil {
		out, err := loan.Compute(*raw.Loan)
		if err != nil {
			return nil, &ParseError{Path: sourcePath, Message: err.Error()}
		}
		in := *raw.Loan
		engine.SetVariable("inputs", &in)
		engine.SetVariable("loan", &out)
	}

	resolve := func(rf *rawField, text string) (Field, error) {
		loc, err := rf.locator()
		if err != nil {
			return Field{}, &ParseError{Path: sourcePath, Line: rf.line, Message: err.Error()}
		}
		if loc.Value, err = engine.ExpandVariables(loc.Value); err != nil {
			return Field{}, &ParseError{Path: sourcePath, Line: rf.line, Message: err.Error()}
		}
		if text, err = engine.ExpandVariables(text); err != nil {
			return Field{}, &ParseError{Path: sourcePath, Line: rf.line, Message: err.Error()}
		}
		return Field{Name: rf.Name, Locator: loc, Value: text}, nil
	}

	for i := range raw.Inputs {
		field, err := resolve(&raw.Inputs[i], raw.Inputs[i].Value)
		if err != nil {
			return nil, err
		}
		fx.Inputs = append(fx.Inputs, field)
	}

	if raw.Trigger != nil {
		field, err := resolve(raw.Trigger, "")
		if err != nil {
			return nil, err
		}
		fx.Trigger = field
	}

	for i := range raw.Expect {
		rf := &raw.Expect[i]
		field, err := resolve(rf, rf.Text)
		if err != nil {
			return nil, err
		}
		fx.Expectations = append(fx.Expectations, Expectation{
			Name:     field.Name,
			Locator:  field.Locator,
			Expected: field.Value,
		})
	}

	if err := fx.Validate(); err != nil {
		return nil, &ParseError{Path: sourcePath, Message: err.Error()}
	}
	return fx, nil
}
