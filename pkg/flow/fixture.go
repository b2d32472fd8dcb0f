// Package flow describes scenario fixtures: which fields to fill, which
// button to press and which outputs to wait for, as data.
package flow

import (
	"fmt"
	"time"

	"github.com/devicelab-dev/loancalc-runner/pkg/core"
	"github.com/devicelab-dev/loancalc-runner/pkg/loan"
)

// Field is an input to type into, or the trigger to click.
type Field struct {
	Name    string       `json:"name"`
	Locator core.Locator `json:"locator"`
	Value   string       `json:"value,omitempty"`
}

// Expectation is an output whose text must contain Expected.
type Expectation struct {
	Name     string       `json:"name"`
	Locator  core.Locator `json:"locator"`
	Expected string       `json:"expected"`
}

// Fixture is one declarative UI scenario.
type Fixture struct {
	Name       string        `json:"name"`
	SourcePath string        `json:"sourcePath,omitempty"`
	AppID      string        `json:"appId"`
	Timeout    time.Duration `json:"timeout"` // 0 = runner default

	// Loan holds the numeric inputs when the fixture drives the calculator;
	// it feeds ${...} expressions and the validator's cross-check.
	Loan *loan.Inputs `json:"loan,omitempty"`

	Inputs       []Field       `json:"inputs"`
	Trigger      Field         `json:"trigger"`
	Expectations []Expectation `json:"expectations"`
}

// Locators returns every locator in scenario order: inputs, trigger, outputs.
func (f *Fixture) Locators() []Field {
	fields := make([]Field, 0, len(f.Inputs)+1+len(f.Expectations))
	fields = append(fields, f.Inputs...)
	fields = append(fields, f.Trigger)
	for _, e := range f.Expectations {
		fields = append(fields, Field{Name: e.Name, Locator: e.Locator})
	}
	return fields
}

// Validate checks the fixture's structure.
func (f *Fixture) Validate() error {
	if f.Name == "" {
		return fmt.Errorf("fixture has no name")
	}
	if len(f.Inputs) == 0 {
		return fmt.Errorf("fixture %s: no inputs", f.Name)
	}
	if f.Trigger.Locator.IsZero() {
		return fmt.Errorf("fixture %s: no trigger", f.Name)
	}
	if len(f.Expectations) == 0 {
		return fmt.Errorf("fixture %s: no expectations", f.Name)
	}

	seen := make(map[string]bool)
	for _, field := range f.Locators() {
		if field.Name == "" {
			return fmt.Errorf("fixture %s: field with locator %s has no name", f.Name, field.Locator)
		}
		if seen[field.Name] {
			return fmt.Errorf("fixture %s: duplicate field name %q", f.Name, field.Name)
		}
		seen[field.Name] = true
		if field.Locator.Strategy == "" || field.Locator.Value == "" {
			return fmt.Errorf("fixture %s: field %q has no locator", f.Name, field.Name)
		}
	}
	for _, e := range f.Expectations {
		if e.Expected == "" {
			return fmt.Errorf("fixture %s: expectation %q has no expected text", f.Name, e.Name)
		}
	}
	if f.Timeout < 0 {
		return fmt.Errorf("fixture %s: negative timeout", f.Name)
	}
	return nil
}
