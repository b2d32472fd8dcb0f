// Package validator checks fixture files before a run: structure, locators,
// and that expected outputs agree with the loan calculator.
package validator

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/devicelab-dev/loancalc-runner/pkg/core"
	"github.com/devicelab-dev/loancalc-runner/pkg/flow"
	"github.com/devicelab-dev/loancalc-runner/pkg/loan"
)

// ValidationError represents a validation error with context.
type ValidationError struct {
	File    string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.File, e.Message)
}

// Result contains the validation result.
type Result struct {
	// Files is the list of fixture file paths in the order they were checked.
	Files []string
	// Fixtures holds every fixture that parsed, valid or not.
	Fixtures []*flow.Fixture
	// Errors contains all validation errors found.
	Errors []error
}

// IsValid returns true if there are no validation errors.
func (r *Result) IsValid() bool {
	return len(r.Errors) == 0
}

// Validator validates fixture files.
type Validator struct {
	vars map[string]string
}

// New creates a new Validator. vars are passed to ${...} expansion.
func New(vars map[string]string) *Validator {
	return &Validator{vars: vars}
}

// Validate validates a file or directory of fixtures.
func (v *Validator) Validate(path string) *Result {
	result := &Result{}

	info, err := os.Stat(path)
	if err != nil {
		result.Errors = append(result.Errors, &ValidationError{
			File:    path,
			Message: fmt.Sprintf("cannot access: %v", err),
		})
		return result
	}

	var files []string
	if info.IsDir() {
		files, err = collectFixtureFiles(path)
		if err != nil {
			result.Errors = append(result.Errors, &ValidationError{
				File:    path,
				Message: fmt.Sprintf("failed to scan directory: %v", err),
			})
			return result
		}
		if len(files) == 0 {
			result.Errors = append(result.Errors, &ValidationError{
				File:    path,
				Message: "no fixture files found",
			})
			return result
		}
	} else {
		files = []string{path}
	}

	for _, file := range files {
		result.Files = append(result.Files, file)

		fx, err := flow.ParseFile(file, v.vars)
		if err != nil {
			result.Errors = append(result.Errors, &ValidationError{
				File:    file,
				Message: fmt.Sprintf("parse error: %v", err),
			})
			continue
		}
		result.Fixtures = append(result.Fixtures, fx)
		result.Errors = append(result.Errors, CheckFixture(fx)...)
	}

	return result
}

// CheckFixture runs the semantic checks on an already parsed fixture.
func CheckFixture(fx *flow.Fixture) []error {
	file := fx.SourcePath
	if file == "" {
		file = fx.Name
	}

	var errs []error
	add := func(format string, args ...interface{}) {
		errs = append(errs, &ValidationError{File: file, Message: fmt.Sprintf(format, args...)})
	}

	if err := fx.Validate(); err != nil {
		add("%v", err)
		return errs
	}

	for _, field := range fx.Locators() {
		if msg := checkLocator(fx.AppID, field.Locator); msg != "" {
			add("field %q: %s", field.Name, msg)
		}
	}

	if fx.Loan != nil {
		out, err := loan.Compute(*fx.Loan)
		if err != nil {
			add("loan: %v", err)
			return errs
		}
		want := out.Formatted()
		for _, e := range fx.Expectations {
			figure, ok := want[e.Name]
			if !ok {
				continue
			}
			if !strings.Contains(figure, e.Expected) {
				add("expectation %q: expected %q but the calculator gives %q", e.Name, e.Expected, figure)
			}
		}
	}

	return errs
}

func checkLocator(appID string, loc core.Locator) string {
	switch loc.Strategy {
	case core.ByID:
		pkg, _, qualified := strings.Cut(loc.Value, ":id/")
		if qualified && appID != "" && pkg != appID {
			return fmt.Sprintf("resource id %q is outside app %s", loc.Value, appID)
		}
	case core.ByAccessibilityID, core.ByClassName:
	case core.ByXPath:
		if !strings.HasPrefix(loc.Value, "/") && !strings.HasPrefix(loc.Value, "(") {
			return fmt.Sprintf("xpath %q is not an absolute or grouped expression", loc.Value)
		}
	default:
		return fmt.Sprintf("unknown locator strategy %q", loc.Strategy)
	}
	return ""
}

// collectFixtureFiles finds all .yaml/.yml files in a directory.
func collectFixtureFiles(dir string) ([]string, error) {
	var files []string

	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		if ext == ".yaml" || ext == ".yml" {
			files = append(files, path)
		}
		return nil
	})

	sort.Strings(files)
	return files, err
}
