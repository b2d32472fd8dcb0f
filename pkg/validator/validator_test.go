package validator

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/devicelab-dev/loancalc-runner/pkg/core"
	"github.com/devicelab-dev/loancalc-runner/pkg/flow"
)

const validFixture = `
name: simple
appId: io.billmeyer.loancalc
loan:
  price: 25000
  interestRate: 3.42
  salesTax: 8
  termMonths: 60
  downPayment: 500
  tradeIn: 7500
  fees: 300
inputs:
  - name: loanAmount
    id: ${APP_ID}:id/etLoanAmount
    value: ${inputs.price}
trigger:
  name: calculate
  id: ${APP_ID}:id/btnCalculate
expect:
  - name: monthlyPayment
    id: ${APP_ID}:id/tvMonthlyPaymentVal
    text: "339.52"
`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestValidate_SingleFile(t *testing.T) {
	dir := t.TempDir()
	file := writeFile(t, dir, "simple.yaml", validFixture)

	result := New(nil).Validate(file)

	if !result.IsValid() {
		t.Errorf("expected valid result, got errors: %v", result.Errors)
	}
	if len(result.Fixtures) != 1 {
		t.Errorf("expected 1 fixture, got %d", len(result.Fixtures))
	}
}

func TestValidate_Directory(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "b.yaml", validFixture)
	writeFile(t, dir, "a.yml", validFixture)
	writeFile(t, dir, "notes.txt", "ignored")

	result := New(nil).Validate(dir)

	if !result.IsValid() {
		t.Errorf("expected valid result, got errors: %v", result.Errors)
	}
	if len(result.Files) != 2 {
		t.Fatalf("expected 2 files, got %d", len(result.Files))
	}
	if filepath.Base(result.Files[0]) != "a.yml" {
		t.Errorf("files not sorted: %v", result.Files)
	}
}

func TestValidate_EmptyDirectory(t *testing.T) {
	result := New(nil).Validate(t.TempDir())
	if result.IsValid() {
		t.Fatal("expected error for empty directory")
	}
	if !strings.Contains(result.Errors[0].Error(), "no fixture files") {
		t.Errorf("error = %v", result.Errors[0])
	}
}

func TestValidate_MissingPath(t *testing.T) {
	result := New(nil).Validate(filepath.Join(t.TempDir(), "nope.yaml"))
	if result.IsValid() {
		t.Fatal("expected error for missing path")
	}
	if !strings.Contains(result.Errors[0].Error(), "cannot access") {
		t.Errorf("error = %v", result.Errors[0])
	}
}

func TestValidate_ParseError(t *testing.T) {
	dir := t.TempDir()
	file := writeFile(t, dir, "bad.yaml", "name: [oops")

	result := New(nil).Validate(file)
	if result.IsValid() {
		t.Fatal("expected parse error")
	}
	if !strings.Contains(result.Errors[0].Error(), "parse error") {
		t.Errorf("error = %v", result.Errors[0])
	}
	if len(result.Fixtures) != 0 {
		t.Errorf("expected no fixtures, got %d", len(result.Fixtures))
	}
}

func TestValidate_WrongExpectation(t *testing.T) {
	dir := t.TempDir()
	file := writeFile(t, dir, "wrong.yaml", strings.Replace(validFixture, `"339.52"`, `"339.99"`, 1))

	result := New(nil).Validate(file)
	if result.IsValid() {
		t.Fatal("expected cross-check error")
	}
	if !strings.Contains(result.Errors[0].Error(), "calculator gives \"339.52\"") {
		t.Errorf("error = %v", result.Errors[0])
	}
}

func TestValidate_Vars(t *testing.T) {
	dir := t.TempDir()
	file := writeFile(t, dir, "vars.yaml", strings.Replace(validFixture, `"339.52"`, `${EXPECTED}`, 1))

	result := New(map[string]string{"EXPECTED": "339.52"}).Validate(file)
	if !result.IsValid() {
		t.Errorf("expected valid result, got errors: %v", result.Errors)
	}
}

func TestCheckFixture_CarLoan(t *testing.T) {
	if errs := CheckFixture(flow.CarLoanFixture()); len(errs) != 0 {
		t.Errorf("CheckFixture(CarLoanFixture()) = %v", errs)
	}
}

func TestCheckFixture_Locators(t *testing.T) {
	tests := []struct {
		name    string
		loc     core.Locator
		wantErr string
	}{
		{"bare id", core.ID("etLoanAmount"), ""},
		{"foreign package", core.ID("com.other:id/etLoanAmount"), "outside app"},
		{"accessibility id", core.Locator{Strategy: core.ByAccessibilityID, Value: "amount"}, ""},
		{"xpath", core.Locator{Strategy: core.ByXPath, Value: "//android.widget.EditText"}, ""},
		{"relative xpath", core.Locator{Strategy: core.ByXPath, Value: "android.widget.EditText"}, "not an absolute"},
		{"unknown strategy", core.Locator{Strategy: "css selector", Value: "#a"}, "unknown locator strategy"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fx := flow.CarLoanFixture()
			fx.Inputs[0].Locator = tt.loc
			errs := CheckFixture(fx)
			if tt.wantErr == "" {
				if len(errs) != 0 {
					t.Fatalf("CheckFixture() = %v", errs)
				}
				return
			}
			if len(errs) != 1 || !strings.Contains(errs[0].Error(), tt.wantErr) {
				t.Fatalf("CheckFixture() = %v, want containing %q", errs, tt.wantErr)
			}
		})
	}
}

func TestCheckFixture_InvalidStructure(t *testing.T) {
	fx := flow.CarLoanFixture()
	fx.Expectations = nil
	errs := CheckFixture(fx)
	if len(errs) != 1 || !strings.Contains(errs[0].Error(), "no expectations") {
		t.Fatalf("CheckFixture() = %v", errs)
	}
}
