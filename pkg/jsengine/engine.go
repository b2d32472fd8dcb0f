// Package jsengine evaluates ${...} expressions in fixture files.
package jsengine

import (
	"fmt"
	"strings"
	"sync"

	"github.com/dop251/goja"

	"github.com/devicelab-dev/loancalc-runner/pkg/loan"
	"github.com/devicelab-dev/loancalc-runner/pkg/logger"
)

// Engine wraps a goja runtime with the fixture helpers.
type Engine struct {
	runtime   *goja.Runtime
	variables map[string]interface{}
	mu        sync.Mutex
}

// New creates a new JS engine instance
func New() *Engine {
	rt := goja.New()
	// Go structs are exposed under their json names: loan.monthlyPayment.
	rt.SetFieldNameMapper(goja.TagFieldNameMapper("json", true))

	e := &Engine{
		runtime:   rt,
		variables: make(map[string]interface{}),
	}

	e.setupBuiltins()
	return e
}

// setupBuiltins registers all built-in functions and objects
func (e *Engine) setupBuiltins() {
	e.setupConsole()

	// money(n) renders an amount the way the calculator shows it: 20,370.97
	e.runtime.Set("money", func(call goja.FunctionCall) goja.Value {
		if len(call.Arguments) < 1 {
			panic(e.runtime.NewTypeError("money requires 1 argument"))
		}
		return e.runtime.ToValue(loan.FormatMoney(call.Arguments[0].ToFloat()))
	})

	// amortize({price, interestRate, ...}) returns the calculator outputs
	e.runtime.Set("amortize", func(call goja.FunctionCall) goja.Value {
		if len(call.Arguments) < 1 {
			panic(e.runtime.NewTypeError("amortize requires 1 argument"))
		}
		var in loan.Inputs
		if err := e.runtime.ExportTo(call.Arguments[0], &in); err != nil {
			panic(e.runtime.NewTypeError(fmt.Sprintf("invalid loan inputs: %v", err)))
		}
		out, err := loan.Compute(in)
		if err != nil {
			panic(e.runtime.NewGoError(err))
		}
		return e.runtime.ToValue(out)
	})
}

// setupConsole routes console.log and friends to the runner log.
func (e *Engine) setupConsole() {
	makeConsoleFunc := func(log func(string, ...interface{})) func(goja.FunctionCall) goja.Value {
		return func(call goja.FunctionCall) goja.Value {
			args := make([]string, len(call.Arguments))
			for i, arg := range call.Arguments {
				args[i] = arg.String()
			}
			log("[js] %s", strings.Join(args, " "))
			return goja.Undefined()
		}
	}

	console := e.runtime.NewObject()
	console.Set("log", makeConsoleFunc(logger.Info))
	console.Set("error", makeConsoleFunc(logger.Error))
	console.Set("warn", makeConsoleFunc(logger.Warn))
	e.runtime.Set("console", console)
}

// SetVariable sets a variable accessible in JS as a global
func (e *Engine) SetVariable(name string, value interface{}) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.variables[name] = value
	e.runtime.Set(name, value)
}

// SetVariables sets multiple variables
func (e *Engine) SetVariables(vars map[string]string) {
	for k, v := range vars {
		e.SetVariable(k, v)
	}
}

// Eval evaluates a JavaScript expression and returns the result
func (e *Engine) Eval(script string) (interface{}, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	result, err := e.runtime.RunString(script)
	if err != nil {
		return nil, fmt.Errorf("JS eval error: %w", err)
	}

	return result.Export(), nil
}

// EvalString evaluates a JavaScript expression and returns string result
func (e *Engine) EvalString(script string) (string, error) {
	result, err := e.Eval(script)
	if err != nil {
		return "", err
	}

	if result == nil {
		return "", nil
	}

	return fmt.Sprintf("%v", result), nil
}

// ExpandVariables expands ${...} expressions in a string using JS evaluation.
// An expression that fails to evaluate is an error: a fixture value that
// cannot be resolved would otherwise be typed or asserted literally.
func (e *Engine) ExpandVariables(text string) (string, error) {
	result := text
	start := 0

	for {
		idx := strings.Index(result[start:], "${")
		if idx == -1 {
			break
		}
		idx += start

		// Find matching }
		depth := 1
		end := idx + 2
		for end < len(result) && depth > 0 {
			if result[end] == '{' {
				depth++
			} else if result[end] == '}' {
				depth--
			}
			end++
		}

		if depth != 0 {
			return "", fmt.Errorf("unterminated expression in %q", text)
		}

		expr := result[idx+2 : end-1]
		value, err := e.EvalString(expr)
		if err != nil {
			return "", fmt.Errorf("expand ${%s}: %w", expr, err)
		}

		result = result[:idx] + value + result[end:]
		start = idx + len(value)
	}

	return result, nil
}
