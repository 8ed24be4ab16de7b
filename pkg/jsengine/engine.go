// Package jsengine provides ${...} and $NAME expansion for script text.
package jsengine

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dop251/goja"

	"github.com/devicelab-dev/apptest-runner/pkg/logger"
)

// Mode selects how script text is expanded.
type Mode string

const (
	ModeOff  Mode = "off"  // Text is used as written
	ModeVars Mode = "vars" // ${NAME} and $NAME for known variables
	ModeJS   Mode = "js"   // ${expr} evaluated as JavaScript, then $NAME
)

// ParseMode maps a config or flag value to a Mode. Empty means ModeOff.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case "", ModeOff:
		return ModeOff, nil
	case ModeVars, ModeJS:
		return m, nil
	default:
		return "", fmt.Errorf("unknown expansion mode %q (want off, vars or js)", s)
	}
}

// DefaultEvalTimeout bounds a single ${expr} evaluation.
const DefaultEvalTimeout = time.Second

// Engine wraps a goja runtime holding the run's variables.
// An Engine belongs to one run; it is not shared between engines.
type Engine struct {
	runtime     *goja.Runtime
	variables   map[string]string
	platform    string
	evalTimeout time.Duration
	mu          sync.Mutex
}

// New creates a new JS engine instance
func New() *Engine {
	e := &Engine{
		runtime:     goja.New(),
		variables:   make(map[string]string),
		evalTimeout: DefaultEvalTimeout,
	}
	e.setupBuiltins()
	return e
}

func (e *Engine) setupBuiltins() {
	console := e.runtime.NewObject()
	console.Set("log", func(call goja.FunctionCall) goja.Value {
		args := make([]string, len(call.Arguments))
		for i, arg := range call.Arguments {
			args[i] = arg.String()
		}
		logger.Debug("[js] %s", strings.Join(args, " "))
		return goja.Undefined()
	})
	e.runtime.Set("console", console)

	// app.platform - current platform (android/ios)
	app := e.runtime.NewObject()
	app.DefineAccessorProperty("platform", e.runtime.ToValue(func() string {
		return e.platform
	}), nil, goja.FLAG_FALSE, goja.FLAG_TRUE)
	e.runtime.Set("app", app)
}

// SetVariable sets a variable accessible in JS as a global
func (e *Engine) SetVariable(name, value string) {
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

// ImportEnv exposes environment variables with the given prefix, prefix included.
func (e *Engine) ImportEnv(prefix string) {
	for _, kv := range os.Environ() {
		name, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(name, prefix) || !isIdentifier(name) {
			continue
		}
		e.SetVariable(name, value)
	}
}

// Variable returns a variable value and whether it is set.
func (e *Engine) Variable(name string) (string, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	v, ok := e.variables[name]
	return v, ok
}

// SetPlatform sets the current platform
func (e *Engine) SetPlatform(platform string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.platform = platform
}

// SetEvalTimeout changes the per-expression limit. Non-positive values
// restore DefaultEvalTimeout.
func (e *Engine) SetEvalTimeout(d time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if d <= 0 {
		d = DefaultEvalTimeout
	}
	e.evalTimeout = d
}

// Eval evaluates a JavaScript expression and returns the result.
// Evaluation is interrupted when ctx ends or the eval timeout passes.
func (e *Engine) Eval(ctx context.Context, script string) (interface{}, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, e.evalTimeout)
	defer cancel()

	done := make(chan struct{})
	watcher := make(chan struct{})
	go func() {
		defer close(watcher)
		select {
		case <-ctx.Done():
			e.runtime.Interrupt(ctx.Err())
		case <-done:
		}
	}()

	result, err := e.runtime.RunString(script)
	close(done)
	<-watcher
	e.runtime.ClearInterrupt()

	if err != nil {
		return nil, fmt.Errorf("JS eval error: %w", err)
	}
	return result.Export(), nil
}

// EvalString evaluates a JavaScript expression and returns string result
func (e *Engine) EvalString(ctx context.Context, script string) (string, error) {
	result, err := e.Eval(ctx, script)
	if err != nil {
		return "", err
	}
	if result == nil {
		return "", nil
	}
	return fmt.Sprintf("%v", result), nil
}

// Expander returns the text rewriter for mode, bound to ctx. ModeOff
// returns nil, which callers treat as identity.
func (e *Engine) Expander(ctx context.Context, mode Mode) func(string) string {
	switch mode {
	case ModeVars:
		return e.ExpandNames
	case ModeJS:
		return func(text string) string { return e.ExpandVariables(ctx, text) }
	default:
		return nil
	}
}

// ExpandNames replaces ${NAME} and $NAME where NAME is a known variable.
// Anything else inside ${...} is left as written and never evaluated.
func (e *Engine) ExpandNames(text string) string {
	return e.expandDollarVars(e.expandBraces(text, func(expr string) (string, bool) {
		name := strings.TrimSpace(expr)
		if !isIdentifier(name) {
			return "", false
		}
		return e.Variable(name)
	}))
}

// ExpandVariables expands ${expr} using JS evaluation, then bare $NAME
// references to known variables. Expressions that fail, time out or are
// interrupted by ctx, and unmatched braces, are left as written.
func (e *Engine) ExpandVariables(ctx context.Context, text string) string {
	return e.expandDollarVars(e.expandBraces(text, func(expr string) (string, bool) {
		if ctx.Err() != nil {
			return "", false
		}
		value, err := e.EvalString(ctx, expr)
		if err != nil {
			logger.Debug("expression %q left unexpanded: %v", expr, err)
			return "", false
		}
		return value, true
	}))
}

// expandBraces replaces each balanced ${...} for which eval reports ok.
func (e *Engine) expandBraces(text string, eval func(expr string) (string, bool)) string {
	result := text
	start := 0

	for {
		idx := strings.Index(result[start:], "${")
		if idx == -1 {
			return result
		}
		idx += start

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
			start = idx + 2
			continue
		}

		value, ok := eval(result[idx+2 : end-1])
		if !ok {
			start = end
			continue
		}
		result = result[:idx] + value + result[end:]
		start = idx + len(value)
	}
}

// expandDollarVars replaces $NAME, longest names first so $USER_ID is not
// consumed by $USER.
func (e *Engine) expandDollarVars(text string) string {
	e.mu.Lock()
	names := make([]string, 0, len(e.variables))
	for name := range e.variables {
		names = append(names, name)
	}
	vars := make(map[string]string, len(e.variables))
	for k, v := range e.variables {
		vars[k] = v
	}
	e.mu.Unlock()

	sort.Slice(names, func(i, j int) bool {
		return len(names[i]) > len(names[j])
	})
	for _, name := range names {
		text = expandDollarVar(text, name, vars[name])
	}
	return text
}

// expandDollarVar replaces $name where it is not followed by another
// identifier character.
func expandDollarVar(text, name, value string) string {
	token := "$" + name
	var b strings.Builder
	for {
		idx := strings.Index(text, token)
		if idx == -1 {
			b.WriteString(text)
			return b.String()
		}
		after := idx + len(token)
		if after < len(text) && isIdentChar(text[after]) {
			b.WriteString(text[:after])
			text = text[after:]
			continue
		}
		b.WriteString(text[:idx])
		b.WriteString(value)
		text = text[after:]
	}
}

func isIdentChar(c byte) bool {
	return c == '_' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9'
}

func isIdentifier(s string) bool {
	if s == "" || s[0] >= '0' && s[0] <= '9' {
		return false
	}
	for i := 0; i < len(s); i++ {
		if !isIdentChar(s[i]) {
			return false
		}
	}
	return true
}
