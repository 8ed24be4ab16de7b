// Package executor runs test scripts against a driver: it resolves
// selectors, applies actions, interprets steps and builds the report.
package executor

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/devicelab-dev/apptest-runner/pkg/core"
	"github.com/devicelab-dev/apptest-runner/pkg/jsengine"
	"github.com/devicelab-dev/apptest-runner/pkg/logger"
	"github.com/devicelab-dev/apptest-runner/pkg/report"
	"github.com/devicelab-dev/apptest-runner/pkg/script"
)

// EnvPrefix selects the process environment variables visible to scripts.
const EnvPrefix = "APPTEST_"

// ErrStoppedOnFailure ends a run early when StopOnFailure is set.
var ErrStoppedOnFailure = core.NewExecutionError(core.ErrCategoryAction, "stopped_on_failure", "run stopped after a failed step")

// ErrEngineUsed is returned when Run is called on an engine that already ran.
var ErrEngineUsed = errors.New("engine has already run; create a new engine per run")

// Config configures an engine run.
type Config struct {
	Platform          string            // Platform label: android, ios
	ScreenshotDir     string            // Where screenshot steps write PNGs
	StopOnFailure     bool              // Abort after the first failed step
	ScrollMaxAttempts int               // Scrolls before scroll_until_visible gives up
	ScrollSettle      time.Duration     // Wait between scrolls
	Env               map[string]string // Variables for ${...} and $NAME expansion
	Expand            jsengine.Mode     // Expansion of log and insert_data text; empty is off

	// Live progress callbacks
	OnStepStart    func(idx int, desc string)
	OnStepComplete func(idx int, desc string, passed bool, durationMs int64, err string)
}

// Engine executes one script run. Engines share nothing; use one per run
// and per driver session.
type Engine struct {
	config Config
	driver core.Driver

	mu    sync.Mutex
	state core.EngineState
}

// New creates a new Engine.
func New(driver core.Driver, cfg Config) *Engine {
	return &Engine{
		config: cfg,
		driver: driver,
		state:  core.StateIdle,
	}
}

// State returns the current lifecycle state.
func (e *Engine) State() core.EngineState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

func (e *Engine) setState(s core.EngineState) {
	e.mu.Lock()
	e.state = s
	e.mu.Unlock()
}

// Run expands the script's includes and executes the resulting steps in
// order. Step failures are recorded and the run continues. A script error,
// a driver error or ctx cancellation aborts the run; the partial report is
// still returned, together with the error.
func (e *Engine) Run(ctx context.Context, s *script.Script) (report.TestReport, error) {
	e.mu.Lock()
	if e.state != core.StateIdle {
		e.mu.Unlock()
		return report.TestReport{}, ErrEngineUsed
	}
	e.state = core.StateRunning
	e.mu.Unlock()

	platform := e.platform(s)
	b := report.NewBuilder(s.SourcePath, s.Name, platform)
	b.Start()
	logger.Info("run started: %s on %s", s.SourcePath, platform)

	steps, err := script.NewExpander().ExpandScript(s)
	if err != nil {
		return e.abort(b, err)
	}
	logger.Debug("expanded %d top-level steps into %d steps", len(s.Steps), len(steps))

	vars := jsengine.New()
	vars.SetPlatform(platform)
	vars.ImportEnv(EnvPrefix)
	vars.SetVariables(e.config.Env)
	if s.SourcePath != "" {
		vars.SetVariable("SCRIPT_DIR", filepath.Dir(s.SourcePath))
	}

	expand := vars.Expander(ctx, e.config.Expand)
	actions := NewActionExecutor(e.driver, expand, e.config.ScrollMaxAttempts, e.config.ScrollSettle)
	interp := NewInterpreter(e.driver, NewResolver(platform), actions, expand, e.config.ScreenshotDir)

	for i, step := range steps {
		if err := ctx.Err(); err != nil {
			return e.abort(b, core.ErrCancelled.WithCause(err))
		}

		idx := b.StepsExecuted() + 1
		if e.config.OnStepStart != nil {
			e.config.OnStepStart(idx, step.Describe())
		}

		outcome, fatal := interp.Interpret(ctx, step)
		outcome.Index = idx
		b.Record(outcome)
		e.logOutcome(outcome)

		if e.config.OnStepComplete != nil {
			e.config.OnStepComplete(idx, outcome.Description, outcome.Success(), outcome.Duration.Milliseconds(), outcome.FailureDetail())
		}

		if fatal != nil {
			if errors.Is(fatal, context.Canceled) || errors.Is(fatal, context.DeadlineExceeded) {
				fatal = core.ErrCancelled.WithCause(fatal)
			}
			return e.abort(b, fmt.Errorf("step %d: %w", idx, fatal))
		}
		if !outcome.Success() && e.config.StopOnFailure && i < len(steps)-1 {
			return e.abort(b, ErrStoppedOnFailure.WithMessage(fmt.Sprintf("run stopped after step %d failed", idx)))
		}
	}

	r := b.Finalize(nil)
	e.setState(core.StateCompleted)
	logger.Info("run completed: %d steps, %d failed, %.2fs", r.StepsExecuted, r.Failed, r.Elapsed.Seconds())
	return r, nil
}

func (e *Engine) abort(b *report.Builder, err error) (report.TestReport, error) {
	b.Note("⛔ Run aborted: " + err.Error())
	r := b.Finalize(err)
	e.setState(core.StateAborted)
	logger.WithFields(logger.Fields{
		"category": core.CategoryOf(err).String(),
		"steps":    r.StepsExecuted,
	}).Errorf("run aborted: %v", err)
	return r, err
}

func (e *Engine) logOutcome(o core.StepOutcome) {
	entry := logger.WithFields(logger.Fields{
		"step":     o.Index,
		"status":   o.Status.String(),
		"duration": o.Duration.String(),
	})
	if o.Success() {
		entry.Infof("%s", o.Description)
		return
	}
	entry.Warnf("%s: %s", o.Description, o.FailureDetail())
}

// platform picks the label from config, then the script, then the driver.
func (e *Engine) platform(s *script.Script) string {
	if e.config.Platform != "" {
		return e.config.Platform
	}
	if s.Platform != "" {
		return s.Platform
	}
	if pd, ok := e.driver.(core.PlatformDescriber); ok {
		if info := pd.GetPlatformInfo(); info != nil && info.Platform != "" {
			return info.Platform
		}
	}
	return "android"
}
