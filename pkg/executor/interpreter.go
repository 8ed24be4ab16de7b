package executor

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/devicelab-dev/apptest-runner/pkg/core"
	"github.com/devicelab-dev/apptest-runner/pkg/script"
)

// Interpreter runs one leaf step and reports its outcome.
type Interpreter struct {
	driver        core.Driver
	resolver      *Resolver
	actions       *ActionExecutor
	expand        func(string) string
	screenshotDir string
}

// NewInterpreter wires an interpreter. expand rewrites log messages and
// inserted text and may be nil.
func NewInterpreter(driver core.Driver, resolver *Resolver, actions *ActionExecutor, expand func(string) string, screenshotDir string) *Interpreter {
	if expand == nil {
		expand = func(s string) string { return s }
	}
	if screenshotDir == "" {
		screenshotDir = "."
	}
	return &Interpreter{
		driver:        driver,
		resolver:      resolver,
		actions:       actions,
		expand:        expand,
		screenshotDir: screenshotDir,
	}
}

// Interpret executes step. Step-level failures are carried in the outcome;
// the returned error is non-nil only for conditions that must abort the
// run (driver failure, cancellation, an include that was not expanded).
func (in *Interpreter) Interpret(ctx context.Context, step script.Step) (core.StepOutcome, error) {
	start := time.Now()
	source, _ := step.Origin()
	out := core.StepOutcome{
		Description: step.Describe(),
		Source:      source,
		Status:      core.StatusPassed,
	}

	var err error
	switch s := step.(type) {
	case *script.ElementStep:
		err = in.elementStep(ctx, s, &out)
	case *script.ScreenshotStep:
		err = in.screenshotStep(ctx, s, &out)
	case *script.LogStep:
		out.Message = in.expand(s.Message)
	case *script.PauseStep:
		d, ok := s.Duration()
		if !ok {
			err = core.ErrInvalidDuration.WithMessage(fmt.Sprintf("pause of %dms is not representable", s.DurationMs))
			break
		}
		err = sleep(ctx, d)
	case *script.IncludeStep:
		err = core.NewScriptError("include %s was not expanded before execution", s.FilePath)
	default:
		err = core.NewScriptError("unsupported step type %T", step)
	}
	out.Duration = time.Since(start)

	if err == nil {
		return out, nil
	}
	out.Error = err
	if core.IsFatal(err) {
		out.Status = core.StatusErrored
		return out, err
	}
	out.Status = core.StatusFailed
	return out, nil
}

// elementStep resolves the selector once, then applies actions in order and
// stops at the first failure.
func (in *Interpreter) elementStep(ctx context.Context, s *script.ElementStep, out *core.StepOutcome) error {
	q, err := in.resolver.Resolve(s.Selector)
	if err != nil {
		return err
	}

	target := &elementTarget{query: q}
	for i, a := range s.Actions {
		if err := in.actions.Execute(ctx, target, a); err != nil {
			out.ActionIndex = i + 1
			out.ActionName = string(a.Type)
			return err
		}
	}
	return nil
}

func (in *Interpreter) screenshotStep(ctx context.Context, s *script.ScreenshotStep, out *core.StepOutcome) error {
	data, err := in.driver.Screenshot(ctx)
	if err != nil {
		return stepFailure(err, core.ErrActionRefused, "screenshot")
	}

	path := core.ScreenshotPath(in.screenshotDir, s.Label)
	if err := os.MkdirAll(in.screenshotDir, 0o755); err != nil {
		return core.ErrScreenshotWrite.WithCause(err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return core.ErrScreenshotWrite.WithCause(err)
	}
	out.Attachments = append(out.Attachments, core.NewScreenshotAttachment(path, data))
	return nil
}
