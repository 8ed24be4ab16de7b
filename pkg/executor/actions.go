package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/devicelab-dev/apptest-runner/pkg/core"
	"github.com/devicelab-dev/apptest-runner/pkg/script"
)

// Defaults for ScrollUntilVisible.
const (
	DefaultScrollMaxAttempts = 10
	DefaultScrollSettle      = 300 * time.Millisecond
)

// elementTarget is the element an ElementStep acts on. The handle is
// resolved on first use and shared by the following actions.
type elementTarget struct {
	query core.Query
	el    *core.Element
}

// ActionExecutor applies single actions against the driver.
type ActionExecutor struct {
	driver            core.Driver
	expand            func(string) string
	scrollMaxAttempts int
	scrollSettle      time.Duration
}

// NewActionExecutor creates an executor. Zero limits select the defaults.
// expand rewrites inserted text and may be nil.
func NewActionExecutor(driver core.Driver, expand func(string) string, scrollMaxAttempts int, scrollSettle time.Duration) *ActionExecutor {
	if scrollMaxAttempts <= 0 {
		scrollMaxAttempts = DefaultScrollMaxAttempts
	}
	if scrollSettle <= 0 {
		scrollSettle = DefaultScrollSettle
	}
	if expand == nil {
		expand = func(s string) string { return s }
	}
	return &ActionExecutor{
		driver:            driver,
		expand:            expand,
		scrollMaxAttempts: scrollMaxAttempts,
		scrollSettle:      scrollSettle,
	}
}

// Execute performs one action. Step-level failures come back as action
// errors; driver failures and cancellation keep their identity so the
// engine can abort.
func (x *ActionExecutor) Execute(ctx context.Context, t *elementTarget, a script.Action) error {
	switch a.Type {
	case script.ActionAssertVisible:
		return x.assertVisible(ctx, t)
	case script.ActionTap:
		return x.tap(ctx, t)
	case script.ActionScrollUntilVisible:
		return x.scrollUntilVisible(ctx, t)
	case script.ActionInsertData:
		return x.insertData(ctx, t, a.Data)
	case script.ActionPause:
		d, ok := a.Duration()
		if !ok {
			return core.ErrInvalidDuration.WithMessage(fmt.Sprintf("pause of %dms is not representable", a.DurationMs))
		}
		return sleep(ctx, d)
	default:
		return core.NewActionError("unknown_action", "unknown action %q", a.Type)
	}
}

func (x *ActionExecutor) resolve(ctx context.Context, t *elementTarget) (core.Element, error) {
	if t.el != nil {
		return *t.el, nil
	}
	els, err := x.driver.Find(ctx, t.query)
	if err != nil {
		return core.Element{}, stepFailure(err, core.ErrElementNotFound, "find "+t.query.String())
	}
	if len(els) == 0 {
		return core.Element{}, core.ErrElementNotFound.WithMessage("no element matches " + t.query.String())
	}
	t.el = &els[0]
	return els[0], nil
}

func (x *ActionExecutor) assertVisible(ctx context.Context, t *elementTarget) error {
	el, err := x.resolve(ctx, t)
	if err != nil {
		return err
	}
	visible, err := x.driver.IsVisible(ctx, el)
	if err != nil {
		return stepFailure(err, core.ErrElementNotVisible, "check visibility")
	}
	if !visible {
		return core.ErrElementNotVisible.WithMessage("element is not visible: " + t.query.String())
	}
	return nil
}

func (x *ActionExecutor) tap(ctx context.Context, t *elementTarget) error {
	el, err := x.resolve(ctx, t)
	if err != nil {
		return err
	}
	if err := x.driver.Tap(ctx, el); err != nil {
		return stepFailure(err, core.ErrActionRefused, "tap")
	}
	return nil
}

func (x *ActionExecutor) insertData(ctx context.Context, t *elementTarget, text string) error {
	el, err := x.resolve(ctx, t)
	if err != nil {
		return err
	}
	if err := x.driver.SetText(ctx, el, x.expand(text)); err != nil {
		return stepFailure(err, core.ErrActionRefused, "set text")
	}
	return nil
}

var errNotYetVisible = errors.New("not yet visible")

// scrollUntilVisible re-queries after every scroll so a freshly rendered
// element is picked up, and replaces the shared handle when found.
func (x *ActionExecutor) scrollUntilVisible(ctx context.Context, t *elementTarget) error {
	attempt := 0
	op := func() error {
		if attempt > 0 {
			if err := x.driver.Scroll(ctx, core.DirectionDown); err != nil {
				if core.IsFatal(err) {
					return backoff.Permanent(err)
				}
				return backoff.Permanent(stepFailure(err, core.ErrActionRefused, "scroll"))
			}
		}
		attempt++

		els, err := x.driver.Find(ctx, t.query)
		if err != nil {
			if core.IsFatal(err) {
				return backoff.Permanent(err)
			}
			return errNotYetVisible
		}
		for i := range els {
			visible, err := x.driver.IsVisible(ctx, els[i])
			if err != nil && core.IsFatal(err) {
				return backoff.Permanent(err)
			}
			if err == nil && visible {
				el := els[i]
				t.el = &el
				return nil
			}
		}
		return errNotYetVisible
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(x.scrollSettle), uint64(x.scrollMaxAttempts)),
		ctx,
	)
	err := backoff.Retry(op, policy)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, errNotYetVisible):
		return core.ErrScrollExhausted.WithMessage(fmt.Sprintf("element %s not visible after %d scrolls", t.query, x.scrollMaxAttempts))
	default:
		return err
	}
}

// stepFailure keeps fatal errors intact and turns anything else into a
// step-level error of the given kind.
func stepFailure(err error, kind *core.ExecutionError, what string) error {
	if core.IsFatal(err) {
		return err
	}
	return kind.WithMessage(what + " failed").WithCause(err)
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
