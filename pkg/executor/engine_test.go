package executor

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devicelab-dev/apptest-runner/pkg/core"
	"github.com/devicelab-dev/apptest-runner/pkg/driver/mock"
	"github.com/devicelab-dev/apptest-runner/pkg/jsengine"
	"github.com/devicelab-dev/apptest-runner/pkg/report"
	"github.com/devicelab-dev/apptest-runner/pkg/script"
)

const (
	qLogin  = `new UiSelector().textMatches("Login")`
	qName   = `new UiSelector().resourceIdMatches("app:id/name")`
	qFooter = `new UiSelector().textMatches("Footer")`
)

func loginScreen() mock.Config {
	return mock.Config{
		Elements: map[string][]mock.Element{
			qLogin:  {{ID: "login", Visible: true}},
			qName:   {{ID: "name", Visible: true, AcceptsText: true}},
			qFooter: {{ID: "footer", Visible: true}},
		},
		RevealAfterScrolls: map[string]int{qFooter: 3},
	}
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func parse(t *testing.T, content string) *script.Script {
	t.Helper()
	s, err := script.Parse([]byte(content), filepath.Join(t.TempDir(), "test.yaml"))
	require.NoError(t, err)
	return s
}

func testConfig(t *testing.T) Config {
	return Config{
		Platform:          "android",
		ScreenshotDir:     t.TempDir(),
		ScrollMaxAttempts: 5,
		ScrollSettle:      time.Millisecond,
	}
}

func TestEngine_CompletedRun(t *testing.T) {
	d := mock.New(loginScreen())
	s := parse(t, `
- selector: {text: Login}
  actions: [assert_visible, tap_on]
- selector: {id: "app:id/name"}
  actions:
    - tap_on
    - insert_data: {data: "alice"}
- log: signed in
- pause: 1
`)
	e := New(d, testConfig(t))
	assert.Equal(t, core.StateIdle, e.State())

	r, err := e.Run(context.Background(), s)
	require.NoError(t, err)
	assert.Equal(t, core.StateCompleted, e.State())
	assert.Equal(t, report.StateCompleted, r.State)
	assert.Equal(t, 4, r.StepsExecuted)
	assert.Equal(t, 4, r.Passed)
	assert.True(t, r.Success())
	assert.Equal(t, "android", r.Platform)
	assert.Equal(t, "alice", d.Text("name"))
	assert.Equal(t, 1, d.Taps("login"))
	assert.Contains(t, r.Narrative(), `text="Login" [assert_visible, tap_on]`)
	assert.Contains(t, r.Details[2], "signed in")
}

func TestEngine_SecondActionFailureCitesSecondAction(t *testing.T) {
	d := mock.New(loginScreen())
	s := parse(t, `
- selector: {text: Login}
  actions:
    - tap_on
    - insert_data: {data: "x"}
- log: after
`)
	r, err := New(d, testConfig(t)).Run(context.Background(), s)
	require.NoError(t, err, "step failures must not abort")

	require.Len(t, r.Steps, 2)
	step := r.Steps[0]
	assert.Equal(t, report.StatusFailed, step.Status)
	assert.Equal(t, 2, step.ActionIndex)
	assert.Equal(t, "insert_data", step.ActionName)
	assert.Contains(t, r.Details[0], "action 2 (insert_data) failed")
	assert.NotContains(t, r.Details[0], "action 1")
	assert.Equal(t, 1, d.Taps("login"), "first action must have run")
	assert.Equal(t, report.StatusPassed, r.Steps[1].Status)
	assert.Equal(t, report.StateCompleted, r.State)
}

func TestEngine_LogOnlyNeverTouchesDriver(t *testing.T) {
	d := mock.New(mock.Config{})
	s := parse(t, "- log: one\n- log: two\n- log: three\n")

	r, err := New(d, testConfig(t)).Run(context.Background(), s)
	require.NoError(t, err)
	assert.Equal(t, 3, r.StepsExecuted)
	assert.Empty(t, d.Calls())
}

func TestEngine_TextIsLiteralByDefault(t *testing.T) {
	d := mock.New(mock.Config{MatchAll: true})
	cfg := testConfig(t)
	cfg.Env = map[string]string{"USER": "bob"}
	s := parse(t, `
- log: "Total: ${1+1} and ${} end $USER"
- selector: {id: "app:id/pass"}
  actions:
    - insert_data: {data: "pa${'s'.repeat(3)}word"}
`)

	r, err := New(d, cfg).Run(context.Background(), s)
	require.NoError(t, err)
	assert.Contains(t, r.Details[0], "Total: ${1+1} and ${} end $USER")
	assert.Equal(t, "pa${'s'.repeat(3)}word", d.Text("mock-element"))
}

func TestEngine_ExpandVarsOnlyKnownNames(t *testing.T) {
	d := mock.New(mock.Config{MatchAll: true})
	cfg := testConfig(t)
	cfg.Env = map[string]string{"USER": "bob"}
	cfg.Expand = jsengine.ModeVars
	s := parse(t, `
- log: "hello ${USER} ${1+1}"
- selector: {id: "app:id/user"}
  actions:
    - insert_data: {data: "$USER"}
`)

	r, err := New(d, cfg).Run(context.Background(), s)
	require.NoError(t, err)
	assert.Contains(t, r.Details[0], "hello bob ${1+1}")
	assert.Equal(t, "bob", d.Text("mock-element"))
}

func TestEngine_ExpandJS(t *testing.T) {
	cfg := testConfig(t)
	cfg.Env = map[string]string{"USER": "bob"}
	cfg.Expand = jsengine.ModeJS
	s := parse(t, "- log: hello ${USER.toUpperCase()} on ${app.platform}\n")

	r, err := New(mock.New(mock.Config{}), cfg).Run(context.Background(), s)
	require.NoError(t, err)
	assert.Contains(t, r.Details[0], "hello BOB on android")
}

func TestEngine_ExpandJSRunawayExpressionHonorsDeadline(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	cfg := testConfig(t)
	cfg.Expand = jsengine.ModeJS
	s := parse(t, "- log: \"${while(true){}}\"\n- log: after\n")

	done := make(chan error, 1)
	go func() {
		_, err := New(mock.New(mock.Config{}), cfg).Run(ctx, s)
		done <- err
	}()

	select {
	case err := <-done:
		require.Error(t, err)
		assert.True(t, errors.Is(err, core.ErrCancelled))
	case <-time.After(5 * time.Second):
		t.Fatal("run did not stop at the deadline")
	}
}

func TestEngine_IncludeChainOrder(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a.yaml", "- log: a1\n- step_file: b.yaml\n- log: a2\n")
	writeFile(t, dir, "b.yaml", "- log: b1\n- step_file: c.yaml\n- log: b2\n")
	writeFile(t, dir, "c.yaml", "- log: c1\n")

	s, err := script.ParseFile(a)
	require.NoError(t, err)
	r, err := New(mock.New(mock.Config{}), testConfig(t)).Run(context.Background(), s)
	require.NoError(t, err)

	assert.Equal(t, 5, r.StepsExecuted, "include steps are not counted")
	var order []string
	for _, line := range r.Details {
		order = append(order, line[strings.LastIndex(line, ": ")+2:strings.LastIndex(line, " (")])
	}
	assert.Equal(t, []string{"a1", "b1", "c1", "b2", "a2"}, order)
}

func TestEngine_SelfInclusionAborts(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a.yaml", "- log: a\n- step_file: b.yaml\n")
	writeFile(t, dir, "b.yaml", "- step_file: a.yaml\n")

	s, err := script.ParseFile(a)
	require.NoError(t, err)
	e := New(mock.New(mock.Config{}), testConfig(t))
	r, err := e.Run(context.Background(), s)

	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrIncludeCycle))
	assert.Equal(t, core.ErrCategoryScript, core.CategoryOf(err))
	assert.Equal(t, core.StateAborted, e.State())
	assert.True(t, r.Partial())
	assert.Equal(t, 0, r.StepsExecuted)
	assert.Contains(t, r.Narrative(), "Run aborted")
}

func TestEngine_ScrollUntilVisible(t *testing.T) {
	d := mock.New(loginScreen())
	s := parse(t, "- selector: {text: Footer}\n  actions: [scroll_until_visible, tap_on]\n")

	r, err := New(d, testConfig(t)).Run(context.Background(), s)
	require.NoError(t, err)
	assert.Equal(t, 1, r.Passed)
	assert.Equal(t, 3, d.Scrolls())
	assert.Equal(t, 1, d.Taps("footer"))
}

func TestEngine_ScrollUntilVisibleTerminates(t *testing.T) {
	d := mock.New(loginScreen())
	s := parse(t, "- selector: {text: Nowhere}\n  actions: [scroll_until_visible]\n- log: next\n")

	done := make(chan struct{})
	var r report.TestReport
	var err error
	go func() {
		r, err = New(d, testConfig(t)).Run(context.Background(), s)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("scroll_until_visible did not terminate")
	}

	require.NoError(t, err)
	assert.Equal(t, 5, d.Scrolls())
	assert.Equal(t, report.StatusFailed, r.Steps[0].Status)
	assert.Contains(t, r.Steps[0].Error, "not visible after 5 scrolls")
	assert.Equal(t, report.StatusPassed, r.Steps[1].Status)
}

func TestEngine_SelectorErrorIsStepLevel(t *testing.T) {
	d := mock.New(loginScreen())
	s := parse(t, "- selector: {text: \"\"}\n  actions: [tap_on]\n- log: next\n")

	r, err := New(d, testConfig(t)).Run(context.Background(), s)
	require.NoError(t, err)
	assert.Equal(t, report.StatusFailed, r.Steps[0].Status)
	assert.Contains(t, r.Steps[0].Error, "text selector is empty")
	assert.Empty(t, d.Calls(), "invalid selectors never reach the driver")
}

func TestEngine_ElementNotFound(t *testing.T) {
	d := mock.New(loginScreen())
	s := parse(t, "- selector: {description: Missing}\n  actions: [assert_visible]\n")

	r, err := New(d, testConfig(t)).Run(context.Background(), s)
	require.NoError(t, err)
	assert.Equal(t, 1, r.Failed)
	assert.Contains(t, r.Steps[0].Error, "no element matches")
	assert.Equal(t, "element_not_found", r.Steps[0].ErrorCode)
}

func TestEngine_TapOnDisabledElementFailsStep(t *testing.T) {
	cfg := loginScreen()
	cfg.Elements[qLogin] = []mock.Element{{ID: "login", Visible: true, Disabled: true}}
	d := mock.New(cfg)
	s := parse(t, "- selector: {text: Login}\n  actions: [tap_on]\n- log: next\n")

	r, err := New(d, testConfig(t)).Run(context.Background(), s)
	require.NoError(t, err, "a refused tap must not abort")
	require.Len(t, r.Steps, 2)
	assert.Equal(t, report.StatusFailed, r.Steps[0].Status)
	assert.Equal(t, "action_refused", r.Steps[0].ErrorCode)
	assert.Equal(t, 0, d.Taps("login"))
	assert.Equal(t, report.StatusPassed, r.Steps[1].Status)
	assert.Equal(t, report.StateCompleted, r.State)
}

func TestEngine_AssertVisibleOnHiddenElement(t *testing.T) {
	cfg := loginScreen()
	cfg.Elements[qLogin] = []mock.Element{{ID: "login", Visible: false}}
	s := parse(t, "- selector: {text: Login}\n  actions: [assert_visible]\n- log: next\n")

	r, err := New(mock.New(cfg), testConfig(t)).Run(context.Background(), s)
	require.NoError(t, err)
	require.Len(t, r.Steps, 2)
	assert.Equal(t, report.StatusFailed, r.Steps[0].Status)
	assert.Equal(t, "element_not_visible", r.Steps[0].ErrorCode)
	assert.Contains(t, r.Steps[0].Error, "element is not visible")
	assert.Equal(t, report.StatusPassed, r.Steps[1].Status)
}

func TestEngine_DriverFailureAbortsWithPartialReport(t *testing.T) {
	cfg := loginScreen()
	cfg.FailAfterCalls = 2
	d := mock.New(cfg)
	s := parse(t, `
- selector: {text: Login}
  actions: [assert_visible]
- selector: {text: Login}
  actions: [tap_on]
- log: never
`)
	e := New(d, testConfig(t))
	r, err := e.Run(context.Background(), s)

	require.Error(t, err)
	assert.Equal(t, core.ErrCategoryDriver, core.CategoryOf(err))
	assert.Equal(t, core.StateAborted, e.State())
	assert.Equal(t, report.StateAborted, r.State)
	assert.Equal(t, 2, r.StepsExecuted)
	assert.Equal(t, report.StatusPassed, r.Steps[0].Status)
	assert.Equal(t, report.StatusFailed, r.Steps[1].Status)
	assert.NotContains(t, r.Narrative(), "never")
}

func TestEngine_StopOnFailure(t *testing.T) {
	cfg := testConfig(t)
	cfg.StopOnFailure = true
	s := parse(t, "- selector: {text: Missing}\n  actions: [tap_on]\n- log: skipped\n")

	r, err := New(mock.New(loginScreen()), cfg).Run(context.Background(), s)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrStoppedOnFailure))
	assert.True(t, r.Partial())
	assert.Equal(t, 1, r.StepsExecuted)
}

func TestEngine_CancelledBetweenSteps(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := testConfig(t)
	cfg.OnStepComplete = func(idx int, desc string, passed bool, durationMs int64, errMsg string) {
		if idx == 1 {
			cancel()
		}
	}
	s := parse(t, "- log: one\n- log: two\n")

	e := New(mock.New(mock.Config{}), cfg)
	r, err := e.Run(ctx, s)
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrCancelled))
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, 1, r.StepsExecuted)
	assert.Equal(t, core.StateAborted, e.State())
}

func TestEngine_PauseHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	s := parse(t, "- pause: 60000\n")

	start := time.Now()
	r, err := New(mock.New(mock.Config{}), testConfig(t)).Run(ctx, s)
	require.Error(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.True(t, r.Partial())
}

func TestEngine_Screenshot(t *testing.T) {
	cfg := testConfig(t)
	s := parse(t, "- take_screenshot: home/page\n")

	r, err := New(mock.New(mock.Config{}), cfg).Run(context.Background(), s)
	require.NoError(t, err)

	want := filepath.Join(cfg.ScreenshotDir, "home_page.png")
	assert.Equal(t, want, r.Steps[0].Screenshot)
	data, err := os.ReadFile(want)
	require.NoError(t, err)
	assert.Equal(t, mock.PNG(), data)
}

func TestEngine_ScreenshotWriteFailureIsNonFatal(t *testing.T) {
	cfg := testConfig(t)
	blocker := filepath.Join(cfg.ScreenshotDir, "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0o644))
	cfg.ScreenshotDir = filepath.Join(blocker, "sub")
	s := parse(t, "- take_screenshot: home\n- log: next\n")

	r, err := New(mock.New(mock.Config{}), cfg).Run(context.Background(), s)
	require.NoError(t, err)
	assert.Equal(t, report.StatusFailed, r.Steps[0].Status)
	assert.Contains(t, r.Steps[0].Error, "could not save screenshot")
	assert.Equal(t, report.StatusPassed, r.Steps[1].Status)
}

func TestEngine_IdempotentAcrossSessions(t *testing.T) {
	content := `
- selector: {text: Login}
  actions: [tap_on]
- selector: {text: Missing}
  actions: [assert_visible]
- log: done
`
	run := func() report.TestReport {
		r, err := New(mock.New(loginScreen()), testConfig(t)).Run(context.Background(), parse(t, content))
		require.NoError(t, err)
		return r
	}
	r1, r2 := run(), run()

	assert.Equal(t, r1.StepsExecuted, r2.StepsExecuted)
	require.Equal(t, len(r1.Steps), len(r2.Steps))
	for i := range r1.Steps {
		assert.Equal(t, r1.Steps[i].Status, r2.Steps[i].Status)
		assert.Equal(t, r1.Steps[i].Description, r2.Steps[i].Description)
	}
	assert.NotEqual(t, r1.RunID, r2.RunID)
}

func TestEngine_SingleUse(t *testing.T) {
	e := New(mock.New(mock.Config{}), testConfig(t))
	s := parse(t, "- log: x\n")
	_, err := e.Run(context.Background(), s)
	require.NoError(t, err)

	_, err = e.Run(context.Background(), s)
	assert.ErrorIs(t, err, ErrEngineUsed)
}

func TestEngine_PlatformFromDriver(t *testing.T) {
	cfg := testConfig(t)
	cfg.Platform = ""
	r, err := New(mock.New(mock.Config{Platform: "ios"}), cfg).Run(context.Background(), parse(t, "- log: x\n"))
	require.NoError(t, err)
	assert.Equal(t, "ios", r.Platform)
}
