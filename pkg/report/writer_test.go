package report

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devicelab-dev/apptest-runner/pkg/core"
)

func TestMarkdown(t *testing.T) {
	b := newTestBuilder()
	b.Record(core.StepOutcome{Description: "log: hello", Message: "hello", Status: core.StatusPassed})
	r := b.Finalize(nil)

	md := Markdown(r)
	assert.Contains(t, md, "# Test suite report")
	assert.Contains(t, md, "Test file: login.yaml")
	assert.Contains(t, md, "Platform: android")
	assert.Contains(t, md, "🕒 Date and time: 2026-10-19 09:30:00")
	assert.Contains(t, md, "✅ Steps executed: 1 (1 passed, 0 failed)")
	assert.Contains(t, md, "⏱️ Total execution time: 2.00 seconds")
	assert.Contains(t, md, "## Test Details")
	assert.Contains(t, md, "✅ Step 1: hello")
	assert.NotContains(t, md, "partial")
}

func TestMarkdown_Partial(t *testing.T) {
	b := newTestBuilder()
	r := b.Finalize(core.NewScriptError("circular include"))

	md := Markdown(r)
	assert.Contains(t, md, "this report is partial")
	assert.Contains(t, md, "circular include")
	assert.Contains(t, md, "✅ Steps executed: 0")
}

func TestWrite(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "reports")
	b := newTestBuilder()
	b.Record(core.StepOutcome{Description: "pause 10ms", Status: core.StatusPassed, Duration: 10 * time.Millisecond})
	r := b.Finalize(nil)

	mdPath, err := Write(dir, r)
	require.NoError(t, err)
	stem := "REPORT_20261019_09-30-00_" + strings.ReplaceAll(r.RunID, "-", "")[:8]
	assert.Equal(t, filepath.Join(dir, stem+".md"), mdPath)

	md, err := os.ReadFile(mdPath)
	require.NoError(t, err)
	assert.Equal(t, Markdown(r), string(md))

	data, err := os.ReadFile(filepath.Join(dir, stem+".json"))
	require.NoError(t, err)
	var loaded TestReport
	require.NoError(t, json.Unmarshal(data, &loaded))
	assert.Equal(t, r.RunID, loaded.RunID)
	assert.Equal(t, r.StepsExecuted, loaded.StepsExecuted)
	assert.Equal(t, r.Elapsed, loaded.Elapsed)
	assert.Equal(t, StateCompleted, loaded.State)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 2, "temp files must not be left behind")
}

func TestWrite_SameSecondRunsKeepBothReports(t *testing.T) {
	dir := t.TempDir()
	first := newTestBuilder().Finalize(nil)
	second := newTestBuilder().Finalize(nil)
	require.Equal(t, first.StartTime, second.StartTime)

	p1, err := Write(dir, first)
	require.NoError(t, err)
	p2, err := Write(dir, second)
	require.NoError(t, err)
	assert.NotEqual(t, p1, p2)

	matches, err := filepath.Glob(filepath.Join(dir, "REPORT_*.json"))
	require.NoError(t, err)
	assert.Len(t, matches, 2)
}

func TestFileStem_NoRunID(t *testing.T) {
	r := TestReport{StartTime: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}
	assert.Equal(t, "REPORT_20260102_03-04-05", FileStem(r))
}
