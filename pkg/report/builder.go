package report

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/devicelab-dev/apptest-runner/pkg/core"
)

// Builder accumulates a TestReport during a run. It is owned by a single
// engine run and is not safe for concurrent use.
type Builder struct {
	report  TestReport
	started time.Time
	now     func() time.Time
}

// NewBuilder creates a builder for a run of testFile on platform.
func NewBuilder(testFile, name, platform string) *Builder {
	return &Builder{
		report: TestReport{
			Version:  Version,
			RunID:    uuid.NewString(),
			TestFile: testFile,
			Name:     name,
			Platform: platform,
		},
		now: time.Now,
	}
}

// Start records the start time. Calling it again restarts the clock.
func (b *Builder) Start() {
	b.started = b.now()
	b.report.StartTime = b.started
}

// StepsExecuted returns the number of outcomes recorded so far.
func (b *Builder) StepsExecuted() int {
	return b.report.StepsExecuted
}

// Record appends an outcome and its narrative line, and returns the line.
func (b *Builder) Record(o core.StepOutcome) string {
	b.report.StepsExecuted++
	if o.Index == 0 {
		o.Index = b.report.StepsExecuted
	}

	rec := StepRecord{
		Index:       o.Index,
		Description: o.Description,
		Source:      o.Source,
		Status:      StatusPassed,
		DurationMs:  o.Duration.Milliseconds(),
		ActionIndex: o.ActionIndex,
		ActionName:  o.ActionName,
	}
	for _, a := range o.Attachments {
		if a.Name == core.AttachmentScreenshot {
			rec.Screenshot = a.Path
		}
	}
	if o.Success() {
		b.report.Passed++
	} else {
		b.report.Failed++
		rec.Status = StatusFailed
		rec.Error = o.FailureDetail()
		rec.ErrorCode = core.CodeOf(o.Error)
	}
	b.report.Steps = append(b.report.Steps, rec)

	line := narrativeLine(o)
	b.report.Details = append(b.report.Details, line)
	b.report.Elapsed = b.now().Sub(b.started)
	return line
}

// Note appends a narrative line that is not a step, such as an abort notice.
func (b *Builder) Note(line string) {
	b.report.Details = append(b.report.Details, line)
}

// Finalize closes the report. A non-nil abortErr marks it aborted and partial.
func (b *Builder) Finalize(abortErr error) TestReport {
	end := b.now()
	r := b.report
	r.EndTime = end
	r.Elapsed = end.Sub(b.started)
	r.State = StateCompleted
	if abortErr != nil {
		r.State = StateAborted
		r.AbortReason = abortErr.Error()
	}
	r.Steps = append([]StepRecord(nil), b.report.Steps...)
	r.Details = append([]string(nil), b.report.Details...)
	return r
}

func narrativeLine(o core.StepOutcome) string {
	secs := o.Duration.Seconds()
	switch {
	case o.Success() && o.Message != "":
		return fmt.Sprintf("✅ Step %d: %s (%.2fs)", o.Index, o.Message, secs)
	case o.Success():
		return fmt.Sprintf("✅ Step %d: %s (%.2fs)", o.Index, o.Description, secs)
	case o.ActionIndex > 0:
		return fmt.Sprintf("❌ Step %d: %s: action %d (%s) failed: %s (%.2fs)",
			o.Index, o.Description, o.ActionIndex, o.ActionName, o.FailureDetail(), secs)
	default:
		return fmt.Sprintf("❌ Step %d: %s: %s (%.2fs)", o.Index, o.Description, o.FailureDetail(), secs)
	}
}
