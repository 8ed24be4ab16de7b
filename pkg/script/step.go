package script

import (
	"fmt"
	"strings"
	"time"
)

// StepType represents the kind of step.
type StepType string

// Step type constants. The values are the YAML keys that introduce each step.
const (
	StepElement    StepType = "selector"
	StepScreenshot StepType = "take_screenshot"
	StepLog        StepType = "log"
	StepPause      StepType = "pause"
	StepInclude    StepType = "step_file"
)

// Step is the interface for all script steps.
type Step interface {
	Type() StepType
	Describe() string
	Origin() (path string, line int)
}

// BaseStep contains the fields common to all steps.
type BaseStep struct {
	StepType   StepType
	SourcePath string // File the step was declared in
	Line       int    // 1-based line in SourcePath, 0 when unknown
}

// Type returns the step type.
func (b *BaseStep) Type() StepType { return b.StepType }

// Origin returns where the step was declared.
func (b *BaseStep) Origin() (string, int) { return b.SourcePath, b.Line }

// ElementStep locates one element and applies actions to it in order.
type ElementStep struct {
	BaseStep
	Selector Selector
	Actions  []Action
}

// Describe returns the selector followed by the action list.
func (s *ElementStep) Describe() string {
	names := make([]string, len(s.Actions))
	for i, a := range s.Actions {
		names[i] = a.Describe()
	}
	return fmt.Sprintf("%s [%s]", s.Selector.Describe(), strings.Join(names, ", "))
}

// ScreenshotStep captures the screen and saves it under Label.
type ScreenshotStep struct {
	BaseStep
	Label string
}

// Describe returns a human-readable description.
func (s *ScreenshotStep) Describe() string { return "screenshot: " + s.Label }

// LogStep appends a message to the report narrative.
type LogStep struct {
	BaseStep
	Message string
}

// Describe returns a human-readable description.
func (s *LogStep) Describe() string { return "log: " + s.Message }

// PauseStep suspends the run for DurationMs milliseconds.
type PauseStep struct {
	BaseStep
	DurationMs uint64
}

// Describe returns a human-readable description.
func (s *PauseStep) Describe() string { return fmt.Sprintf("pause %dms", s.DurationMs) }

// Duration converts DurationMs, reporting false when it does not fit in a time.Duration.
func (s *PauseStep) Duration() (time.Duration, bool) {
	return msToDuration(s.DurationMs)
}

// IncludeStep splices the steps of another script file in place.
// FilePath is relative to the directory of the including file.
type IncludeStep struct {
	BaseStep
	FilePath string
}

// Describe returns a human-readable description.
func (s *IncludeStep) Describe() string { return "step_file: " + s.FilePath }

const maxDurationMs = uint64(1<<63-1) / uint64(time.Millisecond)

func msToDuration(ms uint64) (time.Duration, bool) {
	if ms > maxDurationMs {
		return 0, false
	}
	return time.Duration(ms) * time.Millisecond, true
}
