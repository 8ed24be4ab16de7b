// Package report provides the test report record, its incremental builder
// and the Markdown and JSON writers.
//
// Files written per run into the report directory:
//   - REPORT_<YYYYMMDD_HH-MM-SS>_<run id>.md: human-readable summary and details
//   - REPORT_<YYYYMMDD_HH-MM-SS>_<run id>.json: the same record for tooling
package report

import (
	"strings"
	"time"
)

// Version is the report schema version.
const Version = "1.0.0"

// Status represents the execution status.
type Status string

// Status values.
const (
	StatusPassed Status = "passed"
	StatusFailed Status = "failed"
)

// State is how the run ended.
type State string

// State values.
const (
	StateCompleted State = "completed"
	StateAborted   State = "aborted"
)

// TestReport is the finalized record of one run. It is a value: the slices
// are private copies, so a TestReport may be handed to formatters freely.
type TestReport struct {
	Version       string        `json:"version"`
	RunID         string        `json:"runId"`
	TestFile      string        `json:"testFile"`
	Name          string        `json:"name,omitempty"`
	Platform      string        `json:"platform"`
	StartTime     time.Time     `json:"startTime"`
	EndTime       time.Time     `json:"endTime"`
	StepsExecuted int           `json:"stepsExecuted"`
	Passed        int           `json:"passed"`
	Failed        int           `json:"failed"`
	Elapsed       time.Duration `json:"elapsedNs"`
	State         State         `json:"state"`
	AbortReason   string        `json:"abortReason,omitempty"`
	Steps         []StepRecord  `json:"steps"`
	Details       []string      `json:"details"`
}

// StepRecord is the reported form of one step outcome.
type StepRecord struct {
	Index       int    `json:"index"`
	Description string `json:"description"`
	Source      string `json:"source,omitempty"`
	Status      Status `json:"status"`
	DurationMs  int64  `json:"durationMs"`
	Error       string `json:"error,omitempty"`
	ErrorCode   string `json:"errorCode,omitempty"`
	ActionIndex int    `json:"actionIndex,omitempty"`
	ActionName  string `json:"actionName,omitempty"`
	Screenshot  string `json:"screenshot,omitempty"`
}

// Partial reports whether the run was aborted before all steps ran.
func (r TestReport) Partial() bool {
	return r.State == StateAborted
}

// Success reports whether the run completed with no failed step.
func (r TestReport) Success() bool {
	return r.State == StateCompleted && r.Failed == 0
}

// Narrative returns the detail lines joined by newlines.
func (r TestReport) Narrative() string {
	return strings.Join(r.Details, "\n")
}
