package core

import "time"

// StepOutcome is the result of interpreting one leaf step.
type StepOutcome struct {
	Index       int           `json:"index"`                 // 1-based position among executed steps
	Description string        `json:"description"`           // Derived from step content, e.g. text="Login"
	Source      string        `json:"source,omitempty"`      // Script file the step came from
	Status      StepStatus    `json:"-"`                     // Passed, Failed or Errored
	Duration    time.Duration `json:"duration"`              // Wall time of the step
	Message     string        `json:"message,omitempty"`     // Narrative line for log steps and successes
	Error       error         `json:"-"`                     // Failure detail when not passed
	ActionIndex int           `json:"actionIndex,omitempty"` // 1-based index of the failing action, 0 if none
	ActionName  string        `json:"actionName,omitempty"`  // Name of the failing action

	Attachments []Attachment `json:"attachments,omitempty"`
}

// Success reports whether the step passed.
func (o *StepOutcome) Success() bool {
	return o.Status == StatusPassed
}

// FailureDetail returns the failure text, or "" for a passed step.
func (o *StepOutcome) FailureDetail() string {
	if o.Error == nil {
		return ""
	}
	return o.Error.Error()
}
