package core

// StepStatus represents the execution status of a step
type StepStatus int

// The zero value is not a valid status; every outcome sets one.
const (
	StatusPassed  StepStatus = iota + 1 // Completed successfully
	StatusFailed                        // An action or selector failed
	StatusErrored                       // Driver or script failure that aborted the run
)

// String returns the string representation of StepStatus
func (s StepStatus) String() string {
	switch s {
	case StatusPassed:
		return "passed"
	case StatusFailed:
		return "failed"
	case StatusErrored:
		return "errored"
	default:
		return "unknown"
	}
}

// ErrorCategory classifies the type of error for reporting and for
// deciding whether the run can continue.
type ErrorCategory int

const (
	ErrCategoryNone     ErrorCategory = iota // No error
	ErrCategorySelector                      // Selector cannot be expressed as a query
	ErrCategoryAction                        // Element missing, not visible, refused action
	ErrCategoryScript                        // Malformed script, bad include, include cycle
	ErrCategoryDriver                        // Transport or session failure
)

// String returns the string representation of ErrorCategory
func (c ErrorCategory) String() string {
	switch c {
	case ErrCategoryNone:
		return "none"
	case ErrCategorySelector:
		return "selector"
	case ErrCategoryAction:
		return "action"
	case ErrCategoryScript:
		return "script"
	case ErrCategoryDriver:
		return "driver"
	default:
		return "unknown"
	}
}

// EngineState is the lifecycle state of one execution engine run.
type EngineState int

const (
	StateIdle EngineState = iota
	StateRunning
	StateCompleted
	StateAborted
)

// String returns the string representation of EngineState
func (s EngineState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateAborted:
		return "aborted"
	default:
		return "unknown"
	}
}
