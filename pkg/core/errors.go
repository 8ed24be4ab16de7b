package core

import (
	"context"
	"errors"
	"fmt"
)

// ExecutionError represents a structured error with category and details
type ExecutionError struct {
	Category ErrorCategory
	Code     string                 // Machine-readable code: element_not_found, invalid_selector, etc.
	Message  string                 // Human-readable message
	Details  map[string]interface{} // Additional context
	Cause    error                  // Underlying error
}

// Error implements the error interface
func (e *ExecutionError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying error for errors.Is/As support
func (e *ExecutionError) Unwrap() error {
	return e.Cause
}

// Is matches predefined errors by category and code, so that
// errors.Is(err, ErrElementNotFound) holds for any derived copy.
func (e *ExecutionError) Is(target error) bool {
	t, ok := target.(*ExecutionError)
	if !ok {
		return false
	}
	return e.Category == t.Category && e.Code == t.Code
}

// WithCause returns a copy of the error with the given cause
func (e *ExecutionError) WithCause(cause error) *ExecutionError {
	c := *e
	c.Cause = cause
	return &c
}

// WithMessage returns a copy of the error with a custom message
func (e *ExecutionError) WithMessage(msg string) *ExecutionError {
	c := *e
	c.Message = msg
	return &c
}

// WithDetails returns a copy of the error with additional details
func (e *ExecutionError) WithDetails(details map[string]interface{}) *ExecutionError {
	merged := make(map[string]interface{}, len(e.Details)+len(details))
	for k, v := range e.Details {
		merged[k] = v
	}
	for k, v := range details {
		merged[k] = v
	}
	c := *e
	c.Details = merged
	return &c
}

// Predefined errors
var (
	// Selector errors
	ErrInvalidSelector = &ExecutionError{
		Category: ErrCategorySelector,
		Code:     "invalid_selector",
		Message:  "selector cannot be expressed as a driver query",
	}

	// Action errors
	ErrElementNotFound = &ExecutionError{
		Category: ErrCategoryAction,
		Code:     "element_not_found",
		Message:  "element not found",
	}
	ErrElementNotVisible = &ExecutionError{
		Category: ErrCategoryAction,
		Code:     "element_not_visible",
		Message:  "element not visible",
	}
	ErrActionRefused = &ExecutionError{
		Category: ErrCategoryAction,
		Code:     "action_refused",
		Message:  "driver refused the action",
	}
	ErrScrollExhausted = &ExecutionError{
		Category: ErrCategoryAction,
		Code:     "scroll_exhausted",
		Message:  "element did not become visible after scrolling",
	}
	ErrInvalidDuration = &ExecutionError{
		Category: ErrCategoryAction,
		Code:     "invalid_duration",
		Message:  "invalid pause duration",
	}
	ErrScreenshotWrite = &ExecutionError{
		Category: ErrCategoryAction,
		Code:     "screenshot_write_failed",
		Message:  "could not save screenshot",
	}

	// Script errors
	ErrScriptParse = &ExecutionError{
		Category: ErrCategoryScript,
		Code:     "script_parse",
		Message:  "script could not be parsed",
	}
	ErrIncludeCycle = &ExecutionError{
		Category: ErrCategoryScript,
		Code:     "include_cycle",
		Message:  "circular include detected",
	}
	ErrIncludeNotFound = &ExecutionError{
		Category: ErrCategoryScript,
		Code:     "include_not_found",
		Message:  "included step file not found",
	}

	// Driver errors
	ErrServerUnreachable = &ExecutionError{
		Category: ErrCategoryDriver,
		Code:     "server_unreachable",
		Message:  "could not connect to automation server",
	}
	ErrSessionLost = &ExecutionError{
		Category: ErrCategoryDriver,
		Code:     "session_lost",
		Message:  "automation session is no longer valid",
	}
	ErrCancelled = &ExecutionError{
		Category: ErrCategoryDriver,
		Code:     "cancelled",
		Message:  "run cancelled",
	}
)

// NewExecutionError creates a new ExecutionError with the given parameters
func NewExecutionError(category ErrorCategory, code, message string) *ExecutionError {
	return &ExecutionError{
		Category: category,
		Code:     code,
		Message:  message,
	}
}

// NewSelectorError reports a selector that cannot be turned into a query.
func NewSelectorError(format string, args ...interface{}) *ExecutionError {
	return ErrInvalidSelector.WithMessage(fmt.Sprintf(format, args...))
}

// NewActionError reports a failed action. It fails the step, not the run.
func NewActionError(code, format string, args ...interface{}) *ExecutionError {
	return NewExecutionError(ErrCategoryAction, code, fmt.Sprintf(format, args...))
}

// NewScriptError reports a script that cannot be loaded or expanded.
func NewScriptError(format string, args ...interface{}) *ExecutionError {
	return ErrScriptParse.WithMessage(fmt.Sprintf(format, args...))
}

// NewDriverError wraps a transport or session failure.
func NewDriverError(cause error, format string, args ...interface{}) *ExecutionError {
	return ErrServerUnreachable.WithMessage(fmt.Sprintf(format, args...)).WithCause(cause)
}

// CategoryOf returns the category of err, or ErrCategoryNone when err
// carries no ExecutionError.
func CategoryOf(err error) ErrorCategory {
	var ee *ExecutionError
	if errors.As(err, &ee) {
		return ee.Category
	}
	return ErrCategoryNone
}

// CodeOf returns the machine-readable code of err, or "" when err is not
// an ExecutionError.
func CodeOf(err error) string {
	var ee *ExecutionError
	if errors.As(err, &ee) {
		return ee.Code
	}
	return ""
}

// IsFatal reports whether err must abort the whole run.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	switch CategoryOf(err) {
	case ErrCategoryScript, ErrCategoryDriver:
		return true
	}
	return false
}
