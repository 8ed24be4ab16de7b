package script

import (
	"fmt"
	"time"
)

// ActionType represents the kind of action applied to an element.
type ActionType string

// Action type constants, as written in scripts.
const (
	ActionAssertVisible      ActionType = "assert_visible"
	ActionTap                ActionType = "tap_on"
	ActionScrollUntilVisible ActionType = "scroll_until_visible"
	ActionInsertData         ActionType = "insert_data"
	ActionPause              ActionType = "pause"
)

// Action is one operation of an ElementStep. Data is set for insert_data,
// DurationMs for pause.
type Action struct {
	Type       ActionType
	Data       string
	DurationMs uint64
	Line       int
}

// Describe returns the action name with its argument, if any.
func (a Action) Describe() string {
	switch a.Type {
	case ActionInsertData:
		return fmt.Sprintf("%s(%q)", a.Type, a.Data)
	case ActionPause:
		return fmt.Sprintf("%s(%dms)", a.Type, a.DurationMs)
	default:
		return string(a.Type)
	}
}

// Duration converts DurationMs, reporting false when it does not fit in a time.Duration.
func (a Action) Duration() (time.Duration, bool) {
	return msToDuration(a.DurationMs)
}

func isBareAction(name string) bool {
	switch ActionType(name) {
	case ActionAssertVisible, ActionTap, ActionScrollUntilVisible:
		return true
	}
	return false
}
