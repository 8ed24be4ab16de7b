package core

import "context"

// Strategy is a W3C WebDriver element location strategy.
type Strategy string

// Location strategies produced by the selector resolver.
const (
	StrategyUiAutomator     Strategy = "-android uiautomator"
	StrategyXPath           Strategy = "xpath"
	StrategyAccessibilityID Strategy = "accessibility id"
	StrategyClassChain      Strategy = "-ios class chain"
	StrategyPredicate       Strategy = "-ios predicate string"
)

// Query is a resolved driver query: a strategy plus the locator value.
type Query struct {
	Strategy Strategy `json:"strategy"`
	Value    string   `json:"value"`
}

// String renders the query the way it appears in logs.
func (q Query) String() string {
	return string(q.Strategy) + "=" + q.Value
}

// Element is an opaque handle to a UI element in the automation session.
// Handles are only valid for the session that returned them.
type Element struct {
	ID string `json:"id"`
}

// Direction is the direction of a scroll gesture.
type Direction string

// Scroll directions.
const (
	DirectionDown Direction = "down"
	DirectionUp   Direction = "up"
)

// Driver is the narrow capability set the engine needs from an automation session.
// Implementations: Appium (W3C WebDriver over HTTP) and the in-memory mock.
//
// Transport or session failures must be returned as driver errors
// (see NewDriverError) so the engine can abort the run. Any other error is
// treated as a refusal of the individual operation.
type Driver interface {
	// Find returns all elements matching the query. An empty result is not an error.
	Find(ctx context.Context, q Query) ([]Element, error)

	// Tap performs a single tap on the element.
	Tap(ctx context.Context, el Element) error

	// IsVisible reports whether the element is currently displayed.
	IsVisible(ctx context.Context, el Element) (bool, error)

	// Scroll performs one scroll gesture on the screen.
	Scroll(ctx context.Context, dir Direction) error

	// SetText sends text to the element.
	SetText(ctx context.Context, el Element, text string) error

	// Screenshot captures the current screen as PNG.
	Screenshot(ctx context.Context) ([]byte, error)
}

// PlatformInfo describes the session the driver is attached to.
type PlatformInfo struct {
	Platform  string `json:"platform"` // android, ios
	DeviceID  string `json:"deviceId,omitempty"`
	SessionID string `json:"sessionId,omitempty"`
}

// PlatformDescriber is implemented by drivers that can report platform info.
type PlatformDescriber interface {
	GetPlatformInfo() *PlatformInfo
}
