// Package mock provides an in-memory driver for tests and dry runs without
// a device.
package mock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/devicelab-dev/apptest-runner/pkg/core"
)

// Element is a fake UI element.
type Element struct {
	ID          string
	Visible     bool
	AcceptsText bool
	Disabled    bool
}

// Config configures mock driver behavior.
type Config struct {
	// Elements maps a query value to the elements it finds.
	Elements map[string][]Element
	// RevealAfterScrolls hides a query's elements until that many scrolls happened.
	RevealAfterScrolls map[string]int
	// MatchAll makes unknown queries find one visible, editable element.
	MatchAll bool
	// FailAfterCalls makes every call after the first N fail with a lost
	// session. 0 = never fail.
	FailAfterCalls int
	// CallDelay adds artificial latency per call.
	CallDelay time.Duration
	// ScreenshotErr makes Screenshot fail with this error.
	ScreenshotErr error

	// Platform info to report
	Platform string
	DeviceID string
}

// Call is one recorded driver invocation.
type Call struct {
	Method string
	Arg    string
}

// Driver is a mock implementation of core.Driver.
type Driver struct {
	Config Config

	mu      sync.Mutex
	calls   []Call
	scrolls int
	byID    map[string]Element
	texts   map[string]string
	taps    map[string]int
}

// New creates a new mock driver.
func New(cfg Config) *Driver {
	if cfg.Platform == "" {
		cfg.Platform = "android"
	}
	if cfg.DeviceID == "" {
		cfg.DeviceID = "mock-device"
	}
	d := &Driver{
		Config: cfg,
		byID:   make(map[string]Element),
		texts:  make(map[string]string),
		taps:   make(map[string]int),
	}
	for _, els := range cfg.Elements {
		for _, el := range els {
			d.byID[el.ID] = el
		}
	}
	return d
}

var matchAllElement = Element{ID: "mock-element", Visible: true, AcceptsText: true}

// record logs a call and applies the configured latency and failure point.
func (d *Driver) record(ctx context.Context, method, arg string) error {
	d.mu.Lock()
	d.calls = append(d.calls, Call{Method: method, Arg: arg})
	n := len(d.calls)
	d.mu.Unlock()

	if d.Config.CallDelay > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(d.Config.CallDelay):
		}
	}
	if d.Config.FailAfterCalls > 0 && n > d.Config.FailAfterCalls {
		return core.ErrSessionLost.WithCause(fmt.Errorf("mock session closed after %d calls", d.Config.FailAfterCalls))
	}
	return nil
}

// Find returns the configured elements for q.Value.
func (d *Driver) Find(ctx context.Context, q core.Query) ([]core.Element, error) {
	if err := d.record(ctx, "find", q.Value); err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if need, ok := d.Config.RevealAfterScrolls[q.Value]; ok && d.scrolls < need {
		return nil, nil
	}
	els, ok := d.Config.Elements[q.Value]
	if !ok && d.Config.MatchAll {
		els = []Element{matchAllElement}
		d.byID[matchAllElement.ID] = matchAllElement
	}
	out := make([]core.Element, len(els))
	for i, el := range els {
		out[i] = core.Element{ID: el.ID}
	}
	return out, nil
}

func (d *Driver) lookup(id string) (Element, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	el, ok := d.byID[id]
	if !ok {
		return Element{}, fmt.Errorf("stale element reference: %s", id)
	}
	return el, nil
}

// Tap taps an element. Hidden or disabled elements refuse the tap.
func (d *Driver) Tap(ctx context.Context, el core.Element) error {
	if err := d.record(ctx, "tap", el.ID); err != nil {
		return err
	}
	e, err := d.lookup(el.ID)
	if err != nil {
		return err
	}
	if !e.Visible || e.Disabled {
		return errors.New("element not interactable")
	}
	d.mu.Lock()
	d.taps[el.ID]++
	d.mu.Unlock()
	return nil
}

// IsVisible reports the element's Visible flag.
func (d *Driver) IsVisible(ctx context.Context, el core.Element) (bool, error) {
	if err := d.record(ctx, "visible", el.ID); err != nil {
		return false, err
	}
	e, err := d.lookup(el.ID)
	if err != nil {
		return false, err
	}
	return e.Visible, nil
}

// Scroll counts scroll gestures.
func (d *Driver) Scroll(ctx context.Context, dir core.Direction) error {
	if err := d.record(ctx, "scroll", string(dir)); err != nil {
		return err
	}
	d.mu.Lock()
	d.scrolls++
	d.mu.Unlock()
	return nil
}

// SetText stores text for elements that accept input.
func (d *Driver) SetText(ctx context.Context, el core.Element, text string) error {
	if err := d.record(ctx, "setText", el.ID+"="+text); err != nil {
		return err
	}
	e, err := d.lookup(el.ID)
	if err != nil {
		return err
	}
	if !e.AcceptsText {
		return errors.New("element does not accept text input")
	}
	d.mu.Lock()
	d.texts[el.ID] = text
	d.mu.Unlock()
	return nil
}

// Screenshot returns a mock PNG image.
func (d *Driver) Screenshot(ctx context.Context) ([]byte, error) {
	if err := d.record(ctx, "screenshot", ""); err != nil {
		return nil, err
	}
	if d.Config.ScreenshotErr != nil {
		return nil, d.Config.ScreenshotErr
	}
	return PNG(), nil
}

// GetPlatformInfo returns mock platform info.
func (d *Driver) GetPlatformInfo() *core.PlatformInfo {
	return &core.PlatformInfo{
		Platform:  d.Config.Platform,
		DeviceID:  d.Config.DeviceID,
		SessionID: "mock-session",
	}
}

// Calls returns a copy of the recorded calls.
func (d *Driver) Calls() []Call {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Call(nil), d.calls...)
}

// Scrolls returns the number of scroll gestures performed.
func (d *Driver) Scrolls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.scrolls
}

// Text returns the text last set on the element.
func (d *Driver) Text(id string) string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.texts[id]
}

// Taps returns how often the element was tapped.
func (d *Driver) Taps(id string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.taps[id]
}

// PNG returns a minimal valid PNG (1x1 transparent pixel).
func PNG() []byte {
	return []byte{
		0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A, // PNG signature
		0x00, 0x00, 0x00, 0x0D, 0x49, 0x48, 0x44, 0x52, // IHDR chunk
		0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x01,
		0x08, 0x06, 0x00, 0x00, 0x00, 0x1F, 0x15, 0xC4,
		0x89, 0x00, 0x00, 0x00, 0x0A, 0x49, 0x44, 0x41,
		0x54, 0x78, 0x9C, 0x63, 0x00, 0x01, 0x00, 0x00,
		0x05, 0x00, 0x01, 0x0D, 0x0A, 0x2D, 0xB4, 0x00,
		0x00, 0x00, 0x00, 0x49, 0x45, 0x4E, 0x44, 0xAE,
		0x42, 0x60, 0x82,
	}
}
