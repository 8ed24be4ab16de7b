package appium

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/devicelab-dev/apptest-runner/pkg/core"
	"github.com/devicelab-dev/apptest-runner/pkg/logger"
)

// Scroll gesture geometry, as fractions of the screen height.
const (
	scrollFrom       = 0.7
	scrollTo         = 0.3
	scrollDurationMs = 400
)

// Fallback screen size when the server does not report a window rect.
const (
	fallbackScreenW = 1080
	fallbackScreenH = 1920
)

var errNoMatch = errors.New("no matching element")

// Driver implements core.Driver using Appium server.
type Driver struct {
	client      *Client
	findTimeout time.Duration // how long Find polls for a first match
}

// NewDriver creates a session on the Appium server and returns a driver
// bound to it. httpClient may be nil.
func NewDriver(ctx context.Context, serverURL string, capabilities map[string]interface{}, httpClient *http.Client) (*Driver, error) {
	client := NewClient(serverURL, httpClient)
	if err := client.Connect(ctx, capabilities); err != nil {
		return nil, err
	}
	logger.Info("appium session %s created (platform=%s)", client.SessionID(), client.Platform())
	return &Driver{client: client}, nil
}

// Close ends the session.
func (d *Driver) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return d.client.Disconnect(ctx)
}

// SetFindTimeout makes Find poll up to ms milliseconds for a first match.
// Zero means a single lookup.
func (d *Driver) SetFindTimeout(ms int) {
	if ms < 0 {
		ms = 0
	}
	d.findTimeout = time.Duration(ms) * time.Millisecond
}

// Find implements core.Driver.
func (d *Driver) Find(ctx context.Context, q core.Query) ([]core.Element, error) {
	var ids []string
	lookup := func() error {
		found, err := d.client.FindElements(ctx, string(q.Strategy), q.Value)
		if err != nil {
			return backoff.Permanent(err)
		}
		if len(found) == 0 {
			return errNoMatch
		}
		ids = found
		return nil
	}

	var err error
	if d.findTimeout <= 0 {
		err = lookup()
	} else {
		b := backoff.NewExponentialBackOff()
		b.InitialInterval = 200 * time.Millisecond
		b.MaxInterval = time.Second
		b.MaxElapsedTime = d.findTimeout
		err = backoff.Retry(lookup, backoff.WithContext(b, ctx))
	}

	var perm *backoff.PermanentError
	switch {
	case err == nil:
	case errors.Is(err, errNoMatch):
		return nil, nil
	case errors.As(err, &perm):
		return nil, perm.Err
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return nil, core.ErrCancelled.WithCause(err)
	default:
		return nil, err
	}

	elements := make([]core.Element, len(ids))
	for i, id := range ids {
		elements[i] = core.Element{ID: id}
	}
	logger.Debug("find %s: %d match(es)", q.String(), len(elements))
	return elements, nil
}

// Tap implements core.Driver.
func (d *Driver) Tap(ctx context.Context, el core.Element) error {
	return d.client.ClickElement(ctx, el.ID)
}

// IsVisible implements core.Driver. A stale handle reads as not visible.
func (d *Driver) IsVisible(ctx context.Context, el core.Element) (bool, error) {
	visible, err := d.client.IsElementDisplayed(ctx, el.ID)
	if err != nil && isWebDriverCode(err, codeStaleElement) {
		return false, nil
	}
	return visible, err
}

// Scroll implements core.Driver with a vertical swipe through the
// middle of the screen.
func (d *Driver) Scroll(ctx context.Context, dir core.Direction) error {
	w, h := d.client.ScreenSize()
	if w == 0 || h == 0 {
		w, h = fallbackScreenW, fallbackScreenH
	}
	x := w / 2
	fromY := int(float64(h) * scrollFrom)
	toY := int(float64(h) * scrollTo)
	if dir == core.DirectionUp {
		fromY, toY = toY, fromY
	}
	return d.client.Swipe(ctx, x, fromY, x, toY, scrollDurationMs)
}

// SetText implements core.Driver.
func (d *Driver) SetText(ctx context.Context, el core.Element, text string) error {
	return d.client.SetValue(ctx, el.ID, text)
}

// Screenshot implements core.Driver.
func (d *Driver) Screenshot(ctx context.Context) ([]byte, error) {
	return d.client.Screenshot(ctx)
}

// GetPlatformInfo implements core.PlatformDescriber.
func (d *Driver) GetPlatformInfo() *core.PlatformInfo {
	return &core.PlatformInfo{
		Platform:  strings.ToLower(d.client.Platform()),
		DeviceID:  d.client.deviceID,
		SessionID: d.client.SessionID(),
	}
}
