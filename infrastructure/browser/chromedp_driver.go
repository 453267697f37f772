package browser

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
)

// keyCodes maps supported key names to chromedp key sequences.
var keyCodes = map[string]string{
	"Enter":      kb.Enter,
	"Tab":        kb.Tab,
	"Escape":     kb.Escape,
	"Backspace":  kb.Backspace,
	"Delete":     kb.Delete,
	"Space":      " ",
	"ArrowUp":    kb.ArrowUp,
	"ArrowDown":  kb.ArrowDown,
	"ArrowLeft":  kb.ArrowLeft,
	"ArrowRight": kb.ArrowRight,
	"Home":       kb.Home,
	"End":        kb.End,
	"PageUp":     kb.PageUp,
	"PageDown":   kb.PageDown,
}

// ChromeDPDriver implements Driver using chromedp.
type ChromeDPDriver struct {
	config      *DriverConfig
	allocCtx    context.Context
	allocCancel context.CancelFunc
	ctx         context.Context
	cancel      context.CancelFunc
	mu          sync.Mutex
	running     bool
}

// NewChromeDPDriver creates a new ChromeDP-based browser driver.
func NewChromeDPDriver(config *DriverConfig) *ChromeDPDriver {
	if config == nil {
		config = DefaultDriverConfig()
	}
	return &ChromeDPDriver{
		config: config,
	}
}

// buildExecAllocatorOptions builds chromedp options from config.
func (d *ChromeDPDriver) buildExecAllocatorOptions() []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", d.config.Headless),
		chromedp.Flag("hide-scrollbars", d.config.HideScrollbars),
		chromedp.Flag("mute-audio", d.config.MuteAudio),
		chromedp.Flag("disable-gpu", d.config.DisableGPU),
		chromedp.Flag("disable-infobars", true),
		chromedp.Flag("enable-automation", false),
		chromedp.WindowSize(d.config.ViewportWidth, d.config.ViewportHeight),
	)

	if d.config.NoSandbox {
		opts = append(opts, chromedp.NoSandbox)
	}
	if d.config.UserDataDir != "" {
		opts = append(opts, chromedp.UserDataDir(d.config.UserDataDir))
	}

	return opts
}

// Start launches the browser and fixes the viewport size.
func (d *ChromeDPDriver) Start(ctx context.Context) error {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return fmt.Errorf("browser already running")
	}

	// The browser lifecycle is independent of the caller's context
	d.allocCtx, d.allocCancel = chromedp.NewExecAllocator(
		context.Background(),
		d.buildExecAllocatorOptions()...,
	)
	d.ctx, d.cancel = chromedp.NewContext(d.allocCtx)
	d.running = true
	browserCtx, cancelBrowser := d.ctx, d.cancel
	d.mu.Unlock()

	// The first Run launches the process and binds it to the context it runs
	// on, so it must run on the unbounded browser context. A cancelled caller
	// tears the browser down instead.
	stop := context.AfterFunc(ctx, cancelBrowser)
	err := chromedp.Run(browserCtx)
	if !stop() && err == nil {
		err = ctx.Err()
	}
	if err != nil {
		d.Stop()
		return wrapActionError("start", err)
	}

	if err := d.SetViewport(ctx, d.config.ViewportWidth, d.config.ViewportHeight); err != nil {
		d.Stop()
		return wrapActionError("start", err)
	}
	return nil
}

// Stop closes the browser and releases resources.
func (d *ChromeDPDriver) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.running {
		return nil
	}

	d.running = false
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	if d.allocCancel != nil {
		d.allocCancel()
		d.allocCancel = nil
	}
	d.ctx = nil
	d.allocCtx = nil
	return nil
}

// IsRunning returns true if the browser is active.
func (d *ChromeDPDriver) IsRunning() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.running
}

// runCtx derives a bounded context from the browser context that is also
// cancelled when the caller's ctx is.
func (d *ChromeDPDriver) runCtx(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc, error) {
	d.mu.Lock()
	browserCtx := d.ctx
	running := d.running
	d.mu.Unlock()

	if !running || browserCtx == nil {
		return nil, nil, ErrNotRunning
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	timeoutCtx, cancel := context.WithTimeout(browserCtx, timeout)
	stop := context.AfterFunc(ctx, cancel)
	return timeoutCtx, func() {
		stop()
		cancel()
	}, nil
}

func (d *ChromeDPDriver) run(ctx context.Context, action string, timeout time.Duration, actions ...chromedp.Action) error {
	runCtx, cancel, err := d.runCtx(ctx, timeout)
	if err != nil {
		return wrapActionError(action, err)
	}
	defer cancel()

	return wrapActionError(action, chromedp.Run(runCtx, actions...))
}

// Navigate navigates to the specified URL.
func (d *ChromeDPDriver) Navigate(ctx context.Context, url string) error {
	return d.run(ctx, "navigate", d.config.NavigationTimeout, chromedp.Navigate(url))
}

// Click performs a mouse click at the specified coordinates.
func (d *ChromeDPDriver) Click(ctx context.Context, x, y float64) error {
	return d.run(ctx, "click", d.config.ActionTimeout,
		chromedp.MouseClickXY(x, y, chromedp.ButtonLeft),
	)
}

// TypeText types text into the focused element.
func (d *ChromeDPDriver) TypeText(ctx context.Context, text string) error {
	return d.run(ctx, "type_text", d.config.ActionTimeout, chromedp.KeyEvent(text))
}

// PressKey presses a named key.
func (d *ChromeDPDriver) PressKey(ctx context.Context, key string) error {
	code, ok := keyCodes[key]
	if !ok {
		return NewActionError("key_press", ReasonEngineError, fmt.Errorf("unsupported key %q", key))
	}
	return d.run(ctx, "key_press", d.config.ActionTimeout, chromedp.KeyEvent(code))
}

// Scroll dispatches a mouse wheel event at the viewport centre.
func (d *ChromeDPDriver) Scroll(ctx context.Context, direction string) error {
	var dx, dy float64
	switch direction {
	case "up":
		dy = -d.config.ScrollDelta
	case "down":
		dy = d.config.ScrollDelta
	case "left":
		dx = -d.config.ScrollDelta
	case "right":
		dx = d.config.ScrollDelta
	default:
		return NewActionError("scroll", ReasonEngineError, fmt.Errorf("unsupported direction %q", direction))
	}

	cx := float64(d.config.ViewportWidth) / 2
	cy := float64(d.config.ViewportHeight) / 2

	return d.run(ctx, "scroll", d.config.ActionTimeout, chromedp.ActionFunc(func(ctx context.Context) error {
		return input.DispatchMouseEvent(input.MouseWheel, cx, cy).
			WithDeltaX(dx).
			WithDeltaY(dy).
			Do(ctx)
	}))
}

// CurrentURL returns the page URL.
func (d *ChromeDPDriver) CurrentURL(ctx context.Context) (string, error) {
	var url string
	if err := d.run(ctx, "current_url", d.config.ScreenshotTimeout, chromedp.Location(&url)); err != nil {
		return "", err
	}
	return url, nil
}

// CaptureScreen captures the current viewport as PNG.
func (d *ChromeDPDriver) CaptureScreen(ctx context.Context) ([]byte, error) {
	var buf []byte
	if err := d.run(ctx, "screenshot", d.config.ScreenshotTimeout, chromedp.CaptureScreenshot(&buf)); err != nil {
		return nil, err
	}
	return buf, nil
}

// SetViewport sets the browser viewport size.
func (d *ChromeDPDriver) SetViewport(ctx context.Context, width, height int) error {
	return d.run(ctx, "set_viewport", d.config.NavigationTimeout,
		chromedp.EmulateViewport(int64(width), int64(height)),
	)
}
