// Package browser provides browser automation infrastructure.
package browser

import (
	"context"
	"time"

	"portalpilot-go/core/viewport"
)

// Driver defines the interface for browser automation.
// One Driver instance is owned by exactly one session.
type Driver interface {
	// Start initializes the browser instance.
	Start(ctx context.Context) error

	// Stop closes the browser and releases resources. Safe to call repeatedly.
	Stop() error

	// IsRunning returns true if the browser is active.
	IsRunning() bool

	// Navigate navigates to the specified URL.
	Navigate(ctx context.Context, url string) error

	// Click performs a mouse click at real viewport coordinates.
	Click(ctx context.Context, x, y float64) error

	// TypeText types text into the focused element.
	TypeText(ctx context.Context, text string) error

	// PressKey presses a named key (see step.SupportedKeys).
	PressKey(ctx context.Context, key string) error

	// Scroll scrolls the page in a direction (up, down, left, right).
	Scroll(ctx context.Context, direction string) error

	// CurrentURL returns the page URL.
	CurrentURL(ctx context.Context) (string, error)

	// CaptureScreen captures the viewport as PNG bytes.
	CaptureScreen(ctx context.Context) ([]byte, error)

	// SetViewport sets the browser viewport size.
	SetViewport(ctx context.Context, width, height int) error
}

// DriverConfig holds configuration for browser drivers.
type DriverConfig struct {
	// Headless runs the browser without a visible window.
	Headless bool

	// ViewportWidth is the viewport width. Recorded clicks use this space.
	ViewportWidth int

	// ViewportHeight is the viewport height.
	ViewportHeight int

	// DisableGPU disables GPU acceleration.
	DisableGPU bool

	// MuteAudio mutes browser audio.
	MuteAudio bool

	// HideScrollbars hides scrollbars.
	HideScrollbars bool

	// NoSandbox disables the Chrome sandbox; required when running as root in a container.
	NoSandbox bool

	// UserDataDir specifies a custom user data directory.
	UserDataDir string

	// NavigationTimeout bounds Navigate.
	NavigationTimeout time.Duration

	// ActionTimeout bounds click, typing, key and scroll actions.
	ActionTimeout time.Duration

	// ScreenshotTimeout bounds CaptureScreen and CurrentURL.
	ScreenshotTimeout time.Duration

	// ScrollDelta is the wheel delta in pixels per scroll action.
	ScrollDelta float64
}

// DefaultDriverConfig returns default browser configuration.
func DefaultDriverConfig() *DriverConfig {
	return &DriverConfig{
		Headless:          true,
		ViewportWidth:     viewport.DefaultWidth,
		ViewportHeight:    viewport.DefaultHeight,
		DisableGPU:        false,
		MuteAudio:         true,
		HideScrollbars:    true,
		NavigationTimeout: 30 * time.Second,
		ActionTimeout:     5 * time.Second,
		ScreenshotTimeout: 3 * time.Second,
		ScrollDelta:       400,
	}
}

// Viewport returns the configured viewport size.
func (c *DriverConfig) Viewport() viewport.Size {
	return viewport.Size{Width: c.ViewportWidth, Height: c.ViewportHeight}
}

// Factory creates a fresh Driver for a new session.
type Factory func() Driver

// NewChromeDPFactory returns a Factory producing chromedp drivers.
func NewChromeDPFactory(cfg *DriverConfig) Factory {
	return func() Driver {
		return NewChromeDPDriver(cfg)
	}
}
