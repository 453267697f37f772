package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"portalpilot-go/domain/step"
	"portalpilot-go/infrastructure/browser"
	"portalpilot-go/infrastructure/metrics"
)

// Frame is the browser state observed after an operation.
type Frame struct {
	PNG []byte
	URL string
}

// BrowserController translates step actions into driver calls for a session.
type BrowserController struct {
	driver browser.Driver
	logger *slog.Logger
}

// NewBrowserController creates a new browser controller.
func NewBrowserController(driver browser.Driver, logger *slog.Logger) *BrowserController {
	if logger == nil {
		logger = slog.Default()
	}
	return &BrowserController{
		driver: driver,
		logger: logger,
	}
}

// Do performs one primitive action. insert_credential is not handled here,
// callers resolve the value and use TypeSecret.
func (c *BrowserController) Do(ctx context.Context, action step.Action) error {
	start := time.Now()
	err := c.do(ctx, action)
	metrics.ObserveAction(string(action.Type), err, time.Since(start))
	return err
}

func (c *BrowserController) do(ctx context.Context, action step.Action) error {
	if !c.driver.IsRunning() {
		return browser.NewActionError(string(action.Type), browser.ReasonBrowserNotRunning, browser.ErrNotRunning)
	}

	p := action.Params
	switch action.Type {
	case step.ActionClick:
		return c.driver.Click(ctx, float64(p.X), float64(p.Y))
	case step.ActionTypeText:
		return c.driver.TypeText(ctx, p.Text)
	case step.ActionKeyPress:
		return c.driver.PressKey(ctx, p.Key)
	case step.ActionScroll:
		return c.driver.Scroll(ctx, p.Direction)
	case step.ActionWait:
		return wait(ctx, time.Duration(p.Seconds*float64(time.Second)))
	default:
		return fmt.Errorf("browser controller cannot perform %q", action.Type)
	}
}

// TypeSecret types a credential value into the focused element.
// The value never appears in the returned error or in logs.
func (c *BrowserController) TypeSecret(ctx context.Context, value string) error {
	start := time.Now()
	var err error
	if !c.driver.IsRunning() {
		err = browser.NewActionError(string(step.ActionInsertCredential), browser.ReasonBrowserNotRunning, browser.ErrNotRunning)
	} else if typeErr := c.driver.TypeText(ctx, value); typeErr != nil {
		err = browser.NewActionError(string(step.ActionInsertCredential), reasonOf(typeErr), nil)
	}
	metrics.ObserveAction(string(step.ActionInsertCredential), err, time.Since(start))
	return err
}

// Navigate navigates to the specified URL.
func (c *BrowserController) Navigate(ctx context.Context, url string) error {
	start := time.Now()
	var err error
	if !c.driver.IsRunning() {
		err = browser.NewActionError("navigate", browser.ReasonBrowserNotRunning, browser.ErrNotRunning)
	} else {
		err = c.driver.Navigate(ctx, url)
	}
	metrics.ObserveAction("navigate", err, time.Since(start))
	return err
}

// Snapshot captures the current screenshot and URL.
func (c *BrowserController) Snapshot(ctx context.Context) (Frame, error) {
	if !c.driver.IsRunning() {
		return Frame{}, browser.NewActionError("screenshot", browser.ReasonBrowserNotRunning, browser.ErrNotRunning)
	}
	png, err := c.driver.CaptureScreen(ctx)
	if err != nil {
		return Frame{}, err
	}
	url, err := c.driver.CurrentURL(ctx)
	if err != nil {
		c.logger.Warn("Failed to read current URL", "error", err)
	}
	return Frame{PNG: png, URL: url}, nil
}

// IsRunning returns true if the browser is active.
func (c *BrowserController) IsRunning() bool {
	return c.driver.IsRunning()
}

func wait(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return browser.NewActionError(string(step.ActionWait), browser.ReasonTimeout, ctx.Err())
	}
}

func reasonOf(err error) string {
	var ae *browser.ActionError
	if errors.As(err, &ae) {
		return ae.Reason
	}
	return browser.ReasonEngineError
}
