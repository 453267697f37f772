package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"portalpilot-go/core/apperr"
)

// Failure reasons carried by ActionError.
const (
	ReasonTimeout           = "timeout"
	ReasonNavigationError   = "navigation_error"
	ReasonElementNotFound   = "element_not_found"
	ReasonBrowserNotRunning = "browser_not_running"
	ReasonEngineError       = "engine_error"
)

// ErrNotRunning is returned when an operation needs a started browser.
var ErrNotRunning = errors.New("browser not running")

// ActionError reports a browser operation that could not complete.
// It matches apperr.ErrActionFailed with errors.Is.
type ActionError struct {
	Action string
	Reason string
	Err    error
}

func (e *ActionError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s failed: %s", e.Action, e.Reason)
	}
	return fmt.Sprintf("%s failed: %s: %v", e.Action, e.Reason, e.Err)
}

func (e *ActionError) Unwrap() []error {
	if e.Err == nil {
		return []error{apperr.ErrActionFailed}
	}
	return []error{apperr.ErrActionFailed, e.Err}
}

// FailureReason implements apperr.Reasoned.
func (e *ActionError) FailureReason() string {
	return e.Reason
}

// NewActionError builds an ActionError with an explicit reason.
func NewActionError(action, reason string, err error) *ActionError {
	return &ActionError{Action: action, Reason: reason, Err: err}
}

// wrapActionError classifies an engine error for action.
func wrapActionError(action string, err error) error {
	if err == nil {
		return nil
	}
	var ae *ActionError
	if errors.As(err, &ae) {
		return err
	}
	return &ActionError{Action: action, Reason: classify(action, err), Err: err}
}

func classify(action string, err error) string {
	switch {
	case errors.Is(err, ErrNotRunning):
		return ReasonBrowserNotRunning
	case errors.Is(err, context.DeadlineExceeded):
		return ReasonTimeout
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "timed out"):
		return ReasonTimeout
	case strings.Contains(msg, "no node") || strings.Contains(msg, "not found") || strings.Contains(msg, "could not find"):
		return ReasonElementNotFound
	case action == "navigate" || strings.Contains(msg, "net::err_"):
		return ReasonNavigationError
	default:
		return ReasonEngineError
	}
}
