// Package apperr defines the error kinds surfaced to clients of a session.
package apperr

import "errors"

// Error kinds. Wrap them with fmt.Errorf("...: %w", ErrX) and test with errors.Is.
var (
	ErrSessionNotFound    = errors.New("session not found")
	ErrSessionBusy        = errors.New("session busy")
	ErrActionFailed       = errors.New("action failed")
	ErrCredentialNotFound = errors.New("credential not found")
	ErrInvalidAction      = errors.New("invalid action")
)

// Wire codes for each kind.
const (
	CodeSessionNotFound    = "session_not_found"
	CodeSessionBusy        = "session_busy"
	CodeActionFailed       = "action_failed"
	CodeCredentialNotFound = "credential_not_found"
	CodeInvalidAction      = "invalid_action"
	CodeInternal           = "internal"
)

// Reasoned is implemented by errors that carry a sub-reason, such as a browser
// action that timed out.
type Reasoned interface {
	error
	FailureReason() string
}

// Code returns the wire code for err.
func Code(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrSessionNotFound):
		return CodeSessionNotFound
	case errors.Is(err, ErrSessionBusy):
		return CodeSessionBusy
	case errors.Is(err, ErrActionFailed):
		return CodeActionFailed
	case errors.Is(err, ErrCredentialNotFound):
		return CodeCredentialNotFound
	case errors.Is(err, ErrInvalidAction):
		return CodeInvalidAction
	default:
		return CodeInternal
	}
}

// Reason returns the sub-reason carried by err, or "".
func Reason(err error) string {
	var r Reasoned
	if errors.As(err, &r) {
		return r.FailureReason()
	}
	return ""
}
