// Package event defines all events that can be published by the application.
// Events represent state changes and are consumed by the push channel.
package event

import "portalpilot-go/core/state"

// Event is the base interface for all events.
// Events are published by the application layer and consumed by subscribers.
type Event interface {
	// EventName returns the name of the event for logging/debugging
	EventName() string
}

// SessionEvent is an event that originates from a specific session.
type SessionEvent interface {
	Event
	// SessionID returns the source session ID
	SessionID() string
}

// baseSessionEvent provides common implementation for session events.
type baseSessionEvent struct {
	sessionID string
}

func (e *baseSessionEvent) SessionID() string {
	return e.sessionID
}

// SessionStarted is published when a session reaches the active state.
type SessionStarted struct {
	baseSessionEvent
	OperatorID          string
	TargetID            string
	URL                 string
	DraftStepsRecovered int
}

func NewSessionStarted(sessionID, operatorID, targetID, url string, recovered int) *SessionStarted {
	return &SessionStarted{
		baseSessionEvent:    baseSessionEvent{sessionID: sessionID},
		OperatorID:          operatorID,
		TargetID:            targetID,
		URL:                 url,
		DraftStepsRecovered: recovered,
	}
}

func (e *SessionStarted) EventName() string {
	return "SessionStarted"
}

// SessionClosed is published once a session reaches the closed state.
type SessionClosed struct {
	baseSessionEvent
	Reason string
	Error  error // close error, logged but never blocking
}

func NewSessionClosed(sessionID, reason string, err error) *SessionClosed {
	return &SessionClosed{
		baseSessionEvent: baseSessionEvent{sessionID: sessionID},
		Reason:           reason,
		Error:            err,
	}
}

func (e *SessionClosed) EventName() string {
	return "SessionClosed"
}

// SessionStateChanged is published when a session's state changes.
type SessionStateChanged struct {
	baseSessionEvent
	OldState state.SessionState
	NewState state.SessionState
}

func NewSessionStateChanged(sessionID string, oldState, newState state.SessionState) *SessionStateChanged {
	return &SessionStateChanged{
		baseSessionEvent: baseSessionEvent{sessionID: sessionID},
		OldState:         oldState,
		NewState:         newState,
	}
}

func (e *SessionStateChanged) EventName() string {
	return "SessionStateChanged"
}
