// Package state defines the session state machine.
package state

import "fmt"

// SessionState represents the state of a session.
type SessionState int

const (
	// StateStarting indicates the browser is being launched and sent to the initial URL.
	StateStarting SessionState = iota
	// StateActive indicates the session accepts live commands without recording them.
	StateActive
	// StateRecording indicates live commands are accepted and recorded as steps.
	StateRecording
	// StateReplaying indicates the recorded steps are being re-executed.
	StateReplaying
	// StateClosing indicates the browser is being released.
	StateClosing
	// StateClosed indicates the session has been terminated.
	StateClosed
)

// String returns the wire name of the state.
func (s SessionState) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateActive:
		return "active"
	case StateRecording:
		return "recording"
	case StateReplaying:
		return "replaying"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// MarshalText encodes the state by name.
func (s SessionState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a state name written by MarshalText.
func (s *SessionState) UnmarshalText(text []byte) error {
	for st := StateStarting; st <= StateClosed; st++ {
		if st.String() == string(text) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown session state %q", text)
}

// validTransitions defines the allowed state transitions.
// Key is the current state, value is a list of valid target states.
var validTransitions = map[SessionState][]SessionState{
	StateStarting:  {StateActive, StateClosing},
	StateActive:    {StateRecording, StateReplaying, StateClosing},
	StateRecording: {StateActive, StateReplaying, StateClosing},
	StateReplaying: {StateActive, StateClosing},
	StateClosing:   {StateClosed},
	StateClosed:    {}, // Terminal state, no transitions allowed
}

// CanTransitionTo checks if transitioning from the current state to the target state is valid.
func (s SessionState) CanTransitionTo(target SessionState) bool {
	allowed, ok := validTransitions[s]
	if !ok {
		return false
	}
	for _, t := range allowed {
		if t == target {
			return true
		}
	}
	return false
}

// ValidTransitions returns the list of valid target states from the current state.
func (s SessionState) ValidTransitions() []SessionState {
	return validTransitions[s]
}

// IsTerminal returns true if the state is a terminal state (no further transitions).
func (s SessionState) IsTerminal() bool {
	return s == StateClosed
}

// IsShuttingDown returns true once a close has begun.
func (s SessionState) IsShuttingDown() bool {
	return s == StateClosing || s == StateClosed
}

// CanAcceptCommands returns true if live commands may run in this state.
// Active and Recording accept commands identically.
func (s SessionState) CanAcceptCommands() bool {
	return s == StateActive || s == StateRecording
}

// CanReplay returns true if a replay can be started in this state.
func (s SessionState) CanReplay() bool {
	return s == StateActive || s == StateRecording
}

// IsRecording returns true if executed commands are recorded.
func (s SessionState) IsRecording() bool {
	return s == StateRecording
}

// TransitionError represents an invalid state transition attempt.
type TransitionError struct {
	From   SessionState
	To     SessionState
	Reason string
}

func (e *TransitionError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("invalid state transition from %s to %s: %s", e.From, e.To, e.Reason)
	}
	return fmt.Sprintf("invalid state transition from %s to %s", e.From, e.To)
}

// NewTransitionError creates a new TransitionError.
func NewTransitionError(from, to SessionState, reason string) *TransitionError {
	return &TransitionError{From: from, To: to, Reason: reason}
}
