package event

import (
	"errors"
	"testing"

	"portalpilot-go/core/state"
	"portalpilot-go/domain/step"
)

func TestEvent_Names(t *testing.T) {
	tests := []struct {
		event    Event
		expected string
	}{
		{NewSessionStarted("s1", "op1", "t1", "https://example.com", 0), "SessionStarted"},
		{NewSessionClosed("s1", "idle", nil), "SessionClosed"},
		{NewSessionStateChanged("s1", state.StateStarting, state.StateActive), "SessionStateChanged"},
		{NewScreenshotUpdated("s1", nil, ""), "ScreenshotUpdated"},
		{NewOperationFailed("s1", "click", errors.New("test")), "OperationFailed"},
		{NewStepRecorded("s1", step.Step{Order: 1}), "StepRecorded"},
		{NewRecordingToggled("s1", true), "RecordingToggled"},
		{NewStepsCleared("s1"), "StepsCleared"},
		{NewStepsSaved("s1", "login", 2), "StepsSaved"},
		{NewReplayStepCompleted("s1", 1, 5, step.ActionClick, true, "", ""), "ReplayStepCompleted"},
		{NewReplayFinished("s1", 5, 4, 1), "ReplayFinished"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			if got := tt.event.EventName(); got != tt.expected {
				t.Errorf("EventName() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestSessionEvent_SessionID(t *testing.T) {
	tests := []struct {
		name     string
		event    SessionEvent
		expected string
	}{
		{"SessionStarted", NewSessionStarted("session-123", "op1", "t1", "", 2), "session-123"},
		{"SessionClosed", NewSessionClosed("session-456", "explicit", nil), "session-456"},
		{"SessionStateChanged", NewSessionStateChanged("session-789", state.StateActive, state.StateRecording), "session-789"},
		{"ScreenshotUpdated", NewScreenshotUpdated("session-abc", []byte{1}, "u"), "session-abc"},
		{"OperationFailed", NewOperationFailed("session-def", "click", nil), "session-def"},
		{"StepRecorded", NewStepRecorded("session-ghi", step.Step{}), "session-ghi"},
		{"RecordingToggled", NewRecordingToggled("session-jkl", false), "session-jkl"},
		{"StepsCleared", NewStepsCleared("session-mno"), "session-mno"},
		{"ReplayFinished", NewReplayFinished("session-pqr", 0, 0, 0), "session-pqr"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.event.SessionID(); got != tt.expected {
				t.Errorf("SessionID() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestReplayFinished_Summary(t *testing.T) {
	e := NewReplayFinished("s1", 5, 4, 1)
	if got := e.Summary(); got != "4/5 steps succeeded" {
		t.Errorf("Summary() = %q", got)
	}
}
