package event

import (
	"fmt"

	"portalpilot-go/domain/step"
)

// StepRecorded is published when an armed session records a step.
type StepRecorded struct {
	baseSessionEvent
	Step step.Step
}

func NewStepRecorded(sessionID string, s step.Step) *StepRecorded {
	return &StepRecorded{
		baseSessionEvent: baseSessionEvent{sessionID: sessionID},
		Step:             s,
	}
}

func (e *StepRecorded) EventName() string {
	return "StepRecorded"
}

// RecordingToggled is published when recording is armed or disarmed.
type RecordingToggled struct {
	baseSessionEvent
	Armed bool
}

func NewRecordingToggled(sessionID string, armed bool) *RecordingToggled {
	return &RecordingToggled{
		baseSessionEvent: baseSessionEvent{sessionID: sessionID},
		Armed:            armed,
	}
}

func (e *RecordingToggled) EventName() string {
	return "RecordingToggled"
}

// StepsCleared is published when the working sequence is cleared.
type StepsCleared struct {
	baseSessionEvent
}

func NewStepsCleared(sessionID string) *StepsCleared {
	return &StepsCleared{baseSessionEvent: baseSessionEvent{sessionID: sessionID}}
}

func (e *StepsCleared) EventName() string {
	return "StepsCleared"
}

// StepsSaved is published when the working sequence is saved as a script.
type StepsSaved struct {
	baseSessionEvent
	Kind  string
	Count int
}

func NewStepsSaved(sessionID, kind string, count int) *StepsSaved {
	return &StepsSaved{
		baseSessionEvent: baseSessionEvent{sessionID: sessionID},
		Kind:             kind,
		Count:            count,
	}
}

func (e *StepsSaved) EventName() string {
	return "StepsSaved"
}

// ReplayStepCompleted is published after each replayed step.
type ReplayStepCompleted struct {
	baseSessionEvent
	Order      int
	Total      int
	ActionType step.ActionType
	OK         bool
	Reason     string // failure reason, empty when OK
	URL        string
}

func NewReplayStepCompleted(sessionID string, order, total int, actionType step.ActionType, ok bool, reason, url string) *ReplayStepCompleted {
	return &ReplayStepCompleted{
		baseSessionEvent: baseSessionEvent{sessionID: sessionID},
		Order:            order,
		Total:            total,
		ActionType:       actionType,
		OK:               ok,
		Reason:           reason,
		URL:              url,
	}
}

func (e *ReplayStepCompleted) EventName() string {
	return "ReplayStepCompleted"
}

// ReplayFinished is published when a replay completes.
type ReplayFinished struct {
	baseSessionEvent
	Total     int
	Succeeded int
	Failed    int
}

func NewReplayFinished(sessionID string, total, succeeded, failed int) *ReplayFinished {
	return &ReplayFinished{
		baseSessionEvent: baseSessionEvent{sessionID: sessionID},
		Total:            total,
		Succeeded:        succeeded,
		Failed:           failed,
	}
}

func (e *ReplayFinished) EventName() string {
	return "ReplayFinished"
}

// Summary returns "N/total steps succeeded".
func (e *ReplayFinished) Summary() string {
	return fmt.Sprintf("%d/%d steps succeeded", e.Succeeded, e.Total)
}
