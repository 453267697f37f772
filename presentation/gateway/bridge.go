package gateway

import (
	"log/slog"
	"time"

	"portalpilot-go/core/apperr"
	"portalpilot-go/core/event"
	"portalpilot-go/core/eventbus"
	"portalpilot-go/core/state"
	"portalpilot-go/domain/step"
)

// Push payloads.
type (
	ScreenshotPush struct {
		Screenshot []byte `json:"screenshot"`
		URL        string `json:"url"`
	}

	StepPush struct {
		Step step.Step `json:"step"`
	}

	RecordingPush struct {
		Armed bool `json:"armed"`
	}

	StepsSavedPush struct {
		Kind  string `json:"kind"`
		Count int    `json:"count"`
	}

	SessionStartedPush struct {
		OperatorID          string `json:"operator_id"`
		TargetID            string `json:"target_id"`
		URL                 string `json:"url"`
		DraftStepsRecovered int    `json:"draft_steps_recovered"`
	}

	StateChangedPush struct {
		OldState state.SessionState `json:"old_state"`
		NewState state.SessionState `json:"new_state"`
	}

	ReplayStepPush struct {
		Order      int             `json:"order"`
		Total      int             `json:"total"`
		ActionType step.ActionType `json:"action_type"`
		OK         bool            `json:"ok"`
		Reason     string          `json:"reason,omitempty"`
		URL        string          `json:"url,omitempty"`
	}

	ReplayFinishedPush struct {
		Total     int    `json:"total"`
		Succeeded int    `json:"succeeded"`
		Failed    int    `json:"failed"`
		Summary   string `json:"summary"`
	}

	OperationFailedPush struct {
		Operation string     `json:"operation"`
		Error     *ErrorBody `json:"error"`
	}

	SessionClosedPush struct {
		Reason string `json:"reason"`
	}
)

// EventBridge routes session events from the event bus to push-channel
// subscribers.
type EventBridge struct {
	eventBus eventbus.EventBus
	logger   *slog.Logger
	now      func() time.Time
}

// NewEventBridge creates a bridge over bus.
func NewEventBridge(bus eventbus.EventBus, logger *slog.Logger) *EventBridge {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventBridge{eventBus: bus, logger: logger, now: time.Now}
}

// Attach delivers the push messages of one session to deliver until the
// returned detach func is called. deliver runs on the event bus dispatch
// goroutine and must not block.
func (b *EventBridge) Attach(sessionID string, deliver func(PushMessage)) (detach func()) {
	if b == nil || b.eventBus == nil {
		return func() {}
	}
	id := b.eventBus.SubscribeSession(sessionID, func(e event.Event) {
		if msg, ok := b.translate(e); ok {
			deliver(msg)
		}
	})
	return func() { b.eventBus.Unsubscribe(id) }
}

// translate converts an event into its push message. Events without a push
// form report false.
func (b *EventBridge) translate(e event.Event) (PushMessage, bool) {
	se, ok := e.(event.SessionEvent)
	if !ok {
		return PushMessage{}, false
	}
	msg := PushMessage{SessionID: se.SessionID(), Ts: b.now().UnixMilli()}

	switch evt := e.(type) {
	case *event.ScreenshotUpdated:
		msg.Type = TypeScreenshotUpdated
		msg.Data = ScreenshotPush{Screenshot: evt.PNG, URL: evt.URL}

	case *event.StepRecorded:
		msg.Type = TypeStepRecorded
		msg.Data = StepPush{Step: evt.Step}

	case *event.RecordingToggled:
		msg.Type = TypeRecordingToggled
		msg.Data = RecordingPush{Armed: evt.Armed}

	case *event.StepsCleared:
		msg.Type = TypeStepsCleared

	case *event.StepsSaved:
		msg.Type = TypeStepsSaved
		msg.Data = StepsSavedPush{Kind: evt.Kind, Count: evt.Count}

	case *event.SessionStarted:
		msg.Type = TypeSessionStarted
		msg.Data = SessionStartedPush{
			OperatorID:          evt.OperatorID,
			TargetID:            evt.TargetID,
			URL:                 evt.URL,
			DraftStepsRecovered: evt.DraftStepsRecovered,
		}

	case *event.SessionStateChanged:
		msg.Type = TypeSessionStateChanged
		msg.Data = StateChangedPush{OldState: evt.OldState, NewState: evt.NewState}

	case *event.ReplayStepCompleted:
		msg.Type = TypeReplayStep
		msg.Data = ReplayStepPush{
			Order:      evt.Order,
			Total:      evt.Total,
			ActionType: evt.ActionType,
			OK:         evt.OK,
			Reason:     evt.Reason,
			URL:        evt.URL,
		}

	case *event.ReplayFinished:
		msg.Type = TypeReplayFinished
		msg.Data = ReplayFinishedPush{
			Total:     evt.Total,
			Succeeded: evt.Succeeded,
			Failed:    evt.Failed,
			Summary:   evt.Summary(),
		}

	case *event.SessionClosed:
		msg.Type = TypeSessionClosed
		msg.Data = SessionClosedPush{Reason: evt.Reason}

	case *event.OperationFailed:
		msg.Type = TypeError
		body := errorBody(evt.Error)
		msg.Data = OperationFailedPush{Operation: evt.Operation, Error: body}
		if body.Code == apperr.CodeInternal {
			b.logger.Warn("Operation failed", "session_id", msg.SessionID, "operation", evt.Operation, "error", evt.Error)
		}

	default:
		return PushMessage{}, false
	}
	return msg, true
}
