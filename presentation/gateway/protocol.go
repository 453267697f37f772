// Package gateway exposes session operations over two transports: an echo
// request/response API and a gorilla websocket push channel. Both are thin
// adapters over Service.
package gateway

import (
	"encoding/json"

	"portalpilot-go/application/session"
	"portalpilot-go/domain/step"
)

// Message types from client to server. The same names identify operations
// in the request/response API.
const (
	TypeStartSession         = "start_session"
	TypeExecuteAction        = "execute_action"
	TypeInsertCredential     = "insert_credential"
	TypeSetRecording         = "set_recording"
	TypeListSteps            = "list_steps"
	TypeClearSteps           = "clear_steps"
	TypeSaveSteps            = "save_steps"
	TypeReplay               = "replay"
	TypeCloseSession         = "close_session"
	TypeHasDraft             = "has_draft"
	TypeListCredentialFields = "list_credential_fields"
	TypeNavigate             = "navigate"
	TypeScreenshot           = "screenshot"
	TypeListSessions         = "list_sessions"
	TypeSubscribe            = "subscribe"
	TypeUnsubscribe          = "unsubscribe"
)

// Message types from server to client.
const (
	TypeResult              = "result"
	TypeError               = "error"
	TypeScreenshotUpdated   = "screenshot_updated"
	TypeStepRecorded        = "step_recorded"
	TypeRecordingToggled    = "recording_toggled"
	TypeStepsCleared        = "steps_cleared"
	TypeStepsSaved          = "steps_saved"
	TypeSessionStarted      = "session_started"
	TypeSessionStateChanged = "session_state_changed"
	TypeReplayStep          = "replay_step"
	TypeReplayFinished      = "replay_finished"
	TypeSessionClosed       = "session_closed"
)

// CodeRateLimited is returned on the push channel when a client exceeds its
// inbound command rate.
const CodeRateLimited = "rate_limited"

// Envelope is an inbound push-channel message. Payload holds the same JSON
// body the request/response API accepts for the operation.
type Envelope struct {
	Type      string          `json:"type"`
	RequestID string          `json:"request_id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// Reply answers one Envelope.
type Reply struct {
	Type      string     `json:"type"`
	RequestID string     `json:"request_id,omitempty"`
	Operation string     `json:"operation,omitempty"`
	Ts        int64      `json:"ts"`
	Data      any        `json:"data,omitempty"`
	Error     *ErrorBody `json:"error,omitempty"`
}

// PushMessage is an unsolicited event for one session.
type PushMessage struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
	Ts        int64  `json:"ts"`
	Data      any    `json:"data,omitempty"`
}

// ErrorBody describes a failed operation.
type ErrorBody struct {
	Code    string `json:"code"`
	Reason  string `json:"reason,omitempty"`
	Message string `json:"message"`
}

// SessionRef names a session.
type SessionRef struct {
	SessionID string `json:"session_id" param:"id"`
}

// StartSessionInput starts or attaches to the session of an operator and target.
type StartSessionInput struct {
	OperatorID        string `json:"operator_id"`
	TargetID          string `json:"target_id"`
	CredentialBinding string `json:"credential_binding,omitempty"`
	// AutoStart refuses to start when a draft exists or a credential
	// binding must be chosen first.
	AutoStart bool `json:"auto_start,omitempty"`
}

// StartSessionOutput reports either a started session or the unmet preconditions.
type StartSessionOutput struct {
	Started             bool   `json:"started"`
	SessionID           string `json:"session_id,omitempty"`
	Screenshot          []byte `json:"screenshot,omitempty"`
	URL                 string `json:"url,omitempty"`
	DraftStepsRecovered int    `json:"draft_steps_recovered"`
	Existing            bool   `json:"existing,omitempty"`
	ViewportWidth       int    `json:"viewport_width,omitempty"`
	ViewportHeight      int    `json:"viewport_height,omitempty"`

	DraftExists             bool     `json:"draft_exists,omitempty"`
	DraftSteps              int      `json:"draft_steps,omitempty"`
	RequiresTargetSelection bool     `json:"requires_target_selection,omitempty"`
	AvailableBindings       []string `json:"available_bindings,omitempty"`
}

// PreviewParameters are action parameters as sent by a client. Click
// coordinates are in the space of the client's preview image.
type PreviewParameters struct {
	X             float64 `json:"x,omitempty"`
	Y             float64 `json:"y,omitempty"`
	PreviewWidth  float64 `json:"preview_width,omitempty"`
	PreviewHeight float64 `json:"preview_height,omitempty"`
	Text          string  `json:"text,omitempty"`
	Key           string  `json:"key,omitempty"`
	Direction     string  `json:"direction,omitempty"`
	Seconds       float64 `json:"seconds,omitempty"`
}

// ExecuteActionInput drives the browser with one primitive action.
type ExecuteActionInput struct {
	SessionID  string            `json:"session_id" param:"id"`
	ActionType step.ActionType   `json:"action_type"`
	Parameters PreviewParameters `json:"parameters"`
}

// InsertCredentialInput types one credential field.
type InsertCredentialInput struct {
	SessionID string `json:"session_id" param:"id"`
	Field     string `json:"field"`
}

// SetRecordingInput arms or disarms recording.
type SetRecordingInput struct {
	SessionID string `json:"session_id" param:"id"`
	Armed     bool   `json:"armed"`
}

// SaveStepsInput saves the working sequence as a script.
type SaveStepsInput struct {
	SessionID string `json:"session_id" param:"id"`
	Kind      string `json:"kind"`
}

// NavigateInput loads a URL.
type NavigateInput struct {
	SessionID string `json:"session_id" param:"id"`
	URL       string `json:"url"`
}

// HasDraftInput names an operator and target.
type HasDraftInput struct {
	OperatorID string `json:"operator_id" query:"operator_id"`
	TargetID   string `json:"target_id" query:"target_id"`
}

// ActionOutput is the result of a browser-driving operation.
type ActionOutput struct {
	Screenshot   []byte     `json:"screenshot"`
	URL          string     `json:"url"`
	RecordedStep *step.Step `json:"recorded_step,omitempty"`
}

// Ack acknowledges an operation with no other result.
type Ack struct {
	OK bool `json:"ok"`
}

// StepsOutput lists the working sequence.
type StepsOutput struct {
	Steps []step.Step `json:"steps"`
}

// SaveStepsOutput reports how many steps were saved.
type SaveStepsOutput struct {
	StepsSavedCount int `json:"steps_saved_count"`
}

// ReplayOutput is a replay result plus its summary.
type ReplayOutput struct {
	*session.ReplayResult
	Summary       string                `json:"summary"`
	FirstFailures []session.StepOutcome `json:"first_failures,omitempty"`
}

// HasDraftOutput reports whether a draft exists.
type HasDraftOutput struct {
	HasDraft   bool `json:"has_draft"`
	DraftSteps int  `json:"draft_steps"`
}

// FieldsOutput lists credential field names.
type FieldsOutput struct {
	Fields []string `json:"fields"`
}

// SessionsOutput lists live sessions.
type SessionsOutput struct {
	Sessions []session.Info `json:"sessions"`
}
