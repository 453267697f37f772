package gateway

import (
	"context"
	"fmt"
	"log/slog"

	"portalpilot-go/application"
	"portalpilot-go/application/session"
	"portalpilot-go/core/apperr"
	"portalpilot-go/core/command"
	"portalpilot-go/core/viewport"
	"portalpilot-go/domain/step"
	"portalpilot-go/infrastructure/logging"
)

// firstFailuresShown bounds the failure reasons attached to a replay reply.
const firstFailuresShown = 3

// Service implements every gateway operation once. The HTTP and websocket
// transports only decode input and encode output around it.
type Service struct {
	registry *application.Registry
	targets  application.TargetLookup
	logger   *slog.Logger
}

// NewService creates a gateway service.
func NewService(registry *application.Registry, targets application.TargetLookup, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{registry: registry, targets: targets, logger: logger}
}

// StartSession starts the session for an operator and target, or returns the
// live one. With AutoStart it refuses when a draft exists or a credential
// binding has to be chosen, and reports why.
func (s *Service) StartSession(ctx context.Context, in StartSessionInput) (*StartSessionOutput, error) {
	if in.OperatorID == "" || in.TargetID == "" {
		return nil, fmt.Errorf("%w: operator_id and target_id are required", apperr.ErrInvalidAction)
	}

	if _, live := s.registry.Lookup(in.OperatorID, in.TargetID); in.AutoStart && !live {
		out, err := s.preconditions(ctx, in)
		if err != nil || out != nil {
			return out, err
		}
	}

	res, err := s.registry.Start(ctx, &command.StartSession{
		OperatorID:        in.OperatorID,
		TargetID:          in.TargetID,
		CredentialBinding: in.CredentialBinding,
	})
	if err != nil {
		return nil, err
	}

	vp := res.Session.Viewport()
	logging.From(ctx).Info("Session ready",
		"session_id", res.Session.ID(), "existing", res.Existing, "draft_steps_recovered", res.DraftStepsRecovered)
	return &StartSessionOutput{
		Started:             true,
		SessionID:           res.Session.ID(),
		Screenshot:          res.Screenshot,
		URL:                 res.URL,
		DraftStepsRecovered: res.DraftStepsRecovered,
		Existing:            res.Existing,
		ViewportWidth:       vp.Width,
		ViewportHeight:      vp.Height,
	}, nil
}

// preconditions returns a not-started output when auto start must not proceed.
func (s *Service) preconditions(ctx context.Context, in StartSessionInput) (*StartSessionOutput, error) {
	tgt, err := s.targets.GetTarget(ctx, in.TargetID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrInvalidAction, err)
	}
	hasDraft, draftSteps, err := s.registry.HasDraft(ctx, in.OperatorID, in.TargetID)
	if err != nil {
		return nil, err
	}
	needsBinding := tgt.RequiresBindingSelection(in.CredentialBinding)
	if !hasDraft && !needsBinding {
		return nil, nil
	}

	out := &StartSessionOutput{
		DraftExists:             hasDraft,
		DraftSteps:              draftSteps,
		RequiresTargetSelection: needsBinding,
	}
	if needsBinding {
		out.AvailableBindings = append([]string(nil), tgt.CredentialBindings...)
	}
	return out, nil
}

// ExecuteAction maps preview coordinates to the viewport and performs the action.
func (s *Service) ExecuteAction(ctx context.Context, in ExecuteActionInput) (*ActionOutput, error) {
	sess, err := s.registry.Get(in.SessionID)
	if err != nil {
		return nil, err
	}
	action, err := toAction(in, sess.Viewport())
	if err != nil {
		return nil, err
	}
	res, err := sess.Execute(ctx, action)
	if err != nil {
		return nil, err
	}
	return actionOutput(res), nil
}

// toAction converts client parameters into a viewport-space action.
func toAction(in ExecuteActionInput, vp viewport.Size) (step.Action, error) {
	p := in.Parameters
	switch in.ActionType {
	case step.ActionClick:
		if p.PreviewWidth <= 0 || p.PreviewHeight <= 0 {
			return step.Action{}, fmt.Errorf("%w: click requires preview_width and preview_height", apperr.ErrInvalidAction)
		}
		if p.X < 0 || p.Y < 0 || p.X > p.PreviewWidth || p.Y > p.PreviewHeight {
			return step.Action{}, fmt.Errorf("%w: click (%g,%g) is outside the %gx%g preview",
				apperr.ErrInvalidAction, p.X, p.Y, p.PreviewWidth, p.PreviewHeight)
		}
		pt := viewport.MapTo(p.X, p.Y, p.PreviewWidth, p.PreviewHeight, vp)
		return step.NewClick(pt.X, pt.Y), nil
	case step.ActionTypeText:
		return step.NewTypeText(p.Text), nil
	case step.ActionKeyPress:
		return step.NewKeyPress(p.Key), nil
	case step.ActionScroll:
		return step.NewScroll(p.Direction), nil
	case step.ActionWait:
		return step.NewWait(p.Seconds), nil
	case step.ActionInsertCredential:
		return step.Action{}, fmt.Errorf("%w: use insert_credential to type credentials", apperr.ErrInvalidAction)
	default:
		return step.Action{}, fmt.Errorf("%w: unknown action_type %q", apperr.ErrInvalidAction, in.ActionType)
	}
}

// InsertCredential types one credential field into the focused element.
func (s *Service) InsertCredential(ctx context.Context, in InsertCredentialInput) (*ActionOutput, error) {
	sess, err := s.registry.Get(in.SessionID)
	if err != nil {
		return nil, err
	}
	res, err := sess.InsertCredential(ctx, in.Field)
	if err != nil {
		return nil, err
	}
	return actionOutput(res), nil
}

// SetRecording arms or disarms recording.
func (s *Service) SetRecording(ctx context.Context, in SetRecordingInput) (*Ack, error) {
	sess, err := s.registry.Get(in.SessionID)
	if err != nil {
		return nil, err
	}
	if err := sess.SetRecording(ctx, in.Armed); err != nil {
		return nil, err
	}
	return &Ack{OK: true}, nil
}

// ListSteps returns the working sequence.
func (s *Service) ListSteps(ctx context.Context, in SessionRef) (*StepsOutput, error) {
	sess, err := s.registry.Get(in.SessionID)
	if err != nil {
		return nil, err
	}
	steps, err := sess.ListSteps()
	if err != nil {
		return nil, err
	}
	return &StepsOutput{Steps: steps}, nil
}

// ClearSteps empties the working sequence.
func (s *Service) ClearSteps(ctx context.Context, in SessionRef) (*Ack, error) {
	sess, err := s.registry.Get(in.SessionID)
	if err != nil {
		return nil, err
	}
	if err := sess.ClearSteps(ctx); err != nil {
		return nil, err
	}
	return &Ack{OK: true}, nil
}

// SaveSteps saves the working sequence as a login or extraction script.
func (s *Service) SaveSteps(ctx context.Context, in SaveStepsInput) (*SaveStepsOutput, error) {
	sess, err := s.registry.Get(in.SessionID)
	if err != nil {
		return nil, err
	}
	n, err := sess.SaveSteps(ctx, in.Kind)
	if err != nil {
		return nil, err
	}
	return &SaveStepsOutput{StepsSavedCount: n}, nil
}

// Replay re-executes the working sequence.
func (s *Service) Replay(ctx context.Context, in SessionRef) (*ReplayOutput, error) {
	sess, err := s.registry.Get(in.SessionID)
	if err != nil {
		return nil, err
	}
	result, err := sess.Replay(ctx)
	if err != nil {
		return nil, err
	}
	logging.From(ctx).Info("Replay completed", "session_id", in.SessionID, "summary", result.Summary())
	return &ReplayOutput{
		ReplayResult:  result,
		Summary:       result.Summary(),
		FirstFailures: result.FirstFailures(firstFailuresShown),
	}, nil
}

// CloseSession closes a session and releases its browser.
func (s *Service) CloseSession(ctx context.Context, in SessionRef) (*Ack, error) {
	if err := s.registry.Dispatch(command.NewCloseSession(in.SessionID, "operator")); err != nil {
		return nil, err
	}
	return &Ack{OK: true}, nil
}

// HasDraft reports whether a recoverable draft exists for an operator and target.
func (s *Service) HasDraft(ctx context.Context, in HasDraftInput) (*HasDraftOutput, error) {
	if in.OperatorID == "" || in.TargetID == "" {
		return nil, fmt.Errorf("%w: operator_id and target_id are required", apperr.ErrInvalidAction)
	}
	has, n, err := s.registry.HasDraft(ctx, in.OperatorID, in.TargetID)
	if err != nil {
		return nil, err
	}
	return &HasDraftOutput{HasDraft: has, DraftSteps: n}, nil
}

// ListCredentialFields lists the credential fields available to a session.
func (s *Service) ListCredentialFields(ctx context.Context, in SessionRef) (*FieldsOutput, error) {
	sess, err := s.registry.Get(in.SessionID)
	if err != nil {
		return nil, err
	}
	fields, err := sess.CredentialFields(ctx)
	if err != nil {
		return nil, err
	}
	return &FieldsOutput{Fields: fields}, nil
}

// Navigate loads a URL in the session's browser. Navigation is not recorded.
func (s *Service) Navigate(ctx context.Context, in NavigateInput) (*ActionOutput, error) {
	sess, err := s.registry.Get(in.SessionID)
	if err != nil {
		return nil, err
	}
	res, err := sess.Navigate(ctx, in.URL)
	if err != nil {
		return nil, err
	}
	return actionOutput(res), nil
}

// Screenshot returns the current screenshot and URL.
func (s *Service) Screenshot(ctx context.Context, in SessionRef) (*ActionOutput, error) {
	sess, err := s.registry.Get(in.SessionID)
	if err != nil {
		return nil, err
	}
	res, err := sess.Screenshot(ctx)
	if err != nil {
		return nil, err
	}
	return actionOutput(res), nil
}

// ListSessions lists every live session.
func (s *Service) ListSessions(ctx context.Context) (*SessionsOutput, error) {
	return &SessionsOutput{Sessions: s.registry.List()}, nil
}

// Session returns a live session by id.
func (s *Service) Session(id string) (*session.Session, error) {
	return s.registry.Get(id)
}

func actionOutput(res *session.ActionResult) *ActionOutput {
	return &ActionOutput{Screenshot: res.Screenshot, URL: res.URL, RecordedStep: res.RecordedStep}
}
