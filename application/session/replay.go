package session

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"portalpilot-go/core/apperr"
	"portalpilot-go/core/event"
	"portalpilot-go/core/eventbus"
	"portalpilot-go/domain/credential"
	"portalpilot-go/domain/step"
	"portalpilot-go/infrastructure/metrics"
)

// Outcome of one replayed step.
type Outcome string

const (
	OutcomeOK     Outcome = "ok"
	OutcomeFailed Outcome = "failed"
)

// StepOutcome is the result of replaying one step.
type StepOutcome struct {
	Order        int             `json:"order"`
	ActionType   step.ActionType `json:"action_type"`
	Description  string          `json:"description"`
	Outcome      Outcome         `json:"outcome"`
	Reason       string          `json:"reason,omitempty"`
	Error        string          `json:"error,omitempty"`
	URL          string          `json:"url,omitempty"`
	Screenshot   []byte          `json:"screenshot,omitempty"`
	SnapshotPath string          `json:"snapshot_path,omitempty"`
}

// ReplayResult is produced fresh by every replay and is read-only afterwards.
type ReplayResult struct {
	TotalSteps      int           `json:"total_steps"`
	StepsSucceeded  int           `json:"steps_succeeded"`
	StepsFailed     int           `json:"steps_failed"`
	PerStepOutcomes []StepOutcome `json:"per_step_outcomes"`
	FinalScreenshot []byte        `json:"final_screenshot,omitempty"`
	FinalURL        string        `json:"final_url"`
	StartedAt       time.Time     `json:"started_at"`
	FinishedAt      time.Time     `json:"finished_at"`
}

// Summary returns "N/total steps succeeded".
func (r *ReplayResult) Summary() string {
	return fmt.Sprintf("%d/%d steps succeeded", r.StepsSucceeded, r.TotalSteps)
}

// FirstFailures returns up to n failed outcomes in step order.
func (r *ReplayResult) FirstFailures(n int) []StepOutcome {
	var out []StepOutcome
	for _, o := range r.PerStepOutcomes {
		if len(out) == n {
			break
		}
		if o.Outcome == OutcomeFailed {
			out = append(out, o)
		}
	}
	return out
}

// ReplayEngine re-executes a step sequence against a browser controller.
type ReplayEngine struct {
	sessionID string
	ctrl      *BrowserController
	vault     credential.Vault
	binding   string
	eventBus  eventbus.EventBus
	snapshots *ScreenCapture
	onFrame   func(Frame)
	logger    *slog.Logger
}

// ReplayConfig holds the collaborators of a ReplayEngine.
type ReplayConfig struct {
	SessionID         string
	Controller        *BrowserController
	Vault             credential.Vault
	CredentialBinding string
	EventBus          eventbus.EventBus
	Snapshots         *ScreenCapture
	OnFrame           func(Frame) // optional, called with the frame captured after each step
	Logger            *slog.Logger
}

// NewReplayEngine creates a replay engine.
func NewReplayEngine(cfg ReplayConfig) *ReplayEngine {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &ReplayEngine{
		sessionID: cfg.SessionID,
		ctrl:      cfg.Controller,
		vault:     cfg.Vault,
		binding:   cfg.CredentialBinding,
		eventBus:  cfg.EventBus,
		snapshots: cfg.Snapshots,
		onFrame:   cfg.OnFrame,
		logger:    cfg.Logger,
	}
}

// Run replays steps strictly in order. A failed step is recorded and the
// next step still runs. steps is never modified.
func (e *ReplayEngine) Run(ctx context.Context, steps []step.Step) *ReplayResult {
	steps = step.Clone(steps)
	result := &ReplayResult{
		TotalSteps:      len(steps),
		PerStepOutcomes: make([]StepOutcome, 0, len(steps)),
		StartedAt:       time.Now().UTC(),
	}

	e.logger.Info("Replay started", "steps", len(steps))

	var last Frame
	for _, s := range steps {
		outcome := e.runStep(ctx, s, len(steps))
		if outcome.Outcome == OutcomeOK {
			result.StepsSucceeded++
		} else {
			result.StepsFailed++
		}
		if len(outcome.Screenshot) > 0 {
			last = Frame{PNG: outcome.Screenshot, URL: outcome.URL}
		}
		result.PerStepOutcomes = append(result.PerStepOutcomes, outcome)
	}

	if frame, err := e.ctrl.Snapshot(ctx); err == nil {
		last = frame
	} else {
		e.logger.Warn("Final snapshot failed", "error", err)
	}
	result.FinalScreenshot = last.PNG
	result.FinalURL = last.URL
	result.FinishedAt = time.Now().UTC()

	metrics.ReplayFinished()
	e.logger.Info("Replay finished", "summary", result.Summary())
	return result
}

func (e *ReplayEngine) runStep(ctx context.Context, s step.Step, total int) StepOutcome {
	outcome := StepOutcome{
		Order:       s.Order,
		ActionType:  s.ActionType,
		Description: s.Description,
	}

	err := e.perform(ctx, s.Action())
	metrics.ReplayStep(err)

	frame, snapErr := e.ctrl.Snapshot(ctx)
	if snapErr == nil {
		outcome.Screenshot = frame.PNG
		outcome.URL = frame.URL
		if e.onFrame != nil {
			e.onFrame(frame)
		}
	}

	if err != nil {
		outcome.Outcome = OutcomeFailed
		outcome.Reason = failureReason(err)
		outcome.Error = err.Error()
		if path, saveErr := e.snapshots.Save(frame.PNG, fmt.Sprintf("replay-step-%d", s.Order)); saveErr != nil {
			e.logger.Warn("Failed to save replay snapshot", "order", s.Order, "error", saveErr)
		} else {
			outcome.SnapshotPath = path
		}
		e.logger.Warn("Replay step failed", "order", s.Order, "action", s.ActionType, "reason", outcome.Reason, "error", err)
	} else {
		outcome.Outcome = OutcomeOK
		e.logger.Debug("Replay step succeeded", "order", s.Order, "action", s.ActionType)
	}

	if e.eventBus != nil {
		e.eventBus.Publish(event.NewReplayStepCompleted(
			e.sessionID, s.Order, total, s.ActionType, err == nil, outcome.Reason, outcome.URL))
	}
	return outcome
}

func (e *ReplayEngine) perform(ctx context.Context, action step.Action) error {
	if err := action.Validate(); err != nil {
		return err
	}
	if action.Type != step.ActionInsertCredential {
		return e.ctrl.Do(ctx, action)
	}

	value, err := resolveCredential(ctx, e.vault, e.binding, action.Params.Field)
	if err != nil {
		return err
	}
	return e.ctrl.TypeSecret(ctx, value)
}

// resolveCredential fetches one decrypted field value.
func resolveCredential(ctx context.Context, vault credential.Vault, binding, field string) (string, error) {
	if vault == nil || binding == "" {
		return "", credential.NotFound(binding, field)
	}
	return vault.GetFieldValue(ctx, binding, field)
}

// failureReason returns the sub-reason of err, falling back to its wire code.
func failureReason(err error) string {
	if r := apperr.Reason(err); r != "" {
		return r
	}
	return apperr.Code(err)
}
