package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"portalpilot-go/domain/draft"
	"portalpilot-go/domain/step"
)

// Recorder keeps the ordered, append-only working sequence of a session and
// autosaves it as a draft keyed by operator and target.
type Recorder struct {
	mu     sync.Mutex
	armed  bool
	steps  []step.Step
	drafts draft.Store
	key    draft.Key
	logger *slog.Logger
	now    func() time.Time
}

// NewRecorder creates a disarmed recorder. drafts may be nil.
func NewRecorder(key draft.Key, drafts draft.Store, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{
		drafts: drafts,
		key:    key,
		logger: logger,
		now:    time.Now,
	}
}

// Arm enables recording.
func (r *Recorder) Arm() {
	r.mu.Lock()
	r.armed = true
	r.mu.Unlock()
}

// Disarm disables recording. Recorded steps are kept.
func (r *Recorder) Disarm() {
	r.mu.Lock()
	r.armed = false
	r.mu.Unlock()
}

// Armed reports whether executed actions are recorded.
func (r *Recorder) Armed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.armed
}

// Record appends action as the next step and autosaves the draft.
// It returns nil when the recorder is disarmed. An empty description is
// generated from the action.
func (r *Recorder) Record(ctx context.Context, action step.Action, description string) *step.Step {
	r.mu.Lock()
	if !r.armed {
		r.mu.Unlock()
		return nil
	}

	action = action.Normalized()
	if description == "" {
		description = action.Describe()
	}
	s := step.Step{
		Order:       len(r.steps) + 1,
		ActionType:  action.Type,
		Parameters:  action.Params,
		Description: description,
		RecordedAt:  r.now().UTC(),
	}
	r.steps = append(r.steps, s)
	snapshot := step.Clone(r.steps)
	r.mu.Unlock()

	r.save(ctx, snapshot)
	return &s
}

// List returns a copy of the working sequence in order.
func (r *Recorder) List() []step.Step {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := step.Clone(r.steps)
	if out == nil {
		out = []step.Step{}
	}
	return out
}

// Len returns the number of recorded steps.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.steps)
}

// Clear empties the working sequence and removes the draft.
func (r *Recorder) Clear(ctx context.Context) {
	r.mu.Lock()
	r.steps = nil
	r.mu.Unlock()

	if err := r.DiscardDraft(ctx); err != nil {
		r.logger.Warn("Failed to delete draft", "draft", r.key.String(), "error", err)
	}
}

// PersistDraft writes the current sequence to the draft store.
func (r *Recorder) PersistDraft(ctx context.Context) error {
	if r.drafts == nil {
		return nil
	}
	return r.drafts.Save(ctx, r.key, r.List())
}

// LoadDraft restores the working sequence from a stored draft and returns the
// number of recovered steps. Orders are renumbered 1..n if the stored draft
// is not contiguous.
func (r *Recorder) LoadDraft(ctx context.Context) (int, error) {
	if r.drafts == nil {
		return 0, nil
	}
	d, err := r.drafts.Load(ctx, r.key)
	if err != nil {
		return 0, err
	}
	if d == nil || len(d.Steps) == 0 {
		return 0, nil
	}

	steps := step.Clone(d.Steps)
	if !step.Contiguous(steps) {
		r.logger.Warn("Draft step orders not contiguous, renumbering", "draft", r.key.String())
		for i := range steps {
			steps[i].Order = i + 1
		}
	}

	r.mu.Lock()
	r.steps = steps
	r.mu.Unlock()
	return len(steps), nil
}

// DiscardDraft removes the stored draft. In-memory steps are untouched.
func (r *Recorder) DiscardDraft(ctx context.Context) error {
	if r.drafts == nil {
		return nil
	}
	return r.drafts.Delete(ctx, r.key)
}

func (r *Recorder) save(ctx context.Context, steps []step.Step) {
	if r.drafts == nil {
		return
	}
	if err := r.drafts.Save(ctx, r.key, steps); err != nil {
		r.logger.Warn("Draft autosave failed", "draft", r.key.String(), "steps", len(steps), "error", err)
	}
}
