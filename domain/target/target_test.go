package target

import (
	"context"
	"errors"
	"testing"

	"portalpilot-go/domain/script"
	"portalpilot-go/domain/step"
)

func TestTarget_RequiresBindingSelection(t *testing.T) {
	tests := []struct {
		name     string
		target   *Target
		chosen   string
		expected bool
	}{
		{"no bindings", &Target{}, "", false},
		{"single binding", &Target{CredentialBindings: []string{"a"}}, "", false},
		{"multiple bindings none chosen", &Target{CredentialBindings: []string{"a", "b"}}, "", true},
		{"multiple bindings chosen", &Target{CredentialBindings: []string{"a", "b"}}, "b", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.target.RequiresBindingSelection(tt.chosen); got != tt.expected {
				t.Errorf("RequiresBindingSelection() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestTarget_DefaultBinding(t *testing.T) {
	if got := (&Target{CredentialBindings: []string{"only"}}).DefaultBinding(); got != "only" {
		t.Errorf("DefaultBinding() = %q, want only", got)
	}
	if got := (&Target{CredentialBindings: []string{"a", "b"}}).DefaultBinding(); got != "" {
		t.Errorf("DefaultBinding() = %q, want empty", got)
	}
}

func TestTarget_Clone(t *testing.T) {
	original := &Target{ID: "t", CredentialBindings: []string{"a"}}
	clone := original.Clone()
	clone.CredentialBindings[0] = "changed"

	if original.CredentialBindings[0] != "a" {
		t.Error("Clone() shares binding slice with original")
	}
}

type stubRepo struct {
	targets map[string]*Target
	scripts map[string]*script.Script
}

func newStubRepo(targets ...*Target) *stubRepo {
	r := &stubRepo{targets: map[string]*Target{}, scripts: map[string]*script.Script{}}
	for _, t := range targets {
		r.targets[t.ID] = t
	}
	return r
}

func (r *stubRepo) FindByID(_ context.Context, id string) (*Target, error) {
	return r.targets[id], nil
}

func (r *stubRepo) FindAll(_ context.Context) ([]*Target, error) {
	var out []*Target
	for _, t := range r.targets {
		out = append(out, t)
	}
	return out, nil
}

func (r *stubRepo) Upsert(_ context.Context, t *Target) error {
	r.targets[t.ID] = t
	return nil
}

func (r *stubRepo) SaveScript(_ context.Context, targetID string, kind script.Kind, steps []step.Step, savedBy string) error {
	r.scripts[targetID+"/"+string(kind)] = script.New(targetID, kind, steps, savedBy)
	return nil
}

func (r *stubRepo) FindScript(_ context.Context, targetID string, kind script.Kind) (*script.Script, error) {
	return r.scripts[targetID+"/"+string(kind)], nil
}

func TestService_GetTarget(t *testing.T) {
	svc := NewService(newStubRepo(&Target{ID: "viaverde_rpa"}))

	if _, err := svc.GetTarget(context.Background(), "viaverde_rpa"); err != nil {
		t.Fatalf("GetTarget() = %v", err)
	}
	if _, err := svc.GetTarget(context.Background(), "missing"); !errors.Is(err, ErrTargetNotFound) {
		t.Errorf("GetTarget(missing) = %v, want ErrTargetNotFound", err)
	}
}

func TestService_ListTargets_Sorted(t *testing.T) {
	svc := NewService(newStubRepo(&Target{ID: "c"}, &Target{ID: "a"}, &Target{ID: "b"}))

	targets, err := svc.ListTargets(context.Background())
	if err != nil {
		t.Fatalf("ListTargets() = %v", err)
	}
	for i, want := range []string{"a", "b", "c"} {
		if targets[i].ID != want {
			t.Errorf("targets[%d] = %s, want %s", i, targets[i].ID, want)
		}
	}
}

func TestService_SaveScript(t *testing.T) {
	repo := newStubRepo(&Target{ID: "viaverde_rpa"})
	svc := NewService(repo)
	ctx := context.Background()

	steps := []step.Step{
		{Order: 1, ActionType: step.ActionClick, Parameters: step.Parameters{X: 200, Y: 100}},
		{Order: 2, ActionType: step.ActionTypeText, Parameters: step.Parameters{Text: "user@example.com"}},
	}

	n, err := svc.SaveScript(ctx, "viaverde_rpa", script.KindLogin, steps, "op-1")
	if err != nil {
		t.Fatalf("SaveScript() = %v", err)
	}
	if n != 2 {
		t.Errorf("SaveScript() = %d, want 2", n)
	}

	steps[0].Parameters.X = 0
	saved, err := svc.GetScript(ctx, "viaverde_rpa", script.KindLogin)
	if err != nil {
		t.Fatalf("GetScript() = %v", err)
	}
	if saved.Steps[0].Parameters.X != 200 {
		t.Error("saved script shares steps with caller")
	}

	if _, err := svc.SaveScript(ctx, "viaverde_rpa", "other", steps, ""); err == nil {
		t.Error("expected error for unknown kind")
	}
	if _, err := svc.SaveScript(ctx, "viaverde_rpa", script.KindLogin, nil, ""); !errors.Is(err, ErrEmptyScript) {
		t.Errorf("SaveScript(nil) = %v, want ErrEmptyScript", err)
	}
	if _, err := svc.SaveScript(ctx, "missing", script.KindLogin, steps, ""); !errors.Is(err, ErrTargetNotFound) {
		t.Errorf("SaveScript(missing) = %v, want ErrTargetNotFound", err)
	}
	if _, err := svc.GetScript(ctx, "viaverde_rpa", script.KindExtraction); !errors.Is(err, ErrScriptNotFound) {
		t.Errorf("GetScript(extraction) = %v, want ErrScriptNotFound", err)
	}
}
