package target

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"portalpilot-go/domain/script"
	"portalpilot-go/domain/step"
)

// Common errors for target operations.
var (
	ErrTargetNotFound = errors.New("target not found")
	ErrScriptNotFound = errors.New("script not found")
	ErrEmptyScript    = errors.New("no steps to save")
)

// Service provides business logic for target configuration.
type Service struct {
	repo Repository
}

// NewService creates a new target service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// GetTarget retrieves a target by ID.
func (s *Service) GetTarget(ctx context.Context, id string) (*Target, error) {
	t, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, fmt.Errorf("%w: %s", ErrTargetNotFound, id)
	}
	return t, nil
}

// ListTargets retrieves all targets sorted by ID.
func (s *Service) ListTargets(ctx context.Context) ([]*Target, error) {
	targets, err := s.repo.FindAll(ctx)
	if err != nil {
		return nil, err
	}
	sort.Slice(targets, func(i, j int) bool {
		return targets[i].ID < targets[j].ID
	})
	return targets, nil
}

// SaveTarget creates or replaces a target.
func (s *Service) SaveTarget(ctx context.Context, t *Target) error {
	if t.ID == "" {
		return errors.New("target id is required")
	}
	return s.repo.Upsert(ctx, t)
}

// SaveScript copies steps out to the target's script of the given kind.
func (s *Service) SaveScript(ctx context.Context, targetID string, kind script.Kind, steps []step.Step, savedBy string) (int, error) {
	if _, err := script.ParseKind(string(kind)); err != nil {
		return 0, err
	}
	if len(steps) == 0 {
		return 0, ErrEmptyScript
	}
	if _, err := s.GetTarget(ctx, targetID); err != nil {
		return 0, err
	}
	if err := s.repo.SaveScript(ctx, targetID, kind, step.Clone(steps), savedBy); err != nil {
		return 0, fmt.Errorf("failed to save %s script for %s: %w", kind, targetID, err)
	}
	return len(steps), nil
}

// GetScript retrieves a saved script.
func (s *Service) GetScript(ctx context.Context, targetID string, kind script.Kind) (*script.Script, error) {
	sc, err := s.repo.FindScript(ctx, targetID, kind)
	if err != nil {
		return nil, err
	}
	if sc == nil {
		return nil, fmt.Errorf("%w: %s/%s", ErrScriptNotFound, targetID, kind)
	}
	return sc, nil
}
