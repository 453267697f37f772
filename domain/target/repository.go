package target

import (
	"context"

	"portalpilot-go/domain/script"
	"portalpilot-go/domain/step"
)

// Repository is the Target Configuration Store.
type Repository interface {
	// FindByID retrieves a target by its identifier.
	// Returns nil if not found.
	FindByID(ctx context.Context, id string) (*Target, error)

	// FindAll retrieves all targets.
	FindAll(ctx context.Context) ([]*Target, error)

	// Upsert creates or replaces a target.
	Upsert(ctx context.Context, t *Target) error

	// SaveScript stores steps as the target's script of the given kind,
	// replacing any previous script of that kind.
	SaveScript(ctx context.Context, targetID string, kind script.Kind, steps []step.Step, savedBy string) error

	// FindScript retrieves a saved script. Returns nil if not found.
	FindScript(ctx context.Context, targetID string, kind script.Kind) (*script.Script, error)
}
