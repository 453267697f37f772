// Package draft defines the autosaved, recoverable step sequence of an
// in-progress recording.
package draft

import (
	"context"
	"time"

	"portalpilot-go/domain/step"
)

// Key identifies a draft. At most one draft exists per key.
type Key struct {
	OperatorID string
	TargetID   string
}

// String returns "operator/target".
func (k Key) String() string {
	return k.OperatorID + "/" + k.TargetID
}

// Draft is the persisted working sequence for a key.
type Draft struct {
	Key       Key
	Steps     []step.Step
	UpdatedAt time.Time
}

// Store persists drafts. Only the session currently active for a key writes it.
type Store interface {
	// Save replaces the draft for key with steps.
	Save(ctx context.Context, key Key, steps []step.Step) error

	// Load returns the draft for key, or nil if none exists.
	Load(ctx context.Context, key Key) (*Draft, error)

	// Delete removes the draft for key. Deleting a missing draft is not an error.
	Delete(ctx context.Context, key Key) error
}
