// Package script defines saved automation scripts built from recorded steps.
package script

import (
	"fmt"
	"time"

	"portalpilot-go/domain/step"
)

// Kind is the purpose of a saved script.
type Kind string

const (
	KindLogin      Kind = "login"
	KindExtraction Kind = "extraction"
)

// ParseKind validates a kind name.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindLogin, KindExtraction:
		return Kind(s), nil
	default:
		return "", fmt.Errorf("unknown script kind %q (want login or extraction)", s)
	}
}

// Script is a named, saved step sequence owned by a target's configuration.
type Script struct {
	// TargetID is the automation target the script belongs to
	TargetID string

	// Kind is login or extraction
	Kind Kind

	// Steps are ordered 1..N
	Steps []step.Step

	// SavedBy is the operator who saved the script
	SavedBy string

	// SavedAt is when the script was last saved
	SavedAt time.Time
}

// New builds a script from a copy of steps.
func New(targetID string, kind Kind, steps []step.Step, savedBy string) *Script {
	return &Script{
		TargetID: targetID,
		Kind:     kind,
		Steps:    step.Clone(steps),
		SavedBy:  savedBy,
		SavedAt:  time.Now().UTC(),
	}
}

// Validate checks the script can be replayed as-is.
func (s *Script) Validate() error {
	if s.TargetID == "" {
		return fmt.Errorf("script has no target")
	}
	if _, err := ParseKind(string(s.Kind)); err != nil {
		return err
	}
	if !step.Contiguous(s.Steps) {
		return fmt.Errorf("script steps are not ordered 1..%d", len(s.Steps))
	}
	for _, st := range s.Steps {
		if err := st.Action().Validate(); err != nil {
			return fmt.Errorf("step %d: %w", st.Order, err)
		}
	}
	return nil
}
