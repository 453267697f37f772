// Package target defines automation targets and their configuration store.
package target

// Target is a configured third-party website driven by sessions.
type Target struct {
	// ID is the unique target identifier (e.g. "viaverde_rpa")
	ID string

	// DisplayName is shown to operators
	DisplayName string

	// InitialURL is the page a new session navigates to
	InitialURL string

	// CredentialBindings lists the partner identities whose credentials
	// may be injected into this target's sessions
	CredentialBindings []string
}

// RequiresBindingSelection reports whether the operator must choose a
// credential binding before a session can start unattended.
func (t *Target) RequiresBindingSelection(chosen string) bool {
	return chosen == "" && len(t.CredentialBindings) > 1
}

// DefaultBinding returns the only binding when exactly one exists.
func (t *Target) DefaultBinding() string {
	if len(t.CredentialBindings) == 1 {
		return t.CredentialBindings[0]
	}
	return ""
}

// HasBinding reports whether binding is configured for the target.
func (t *Target) HasBinding(binding string) bool {
	for _, b := range t.CredentialBindings {
		if b == binding {
			return true
		}
	}
	return false
}

// Clone creates a deep copy of the target.
func (t *Target) Clone() *Target {
	clone := &Target{
		ID:          t.ID,
		DisplayName: t.DisplayName,
		InitialURL:  t.InitialURL,
	}
	if len(t.CredentialBindings) > 0 {
		clone.CredentialBindings = make([]string, len(t.CredentialBindings))
		copy(clone.CredentialBindings, t.CredentialBindings)
	}
	return clone
}
