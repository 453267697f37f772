// Package credential defines the Credential Vault Client contract.
//
// Callers receive decrypted values on demand and must not keep them beyond
// the single action that consumes them.
package credential

import (
	"context"
	"fmt"
	"sort"

	"portalpilot-go/core/apperr"
)

// Well-known field names.
const (
	FieldEmail    = "email"
	FieldUsername = "username"
	FieldPassword = "password"
)

// Vault resolves credential fields for a partner binding.
type Vault interface {
	// ListAvailableFields returns the field names available for binding.
	ListAvailableFields(ctx context.Context, binding string) ([]string, error)

	// GetFieldValue returns the decrypted value of one field.
	// Fails with apperr.ErrCredentialNotFound if unbound or absent.
	GetFieldValue(ctx context.Context, binding, field string) (string, error)
}

// NotFound builds a CredentialNotFound error for binding/field.
func NotFound(binding, field string) error {
	if binding == "" {
		return fmt.Errorf("%w: session has no credential binding", apperr.ErrCredentialNotFound)
	}
	if field == "" {
		return fmt.Errorf("%w: binding %q", apperr.ErrCredentialNotFound, binding)
	}
	return fmt.Errorf("%w: field %q for binding %q", apperr.ErrCredentialNotFound, field, binding)
}

// StaticVault serves credentials from an in-memory map of
// binding -> field -> value. Used for development and tests.
type StaticVault struct {
	entries map[string]map[string]string
}

// NewStaticVault creates a vault from a copy of entries.
func NewStaticVault(entries map[string]map[string]string) *StaticVault {
	v := &StaticVault{entries: make(map[string]map[string]string, len(entries))}
	for binding, fields := range entries {
		cp := make(map[string]string, len(fields))
		for k, val := range fields {
			cp[k] = val
		}
		v.entries[binding] = cp
	}
	return v
}

// ListAvailableFields implements Vault.
func (v *StaticVault) ListAvailableFields(_ context.Context, binding string) ([]string, error) {
	fields, ok := v.entries[binding]
	if binding == "" || !ok {
		return nil, NotFound(binding, "")
	}
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// GetFieldValue implements Vault.
func (v *StaticVault) GetFieldValue(_ context.Context, binding, field string) (string, error) {
	fields, ok := v.entries[binding]
	if binding == "" || !ok {
		return "", NotFound(binding, field)
	}
	value, ok := fields[field]
	if !ok {
		return "", NotFound(binding, field)
	}
	return value, nil
}
