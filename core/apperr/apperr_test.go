package apperr

import (
	"errors"
	"fmt"
	"testing"
)

type reasonedErr struct{ reason string }

func (e *reasonedErr) Error() string         { return "click: " + e.reason }
func (e *reasonedErr) FailureReason() string { return e.reason }
func (e *reasonedErr) Unwrap() error         { return ErrActionFailed }

func TestCode(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{"nil", nil, ""},
		{"not found", fmt.Errorf("lookup abc: %w", ErrSessionNotFound), CodeSessionNotFound},
		{"busy", ErrSessionBusy, CodeSessionBusy},
		{"action", &reasonedErr{"timeout"}, CodeActionFailed},
		{"credential", fmt.Errorf("field password: %w", ErrCredentialNotFound), CodeCredentialNotFound},
		{"invalid", ErrInvalidAction, CodeInvalidAction},
		{"other", errors.New("boom"), CodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Code(tt.err); got != tt.expected {
				t.Errorf("Code() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestReason(t *testing.T) {
	wrapped := fmt.Errorf("execute: %w", &reasonedErr{"timeout"})
	if got := Reason(wrapped); got != "timeout" {
		t.Errorf("Reason() = %q, want timeout", got)
	}
	if got := Reason(errors.New("plain")); got != "" {
		t.Errorf("Reason() = %q, want empty", got)
	}
}
