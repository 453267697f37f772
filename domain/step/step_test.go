package step

import (
	"encoding/json"
	"errors"
	"testing"

	"portalpilot-go/core/apperr"
)

func TestAction_Validate(t *testing.T) {
	tests := []struct {
		name    string
		action  Action
		wantErr bool
	}{
		{"click", NewClick(200, 100), false},
		{"click origin", NewClick(0, 0), false},
		{"click negative", NewClick(-1, 5), true},
		{"type text", NewTypeText("user@example.com"), false},
		{"type empty", NewTypeText(""), true},
		{"key enter", NewKeyPress("Enter"), false},
		{"key unknown", NewKeyPress("Hyper"), true},
		{"scroll down", NewScroll(ScrollDown), false},
		{"scroll sideways", NewScroll("diagonal"), true},
		{"wait", NewWait(2), false},
		{"wait zero", NewWait(0), true},
		{"wait too long", NewWait(MaxWaitSeconds + 1), true},
		{"credential", NewInsertCredential("password"), false},
		{"credential no field", NewInsertCredential(""), true},
		{"missing type", Action{}, true},
		{"unknown type", Action{Type: "hover"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.action.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, apperr.ErrInvalidAction) {
				t.Errorf("Validate() error %v does not wrap ErrInvalidAction", err)
			}
		})
	}
}

func TestAction_Describe(t *testing.T) {
	tests := []struct {
		action   Action
		expected string
	}{
		{NewClick(412, 220), "Click at (412,220)"},
		{NewTypeText("hello"), `Type "hello"`},
		{NewKeyPress("Tab"), "Press Tab"},
		{NewScroll(ScrollUp), "Scroll up"},
		{NewWait(1.5), "Wait 1.5s"},
		{NewInsertCredential("email"), "Insert credential: email"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			if got := tt.action.Describe(); got != tt.expected {
				t.Errorf("Describe() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestAction_DescribeTruncatesLongText(t *testing.T) {
	long := "abcdefghijklmnopqrstuvwxyzabcdefghijklmnopqrstuvwxyz"
	got := NewTypeText(long).Describe()
	want := `Type "` + long[:40] + `…"`
	if got != want {
		t.Errorf("Describe() = %q, want %q", got, want)
	}

	exact := long[:40]
	if got := NewTypeText(exact).Describe(); got != `Type "`+exact+`"` {
		t.Errorf("Describe() of 40 runes = %q, want untruncated", got)
	}
}

func TestParameters_ClickOriginKeepsCoordinates(t *testing.T) {
	b, err := json.Marshal(NewClick(0, 0).Params)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if string(b) != `{"x":0,"y":0}` {
		t.Errorf("Marshal = %s, want both coordinates", b)
	}
}

func TestAction_Normalized(t *testing.T) {
	a := Action{Type: ActionInsertCredential, Params: Parameters{Field: "password", Text: "hunter2", X: 4}}
	n := a.Normalized()
	if n.Params != (Parameters{Field: "password"}) {
		t.Errorf("Normalized() = %+v, want only field", n.Params)
	}
}

func TestClone(t *testing.T) {
	original := []Step{{Order: 1, ActionType: ActionClick, Parameters: Parameters{X: 1}}}
	clone := Clone(original)
	clone[0].Parameters.X = 99
	if original[0].Parameters.X != 1 {
		t.Error("Clone shares backing array")
	}
	if Clone(nil) != nil {
		t.Error("Clone(nil) should be nil")
	}
}

func TestContiguous(t *testing.T) {
	if !Contiguous([]Step{{Order: 1}, {Order: 2}, {Order: 3}}) {
		t.Error("1..3 should be contiguous")
	}
	if Contiguous([]Step{{Order: 1}, {Order: 3}}) {
		t.Error("gap should not be contiguous")
	}
	if !Contiguous(nil) {
		t.Error("empty sequence is contiguous")
	}
}

func TestStep_Action(t *testing.T) {
	s := Step{Order: 1, ActionType: ActionScroll, Parameters: Parameters{Direction: ScrollDown}}
	if got := s.Action(); got != NewScroll(ScrollDown) {
		t.Errorf("Action() = %+v", got)
	}
}
