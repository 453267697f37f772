// Package step defines the fixed vocabulary of recordable browser actions.
package step

import (
	"fmt"
	"time"
	"unicode/utf8"

	"portalpilot-go/core/apperr"
)

// ActionType is the kind of a primitive action.
type ActionType string

const (
	ActionClick            ActionType = "click"
	ActionTypeText         ActionType = "type_text"
	ActionKeyPress         ActionType = "key_press"
	ActionScroll           ActionType = "scroll"
	ActionWait             ActionType = "wait"
	ActionInsertCredential ActionType = "insert_credential"
)

// MaxWaitSeconds bounds a single wait action.
const MaxWaitSeconds = 60

// Scroll directions.
const (
	ScrollUp    = "up"
	ScrollDown  = "down"
	ScrollLeft  = "left"
	ScrollRight = "right"
)

// SupportedKeys lists the key names accepted by key_press.
var SupportedKeys = []string{
	"Enter", "Tab", "Escape", "Backspace", "Delete", "Space",
	"ArrowUp", "ArrowDown", "ArrowLeft", "ArrowRight",
	"Home", "End", "PageUp", "PageDown",
}

// Parameters is the action-specific payload. Only the fields relevant to the
// action type are set. Click coordinates are in real viewport pixels.
// For insert_credential only the field name is ever stored.
type Parameters struct {
	X         int     `json:"x" bson:"x" yaml:"x,omitempty"`
	Y         int     `json:"y" bson:"y" yaml:"y,omitempty"`
	Text      string  `json:"text,omitempty" bson:"text,omitempty" yaml:"text,omitempty"`
	Key       string  `json:"key,omitempty" bson:"key,omitempty" yaml:"key,omitempty"`
	Direction string  `json:"direction,omitempty" bson:"direction,omitempty" yaml:"direction,omitempty"`
	Seconds   float64 `json:"seconds,omitempty" bson:"seconds,omitempty" yaml:"seconds,omitempty"`
	Field     string  `json:"field,omitempty" bson:"field,omitempty" yaml:"field,omitempty"`
}

// Action is a single primitive action requested by a client or read back from a Step.
type Action struct {
	Type   ActionType `json:"action_type"`
	Params Parameters `json:"parameters"`
}

// Step is one recorded action at a fixed 1-based position.
type Step struct {
	Order       int        `json:"order" bson:"order" yaml:"order"`
	ActionType  ActionType `json:"action_type" bson:"action_type" yaml:"action_type"`
	Parameters  Parameters `json:"parameters" bson:"parameters" yaml:"parameters"`
	Description string     `json:"description" bson:"description" yaml:"description"`
	RecordedAt  time.Time  `json:"recorded_at" bson:"recorded_at" yaml:"recorded_at,omitempty"`
}

// Action returns the action a Step replays.
func (s Step) Action() Action {
	return Action{Type: s.ActionType, Params: s.Parameters}
}

// NewClick builds a click action at real viewport coordinates.
func NewClick(x, y int) Action {
	return Action{Type: ActionClick, Params: Parameters{X: x, Y: y}}
}

// NewTypeText builds a type_text action.
func NewTypeText(text string) Action {
	return Action{Type: ActionTypeText, Params: Parameters{Text: text}}
}

// NewKeyPress builds a key_press action.
func NewKeyPress(key string) Action {
	return Action{Type: ActionKeyPress, Params: Parameters{Key: key}}
}

// NewScroll builds a scroll action.
func NewScroll(direction string) Action {
	return Action{Type: ActionScroll, Params: Parameters{Direction: direction}}
}

// NewWait builds a wait action.
func NewWait(seconds float64) Action {
	return Action{Type: ActionWait, Params: Parameters{Seconds: seconds}}
}

// NewInsertCredential builds an insert_credential action for the named field.
func NewInsertCredential(field string) Action {
	return Action{Type: ActionInsertCredential, Params: Parameters{Field: field}}
}

// Validate reports whether the action is well formed. Errors wrap apperr.ErrInvalidAction.
func (a Action) Validate() error {
	p := a.Params
	switch a.Type {
	case ActionClick:
		if p.X < 0 || p.Y < 0 {
			return invalid("click coordinates must be non-negative, got (%d,%d)", p.X, p.Y)
		}
	case ActionTypeText:
		if p.Text == "" {
			return invalid("type_text requires text")
		}
	case ActionKeyPress:
		if !IsSupportedKey(p.Key) {
			return invalid("unsupported key %q", p.Key)
		}
	case ActionScroll:
		switch p.Direction {
		case ScrollUp, ScrollDown, ScrollLeft, ScrollRight:
		default:
			return invalid("unsupported scroll direction %q", p.Direction)
		}
	case ActionWait:
		if p.Seconds <= 0 || p.Seconds > MaxWaitSeconds {
			return invalid("wait seconds must be in (0, %d], got %v", MaxWaitSeconds, p.Seconds)
		}
	case ActionInsertCredential:
		if p.Field == "" {
			return invalid("insert_credential requires a field name")
		}
	case "":
		return invalid("missing action_type")
	default:
		return invalid("unknown action_type %q", a.Type)
	}
	return nil
}

// Normalized returns the action with every parameter irrelevant to its type cleared.
func (a Action) Normalized() Action {
	p := a.Params
	var n Parameters
	switch a.Type {
	case ActionClick:
		n.X, n.Y = p.X, p.Y
	case ActionTypeText:
		n.Text = p.Text
	case ActionKeyPress:
		n.Key = p.Key
	case ActionScroll:
		n.Direction = p.Direction
	case ActionWait:
		n.Seconds = p.Seconds
	case ActionInsertCredential:
		n.Field = p.Field
	}
	return Action{Type: a.Type, Params: n}
}

// Describe returns a human readable summary, e.g. "Click at (412,220)".
func (a Action) Describe() string {
	p := a.Params
	switch a.Type {
	case ActionClick:
		return fmt.Sprintf("Click at (%d,%d)", p.X, p.Y)
	case ActionTypeText:
		return fmt.Sprintf("Type %q", truncate(p.Text, 40))
	case ActionKeyPress:
		return "Press " + p.Key
	case ActionScroll:
		return "Scroll " + p.Direction
	case ActionWait:
		return fmt.Sprintf("Wait %gs", p.Seconds)
	case ActionInsertCredential:
		return "Insert credential: " + p.Field
	default:
		return string(a.Type)
	}
}

// IsSupportedKey reports whether key is in SupportedKeys.
func IsSupportedKey(key string) bool {
	for _, k := range SupportedKeys {
		if k == key {
			return true
		}
	}
	return false
}

// Clone returns an independent copy of steps.
func Clone(steps []Step) []Step {
	if steps == nil {
		return nil
	}
	out := make([]Step, len(steps))
	copy(out, steps)
	return out
}

// Contiguous reports whether the orders of steps are exactly 1..len(steps).
func Contiguous(steps []Step) bool {
	for i, s := range steps {
		if s.Order != i+1 {
			return false
		}
	}
	return true
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", apperr.ErrInvalidAction, fmt.Sprintf(format, args...))
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n]) + "…"
}
