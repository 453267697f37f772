package command

import "portalpilot-go/domain/step"

// Execute runs one primitive action. Click coordinates are in real viewport pixels.
type Execute struct {
	baseSessionCommand
	Action step.Action
}

func NewExecute(sessionID string, action step.Action) *Execute {
	return &Execute{
		baseSessionCommand: baseSessionCommand{sessionID: sessionID},
		Action:             action,
	}
}

func (c *Execute) CommandName() string {
	return "Execute"
}

// InsertCredential types the named credential field into the focused element.
type InsertCredential struct {
	baseSessionCommand
	Field string
}

func NewInsertCredential(sessionID, field string) *InsertCredential {
	return &InsertCredential{
		baseSessionCommand: baseSessionCommand{sessionID: sessionID},
		Field:              field,
	}
}

func (c *InsertCredential) CommandName() string {
	return "InsertCredential"
}

// Navigate loads a URL. Navigation is never recorded.
type Navigate struct {
	baseSessionCommand
	URL string
}

func NewNavigate(sessionID, url string) *Navigate {
	return &Navigate{
		baseSessionCommand: baseSessionCommand{sessionID: sessionID},
		URL:                url,
	}
}

func (c *Navigate) CommandName() string {
	return "Navigate"
}

// CaptureScreen refreshes the screenshot without acting.
type CaptureScreen struct {
	baseSessionCommand
}

func NewCaptureScreen(sessionID string) *CaptureScreen {
	return &CaptureScreen{baseSessionCommand{sessionID: sessionID}}
}

func (c *CaptureScreen) CommandName() string {
	return "CaptureScreen"
}
