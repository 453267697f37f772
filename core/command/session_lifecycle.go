package command

// StartSession starts (or returns) the session for an operator and target.
type StartSession struct {
	OperatorID        string
	TargetID          string
	CredentialBinding string // optional partner identity, never a credential value
}

func (c *StartSession) CommandName() string {
	return "StartSession"
}

// CloseSession closes a session and releases its browser.
type CloseSession struct {
	baseSessionCommand
	Reason string
}

func NewCloseSession(sessionID, reason string) *CloseSession {
	return &CloseSession{
		baseSessionCommand: baseSessionCommand{sessionID: sessionID},
		Reason:             reason,
	}
}

func (c *CloseSession) CommandName() string {
	return "CloseSession"
}

// CloseAllSessions closes every session.
type CloseAllSessions struct{}

func (c *CloseAllSessions) CommandName() string {
	return "CloseAllSessions"
}
