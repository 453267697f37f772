// Package command defines all commands that can be sent to a session.
// Commands represent operator intentions and are processed by the application layer.
package command

// Command is the base interface for all commands.
// Commands are sent from the gateway to the application layer.
type Command interface {
	// CommandName returns the name of the command for logging/debugging
	CommandName() string
}

// SessionCommand is a command that targets a specific session.
type SessionCommand interface {
	Command
	// SessionID returns the target session ID
	SessionID() string
}

// Mutating reports whether cmd drives the browser or changes the working
// sequence. Mutating commands are rejected while a replay is in progress.
func Mutating(cmd Command) bool {
	switch cmd.(type) {
	case *ListSteps, *CaptureScreen, *CloseSession:
		return false
	default:
		return true
	}
}

// baseSessionCommand provides common implementation for session commands.
type baseSessionCommand struct {
	sessionID string
}

func (c *baseSessionCommand) SessionID() string {
	return c.sessionID
}
