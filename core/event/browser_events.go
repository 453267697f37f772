package event

// ScreenshotUpdated is published after every successful browser operation.
type ScreenshotUpdated struct {
	baseSessionEvent
	PNG []byte
	URL string
}

func NewScreenshotUpdated(sessionID string, png []byte, url string) *ScreenshotUpdated {
	return &ScreenshotUpdated{
		baseSessionEvent: baseSessionEvent{sessionID: sessionID},
		PNG:              png,
		URL:              url,
	}
}

func (e *ScreenshotUpdated) EventName() string {
	return "ScreenshotUpdated"
}

// OperationFailed is published when a live command fails.
type OperationFailed struct {
	baseSessionEvent
	Operation string
	Error     error
}

func NewOperationFailed(sessionID, operation string, err error) *OperationFailed {
	return &OperationFailed{
		baseSessionEvent: baseSessionEvent{sessionID: sessionID},
		Operation:        operation,
		Error:            err,
	}
}

func (e *OperationFailed) EventName() string {
	return "OperationFailed"
}
