package command

// SetRecording arms or disarms the step recorder.
type SetRecording struct {
	baseSessionCommand
	Armed bool
}

func NewSetRecording(sessionID string, armed bool) *SetRecording {
	return &SetRecording{
		baseSessionCommand: baseSessionCommand{sessionID: sessionID},
		Armed:              armed,
	}
}

func (c *SetRecording) CommandName() string {
	return "SetRecording"
}

// ListSteps reads the working sequence.
type ListSteps struct {
	baseSessionCommand
}

func NewListSteps(sessionID string) *ListSteps {
	return &ListSteps{baseSessionCommand{sessionID: sessionID}}
}

func (c *ListSteps) CommandName() string {
	return "ListSteps"
}

// ClearSteps empties the working sequence and deletes the draft.
type ClearSteps struct {
	baseSessionCommand
}

func NewClearSteps(sessionID string) *ClearSteps {
	return &ClearSteps{baseSessionCommand{sessionID: sessionID}}
}

func (c *ClearSteps) CommandName() string {
	return "ClearSteps"
}

// SaveSteps copies the working sequence out as an automation script.
type SaveSteps struct {
	baseSessionCommand
	Kind string
}

func NewSaveSteps(sessionID, kind string) *SaveSteps {
	return &SaveSteps{
		baseSessionCommand: baseSessionCommand{sessionID: sessionID},
		Kind:               kind,
	}
}

func (c *SaveSteps) CommandName() string {
	return "SaveSteps"
}

// Replay re-executes the working sequence.
type Replay struct {
	baseSessionCommand
}

func NewReplay(sessionID string) *Replay {
	return &Replay{baseSessionCommand{sessionID: sessionID}}
}

func (c *Replay) CommandName() string {
	return "Replay"
}
