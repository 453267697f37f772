package session

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"portalpilot-go/core/apperr"
	"portalpilot-go/domain/credential"
	"portalpilot-go/domain/step"
	"portalpilot-go/infrastructure/browser"
)

func fiveSteps() []step.Step {
	actions := []step.Action{
		step.NewClick(200, 100),
		step.NewTypeText("user@example.com"),
		step.NewClick(640, 360),
		step.NewKeyPress("Enter"),
		step.NewScroll(step.ScrollDown),
	}
	steps := make([]step.Step, len(actions))
	for i, a := range actions {
		steps[i] = step.Step{Order: i + 1, ActionType: a.Type, Parameters: a.Params, Description: a.Describe()}
	}
	return steps
}

func newTestEngine(driver *fakeDriver, vault credential.Vault, binding string, bus *captureBus, snapDir string) *ReplayEngine {
	cfg := ReplayConfig{
		SessionID:         "s-1",
		Controller:        NewBrowserController(driver, nil),
		Vault:             vault,
		CredentialBinding: binding,
		Snapshots:         NewScreenCapture(snapDir, nil),
	}
	if bus != nil {
		cfg.EventBus = bus
	}
	return NewReplayEngine(cfg)
}

func TestReplay_ContinuesPastFailure(t *testing.T) {
	driver := newFakeDriver()
	driver.running = true
	driver.failOn[3] = errTimeout
	bus := &captureBus{}
	engine := newTestEngine(driver, nil, "", bus, "")

	steps := fiveSteps()
	result := engine.Run(context.Background(), steps)

	assert.Equal(t, 5, result.TotalSteps)
	assert.Equal(t, 4, result.StepsSucceeded)
	assert.Equal(t, 1, result.StepsFailed)
	require.Len(t, result.PerStepOutcomes, 5)
	assert.Equal(t, OutcomeFailed, result.PerStepOutcomes[2].Outcome)
	assert.Equal(t, browser.ReasonTimeout, result.PerStepOutcomes[2].Reason)
	assert.Equal(t, OutcomeOK, result.PerStepOutcomes[3].Outcome)
	assert.Equal(t, OutcomeOK, result.PerStepOutcomes[4].Outcome)
	assert.Equal(t, "4/5 steps succeeded", result.Summary())
	assert.Len(t, driver.callLog(), 5)
	assert.Equal(t, 5, bus.count("ReplayStepCompleted"))
}

func TestReplay_DoesNotMutateInput(t *testing.T) {
	driver := newFakeDriver()
	driver.running = true
	engine := newTestEngine(driver, nil, "", nil, "")

	steps := fiveSteps()
	before := step.Clone(steps)
	engine.Run(context.Background(), steps)

	assert.Equal(t, before, steps)
}

func TestReplay_AllFail(t *testing.T) {
	driver := newFakeDriver()
	engine := newTestEngine(driver, nil, "", nil, "")

	result := engine.Run(context.Background(), fiveSteps())

	assert.Equal(t, 0, result.StepsSucceeded)
	assert.Equal(t, 5, result.StepsFailed)
	assert.Equal(t, result.TotalSteps, result.StepsSucceeded+result.StepsFailed)
	assert.Len(t, result.FirstFailures(3), 3)
	for _, o := range result.PerStepOutcomes {
		assert.Equal(t, browser.ReasonBrowserNotRunning, o.Reason)
	}
}

func TestReplay_EmptySequence(t *testing.T) {
	driver := newFakeDriver()
	driver.running = true
	engine := newTestEngine(driver, nil, "", nil, "")

	result := engine.Run(context.Background(), nil)

	assert.Zero(t, result.TotalSteps)
	assert.Empty(t, result.PerStepOutcomes)
	assert.Equal(t, "0/0 steps succeeded", result.Summary())
}

func TestReplay_InsertCredential(t *testing.T) {
	driver := newFakeDriver()
	driver.running = true
	vault := credential.NewStaticVault(map[string]map[string]string{
		"partner-7": {credential.FieldPassword: "hunter2"},
	})
	engine := newTestEngine(driver, vault, "partner-7", nil, "")

	steps := []step.Step{
		{Order: 1, ActionType: step.ActionInsertCredential, Parameters: step.Parameters{Field: credential.FieldPassword}},
		{Order: 2, ActionType: step.ActionInsertCredential, Parameters: step.Parameters{Field: "pin"}},
	}
	result := engine.Run(context.Background(), steps)

	assert.Equal(t, []string{"hunter2"}, driver.typedText())
	assert.Equal(t, OutcomeOK, result.PerStepOutcomes[0].Outcome)
	assert.Equal(t, OutcomeFailed, result.PerStepOutcomes[1].Outcome)
	assert.Equal(t, apperr.CodeCredentialNotFound, result.PerStepOutcomes[1].Reason)
	for _, o := range result.PerStepOutcomes {
		assert.NotContains(t, o.Error, "hunter2")
	}
}

func TestReplay_InvalidStepFails(t *testing.T) {
	driver := newFakeDriver()
	driver.running = true
	engine := newTestEngine(driver, nil, "", nil, "")

	result := engine.Run(context.Background(), []step.Step{{Order: 1, ActionType: "drag"}})

	require.Len(t, result.PerStepOutcomes, 1)
	assert.Equal(t, apperr.CodeInvalidAction, result.PerStepOutcomes[0].Reason)
}

func TestReplay_SavesFailureSnapshots(t *testing.T) {
	dir := t.TempDir()
	driver := newFakeDriver()
	driver.running = true
	driver.failOn[1] = errors.New("no node found")
	engine := newTestEngine(driver, nil, "", nil, dir)

	result := engine.Run(context.Background(), fiveSteps()[:2])

	path := result.PerStepOutcomes[0].SnapshotPath
	require.NotEmpty(t, path)
	assert.True(t, strings.HasPrefix(path, dir))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "png", string(data))
	assert.Empty(t, result.PerStepOutcomes[1].SnapshotPath)
}
