package application

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"portalpilot-go/core/apperr"
	"portalpilot-go/core/command"
	"portalpilot-go/core/state"
	"portalpilot-go/domain/step"
	"portalpilot-go/domain/target"
	"portalpilot-go/infrastructure/browser"
	"portalpilot-go/infrastructure/repository"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// stubDriver is a minimal browser.Driver.
type stubDriver struct {
	mu      sync.Mutex
	running bool
	url     string
	stops   int
	stopErr error
}

func (d *stubDriver) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.running = true
	return nil
}

func (d *stubDriver) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stops++
	d.running = false
	return d.stopErr
}

func (d *stubDriver) IsRunning() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.running
}

func (d *stubDriver) Navigate(ctx context.Context, url string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.url = url
	return nil
}

func (d *stubDriver) Click(ctx context.Context, x, y float64) error      { return nil }
func (d *stubDriver) TypeText(ctx context.Context, text string) error     { return nil }
func (d *stubDriver) PressKey(ctx context.Context, key string) error      { return nil }
func (d *stubDriver) Scroll(ctx context.Context, direction string) error  { return nil }
func (d *stubDriver) SetViewport(ctx context.Context, w, h int) error     { return nil }
func (d *stubDriver) CaptureScreen(ctx context.Context) ([]byte, error)   { return []byte("png"), nil }
func (d *stubDriver) CurrentURL(ctx context.Context) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.url, nil
}

func (d *stubDriver) stopCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stops
}

type registryFixture struct {
	registry *Registry
	drafts   *repository.MemoryDraftStore
	created  atomic.Int32
	mu       sync.Mutex
	drivers  []*stubDriver
	stopErr  error
}

func newRegistryFixture(t *testing.T) *registryFixture {
	t.Helper()
	targets := target.NewService(repository.NewMemoryTargetRepository(
		&target.Target{ID: "viaverde_rpa", InitialURL: "https://portal.example.com/login"},
		&target.Target{ID: "galp_frota", InitialURL: "https://frota.example.com", CredentialBindings: []string{"a", "b"}},
	))
	f := &registryFixture{drafts: repository.NewMemoryDraftStore()}
	f.registry = NewRegistry(&RegistryConfig{
		Targets: targets,
		Scripts: targets,
		Drafts:  f.drafts,
		DriverFactory: func() browser.Driver {
			f.created.Add(1)
			d := &stubDriver{stopErr: f.stopErr}
			f.mu.Lock()
			f.drivers = append(f.drivers, d)
			f.mu.Unlock()
			return d
		},
		IdleTimeout:   time.Minute,
		SweepInterval: 10 * time.Millisecond,
		CloseTimeout:  time.Second,
	})
	t.Cleanup(f.registry.Stop)
	return f
}

func startCmd(operator, targetID string) *command.StartSession {
	return &command.StartSession{OperatorID: operator, TargetID: targetID}
}

func TestRegistry_StartReturnsExistingForPair(t *testing.T) {
	ctx := context.Background()
	f := newRegistryFixture(t)

	first, err := f.registry.Start(ctx, startCmd("op-1", "viaverde_rpa"))
	require.NoError(t, err)
	assert.False(t, first.Existing)
	assert.Equal(t, "https://portal.example.com/login", first.URL)

	second, err := f.registry.Start(ctx, startCmd("op-1", "viaverde_rpa"))
	require.NoError(t, err)
	assert.True(t, second.Existing)
	assert.Same(t, first.Session, second.Session)
	assert.Equal(t, int32(1), f.created.Load())

	other, err := f.registry.Start(ctx, startCmd("op-2", "viaverde_rpa"))
	require.NoError(t, err)
	assert.NotEqual(t, first.Session.ID(), other.Session.ID())
	assert.Equal(t, 2, f.registry.SessionCount())
}

func TestRegistry_ConcurrentStartsShareOneBrowser(t *testing.T) {
	ctx := context.Background()
	f := newRegistryFixture(t)

	const n = 8
	ids := make([]string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := f.registry.Start(ctx, startCmd("op-1", "viaverde_rpa"))
			if err == nil {
				ids[i] = res.Session.ID()
			}
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
	assert.Equal(t, int32(1), f.created.Load())
}

func TestRegistry_StartValidation(t *testing.T) {
	ctx := context.Background()
	f := newRegistryFixture(t)

	tests := []struct {
		name string
		cmd  *command.StartSession
	}{
		{"missing operator", startCmd("", "viaverde_rpa")},
		{"unknown target", startCmd("op-1", "nope")},
		{"unknown binding", &command.StartSession{OperatorID: "op-1", TargetID: "galp_frota", CredentialBinding: "z"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.registry.Start(ctx, tt.cmd)
			assert.ErrorIs(t, err, apperr.ErrInvalidAction)
		})
	}
	assert.Zero(t, f.created.Load())
}

func TestRegistry_GetAndClose(t *testing.T) {
	ctx := context.Background()
	f := newRegistryFixture(t)

	_, err := f.registry.Get("missing")
	assert.ErrorIs(t, err, apperr.ErrSessionNotFound)

	res, err := f.registry.Start(ctx, startCmd("op-1", "viaverde_rpa"))
	require.NoError(t, err)
	id := res.Session.ID()

	got, err := f.registry.Get(id)
	require.NoError(t, err)
	assert.Same(t, res.Session, got)

	require.NoError(t, f.registry.Dispatch(command.NewCloseSession(id, "operator")))
	_, err = f.registry.Get(id)
	assert.ErrorIs(t, err, apperr.ErrSessionNotFound)
	assert.Equal(t, state.StateClosed, res.Session.State())
	assert.ErrorIs(t, f.registry.Close(id, "again"), apperr.ErrSessionNotFound)

	again, err := f.registry.Start(ctx, startCmd("op-1", "viaverde_rpa"))
	require.NoError(t, err)
	assert.NotEqual(t, id, again.Session.ID())
}

func TestRegistry_CloseRemovesEvenWhenStopFails(t *testing.T) {
	ctx := context.Background()
	f := newRegistryFixture(t)
	f.stopErr = errors.New("kill failed")

	res, err := f.registry.Start(ctx, startCmd("op-1", "viaverde_rpa"))
	require.NoError(t, err)

	require.NoError(t, f.registry.Close(res.Session.ID(), "operator"))
	assert.Zero(t, f.registry.SessionCount())
	assert.Equal(t, state.StateClosed, res.Session.State())
}

func TestRegistry_SweepEvictsIdleSessions(t *testing.T) {
	ctx := context.Background()
	f := newRegistryFixture(t)
	f.stopErr = errors.New("close errored")

	_, err := f.registry.Start(ctx, startCmd("op-1", "viaverde_rpa"))
	require.NoError(t, err)

	assert.Zero(t, f.registry.Sweep(), "fresh session is not idle")

	f.registry.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	assert.Equal(t, 1, f.registry.Sweep())
	assert.Zero(t, f.registry.SessionCount())

	f.mu.Lock()
	defer f.mu.Unlock()
	require.Len(t, f.drivers, 1)
	assert.Equal(t, 1, f.drivers[0].stopCount())
}

func TestRegistry_RunStopsWithContext(t *testing.T) {
	f := newRegistryFixture(t)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- f.registry.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestRegistry_HasDraft(t *testing.T) {
	ctx := context.Background()
	f := newRegistryFixture(t)

	has, n, err := f.registry.HasDraft(ctx, "op-1", "viaverde_rpa")
	require.NoError(t, err)
	assert.False(t, has)
	assert.Zero(t, n)

	res, err := f.registry.Start(ctx, startCmd("op-1", "viaverde_rpa"))
	require.NoError(t, err)
	require.NoError(t, res.Session.SetRecording(ctx, true))
	_, err = res.Session.Execute(ctx, step.NewClick(3, 4))
	require.NoError(t, err)

	has, n, err = f.registry.HasDraft(ctx, "op-1", "viaverde_rpa")
	require.NoError(t, err)
	assert.True(t, has)
	assert.Equal(t, 1, n)

	require.NoError(t, f.registry.Close(res.Session.ID(), "operator"))
	recovered, err := f.registry.Start(ctx, startCmd("op-1", "viaverde_rpa"))
	require.NoError(t, err)
	assert.Equal(t, 1, recovered.DraftStepsRecovered)
}

func TestRegistry_StopClosesAll(t *testing.T) {
	ctx := context.Background()
	f := newRegistryFixture(t)

	for _, op := range []string{"op-1", "op-2", "op-3"} {
		_, err := f.registry.Start(ctx, startCmd(op, "viaverde_rpa"))
		require.NoError(t, err)
	}
	require.Len(t, f.registry.List(), 3)

	require.NoError(t, f.registry.Dispatch(&command.CloseAllSessions{}))

	assert.Zero(t, f.registry.SessionCount())
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, d := range f.drivers {
		assert.Equal(t, 1, d.stopCount())
	}
}
