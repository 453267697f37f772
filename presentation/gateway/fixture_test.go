package gateway

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"portalpilot-go/application"
	"portalpilot-go/core/eventbus"
	"portalpilot-go/domain/credential"
	"portalpilot-go/domain/target"
	"portalpilot-go/infrastructure/browser"
	"portalpilot-go/infrastructure/repository"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// stubDriver records clicks and typed text.
type stubDriver struct {
	mu      sync.Mutex
	running bool
	url     string
	clicks  [][2]float64
	typed   []string
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
	d.running = false
	return nil
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

func (d *stubDriver) Click(ctx context.Context, x, y float64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.clicks = append(d.clicks, [2]float64{x, y})
	return nil
}

func (d *stubDriver) TypeText(ctx context.Context, text string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.typed = append(d.typed, text)
	return nil
}

func (d *stubDriver) PressKey(ctx context.Context, key string) error     { return nil }
func (d *stubDriver) Scroll(ctx context.Context, direction string) error { return nil }
func (d *stubDriver) SetViewport(ctx context.Context, w, h int) error    { return nil }
func (d *stubDriver) CaptureScreen(ctx context.Context) ([]byte, error)  { return []byte("png"), nil }

func (d *stubDriver) CurrentURL(ctx context.Context) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.url, nil
}

func (d *stubDriver) lastClick() [2]float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.clicks) == 0 {
		return [2]float64{-1, -1}
	}
	return d.clicks[len(d.clicks)-1]
}

type gatewayFixture struct {
	service  *Service
	registry *application.Registry
	bus      eventbus.EventBus
	drafts   *repository.MemoryDraftStore

	mu      sync.Mutex
	drivers []*stubDriver
}

func newGatewayFixture(t *testing.T) *gatewayFixture {
	t.Helper()
	targets := target.NewService(repository.NewMemoryTargetRepository(
		&target.Target{
			ID:                 "viaverde_rpa",
			DisplayName:        "Via Verde",
			InitialURL:         "https://portal.example.com/login",
			CredentialBindings: []string{"partner-7"},
		},
		&target.Target{
			ID:                 "galp_frota",
			InitialURL:         "https://frota.example.com",
			CredentialBindings: []string{"fleet-a", "fleet-b"},
		},
	))
	vault := credential.NewStaticVault(map[string]map[string]string{
		"partner-7": {credential.FieldEmail: "ops@example.com", credential.FieldPassword: "hunter2"},
	})

	f := &gatewayFixture{
		bus:    eventbus.New(256),
		drafts: repository.NewMemoryDraftStore(),
	}
	f.registry = application.NewRegistry(&application.RegistryConfig{
		Targets:  targets,
		Scripts:  targets,
		Vault:    vault,
		Drafts:   f.drafts,
		EventBus: f.bus,
		DriverFactory: func() browser.Driver {
			d := &stubDriver{}
			f.mu.Lock()
			f.drivers = append(f.drivers, d)
			f.mu.Unlock()
			return d
		},
		CloseTimeout: time.Second,
	})
	f.service = NewService(f.registry, targets, nil)
	t.Cleanup(func() {
		f.registry.Stop()
		f.bus.Close()
	})
	return f
}

func (f *gatewayFixture) driver(i int) *stubDriver {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.drivers[i]
}

func (f *gatewayFixture) start(t *testing.T, operator string) string {
	t.Helper()
	out, err := f.service.StartSession(context.Background(), StartSessionInput{OperatorID: operator, TargetID: "viaverde_rpa"})
	if err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	return out.SessionID
}
