package session

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"portalpilot-go/core/apperr"
	"portalpilot-go/domain/step"
	"portalpilot-go/infrastructure/browser"
)

func TestBrowserController_Do(t *testing.T) {
	tests := []struct {
		name   string
		action step.Action
		want   string
	}{
		{"click", step.NewClick(200, 100), "click 200,100"},
		{"type", step.NewTypeText("user@example.com"), "type"},
		{"key", step.NewKeyPress("Enter"), "key Enter"},
		{"scroll", step.NewScroll(step.ScrollDown), "scroll down"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			driver := newFakeDriver()
			driver.running = true
			ctrl := NewBrowserController(driver, nil)

			if err := ctrl.Do(context.Background(), tt.action); err != nil {
				t.Fatalf("Do() error = %v", err)
			}
			calls := driver.callLog()
			if len(calls) != 1 || calls[0] != tt.want {
				t.Errorf("calls = %v, want [%s]", calls, tt.want)
			}
		})
	}
}

func TestBrowserController_NotRunning(t *testing.T) {
	ctrl := NewBrowserController(newFakeDriver(), nil)

	err := ctrl.Do(context.Background(), step.NewClick(1, 1))
	if !errors.Is(err, apperr.ErrActionFailed) {
		t.Fatalf("Do() error = %v, want ErrActionFailed", err)
	}
	if got := apperr.Reason(err); got != browser.ReasonBrowserNotRunning {
		t.Errorf("Reason = %q, want %q", got, browser.ReasonBrowserNotRunning)
	}
}

func TestBrowserController_Wait(t *testing.T) {
	driver := newFakeDriver()
	driver.running = true
	ctrl := NewBrowserController(driver, nil)

	start := time.Now()
	if err := ctrl.Do(context.Background(), step.NewWait(0.01)); err != nil {
		t.Fatalf("Do(wait) error = %v", err)
	}
	if time.Since(start) < 10*time.Millisecond {
		t.Error("wait returned early")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := ctrl.Do(ctx, step.NewWait(30))
	if !errors.Is(err, apperr.ErrActionFailed) {
		t.Fatalf("cancelled wait error = %v, want ErrActionFailed", err)
	}
	if got := apperr.Reason(err); got != browser.ReasonTimeout {
		t.Errorf("Reason = %q, want timeout", got)
	}
}

func TestBrowserController_TypeSecretHidesValue(t *testing.T) {
	driver := newFakeDriver()
	driver.running = true
	driver.failOn[1] = errors.New("engine rejected s3cret-value")
	ctrl := NewBrowserController(driver, nil)

	err := ctrl.TypeSecret(context.Background(), "s3cret-value")
	if err == nil {
		t.Fatal("TypeSecret() expected error")
	}
	if strings.Contains(err.Error(), "s3cret-value") {
		t.Errorf("error leaks credential value: %v", err)
	}
	if !errors.Is(err, apperr.ErrActionFailed) {
		t.Errorf("error = %v, want ErrActionFailed", err)
	}
}

func TestBrowserController_Snapshot(t *testing.T) {
	driver := newFakeDriver()
	driver.running = true
	driver.url = "https://portal.example.com/login"
	ctrl := NewBrowserController(driver, nil)

	frame, err := ctrl.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}
	if string(frame.PNG) != "png" || frame.URL != driver.url {
		t.Errorf("Snapshot() = %+v", frame)
	}
}
