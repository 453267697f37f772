// Package application provides the application layer for orchestrating sessions.
package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"portalpilot-go/application/session"
	"portalpilot-go/core/apperr"
	"portalpilot-go/core/command"
	"portalpilot-go/core/eventbus"
	"portalpilot-go/core/state"
	"portalpilot-go/core/viewport"
	"portalpilot-go/domain/credential"
	"portalpilot-go/domain/draft"
	"portalpilot-go/domain/target"
	"portalpilot-go/infrastructure/browser"
	"portalpilot-go/infrastructure/metrics"
)

// TargetLookup resolves targets by id. target.Service implements it.
type TargetLookup interface {
	GetTarget(ctx context.Context, id string) (*target.Target, error)
}

// Registry owns every live session. At most one session exists per
// (operator, target) pair; idle sessions are closed by a background sweep.
type Registry struct {
	// Sessions
	sessions   map[string]*entry
	byPair     map[draft.Key]string
	sessionsMu sync.RWMutex

	// Dependencies
	targets       TargetLookup
	scripts       session.ScriptSaver
	vault         credential.Vault
	drafts        draft.Store
	eventBus      eventbus.EventBus
	driverFactory browser.Factory
	logger        *slog.Logger

	// Session settings
	viewport      viewport.Size
	commandBuffer int
	closeTimeout  time.Duration
	snapshotDir   string

	// Eviction
	idleTimeout   time.Duration
	sweepInterval time.Duration
	stopTimeout   time.Duration

	newID func() string
	now   func() time.Time
}

type entry struct {
	sess  *session.Session
	ready chan struct{}
	open  *session.OpenResult
	err   error
}

// RegistryConfig holds configuration for the Registry.
type RegistryConfig struct {
	Targets       TargetLookup
	Scripts       session.ScriptSaver
	Vault         credential.Vault
	Drafts        draft.Store
	EventBus      eventbus.EventBus
	DriverFactory browser.Factory
	Logger        *slog.Logger

	Viewport      viewport.Size
	CommandBuffer int
	CloseTimeout  time.Duration
	SnapshotDir   string

	IdleTimeout   time.Duration
	SweepInterval time.Duration
	StopTimeout   time.Duration
}

// StartResult describes the session returned by Start.
type StartResult struct {
	Session             *session.Session
	Screenshot          []byte
	URL                 string
	DraftStepsRecovered int
	// Existing is true when the pair already had a live session.
	Existing bool
}

// NewRegistry creates a new session registry.
func NewRegistry(cfg *RegistryConfig) *Registry {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.DriverFactory == nil {
		cfg.DriverFactory = browser.NewChromeDPFactory(browser.DefaultDriverConfig())
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = 15 * time.Minute
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = 30 * time.Second
	}
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = 10 * time.Second
	}

	return &Registry{
		sessions:      make(map[string]*entry),
		byPair:        make(map[draft.Key]string),
		targets:       cfg.Targets,
		scripts:       cfg.Scripts,
		vault:         cfg.Vault,
		drafts:        cfg.Drafts,
		eventBus:      cfg.EventBus,
		driverFactory: cfg.DriverFactory,
		logger:        cfg.Logger,
		viewport:      cfg.Viewport,
		commandBuffer: cfg.CommandBuffer,
		closeTimeout:  cfg.CloseTimeout,
		snapshotDir:   cfg.SnapshotDir,
		idleTimeout:   cfg.IdleTimeout,
		sweepInterval: cfg.SweepInterval,
		stopTimeout:   cfg.StopTimeout,
		newID:         uuid.NewString,
		now:           time.Now,
	}
}

// Dispatch handles registry-level lifecycle commands.
func (r *Registry) Dispatch(cmd command.Command) error {
	r.logger.Debug("Dispatching command", "command", cmd.CommandName())

	switch cmd := cmd.(type) {
	case *command.CloseSession:
		return r.Close(cmd.SessionID(), cmd.Reason)
	case *command.CloseAllSessions:
		r.Stop()
		return nil
	default:
		return fmt.Errorf("%w: registry cannot handle %s", apperr.ErrInvalidAction, cmd.CommandName())
	}
}

// Start returns the live session for the operator and target, creating and
// opening one if none exists. Concurrent starts for the same pair share one
// browser.
func (r *Registry) Start(ctx context.Context, cmd *command.StartSession) (*StartResult, error) {
	key := draft.Key{OperatorID: cmd.OperatorID, TargetID: cmd.TargetID}
	if key.OperatorID == "" || key.TargetID == "" {
		return nil, fmt.Errorf("%w: operator_id and target_id are required", apperr.ErrInvalidAction)
	}

	if e := r.lookupPair(key); e != nil {
		return r.existing(ctx, e)
	}

	tgt, err := r.targets.GetTarget(ctx, cmd.TargetID)
	if err != nil {
		if errors.Is(err, target.ErrTargetNotFound) {
			return nil, fmt.Errorf("%w: %v", apperr.ErrInvalidAction, err)
		}
		return nil, err
	}

	binding := cmd.CredentialBinding
	if binding == "" {
		binding = tgt.DefaultBinding()
	} else if !tgt.HasBinding(binding) {
		return nil, fmt.Errorf("%w: credential binding %q is not configured for target %s",
			apperr.ErrInvalidAction, binding, tgt.ID)
	}

	r.sessionsMu.Lock()
	if id, ok := r.byPair[key]; ok {
		e := r.sessions[id]
		r.sessionsMu.Unlock()
		return r.existing(ctx, e)
	}

	id := r.newID()
	sess := session.New(&session.Config{
		ID:                id,
		OperatorID:        cmd.OperatorID,
		Target:            tgt,
		CredentialBinding: binding,
		Driver:            r.driverFactory(),
		Vault:             r.vault,
		Drafts:            r.drafts,
		Scripts:           r.scripts,
		EventBus:          r.eventBus,
		Logger:            r.logger,
		CommandBuffer:     r.commandBuffer,
		CloseTimeout:      r.closeTimeout,
		SnapshotDir:       r.snapshotDir,
		Viewport:          r.viewport,
	})
	e := &entry{sess: sess, ready: make(chan struct{})}
	r.sessions[id] = e
	r.byPair[key] = id
	r.sessionsMu.Unlock()

	r.logger.Info("Session created", "session_id", id, "operator_id", key.OperatorID, "target_id", key.TargetID)

	res, err := sess.Open(ctx)
	if err != nil {
		r.remove(id)
		e.err = err
		close(e.ready)
		return nil, err
	}
	e.open = res
	close(e.ready)

	return &StartResult{
		Session:             sess,
		Screenshot:          res.Screenshot,
		URL:                 res.URL,
		DraftStepsRecovered: res.DraftStepsRecovered,
	}, nil
}

// existing waits for a concurrently starting session and returns it.
func (r *Registry) existing(ctx context.Context, e *entry) (*StartResult, error) {
	select {
	case <-e.ready:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if e.err != nil {
		return nil, e.err
	}

	result := &StartResult{
		Session:             e.sess,
		Screenshot:          e.open.Screenshot,
		URL:                 e.open.URL,
		DraftStepsRecovered: e.open.DraftStepsRecovered,
		Existing:            true,
	}
	if shot, err := e.sess.Screenshot(ctx); err == nil {
		result.Screenshot, result.URL = shot.Screenshot, shot.URL
	}
	return result, nil
}

func (r *Registry) lookupPair(key draft.Key) *entry {
	r.sessionsMu.RLock()
	defer r.sessionsMu.RUnlock()
	if id, ok := r.byPair[key]; ok {
		return r.sessions[id]
	}
	return nil
}

// Get returns a session by ID.
func (r *Registry) Get(id string) (*session.Session, error) {
	r.sessionsMu.RLock()
	e, ok := r.sessions[id]
	r.sessionsMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("session %s: %w", id, apperr.ErrSessionNotFound)
	}
	return e.sess, nil
}

// Lookup returns the live session for an operator and target, if any.
func (r *Registry) Lookup(operatorID, targetID string) (*session.Session, bool) {
	e := r.lookupPair(draft.Key{OperatorID: operatorID, TargetID: targetID})
	if e == nil {
		return nil, false
	}
	return e.sess, true
}

// List returns every session ordered by creation time.
func (r *Registry) List() []session.Info {
	r.sessionsMu.RLock()
	infos := make([]session.Info, 0, len(r.sessions))
	for _, e := range r.sessions {
		infos = append(infos, e.sess.Info())
	}
	r.sessionsMu.RUnlock()

	sort.Slice(infos, func(i, j int) bool {
		if infos[i].CreatedAt.Equal(infos[j].CreatedAt) {
			return infos[i].ID < infos[j].ID
		}
		return infos[i].CreatedAt.Before(infos[j].CreatedAt)
	})
	return infos
}

// SessionCount returns the number of sessions.
func (r *Registry) SessionCount() int {
	r.sessionsMu.RLock()
	defer r.sessionsMu.RUnlock()
	return len(r.sessions)
}

// HasDraft reports whether a draft exists for the pair and how many steps it holds.
func (r *Registry) HasDraft(ctx context.Context, operatorID, targetID string) (bool, int, error) {
	if r.drafts == nil {
		return false, 0, nil
	}
	d, err := r.drafts.Load(ctx, draft.Key{OperatorID: operatorID, TargetID: targetID})
	if err != nil {
		return false, 0, err
	}
	if d == nil || len(d.Steps) == 0 {
		return false, 0, nil
	}
	return true, len(d.Steps), nil
}

// Close removes the session from the registry and releases its browser.
// Cleanup errors are logged; the session is removed regardless.
func (r *Registry) Close(id, reason string) error {
	e := r.remove(id)
	if e == nil {
		return fmt.Errorf("session %s: %w", id, apperr.ErrSessionNotFound)
	}
	if err := e.sess.Close(reason); err != nil {
		r.logger.Warn("Session closed with error", "session_id", id, "reason", reason, "error", err)
	}
	return nil
}

func (r *Registry) remove(id string) *entry {
	r.sessionsMu.Lock()
	defer r.sessionsMu.Unlock()

	e, ok := r.sessions[id]
	if !ok {
		return nil
	}
	delete(r.sessions, id)
	key := e.sess.DraftKey()
	if r.byPair[key] == id {
		delete(r.byPair, key)
	}
	return e
}

// Run sweeps idle sessions until ctx is cancelled.
func (r *Registry) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.sweepInterval)
	defer ticker.Stop()

	r.logger.Info("Idle sweeper started", "idle_timeout", r.idleTimeout, "interval", r.sweepInterval)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			r.Sweep()
		}
	}
}

// Sweep closes every session idle for longer than the idle timeout and
// returns how many were evicted. Sessions that are starting or replaying
// are skipped.
func (r *Registry) Sweep() int {
	now := r.now()

	r.sessionsMu.RLock()
	var idle []string
	for id, e := range r.sessions {
		st := e.sess.State()
		if st == state.StateStarting || st == state.StateReplaying {
			continue
		}
		if e.sess.IdleFor(now) > r.idleTimeout {
			idle = append(idle, id)
		}
	}
	r.sessionsMu.RUnlock()

	var wg sync.WaitGroup
	for _, id := range idle {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			r.logger.Info("Evicting idle session", "session_id", id)
			if err := r.Close(id, "idle_timeout"); err == nil {
				metrics.IdleEviction()
			}
		}(id)
	}
	wg.Wait()
	return len(idle)
}

// Stop closes all sessions in parallel.
func (r *Registry) Stop() {
	r.sessionsMu.Lock()
	entries := make([]*entry, 0, len(r.sessions))
	for _, e := range r.sessions {
		entries = append(entries, e)
	}
	r.sessions = make(map[string]*entry)
	r.byPair = make(map[draft.Key]string)
	r.sessionsMu.Unlock()

	var wg sync.WaitGroup
	for _, e := range entries {
		wg.Add(1)
		go func(sess *session.Session) {
			defer wg.Done()
			if err := sess.Close("shutdown"); err != nil {
				r.logger.Warn("Session closed with error", "session_id", sess.ID(), "error", err)
			}
		}(e.sess)
	}

	// Wait with timeout
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(r.stopTimeout):
		r.logger.Warn("Registry stop timeout, some sessions may not have stopped cleanly")
	}

	r.logger.Info("Registry stopped", "sessions", len(entries))
}
