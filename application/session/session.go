// Package session implements the Session Actor pattern for managing browser sessions.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"portalpilot-go/core/apperr"
	"portalpilot-go/core/command"
	"portalpilot-go/core/event"
	"portalpilot-go/core/eventbus"
	"portalpilot-go/core/state"
	"portalpilot-go/core/viewport"
	"portalpilot-go/domain/credential"
	"portalpilot-go/domain/draft"
	"portalpilot-go/domain/script"
	"portalpilot-go/domain/step"
	"portalpilot-go/domain/target"
	"portalpilot-go/infrastructure/browser"
	"portalpilot-go/infrastructure/metrics"
)

// ScriptSaver stores a step sequence as an automation script of a target.
// target.Service implements it.
type ScriptSaver interface {
	SaveScript(ctx context.Context, targetID string, kind script.Kind, steps []step.Step, savedBy string) (int, error)
}

// ActionResult is returned by every browser-driving command.
type ActionResult struct {
	Screenshot   []byte     `json:"screenshot"`
	URL          string     `json:"url"`
	RecordedStep *step.Step `json:"recorded_step,omitempty"`
}

// OpenResult is returned once a session reaches the active state.
type OpenResult struct {
	Screenshot          []byte
	URL                 string
	DraftStepsRecovered int
}

// Info is a point-in-time view of a session.
type Info struct {
	ID                string             `json:"session_id"`
	OperatorID        string             `json:"operator_id"`
	TargetID          string             `json:"target_id"`
	CredentialBinding string             `json:"credential_binding,omitempty"`
	State             state.SessionState `json:"state"`
	URL               string             `json:"url"`
	StepCount         int                `json:"step_count"`
	CreatedAt         time.Time          `json:"created_at"`
	LastActivityAt    time.Time          `json:"last_activity_at"`
}

// Session represents a single browser session as an Actor.
// It processes commands serially through a command queue, so a replay and a
// live action never interleave.
type Session struct {
	// Identity
	id         string
	operatorID string
	target     *target.Target
	binding    string
	createdAt  time.Time

	// State
	state        state.SessionState
	lastFrame    Frame
	stateMu      sync.RWMutex
	lastActivity atomic.Int64

	// Components
	browserCtrl *BrowserController
	recorder    *Recorder
	replayer    *ReplayEngine

	// Dependencies
	driver   browser.Driver
	vault    credential.Vault
	scripts  ScriptSaver
	eventBus eventbus.EventBus
	viewport viewport.Size
	logger   *slog.Logger

	// Command processing
	cmdChan      chan *request
	ctx          context.Context
	cancel       context.CancelFunc
	loopStarted  atomic.Bool
	loopDone     chan struct{}
	closeTimeout time.Duration

	opened    atomic.Bool
	closeOnce sync.Once
	closed    chan struct{}
	closeErr  error
}

// Config holds configuration for creating a new Session.
type Config struct {
	ID                string
	OperatorID        string
	Target            *target.Target
	CredentialBinding string
	Driver            browser.Driver
	Vault             credential.Vault
	Drafts            draft.Store
	Scripts           ScriptSaver
	EventBus          eventbus.EventBus
	Logger            *slog.Logger
	CommandBuffer     int
	CloseTimeout      time.Duration
	SnapshotDir       string
	Viewport          viewport.Size
}

type request struct {
	ctx   context.Context
	cmd   command.Command
	reply chan response
}

type response struct {
	value any
	err   error
}

// New creates a new Session actor in the starting state.
func New(cfg *Config) *Session {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.CommandBuffer <= 0 {
		cfg.CommandBuffer = 16
	}
	if cfg.CloseTimeout <= 0 {
		cfg.CloseTimeout = 5 * time.Second
	}
	if cfg.Viewport.Width <= 0 || cfg.Viewport.Height <= 0 {
		cfg.Viewport = viewport.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	logger := cfg.Logger.With("session_id", cfg.ID, "operator_id", cfg.OperatorID, "target_id", cfg.Target.ID)

	s := &Session{
		id:           cfg.ID,
		operatorID:   cfg.OperatorID,
		target:       cfg.Target,
		binding:      cfg.CredentialBinding,
		createdAt:    time.Now().UTC(),
		state:        state.StateStarting,
		driver:       cfg.Driver,
		vault:        cfg.Vault,
		scripts:      cfg.Scripts,
		eventBus:     cfg.EventBus,
		viewport:     cfg.Viewport,
		logger:       logger,
		cmdChan:      make(chan *request, cfg.CommandBuffer),
		ctx:          ctx,
		cancel:       cancel,
		loopDone:     make(chan struct{}),
		closeTimeout: cfg.CloseTimeout,
		closed:       make(chan struct{}),
	}
	s.touch()

	// Initialize components
	s.browserCtrl = NewBrowserController(s.driver, s.logger)
	s.recorder = NewRecorder(draft.Key{OperatorID: cfg.OperatorID, TargetID: cfg.Target.ID}, cfg.Drafts, s.logger)
	s.replayer = NewReplayEngine(ReplayConfig{
		SessionID:         cfg.ID,
		Controller:        s.browserCtrl,
		Vault:             cfg.Vault,
		CredentialBinding: cfg.CredentialBinding,
		EventBus:          cfg.EventBus,
		Snapshots:         NewScreenCapture(cfg.SnapshotDir, s.logger),
		OnFrame:           s.setFrame,
		Logger:            s.logger,
	})

	return s
}

// Open launches the browser, navigates to the target's initial URL, restores
// any draft and moves the session to active. On failure the session is closed.
func (s *Session) Open(ctx context.Context) (*OpenResult, error) {
	if !s.opened.CompareAndSwap(false, true) {
		return nil, fmt.Errorf("session %s already opened", s.id)
	}
	metrics.SessionOpened()
	s.start()

	opCtx, done := s.opContext(ctx)
	defer done()

	if err := s.driver.Start(opCtx); err != nil {
		s.Close("start_failed")
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}

	if err := s.browserCtrl.Navigate(opCtx, s.target.InitialURL); err != nil {
		s.Close("start_failed")
		return nil, fmt.Errorf("failed to open %s: %w", s.target.InitialURL, err)
	}

	recovered, err := s.recorder.LoadDraft(opCtx)
	if err != nil {
		s.logger.Warn("Failed to load draft", "error", err)
	}

	frame := s.snapshot(opCtx)

	if err := s.transitionTo(state.StateActive); err != nil {
		s.Close("start_failed")
		return nil, err
	}

	s.publishEvent(event.NewSessionStarted(s.id, s.operatorID, s.target.ID, frame.URL, recovered))
	s.logger.Info("Session active", "url", frame.URL, "draft_steps_recovered", recovered)

	return &OpenResult{Screenshot: frame.PNG, URL: frame.URL, DraftStepsRecovered: recovered}, nil
}

// start begins the session's command processing loop.
func (s *Session) start() {
	if s.loopStarted.CompareAndSwap(false, true) {
		go s.run()
	}
}

// Close moves the session through closing to closed. The browser is stopped
// exactly once. Concurrent callers wait for the first one and share its result.
func (s *Session) Close(reason string) error {
	s.closeOnce.Do(func() {
		s.closeErr = s.shutdown(reason)
		close(s.closed)
	})
	<-s.closed
	return s.closeErr
}

func (s *Session) shutdown(reason string) error {
	s.logger.Info("Closing session", "reason", reason)
	if err := s.transitionTo(state.StateClosing); err != nil {
		s.logger.Warn("Unexpected state on close", "error", err)
	}

	s.cancel()

	if s.loopStarted.Load() {
		select {
		case <-s.loopDone:
		case <-time.After(s.closeTimeout):
			s.logger.Warn("Session loop did not stop in time", "timeout", s.closeTimeout)
		}
	}

	stopErr := s.driver.Stop()
	if stopErr != nil {
		s.logger.Error("Failed to stop browser", "error", stopErr)
	}

	s.forceState(state.StateClosed)
	if s.opened.Load() {
		metrics.SessionClosed()
	}
	s.publishEvent(event.NewSessionClosed(s.id, reason, stopErr))
	s.logger.Info("Session closed", "reason", reason)
	return stopErr
}

// Done is closed once the session has reached the closed state.
func (s *Session) Done() <-chan struct{} {
	return s.closed
}

// ID returns the session ID.
func (s *Session) ID() string {
	return s.id
}

// OperatorID returns the operator driving the session.
func (s *Session) OperatorID() string {
	return s.operatorID
}

// Target returns the bound target.
func (s *Session) Target() *target.Target {
	return s.target
}

// CredentialBinding returns the bound partner identity, or "".
func (s *Session) CredentialBinding() string {
	return s.binding
}

// DraftKey returns the (operator, target) key of the session.
func (s *Session) DraftKey() draft.Key {
	return draft.Key{OperatorID: s.operatorID, TargetID: s.target.ID}
}

// Viewport returns the fixed viewport size of the session.
func (s *Session) Viewport() viewport.Size {
	return s.viewport
}

// State returns the current session state.
func (s *Session) State() state.SessionState {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.state
}

// Info returns a snapshot of the session for listings.
func (s *Session) Info() Info {
	s.stateMu.RLock()
	st, u := s.state, s.lastFrame.URL
	s.stateMu.RUnlock()
	return Info{
		ID:                s.id,
		OperatorID:        s.operatorID,
		TargetID:          s.target.ID,
		CredentialBinding: s.binding,
		State:             st,
		URL:               u,
		StepCount:         s.recorder.Len(),
		CreatedAt:         s.createdAt,
		LastActivityAt:    time.Unix(0, s.lastActivity.Load()).UTC(),
	}
}

// IdleFor returns how long the session has gone without an accepted command.
func (s *Session) IdleFor(now time.Time) time.Duration {
	return now.Sub(time.Unix(0, s.lastActivity.Load()))
}

func (s *Session) touch() {
	s.lastActivity.Store(time.Now().UnixNano())
}

// Execute performs one action and records it if recording is armed.
func (s *Session) Execute(ctx context.Context, action step.Action) (*ActionResult, error) {
	return sendAs[*ActionResult](ctx, s, command.NewExecute(s.id, action))
}

// InsertCredential types the named credential field into the focused element.
func (s *Session) InsertCredential(ctx context.Context, field string) (*ActionResult, error) {
	return sendAs[*ActionResult](ctx, s, command.NewInsertCredential(s.id, field))
}

// Navigate loads url. Navigation is never recorded.
func (s *Session) Navigate(ctx context.Context, rawURL string) (*ActionResult, error) {
	return sendAs[*ActionResult](ctx, s, command.NewNavigate(s.id, rawURL))
}

// Screenshot returns the current screenshot and URL without acting. During a
// replay it returns the frame captured after the last replayed step.
func (s *Session) Screenshot(ctx context.Context) (*ActionResult, error) {
	if s.State() == state.StateReplaying {
		s.stateMu.RLock()
		frame := s.lastFrame
		s.stateMu.RUnlock()
		return &ActionResult{Screenshot: frame.PNG, URL: frame.URL}, nil
	}
	return sendAs[*ActionResult](ctx, s, command.NewCaptureScreen(s.id))
}

// SetRecording arms or disarms the recorder.
func (s *Session) SetRecording(ctx context.Context, armed bool) error {
	_, err := s.send(ctx, command.NewSetRecording(s.id, armed))
	return err
}

// ListSteps returns the working sequence. It does not wait behind queued commands.
func (s *Session) ListSteps() ([]step.Step, error) {
	if s.State().IsShuttingDown() {
		return nil, s.notFound()
	}
	return s.recorder.List(), nil
}

// ClearSteps empties the working sequence and deletes the draft.
func (s *Session) ClearSteps(ctx context.Context) error {
	_, err := s.send(ctx, command.NewClearSteps(s.id))
	return err
}

// SaveSteps copies the working sequence to the target as a script of kind and
// returns the number of saved steps. The working sequence is kept.
func (s *Session) SaveSteps(ctx context.Context, kind string) (int, error) {
	return sendAs[int](ctx, s, command.NewSaveSteps(s.id, kind))
}

// Replay re-executes the working sequence.
func (s *Session) Replay(ctx context.Context) (*ReplayResult, error) {
	return sendAs[*ReplayResult](ctx, s, command.NewReplay(s.id))
}

// CredentialFields lists the credential field names available to the session.
func (s *Session) CredentialFields(ctx context.Context) ([]string, error) {
	if s.State().IsShuttingDown() {
		return nil, s.notFound()
	}
	if s.binding == "" || s.vault == nil {
		return []string{}, nil
	}
	return s.vault.ListAvailableFields(ctx, s.binding)
}

func sendAs[T any](ctx context.Context, s *Session, cmd command.Command) (T, error) {
	var zero T
	v, err := s.send(ctx, cmd)
	if err != nil {
		return zero, err
	}
	out, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("unexpected result %T for %s", v, cmd.CommandName())
	}
	return out, nil
}

// send enqueues cmd and waits for its result. Commands are rejected with
// ErrSessionBusy while the session is starting or replaying, or when the
// queue is full.
func (s *Session) send(ctx context.Context, cmd command.Command) (any, error) {
	st := s.State()
	switch {
	case st.IsShuttingDown():
		return nil, s.notFound()
	case st == state.StateStarting:
		return nil, s.busy("session is starting")
	case st == state.StateReplaying && command.Mutating(cmd):
		return nil, s.busy("replay in progress")
	}

	req := &request{ctx: ctx, cmd: cmd, reply: make(chan response, 1)}
	select {
	case s.cmdChan <- req:
	default:
		return nil, s.busy("command queue full")
	}
	s.touch()

	select {
	case resp := <-req.reply:
		return resp.value, resp.err
	case <-s.loopDone:
		return nil, s.notFound()
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// run is the main command processing loop.
func (s *Session) run() {
	defer close(s.loopDone)

	for {
		select {
		case <-s.ctx.Done():
			return
		case req := <-s.cmdChan:
			s.handle(req)
		}
	}
}

func (s *Session) handle(req *request) {
	if req.ctx.Err() != nil {
		req.reply <- response{err: req.ctx.Err()}
		return
	}

	ctx, done := s.opContext(req.ctx)
	defer done()

	s.logger.Debug("Processing command", "command", req.cmd.CommandName())
	value, err := s.processCommand(ctx, req.cmd)
	if err != nil {
		s.publishEvent(event.NewOperationFailed(s.id, req.cmd.CommandName(), err))
	}
	s.touch()
	req.reply <- response{value: value, err: err}
}

// opContext derives a context cancelled by either the session or the caller.
func (s *Session) opContext(caller context.Context) (context.Context, func()) {
	ctx, cancel := context.WithCancel(s.ctx)
	stop := context.AfterFunc(caller, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

// processCommand handles a single command.
func (s *Session) processCommand(ctx context.Context, cmd command.Command) (any, error) {
	switch c := cmd.(type) {
	// Browser operations
	case *command.Execute:
		return s.handleExecute(ctx, c)
	case *command.InsertCredential:
		return s.handleInsertCredential(ctx, c.Field)
	case *command.Navigate:
		return s.handleNavigate(ctx, c)
	case *command.CaptureScreen:
		return s.handleCaptureScreen(ctx)

	// Recording operations
	case *command.SetRecording:
		return nil, s.handleSetRecording(c)
	case *command.ClearSteps:
		return nil, s.handleClearSteps(ctx)
	case *command.SaveSteps:
		return s.handleSaveSteps(ctx, c)
	case *command.Replay:
		return s.handleReplay(ctx)

	default:
		return nil, fmt.Errorf("%w: unsupported command %s", apperr.ErrInvalidAction, cmd.CommandName())
	}
}

// State transition helpers

func (s *Session) transitionTo(newState state.SessionState) error {
	s.stateMu.Lock()
	oldState := s.state

	if !oldState.CanTransitionTo(newState) {
		s.stateMu.Unlock()
		return state.NewTransitionError(oldState, newState, "invalid transition")
	}

	s.state = newState
	s.stateMu.Unlock()

	s.publishEvent(event.NewSessionStateChanged(s.id, oldState, newState))
	s.logger.Info("State changed", "from", oldState, "to", newState)

	return nil
}

// forceState sets a state without checking the transition table. Used only to
// reach closed, which must happen even if closing was never entered.
func (s *Session) forceState(newState state.SessionState) {
	s.stateMu.Lock()
	oldState := s.state
	s.state = newState
	s.stateMu.Unlock()

	if oldState != newState {
		s.publishEvent(event.NewSessionStateChanged(s.id, oldState, newState))
	}
}

func (s *Session) publishEvent(e event.Event) {
	if s.eventBus != nil {
		s.eventBus.Publish(e)
	}
}

func (s *Session) notFound() error {
	return fmt.Errorf("session %s: %w", s.id, apperr.ErrSessionNotFound)
}

func (s *Session) busy(why string) error {
	return fmt.Errorf("session %s: %w: %s", s.id, apperr.ErrSessionBusy, why)
}

func (s *Session) checkLive() error {
	st := s.State()
	switch {
	case st.CanAcceptCommands():
		return nil
	case st.IsShuttingDown():
		return s.notFound()
	default:
		return s.busy(st.String())
	}
}

// snapshot captures the browser and publishes it. On failure the last
// successful frame is returned.
func (s *Session) snapshot(ctx context.Context) Frame {
	frame, err := s.browserCtrl.Snapshot(ctx)
	if err != nil {
		s.logger.Warn("Screenshot failed", "error", err)
		s.stateMu.RLock()
		defer s.stateMu.RUnlock()
		return s.lastFrame
	}
	s.setFrame(frame)
	s.publishEvent(event.NewScreenshotUpdated(s.id, frame.PNG, frame.URL))
	return frame
}

func (s *Session) setFrame(frame Frame) {
	s.stateMu.Lock()
	s.lastFrame = frame
	s.stateMu.Unlock()
}

// Command handlers

func (s *Session) handleExecute(ctx context.Context, cmd *command.Execute) (*ActionResult, error) {
	if err := s.checkLive(); err != nil {
		return nil, err
	}
	if err := cmd.Action.Validate(); err != nil {
		return nil, err
	}
	action := cmd.Action.Normalized()
	if action.Type == step.ActionInsertCredential {
		return s.handleInsertCredential(ctx, action.Params.Field)
	}

	if err := s.browserCtrl.Do(ctx, action); err != nil {
		s.logger.Warn("Action failed", "action", action.Type, "error", err)
		return nil, err
	}
	return s.afterAction(ctx, action), nil
}

func (s *Session) handleInsertCredential(ctx context.Context, field string) (*ActionResult, error) {
	if err := s.checkLive(); err != nil {
		return nil, err
	}
	action := step.NewInsertCredential(field)
	if err := action.Validate(); err != nil {
		return nil, err
	}

	value, err := resolveCredential(ctx, s.vault, s.binding, field)
	if err != nil {
		s.logger.Warn("Credential unavailable", "field", field, "error", err)
		return nil, err
	}
	if err := s.browserCtrl.TypeSecret(ctx, value); err != nil {
		s.logger.Warn("Credential insert failed", "field", field, "error", err)
		return nil, err
	}

	s.logger.Info("Credential inserted", "field", field)
	return s.afterAction(ctx, action), nil
}

// afterAction captures fresh feedback and records the action if armed.
func (s *Session) afterAction(ctx context.Context, action step.Action) *ActionResult {
	frame := s.snapshot(ctx)
	result := &ActionResult{Screenshot: frame.PNG, URL: frame.URL}

	if recorded := s.recorder.Record(ctx, action, ""); recorded != nil {
		result.RecordedStep = recorded
		s.publishEvent(event.NewStepRecorded(s.id, *recorded))
	}
	return result
}

func (s *Session) handleNavigate(ctx context.Context, cmd *command.Navigate) (*ActionResult, error) {
	if err := s.checkLive(); err != nil {
		return nil, err
	}
	u, err := url.Parse(cmd.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: navigate requires an absolute http(s) url", apperr.ErrInvalidAction)
	}

	if err := s.browserCtrl.Navigate(ctx, u.String()); err != nil {
		return nil, err
	}
	frame := s.snapshot(ctx)
	return &ActionResult{Screenshot: frame.PNG, URL: frame.URL}, nil
}

func (s *Session) handleCaptureScreen(ctx context.Context) (*ActionResult, error) {
	if err := s.checkLive(); err != nil {
		return nil, err
	}
	frame, err := s.browserCtrl.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	s.setFrame(frame)
	s.publishEvent(event.NewScreenshotUpdated(s.id, frame.PNG, frame.URL))
	return &ActionResult{Screenshot: frame.PNG, URL: frame.URL}, nil
}

func (s *Session) handleSetRecording(cmd *command.SetRecording) error {
	if err := s.checkLive(); err != nil {
		return err
	}

	current := s.State()
	switch {
	case cmd.Armed && current == state.StateActive:
		if err := s.transitionTo(state.StateRecording); err != nil {
			return err
		}
		s.recorder.Arm()
	case !cmd.Armed && current == state.StateRecording:
		if err := s.transitionTo(state.StateActive); err != nil {
			return err
		}
		s.recorder.Disarm()
	}

	s.publishEvent(event.NewRecordingToggled(s.id, cmd.Armed))
	return nil
}

func (s *Session) handleClearSteps(ctx context.Context) error {
	if err := s.checkLive(); err != nil {
		return err
	}
	s.recorder.Clear(ctx)
	s.publishEvent(event.NewStepsCleared(s.id))
	s.logger.Info("Steps cleared")
	return nil
}

func (s *Session) handleSaveSteps(ctx context.Context, cmd *command.SaveSteps) (int, error) {
	if err := s.checkLive(); err != nil {
		return 0, err
	}
	kind, err := script.ParseKind(cmd.Kind)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", apperr.ErrInvalidAction, err)
	}
	steps := s.recorder.List()
	if len(steps) == 0 {
		return 0, fmt.Errorf("%w: no steps to save", apperr.ErrInvalidAction)
	}
	if s.scripts == nil {
		return 0, errors.New("no script store configured")
	}

	n, err := s.scripts.SaveScript(ctx, s.target.ID, kind, steps, s.operatorID)
	if err != nil {
		return 0, fmt.Errorf("save %s script: %w", kind, err)
	}
	if err := s.recorder.DiscardDraft(ctx); err != nil {
		s.logger.Warn("Failed to delete draft after save", "error", err)
	}

	s.publishEvent(event.NewStepsSaved(s.id, string(kind), n))
	s.logger.Info("Steps saved", "kind", kind, "count", n)
	return n, nil
}

func (s *Session) handleReplay(ctx context.Context) (*ReplayResult, error) {
	if !s.State().CanReplay() {
		return nil, s.checkLive()
	}

	steps := s.recorder.List()
	wasArmed := s.recorder.Armed()
	if err := s.transitionTo(state.StateReplaying); err != nil {
		return nil, err
	}
	s.recorder.Disarm()
	if wasArmed {
		s.publishEvent(event.NewRecordingToggled(s.id, false))
	}

	result := s.replayer.Run(ctx, steps)

	if !s.State().IsShuttingDown() {
		if err := s.transitionTo(state.StateActive); err != nil {
			s.logger.Error("Failed to leave replaying state", "error", err)
		}
	}
	if len(result.FinalScreenshot) > 0 {
		frame := Frame{PNG: result.FinalScreenshot, URL: result.FinalURL}
		s.setFrame(frame)
		s.publishEvent(event.NewScreenshotUpdated(s.id, frame.PNG, frame.URL))
	}
	s.publishEvent(event.NewReplayFinished(s.id, result.TotalSteps, result.StepsSucceeded, result.StepsFailed))
	return result, nil
}
