package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"golang.org/x/time/rate"

	"portalpilot-go/core/apperr"
	"portalpilot-go/infrastructure/logging"
)

// WSConfig configures the push channel.
type WSConfig struct {
	PingInterval   time.Duration
	WriteTimeout   time.Duration
	ReadTimeout    time.Duration
	MaxMessageSize int64
	CommandRate    float64 // per connection, commands per second
	CommandBurst   int
	SendBuffer     int
}

// DefaultWSConfig returns the default push channel configuration.
func DefaultWSConfig() WSConfig {
	return WSConfig{
		PingInterval:   30 * time.Second,
		WriteTimeout:   10 * time.Second,
		ReadTimeout:    60 * time.Second,
		MaxMessageSize: 65536,
		CommandRate:    20,
		CommandBurst:   40,
		SendBuffer:     64,
	}
}

// WSServer handles push channel connections. Every inbound envelope is
// answered with a result or error reply; session events for subscribed
// sessions are pushed as they happen.
type WSServer struct {
	service  *Service
	bridge   *EventBridge
	cfg      WSConfig
	logger   *slog.Logger
	upgrader websocket.Upgrader

	// base outlives individual connections so a replay survives a disconnect.
	base   context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu    sync.Mutex
	conns map[string]*wsConn
}

// NewWSServer creates a push channel server.
func NewWSServer(service *Service, bridge *EventBridge, cfg WSConfig, logger *slog.Logger) *WSServer {
	def := DefaultWSConfig()
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = def.PingInterval
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = def.ReadTimeout
	}
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = def.MaxMessageSize
	}
	if cfg.CommandRate <= 0 {
		cfg.CommandRate = def.CommandRate
	}
	if cfg.CommandBurst <= 0 {
		cfg.CommandBurst = def.CommandBurst
	}
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = def.SendBuffer
	}
	if logger == nil {
		logger = slog.Default()
	}

	base, cancel := context.WithCancel(logging.With(context.Background(), logger))
	return &WSServer{
		service: service,
		bridge:  bridge,
		cfg:     cfg,
		logger:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		base:   base,
		cancel: cancel,
		conns:  make(map[string]*wsConn),
	}
}

// wsConn is one push channel connection.
type wsConn struct {
	id      string
	ws      *websocket.Conn
	send    chan []byte
	done    chan struct{}
	limiter *rate.Limiter
	logger  *slog.Logger

	closeOnce sync.Once

	mu   sync.Mutex
	subs map[string]func()
}

// HandleWebSocket upgrades the request and starts the connection pumps.
func (s *WSServer) HandleWebSocket(c echo.Context) error {
	ws, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		s.logger.Warn("Failed to upgrade WebSocket", "error", err)
		return err
	}

	id := uuid.NewString()
	conn := &wsConn{
		id:      id,
		ws:      ws,
		send:    make(chan []byte, s.cfg.SendBuffer),
		done:    make(chan struct{}),
		limiter: rate.NewLimiter(rate.Limit(s.cfg.CommandRate), s.cfg.CommandBurst),
		logger:  s.logger.With("connection_id", id, "transport", "ws"),
		subs:    make(map[string]func()),
	}
	ws.SetReadLimit(s.cfg.MaxMessageSize)

	s.mu.Lock()
	s.conns[id] = conn
	s.mu.Unlock()

	s.wg.Add(2)
	go s.writePump(conn)
	go s.readPump(conn)

	conn.logger.Debug("Push channel connected")
	return nil
}

// Shutdown closes every connection, cancels running replays started over the
// push channel and waits for the pumps to exit.
func (s *WSServer) Shutdown(ctx context.Context) error {
	s.cancel()
	s.mu.Lock()
	for _, conn := range s.conns {
		conn.close()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ConnectionCount returns the number of open connections.
func (s *WSServer) ConnectionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

func (s *WSServer) readPump(conn *wsConn) {
	defer func() {
		s.mu.Lock()
		delete(s.conns, conn.id)
		s.mu.Unlock()
		conn.unsubscribeAll()
		conn.close()
		s.wg.Done()
		conn.logger.Debug("Push channel disconnected")
	}()

	conn.ws.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
	conn.ws.SetPongHandler(func(string) error {
		conn.ws.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
		return nil
	})

	for {
		_, data, err := conn.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				conn.logger.Warn("WebSocket read error", "error", err)
			}
			return
		}
		s.handleMessage(conn, data)
	}
}

func (s *WSServer) writePump(conn *wsConn) {
	ticker := time.NewTicker(s.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		conn.ws.Close()
		s.wg.Done()
	}()

	for {
		select {
		case msg := <-conn.send:
			conn.ws.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
			if err := conn.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				conn.logger.Warn("Failed to write message", "error", err)
				conn.close()
				return
			}

		case <-ticker.C:
			conn.ws.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
			if err := conn.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				conn.close()
				return
			}

		case <-conn.done:
			conn.ws.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
			conn.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// handleMessage answers one inbound envelope.
func (s *WSServer) handleMessage(conn *wsConn, data []byte) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		conn.reply(Reply{Type: TypeError, Error: &ErrorBody{Code: apperr.CodeInvalidAction, Message: "invalid JSON message"}})
		return
	}
	if !conn.limiter.Allow() {
		conn.reply(Reply{
			Type:      TypeError,
			RequestID: env.RequestID,
			Operation: env.Type,
			Error:     &ErrorBody{Code: CodeRateLimited, Message: "too many commands"},
		})
		return
	}

	ctx := logging.With(s.base, conn.logger)
	ctx = logging.WithAttrs(ctx, "request_id", env.RequestID, "operation", env.Type)

	// Replay runs for as long as the sequence takes, so it must not hold up
	// the read loop. The session rejects concurrent mutations while it runs.
	if env.Type == TypeReplay {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.answer(ctx, conn, env)
		}()
		return
	}
	s.answer(ctx, conn, env)
}

func (s *WSServer) answer(ctx context.Context, conn *wsConn, env Envelope) {
	out, err := s.dispatch(ctx, conn, env)
	reply := Reply{Type: TypeResult, RequestID: env.RequestID, Operation: env.Type, Data: out}
	if err != nil {
		reply = Reply{Type: TypeError, RequestID: env.RequestID, Operation: env.Type, Error: errorBody(err)}
		if apperr.Code(err) == apperr.CodeInternal {
			logging.From(ctx).Error("Command failed", "error", err)
		} else {
			logging.From(ctx).Debug("Command rejected", "error", err)
		}
	}
	conn.reply(reply)
}

func (s *WSServer) dispatch(ctx context.Context, conn *wsConn, env Envelope) (any, error) {
	switch env.Type {
	case TypeStartSession:
		out, err := invoke(ctx, env.Payload, s.service.StartSession)
		if err == nil && out.Started {
			s.subscribe(conn, out.SessionID)
		}
		return out, err
	case TypeExecuteAction:
		return invoke(ctx, env.Payload, s.service.ExecuteAction)
	case TypeInsertCredential:
		return invoke(ctx, env.Payload, s.service.InsertCredential)
	case TypeSetRecording:
		return invoke(ctx, env.Payload, s.service.SetRecording)
	case TypeListSteps:
		return invoke(ctx, env.Payload, s.service.ListSteps)
	case TypeClearSteps:
		return invoke(ctx, env.Payload, s.service.ClearSteps)
	case TypeSaveSteps:
		return invoke(ctx, env.Payload, s.service.SaveSteps)
	case TypeReplay:
		return invoke(ctx, env.Payload, s.service.Replay)
	case TypeCloseSession:
		return invoke(ctx, env.Payload, s.service.CloseSession)
	case TypeHasDraft:
		return invoke(ctx, env.Payload, s.service.HasDraft)
	case TypeListCredentialFields:
		return invoke(ctx, env.Payload, s.service.ListCredentialFields)
	case TypeNavigate:
		return invoke(ctx, env.Payload, s.service.Navigate)
	case TypeScreenshot:
		return invoke(ctx, env.Payload, s.service.Screenshot)
	case TypeListSessions:
		return s.service.ListSessions(ctx)
	case TypeSubscribe:
		var ref SessionRef
		if err := decode(env.Payload, &ref); err != nil {
			return nil, err
		}
		if _, err := s.service.Session(ref.SessionID); err != nil {
			return nil, err
		}
		s.subscribe(conn, ref.SessionID)
		return &Ack{OK: true}, nil
	case TypeUnsubscribe:
		var ref SessionRef
		if err := decode(env.Payload, &ref); err != nil {
			return nil, err
		}
		conn.unsubscribe(ref.SessionID)
		return &Ack{OK: true}, nil
	default:
		return nil, fmt.Errorf("%w: unknown message type %q", apperr.ErrInvalidAction, env.Type)
	}
}

// subscribe pushes the events of sessionID to conn. Subscribing twice is a no-op.
func (s *WSServer) subscribe(conn *wsConn, sessionID string) {
	conn.mu.Lock()
	defer conn.mu.Unlock()
	if _, ok := conn.subs[sessionID]; ok {
		return
	}
	conn.subs[sessionID] = s.bridge.Attach(sessionID, func(msg PushMessage) {
		conn.push(msg)
		if msg.Type == TypeSessionClosed {
			conn.unsubscribe(sessionID)
		}
	})
}

func invoke[In, Out any](ctx context.Context, payload json.RawMessage, op func(context.Context, In) (*Out, error)) (*Out, error) {
	var in In
	if err := decode(payload, &in); err != nil {
		return nil, err
	}
	return op(ctx, in)
}

func decode(payload json.RawMessage, v any) error {
	if len(payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(payload, v); err != nil {
		return fmt.Errorf("%w: malformed payload: %v", apperr.ErrInvalidAction, err)
	}
	return nil
}

func (c *wsConn) reply(r Reply) {
	r.Ts = time.Now().UnixMilli()
	c.enqueue(r)
}

func (c *wsConn) push(msg PushMessage) {
	c.enqueue(msg)
}

// enqueue never blocks. Messages to a slow or closed connection are dropped.
func (c *wsConn) enqueue(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		c.logger.Error("Failed to marshal message", "error", err)
		return
	}
	select {
	case <-c.done:
	case c.send <- data:
	default:
		c.logger.Warn("Send buffer full, dropping message")
	}
}

func (c *wsConn) unsubscribe(sessionID string) {
	c.mu.Lock()
	detach, ok := c.subs[sessionID]
	delete(c.subs, sessionID)
	c.mu.Unlock()
	if ok {
		detach()
	}
}

func (c *wsConn) unsubscribeAll() {
	c.mu.Lock()
	subs := c.subs
	c.subs = make(map[string]func())
	c.mu.Unlock()
	for _, detach := range subs {
		detach()
	}
}

func (c *wsConn) close() {
	c.closeOnce.Do(func() { close(c.done) })
}
