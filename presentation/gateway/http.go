package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"portalpilot-go/core/apperr"
	"portalpilot-go/infrastructure/logging"
	"portalpilot-go/infrastructure/metrics"
)

// Handler serves the request/response API and the push channel endpoint.
type Handler struct {
	service *Service
	ws      *WSServer
	logger  *slog.Logger
}

// NewHandler creates a new handler. ws may be nil to disable the push channel.
func NewHandler(service *Service, ws *WSServer, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{service: service, ws: ws, logger: logger}
}

// NewEcho builds an echo server with the gateway middleware and routes.
func NewEcho(h *Handler) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(h.requestLogger)

	h.RegisterRoutes(e)
	return e
}

// RegisterRoutes registers gateway routes with the echo server.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	v1 := e.Group("/v1")

	v1.POST("/sessions", handle(h, TypeStartSession, h.service.StartSession))
	v1.GET("/sessions", func(c echo.Context) error {
		out, err := h.service.ListSessions(c.Request().Context())
		return h.respond(c, TypeListSessions, out, err)
	})
	v1.DELETE("/sessions/:id", handle(h, TypeCloseSession, h.service.CloseSession))

	v1.POST("/sessions/:id/actions", handle(h, TypeExecuteAction, h.service.ExecuteAction))
	v1.POST("/sessions/:id/credentials", handle(h, TypeInsertCredential, h.service.InsertCredential))
	v1.GET("/sessions/:id/credentials", handle(h, TypeListCredentialFields, h.service.ListCredentialFields))
	v1.PUT("/sessions/:id/recording", handle(h, TypeSetRecording, h.service.SetRecording))
	v1.GET("/sessions/:id/steps", handle(h, TypeListSteps, h.service.ListSteps))
	v1.DELETE("/sessions/:id/steps", handle(h, TypeClearSteps, h.service.ClearSteps))
	v1.POST("/sessions/:id/steps/save", handle(h, TypeSaveSteps, h.service.SaveSteps))
	v1.POST("/sessions/:id/replay", handle(h, TypeReplay, h.service.Replay))
	v1.POST("/sessions/:id/navigate", handle(h, TypeNavigate, h.service.Navigate))
	v1.GET("/sessions/:id/screenshot", handle(h, TypeScreenshot, h.service.Screenshot))

	v1.GET("/drafts", handle(h, TypeHasDraft, h.service.HasDraft))

	e.GET("/healthz", h.Health)
	e.GET("/metrics", echo.WrapHandler(metrics.Handler()))
	if h.ws != nil {
		e.GET("/ws", h.ws.HandleWebSocket)
	}
}

// Health returns health status.
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"status":   "healthy",
		"sessions": h.service.registry.SessionCount(),
	})
}

// handle binds In from path, query and body, runs op, and writes the result.
func handle[In, Out any](h *Handler, name string, op func(context.Context, In) (*Out, error)) echo.HandlerFunc {
	return func(c echo.Context) error {
		var in In
		if err := c.Bind(&in); err != nil {
			return h.respond(c, name, nil, fmt.Errorf("%w: malformed request: %v", apperr.ErrInvalidAction, err))
		}
		out, err := op(c.Request().Context(), in)
		return h.respond(c, name, out, err)
	}
}

func (h *Handler) respond(c echo.Context, name string, out any, err error) error {
	if err != nil {
		status := httpStatus(err)
		logger := logging.From(c.Request().Context())
		if status >= http.StatusInternalServerError {
			logger.Error("Request failed", "operation", name, "error", err)
		} else {
			logger.Debug("Request rejected", "operation", name, "error", err)
		}
		return c.JSON(status, map[string]any{"error": errorBody(err)})
	}
	return c.JSON(http.StatusOK, out)
}

// requestLogger attaches a request-scoped logger and logs each request.
func (h *Handler) requestLogger(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		req := c.Request()
		reqID := c.Response().Header().Get(echo.HeaderXRequestID)
		ctx := logging.With(req.Context(), h.logger)
		ctx = logging.WithAttrs(ctx, "request_id", reqID, "transport", "http")
		c.SetRequest(req.WithContext(ctx))

		start := time.Now()
		err := next(c)
		if err != nil {
			c.Error(err)
		}
		logging.From(ctx).Debug("HTTP request",
			"method", req.Method,
			"path", c.Path(),
			"status", c.Response().Status,
			"elapsed", time.Since(start))
		return nil
	}
}
