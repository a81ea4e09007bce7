// Package api serves the answer pipeline and session management over HTTP.
package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	ragchat "github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/ragchat"
	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/ragchat/common/logger"
	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/ragchat/memory"
	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/ragchat/orchestrator"
	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/ragchat/schema"
)

// Service is the subset of the RAG client the handlers need.
type Service interface {
	Answer(ctx context.Context, question, sessionID string) (*orchestrator.Result, error)
	History(ctx context.Context, sessionID string) (schema.ChatHistoryRecord, error)
	ListSessions(ctx context.Context, offset, limit int) ([]memory.SessionInfo, error)
	ClearSession(ctx context.Context, sessionID string) error
}

// Handler exposes Service over echo.
type Handler struct {
	svc Service
}

func NewHandler(svc Service) *Handler { return &Handler{svc: svc} }

func (h *Handler) Register(g *echo.Group) {
	g.POST("/answer", h.answer)
	g.GET("/sessions", h.listSessions)
	g.GET("/sessions/:id", h.getSession)
	g.DELETE("/sessions/:id", h.deleteSession)
}

// New builds the echo instance with the v1 routes, health and metrics.
func New(svc Service) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			logger.Debugf("api: %s %s -> %d (%s)", v.Method, v.URI, v.Status, v.Latency)
			return nil
		},
	}))

	NewHandler(svc).Register(e.Group("/v1"))
	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	return e
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func Run(ctx context.Context, addr string, svc Service) error {
	e := New(svc)
	errCh := make(chan error, 1)
	go func() {
		logger.Infof("api: listening on %s", addr)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}

type answerRequest struct {
	Question  string `json:"question"`
	SessionID string `json:"session_id,omitempty"`
}

type sessionsResponse struct {
	Sessions []memory.SessionInfo `json:"sessions"`
	Offset   int                  `json:"offset"`
	Limit    int                  `json:"limit"`
}

func (h *Handler) answer(c echo.Context) error {
	var req answerRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	req.Question = strings.TrimSpace(req.Question)
	if req.Question == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "question is required")
	}
	res, err := h.svc.Answer(c.Request().Context(), req.Question, strings.TrimSpace(req.SessionID))
	if err != nil {
		logger.Errorf("api: answer failed: %v", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "answer failed")
	}
	return c.JSON(http.StatusOK, ragchat.NewChatResponse(res))
}

func (h *Handler) listSessions(c echo.Context) error {
	offset, err := intParam(c, "offset", 0)
	if err != nil {
		return err
	}
	limit, err := intParam(c, "limit", 50)
	if err != nil {
		return err
	}
	sessions, err := h.svc.ListSessions(c.Request().Context(), offset, limit)
	if err != nil {
		logger.Errorf("api: list sessions failed: %v", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "list sessions failed")
	}
	if sessions == nil {
		sessions = []memory.SessionInfo{}
	}
	return c.JSON(http.StatusOK, sessionsResponse{Sessions: sessions, Offset: offset, Limit: limit})
}

func (h *Handler) getSession(c echo.Context) error {
	rec, err := h.svc.History(c.Request().Context(), c.Param("id"))
	if err != nil {
		logger.Errorf("api: load session %s failed: %v", c.Param("id"), err)
		return echo.NewHTTPError(http.StatusInternalServerError, "load session failed")
	}
	if rec.Empty() {
		return echo.NewHTTPError(http.StatusNotFound, "session not found")
	}
	return c.JSON(http.StatusOK, rec)
}

func (h *Handler) deleteSession(c echo.Context) error {
	if err := h.svc.ClearSession(c.Request().Context(), c.Param("id")); err != nil {
		logger.Errorf("api: clear session %s failed: %v", c.Param("id"), err)
		return echo.NewHTTPError(http.StatusInternalServerError, "clear session failed")
	}
	return c.NoContent(http.StatusNoContent)
}

func intParam(c echo.Context, name string, def int) (int, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, name+" must be a non-negative integer")
	}
	return n, nil
}
