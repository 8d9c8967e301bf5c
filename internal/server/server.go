// Package server exposes the assistant over HTTP: the REST routes, the
// browser voice bridge and Prometheus metrics.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"go.aimuz.me/saathi/analysis"
	"go.aimuz.me/saathi/bridge"
	"go.aimuz.me/saathi/internal/assistant"
	"go.aimuz.me/saathi/internal/types"
	"go.aimuz.me/saathi/sms"
	"go.aimuz.me/saathi/voice"
)

// DevOrigins are always allowed so the web client works out of the box.
var DevOrigins = []string{"http://localhost:5173", "http://localhost:8080", "http://127.0.0.1"}

// Server is the HTTP host. One voice session runs per WebSocket connection;
// all sessions share the assistant.
type Server struct {
	a        *assistant.Assistant
	echo     *echo.Echo
	origins  []string
	upgrader websocket.Upgrader

	// ctx is cancelled on Shutdown to close hijacked voice connections.
	ctx      context.Context
	cancel   context.CancelFunc
	sessions sync.WaitGroup
}

// New creates a Server with every route registered.
func New(a *assistant.Assistant) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		a:       a,
		origins: append(slices.Clone(a.Config().Server.AllowedOrigins), DevOrigins...),
		ctx:     ctx,
		cancel:  cancel,
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     s.checkOrigin,
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(requestLogger())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     s.origins,
		AllowMethods:     []string{http.MethodGet, http.MethodHead, http.MethodPut, http.MethodPatch, http.MethodPost, http.MethodDelete},
		AllowCredentials: true,
	}))

	e.GET("/", func(c echo.Context) error {
		return c.JSON(http.StatusOK, echo.Map{"message": "backend working"})
	})
	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	e.POST("/ai/analyze-parameters", s.analyzeParameters)
	e.POST("/api/send-sms", s.sendSMS)
	e.GET("/ws/voice", s.voice)
	if m := a.Metrics(); m != nil {
		e.GET("/metrics", echo.WrapHandler(m.Handler()))
	}

	s.echo = e
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start listens on addr until Shutdown. It returns nil after a clean
// shutdown.
func (s *Server) Start(addr string) error {
	slog.Info("http server listening", "addr", addr)
	if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests, closes voice sessions and waits for
// them to finish or ctx to expire.
func (s *Server) Shutdown(ctx context.Context) error {
	s.cancel()
	err := s.echo.Shutdown(ctx)

	done := make(chan struct{})
	go func() {
		s.sessions.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		if err == nil {
			err = ctx.Err()
		}
	}
	return err
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	return slices.Contains(s.origins, "*") || slices.Contains(s.origins, origin)
}

func requestLogger() echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:   true,
		LogURI:      true,
		LogStatus:   true,
		LogLatency:  true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(_ echo.Context, v middleware.RequestLoggerValues) error {
			if v.Error != nil {
				slog.Error("request", "method", v.Method, "uri", v.URI, "status", v.Status, "latency", v.Latency, "error", v.Error)
				return nil
			}
			slog.Info("request", "method", v.Method, "uri", v.URI, "status", v.Status, "latency", v.Latency)
			return nil
		},
	})
}

// ─────────────────────────────────────────────────────────────────────────────
// REST
// ─────────────────────────────────────────────────────────────────────────────

type analyzeRequest struct {
	Parameters []analysis.Parameter `json:"parameters"`
}

func (s *Server) analyzeParameters(c echo.Context) error {
	var req analyzeRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Invalid request body"})
	}

	report, err := s.a.Analyzer().Analyze(c.Request().Context(), req.Parameters)
	if errors.Is(err, analysis.ErrNoParameters) {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Parameters are required"})
	}
	if err != nil {
		slog.Error("analyze parameters", "count", len(req.Parameters), "error", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Failed to analyze parameters."})
	}
	return c.JSON(http.StatusOK, report)
}

type smsRequest struct {
	Phone string `json:"phone"`
	Code  string `json:"code"`
}

func (s *Server) sendSMS(c echo.Context) error {
	var req smsRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Invalid request body"})
	}
	if strings.TrimSpace(req.Phone) == "" || strings.TrimSpace(req.Code) == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Phone and code are required"})
	}

	otp := s.a.OTP()
	if otp == nil {
		return c.JSON(http.StatusServiceUnavailable, sms.Result{Error: "SMS service not configured"})
	}

	res, err := otp.SendCode(c.Request().Context(), req.Phone, req.Code)
	if err != nil {
		slog.Error("send sms", "error", err)
		return c.JSON(http.StatusInternalServerError, sms.Result{
			Error:   "Internal server error",
			Details: err.Error(),
		})
	}
	if !res.Success {
		return c.JSON(http.StatusBadRequest, res)
	}
	return c.JSON(http.StatusOK, res)
}

// ─────────────────────────────────────────────────────────────────────────────
// Voice
// ─────────────────────────────────────────────────────────────────────────────

// voice upgrades to a WebSocket and runs one voice session over it. The
// browser owns the speech engines and answers the bridge's requests.
func (s *Server) voice(c echo.Context) error {
	lang, _ := types.ParseLanguage(c.QueryParam("lang"))

	conn, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// The upgrader has already written the response.
		slog.Warn("websocket upgrade", "remote", c.RealIP(), "error", err)
		return nil
	}
	defer conn.Close()

	s.sessions.Add(1)
	defer s.sessions.Done()

	t := bridge.NewWSTransport(conn)
	sess := bridge.NewSession(t, func(d voice.Deps) *voice.Orchestrator {
		return s.a.NewVoice(d, lang)
	})
	defer sess.Close()

	slog.Info("voice session opened", "remote", c.RealIP(), "lang", sess.Voice().Language())
	if err := t.Serve(s.ctx, sess); err != nil {
		slog.Warn("voice session", "remote", c.RealIP(), "error", err)
	}
	slog.Info("voice session closed", "remote", c.RealIP())
	return nil
}
