package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/custodia-labs/townhall/internal/core/domain"
	"github.com/custodia-labs/townhall/internal/core/ports/driving"
	"github.com/custodia-labs/townhall/internal/logger"
)

// ErrMissingChatService is returned when the chat service is not provided.
var ErrMissingChatService = errors.New("api: chat service is required")

const shutdownTimeout = 10 * time.Second

// Pinger reports whether a backing store answers.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Ports aggregates the driving ports the HTTP API needs.
type Ports struct {
	Chat driving.ChatService

	// Health is optional; without it /healthz always reports ok.
	Health Pinger
}

// Server is the HTTP API.
type Server struct {
	echo  *echo.Echo
	ports *Ports
	cfg   domain.ServerSettings
}

// NewServer builds the echo instance with middleware and routes.
func NewServer(ports *Ports, cfg domain.ServerSettings) (*Server, error) {
	if ports == nil || ports.Chat == nil {
		return nil, ErrMissingChatService
	}
	defaults := domain.DefaultAppSettings().Server
	if cfg.Addr == "" {
		cfg.Addr = defaults.Addr
	}
	if cfg.CookieName == "" {
		cfg.CookieName = defaults.CookieName
	}
	if cfg.CookieMaxAge <= 0 {
		cfg.CookieMaxAge = defaults.CookieMaxAge
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = httpErrorHandler

	e.Use(middleware.Recover())
	e.Use(accessLog())
	if len(cfg.AllowedOrigins) > 0 {
		e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOrigins:     cfg.AllowedOrigins,
			AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowHeaders:     []string{echo.HeaderContentType, echo.HeaderAccept, HeaderGuestID},
			ExposeHeaders:    []string{headerRetryAfter, HeaderGuestID},
			AllowCredentials: true,
		}))
	}

	s := &Server{echo: e, ports: ports, cfg: cfg}
	s.registerRoutes()
	return s, nil
}

func (s *Server) registerRoutes() {
	s.echo.GET("/healthz", s.handleHealth)

	g := s.echo.Group("/api")
	g.POST("/conversations", s.handleStartConversation)
	g.GET("/conversations", s.handleListConversations)
	g.GET("/conversations/:id", s.handleGetConversation)
	g.POST("/conversations/:id/end", s.handleEndConversation)
	g.POST("/conversations/:id/messages", s.handleSendMessage)
	g.POST("/messages/:id/feedback", s.handleFeedback)
}

// Handler returns the root handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Run listens on the configured address until ctx is cancelled, then
// drains open requests.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Info("HTTP API listening on %s", s.cfg.Addr)
		errCh <- s.echo.Start(s.cfg.Addr)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.echo.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}

func (s *Server) handleHealth(c echo.Context) error {
	if s.ports.Health != nil {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
		defer cancel()
		if err := s.ports.Health.Ping(ctx); err != nil {
			logger.Warn("health check failed: %v", err)
			return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		}
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// accessLog writes one structured line per request.
func accessLog() echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogRemoteIP:  true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(_ echo.Context, v middleware.RequestLoggerValues) error {
			ev := logger.L().Info()
			if v.Error != nil {
				ev = logger.L().Warn().Err(v.Error)
			}
			ev.Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Str("remote_ip", v.RemoteIP).
				Msg("request")
			return nil
		},
	})
}
