package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"

	mw "github.com/tphakala/spamguard-go/internal/api/middleware"
	v2 "github.com/tphakala/spamguard-go/internal/api/v2"
	"github.com/tphakala/spamguard-go/internal/conf"
	"github.com/tphakala/spamguard-go/internal/logger"
	"github.com/tphakala/spamguard-go/internal/observability"
)

// Server is the HTTP server hosting the JSON API.
type Server struct {
	echo     *echo.Echo
	config   *Config
	settings *conf.Settings
	log      logger.Logger

	detector      v2.Detector
	apiOptions    []v2.Option
	apiController *v2.Controller
	metrics       *observability.Metrics
	listener      net.Listener

	startTime time.Time
}

// ServerOption is a functional option for configuring the Server.
type ServerOption func(*Server)

// WithAPIOptions passes options through to the v2 controller.
func WithAPIOptions(opts ...v2.Option) ServerOption {
	return func(s *Server) {
		s.apiOptions = append(s.apiOptions, opts...)
	}
}

// WithMetrics enables HTTP metrics and, when configured, the scrape endpoint.
func WithMetrics(m *observability.Metrics) ServerOption {
	return func(s *Server) {
		s.metrics = m
	}
}

// WithListener serves on an existing listener instead of binding Config.Listen.
func WithListener(ln net.Listener) ServerOption {
	return func(s *Server) {
		s.listener = ln
	}
}

// New creates a new HTTP server with the given settings and options.
func New(settings *conf.Settings, detector v2.Detector, opts ...ServerOption) (*Server, error) {
	config := ConfigFromSettings(settings)
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid server configuration: %w", err)
	}

	s := &Server{
		config:    config,
		settings:  settings,
		log:       GetLogger(),
		detector:  detector,
		startTime: time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.echo = echo.New()
	s.echo.HideBanner = true
	s.echo.HidePort = true
	if s.listener != nil {
		s.echo.Listener = s.listener
	}
	if config.Debug {
		s.echo.Logger.SetLevel(log.DEBUG)
	} else {
		s.echo.Logger.SetLevel(log.WARN)
	}

	s.echo.Server.ReadTimeout = config.ReadTimeout
	s.echo.Server.WriteTimeout = config.WriteTimeout
	s.echo.Server.IdleTimeout = config.IdleTimeout

	s.setupMiddleware()

	if err := s.setupRoutes(); err != nil {
		return nil, fmt.Errorf("failed to setup routes: %w", err)
	}

	s.log.Info("HTTP server initialized",
		logger.String("address", config.Address()),
		logger.String("metrics_path", config.MetricsPath),
		logger.Bool("debug", config.Debug))

	return s, nil
}

// setupMiddleware configures the echo middleware stack.
func (s *Server) setupMiddleware() {
	// Recovery middleware - should be first
	s.echo.Use(echomw.Recover())
	s.echo.Use(mw.NewTraceID())
	if s.metrics != nil {
		s.echo.Use(mw.NewMetrics(s.metrics.HTTP))
	}
	s.echo.Use(mw.NewRequestLoggerWithSkipper(s.log.Module("http"), func(c echo.Context) bool {
		return s.config.MetricsPath != "" && c.Path() == s.config.MetricsPath
	}))

	securityConfig := mw.DefaultSecurityConfig()
	securityConfig.AllowedOrigins = s.config.AllowedOrigins

	s.echo.Use(mw.NewCORS(securityConfig))
	s.echo.Use(mw.NewBodyLimit(s.config.BodyLimit))
	s.echo.Use(mw.NewSecureHeaders(securityConfig))
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() error {
	s.echo.GET("/health", s.healthCheck)

	if s.metrics != nil && s.config.MetricsPath != "" {
		s.echo.GET(s.config.MetricsPath, echo.WrapHandler(s.metrics.Handler()))
	}

	opts := append([]v2.Option{v2.WithStartTime(s.startTime)}, s.apiOptions...)
	if s.metrics != nil {
		opts = append(opts, v2.WithHTTPMetrics(s.metrics.HTTP))
	}

	controller, err := v2.New(s.echo, s.settings, s.detector, opts...)
	if err != nil {
		return fmt.Errorf("failed to initialize API v2: %w", err)
	}
	s.apiController = controller
	s.echo.HTTPErrorHandler = controller.HTTPErrorHandler

	return nil
}

// healthCheck is a dependency-free liveness probe.
func (s *Server) healthCheck(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"status":    "ok",
		"uptime":    time.Since(s.startTime).Round(time.Second).String(),
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

// Run serves requests until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.startBlocking()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.log.Info("shutdown requested, stopping HTTP server")
	if err := s.Shutdown(); err != nil {
		return err
	}
	return <-errCh
}

// startBlocking serves until the server is shut down.
func (s *Server) startBlocking() error {
	s.log.Info("starting HTTP server", logger.String("address", s.config.Address()))
	err := s.echo.Start(s.config.Address())
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()

	if err := s.echo.Shutdown(ctx); err != nil {
		s.log.Error("error during server shutdown", logger.Error(err))
		return fmt.Errorf("shutdown error: %w", err)
	}

	s.log.Info("server shutdown complete")
	return nil
}

// Addr returns the bound address once the server is listening, or nil.
func (s *Server) Addr() net.Addr {
	return s.echo.ListenerAddr()
}

// APIController returns the v2 API controller.
func (s *Server) APIController() *v2.Controller {
	return s.apiController
}

// Echo returns the underlying echo instance.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}
