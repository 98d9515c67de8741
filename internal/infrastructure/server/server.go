package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	echoSwagger "github.com/swaggo/echo-swagger"
	"golang.org/x/time/rate"

	_ "github.com/eventcal/core/docs"
	httpHandlers "github.com/eventcal/core/internal/adapters/http"
	"github.com/eventcal/core/internal/application/services"
	"github.com/eventcal/core/internal/infrastructure/config"
	"github.com/eventcal/core/internal/infrastructure/logger"
	"github.com/eventcal/core/internal/infrastructure/metrics"
	"github.com/eventcal/core/internal/ports"
)

// Check reports whether a backing resource is usable.
type Check func(ctx context.Context) error

// Stats reports the current state of a backing resource, such as pool usage.
type Stats func() map[string]interface{}

// Dependencies are the collaborators the server routes to. Auth and Metrics
// may be nil when the feature is disabled.
type Dependencies struct {
	Events  ports.EventService
	Auth    *services.AuthService
	Metrics *metrics.Metrics
	// Checks are run by /ready, keyed by resource name.
	Checks map[string]Check
	// Stats are reported by /ready next to the checks.
	Stats map[string]Stats
	// Closers are released on Shutdown after the listener stopped.
	Closers []io.Closer
}

// Server represents the HTTP server
type Server struct {
	echo   *echo.Echo
	config *config.Config
	logger *logger.Logger
	deps   Dependencies
}

// New creates a new server instance
func New(cfg *config.Config, deps Dependencies, appLogger *logger.Logger) (*Server, error) {
	if deps.Events == nil {
		return nil, errors.New("server: event service is required")
	}
	if cfg.Auth.Enabled && deps.Auth == nil {
		return nil, errors.New("server: auth is enabled but no auth service was given")
	}

	e := echo.New()
	e.Validator = httpHandlers.NewValidator()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = httpHandlers.ErrorHandler(appLogger)
	e.Server.ReadTimeout = cfg.Server.ReadTimeout
	e.Server.WriteTimeout = cfg.Server.WriteTimeout
	e.Server.IdleTimeout = cfg.Server.IdleTimeout

	server := &Server{
		echo:   e,
		config: cfg,
		logger: appLogger.WithComponent("http"),
		deps:   deps,
	}

	server.setupMiddleware()
	server.setupRoutes()
	return server, nil
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// setupMiddleware configures middleware
func (s *Server) setupMiddleware() {
	s.echo.Use(middleware.Recover())
	s.echo.Use(middleware.RequestID())

	s.echo.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:       true,
		LogStatus:    true,
		LogMethod:    true,
		LogLatency:   true,
		LogError:     true,
		LogRemoteIP:  true,
		LogUserAgent: true,
		LogRequestID: true,
		LogValuesFunc: func(c echo.Context, values middleware.RequestLoggerValues) error {
			log := s.logger.WithRequestID(values.RequestID)
			if subject := subjectFromContext(c); subject != "" {
				log = log.WithSubject(subject)
			}
			if values.Error != nil {
				log.WithError(values.Error).Warnw("HTTP request failed",
					"method", values.Method,
					"uri", values.URI,
					"status", values.Status,
				)
				return nil
			}
			log.LogHTTPRequest(values.Method, values.URI, values.UserAgent, values.RemoteIP,
				values.Status, float64(values.Latency.Nanoseconds())/1e6)
			return nil
		},
	}))

	s.echo.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: strings.Split(s.config.Security.CORSAllowedOrigins, ","),
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
		AllowMethods: []string{http.MethodGet, http.MethodHead, http.MethodPut, http.MethodPost, http.MethodDelete},
	}))

	if s.config.Security.RateLimitRequests > 0 {
		s.echo.Use(middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
			Skipper: probeSkipper,
			Store: middleware.NewRateLimiterMemoryStoreWithConfig(middleware.RateLimiterMemoryStoreConfig{
				Rate:      rate.Limit(float64(s.config.Security.RateLimitRequests) / s.window().Seconds()),
				Burst:     s.config.Security.RateLimitRequests,
				ExpiresIn: s.window(),
			}),
			IdentifierExtractor: func(c echo.Context) (string, error) {
				return c.RealIP(), nil
			},
			ErrorHandler: func(c echo.Context, err error) error {
				return c.JSON(http.StatusForbidden, httpHandlers.ErrorResponse{Message: "rate limit exceeded"})
			},
			DenyHandler: func(c echo.Context, identifier string, err error) error {
				return c.JSON(http.StatusTooManyRequests, httpHandlers.ErrorResponse{Message: "rate limit exceeded"})
			},
		}))
	}

	s.echo.Use(middleware.SecureWithConfig(middleware.SecureConfig{
		XSSProtection:      "1; mode=block",
		ContentTypeNosniff: "nosniff",
		XFrameOptions:      "DENY",
		HSTSMaxAge:         31536000,
	}))

	if s.config.Server.RequestTimeout > 0 {
		s.echo.Use(middleware.TimeoutWithConfig(middleware.TimeoutConfig{
			Skipper:      probeSkipper,
			Timeout:      s.config.Server.RequestTimeout,
			ErrorMessage: `{"message":"request timed out"}`,
		}))
	}

	if s.deps.Metrics != nil {
		s.echo.Use(s.deps.Metrics.Middleware())
	}
}

func (s *Server) window() time.Duration {
	if s.config.Security.RateLimitWindow <= 0 {
		return time.Minute
	}
	return s.config.Security.RateLimitWindow
}

// setupRoutes configures all routes
func (s *Server) setupRoutes() {
	s.echo.GET("/health", s.healthCheck)
	s.echo.GET("/ready", s.readinessCheck)
	s.echo.GET("/swagger/*", echoSwagger.WrapHandler)

	if s.deps.Metrics != nil {
		s.echo.GET("/metrics", echo.WrapHandler(s.deps.Metrics.Handler()))
	}

	api := s.echo.Group("/api")
	if s.config.Auth.Enabled {
		api.Use(s.authMiddleware(s.deps.Auth))
	}

	httpHandlers.NewEventHandler(s.deps.Events, s.logger).Register(api)
	httpHandlers.NewEngineHandler(s.config.Limits.MaxOccurrences).Register(api)
	httpHandlers.NewCalendarHandler(s.deps.Events, s.logger).Register(api)
}

func (s *Server) healthCheck(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "ok",
		"version": s.config.App.Version,
		"time":    time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) readinessCheck(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	checks := make(map[string]string, len(s.deps.Checks))
	for name, check := range s.deps.Checks {
		if err := check(ctx); err != nil {
			status = http.StatusServiceUnavailable
			checks[name] = err.Error()
			s.logger.Warnw("Readiness check failed", "check", name, "error", err)
			continue
		}
		checks[name] = "ok"
	}

	state := "ready"
	if status != http.StatusOK {
		state = "not_ready"
	}
	resp := map[string]interface{}{
		"status": state,
		"checks": checks,
	}
	if len(s.deps.Stats) > 0 {
		stats := make(map[string]interface{}, len(s.deps.Stats))
		for name, report := range s.deps.Stats {
			stats[name] = report()
		}
		resp["stats"] = stats
	}
	return c.JSON(status, resp)
}

// Start starts the HTTP server. It returns nil after a graceful shutdown.
func (s *Server) Start() error {
	addr := s.config.Server.GetAddr()
	s.logger.Infow("Starting server", "address", addr)
	if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the listener and then releases every closer. All failures
// are reported together.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Infow("Shutting down server")

	var result *multierror.Error
	if err := s.echo.Shutdown(ctx); err != nil {
		result = multierror.Append(result, err)
	}
	for _, c := range s.deps.Closers {
		if err := c.Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

func probeSkipper(c echo.Context) bool {
	switch c.Path() {
	case "/health", "/ready", "/metrics":
		return true
	}
	return false
}
