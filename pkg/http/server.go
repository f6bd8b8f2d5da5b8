package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"StatArb/pkg/http/middleware"
	"StatArb/pkg/logger"
)

type ServerOption func(*ServerConfig)

type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	SlowRequest     time.Duration
	CORS            bool
	MetricsPath     string
	Middleware      []echo.MiddlewareFunc
}

// Server wraps an echo instance with the standard middleware chain.
type Server struct {
	echo   *echo.Echo
	http   *http.Server
	config *ServerConfig
	logger *logger.Logger
	errCh  chan error
}

func NewServer(l *logger.Logger, handler Handler, opts ...ServerOption) *Server {
	cfg := &ServerConfig{
		Host:            "0.0.0.0",
		Port:            8080,
		ReadTimeout:     10 * time.Second,
		WriteTimeout:    10 * time.Second,
		ShutdownTimeout: 10 * time.Second,
		SlowRequest:     500 * time.Millisecond,
		CORS:            true,
		MetricsPath:     "/metrics",
	}
	for _, opt := range opts {
		opt(cfg)
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover(l))
	e.Use(middleware.RequestLogging(l, cfg.SlowRequest))
	e.Use(middleware.Metrics())
	if cfg.CORS {
		e.Use(middleware.CORS(middleware.CORSConfig{
			AllowOrigins: []string{"*"},
			AllowMethods: []string{http.MethodGet, http.MethodOptions},
			AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept},
		}))
	}
	e.Use(cfg.Middleware...)

	if handler != nil {
		handler.RegisterRoutes(e)
	}
	if cfg.MetricsPath != "" {
		e.GET(cfg.MetricsPath, echo.WrapHandler(promhttp.Handler()))
	}

	return &Server{
		echo: e,
		http: &http.Server{
			Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
			Handler:      e,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		},
		config: cfg,
		logger: l,
		errCh:  make(chan error, 1),
	}
}

// Start listens in the background. A listener failure is reported on Err.
func (s *Server) Start() error {
	go func() {
		s.logger.Info("http server listening", logger.String("addr", s.http.Addr))
		if err := s.echo.StartServer(s.http); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http server error", logger.Error(err))
			s.errCh <- err
		}
	}()
	return nil
}

// Err yields a listener failure.
func (s *Server) Err() <-chan error { return s.errCh }

func (s *Server) Stop(ctx context.Context) error {
	if err := s.echo.Shutdown(ctx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	s.logger.Info("http server stopped")
	return nil
}

func (s *Server) Echo() *echo.Echo { return s.echo }

func (s *Server) ShutdownTimeout() time.Duration { return s.config.ShutdownTimeout }

func WithHost(host string) ServerOption {
	return func(c *ServerConfig) { c.Host = host }
}

func WithPort(port int) ServerOption {
	return func(c *ServerConfig) { c.Port = port }
}

func WithTimeouts(read, write, shutdown time.Duration) ServerOption {
	return func(c *ServerConfig) {
		c.ReadTimeout = read
		c.WriteTimeout = write
		c.ShutdownTimeout = shutdown
	}
}

func WithCORS(enabled bool) ServerOption {
	return func(c *ServerConfig) { c.CORS = enabled }
}

// WithMetricsPath mounts the Prometheus handler; empty disables it.
func WithMetricsPath(path string) ServerOption {
	return func(c *ServerConfig) { c.MetricsPath = path }
}

func WithMiddleware(mw ...echo.MiddlewareFunc) ServerOption {
	return func(c *ServerConfig) { c.Middleware = append(c.Middleware, mw...) }
}
