package httpserver

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/andnich05/CodeEntropyMeter/internal/buildinfo"
	"github.com/andnich05/CodeEntropyMeter/internal/errors"
	"github.com/andnich05/CodeEntropyMeter/internal/logger"
	"github.com/andnich05/CodeEntropyMeter/internal/observability"
)

const (
	defaultHeartbeat = 10 * time.Second
	shutdownTimeout  = 5 * time.Second
	streamBuffer     = 16
)

// Option configures a Server.
type Option func(*Server)

// WithDevices enables the device endpoints.
func WithDevices(d DeviceCatalog) Option {
	return func(s *Server) { s.devices = d }
}

// WithMetrics mounts /metrics and records request metrics.
func WithMetrics(m *observability.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithBuildInfo sets the version reported by /health.
func WithBuildInfo(b *buildinfo.Context) Option {
	return func(s *Server) { s.build = b }
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Server) { s.log = l }
}

// WithHeartbeat sets the interval of keep-alive comments on level streams.
func WithHeartbeat(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.heartbeat = d
		}
	}
}

// Server encapsulates the Echo server and its dependencies.
type Server struct {
	Echo      *echo.Echo
	listen    string
	meter     Meter
	devices   DeviceCatalog
	metrics   *observability.Metrics
	build     *buildinfo.Context
	log       logger.Logger
	heartbeat time.Duration
	done      chan struct{}
}

// New creates the server and registers all routes.
func New(listen string, m Meter, opts ...Option) *Server {
	s := &Server{
		Echo:      echo.New(),
		listen:    listen,
		meter:     m,
		heartbeat: defaultHeartbeat,
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = logger.Global().Module("http")
	}

	s.Echo.HideBanner = true
	s.Echo.HidePort = true
	s.Echo.Logger = newEchoLogger(s.log.Module("echo"))
	s.configureMiddleware()
	s.initRoutes()
	return s
}

func (s *Server) configureMiddleware() {
	s.Echo.Use(middleware.Recover())
	s.Echo.Use(middleware.RequestID())
	s.Echo.Use(s.requestMiddleware)
}

// requestMiddleware logs requests and records them in the HTTP metrics.
func (s *Server) requestMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		err := next(c)
		if err != nil {
			c.Error(err)
		}

		res := c.Response()
		elapsed := time.Since(start)
		s.log.Debug("request",
			logger.String("request_id", res.Header().Get(echo.HeaderXRequestID)),
			logger.String("method", c.Request().Method),
			logger.String("path", c.Path()),
			logger.Int("status", res.Status),
			logger.Duration("duration", elapsed))

		if s.metrics != nil {
			s.metrics.HTTP.RecordRequest(c.Request().Method, c.Path(), res.Status, elapsed.Seconds(), res.Size)
		}
		return nil
	}
}

func (s *Server) initRoutes() {
	s.Echo.GET("/health", s.health)

	api := s.Echo.Group("/api/v1")
	api.GET("/levels", s.getLevels)
	api.GET("/levels/stream", s.streamLevels)
	api.GET("/levels/block", s.getBlock)
	api.GET("/config", s.getConfig)
	api.PUT("/config", s.putConfig)
	api.PUT("/bitusage", s.putBitUsage)
	api.POST("/holders/reset", s.resetHolders)
	api.POST("/clip/reset", s.resetClip)
	api.POST("/bits/reset", s.resetBits)
	api.GET("/system", s.getSystem)
	if s.devices != nil {
		api.GET("/devices", s.getDevices)
	}

	if s.metrics != nil {
		s.Echo.GET("/metrics", echo.WrapHandler(s.metrics.Handler()))
	}
}

// Run serves until ctx is cancelled, then shuts down gracefully. Open level
// streams are closed first so that shutdown does not wait for them.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("HTTP server starting", logger.String("address", s.listen))
		errCh <- s.Echo.Start(s.listen)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errors.New(err).
			Component("http").
			Category(errors.CategoryNetwork).
			Context("address", s.listen).
			Build()
	case <-ctx.Done():
	}

	close(s.done)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	err := s.Echo.Shutdown(shutdownCtx)
	if startErr := <-errCh; startErr != nil && !errors.Is(startErr, http.ErrServerClosed) && err == nil {
		err = startErr
	}
	s.log.Info("HTTP server stopped")
	return err
}
