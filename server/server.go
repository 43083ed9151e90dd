// Package server exposes the job, run, question and log endpoints over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/ncobase/runner/config"
	"github.com/ncobase/runner/ctxutil"
	"github.com/ncobase/runner/logging/logger"
	"github.com/ncobase/runner/logstream"
	"github.com/ncobase/runner/service"
	"github.com/ncobase/runner/worker"
)

// TraceHeader carries the request trace id in both directions.
const TraceHeader = "X-Trace-Id"

// Server is the HTTP surface.
type Server struct {
	cfg    *config.Config
	svc    *service.Service
	logs   *logstream.Gateway
	log    *logger.Logger
	worker *worker.Handle
	engine *gin.Engine
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(l *logger.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.log = l
		}
	}
}

// WithWorker exposes the status of an in-process worker at /worker.
func WithWorker(h *worker.Handle) Option {
	return func(s *Server) { s.worker = h }
}

// New creates the server and its router.
func New(cfg *config.Config, svc *service.Service, logs *logstream.Gateway, opts ...Option) *Server {
	s := &Server{cfg: cfg, svc: svc, logs: logs, log: logger.StdLogger()}
	for _, opt := range opts {
		opt(s)
	}
	s.engine = s.setupRouter()
	return s
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) setupRouter() *gin.Engine {
	switch s.cfg.RunMode {
	case gin.DebugMode, gin.TestMode:
		gin.SetMode(s.cfg.RunMode)
	default:
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(s.traceMiddleware())
	r.Use(s.loggerMiddleware())

	h := &handler{svc: s.svc, logs: s.logs, log: s.log}

	r.GET("/health", s.health)
	r.GET("/stats", h.stats)
	if s.worker != nil {
		r.GET("/worker", func(c *gin.Context) { c.JSON(http.StatusOK, s.worker.Status()) })
	}

	jobs := r.Group("/jobs")
	jobs.POST("", h.submit)
	jobs.GET("", h.listJobs)
	jobs.GET("/:id", h.getJob)
	jobs.GET("/:id/runs", h.listRuns)
	jobs.POST("/:id/cancel", h.cancel)
	jobs.GET("/:id/questions", h.listQuestions)

	r.POST("/questions/:id/answer", h.answer)
	r.POST("/questions/:id/skip", h.skip)

	r.GET("/runs/:id", h.getRun)
	r.GET("/runs/:id/logs", h.runLogs)

	return r
}

func (s *Server) health(c *gin.Context) {
	if err := s.svc.Ping(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

// traceMiddleware propagates or creates the request trace id.
func (s *Server) traceMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		if id := c.GetHeader(TraceHeader); id != "" {
			ctx = ctxutil.SetTraceID(ctx, id)
		}
		ctx, id := ctxutil.EnsureTraceID(ctx)
		c.Request = c.Request.WithContext(ctx)
		c.Header(TraceHeader, id)
		c.Next()
	}
}

// loggerMiddleware creates request logging middleware.
func (s *Server) loggerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method

		c.Next()

		s.log.Info(c.Request.Context(), "HTTP request",
			"method", method,
			"path", path,
			"status", c.Writer.Status(),
			"duration", time.Since(start).String(),
		)
	}
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
// There is no write timeout: log streams stay open until their run ends.
func (s *Server) ListenAndServe(ctx context.Context) error {
	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       2 * time.Minute,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info(ctx, "Starting server", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	s.log.Info(ctx, "Server stopped")
	return nil
}
