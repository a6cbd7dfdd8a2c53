// Package http is the HTTP adapter over the review services. It translates
// requests into service calls and maps domain errors to status codes.
package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/garyjia/expense-gate/internal/config"
)

// Server is the HTTP server adapter
type Server struct {
	config     config.ServerConfig
	httpServer *http.Server
	router     *gin.Engine
	handlers   *Handlers
	registry   *prometheus.Registry
	logger     *zap.Logger
}

// NewServer creates a new HTTP server wired to the given handlers.
func NewServer(cfg config.ServerConfig, handlers *Handlers, registry *prometheus.Registry, logger *zap.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)

	server := &Server{
		config:   cfg,
		router:   gin.New(),
		handlers: handlers,
		registry: registry,
		logger:   logger,
	}

	server.setupMiddleware()
	server.setupRoutes()
	return server
}

// setupMiddleware configures middleware for the router
func (s *Server) setupMiddleware() {
	s.router.Use(gin.Recovery())
	s.router.Use(s.loggingMiddleware())
	s.router.Use(identityMiddleware())
}

// loggingMiddleware creates a logging middleware
func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method

		c.Next()

		s.logger.Info("HTTP request",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handlers.HealthCheck)
	if s.registry != nil {
		s.router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})))
	}

	api := s.router.Group("/api/v1")
	{
		api.POST("/expenses", s.handlers.SubmitExpense)
		api.POST("/expenses/batch", s.handlers.SubmitBatch)
		api.GET("/expenses", s.handlers.ListExpenses)
		api.GET("/expenses/:transactionId", s.handlers.GetExpense)
		api.POST("/expenses/:transactionId/decision", requireAdmin(), s.handlers.ResolveExpense)

		api.GET("/policies", s.handlers.ListPolicies)
		api.GET("/policies/:id", s.handlers.GetPolicy)
		api.POST("/policies", requireAdmin(), s.handlers.CreatePolicy)
		api.PUT("/policies/:id", requireAdmin(), s.handlers.UpdatePolicy)
		api.PATCH("/policies/:id/status", requireAdmin(), s.handlers.SetPolicyStatus)

		api.GET("/audit", requireAdmin(), s.handlers.ListAuditEvents)
	}
}

// Start starts the HTTP server and blocks until the context is cancelled or
// the listener fails.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	s.logger.Info("Starting HTTP server", zap.String("address", addr))

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("HTTP server shutdown requested")
		return s.Stop()
	case err := <-errCh:
		s.logger.Error("HTTP server error", zap.Error(err))
		return err
	}
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop() error {
	if s.httpServer == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error("HTTP server shutdown error", zap.Error(err))
		return err
	}

	s.logger.Info("HTTP server stopped")
	return nil
}

// Router returns the underlying gin router (for testing)
func (s *Server) Router() *gin.Engine {
	return s.router
}
