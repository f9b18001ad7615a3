package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jonesrussell/catalog-classifier/internal/config"
	"github.com/jonesrussell/catalog-classifier/internal/logger"
	"github.com/jonesrussell/catalog-classifier/internal/telemetry"
)

const (
	defaultIdleTimeout     = 120 * time.Second
	defaultShutdownTimeout = 10 * time.Second
)

// Server wraps the HTTP server with lifecycle management.
type Server struct {
	router *gin.Engine
	server *http.Server
	logger logger.Logger
}

// NewServer builds the router with standard middleware and all service
// routes, and wires it into an http.Server.
func NewServer(handler *Handler, cfg *config.Config, tp *telemetry.Provider, log logger.Logger) *Server {
	if cfg.Service.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(RecoveryMiddleware(log))
	router.Use(LoggerMiddleware(log))

	setupRoutes(router, handler, cfg, tp)

	return &Server{
		router: router,
		server: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Service.Port),
			Handler:      router,
			ReadTimeout:  cfg.Service.ReadTimeout,
			WriteTimeout: cfg.Service.WriteTimeout,
			IdleTimeout:  defaultIdleTimeout,
		},
		logger: log,
	}
}

func setupRoutes(router *gin.Engine, handler *Handler, cfg *config.Config, tp *telemetry.Provider) {
	router.GET("/health", handler.Health)
	if tp != nil {
		router.GET("/metrics", gin.WrapH(tp.Handler()))
	}

	// Webhook deliveries authenticate with an HMAC signature, not a token.
	router.POST("/webhooks/products/update", handler.ProductUpdated)

	v1 := router.Group("/api/v1")

	cmd := v1.Group("", BearerAuthMiddleware(cfg.Auth.CommandSecret))
	cmd.POST("/commands", handler.RunCommands)
	cmd.GET("/jobs", handler.ListJobs)
	cmd.GET("/jobs/:id", handler.GetJob)
	cmd.GET("/rules", handler.ListRules)
	cmd.POST("/rules", handler.CreateRule)
	cmd.DELETE("/rules/:name", handler.DeleteRule)
	cmd.POST("/rules/reload", handler.ReloadRules)
	cmd.GET("/history", handler.ListHistory)

	// Backfill floods the remote API; its secret is separate so the broad
	// command credential cannot trigger one.
	backfill := v1.Group("", BearerAuthMiddleware(cfg.Auth.BackfillSecret))
	backfill.POST("/backfill", handler.StartBackfill)
}

// Router returns the underlying gin engine.
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Start starts the HTTP server in a blocking manner.
func (s *Server) Start() error {
	s.logger.Info("Starting HTTP server",
		logger.String("address", s.server.Addr),
		logger.Duration("read_timeout", s.server.ReadTimeout),
		logger.Duration("write_timeout", s.server.WriteTimeout),
	)

	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Shutdown gracefully drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down HTTP server")

	shutdownCtx, cancel := context.WithTimeout(ctx, defaultShutdownTimeout)
	defer cancel()

	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}

	s.logger.Info("HTTP server stopped gracefully")
	return nil
}
