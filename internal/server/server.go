// Package server provides the HTTP server for the application.
// It handles server lifecycle, API routes, and graceful shutdown.
package server

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/reviewpilot/reviewpilot/internal/api/router"
	"github.com/reviewpilot/reviewpilot/internal/config"
	"github.com/reviewpilot/reviewpilot/internal/engine"
	"github.com/reviewpilot/reviewpilot/internal/git/provider"
	"github.com/reviewpilot/reviewpilot/internal/orchestrator"
	"github.com/reviewpilot/reviewpilot/internal/store"
	"github.com/reviewpilot/reviewpilot/internal/tracker"
	"github.com/reviewpilot/reviewpilot/pkg/logger"
)

// HTTP server timeout configuration
const (
	defaultReadTimeout     = 30 * time.Second
	defaultWriteTimeout    = 30 * time.Second
	defaultIdleTimeout     = 60 * time.Second
	defaultShutdownTimeout = 30 * time.Second
	defaultStopTimeout     = 5 * time.Second
)

// Server represents the HTTP server
type Server struct {
	cfg        *config.Config
	configPath string
	httpServer *http.Server
	engine     *engine.Engine
	orch       *orchestrator.Orchestrator
	providers  *provider.Manager
	tracker    *tracker.Tracker
	router     *gin.Engine
	store      store.Store
}

// New creates a new server instance
func New(cfg *config.Config, e *engine.Engine, orch *orchestrator.Orchestrator, providers *provider.Manager, trk *tracker.Tracker, s store.Store) *Server {
	return NewWithConfigPath(cfg, e, orch, providers, trk, config.ConfigPath, s)
}

// NewWithConfigPath creates a new server instance with a custom config path
func NewWithConfigPath(cfg *config.Config, e *engine.Engine, orch *orchestrator.Orchestrator, providers *provider.Manager, trk *tracker.Tracker, configPath string, s store.Store) *Server {
	return &Server{
		cfg:        cfg,
		configPath: configPath,
		engine:     e,
		orch:       orch,
		providers:  providers,
		tracker:    trk,
		router:     newRouter(cfg.Server.Debug),
		store:      s,
	}
}

// newRouter builds the bare gin engine. Automatic trailing slash
// redirects are disabled: the API clients send exact paths and a 301
// would swallow POST bodies.
func newRouter(debug bool) *gin.Engine {
	if debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.RedirectTrailingSlash = false
	r.RedirectFixedPath = false
	return r
}

// SetupRoutes configures all API routes
func (s *Server) SetupRoutes() {
	router.SetupWithConfigPath(s.router, s.engine, s.orch, s.providers, s.tracker, s.cfg, s.configPath, s.store)
}

// Start starts the HTTP server in a background goroutine
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:         s.cfg.Server.Address(),
		Handler:      s.router,
		ReadTimeout:  defaultReadTimeout,
		WriteTimeout: defaultWriteTimeout,
		IdleTimeout:  defaultIdleTimeout,
	}

	logger.Info("Starting HTTP server",
		zap.String("address", s.cfg.Server.Address()),
		zap.Bool("debug", s.cfg.Server.Debug),
	)

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	return nil
}

// shutdown drains in-flight requests, giving up after timeout
func (s *Server) shutdown(timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return s.httpServer.Shutdown(ctx)
}

// WaitForShutdown blocks until a shutdown signal arrives, then stops the
// server gracefully. A second signal forces immediate exit.
func (s *Server) WaitForShutdown() {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	sig := <-quit
	logger.Info("Received shutdown signal, starting graceful shutdown (press Ctrl+C again to force exit)",
		zap.String("signal", sig.String()))

	go func() {
		sig := <-quit
		logger.Warn("Received second shutdown signal, forcing exit",
			zap.String("signal", sig.String()))
		os.Exit(1)
	}()

	if err := s.shutdown(defaultShutdownTimeout); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server stopped")
}

// Stop stops the server immediately
func (s *Server) Stop() error {
	if s.httpServer == nil {
		return nil
	}
	return s.shutdown(defaultStopTimeout)
}

// Router returns the underlying Gin router
func (s *Server) Router() *gin.Engine {
	return s.router
}
