// Package api exposes the enhancement pipeline over HTTP for editor and
// tooling integrations that cannot shell out to the CLI.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"pce/internal/config"
	"pce/internal/enhance"
	"pce/internal/logging"
	"pce/internal/patterns"
	"pce/internal/storage"
)

// Server is the HTTP front end over the enhancement engine.
type Server struct {
	router   *http.ServeMux
	server   *http.Server
	addr     string
	logger   *logging.Logger
	engine   *enhance.Engine
	registry *patterns.Registry
	cache    *storage.Cache
}

// NewServer creates an HTTP server. cache may be nil when caching is
// disabled; the stats endpoint then reports an empty cache section.
func NewServer(cfg config.APIConfig, engine *enhance.Engine, registry *patterns.Registry, cache *storage.Cache, logger *logging.Logger) *Server {
	s := &Server{
		addr:     cfg.Addr,
		logger:   logger,
		engine:   engine,
		registry: registry,
		cache:    cache,
		router:   http.NewServeMux(),
	}

	s.registerRoutes()

	handler := s.applyMiddleware(s.router, cfg.TokenHash)
	s.server = &http.Server{
		Addr:         cfg.Addr,
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s
}

func (s *Server) registerRoutes() {
	s.router.HandleFunc("/healthz", s.handleHealth)
	s.router.HandleFunc("/v1/enhance", s.handleEnhance)
	s.router.HandleFunc("/v1/feedback", s.handleFeedback)
	s.router.HandleFunc("/v1/stats", s.handleStats)
}

// applyMiddleware wraps the handler with middleware in reverse order
func (s *Server) applyMiddleware(handler http.Handler, tokenHash string) http.Handler {
	handler = RecoveryMiddleware(s.logger)(handler)
	handler = AuthMiddleware(tokenHash, s.logger)(handler)
	handler = LoggingMiddleware(s.logger)(handler)
	handler = RequestIDMiddleware()(handler)
	return handler
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	s.logger.Info("Starting HTTP server", map[string]interface{}{
		"addr": s.addr,
	})

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down HTTP server", nil)

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}

	return nil
}

// ServeHTTP implements http.Handler for testing
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.server.Handler.ServeHTTP(w, r)
}
