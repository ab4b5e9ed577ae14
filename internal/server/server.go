package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/recap/internal/common"
	"github.com/ternarybob/recap/internal/handlers"
)

// Server manages the HTTP API surface over the jobs service.
type Server struct {
	jobs   *handlers.JobsHandler
	logger arbor.ILogger
	server *http.Server
}

// New creates an HTTP server for the given handlers.
func New(cfg *common.ServerConfig, jobs *handlers.JobsHandler, logger arbor.ILogger) *Server {
	s := &Server{
		jobs:   jobs,
		logger: logger,
	}

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.setupRoutes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// API routes - job creation, status, report, global rollup
	mux.HandleFunc("/api/jobs", s.jobs.CreateHandler)
	mux.HandleFunc("/api/jobs/", s.jobs.JobHandler)
	mux.HandleFunc("/api/rollup", s.jobs.RollupHandler)

	mux.HandleFunc("/api/health", func(w http.ResponseWriter, r *http.Request) {
		handlers.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	mux.HandleFunc("/api/version", func(w http.ResponseWriter, r *http.Request) {
		handlers.WriteJSON(w, http.StatusOK, map[string]string{"version": common.GetVersion()})
	})

	return mux
}

// Start starts the HTTP server and blocks until shutdown.
func (s *Server) Start() error {
	s.logger.Info().Str("address", s.server.Addr).Msg("HTTP server starting")

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	s.logger.Info().Msg("HTTP server stopped")
	return nil
}
