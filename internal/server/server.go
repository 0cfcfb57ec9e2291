// Package server exposes the anonymize and deanonymize operations over
// HTTP for hosts that drive the engine as a service rather than a CLI.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/veilproject/veil/internal/config"
	"github.com/veilproject/veil/internal/engine"
	"github.com/veilproject/veil/internal/logger"
)

// Server wraps the engine behind an HTTP API.
type Server struct {
	config  *config.Config
	logger  *logger.Logger
	engine  *engine.Engine
	router  *mux.Router
	server  *http.Server
	limiter *clientLimiter
}

// New creates a new server instance
func New(cfg *config.Config, eng *engine.Engine, log *logger.Logger) *Server {
	router := mux.NewRouter()

	s := &Server{
		config:  cfg,
		logger:  log.WithComponent("server"),
		engine:  eng,
		router:  router,
		limiter: newClientLimiter(cfg.Server.RateLimit),
	}

	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      s.router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	return s
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	// Health check endpoint
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")

	// Info endpoint
	s.router.HandleFunc("/info", s.handleInfo).Methods("GET")

	api := s.router.PathPrefix("/v1").Subrouter()
	api.Use(s.loggingMiddleware)
	api.Use(s.rateLimitMiddleware)
	api.HandleFunc("/anonymize", s.handleAnonymize).Methods("POST")
	api.HandleFunc("/deanonymize", s.handleDeanonymize).Methods("POST")
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.logger.Info("Starting HTTP server",
		zap.Int("port", s.config.Server.Port),
		zap.String("output_dir", s.config.Server.OutputDir),
	)

	s.limiter.startCleanup()

	return s.server.ListenAndServe()
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping HTTP server")
	return s.server.Shutdown(ctx)
}

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{"status":"healthy","timestamp":"%s"}`, time.Now().Format(time.RFC3339))
}

// handleInfo handles info requests
func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	info := map[string]interface{}{
		"name":               "veil",
		"storage_backend":    s.config.Storage.Backend,
		"cache_enabled":      s.config.Cache.Enabled,
		"rate_limit_enabled": s.config.Server.RateLimit.Enabled,
	}
	if stats, ok := s.engine.CacheStats(); ok {
		info["cache"] = stats
	}

	writeJSON(w, http.StatusOK, info)
}
