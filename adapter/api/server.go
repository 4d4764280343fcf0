// Package api serves the subscription HTTP API.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/felixgeelhaar/subtrack/pkg/observability"
)

// Server is the HTTP API server.
type Server struct {
	mux     *http.ServeMux
	server  *http.Server
	config  ServerConfig
	logger  *slog.Logger
	handler *SubscriptionHandler
	health  *observability.HealthRegistry
	metrics observability.Metrics
}

// ServerConfig holds configuration for the API server.
type ServerConfig struct {
	Addr           string
	AuthUserHeader string
	AllowedOrigins []string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
}

// DefaultServerConfig returns the default server configuration.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Addr:           "0.0.0.0:5500",
		AuthUserHeader: "X-User-ID",
		AllowedOrigins: []string{"*"},
		ReadTimeout:    15 * time.Second,
		WriteTimeout:   15 * time.Second,
		IdleTimeout:    60 * time.Second,
	}
}

// NewServer creates a new API server. health and metrics may be nil.
func NewServer(cfg ServerConfig, handler *SubscriptionHandler, health *observability.HealthRegistry, metrics observability.Metrics, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if health == nil {
		health = observability.NewHealthRegistry(0)
	}
	if metrics == nil {
		metrics = observability.NoopMetrics{}
	}
	if cfg.AuthUserHeader == "" {
		cfg.AuthUserHeader = DefaultServerConfig().AuthUserHeader
	}

	s := &Server{
		mux:     http.NewServeMux(),
		config:  cfg,
		logger:  logger.With("component", "api"),
		handler: handler,
		health:  health,
		metrics: metrics,
	}
	s.registerRoutes()

	s.server = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.Handler(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return s
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /ready", s.handleReady)

	auth := func(h http.HandlerFunc) http.HandlerFunc {
		return requireUser(s.config.AuthUserHeader, s.logger, h)
	}

	s.mux.HandleFunc("POST /api/v1/subscriptions", auth(s.handler.Create))
	s.mux.HandleFunc("GET /api/v1/subscriptions", auth(s.handler.ListAll))
	s.mux.HandleFunc("GET /api/v1/subscriptions/upcoming-renewals", auth(s.handler.UpcomingRenewals))
	s.mux.HandleFunc("GET /api/v1/subscriptions/user/{id}", auth(s.handler.ListByUser))
	s.mux.HandleFunc("GET /api/v1/subscriptions/{id}", auth(s.handler.Get))
	s.mux.HandleFunc("PUT /api/v1/subscriptions/{id}", auth(s.handler.Update))
	s.mux.HandleFunc("DELETE /api/v1/subscriptions/{id}", auth(s.handler.Delete))
	s.mux.HandleFunc("PUT /api/v1/subscriptions/{id}/cancel", auth(s.handler.Cancel))
}

// Handler returns the full middleware chain around the routes.
func (s *Server) Handler() http.Handler {
	return withCORS(s.config.AllowedOrigins, s.config.AuthUserHeader,
		requestContext(s.logger, s.metrics, s.mux))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeData(w, http.StatusOK, map[string]string{
		"status": string(observability.HealthStatusHealthy),
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	health := s.health.Check(r.Context())
	if health.Status == observability.HealthStatusUnhealthy {
		writeJSON(w, http.StatusServiceUnavailable, envelope{Success: false, Message: "not ready", Data: health})
		return
	}
	writeData(w, http.StatusOK, health)
}

// Start serves until Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("starting API server", "addr", s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down API server")
	return s.server.Shutdown(ctx)
}
