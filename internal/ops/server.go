// Package ops exposes the operational HTTP surface: metrics, health
// probes and debug endpoints. It runs on its own listener so the
// public API can be fronted by a load balancer without exposing any
// of this.
package ops

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/pulsehub/pulse/internal/logging"
	"github.com/pulsehub/pulse/internal/registry"
	"github.com/pulsehub/pulse/internal/telemetry"
	"github.com/rs/zerolog"
)

// Config contains ops server configuration
type Config struct {
	// Listen address
	Addr string

	// Metrics exposure
	MetricsEnabled  bool
	MetricsEndpoint string
}

// DefaultConfig returns a default configuration
func DefaultConfig() Config {
	return Config{
		Addr:            ":9090",
		MetricsEnabled:  true,
		MetricsEndpoint: "/metrics",
	}
}

// Server is the operational HTTP server
type Server struct {
	config   Config
	registry *registry.Registry
	server   *http.Server
	logger   zerolog.Logger
}

// NewServer creates an ops server
func NewServer(config Config, reg *registry.Registry) *Server {
	defaults := DefaultConfig()
	if config.Addr == "" {
		config.Addr = defaults.Addr
	}
	if config.MetricsEndpoint == "" {
		config.MetricsEndpoint = defaults.MetricsEndpoint
	}

	return &Server{
		config:   config,
		registry: reg,
		logger:   logging.Component("ops"),
	}
}

// Start runs the ops server until the context is canceled
func (s *Server) Start(ctx context.Context) error {
	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(logging.HTTPMiddleware())
	r.Use(telemetry.HTTPMiddleware("pulse-ops"))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET"},
	}))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	if s.config.MetricsEnabled {
		r.Handle(s.config.MetricsEndpoint, promhttp.Handler())
	}

	r.Get("/debug/registry", s.handleDebugRegistry)

	s.server = &http.Server{
		Addr:              s.config.Addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	s.logger.Info().Str("addr", s.config.Addr).Msg("Starting ops server")

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("Ops server error")
		}
	}()

	<-ctx.Done()
	return nil
}

// handleDebugRegistry reports live connection counts
func (s *Server) handleDebugRegistry(w http.ResponseWriter, r *http.Request) {
	users := s.registry.UserCount()
	connections := s.registry.ConnectionCount()

	logger := logging.FromContext(r.Context())
	logger.Debug().
		Int("users", users).
		Int("connections", connections).
		Msg("Registry snapshot requested")

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]int{
		"users":       users,
		"connections": connections,
	})
}

// Shutdown stops the ops server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info().Msg("Shutting down ops server")
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
