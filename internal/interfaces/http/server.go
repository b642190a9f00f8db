// Package http is the caller-facing surface of the router: a local-only
// JSON API for routing, weight normalization, health and metrics.
package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"github.com/sawpanic/orderrouter/internal/allocation"
	"github.com/sawpanic/orderrouter/internal/domain"
	"github.com/sawpanic/orderrouter/internal/metrics"
)

// OrderRouter is the routing seam the server exposes
type OrderRouter interface {
	Route(ctx context.Context, req domain.TradeRequest) domain.RoutingResult
}

// HealthChecker reports dependency reachability for /health
type HealthChecker func(ctx context.Context) map[string]bool

// ServerConfig holds server configuration
type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// DefaultServerConfig returns a local-only server configuration
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Host:         "127.0.0.1",
		Port:         8400,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// Server serves the routing API
type Server struct {
	router      *mux.Router
	server      *http.Server
	orders      OrderRouter
	health      HealthChecker
	allocations *allocation.Store
	metrics     *metrics.Registry
	config      ServerConfig
}

// NewServer creates the HTTP surface. health, store and registry may be nil.
func NewServer(config ServerConfig, orders OrderRouter, health HealthChecker, store *allocation.Store, registry *metrics.Registry) *Server {
	s := &Server{
		router:      mux.NewRouter(),
		orders:      orders,
		health:      health,
		allocations: store,
		metrics:     registry,
		config:      config,
	}
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", config.Host, config.Port),
		Handler:      s.router,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		IdleTimeout:  config.IdleTimeout,
	}
	return s
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("/route", s.handleRoute).Methods(http.MethodPost)
	s.router.HandleFunc("/normalize", s.handleNormalize).Methods(http.MethodPost)
	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	if s.allocations != nil {
		s.router.HandleFunc("/allocations", s.handleAllocations).Methods(http.MethodGet)
	}
	if s.metrics != nil {
		s.router.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)
	}
}

// Handler exposes the route table for tests
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until the listener fails or Shutdown is called
func (s *Server) Start() error {
	log.Info().Str("addr", s.server.Addr).Msg("Routing API listening")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("routing API: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) handleRoute(w http.ResponseWriter, r *http.Request) {
	var req domain.TradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result := s.orders.Route(r.Context(), req)
	writeJSON(w, http.StatusOK, result)
}

// normalizeRequest wraps the raw weight map
type normalizeRequest struct {
	Weights map[string]float64 `json:"weights"`
}

type normalizeResponse struct {
	Allocations map[string]float64 `json:"allocations"`
}

func (s *Server) handleNormalize(w http.ResponseWriter, r *http.Request) {
	var req normalizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}

	writeJSON(w, http.StatusOK, normalizeResponse{
		Allocations: domain.NormalizeWeights(req.Weights),
	})
}

type healthResponse struct {
	Status       string          `json:"status"`
	Dependencies map[string]bool `json:"dependencies,omitempty"`
	FillRate     *float64        `json:"fill_rate,omitempty"`
	Timestamp    time.Time       `json:"timestamp"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok", Timestamp: time.Now().UTC()}
	if s.health != nil {
		resp.Dependencies = s.health(r.Context())
		for _, ok := range resp.Dependencies {
			if !ok {
				resp.Status = "degraded"
			}
		}
	}
	if s.metrics != nil {
		if rate, ok := s.metrics.FillRate(); ok {
			resp.FillRate = &rate
		}
	}

	status := http.StatusOK
	if resp.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}

type allocationsResponse struct {
	Allocations map[string]float64 `json:"allocations"`
	Source      string             `json:"source"`
	Published   time.Time          `json:"published"`
}

func (s *Server) handleAllocations(w http.ResponseWriter, r *http.Request) {
	source, published := s.allocations.Info()
	if published.IsZero() {
		writeError(w, http.StatusNotFound, "no allocation published yet")
		return
	}

	writeJSON(w, http.StatusOK, allocationsResponse{
		Allocations: s.allocations.Current(),
		Source:      source,
		Published:   published,
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
