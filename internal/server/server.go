// Package server provides the HTTP server setup and wiring.
package server

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/pendergraft/chainscout/internal/auth"
	"github.com/pendergraft/chainscout/internal/config"
	"github.com/pendergraft/chainscout/internal/health"
	"github.com/pendergraft/chainscout/internal/manager"
	"github.com/pendergraft/chainscout/internal/middleware/logging"
	"github.com/pendergraft/chainscout/internal/multichain"
	multichainTransport "github.com/pendergraft/chainscout/internal/multichain/transport"
	networksTransport "github.com/pendergraft/chainscout/internal/networks/transport"
	"github.com/pendergraft/chainscout/internal/observability/metrics"
	"github.com/pendergraft/chainscout/internal/ratelimit"
	"github.com/pendergraft/chainscout/internal/registry"
	"github.com/pendergraft/chainscout/internal/storage"
	verificationDomain "github.com/pendergraft/chainscout/internal/verification/domain"
	verificationTransport "github.com/pendergraft/chainscout/internal/verification/transport"
)

// Server is the HTTP server
type Server struct {
	cfg    *config.Config
	store  storage.Store
	logger *slog.Logger
	router *chi.Mux

	registry     *registry.Registry
	manager      *manager.Manager
	orchestrator *multichain.Orchestrator

	detector verificationDomain.Service
}

// New creates a new server and the explorer stack behind it
func New(cfg *config.Config, store storage.Store, logger *slog.Logger) *Server {
	s := &Server{
		cfg:    cfg,
		store:  store,
		logger: logger,
		router: chi.NewRouter(),
	}

	tracker := health.NewTracker(health.ConfigFrom(cfg.Circuit), store, logger)
	s.registry = registry.New(cfg.Explorers, tracker, logger, registry.WithHealthyThreshold(cfg.Circuit.HealthyThreshold))
	limiter := ratelimit.NewLimiter(cfg.Retry.MaxRateLimitWait)
	s.manager = manager.New(s.registry, limiter, manager.ConfigFrom(cfg.Retry), logger)
	s.orchestrator = multichain.New(s.manager, cfg.MultiChain.Workers, logger)

	detectorImpl := verificationDomain.NewService(s.manager, store, verificationDomain.ConfigFrom(cfg.Detection), logger)
	s.detector = verificationDomain.LoggingMiddleware(logger)(detectorImpl)

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

// Handler returns the HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// MetricsHandler returns the metrics HTTP handler for separate metrics server
func (s *Server) MetricsHandler() http.Handler {
	return metrics.Handler()
}

// Manager returns the explorer manager, used by the probe loop
func (s *Server) Manager() *manager.Manager {
	return s.manager
}

// Registry returns the explorer registry
func (s *Server) Registry() *registry.Registry {
	return s.registry
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)

	// Per-IP limiting needs RealIP first; health checks and metrics bypass it
	s.router.Use(ratelimit.Middleware(ratelimit.Config{
		Enabled:        s.cfg.RateLimit.Enabled,
		RequestsPerMin: s.cfg.RateLimit.RequestsPerMin,
		BurstSize:      s.cfg.RateLimit.BurstSize,
		CleanupMinutes: s.cfg.RateLimit.CleanupMinutes,
	}))

	s.router.Use(logging.Middleware(s.logger))
	s.router.Use(metrics.Middleware)
	s.router.Use(middleware.Recoverer)
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.cfg.CORS.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-API-Key"},
		ExposedHeaders: []string{"Retry-After"},
		MaxAge:         300,
	}))
	s.router.Use(MaxBodySize(int64(s.cfg.Security.MaxBodySizeMB) << 20))
}

func (s *Server) setupRoutes() {
	// Health checks
	s.router.Get("/health", s.handleHealth)
	s.router.Get("/healthz", s.handleHealth)
	s.router.Get("/readyz", s.handleReady)
	if metrics.Enabled() {
		s.router.Handle("/metrics", metrics.Handler())
	}

	// Create HTTP handlers for each domain
	networksHandler := networksTransport.NewHandler(s.manager, s.registry)
	contractsHandler := verificationTransport.NewHandler(s.detector)
	multichainHandler := multichainTransport.NewHandler(s.orchestrator)

	requireAuth := func(r chi.Router) {
		r.Use(auth.Middleware(s.cfg.Auth.APIKey, writeError))
	}

	// API v1 routes
	s.router.Route("/api/v1", func(r chi.Router) {
		r.Get("/health/report", networksHandler.HandleHealthReport)

		r.Group(func(r chi.Router) {
			requireAuth(r)
			r.Get("/auth/check", s.handleAuthCheck)
		})

		r.Route("/networks", func(r chi.Router) {
			// Read operations and probes - no auth required
			networksHandler.RegisterReadRoutes(r)

			// Maintenance - auth required
			r.Group(func(r chi.Router) {
				requireAuth(r)
				networksHandler.RegisterWriteRoutes(r)
			})
		})

		r.Route("/contracts", func(r chi.Router) {
			contractsHandler.RegisterReadRoutes(r)

			r.Group(func(r chi.Router) {
				requireAuth(r)
				contractsHandler.RegisterWriteRoutes(r)
			})
		})

		r.Route("/multichain", multichainHandler.RegisterRoutes)
	})
}

// Health check handler
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleReady reports ready once at least one network has a usable explorer
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	configured := s.registry.ConfiguredNetworks()
	if len(configured) == 0 {
		writeError(w, http.StatusServiceUnavailable, "NOT_READY", "no network has a configured explorer")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ready",
		"networks": configured,
	})
}

// handleAuthCheck lets clients confirm a key before saving it
func (s *Server) handleAuthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"authenticated": true,
		"auth_required": s.cfg.Auth.APIKey != "",
	})
}

// Helper functions

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"code":    code,
			"message": message,
		},
	})
}
