// Package httpserver provides the HTTP REST API of the listing service.
package httpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/tastemap/listing-service/internal/database"
	"github.com/tastemap/listing-service/internal/domain"
	"github.com/tastemap/listing-service/internal/listing"
	"github.com/tastemap/listing-service/internal/observability"
	"github.com/tastemap/listing-service/internal/repository"
)

// ListingEngine serves listing pages. *listing.Engine implements it.
type ListingEngine interface {
	List(ctx context.Context, req listing.Request) (*listing.Page, error)
}

// CounterService applies and reads engagement counters. *counters.Service
// implements it.
type CounterService interface {
	IncreaseView(ctx context.Context, restaurantID int64) (int64, error)
	ToggleLike(ctx context.Context, userID, restaurantID int64) (*domain.LikeResult, error)
	GetStats(ctx context.Context, restaurantID int64) (*domain.RestaurantStats, error)
	GetStatsMany(ctx context.Context, restaurantIDs []int64) ([]domain.RestaurantStats, error)
	IsLiked(ctx context.Context, userID, restaurantID int64) (bool, error)
}

// HealthChecker reports database health. *database.DB implements it.
type HealthChecker interface {
	Health(ctx context.Context) database.HealthStatus
}

// Dependencies are the collaborators the handlers call.
type Dependencies struct {
	Listing  ListingEngine
	Counters CounterService
	Reviews  repository.ReviewFeedRepository
	Users    listing.CohortResolver
	Health   HealthChecker
}

// RateLimitConfig configures the per-client limiter on mutation endpoints.
type RateLimitConfig struct {
	Enabled           bool
	RequestsPerSecond float64
	Burst             int
	ClientTTL         time.Duration
}

// Config holds HTTP server configuration.
type Config struct {
	Address         string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	ReviewPageSize  int
	RateLimit       RateLimitConfig
}

// Server is the HTTP REST API server.
type Server struct {
	cfg        Config
	deps       Dependencies
	router     chi.Router
	httpServer *http.Server
	limiter    *clientLimiter
	validate   *validator.Validate
	logger     zerolog.Logger
	metrics    *observability.Metrics
}

// NewServer creates a new HTTP server with all dependencies. metrics may be nil.
func NewServer(cfg Config, deps Dependencies, logger zerolog.Logger, metrics *observability.Metrics) *Server {
	if cfg.ReviewPageSize <= 0 {
		cfg.ReviewPageSize = repository.DefaultReviewPageSize
	}

	s := &Server{
		cfg:      cfg,
		deps:     deps,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   logger.With().Str("component", "http-server").Logger(),
		metrics:  metrics,
	}
	if cfg.RateLimit.Enabled {
		s.limiter = newClientLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst, cfg.RateLimit.ClientTTL, time.Now)
	}

	s.router = s.buildRouter()

	s.httpServer = &http.Server{
		Addr:         cfg.Address,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return s
}

// buildRouter creates the chi router with all middleware and routes.
func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestIDMiddleware)
	r.Use(jsonContentTypeMiddleware)

	// Health endpoints
	r.Get("/healthz", s.healthHandler)
	r.Get("/readyz", s.readinessHandler)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(requesterMiddleware)

		r.Get("/restaurants", s.listRestaurants)
		r.Get("/restaurants/stats", s.getStatsMany)
		r.Get("/restaurants/{restaurantID}/stats", s.getStats)
		r.Get("/restaurants/{restaurantID}/reviews", s.listReviews)
		r.Get("/users/{userID}/cohort", s.getUserCohort)

		r.Group(func(r chi.Router) {
			r.Use(s.rateLimitMiddleware)
			r.Post("/restaurants/{restaurantID}/views", s.increaseView)
			r.Post("/restaurants/{restaurantID}/likes", s.toggleLike)
		})
	})

	return r
}

// Handler returns the root handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.logger.Info().Str("address", s.httpServer.Addr).Msg("HTTP server starting")
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("listen on HTTP address: %w", err)
	}
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// healthHandler reports liveness only.
func (s *Server) healthHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// readinessHandler reports whether the database answers a ping.
func (s *Server) readinessHandler(w http.ResponseWriter, r *http.Request) {
	if s.deps.Health == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
		return
	}
	health := s.deps.Health.Health(r.Context())
	if !health.Healthy() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status":   "not_ready",
			"database": health.Status,
			"error":    health.Error,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":   "ready",
		"database": "healthy",
	})
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	// Headers are already sent; an encode failure can only be dropped.
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{
		"error": message,
	})
}
