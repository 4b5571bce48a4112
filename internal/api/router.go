package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/atelierhq/recall/internal/database"
	mw "github.com/atelierhq/recall/internal/middleware"
	inats "github.com/atelierhq/recall/internal/nats"
)

// HandlerSet holds handler functions injected from main.go to avoid import cycles.
type HandlerSet struct {
	// Memory handlers
	StoreMemory    http.HandlerFunc
	GetContext     http.HandlerFunc
	SearchMemory   http.HandlerFunc
	DeleteMemory   http.HandlerFunc
	MemoryFeedback http.HandlerFunc

	// Pattern handlers
	TopPatterns      http.HandlerFunc
	IndustryPatterns http.HandlerFunc
	RecordAnalysis   http.HandlerFunc

	// Insight handlers
	LatestInsights  http.HandlerFunc
	RefreshInsights http.HandlerFunc
}

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	CORSAllowedOrigins []string
	WriteRateLimiter   func(http.Handler) http.Handler
}

func NewRouter(pool *pgxpool.Pool, natsClient *inats.Client, cfg RouterConfig, h HandlerSet) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(mw.RequestID)
	r.Use(mw.SecurityHeaders)
	r.Use(mw.Logging)
	r.Use(mw.Recovery)
	r.Use(mw.Metrics)
	r.Use(cors.Handler(mw.CORS(cfg.CORSAllowedOrigins)))

	// Liveness probe — always 200, no dependency checks
	r.Get("/health/live", func(w http.ResponseWriter, r *http.Request) {
		JSON(w, http.StatusOK, map[string]string{"status": "alive"})
	})

	// Readiness probe — checks DB and NATS
	readinessHandler := func(w http.ResponseWriter, r *http.Request) {
		health := map[string]string{
			"status":   "healthy",
			"database": "healthy",
			"nats":     "healthy",
		}

		status := http.StatusOK

		if err := database.HealthCheck(r.Context(), pool); err != nil {
			health["database"] = "unhealthy"
			health["status"] = "degraded"
			status = http.StatusServiceUnavailable
		}

		if natsClient != nil && !natsClient.Healthy() {
			health["nats"] = "unhealthy"
			health["status"] = "degraded"
			status = http.StatusServiceUnavailable
		} else if natsClient == nil {
			health["nats"] = "not configured"
		}

		JSON(w, status, health)
	}

	r.Get("/health/ready", readinessHandler)
	r.Get("/health", readinessHandler)

	// Prometheus metrics
	r.Handle("/metrics", promhttp.Handler())

	// API v1
	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/memories", func(r chi.Router) {
			// Write paths are rate-limited; reads are not
			r.Group(func(r chi.Router) {
				if cfg.WriteRateLimiter != nil {
					r.Use(cfg.WriteRateLimiter)
				}
				r.Post("/", h.StoreMemory)
				r.Post("/{memoryID}/feedback", h.MemoryFeedback)
				r.Delete("/{scope}/{memoryID}", h.DeleteMemory)
			})

			r.Get("/context", h.GetContext)
			r.Post("/search", h.SearchMemory)
		})

		r.Route("/patterns", func(r chi.Router) {
			r.Get("/records/{recordID}", h.RecordAnalysis)
			r.Get("/{category}", h.TopPatterns)
			r.Get("/{category}/industry/{industry}", h.IndustryPatterns)
		})

		r.Route("/insights", func(r chi.Router) {
			r.Get("/{category}", h.LatestInsights)
			r.Post("/{category}/refresh", h.RefreshInsights)
		})
	})

	return r
}
