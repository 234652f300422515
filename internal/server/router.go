package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/cloo-solutions/tutorfit/internal/api/handlers"
	"github.com/cloo-solutions/tutorfit/internal/api/middleware"
)

type RouterConfig struct {
	Logger            *zap.Logger
	AssignmentHandler *handlers.AssignmentHandler
	AdminHandler      *handlers.AdminHandler
	ClusterHandler    *handlers.ClusterHandler
	HealthHandler     *handlers.HealthHandler
	// MetricsHandler defaults to the prometheus default registry.
	MetricsHandler http.Handler
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	const maxBodyBytes int64 = 1 * 1024 * 1024

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	metricsHandler := cfg.MetricsHandler
	if metricsHandler == nil {
		metricsHandler = promhttp.Handler()
	}

	r.Use(middleware.RequestID)
	r.Use(middleware.SentryMiddleware)
	r.Use(middleware.AccessLog(logger))
	r.Use(middleware.MaxBodyBytes(maxBodyBytes))

	healthHandler := cfg.HealthHandler
	if healthHandler == nil {
		healthHandler = handlers.NewHealthHandler(nil)
	}
	r.Get("/health", healthHandler.Health)
	r.Method(http.MethodGet, "/metrics", metricsHandler)

	r.Route("/assignments", func(r chi.Router) {
		r.Post("/", cfg.AssignmentHandler.Assign)
		r.Post("/{id}/feedback", cfg.AssignmentHandler.Feedback)
	})

	r.Route("/clusters", func(r chi.Router) {
		r.Get("/", cfg.ClusterHandler.List)
		r.Get("/{id}", cfg.ClusterHandler.Get)
	})

	r.Post("/admin/composite-scores/recompute", cfg.AdminHandler.RecomputeScores)

	return r
}
