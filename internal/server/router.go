package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/albedosehen/certvault/internal/config"
	"github.com/albedosehen/certvault/internal/health"
	"github.com/albedosehen/certvault/internal/middleware"
	"github.com/albedosehen/certvault/internal/observability"
)

// NewRouter assembles the full route table and middleware stack.
func NewRouter(
	handlers *Handlers,
	aggregator health.Aggregator,
	rateLimitCfg config.RateLimitConfig,
	limiter *middleware.ClientRateLimiter,
	logger observability.Logger,
	metrics observability.MetricsCollector,
) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID())
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.Logging(logger))
	r.Use(observability.MetricsMiddleware(metrics))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", middleware.RequestIDHeader},
		MaxAge:         300,
	}))
	r.Use(middleware.RateLimit(rateLimitCfg, limiter, logger, metrics))

	// The challenge endpoint stays outside /api/vault; the ACME validator
	// dictates its path.
	r.Get("/.well-known/acme-challenge/{token}", handlers.handleChallenge)

	r.Method(http.MethodGet, "/healthz", health.NewHandler(aggregator))

	r.Route("/api/vault", func(r chi.Router) {
		r.Route("/tls", func(r chi.Router) {
			r.Get("/check/{store}", handlers.handleList)
			r.Get("/detail/{store}", handlers.handleDetail)
			r.Get("/certificate/{id}", handlers.handleGetByID)
			r.Post("/refresh/{store}", handlers.handleRefresh)
			r.Post("/invalidate-cache/{store}", handlers.handleInvalidateCache)
			r.Post("/create", handlers.handleCreate)
			r.Put("/update/manual-add", handlers.handleUpdateManualAdd)
			r.Put("/update/manual-apply", handlers.handleUpdateManualApply)
			r.Delete("/delete", handlers.handleDelete)
			r.Post("/apply", handlers.handleApply)
			r.Post("/reapply/auto", handlers.handleReapplyAuto)
			r.Post("/reapply/manual-apply", handlers.handleReapplyManualApply)
			r.Post("/reapply/manual-add", handlers.handleReapplyManualAdd)
			r.Post("/search", handlers.handleSearch)
		})

		r.Route("/file", func(r chi.Router) {
			r.Post("/export/{store}", handlers.handleFileExport)
			r.Get("/list/{store}", handlers.handleFileList)
			r.Get("/download/{store}", handlers.handleFileDownload)
			r.Get("/content/{store}", handlers.handleFileContent)
		})
	})

	return r
}
