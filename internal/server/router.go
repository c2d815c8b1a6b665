package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/lodestone-ai/lodestone/internal/api"
	"github.com/lodestone-ai/lodestone/internal/api/handlers"
	"github.com/lodestone-ai/lodestone/internal/api/middleware"
)

type RouterConfig struct {
	AssetHandler  *handlers.AssetHandler
	ReviewHandler *handlers.ReviewHandler
	SourceHandler *handlers.SourceHandler
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	const maxBodyBytes int64 = 5 * 1024 * 1024

	r.Use(middleware.RequestID)
	r.Use(middleware.SentryMiddleware)
	r.Use(middleware.AccessLog)
	r.Use(middleware.MaxBodyBytes(maxBodyBytes))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		api.Success(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/assets", func(r chi.Router) {
		r.Post("/", cfg.AssetHandler.Register)
		r.Get("/", cfg.AssetHandler.List)
		r.Get("/{id}", cfg.AssetHandler.Get)
		r.Post("/{id}/archive", cfg.AssetHandler.Archive)
		r.Post("/{id}/retry", cfg.AssetHandler.Retry)
		r.Get("/{id}/jobs", cfg.AssetHandler.ListJobs)
		r.Get("/{id}/jobs/{type}", cfg.AssetHandler.GetLatestJob)
		r.Get("/{id}/review", cfg.ReviewHandler.Get)
		r.Post("/{id}/review", cfg.ReviewHandler.Decide)
	})

	r.Get("/jobs/stats", cfg.AssetHandler.QueueStats)

	r.Post("/sources/deleted", cfg.SourceHandler.Deleted)

	return r
}
