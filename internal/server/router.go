// router.go — маршруты HTTP API objektpro.
package server

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/bigkaa/objektpro/internal/api/handlers"
	"github.com/bigkaa/objektpro/internal/api/middleware"
	"github.com/bigkaa/objektpro/internal/api/openapi"
)

// RouterDeps — компоненты, из которых собирается маршрутизатор.
type RouterDeps struct {
	API       *handlers.APIHandler
	Guard     middleware.Guard
	Validator *openapi.Validator
	// SPA — обработчик фронтенда; nil — на "/" отдаётся описание API.
	SPA http.Handler
}

// NewRouter собирает chi-маршрутизатор:
//   - /health, /health/live, /health/ready, /metrics — без аутентификации
//   - /api/auth/login, /api/openapi.yaml — без аутентификации
//   - остальные /api/* — через Guard, POST /api/anlagen только для admin
//   - неизвестные /api/* — 404 JSON, прочие пути — SPA
func NewRouter(deps RouterDeps, logger *slog.Logger) chi.Router {
	api := deps.API
	health := api.Health()

	router := chi.NewRouter()

	// Глобальные middleware (применяются ко ВСЕМ маршрутам)
	router.Use(middleware.Recoverer(logger))
	router.Use(middleware.MetricsMiddleware())
	router.Use(middleware.RequestLogger(logger))

	router.Get("/health", health.Health)
	router.Get("/health/live", health.HealthLive)
	router.Get("/health/ready", health.HealthReady)
	router.Get("/metrics", health.GetMetrics)

	validate := func(next http.Handler) http.Handler { return next }
	if deps.Validator != nil {
		validate = deps.Validator.Middleware()
	}

	router.Route("/api", func(r chi.Router) {
		r.Get("/openapi.yaml", openapi.ServeDocument)
		r.With(validate).Post("/auth/login", api.Login)

		r.Group(func(r chi.Router) {
			r.Use(deps.Guard.Middleware())

			r.Get("/auth/me", api.Me)
			r.Post("/files/upload/{anlageId}", api.UploadFiles)
			r.Get("/files/{anlageId}", api.ListFiles)
			r.Get("/upload/progress/{batchId}", api.GetProgress)
			r.Get("/anlagen", api.ListFacilities)
			r.Get("/anlagen/{anlageId}/stats", api.FacilityStats)
			r.With(middleware.RequireAdmin(), validate).Post("/anlagen", api.CreateFacility)
		})

		r.NotFound(handlers.NotFoundAPI)
		r.MethodNotAllowed(handlers.NotFoundAPI)
	})

	if deps.SPA != nil {
		router.Handle("/*", deps.SPA)
	} else {
		router.Get("/", health.Root)
	}

	return router
}
