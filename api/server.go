/*
server.go - HTTP router and middleware configuration

MIDDLEWARE STACK:
  1. RequestID:  unique id per request
  2. Logger:     request logging
  3. Recoverer:  panic recovery (500 instead of crash)
  4. CORS:       cross-origin requests for dashboards

SECURITY NOTE:
  No authentication middleware. Deploy behind the gateway that owns auth.

SEE ALSO:
  - handlers.go: handler implementations
  - cmd/server/main.go: server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a router with all routes configured.
func NewRouter(h *Handler, allowedOrigins []string) *chi.Mux {
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders: []string{"Content-Disposition"},
		MaxAge:         300,
	}))

	r.Get("/healthz", h.Health)

	r.Route("/api", func(r chi.Router) {
		r.Route("/costing", func(r chi.Router) {
			r.Post("/batch", h.RunBatch)
			r.Get("/{schemeID}", h.GetCosting)
			r.Get("/{schemeID}/export.xlsx", h.ExportCosting)
		})

		r.Route("/schemes", func(r chi.Router) {
			r.Get("/{schemeID}", h.GetScheme)
			r.Put("/{schemeID}", h.PutScheme)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Get("/cache", h.CacheStats)
			r.Delete("/cache/{schemeID}", h.InvalidateCache)
		})

		r.Post("/scenarios/demo", h.LoadDemo)
	})

	return r
}
