/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route
  definitions. This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for the frontend

SECURITY NOTE:
  No authentication middleware currently. The upstream control-schedule
  token lives server-side in the schedule client; it never reaches the
  browser.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Route("/assignments", func(r chi.Router) {
			r.Get("/", h.ListAssignments)
			r.Post("/", h.CreateAssignment)
			r.Get("/{id}", h.GetAssignment)
			r.Put("/{id}/hours/{date}", h.SetManualHours)
			r.Delete("/{id}/hours/{date}", h.ClearManualHours)
			r.Put("/{id}/segments/{date}", h.SetSegments)
		})

		r.Route("/workers", func(r chi.Router) {
			r.Put("/{id}/notes/{date}", h.SetNote)
		})

		r.Route("/companies", func(r chi.Router) {
			r.Put("/{id}/rate", h.SetCompanyRate)
		})

		r.Get("/totals", h.GetTotals)
		r.Post("/distribute", h.Distribute)
		r.Post("/sync", h.Sync)
		r.Post("/save", h.Save)
		r.Get("/export", h.Export)
	})

	return r
}
