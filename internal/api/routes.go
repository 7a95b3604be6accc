package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter creates a new router with all routes configured. ws serves
// the push channel; it is registered outside the auth group because
// push connections authenticate over the socket itself.
func NewRouter(h *Handler, tokens TokenValidator, ws http.HandlerFunc) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware (all routes)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(LoggingMiddleware)
	r.Use(RecoveryMiddleware)

	r.Post("/login", h.Login)
	r.Get("/ws", ws)

	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(tokens))
		r.Get("/roads", h.ListRoads)
		r.Post("/roads/sync", h.SyncRoads)
		r.Get("/road/{id}", h.GetRoad)
		r.Post("/road", h.CreateRoad)
		r.Put("/road/{id}", h.UpdateRoad)
		r.Delete("/road/{id}", h.DeleteRoad)
	})

	return r
}
