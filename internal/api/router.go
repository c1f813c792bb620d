package api

import (
	"net/http"

	"ghusers/internal/logging"
	"ghusers/internal/middleware"

	"github.com/go-chi/chi/v5"
)

// NewRouter mounts the user API and the progress stream behind the request
// id, logging and recovery middleware.
func NewRouter(svc UserService, logger *logging.Logger) http.Handler {
	h := NewUserHandler(svc, logger)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Recover(logger))

	r.Get("/health", healthCheck)

	r.Route("/api", func(r chi.Router) {
		r.Get("/progress", h.Progress)

		r.Route("/users", func(r chi.Router) {
			r.Get("/", h.List)
			r.Post("/", h.Create)
			r.Get("/{id}", h.Get)
			r.Put("/{id}", h.Update)
			r.Delete("/{id}", h.Delete)
		})
	})

	return r
}

func healthCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"healthy"}`))
}
