package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)

	r.Get("/health", h.HealthCheck)

	r.Route("/tasks", func(r chi.Router) {
		r.Post("/", h.CreateTasks)
		r.Get("/", h.ListTasks)
		r.Get("/{id}", h.GetTask)
		r.Delete("/{id}", h.DeleteTask)
		r.Post("/{id}/retry", h.RetryTask)
		r.Get("/{id}/export", h.ExportTask)
	})

	r.Post("/batch", h.StartBatch)

	r.Route("/logs", func(r chi.Router) {
		r.Get("/", h.GetLogs)
		r.Delete("/", h.ClearLogs)
	})

	r.Route("/settings", func(r chi.Router) {
		r.Get("/", h.GetSettings)
		r.Put("/", h.UpdateSettings)
	})

	return r
}
