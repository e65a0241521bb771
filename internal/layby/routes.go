package layby

import "github.com/go-chi/chi/v5"

// MountRoutes registers layby routes inside the business scope.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/laybys", func(r chi.Router) {
		r.Get("/", h.list)
		r.Post("/", h.create)
		r.Route("/{laybyID}", func(r chi.Router) {
			r.Get("/", h.show)
			r.Post("/cancel", h.cancel)
			r.Post("/complete", h.complete)
		})
	})
}
