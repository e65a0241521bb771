package customers

import "github.com/go-chi/chi/v5"

// MountRoutes registers customer routes inside the business scope.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/customers", func(r chi.Router) {
		r.Get("/", h.list)
		r.Post("/", h.create)
		r.Get("/next-code", h.nextCode)
		r.Route("/{customerID}", func(r chi.Router) {
			r.Get("/", h.show)
			r.Patch("/", h.update)
			r.Delete("/", h.delete)
		})
	})
}
