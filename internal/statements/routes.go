package statements

import "github.com/go-chi/chi/v5"

// MountRoutes registers statement routes inside the business scope.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/statements", func(r chi.Router) {
		r.Get("/", h.list)
		r.Post("/", h.generate)
		r.Route("/{statementID}", func(r chi.Router) {
			r.Get("/", h.show)
			r.Get("/render", h.render)
			r.Post("/send", h.send)
		})
	})
}
