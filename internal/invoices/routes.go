package invoices

import "github.com/go-chi/chi/v5"

// MountRoutes registers invoice routes inside the business scope.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/invoices", func(r chi.Router) {
		r.Get("/", h.list)
		r.Post("/", h.create)
		r.Route("/{invoiceID}", func(r chi.Router) {
			r.Get("/", h.show)
			r.Post("/post", h.post)
			r.Post("/void", h.void)
			r.Post("/mark-paid", h.markPaid)
		})
	})
}
