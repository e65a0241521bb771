package inventory

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// MountRoutes registers inventory routes inside the business scope.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/inventory", func(r chi.Router) {
		r.Get("/balances", h.listBalances)
		r.Get("/balances/{productID}", h.getBalance)
		r.Get("/movements", h.listMovements)
		r.Post("/receipts", h.movement("receive stock", func(req *http.Request, businessID int64, input MovementInput) (StockMovement, error) {
			return h.service.Receive(req.Context(), businessID, input)
		}))
		r.Post("/issues", h.movement("issue stock", func(req *http.Request, businessID int64, input MovementInput) (StockMovement, error) {
			return h.service.Issue(req.Context(), businessID, input)
		}))
		r.Post("/adjustments", h.movement("adjust stock", func(req *http.Request, businessID int64, input MovementInput) (StockMovement, error) {
			return h.service.Adjust(req.Context(), businessID, input)
		}))
	})
}
