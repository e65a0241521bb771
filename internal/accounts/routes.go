package accounts

import (
	"github.com/go-chi/chi/v5"
)

// MountRoutes registers ledger routes under the business scope.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/accounts", h.listAccounts)
	r.Post("/accounts", h.openAccount)
	r.Get("/accounts/{accountID}", h.getAccount)
	r.Patch("/accounts/{accountID}", h.updateAccount)
	r.Post("/accounts/{accountID}/status", h.setStatus)

	r.Get("/accounts/{accountID}/transactions", h.listTransactions)
	r.Post("/accounts/{accountID}/charges", h.createCharge)
	r.Post("/accounts/{accountID}/adjustments", h.createAdjustment)
	r.Post("/accounts/{accountID}/write-offs", h.createWriteOff)
	r.Post("/accounts/{accountID}/payments", h.recordPayment)
	r.Get("/accounts/{accountID}/aging", h.agingSummary)

	r.Get("/payments/{paymentID}", h.getPayment)
	r.Post("/payments/{paymentID}/allocations", h.allocatePayment)

	r.Post("/accounts/{accountID}/collections", h.logCollectionActivity)
	r.Get("/accounts/{accountID}/collections", h.listCollectionActivities)
}
