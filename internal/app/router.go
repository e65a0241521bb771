package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/storeline/storeline/internal/accounts"
	"github.com/storeline/storeline/internal/customers"
	"github.com/storeline/storeline/internal/inventory"
	"github.com/storeline/storeline/internal/invoices"
	"github.com/storeline/storeline/internal/layby"
	"github.com/storeline/storeline/internal/observability"
	"github.com/storeline/storeline/internal/statements"
	"github.com/storeline/storeline/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger            *slog.Logger
	Config            *Config
	CustomersHandler  *customers.Handler
	AccountsHandler   *accounts.Handler
	InventoryHandler  *inventory.Handler
	LaybyHandler      *layby.Handler
	StatementsHandler *statements.Handler
	InvoicesHandler   *invoices.Handler
	JobHandler        *jobs.Handler
	Metrics           *observability.Metrics
}

// NewRouter constructs the chi.Router with Storeline defaults. Every
// business-scoped route lives under /api/v1/businesses/{businessID}.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/businesses/{businessID}", func(r chi.Router) {
			if params.CustomersHandler != nil {
				params.CustomersHandler.MountRoutes(r)
			}
			if params.AccountsHandler != nil {
				params.AccountsHandler.MountRoutes(r)
			}
			if params.InventoryHandler != nil {
				params.InventoryHandler.MountRoutes(r)
			}
			if params.LaybyHandler != nil {
				params.LaybyHandler.MountRoutes(r)
			}
			if params.StatementsHandler != nil {
				params.StatementsHandler.MountRoutes(r)
			}
			if params.InvoicesHandler != nil {
				params.InvoicesHandler.MountRoutes(r)
			}
		})
		if params.JobHandler != nil {
			r.Route("/jobs", params.JobHandler.MountRoutes)
		}
	})

	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}
