package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/brightnest/cleanops/internal/analytics"
	"github.com/brightnest/cleanops/internal/bookings"
	"github.com/brightnest/cleanops/internal/clients"
	"github.com/brightnest/cleanops/internal/invoices"
	"github.com/brightnest/cleanops/internal/observability"
	"github.com/brightnest/cleanops/internal/payments"
	"github.com/brightnest/cleanops/internal/platform/httpx"
	"github.com/brightnest/cleanops/internal/quotes"
	"github.com/brightnest/cleanops/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger   *slog.Logger
	Config   *Config
	Services *Services
	Metrics  *observability.Metrics
	// Jobs is nil when no queue inspector is available.
	Jobs *jobs.Handler
}

// NewRouter constructs the chi.Router with the API mounted under /api.
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
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())

	svc := params.Services
	logger := params.Logger
	clientHandler := clients.NewHandler(logger, svc.Clients)
	quoteHandler := quotes.NewHandler(logger, svc.Quotes)
	bookingHandler := bookings.NewHandler(logger, svc.Bookings)
	invoiceHandler := invoices.NewHandler(logger, svc.Invoices, svc.Uploads, params.Config.BusinessName)
	paymentHandler := payments.NewHandler(logger, svc.Payments)
	analyticsHandler := analytics.NewHandler(logger, svc.Analytics)

	r.Route("/api", func(r chi.Router) {
		r.Use(RequireAdmin(params.Config.AdminTokenHash, logger))
		r.Use(Idempotent(svc.Idempotency, logger))
		r.Route("/clients", clientHandler.MountRoutes)
		r.Route("/quotes", quoteHandler.MountRoutes)
		r.Route("/bookings", bookingHandler.MountRoutes)
		r.Route("/invoices", func(r chi.Router) {
			invoiceHandler.MountRoutes(r, paymentHandler.MountInvoiceRoutes)
		})
		r.Route("/payments", paymentHandler.MountRoutes)
		r.Route("/analytics", analyticsHandler.MountRoutes)
		if params.Jobs != nil {
			r.Route("/jobs", params.Jobs.MountRoutes)
		}
	})

	return r
}
