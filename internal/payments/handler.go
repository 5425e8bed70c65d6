package payments

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/brightnest/cleanops/internal/platform/httpx"
	"github.com/brightnest/cleanops/internal/timeparse"
)

// Handler exposes payment recording over HTTP.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds a Handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers the top level /payments listing.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
}

// MountInvoiceRoutes registers payment routes nested under /invoices/{id}.
func (h *Handler) MountInvoiceRoutes(r chi.Router) {
	r.Get("/payments", h.listForInvoice)
	r.Post("/payments", h.record)
	r.Get("/balance", h.balance)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := ListFilter{InvoiceID: q.Get("invoice_id"), Method: Method(q.Get("method"))}
	if from := q.Get("from"); from != "" {
		if t, err := timeparse.ParseDate(from); err == nil {
			filter.From = t
		}
	}
	if to := q.Get("to"); to != "" {
		if t, err := timeparse.ParseDate(to); err == nil {
			filter.To = t.Add(24 * time.Hour)
		}
	}
	items, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.fail(w, "list payments", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": items})
}

func (h *Handler) listForInvoice(w http.ResponseWriter, r *http.Request) {
	items, err := h.service.ListForInvoice(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, "list invoice payments", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": items})
}

func (h *Handler) record(w http.ResponseWriter, r *http.Request) {
	var req RecordRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	req.InvoiceID = chi.URLParam(r, "id")
	payment, err := h.service.Record(r.Context(), req)
	if err != nil {
		h.fail(w, "record payment", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, payment)
}

func (h *Handler) balance(w http.ResponseWriter, r *http.Request) {
	balance, err := h.service.Balance(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, "invoice balance", err)
		return
	}
	httpx.JSON(w, http.StatusOK, balance)
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	h.logger.Warn(op, slog.Any("error", err))
	httpx.RespondError(w, err)
}
