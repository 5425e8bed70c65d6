package bookings

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/brightnest/cleanops/internal/platform/httpx"
	"github.com/brightnest/cleanops/internal/shared"
	"github.com/brightnest/cleanops/internal/timeparse"
)

// Handler exposes bookings over HTTP.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers booking routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Get("/pending", h.pending)
	r.Post("/from-quote/{quoteID}", h.fromQuote)
	r.Route("/{id}", func(r chi.Router) {
		r.Get("/", h.show)
		r.Post("/cancel", h.cancel)
		r.Post("/complete", h.complete)
	})
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := ListFilter{
		Status:   Status(q.Get("status")),
		ClientID: q.Get("client_id"),
		Search:   q.Get("search"),
	}
	var err error
	if filter.From, err = optionalDate(q.Get("from")); err != nil {
		httpx.RespondError(w, shared.FieldError("from", err.Error()))
		return
	}
	if filter.To, err = optionalDate(q.Get("to")); err != nil {
		httpx.RespondError(w, shared.FieldError("to", err.Error()))
		return
	}
	items, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.fail(w, "list bookings", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": items})
}

func optionalDate(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	return timeparse.ParseDate(raw)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	booking, err := h.service.Create(r.Context(), req)
	if err != nil {
		h.fail(w, "create booking", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, booking)
}

func (h *Handler) fromQuote(w http.ResponseWriter, r *http.Request) {
	var req FromQuoteRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	booking, err := h.service.CreateFromQuote(r.Context(), chi.URLParam(r, "quoteID"), req)
	if err != nil {
		h.fail(w, "book quote", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, booking)
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	booking, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, "get booking", err)
		return
	}
	httpx.JSON(w, http.StatusOK, booking)
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, "cancel booking", func(ctx context.Context, id string) (any, error) {
		return h.service.Cancel(ctx, id)
	})
}

func (h *Handler) complete(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, "complete booking", func(ctx context.Context, id string) (any, error) {
		return h.service.Complete(ctx, id)
	})
}

func (h *Handler) respond(w http.ResponseWriter, r *http.Request, op string, fn func(context.Context, string) (any, error)) {
	out, err := fn(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, op, err)
		return
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) pending(w http.ResponseWriter, r *http.Request) {
	jobs, err := h.service.Pending(r.Context())
	if err != nil {
		h.fail(w, "pending jobs", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": jobs})
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	h.logger.Warn(op, slog.Any("error", err))
	httpx.RespondError(w, err)
}
