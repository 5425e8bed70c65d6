package clients

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/brightnest/cleanops/internal/export"
	"github.com/brightnest/cleanops/internal/platform/httpx"
	"github.com/brightnest/cleanops/internal/shared"
)

// Handler exposes the client registry over HTTP.
type Handler struct {
	logger  *slog.Logger
	service *Service
	now     func() time.Time
}

// NewHandler builds a Handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, now: time.Now}
}

// MountRoutes registers client routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Get("/export.csv", h.exportCSV)
	r.Route("/{id}", func(r chi.Router) {
		r.Get("/", h.show)
		r.Patch("/", h.update)
		r.Post("/archive", h.archive)
		r.Post("/tags", h.addTags)
		r.Delete("/tags/{tag}", h.removeTag)
	})
}

type listResponse struct {
	Data       []Client          `json:"data"`
	Pagination shared.Pagination `json:"pagination"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	items, err := h.service.List(r.Context(), filterFromQuery(r))
	if err != nil {
		h.fail(w, "list clients", err)
		return
	}
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
	p := shared.NewPagination(page, perPage, len(items))
	httpx.JSON(w, http.StatusOK, listResponse{Data: shared.Paginate(items, p), Pagination: p})
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	client, err := h.service.Create(r.Context(), req)
	if err != nil {
		h.fail(w, "create client", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, client)
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	client, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, "get client", err)
		return
	}
	httpx.JSON(w, http.StatusOK, client)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	var req UpdateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	client, err := h.service.Update(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		h.fail(w, "update client", err)
		return
	}
	httpx.JSON(w, http.StatusOK, client)
}

func (h *Handler) archive(w http.ResponseWriter, r *http.Request) {
	client, err := h.service.Archive(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, "archive client", err)
		return
	}
	httpx.JSON(w, http.StatusOK, client)
}

func (h *Handler) addTags(w http.ResponseWriter, r *http.Request) {
	var req TagsRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	client, err := h.service.AddTags(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		h.fail(w, "add tags", err)
		return
	}
	httpx.JSON(w, http.StatusOK, client)
}

func (h *Handler) removeTag(w http.ResponseWriter, r *http.Request) {
	client, err := h.service.RemoveTag(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "tag"))
	if err != nil {
		h.fail(w, "remove tag", err)
		return
	}
	httpx.JSON(w, http.StatusOK, client)
}

func (h *Handler) exportCSV(w http.ResponseWriter, r *http.Request) {
	items, err := h.service.List(r.Context(), filterFromQuery(r))
	if err != nil {
		h.fail(w, "export clients", err)
		return
	}
	columns := export.SelectColumns(ExportColumns, export.ParseFields(r.URL.Query().Get("fields")))
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", "attachment; filename="+strconv.Quote(export.Filename("clients", h.now())))
	if err := export.WriteCSV(w, columns, items); err != nil {
		h.logger.Error("write clients csv", slog.Any("error", err))
	}
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	h.logger.Warn(op, slog.Any("error", err))
	httpx.RespondError(w, err)
}

func filterFromQuery(r *http.Request) ListFilter {
	q := r.URL.Query()
	return ListFilter{
		Status:           Status(q.Get("status")),
		Tag:              q.Get("tag"),
		Search:           q.Get("search"),
		BillingFrequency: BillingFrequency(q.Get("billing_frequency")),
	}
}
