package invoices

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/brightnest/cleanops/internal/export"
	"github.com/brightnest/cleanops/internal/platform/httpx"
	"github.com/brightnest/cleanops/internal/shared"
	"github.com/brightnest/cleanops/internal/timeparse"
	"github.com/brightnest/cleanops/internal/uploads"
)

// Handler exposes the invoice ledger over HTTP.
type Handler struct {
	logger       *slog.Logger
	service      *Service
	uploads      *uploads.Store
	businessName string
	now          func() time.Time
}

// NewHandler builds a Handler. store may be nil to disable attachments.
func NewHandler(logger *slog.Logger, service *Service, store *uploads.Store, businessName string) *Handler {
	return &Handler{logger: logger, service: service, uploads: store, businessName: businessName, now: time.Now}
}

// MountRoutes registers invoice routes. Payment routes under /{id} are added
// by the payments handler through extra.
func (h *Handler) MountRoutes(r chi.Router, extra ...func(chi.Router)) {
	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Post("/batch", h.batch)
	r.Get("/export.csv", h.exportCSV)
	r.Route("/{id}", func(r chi.Router) {
		r.Get("/", h.show)
		r.Patch("/", h.update)
		r.Delete("/", h.delete)
		r.Post("/send", h.send)
		r.Get("/pdf", h.pdf)
		r.Get("/attachments", h.attachments)
		r.Post("/attachments", h.attach)
		for _, mount := range extra {
			mount(r)
		}
	})
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	items, err := h.service.List(r.Context(), filterFromQuery(r))
	if err != nil {
		h.fail(w, "list invoices", err)
		return
	}
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
	p := shared.NewPagination(page, perPage, len(items))
	httpx.JSON(w, http.StatusOK, map[string]any{"data": shared.Paginate(items, p), "pagination": p})
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	inv, err := h.service.Create(r.Context(), req)
	if err != nil {
		h.fail(w, "create invoice", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, inv)
}

type batchRequest struct {
	IssueDate string `json:"issue_date"`
}

func (h *Handler) batch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if r.ContentLength != 0 {
		if err := httpx.DecodeJSON(r, &req); err != nil {
			httpx.RespondError(w, err)
			return
		}
	}
	var issue time.Time
	if req.IssueDate != "" {
		var err error
		if issue, err = timeparse.ParseDate(req.IssueDate); err != nil {
			httpx.RespondError(w, shared.FieldError("issue_date", err.Error()))
			return
		}
	}
	result, err := h.service.GenerateBatch(r.Context(), issue)
	if err != nil {
		h.fail(w, "generate batch", err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	inv, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, "get invoice", err)
		return
	}
	httpx.JSON(w, http.StatusOK, inv)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	var req UpdateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	inv, err := h.service.Update(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		h.fail(w, "update invoice", err)
		return
	}
	httpx.JSON(w, http.StatusOK, inv)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.fail(w, "delete invoice", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) send(w http.ResponseWriter, r *http.Request) {
	inv, err := h.service.Send(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, "send invoice", err)
		return
	}
	httpx.JSON(w, http.StatusOK, inv)
}

func (h *Handler) pdf(w http.ResponseWriter, r *http.Request) {
	inv, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, "get invoice", err)
		return
	}
	body, err := export.InvoicePDF(Document(*inv, h.businessName))
	if err != nil {
		h.fail(w, "render invoice pdf", err)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", inv.InvoiceNumber+".pdf"))
	_, _ = w.Write(body)
}

// multipartOverhead covers form boundaries and headers around the file part.
const multipartOverhead = 1 << 20

func (h *Handler) attach(w http.ResponseWriter, r *http.Request) {
	if h.uploads == nil {
		httpx.RespondError(w, fmt.Errorf("%w: attachments are disabled", shared.ErrPrecondition))
		return
	}
	inv, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, "get invoice", err)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, h.uploads.MaxBytes()+multipartOverhead)
	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			httpx.RespondError(w, uploads.ErrTooLarge)
			return
		}
		httpx.RespondError(w, shared.FieldError("file", "a file upload is required"))
		return
	}
	defer file.Close()

	handle, err := h.uploads.Acquire(file, header.Filename)
	if err != nil {
		h.fail(w, "acquire upload", err)
		return
	}
	defer handle.Release()

	stored, err := handle.Commit("invoices/" + inv.ID)
	if err != nil {
		h.fail(w, "commit upload", err)
		return
	}
	att, err := h.service.AddAttachment(r.Context(), inv.ID, *stored)
	if err != nil {
		if rmErr := h.uploads.Remove(stored.Path); rmErr != nil {
			h.logger.Warn("remove unrecorded upload", slog.String("path", stored.Path), slog.Any("error", rmErr))
		}
		h.fail(w, "record attachment", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, att)
}

func (h *Handler) attachments(w http.ResponseWriter, r *http.Request) {
	items, err := h.service.Attachments(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, "list attachments", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": items})
}

func (h *Handler) exportCSV(w http.ResponseWriter, r *http.Request) {
	items, err := h.service.List(r.Context(), filterFromQuery(r))
	if err != nil {
		h.fail(w, "export invoices", err)
		return
	}
	columns := export.SelectColumns(ExportColumns, export.ParseFields(r.URL.Query().Get("fields")))
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", "attachment; filename="+strconv.Quote(export.Filename("invoices", h.now())))
	if err := export.WriteCSV(w, columns, items); err != nil {
		h.logger.Error("write invoices csv", slog.Any("error", err))
	}
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	h.logger.Warn(op, slog.Any("error", err))
	httpx.RespondError(w, err)
}

func filterFromQuery(r *http.Request) ListFilter {
	q := r.URL.Query()
	return ListFilter{
		Status:   Status(q.Get("status")),
		ClientID: q.Get("client_id"),
		Search:   q.Get("search"),
	}
}
