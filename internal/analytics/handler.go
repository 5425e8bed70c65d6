package analytics

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/brightnest/cleanops/internal/platform/httpx"
	"github.com/brightnest/cleanops/internal/shared"
	"github.com/brightnest/cleanops/internal/timeparse"
)

// Handler serves the analytics endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
	now     func() time.Time
}

func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, now: time.Now}
}

// MountRoutes registers analytics routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/summary", h.summary)
}

func (h *Handler) summary(w http.ResponseWriter, r *http.Request) {
	asOf := h.now().UTC()
	if raw := r.URL.Query().Get("as_of"); raw != "" {
		parsed, err := timeparse.ParseDate(raw)
		if err != nil {
			httpx.RespondError(w, shared.FieldError("as_of", err.Error()))
			return
		}
		asOf = parsed
	}
	summary, err := h.service.Summary(r.Context(), asOf)
	if err != nil {
		h.logger.Error("analytics summary", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, summary)
}
