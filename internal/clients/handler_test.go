package clients

import (
	"context"
	"encoding/csv"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter(t *testing.T) (*Service, http.Handler) {
	t.Helper()
	svc := newTestService()
	h := NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), svc)
	h.now = func() time.Time { return time.Date(2026, 3, 9, 10, 0, 0, 0, time.UTC) }
	r := chi.NewRouter()
	r.Route("/clients", h.MountRoutes)
	return svc, r
}

func TestExportCSVHasOneRowPerVisibleClient(t *testing.T) {
	svc, router := newTestRouter(t)
	ctx := context.Background()
	for _, name := range []string{"Ada", "Bea", "Cy"} {
		req := validCreate()
		req.Name = name
		if name != "Cy" {
			req.Tags = []string{"office"}
		}
		_, err := svc.Create(ctx, req)
		require.NoError(t, err)
	}

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/clients/export.csv?tag=office&fields=name,email,bogus", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "clients_2026-03-09.csv")

	records, err := csv.NewReader(strings.NewReader(rec.Body.String())).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, []string{"name", "email"}, records[0])
	assert.Equal(t, "Ada", records[1][0])
	assert.Equal(t, "Bea", records[2][0])
}

func TestCreateHandlerReportsFieldErrors(t *testing.T) {
	_, router := newTestRouter(t)

	rec := httptest.NewRecorder()
	body := strings.NewReader(`{"name":"Only Name"}`)
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/clients/", body))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), `"email"`)
}

func TestShowUnknownClientIs404(t *testing.T) {
	_, router := newTestRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/clients/nope/", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
