package app

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/brightnest/cleanops/internal/analytics"
	"github.com/brightnest/cleanops/internal/bookings"
	"github.com/brightnest/cleanops/internal/clients"
	"github.com/brightnest/cleanops/internal/observability"
	"github.com/brightnest/cleanops/internal/shared"
	_ "github.com/brightnest/cleanops/testing"
)

func TestInTestMode(t *testing.T) {
	assert.True(t, InTestMode())
}

func TestLoadConfigDefaultsAndEnvFile(t *testing.T) {
	envFile := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(envFile, []byte("INVOICE_NET_DAYS=14\nBUSINESS_NAME=Sparkle Co\n"), 0o600))
	t.Setenv("BUSINESS_NAME", "From Env")

	cfg, err := LoadConfig(envFile)
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.Unsetenv("INVOICE_NET_DAYS") })

	assert.Equal(t, 14, cfg.InvoiceNetDays)
	assert.Equal(t, "From Env", cfg.BusinessName, "environment wins over .env")
	assert.Equal(t, StoreMemory, cfg.StoreDriver)
	assert.Equal(t, "50", cfg.DefaultHourlyRate.String())
	assert.Equal(t, 336.0, cfg.QuoteValidity.Hours())
}

func TestLoadConfigMissingEnvFileIsFine(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.env"))
	require.NoError(t, err)
}

func TestLoadConfigRejectsBadDriverAndInsecureProduction(t *testing.T) {
	t.Setenv("STORE_DRIVER", "sqlite")
	_, err := LoadConfig(filepath.Join(t.TempDir(), "none.env"))
	assert.ErrorContains(t, err, "STORE_DRIVER")

	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("APP_ENV", "production")
	_, err = LoadConfig(filepath.Join(t.TempDir(), "none.env"))
	assert.ErrorContains(t, err, "ADMIN_TOKEN_HASH")
}

func TestNewLoggerFormats(t *testing.T) {
	var buf bytes.Buffer
	newLogger(&Config{LogFormat: "json", LogLevel: "warn"}, &buf).Info("hidden")
	assert.Empty(t, buf.String())

	newLogger(&Config{LogFormat: "json", LogLevel: "debug"}, &buf).Debug("shown")
	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "shown", entry["msg"])
}

func TestNewServicesRequiresPoolForPostgres(t *testing.T) {
	_, err := NewServices(Deps{Config: &Config{StoreDriver: StorePostgres, UploadDir: t.TempDir()}})
	assert.Error(t, err)
}

type harness struct {
	router   http.Handler
	services *Services
	token    string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	token := "s3cret-admin-token"
	hash, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.MinCost)
	require.NoError(t, err)

	t.Setenv("UPLOAD_DIR", t.TempDir())
	t.Setenv("ADMIN_TOKEN_HASH", string(hash))
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "none.env"))
	require.NoError(t, err)

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	metrics := observability.NewMetrics()
	services, err := NewServices(Deps{Config: cfg, Logger: logger, Metrics: metrics, Redis: rdb})
	require.NoError(t, err)
	return &harness{
		router:   NewRouter(RouterParams{Logger: logger, Config: cfg, Services: services, Metrics: metrics}),
		services: services,
		token:    token,
	}
}

func (h *harness) do(t *testing.T, method, path string, body any, out any) int {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Authorization", "Bearer "+h.token)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)
	if out != nil && rec.Code < 300 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out), rec.Body.String())
	}
	return rec.Code
}

func TestRouterGuardsAPI(t *testing.T) {
	h := newHarness(t)

	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/clients", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/clients", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	rec = httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = httptest.NewRecorder()
	h.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))

	rec = httptest.NewRecorder()
	h.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestBookingToPaymentFlow(t *testing.T) {
	h := newHarness(t)

	var client clients.Client
	require.Equal(t, http.StatusCreated, h.do(t, http.MethodPost, "/api/clients", map[string]any{
		"name":  "Harbor Dental",
		"email": "office@harbordental.test",
		"phone": "555-0142",
	}, &client))
	assert.Equal(t, "50", client.HourlyRate.String())

	var booking bookings.Booking
	require.Equal(t, http.StatusCreated, h.do(t, http.MethodPost, "/api/bookings", map[string]any{
		"client_id": client.ID,
		"service":   "Office clean",
		"date":      "2026-07-01",
		"duration":  "3h",
	}, &booking))

	var done bookings.Completion
	require.Equal(t, http.StatusOK, h.do(t, http.MethodPost, "/api/bookings/"+booking.ID+"/complete", nil, &done))
	require.NotNil(t, done.Invoice)
	assert.Equal(t, "150.00", done.Invoice.Amount.StringFixed(2))

	invoicePath := "/api/invoices/" + done.Invoice.ID
	assert.Equal(t, http.StatusUnprocessableEntity, h.do(t, http.MethodPost, invoicePath+"/payments",
		map[string]any{"amount": "100", "method": "cash"}, nil))
	assert.Equal(t, http.StatusCreated, h.do(t, http.MethodPost, invoicePath+"/payments",
		map[string]any{"amount": "150", "method": "check", "reference": "1042"}, nil))
	assert.Equal(t, http.StatusConflict, h.do(t, http.MethodPost, invoicePath+"/payments",
		map[string]any{"amount": "5", "method": "cash", "confirm_partial": true}, nil))

	var stored clients.Client
	require.Equal(t, http.StatusOK, h.do(t, http.MethodGet, "/api/clients/"+client.ID, nil, &stored))
	assert.Equal(t, "150.00", stored.LifetimeValue.StringFixed(2))

	var summary analytics.Summary
	require.Equal(t, http.StatusOK, h.do(t, http.MethodGet, "/api/analytics/summary", nil, &summary))
	assert.Equal(t, 1, summary.InvoiceCount)
	assert.True(t, summary.Outstanding.IsZero())
	assert.Equal(t, "150.00", summary.CollectedThisMonth.StringFixed(2))
}

func TestSummaryCacheInvalidatedByLedgerChanges(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	first, err := h.services.Analytics.Summary(ctx, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 0, first.InvoiceCount)

	var client clients.Client
	require.Equal(t, http.StatusCreated, h.do(t, http.MethodPost, "/api/clients", map[string]any{
		"name": "Maple Court HOA", "email": "board@maplecourt.test", "phone": "555-0199",
	}, &client))
	require.Equal(t, http.StatusCreated, h.do(t, http.MethodPost, "/api/invoices", map[string]any{
		"client_id":  client.ID,
		"line_items": []map[string]any{{"description": "Lobby", "hours": "2", "rate": "45"}},
	}, nil))

	second, err := h.services.Analytics.Summary(ctx, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, second.InvoiceCount)
}

func TestIdempotencyKeyRejectsReplays(t *testing.T) {
	h := newHarness(t)
	body := map[string]any{"name": "Cedar Lofts", "email": "mgmt@cedarlofts.test", "phone": "555-0177"}
	post := func(key string) int {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		req := httptest.NewRequest(http.MethodPost, "/api/clients", bytes.NewReader(raw))
		req.Header.Set("Authorization", "Bearer "+h.token)
		req.Header.Set(IdempotencyHeader, key)
		rec := httptest.NewRecorder()
		h.router.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusCreated, post("form-1"))
	assert.Equal(t, http.StatusConflict, post("form-1"))
	assert.Equal(t, http.StatusCreated, post("form-2"))

	body = map[string]any{"name": "Missing phone", "email": "x@y.test"}
	assert.Equal(t, http.StatusBadRequest, post("form-3"))
	body["phone"] = "555-0100"
	assert.Equal(t, http.StatusCreated, post("form-3"), "failed requests release their key")
}

func idempotentRouter(t *testing.T, client *redis.Client) (http.Handler, *int) {
	t.Helper()
	served := 0
	store := shared.NewIdempotencyStore(client, time.Hour)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	handler := Idempotent(store, logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		served++
		w.WriteHeader(http.StatusOK)
	}))
	return handler, &served
}

func sendWithKey(h http.Handler, method, key string) int {
	req := httptest.NewRequest(method, "/api/bookings/b-1", nil)
	req.Header.Set(IdempotencyHeader, key)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec.Code
}

func TestIdempotencyGuardsEveryMutatingMethod(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	h, served := idempotentRouter(t, client)

	for _, method := range []string{http.MethodPatch, http.MethodPut, http.MethodDelete} {
		assert.Equal(t, http.StatusOK, sendWithKey(h, method, "retry-1"), method)
		assert.Equal(t, http.StatusConflict, sendWithKey(h, method, "retry-1"), method)
	}
	assert.Equal(t, http.StatusOK, sendWithKey(h, http.MethodGet, "retry-1"))
	assert.Equal(t, http.StatusOK, sendWithKey(h, http.MethodGet, "retry-1"), "reads are never guarded")
	assert.Equal(t, 5, *served)
}

func TestIdempotencyServesWhenRedisIsDown(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	mr.Close()
	h, served := idempotentRouter(t, client)

	assert.Equal(t, http.StatusOK, sendWithKey(h, http.MethodPost, "retry-1"))
	assert.Equal(t, http.StatusOK, sendWithKey(h, http.MethodPatch, "retry-1"))
	assert.Equal(t, 2, *served)
}
