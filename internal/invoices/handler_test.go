package invoices

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brightnest/cleanops/internal/uploads"
)

func newInvoiceRouter(t *testing.T, f *ledgerFixture) http.Handler {
	t.Helper()
	return newInvoiceRouterWithLimit(t, f, 0)
}

func newInvoiceRouterWithLimit(t *testing.T, f *ledgerFixture, maxBytes int64) http.Handler {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store, err := uploads.NewStore(t.TempDir(), maxBytes, logger)
	require.NoError(t, err)
	h := NewHandler(logger, f.ledger, store, "BrightNest Cleaning")
	h.now = func() time.Time { return time.Date(2026, 6, 10, 0, 0, 0, 0, time.UTC) }
	r := chi.NewRouter()
	r.Route("/invoices", func(r chi.Router) { h.MountRoutes(r) })
	return r
}

func seedInvoice(t *testing.T, f *ledgerFixture, clientName string, status Status) *Invoice {
	t.Helper()
	c := f.client(t, clientName, nil)
	inv, err := f.ledger.Create(context.Background(), CreateRequest{
		ClientID:  c.ID,
		LineItems: []LineItemInput{{Description: "Clean", Hours: dec("2")}},
		Status:    status,
	})
	require.NoError(t, err)
	return inv
}

func TestExportCSVFollowsFilter(t *testing.T) {
	f := newLedgerFixture(t)
	router := newInvoiceRouter(t, f)
	seedInvoice(t, f, "Draft Co", StatusDraft)
	seedInvoice(t, f, "Pending One", StatusPending)
	seedInvoice(t, f, "Pending Two", StatusPending)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/invoices/export.csv?status=pending&fields=invoice_number,amount", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "invoices_2026-06-10.csv")

	records, err := csv.NewReader(strings.NewReader(rec.Body.String())).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, []string{"invoice_number", "amount"}, records[0])
	assert.Equal(t, "100.00", records[1][1])
}

func TestPDFEndpoint(t *testing.T) {
	f := newLedgerFixture(t)
	router := newInvoiceRouter(t, f)
	inv := seedInvoice(t, f, "Printable", StatusPending)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/invoices/"+inv.ID+"/pdf", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("%PDF")))
}

func TestBatchEndpoint(t *testing.T) {
	f := newLedgerFixture(t)
	router := newInvoiceRouter(t, f)
	c := f.client(t, "Weekly", nil)
	queue(t, f, c.ID, "2h")
	queue(t, f, c.ID, "3h")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/invoices/batch", strings.NewReader(`{"issue_date":"2026-06-07"}`)))
	require.Equal(t, http.StatusOK, rec.Code)

	var result BatchResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, 1, result.InvoicesGenerated)
	assert.Equal(t, "250.00", result.Invoices[0].Amount.StringFixed(2))
}

func TestPaidInvoiceStatusChangeIsConflict(t *testing.T) {
	f := newLedgerFixture(t)
	router := newInvoiceRouter(t, f)
	inv := seedInvoice(t, f, "Paid Up", StatusPending)
	_, err := f.ledger.MarkPaid(context.Background(), inv.ID, time.Now())
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPatch, "/invoices/"+inv.ID+"/", strings.NewReader(`{"status":"pending"}`)))
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func uploadTo(t *testing.T, router http.Handler, invoiceID, name string, content []byte) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", name)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/invoices/"+invoiceID+"/attachments", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func listAttachments(t *testing.T, router http.Handler, invoiceID string) []Attachment {
	t.Helper()
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/invoices/"+invoiceID+"/attachments", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var out struct {
		Data []Attachment `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out.Data
}

func TestAttachmentUpload(t *testing.T) {
	f := newLedgerFixture(t)
	router := newInvoiceRouter(t, f)
	inv := seedInvoice(t, f, "Receipts", StatusPending)

	rec := uploadTo(t, router, inv.ID, "receipt.pdf", []byte("%PDF-1.4\n1 0 obj\n<<>>\nendobj\n"))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var att Attachment
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &att))
	assert.Equal(t, "application/pdf", att.MIMEType)
	assert.Equal(t, inv.ID, att.InvoiceID)
	assert.Equal(t, "receipt.pdf", att.Name)

	rec = uploadTo(t, router, inv.ID, "script.sh", []byte("#!/bin/sh\necho hi\n"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	stored := listAttachments(t, router, inv.ID)
	require.Len(t, stored, 1)
	assert.Equal(t, att.ID, stored[0].ID)
	assert.Equal(t, att.Path, stored[0].Path)
}

func TestAttachmentBodyIsCapped(t *testing.T) {
	f := newLedgerFixture(t)
	router := newInvoiceRouterWithLimit(t, f, 1024)
	inv := seedInvoice(t, f, "Huge Scan", StatusPending)

	content := append([]byte("%PDF-1.4\n"), bytes.Repeat([]byte("0"), 2<<20)...)
	rec := uploadTo(t, router, inv.ID, "scan.pdf", content)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, listAttachments(t, router, inv.ID))
}
