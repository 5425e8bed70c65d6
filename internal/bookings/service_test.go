package bookings

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brightnest/cleanops/internal/clients"
	"github.com/brightnest/cleanops/internal/invoices"
	"github.com/brightnest/cleanops/internal/quotes"
	"github.com/brightnest/cleanops/internal/shared"
)

type fixture struct {
	svc      *Service
	registry *clients.Service
	quotes   *quotes.Service
	ledger   *invoices.Service
	logger   *slog.Logger
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	registry := clients.NewService(clients.NewMemoryRepository(), logger, clients.ServiceConfig{})
	f := &fixture{
		registry: registry,
		quotes:   quotes.NewService(quotes.NewMemoryRepository(), registry, nil, logger, quotes.ServiceConfig{}),
		ledger:   invoices.NewService(invoices.NewMemoryRepository(), registry, nil, logger, invoices.ServiceConfig{}),
		logger:   logger,
	}
	f.svc = NewService(NewMemoryRepository(), registry, f.quotes, f.ledger, logger)
	f.svc.now = func() time.Time { return time.Date(2026, 7, 2, 16, 0, 0, 0, time.UTC) }
	return f
}

func (f *fixture) client(t *testing.T, billing clients.BillingFrequency) *clients.Client {
	t.Helper()
	rate := decimal.NewFromInt(40)
	c, err := f.registry.Create(context.Background(), clients.CreateRequest{
		Name:               "Harbor Dental",
		Email:              "office@harbordental.test",
		Phone:              "555-0142",
		HourlyRate:         &rate,
		InvoicePreferences: clients.InvoicePreferencesInput{BillingFrequency: billing},
	})
	require.NoError(t, err)
	return c
}

func (f *fixture) book(t *testing.T, clientID string) *Booking {
	t.Helper()
	b, err := f.svc.Create(context.Background(), CreateRequest{
		ClientID: clientID,
		Service:  "Office clean",
		Date:     "July 1, 2026",
		Duration: "2h 30m",
	})
	require.NoError(t, err)
	return b
}

func TestCreateParsesDateAndDuration(t *testing.T) {
	f := newFixture(t)
	c := f.client(t, clients.BillingPerJob)

	b := f.book(t, c.ID)
	assert.Equal(t, StatusScheduled, b.Status)
	assert.Equal(t, shared.FrequencyOneTime, b.Frequency)
	assert.Equal(t, time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC), b.Date)
	assert.Equal(t, "2.5", b.Hours.String())
}

func TestCreateRejectsBadInput(t *testing.T) {
	f := newFixture(t)
	c := f.client(t, clients.BillingPerJob)
	ctx := context.Background()

	_, err := f.svc.Create(ctx, CreateRequest{ClientID: c.ID, Service: "Clean", Date: "someday", Duration: "2h"})
	var verr *shared.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "date")

	_, err = f.svc.Create(ctx, CreateRequest{ClientID: c.ID, Service: "Clean", Date: "2026-07-01", Duration: "a while"})
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "duration")

	_, err = f.svc.Create(ctx, CreateRequest{ClientID: "missing", Service: "Clean", Date: "2026-07-01", Duration: "2h"})
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestCompletePerJobClientIssuesInvoice(t *testing.T) {
	f := newFixture(t)
	c := f.client(t, clients.BillingPerJob)
	b := f.book(t, c.ID)

	done, err := f.svc.Complete(context.Background(), b.ID)
	require.NoError(t, err)
	require.NotNil(t, done.Invoice)
	assert.Nil(t, done.PendingJob)
	assert.Equal(t, StatusCompleted, done.Booking.Status)
	assert.NotNil(t, done.Booking.CompletedAt)
	assert.Equal(t, invoices.StatusPending, done.Invoice.Status)
	assert.Equal(t, "100.00", done.Invoice.Amount.StringFixed(2))

	pending, err := f.svc.Pending(context.Background())
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestCompleteBatchedClientQueuesJob(t *testing.T) {
	f := newFixture(t)
	c := f.client(t, clients.BillingWeekly)
	b := f.book(t, c.ID)

	done, err := f.svc.Complete(context.Background(), b.ID)
	require.NoError(t, err)
	assert.Nil(t, done.Invoice)
	require.NotNil(t, done.PendingJob)
	assert.Equal(t, clients.BillingWeekly, done.PendingJob.Frequency)

	pending, err := f.svc.Pending(context.Background())
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, b.ID, pending[0].BookingID)

	issued, err := f.ledger.List(context.Background(), invoices.ListFilter{})
	require.NoError(t, err)
	assert.Empty(t, issued)
}

func TestTransitionsOnlyFromScheduled(t *testing.T) {
	f := newFixture(t)
	c := f.client(t, clients.BillingPerJob)
	ctx := context.Background()

	b := f.book(t, c.ID)
	cancelled, err := f.svc.Cancel(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, cancelled.Status)

	_, err = f.svc.Complete(ctx, b.ID)
	assert.ErrorIs(t, err, shared.ErrInvalidTransition)
	_, err = f.svc.Cancel(ctx, b.ID)
	assert.ErrorIs(t, err, shared.ErrInvalidTransition)
}

func TestCreateFromQuote(t *testing.T) {
	f := newFixture(t)
	c := f.client(t, clients.BillingPerJob)
	ctx := context.Background()

	quote, err := f.quotes.Create(ctx, quotes.CreateRequest{
		ClientID:       c.ID,
		Service:        "Move-out clean",
		Frequency:      shared.FrequencyMonthly,
		EstimatedHours: decimal.NewFromInt(4),
	})
	require.NoError(t, err)

	_, err = f.svc.CreateFromQuote(ctx, quote.ID, FromQuoteRequest{Date: "2026-07-10"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrQuoteNotAccepted))

	_, err = f.quotes.Send(ctx, quote.ID)
	require.NoError(t, err)
	_, err = f.quotes.Accept(ctx, quote.ID)
	require.NoError(t, err)

	b, err := f.svc.CreateFromQuote(ctx, quote.ID, FromQuoteRequest{Date: "2026-07-10"})
	require.NoError(t, err)
	assert.Equal(t, quote.ID, b.QuoteID)
	assert.Equal(t, "Move-out clean", b.Service)
	assert.Equal(t, shared.FrequencyMonthly, b.Frequency)
	assert.Equal(t, "4", b.Hours.String())

	stored, err := f.svc.Get(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, quote.ID, stored.QuoteID)
}

func TestListFiltersByDateRange(t *testing.T) {
	f := newFixture(t)
	c := f.client(t, clients.BillingPerJob)
	ctx := context.Background()
	for _, day := range []string{"2026-07-01", "2026-07-15", "2026-08-01"} {
		_, err := f.svc.Create(ctx, CreateRequest{ClientID: c.ID, Service: "Clean", Date: day, Duration: "1h"})
		require.NoError(t, err)
	}

	got, err := f.svc.List(ctx, ListFilter{
		From: time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC),
		To:   time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.True(t, got[0].Date.Before(got[1].Date))
}

func TestHandlerCompleteAndErrors(t *testing.T) {
	f := newFixture(t)
	c := f.client(t, clients.BillingPerJob)
	b := f.book(t, c.ID)

	r := chi.NewRouter()
	NewHandler(f.logger, f.svc).MountRoutes(r)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/"+b.ID+"/complete", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var done Completion
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &done))
	require.NotNil(t, done.Invoice)
	assert.Equal(t, "100.00", done.Invoice.Amount.StringFixed(2))

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/"+b.ID+"/cancel", nil))
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = httptest.NewRecorder()
	body := strings.NewReader(`{"client_id":"` + c.ID + `","service":"Clean","date":"2026-07-01","duration":"never"}`)
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", body))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "duration")

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/?from=not-a-date", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// flakyBilling fails CreateForJob a set number of times before delegating.
type flakyBilling struct {
	Billing
	mu       sync.Mutex
	failures int
}

func (b *flakyBilling) CreateForJob(ctx context.Context, job invoices.JobInvoice) (*invoices.Invoice, error) {
	b.mu.Lock()
	if b.failures > 0 {
		b.failures--
		b.mu.Unlock()
		return nil, errors.New("ledger unavailable")
	}
	b.mu.Unlock()
	return b.Billing.CreateForJob(ctx, job)
}

func TestCompleteRevertsWhenBillingFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.svc.billing = &flakyBilling{Billing: f.ledger, failures: 1}
	c := f.client(t, clients.BillingPerJob)
	b := f.book(t, c.ID)

	_, err := f.svc.Complete(ctx, b.ID)
	require.Error(t, err)
	stored, err := f.svc.Get(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusScheduled, stored.Status)
	assert.Nil(t, stored.CompletedAt)

	done, err := f.svc.Complete(ctx, b.ID)
	require.NoError(t, err)
	require.NotNil(t, done.Invoice)
	assert.Equal(t, StatusCompleted, done.Booking.Status)
}

func TestConcurrentCompletionBillsOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.client(t, clients.BillingPerJob)
	b := f.book(t, c.ID)

	const callers = 8
	var (
		wg    sync.WaitGroup
		start = make(chan struct{})
		errs  = make([]error, callers)
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, errs[i] = f.svc.Complete(ctx, b.ID)
		}(i)
	}
	close(start)
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, shared.ErrInvalidTransition)
	}
	assert.Equal(t, 1, succeeded)

	billed, err := f.ledger.List(ctx, invoices.ListFilter{ClientID: c.ID})
	require.NoError(t, err)
	assert.Len(t, billed, 1)
}
