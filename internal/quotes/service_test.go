package quotes

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brightnest/cleanops/internal/clients"
	"github.com/brightnest/cleanops/internal/shared"
)

type recordingNotifier struct {
	mu   sync.Mutex
	sent []string
	err  error
}

func (n *recordingNotifier) QuoteSent(ctx context.Context, q Quote) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, q.ID)
	return n.err
}

type fixture struct {
	svc      *Service
	client   *clients.Client
	notifier *recordingNotifier
	clock    time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	registry := clients.NewService(clients.NewMemoryRepository(), logger, clients.ServiceConfig{})
	rate := decimal.NewFromInt(40)
	client, err := registry.Create(context.Background(), clients.CreateRequest{
		Name:       "Maple Court HOA",
		Email:      "board@maplecourt.test",
		Phone:      "555-0199",
		HourlyRate: &rate,
	})
	require.NoError(t, err)

	f := &fixture{
		client:   client,
		notifier: &recordingNotifier{},
		clock:    time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC),
	}
	f.svc = NewService(NewMemoryRepository(), registry, f.notifier, logger, ServiceConfig{})
	f.svc.now = func() time.Time { return f.clock }
	return f
}

func (f *fixture) draft(t *testing.T) *Quote {
	t.Helper()
	q, err := f.svc.Create(context.Background(), CreateRequest{
		ClientID:       f.client.ID,
		Service:        "Deep clean",
		Frequency:      shared.FrequencyWeekly,
		EstimatedHours: decimal.RequireFromString("3.5"),
	})
	require.NoError(t, err)
	return q
}

func TestCreateCopiesClientAndComputesTotal(t *testing.T) {
	f := newFixture(t)
	q := f.draft(t)

	assert.Equal(t, StatusDraft, q.Status)
	assert.Equal(t, "Maple Court HOA", q.ClientName)
	assert.Equal(t, "board@maplecourt.test", q.ClientEmail)
	assert.True(t, q.HourlyRate.Equal(decimal.NewFromInt(40)))
	assert.Equal(t, "140.00", q.TotalEstimate.StringFixed(2))
}

func TestCreateRejectsNonPositiveHours(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Create(context.Background(), CreateRequest{ClientID: f.client.ID, Service: "Windows"})
	assert.ErrorIs(t, err, shared.ErrValidation)
}

func TestCreateUnknownClient(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Create(context.Background(), CreateRequest{
		ClientID: "ghost", Service: "Windows", EstimatedHours: decimal.NewFromInt(1),
	})
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestDraftCannotBeAcceptedDirectly(t *testing.T) {
	f := newFixture(t)
	q := f.draft(t)

	_, err := f.svc.Accept(context.Background(), q.ID)
	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrInvalidTransition)

	stored, err := f.svc.Get(context.Background(), q.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusDraft, stored.Status)
}

func TestSendSetsValidityAndNotifies(t *testing.T) {
	f := newFixture(t)
	q := f.draft(t)

	sent, err := f.svc.Send(context.Background(), q.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusSent, sent.Status)
	require.NotNil(t, sent.ExpiresAt)
	assert.Equal(t, f.clock.Add(14*24*time.Hour), *sent.ExpiresAt)
	assert.Equal(t, []string{q.ID}, f.notifier.sent)

	f.clock = f.clock.Add(48 * time.Hour)
	resent, err := f.svc.Send(context.Background(), q.ID)
	require.NoError(t, err)
	assert.Equal(t, f.clock.Add(14*24*time.Hour), *resent.ExpiresAt)
	assert.Len(t, f.notifier.sent, 2)
}

func TestSendSurvivesNotifierFailure(t *testing.T) {
	f := newFixture(t)
	f.notifier.err = errors.New("smtp down")
	q := f.draft(t)

	sent, err := f.svc.Send(context.Background(), q.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusSent, sent.Status)
}

func TestUpdateOnlyInDraft(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	q := f.draft(t)

	hours := decimal.NewFromInt(5)
	updated, err := f.svc.Update(ctx, q.ID, UpdateRequest{EstimatedHours: &hours})
	require.NoError(t, err)
	assert.Equal(t, "200.00", updated.TotalEstimate.StringFixed(2))

	_, err = f.svc.Send(ctx, q.ID)
	require.NoError(t, err)

	_, err = f.svc.Update(ctx, q.ID, UpdateRequest{EstimatedHours: &hours})
	assert.ErrorIs(t, err, ErrNotEditable)
}

func TestAcceptedQuoteCannotBeDeleted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	q := f.draft(t)
	_, err := f.svc.Send(ctx, q.ID)
	require.NoError(t, err)
	accepted, err := f.svc.Accept(ctx, q.ID)
	require.NoError(t, err)
	require.NotNil(t, accepted.AcceptedAt)

	err = f.svc.Delete(ctx, q.ID)
	assert.ErrorIs(t, err, ErrNotDeletable)

	_, err = f.svc.Get(ctx, q.ID)
	assert.NoError(t, err)
}

func TestDeclinedQuoteCanBeDeleted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	q := f.draft(t)
	_, err := f.svc.Send(ctx, q.ID)
	require.NoError(t, err)
	_, err = f.svc.Decline(ctx, q.ID)
	require.NoError(t, err)

	require.NoError(t, f.svc.Delete(ctx, q.ID))
	_, err = f.svc.Get(ctx, q.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAcceptAfterExpiryMarksExpired(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	q := f.draft(t)
	_, err := f.svc.Send(ctx, q.ID)
	require.NoError(t, err)

	f.clock = f.clock.Add(15 * 24 * time.Hour)
	_, err = f.svc.Accept(ctx, q.ID)
	assert.ErrorIs(t, err, ErrQuoteExpired)

	stored, err := f.svc.Get(ctx, q.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusExpired, stored.Status)
}

func TestExpireDue(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	old := f.draft(t)
	_, err := f.svc.Send(ctx, old.ID)
	require.NoError(t, err)

	f.clock = f.clock.Add(10 * 24 * time.Hour)
	fresh := f.draft(t)
	_, err = f.svc.Send(ctx, fresh.ID)
	require.NoError(t, err)
	untouched := f.draft(t)

	n, err := f.svc.ExpireDue(ctx, f.clock.Add(5*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	for id, want := range map[string]Status{old.ID: StatusExpired, fresh.ID: StatusSent, untouched.ID: StatusDraft} {
		got, err := f.svc.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, want, got.Status, id)
	}
}

func TestTransitionTable(t *testing.T) {
	assert.True(t, CanTransition(StatusDraft, StatusSent))
	assert.True(t, CanTransition(StatusSent, StatusSent))
	assert.False(t, CanTransition(StatusDraft, StatusAccepted))
	assert.False(t, CanTransition(StatusAccepted, StatusDeclined))
	assert.False(t, CanTransition(StatusExpired, StatusSent))
}

func TestHandlerDeleteAcceptedIsConflict(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	q := f.draft(t)
	_, err := f.svc.Send(ctx, q.ID)
	require.NoError(t, err)
	_, err = f.svc.Accept(ctx, q.ID)
	require.NoError(t, err)

	r := chi.NewRouter()
	r.Route("/quotes", NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), f.svc).MountRoutes)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/quotes/"+q.ID+"/", nil))
	assert.Equal(t, http.StatusConflict, rec.Code)
}

// acceptedMidSweep accepts a quote between the expiry sweep's read and write.
type acceptedMidSweep struct {
	*MemoryRepository
	once sync.Once
}

func (r *acceptedMidSweep) Update(ctx context.Context, q Quote, from Status) error {
	if q.Status == StatusExpired {
		r.once.Do(func() {
			accepted := q
			accepted.Status = StatusAccepted
			_ = r.MemoryRepository.Update(ctx, accepted, from)
		})
	}
	return r.MemoryRepository.Update(ctx, q, from)
}

func TestExpireDueKeepsConcurrentAcceptance(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	q := f.draft(t)
	_, err := f.svc.Send(ctx, q.ID)
	require.NoError(t, err)
	f.svc.repo = &acceptedMidSweep{MemoryRepository: f.svc.repo.(*MemoryRepository)}

	n, err := f.svc.ExpireDue(ctx, f.clock.Add(30*24*time.Hour))
	require.NoError(t, err)
	assert.Zero(t, n)

	got, err := f.svc.Get(ctx, q.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusAccepted, got.Status)
}

func TestStaleWritesAreRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	q := f.draft(t)
	_, err := f.svc.Send(ctx, q.ID)
	require.NoError(t, err)
	_, err = f.svc.Accept(ctx, q.ID)
	require.NoError(t, err)

	repo := f.svc.repo
	err = repo.Delete(ctx, q.ID, StatusSent)
	assert.ErrorIs(t, err, ErrStale)
	assert.ErrorIs(t, err, shared.ErrInvalidTransition)

	declined := *q
	declined.Status = StatusDeclined
	assert.ErrorIs(t, repo.Update(ctx, declined, StatusSent), ErrStale)
	assert.ErrorIs(t, repo.Update(ctx, Quote{ID: "missing"}, StatusSent), ErrNotFound)
}
