package app

import (
	"errors"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/brightnest/cleanops/internal/analytics"
	"github.com/brightnest/cleanops/internal/bookings"
	"github.com/brightnest/cleanops/internal/clients"
	"github.com/brightnest/cleanops/internal/invoices"
	"github.com/brightnest/cleanops/internal/observability"
	"github.com/brightnest/cleanops/internal/payments"
	"github.com/brightnest/cleanops/internal/quotes"
	"github.com/brightnest/cleanops/internal/shared"
	"github.com/brightnest/cleanops/internal/uploads"
)

// Deps are the external resources the services are built on. Pool is required
// for the postgres store driver; Redis, Sender and Notifier are optional.
type Deps struct {
	Config   *Config
	Logger   *slog.Logger
	Metrics  *observability.Metrics
	Pool     *pgxpool.Pool
	Redis    *redis.Client
	Sender   invoices.Sender
	Notifier quotes.Notifier
}

// Services holds the wired domain services. Cache and Idempotency are nil
// when Redis is not configured or unreachable.
type Services struct {
	Clients     *clients.Service
	Quotes      *quotes.Service
	Bookings    *bookings.Service
	Invoices    *invoices.Service
	Payments    *payments.Service
	Analytics   *analytics.Service
	Cache       *analytics.Cache
	Uploads     *uploads.Store
	Idempotency *shared.IdempotencyStore
}

type repositories struct {
	clients  clients.Repository
	quotes   quotes.Repository
	bookings bookings.Repository
	invoices invoices.Repository
	payments payments.Repository
}

func newRepositories(cfg *Config, pool *pgxpool.Pool) (repositories, error) {
	if cfg.StoreDriver == StorePostgres {
		if pool == nil {
			return repositories{}, errors.New("postgres store requires a database pool")
		}
		return repositories{
			clients:  clients.NewRepository(pool),
			quotes:   quotes.NewRepository(pool),
			bookings: bookings.NewRepository(pool),
			invoices: invoices.NewRepository(pool),
			payments: payments.NewRepository(pool),
		}, nil
	}
	return repositories{
		clients:  clients.NewMemoryRepository(),
		quotes:   quotes.NewMemoryRepository(),
		bookings: bookings.NewMemoryRepository(),
		invoices: invoices.NewMemoryRepository(),
		payments: payments.NewMemoryRepository(),
	}, nil
}

// NewServices wires every domain service against the configured store.
func NewServices(deps Deps) (*Services, error) {
	cfg := deps.Config
	if cfg == nil {
		return nil, errors.New("services: config required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	repos, err := newRepositories(cfg, deps.Pool)
	if err != nil {
		return nil, err
	}
	store, err := uploads.NewStore(cfg.UploadDir, cfg.UploadMaxBytes, logger)
	if err != nil {
		return nil, err
	}

	var cache *analytics.Cache
	if deps.Redis != nil {
		cache = analytics.NewCache(deps.Redis, cfg.AnalyticsCacheTTL, logger)
	}
	idempotency := shared.NewIdempotencyStore(deps.Redis, cfg.IdempotencyTTL)

	registry := clients.NewService(repos.clients, logger, clients.ServiceConfig{DefaultHourlyRate: cfg.DefaultHourlyRate})
	quoteSvc := quotes.NewService(repos.quotes, registry, deps.Notifier, logger, quotes.ServiceConfig{
		Validity: cfg.QuoteValidity,
		Metrics:  deps.Metrics,
	})
	ledger := invoices.NewService(repos.invoices, registry, deps.Sender, logger, invoices.ServiceConfig{
		NetDays: cfg.InvoiceNetDays,
		Metrics: deps.Metrics,
		Changes: cache,
	})
	paymentSvc := payments.NewService(repos.payments, ledger, registry, logger, deps.Metrics)
	return &Services{
		Clients:     registry,
		Quotes:      quoteSvc,
		Bookings:    bookings.NewService(repos.bookings, registry, quoteSvc, ledger, logger),
		Invoices:    ledger,
		Payments:    paymentSvc,
		Analytics:   analytics.NewService(ledger, paymentSvc, cache, logger),
		Cache:       cache,
		Uploads:     store,
		Idempotency: idempotency,
	}, nil
}
