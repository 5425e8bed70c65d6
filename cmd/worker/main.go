package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/brightnest/cleanops/internal/app"
	jobmetrics "github.com/brightnest/cleanops/internal/jobs"
	"github.com/brightnest/cleanops/internal/observability"
	"github.com/brightnest/cleanops/internal/platform/cache"
	"github.com/brightnest/cleanops/internal/platform/db"
	"github.com/brightnest/cleanops/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := app.NewLogger(cfg)

	// The worker shares state with the API only through Postgres.
	if cfg.StoreDriver != app.StorePostgres {
		logger.Error("worker requires STORE_DRIVER=postgres", slog.String("store", cfg.StoreDriver))
		os.Exit(1)
	}

	pool, err := db.New(ctx, cfg.PGDSN, db.Options{MaxConns: cfg.PGMaxConns})
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis unavailable, analytics cache invalidation disabled", slog.Any("error", err))
	} else {
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}()
	}

	metrics := observability.NewMetrics()
	services, err := app.NewServices(app.Deps{
		Config:  cfg,
		Logger:  logger,
		Metrics: metrics,
		Pool:    pool,
		Redis:   redisClient,
	})
	if err != nil {
		logger.Error("init services", slog.Any("error", err))
		os.Exit(1)
	}

	jobMetrics := jobmetrics.NewMetrics(metrics.Registerer())
	sweeps := jobs.NewSweepJob(services.Quotes, services.Invoices, logger, jobMetrics)
	email := &jobs.EmailJob{
		Invoices: services.Invoices,
		Quotes:   services.Quotes,
		Clients:  services.Clients,
		Mailer: jobs.NewSMTPMailer(jobs.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
			FromName: cfg.BusinessName,
		}),
		BusinessName: cfg.BusinessName,
		Logger:       logger,
		Metrics:      jobMetrics,
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskQuotesExpire, Handler: sweeps.HandleExpireQuotes},
			{Type: jobs.TaskInvoicesOverdue, Handler: sweeps.HandleMarkOverdue},
			{Type: jobs.TaskInvoiceEmail, Handler: email.HandleInvoice},
			{Type: jobs.TaskQuoteEmail, Handler: email.HandleQuote},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.QuoteExpiryCron, Task: jobs.NewQuotesExpireTask(), Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: cfg.OverdueCron, Task: jobs.NewInvoicesOverdueTask(), Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
