package jobs

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/brightnest/cleanops/internal/jobs"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// QuoteExpirer moves sent quotes past their validity to expired.
type QuoteExpirer interface {
	ExpireDue(ctx context.Context, now time.Time) (int, error)
}

// OverdueMarker flags pending invoices past their due date.
type OverdueMarker interface {
	MarkOverdue(ctx context.Context, asOf time.Time) (int, error)
}

// SweepJob runs the periodic quote expiry and overdue invoice sweeps.
type SweepJob struct {
	Quotes   QuoteExpirer
	Invoices OverdueMarker
	Logger   *slog.Logger
	Metrics  *jobmetrics.Metrics
	clock    func() time.Time
}

// NewSweepJob wires dependencies for the sweep handlers.
func NewSweepJob(q QuoteExpirer, inv OverdueMarker, logger *slog.Logger, metrics *jobmetrics.Metrics) *SweepJob {
	return &SweepJob{
		Quotes:   q,
		Invoices: inv,
		Logger:   logger,
		Metrics:  metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// HandleExpireQuotes processes TaskQuotesExpire tasks.
func (j *SweepJob) HandleExpireQuotes(ctx context.Context, _ *asynq.Task) error {
	if j == nil || j.Quotes == nil {
		return errors.New("quote expiry: handler not configured")
	}
	return j.run(ctx, TaskQuotesExpire, j.Quotes.ExpireDue)
}

// HandleMarkOverdue processes TaskInvoicesOverdue tasks.
func (j *SweepJob) HandleMarkOverdue(ctx context.Context, _ *asynq.Task) error {
	if j == nil || j.Invoices == nil {
		return errors.New("overdue sweep: handler not configured")
	}
	return j.run(ctx, TaskInvoicesOverdue, j.Invoices.MarkOverdue)
}

func (j *SweepJob) run(ctx context.Context, task string, sweep func(context.Context, time.Time) (int, error)) (resultErr error) {
	tracker := j.metrics().Track(task)
	defer func() { resultErr = tracker.End(resultErr) }()

	logger := j.logger().With(slog.String("job", task))
	now := j.now()
	n, err := sweep(ctx, now)
	if err != nil {
		logger.Error("sweep failed", slog.Any("error", err))
		return err
	}
	j.metrics().AddAffected(task, n)
	logger.Info("sweep completed", slog.Int("affected", n), slog.Duration("duration", time.Since(now)))
	return nil
}

func (j *SweepJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}

func (j *SweepJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *SweepJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}
