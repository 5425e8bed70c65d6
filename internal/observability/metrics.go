package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects Prometheus metrics for the API and the billing workflow.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec

	invoicesCreated  *prometheus.CounterVec
	batchRuns        prometheus.Counter
	batchSkipped     *prometheus.CounterVec
	paymentsRecorded *prometheus.CounterVec
	paymentsAmount   prometheus.Counter
	quoteTransitions *prometheus.CounterVec
}

// NewMetrics initialises the registry with HTTP and business metrics.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cleanops_http_requests_total",
		Help: "HTTP requests by route and status code.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "cleanops_http_request_duration_seconds",
		Help:    "HTTP request duration per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	invoices := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cleanops_invoices_created_total",
		Help: "Invoices created, partitioned by source (manual, job, batch).",
	}, []string{"source"})
	batchRuns := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cleanops_invoice_batches_total",
		Help: "Batch invoice generation runs.",
	})
	batchSkipped := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cleanops_invoice_batch_skipped_total",
		Help: "Clients or jobs skipped during batch generation.",
	}, []string{"kind"})
	payments := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cleanops_payments_recorded_total",
		Help: "Payments recorded, partitioned by full or partial.",
	}, []string{"kind"})
	amount := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cleanops_payments_amount_total",
		Help: "Sum of recorded payment amounts.",
	})
	quotes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cleanops_quote_transitions_total",
		Help: "Quote status transitions by target status.",
	}, []string{"to"})
	registry.MustRegister(requests, duration, invoices, batchRuns, batchSkipped, payments, amount, quotes)
	return &Metrics{
		registry:         registry,
		handler:          promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:    requests,
		requestDuration:  duration,
		invoicesCreated:  invoices,
		batchRuns:        batchRuns,
		batchSkipped:     batchSkipped,
		paymentsRecorded: payments,
		paymentsAmount:   amount,
		quoteTransitions: quotes,
	}
}

// Handler returns the http.Handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware records metrics for every HTTP request.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(&recorder, r)
		route := routePattern(r)
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// Registerer exposes the registry for additional collectors.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

// InvoiceCreated counts a new invoice.
func (m *Metrics) InvoiceCreated(source string) {
	if m == nil {
		return
	}
	m.invoicesCreated.WithLabelValues(source).Inc()
}

// BatchGenerated records one batch run and what it skipped.
func (m *Metrics) BatchGenerated(invoices, skippedClients, skippedJobs int) {
	if m == nil {
		return
	}
	m.batchRuns.Inc()
	m.invoicesCreated.WithLabelValues("batch").Add(float64(invoices))
	m.batchSkipped.WithLabelValues("client").Add(float64(skippedClients))
	m.batchSkipped.WithLabelValues("job").Add(float64(skippedJobs))
}

// PaymentRecorded counts a payment and its amount.
func (m *Metrics) PaymentRecorded(partial bool, amount float64) {
	if m == nil {
		return
	}
	kind := "full"
	if partial {
		kind = "partial"
	}
	m.paymentsRecorded.WithLabelValues(kind).Inc()
	m.paymentsAmount.Add(amount)
}

// QuoteTransitioned counts a quote entering status to.
func (m *Metrics) QuoteTransitioned(to string) {
	if m == nil {
		return
	}
	m.quoteTransitions.WithLabelValues(to).Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func routePattern(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}
