package metrics

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPResponseSize    *prometheus.HistogramVec

	// Assignment metrics
	AssignmentsTotal   *prometheus.CounterVec
	UnassignmentsTotal prometheus.Counter
	BulkLeadsTotal     *prometheus.CounterVec
	LedgerAnomalies    *prometheus.CounterVec

	// Database metrics
	TxDuration    *prometheus.HistogramVec
	DBConnections prometheus.Gauge

	// Cache metrics
	CacheHits   *prometheus.CounterVec
	CacheMisses *prometheus.CounterVec
}

// New creates a new Metrics instance registered on reg. A nil registerer
// leaves the metrics unregistered, which suits tests.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)

	return &Metrics{
		HTTPRequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path", "status"},
		),
		HTTPResponseSize: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_response_size_bytes",
				Help:    "HTTP response size in bytes",
				Buckets: []float64{100, 1000, 5000, 10000, 50000, 100000, 500000, 1000000},
			},
			[]string{"method", "path"},
		),

		AssignmentsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lead_assignments_total",
				Help: "Total number of ownership intervals opened",
			},
			[]string{"reason"}, // manual, bulk, reassignment, system
		),
		UnassignmentsTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "lead_unassignments_total",
			Help: "Total number of leads returned to the unassigned pool",
		}),
		BulkLeadsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lead_bulk_assign_leads_total",
				Help: "Leads processed by bulk assignment, by outcome",
			},
			[]string{"outcome"}, // assigned, unchanged, missing, out_of_scope
		),
		LedgerAnomalies: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lead_ledger_anomalies_total",
				Help: "Inconsistencies between a lead's owner and its history found during a transfer",
			},
			[]string{"kind"},
		),

		TxDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "lead_assignment_tx_duration_seconds",
				Help:    "Duration of assignment transactions in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5},
			},
			[]string{"operation", "result"},
		),
		DBConnections: f.NewGauge(prometheus.GaugeOpts{
			Name: "db_connections_open",
			Help: "Number of open database connections",
		}),

		CacheHits: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cache_hits_total",
				Help: "Total number of cache hits",
			},
			[]string{"cache"},
		),
		CacheMisses: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cache_misses_total",
				Help: "Total number of cache misses",
			},
			[]string{"cache"},
		),
	}
}

// Middleware creates an Echo middleware for Prometheus metrics
func (m *Metrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			req := c.Request()
			path := c.Path() // Route pattern, not the actual path

			err := next(c)

			status := strconv.Itoa(c.Response().Status)
			m.HTTPRequestsTotal.WithLabelValues(req.Method, path, status).Inc()
			m.HTTPRequestDuration.WithLabelValues(req.Method, path, status).Observe(time.Since(start).Seconds())
			m.HTTPResponseSize.WithLabelValues(req.Method, path).Observe(float64(c.Response().Size))

			return err
		}
	}
}

// The recorders below are safe on a nil *Metrics so services can run without
// instrumentation.

// RecordAssignment counts an opened ownership interval
func (m *Metrics) RecordAssignment(reason string) {
	if m == nil {
		return
	}
	m.AssignmentsTotal.WithLabelValues(reason).Inc()
}

// RecordUnassignment counts a lead returned to the pool
func (m *Metrics) RecordUnassignment() {
	if m == nil {
		return
	}
	m.UnassignmentsTotal.Inc()
}

// RecordBulkItem counts one lead of a bulk assignment by outcome
func (m *Metrics) RecordBulkItem(outcome string) {
	if m == nil {
		return
	}
	m.BulkLeadsTotal.WithLabelValues(outcome).Inc()
}

// RecordLedgerAnomaly counts a lead whose owner and history disagreed
func (m *Metrics) RecordLedgerAnomaly(kind string) {
	if m == nil {
		return
	}
	m.LedgerAnomalies.WithLabelValues(kind).Inc()
}

// RecordTx records the duration of an assignment transaction
func (m *Metrics) RecordTx(operation string, err error, duration time.Duration) {
	if m == nil {
		return
	}
	result := "committed"
	if err != nil {
		result = "rolled_back"
	}
	m.TxDuration.WithLabelValues(operation, result).Observe(duration.Seconds())
}

// UpdateDBConnections updates the open database connections gauge
func (m *Metrics) UpdateDBConnections(count int) {
	if m == nil {
		return
	}
	m.DBConnections.Set(float64(count))
}

// RecordCacheHit increments cache hits counter
func (m *Metrics) RecordCacheHit(cache string) {
	if m == nil {
		return
	}
	m.CacheHits.WithLabelValues(cache).Inc()
}

// RecordCacheMiss increments cache misses counter
func (m *Metrics) RecordCacheMiss(cache string) {
	if m == nil {
		return
	}
	m.CacheMisses.WithLabelValues(cache).Inc()
}
