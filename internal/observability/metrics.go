package observability

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics stores Prometheus collectors used by the request, worker, and DLQ
// flows.
type Metrics struct {
	registry *prometheus.Registry

	httpRequestsTotal         *prometheus.CounterVec
	httpRequestDuration       *prometheus.HistogramVec
	deletionsAcceptedTotal    *prometheus.CounterVec
	duplicateSubmissionsTotal prometheus.Counter
	softDeletedTotal          prometheus.Counter
	enqueueFailuresTotal      prometheus.Counter
	hardDeletedTotal          prometheus.Counter
	hardDeleteRetriesTotal    prometheus.Counter
	hardDeleteDuration        prometheus.Histogram
	workerInflight            prometheus.Gauge
	deadLetteredTotal         prometheus.Counter
	alertsTotal               *prometheus.CounterVec
	manualRequeuesTotal       prometheus.Counter
	trackingExpiredTotal      prometheus.Counter
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "deletion_engine",
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests processed by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "deletion_engine",
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds by method and path.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		deletionsAcceptedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "deletion_engine",
				Name:      "deletions_accepted_total",
				Help:      "Total number of accepted deletion submissions by request type.",
			},
			[]string{"type"},
		),
		duplicateSubmissionsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "deletion_engine",
				Name:      "duplicate_submissions_total",
				Help:      "Total number of submissions deduplicated onto an existing tracking record.",
			},
		),
		softDeletedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "deletion_engine",
				Name:      "notifications_soft_deleted_total",
				Help:      "Total number of notifications newly soft-deleted on accept.",
			},
		),
		enqueueFailuresTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "deletion_engine",
				Name:      "enqueue_failures_total",
				Help:      "Total number of hard-deletion jobs that failed to enqueue.",
			},
		),
		hardDeletedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "deletion_engine",
				Name:      "hard_deletions_total",
				Help:      "Total number of deletion jobs completed by the hard-deletion worker.",
			},
		),
		hardDeleteRetriesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "deletion_engine",
				Name:      "hard_delete_retries_total",
				Help:      "Total number of failed hard-delete attempts, including retried ones.",
			},
		),
		hardDeleteDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "deletion_engine",
				Name:      "hard_delete_duration_seconds",
				Help:      "Hard-delete processing duration in seconds, including local retries.",
				Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
			},
		),
		workerInflight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "deletion_engine",
				Name:      "worker_inflight",
				Help:      "Current number of in-flight hard-deletion jobs.",
			},
		),
		deadLetteredTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "deletion_engine",
				Name:      "dead_lettered_total",
				Help:      "Total number of deletion jobs consumed from the dead-letter queue.",
			},
		),
		alertsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "deletion_engine",
				Name:      "alerts_total",
				Help:      "Total number of dead-letter alerts by delivery outcome.",
			},
			[]string{"outcome"},
		),
		manualRequeuesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "deletion_engine",
				Name:      "manual_requeues_total",
				Help:      "Total number of dead-lettered jobs manually requeued.",
			},
		),
		trackingExpiredTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "deletion_engine",
				Name:      "tracking_expired_total",
				Help:      "Total number of tracking records removed by the retention sweeper.",
			},
		),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.deletionsAcceptedTotal,
		m.duplicateSubmissionsTotal,
		m.softDeletedTotal,
		m.enqueueFailuresTotal,
		m.hardDeletedTotal,
		m.hardDeleteRetriesTotal,
		m.hardDeleteDuration,
		m.workerInflight,
		m.deadLetteredTotal,
		m.alertsTotal,
		m.manualRequeuesTotal,
		m.trackingExpiredTotal,
	)

	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil || m.registry == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) HTTPMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		path := routePath(c)
		// Avoid self-scrape noise for request counters.
		if path == "/metrics" {
			return err
		}

		m.recordHTTPRequest(c.Method(), path, statusFromResult(c, err), time.Since(start))
		return err
	}
}

func (m *Metrics) IncDeletionAccepted(requestType string) {
	if m == nil {
		return
	}
	label := strings.TrimSpace(strings.ToLower(requestType))
	if label == "" {
		label = "unknown"
	}
	m.deletionsAcceptedTotal.WithLabelValues(label).Inc()
}

func (m *Metrics) IncDuplicateSubmission() {
	if m == nil {
		return
	}
	m.duplicateSubmissionsTotal.Inc()
}

func (m *Metrics) AddSoftDeleted(count float64) {
	if m == nil || count <= 0 {
		return
	}
	m.softDeletedTotal.Add(count)
}

func (m *Metrics) IncEnqueueFailure() {
	if m == nil {
		return
	}
	m.enqueueFailuresTotal.Inc()
}

func (m *Metrics) IncHardDeleted() {
	if m == nil {
		return
	}
	m.hardDeletedTotal.Inc()
}

func (m *Metrics) IncHardDeleteRetry() {
	if m == nil {
		return
	}
	m.hardDeleteRetriesTotal.Inc()
}

func (m *Metrics) ObserveHardDeleteDuration(duration time.Duration) {
	if m == nil {
		return
	}
	seconds := duration.Seconds()
	if seconds < 0 {
		seconds = 0
	}
	m.hardDeleteDuration.Observe(seconds)
}

func (m *Metrics) IncWorkerInFlight() {
	if m == nil {
		return
	}
	m.workerInflight.Inc()
}

func (m *Metrics) DecWorkerInFlight() {
	if m == nil {
		return
	}
	m.workerInflight.Dec()
}

func (m *Metrics) IncDeadLettered() {
	if m == nil {
		return
	}
	m.deadLetteredTotal.Inc()
}

func (m *Metrics) IncAlert(outcome string) {
	if m == nil {
		return
	}
	label := strings.TrimSpace(strings.ToLower(outcome))
	if label == "" {
		label = "unknown"
	}
	m.alertsTotal.WithLabelValues(label).Inc()
}

func (m *Metrics) IncManualRequeue() {
	if m == nil {
		return
	}
	m.manualRequeuesTotal.Inc()
}

func (m *Metrics) AddTrackingExpired(count float64) {
	if m == nil || count <= 0 {
		return
	}
	m.trackingExpiredTotal.Add(count)
}

func (m *Metrics) recordHTTPRequest(method string, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}

	methodLabel := strings.ToUpper(strings.TrimSpace(method))
	if methodLabel == "" {
		methodLabel = "UNKNOWN"
	}
	pathLabel := strings.TrimSpace(path)
	if pathLabel == "" {
		pathLabel = "unmatched"
	}

	m.httpRequestsTotal.WithLabelValues(methodLabel, pathLabel, strconv.Itoa(status)).Inc()
	m.httpRequestDuration.WithLabelValues(methodLabel, pathLabel).Observe(duration.Seconds())
}

func routePath(c *fiber.Ctx) string {
	if c == nil {
		return "unmatched"
	}

	if route := c.Route(); route != nil {
		if path := strings.TrimSpace(route.Path); path != "" {
			return path
		}
	}
	return "unmatched"
}

func statusFromResult(c *fiber.Ctx, err error) int {
	if err != nil {
		if fiberErr, ok := err.(*fiber.Error); ok {
			return fiberErr.Code
		}
		return fiber.StatusInternalServerError
	}

	if c == nil {
		return fiber.StatusOK
	}

	status := c.Response().StatusCode()
	if status == 0 {
		return fiber.StatusOK
	}
	return status
}
