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

// Metrics stores Prometheus collectors used by the campaign engine and the
// ops HTTP server.
type Metrics struct {
	registry *prometheus.Registry

	httpRequestsTotal       *prometheus.CounterVec
	httpRequestDuration     *prometheus.HistogramVec
	dispatchOutcomesTotal   *prometheus.CounterVec
	sendDuration            *prometheus.HistogramVec
	dispatchInflight        prometheus.Gauge
	archiveFailuresTotal    *prometheus.CounterVec
	storeWriteFailuresTotal prometheus.Counter
	batchesCompletedTotal   prometheus.Counter
	passInProgress          prometheus.Gauge
	suppressionsMarkedTotal *prometheus.CounterVec
}

const namespace = "outreach_engine"

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests processed by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds by method and path.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		dispatchOutcomesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "dispatch_outcomes_total",
				Help:      "Dispatch outcomes grouped by kind and reason.",
			},
			[]string{"outcome", "reason"},
		),
		sendDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "dispatch_send_duration_seconds",
				Help:      "Transport send duration in seconds grouped by transport.",
				Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
			},
			[]string{"transport"},
		),
		dispatchInflight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "dispatch_inflight",
				Help:      "Current number of in-flight dispatches.",
			},
		),
		archiveFailuresTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "archive_failures_total",
				Help:      "Total number of sent messages that could not be archived.",
			},
			[]string{"archiver"},
		),
		storeWriteFailuresTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "store_write_failures_total",
				Help:      "Total number of write-back chunks the store rejected.",
			},
		),
		batchesCompletedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "batches_completed_total",
				Help:      "Total number of batches dispatched and written back.",
			},
		),
		passInProgress: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "pass_in_progress",
				Help:      "1 while a campaign pass is running.",
			},
		),
		suppressionsMarkedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "suppressions_marked_total",
				Help:      "Total number of contacts marked unsubscribed grouped by match kind.",
			},
			[]string{"match"},
		),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.dispatchOutcomesTotal,
		m.sendDuration,
		m.dispatchInflight,
		m.archiveFailuresTotal,
		m.storeWriteFailuresTotal,
		m.batchesCompletedTotal,
		m.passInProgress,
		m.suppressionsMarkedTotal,
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

func (m *Metrics) IncDispatchOutcome(outcome string, reason string) {
	if m == nil {
		return
	}
	reasonLabel := strings.TrimSpace(strings.ToLower(reason))
	if reasonLabel == "" {
		reasonLabel = "none"
	}
	m.dispatchOutcomesTotal.WithLabelValues(normalizeLabel(outcome), reasonLabel).Inc()
}

func (m *Metrics) ObserveSendDuration(transport string, duration time.Duration) {
	if m == nil {
		return
	}
	seconds := duration.Seconds()
	if seconds < 0 {
		seconds = 0
	}
	m.sendDuration.WithLabelValues(normalizeLabel(transport)).Observe(seconds)
}

func (m *Metrics) IncDispatchInFlight() {
	if m == nil {
		return
	}
	m.dispatchInflight.Inc()
}

func (m *Metrics) DecDispatchInFlight() {
	if m == nil {
		return
	}
	m.dispatchInflight.Dec()
}

func (m *Metrics) IncArchiveFailure(archiver string) {
	if m == nil {
		return
	}
	m.archiveFailuresTotal.WithLabelValues(normalizeLabel(archiver)).Inc()
}

func (m *Metrics) IncStoreWriteFailure() {
	if m == nil {
		return
	}
	m.storeWriteFailuresTotal.Inc()
}

func (m *Metrics) IncBatchCompleted() {
	if m == nil {
		return
	}
	m.batchesCompletedTotal.Inc()
}

func (m *Metrics) SetPassInProgress(running bool) {
	if m == nil {
		return
	}
	if running {
		m.passInProgress.Set(1)
		return
	}
	m.passInProgress.Set(0)
}

func (m *Metrics) AddSuppressionsMarked(match string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.suppressionsMarkedTotal.WithLabelValues(normalizeLabel(match)).Add(float64(n))
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

func normalizeLabel(value string) string {
	normalized := strings.ToLower(strings.TrimSpace(value))
	if normalized == "" {
		return "unknown"
	}
	return normalized
}
