package observability

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricsNamespace = "journey_dispatch"

// Metrics stores Prometheus collectors used by the trigger endpoints and the
// delivery pipeline. All methods are safe on a nil receiver.
type Metrics struct {
	registry *prometheus.Registry

	httpRequestsTotal        *prometheus.CounterVec
	httpRequestDuration      *prometheus.HistogramVec
	notificationsSentTotal   *prometheus.CounterVec
	notificationsFailedTotal *prometheus.CounterVec
	notificationSendDuration *prometheus.HistogramVec
	deliveryInflight         *prometheus.GaugeVec
	tokensRetiredTotal       *prometheus.CounterVec
	credentialLookupsTotal   *prometheus.CounterVec
	dispatchRunsTotal        *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests processed by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds by method and path.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		notificationsSentTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "notifications_sent_total",
				Help:      "Push notifications accepted by the gateway and recorded in the audit log.",
			},
			[]string{"kind"},
		),
		notificationsFailedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "notifications_failed_total",
				Help:      "Push notifications whose delivery or audit record failed.",
			},
			[]string{"kind", "reason"},
		),
		notificationSendDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "notification_send_duration_seconds",
				Help:      "Push gateway call duration in seconds grouped by kind.",
				Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
			},
			[]string{"kind"},
		),
		deliveryInflight: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Name:      "delivery_inflight",
				Help:      "Current number of in-flight deliveries grouped by kind.",
			},
			[]string{"kind"},
		),
		tokensRetiredTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "tokens_retired_total",
				Help:      "Device token retirement attempts grouped by result.",
			},
			[]string{"result"},
		),
		credentialLookupsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "credential_lookups_total",
				Help:      "Bearer credential lookups grouped by hit, refresh, or error.",
			},
			[]string{"result"},
		),
		dispatchRunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "dispatch_runs_total",
				Help:      "Dispatch stage runs grouped by stage and final status.",
			},
			[]string{"stage", "status"},
		),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.notificationsSentTotal,
		m.notificationsFailedTotal,
		m.notificationSendDuration,
		m.deliveryInflight,
		m.tokensRetiredTotal,
		m.credentialLookupsTotal,
		m.dispatchRunsTotal,
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
		if path == "/metrics" {
			return err
		}

		// fiber reuses the request buffer; labels must not alias it.
		m.recordHTTPRequest(utils.CopyString(c.Method()), path, statusFromResult(c, err), time.Since(start))
		return err
	}
}

func (m *Metrics) IncNotificationSent(kind string) {
	if m == nil {
		return
	}
	m.notificationsSentTotal.WithLabelValues(normalizeLabel(kind)).Inc()
}

func (m *Metrics) IncNotificationFailed(kind string, reason string) {
	if m == nil {
		return
	}
	m.notificationsFailedTotal.WithLabelValues(normalizeLabel(kind), normalizeLabel(reason)).Inc()
}

func (m *Metrics) ObserveNotificationSendDuration(kind string, duration time.Duration) {
	if m == nil {
		return
	}
	seconds := duration.Seconds()
	if seconds < 0 {
		seconds = 0
	}
	m.notificationSendDuration.WithLabelValues(normalizeLabel(kind)).Observe(seconds)
}

func (m *Metrics) IncDeliveryInFlight(kind string) {
	if m == nil {
		return
	}
	m.deliveryInflight.WithLabelValues(normalizeLabel(kind)).Inc()
}

func (m *Metrics) DecDeliveryInFlight(kind string) {
	if m == nil {
		return
	}
	m.deliveryInflight.WithLabelValues(normalizeLabel(kind)).Dec()
}

// IncTokenRetired counts retirement attempts: retired, failed, or skipped.
func (m *Metrics) IncTokenRetired(result string) {
	if m == nil {
		return
	}
	m.tokensRetiredTotal.WithLabelValues(normalizeLabel(result)).Inc()
}

func (m *Metrics) IncCredentialLookup(result string) {
	if m == nil {
		return
	}
	m.credentialLookupsTotal.WithLabelValues(normalizeLabel(result)).Inc()
}

func (m *Metrics) IncDispatchRun(stage string, status string) {
	if m == nil {
		return
	}
	m.dispatchRunsTotal.WithLabelValues(normalizeLabel(stage), normalizeLabel(status)).Inc()
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
			return utils.CopyString(path)
		}
	}
	return "unmatched"
}

// statusCoder is implemented by handler errors that carry their own HTTP
// status, such as transport.APIError.
type statusCoder interface {
	StatusCode() int
}

func statusFromResult(c *fiber.Ctx, err error) int {
	if err != nil {
		var coded statusCoder
		if errors.As(err, &coded) {
			if status := coded.StatusCode(); status > 0 {
				return status
			}
		}
		var fiberErr *fiber.Error
		if errors.As(err, &fiberErr) {
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
