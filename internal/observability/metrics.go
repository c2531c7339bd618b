package observability

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the service collectors on a private registry so that tests
// can build as many instances as they like.
type Metrics struct {
	Registry *prometheus.Registry

	requests      *prometheus.CounterVec
	latency       *prometheus.HistogramVec
	errors        *prometheus.CounterVec
	transitions   *prometheus.CounterVec
	deliveries    *prometheus.CounterVec
	retryDepth    prometheus.Gauge
	loginFailures prometheus.Counter
}

// NewMetrics initializes metrics storage.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "checkin_http_requests_total",
			Help: "HTTP requests by route, method and status",
		}, []string{"path", "method", "status"}),
		latency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "checkin_http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"path", "method"}),
		errors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "checkin_http_errors_total",
			Help: "Failed HTTP requests by error code",
		}, []string{"path", "method", "code"}),
		transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "checkin_user_transitions_total",
			Help: "Committed user lifecycle transitions",
		}, []string{"transition"}),
		deliveries: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "checkin_notification_deliveries_total",
			Help: "Notification attempts by outcome",
		}, []string{"outcome"}),
		retryDepth: factory.NewGauge(prometheus.GaugeOpts{
			Name: "checkin_notification_retry_queue_depth",
			Help: "Messages waiting for redelivery",
		}),
		loginFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "checkin_admin_login_failures_total",
			Help: "Rejected admin login attempts",
		}),
	}
}

// RecordRequest increments counters for requests.
func (m *Metrics) RecordRequest(path, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(path, method, strconv.Itoa(status)).Inc()
	m.latency.WithLabelValues(path, method).Observe(duration.Seconds())
}

// RecordError increments error counters.
func (m *Metrics) RecordError(path, method, code string) {
	if m == nil {
		return
	}
	m.errors.WithLabelValues(path, method, code).Inc()
}

// RecordTransition counts a committed lifecycle change such as "approved".
func (m *Metrics) RecordTransition(transition string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(transition).Inc()
}

// RecordDelivery counts a delivery outcome such as "delivered" or "dropped".
func (m *Metrics) RecordDelivery(outcome string) {
	if m == nil {
		return
	}
	m.deliveries.WithLabelValues(outcome).Inc()
}

// SetRetryDepth publishes the current retry queue length.
func (m *Metrics) SetRetryDepth(depth int) {
	if m == nil {
		return
	}
	m.retryDepth.Set(float64(depth))
}

// RecordLoginFailure counts a rejected admin login.
func (m *Metrics) RecordLoginFailure() {
	if m == nil {
		return
	}
	m.loginFailures.Inc()
}
