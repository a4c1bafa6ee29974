package observability

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics groups the service's Prometheus collectors. A nil *Metrics is a
// valid no-op recorder.
type Metrics struct {
	registry *prometheus.Registry

	requests      *prometheus.CounterVec
	latency       *prometheus.HistogramVec
	errors        *prometheus.CounterVec
	transitions   *prometheus.CounterVec
	sweepRuns     *prometheus.CounterVec
	sweepDuration *prometheus.HistogramVec
	sweepItems    *prometheus.CounterVec
	notifyFailed  *prometheus.CounterVec
}

// NewMetrics registers collectors on a private registry that also carries
// the Go runtime and process collectors.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "helpdesk",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests served, labeled by route, method and status",
		}, []string{"route", "method", "status"}),
		latency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "helpdesk",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method"}),
		errors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "helpdesk",
			Subsystem: "http",
			Name:      "errors_total",
			Help:      "Error responses, labeled by route, method and error code",
		}, []string{"route", "method", "code"}),
		transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "helpdesk",
			Subsystem: "tickets",
			Name:      "transitions_total",
			Help:      "Ticket status transitions",
		}, []string{"from", "to"}),
		sweepRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "helpdesk",
			Subsystem: "sweeps",
			Name:      "runs_total",
			Help:      "Sweep executions, labeled by sweep and result",
		}, []string{"sweep", "result"}),
		sweepDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "helpdesk",
			Subsystem: "sweeps",
			Name:      "duration_seconds",
			Help:      "Duration of sweep executions",
			Buckets:   prometheus.DefBuckets,
		}, []string{"sweep"}),
		sweepItems: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "helpdesk",
			Subsystem: "sweeps",
			Name:      "items_total",
			Help:      "Tickets touched by sweeps, labeled by sweep and outcome",
		}, []string{"sweep", "outcome"}),
		notifyFailed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "helpdesk",
			Subsystem: "notifications",
			Name:      "failures_total",
			Help:      "Notification deliveries that failed, labeled by event type",
		}, []string{"event"}),
	}
}

// Registry exposes the registry for the /metrics handler.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// RecordRequest counts a served request.
func (m *Metrics) RecordRequest(route, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.latency.WithLabelValues(route, method).Observe(duration.Seconds())
}

// RecordError counts an error response by code.
func (m *Metrics) RecordError(route, method, code string) {
	if m == nil {
		return
	}
	m.errors.WithLabelValues(route, method, code).Inc()
}

// RecordTransition counts a ticket status change.
func (m *Metrics) RecordTransition(from, to string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(from, to).Inc()
}

// RecordSweep observes one sweep run.
func (m *Metrics) RecordSweep(sweep string, err error, duration time.Duration) {
	if m == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "failure"
	}
	m.sweepRuns.WithLabelValues(sweep, result).Inc()
	m.sweepDuration.WithLabelValues(sweep).Observe(duration.Seconds())
}

// RecordSweepItems adds n tickets with outcome to a sweep's tally.
func (m *Metrics) RecordSweepItems(sweep, outcome string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.sweepItems.WithLabelValues(sweep, outcome).Add(float64(n))
}

// RecordNotificationFailure counts a swallowed notification failure.
func (m *Metrics) RecordNotificationFailure(event string) {
	if m == nil {
		return
	}
	m.notifyFailed.WithLabelValues(event).Inc()
}
