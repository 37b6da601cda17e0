// Package metrics defines the Prometheus collectors of the progress service
// and serves them at /metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/eduplatform/progress-hub/internal/domain/shared"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "progress"

// Metrics holds all collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	RequestCounter     *prometheus.CounterVec
	RequestDuration    *prometheus.HistogramVec
	EventsPublished    *prometheus.CounterVec
	EventHandlerErrors *prometheus.CounterVec
	EventHandlerTime   *prometheus.HistogramVec
	Unlocks            *prometheus.CounterVec
	StoreWriteFailures *prometheus.CounterVec
	RemindersSent      prometheus.Counter
	JobRuns            *prometheus.CounterVec
	JobDuration        *prometheus.HistogramVec
}

// New creates and registers all collectors, plus the Go runtime and process
// collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		RequestCounter: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "Duration of HTTP requests",
				Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		),
		EventsPublished: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_published_total",
				Help:      "Domain events published on the event bus",
			},
			[]string{"event_type"},
		),
		EventHandlerErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "event_handler_errors_total",
				Help:      "Event handler executions that returned an error",
			},
			[]string{"event_type"},
		),
		EventHandlerTime: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "event_handler_duration_seconds",
				Help:      "Duration of event handler executions",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"event_type"},
		),
		Unlocks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "achievement_unlocks_total",
				Help:      "Achievements unlocked",
			},
			[]string{"achievement_id"},
		),
		StoreWriteFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "store_write_failures_total",
				Help:      "Store writes that failed after all retries",
			},
			[]string{"document"},
		),
		RemindersSent: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "streak_reminders_sent_total",
				Help:      "Streak reminder notices sent by the worker",
			},
		),
		JobRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "job_runs_total",
				Help:      "Scheduled job executions by result",
			},
			[]string{"job", "result"},
		),
		JobDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "job_duration_seconds",
				Help:      "Duration of scheduled job executions",
				Buckets:   []float64{0.01, 0.1, 0.5, 1, 5, 30, 60},
			},
			[]string{"job"},
		),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.RequestCounter,
		m.RequestDuration,
		m.EventsPublished,
		m.EventHandlerErrors,
		m.EventHandlerTime,
		m.Unlocks,
		m.StoreWriteFailures,
		m.RemindersSent,
		m.JobRuns,
		m.JobDuration,
	)
	return m
}

// Registry returns the private registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveRequest records one HTTP request.
func (m *Metrics) ObserveRequest(method, route string, status int, d time.Duration) {
	m.RequestCounter.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.RequestDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

// ObservePublish implements messaging.Observer.
func (m *Metrics) ObservePublish(eventType shared.EventType) {
	m.EventsPublished.WithLabelValues(string(eventType)).Inc()
}

// ObserveHandler implements messaging.Observer.
func (m *Metrics) ObserveHandler(eventType shared.EventType, d time.Duration, err error) {
	m.EventHandlerTime.WithLabelValues(string(eventType)).Observe(d.Seconds())
	if err != nil {
		m.EventHandlerErrors.WithLabelValues(string(eventType)).Inc()
	}
}

// ObserveUnlock counts one unlocked achievement.
func (m *Metrics) ObserveUnlock(achievementID string) {
	m.Unlocks.WithLabelValues(achievementID).Inc()
}

// ObserveStoreWriteFailure counts a failed document write.
// Its signature matches document.Store.OnWriteFailure.
func (m *Metrics) ObserveStoreWriteFailure(document string, _ error) {
	m.StoreWriteFailures.WithLabelValues(document).Inc()
}

// ObserveReminder counts one streak reminder.
func (m *Metrics) ObserveReminder() {
	m.RemindersSent.Inc()
}

// ObserveJob records one scheduled job execution.
func (m *Metrics) ObserveJob(job string, d time.Duration, err error) {
	result := "success"
	if err != nil {
		result = "failure"
	}
	m.JobRuns.WithLabelValues(job, result).Inc()
	m.JobDuration.WithLabelValues(job).Observe(d.Seconds())
}
