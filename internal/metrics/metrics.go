// Package metrics holds the Prometheus collectors exported by `escalator serve`.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the engine's collectors.
type Metrics struct {
	registry      *prometheus.Registry
	ticks         prometheus.Counter
	tickDuration  prometheus.Histogram
	escalations   *prometheus.CounterVec
	notifications *prometheus.CounterVec
	casesOpened   prometheus.Counter
}

// New creates the collectors and registers them on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "escalator_scheduler_ticks_total",
			Help: "Total number of scheduler passes",
		}),
		tickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "escalator_scheduler_tick_duration_seconds",
			Help:    "Duration of scheduler passes",
			Buckets: prometheus.DefBuckets,
		}),
		escalations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "escalator_escalations_total",
			Help: "Escalation attempts by outcome",
		}, []string{"outcome"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "escalator_notifications_total",
			Help: "Notification requests by delivery status",
		}, []string{"status"}),
		casesOpened: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "escalator_cases_opened_total",
			Help: "Total number of cases opened",
		}),
	}

	m.registry.MustRegister(
		m.ticks,
		m.tickDuration,
		m.escalations,
		m.notifications,
		m.casesOpened,
		collectors.NewGoCollector(),
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for tests and extra collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveTick records one scheduler pass.
func (m *Metrics) ObserveTick(d time.Duration) {
	if m == nil {
		return
	}
	m.ticks.Inc()
	m.tickDuration.Observe(d.Seconds())
}

// Escalation records one escalation attempt outcome
// (escalated, stale, failed, or a no-op decision name).
func (m *Metrics) Escalation(outcome string) {
	if m == nil {
		return
	}
	m.escalations.WithLabelValues(outcome).Inc()
}

// Notification records a notification request reaching a delivery status.
func (m *Metrics) Notification(status string) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(status).Inc()
}

// CaseOpened records a newly opened case.
func (m *Metrics) CaseOpened() {
	if m == nil {
		return
	}
	m.casesOpened.Inc()
}
