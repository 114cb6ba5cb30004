// Package metrics exposes Prometheus collectors for the API server.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "budgetlist"

type Metrics struct {
	registry *prometheus.Registry

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
	itemsAdded   prometheus.Counter
	overBudget   prometheus.Counter
	alerts       *prometheus.CounterVec
}

// New registers all collectors, plus Go runtime and process collectors, on
// a private registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status code.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		itemsAdded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "items_added_total",
			Help:      "Items committed to a list.",
		}),
		overBudget: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "over_budget_rejections_total",
			Help:      "Item additions rejected because they would exceed the budget.",
		}),
		alerts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "budget_alerts_total",
			Help:      "Budget alerts published by resulting status.",
		}, []string{"status"}),
	}

	m.registry.MustRegister(
		m.httpRequests,
		m.httpDuration,
		m.itemsAdded,
		m.overBudget,
		m.alerts,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the exposition format for this registry.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveHTTP(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

func (m *Metrics) ItemAdded() {
	if m == nil {
		return
	}
	m.itemsAdded.Inc()
}

func (m *Metrics) OverBudgetRejected() {
	if m == nil {
		return
	}
	m.overBudget.Inc()
}

func (m *Metrics) AlertPublished(status string) {
	if m == nil {
		return
	}
	m.alerts.WithLabelValues(status).Inc()
}
