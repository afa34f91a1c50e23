// Package metrics exposes the cue server's Prometheus metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every Prometheus collector the cue server registers.
type Metrics struct {
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	CuesPublished *prometheus.CounterVec
	CuesDelivered prometheus.Counter

	ListenersActive       prometheus.Gauge
	PublishDenied         *prometheus.CounterVec
	AuthFailures          prometheus.Counter
	KeyStoreErrors        prometheus.Counter
	DispatcherResubscribes prometheus.Counter
}

// New creates and registers all Prometheus metrics under namespace.
func New(namespace string) *Metrics {
	if namespace == "" {
		namespace = "cue"
	}

	m := &Metrics{
		RequestsTotal: prometheus.NewCounterVec(
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
				Help:      "HTTP request duration in seconds",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
			},
			[]string{"method", "route"},
		),
		CuesPublished: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cues_published_total",
				Help:      "Total number of cues the publish endpoint handed to the event bus, by outcome (accepted or error)",
			},
			[]string{"status"},
		),
		CuesDelivered: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cues_delivered_total",
				Help:      "Total number of per-session cue writes made by the dispatcher",
			},
		),
		ListenersActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "listeners_active",
				Help:      "Number of currently connected listen sessions in this process",
			},
		),
		PublishDenied: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "publish_denied_total",
				Help:      "Total number of publish attempts rejected by producer-key policy",
			},
			[]string{"reason"},
		),
		AuthFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "auth_failures_total",
				Help:      "Total number of requests rejected by the Authenticator",
			},
		),
		KeyStoreErrors: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "keystore_errors_total",
				Help:      "Total number of Key Store backend errors",
			},
		),
		DispatcherResubscribes: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "dispatcher_resubscribes_total",
				Help:      "Total number of times the dispatcher has had to resubscribe after an Event Bus error",
			},
		),
	}

	prometheus.MustRegister(
		m.RequestsTotal,
		m.RequestDuration,
		m.CuesPublished,
		m.CuesDelivered,
		m.ListenersActive,
		m.PublishDenied,
		m.AuthFailures,
		m.KeyStoreErrors,
		m.DispatcherResubscribes,
	)

	return m
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
