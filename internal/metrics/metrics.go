// Package metrics exposes Prometheus instruments for builds, catalog loads,
// registry fetches and the HTTP API.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var durationBuckets = []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000}

var (
	CompositeBuildsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ltser_composite_builds_total",
		Help: "Composite builds by zone family and outcome",
	}, []string{"family", "status"})
	CompositeBuildDurationMs = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ltser_composite_build_duration_ms",
		Help:    "Composite build duration in milliseconds",
		Buckets: durationBuckets,
	}, []string{"family"})
	CompositeRows = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "ltser_composite_rows",
		Help:    "Rows per built composite",
		Buckets: []float64{1, 2, 5, 10, 25, 50, 100, 250, 1000},
	})
	CatalogEntriesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ltser_catalog_entries_total",
		Help: "Catalog entries visited by kind and severity",
	}, []string{"kind", "severity"})
	ProvisionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ltser_provisions_total",
		Help: "Site provisions by outcome",
	}, []string{"status"})
	RegistryRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ltser_registry_requests_total",
		Help: "Remote registry requests by endpoint and outcome",
	}, []string{"endpoint", "status"})
	RegistryDurationMs = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ltser_registry_duration_ms",
		Help:    "Remote registry request duration in milliseconds",
		Buckets: durationBuckets,
	}, []string{"endpoint"})
	RegistryBreakerOpen = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "ltser_registry_breaker_open",
		Help: "1 while the registry circuit breaker rejects calls",
	})
	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ltser_http_requests_total",
		Help: "API requests by route and status code",
	}, []string{"route", "code"})
)

func init() {
	prometheus.MustRegister(
		CompositeBuildsTotal,
		CompositeBuildDurationMs,
		CompositeRows,
		CatalogEntriesTotal,
		ProvisionsTotal,
		RegistryRequestsTotal,
		RegistryDurationMs,
		RegistryBreakerOpen,
		HTTPRequestsTotal,
	)
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Outcome maps an error to a status label.
func Outcome(err error) string {
	if err != nil {
		return "failed"
	}
	return "succeeded"
}

// ObserveBuild records one composite build.
func ObserveBuild(family string, rows int, took time.Duration, err error) {
	CompositeBuildsTotal.WithLabelValues(family, Outcome(err)).Inc()
	CompositeBuildDurationMs.WithLabelValues(family).Observe(float64(took.Milliseconds()))
	if err == nil {
		CompositeRows.Observe(float64(rows))
	}
}

// ObserveRegistry records one remote registry call.
func ObserveRegistry(endpoint string, took time.Duration, err error) {
	RegistryRequestsTotal.WithLabelValues(endpoint, Outcome(err)).Inc()
	RegistryDurationMs.WithLabelValues(endpoint).Observe(float64(took.Milliseconds()))
}
