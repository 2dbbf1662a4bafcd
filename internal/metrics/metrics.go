// Package metrics exposes the server's Prometheus collectors.
//
// Collectors live on a private registry so tests and tools can build as
// many as they like without clashing on the global default registry.
//
//	m := metrics.New()
//	engine, _ := cryptox.NewEngine(key, alg, cryptox.WithFallbackHook(m.CipherFallback))
//	migrator := profiles.NewMigrator(repo, engine, log, profiles.WithResultHook(m.MigrationRecord))
//	router.Handle("/metrics", m.Handler())
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "openblind"

type Metrics struct {
	registry *prometheus.Registry

	// CipherFallbacks counts encrypt/decrypt calls that returned their input
	// unchanged because the engine runs fail-open.
	CipherFallbacks *prometheus.CounterVec

	// MigrationRecords counts records handled by the profile migration, by
	// outcome (migrated, skipped, failed).
	MigrationRecords *prometheus.CounterVec

	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		CipherFallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cipher_fallbacks_total",
			Help:      "Cipher operations that fell back to returning their input",
		}, []string{"op"}),
		MigrationRecords: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "profile_migration_records_total",
			Help:      "Profiles processed by the encryption migration, by result",
		}, []string{"result"}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route pattern and status code",
		}, []string{"method", "route", "status"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route pattern",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"route"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.CipherFallbacks,
		m.MigrationRecords,
		m.HTTPRequests,
		m.HTTPDuration,
	)

	return m
}

// CipherFallback matches cryptox.WithFallbackHook.
func (m *Metrics) CipherFallback(op string) {
	m.CipherFallbacks.WithLabelValues(op).Inc()
}

// MigrationRecord matches profiles.WithResultHook.
func (m *Metrics) MigrationRecord(result string) {
	m.MigrationRecords.WithLabelValues(result).Inc()
}

// ObserveHTTP records one finished request. route should be the router
// pattern, not the raw path, to keep label cardinality bounded.
func (m *Metrics) ObserveHTTP(method, route string, status int, elapsed time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	m.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPDuration.WithLabelValues(route).Observe(elapsed.Seconds())
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
