// Package metrics exposes Prometheus metrics for the recommender.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "lmerec"

// Metrics holds the recommender's collectors on a private registry.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	queries        *prometheus.CounterVec   // queries by operation and outcome
	queryDuration  *prometheus.HistogramVec // query latency by operation
	cacheLookups   *prometheus.CounterVec   // suggestion cache hits and misses
	rebuilds       *prometheus.CounterVec   // rebuilds by result
	rebuildSeconds prometheus.Histogram
	bundleSize     *prometheus.GaugeVec // artifact sizes of the serving bundle
	lastSwap       prometheus.Gauge
}

// New creates and registers every collector, plus the Go runtime collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		queries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "query",
			Name:      "total",
			Help:      "Recommendation queries by operation and outcome",
		}, []string{"operation", "outcome"}),

		queryDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "query",
			Name:      "duration_seconds",
			Help:      "Recommendation query latency",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 8),
		}, []string{"operation"}),

		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "lookups_total",
			Help:      "Suggestion cache lookups by result",
		}, []string{"result"}),

		rebuilds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bundle",
			Name:      "rebuilds_total",
			Help:      "Artifact rebuilds by result",
		}, []string{"result"}),

		rebuildSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "bundle",
			Name:      "rebuild_duration_seconds",
			Help:      "Duration of artifact rebuilds",
			Buckets:   prometheus.ExponentialBuckets(0.1, 3, 10),
		}),

		bundleSize: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "bundle",
			Name:      "size",
			Help:      "Artifact sizes of the serving bundle",
		}, []string{"artifact"}),

		lastSwap: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "bundle",
			Name:      "last_swap_timestamp_seconds",
			Help:      "Unix time the serving bundle was last replaced",
		}),
	}

	m.registry.MustRegister(
		m.queries,
		m.queryDuration,
		m.cacheLookups,
		m.rebuilds,
		m.rebuildSeconds,
		m.bundleSize,
		m.lastSwap,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the underlying Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveQuery records one query.
func (m *Metrics) ObserveQuery(operation, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.queries.WithLabelValues(operation, outcome).Inc()
	m.queryDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// CacheLookup records a suggestion cache hit or miss.
func (m *Metrics) CacheLookup(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(result).Inc()
}

// ObserveRebuild records a finished rebuild.
func (m *Metrics) ObserveRebuild(err error, d time.Duration) {
	if m == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "error"
	}
	m.rebuilds.WithLabelValues(result).Inc()
	m.rebuildSeconds.Observe(d.Seconds())
}

// BundleSwapped records the sizes of a newly published bundle.
func (m *Metrics) BundleSwapped(classes, predicates, triples, vectors int) {
	if m == nil {
		return
	}
	m.bundleSize.WithLabelValues("classes").Set(float64(classes))
	m.bundleSize.WithLabelValues("predicates").Set(float64(predicates))
	m.bundleSize.WithLabelValues("triples").Set(float64(triples))
	m.bundleSize.WithLabelValues("vectors").Set(float64(vectors))
	m.lastSwap.SetToCurrentTime()
}
