package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors of one catalog instance.
type Metrics struct {
	registry *prometheus.Registry

	CacheRequests     *prometheus.CounterVec
	CacheLoads        *prometheus.CounterVec
	CacheLoadDuration prometheus.Histogram
	QueryDuration     *prometheus.HistogramVec
	BatchChunks       prometheus.Counter
}

// NewMetrics registers the catalog collectors on a fresh registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		CacheRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kic_partition_cache_requests_total",
				Help: "Partition cache lookups by result (hit, miss)",
			},
			[]string{"result"},
		),
		CacheLoads: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kic_partition_cache_loads_total",
				Help: "Sky group listing loads by outcome (ok, error)",
			},
			[]string{"outcome"},
		),
		CacheLoadDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "kic_partition_cache_load_seconds",
				Help:    "Time spent loading one sky group listing",
				Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
			},
		),
		QueryDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "kic_query_seconds",
				Help:    "Catalog query latency by kind (compiled, batch)",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"kind"},
		),
		BatchChunks: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "kic_batch_chunks_total",
				Help: "Chunks issued by batched id lookups",
			},
		),
	}
}

// CacheHit counts a lookup served from a populated entry.
func (m *Metrics) CacheHit() {
	if m != nil {
		m.CacheRequests.WithLabelValues("hit").Inc()
	}
}

// CacheMiss counts a lookup that had to wait for a load.
func (m *Metrics) CacheMiss() {
	if m != nil {
		m.CacheRequests.WithLabelValues("miss").Inc()
	}
}

// ObserveLoad records the outcome of one listing load.
func (m *Metrics) ObserveLoad(d time.Duration, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.CacheLoads.WithLabelValues(outcome).Inc()
	m.CacheLoadDuration.Observe(d.Seconds())
}

// ObserveQuery records the latency of one storage query.
func (m *Metrics) ObserveQuery(kind string, d time.Duration) {
	if m != nil {
		m.QueryDuration.WithLabelValues(kind).Observe(d.Seconds())
	}
}

// ChunkIssued counts one chunk of a batched lookup.
func (m *Metrics) ChunkIssued() {
	if m != nil {
		m.BatchChunks.Inc()
	}
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns the Prometheus HTTP handler for /metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
