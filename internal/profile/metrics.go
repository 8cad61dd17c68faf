package profile

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metric names.
const (
	MetricCacheHits     = "profile_cache_hits_total"
	MetricCacheMisses   = "profile_cache_misses_total"
	MetricCacheSize     = "profile_cache_size"
	MetricFetchesTotal  = "profile_fetches_total"
	MetricFetchDuration = "profile_fetch_duration_seconds"
)

// Fetch outcome labels.
const (
	FetchSuccess  = "success"
	FetchNotFound = "not_found"
	FetchTimeout  = "timeout"
	FetchError    = "error"
)

// Metrics contains Prometheus metrics for the profile cache.
type Metrics struct {
	hits          prometheus.Counter
	misses        prometheus.Counter
	size          prometheus.Gauge
	fetches       *prometheus.CounterVec
	fetchDuration prometheus.Histogram
}

// NewMetrics creates unregistered profile cache metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		hits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricCacheHits,
			Help: "Total number of profile ids served from the cache",
		}),
		misses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricCacheMisses,
			Help: "Total number of profile ids that required a fetch",
		}),
		size: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: MetricCacheSize,
			Help: "Number of memoized profiles",
		}),
		fetches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricFetchesTotal,
				Help: "Total number of profile fetches by outcome",
			},
			[]string{"outcome"},
		),
		fetchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    MetricFetchDuration,
			Help:    "Histogram of profile fetch latency in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
	}
}

// Register registers all metrics with the given registry.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range m.Collectors() {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// Collectors returns all Prometheus collectors for testing.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.hits,
		m.misses,
		m.size,
		m.fetches,
		m.fetchDuration,
	}
}
