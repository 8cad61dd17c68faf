package feed

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics names as constants for consistency.
const (
	MetricSnapshotsTotal     = "feed_snapshots_total"
	MetricVisibleBroadcasts  = "feed_visible_broadcasts"
	MetricFeedErrorsTotal    = "feed_errors_total"
	MetricDecodeErrorsTotal  = "feed_decode_errors_total"
	MetricStaleEnrichments   = "feed_stale_enrichments_total"
	MetricEnrichmentDuration = "feed_enrichment_duration_seconds"
	MetricExcludedBroadcasts = "feed_excluded_broadcasts_total"
)

// Snapshot sources.
const (
	SourceListener = "listener"
	SourcePoll     = "poll"
	SourceManual   = "manual"
)

// Exclusion reasons.
const (
	ReasonOwn        = "own"
	ReasonMutedUser  = "muted_user"
	ReasonMutedTrack = "muted_track"
	ReasonNoProfile  = "no_profile"
)

// Metrics contains Prometheus metrics for the feed synchronizer.
// All operations are thread-safe.
type Metrics struct {
	snapshots          *prometheus.CounterVec
	visible            prometheus.Gauge
	feedErrors         *prometheus.CounterVec
	decodeErrors       prometheus.Counter
	staleEnrichments   prometheus.Counter
	enrichmentDuration prometheus.Histogram
	excluded           *prometheus.CounterVec
}

// NewMetrics creates and returns a new Metrics instance with all collectors initialized.
// The metrics are not registered; call Register to register them with a registry.
func NewMetrics() *Metrics {
	return &Metrics{
		snapshots: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricSnapshotsTotal,
				Help: "Total number of full feed snapshots applied by source",
			},
			[]string{"source"},
		),
		visible: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: MetricVisibleBroadcasts,
			Help: "Number of broadcasts in the current visible set",
		}),
		feedErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricFeedErrorsTotal,
				Help: "Total number of feed listener and query failures by source",
			},
			[]string{"source"},
		),
		decodeErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricDecodeErrorsTotal,
			Help: "Total number of broadcast documents that could not be decoded",
		}),
		staleEnrichments: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricStaleEnrichments,
			Help: "Total number of enrichment results discarded because a newer snapshot arrived",
		}),
		enrichmentDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    MetricEnrichmentDuration,
			Help:    "Histogram of profile enrichment latency per snapshot in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
		excluded: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricExcludedBroadcasts,
				Help: "Total number of broadcasts left out of the visible set by reason",
			},
			[]string{"reason"},
		),
	}
}

// Register registers all metrics with the given registry.
// Returns an error if registration fails.
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
		m.snapshots,
		m.visible,
		m.feedErrors,
		m.decodeErrors,
		m.staleEnrichments,
		m.enrichmentDuration,
		m.excluded,
	}
}

func (m *Metrics) incSnapshots(source string) {
	if m != nil {
		m.snapshots.WithLabelValues(source).Inc()
	}
}

func (m *Metrics) setVisible(n int) {
	if m != nil {
		m.visible.Set(float64(n))
	}
}

func (m *Metrics) incFeedErrors(source string) {
	if m != nil {
		m.feedErrors.WithLabelValues(source).Inc()
	}
}

func (m *Metrics) addDecodeErrors(n int) {
	if m != nil && n > 0 {
		m.decodeErrors.Add(float64(n))
	}
}

func (m *Metrics) incStale() {
	if m != nil {
		m.staleEnrichments.Inc()
	}
}

func (m *Metrics) observeEnrichment(seconds float64) {
	if m != nil {
		m.enrichmentDuration.Observe(seconds)
	}
}

func (m *Metrics) addExcluded(reason string, n int) {
	if m != nil && n > 0 {
		m.excluded.WithLabelValues(reason).Add(float64(n))
	}
}
