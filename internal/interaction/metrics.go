package interaction

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metric names.
const (
	MetricLikesTotal       = "interaction_likes_total"
	MetricStepFailures     = "interaction_step_failures_total"
	MetricDeduplicated     = "interaction_deduplicated_total"
	MetricWorkflowDuration = "interaction_workflow_duration_seconds"
)

// Like outcome labels.
const (
	OutcomeCompleted = "completed"
	OutcomePartial   = "partial"
	OutcomeFailed    = "failed"
)

// Metrics contains Prometheus metrics for the like workflow.
type Metrics struct {
	likes        *prometheus.CounterVec
	stepFailures *prometheus.CounterVec
	deduplicated prometheus.Counter
	duration     prometheus.Histogram
}

// NewMetrics creates unregistered interaction metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		likes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricLikesTotal,
				Help: "Total number of like workflows by outcome",
			},
			[]string{"outcome"},
		),
		stepFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricStepFailures,
				Help: "Total number of failed like workflow steps",
			},
			[]string{"step"},
		),
		deduplicated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricDeduplicated,
			Help: "Total number of like calls that joined an in-flight identical like",
		}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    MetricWorkflowDuration,
			Help:    "Histogram of like workflow duration in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
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
		m.likes,
		m.stepFailures,
		m.deduplicated,
		m.duration,
	}
}

func (m *Metrics) incLikes(outcome string) {
	if m != nil {
		m.likes.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) incStepFailure(step Step) {
	if m != nil {
		m.stepFailures.WithLabelValues(string(step)).Inc()
	}
}

func (m *Metrics) incDeduplicated() {
	if m != nil {
		m.deduplicated.Inc()
	}
}

func (m *Metrics) observeDuration(seconds float64) {
	if m != nil {
		m.duration.Observe(seconds)
	}
}
