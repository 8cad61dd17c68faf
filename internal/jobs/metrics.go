package jobs

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metric names.
const (
	MetricJobRunsTotal    = "job_runs_total"
	MetricJobRunDuration  = "job_run_duration_seconds"
	MetricJobErrorsTotal  = "job_errors_total"
	MetricJobLastSuccess  = "job_last_success_timestamp_seconds"
	MetricJobConsecFailed = "job_consecutive_failures"
)

// JobTypeFeedPoll labels the feed synchronizer's full re-read of the
// broadcasts collection.
const JobTypeFeedPoll = "feed_poll"

// Error types.
const (
	ErrorTypeTimeout = "timeout"
	ErrorTypeTask    = "task_error"
)

// Run outcomes. A run interrupted by Stop or by the job context ends as
// OutcomeCanceled and does not touch the failure streak.
const (
	OutcomeSuccess  = "success"
	OutcomeFailure  = "failure"
	OutcomeCanceled = "canceled"
)

// Metrics tracks periodic job runs. Methods are safe on a nil receiver.
type Metrics struct {
	runs        *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	errors      *prometheus.CounterVec
	lastSuccess *prometheus.GaugeVec
	failStreak  *prometheus.GaugeVec
}

// NewMetrics creates unregistered job metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		runs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricJobRunsTotal,
				Help: "Periodic job runs by job and outcome",
			},
			[]string{"job", "outcome"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    MetricJobRunDuration,
				Help:    "Duration of completed periodic job runs in seconds",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
			},
			[]string{"job"},
		),
		errors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricJobErrorsTotal,
				Help: "Failed periodic job runs by job and error type",
			},
			[]string{"job", "error_type"},
		),
		lastSuccess: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: MetricJobLastSuccess,
				Help: "Unix time of the last successful run per job",
			},
			[]string{"job"},
		),
		failStreak: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: MetricJobConsecFailed,
				Help: "Failed runs since the last success per job",
			},
			[]string{"job"},
		),
	}
}

// Register registers all collectors with reg.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range m.Collectors() {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// Collectors returns all Prometheus collectors.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{m.runs, m.duration, m.errors, m.lastSuccess, m.failStreak}
}

// RunSucceeded records a successful run finishing at now.
func (m *Metrics) RunSucceeded(job string, seconds float64, now time.Time) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(job, OutcomeSuccess).Inc()
	m.duration.WithLabelValues(job).Observe(seconds)
	m.lastSuccess.WithLabelValues(job).Set(float64(now.Unix()))
	m.failStreak.WithLabelValues(job).Set(0)
}

// RunFailed records a failed run.
func (m *Metrics) RunFailed(job, errorType string, seconds float64) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(job, OutcomeFailure).Inc()
	m.duration.WithLabelValues(job).Observe(seconds)
	m.errors.WithLabelValues(job, errorType).Inc()
	m.failStreak.WithLabelValues(job).Inc()
}

// RunCanceled records a run cut short by shutdown.
func (m *Metrics) RunCanceled(job string) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(job, OutcomeCanceled).Inc()
}
