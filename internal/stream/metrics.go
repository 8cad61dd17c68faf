package stream

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics names as constants for consistency.
const (
	MetricConnections     = "feed_ws_connections"
	MetricMessagesTotal   = "feed_ws_messages_total"
	MetricWriteErrorTotal = "feed_ws_write_errors_total"
)

// Metrics contains Prometheus metrics for WebSocket view delivery.
// All operations are thread-safe.
type Metrics struct {
	connections prometheus.Gauge
	messages    prometheus.Counter
	writeErrors prometheus.Counter
}

// NewMetrics creates and returns a new Metrics instance with all collectors initialized.
// The metrics are not registered; call Register to register them with a registry.
func NewMetrics() *Metrics {
	return &Metrics{
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: MetricConnections,
			Help: "Number of open feed WebSocket connections",
		}),
		messages: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricMessagesTotal,
			Help: "Total number of views sent to WebSocket clients",
		}),
		writeErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricWriteErrorTotal,
			Help: "Total number of failed WebSocket view writes",
		}),
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
		m.connections,
		m.messages,
		m.writeErrors,
	}
}

func (m *Metrics) setConnections(n int) {
	if m != nil {
		m.connections.Set(float64(n))
	}
}

func (m *Metrics) incMessages() {
	if m != nil {
		m.messages.Inc()
	}
}

func (m *Metrics) incWriteErrors() {
	if m != nil {
		m.writeErrors.Inc()
	}
}
