package governor

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the Governor's Prometheus collectors. A *Metrics is
// safe to share across Governor instances backed by the same
// registerer, but each Governor keeps its own so metrics survive
// Cleanup/re-Init cycles in tests without double-registration panics.
type Metrics struct {
	iterations      prometheus.Histogram
	toolCallsPerRun prometheus.Histogram
	executions      *prometheus.CounterVec
	kvPosition      prometheus.Gauge
}

func newMetrics() *Metrics {
	return &Metrics{
		iterations: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "governor",
			Name:      "iterations_per_execute",
			Help:      "Number of think/act iterations consumed by one Execute call.",
			Buckets:   prometheus.LinearBuckets(1, 1, 10),
		}),
		toolCallsPerRun: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "governor",
			Name:      "tool_calls_per_execute",
			Help:      "Cumulative tool calls dispatched across one Execute call.",
			Buckets:   prometheus.LinearBuckets(0, 1, 15),
		}),
		executions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "governor",
			Name:      "executions_total",
			Help:      "Execute calls completed, labeled by outcome status.",
		}, []string{"status"}),
		kvPosition: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "governor",
			Name:      "kv_position",
			Help:      "Current KV-cache write position of the most recently executed session.",
		}),
	}
}

// Register adds m's collectors to reg. A collector that is already
// registered with reg (an AlreadyRegisteredError) is skipped rather
// than reported, so tests that construct multiple Governors can
// register repeatedly; any other registration error is returned.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{m.iterations, m.toolCallsPerRun, m.executions, m.kvPosition} {
		if err := reg.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

func (m *Metrics) observeIteration(cumulativeToolCalls int) {
	m.toolCallsPerRun.Observe(float64(cumulativeToolCalls))
}

func (m *Metrics) observeExecution(status Status, iterationCount int, kvPos int) {
	m.iterations.Observe(float64(iterationCount))
	m.executions.WithLabelValues(status.String()).Inc()
	m.kvPosition.Set(float64(kvPos))
}
