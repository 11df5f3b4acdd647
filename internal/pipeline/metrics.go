package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metric names as constants for consistency.
const (
	MetricRunsTotal            = "compliance_runs_total"
	MetricStageDurationSeconds = "compliance_stage_duration_seconds"
	MetricStageResultsTotal    = "compliance_stage_results_total"
)

// Metrics contains Prometheus metrics for pipeline execution.
// All operations are thread-safe.
type Metrics struct {
	runsTotal     *prometheus.CounterVec
	stageDuration *prometheus.HistogramVec
	stageResults  *prometheus.CounterVec
}

// NewMetrics creates and returns a new Metrics instance with all collectors
// initialized. The metrics are not registered; call Register.
func NewMetrics() *Metrics {
	return &Metrics{
		runsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricRunsTotal,
				Help: "Total number of pipeline runs by terminal state",
			},
			[]string{"terminal_state"},
		),
		stageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    MetricStageDurationSeconds,
				Help:    "Histogram of stage execution duration in seconds by stage",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.0, 5.0, 10.0, 30.0, 60.0},
			},
			[]string{"stage"},
		),
		stageResults: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricStageResultsTotal,
				Help: "Total number of stage executions by stage and result status",
			},
			[]string{"stage", "status"},
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

// Collectors returns all metric collectors.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{m.runsTotal, m.stageDuration, m.stageResults}
}

// IncRunsTotal increments the run counter for a terminal state.
func (m *Metrics) IncRunsTotal(terminalState string) {
	m.runsTotal.WithLabelValues(terminalState).Inc()
}

// ObserveStageDuration records the duration of a stage execution.
func (m *Metrics) ObserveStageDuration(stage string, seconds float64) {
	m.stageDuration.WithLabelValues(stage).Observe(seconds)
}

// IncStageResult increments the stage result counter.
func (m *Metrics) IncStageResult(stage, status string) {
	m.stageResults.WithLabelValues(stage, status).Inc()
}
