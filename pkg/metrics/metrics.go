// Package metrics exposes the process's Prometheus collectors: per-action
// counters and durations, circuit-breaker state, command latency, and
// background-worker health, so getMetrics and a scrape endpoint can both
// read from the same registry.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
)

var (
	ActionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "netwatch_actions_total",
			Help: "Total number of dispatched actions by name and outcome",
		},
		[]string{"action", "outcome"},
	)

	ActionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "netwatch_action_duration_seconds",
			Help:    "Duration of dispatched actions in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"action"},
	)

	CommandDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "netwatch_shell_command_duration_seconds",
			Help:    "Duration of DeviceShell commands in seconds",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 10),
		},
		[]string{"target"},
	)

	CircuitState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "netwatch_circuit_state",
			Help: "Circuit breaker state per target: 0=closed, 1=half-open, 2=open",
		},
		[]string{"target"},
	)

	ScansTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "netwatch_scans_total",
			Help: "Total number of snapshot scans by outcome",
		},
		[]string{"outcome"},
	)

	EnvironmentScore = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "netwatch_environment_score",
			Help: "Most recent 0-100 composite environment score",
		},
	)

	SourceAvailable = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "netwatch_source_available",
			Help: "Whether a scan source answered in the most recent snapshot (1) or not (0)",
		},
		[]string{"source"},
	)

	KnowledgeBaseFlushesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "netwatch_knowledge_base_flushes_total",
			Help: "Total number of knowledge base flush attempts by outcome",
		},
		[]string{"outcome"},
	)

	AlertsSentTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "netwatch_alerts_sent_total",
			Help: "Total number of alerts dispatched by channel and outcome",
		},
		[]string{"channel", "outcome"},
	)
)

// RecordAction times a dispatched action and records its outcome; call with
// defer at the top of a handler.
func RecordAction(action string, start time.Time, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	ActionsTotal.WithLabelValues(action, outcome).Inc()
	ActionDuration.WithLabelValues(action).Observe(time.Since(start).Seconds())
}

// CircuitStateValue maps the breaker's three states to the gauge's
// documented numeric encoding.
type CircuitStateValue float64

const (
	CircuitClosed   CircuitStateValue = 0
	CircuitHalfOpen CircuitStateValue = 1
	CircuitOpen     CircuitStateValue = 2
)

// SetCircuitState publishes target's current breaker state.
func SetCircuitState(target string, state CircuitStateValue) {
	CircuitState.WithLabelValues(target).Set(float64(state))
}

// Sample is one flattened metric reading, keyed by its metric name plus
// label values, for the getMetrics action's JSON payload.
type Sample struct {
	Name   string            `json:"name"`
	Labels map[string]string `json:"labels,omitempty"`
	Value  float64           `json:"value"`
}

// Gather flattens the process's default Prometheus registry into a plain
// slice of samples, so getMetrics can answer without requiring a caller to
// scrape /metrics and parse the exposition format itself.
func Gather() ([]Sample, error) {
	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		return nil, err
	}

	var out []Sample
	for _, fam := range families {
		for _, m := range fam.GetMetric() {
			out = append(out, Sample{
				Name:   fam.GetName(),
				Labels: labelPairsToMap(m.GetLabel()),
				Value:  metricValue(m),
			})
		}
	}
	return out, nil
}

func labelPairsToMap(pairs []*dto.LabelPair) map[string]string {
	if len(pairs) == 0 {
		return nil
	}
	out := make(map[string]string, len(pairs))
	for _, p := range pairs {
		out[p.GetName()] = p.GetValue()
	}
	return out
}

func metricValue(m *dto.Metric) float64 {
	switch {
	case m.Counter != nil:
		return m.Counter.GetValue()
	case m.Gauge != nil:
		return m.Gauge.GetValue()
	case m.Histogram != nil:
		return float64(m.Histogram.GetSampleCount())
	case m.Summary != nil:
		return float64(m.Summary.GetSampleCount())
	default:
		return 0
	}
}
