// Package metrics implements Prometheus instrumentation for the check
// execution engine, generalizing the teacher's graph.PrometheusMetrics
// (inflight_nodes/queue_depth/step_latency_ms/retries_total/
// backpressure_events_total) from "node" to "check" terminology and
// adding check-domain counters (skips by reason, forward-run requests,
// wave count).
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics bundles every gauge/histogram/counter the engine updates during
// a run.
type Metrics struct {
	inflightChecks prometheus.Gauge
	queueDepth     prometheus.Gauge
	waveNumber     prometheus.Gauge

	checkLatency *prometheus.HistogramVec
	retries      *prometheus.CounterVec
	skips        *prometheus.CounterVec
	forwardRuns  *prometheus.CounterVec

	enabled bool
}

// New registers all check execution metrics with registry. A nil registry
// uses prometheus.DefaultRegisterer.
func New(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registry)

	return &Metrics{
		enabled: true,
		inflightChecks: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "checkengine", Name: "inflight_checks",
			Help: "Current number of checks executing concurrently",
		}),
		queueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "checkengine", Name: "queue_depth",
			Help: "Number of checks pending in the current level",
		}),
		waveNumber: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "checkengine", Name: "current_wave",
			Help: "Current wave number for the active run",
		}),
		checkLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "checkengine", Name: "check_latency_ms",
			Help:    "Check execution duration in milliseconds",
			Buckets: []float64{1, 5, 10, 50, 100, 500, 1000, 5000, 10000, 60000},
		}, []string{"run_id", "check_id", "status"}),
		retries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "checkengine", Name: "retries_total",
			Help: "Cumulative retry attempts across all checks",
		}, []string{"run_id", "check_id"}),
		skips: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "checkengine", Name: "skips_total",
			Help: "Checks skipped, labeled by reason",
		}, []string{"run_id", "check_id", "reason"}),
		forwardRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "checkengine", Name: "forward_run_requests_total",
			Help: "Routing-directive forward-run requests, labeled by origin",
		}, []string{"run_id", "origin"}),
	}
}

func (m *Metrics) RecordCheckLatency(runID, checkID string, d time.Duration, status string) {
	if !m.enabled {
		return
	}
	m.checkLatency.WithLabelValues(runID, checkID, status).Observe(float64(d.Milliseconds()))
}

func (m *Metrics) IncrementRetries(runID, checkID string) {
	if !m.enabled {
		return
	}
	m.retries.WithLabelValues(runID, checkID).Inc()
}

func (m *Metrics) IncrementSkips(runID, checkID, reason string) {
	if !m.enabled {
		return
	}
	m.skips.WithLabelValues(runID, checkID, reason).Inc()
}

func (m *Metrics) IncrementForwardRuns(runID, origin string) {
	if !m.enabled {
		return
	}
	m.forwardRuns.WithLabelValues(runID, origin).Inc()
}

func (m *Metrics) SetInflightChecks(n int) {
	if !m.enabled {
		return
	}
	m.inflightChecks.Set(float64(n))
}

func (m *Metrics) SetQueueDepth(n int) {
	if !m.enabled {
		return
	}
	m.queueDepth.Set(float64(n))
}

func (m *Metrics) SetWave(wave int) {
	if !m.enabled {
		return
	}
	m.waveNumber.Set(float64(wave))
}
