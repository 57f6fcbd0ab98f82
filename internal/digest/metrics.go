package digest

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics instruments pipeline runs and chunk calls.
type Metrics struct {
	runs          *prometheus.CounterVec
	chunks        *prometheus.CounterVec
	runDuration   *prometheus.HistogramVec
	chunkDuration prometheus.Histogram
	inflight      prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with reg when non-nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "notigpt",
			Subsystem: "digest",
			Name:      "runs_total",
			Help:      "Pipeline runs by mode and outcome (ok, degraded, store_error).",
		}, []string{"mode", "outcome"}),
		chunks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "notigpt",
			Subsystem: "digest",
			Name:      "chunks_total",
			Help:      "Chunk calls by mode and status.",
		}, []string{"mode", "status"}),
		runDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "notigpt",
			Subsystem: "digest",
			Name:      "run_duration_seconds",
			Help:      "Wall time of a pipeline run.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 900},
		}, []string{"mode"}),
		chunkDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "notigpt",
			Subsystem: "digest",
			Name:      "chunk_call_duration_seconds",
			Help:      "Latency of a single chunk completion call.",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 11),
		}),
		inflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "notigpt",
			Subsystem: "digest",
			Name:      "chunk_calls_in_flight",
			Help:      "Chunk calls currently waiting on the provider.",
		}),
	}

	if reg != nil {
		reg.MustRegister(m.runs, m.chunks, m.runDuration, m.chunkDuration, m.inflight)
	}

	return m
}

func (m *Metrics) observeRun(d *Digest) {
	if m == nil {
		return
	}
	outcome := "ok"
	if d.Degraded() {
		outcome = "degraded"
	}
	m.runs.WithLabelValues(modeLabel(d.Mode), outcome).Inc()
	m.runDuration.WithLabelValues(modeLabel(d.Mode)).Observe(d.Duration.Seconds())
}

func (m *Metrics) observeStoreError(mode Mode) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(modeLabel(mode), "store_error").Inc()
}

func (m *Metrics) chunkStarted() {
	if m == nil {
		return
	}
	m.inflight.Inc()
}

func (m *Metrics) chunkFinished(mode Mode, r ChunkResult, seconds float64) {
	if m == nil {
		return
	}
	m.inflight.Dec()
	m.chunks.WithLabelValues(modeLabel(mode), string(r.Status)).Inc()
	m.chunkDuration.Observe(seconds)
}

// modeLabel folds unknown modes into one label value.
func modeLabel(mode Mode) string {
	if mode.Known() {
		return string(mode)
	}
	return "other"
}
