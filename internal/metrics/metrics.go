// Package metrics collects run, frame and retry counters for the
// Prometheus registry exposed by serve mode and the textfile export
// written after generate.
package metrics

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "inbetween"

// OutcomeSucceeded labels runs that committed their output.
const OutcomeSucceeded = "succeeded"

// Metrics owns a private registry. A nil *Metrics records nothing.
type Metrics struct {
	registry   *prometheus.Registry
	runs       *prometheus.CounterVec
	frames     *prometheus.CounterVec
	retries    *prometheus.CounterVec
	confidence prometheus.Histogram
	duration   prometheus.Histogram
}

// New creates the collectors and registers them. withRuntime adds the Go
// and process collectors, which only make sense for long-running serve mode.
func New(withRuntime bool) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		runs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_total",
				Help:      "Generation runs by outcome (succeeded or error kind)",
			},
			[]string{"outcome"},
		),
		frames: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "frames_total",
				Help:      "Scored frames by classification",
			},
			[]string{"classification"},
		),
		retries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "retries_total",
				Help:      "Transient failures retried, by inference phase",
			},
			[]string{"phase"},
		),
		confidence: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "frame_confidence",
			Help:      "Confidence of scored frames",
			Buckets:   prometheus.LinearBuckets(0.1, 0.1, 10),
		}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time of generation runs",
			Buckets:   prometheus.ExponentialBuckets(5, 2, 8),
		}),
	}

	m.registry.MustRegister(m.runs, m.frames, m.retries, m.confidence, m.duration)
	if withRuntime {
		m.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RunFinished records a run outcome and its duration.
func (m *Metrics) RunFinished(outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(outcome).Inc()
	m.duration.Observe(elapsed.Seconds())
}

// FrameScored records one scored frame.
func (m *Metrics) FrameScored(classification string, confidence float64) {
	if m == nil {
		return
	}
	m.frames.WithLabelValues(classification).Inc()
	m.confidence.Observe(confidence)
}

// Retry records one retried phase.
func (m *Metrics) Retry(phase string) {
	if m == nil {
		return
	}
	m.retries.WithLabelValues(phase).Inc()
}

// Handler returns the HTTP handler for the registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// WriteTextfile writes the registry in text exposition format for the
// node exporter textfile collector. The file is replaced atomically.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil || path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return fmt.Errorf("create metrics directory: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
