// Package metrics exposes per-run pipeline counters through a private
// Prometheus registry.
package metrics

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the counters for one comparison run.
type Metrics struct {
	FramesDecoded   atomic.Uint64
	FramesEvaluated atomic.Uint64
	GateCandidates  atomic.Uint64
	ClassifierCalls atomic.Uint64
	ClassifierErrs  atomic.Uint64
	RejectedDets    atomic.Uint64
	Intervals       atomic.Uint64
	OpenInterval    atomic.Uint64 // 0 = idle, 1 = an interval is open

	classifyLatency prometheus.Histogram
	similarity      prometheus.Histogram
	registry        *prometheus.Registry
}

// Snapshot is a point-in-time copy of the counters.
type Snapshot struct {
	FramesDecoded   uint64 `json:"frames_decoded"`
	FramesEvaluated uint64 `json:"frames_evaluated"`
	GateCandidates  uint64 `json:"gate_candidates"`
	ClassifierCalls uint64 `json:"classifier_calls"`
	ClassifierErrs  uint64 `json:"classifier_errors"`
	RejectedDets    uint64 `json:"rejected_detections"`
	Intervals       uint64 `json:"intervals"`
}

// New creates a Metrics instance with its collectors registered.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		classifyLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "vdiff_classifier_latency_seconds",
			Help:    "Latency of classifier calls",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		}),
		similarity: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "vdiff_frame_similarity",
			Help:    "SSIM score of compared frame pairs",
			Buckets: prometheus.LinearBuckets(0, 0.1, 11),
		}),
	}
	m.registerPrometheusMetrics()
	return m
}

func (m *Metrics) registerPrometheusMetrics() {
	counters := []struct {
		name  string
		help  string
		value *atomic.Uint64
	}{
		{"vdiff_frames_decoded_total", "Frames decoded from the candidate stream", &m.FramesDecoded},
		{"vdiff_frames_evaluated_total", "Frames on the sampling stride that reached the engine", &m.FramesEvaluated},
		{"vdiff_gate_candidates_total", "Frame pairs the similarity gate passed to the classifier", &m.GateCandidates},
		{"vdiff_classifier_calls_total", "Classifier invocations", &m.ClassifierCalls},
		{"vdiff_classifier_errors_total", "Classifier invocations that failed", &m.ClassifierErrs},
		{"vdiff_rejected_detections_total", "Detections dropped by the skip policy", &m.RejectedDets},
		{"vdiff_intervals_total", "Divergence intervals emitted", &m.Intervals},
	}
	for _, c := range counters {
		value := c.value
		m.registry.MustRegister(prometheus.NewCounterFunc(
			prometheus.CounterOpts{Name: c.name, Help: c.help},
			func() float64 { return float64(value.Load()) },
		))
	}
	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "vdiff_interval_open",
			Help: "Whether a divergence interval is currently open (0/1)",
		},
		func() float64 { return float64(m.OpenInterval.Load()) },
	))
	m.registry.MustRegister(m.classifyLatency, m.similarity)
}

// ObserveClassify records one classifier call.
func (m *Metrics) ObserveClassify(d time.Duration, err error) {
	if m == nil {
		return
	}
	m.ClassifierCalls.Add(1)
	if err != nil {
		m.ClassifierErrs.Add(1)
	}
	m.classifyLatency.Observe(d.Seconds())
}

// ObserveSimilarity records one gate score.
func (m *Metrics) ObserveSimilarity(score float64, candidate bool) {
	if m == nil {
		return
	}
	m.similarity.Observe(score)
	if candidate {
		m.GateCandidates.Add(1)
	}
}

// SetOpen flips the open-interval gauge.
func (m *Metrics) SetOpen(open bool) {
	if m == nil {
		return
	}
	if open {
		m.OpenInterval.Store(1)
		return
	}
	m.OpenInterval.Store(0)
}

// Snapshot copies the counters. A nil receiver yields zeros.
func (m *Metrics) Snapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}
	return Snapshot{
		FramesDecoded:   m.FramesDecoded.Load(),
		FramesEvaluated: m.FramesEvaluated.Load(),
		GateCandidates:  m.GateCandidates.Load(),
		ClassifierCalls: m.ClassifierCalls.Load(),
		ClassifierErrs:  m.ClassifierErrs.Load(),
		RejectedDets:    m.RejectedDets.Load(),
		Intervals:       m.Intervals.Load(),
	}
}

// Registry returns the private registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler returns the Prometheus HTTP handler.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is done.
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	server := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()
	if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
