package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// CaptureMetrics contains the Prometheus metrics of the audio capture path.
// It implements capture.Recorder.
type CaptureMetrics struct {
	Frames       prometheus.Counter
	DroppedBytes prometheus.Counter
	RingFill     prometheus.Gauge
	registry     *prometheus.Registry
}

// NewCaptureMetrics creates a new instance of CaptureMetrics and registers it.
func NewCaptureMetrics(registry *prometheus.Registry) (*CaptureMetrics, error) {
	m := &CaptureMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register capture metrics: %w", err)
	}
	return m, nil
}

func (m *CaptureMetrics) initMetrics() {
	m.Frames = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "capture_frames_total",
		Help: "Total number of frames decoded from the capture device",
	})

	m.DroppedBytes = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "capture_dropped_bytes_total",
		Help: "Total number of captured bytes dropped because the ring buffer was full",
	})

	m.RingFill = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "capture_ring_fill_ratio",
		Help: "Fill level of the capture ring buffer after the last drain (0 to 1)",
	})
}

// RecordFrames counts decoded frames.
func (m *CaptureMetrics) RecordFrames(n int) {
	m.Frames.Add(float64(n))
}

// RecordDroppedBytes counts bytes lost on the device thread.
func (m *CaptureMetrics) RecordDroppedBytes(n int) {
	m.DroppedBytes.Add(float64(n))
}

// RecordRingFill sets the ring buffer fill ratio.
func (m *CaptureMetrics) RecordRingFill(ratio float64) {
	m.RingFill.Set(ratio)
}

// Collect implements the prometheus.Collector interface.
func (m *CaptureMetrics) Collect(ch chan<- prometheus.Metric) {
	ch <- m.Frames
	ch <- m.DroppedBytes
	ch <- m.RingFill
}

// Describe implements the prometheus.Collector interface.
func (m *CaptureMetrics) Describe(ch chan<- *prometheus.Desc) {
	ch <- m.Frames.Desc()
	ch <- m.DroppedBytes.Desc()
	ch <- m.RingFill.Desc()
}
