// Package metrics provides custom Prometheus metrics for the components of the meter.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/andnich05/CodeEntropyMeter/internal/meter"
)

// MeterMetrics contains the Prometheus metrics of the level, bit usage and
// entropy engines. It implements pipeline.Recorder.
type MeterMetrics struct {
	Level           *prometheus.GaugeVec
	Holder          *prometheus.GaugeVec
	CrestFactor     prometheus.Gauge
	ActiveBits      prometheus.Gauge
	Entropy         prometheus.Gauge
	Blocks          prometheus.Counter
	EntropyWindows  prometheus.Counter
	Clips           *prometheus.CounterVec
	DroppedReadings prometheus.Counter
	BlockDuration   prometheus.Histogram
	registry        *prometheus.Registry
}

// NewMeterMetrics creates a new instance of MeterMetrics and registers it.
func NewMeterMetrics(registry *prometheus.Registry) (*MeterMetrics, error) {
	m := &MeterMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register meter metrics: %w", err)
	}
	return m, nil
}

func (m *MeterMetrics) initMetrics() {
	m.Level = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "meter_level_dbfs",
		Help: "Current meter value in dBFS after ballistics",
	}, []string{"meter"}) // meter: peak, rms

	m.Holder = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "meter_holder_dbfs",
		Help: "Highest level since the last holder reset in dBFS",
	}, []string{"meter"})

	m.CrestFactor = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "meter_crest_factor_db",
		Help: "Difference between instantaneous peak and RMS level of the last block",
	})

	m.ActiveBits = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "meter_active_bits",
		Help: "Number of bit positions set in the last bit usage result",
	})

	m.Entropy = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "meter_entropy_bits",
		Help: "Shannon entropy of the last completed window in bits per sample",
	})

	m.Blocks = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "meter_blocks_processed_total",
		Help: "Total number of sample blocks processed",
	})

	m.EntropyWindows = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "meter_entropy_windows_total",
		Help: "Total number of completed entropy windows",
	})

	m.Clips = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "meter_clipped_blocks_total",
		Help: "Total number of blocks whose level reached full scale",
	}, []string{"meter"})

	m.DroppedReadings = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "meter_dropped_readings_total",
		Help: "Total number of readings dropped because a listener was not keeping up",
	})

	m.BlockDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "meter_block_processing_seconds",
		Help:    "Time taken to run all engines on one block",
		Buckets: prometheus.ExponentialBuckets(BucketStart1us, BucketFactor2, BucketCount15),
	})
}

// RecordBlock records the results of one processed block.
func (m *MeterMetrics) RecordBlock(peak, rms meter.Result, crest float64, activeBits int, seconds float64) {
	m.Blocks.Inc()
	m.BlockDuration.Observe(seconds)
	m.CrestFactor.Set(crest)
	m.ActiveBits.Set(float64(activeBits))

	m.Level.WithLabelValues(LabelPeak).Set(peak.Meter)
	m.Holder.WithLabelValues(LabelPeak).Set(peak.Holder)
	m.Level.WithLabelValues(LabelRMS).Set(rms.Meter)
	m.Holder.WithLabelValues(LabelRMS).Set(rms.Holder)

	if peak.Clipped {
		m.Clips.WithLabelValues(LabelPeak).Inc()
	}
	if rms.Clipped {
		m.Clips.WithLabelValues(LabelRMS).Inc()
	}
}

// RecordEntropy records the entropy of a completed window.
func (m *MeterMetrics) RecordEntropy(bits float64) {
	m.EntropyWindows.Inc()
	m.Entropy.Set(bits)
}

// RecordDroppedReading counts a reading a listener missed.
func (m *MeterMetrics) RecordDroppedReading() {
	m.DroppedReadings.Inc()
}

// Collect implements the prometheus.Collector interface.
func (m *MeterMetrics) Collect(ch chan<- prometheus.Metric) {
	m.Level.Collect(ch)
	m.Holder.Collect(ch)
	ch <- m.CrestFactor
	ch <- m.ActiveBits
	ch <- m.Entropy
	ch <- m.Blocks
	ch <- m.EntropyWindows
	m.Clips.Collect(ch)
	ch <- m.DroppedReadings
	ch <- m.BlockDuration
}

// Describe implements the prometheus.Collector interface.
func (m *MeterMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.Level.Describe(ch)
	m.Holder.Describe(ch)
	ch <- m.CrestFactor.Desc()
	ch <- m.ActiveBits.Desc()
	ch <- m.Entropy.Desc()
	ch <- m.Blocks.Desc()
	ch <- m.EntropyWindows.Desc()
	m.Clips.Describe(ch)
	ch <- m.DroppedReadings.Desc()
	ch <- m.BlockDuration.Desc()
}
