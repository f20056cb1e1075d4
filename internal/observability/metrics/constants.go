package metrics

// Label values used for metric labels.
const (
	// LabelPeak is the meter label value for the peak meter.
	LabelPeak = "peak"
	// LabelRMS is the meter label value for the RMS meter.
	LabelRMS = "rms"
)

// Histogram bucket configuration constants.
// These define the base values and factors for exponential bucket generation.
const (
	// BucketStart1us is the starting bucket for block processing (1us to ~16ms range).
	BucketStart1us = 0.000001
	// BucketStart1ms is the starting bucket for 1ms histograms (1ms to ~1s range).
	BucketStart1ms = 0.001
	// BucketStart64B is the starting bucket for 64 byte histograms.
	BucketStart64B = 64.0
	// BucketStart100B is the starting bucket for 100 byte histograms (100B to ~10MB range).
	BucketStart100B = 100.0

	// BucketFactor2 is the common exponential growth factor of 2 for histogram buckets.
	BucketFactor2 = 2
	// BucketFactor10 is the exponential growth factor of 10 for larger ranges.
	BucketFactor10 = 10

	// BucketCount6 defines 6 exponential buckets.
	BucketCount6 = 6
	// BucketCount10 defines 10 exponential buckets.
	BucketCount10 = 10
	// BucketCount15 defines 15 exponential buckets.
	BucketCount15 = 15
)
