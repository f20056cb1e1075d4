// Package capture reads audio from a capture device and feeds the samples
// of one channel into the handoff buffer, one sample at a time.
//
// The device callback only copies raw bytes into a ring buffer. A separate
// goroutine decodes whole frames from the ring and inserts the samples, so
// the statistics never run on the audio thread.
package capture

import "context"

// Source delivers raw interleaved PCM bytes.
type Source interface {
	// Start opens the device and begins calling handler with captured bytes.
	// handler runs on the device thread and must return quickly.
	Start(ctx context.Context, handler func(data []byte)) error
	// Stop halts the device. No handler call is in flight after it returns.
	Stop() error
	// Format returns the format of the opened stream.
	Format() Format
	// Name returns a human readable device name.
	Name() string
}

// Inserter receives decoded samples at their block position.
type Inserter interface {
	Insert(sample int32, position uint32) error
	Capacity() int
}

// Recorder receives capture statistics, typically for Prometheus.
type Recorder interface {
	RecordDroppedBytes(n int)
	RecordFrames(n int)
	RecordRingFill(ratio float64)
}
