// Package entropy estimates the order-0 Shannon entropy of sample values
// over a window of consecutive blocks.
package entropy

import (
	"math"
	"time"

	"github.com/andnich05/CodeEntropyMeter/internal/errors"
	"github.com/andnich05/CodeEntropyMeter/internal/meter"
)

// Estimator counts how often each sample value occurs in a window of
// windowSize blocks and emits the entropy in bits once the window is full.
// It is not safe for concurrent use.
type Estimator struct {
	counts      map[int32]uint64
	accumulated int // blocks counted in the current window
	windowSize  int
	blockSize   int // size of the blocks in the current window
	bitDepth    int
}

// New returns an estimator emitting one value every windowSize blocks.
func New(windowSize, bitDepth int) (*Estimator, error) {
	e := &Estimator{counts: make(map[int32]uint64)}
	if err := e.SetWindowSize(windowSize); err != nil {
		return nil, err
	}
	if err := e.SetBitDepth(bitDepth); err != nil {
		return nil, err
	}
	return e, nil
}

// SetWindowSize sets the number of blocks per estimate and starts a new
// window.
func (e *Estimator) SetWindowSize(n int) error {
	if n < 1 {
		return errors.Newf("entropy window must be at least one block, got %d", n).
			Component("entropy").
			Category(errors.CategoryValidation).
			Context("window_size", n).
			Build()
	}
	e.windowSize = n
	e.Reset()
	return nil
}

// SetBitDepth records the bit depth of the samples. Counting does not depend
// on it; it only bounds the number of distinct symbols.
func (e *Estimator) SetBitDepth(bits int) error {
	if err := meter.ValidateBitDepth(bits); err != nil {
		return err
	}
	e.bitDepth = bits
	return nil
}

// Symbols returns the number of distinct values a sample can take, 2^bits.
func (e *Estimator) Symbols() int {
	return 1 << e.bitDepth
}

// MaxEntropy returns the entropy of a uniform distribution over all symbols.
func (e *Estimator) MaxEntropy() float64 {
	return float64(e.bitDepth)
}

// WindowSize returns the number of blocks per estimate.
func (e *Estimator) WindowSize() int {
	return e.windowSize
}

// Progress returns how many blocks of the current window have been counted.
func (e *Estimator) Progress() (accumulated, window int) {
	return e.accumulated, e.windowSize
}

// Reset discards the counts and the progress of the current window.
func (e *Estimator) Reset() {
	clear(e.counts)
	e.accumulated = 0
	e.blockSize = 0
}

// AddBlock counts the samples of block. When the block completes the window
// it returns the entropy in bits and true, and a new window starts.
// Otherwise it returns false.
//
// Blocks within one window are expected to have the same size. A block of a
// different size restarts the window with that block.
func (e *Estimator) AddBlock(block []int32) (float64, bool) {
	if e.accumulated > 0 && len(block) != e.blockSize {
		e.Reset()
	}
	if e.accumulated == 0 {
		clear(e.counts)
		e.blockSize = len(block)
	}

	for _, s := range block {
		e.counts[s]++
	}
	e.accumulated++

	if e.accumulated < e.windowSize {
		return 0, false
	}

	h := shannon(e.counts, uint64(e.blockSize)*uint64(e.windowSize))
	e.Reset()
	return h, true
}

// shannon returns -sum(p*log2(p)) over the counted values.
func shannon(counts map[int32]uint64, total uint64) float64 {
	if total == 0 {
		return 0
	}

	var h float64
	n := float64(total)
	for _, c := range counts {
		p := float64(c) / n
		h -= p * math.Log2(p)
	}
	if h <= 0 {
		// A single symbol yields -1*log2(1), which is -0.
		return 0
	}
	return h
}

// IntegrationTime returns the time covered by one window.
func IntegrationTime(blockSize, sampleRate, windowSize int) time.Duration {
	if sampleRate <= 0 {
		return 0
	}
	return time.Duration(IntegrationTimeMs(blockSize, sampleRate, windowSize) * float64(time.Millisecond))
}

// IntegrationTimeMs returns (blockSize/sampleRate)*windowSize*1000, the
// window length in milliseconds.
func IntegrationTimeMs(blockSize, sampleRate, windowSize int) float64 {
	if sampleRate <= 0 {
		return 0
	}
	return float64(blockSize) / float64(sampleRate) * float64(windowSize) * 1000
}
