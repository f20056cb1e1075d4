// Package handoff moves complete blocks of samples from a producer that
// writes one sample at a time to a consumer that wants whole blocks.
//
// The producer (the capture decoder, fed by the audio callback) calls Insert
// with serialized positions 0..capacity-1. When the last position of a block
// is written, the block is copied into a stable snapshot under a mutex and the
// registered receiver is invoked synchronously on the producer's goroutine.
// The mutex guards only the copy, so readers of Snapshot never observe a
// partially written block and the producer never waits on the receiver.
package handoff

import (
	"sync"
	"sync/atomic"

	"github.com/andnich05/CodeEntropyMeter/internal/errors"
)

// Receiver consumes a completed block. The slice is only valid for the
// duration of the call and must not be retained.
type Receiver func(block []int32)

// Buffer is a fixed-capacity staging buffer with guarded copy-and-dispatch.
type Buffer struct {
	in       []int32 // write target, owned by the producer
	mu       sync.Mutex
	out      []int32 // last complete block, guarded by mu
	receiver Receiver

	dispatched atomic.Uint64
}

// New returns a Buffer configured for capacity samples.
func New(capacity int) (*Buffer, error) {
	b := &Buffer{}
	if err := b.Configure(capacity); err != nil {
		return nil, err
	}
	return b, nil
}

// Configure (re)sizes the buffer to capacity zero-filled samples. It must not
// be called concurrently with Insert. On error the previous configuration
// remains active.
func (b *Buffer) Configure(capacity int) error {
	if capacity <= 0 {
		return errors.Newf("handoff capacity must be positive, got %d", capacity).
			Component("handoff").
			Category(errors.CategoryValidation).
			Context("capacity", capacity).
			Build()
	}

	in := make([]int32, capacity)
	out := make([]int32, capacity)

	b.mu.Lock()
	b.in = in
	b.out = out
	b.mu.Unlock()

	return nil
}

// SetReceiver registers the consumer invoked for every completed block.
// Like Configure, it must be called while no stream is running.
func (b *Buffer) SetReceiver(fn Receiver) {
	b.receiver = fn
}

// Insert writes sample at position. Writing the last position of the block
// copies the block to the snapshot and dispatches it to the receiver.
func (b *Buffer) Insert(sample int32, position uint32) error {
	capacity := uint32(len(b.in))
	if position >= capacity {
		return errors.Newf("handoff position %d out of range for capacity %d", position, capacity).
			Component("handoff").
			Category(errors.CategoryLimit).
			Context("position", position).
			Context("capacity", capacity).
			Build()
	}

	b.in[position] = sample
	if position != capacity-1 {
		return nil
	}

	b.mu.Lock()
	copy(b.out, b.in)
	b.mu.Unlock()

	b.dispatched.Add(1)
	if b.receiver != nil {
		// out is only rewritten by this goroutine, so it is stable until
		// the next block completes.
		b.receiver(b.out)
	}
	return nil
}

// Snapshot copies the most recent complete block into dst, growing it if
// needed, and returns it. Safe to call from any goroutine.
func (b *Buffer) Snapshot(dst []int32) []int32 {
	b.mu.Lock()
	defer b.mu.Unlock()

	if cap(dst) < len(b.out) {
		dst = make([]int32, len(b.out))
	}
	dst = dst[:len(b.out)]
	copy(dst, b.out)
	return dst
}

// Capacity returns the configured block size.
func (b *Buffer) Capacity() int {
	return len(b.in)
}

// Dispatched returns the number of blocks completed since creation.
func (b *Buffer) Dispatched() uint64 {
	return b.dispatched.Load()
}
