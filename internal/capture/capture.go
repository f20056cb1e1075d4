package capture

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/smallnest/ringbuffer"
	"golang.org/x/time/rate"

	"github.com/andnich05/CodeEntropyMeter/internal/errors"
	"github.com/andnich05/CodeEntropyMeter/internal/logger"
)

const (
	defaultPollInterval = 5 * time.Millisecond
	dropLogInterval     = 10 * time.Second
)

// Option configures a Capture.
type Option func(*Capture)

// WithRecorder sets the statistics recorder.
func WithRecorder(r Recorder) Option {
	return func(c *Capture) { c.recorder = r }
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(c *Capture) { c.log = l }
}

// WithPollInterval sets how often the ring buffer is drained.
func WithPollInterval(d time.Duration) Option {
	return func(c *Capture) {
		if d > 0 {
			c.poll = d
		}
	}
}

// Capture moves bytes from a Source through a ring buffer into an Inserter.
type Capture struct {
	source   Source
	sink     Inserter
	ring     *ringbuffer.RingBuffer
	decoder  Decoder
	cursor   Cursor
	scratch  []byte
	poll     time.Duration
	dropped  atomic.Uint64
	recorder Recorder
	log      logger.Logger

	reported uint64 // dropped bytes already logged
	dropLog  *rate.Limiter
}

// New returns a Capture reading from source into sink through a ring buffer
// of ringSize bytes.
func New(source Source, sink Inserter, ringSize int, opts ...Option) (*Capture, error) {
	decoder, err := NewDecoder(source.Format())
	if err != nil {
		return nil, err
	}
	if ringSize < decoder.FrameSize() {
		return nil, errors.Newf("ring buffer of %d bytes cannot hold a frame of %d bytes", ringSize, decoder.FrameSize()).
			Component("capture").
			Category(errors.CategoryValidation).
			Context("ring_size", ringSize).
			Build()
	}

	c := &Capture{
		source:  source,
		sink:    sink,
		ring:    ringbuffer.New(ringSize),
		decoder: decoder,
		poll:    defaultPollInterval,
		dropLog: rate.NewLimiter(rate.Every(dropLogInterval), 1),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.log == nil {
		c.log = logger.Global().Module("capture")
	}
	return c, nil
}

// Run starts the source and decodes until ctx is cancelled. The source is
// stopped and the remaining bytes are decoded before Run returns.
func (c *Capture) Run(ctx context.Context) error {
	c.ring.Reset()
	c.cursor = NewCursor(c.sink.Capacity())

	if err := c.source.Start(ctx, c.onData); err != nil {
		return errors.New(err).
			Component("capture").
			Category(errors.CategoryAudioSource).
			Priority(errors.PriorityCritical).
			Context("device", c.source.Name()).
			Build()
	}

	f := c.source.Format()
	c.log.Info("capture started",
		logger.String("device", c.source.Name()),
		logger.Int("sample_rate", f.SampleRate),
		logger.Int("bit_depth", f.BitDepth),
		logger.Int("channel", f.Channel),
		logger.Int("block_size", c.sink.Capacity()))

	ticker := time.NewTicker(c.poll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			stopErr := c.source.Stop()
			drainErr := c.drain()
			c.log.Info("capture stopped",
				logger.String("device", c.source.Name()),
				logger.Uint64("dropped_bytes", c.dropped.Load()))
			return errors.Join(stopErr, drainErr)
		case <-ticker.C:
			if err := c.drain(); err != nil {
				return errors.Join(err, c.source.Stop())
			}
		}
	}
}

// Dropped returns the number of bytes discarded because the ring was full.
func (c *Capture) Dropped() uint64 {
	return c.dropped.Load()
}

// onData runs on the device thread. Chunks that do not fit are dropped as a
// whole so that the ring always holds whole frames.
func (c *Capture) onData(data []byte) {
	if len(data) == 0 {
		return
	}
	if len(data) > c.ring.Free() {
		c.drop(len(data))
		return
	}
	n, err := c.ring.Write(data)
	if err != nil {
		c.drop(len(data) - n)
	}
}

// reportDrops logs new overflows, at most once per dropLogInterval.
func (c *Capture) reportDrops() {
	total := c.dropped.Load()
	if total == c.reported || !c.dropLog.Allow() {
		return
	}
	c.log.Warn("capture ring overflow, audio dropped",
		logger.Uint64("dropped_bytes", total-c.reported),
		logger.Uint64("total_dropped_bytes", total))
	c.reported = total
}

func (c *Capture) drop(n int) {
	c.dropped.Add(uint64(n))
	if c.recorder != nil {
		c.recorder.RecordDroppedBytes(n)
	}
}

// drain decodes every whole frame currently in the ring.
func (c *Capture) drain() error {
	c.reportDrops()

	fs := c.decoder.FrameSize()
	n := c.ring.Length() / fs * fs
	if n == 0 {
		return nil
	}

	if cap(c.scratch) < n {
		c.scratch = make([]byte, n)
	}
	read, err := c.ring.Read(c.scratch[:n])
	if err != nil && !errors.Is(err, ringbuffer.ErrIsEmpty) {
		return errors.New(err).
			Component("capture").
			Category(errors.CategoryBuffer).
			Context("operation", "ring_read").
			Build()
	}

	var insertErr error
	frames := c.decoder.DecodeFrames(c.scratch[:read], func(s int32) {
		if err := c.sink.Insert(s, c.cursor.Next()); err != nil && insertErr == nil {
			insertErr = err
		}
	}) / fs

	if c.recorder != nil {
		c.recorder.RecordFrames(frames)
		c.recorder.RecordRingFill(float64(c.ring.Length()) / float64(c.ring.Capacity()))
	}
	return insertErr
}
