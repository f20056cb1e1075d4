package capture

import (
	"bytes"
	"context"
	"encoding/binary"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/andnich05/CodeEntropyMeter/internal/errors"
	"github.com/andnich05/CodeEntropyMeter/internal/handoff"
	"github.com/andnich05/CodeEntropyMeter/internal/logger"
	"github.com/andnich05/CodeEntropyMeter/internal/testutil"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("github.com/patrickmn/go-cache.(*janitor).Run"),
	)
}

// fakeSource hands its handler to the test, which plays the device thread.
type fakeSource struct {
	format  Format
	mu      sync.Mutex
	handler func([]byte)
	started chan struct{}
	stopped bool
	failErr error
}

func newFakeSource(f Format) *fakeSource {
	return &fakeSource{format: f, started: make(chan struct{})}
}

func (f *fakeSource) Start(_ context.Context, handler func([]byte)) error {
	if f.failErr != nil {
		return f.failErr
	}
	f.mu.Lock()
	f.handler = handler
	f.mu.Unlock()
	close(f.started)
	return nil
}

func (f *fakeSource) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = true
	return nil
}

func (f *fakeSource) push(data []byte) {
	f.mu.Lock()
	h := f.handler
	f.mu.Unlock()
	h(data)
}

func (f *fakeSource) Format() Format { return f.format }
func (f *fakeSource) Name() string   { return "fake" }

type blockCollector struct {
	mu     sync.Mutex
	blocks [][]int32
}

func (b *blockCollector) receive(block []int32) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.blocks = append(b.blocks, append([]int32(nil), block...))
}

func (b *blockCollector) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.blocks)
}

type countingRecorder struct {
	mu      sync.Mutex
	dropped int
	frames  int
}

func (r *countingRecorder) RecordDroppedBytes(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dropped += n
}

func (r *countingRecorder) RecordFrames(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames += n
}

func (r *countingRecorder) RecordRingFill(float64) {}

func s16Stereo(left, right []int16) []byte {
	buf := make([]byte, 0, len(left)*4)
	for i := range left {
		buf = binary.LittleEndian.AppendUint16(buf, uint16(left[i]))
		buf = binary.LittleEndian.AppendUint16(buf, uint16(right[i]))
	}
	return buf
}

func quietLogger() logger.Logger {
	return logger.NewTestLogger(&bytes.Buffer{}, logger.LogLevelError)
}

func TestCaptureDeliversBlocksOfMeteredChannel(t *testing.T) {
	t.Parallel()

	src := newFakeSource(Format{SampleRate: 48000, BitDepth: 16, Channels: 2, Channel: 2})
	buf, err := handoff.New(4)
	require.NoError(t, err)
	blocks := &blockCollector{}
	buf.SetReceiver(blocks.receive)

	rec := &countingRecorder{}
	c, err := New(src, buf, 1024, WithRecorder(rec), WithLogger(quietLogger()), WithPollInterval(time.Millisecond))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()
	testutil.WaitForChannel(t, src.started, testutil.DefaultTimeout, "source was not started")

	// Right channel carries 1..8, left channel is noise that must be ignored.
	src.push(s16Stereo([]int16{-9, -9, -9}, []int16{1, 2, 3}))
	src.push(s16Stereo([]int16{-9, -9, -9, -9, -9}, []int16{4, 5, 6, 7, 8}))

	require.Eventually(t, func() bool { return blocks.count() == 2 }, 2*time.Second, time.Millisecond)

	cancel()
	require.NoError(t, testutil.Receive(t, done, testutil.DefaultTimeout))

	blocks.mu.Lock()
	assert.Equal(t, [][]int32{{1, 2, 3, 4}, {5, 6, 7, 8}}, blocks.blocks)
	blocks.mu.Unlock()

	rec.mu.Lock()
	assert.Equal(t, 8, rec.frames)
	assert.Zero(t, rec.dropped)
	rec.mu.Unlock()

	src.mu.Lock()
	assert.True(t, src.stopped)
	src.mu.Unlock()
}

func TestCaptureDrainsRemainingBytesOnStop(t *testing.T) {
	t.Parallel()

	src := newFakeSource(Format{SampleRate: 8000, BitDepth: 8, Channels: 1, Channel: 1})
	buf, err := handoff.New(2)
	require.NoError(t, err)
	blocks := &blockCollector{}
	buf.SetReceiver(blocks.receive)

	// A long poll interval leaves the bytes in the ring until cancellation.
	c, err := New(src, buf, 64, WithLogger(quietLogger()), WithPollInterval(time.Hour))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()
	testutil.WaitForChannel(t, src.started, testutil.DefaultTimeout, "source was not started")

	src.push([]byte{0x80, 0x81})
	cancel()
	require.NoError(t, testutil.Receive(t, done, testutil.DefaultTimeout))

	blocks.mu.Lock()
	defer blocks.mu.Unlock()
	assert.Equal(t, [][]int32{{0, 1}}, blocks.blocks)
}

func TestCaptureDropsChunksThatDoNotFit(t *testing.T) {
	t.Parallel()

	src := newFakeSource(Format{SampleRate: 8000, BitDepth: 16, Channels: 1, Channel: 1})
	buf, err := handoff.New(128)
	require.NoError(t, err)

	rec := &countingRecorder{}
	var logs bytes.Buffer
	c, err := New(src, buf, 8, WithRecorder(rec), WithLogger(logger.NewTestLogger(&logs, logger.LogLevelWarn)), WithPollInterval(time.Hour))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()
	testutil.WaitForChannel(t, src.started, testutil.DefaultTimeout, "source was not started")

	src.push(make([]byte, 6))
	src.push(make([]byte, 4)) // only 2 bytes free
	cancel()
	require.NoError(t, testutil.Receive(t, done, testutil.DefaultTimeout))

	assert.Equal(t, uint64(4), c.Dropped())
	assert.Contains(t, logs.String(), "capture ring overflow")
	assert.Contains(t, logs.String(), "dropped_bytes=4")
	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Equal(t, 4, rec.dropped)
	assert.Equal(t, 3, rec.frames, "the first chunk is still decoded")
}

func TestNewValidatesRingSize(t *testing.T) {
	t.Parallel()

	src := newFakeSource(Format{SampleRate: 8000, BitDepth: 24, Channels: 2, Channel: 2})
	buf, err := handoff.New(4)
	require.NoError(t, err)

	_, err = New(src, buf, 5, WithLogger(quietLogger()))
	require.Error(t, err)
}

func TestRunReportsSourceStartFailureAsCritical(t *testing.T) {
	t.Parallel()

	src := newFakeSource(Format{SampleRate: 48000, BitDepth: 16, Channels: 1, Channel: 1})
	src.failErr = errors.NewStd("device busy")

	buf, err := handoff.New(4)
	require.NoError(t, err)
	c, err := New(src, buf, 64, WithLogger(quietLogger()))
	require.NoError(t, err)

	err = c.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, src.failErr)
	assert.True(t, errors.IsCategory(err, errors.CategoryAudioSource))

	var ee *errors.EnhancedError
	require.True(t, errors.As(err, &ee))
	assert.Equal(t, errors.PriorityCritical, ee.GetPriority())
	assert.Equal(t, "capture", ee.GetComponent())
}
