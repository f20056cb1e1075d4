package display

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/andnich05/CodeEntropyMeter/internal/bitusage"
	"github.com/andnich05/CodeEntropyMeter/internal/meter"
	"github.com/andnich05/CodeEntropyMeter/internal/pipeline"
	"github.com/andnich05/CodeEntropyMeter/internal/testutil"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestBar(t *testing.T) {
	t.Parallel()

	tests := []struct {
		db   float64
		want int
	}{
		{0, 20},
		{-30, 10},
		{-60, 0},
		{meter.SilenceDB, 0},
		{3, 20},
	}
	for _, tt := range tests {
		got := bar(tt.db)
		assert.Len(t, got, barWidth)
		assert.Equal(t, tt.want, strings.Count(got, "#"), "db=%v", tt.db)
	}
}

func TestFormatDB(t *testing.T) {
	t.Parallel()

	assert.Equal(t, " -12.3", formatDB(-12.34))
	assert.Equal(t, "   0.0", formatDB(0))
	assert.Equal(t, "  -inf", formatDB(meter.SilenceDB))
}

func TestFormatReading(t *testing.T) {
	t.Parallel()

	h := 3.5
	rd := pipeline.Reading{
		Peak:            meter.Result{Meter: 0, Holder: 0, Clipped: true},
		RMS:             meter.Result{Meter: -30, Holder: -20},
		CrestFactor:     30,
		MaxCrestFactor:  20,
		ClipHeld:        true,
		Bits:            bitusage.Bits(0b0101),
		BitDepth:        8,
		LastEntropy:     &h,
		EntropyMax:      8,
		EntropyProgress: 4,
		EntropyWindow:   50,
		IntegrationMs:   2133.3,
	}

	line := FormatReading(rd)
	assert.Contains(t, line, "PK     0.0 [####################] hold    0.0 CLIP")
	assert.Contains(t, line, "RMS  -30.0 [##########----------] hold  -20.0")
	assert.Contains(t, line, "CF  30.0 dB max  20.0 |")
	assert.Contains(t, line, "○○○○○●○●")
	assert.Contains(t, line, "H   3.500/8 bit   4/50 (2133 ms)")
}

func TestFormatReadingWithoutEntropy(t *testing.T) {
	t.Parallel()

	rd := pipeline.Reading{
		Peak:           meter.Result{Meter: meter.SilenceDB, Holder: -60},
		RMS:            meter.Result{Meter: meter.SilenceDB, Holder: -60},
		CrestFactor:    meter.SilenceDB,
		MaxCrestFactor: meter.SilenceDB,
		BitDepth:       16,
		EntropyMax:     16,
	}
	line := FormatReading(rd)
	assert.Contains(t, line, "H   --.--/16 bit")
	assert.Contains(t, line, "CF   -- dB max   -- |")
	assert.Contains(t, line, "PK    -inf")
	assert.Contains(t, line, strings.Repeat("○", 16))
}

type stubSource struct {
	mu sync.Mutex
	rd pipeline.Reading
	ok bool
}

func (s *stubSource) Latest() (pipeline.Reading, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rd, s.ok
}

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestFormatReadingShowsHeldClip(t *testing.T) {
	t.Parallel()

	rd := pipeline.Reading{
		Peak:       meter.Result{Meter: -12, Holder: 0},
		RMS:        meter.Result{Meter: -20, Holder: -6},
		ClipHeld:   true,
		BitDepth:   16,
		EntropyMax: 16,
	}
	assert.Contains(t, FormatReading(rd), "hold    0.0 CLIP | RMS", "a past clip keeps the peak indicator lit")

	rd.ClipHeld = false
	assert.NotContains(t, FormatReading(rd), "CLIP")
}

func TestRendererDrawsEachReadingOnce(t *testing.T) {
	t.Parallel()

	src := &stubSource{rd: pipeline.Reading{Sequence: 1, BitDepth: 8}, ok: true}
	out := &lockedBuffer{}
	r, err := NewRenderer(out, src, time.Millisecond)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	require.Eventually(t, func() bool { return strings.Contains(out.String(), clearLine) }, time.Second, time.Millisecond)
	time.Sleep(10 * time.Millisecond)
	cancel()
	require.NoError(t, testutil.Receive(t, done, testutil.DefaultTimeout))

	s := out.String()
	assert.Equal(t, 1, strings.Count(s, clearLine), "an unchanged reading is not redrawn")
	assert.True(t, strings.HasSuffix(s, "\n"))
}

func TestRendererSpinsUntilFirstReading(t *testing.T) {
	t.Parallel()

	out := &lockedBuffer{}
	r, err := NewRenderer(out, &stubSource{}, time.Millisecond)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	require.Eventually(t, func() bool { return strings.Count(out.String(), "waiting for audio") >= 2 }, time.Second, time.Millisecond)
	cancel()
	require.NoError(t, testutil.Receive(t, done, testutil.DefaultTimeout))

	s := out.String()
	assert.True(t, strings.HasPrefix(s, hideCursor+clearLine+"⣀⣀ waiting for audio"), s)
	assert.Contains(t, s, clearLine+"⣄⣀ waiting for audio")
	assert.True(t, strings.HasSuffix(s, showCursor+"\n"))

	_, err = NewRenderer(out, &stubSource{}, 0)
	require.Error(t, err)
}

func TestSpinnerWraps(t *testing.T) {
	t.Parallel()

	s := newSpinner()
	first := s.next()
	for range len(s.frames) - 1 {
		s.next()
	}
	assert.Equal(t, first, s.next())
}
