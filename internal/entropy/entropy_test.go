package entropy

import (
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andnich05/CodeEntropyMeter/internal/errors"
)

func alternating(n int, a, b int32) []int32 {
	block := make([]int32, n)
	for i := range block {
		if i%2 == 0 {
			block[i] = a
		} else {
			block[i] = b
		}
	}
	return block
}

func TestWindowLaw(t *testing.T) {
	t.Parallel()

	for _, window := range []int{1, 2, 7} {
		e, err := New(window, 16)
		require.NoError(t, err)

		rng := rand.New(rand.NewPCG(1, uint64(window)))
		for call := 1; call <= window*4; call++ {
			block := make([]int32, 32)
			for i := range block {
				block[i] = rng.Int32N(1000) - 500
			}
			_, ok := e.AddBlock(block)
			assert.Equal(t, call%window == 0, ok, "window %d call %d", window, call)
		}
	}
}

func TestTwoEquallyLikelySymbolsGiveOneBit(t *testing.T) {
	t.Parallel()

	e, err := New(4, 16)
	require.NoError(t, err)

	block := alternating(64, 1000, -1000)
	for range 3 {
		_, ok := e.AddBlock(block)
		require.False(t, ok)
	}
	h, ok := e.AddBlock(block)
	require.True(t, ok)
	assert.InDelta(t, 1.0, h, 1e-9)
}

func TestSingleSymbolGivesZero(t *testing.T) {
	t.Parallel()

	e, err := New(3, 8)
	require.NoError(t, err)

	block := make([]int32, 100)
	for i := range block {
		block[i] = 42
	}
	var h float64
	var ok bool
	for range 3 {
		h, ok = e.AddBlock(block)
	}
	require.True(t, ok)
	assert.Equal(t, 0.0, h)
}

func TestUniformDistribution(t *testing.T) {
	t.Parallel()

	e, err := New(1, 8)
	require.NoError(t, err)

	block := make([]int32, 256)
	for i := range block {
		block[i] = int32(i - 128)
	}
	h, ok := e.AddBlock(block)
	require.True(t, ok)
	assert.InDelta(t, 8.0, h, 1e-9)
	assert.InDelta(t, e.MaxEntropy(), h, 1e-9)
}

func TestResetIsIdempotentWithColdStart(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewPCG(7, 11))
	blocks := make([][]int32, 12)
	for b := range blocks {
		blocks[b] = make([]int32, 48)
		for i := range blocks[b] {
			blocks[b][i] = rng.Int32N(16)
		}
	}

	run := func(e *Estimator) []float64 {
		var out []float64
		for _, block := range blocks {
			if h, ok := e.AddBlock(block); ok {
				out = append(out, h)
			}
		}
		return out
	}

	cold, err := New(3, 16)
	require.NoError(t, err)
	want := run(cold)
	require.Len(t, want, 4)

	warm, err := New(3, 16)
	require.NoError(t, err)
	warm.AddBlock(blocks[5])
	warm.AddBlock(blocks[9])
	warm.Reset()

	assert.Equal(t, want, run(warm))
}

func TestBlockSizeChangeRestartsWindow(t *testing.T) {
	t.Parallel()

	e, err := New(2, 16)
	require.NoError(t, err)

	_, ok := e.AddBlock(make([]int32, 8))
	require.False(t, ok)

	// A different block size starts a new window, so this is its first block.
	_, ok = e.AddBlock(alternating(16, 1, 2))
	require.False(t, ok)
	accumulated, window := e.Progress()
	assert.Equal(t, 1, accumulated)
	assert.Equal(t, 2, window)

	h, ok := e.AddBlock(alternating(16, 1, 2))
	require.True(t, ok)
	assert.InDelta(t, 1.0, h, 1e-9, "the zeros of the first block are not counted")
}

func TestEmptyBlocksAdvanceWindow(t *testing.T) {
	t.Parallel()

	e, err := New(2, 16)
	require.NoError(t, err)

	_, ok := e.AddBlock(nil)
	require.False(t, ok)
	h, ok := e.AddBlock([]int32{})
	require.True(t, ok)
	assert.Equal(t, 0.0, h)
}

func TestConfigurationErrors(t *testing.T) {
	t.Parallel()

	_, err := New(0, 16)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryValidation))

	_, err = New(5, 20)
	require.Error(t, err)

	e, err := New(5, 16)
	require.NoError(t, err)
	require.Error(t, e.SetWindowSize(-1))
	assert.Equal(t, 5, e.WindowSize(), "previous window stays active")
	require.Error(t, e.SetBitDepth(9))
	assert.Equal(t, 1<<16, e.Symbols())

	require.NoError(t, e.SetBitDepth(24))
	assert.Equal(t, 1<<24, e.Symbols())
}

func TestSetWindowSizeResetsProgress(t *testing.T) {
	t.Parallel()

	e, err := New(4, 16)
	require.NoError(t, err)
	e.AddBlock([]int32{1})
	e.AddBlock([]int32{1})

	require.NoError(t, e.SetWindowSize(3))
	accumulated, window := e.Progress()
	assert.Zero(t, accumulated)
	assert.Equal(t, 3, window)
}

func TestIntegrationTime(t *testing.T) {
	t.Parallel()

	assert.InDelta(t, 2048.0/44100.0*50*1000, IntegrationTimeMs(2048, 44100, 50), 1e-9)
	assert.Equal(t, 2*time.Second, IntegrationTime(4800, 48000, 20))
	assert.Zero(t, IntegrationTimeMs(2048, 0, 50))
	assert.Zero(t, IntegrationTime(2048, 0, 50))
}
