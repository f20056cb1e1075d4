package bitusage

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andnich05/CodeEntropyMeter/internal/errors"
)

func TestObserveBlock(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		block []int32
		depth int
		conv  Conversion
		want  []int
	}{
		{"powers of two", []int32{1, 2, 4}, 8, Raw, []int{0, 1, 2}},
		{"absolute minus one", []int32{-1}, 8, Absolute, []int{0}},
		{"raw minus one sets every bit", []int32{-1}, 8, Raw, []int{0, 1, 2, 3, 4, 5, 6, 7}},
		{"bits above depth are ignored", []int32{0x1_0001}, 16, Raw, []int{0}},
		{"24 bit top bit", []int32{1 << 23}, 24, Raw, []int{23}},
		{"absolute of MinInt32 fits no low bit", []int32{math.MinInt32}, 24, Absolute, []int{}},
		{"silence", make([]int32, 16), 16, Raw, []int{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := NewTracker().Observe(tt.block, tt.depth, Block(), tt.conv, false)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Positions())
		})
	}
}

func TestObserveWithoutHoldClearsEachWindow(t *testing.T) {
	t.Parallel()

	tr := NewTracker()
	got, err := tr.Observe([]int32{1, 2}, 8, Block(), Raw, false)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1}, got.Positions())

	got, err = tr.Observe([]int32{8}, 8, Block(), Raw, false)
	require.NoError(t, err)
	assert.Equal(t, []int{3}, got.Positions())
}

func TestObserveWithHoldAccumulates(t *testing.T) {
	t.Parallel()

	tr := NewTracker()
	_, err := tr.Observe([]int32{1}, 8, Block(), Raw, true)
	require.NoError(t, err)
	got, err := tr.Observe([]int32{16}, 8, Block(), Raw, true)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 4}, got.Positions())

	tr.Reset()
	assert.Zero(t, tr.Active())
}

func TestSingleSample(t *testing.T) {
	t.Parallel()

	block := []int32{0xFF, 0x05, 0x00}

	tr := NewTracker()
	got, err := tr.Observe(block, 8, SingleSampleAt(1), Raw, false)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 2}, got.Positions(), "only the selected sample is tested")

	// Without hold the active set is derived from the selected sample alone.
	got, err = tr.Observe([]int32{0, 0x02}, 8, SingleSampleAt(1), Raw, false)
	require.NoError(t, err)
	assert.Equal(t, []int{1}, got.Positions())
}

func TestSingleSampleWithHoldCarriesBitsOver(t *testing.T) {
	t.Parallel()

	tr := NewTracker()
	got, err := tr.Observe([]int32{0x01, 0x80}, 8, SingleSampleAt(0), Raw, true)
	require.NoError(t, err)
	assert.Equal(t, []int{0}, got.Positions())

	// The new sample has bit 0 clear, but bit 0 stays active under hold.
	got, err = tr.Observe([]int32{0x04, 0x80}, 8, SingleSampleAt(0), Raw, true)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 2}, got.Positions())

	// Releasing hold re-derives the set from the current sample only.
	got, err = tr.Observe([]int32{0x04, 0x80}, 8, SingleSampleAt(0), Raw, false)
	require.NoError(t, err)
	assert.Equal(t, []int{2}, got.Positions())
}

func TestSingleSampleOutOfRange(t *testing.T) {
	t.Parallel()

	tr := NewTracker()
	_, err := tr.Observe([]int32{1}, 8, Block(), Raw, true)
	require.NoError(t, err)

	for _, i := range []int{-1, 3} {
		_, err = tr.Observe([]int32{1, 2, 3}, 8, SingleSampleAt(i), Raw, false)
		require.Error(t, err)
		assert.True(t, errors.IsCategory(err, errors.CategoryLimit))
	}
	assert.Equal(t, Bits(1), tr.Active(), "failed observation leaves the state untouched")
}

func TestObserveRejectsInvalidBitDepth(t *testing.T) {
	t.Parallel()

	_, err := NewTracker().Observe([]int32{1}, 12, Block(), Raw, false)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryValidation))
}

func TestBitsHelpers(t *testing.T) {
	t.Parallel()

	b := Bits(0b1000_0101)
	assert.True(t, b.Has(0))
	assert.False(t, b.Has(1))
	assert.True(t, b.Has(7))
	assert.False(t, b.Has(-1))
	assert.False(t, b.Has(40))
	assert.Equal(t, 3, b.Count())
	assert.Equal(t, "{0,2,7}", b.String())
	assert.Equal(t, "{}", Bits(0).String())
	assert.Equal(t, "#....#.#", b.Format(8, '#', '.'))
}

func TestParseMode(t *testing.T) {
	t.Parallel()

	m, err := ParseMode("absolute", "sample", 5, true)
	require.NoError(t, err)
	assert.Equal(t, Absolute, m.Conversion)
	assert.True(t, m.Hold)
	i, single := m.Scope.Index()
	assert.True(t, single)
	assert.Equal(t, 4, i)
	assert.Equal(t, "sample 5", m.Scope.String())

	m, err = ParseMode("RAW", "block", 0, false)
	require.NoError(t, err)
	assert.Equal(t, Raw, m.Conversion)
	assert.Equal(t, Block(), m.Scope)

	for _, tt := range [][2]string{{"signed", "block"}, {"raw", "window"}} {
		_, err = ParseMode(tt[0], tt[1], 1, false)
		assert.Error(t, err)
	}
	_, err = ParseMode("raw", "sample", 0, false)
	assert.Error(t, err)
}
