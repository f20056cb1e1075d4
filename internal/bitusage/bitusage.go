// Package bitusage tracks which bit positions of the samples have been set
// at least once within an observation window.
package bitusage

import (
	"math/bits"
	"strconv"
	"strings"

	"github.com/andnich05/CodeEntropyMeter/internal/errors"
	"github.com/andnich05/CodeEntropyMeter/internal/meter"
)

// Bits is a set of bit positions, bit i of the mask standing for position i.
type Bits uint32

// Has reports whether position i is active.
func (b Bits) Has(i int) bool {
	return i >= 0 && i < 32 && b&(1<<i) != 0
}

// Count returns the number of active positions.
func (b Bits) Count() int {
	return bits.OnesCount32(uint32(b))
}

// Positions returns the active positions in ascending order.
func (b Bits) Positions() []int {
	positions := make([]int, 0, b.Count())
	for v := uint32(b); v != 0; v &= v - 1 {
		positions = append(positions, bits.TrailingZeros32(v))
	}
	return positions
}

// String formats the set as {0,1,2}.
func (b Bits) String() string {
	var sb strings.Builder
	sb.WriteByte('{')
	for i, p := range b.Positions() {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(strconv.Itoa(p))
	}
	sb.WriteByte('}')
	return sb.String()
}

// Format renders bitDepth positions from the most significant bit down to
// bit 0, using on for active and off for inactive positions.
func (b Bits) Format(bitDepth int, on, off rune) string {
	var sb strings.Builder
	sb.Grow(bitDepth * 3)
	for i := bitDepth - 1; i >= 0; i-- {
		if b.Has(i) {
			sb.WriteRune(on)
		} else {
			sb.WriteRune(off)
		}
	}
	return sb.String()
}

// Tracker accumulates active bit positions across calls to Observe.
// It is not safe for concurrent use.
type Tracker struct {
	active Bits
}

// NewTracker returns a tracker with no active bits.
func NewTracker() *Tracker {
	return &Tracker{}
}

// Observe evaluates one window and returns the active positions below
// bitDepth. Unless hold is set, positions below bitDepth are cleared first,
// so only bits seen in this window are reported. With hold, bits stay active
// until Reset.
func (t *Tracker) Observe(block []int32, bitDepth int, scope Scope, conv Conversion, hold bool) (Bits, error) {
	if err := meter.ValidateBitDepth(bitDepth); err != nil {
		return 0, err
	}
	mask := Bits(1)<<bitDepth - 1

	var seen Bits
	if i, single := scope.Index(); single {
		if i < 0 || i >= len(block) {
			return 0, errors.Newf("sample index %d out of range for block of %d samples", i, len(block)).
				Component("bitusage").
				Category(errors.CategoryLimit).
				Context("index", i).
				Context("block_size", len(block)).
				Build()
		}
		seen = conv.apply(block[i])
	} else {
		for _, s := range block {
			seen |= conv.apply(s)
		}
	}

	if !hold {
		t.active &^= mask
	}
	t.active |= seen & mask

	return t.active & mask, nil
}

// Active returns every position currently held active.
func (t *Tracker) Active() Bits {
	return t.active
}

// Reset clears all active positions.
func (t *Tracker) Reset() {
	t.active = 0
}
