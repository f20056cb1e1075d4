// Package meter implements the peak and RMS level meters.
//
// Both meters share the same ballistics: the displayed level jumps up to a
// louder block immediately and falls back by a fixed number of dB per block
// when the signal gets quieter. A separate holder tracks the highest level
// seen until it is reset.
package meter

import (
	"math"

	"github.com/andnich05/CodeEntropyMeter/internal/errors"
)

// SilenceDB is the level reported for silence. A finite sentinel keeps
// comparisons total-ordered and is easy to print.
const SilenceDB = -999.0

const (
	// holderFloorDB is the lowest instant level that still moves the holder.
	holderFloorDB = -60.0

	// initialLevelDB is the displayed level of a freshly created meter.
	initialLevelDB = -60.0

	// returnTimeFactor converts the block duration into dB of release per
	// block, see ReturnTime.
	returnTimeFactor = 20.0 / 1.7
)

// Result is the output of a meter for one block.
type Result struct {
	Meter         float64 `json:"meter"`          // displayed level in dBFS
	Holder        float64 `json:"holder"`         // held maximum in dBFS
	HolderUpdated bool    `json:"holder_updated"` // holder rose with this block
	Instant       float64 `json:"instant"`        // unsmoothed level of this block
	Clipped       bool    `json:"clipped"`        // instant level reached full scale
}

// ValidateBitDepth reports whether bits is a supported sample bit depth.
func ValidateBitDepth(bits int) error {
	switch bits {
	case 8, 16, 24:
		return nil
	default:
		return errors.Newf("unsupported bit depth %d, expected 8, 16 or 24", bits).
			Component("meter").
			Category(errors.CategoryValidation).
			Context("bit_depth", bits).
			Build()
	}
}

// ReferenceValue returns the full scale magnitude 2^(bits-1).
func ReferenceValue(bits int) float64 {
	return math.Ldexp(1, bits-1)
}

// MaxDynamicRange returns 20*log10(2^bits/2), the range in dB between full
// scale and the smallest non-zero magnitude.
func MaxDynamicRange(bits int) float64 {
	return 20 * math.Log10(math.Ldexp(1, bits)/2)
}

// ReturnTime derives the release in dB per block from the block duration.
// It returns 0 when sampleRate is not positive.
func ReturnTime(blockSize, sampleRate int) float64 {
	if sampleRate <= 0 {
		return 0
	}
	return float64(blockSize) / float64(sampleRate) * returnTimeFactor
}

// CrestFactor returns peak minus RMS in dB. If either level is silence the
// crest factor is undefined and SilenceDB is returned.
func CrestFactor(peakDB, rmsDB float64) float64 {
	if peakDB == SilenceDB || rmsDB == SilenceDB {
		return SilenceDB
	}
	return peakDB - rmsDB
}

// toDB converts a linear magnitude relative to reference into dBFS.
func toDB(magnitude, reference float64) float64 {
	if magnitude <= 0 {
		return SilenceDB
	}
	return 20 * math.Log10(magnitude/reference)
}

// ballistics holds the state shared by both meters.
type ballistics struct {
	bitDepth   int
	current    float64
	holder     float64
	returnTime float64
	reference  float64
	maxDR      float64
}

func newBallistics(bitDepth int) (ballistics, error) {
	b := ballistics{current: initialLevelDB, holder: SilenceDB}
	if err := b.setBitDepth(bitDepth); err != nil {
		return ballistics{}, err
	}
	return b, nil
}

func (b *ballistics) setBitDepth(bits int) error {
	if err := ValidateBitDepth(bits); err != nil {
		return err
	}
	b.bitDepth = bits
	b.reference = ReferenceValue(bits)
	b.maxDR = MaxDynamicRange(bits)
	b.holder = SilenceDB
	return nil
}

// step advances the meter by one block whose level is instant dB.
func (b *ballistics) step(instant float64) Result {
	r := Result{Instant: instant, Clipped: instant >= 0}

	switch {
	case instant > b.current:
		b.current = instant
		if instant >= holderFloorDB && b.current > b.holder {
			b.holder = b.current
			r.HolderUpdated = true
		}
	case instant >= 0:
		b.current = 0
	}

	r.Meter = b.current
	r.Holder = b.holder

	if instant < b.current {
		if b.current > -b.maxDR {
			b.current -= b.returnTime
		} else {
			b.current = SilenceDB
		}
	}

	return r
}
