package meter

import (
	"math"
	"math/bits"
)

// RMSMeter measures the root mean square level of each block.
// It is not safe for concurrent use.
type RMSMeter struct {
	ballistics
}

// NewRMSMeter returns an RMS meter for samples of the given bit depth.
func NewRMSMeter(bitDepth int) (*RMSMeter, error) {
	b, err := newBallistics(bitDepth)
	if err != nil {
		return nil, err
	}
	return &RMSMeter{ballistics: b}, nil
}

// SetBitDepth changes the full scale reference and clears the holder. An
// invalid depth leaves the meter unchanged.
func (m *RMSMeter) SetBitDepth(bits int) error {
	return m.setBitDepth(bits)
}

// SetReturnTime sets the release in dB per block.
func (m *RMSMeter) SetReturnTime(dbPerBlock float64) {
	m.returnTime = dbPerBlock
}

// ResetHolder clears the held maximum.
func (m *RMSMeter) ResetHolder() {
	m.holder = SilenceDB
}

// BitDepth returns the configured bit depth.
func (m *RMSMeter) BitDepth() int {
	return m.bitDepth
}

// ProcessBlock measures block and advances the meter. An empty or all-zero
// block is silence.
func (m *RMSMeter) ProcessBlock(block []int32) Result {
	rms := blockRMS(block)
	if rms > 0 {
		// Levels below one LSB would produce large negative spikes.
		rms = math.Max(rms, 1)
	}
	return m.step(toDB(rms, m.reference))
}

// blockRMS returns sqrt(mean(s^2)). The sum of squares is accumulated
// exactly in 128 bits and converted to float64 once.
func blockRMS(block []int32) float64 {
	if len(block) == 0 {
		return 0
	}

	var hi, lo uint64
	for _, s := range block {
		v := int64(s)
		sq := uint64(v * v) // at most 2^62
		var carry uint64
		lo, carry = bits.Add64(lo, sq, 0)
		hi += carry
	}

	sum := math.Ldexp(float64(hi), 64) + float64(lo)
	return math.Sqrt(sum / float64(len(block)))
}
