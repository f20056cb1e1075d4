package meter

// PeakMeter measures the largest absolute sample of each block.
// It is not safe for concurrent use.
type PeakMeter struct {
	ballistics
}

// NewPeakMeter returns a peak meter for samples of the given bit depth.
func NewPeakMeter(bitDepth int) (*PeakMeter, error) {
	b, err := newBallistics(bitDepth)
	if err != nil {
		return nil, err
	}
	return &PeakMeter{ballistics: b}, nil
}

// SetBitDepth changes the full scale reference and clears the holder. An
// invalid depth leaves the meter unchanged.
func (m *PeakMeter) SetBitDepth(bits int) error {
	return m.setBitDepth(bits)
}

// SetReturnTime sets the release in dB per block.
func (m *PeakMeter) SetReturnTime(dbPerBlock float64) {
	m.returnTime = dbPerBlock
}

// ResetHolder clears the held maximum.
func (m *PeakMeter) ResetHolder() {
	m.holder = SilenceDB
}

// BitDepth returns the configured bit depth.
func (m *PeakMeter) BitDepth() int {
	return m.bitDepth
}

// ProcessBlock measures block and advances the meter. An empty block is
// treated as silence.
func (m *PeakMeter) ProcessBlock(block []int32) Result {
	return m.step(toDB(float64(peakAbs(block)), m.reference))
}

// peakAbs returns max |s|. The magnitude is computed in int64 so that
// math.MinInt32 does not overflow.
func peakAbs(block []int32) int64 {
	var peak int64
	for _, s := range block {
		v := int64(s)
		if v < 0 {
			v = -v
		}
		if v > peak {
			peak = v
		}
	}
	return peak
}
