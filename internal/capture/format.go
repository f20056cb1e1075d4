package capture

import (
	"fmt"

	"github.com/andnich05/CodeEntropyMeter/internal/errors"
)

// StandardSampleRates are the rates offered when probing a device.
var StandardSampleRates = []int{8000, 9600, 11025, 12000, 16000, 22050, 24000, 32000, 44100, 48000, 88200, 96000, 192000}

// SampleFormat is the PCM encoding delivered by the device.
type SampleFormat int

const (
	FormatU8 SampleFormat = iota + 1
	FormatS16
	FormatS24
)

func (f SampleFormat) String() string {
	switch f {
	case FormatU8:
		return "U8"
	case FormatS16:
		return "S16LE"
	case FormatS24:
		return "S24LE"
	default:
		return fmt.Sprintf("SampleFormat(%d)", int(f))
	}
}

// BytesPerSample returns the size of one sample in bytes.
func (f SampleFormat) BytesPerSample() int {
	switch f {
	case FormatU8:
		return 1
	case FormatS16:
		return 2
	case FormatS24:
		return 3
	default:
		return 0
	}
}

// FormatForBitDepth maps a bit depth to its sample format.
func FormatForBitDepth(bits int) (SampleFormat, error) {
	switch bits {
	case 8:
		return FormatU8, nil
	case 16:
		return FormatS16, nil
	case 24:
		return FormatS24, nil
	default:
		return 0, errors.Newf("no sample format for bit depth %d", bits).
			Component("capture").
			Category(errors.CategoryValidation).
			Context("bit_depth", bits).
			Build()
	}
}

// Format describes a capture stream. The device is opened with Channel
// channels and the last of them is metered, so Channels always equals
// Channel for streams opened by this package.
type Format struct {
	SampleRate int
	BitDepth   int
	Channels   int
	Channel    int // 1-based channel to meter
}

// Decoder extracts the metered channel from interleaved little-endian frames.
type Decoder struct {
	format    SampleFormat
	frameSize int
	offset    int
}

// NewDecoder returns a decoder for f.
func NewDecoder(f Format) (Decoder, error) {
	sf, err := FormatForBitDepth(f.BitDepth)
	if err != nil {
		return Decoder{}, err
	}
	if f.Channel < 1 || f.Channel > f.Channels {
		return Decoder{}, errors.Newf("channel %d not within the %d opened channels", f.Channel, f.Channels).
			Component("capture").
			Category(errors.CategoryValidation).
			Context("channel", f.Channel).
			Context("channels", f.Channels).
			Build()
	}

	bps := sf.BytesPerSample()
	return Decoder{
		format:    sf,
		frameSize: bps * f.Channels,
		offset:    bps * (f.Channel - 1),
	}, nil
}

// FrameSize returns the number of bytes of one interleaved frame.
func (d Decoder) FrameSize() int {
	return d.frameSize
}

// Decode returns the metered sample of frame, which must hold at least
// FrameSize bytes.
func (d Decoder) Decode(frame []byte) int32 {
	b := frame[d.offset:]
	switch d.format {
	case FormatU8:
		return int32(b[0]) - 128
	case FormatS16:
		return int32(int16(uint16(b[0]) | uint16(b[1])<<8))
	case FormatS24:
		v := int32(b[0]) | int32(b[1])<<8 | int32(b[2])<<16
		return v << 8 >> 8 // sign extend from bit 23
	default:
		return 0
	}
}

// DecodeFrames calls fn with the metered sample of every whole frame in data
// and returns the number of bytes consumed.
func (d Decoder) DecodeFrames(data []byte, fn func(int32)) int {
	n := len(data) / d.frameSize * d.frameSize
	for off := 0; off < n; off += d.frameSize {
		fn(d.Decode(data[off : off+d.frameSize]))
	}
	return n
}

// Cursor hands out block positions 0..capacity-1 and wraps around.
type Cursor struct {
	pos      uint32
	capacity uint32
}

// NewCursor returns a cursor for blocks of capacity samples.
func NewCursor(capacity int) Cursor {
	return Cursor{capacity: uint32(max(capacity, 1))}
}

// Next returns the current position and advances the cursor.
func (c *Cursor) Next() uint32 {
	p := c.pos
	c.pos++
	if c.pos == c.capacity {
		c.pos = 0
	}
	return p
}
