package pipeline

import (
	"github.com/andnich05/CodeEntropyMeter/internal/bitusage"
	"github.com/andnich05/CodeEntropyMeter/internal/errors"
	"github.com/andnich05/CodeEntropyMeter/internal/meter"
)

// Config is the part of the settings the statistics engines depend on.
type Config struct {
	BitDepth      int
	BlockSize     int
	SampleRate    int
	EntropyBlocks int
	ReturnTime    float64 // dB per block, 0 derives it from BlockSize and SampleRate
	BitUsage      bitusage.Mode
}

// Validate checks every field and returns all problems joined.
func (c Config) Validate() error {
	var errs []error

	if err := meter.ValidateBitDepth(c.BitDepth); err != nil {
		errs = append(errs, err)
	}
	if c.BlockSize <= 0 {
		errs = append(errs, configError("block_size", c.BlockSize, "block size must be positive"))
	}
	if c.SampleRate <= 0 {
		errs = append(errs, configError("sample_rate", c.SampleRate, "sample rate must be positive"))
	}
	if c.EntropyBlocks < 1 {
		errs = append(errs, configError("entropy_blocks", c.EntropyBlocks, "entropy window must be at least one block"))
	}
	if c.ReturnTime < 0 {
		errs = append(errs, configError("return_time", c.ReturnTime, "return time must not be negative"))
	}
	if i, single := c.BitUsage.Scope.Index(); single && (i < 0 || i >= c.BlockSize) {
		errs = append(errs, configError("bit_usage_sample", i+1, "bit usage sample must be within the block"))
	}

	return errors.Join(errs...)
}

// EffectiveReturnTime returns ReturnTime, or the value derived from block
// size and sample rate when it is zero.
func (c Config) EffectiveReturnTime() float64 {
	if c.ReturnTime > 0 {
		return c.ReturnTime
	}
	return meter.ReturnTime(c.BlockSize, c.SampleRate)
}

func configError(key string, value any, msg string) error {
	return errors.Newf("%s, got %v", msg, value).
		Component("pipeline").
		Category(errors.CategoryValidation).
		Context(key, value).
		Build()
}
