package bitusage

import (
	"fmt"
	"strings"

	"github.com/andnich05/CodeEntropyMeter/internal/errors"
)

// Conversion selects how a sample is turned into the value whose bits are
// tested.
type Conversion int

const (
	// Raw tests the two's complement value, so negative samples set the high bits.
	Raw Conversion = iota
	// Absolute tests the magnitude of the sample.
	Absolute
)

func (c Conversion) String() string {
	switch c {
	case Raw:
		return "raw"
	case Absolute:
		return "absolute"
	default:
		return fmt.Sprintf("Conversion(%d)", int(c))
	}
}

func (c Conversion) apply(s int32) Bits {
	if c == Absolute {
		v := int64(s)
		if v < 0 {
			v = -v
		}
		return Bits(uint32(v))
	}
	return Bits(uint32(s))
}

// Scope selects which samples of a block are evaluated.
type Scope struct {
	single bool
	index  int
}

// Block evaluates every sample of the block.
func Block() Scope {
	return Scope{}
}

// SingleSampleAt evaluates only the zero-based sample index i.
func SingleSampleAt(i int) Scope {
	return Scope{single: true, index: i}
}

// Index returns the selected sample and true for a single sample scope.
func (s Scope) Index() (int, bool) {
	return s.index, s.single
}

func (s Scope) String() string {
	if s.single {
		return fmt.Sprintf("sample %d", s.index+1)
	}
	return "block"
}

// Mode bundles the settings of the tracker as configured by the user.
type Mode struct {
	Scope      Scope
	Conversion Conversion
	Hold       bool
}

// ParseMode builds a Mode from configuration values. sample is 1-based and
// only used when scope is "sample".
func ParseMode(conversion, scope string, sample int, hold bool) (Mode, error) {
	m := Mode{Hold: hold}

	switch strings.ToLower(conversion) {
	case "raw", "":
		m.Conversion = Raw
	case "absolute":
		m.Conversion = Absolute
	default:
		return Mode{}, modeError("conversion", conversion)
	}

	switch strings.ToLower(scope) {
	case "block", "":
		m.Scope = Block()
	case "sample":
		if sample < 1 {
			return Mode{}, modeError("sample", sample)
		}
		m.Scope = SingleSampleAt(sample - 1)
	default:
		return Mode{}, modeError("scope", scope)
	}

	return m, nil
}

func modeError(key string, value any) error {
	return errors.Newf("invalid bit usage %s %v", key, value).
		Component("bitusage").
		Category(errors.CategoryValidation).
		Context(key, value).
		Build()
}
