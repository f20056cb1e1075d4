// conf/validate.go

package conf

import (
	"fmt"
	"net"
	"net/url"
	"slices"
	"strings"

	"github.com/andnich05/CodeEntropyMeter/internal/logger"
)

// Limits of the configurable values.
const (
	MinBlockSize     = 128
	MaxBlockSize     = 65636
	MinEntropyBlocks = 1
	MaxEntropyBlocks = 10000
	MaxChannel       = 32
)

// SupportedBitDepths lists the bit depths the meter can decode.
var SupportedBitDepths = []int{8, 16, 24}

// SupportedBackends lists the audio backends accepted in audio.backend.
var SupportedBackends = []string{"", "alsa", "pulseaudio", "wasapi", "coreaudio", "null"}

// ValidationError represents a collection of validation errors
type ValidationError struct {
	Errors []string
}

// Error returns a string representation of the validation errors
func (ve ValidationError) Error() string {
	return fmt.Sprintf("Validation errors: %v", ve.Errors)
}

// ValidateSettings validates the entire Settings struct
func ValidateSettings(settings *Settings) error {
	ve := ValidationError{}

	validators := []func(*Settings) error{
		validateAudioSettings,
		validateMeterSettings,
		validateEntropySettings,
		validateBitUsageSettings,
		validateDisplaySettings,
		validateWebServerSettings,
		validateMQTTSettings,
		validateSentrySettings,
		validateLoggingSettings,
	}
	for _, validate := range validators {
		if err := validate(settings); err != nil {
			ve.Errors = append(ve.Errors, err.Error())
		}
	}

	if len(ve.Errors) > 0 {
		return ve
	}
	return nil
}

func validateAudioSettings(s *Settings) error {
	var errs []string
	a := &s.Audio

	if a.SampleRate <= 0 {
		errs = append(errs, fmt.Sprintf("sample rate must be positive, got %d", a.SampleRate))
	}
	if !slices.Contains(SupportedBitDepths, a.BitDepth) {
		errs = append(errs, fmt.Sprintf("bit depth must be one of %v, got %d", SupportedBitDepths, a.BitDepth))
	}
	if a.Channel < 1 || a.Channel > MaxChannel {
		errs = append(errs, fmt.Sprintf("channel must be between 1 and %d, got %d", MaxChannel, a.Channel))
	}
	if a.BlockSize < MinBlockSize || a.BlockSize > MaxBlockSize {
		errs = append(errs, fmt.Sprintf("block size must be between %d and %d, got %d", MinBlockSize, MaxBlockSize, a.BlockSize))
	}
	if !slices.Contains(SupportedBackends, strings.ToLower(a.Backend)) {
		errs = append(errs, fmt.Sprintf("unknown audio backend %q", a.Backend))
	}
	if a.RingBuffer <= 0 {
		errs = append(errs, fmt.Sprintf("ring buffer size must be positive, got %d", a.RingBuffer))
	}

	return joinErrors("audio", errs)
}

func validateMeterSettings(s *Settings) error {
	if s.Meter.ReturnTime < 0 {
		return fmt.Errorf("meter settings: return time must not be negative, got %g", s.Meter.ReturnTime)
	}
	return nil
}

func validateEntropySettings(s *Settings) error {
	if s.Entropy.Blocks < MinEntropyBlocks || s.Entropy.Blocks > MaxEntropyBlocks {
		return fmt.Errorf("entropy settings: blocks must be between %d and %d, got %d",
			MinEntropyBlocks, MaxEntropyBlocks, s.Entropy.Blocks)
	}
	return nil
}

func validateBitUsageSettings(s *Settings) error {
	var errs []string
	b := &s.BitUsage

	switch strings.ToLower(b.Conversion) {
	case "raw", "absolute":
	default:
		errs = append(errs, fmt.Sprintf("conversion must be raw or absolute, got %q", b.Conversion))
	}

	switch strings.ToLower(b.Scope) {
	case "block":
	case "sample":
		if b.Sample < 1 || b.Sample > s.Audio.BlockSize {
			errs = append(errs, fmt.Sprintf("sample must be between 1 and the block size %d, got %d", s.Audio.BlockSize, b.Sample))
		}
	default:
		errs = append(errs, fmt.Sprintf("scope must be block or sample, got %q", b.Scope))
	}

	return joinErrors("bit usage", errs)
}

func validateDisplaySettings(s *Settings) error {
	if s.Display.Enabled && s.Display.Interval <= 0 {
		return fmt.Errorf("display settings: interval must be positive, got %s", s.Display.Interval)
	}
	return nil
}

func validateWebServerSettings(s *Settings) error {
	if !s.WebServer.Enabled {
		if s.Telemetry.Enabled {
			return fmt.Errorf("telemetry settings: the metrics endpoint requires the web server to be enabled")
		}
		return nil
	}
	if _, _, err := net.SplitHostPort(s.WebServer.Listen); err != nil {
		return fmt.Errorf("webserver settings: invalid listen address %q: %w", s.WebServer.Listen, err)
	}
	return nil
}

func validateMQTTSettings(s *Settings) error {
	if !s.MQTT.Enabled {
		return nil
	}

	var errs []string
	u, err := url.Parse(s.MQTT.Broker)
	switch {
	case s.MQTT.Broker == "":
		errs = append(errs, "broker is required")
	case err != nil:
		errs = append(errs, fmt.Sprintf("invalid broker URL: %v", err))
	case u.Scheme == "" || u.Host == "":
		errs = append(errs, fmt.Sprintf("broker URL %q must look like tcp://host:port", s.MQTT.Broker))
	}
	if s.MQTT.Topic == "" {
		errs = append(errs, "topic is required")
	}
	if s.MQTT.Interval <= 0 {
		errs = append(errs, fmt.Sprintf("interval must be positive, got %s", s.MQTT.Interval))
	}

	return joinErrors("mqtt", errs)
}

func validateSentrySettings(s *Settings) error {
	if s.Sentry.Enabled && s.Sentry.DSN == "" {
		return fmt.Errorf("sentry settings: dsn is required when sentry is enabled")
	}
	return nil
}

func validateLoggingSettings(s *Settings) error {
	var errs []string
	l := &s.Logging

	if l.DefaultLevel != "" && !logger.ValidLevel(l.DefaultLevel) {
		errs = append(errs, fmt.Sprintf("unknown default level %q", l.DefaultLevel))
	}
	if l.Console != nil && l.Console.Level != "" && !logger.ValidLevel(l.Console.Level) {
		errs = append(errs, fmt.Sprintf("unknown console level %q", l.Console.Level))
	}
	for module, level := range l.ModuleLevels {
		if !logger.ValidLevel(level) {
			errs = append(errs, fmt.Sprintf("unknown level %q for module %s", level, module))
		}
	}

	return joinErrors("logging", errs)
}

func joinErrors(section string, errs []string) error {
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%s settings: %s", section, strings.Join(errs, "; "))
}
