// config.go: settings struct of the meter and the functions that load it.
package conf

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/andnich05/CodeEntropyMeter/internal/logger"
	"github.com/spf13/viper"
)

//go:embed config.yaml
var configFiles embed.FS

// AppName is used for config directories and the MQTT client ID default.
const AppName = "code-entropy-meter"

// EnvPrefix prefixes environment overrides, e.g. CEM_AUDIO_BLOCKSIZE=4096.
const EnvPrefix = "CEM"

// AudioSettings contains settings for audio capture.
type AudioSettings struct {
	Source     string // capture device name or ID, "" or "sysdefault" for default
	Backend    string // malgo backend, "" selects the platform default
	SampleRate int    // sample rate in Hz
	BitDepth   int    // 8, 16 or 24
	Channel    int    // 1-based input channel to meter
	BlockSize  int    // samples per block
	RingBuffer int    // bytes between the audio callback and the decoder
}

// MeterSettings contains peak and RMS meter ballistics.
type MeterSettings struct {
	ReturnTime float64 // release in dB per block, 0 = derived from block size and sample rate
}

// EntropySettings contains entropy estimator settings.
type EntropySettings struct {
	Blocks int // blocks per entropy window
}

// BitUsageSettings contains bit usage tracker settings.
type BitUsageSettings struct {
	Conversion string // raw or absolute
	Scope      string // block or sample
	Sample     int    // 1-based sample index for scope "sample"
	Hold       bool   // keep active bits between windows
}

// DisplaySettings controls the console meter.
type DisplaySettings struct {
	Enabled  bool
	Interval time.Duration
}

// WebServerSettings contains settings for the HTTP API.
type WebServerSettings struct {
	Enabled bool
	Listen  string // host:port
}

// TelemetrySettings contains settings for the Prometheus endpoint.
type TelemetrySettings struct {
	Enabled bool // true to expose /metrics on the web server
}

// MQTTSettings contains settings for publishing readings over MQTT.
type MQTTSettings struct {
	Enabled  bool
	Broker   string        // tcp://host:port
	Topic    string        // topic readings are published to
	ClientID string        // defaults to AppName
	Username string
	Password string
	Interval time.Duration // publish interval
	Retain   bool          // true to retain the last reading at the broker
}

// SentrySettings contains settings for error telemetry.
type SentrySettings struct {
	Enabled bool
	DSN     string
}

// Settings contains all configuration options of the meter.
type Settings struct {
	Debug bool

	Audio     AudioSettings
	Meter     MeterSettings
	Entropy   EntropySettings
	BitUsage  BitUsageSettings
	Display   DisplaySettings
	WebServer WebServerSettings
	Telemetry TelemetrySettings
	MQTT      MQTTSettings
	Sentry    SentrySettings
	Logging   logger.LoggingConfig
}

var (
	settingsInstance *Settings
	settingsMutex    sync.RWMutex
)

// Load reads the configuration file and environment variables using the
// global viper instance, which also carries the bound command line flags.
func Load(configFile string) (*Settings, error) {
	settings, err := LoadFrom(viper.GetViper(), configFile)
	if err != nil {
		return nil, err
	}

	settingsMutex.Lock()
	settingsInstance = settings
	settingsMutex.Unlock()

	return settings, nil
}

// LoadFrom applies defaults to v, reads configFile (or searches the default
// config paths when empty), unmarshals and validates the settings.
func LoadFrom(v *viper.Viper, configFile string) (*Settings, error) {
	if err := initViper(v, configFile); err != nil {
		return nil, fmt.Errorf("error initializing viper: %w", err)
	}

	settings := &Settings{}
	if err := v.Unmarshal(settings); err != nil {
		return nil, fmt.Errorf("error unmarshaling config into struct: %w", err)
	}

	if err := ValidateSettings(settings); err != nil {
		return nil, fmt.Errorf("error validating settings: %w", err)
	}

	return settings, nil
}

// initViper sets defaults and environment overrides, then reads the config
// file. A missing config file is not an error; defaults are used instead.
func initViper(v *viper.Viper, configFile string) error {
	setDefaultConfig(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("fatal error reading config file %s: %w", configFile, err)
		}
		return nil
	}

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	for _, path := range GetDefaultConfigPaths() {
		v.AddConfigPath(path)
	}

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if errors.As(err, &configFileNotFoundError) {
			return nil
		}
		return fmt.Errorf("fatal error reading config file: %w", err)
	}

	return nil
}

// GetDefaultConfigPaths returns the directories searched for config.yaml,
// in order of precedence.
func GetDefaultConfigPaths() []string {
	paths := []string{"."}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", AppName))
	}
	return append(paths, filepath.Join("/etc", AppName))
}

// DefaultConfig returns the embedded default config.yaml.
func DefaultConfig() (string, error) {
	data, err := fs.ReadFile(configFiles, "config.yaml")
	if err != nil {
		return "", fmt.Errorf("error reading embedded config: %w", err)
	}
	return string(data), nil
}

// GetSettings returns the settings loaded by the last successful Load.
func GetSettings() *Settings {
	settingsMutex.RLock()
	defer settingsMutex.RUnlock()
	return settingsInstance
}

// Redacted returns a copy of s with secrets masked, for printing.
func (s *Settings) Redacted() Settings {
	c := *s
	if c.MQTT.Password != "" {
		c.MQTT.Password = "[REDACTED]"
	}
	if c.Sentry.DSN != "" {
		c.Sentry.DSN = "[REDACTED]"
	}
	return c
}
