package conf

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	t.Parallel()

	settings, err := LoadFrom(viper.New(), writeConfig(t, "audio:\n  blocksize: 4096\n"))
	require.NoError(t, err)

	assert.Equal(t, 4096, settings.Audio.BlockSize)
	assert.Equal(t, DefaultSampleRate, settings.Audio.SampleRate)
	assert.Equal(t, DefaultBitDepth, settings.Audio.BitDepth)
	assert.Equal(t, 1, settings.Audio.Channel)
	assert.Equal(t, DefaultEntropyBlocks, settings.Entropy.Blocks)
	assert.Equal(t, "raw", settings.BitUsage.Conversion)
	assert.Equal(t, 100*time.Millisecond, settings.Display.Interval)
	assert.Equal(t, time.Second, settings.MQTT.Interval)
	assert.Equal(t, "info", settings.Logging.DefaultLevel)
	require.NotNil(t, settings.Logging.Console)
	assert.True(t, settings.Logging.Console.Enabled)
}

func TestEmbeddedDefaultConfigMatchesDefaults(t *testing.T) {
	t.Parallel()

	embedded, err := DefaultConfig()
	require.NoError(t, err)

	fromFile, err := LoadFrom(viper.New(), writeConfig(t, embedded))
	require.NoError(t, err)
	fromDefaults, err := LoadFrom(viper.New(), writeConfig(t, "debug: false\n"))
	require.NoError(t, err)

	assert.Equal(t, fromDefaults.Audio, fromFile.Audio)
	assert.Equal(t, fromDefaults.Meter, fromFile.Meter)
	assert.Equal(t, fromDefaults.Entropy, fromFile.Entropy)
	assert.Equal(t, fromDefaults.BitUsage, fromFile.BitUsage)
	assert.Equal(t, fromDefaults.Display, fromFile.Display)
	assert.Equal(t, fromDefaults.WebServer, fromFile.WebServer)
	assert.Equal(t, fromDefaults.MQTT, fromFile.MQTT)
	assert.Equal(t, fromDefaults.Sentry, fromFile.Sentry)
	assert.Equal(t, fromDefaults.Logging.DefaultLevel, fromFile.Logging.DefaultLevel)
	assert.Equal(t, *fromDefaults.Logging.Console, *fromFile.Logging.Console)
}

func TestEnvironmentOverride(t *testing.T) {
	t.Setenv("CEM_AUDIO_SAMPLERATE", "48000")
	t.Setenv("CEM_BITUSAGE_HOLD", "true")

	settings, err := LoadFrom(viper.New(), writeConfig(t, "debug: false\n"))
	require.NoError(t, err)

	assert.Equal(t, 48000, settings.Audio.SampleRate)
	assert.True(t, settings.BitUsage.Hold)
}

func TestLoadRejectsInvalidSettings(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		yaml    string
		message string
	}{
		{"bit depth", "audio:\n  bitdepth: 12\n", "bit depth must be one of"},
		{"block size too small", "audio:\n  blocksize: 64\n", "block size must be between"},
		{"block size too large", "audio:\n  blocksize: 70000\n", "block size must be between"},
		{"zero sample rate", "audio:\n  samplerate: 0\n", "sample rate must be positive"},
		{"channel", "audio:\n  channel: 0\n", "channel must be between"},
		{"backend", "audio:\n  backend: jack\n", "unknown audio backend"},
		{"entropy window", "entropy:\n  blocks: 0\n", "blocks must be between"},
		{"negative return time", "meter:\n  returntime: -1\n", "return time must not be negative"},
		{"conversion", "bitusage:\n  conversion: signed\n", "conversion must be raw or absolute"},
		{"sample index beyond block", "bitusage:\n  scope: sample\n  sample: 5000\n", "sample must be between 1 and the block size"},
		{"telemetry without web server", "telemetry:\n  enabled: true\n", "requires the web server"},
		{"listen address", "webserver:\n  enabled: true\n  listen: nonsense\n", "invalid listen address"},
		{"mqtt broker", "mqtt:\n  enabled: true\n  broker: localhost\n", "must look like tcp://host:port"},
		{"sentry dsn", "sentry:\n  enabled: true\n", "dsn is required"},
		{"log level", "logging:\n  default_level: loud\n", "unknown default level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := LoadFrom(viper.New(), writeConfig(t, tt.yaml))
			require.Error(t, err)

			var ve ValidationError
			require.True(t, errors.As(err, &ve), "expected ValidationError, got %T", err)
			assert.Contains(t, err.Error(), tt.message)
		})
	}
}

func TestValidationCollectsAllErrors(t *testing.T) {
	t.Parallel()

	_, err := LoadFrom(viper.New(), writeConfig(t, "audio:\n  bitdepth: 7\nentropy:\n  blocks: 0\n"))
	require.Error(t, err)

	var ve ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Len(t, ve.Errors, 2)
}

func TestMissingExplicitConfigFile(t *testing.T) {
	t.Parallel()

	_, err := LoadFrom(viper.New(), filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestRedacted(t *testing.T) {
	t.Parallel()

	s := &Settings{MQTT: MQTTSettings{Password: "secret"}, Sentry: SentrySettings{DSN: "https://key@sentry.example/1"}}
	r := s.Redacted()

	assert.Equal(t, "[REDACTED]", r.MQTT.Password)
	assert.Equal(t, "[REDACTED]", r.Sentry.DSN)
	assert.Equal(t, "secret", s.MQTT.Password, "original must be untouched")
}
