// conf/defaults.go default values for settings
package conf

import (
	"time"

	"github.com/spf13/viper"
)

// Defaults shared with the pipeline and the command line flags.
const (
	DefaultSampleRate    = 44100
	DefaultBitDepth      = 16
	DefaultBlockSize     = 2048
	DefaultEntropyBlocks = 50
	DefaultRingBuffer    = 256 * 1024
)

// setDefaultConfig sets default values for the configuration.
func setDefaultConfig(v *viper.Viper) {
	v.SetDefault("debug", false)

	v.SetDefault("audio.source", "")
	v.SetDefault("audio.backend", "")
	v.SetDefault("audio.samplerate", DefaultSampleRate)
	v.SetDefault("audio.bitdepth", DefaultBitDepth)
	v.SetDefault("audio.channel", 1)
	v.SetDefault("audio.blocksize", DefaultBlockSize)
	v.SetDefault("audio.ringbuffer", DefaultRingBuffer)

	v.SetDefault("meter.returntime", 0.0)

	v.SetDefault("entropy.blocks", DefaultEntropyBlocks)

	v.SetDefault("bitusage.conversion", "raw")
	v.SetDefault("bitusage.scope", "block")
	v.SetDefault("bitusage.sample", 1)
	v.SetDefault("bitusage.hold", false)

	v.SetDefault("display.enabled", true)
	v.SetDefault("display.interval", 100*time.Millisecond)

	v.SetDefault("webserver.enabled", false)
	v.SetDefault("webserver.listen", "localhost:8080")

	v.SetDefault("telemetry.enabled", false)

	v.SetDefault("mqtt.enabled", false)
	v.SetDefault("mqtt.broker", "tcp://localhost:1883")
	v.SetDefault("mqtt.topic", AppName+"/levels")
	v.SetDefault("mqtt.clientid", "")
	v.SetDefault("mqtt.username", "")
	v.SetDefault("mqtt.password", "")
	v.SetDefault("mqtt.interval", time.Second)
	v.SetDefault("mqtt.retain", false)

	v.SetDefault("sentry.enabled", false)
	v.SetDefault("sentry.dsn", "")

	v.SetDefault("logging.default_level", "info")
	v.SetDefault("logging.timezone", "Local")
	v.SetDefault("logging.json", false)
	v.SetDefault("logging.console.enabled", true)
	v.SetDefault("logging.console.level", "info")
	v.SetDefault("logging.console.timestamps", false)
}
