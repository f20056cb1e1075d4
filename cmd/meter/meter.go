// Package meter implements the command that captures audio and runs the
// statistics engines until interrupted.
package meter

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/andnich05/CodeEntropyMeter/internal/bitusage"
	"github.com/andnich05/CodeEntropyMeter/internal/buildinfo"
	"github.com/andnich05/CodeEntropyMeter/internal/capture"
	"github.com/andnich05/CodeEntropyMeter/internal/conf"
	"github.com/andnich05/CodeEntropyMeter/internal/display"
	"github.com/andnich05/CodeEntropyMeter/internal/httpserver"
	"github.com/andnich05/CodeEntropyMeter/internal/logger"
	"github.com/andnich05/CodeEntropyMeter/internal/mqtt"
	"github.com/andnich05/CodeEntropyMeter/internal/observability"
	"github.com/andnich05/CodeEntropyMeter/internal/pipeline"
)

// Command creates the meter command.
func Command(settings *conf.Settings, build *buildinfo.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "meter",
		Short: "Meter a capture device in real time",
		Long: "Captures one channel of a sound card and shows peak and RMS levels, " +
			"the crest factor, the active bits and the sample entropy.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return Run(cmd.Context(), settings, build)
		},
	}

	if err := setupFlags(cmd); err != nil {
		fmt.Printf("error setting up flags: %v\n", err)
		os.Exit(1)
	}

	return cmd
}

// setupFlags configures the flags of the meter command and binds each one to
// its config key, so that flags override the config file.
func setupFlags(cmd *cobra.Command) error {
	f := cmd.Flags()
	f.String("source", "", "Capture device name or ID (\"sysdefault\", \"USB Audio\", \":0,0\", etc.)")
	f.String("backend", "", "Audio backend (alsa, pulseaudio, wasapi, coreaudio, null)")
	f.Int("samplerate", 0, "Sample rate in Hz")
	f.Int("bitdepth", 0, "Sample bit depth (8, 16 or 24)")
	f.Int("channel", 0, "1-based input channel to meter")
	f.Int("blocksize", 0, "Samples per block")
	f.Int("entropy-blocks", 0, "Blocks per entropy window")
	f.Float64("returntime", 0, "Meter release in dB per block, 0 derives it from block size and sample rate")
	f.String("bits-conversion", "", "Bit usage conversion (raw or absolute)")
	f.String("bits-scope", "", "Bit usage scope (block or sample)")
	f.Int("bits-sample", 0, "1-based sample index for bit usage scope \"sample\"")
	f.Bool("bits-hold", false, "Keep active bits between windows")
	f.Bool("display", true, "Show the console meter")
	f.Bool("web", false, "Enable the HTTP API")
	f.String("listen", "", "Listen address of the HTTP API")
	f.Bool("telemetry", false, "Expose Prometheus metrics at /metrics")
	f.Bool("mqtt", false, "Publish readings over MQTT")

	bindings := map[string]string{
		"source":          "audio.source",
		"backend":         "audio.backend",
		"samplerate":      "audio.samplerate",
		"bitdepth":        "audio.bitdepth",
		"channel":         "audio.channel",
		"blocksize":       "audio.blocksize",
		"entropy-blocks":  "entropy.blocks",
		"returntime":      "meter.returntime",
		"bits-conversion": "bitusage.conversion",
		"bits-scope":      "bitusage.scope",
		"bits-sample":     "bitusage.sample",
		"bits-hold":       "bitusage.hold",
		"display":         "display.enabled",
		"web":             "webserver.enabled",
		"listen":          "webserver.listen",
		"telemetry":       "telemetry.enabled",
		"mqtt":            "mqtt.enabled",
	}
	for flag, key := range bindings {
		if err := viper.BindPFlag(key, f.Lookup(flag)); err != nil {
			return fmt.Errorf("error binding flag %s: %w", flag, err)
		}
	}

	return nil
}

// PipelineConfig converts the settings into the statistics configuration.
func PipelineConfig(s *conf.Settings) (pipeline.Config, error) {
	mode, err := bitusage.ParseMode(s.BitUsage.Conversion, s.BitUsage.Scope, s.BitUsage.Sample, s.BitUsage.Hold)
	if err != nil {
		return pipeline.Config{}, err
	}
	cfg := pipeline.Config{
		BitDepth:      s.Audio.BitDepth,
		BlockSize:     s.Audio.BlockSize,
		SampleRate:    s.Audio.SampleRate,
		EntropyBlocks: s.Entropy.Blocks,
		ReturnTime:    s.Meter.ReturnTime,
		BitUsage:      mode,
	}
	return cfg, cfg.Validate()
}

// Run meters the configured device until ctx is cancelled or SIGINT or
// SIGTERM is received.
func Run(ctx context.Context, settings *conf.Settings, build *buildinfo.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	log := logger.Global().Module("meter")

	cfg, err := PipelineConfig(settings)
	if err != nil {
		return err
	}

	metrics, err := observability.NewMetrics()
	if err != nil {
		return err
	}

	p, err := pipeline.New(cfg, pipeline.WithRecorder(metrics.Meter), pipeline.WithLogger(log))
	if err != nil {
		return err
	}
	defer p.Close()

	src, err := capture.NewMalgoSource(capture.MalgoConfig{
		Device:     settings.Audio.Source,
		Backend:    settings.Audio.Backend,
		SampleRate: settings.Audio.SampleRate,
		BitDepth:   settings.Audio.BitDepth,
		Channel:    settings.Audio.Channel,
	}, log)
	if err != nil {
		return err
	}

	capt, err := capture.New(src, p.Buffer(), settings.Audio.RingBuffer,
		capture.WithRecorder(metrics.Capture),
		capture.WithLogger(log))
	if err != nil {
		return err
	}

	var renderer *display.Renderer
	if settings.Display.Enabled && !isatty.IsTerminal(os.Stdout.Fd()) && !isatty.IsCygwinTerminal(os.Stdout.Fd()) {
		log.Info("stdout is not a terminal, console meter disabled")
	} else if settings.Display.Enabled {
		if renderer, err = display.NewRenderer(os.Stdout, p, settings.Display.Interval); err != nil {
			return err
		}
	}

	var srv *httpserver.Server
	if settings.WebServer.Enabled {
		opts := []httpserver.Option{
			httpserver.WithDevices(capture.NewDeviceCatalog(capture.MalgoLister(settings.Audio.Backend), 0)),
			httpserver.WithBuildInfo(build),
			httpserver.WithLogger(log.Module("http")),
		}
		if settings.Telemetry.Enabled {
			opts = append(opts, httpserver.WithMetrics(metrics))
		}
		srv = httpserver.New(settings.WebServer.Listen, p, opts...)
	}

	var pub *mqtt.Publisher
	if settings.MQTT.Enabled {
		if pub, err = newPublisher(settings, metrics, p, log); err != nil {
			return err
		}
	}

	g, gctx := errgroup.WithContext(ctx)

	session := p.Begin()
	log.Info("meter running",
		logger.String("session", session),
		logger.String("version", build.GetVersion()))

	g.Go(func() error {
		defer p.End()
		return capt.Run(gctx)
	})
	if renderer != nil {
		g.Go(func() error { return renderer.Run(gctx) })
	}
	if srv != nil {
		g.Go(func() error { return srv.Run(gctx) })
	}
	if pub != nil {
		g.Go(func() error { return pub.Run(gctx) })
	}

	if err := g.Wait(); err != nil {
		log.Error("meter stopped with error", logger.Error(err))
		return err
	}
	log.Info("meter stopped")
	return nil
}

func newPublisher(settings *conf.Settings, metrics *observability.Metrics, p *pipeline.Pipeline, log logger.Logger) (*mqtt.Publisher, error) {
	mcfg := mqtt.DefaultConfig()
	mcfg.Broker = settings.MQTT.Broker
	mcfg.ClientID = settings.MQTT.ClientID
	if mcfg.ClientID == "" {
		mcfg.ClientID = conf.AppName
	}
	mcfg.Username = settings.MQTT.Username
	mcfg.Password = settings.MQTT.Password
	mcfg.Topic = settings.MQTT.Topic
	mcfg.Retain = settings.MQTT.Retain

	mlog := log.Module("mqtt")
	client, err := mqtt.NewClient(mcfg, metrics.MQTT, mlog)
	if err != nil {
		return nil, err
	}
	return mqtt.NewPublisher(client, p, settings.MQTT.Topic, settings.MQTT.Interval, mlog)
}
