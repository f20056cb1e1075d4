package capture

import (
	"context"
	"sync"

	"github.com/gen2brain/malgo"

	"github.com/andnich05/CodeEntropyMeter/internal/errors"
	"github.com/andnich05/CodeEntropyMeter/internal/logger"
)

// MalgoConfig selects the device and the stream format.
type MalgoConfig struct {
	Device     string // name, decoded ID, or "" for the default device
	Backend    string // "" for the platform default
	SampleRate int
	BitDepth   int
	Channel    int // 1-based; the device is opened with this many channels
}

// MalgoSource captures from a sound card through miniaudio.
type MalgoSource struct {
	cfg MalgoConfig
	log logger.Logger

	mu      sync.Mutex
	ctx     *malgo.AllocatedContext
	device  *malgo.Device
	name    string
	rate    int
	running bool
}

// NewMalgoSource validates cfg and returns a stopped source.
func NewMalgoSource(cfg MalgoConfig, log logger.Logger) (*MalgoSource, error) {
	if _, err := FormatForBitDepth(cfg.BitDepth); err != nil {
		return nil, err
	}
	if cfg.SampleRate <= 0 || cfg.Channel < 1 {
		return nil, errors.Newf("invalid capture format: %d Hz, channel %d", cfg.SampleRate, cfg.Channel).
			Component("capture").
			Category(errors.CategoryValidation).
			Context("sample_rate", cfg.SampleRate).
			Context("channel", cfg.Channel).
			Build()
	}
	if log == nil {
		log = logger.Global().Module("capture")
	}
	return &MalgoSource{cfg: cfg, log: log.Module("malgo"), name: cfg.Device, rate: cfg.SampleRate}, nil
}

func malgoFormat(f SampleFormat) malgo.FormatType {
	switch f {
	case FormatU8:
		return malgo.FormatU8
	case FormatS16:
		return malgo.FormatS16
	case FormatS24:
		return malgo.FormatS24
	default:
		return malgo.FormatUnknown
	}
}

// Start opens the device and delivers captured bytes to handler.
func (s *MalgoSource) Start(_ context.Context, handler func([]byte)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return errors.Newf("capture device already running").
			Component("capture").
			Category(errors.CategoryState).
			Context("device", s.name).
			Build()
	}

	mctx, err := initContext(s.cfg.Backend)
	if err != nil {
		return err
	}

	infos, err := mctx.Devices(malgo.Capture)
	if err != nil {
		freeContext(mctx)
		return errors.New(err).
			Component("capture").
			Category(errors.CategoryAudioSource).
			Context("operation", "enumerate_devices").
			Build()
	}
	info, err := selectDevice(infos, s.cfg.Device)
	if err != nil {
		freeContext(mctx)
		return err
	}

	sf, _ := FormatForBitDepth(s.cfg.BitDepth)
	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgoFormat(sf)
	deviceConfig.Capture.Channels = uint32(s.cfg.Channel)
	deviceConfig.Capture.DeviceID = info.ID.Pointer()
	deviceConfig.SampleRate = uint32(s.cfg.SampleRate)
	deviceConfig.Alsa.NoMMap = 1

	callbacks := malgo.DeviceCallbacks{
		Data: func(_, input []byte, _ uint32) {
			handler(input)
		},
		Stop: func() {
			s.log.Debug("device stopped", logger.String("device", info.Name()))
		},
	}

	device, err := malgo.InitDevice(mctx.Context, deviceConfig, callbacks)
	if err != nil {
		freeContext(mctx)
		return errors.New(err).
			Component("capture").
			Category(errors.CategoryAudioSource).
			Context("operation", "init_device").
			Context("device", info.Name()).
			Context("sample_rate", s.cfg.SampleRate).
			Context("bit_depth", s.cfg.BitDepth).
			Build()
	}

	if got := device.CaptureFormat(); got != deviceConfig.Capture.Format {
		device.Uninit()
		freeContext(mctx)
		return errors.Newf("device delivers format %d instead of %s", got, sf).
			Component("capture").
			Category(errors.CategoryAudioSource).
			Context("device", info.Name()).
			Build()
	}

	if err := device.Start(); err != nil {
		device.Uninit()
		freeContext(mctx)
		return errors.New(err).
			Component("capture").
			Category(errors.CategoryAudioSource).
			Context("operation", "start_device").
			Context("device", info.Name()).
			Build()
	}

	s.ctx = mctx
	s.device = device
	s.name = info.Name()
	s.rate = int(device.SampleRate())
	s.running = true

	if s.rate != s.cfg.SampleRate {
		s.log.Warn("device runs at a different sample rate",
			logger.Int("requested", s.cfg.SampleRate),
			logger.Int("actual", s.rate))
	}
	return nil
}

// Stop halts and releases the device.
func (s *MalgoSource) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}

	// Uninit stops the device and waits for the running callback.
	s.device.Uninit()
	freeContext(s.ctx)
	s.device = nil
	s.ctx = nil
	s.running = false
	return nil
}

// Format returns the stream format, with the actual rate once started.
func (s *MalgoSource) Format() Format {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Format{
		SampleRate: s.rate,
		BitDepth:   s.cfg.BitDepth,
		Channels:   s.cfg.Channel,
		Channel:    s.cfg.Channel,
	}
}

// Name returns the device name, or the configured selector before Start.
func (s *MalgoSource) Name() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.name == "" {
		return "default"
	}
	return s.name
}
