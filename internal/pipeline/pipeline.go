// Package pipeline fans completed sample blocks out to the statistics
// engines and publishes the combined result as a Reading.
//
// The pipeline owns the handoff buffer. Every block completed by the
// producer is processed inline, in completion order, by the peak meter, the
// RMS meter, the bit usage tracker and the entropy estimator. Readings are
// delivered to subscribers through buffered channels; a subscriber that does
// not keep up loses readings instead of stalling the audio path.
package pipeline

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/andnich05/CodeEntropyMeter/internal/bitusage"
	"github.com/andnich05/CodeEntropyMeter/internal/entropy"
	"github.com/andnich05/CodeEntropyMeter/internal/errors"
	"github.com/andnich05/CodeEntropyMeter/internal/handoff"
	"github.com/andnich05/CodeEntropyMeter/internal/logger"
	"github.com/andnich05/CodeEntropyMeter/internal/meter"
)

// Reading is the combined result of one block.
type Reading struct {
	Session         string        `json:"session"`
	Sequence        uint64        `json:"sequence"`
	Time            time.Time     `json:"time"`
	Peak            meter.Result  `json:"peak"`
	RMS             meter.Result  `json:"rms"`
	CrestFactor     float64       `json:"crest_factor"`     // peak meter minus RMS meter
	MaxCrestFactor  float64       `json:"max_crest_factor"` // peak holder minus RMS holder
	ClipHeld        bool          `json:"clip_held"`        // a peak clipped since the last ResetClip
	Bits            bitusage.Bits `json:"bits"`
	BitDepth        int           `json:"bit_depth"`
	Entropy         *float64      `json:"entropy,omitempty"`      // set only when this block completed a window
	LastEntropy     *float64      `json:"last_entropy,omitempty"` // most recent completed window
	EntropyMax      float64       `json:"entropy_max"`
	EntropyProgress int           `json:"entropy_progress"` // blocks counted in the current window
	EntropyWindow   int           `json:"entropy_window"`
	IntegrationMs   float64       `json:"integration_ms"`
}

// Recorder receives per-block measurements, typically for Prometheus.
type Recorder interface {
	RecordBlock(peak, rms meter.Result, crest float64, activeBits int, seconds float64)
	RecordEntropy(bits float64)
	RecordDroppedReading()
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithRecorder sets the metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(p *Pipeline) { p.recorder = r }
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(p *Pipeline) { p.log = l }
}

// WithClock replaces time.Now for reading timestamps.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// Pipeline connects the handoff buffer with the statistics engines.
type Pipeline struct {
	mu      sync.Mutex // serializes block processing with reconfiguration
	cfg     Config
	buf     *handoff.Buffer
	peak    *meter.PeakMeter
	rms     *meter.RMSMeter
	bits    *bitusage.Tracker
	entropy *entropy.Estimator

	running     bool
	session     string
	sequence    uint64
	clipHeld    bool
	lastEntropy *float64
	latest      Reading
	hasLatest   bool

	subsMu  sync.RWMutex
	subs    map[int]chan Reading
	nextSub int

	recorder Recorder
	log      logger.Logger
	now      func() time.Time
}

// New validates cfg and builds a pipeline with fresh engines.
func New(cfg Config, opts ...Option) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	p := &Pipeline{
		cfg:  cfg,
		bits: bitusage.NewTracker(),
		subs: make(map[int]chan Reading),
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.log == nil {
		p.log = logger.Global().Module("pipeline")
	}

	var err error
	if p.buf, err = handoff.New(cfg.BlockSize); err != nil {
		return nil, err
	}
	if p.peak, err = meter.NewPeakMeter(cfg.BitDepth); err != nil {
		return nil, err
	}
	if p.rms, err = meter.NewRMSMeter(cfg.BitDepth); err != nil {
		return nil, err
	}
	if p.entropy, err = entropy.New(cfg.EntropyBlocks, cfg.BitDepth); err != nil {
		return nil, err
	}

	rt := cfg.EffectiveReturnTime()
	p.peak.SetReturnTime(rt)
	p.rms.SetReturnTime(rt)
	p.buf.SetReceiver(p.handleBlock)

	return p, nil
}

// Buffer returns the inbound side of the pipeline.
func (p *Pipeline) Buffer() *handoff.Buffer {
	return p.buf
}

// Block copies the most recent complete block into dst and returns it. It is
// safe to call while blocks are being processed.
func (p *Pipeline) Block(dst []int32) []int32 {
	return p.buf.Snapshot(dst)
}

// Config returns the active configuration.
func (p *Pipeline) Config() Config {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cfg
}

// Reconfigure applies cfg to all engines. An invalid configuration is
// rejected and the previous one stays active. The block size can only be
// changed while no stream is running.
func (p *Pipeline) Reconfigure(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if cfg.BlockSize != p.cfg.BlockSize {
		if p.running {
			return errors.Newf("block size cannot change while streaming").
				Component("pipeline").
				Category(errors.CategoryState).
				Context("current", p.cfg.BlockSize).
				Context("requested", cfg.BlockSize).
				Build()
		}
		if err := p.buf.Configure(cfg.BlockSize); err != nil {
			return err
		}
	}

	// Bit depth and window were validated above, so these cannot fail.
	if cfg.BitDepth != p.cfg.BitDepth {
		_ = p.peak.SetBitDepth(cfg.BitDepth)
		_ = p.rms.SetBitDepth(cfg.BitDepth)
		_ = p.entropy.SetBitDepth(cfg.BitDepth)
		p.bits.Reset()
	}
	_ = p.entropy.SetWindowSize(cfg.EntropyBlocks)
	p.lastEntropy = nil

	rt := cfg.EffectiveReturnTime()
	p.peak.SetReturnTime(rt)
	p.rms.SetReturnTime(rt)

	p.log.Info("pipeline reconfigured",
		logger.Int("bit_depth", cfg.BitDepth),
		logger.Int("block_size", cfg.BlockSize),
		logger.Int("sample_rate", cfg.SampleRate),
		logger.Int("entropy_blocks", cfg.EntropyBlocks),
		logger.Float64("return_time_db", rt))

	p.cfg = cfg
	return nil
}

// SetBitUsageMode changes how bit usage is evaluated.
func (p *Pipeline) SetBitUsageMode(mode bitusage.Mode) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	cfg := p.cfg
	cfg.BitUsage = mode
	if err := cfg.Validate(); err != nil {
		return err
	}
	p.cfg = cfg
	return nil
}

// ResetHolders clears the peak and RMS holders.
func (p *Pipeline) ResetHolders() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.peak.ResetHolder()
	p.rms.ResetHolder()
}

// ResetClip clears the held clip indicator.
func (p *Pipeline) ResetClip() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.clipHeld = false
}

// ResetBits clears the held bit usage.
func (p *Pipeline) ResetBits() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.bits.Reset()
}

// Begin marks the start of a stream and returns its session ID.
func (p *Pipeline) Begin() string {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.running = true
	p.session = uuid.NewString()
	p.sequence = 0
	p.log.Info("stream started", logger.String("session", p.session))
	return p.session
}

// End marks the end of a stream. The producer must have stopped, so no block
// is in flight. The entropy window and the bit usage are reset.
func (p *Pipeline) End() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.running = false
	p.entropy.Reset()
	p.bits.Reset()
	p.log.Info("stream stopped",
		logger.String("session", p.session),
		logger.Uint64("blocks", p.sequence))
}

// Latest returns the most recent reading.
func (p *Pipeline) Latest() (Reading, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.latest, p.hasLatest
}

// Subscribe returns a channel receiving every reading and a function that
// cancels the subscription and closes the channel. Readings are dropped when
// the channel buffer is full.
func (p *Pipeline) Subscribe(buffer int) (<-chan Reading, func()) {
	ch := make(chan Reading, max(buffer, 1))

	p.subsMu.Lock()
	id := p.nextSub
	p.nextSub++
	p.subs[id] = ch
	p.subsMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			p.subsMu.Lock()
			defer p.subsMu.Unlock()
			if _, ok := p.subs[id]; ok {
				delete(p.subs, id)
				close(ch)
			}
		})
	}
}

// Close closes all subscriber channels.
func (p *Pipeline) Close() {
	p.subsMu.Lock()
	defer p.subsMu.Unlock()
	for id, ch := range p.subs {
		delete(p.subs, id)
		close(ch)
	}
}

// handleBlock is the receiver of the handoff buffer and runs on the
// producer goroutine.
func (p *Pipeline) handleBlock(block []int32) {
	start := time.Now()

	p.mu.Lock()
	r := p.process(block)
	p.mu.Unlock()

	if p.recorder != nil {
		p.recorder.RecordBlock(r.Peak, r.RMS, r.CrestFactor, r.Bits.Count(), time.Since(start).Seconds())
		if r.Entropy != nil {
			p.recorder.RecordEntropy(*r.Entropy)
		}
	}

	p.publish(r)
}

// process runs the engines on block. p.mu must be held.
func (p *Pipeline) process(block []int32) Reading {
	cfg := p.cfg
	p.sequence++

	r := Reading{
		Session:  p.session,
		Sequence: p.sequence,
		Time:     p.now(),
		Peak:     p.peak.ProcessBlock(block),
		RMS:      p.rms.ProcessBlock(block),
		BitDepth: cfg.BitDepth,
	}
	r.CrestFactor = meter.CrestFactor(r.Peak.Meter, r.RMS.Meter)
	r.MaxCrestFactor = meter.CrestFactor(r.Peak.Holder, r.RMS.Holder)
	if r.Peak.Clipped {
		p.clipHeld = true
	}
	r.ClipHeld = p.clipHeld

	bits, err := p.bits.Observe(block, cfg.BitDepth, cfg.BitUsage.Scope, cfg.BitUsage.Conversion, cfg.BitUsage.Hold)
	if err != nil {
		p.log.Warn("bit usage skipped", logger.Error(err))
	}
	r.Bits = bits

	if h, ok := p.entropy.AddBlock(block); ok {
		r.Entropy = &h
		p.lastEntropy = &h
	}
	r.LastEntropy = p.lastEntropy
	r.EntropyMax = p.entropy.MaxEntropy()
	r.EntropyProgress, r.EntropyWindow = p.entropy.Progress()
	r.IntegrationMs = entropy.IntegrationTimeMs(len(block), cfg.SampleRate, r.EntropyWindow)

	p.latest = r
	p.hasLatest = true
	return r
}

func (p *Pipeline) publish(r Reading) {
	p.subsMu.RLock()
	defer p.subsMu.RUnlock()

	for _, ch := range p.subs {
		select {
		case ch <- r:
		default:
			if p.recorder != nil {
				p.recorder.RecordDroppedReading()
			}
		}
	}
}
