package mqtt

import (
	"context"
	"encoding/json"
	"time"

	"github.com/andnich05/CodeEntropyMeter/internal/errors"
	"github.com/andnich05/CodeEntropyMeter/internal/logger"
	"github.com/andnich05/CodeEntropyMeter/internal/pipeline"
)

const (
	initialRetryDelay = time.Second
	maxRetryDelay     = 5 * time.Minute
)

// ReadingSource provides the most recent reading.
type ReadingSource interface {
	Latest() (pipeline.Reading, bool)
}

// Publisher publishes the latest reading at a fixed interval.
type Publisher struct {
	client     Client
	source     ReadingSource
	topic      string
	interval   time.Duration
	retryDelay time.Duration
	log        logger.Logger
	lastSent   uint64
	sentAny    bool
}

// NewPublisher returns a publisher sending readings of source to topic
// every interval.
func NewPublisher(client Client, source ReadingSource, topic string, interval time.Duration, log logger.Logger) (*Publisher, error) {
	if topic == "" || interval <= 0 {
		return nil, errors.Newf("publisher needs a topic and a positive interval").
			Component("mqtt").
			Category(errors.CategoryConfiguration).
			Context("topic", topic).
			Context("interval", interval.String()).
			Build()
	}
	if log == nil {
		log = logger.Global().Module("mqtt")
	}
	return &Publisher{
		client:     client,
		source:     source,
		topic:      topic,
		interval:   interval,
		retryDelay: initialRetryDelay,
		log:        log,
	}, nil
}

// Run connects with exponential backoff and publishes until ctx is
// cancelled. It always returns nil once ctx is done.
func (p *Publisher) Run(ctx context.Context) error {
	if !p.connect(ctx) {
		return nil
	}
	defer p.client.Disconnect()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			p.publishLatest(ctx)
		}
	}
}

// connect returns false if ctx was cancelled before a connection was made.
func (p *Publisher) connect(ctx context.Context) bool {
	backoff := p.retryDelay
	for {
		err := p.client.Connect(ctx)
		if err == nil {
			return true
		}
		if ctx.Err() != nil {
			return false
		}

		p.log.Warn("failed to connect to MQTT broker",
			logger.Error(err),
			logger.Duration("retry_in", backoff))

		select {
		case <-ctx.Done():
			return false
		case <-time.After(backoff):
			backoff = min(backoff*2, maxRetryDelay)
		}
	}
}

func (p *Publisher) publishLatest(ctx context.Context) {
	r, ok := p.source.Latest()
	if !ok || (p.sentAny && r.Sequence == p.lastSent) {
		return
	}
	if !p.client.IsConnected() {
		return
	}

	payload, err := json.Marshal(r)
	if err != nil {
		p.log.Error("failed to encode reading", logger.Error(err))
		return
	}
	if err := p.client.Publish(ctx, p.topic, string(payload)); err != nil {
		p.log.Warn("failed to publish reading",
			logger.String("topic", p.topic),
			logger.Error(err))
		return
	}
	p.lastSent = r.Sequence
	p.sentAny = true
}
