package mqtt

import (
	"bytes"
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/andnich05/CodeEntropyMeter/internal/errors"
	"github.com/andnich05/CodeEntropyMeter/internal/logger"
	"github.com/andnich05/CodeEntropyMeter/internal/pipeline"
	"github.com/andnich05/CodeEntropyMeter/internal/testutil"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type message struct {
	topic   string
	payload string
}

type fakeClient struct {
	mu           sync.Mutex
	failConnects int
	connects     int
	connected    bool
	messages     []message
}

func (f *fakeClient) Connect(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connects++
	if f.connects <= f.failConnects {
		return errors.NewStd("broker unavailable")
	}
	f.connected = true
	return nil
}

func (f *fakeClient) Publish(_ context.Context, topic, payload string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, message{topic, payload})
	return nil
}

func (f *fakeClient) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeClient) Disconnect() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = false
}

func (f *fakeClient) published() []message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]message(nil), f.messages...)
}

type fakeSource struct {
	mu      sync.Mutex
	reading pipeline.Reading
	ok      bool
}

func (s *fakeSource) Latest() (pipeline.Reading, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reading, s.ok
}

func (s *fakeSource) set(seq uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reading = pipeline.Reading{Session: "s1", Sequence: seq, BitDepth: 16}
	s.ok = true
}

func newTestPublisher(t *testing.T, c Client, src ReadingSource) *Publisher {
	t.Helper()
	p, err := NewPublisher(c, src, "cem/levels", 2*time.Millisecond,
		logger.NewTestLogger(&bytes.Buffer{}, logger.LogLevelError))
	require.NoError(t, err)
	p.retryDelay = time.Millisecond
	return p
}

func TestPublisherPublishesEachReadingOnce(t *testing.T) {
	t.Parallel()

	c := &fakeClient{}
	src := &fakeSource{}
	p := newTestPublisher(t, c, src)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	// Nothing is published before the first reading.
	time.Sleep(10 * time.Millisecond)
	assert.Empty(t, c.published())

	src.set(7)
	require.Eventually(t, func() bool { return len(c.published()) == 1 }, time.Second, time.Millisecond)

	// The same reading is not sent twice.
	time.Sleep(10 * time.Millisecond)
	require.Len(t, c.published(), 1)

	src.set(8)
	require.Eventually(t, func() bool { return len(c.published()) == 2 }, time.Second, time.Millisecond)

	cancel()
	require.NoError(t, testutil.Receive(t, done, testutil.DefaultTimeout))
	assert.False(t, c.IsConnected(), "Run disconnects on exit")

	msgs := c.published()
	assert.Equal(t, "cem/levels", msgs[0].topic)

	var got pipeline.Reading
	require.NoError(t, json.Unmarshal([]byte(msgs[1].payload), &got))
	assert.Equal(t, uint64(8), got.Sequence)
	assert.Equal(t, "s1", got.Session)
}

func TestPublisherRetriesConnect(t *testing.T) {
	t.Parallel()

	c := &fakeClient{failConnects: 3}
	src := &fakeSource{}
	src.set(1)
	p := newTestPublisher(t, c, src)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	require.Eventually(t, func() bool { return len(c.published()) == 1 }, 2*time.Second, time.Millisecond)
	cancel()
	require.NoError(t, testutil.Receive(t, done, testutil.DefaultTimeout))

	c.mu.Lock()
	defer c.mu.Unlock()
	assert.Equal(t, 4, c.connects)
}

func TestPublisherStopsWhileConnecting(t *testing.T) {
	t.Parallel()

	c := &fakeClient{failConnects: 1 << 30}
	p := newTestPublisher(t, c, &fakeSource{})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.NoError(t, p.Run(ctx))
	assert.Empty(t, c.published())
}

func TestNewPublisherValidates(t *testing.T) {
	t.Parallel()

	_, err := NewPublisher(&fakeClient{}, &fakeSource{}, "", time.Second, nil)
	require.Error(t, err)

	_, err = NewPublisher(&fakeClient{}, &fakeSource{}, "t", 0, nil)
	require.Error(t, err)
}

func TestNewClientRejectsInvalidBroker(t *testing.T) {
	t.Parallel()

	for _, broker := range []string{"", "localhost:1883", "://bad"} {
		_, err := NewClient(Config{Broker: broker}, nil, nil)
		require.Error(t, err, broker)
		assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))
	}
}

func TestClientPublishRequiresConnection(t *testing.T) {
	t.Parallel()

	c, err := NewClient(Config{Broker: "tcp://127.0.0.1:1883", Topic: "t"}, nil,
		logger.NewTestLogger(&bytes.Buffer{}, logger.LogLevelError))
	require.NoError(t, err)

	assert.False(t, c.IsConnected())
	err = c.Publish(context.Background(), "t", "{}")
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryMQTTConnection))
	c.Disconnect()
}
