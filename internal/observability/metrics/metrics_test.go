package metrics

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andnich05/CodeEntropyMeter/internal/meter"
)

func TestRecordBlock(t *testing.T) {
	t.Parallel()

	m, err := NewMeterMetrics(prometheus.NewRegistry())
	require.NoError(t, err)

	peak := meter.Result{Meter: -6, Holder: -3, Instant: -6}
	rms := meter.Result{Meter: -12, Holder: -10, Instant: -12}
	m.RecordBlock(peak, rms, 6, 11, 0.0001)
	m.RecordBlock(meter.Result{Meter: 0, Holder: 0, Clipped: true}, rms, 0, 16, 0.0001)

	assert.InDelta(t, 2, testutil.ToFloat64(m.Blocks), 0)
	assert.InDelta(t, 0, testutil.ToFloat64(m.Level.WithLabelValues(LabelPeak)), 0)
	assert.InDelta(t, -10, testutil.ToFloat64(m.Holder.WithLabelValues(LabelRMS)), 0)
	assert.InDelta(t, 16, testutil.ToFloat64(m.ActiveBits), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.Clips.WithLabelValues(LabelPeak)), 0)
	assert.InDelta(t, 0, testutil.ToFloat64(m.Clips.WithLabelValues(LabelRMS)), 0)
	assert.Equal(t, 1, testutil.CollectAndCount(m.BlockDuration))
}

func TestRecordEntropyAndDrops(t *testing.T) {
	t.Parallel()

	m, err := NewMeterMetrics(prometheus.NewRegistry())
	require.NoError(t, err)

	m.RecordEntropy(7.5)
	m.RecordEntropy(3.25)
	m.RecordDroppedReading()

	assert.InDelta(t, 3.25, testutil.ToFloat64(m.Entropy), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(m.EntropyWindows), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.DroppedReadings), 0)
}

func TestCaptureMetrics(t *testing.T) {
	t.Parallel()

	m, err := NewCaptureMetrics(prometheus.NewRegistry())
	require.NoError(t, err)

	m.RecordFrames(480)
	m.RecordFrames(20)
	m.RecordDroppedBytes(96)
	m.RecordRingFill(0.25)

	assert.InDelta(t, 500, testutil.ToFloat64(m.Frames), 0)
	assert.InDelta(t, 96, testutil.ToFloat64(m.DroppedBytes), 0)
	assert.InDelta(t, 0.25, testutil.ToFloat64(m.RingFill), 0)
}

func TestMQTTMetrics(t *testing.T) {
	t.Parallel()

	m, err := NewMQTTMetrics(prometheus.NewRegistry())
	require.NoError(t, err)

	m.UpdateConnectionStatus(true)
	assert.InDelta(t, 1, testutil.ToFloat64(m.ConnectionStatus), 0)
	assert.Positive(t, testutil.ToFloat64(m.LastConnectTime))

	m.UpdateConnectionStatus(false)
	assert.InDelta(t, 0, testutil.ToFloat64(m.ConnectionStatus), 0)

	m.IncrementReadingsPublished()
	m.IncrementErrors("publish")
	m.IncrementErrors("publish")
	m.IncrementReconnectAttempts()
	m.ObserveMessageSize(300)
	m.StartPublishTimer().ObserveDuration()

	assert.InDelta(t, 1, testutil.ToFloat64(m.ReadingsPublished), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(m.Errors.WithLabelValues("publish")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.ReconnectAttempts), 0)
	assert.Equal(t, 1, testutil.CollectAndCount(m.PublishLatency))
}

func TestHTTPMetrics(t *testing.T) {
	t.Parallel()

	m, err := NewHTTPMetrics(prometheus.NewRegistry())
	require.NoError(t, err)

	m.RecordRequest("GET", "/api/v1/levels", 200, 0.002, 512)
	m.RecordRequest("GET", "/api/v1/levels", 200, 0.001, 0)
	m.SSEConnected()
	m.SSEConnected()
	m.SSEDisconnected()
	m.SSEMessageSent()

	assert.InDelta(t, 2, testutil.ToFloat64(m.httpRequestsTotal.WithLabelValues("GET", "/api/v1/levels", "200")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.sseActiveConnections), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.sseMessagesSent), 0)

	expected := `
# HELP http_sse_messages_sent_total Total number of readings sent to level streams
# TYPE http_sse_messages_sent_total counter
http_sse_messages_sent_total 1
`
	require.NoError(t, testutil.CollectAndCompare(m, strings.NewReader(expected), "http_sse_messages_sent_total"))
}

func TestDuplicateRegistrationFails(t *testing.T) {
	t.Parallel()

	registry := prometheus.NewRegistry()
	_, err := NewMeterMetrics(registry)
	require.NoError(t, err)

	_, err = NewMeterMetrics(registry)
	require.Error(t, err)
}
