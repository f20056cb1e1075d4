package observability

import (
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestNewMetricsConcurrency verifies that NewMetrics instances do not share
// state and can be created concurrently.
func TestNewMetricsConcurrency(t *testing.T) {
	t.Parallel()

	const numGoroutines = 20

	var wg sync.WaitGroup
	for range numGoroutines {
		wg.Go(func() {
			m, err := NewMetrics()
			if !assert.NoError(t, err) {
				return
			}
			assert.NotNil(t, m.Registry())
			assert.NotNil(t, m.Meter)
			assert.NotNil(t, m.Capture)
			assert.NotNil(t, m.MQTT)
			assert.NotNil(t, m.HTTP)
		})
	}
	wg.Wait()
}

func TestHandlerServesRegistry(t *testing.T) {
	t.Parallel()

	m, err := NewMetrics()
	require.NoError(t, err)

	m.Meter.RecordEntropy(4.5)
	m.Capture.RecordFrames(10)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", http.NoBody))

	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "meter_entropy_bits 4.5")
	assert.Contains(t, string(body), "capture_frames_total 10")
	assert.Contains(t, string(body), "go_goroutines")
}
