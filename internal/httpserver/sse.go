package httpserver

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/andnich05/CodeEntropyMeter/internal/logger"
)

// streamLevels sends every reading as a Server-Sent Event until the client
// disconnects, the pipeline closes the subscription or the server stops.
func (s *Server) streamLevels(c echo.Context) error {
	res := c.Response()
	res.Header().Set(echo.HeaderContentType, "text/event-stream; charset=utf-8")
	res.Header().Set("Cache-Control", "no-cache")
	res.Header().Set("Connection", "keep-alive")
	res.Header().Set("X-Accel-Buffering", "no")
	res.WriteHeader(http.StatusOK)

	readings, cancel := s.meter.Subscribe(streamBuffer)
	defer cancel()

	if s.metrics != nil {
		s.metrics.HTTP.SSEConnected()
		defer s.metrics.HTTP.SSEDisconnected()
	}

	clientIP := c.RealIP()
	s.log.Debug("level stream opened", logger.String("client", clientIP))
	defer s.log.Debug("level stream closed", logger.String("client", clientIP))

	// An immediate comment tells the client the stream is live.
	if _, err := fmt.Fprint(res, ": connected\n\n"); err != nil {
		return nil
	}
	res.Flush()

	heartbeat := time.NewTicker(s.heartbeat)
	defer heartbeat.Stop()

	ctx := c.Request().Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.done:
			return nil
		case <-heartbeat.C:
			if _, err := fmt.Fprintf(res, ": heartbeat %d\n\n", time.Now().Unix()); err != nil {
				return nil
			}
			res.Flush()
		case r, ok := <-readings:
			if !ok {
				return nil
			}
			data, err := json.Marshal(r)
			if err != nil {
				s.log.Warn("failed to encode reading", logger.Error(err))
				continue
			}
			if _, err := fmt.Fprintf(res, "id: %d\nevent: reading\ndata: %s\n\n", r.Sequence, data); err != nil {
				return nil
			}
			res.Flush()
			if s.metrics != nil {
				s.metrics.HTTP.SSEMessageSent()
			}
		}
	}
}
