package httpserver

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/andnich05/CodeEntropyMeter/internal/bitusage"
	"github.com/andnich05/CodeEntropyMeter/internal/entropy"
	"github.com/andnich05/CodeEntropyMeter/internal/logger"
	"github.com/andnich05/CodeEntropyMeter/internal/pipeline"
	"github.com/andnich05/CodeEntropyMeter/internal/sysinfo"
)

// HealthResponse is returned by /health.
type HealthResponse struct {
	Status    string    `json:"status"`
	Version   string    `json:"version"`
	BuildDate string    `json:"build_date"`
	Time      time.Time `json:"time"`
	HasData   bool      `json:"has_data"`
}

// ConfigResponse describes the active statistics configuration.
type ConfigResponse struct {
	BitDepth      int             `json:"bit_depth"`
	BlockSize     int             `json:"block_size"`
	SampleRate    int             `json:"sample_rate"`
	EntropyBlocks int             `json:"entropy_blocks"`
	ReturnTime    float64         `json:"return_time_db"`
	IntegrationMs float64         `json:"integration_ms"`
	BitUsage      BitUsageRequest `json:"bit_usage"`
}

// ConfigRequest changes the settings that do not depend on the capture
// stream. Omitted fields keep their value; a return time of 0 derives it
// from block size and sample rate.
type ConfigRequest struct {
	EntropyBlocks *int     `json:"entropy_blocks"`
	ReturnTime    *float64 `json:"return_time_db"`
}

// BlockResponse carries the raw samples of the most recent complete block.
type BlockResponse struct {
	BitDepth int     `json:"bit_depth"`
	Samples  []int32 `json:"samples"`
}

// BitUsageRequest is the JSON form of a bit usage mode.
type BitUsageRequest struct {
	Conversion string `json:"conversion"`
	Scope      string `json:"scope"`
	Sample     int    `json:"sample,omitempty"` // 1-based, only with scope "sample"
	Hold       bool   `json:"hold"`
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
}

func modeToRequest(m bitusage.Mode) BitUsageRequest {
	r := BitUsageRequest{
		Conversion: m.Conversion.String(),
		Scope:      "block",
		Hold:       m.Hold,
	}
	if i, single := m.Scope.Index(); single {
		r.Scope = "sample"
		r.Sample = i + 1
	}
	return r
}

func (s *Server) health(c echo.Context) error {
	_, ok := s.meter.Latest()
	return c.JSON(http.StatusOK, HealthResponse{
		Status:    "ok",
		Version:   s.build.GetVersion(),
		BuildDate: s.build.GetBuildDate(),
		Time:      time.Now(),
		HasData:   ok,
	})
}

func (s *Server) getLevels(c echo.Context) error {
	r, ok := s.meter.Latest()
	if !ok {
		return c.JSON(http.StatusNotFound, ErrorResponse{Error: "no reading available yet"})
	}
	return c.JSON(http.StatusOK, r)
}

func (s *Server) getBlock(c echo.Context) error {
	if _, ok := s.meter.Latest(); !ok {
		return c.JSON(http.StatusNotFound, ErrorResponse{Error: "no block available yet"})
	}
	return c.JSON(http.StatusOK, BlockResponse{
		BitDepth: s.meter.Config().BitDepth,
		Samples:  s.meter.Block(nil),
	})
}

func configResponse(cfg pipeline.Config) ConfigResponse {
	return ConfigResponse{
		BitDepth:      cfg.BitDepth,
		BlockSize:     cfg.BlockSize,
		SampleRate:    cfg.SampleRate,
		EntropyBlocks: cfg.EntropyBlocks,
		ReturnTime:    cfg.EffectiveReturnTime(),
		IntegrationMs: entropy.IntegrationTimeMs(cfg.BlockSize, cfg.SampleRate, cfg.EntropyBlocks),
		BitUsage:      modeToRequest(cfg.BitUsage),
	}
}

func (s *Server) getConfig(c echo.Context) error {
	return c.JSON(http.StatusOK, configResponse(s.meter.Config()))
}

func (s *Server) putConfig(c echo.Context) error {
	var req ConfigRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
	}

	cfg := s.meter.Config()
	if req.EntropyBlocks != nil {
		cfg.EntropyBlocks = *req.EntropyBlocks
	}
	if req.ReturnTime != nil {
		cfg.ReturnTime = *req.ReturnTime
	}
	if err := s.meter.Reconfigure(cfg); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
	}

	s.log.Info("meter configuration changed",
		logger.Int("entropy_blocks", cfg.EntropyBlocks),
		logger.Float64("return_time_db", cfg.EffectiveReturnTime()))
	return c.JSON(http.StatusOK, configResponse(s.meter.Config()))
}

func (s *Server) putBitUsage(c echo.Context) error {
	var req BitUsageRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
	}

	mode, err := bitusage.ParseMode(req.Conversion, req.Scope, req.Sample, req.Hold)
	if err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
	}
	if err := s.meter.SetBitUsageMode(mode); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
	}

	s.log.Info("bit usage mode changed",
		logger.String("conversion", mode.Conversion.String()),
		logger.String("scope", mode.Scope.String()),
		logger.Bool("hold", mode.Hold))
	return c.JSON(http.StatusOK, modeToRequest(mode))
}

func (s *Server) resetHolders(c echo.Context) error {
	s.meter.ResetHolders()
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) resetClip(c echo.Context) error {
	s.meter.ResetClip()
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) resetBits(c echo.Context) error {
	s.meter.ResetBits()
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) getDevices(c echo.Context) error {
	ctx := c.Request().Context()
	devices, err := s.devices.Devices(ctx)
	if err != nil {
		s.log.Error("failed to list capture devices", logger.Error(err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "failed to list capture devices"})
	}

	withRates, _ := strconv.ParseBool(c.QueryParam("rates"))
	if !withRates {
		return c.JSON(http.StatusOK, devices)
	}

	type deviceWithRates struct {
		Index   int    `json:"index"`
		Name    string `json:"name"`
		ID      string `json:"id"`
		Default bool   `json:"default"`
		Rates   []int  `json:"sample_rates"`
	}
	out := make([]deviceWithRates, 0, len(devices))
	for _, d := range devices {
		rates, err := s.devices.SupportedSampleRates(ctx, d.ID)
		if err != nil {
			s.log.Warn("failed to read sample rates",
				logger.String("device", d.Name),
				logger.Error(err))
		}
		out = append(out, deviceWithRates{
			Index:   d.Index,
			Name:    d.Name,
			ID:      d.ID,
			Default: d.Default,
			Rates:   rates,
		})
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) getSystem(c echo.Context) error {
	info, err := sysinfo.Collect(c.Request().Context())
	if err != nil {
		// Partial reports are still useful.
		s.log.Warn("incomplete system information", logger.Error(err))
	}
	return c.JSON(http.StatusOK, info)
}
