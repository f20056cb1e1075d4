// Package httpserver serves the meter readings over HTTP: JSON snapshots, a
// Server-Sent Events stream, a few control endpoints and the Prometheus
// metrics.
package httpserver

import (
	"context"

	"github.com/andnich05/CodeEntropyMeter/internal/bitusage"
	"github.com/andnich05/CodeEntropyMeter/internal/capture"
	"github.com/andnich05/CodeEntropyMeter/internal/pipeline"
)

// Meter is the part of the pipeline the server reads from and controls.
type Meter interface {
	Latest() (pipeline.Reading, bool)
	Subscribe(buffer int) (<-chan pipeline.Reading, func())
	Block(dst []int32) []int32
	Config() pipeline.Config
	Reconfigure(cfg pipeline.Config) error
	SetBitUsageMode(mode bitusage.Mode) error
	ResetHolders()
	ResetClip()
	ResetBits()
}

// DeviceCatalog lists capture devices and their sample rates.
type DeviceCatalog interface {
	Devices(ctx context.Context) ([]capture.DeviceInfo, error)
	SupportedSampleRates(ctx context.Context, device string) ([]int, error)
}
