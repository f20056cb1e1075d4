package capture

import (
	"context"
	"slices"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/andnich05/CodeEntropyMeter/internal/errors"
)

const (
	defaultCatalogTTL = 30 * time.Second
	devicesCacheKey   = "devices"
)

// ListFunc enumerates capture devices.
type ListFunc func(ctx context.Context) ([]DeviceInfo, error)

// MalgoLister returns a ListFunc enumerating the devices of backend.
func MalgoLister(backend string) ListFunc {
	return func(context.Context) ([]DeviceInfo, error) {
		return EnumerateDevices(backend)
	}
}

// DeviceCatalog caches device enumeration, which can take a noticeable
// time on some backends.
type DeviceCatalog struct {
	list  ListFunc
	cache *cache.Cache
}

// NewDeviceCatalog returns a catalog caching the results of list for ttl.
// A ttl of zero uses 30 seconds.
func NewDeviceCatalog(list ListFunc, ttl time.Duration) *DeviceCatalog {
	if ttl <= 0 {
		ttl = defaultCatalogTTL
	}
	return &DeviceCatalog{
		list:  list,
		cache: cache.New(ttl, 2*ttl),
	}
}

// Devices returns the capture devices.
func (c *DeviceCatalog) Devices(ctx context.Context) ([]DeviceInfo, error) {
	if cached, ok := c.cache.Get(devicesCacheKey); ok {
		return slices.Clone(cached.([]DeviceInfo)), nil
	}

	devices, err := c.list(ctx)
	if err != nil {
		return nil, err
	}
	c.cache.SetDefault(devicesCacheKey, devices)
	return slices.Clone(devices), nil
}

// SupportedSampleRates returns the standard rates the device accepts. A
// device without native rate restrictions accepts all of them.
func (c *DeviceCatalog) SupportedSampleRates(ctx context.Context, device string) ([]int, error) {
	key := "rates:" + device
	if cached, ok := c.cache.Get(key); ok {
		return slices.Clone(cached.([]int)), nil
	}

	devices, err := c.Devices(ctx)
	if err != nil {
		return nil, err
	}

	idx := slices.IndexFunc(devices, func(d DeviceInfo) bool {
		return d.Name == device || d.ID == device || (device == "" && d.Default)
	})
	if idx < 0 {
		return nil, errors.Newf("no capture device matches %q", device).
			Component("capture").
			Category(errors.CategoryNotFound).
			Context("device", device).
			Build()
	}

	native := devices[idx].NativeRates
	rates := make([]int, 0, len(StandardSampleRates))
	for _, r := range StandardSampleRates {
		if len(native) == 0 || slices.Contains(native, r) {
			rates = append(rates, r)
		}
	}

	c.cache.SetDefault(key, rates)
	return slices.Clone(rates), nil
}

// Invalidate drops all cached results.
func (c *DeviceCatalog) Invalidate() {
	c.cache.Flush()
}
