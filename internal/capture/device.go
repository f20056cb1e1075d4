package capture

import (
	"encoding/hex"
	"runtime"
	"slices"
	"strings"

	"github.com/gen2brain/malgo"

	"github.com/andnich05/CodeEntropyMeter/internal/errors"
)

// DeviceInfo describes a capture device.
type DeviceInfo struct {
	Index       int    `json:"index"`
	Name        string `json:"name"`
	ID          string `json:"id"`
	Default     bool   `json:"default"`
	NativeRates []int  `json:"native_rates,omitempty"` // empty if the device accepts any rate
}

// backendFor returns the malgo backend for name, or the platform default
// when name is empty.
func backendFor(name string) (malgo.Backend, error) {
	switch strings.ToLower(name) {
	case "alsa":
		return malgo.BackendAlsa, nil
	case "pulseaudio":
		return malgo.BackendPulseaudio, nil
	case "wasapi":
		return malgo.BackendWasapi, nil
	case "coreaudio":
		return malgo.BackendCoreaudio, nil
	case "null":
		return malgo.BackendNull, nil
	case "":
	default:
		return malgo.BackendNull, errors.Newf("unknown audio backend %q", name).
			Component("capture").
			Category(errors.CategoryConfiguration).
			Context("backend", name).
			Build()
	}

	switch runtime.GOOS {
	case "linux":
		return malgo.BackendAlsa, nil
	case "windows":
		return malgo.BackendWasapi, nil
	case "darwin":
		return malgo.BackendCoreaudio, nil
	default:
		return malgo.BackendNull, errors.Newf("no audio backend for %s", runtime.GOOS).
			Component("capture").
			Category(errors.CategoryAudioSource).
			Context("os", runtime.GOOS).
			Build()
	}
}

// initContext opens a malgo context for the backend name.
func initContext(backendName string) (*malgo.AllocatedContext, error) {
	backend, err := backendFor(backendName)
	if err != nil {
		return nil, err
	}
	ctx, err := malgo.InitContext([]malgo.Backend{backend}, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, errors.New(err).
			Component("capture").
			Category(errors.CategoryAudioSource).
			Context("operation", "init_context").
			Context("backend", backendName).
			Build()
	}
	return ctx, nil
}

func freeContext(ctx *malgo.AllocatedContext) {
	_ = ctx.Uninit()
	ctx.Free()
}

// EnumerateDevices lists the capture devices of the backend.
func EnumerateDevices(backendName string) ([]DeviceInfo, error) {
	ctx, err := initContext(backendName)
	if err != nil {
		return nil, err
	}
	defer freeContext(ctx)

	infos, err := ctx.Devices(malgo.Capture)
	if err != nil {
		return nil, errors.New(err).
			Component("capture").
			Category(errors.CategoryAudioSource).
			Context("operation", "enumerate_devices").
			Build()
	}

	devices := make([]DeviceInfo, 0, len(infos))
	for i := range infos {
		// ALSA lists a null device that discards everything.
		if strings.Contains(infos[i].Name(), "Discard all samples") {
			continue
		}
		devices = append(devices, deviceInfo(i, &infos[i]))
	}
	return devices, nil
}

func deviceInfo(index int, info *malgo.DeviceInfo) DeviceInfo {
	d := DeviceInfo{
		Index:   index,
		Name:    info.Name(),
		ID:      decodeDeviceID(info.ID.String()),
		Default: info.IsDefault == 1,
	}
	for _, f := range info.Formats {
		if f.SampleRate == 0 {
			// Zero means the device converts any rate.
			d.NativeRates = nil
			break
		}
		if rate := int(f.SampleRate); !slices.Contains(d.NativeRates, rate) {
			d.NativeRates = append(d.NativeRates, rate)
		}
	}
	slices.Sort(d.NativeRates)
	return d
}

// selectDevice finds the device matching name: the default for "" or
// "sysdefault", then an exact name, a decoded ID, and a name substring.
func selectDevice(devices []malgo.DeviceInfo, name string) (*malgo.DeviceInfo, error) {
	if name == "" || name == "default" || name == "sysdefault" {
		for i := range devices {
			if devices[i].IsDefault == 1 {
				return &devices[i], nil
			}
		}
		if len(devices) > 0 {
			return &devices[0], nil
		}
	}

	for i := range devices {
		if devices[i].Name() == name {
			return &devices[i], nil
		}
	}
	for i := range devices {
		if decodeDeviceID(devices[i].ID.String()) == name {
			return &devices[i], nil
		}
	}
	for i := range devices {
		if strings.Contains(devices[i].Name(), name) {
			return &devices[i], nil
		}
	}

	return nil, errors.Newf("no capture device matches %q", name).
		Component("capture").
		Category(errors.CategoryNotFound).
		Context("device", name).
		Context("available_devices", len(devices)).
		Build()
}

// decodeDeviceID turns the hex form of a malgo device ID into its text form,
// e.g. ":0,0" for ALSA hardware devices. IDs that are not text stay hex.
func decodeDeviceID(hexID string) string {
	raw, err := hex.DecodeString(hexID)
	if err != nil {
		return hexID
	}
	for _, b := range raw {
		if b < 0x20 || b > 0x7e {
			return hexID
		}
	}
	return string(raw)
}
