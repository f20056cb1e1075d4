// Package sysinfo reports the host, CPU and process resources the meter runs on.
package sysinfo

import (
	"context"
	"os"
	"runtime"
	"time"

	"github.com/klauspost/cpuid/v2"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"

	"github.com/andnich05/CodeEntropyMeter/internal/errors"
)

var startTime = time.Now()

// CPU contains information about the processor.
type CPU struct {
	Brand         string `json:"brand"`
	Vendor        string `json:"vendor"`
	PhysicalCores int    `json:"physical_cores"` // 0 if undetectable
	LogicalCores  int    `json:"logical_cores"`
	NumCPU        int    `json:"num_cpu"` // CPUs usable by this process
}

// Host contains information about the operating system.
type Host struct {
	Hostname        string `json:"hostname"`
	OS              string `json:"os"`
	Architecture    string `json:"architecture"`
	Platform        string `json:"platform"`
	PlatformVersion string `json:"platform_version"`
	KernelVersion   string `json:"kernel_version"`
	Uptime          uint64 `json:"uptime_seconds"`
}

// Resources contains memory usage of the host and of this process.
type Resources struct {
	MemoryTotal uint64  `json:"memory_total"`
	MemoryUsed  uint64  `json:"memory_used"`
	MemoryUsage float64 `json:"memory_usage_percent"`
	ProcessRSS  uint64  `json:"process_rss"`
	ProcessCPU  float64 `json:"process_cpu_percent"`
}

// Info is the combined system report.
type Info struct {
	Host      Host      `json:"host"`
	CPU       CPU       `json:"cpu"`
	Resources Resources `json:"resources"`
	GoVersion string    `json:"go_version"`
	AppUptime float64   `json:"app_uptime_seconds"`
}

// GetCPU returns the processor description detected by cpuid.
func GetCPU() CPU {
	return CPU{
		Brand:         cpuid.CPU.BrandName,
		Vendor:        cpuid.CPU.VendorString,
		PhysicalCores: cpuid.CPU.PhysicalCores,
		LogicalCores:  cpuid.CPU.LogicalCores,
		NumCPU:        runtime.NumCPU(),
	}
}

// Collect gathers the full report. Sections that cannot be read are left
// zero and their errors are joined into the returned error.
func Collect(ctx context.Context) (Info, error) {
	info := Info{
		CPU:       GetCPU(),
		GoVersion: runtime.Version(),
		AppUptime: time.Since(startTime).Seconds(),
		Host: Host{
			OS:           runtime.GOOS,
			Architecture: runtime.GOARCH,
		},
	}

	var errs []error

	if h, err := host.InfoWithContext(ctx); err != nil {
		errs = append(errs, wrap(err, "host_info"))
	} else {
		info.Host.Hostname = h.Hostname
		info.Host.Platform = h.Platform
		info.Host.PlatformVersion = h.PlatformVersion
		info.Host.KernelVersion = h.KernelVersion
		info.Host.Uptime = h.Uptime
	}

	if vm, err := mem.VirtualMemoryWithContext(ctx); err != nil {
		errs = append(errs, wrap(err, "virtual_memory"))
	} else {
		info.Resources.MemoryTotal = vm.Total
		info.Resources.MemoryUsed = vm.Used
		info.Resources.MemoryUsage = vm.UsedPercent
	}

	proc, err := process.NewProcessWithContext(ctx, int32(os.Getpid()))
	if err != nil {
		errs = append(errs, wrap(err, "process"))
		return info, errors.Join(errs...)
	}
	if mi, err := proc.MemoryInfoWithContext(ctx); err != nil {
		errs = append(errs, wrap(err, "process_memory"))
	} else {
		info.Resources.ProcessRSS = mi.RSS
	}
	if cpu, err := proc.CPUPercentWithContext(ctx); err != nil {
		errs = append(errs, wrap(err, "process_cpu"))
	} else {
		info.Resources.ProcessCPU = cpu
	}

	return info, errors.Join(errs...)
}

func wrap(err error, operation string) error {
	return errors.New(err).
		Component("sysinfo").
		Category(errors.CategoryResource).
		Context("operation", operation).
		Build()
}
