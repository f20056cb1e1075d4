// Package buildinfo contains build-time metadata, kept apart from user configuration.
package buildinfo

import (
	"fmt"
	"runtime"
)

// ProductName is shown by the about command and the HTTP API.
const ProductName = "Code Entropy Meter"

// BuildInfo provides an interface for accessing build-time metadata.
type BuildInfo interface {
	// GetVersion returns the build version string
	GetVersion() string
	// GetBuildDate returns the build date string
	GetBuildDate() string
}

// Context contains build-time metadata injected at startup through ldflags.
type Context struct {
	// Version holds the Git version tag from build
	Version string

	// BuildDate is the time when the binary was built
	BuildDate string
}

// GetVersion implements BuildInfo.GetVersion
func (c *Context) GetVersion() string {
	if c == nil || c.Version == "" {
		return "unknown"
	}
	return c.Version
}

// GetBuildDate implements BuildInfo.GetBuildDate
func (c *Context) GetBuildDate() string {
	if c == nil || c.BuildDate == "" {
		return "unknown"
	}
	return c.BuildDate
}

// String returns the product banner, e.g. "Code Entropy Meter 1.00 (built 2024-01-01, go1.26 linux/amd64)".
func (c *Context) String() string {
	return fmt.Sprintf("%s %s (built %s, %s %s/%s)",
		ProductName, c.GetVersion(), c.GetBuildDate(), runtime.Version(), runtime.GOOS, runtime.GOARCH)
}
