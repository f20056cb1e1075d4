package main

import (
	"os"

	"github.com/andnich05/CodeEntropyMeter/cmd"
	"github.com/andnich05/CodeEntropyMeter/internal/buildinfo"
)

// Set at build time with
// -ldflags "-X main.version=1.00 -X main.buildDate=$(date -u +%Y-%m-%d)".
var (
	version   = "dev"
	buildDate = ""
)

func main() {
	build := &buildinfo.Context{Version: version, BuildDate: buildDate}
	if err := cmd.RootCommand(build).Execute(); err != nil {
		os.Exit(1)
	}
}
