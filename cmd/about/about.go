// Package about implements the command that prints version, copyright and
// platform information.
package about

import (
	"context"
	"embed"
	"fmt"
	"io"
	"io/fs"

	"github.com/labstack/gommon/bytes"
	"github.com/spf13/cobra"

	"github.com/andnich05/CodeEntropyMeter/internal/buildinfo"
	"github.com/andnich05/CodeEntropyMeter/internal/sysinfo"
)

//go:embed NOTICE
var noticeFile embed.FS

// Command creates the about command.
func Command(build *buildinfo.Context) *cobra.Command {
	var withSystem bool

	cmd := &cobra.Command{
		Use:   "about",
		Short: "Print version, copyright and license",
		RunE: func(cmd *cobra.Command, args []string) error {
			return Write(cmd.Context(), cmd.OutOrStdout(), build, withSystem)
		},
	}

	cmd.Flags().BoolVar(&withSystem, "system", false, "Also print host and CPU information")

	return cmd
}

// Write prints the about text to w.
func Write(ctx context.Context, w io.Writer, build *buildinfo.Context, withSystem bool) error {
	notice, err := fs.ReadFile(noticeFile, "NOTICE")
	if err != nil {
		return err
	}

	if _, err := fmt.Fprintf(w, "%s\n\n%s", build.String(), notice); err != nil {
		return err
	}
	if !withSystem {
		return nil
	}

	// Sections that could not be read are printed empty.
	info, _ := sysinfo.Collect(ctx)
	_, err = fmt.Fprintf(w, "\nCPU:    %s (%s), %d physical / %d logical cores\n"+
		"Host:   %s, %s %s (%s/%s), kernel %s\n"+
		"Memory: %s total, %s used\n",
		info.CPU.Brand, info.CPU.Vendor, info.CPU.PhysicalCores, info.CPU.LogicalCores,
		info.Host.Hostname, info.Host.Platform, info.Host.PlatformVersion, info.Host.OS, info.Host.Architecture, info.Host.KernelVersion,
		bytes.Format(int64(info.Resources.MemoryTotal)), bytes.Format(int64(info.Resources.MemoryUsed)))
	return err
}
