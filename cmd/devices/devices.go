// Package devices implements the command that lists capture devices.
package devices

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/andnich05/CodeEntropyMeter/internal/capture"
	"github.com/andnich05/CodeEntropyMeter/internal/conf"
)

// Command creates the devices command.
func Command(settings *conf.Settings) *cobra.Command {
	var withRates bool

	cmd := &cobra.Command{
		Use:   "devices",
		Short: "List audio capture devices",
		Long:  "Lists the capture devices of the configured backend, optionally with the standard sample rates each one accepts.",
		RunE: func(cmd *cobra.Command, args []string) error {
			catalog := capture.NewDeviceCatalog(capture.MalgoLister(settings.Audio.Backend), 0)
			return List(cmd.Context(), cmd.OutOrStdout(), catalog, withRates)
		},
	}

	cmd.Flags().BoolVar(&withRates, "rates", false, "Also list the supported sample rates")

	return cmd
}

// Catalog is the device source used by List.
type Catalog interface {
	Devices(ctx context.Context) ([]capture.DeviceInfo, error)
	SupportedSampleRates(ctx context.Context, device string) ([]int, error)
}

// List writes one line per device to w. The default device is marked with
// an asterisk.
func List(ctx context.Context, w io.Writer, catalog Catalog, withRates bool) error {
	devices, err := catalog.Devices(ctx)
	if err != nil {
		return err
	}
	if len(devices) == 0 {
		_, err := fmt.Fprintln(w, "No capture devices found")
		return err
	}

	p := message.NewPrinter(language.English)
	for _, d := range devices {
		mark := " "
		if d.Default {
			mark = "*"
		}
		if _, err := p.Fprintf(w, "%s %2d: %s (%s)\n", mark, d.Index, d.Name, d.ID); err != nil {
			return err
		}
		if !withRates {
			continue
		}

		rates, err := catalog.SupportedSampleRates(ctx, d.ID)
		if err != nil {
			if _, err := p.Fprintf(w, "       sample rates unavailable: %v\n", err); err != nil {
				return err
			}
			continue
		}
		formatted := make([]string, len(rates))
		for i, r := range rates {
			formatted[i] = p.Sprintf("%d", r)
		}
		if _, err := p.Fprintf(w, "       %s Hz\n", strings.Join(formatted, ", ")); err != nil {
			return err
		}
	}
	return nil
}
