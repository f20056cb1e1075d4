// Package display renders the latest reading as a single console line.
package display

import (
	"context"
	"fmt"
	"io"
	"math"
	"strings"
	"time"

	"github.com/andnich05/CodeEntropyMeter/internal/errors"
	"github.com/andnich05/CodeEntropyMeter/internal/meter"
	"github.com/andnich05/CodeEntropyMeter/internal/pipeline"
)

const (
	barFloorDB = -60.0
	barWidth   = 20

	bitOn  = '●'
	bitOff = '○'

	clearLine  = "\r\x1b[K"
	hideCursor = "\x1b[?25l"
	showCursor = "\x1b[?25h"
)

// ReadingSource provides the most recent reading.
type ReadingSource interface {
	Latest() (pipeline.Reading, bool)
}

// Renderer redraws the meter line at a fixed interval.
type Renderer struct {
	w        io.Writer
	source   ReadingSource
	interval time.Duration
	spinner  *spinner
	lastSeq  uint64
	showing  bool // a reading is on screen
	drawn    bool
}

// NewRenderer returns a renderer writing to w every interval.
func NewRenderer(w io.Writer, source ReadingSource, interval time.Duration) (*Renderer, error) {
	if interval <= 0 {
		return nil, errors.Newf("display interval must be positive").
			Component("display").
			Category(errors.CategoryConfiguration).
			Context("interval", interval.String()).
			Build()
	}
	return &Renderer{w: w, source: source, interval: interval, spinner: newSpinner()}, nil
}

// Run draws until ctx is cancelled and ends the line on return.
func (r *Renderer) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if r.drawn {
				_, err := io.WriteString(r.w, showCursor+"\n")
				return err
			}
			return nil
		case <-ticker.C:
			if err := r.draw(); err != nil {
				return err
			}
		}
	}
}

// draw shows the latest reading, or a spinner until the first one arrives.
func (r *Renderer) draw() error {
	rd, ok := r.source.Latest()
	if !ok {
		return r.write(r.spinner.next() + " waiting for audio")
	}
	if r.showing && rd.Sequence == r.lastSeq {
		return nil
	}
	if err := r.write(FormatReading(rd)); err != nil {
		return err
	}
	r.lastSeq = rd.Sequence
	r.showing = true
	return nil
}

func (r *Renderer) write(line string) error {
	prefix := clearLine
	if !r.drawn {
		prefix = hideCursor + clearLine
	}
	if _, err := io.WriteString(r.w, prefix+line); err != nil {
		return err
	}
	r.drawn = true
	return nil
}

// FormatReading renders rd as one line: both meters with bar and holder,
// the crest factor and its held maximum, the active bits from MSB to LSB and
// the entropy. The peak meter shows CLIP until the clip indicator is reset.
func FormatReading(rd pipeline.Reading) string {
	var sb strings.Builder
	sb.WriteString(formatMeter("PK ", rd.Peak, rd.ClipHeld))
	sb.WriteString(" | ")
	sb.WriteString(formatMeter("RMS", rd.RMS, rd.RMS.Clipped))
	fmt.Fprintf(&sb, " | CF %s dB max %s | ", formatCrest(rd.CrestFactor), formatCrest(rd.MaxCrestFactor))
	sb.WriteString(rd.Bits.Format(rd.BitDepth, bitOn, bitOff))
	sb.WriteString(" | ")
	sb.WriteString(formatEntropy(rd))
	return sb.String()
}

func formatMeter(label string, res meter.Result, clipped bool) string {
	clip := "    "
	if clipped {
		clip = "CLIP"
	}
	return fmt.Sprintf("%s %s [%s] hold %s %s",
		label, formatDB(res.Meter), bar(res.Meter), formatDB(res.Holder), clip)
}

func formatEntropy(rd pipeline.Reading) string {
	value := "  --.--"
	if rd.LastEntropy != nil {
		value = fmt.Sprintf("%7.3f", *rd.LastEntropy)
	}
	return fmt.Sprintf("H %s/%.0f bit %3d/%d (%.0f ms)",
		value, rd.EntropyMax, rd.EntropyProgress, rd.EntropyWindow, rd.IntegrationMs)
}

func formatCrest(db float64) string {
	if db <= meter.SilenceDB {
		return "  --"
	}
	return fmt.Sprintf("%5.1f", db)
}

// formatDB prints levels at or below the silence sentinel as -inf.
func formatDB(db float64) string {
	if db <= meter.SilenceDB {
		return "  -inf"
	}
	return fmt.Sprintf("%6.1f", db)
}

// bar fills barWidth cells proportionally between -60 dBFS and 0 dBFS.
func bar(db float64) string {
	frac := (db - barFloorDB) / -barFloorDB
	filled := int(math.Round(min(max(frac, 0), 1) * barWidth))
	return strings.Repeat("#", filled) + strings.Repeat("-", barWidth-filled)
}
