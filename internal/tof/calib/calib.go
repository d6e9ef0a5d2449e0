// Package calib implements the DRS4 per-cell voltage and timing
// calibration store: the 36-line text format (9 channels x 4 table rows)
// and the calibration identity used to turn raw ADC counts into
// millivolts and cumulative nanoseconds.
package calib

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/gaps-collab/tofdaq/internal/tof/telemetry"
)

const (
	NumChannels = 9
	NumCells    = 1024
)

// TableKind selects one of the four per-channel calibration rows.
type TableKind int

const (
	TableOffset TableKind = iota
	TableDip
	TableGain
	TableTBin
)

// BoardCalibration holds all four calibration tables for every channel of
// one readout board.
type BoardCalibration struct {
	RBID   int
	Offset [NumChannels][NumCells]float64
	Dip    [NumChannels][NumCells]float64
	Gain   [NumChannels][NumCells]float64
	TBin   [NumChannels][NumCells]float64
}

// Validate enforces the calibration invariants: all tables present (by
// construction), T-bin widths strictly positive, gains non-zero.
func (b *BoardCalibration) Validate() error {
	for ch := 0; ch < NumChannels; ch++ {
		for cell := 0; cell < NumCells; cell++ {
			if b.TBin[ch][cell] <= 0 {
				return fmt.Errorf("calib: rb%d channel %d cell %d has non-positive t-bin width %g", b.RBID, ch, cell, b.TBin[ch][cell])
			}
			if b.Gain[ch][cell] == 0 {
				return fmt.Errorf("calib: rb%d channel %d cell %d has zero gain", b.RBID, ch, cell)
			}
		}
	}
	return nil
}

// Load reads one board's calibration file: 9*4 = 36 lines, one row per
// (channel, table-kind) pair in the order offset, dip, gain, t-bin,
// repeated for channels 0..8, each row holding 1024 whitespace-separated
// floats.
func Load(path string) (*BoardCalibration, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	rbID := rbIDFromFilename(path)
	b := &BoardCalibration{RBID: rbID}

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	lineNo := 0
	for ch := 0; ch < NumChannels; ch++ {
		for _, kind := range []TableKind{TableOffset, TableDip, TableGain, TableTBin} {
			if !scanner.Scan() {
				return nil, fmt.Errorf("calib: %s: truncated at line %d (channel %d, table %d)", path, lineNo, ch, kind)
			}
			lineNo++
			row, err := parseRow(scanner.Text())
			if err != nil {
				return nil, fmt.Errorf("calib: %s: line %d: %w", path, lineNo, err)
			}
			switch kind {
			case TableOffset:
				b.Offset[ch] = row
			case TableDip:
				b.Dip[ch] = row
			case TableGain:
				b.Gain[ch] = row
			case TableTBin:
				b.TBin[ch] = row
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	telemetry.Diag("calib: loaded rb%d from %s", rbID, path)
	return b, nil
}

func parseRow(line string) ([NumCells]float64, error) {
	var row [NumCells]float64
	fields := strings.Fields(line)
	if len(fields) != NumCells {
		return row, fmt.Errorf("expected %d values, got %d", NumCells, len(fields))
	}
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return row, fmt.Errorf("cell %d: %w", i, err)
		}
		row[i] = v
	}
	return row, nil
}

// Save writes b back out in the same 36-line format Load reads, matching
// the original calibration tool's per-field precision: integer offsets,
// one decimal for the dip, four decimals for gain and t-bin.
func Save(w io.Writer, b *BoardCalibration) error {
	bw := bufio.NewWriter(w)
	writeRow := func(row [NumCells]float64, format string) error {
		parts := make([]string, NumCells)
		for i, v := range row {
			parts[i] = fmt.Sprintf(format, v)
		}
		if _, err := bw.WriteString(strings.Join(parts, " ") + "\n"); err != nil {
			return err
		}
		return nil
	}
	for ch := 0; ch < NumChannels; ch++ {
		if err := writeRow(b.Offset[ch], "%.0f"); err != nil {
			return err
		}
		if err := writeRow(b.Dip[ch], "%.1f"); err != nil {
			return err
		}
		if err := writeRow(b.Gain[ch], "%.4f"); err != nil {
			return err
		}
		if err := writeRow(b.TBin[ch], "%.4f"); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// LoadDirectory loads every *.txt calibration file in dir, keyed by the
// readout-board id parsed from each filename.
func LoadDirectory(dir string) (map[int]*BoardCalibration, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	out := make(map[int]*BoardCalibration)
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".txt" {
			continue
		}
		path := filepath.Join(dir, e.Name())
		b, err := Load(path)
		if err != nil {
			telemetry.Ops("calib: skipping %s: %v", path, err)
			continue
		}
		out[b.RBID] = b
	}
	return out, nil
}

var rbIDPattern = regexp.MustCompile(`(\d+)`)

func rbIDFromFilename(path string) int {
	base := filepath.Base(path)
	m := rbIDPattern.FindString(base)
	id, _ := strconv.Atoi(m)
	return id
}

// rollOffset cyclically rotates an offset table row by the stop cell, as
// the firmware's ring buffer addressing requires: cell i of the returned
// row corresponds to physical capacitor (i+stopCell) mod NumCells.
func rollOffset(row [NumCells]float64, stopCell int) [NumCells]float64 {
	var out [NumCells]float64
	for i := 0; i < NumCells; i++ {
		out[i] = row[(i+stopCell)%NumCells]
	}
	return out
}

// VoltageCalibration applies the calibration identity
// voltage = (raw_adc - rolled_offset - dip) * gain
// for one channel's trace, given the stop cell.
func (b *BoardCalibration) VoltageCalibration(channel int, stopCell int, raw [NumCells]uint16) [NumCells]float64 {
	rolledOffset := rollOffset(b.Offset[channel], stopCell)
	var out [NumCells]float64
	for i := 0; i < NumCells; i++ {
		out[i] = (float64(raw[i]) - rolledOffset[i] - b.Dip[channel][i]) * b.Gain[channel][i]
	}
	return out
}

// TimingCalibration returns cumulative sample times in nanoseconds for one
// channel's trace, built from the cyclically-rotated t-bin widths.
func (b *BoardCalibration) TimingCalibration(channel int, stopCell int) [NumCells]float64 {
	rolled := rollOffset(b.TBin[channel], stopCell)
	var out [NumCells]float64
	var sum float64
	for i := 0; i < NumCells; i++ {
		out[i] = sum
		sum += rolled[i]
	}
	return out
}
