// Package waveform turns raw per-channel ADC traces into calibrated
// voltage/time waveforms, and implements DRS4 spike detection and repair.
package waveform

import (
	"github.com/gaps-collab/tofdaq/internal/tof/calib"
	"github.com/gaps-collab/tofdaq/internal/tof/telemetry"
	"gonum.org/v1/gonum/stat"
)

const (
	// SpikeThresholdRawADC is the spike-filter threshold applied to
	// uncalibrated raw ADC traces.
	SpikeThresholdRawADC = 360.0
	// SpikeThresholdCalibratedMV is the spike-filter threshold applied to
	// calibrated voltage traces.
	SpikeThresholdCalibratedMV = 16.0
	// spikeQuorum is the minimum number of channels (out of 9) that must
	// exceed the threshold at the same sample index for it to count as a
	// real DRS4 spike rather than a single noisy channel.
	spikeQuorum = 2
)

// Waveform is one channel's digitized and (optionally) calibrated trace.
type Waveform struct {
	RBID     int
	Channel  int
	StopCell int
	RawADC   [calib.NumCells]uint16
	Voltages *[calib.NumCells]float64 // nil until calibrated
	Times    *[calib.NumCells]float64 // nil until calibrated
}

// Calibrate applies cal's voltage and timing calibration to w in place.
func (w *Waveform) Calibrate(cal *calib.BoardCalibration) {
	v := cal.VoltageCalibration(w.Channel, w.StopCell, w.RawADC)
	t := cal.TimingCalibration(w.Channel, w.StopCell)
	w.Voltages = &v
	w.Times = &t
}

// baselineLo and baselineHi bound the quiet pre-pulse window used for
// baseline estimation: cells before the trigger pulse arrives, where the
// trace should sit flat around its pedestal.
const (
	baselineLo = 10
	baselineHi = 50
)

// Baseline returns the mean and variance of a calibrated trace's quiet
// pre-pulse window (cells 10..50), used for quality reporting and as a
// reference level prior to spike repair.
func Baseline(voltages [calib.NumCells]float64) (mean, variance float64) {
	return stat.MeanVariance(voltages[baselineLo:baselineHi], nil)
}

// spikeKernel evaluates the DRS4 spike filter at index i:
// -v[i-1] + v[i] + v[i+1] - v[i+2].
func spikeKernel(v []float64, i int) float64 {
	return -v[i-1] + v[i] + v[i+1] - v[i+2]
}

// DetectSpikes runs the spike filter across all nine channels of an
// RBEvent's traces simultaneously (one trace per channel, same length),
// reporting every sample index where at least spikeQuorum channels exceed
// threshold. traces must all have equal length; indices 1..len-3 are
// evaluated since the kernel reads i-1..i+2.
func DetectSpikes(traces [][]float64, threshold float64) []int {
	if len(traces) == 0 {
		return nil
	}
	n := len(traces[0])
	var spikes []int
	for i := 1; i < n-2; i++ {
		count := 0
		for _, tr := range traces {
			if len(tr) != n {
				continue
			}
			if spikeKernel(tr, i) > threshold {
				count++
			}
		}
		if count >= spikeQuorum {
			spikes = append(spikes, i)
		}
	}
	return spikes
}

// RepairSpikes linearly interpolates over samples i and i+1 for every
// detected spike index i, using the values at i-1 and i+2 as endpoints,
// matching the original calibration tool's repair step.
func RepairSpikes(trace []float64, spikes []int) {
	n := len(trace)
	for _, i := range spikes {
		if i+2 >= n || i < 1 {
			telemetry.Ops("waveform: spike at index %d too close to trace boundary, skipping repair", i)
			continue
		}
		dv := (trace[i+2] - trace[i-1]) / 3.0
		trace[i] = trace[i-1] + dv
		trace[i+1] = trace[i-1] + 2*dv
	}
}

// CleanSpikes detects and repairs spikes across a full set of per-channel
// traces in place, using threshold appropriate to whether the traces are
// calibrated voltages (vcalDone=true) or raw ADC counts (vcalDone=false).
func CleanSpikes(traces [][]float64, vcalDone bool) []int {
	threshold := SpikeThresholdRawADC
	if vcalDone {
		threshold = SpikeThresholdCalibratedMV
	}
	spikes := DetectSpikes(traces, threshold)
	if len(spikes) == 0 {
		return nil
	}
	for _, tr := range traces {
		RepairSpikes(tr, spikes)
	}
	telemetry.Diag("waveform: repaired %d spike indices across %d channels", len(spikes), len(traces))
	return spikes
}
