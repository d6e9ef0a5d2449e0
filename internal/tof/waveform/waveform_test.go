package waveform

import (
	"testing"

	"github.com/gaps-collab/tofdaq/internal/tof/calib"
)

func flatCalibration() *calib.BoardCalibration {
	b := &calib.BoardCalibration{RBID: 1}
	for ch := 0; ch < calib.NumChannels; ch++ {
		for cell := 0; cell < calib.NumCells; cell++ {
			b.Offset[ch][cell] = 10
			b.Dip[ch][cell] = 0
			b.Gain[ch][cell] = 1
			b.TBin[ch][cell] = 0.5
		}
	}
	return b
}

func TestCalibrateAppliesIdentity(t *testing.T) {
	cal := flatCalibration()
	w := &Waveform{RBID: 1, Channel: 0, StopCell: 3}
	for i := range w.RawADC {
		w.RawADC[i] = 20
	}
	w.Calibrate(cal)
	if w.Voltages == nil || w.Times == nil {
		t.Fatal("expected Voltages and Times to be populated")
	}
	for _, v := range w.Voltages {
		if v != 10 { // (20 - 10 - 0) * 1
			t.Fatalf("voltage = %v, want 10", v)
		}
	}
}

func TestDetectSpikesRequiresQuorum(t *testing.T) {
	n := 20
	makeFlat := func() []float64 {
		tr := make([]float64, n)
		for i := range tr {
			tr[i] = 0
		}
		return tr
	}

	// Only one channel spikes: should not be reported.
	traces := make([][]float64, 9)
	for i := range traces {
		traces[i] = makeFlat()
	}
	traces[0][10] = 1000 // kernel at i=10 exceeds the raw threshold for channel 0 only

	spikes := DetectSpikes(traces, SpikeThresholdRawADC)
	if len(spikes) != 0 {
		t.Fatalf("expected no spikes with only one channel affected, got %v", spikes)
	}

	// Two channels spike at the same index: should be reported.
	traces[1][10] = 1000
	spikes = DetectSpikes(traces, SpikeThresholdRawADC)
	found := false
	for _, s := range spikes {
		if s == 10 {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected spike at index 10 with quorum met, got %v", spikes)
	}
}

func TestRepairSpikesInterpolates(t *testing.T) {
	// Spike at cells 200/201, repaired from neighbors 199/202.
	trace := make([]float64, 210)
	trace[199] = 5
	trace[200] = 25 // +20 mV spike
	trace[201] = 25
	trace[202] = 8
	RepairSpikes(trace, []int{200})
	dv := (trace[202] - 5) / 3.0
	if trace[200] != 5+dv {
		t.Errorf("trace[200] = %v, want %v", trace[200], 5+dv)
	}
	if trace[201] != 5+2*dv {
		t.Errorf("trace[201] = %v, want %v", trace[201], 5+2*dv)
	}
}

func TestRepairSpikesIsIdempotent(t *testing.T) {
	trace := make([]float64, 210)
	trace[199] = 5
	trace[200] = 25
	trace[201] = 25
	trace[202] = 8
	RepairSpikes(trace, []int{200})
	once := append([]float64(nil), trace...)
	RepairSpikes(trace, []int{200})
	for i := range trace {
		if trace[i] != once[i] {
			t.Fatalf("repair not idempotent at cell %d: %v != %v", i, trace[i], once[i])
		}
	}
}

func TestCleanSpikesNoOpWhenClean(t *testing.T) {
	traces := make([][]float64, 9)
	for i := range traces {
		traces[i] = make([]float64, 20)
	}
	spikes := CleanSpikes(traces, true)
	if spikes != nil {
		t.Fatalf("expected no spikes in a flat trace set, got %v", spikes)
	}
}

func TestBaselineMeanVariance(t *testing.T) {
	var v [calib.NumCells]float64
	for i := baselineLo; i < baselineHi; i++ {
		v[i] = float64(i - baselineLo)
	}
	mean, variance := Baseline(v)
	wantMean := float64(baselineHi-baselineLo-1) / 2.0
	if mean != wantMean {
		t.Errorf("mean = %v, want %v", mean, wantMean)
	}
	if variance <= 0 {
		t.Errorf("variance = %v, want > 0", variance)
	}
}
