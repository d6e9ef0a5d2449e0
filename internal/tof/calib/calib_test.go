package calib

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func makeBoard(rbID int) *BoardCalibration {
	b := &BoardCalibration{RBID: rbID}
	for ch := 0; ch < NumChannels; ch++ {
		for cell := 0; cell < NumCells; cell++ {
			b.Offset[ch][cell] = float64(100 + cell%7)
			b.Dip[ch][cell] = 0.5
			b.Gain[ch][cell] = 0.0009765625
			b.TBin[ch][cell] = 0.48828125
		}
	}
	return b
}

func TestSaveLoadRoundTrip(t *testing.T) {
	want := makeBoard(42)

	var buf bytes.Buffer
	if err := Save(&buf, want); err != nil {
		t.Fatalf("Save: %v", err)
	}

	dir := t.TempDir()
	path := filepath.Join(dir, "rb42.txt")
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}

	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.RBID != want.RBID {
		t.Errorf("RBID = %d, want %d", got.RBID, want.RBID)
	}
	if got.Offset != want.Offset {
		t.Error("Offset table mismatch after round-trip")
	}
	// Save writes gain with four decimals, so makeBoard's 0.0009765625
	// reads back as 0.0010.
	for ch := 0; ch < NumChannels; ch++ {
		for cell := 0; cell < NumCells; cell++ {
			if got.Gain[ch][cell] != 0.001 {
				t.Fatalf("Gain[%d][%d] = %v after round-trip, want 0.001", ch, cell, got.Gain[ch][cell])
			}
		}
	}
}

func TestValidateRejectsNonPositiveTBin(t *testing.T) {
	b := makeBoard(1)
	b.TBin[3][10] = 0
	if err := b.Validate(); err == nil {
		t.Fatal("expected Validate to reject a zero t-bin width")
	}
}

func TestValidateRejectsZeroGain(t *testing.T) {
	b := makeBoard(1)
	b.Gain[0][0] = 0
	if err := b.Validate(); err == nil {
		t.Fatal("expected Validate to reject zero gain")
	}
}

func TestVoltageCalibrationIdentity(t *testing.T) {
	b := makeBoard(5)
	var raw [NumCells]uint16
	for i := range raw {
		raw[i] = 2000
	}
	stopCell := 100
	got := b.VoltageCalibration(0, stopCell, raw)

	rolledOffset := rollOffset(b.Offset[0], stopCell)
	for i := 0; i < NumCells; i++ {
		want := (float64(raw[i]) - rolledOffset[i] - b.Dip[0][i]) * b.Gain[0][i]
		if got[i] != want {
			t.Fatalf("cell %d: got %v want %v", i, got[i], want)
		}
	}
}

func TestTimingCalibrationIsCumulative(t *testing.T) {
	b := makeBoard(5)
	times := b.TimingCalibration(2, 0)
	if times[0] != 0 {
		t.Errorf("times[0] = %v, want 0", times[0])
	}
	for i := 1; i < NumCells; i++ {
		if times[i] <= times[i-1] {
			t.Fatalf("times must be strictly increasing: times[%d]=%v times[%d]=%v", i-1, times[i-1], i, times[i])
		}
	}
}

func TestLoadDirectorySkipsUnparseable(t *testing.T) {
	dir := t.TempDir()
	var buf bytes.Buffer
	Save(&buf, makeBoard(7))
	os.WriteFile(filepath.Join(dir, "rb7.txt"), buf.Bytes(), 0o644)
	os.WriteFile(filepath.Join(dir, "rb8.txt"), []byte("garbage\n"), 0o644)

	boards, err := LoadDirectory(dir)
	if err != nil {
		t.Fatalf("LoadDirectory: %v", err)
	}
	if _, ok := boards[7]; !ok {
		t.Error("expected rb7 to load successfully")
	}
	if _, ok := boards[8]; ok {
		t.Error("expected rb8 to be skipped")
	}
}
