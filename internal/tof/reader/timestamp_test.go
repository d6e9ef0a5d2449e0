package reader

import "testing"

func TestGetTsFromFilenameRaw(t *testing.T) {
	ts, err := GetTsFromFilename("/data/telemetry/RAW250114_083000.bin")
	if err != nil {
		t.Fatalf("GetTsFromFilename: %v", err)
	}
	if ts.Year() != 2025 || ts.Month() != 1 || ts.Day() != 14 {
		t.Fatalf("unexpected date: %v", ts)
	}
	if ts.Hour() != 8 || ts.Minute() != 30 {
		t.Fatalf("unexpected time: %v", ts)
	}
}

func TestGetTsFromFilenameTof(t *testing.T) {
	ts, err := GetTsFromFilename("Run100_3.250114_083000UTC.tof.gaps")
	if err != nil {
		t.Fatalf("GetTsFromFilename: %v", err)
	}
	if ts.Day() != 14 || ts.Hour() != 8 {
		t.Fatalf("unexpected timestamp: %v", ts)
	}
}

func TestGetTsFromFilenameUnrecognized(t *testing.T) {
	if _, err := GetTsFromFilename("notes.txt"); err == nil {
		t.Fatal("expected error for unrecognized filename")
	}
}

func TestSortByEmbeddedTimestamp(t *testing.T) {
	paths := []string{
		"RAW250114_090000.bin",
		"RAW250114_080000.bin",
		"RAW250114_100000.bin",
	}
	SortByEmbeddedTimestamp(paths)
	want := []string{
		"RAW250114_080000.bin",
		"RAW250114_090000.bin",
		"RAW250114_100000.bin",
	}
	for i := range want {
		if paths[i] != want[i] {
			t.Fatalf("sorted = %v, want %v", paths, want)
		}
	}
}

func TestSortByEmbeddedTimestampUnparseableGoesLast(t *testing.T) {
	paths := []string{"garbage.txt", "RAW250114_080000.bin"}
	SortByEmbeddedTimestamp(paths)
	if paths[0] != "RAW250114_080000.bin" {
		t.Fatalf("expected parseable file first, got %v", paths)
	}
}
