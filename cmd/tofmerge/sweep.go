package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gaps-collab/tofdaq/internal/tof/event"
	"github.com/gaps-collab/tofdaq/internal/tof/frame"
	"github.com/gaps-collab/tofdaq/internal/tof/telemetry"
)

// sweepRun performs the second pass: re-read every subrun file the main
// pass wrote under runDir, splice in whatever telemetry the skew buffers
// still hold into a rewritten clean/ directory, and once the sweep
// succeeds in full remove the pre-sweep subrun files, leaving clean/ as
// the run's output.
func sweepRun(runDir string, runID int, earlier, later map[uint32]event.Packet) error {
	if len(earlier) == 0 && len(later) == 0 {
		return nil
	}

	matches, err := filepath.Glob(filepath.Join(runDir, fmt.Sprintf("%d_*.gaps", runID)))
	if err != nil {
		return err
	}
	readers := make([]*frame.Reader, 0, len(matches))
	for _, m := range matches {
		r, err := frame.Open(m)
		if err != nil {
			return fmt.Errorf("sweep: %s: %w", m, err)
		}
		defer r.Close()
		readers = append(readers, r)
	}

	cleanDir := filepath.Join(runDir, "clean")
	writer, err := frame.NewWriter(cleanDir, runID, 0, frame.CodecZstd)
	if err != nil {
		return err
	}

	src := newFrameReaderSource(readers)
	sink := newWriterSink(writer, func(p event.Packet) bool { return false })

	spliced, err := event.Sweep(src, sink, earlier, later)
	writer.Close()
	if err != nil {
		os.RemoveAll(cleanDir)
		return err
	}
	for _, m := range matches {
		if err := os.Remove(m); err != nil {
			return fmt.Errorf("sweep: removing pre-sweep file: %w", err)
		}
	}
	telemetry.Diag("sweep: spliced %d cached telemetry packet(s) into %s", spliced, cleanDir)
	return nil
}
