// Command tofmerge runs the dual-stream event merger end to end: it reads
// a telemetry packet directory and a TOF packet directory for one run,
// joins them by event-id, and writes the merged frames to an output run
// directory, finishing with the second-pass sweep that splices in any
// telemetry that arrived out of order relative to the TOF driver.
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/gaps-collab/tofdaq/internal/security"
	"github.com/gaps-collab/tofdaq/internal/tof/calib"
	"github.com/gaps-collab/tofdaq/internal/tof/config"
	"github.com/gaps-collab/tofdaq/internal/tof/event"
	"github.com/gaps-collab/tofdaq/internal/tof/frame"
	"github.com/gaps-collab/tofdaq/internal/tof/metrics"
	"github.com/gaps-collab/tofdaq/internal/tof/reader"
	"github.com/gaps-collab/tofdaq/internal/tof/store"
	"github.com/gaps-collab/tofdaq/internal/tof/telemetry"
	"github.com/gaps-collab/tofdaq/internal/version"
)

const (
	exitOK             = 0
	exitConfigError    = 1
	exitIOError        = 2
	exitBufferOverflow = 3
)

type flags struct {
	startTime    string
	endTime      string
	outdir       string
	reprocess    bool
	verbose      bool
	metricsAddr  string
	indexDB      string
	noIndexCache bool
	tuningPath   string
	showVersion  bool
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("tofmerge", flag.ContinueOnError)
	f := flags{}
	fs.StringVar(&f.startTime, "start-time", "", "only merge files whose filename timestamp is at or after this RFC3339 time")
	fs.StringVar(&f.endTime, "end-time", "", "only merge files whose filename timestamp is before this RFC3339 time")
	fs.StringVar(&f.outdir, "outdir", ".", "output run directory")
	fs.BoolVar(&f.reprocess, "reprocess", false, "run the waveform processor on every TOF event before writing")
	fs.BoolVar(&f.verbose, "verbose", false, "enable diag/trace logging")
	fs.StringVar(&f.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address for the run's duration")
	fs.StringVar(&f.indexDB, "index-db", "", "path to the Index Store database (default <outdir>/.tofindex.db)")
	fs.BoolVar(&f.noIndexCache, "no-index-cache", false, "disable the packet-index cache; always full-scan")
	fs.StringVar(&f.tuningPath, "tuning", "", "path to a JSON tuning config overriding the defaults")
	fs.BoolVar(&f.showVersion, "version", false, "print version information and exit")
	if err := fs.Parse(args); err != nil {
		return exitConfigError
	}

	if f.showVersion {
		fmt.Printf("tofmerge %s (%s, built %s)\n", version.Version, version.GitSHA, version.BuildTime)
		return exitOK
	}

	if fs.NArg() != 3 {
		fmt.Fprintln(os.Stderr, "usage: tofmerge [flags] <telemetry-dir> <tof-dir> <run-id>")
		return exitConfigError
	}
	telemetryDir, tofDir, runIDStr := fs.Arg(0), fs.Arg(1), fs.Arg(2)
	runID, err := strconv.Atoi(runIDStr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "tofmerge: invalid run id %q\n", runIDStr)
		return exitConfigError
	}

	if f.verbose {
		telemetry.SetWriters(os.Stderr, os.Stderr, os.Stderr)
	} else {
		telemetry.SetWriters(os.Stderr, nil, nil)
	}

	cfg := config.Default()
	if f.tuningPath != "" {
		loaded, err := config.Load(f.tuningPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "tofmerge: %v\n", err)
			return exitConfigError
		}
		cfg = loaded
	}

	var startAfter, endBefore time.Time
	if f.startTime != "" {
		if startAfter, err = time.Parse(time.RFC3339, f.startTime); err != nil {
			fmt.Fprintf(os.Stderr, "tofmerge: bad --start-time: %v\n", err)
			return exitConfigError
		}
	}
	if f.endTime != "" {
		if endBefore, err = time.Parse(time.RFC3339, f.endTime); err != nil {
			fmt.Fprintf(os.Stderr, "tofmerge: bad --end-time: %v\n", err)
			return exitConfigError
		}
	}

	telemetryFiles, err := globFiltered(telemetryDir, "RAW*.bin", startAfter, endBefore)
	if err != nil {
		fmt.Fprintf(os.Stderr, "tofmerge: %v\n", err)
		return exitIOError
	}
	tofFiles, err := globFiltered(tofDir, fmt.Sprintf("Run%d_*.tof.gaps", runID), startAfter, endBefore)
	if err != nil {
		fmt.Fprintf(os.Stderr, "tofmerge: %v\n", err)
		return exitIOError
	}
	if len(tofFiles) == 0 {
		fmt.Fprintf(os.Stderr, "tofmerge: no TOF packet files found for run %d in %s\n", runID, tofDir)
		return exitConfigError
	}

	var idxDB *store.DB
	if !f.noIndexCache && *cfg.IndexCacheEnabled {
		dbPath := f.indexDB
		if dbPath == "" {
			dbPath = filepath.Join(f.outdir, ".tofindex.db")
		} else if err := security.ValidatePathWithinDirectory(dbPath, f.outdir); err != nil {
			fmt.Fprintf(os.Stderr, "tofmerge: --index-db: %v\n", err)
			return exitConfigError
		}
		if err := os.MkdirAll(f.outdir, 0o755); err != nil {
			fmt.Fprintf(os.Stderr, "tofmerge: %v\n", err)
			return exitIOError
		}
		idxDB, err = store.Open(dbPath)
		if err != nil {
			telemetry.Ops("tofmerge: index cache unavailable, falling back to full scans: %v", err)
		} else {
			defer idxDB.Close()
		}
	}

	tofOpened, err := reader.OpenSorted(tofFiles)
	if err != nil {
		fmt.Fprintf(os.Stderr, "tofmerge: %v\n", err)
		return exitIOError
	}
	tellyOpened, err := reader.OpenSorted(telemetryFiles)
	if err != nil {
		fmt.Fprintf(os.Stderr, "tofmerge: %v\n", err)
		return exitIOError
	}

	tofSrc := event.Source(newPacketSource(tofOpened, idxDB))
	tellySrc := event.Source(newTelemetrySource(tellyOpened))

	if f.reprocess {
		calibDir := filepath.Join(tofDir, "calib")
		if err := security.ValidatePathWithinDirectory(calibDir, tofDir); err != nil {
			fmt.Fprintf(os.Stderr, "tofmerge: %v\n", err)
			return exitConfigError
		}
		cal, err := calib.LoadDirectory(calibDir)
		if err != nil {
			telemetry.Ops("tofmerge: reprocess: no calibration directory at %s: %v", calibDir, err)
		} else {
			tofSrc = newReprocessingSource(tofSrc, cal)
		}
	}

	// Prime reads the TOF stream through its own cursor over the same files,
	// so the merger's tofSrc still starts at the first packet and the first
	// TOF event gets its frame.
	firstEvid, leftover, err := event.Prime(newPacketSource(tofOpened, idxDB), tellySrc)
	if err != nil {
		fmt.Fprintf(os.Stderr, "tofmerge: priming failed (empty TOF stream?): %v\n", err)
		return exitConfigError
	}
	tellySrc = newPrefixedSource(leftover, tellySrc)
	_ = firstEvid

	runDir := filepath.Join(f.outdir, fmt.Sprintf("%d", runID))
	writer, err := frame.NewWriter(runDir, runID, *cfg.SweepChunkFrames, frame.CodecLZ4)
	if err != nil {
		fmt.Fprintf(os.Stderr, "tofmerge: %v\n", err)
		return exitIOError
	}

	sink := newWriterSink(writer, func(p event.Packet) bool { return false })
	merger := event.NewMerger(tofSrc, tellySrc, sink)

	if f.metricsAddr != "" {
		collector := metrics.NewRunCollector(merger.Stats)
		go metrics.Serve(f.metricsAddr, collector)
	}

	start := time.Now()
	stats, err := merger.Run()
	writer.Close()
	elapsed := time.Since(start)
	if err != nil {
		fmt.Fprintf(os.Stderr, "tofmerge: merge failed: %v\n", err)
		return exitIOError
	}

	earlier, later := merger.SkewBuffers()
	if err := sweepRun(runDir, runID, earlier, later); err != nil {
		fmt.Fprintf(os.Stderr, "tofmerge: sweep failed: %v\n", err)
		return exitIOError
	}

	printSummary(stats, elapsed)
	if stats.Overflowed() {
		return exitBufferOverflow
	}
	return exitOK
}

func printSummary(stats event.Stats, elapsed time.Duration) {
	fmt.Printf("frames_written=%d tof_errors=%d telly_errors=%d skew_buffer=%d+%d elapsed=%s\n",
		stats.FramesWritten, stats.NTofErrors, stats.NTellyErrors,
		stats.TellyEarlierSz, stats.TellyLaterSz, elapsed)
}

// globFiltered returns dir's files matching pattern, optionally narrowed
// to those whose embedded filename timestamp falls within [after, before)
// when either bound is non-zero.
func globFiltered(dir, pattern string, after, before time.Time) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, pattern))
	if err != nil {
		return nil, err
	}
	if after.IsZero() && before.IsZero() {
		return matches, nil
	}
	var out []string
	for _, m := range matches {
		ts, err := reader.GetTsFromFilename(m)
		if err != nil {
			out = append(out, m)
			continue
		}
		if !after.IsZero() && ts.Before(after) {
			continue
		}
		if !before.IsZero() && !ts.Before(before) {
			continue
		}
		out = append(out, m)
	}
	return out, nil
}
