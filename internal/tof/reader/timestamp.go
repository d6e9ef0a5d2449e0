package reader

import (
	"fmt"
	"path/filepath"
	"regexp"
	"sort"
	"time"
)

// Filename timestamp formats, matched against the base name only:
//
//	RAW<YYMMDD_HHMMSS>.bin                      (telemetry)
//	Run<R>_<S>.<YYMMDD_HHMMSS>UTC.tof.gaps       (TOF)
var (
	rawFilePattern = regexp.MustCompile(`^RAW(?P<ts>[0-9_]+)\.bin$`)
	tofFilePattern = regexp.MustCompile(`^Run\d+_\d+\.(?P<ts>[0-9_]+)UTC\.tof\.gaps$`)

	tsLayout = "060102_150405"
)

// GetTsFromFilename extracts the embedded timestamp from either a
// telemetry (RAW*.bin) or TOF (Run*.tof.gaps) filename, for ordering
// purposes only — readers never parse timestamps from packet content to
// order files.
func GetTsFromFilename(path string) (time.Time, error) {
	base := filepath.Base(path)

	if m := rawFilePattern.FindStringSubmatch(base); m != nil {
		return parseTs(m[1])
	}
	if m := tofFilePattern.FindStringSubmatch(base); m != nil {
		return parseTs(m[1])
	}
	return time.Time{}, fmt.Errorf("reader: %s: unrecognized filename pattern", base)
}

func parseTs(raw string) (time.Time, error) {
	t, err := time.Parse(tsLayout, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("reader: bad timestamp %q: %w", raw, err)
	}
	return t.UTC(), nil
}

// SortByEmbeddedTimestamp sorts paths in place by GetTsFromFilename,
// leaving unparseable paths at the end in their original relative order.
func SortByEmbeddedTimestamp(paths []string) {
	type keyed struct {
		path string
		ts   time.Time
		ok   bool
	}
	items := make([]keyed, len(paths))
	for i, p := range paths {
		ts, err := GetTsFromFilename(p)
		items[i] = keyed{path: p, ts: ts, ok: err == nil}
	}
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].ok != items[j].ok {
			return items[i].ok // parseable paths sort before unparseable ones
		}
		return items[i].ts.Before(items[j].ts)
	})
	for i, it := range items {
		paths[i] = it.path
	}
}
