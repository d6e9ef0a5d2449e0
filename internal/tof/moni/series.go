// Package moni gives the housekeeping packet families (RBMoniData,
// MtbMoniData, PBMoniData, PAMoniData, LTBMoniData, CPUMoniData) a single
// tabular representation instead of ad hoc maps or slices: an append-only
// columnar Series per metric name, backed by github.com/arloliu/mebo's
// compact numeric blob encoding.
package moni

import (
	"fmt"
	"time"

	"github.com/arloliu/mebo/blob"
)

// Reading is one (timestamp, value, optional tag) sample for a metric.
type Reading struct {
	Ts  time.Time
	Val float64
	Tag string
}

// Series is an append-only set of metric columns sharing one time base,
// held in memory as plain per-metric reading slices; Encode turns it into
// a mebo numeric blob and Decode reads one back.
type Series struct {
	startTime time.Time
	columns   map[string][]Reading
	order     []string
}

// NewSeries creates an empty series anchored at startTime; startTime is
// the mebo blob's time base and should be at or before every reading's Ts.
func NewSeries(startTime time.Time) *Series {
	return &Series{startTime: startTime, columns: make(map[string][]Reading)}
}

// Add appends one reading to metric's column, creating the column if this
// is its first reading.
func (s *Series) Add(metric string, r Reading) {
	if _, ok := s.columns[metric]; !ok {
		s.order = append(s.order, metric)
	}
	s.columns[metric] = append(s.columns[metric], r)
}

// Column returns metric's readings in insertion order.
func (s *Series) Column(metric string) []Reading {
	return s.columns[metric]
}

// Len returns the total number of readings across all metrics.
func (s *Series) Len() int {
	n := 0
	for _, col := range s.columns {
		n += len(col)
	}
	return n
}

// Metrics returns the metric names present, in first-seen order.
func (s *Series) Metrics() []string {
	return append([]string{}, s.order...)
}

// Stack concatenates a and b into a new series: a's readings first, then
// b's, per metric, in that order. a and b are left unmodified.
func Stack(a, b *Series) *Series {
	start := a.startTime
	if b.startTime.Before(start) {
		start = b.startTime
	}
	out := NewSeries(start)
	for _, m := range a.order {
		for _, r := range a.columns[m] {
			out.Add(m, r)
		}
	}
	for _, m := range b.order {
		for _, r := range b.columns[m] {
			out.Add(m, r)
		}
	}
	return out
}

// Encode serializes the series into a mebo numeric blob, one metric per
// encoded stream.
func (s *Series) Encode() ([]byte, error) {
	enc, err := blob.NewNumericEncoder(s.startTime)
	if err != nil {
		return nil, fmt.Errorf("moni: new encoder: %w", err)
	}
	for _, metric := range s.order {
		readings := s.columns[metric]
		if err := enc.StartMetricName(metric, len(readings)); err != nil {
			return nil, fmt.Errorf("moni: start metric %q: %w", metric, err)
		}
		for _, r := range readings {
			if err := enc.AddDataPoint(r.Ts.UnixNano(), r.Val, r.Tag); err != nil {
				return nil, fmt.Errorf("moni: add data point for %q: %w", metric, err)
			}
		}
		if err := enc.EndMetric(); err != nil {
			return nil, fmt.Errorf("moni: end metric %q: %w", metric, err)
		}
	}
	return enc.Finish()
}

// Decode reconstructs a Series from bytes produced by Encode, using
// metricNames to know which columns to pull back out (mebo blobs are
// queried by metric name or numeric id, not iterated wholesale).
func Decode(data []byte, metricNames []string) (*Series, error) {
	dec, err := blob.NewNumericDecoder(data)
	if err != nil {
		return nil, fmt.Errorf("moni: new decoder: %w", err)
	}
	b, err := dec.Decode()
	if err != nil {
		return nil, fmt.Errorf("moni: decode: %w", err)
	}

	s := NewSeries(b.StartTime())
	for _, name := range metricNames {
		if !b.HasMetricName(name) {
			continue
		}
		for _, dp := range b.AllByName(name) {
			s.Add(name, Reading{Ts: time.Unix(0, dp.Ts), Val: dp.Val, Tag: dp.Tag})
		}
	}
	return s, nil
}
