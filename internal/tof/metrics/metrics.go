// Package metrics exposes the merge run's summary counters as Prometheus
// metrics, via a custom prometheus.Collector that reads a live snapshot
// function rather than pre-registered counters, so a single run's current
// state is always what gets scraped.
package metrics

import (
	"net/http"

	"github.com/gaps-collab/tofdaq/internal/tof/event"
	"github.com/gaps-collab/tofdaq/internal/tof/telemetry"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// StatsFunc returns the merger's current stats snapshot.
type StatsFunc func() event.Stats

// RunCollector implements prometheus.Collector over a live StatsFunc.
type RunCollector struct {
	snapshot StatsFunc

	framesWritten *prometheus.Desc
	tofErrors     *prometheus.Desc
	tellyErrors   *prometheus.Desc
	skewBufferSz  *prometheus.Desc
}

// NewRunCollector builds a collector that calls snapshot on every scrape.
func NewRunCollector(snapshot StatsFunc) *RunCollector {
	return &RunCollector{
		snapshot:      snapshot,
		framesWritten: prometheus.NewDesc("tof_frames_written_total", "Frames written by the event merger.", nil, nil),
		tofErrors:     prometheus.NewDesc("tof_errors_total", "Decode errors by stream.", []string{"stream"}, nil),
		tellyErrors:   prometheus.NewDesc("tof_errors_total", "Decode errors by stream.", []string{"stream"}, nil),
		skewBufferSz:  prometheus.NewDesc("tof_skew_buffer_size", "Current skew buffer occupancy.", []string{"side"}, nil),
	}
}

// Describe implements prometheus.Collector.
func (c *RunCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.framesWritten
	ch <- c.tofErrors
	ch <- c.skewBufferSz
}

// Collect implements prometheus.Collector.
func (c *RunCollector) Collect(ch chan<- prometheus.Metric) {
	s := c.snapshot()
	ch <- prometheus.MustNewConstMetric(c.framesWritten, prometheus.CounterValue, float64(s.FramesWritten))
	ch <- prometheus.MustNewConstMetric(c.tofErrors, prometheus.CounterValue, float64(s.NTofErrors), "tof")
	ch <- prometheus.MustNewConstMetric(c.tellyErrors, prometheus.CounterValue, float64(s.NTellyErrors), "telly")
	ch <- prometheus.MustNewConstMetric(c.skewBufferSz, prometheus.GaugeValue, float64(s.TellyEarlierSz), "earlier")
	ch <- prometheus.MustNewConstMetric(c.skewBufferSz, prometheus.GaugeValue, float64(s.TellyLaterSz), "later")
}

// Serve registers collector against a fresh registry and serves /metrics
// on addr until the process exits or the listener errors. Failures are
// logged at the ops tier and do not abort the caller's merge run.
func Serve(addr string, collector *RunCollector) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collector)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	telemetry.Diag("metrics: serving on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		telemetry.Ops("metrics: server stopped: %v", err)
	}
}
