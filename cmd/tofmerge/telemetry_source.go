package main

import (
	"fmt"
	"io"

	"github.com/gaps-collab/tofdaq/internal/tof/event"
	"github.com/gaps-collab/tofdaq/internal/tof/reader"
)

// telemetrySource adapts a set of embedded-timestamp-sorted reader.File
// instances carrying the ground-telemetry envelope into an event.Source,
// classifying each packet from its real decoded TelemetryHeader.Tag
// rather than assuming every packet is an event: TrackerPacket packets
// are marked housekeeping-and-tracker (the merger drops these outright),
// every other non-MergedEvent tag is marked plain housekeeping, and
// MergedEvent packets carry the event-id the merger joins on.
type telemetrySource struct {
	files []*reader.File

	fileIdx int
	pktIdx  int
	index   reader.Index
}

func newTelemetrySource(files []*reader.File) *telemetrySource {
	return &telemetrySource{files: files}
}

func (s *telemetrySource) Next() (event.Packet, error) {
	for {
		if s.fileIdx >= len(s.files) {
			return event.Packet{}, io.EOF
		}
		f := s.files[s.fileIdx]
		if s.pktIdx == 0 {
			s.index = f.IndexTelemetry()
		}
		if s.pktIdx >= len(s.index.Packets) {
			s.fileIdx++
			s.pktIdx = 0
			continue
		}
		ref := s.index.Packets[s.pktIdx]
		s.pktIdx++

		if !ref.Ok {
			return event.Packet{}, fmt.Errorf("tofmerge: %s: malformed telemetry packet at offset %d", f.Path, ref.Offset)
		}
		pkt, err := f.DecodeTelemetry(ref)
		if err != nil {
			return event.Packet{}, fmt.Errorf("tofmerge: %s: %w", f.Path, err)
		}
		raw := append([]byte{}, f.Data[ref.Offset:ref.Offset+ref.Length]...)

		return event.Packet{
			EventID:        pkt.EventID,
			IsHousekeeping: pkt.Header.Tag.IsHousekeeping() || pkt.Header.Tag.IsTracker(),
			IsTracker:      pkt.Header.Tag.IsTracker(),
			Raw:            raw,
		}, nil
	}
}
