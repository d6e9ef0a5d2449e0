package main

import (
	"io"

	"github.com/gaps-collab/tofdaq/internal/tof/event"
	"github.com/gaps-collab/tofdaq/internal/tof/frame"
)

// Part tags for a frame's constituent packets on disk. writerSink picks
// partTagTelly only for packets its isTelly predicate accepts; the main
// pass and the sweep pass in tofmerge both pass a predicate that always
// returns false, so every part they write, telemetry included, carries
// partTagTof.
const (
	partTagTof   uint8 = 1
	partTagTelly uint8 = 2
)

// writerSink adapts a frame.Writer to the event.Sink interface the merger
// and the sweep pass both write through.
type writerSink struct {
	w        *frame.Writer
	isTelly  func(event.Packet) bool
	n        int
}

func newWriterSink(w *frame.Writer, isTelly func(event.Packet) bool) *writerSink {
	return &writerSink{w: w, isTelly: isTelly}
}

func (s *writerSink) Write(f *event.Frame) error {
	out := frame.Frame{EventID: f.EventID}
	for _, p := range f.Parts {
		tag := partTagTof
		if s.isTelly(p) {
			tag = partTagTelly
		}
		out.Parts = append(out.Parts, frame.Part{Tag: tag, Bytes: p.Raw})
	}
	s.n++
	return s.w.WriteFrame(out)
}

// frameReaderSource adapts a sequence of already-written frame.Reader
// files into the event.FrameSource the sweep pass replays.
type frameReaderSource struct {
	readers []*frame.Reader
	idx     int
	entries []frame.IndexEntry
	pos     int
}

func newFrameReaderSource(readers []*frame.Reader) *frameReaderSource {
	return &frameReaderSource{readers: readers}
}

func (s *frameReaderSource) Next() (*event.Frame, error) {
	for {
		if s.idx >= len(s.readers) {
			return nil, io.EOF
		}
		r := s.readers[s.idx]
		if s.pos == 0 {
			s.entries = r.Index()
		}
		if s.pos >= len(s.entries) {
			s.idx++
			s.pos = 0
			continue
		}
		e := s.entries[s.pos]
		s.pos++

		fr, _, err := r.ReadAt(e)
		if err != nil {
			return nil, err
		}
		out := &event.Frame{EventID: fr.EventID}
		for _, p := range fr.Parts {
			out.Parts = append(out.Parts, event.Packet{EventID: fr.EventID, Raw: p.Bytes})
		}
		return out, nil
	}
}
