package main

import "github.com/gaps-collab/tofdaq/internal/tof/event"

// prefixedSource replays a slice of already-read packets before falling
// through to an underlying Source, used to hand Prime's leftover
// telemetry back to the merger without losing it.
type prefixedSource struct {
	leftover []event.Packet
	pos      int
	inner    event.Source
}

func newPrefixedSource(leftover []event.Packet, inner event.Source) *prefixedSource {
	return &prefixedSource{leftover: leftover, inner: inner}
}

func (s *prefixedSource) Next() (event.Packet, error) {
	if s.pos < len(s.leftover) {
		p := s.leftover[s.pos]
		s.pos++
		return p, nil
	}
	return s.inner.Next()
}
