package main

import (
	"fmt"
	"io"
	"time"

	"github.com/gaps-collab/tofdaq/internal/tof/event"
	"github.com/gaps-collab/tofdaq/internal/tof/reader"
	"github.com/gaps-collab/tofdaq/internal/tof/store"
)

// packetSource adapts a set of embedded-timestamp-sorted reader.File
// instances into a single event.Source, walking each file's index in
// on-disk order before moving to the next file.
type packetSource struct {
	files []*reader.File
	db    *store.DB // nil disables the index cache

	fileIdx int
	pktIdx  int
	index   reader.Index
}

func newPacketSource(files []*reader.File, db *store.DB) *packetSource {
	return &packetSource{files: files, db: db}
}

// Next decodes and returns the next packet in the combined stream, io.EOF
// once every file is exhausted. Decode failures are surfaced as errors
// rather than silently skipped, so the caller's error counters see them.
func (s *packetSource) Next() (event.Packet, error) {
	for {
		if s.fileIdx >= len(s.files) {
			return event.Packet{}, io.EOF
		}
		f := s.files[s.fileIdx]
		if s.pktIdx == 0 {
			s.index = indexFile(f, s.db)
		}
		if s.pktIdx >= len(s.index.Packets) {
			s.fileIdx++
			s.pktIdx = 0
			continue
		}
		ref := s.index.Packets[s.pktIdx]
		s.pktIdx++

		if !ref.Ok {
			return event.Packet{}, fmt.Errorf("tofmerge: %s: malformed packet at offset %d", f.Path, ref.Offset)
		}
		pkt, err := f.Decode(ref)
		if err != nil {
			return event.Packet{}, fmt.Errorf("tofmerge: %s: %w", f.Path, err)
		}
		raw := f.Data[ref.Offset : ref.Offset+ref.Length]
		return event.Packet{
			EventID: pkt.Header.EventCount,
			Raw:     append([]byte{}, raw...),
		}, nil
	}
}

// indexFile returns f's packet index, consulting the Index Store cache
// when one is configured.
func indexFile(f *reader.File, db *store.DB) reader.Index {
	if db == nil {
		return f.Index()
	}
	idx, err := db.IndexCached(f, time.Now().Unix())
	if err != nil {
		return f.Index()
	}
	return idx
}
