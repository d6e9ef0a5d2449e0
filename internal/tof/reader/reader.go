// Package reader implements the Packet Reader: a scanning decoder over
// on-disk TOF/telemetry packet files, with a lazily-computed index and
// filename-embedded-timestamp ordering helpers.
package reader

import (
	"fmt"
	"os"

	"github.com/gaps-collab/tofdaq/internal/tof/telemetry"
	"github.com/gaps-collab/tofdaq/internal/tof/wire"
)

// PacketRef locates one decoded packet within an opened file.
type PacketRef struct {
	Offset int
	Length int
	Tag    wire.PacketTag
	Ok     bool // false if decode failed (CRC mismatch, etc.) but the frame was still consumed
}

// Index summarizes a file's contents: total packet counts by tag, plus
// the full offset table.
type Index struct {
	TagCounts map[wire.PacketTag]int
	Packets   []PacketRef
}

// File is an opened packet file: its raw bytes and a lazily-computed
// index.
type File struct {
	Path  string
	Data  []byte
	index *Index

	// telemetryIndex caches IndexTelemetry's result separately from
	// index: the two scan the same bytes against different envelope
	// decoders (RBEvent vs the telemetry envelope) and a file is never
	// indexed both ways in the same run.
	telemetryIndex *Index
}

// Open reads path fully into memory. TOF/telemetry packet files in this
// system are bounded per-subrun and fit comfortably in memory.
func Open(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return &File{Path: path, Data: data}, nil
}

// Index computes (and caches) the file's packet index by a full forward
// scan, decoding every RBEvent-tagged candidate packet found.
func (f *File) Index() Index {
	if f.index != nil {
		return *f.index
	}
	results := wire.Scan(f.Data, func(b []byte) (int, wire.PacketTag, error) {
		_, n, err := wire.DecodeRBEvent(b)
		return n, wire.TagRBEvent, err
	})

	idx := Index{TagCounts: make(map[wire.PacketTag]int)}
	for _, r := range results {
		ok := r.Err == nil
		idx.Packets = append(idx.Packets, PacketRef{Offset: r.Offset, Length: r.Length, Tag: r.Tag, Ok: ok})
		if ok {
			idx.TagCounts[r.Tag]++
		}
	}
	f.index = &idx
	telemetry.Diag("reader: indexed %s: %d packets (%d tags)", f.Path, len(idx.Packets), len(idx.TagCounts))
	return idx
}

// Decode decodes the RBEvent packet located at ref.
func (f *File) Decode(ref PacketRef) (wire.RBEventPacket, error) {
	if ref.Offset+ref.Length > len(f.Data) {
		return wire.RBEventPacket{}, fmt.Errorf("reader: packet ref out of bounds in %s", f.Path)
	}
	pkt, _, err := wire.DecodeRBEvent(f.Data[ref.Offset : ref.Offset+ref.Length])
	return pkt, err
}

// IndexTelemetry computes (and caches) the file's packet index by a full
// forward scan decoding the telemetry envelope (TelemetryPacket) rather
// than RBEvent frames. Used for the telemetry-side stream, which is a
// distinct wire format from the TOF stream's RBEvent frames.
func (f *File) IndexTelemetry() Index {
	if f.telemetryIndex != nil {
		return *f.telemetryIndex
	}
	results := wire.Scan(f.Data, func(b []byte) (int, wire.PacketTag, error) {
		pkt, n, err := wire.DecodeTelemetryPacket(b)
		return n, pkt.Header.Tag, err
	})

	idx := Index{TagCounts: make(map[wire.PacketTag]int)}
	for _, r := range results {
		ok := r.Err == nil
		idx.Packets = append(idx.Packets, PacketRef{Offset: r.Offset, Length: r.Length, Tag: r.Tag, Ok: ok})
		if ok {
			idx.TagCounts[r.Tag]++
		}
	}
	f.telemetryIndex = &idx
	telemetry.Diag("reader: indexed %s as telemetry: %d packets (%d tags)", f.Path, len(idx.Packets), len(idx.TagCounts))
	return idx
}

// DecodeTelemetry decodes the telemetry packet located at ref.
func (f *File) DecodeTelemetry(ref PacketRef) (wire.TelemetryPacket, error) {
	if ref.Offset+ref.Length > len(f.Data) {
		return wire.TelemetryPacket{}, fmt.Errorf("reader: packet ref out of bounds in %s", f.Path)
	}
	pkt, _, err := wire.DecodeTelemetryPacket(f.Data[ref.Offset : ref.Offset+ref.Length])
	return pkt, err
}

// OpenSorted opens every path in paths in embedded-timestamp order,
// without re-sorting within a single file's packet stream (byte order is
// preserved there).
func OpenSorted(paths []string) ([]*File, error) {
	sorted := append([]string{}, paths...)
	SortByEmbeddedTimestamp(sorted)

	files := make([]*File, 0, len(sorted))
	for _, p := range sorted {
		f, err := Open(p)
		if err != nil {
			return files, err
		}
		files = append(files, f)
	}
	return files, nil
}
