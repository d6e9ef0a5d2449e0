package main

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/gaps-collab/tofdaq/internal/tof/event"
	"github.com/gaps-collab/tofdaq/internal/tof/reader"
	"github.com/gaps-collab/tofdaq/internal/tof/wire"
)

func synthRBEvent(evid uint32) wire.RBEventPacket {
	return wire.RBEventPacket{
		Header: wire.RBEventHeader{
			ROI:         3,
			BoardID:     1,
			ChannelMask: 0x1,
			EventCount:  evid,
		},
		Channels: []wire.ChannelBlock{
			{Channel: 0, Samples: []uint16{10, 20, 30, 40}},
		},
	}
}

func writeSyntheticFile(t *testing.T, path string, evids ...uint32) {
	t.Helper()
	var buf []byte
	for _, evid := range evids {
		buf = append(buf, wire.EncodeRBEvent(synthRBEvent(evid))...)
	}
	if err := os.WriteFile(path, buf, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
}

func TestPacketSourceWalksFilesInOrder(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "run1_0.tof.gaps")
	writeSyntheticFile(t, path, 1, 2, 3)

	f, err := reader.Open(path)
	if err != nil {
		t.Fatalf("reader.Open: %v", err)
	}
	src := newPacketSource([]*reader.File{f}, nil)

	var got []uint32
	for {
		p, err := src.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		got = append(got, p.EventID)
	}
	if len(got) != 3 || got[0] != 1 || got[1] != 2 || got[2] != 3 {
		t.Fatalf("unexpected event sequence: %v", got)
	}
}

func TestPrefixedSourceReplaysLeftoverBeforeInner(t *testing.T) {
	leftover := []event.Packet{{EventID: 5}, {EventID: 6}}
	inner := &fakeSource{packets: []event.Packet{{EventID: 7}}}
	src := newPrefixedSource(leftover, inner)

	var got []uint32
	for {
		p, err := src.Next()
		if err == io.EOF {
			break
		}
		got = append(got, p.EventID)
	}
	if len(got) != 3 || got[0] != 5 || got[1] != 6 || got[2] != 7 {
		t.Fatalf("unexpected sequence: %v", got)
	}
}

type fakeSource struct {
	packets []event.Packet
	pos     int
}

func (s *fakeSource) Next() (event.Packet, error) {
	if s.pos >= len(s.packets) {
		return event.Packet{}, io.EOF
	}
	p := s.packets[s.pos]
	s.pos++
	return p, nil
}
