package main

import (
	"encoding/binary"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/gaps-collab/tofdaq/internal/tof/reader"
)

const (
	telemetryTypeMergedEvent = 90
	telemetryTypeTracker     = 80
	telemetryHeaderFixedLen  = 15 // head+status+length+type+gcutime+packetid
	telemetryFooterFixedLen  = 6  // crc+tail
)

// wordSwapReverse32 is the word-swapped encoding of v, the inverse of the
// wire package's wordSwap32 decode.
func wordSwapReverse32(v uint32) []byte {
	var be [4]byte
	binary.BigEndian.PutUint32(be[:], v)
	return []byte{be[1], be[0], be[3], be[2]}
}

// buildTelemetryPacket hand-encodes one telemetry-envelope packet, mirroring
// the layout internal/tof/wire.DecodeTelemetryPacket expects.
func buildTelemetryPacket(typeCode byte, gcuTime, packetID uint32, payload []byte) []byte {
	lengthBytes := telemetryHeaderFixedLen + len(payload) + telemetryFooterFixedLen
	buf := make([]byte, lengthBytes)
	binary.LittleEndian.PutUint16(buf[0:2], 0xAAAA)
	binary.LittleEndian.PutUint16(buf[2:4], 0)
	binary.LittleEndian.PutUint16(buf[4:6], uint16(lengthBytes/2))

	off := 6
	buf[off] = typeCode
	off++
	binary.LittleEndian.PutUint32(buf[off:off+4], gcuTime)
	off += 4
	binary.LittleEndian.PutUint32(buf[off:off+4], packetID)
	off += 4
	copy(buf[off:off+len(payload)], payload)
	off += len(payload)

	crc := crc32.ChecksumIEEE(buf[:off])
	copy(buf[off:off+4], wordSwapReverse32(crc))
	off += 4
	binary.LittleEndian.PutUint16(buf[off:off+2], 0x5555)

	return buf
}

func mergedEventPayload(evid uint32) []byte {
	return append(wordSwapReverse32(evid), 0x00)
}

func writeSyntheticTelemetryFile(t *testing.T, path string, packets [][]byte) {
	t.Helper()
	var buf []byte
	for _, p := range packets {
		buf = append(buf, p...)
	}
	if err := os.WriteFile(path, buf, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
}

func TestTelemetrySourceClassifiesPackets(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "RAW0000.bin")
	writeSyntheticTelemetryFile(t, path, [][]byte{
		buildTelemetryPacket(telemetryTypeMergedEvent, 1000, 1, mergedEventPayload(1)),
		buildTelemetryPacket(telemetryTypeTracker, 1001, 2, []byte{0x01, 0x02, 0x03}),
		buildTelemetryPacket(0x01, 1002, 3, []byte{0xAA, 0xBB, 0xCC}),
		buildTelemetryPacket(telemetryTypeMergedEvent, 1003, 4, mergedEventPayload(2)),
	})

	f, err := reader.Open(path)
	if err != nil {
		t.Fatalf("reader.Open: %v", err)
	}
	src := newTelemetrySource([]*reader.File{f})

	var got []struct {
		evid  uint32
		hk    bool
		track bool
	}
	for {
		p, err := src.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		got = append(got, struct {
			evid  uint32
			hk    bool
			track bool
		}{p.EventID, p.IsHousekeeping, p.IsTracker})
	}

	if len(got) != 4 {
		t.Fatalf("got %d packets, want 4", len(got))
	}
	if got[0].evid != 1 || got[0].hk || got[0].track {
		t.Errorf("packet 0 (MergedEvent): got %+v, want evid=1 hk=false track=false", got[0])
	}
	if !got[1].hk || !got[1].track {
		t.Errorf("packet 1 (TrackerPacket): got %+v, want hk=true track=true", got[1])
	}
	if !got[2].hk || got[2].track {
		t.Errorf("packet 2 (unknown type): got %+v, want hk=true track=false", got[2])
	}
	if got[3].evid != 2 || got[3].hk || got[3].track {
		t.Errorf("packet 3 (MergedEvent): got %+v, want evid=2 hk=false track=false", got[3])
	}
}
