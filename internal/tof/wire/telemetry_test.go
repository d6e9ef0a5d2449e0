package wire

import (
	"encoding/binary"
	"testing"
)

// encodeTelemetryPacket builds a wire-format telemetry envelope for tests;
// there is no exported encoder since nothing outside this package produces
// telemetry packets (they arrive from the ground link, not from this repo).
func encodeTelemetryPacket(typeCode byte, gcuTime, packetID uint32, payload []byte) []byte {
	lengthBytes := telHeaderFixedLen + len(payload) + telFooterFixedLen
	buf := make([]byte, lengthBytes)
	binary.LittleEndian.PutUint16(buf[0:2], HeadMarker)
	binary.LittleEndian.PutUint16(buf[2:4], 0)
	binary.LittleEndian.PutUint16(buf[4:6], uint16(lengthBytes/2))

	off := 6
	buf[off] = typeCode
	off += telHeaderTagLen
	binary.LittleEndian.PutUint32(buf[off:off+telHeaderGCUTimeLen], gcuTime)
	off += telHeaderGCUTimeLen
	binary.LittleEndian.PutUint32(buf[off:off+telHeaderPacketIDLen], packetID)
	off += telHeaderPacketIDLen
	copy(buf[off:off+len(payload)], payload)
	off += len(payload)

	crc := crc32IEEE(buf[:off])
	copy(buf[off:off+telFooterCRCLen], reverseWordSwap32(crc))
	off += telFooterCRCLen
	binary.LittleEndian.PutUint16(buf[off:off+telFooterTailLen], TailMarker)

	return buf
}

// mergedEventPayload builds a payload whose leading 4 bytes decode (via the
// same word-swap convention as RBEventHeader.EventCount) to evid, padded by
// one byte so the overall packet length stays word-aligned.
func mergedEventPayload(evid uint32) []byte {
	return append(reverseWordSwap32(evid), 0x00)
}

func TestDecodeTelemetryMergedEventExtractsEventID(t *testing.T) {
	encoded := encodeTelemetryPacket(telemetryTypeMergedEvent, 1_700_000_000, 42, mergedEventPayload(123456))

	pkt, n, err := DecodeTelemetryPacket(encoded)
	if err != nil {
		t.Fatalf("DecodeTelemetryPacket: %v", err)
	}
	if n != len(encoded) {
		t.Fatalf("consumed %d bytes, want %d", n, len(encoded))
	}
	if !pkt.CRCOk {
		t.Fatal("expected packet CRC to validate")
	}
	if pkt.Header.Tag != TagMergedEvent {
		t.Fatalf("Tag = %v, want TagMergedEvent", pkt.Header.Tag)
	}
	if pkt.Header.GCUTime != 1_700_000_000 {
		t.Errorf("GCUTime = %d, want 1700000000", pkt.Header.GCUTime)
	}
	if pkt.Header.PacketID != 42 {
		t.Errorf("PacketID = %d, want 42", pkt.Header.PacketID)
	}
	if pkt.EventID != 123456 {
		t.Errorf("EventID = %d, want 123456", pkt.EventID)
	}
}

func TestDecodeTelemetryTrackerTagClassification(t *testing.T) {
	encoded := encodeTelemetryPacket(telemetryTypeTracker, 1, 1, []byte{0x01, 0x02, 0x03})

	pkt, _, err := DecodeTelemetryPacket(encoded)
	if err != nil {
		t.Fatalf("DecodeTelemetryPacket: %v", err)
	}
	if pkt.Header.Tag != TagTrackerPacket {
		t.Fatalf("Tag = %v, want TagTrackerPacket", pkt.Header.Tag)
	}
	if !pkt.Header.Tag.IsTracker() {
		t.Error("expected IsTracker() true for TagTrackerPacket")
	}
	if pkt.Header.Tag.IsHousekeeping() {
		t.Error("expected IsHousekeeping() false for TagTrackerPacket")
	}
}

func TestDecodeTelemetryUnknownCodeFallsBackToHousekeeping(t *testing.T) {
	encoded := encodeTelemetryPacket(0x01, 1, 1, []byte{0xAA, 0xBB, 0xCC})

	pkt, _, err := DecodeTelemetryPacket(encoded)
	if err != nil {
		t.Fatalf("DecodeTelemetryPacket: %v", err)
	}
	if pkt.Header.Tag != TagAnyTofHK {
		t.Fatalf("Tag = %v, want TagAnyTofHK", pkt.Header.Tag)
	}
	if !pkt.Header.Tag.IsHousekeeping() {
		t.Error("expected IsHousekeeping() true for an unrecognized type code")
	}
	if pkt.Header.Tag.IsTracker() {
		t.Error("expected IsTracker() false for an unrecognized type code")
	}
}

func TestDecodeTelemetryTailMismatch(t *testing.T) {
	encoded := encodeTelemetryPacket(telemetryTypeMergedEvent, 1, 1, mergedEventPayload(1))
	encoded[len(encoded)-1] ^= 0xFF

	_, _, err := DecodeTelemetryPacket(encoded)
	if err != ErrTailMismatch {
		t.Fatalf("expected ErrTailMismatch, got %v", err)
	}
}

func TestDecodeTelemetryTruncated(t *testing.T) {
	encoded := encodeTelemetryPacket(telemetryTypeMergedEvent, 1, 1, mergedEventPayload(1))
	_, _, err := DecodeTelemetryPacket(encoded[:len(encoded)-4])
	if err != ErrTruncated {
		t.Fatalf("expected ErrTruncated, got %v", err)
	}
}

func TestDecodeTelemetryMalformedHead(t *testing.T) {
	encoded := encodeTelemetryPacket(telemetryTypeMergedEvent, 1, 1, mergedEventPayload(1))
	encoded[0] ^= 0xFF
	_, _, err := DecodeTelemetryPacket(encoded)
	if err != ErrMalformedHeader {
		t.Fatalf("expected ErrMalformedHeader, got %v", err)
	}
}

func TestDecodeTelemetryCrcMismatchStillDecodes(t *testing.T) {
	encoded := encodeTelemetryPacket(telemetryTypeMergedEvent, 1, 1, mergedEventPayload(7))
	// Flip a payload bit without touching the stored CRC.
	encoded[telHeaderFixedLen] ^= 0x01

	pkt, _, err := DecodeTelemetryPacket(encoded)
	if err != nil {
		t.Fatalf("expected decode to still succeed on a bad CRC, got %v", err)
	}
	if pkt.CRCOk {
		t.Fatal("expected CRC to be invalid")
	}
}
