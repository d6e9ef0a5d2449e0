package wire

import "encoding/binary"

// Packet-type codes the ground telemetry link stamps ahead of a
// TelemetryPacket's payload. Only these two are confirmed against the
// reference reader tooling; every other code folds to TagAnyTofHK since
// the individual moni/heartbeat sub-type codes are not specified by the
// packet-type tag set on the wire (they're distinguished, if at all, by
// decoding the housekeeping payload itself, which is out of scope here).
const (
	telemetryTypeTracker     = 80
	telemetryTypeMergedEvent = 90
)

const (
	telHeaderTagLen      = 1
	telHeaderGCUTimeLen  = 4
	telHeaderPacketIDLen = 4

	telHeaderFixedLen = 2 /*head*/ + 2 /*status*/ + 2 /*length*/ +
		telHeaderTagLen + telHeaderGCUTimeLen + telHeaderPacketIDLen

	telFooterCRCLen   = 4
	telFooterTailLen  = 2
	telFooterFixedLen = telFooterCRCLen + telFooterTailLen
)

// TelemetryHeader is the ground-telemetry envelope header: the packet
// framing shared with the TOF stream (head marker, length, tail, CRC32),
// plus the two fields the ground link adds ahead of the payload tag.
type TelemetryHeader struct {
	GCUTime  uint32 // seconds-since-epoch, stamped by the ground computer
	PacketID uint32
	Tag      PacketTag
}

// TelemetryPacket is one decoded telemetry-envelope packet. EventID is
// populated only when Tag is TagMergedEvent, lazily unpacked from the
// word-swapped event counter leading the nested TofEvent payload — the
// same 32-bit-event-counter convention RBEventHeader.EventCount uses.
type TelemetryPacket struct {
	Header  TelemetryHeader
	EventID uint32
	Payload []byte
	CRCOk   bool
}

// DecodeTelemetryPacket decodes one telemetry-envelope packet starting
// at data[0], which must begin with the head marker. It returns the
// decoded packet and the number of bytes consumed, or one of the
// taxonomy errors in errors.go.
func DecodeTelemetryPacket(data []byte) (TelemetryPacket, int, error) {
	var pkt TelemetryPacket

	if len(data) < 6 {
		return pkt, 0, ErrTruncated
	}
	if binary.LittleEndian.Uint16(data[0:2]) != HeadMarker {
		return pkt, 0, ErrMalformedHeader
	}
	lengthWords := binary.LittleEndian.Uint16(data[4:6])
	lengthBytes := int(lengthWords) * 2
	if lengthBytes < telHeaderFixedLen+telFooterFixedLen {
		return pkt, 0, ErrMalformedHeader
	}
	if len(data) < lengthBytes {
		return pkt, 0, ErrTruncated
	}
	body := data[:lengthBytes]

	if binary.LittleEndian.Uint16(body[lengthBytes-2:lengthBytes]) != TailMarker {
		return pkt, lengthBytes, ErrTailMismatch
	}

	crcOffset := lengthBytes - telFooterFixedLen
	storedCRC, err := decodeStoredCRC(body[crcOffset : crcOffset+4])
	if err != nil {
		return pkt, lengthBytes, ErrMalformedHeader
	}
	pkt.CRCOk = storedCRC == crc32IEEE(body[:crcOffset])

	off := 6
	typeCode := body[off]
	off += telHeaderTagLen
	pkt.Header.GCUTime = binary.LittleEndian.Uint32(body[off : off+telHeaderGCUTimeLen])
	off += telHeaderGCUTimeLen
	pkt.Header.PacketID = binary.LittleEndian.Uint32(body[off : off+telHeaderPacketIDLen])
	off += telHeaderPacketIDLen

	switch typeCode {
	case telemetryTypeMergedEvent:
		pkt.Header.Tag = TagMergedEvent
	case telemetryTypeTracker:
		pkt.Header.Tag = TagTrackerPacket
	default:
		pkt.Header.Tag = TagAnyTofHK
	}

	pkt.Payload = body[off:crcOffset]

	if pkt.Header.Tag == TagMergedEvent {
		if len(pkt.Payload) < 4 {
			return pkt, lengthBytes, ErrDecodeError
		}
		pkt.EventID = wordSwap32(pkt.Payload[:4])
	}

	return pkt, lengthBytes, nil
}
