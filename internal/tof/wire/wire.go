// Package wire implements the binary packet codec: header/footer parsing,
// the word-swapped composite field decode the hardware uses for DNA,
// event counter, and timestamp, IEEE 802.3 CRC32 validation, and 14-bit
// ADC sample extraction from channel blocks.
package wire

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
)

// Marker values bracketing every packet on the wire.
const (
	HeadMarker uint16 = 0xAAAA
	TailMarker uint16 = 0x5555
)

// PacketTag identifies the payload variant carried by a TofPacket or
// TelemetryPacket envelope.
type PacketTag uint8

const (
	TagUnknown PacketTag = iota
	TagTofEvent
	TagMasterTrigger
	TagRBEvent
	TagRBCalibration
	TagRBMoniData
	TagMtbMoniData
	TagPBMoniData
	TagPAMoniData
	TagLTBMoniData
	TagCPUMoniData
	TagEVTBLDRHeartbeat
	TagMTBHeartbeat
	TagTrackerPacket
	TagMergedEvent
	TagInterestingEvent
	TagBoringEvent
	TagNoGapsTriggerEvent
	TagAnyTofHK
)

func (t PacketTag) String() string {
	switch t {
	case TagTofEvent:
		return "TofEvent"
	case TagMasterTrigger:
		return "MasterTrigger"
	case TagRBEvent:
		return "RBEvent"
	case TagRBCalibration:
		return "RBCalibration"
	case TagRBMoniData:
		return "RBMoniData"
	case TagMtbMoniData:
		return "MtbMoniData"
	case TagPBMoniData:
		return "PBMoniData"
	case TagPAMoniData:
		return "PAMoniData"
	case TagLTBMoniData:
		return "LTBMoniData"
	case TagCPUMoniData:
		return "CPUMoniData"
	case TagEVTBLDRHeartbeat:
		return "EVTBLDRHeartbeat"
	case TagMTBHeartbeat:
		return "MTBHeartbeat"
	case TagTrackerPacket:
		return "TrackerPacket"
	case TagMergedEvent:
		return "MergedEvent"
	case TagInterestingEvent:
		return "InterestingEvent"
	case TagBoringEvent:
		return "BoringEvent"
	case TagNoGapsTriggerEvent:
		return "NoGapsTriggerEvent"
	case TagAnyTofHK:
		return "AnyTofHK"
	default:
		return "Unknown"
	}
}

// IsHousekeeping reports whether t is a non-event, accumulate-into-frame
// packet type: everything except the tags that carry an actual physics
// event (TofEvent, MasterTrigger, RBEvent, MergedEvent) or the tracker
// tag, which the merger drops outright rather than accumulating.
func (t PacketTag) IsHousekeeping() bool {
	switch t {
	case TagTofEvent, TagMasterTrigger, TagRBEvent, TagMergedEvent, TagTrackerPacket:
		return false
	default:
		return true
	}
}

// IsTracker reports whether t is the tracker-packet tag, which the
// merger drops rather than accumulating as housekeeping or matching as
// an event.
func (t PacketTag) IsTracker() bool {
	return t == TagTrackerPacket
}

// ParseTag looks up a PacketTag by its String() name, returning TagUnknown
// for anything unrecognized.
func ParseTag(name string) PacketTag {
	for t := TagUnknown; t <= TagAnyTofHK; t++ {
		if t.String() == name {
			return t
		}
	}
	return TagUnknown
}

// RBEventHeader is the fixed header block preceding an RBEvent's channel
// payload, laid out exactly as it arrives from the readout board.
type RBEventHeader struct {
	ROI        uint16 // trace_length_cells - 1
	DNA        uint64 // board identifier, word-swapped on wire
	FWHash     uint16
	BoardID    uint16
	ChannelMask uint16
	EventCount uint32
	DTap0      uint16
	DTap1      uint16
	Timestamp  uint64 // 48 bits significant
}

// RBEventPacket is a fully decoded RBEvent: header plus per-channel sample
// blocks, CRC32 verified.
type RBEventPacket struct {
	Header   RBEventHeader
	StopCell uint16
	Channels []ChannelBlock
	CRCOk    bool
}

// ChannelBlock holds one channel's decoded samples and its own CRC status.
type ChannelBlock struct {
	Channel int
	Samples []uint16 // 14-bit ADC values, upper 2 parity bits masked off
	CRCOk   bool
}

// wordSwap32 reproduces the hardware's pairwise 16-bit word swap for a
// 32-bit composite field: bytes [0,1,2,3] -> [1,0,3,2], then big-endian.
func wordSwap32(b []byte) uint32 {
	swapped := [4]byte{b[1], b[0], b[3], b[2]}
	return binary.BigEndian.Uint32(swapped[:])
}

// wordSwap48 reproduces the word swap for a 48-bit composite field stored
// in 6 bytes: [0,1,2,3,4,5] -> [1,0,3,2,5,4], then big-endian over the low
// 48 bits.
func wordSwap48(b []byte) uint64 {
	swapped := [6]byte{b[1], b[0], b[3], b[2], b[5], b[4]}
	var buf [8]byte
	copy(buf[2:], swapped[:])
	return binary.BigEndian.Uint64(buf[:])
}

// wordSwap64 reproduces the word swap for a 64-bit composite field: pairs
// of bytes swapped within each 16-bit word, then big-endian.
func wordSwap64(b []byte) uint64 {
	swapped := [8]byte{b[1], b[0], b[3], b[2], b[5], b[4], b[7], b[6]}
	return binary.BigEndian.Uint64(swapped[:])
}

// maskADC extracts the 14-bit ADC value from a 16-bit sample word,
// discarding the two upper parity bits the hardware sets.
func maskADC(word uint16) uint16 {
	return word & 0x3FFF
}

// crc32IEEE computes the standard IEEE 802.3 CRC32 over b, matching the
// polynomial the firmware uses for both packet and channel checksums.
func crc32IEEE(b []byte) uint32 {
	return crc32.ChecksumIEEE(b)
}

// decodeStoredCRC unpacks a word-swapped, stored CRC32 field into its
// comparable big-endian value.
func decodeStoredCRC(b []byte) (uint32, error) {
	if len(b) != 4 {
		return 0, fmt.Errorf("wire: stored CRC field must be 4 bytes, got %d", len(b))
	}
	return wordSwap32(b), nil
}
