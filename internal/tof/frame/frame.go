// Package frame implements the merged-event frame container and its
// on-disk writer/reader: an append-only sequence of (tag, length, bytes)
// triples per event-id, each prefixed by a header carrying the event-id
// and part count and followed by a frame-level CRC32, with files rotating
// by subrun number.
package frame

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
)

// Part is one named byte blob inside a frame (a TOF packet, a telemetry
// packet, or a housekeeping packet).
type Part struct {
	Tag   uint8
	Bytes []byte
}

// Frame is one event-id's complete output unit.
type Frame struct {
	EventID uint32
	Parts   []Part
}

// Encode serializes f as:
//
//	uint32 event_id
//	uint16 num_parts
//	{uint8 tag, uint32 length, bytes}...
//	uint32 frame_crc32 (over everything above)
func Encode(f Frame) []byte {
	size := 4 + 2
	for _, p := range f.Parts {
		size += 1 + 4 + len(p.Bytes)
	}
	buf := make([]byte, size+4)

	binary.LittleEndian.PutUint32(buf[0:4], f.EventID)
	binary.LittleEndian.PutUint16(buf[4:6], uint16(len(f.Parts)))
	off := 6
	for _, p := range f.Parts {
		buf[off] = p.Tag
		off++
		binary.LittleEndian.PutUint32(buf[off:off+4], uint32(len(p.Bytes)))
		off += 4
		copy(buf[off:off+len(p.Bytes)], p.Bytes)
		off += len(p.Bytes)
	}
	crc := crc32.ChecksumIEEE(buf[:off])
	binary.LittleEndian.PutUint32(buf[off:off+4], crc)
	return buf
}

// Decode parses one frame record from buf, returning the frame, the
// number of bytes consumed, and whether its CRC validated.
func Decode(buf []byte) (Frame, int, bool, error) {
	if len(buf) < 6 {
		return Frame{}, 0, false, fmt.Errorf("frame: truncated header")
	}
	evid := binary.LittleEndian.Uint32(buf[0:4])
	nparts := int(binary.LittleEndian.Uint16(buf[4:6]))

	off := 6
	parts := make([]Part, 0, nparts)
	for i := 0; i < nparts; i++ {
		if off+5 > len(buf) {
			return Frame{}, 0, false, fmt.Errorf("frame: truncated part header")
		}
		tag := buf[off]
		length := int(binary.LittleEndian.Uint32(buf[off+1 : off+5]))
		off += 5
		if off+length > len(buf) {
			return Frame{}, 0, false, fmt.Errorf("frame: truncated part body")
		}
		parts = append(parts, Part{Tag: tag, Bytes: buf[off : off+length]})
		off += length
	}
	if off+4 > len(buf) {
		return Frame{}, 0, false, fmt.Errorf("frame: truncated crc")
	}
	storedCRC := binary.LittleEndian.Uint32(buf[off : off+4])
	computed := crc32.ChecksumIEEE(buf[:off])
	off += 4

	return Frame{EventID: evid, Parts: parts}, off, storedCRC == computed, nil
}
