package wire

import (
	"encoding/binary"
	"math/bits"
)

// reverseWordSwap32 produces the word-swapped byte encoding of a 32-bit
// value such that wordSwap32 applied to the result recovers v.
func reverseWordSwap32(v uint32) []byte {
	var be [4]byte
	binary.BigEndian.PutUint32(be[:], v)
	return []byte{be[1], be[0], be[3], be[2]}
}

func reverseWordSwap48(v uint64) []byte {
	var be [8]byte
	binary.BigEndian.PutUint64(be[:], v)
	b := be[2:8]
	return []byte{b[1], b[0], b[3], b[2], b[5], b[4]}
}

func reverseWordSwap64(v uint64) []byte {
	var be [8]byte
	binary.BigEndian.PutUint64(be[:], v)
	return []byte{be[1], be[0], be[3], be[2], be[5], be[4], be[7], be[6]}
}

// EncodeRBEvent serializes pkt into the wire format DecodeRBEvent accepts,
// recomputing both the packet CRC32 and every channel CRC32 from the
// current sample data (CRCOk fields on the input are ignored).
func EncodeRBEvent(pkt RBEventPacket) []byte {
	traceLen := int(pkt.Header.ROI) + 1

	bodyLen := headerFixedLen
	for range pkt.Channels {
		bodyLen += channelHeadLen + traceLen*2 + channelCRCLen
	}
	bodyLen += footerFixedLen

	buf := make([]byte, bodyLen)
	binary.LittleEndian.PutUint16(buf[0:2], HeadMarker)
	binary.LittleEndian.PutUint16(buf[2:4], 0) // status, unused by this codec
	binary.LittleEndian.PutUint16(buf[4:6], uint16(bodyLen/2))

	off := 6
	binary.LittleEndian.PutUint16(buf[off:off+headerROILen], pkt.Header.ROI)
	off += headerROILen
	copy(buf[off:off+headerDNALen], reverseWordSwap64(pkt.Header.DNA))
	off += headerDNALen
	binary.LittleEndian.PutUint16(buf[off:off+headerFWHashLen], pkt.Header.FWHash)
	off += headerFWHashLen
	binary.LittleEndian.PutUint16(buf[off:off+headerBoardIDLen], pkt.Header.BoardID)
	off += headerBoardIDLen
	binary.LittleEndian.PutUint16(buf[off:off+headerChMaskLen], pkt.Header.ChannelMask)
	off += headerChMaskLen
	copy(buf[off:off+headerEventCntLen], reverseWordSwap32(pkt.Header.EventCount))
	off += headerEventCntLen
	binary.LittleEndian.PutUint16(buf[off:off+headerDTap0Len], pkt.Header.DTap0)
	off += headerDTap0Len
	binary.LittleEndian.PutUint16(buf[off:off+headerDTap1Len], pkt.Header.DTap1)
	off += headerDTap1Len
	copy(buf[off:off+headerTimestampLen], reverseWordSwap48(pkt.Header.Timestamp))
	off += headerTimestampLen

	nchan := bits.OnesCount16(pkt.Header.ChannelMask)
	_ = nchan
	for _, ch := range pkt.Channels {
		binary.LittleEndian.PutUint16(buf[off:off+channelHeadLen], uint16(ch.Channel))
		off += channelHeadLen

		raw := buf[off : off+traceLen*2]
		for i, s := range ch.Samples {
			binary.LittleEndian.PutUint16(raw[i*2:i*2+2], s&0x3FFF)
		}
		off += traceLen * 2

		chCRC := crc32IEEE(raw)
		copy(buf[off:off+channelCRCLen], reverseWordSwap32(chCRC))
		off += channelCRCLen
	}

	binary.LittleEndian.PutUint16(buf[off:off+footerStopLen], pkt.StopCell)
	off += footerStopLen

	crc := crc32IEEE(buf[:off])
	copy(buf[off:off+footerCRCLen], reverseWordSwap32(crc))
	off += footerCRCLen

	binary.LittleEndian.PutUint16(buf[off:off+footerTailLen], TailMarker)

	return buf
}
