package wire

import (
	"encoding/binary"
	"fmt"
	"math/bits"
)

// Fixed byte widths of the RBEvent header fields, in wire order, following
// the head marker and the 2-byte status word.
const (
	headerStatusLen   = 2
	headerLengthLen   = 2
	headerROILen      = 2
	headerDNALen      = 8
	headerFWHashLen   = 2
	headerBoardIDLen  = 2
	headerChMaskLen   = 2
	headerEventCntLen = 4
	headerDTap0Len    = 2
	headerDTap1Len    = 2
	headerTimestampLen = 6

	headerFixedLen = 2 /*head*/ + headerStatusLen + headerLengthLen + headerROILen +
		headerDNALen + headerFWHashLen + headerBoardIDLen + headerChMaskLen +
		headerEventCntLen + headerDTap0Len + headerDTap1Len + headerTimestampLen

	channelHeadLen = 2
	channelCRCLen  = 4
	footerCRCLen   = 4
	footerTailLen  = 2
	footerStopLen  = 2
	footerFixedLen = footerStopLen + footerCRCLen + footerTailLen
)

// DecodeRBEvent decodes one RBEvent packet starting at data[0], which must
// begin with the head marker. It returns the decoded packet and the number
// of bytes consumed, or one of the taxonomy errors in errors.go.
func DecodeRBEvent(data []byte) (RBEventPacket, int, error) {
	var pkt RBEventPacket

	if len(data) < 6 {
		return pkt, 0, ErrTruncated
	}
	if binary.LittleEndian.Uint16(data[0:2]) != HeadMarker {
		return pkt, 0, ErrMalformedHeader
	}
	lengthWords := binary.LittleEndian.Uint16(data[4:6])
	lengthBytes := int(lengthWords) * 2
	if lengthBytes < headerFixedLen+footerFixedLen {
		return pkt, 0, ErrMalformedHeader
	}
	if len(data) < lengthBytes {
		return pkt, 0, ErrTruncated
	}
	body := data[:lengthBytes]

	if binary.LittleEndian.Uint16(body[lengthBytes-2:lengthBytes]) != TailMarker {
		return pkt, lengthBytes, ErrTailMismatch
	}

	crcOffset := lengthBytes - footerFixedLen + footerStopLen
	storedCRC, err := decodeStoredCRC(body[crcOffset : crcOffset+4])
	if err != nil {
		return pkt, lengthBytes, ErrMalformedHeader
	}
	computedCRC := crc32IEEE(body[:crcOffset])
	pkt.CRCOk = storedCRC == computedCRC

	off := 6
	pkt.Header.ROI = binary.LittleEndian.Uint16(body[off : off+headerROILen])
	off += headerROILen
	pkt.Header.DNA = wordSwap64(body[off : off+headerDNALen])
	off += headerDNALen
	pkt.Header.FWHash = binary.LittleEndian.Uint16(body[off : off+headerFWHashLen])
	off += headerFWHashLen
	pkt.Header.BoardID = binary.LittleEndian.Uint16(body[off : off+headerBoardIDLen])
	off += headerBoardIDLen
	pkt.Header.ChannelMask = binary.LittleEndian.Uint16(body[off : off+headerChMaskLen])
	off += headerChMaskLen
	pkt.Header.EventCount = wordSwap32(body[off : off+headerEventCntLen])
	off += headerEventCntLen
	pkt.Header.DTap0 = binary.LittleEndian.Uint16(body[off : off+headerDTap0Len])
	off += headerDTap0Len
	pkt.Header.DTap1 = binary.LittleEndian.Uint16(body[off : off+headerDTap1Len])
	off += headerDTap1Len
	pkt.Header.Timestamp = wordSwap48(body[off : off+headerTimestampLen])
	off += headerTimestampLen

	traceLen := int(pkt.Header.ROI) + 1
	nchan := bits.OnesCount16(pkt.Header.ChannelMask)

	channels := make([]ChannelBlock, 0, nchan)
	for ch := 0; ch < 16; ch++ {
		if pkt.Header.ChannelMask&(1<<uint(ch)) == 0 {
			continue
		}
		if off+channelHeadLen > crcOffset {
			return pkt, lengthBytes, ErrTruncated
		}
		off += channelHeadLen // channel head word, not otherwise validated

		sampleBytes := traceLen * 2
		if off+sampleBytes+channelCRCLen > crcOffset {
			return pkt, lengthBytes, ErrTruncated
		}
		raw := body[off : off+sampleBytes]
		samples := make([]uint16, traceLen)
		for i := 0; i < traceLen; i++ {
			samples[i] = maskADC(binary.LittleEndian.Uint16(raw[i*2 : i*2+2]))
		}
		off += sampleBytes

		storedChCRC, err := decodeStoredCRC(body[off : off+4])
		if err != nil {
			return pkt, lengthBytes, ErrMalformedHeader
		}
		off += channelCRCLen
		chCRCOk := storedChCRC == crc32IEEE(raw)

		channels = append(channels, ChannelBlock{
			Channel: ch,
			Samples: samples,
			CRCOk:   chCRCOk,
		})
	}
	pkt.Channels = channels

	if off != crcOffset-footerStopLen {
		return pkt, lengthBytes, fmt.Errorf("%w: channel data did not consume exactly to stop-cell offset", ErrDecodeError)
	}
	pkt.StopCell = binary.LittleEndian.Uint16(body[off : off+footerStopLen])

	return pkt, lengthBytes, nil
}

// ScanResult describes one packet located by Scan, successful or not.
type ScanResult struct {
	Offset int
	Length int
	Tag    PacketTag
	Err    error
}

// Scan forward-scans data for head/tail-delimited packets, advancing one
// byte at a time whenever a candidate header fails validation, and the
// packet's full byte count whenever decode succeeds (even if the decode
// carries a CRC mismatch — a corrupt-but-well-framed packet is still
// consumed in full so the scanner does not resynchronize mid-packet).
func Scan(data []byte, decode func([]byte) (int, PacketTag, error)) []ScanResult {
	var results []ScanResult
	i := 0
	for i < len(data)-1 {
		if binary.LittleEndian.Uint16(data[i:i+2]) != HeadMarker {
			i++
			continue
		}
		n, tag, err := decode(data[i:])
		switch {
		case err == nil:
			results = append(results, ScanResult{Offset: i, Length: n, Tag: tag})
			i += n
		case n > 0:
			// Framed (length located) but invalid in some other way (tail
			// mismatch, channel blocks that do not fit the length): still
			// consume the full frame. A bad CRC is not an error here; it
			// only clears the decoded packet's CRCOk.
			results = append(results, ScanResult{Offset: i, Length: n, Err: err})
			i += n
		default:
			results = append(results, ScanResult{Offset: i, Err: err})
			i++
		}
	}
	return results
}
