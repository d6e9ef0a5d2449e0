package frame

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/gaps-collab/tofdaq/internal/tof/telemetry"
)

// IndexEntry locates one frame within a subrun file.
type IndexEntry struct {
	EventID uint32
	Offset  int64 // byte offset of the length-prefixed record, including the length
	Length  int   // total on-disk record size, including the 4-byte length prefix
}

// Reader opens a single subrun file and reconstructs its index by a
// forward scan, since the file format carries no separate index block —
// each subrun file is self-describing.
type Reader struct {
	f     *os.File
	codec Codec
	index []IndexEntry
}

// Open reads path's header and scans it end to end to build the index.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	hdr := make([]byte, 5)
	if _, err := io.ReadFull(f, hdr); err != nil {
		f.Close()
		return nil, fmt.Errorf("frame: %s: %w", path, err)
	}
	for i := range fileMagic {
		if hdr[i] != fileMagic[i] {
			f.Close()
			return nil, fmt.Errorf("frame: %s: bad magic", path)
		}
	}
	r := &Reader{f: f, codec: Codec(hdr[4])}
	if err := r.buildIndex(); err != nil {
		f.Close()
		return nil, err
	}
	return r, nil
}

func (r *Reader) buildIndex() error {
	offset := int64(5)
	for {
		var lenBuf [4]byte
		n, err := io.ReadFull(r.f, lenBuf[:])
		if err == io.EOF || (err == io.ErrUnexpectedEOF && n == 0) {
			break
		}
		if err != nil {
			return err
		}
		recLen := int(binary.LittleEndian.Uint32(lenBuf[:]))
		body := make([]byte, recLen)
		if _, err := io.ReadFull(r.f, body); err != nil {
			return fmt.Errorf("frame: truncated record at offset %d: %w", offset, err)
		}
		raw, err := decompress(r.codec, body)
		if err != nil {
			telemetry.Ops("frame: failed to decompress record at offset %d: %v", offset, err)
			offset += int64(4 + recLen)
			continue
		}
		evid, _, ok, err := Decode(raw)
		if err != nil {
			telemetry.Ops("frame: failed to decode record at offset %d: %v", offset, err)
			offset += int64(4 + recLen)
			continue
		}
		if !ok {
			telemetry.Ops("frame: frame crc mismatch for event %d at offset %d", evid.EventID, offset)
		}
		r.index = append(r.index, IndexEntry{EventID: evid.EventID, Offset: offset, Length: 4 + recLen})
		offset += int64(4 + recLen)
	}
	return nil
}

// Index returns the reconstructed (event-id -> location) index.
func (r *Reader) Index() []IndexEntry {
	return r.index
}

// ReadAt reads and decodes the frame at IndexEntry e.
func (r *Reader) ReadAt(e IndexEntry) (Frame, bool, error) {
	body := make([]byte, e.Length-4)
	if _, err := r.f.ReadAt(body, e.Offset+4); err != nil {
		return Frame{}, false, err
	}
	raw, err := decompress(r.codec, body)
	if err != nil {
		return Frame{}, false, err
	}
	fr, _, ok, err := Decode(raw)
	return fr, ok, err
}

// All reads every frame in the file in on-disk order.
func (r *Reader) All() ([]Frame, error) {
	out := make([]Frame, 0, len(r.index))
	for _, e := range r.index {
		fr, _, err := r.ReadAt(e)
		if err != nil {
			return out, err
		}
		out = append(out, fr)
	}
	return out, nil
}

// Close closes the underlying file.
func (r *Reader) Close() error {
	return r.f.Close()
}
