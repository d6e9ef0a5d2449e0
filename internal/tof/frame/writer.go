package frame

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/gaps-collab/tofdaq/internal/tof/telemetry"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Codec selects the per-subrun-file compression applied to each record.
// Active (pre-sweep) files use CodecLZ4 for low-latency appends; the
// sweep pass recompresses finished files with CodecZstd for archival
// density, since sweep output is write-once.
type Codec uint8

const (
	CodecNone Codec = iota
	CodecLZ4
	CodecZstd
)

// fileMagic + codec byte form the 5-byte header every subrun file starts
// with, so a reader can pick the right decompressor without being told
// out of band.
var fileMagic = [4]byte{'T', 'F', 'G', 'P'}

// Writer appends frames to a rotating sequence of subrun files named
// "<run>_<subrun>.gaps" inside dir.
type Writer struct {
	dir                string
	runID              int
	subrun             int
	maxFramesPerSubrun int
	codec              Codec

	f            *os.File
	framesInFile int
}

// NewWriter creates a Writer rooted at dir for run runID, rotating every
// maxFramesPerSubrun frames, compressing each record with codec.
func NewWriter(dir string, runID, maxFramesPerSubrun int, codec Codec) (*Writer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	w := &Writer{dir: dir, runID: runID, maxFramesPerSubrun: maxFramesPerSubrun, codec: codec}
	if err := w.rotate(); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *Writer) subrunPath(subrun int) string {
	return filepath.Join(w.dir, fmt.Sprintf("%d_%d.gaps", w.runID, subrun))
}

func (w *Writer) rotate() error {
	if w.f != nil {
		if err := w.f.Close(); err != nil {
			return err
		}
		w.subrun++
	}
	f, err := os.Create(w.subrunPath(w.subrun))
	if err != nil {
		return err
	}
	hdr := append(append([]byte{}, fileMagic[:]...), byte(w.codec))
	if _, err := f.Write(hdr); err != nil {
		f.Close()
		return err
	}
	w.f = f
	w.framesInFile = 0
	telemetry.Diag("frame: opened subrun file %s (codec=%d)", w.subrunPath(w.subrun), w.codec)
	return nil
}

// WriteFrame encodes and appends one frame, rotating to a new subrun file
// first if this file has reached its frame budget.
func (w *Writer) WriteFrame(fr Frame) error {
	if w.maxFramesPerSubrun > 0 && w.framesInFile >= w.maxFramesPerSubrun {
		if err := w.rotate(); err != nil {
			return err
		}
	}
	record := Encode(fr)
	compressed, err := compress(w.codec, record)
	if err != nil {
		return err
	}

	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(compressed)))
	if _, err := w.f.Write(lenBuf[:]); err != nil {
		return err
	}
	if _, err := w.f.Write(compressed); err != nil {
		return err
	}
	w.framesInFile++
	return nil
}

// Close flushes and closes the current subrun file.
func (w *Writer) Close() error {
	if w.f == nil {
		return nil
	}
	return w.f.Close()
}

func compress(codec Codec, data []byte) ([]byte, error) {
	switch codec {
	case CodecNone:
		return data, nil
	case CodecLZ4:
		var buf bytes.Buffer
		zw := lz4.NewWriter(&buf)
		if _, err := zw.Write(data); err != nil {
			return nil, err
		}
		if err := zw.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	case CodecZstd:
		enc, err := zstd.NewWriter(nil)
		if err != nil {
			return nil, err
		}
		defer enc.Close()
		return enc.EncodeAll(data, nil), nil
	default:
		return nil, fmt.Errorf("frame: unknown codec %d", codec)
	}
}

func decompress(codec Codec, data []byte) ([]byte, error) {
	switch codec {
	case CodecNone:
		return data, nil
	case CodecLZ4:
		zr := lz4.NewReader(bytes.NewReader(data))
		return io.ReadAll(zr)
	case CodecZstd:
		dec, err := zstd.NewReader(nil)
		if err != nil {
			return nil, err
		}
		defer dec.Close()
		return dec.DecodeAll(data, nil)
	default:
		return nil, fmt.Errorf("frame: unknown codec %d", codec)
	}
}
