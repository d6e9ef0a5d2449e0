package event

import (
	"io"

	"github.com/gaps-collab/tofdaq/internal/tof/telemetry"
)

// FrameSource replays previously-written frames for the sweep pass.
type FrameSource interface {
	Next() (*Frame, error)
}

// Sweep performs the second pass: re-read frames the main pass wrote, and
// for each frame whose event-id is a key in earlier or later, splice the
// cached telemetry packet in before re-writing. It is the caller's
// responsibility to point dst at a fresh clean/ directory and to remove
// the pre-sweep files once Sweep returns successfully (tofmerge's sweepRun
// does both).
func Sweep(src FrameSource, dst Sink, earlier, later map[uint32]Packet) (spliced int, err error) {
	for {
		f, err := src.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return spliced, err
		}

		if p, ok := earlier[f.EventID]; ok {
			f.put(p)
			delete(earlier, f.EventID)
			spliced++
		} else if p, ok := later[f.EventID]; ok {
			f.put(p)
			delete(later, f.EventID)
			spliced++
		}

		if err := dst.Write(f); err != nil {
			return spliced, err
		}
	}
	if len(earlier) > 0 || len(later) > 0 {
		telemetry.Ops("event: sweep finished with %d earlier and %d later telemetry packets unmatched", len(earlier), len(later))
	}
	return spliced, nil
}
