// Package event implements the dual-stream event merger: the TOF-driven
// two-pass join between a TOF packet stream and a telemetry packet stream
// that share event-ids but arrive with independent loss and skew.
package event

import (
	"errors"
	"io"
	"sync"

	"github.com/gaps-collab/tofdaq/internal/tof/telemetry"
)

// BufferOverflowSoftLimit is the combined size of telly_earlier and
// telly_later above which the merger logs a soft-overflow warning. It does
// not stop the merge; it is an operator signal that stream skew has grown
// unexpectedly large.
const BufferOverflowSoftLimit = 100_000

// ErrBufferOverflow names the soft-limit condition for callers that want
// to report it as an error; nothing in this package returns it, and
// Stats.Overflowed is what reports whether the limit was exceeded.
var ErrBufferOverflow = errors.New("event: skew buffer soft limit exceeded")

// Packet is the merger's view of one packet from either stream: enough to
// drive the join without needing to know the wire-level encoding.
type Packet struct {
	EventID        uint32
	IsHousekeeping bool
	IsTracker      bool // tracker housekeeping is excluded from frame accumulation
	Raw            []byte
}

// Source yields packets from one stream in arrival order. Next returns
// io.EOF once exhausted.
type Source interface {
	Next() (Packet, error)
}

// slotState tracks how far along the join each event-id has gotten.
type slotState int

const (
	statePending slotState = iota
	stateTofOnlyWritten
	stateTellyCachedEarlier
	stateTellyCachedLater
	stateMergedWritten
)

// Frame is one output unit: the TOF packet for an event-id, plus whatever
// telemetry/housekeeping packets were joined to it.
type Frame struct {
	EventID uint32
	Parts   []Packet
}

func newFrame(evid uint32) *Frame {
	return &Frame{EventID: evid}
}

func (f *Frame) put(p Packet) {
	f.Parts = append(f.Parts, p)
}

// Sink receives completed frames in the order the main pass produces them.
type Sink interface {
	Write(*Frame) error
}

// Stats accumulates the merger's run counters.
type Stats struct {
	NTofErrors     int
	NTellyErrors   int
	FramesWritten  int
	TellyEarlierSz int
	TellyLaterSz   int
}

// Overflowed reports whether the combined skew-buffer size has exceeded
// BufferOverflowSoftLimit at the time Stats was captured.
func (s Stats) Overflowed() bool {
	return s.TellyEarlierSz+s.TellyLaterSz > BufferOverflowSoftLimit
}

// Merger runs the main pass of the event-merging algorithm: TOF stream as
// driver, telemetry stream searched opportunistically for each TOF evid,
// with two bounded skew caches for telemetry packets that arrive out of
// order relative to the TOF driver.
type Merger struct {
	tof   Source
	telly Source
	sink  Sink

	tellyEarlier map[uint32]Packet
	tellyLater   map[uint32]Packet
	slotStates   map[uint32]slotState

	statsMu sync.Mutex
	stats   Stats

	// tellyExhausted remembers that the telemetry stream ran dry, so the
	// main pass stops searching it for subsequent TOF events.
	tellyExhausted bool
}

// NewMerger constructs a Merger over already-primed sources (see Prime).
func NewMerger(tof, telly Source, sink Sink) *Merger {
	return &Merger{
		tof:          tof,
		telly:        telly,
		sink:         sink,
		tellyEarlier: make(map[uint32]Packet),
		tellyLater:   make(map[uint32]Packet),
		slotStates:   make(map[uint32]slotState),
	}
}

// Prime walks the TOF stream forward past leading housekeeping to find the
// first event, then walks the telemetry stream forward to the first
// merged event with evid >= that TOF evid, discarding earlier telemetry
// events; telemetry housekeeping met on the way, and that first matching
// event, are returned in leftoverTelly. The TOF packets it reads are
// consumed from tof. It returns the first TOF event-id, or io.EOF if the
// TOF stream has no events at all.
func Prime(tof, telly Source) (firstTofEvid uint32, leftoverTelly []Packet, err error) {
	var firstEvt *Packet
	for {
		p, err := tof.Next()
		if err == io.EOF {
			return 0, nil, io.EOF
		}
		if err != nil {
			return 0, nil, err
		}
		if p.IsHousekeeping {
			continue
		}
		firstEvt = &p
		break
	}
	firstTofEvid = firstEvt.EventID

	for {
		p, err := telly.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return firstTofEvid, leftoverTelly, err
		}
		if p.IsHousekeeping {
			leftoverTelly = append(leftoverTelly, p)
			continue
		}
		if p.EventID >= firstTofEvid {
			leftoverTelly = append(leftoverTelly, p)
			break
		}
		// earlier telemetry event: discarded during priming
	}
	return firstTofEvid, leftoverTelly, nil
}

// Run executes the main pass: for every TOF packet, try to find its
// telemetry counterpart via the skew caches or by scanning the telemetry
// stream, writing exactly one frame per TOF event (or per TOF housekeeping
// packet).
func (m *Merger) Run() (Stats, error) {
	for {
		tp, err := m.tof.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			m.addTofError()
			telemetry.Ops("event: tof decode error: %v", err)
			continue
		}

		frame := newFrame(tp.EventID)

		if tp.IsHousekeeping {
			frame.put(tp)
			if err := m.sink.Write(frame); err != nil {
				return m.Stats(), err
			}
			m.addFrameWritten()
			continue
		}

		evid := tp.EventID
		frame.put(tp)

		if cached, ok := m.tellyEarlier[evid]; ok {
			delete(m.tellyEarlier, evid)
			frame.put(cached)
			m.slotStates[evid] = stateMergedWritten
			if err := m.sink.Write(frame); err != nil {
				return m.Stats(), err
			}
			m.addFrameWritten()
			continue
		}
		if cached, ok := m.tellyLater[evid]; ok {
			delete(m.tellyLater, evid)
			frame.put(cached)
			m.slotStates[evid] = stateMergedWritten
			if err := m.sink.Write(frame); err != nil {
				return m.Stats(), err
			}
			m.addFrameWritten()
			continue
		}

		matched := m.searchTelly(frame, evid)
		if !matched {
			m.slotStates[evid] = stateTofOnlyWritten
		}
		if err := m.sink.Write(frame); err != nil {
			return m.Stats(), err
		}
		m.addFrameWritten()
		m.syncSkewSizes()
	}
	return m.Stats(), nil
}

// Stats returns a snapshot of the merger's counters, safe to call from a
// concurrent metrics-scraping goroutine while Run is in progress.
func (m *Merger) Stats() Stats {
	m.statsMu.Lock()
	defer m.statsMu.Unlock()
	return m.stats
}

func (m *Merger) addTofError() {
	m.statsMu.Lock()
	m.stats.NTofErrors++
	m.statsMu.Unlock()
}

func (m *Merger) addTellyError() {
	m.statsMu.Lock()
	m.stats.NTellyErrors++
	m.statsMu.Unlock()
}

func (m *Merger) addFrameWritten() {
	m.statsMu.Lock()
	m.stats.FramesWritten++
	m.statsMu.Unlock()
}

func (m *Merger) syncSkewSizes() {
	m.statsMu.Lock()
	m.stats.TellyEarlierSz = len(m.tellyEarlier)
	m.stats.TellyLaterSz = len(m.tellyLater)
	overflowed := m.stats.Overflowed()
	m.statsMu.Unlock()
	if overflowed {
		telemetry.Ops("event: skew buffer soft limit exceeded (earlier=%d later=%d)", len(m.tellyEarlier), len(m.tellyLater))
	}
}

// SkewBuffers returns the merger's current telly_earlier and telly_later
// caches, for handing to Sweep once the main pass has finished.
func (m *Merger) SkewBuffers() (earlier, later map[uint32]Packet) {
	return m.tellyEarlier, m.tellyLater
}

// searchTelly scans the telemetry stream looking for evid's counterpart,
// accumulating housekeeping into frame and caching mismatched events into
// the skew buffers. Returns true if evid's telemetry packet was found and
// attached.
func (m *Merger) searchTelly(frame *Frame, evid uint32) bool {
	if m.tellyExhausted {
		return false
	}
	for {
		tp, err := m.telly.Next()
		if err == io.EOF {
			m.tellyExhausted = true
			return false
		}
		if err != nil {
			m.addTellyError()
			telemetry.Ops("event: telemetry decode error: %v", err)
			continue
		}
		if tp.IsTracker {
			// Tracker packets are dropped entirely rather than cached or
			// accumulated: neither a housekeeping sub-packet nor a
			// matchable event as far as this merger is concerned.
			continue
		}
		if tp.IsHousekeeping {
			frame.put(tp)
			continue
		}
		switch {
		case tp.EventID < evid:
			m.tellyEarlier[tp.EventID] = tp
			m.slotStates[tp.EventID] = stateTellyCachedEarlier
			continue
		case tp.EventID > evid:
			m.tellyLater[tp.EventID] = tp
			m.slotStates[tp.EventID] = stateTellyCachedLater
			return false
		default:
			frame.put(tp)
			m.slotStates[evid] = stateMergedWritten
			return true
		}
	}
}
