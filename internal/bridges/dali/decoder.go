package dali

import (
	"sync/atomic"
	"time"
)

// decodeState is the receive state machine state.
type decodeState int

const (
	// stateIdle means the bus is quiet; waiting for a start edge.
	stateIdle decodeState = iota

	// stateStart means a start edge arrived; the start cell is in flight.
	stateStart

	// stateAccumulating means data bit cells are being collected.
	stateAccumulating
)

// AbortReason classifies why an in-progress frame was discarded.
type AbortReason string

const (
	// AbortGlitch means a segment duration fell outside both tolerance
	// windows.
	AbortGlitch AbortReason = "glitch"

	// AbortMalformed means the segment pair classified cleanly but forms
	// a combination no legal Manchester stream can produce.
	AbortMalformed AbortReason = "malformed"

	// AbortOverflow means the frame exceeded the maximum bit length.
	AbortOverflow AbortReason = "overflow"
)

// maxFrameBits is the widest frame the accumulator can hold.
const maxFrameBits = 32

// Watchdog is the re-armable inter-frame silence timer. The decoder
// cancels it on every edge and re-arms it after processing, so it fires
// only when the bus has been quiet for a full timeout.
//
// Implementations must make Arm and Cancel idempotent.
type Watchdog interface {
	// Arm schedules the timeout.
	Arm()

	// Cancel disarms a pending timeout.
	Cancel()
}

// nopWatchdog is used when no watchdog is wired (pure decode tests drive
// HandleTimeout directly).
type nopWatchdog struct{}

func (nopWatchdog) Arm()    {}
func (nopWatchdog) Cancel() {}

// FrameHandler is invoked once per terminated frame.
type FrameHandler func(Frame)

// AbortHandler is invoked when an in-progress frame is discarded.
type AbortHandler func(reason AbortReason, edgeCount int)

// DecoderStats is a snapshot of the decoder's cumulative counters.
// Aborts are silent on the bus (line noise is expected), so the counters
// are the only way callers can detect data loss.
type DecoderStats struct {
	FramesDelivered uint64 `json:"frames_delivered"`
	GlitchAborts    uint64 `json:"glitch_aborts"`
	MalformedAborts uint64 `json:"malformed_aborts"`
	OverflowAborts  uint64 `json:"overflow_aborts"`
}

// Decoder is the edge-driven receive state machine.
//
// It consumes a stream of edge events, pairs consecutive opposite
// transitions into Manchester bit cells, and delivers a Frame when the
// inter-frame silence timeout fires. Malformed cells abort the attempt
// without emission; nothing propagates out of the edge path, so the
// receive loop never destabilises on noise.
//
// Thread Safety: HandleEdge and HandleTimeout must be called from a
// single goroutine (the edge loop). Stats is safe from any goroutine.
type Decoder struct {
	timing   TimingConstants
	watchdog Watchdog
	onFrame  FrameHandler
	onAbort  AbortHandler

	state     decodeState
	value     uint32
	bits      int
	prev      byte
	edgeCount int
	pending   time.Duration
	trace     []Edge

	framesDelivered atomic.Uint64
	glitchAborts    atomic.Uint64
	malformedAborts atomic.Uint64
	overflowAborts  atomic.Uint64
}

// NewDecoder creates a decoder with the given timing constants.
//
// Parameters:
//   - tc: Timing windows for segment classification
//   - wd: Inter-frame silence timer (nil for none; tests drive
//     HandleTimeout directly)
//   - onFrame: Delivery callback, invoked from the edge goroutine; it
//     must not block (hand off to a queue)
func NewDecoder(tc TimingConstants, wd Watchdog, onFrame FrameHandler) *Decoder {
	if wd == nil {
		wd = nopWatchdog{}
	}
	return &Decoder{
		timing:   tc,
		watchdog: wd,
		onFrame:  onFrame,
		state:    stateIdle,
	}
}

// SetAbortHandler registers a callback for discarded frames.
// Must be called before the first edge.
func (d *Decoder) SetAbortHandler(h AbortHandler) {
	d.onAbort = h
}

// Stats returns a snapshot of the cumulative counters.
func (d *Decoder) Stats() DecoderStats {
	return DecoderStats{
		FramesDelivered: d.framesDelivered.Load(),
		GlitchAborts:    d.glitchAborts.Load(),
		MalformedAborts: d.malformedAborts.Load(),
		OverflowAborts:  d.overflowAborts.Load(),
	}
}

// HandleEdge processes one bus transition.
//
// Contract, in order: cancel the pending timeout; a rising edge while
// idle starts a new frame (a falling edge while idle is residue from an
// aborted attempt and is ignored); the raw event joins the trace
// regardless of validity; completed segment pairs decode into bits; the
// timeout is re-armed before returning.
func (d *Decoder) HandleEdge(e Edge) {
	d.watchdog.Cancel()

	if d.state == stateIdle {
		if !e.Rising {
			return
		}
		d.state = stateStart
		d.value = 0
		d.bits = 0
		d.prev = 1 // the start cell is a '1'
		d.edgeCount = 0
		d.pending = 0
		d.trace = d.trace[:0]
	}

	d.trace = append(d.trace, e)
	d.edgeCount++

	switch {
	case d.edgeCount == 1:
		// Start edge; its duration is the preceding silence.
	case d.edgeCount == 2:
		// Mid-cell transition of the start bit. Its high half must still
		// classify as short or the start was noise.
		if d.timing.Classify(e.Duration) != SymbolShort {
			d.abort(AbortGlitch)
			return
		}
		d.state = stateAccumulating
	case d.edgeCount%2 == 1:
		// First half of a bit cell; held until its partner arrives.
		d.pending = e.Duration
	default:
		if !d.decodePair(d.pending, e.Duration) {
			return
		}
	}

	d.watchdog.Arm()
}

// decodePair decodes one completed (first, second) segment pair into data
// bits. Returns false if the attempt was aborted.
//
// Each half classifies independently; the pair and the previous bit form
// a three-bit action code. Deriving the full Manchester table from the
// four legal bit transitions (00, 01, 10, 11) leaves exactly five
// reachable codes; everything else is either out-of-tolerance timing or
// a combination no legal stream can produce.
func (d *Decoder) decodePair(first, second time.Duration) bool {
	a := d.timing.Classify(first)
	b := d.timing.Classify(second)
	if a == SymbolInvalid || b == SymbolInvalid {
		d.abort(AbortGlitch)
		return false
	}

	action := uint8(d.prev) << 2
	if a == SymbolLong {
		action |= 1
	}
	if b == SymbolLong {
		action |= 2
	}

	switch action {
	case 0: // prev 0, short+short: another '0'
		return d.appendBit(0)
	case 2: // prev 0, short+long: '0' then the long half opens a '1'
		return d.appendBit(0) && d.appendBit(1)
	case 4: // prev 1, short+short: another '1'
		return d.appendBit(1)
	case 5: // prev 1, long+short: the long half crossed into a '0'
		return d.appendBit(0)
	case 7: // prev 1, long+long: '0' then a '1'
		return d.appendBit(0) && d.appendBit(1)
	default:
		// Codes 1, 3 and 6 would need the line to hold through a cell
		// boundary both halves of which belong to the same bit. No legal
		// stream produces them.
		d.abort(AbortMalformed)
		return false
	}
}

// appendBit shifts one decoded bit into the accumulator.
// Returns false if the frame overflowed and was aborted.
func (d *Decoder) appendBit(bit byte) bool {
	if d.bits >= maxFrameBits {
		d.abort(AbortOverflow)
		return false
	}
	d.value = d.value<<1 | uint32(bit)
	d.bits++
	d.prev = bit
	return true
}

// abort discards the in-progress frame and returns to idle.
// Nothing is emitted; the attempt is only visible through the counters
// and the optional abort handler.
func (d *Decoder) abort(reason AbortReason) {
	switch reason {
	case AbortGlitch:
		d.glitchAborts.Add(1)
	case AbortMalformed:
		d.malformedAborts.Add(1)
	case AbortOverflow:
		d.overflowAborts.Add(1)
	}

	edges := d.edgeCount
	d.state = stateIdle
	d.edgeCount = 0
	d.watchdog.Cancel()

	if d.onAbort != nil {
		d.onAbort(reason, edges)
	}
}

// HandleTimeout processes an inter-frame silence expiry.
//
// While a frame is in progress the accumulated bits are delivered, even
// when zero bits decoded (the trace still identifies the attempt). While
// idle the expiry is a no-op; the hardware watchdog repeats on a quiet
// bus and those repeats mean nothing.
func (d *Decoder) HandleTimeout() {
	if d.state == stateIdle {
		return
	}

	trace := make([]Edge, len(d.trace))
	copy(trace, d.trace)

	frame := Frame{
		Value:    d.value,
		Bits:     d.bits,
		Trace:    trace,
		Received: time.Now(),
	}

	d.state = stateIdle
	d.edgeCount = 0
	d.framesDelivered.Add(1)

	if d.onFrame != nil {
		d.onFrame(frame)
	}
}
