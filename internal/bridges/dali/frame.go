package dali

import "time"

// Edge is one bus level transition reported by the hardware.
type Edge struct {
	// Rising is true for a low-to-high transition.
	Rising bool

	// Tick is the daemon's microsecond timestamp for the transition.
	// Wraps every ~72 minutes; differences use uint32 subtraction.
	Tick uint32

	// Duration is the time the line spent at the previous level, i.e.
	// the gap since the preceding edge.
	Duration time.Duration
}

// Frame is one decoded bus frame.
//
// A frame is delivered when the inter-frame silence timeout fires while
// accumulation was in progress. Bits may be less than a full command
// length if the bus went quiet early; consumers decide what to do with
// partial frames.
type Frame struct {
	// Value is the accumulated frame value, MSB first.
	Value uint32

	// Bits is the number of bits accumulated.
	Bits int

	// Trace is the raw edge sequence that produced this frame, kept for
	// diagnostics. The slice is owned by the receiver.
	Trace []Edge

	// Received is when the frame was terminated.
	Received time.Time
}
