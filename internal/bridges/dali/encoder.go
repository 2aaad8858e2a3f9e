package dali

import (
	"fmt"
	"time"
)

// Segment is one level/duration element of an encoded pulse train.
type Segment struct {
	// High is the output level for this segment.
	High bool

	// Duration is how long the level is held.
	Duration time.Duration
}

// PulseTrain is a declarative waveform for one encoded frame: a leading
// start cell, two half-bit segments per data bit, and a trailing stop
// segment at idle level. Playback and repeat handling belong to the
// Transmitter.
type PulseTrain []Segment

// validateFrame checks a (value, bit count) pair against the wire limits.
// Shared by Encode and Transmitter.Send so invalid frames are rejected
// before any hardware interaction.
func validateFrame(value uint32, bits int) error {
	if bits < 1 || bits > 32 {
		return fmt.Errorf("%w: got %d", ErrInvalidBitCount, bits)
	}
	if bits < 32 && value >= 1<<bits {
		return fmt.Errorf("%w: %#x needs more than %d bits", ErrValueRange, value, bits)
	}
	return nil
}

// Encode turns a (value, bit count) pair into a Manchester pulse train.
//
// The wire format is: one '1' start cell, then each data bit MSB first as
// a two-half cell (high-then-low for '1', low-then-high for '0', each one
// half-bit period), then a stop segment of two half-bit periods at idle
// low. Values that do not fit the declared bit count are rejected rather
// than truncated.
//
// Parameters:
//   - value: The frame value
//   - bits: The frame bit length (1-32)
//   - tc: Timing constants; HalfBit sets the segment durations
//
// Returns:
//   - PulseTrain: The encoded waveform
//   - error: ErrInvalidBitCount or ErrValueRange on bad input
func Encode(value uint32, bits int, tc TimingConstants) (PulseTrain, error) {
	if err := validateFrame(value, bits); err != nil {
		return nil, err
	}

	te := tc.HalfBit

	// Start cell plus two halves per bit plus the stop segment.
	train := make(PulseTrain, 0, 2+2*bits+1)
	train = append(train,
		Segment{High: true, Duration: te},
		Segment{High: false, Duration: te},
	)

	for i := bits - 1; i >= 0; i-- {
		if value>>uint(i)&1 == 1 {
			train = append(train,
				Segment{High: true, Duration: te},
				Segment{High: false, Duration: te},
			)
		} else {
			train = append(train,
				Segment{High: false, Duration: te},
				Segment{High: true, Duration: te},
			)
		}
	}

	train = append(train, Segment{High: false, Duration: 2 * te})
	return train, nil
}

// Duration returns the total playback time of the train.
func (p PulseTrain) Duration() time.Duration {
	var total time.Duration
	for _, s := range p {
		total += s.Duration
	}
	return total
}

// Edges renders the train as the edge sequence a receiver on the same bus
// would observe. Adjacent segments at the same level merge into one held
// period, so the result is exactly the transitions.
//
// The first edge's Duration carries startSilence, the idle period that
// preceded the frame. Ticks start at startTick and advance by the held
// durations in microseconds.
func (p PulseTrain) Edges(startTick uint32, startSilence time.Duration) []Edge {
	edges := make([]Edge, 0, len(p))

	level := false // bus idles low
	held := startSilence
	tick := startTick

	for _, s := range p {
		if s.High != level {
			edges = append(edges, Edge{
				Rising:   s.High,
				Tick:     tick,
				Duration: held,
			})
			level = s.High
			held = 0
		}
		held += s.Duration
		tick += uint32(s.Duration / time.Microsecond)
	}

	return edges
}
