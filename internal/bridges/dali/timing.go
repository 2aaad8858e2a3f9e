package dali

import (
	"time"

	"github.com/nerrad567/gray-logic-dali/internal/infrastructure/config"
)

// Symbol is the timing class of one half-bit segment.
type Symbol int

const (
	// SymbolInvalid marks a duration outside both tolerance windows.
	SymbolInvalid Symbol = iota

	// SymbolShort marks a duration of roughly one half-bit period.
	SymbolShort

	// SymbolLong marks a duration of roughly two half-bit periods.
	SymbolLong
)

// String returns the symbol name for logging.
func (s Symbol) String() string {
	switch s {
	case SymbolShort:
		return "short"
	case SymbolLong:
		return "long"
	default:
		return "invalid"
	}
}

// Nominal DALI link-layer timing. The half-bit period is 416.7us; the
// transmitter rounds to whole microseconds because waveform delays are
// integral.
const (
	// HalfBitPeriod is the nominal transmitted half-bit duration.
	HalfBitPeriod = 417 * time.Microsecond

	// InterFrameSilence is the idle period that separates frames on the bus.
	InterFrameSilence = 1800 * time.Microsecond

	// DefaultFrameTimeout is how long the receiver waits without an edge
	// before treating the frame as complete. Roughly twice the long-segment
	// upper bound.
	DefaultFrameTimeout = 2 * time.Millisecond
)

// TimingConstants parameterises the timing classifier and the encoder.
// Both directions of the codec share one set of constants so transmitted
// frames always classify cleanly on the receive side.
type TimingConstants struct {
	// HalfBit is the transmitted half-bit duration.
	HalfBit time.Duration

	// ShortMin and ShortMax bound the window for a one-half-bit segment.
	// Both bounds are exclusive.
	ShortMin time.Duration
	ShortMax time.Duration

	// LongMin and LongMax bound the window for a two-half-bit segment.
	// Both bounds are exclusive.
	LongMin time.Duration
	LongMax time.Duration

	// FrameTimeout is the bus silence that terminates a frame.
	FrameTimeout time.Duration
}

// DefaultTiming returns the nominal DALI receive tolerance windows:
// short 350-490us, long 760-900us, frame timeout 2ms.
func DefaultTiming() TimingConstants {
	return TimingConstants{
		HalfBit:      HalfBitPeriod,
		ShortMin:     350 * time.Microsecond,
		ShortMax:     490 * time.Microsecond,
		LongMin:      760 * time.Microsecond,
		LongMax:      900 * time.Microsecond,
		FrameTimeout: DefaultFrameTimeout,
	}
}

// TimingFromConfig builds timing constants from configuration overrides.
// Zero-valued fields fall back to the nominal defaults.
func TimingFromConfig(cfg config.BusTimingConfig) TimingConstants {
	tc := DefaultTiming()
	if cfg.HalfBitUS > 0 {
		tc.HalfBit = time.Duration(cfg.HalfBitUS) * time.Microsecond
	}
	if cfg.ShortMinUS > 0 {
		tc.ShortMin = time.Duration(cfg.ShortMinUS) * time.Microsecond
	}
	if cfg.ShortMaxUS > 0 {
		tc.ShortMax = time.Duration(cfg.ShortMaxUS) * time.Microsecond
	}
	if cfg.LongMinUS > 0 {
		tc.LongMin = time.Duration(cfg.LongMinUS) * time.Microsecond
	}
	if cfg.LongMaxUS > 0 {
		tc.LongMax = time.Duration(cfg.LongMaxUS) * time.Microsecond
	}
	if cfg.FrameTimeoutMS > 0 {
		tc.FrameTimeout = time.Duration(cfg.FrameTimeoutMS) * time.Millisecond
	}
	return tc
}

// Validate checks that the timing windows are internally consistent.
//
// Returns:
//   - error: ErrInvalidTiming if any window is inverted, the windows
//     overlap, or the frame timeout would fire inside a legal long segment
func (tc TimingConstants) Validate() error {
	if tc.HalfBit <= 0 {
		return ErrInvalidTiming
	}
	if tc.ShortMin <= 0 || tc.ShortMax <= tc.ShortMin {
		return ErrInvalidTiming
	}
	if tc.LongMin <= tc.ShortMax || tc.LongMax <= tc.LongMin {
		return ErrInvalidTiming
	}
	if tc.FrameTimeout <= tc.LongMax {
		return ErrInvalidTiming
	}
	return nil
}

// Classify maps an edge-to-edge duration to a symbol class.
//
// This is the single source of timing truth for both directions: the
// decoder classifies received segments with it and the loopback tests
// verify encoded segments against it. Bounds are exclusive on both sides.
func (tc TimingConstants) Classify(d time.Duration) Symbol {
	switch {
	case d > tc.ShortMin && d < tc.ShortMax:
		return SymbolShort
	case d > tc.LongMin && d < tc.LongMax:
		return SymbolLong
	default:
		return SymbolInvalid
	}
}
