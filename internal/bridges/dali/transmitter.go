package dali

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/gray-logic-dali/internal/pigpiod"
)

// WavePlayer is the subset of the pigpio daemon client the transmitter
// needs. Implemented by *pigpiod.Client; tests substitute a fake.
type WavePlayer interface {
	WaveClear() error
	WaveAddGeneric(pulses []pigpiod.Pulse) (int, error)
	WaveCreate() (int, error)
	WaveDelete(waveID int) error
	WaveChain(chain []byte) error
	WaveTxBusy() (bool, error)
	WriteLevel(gpio, level uint32) error
}

// txBusyPollInterval is how often playback completion is checked.
const txBusyPollInterval = 2 * time.Millisecond

// Transmitter plays encoded frames onto the bus through the pigpio
// waveform engine.
//
// Four primitive waveforms are built once at startup: the start cell, a
// '1' cell, a '0' cell and the stop period. Each Send chains them MSB
// first, so no waveform memory is consumed per frame.
//
// Thread Safety: Send is safe for concurrent use. The bus is half-duplex,
// so concurrent sends serialise; a new transmission starts only after the
// previous stop segment and a half-bit of line settling.
type Transmitter struct {
	player WavePlayer
	txPin  uint32
	timing TimingConstants

	waveStart int
	waveBit1  int
	waveBit0  int
	waveStop  int

	// busMu enforces half-duplex exclusivity across Sends.
	busMu sync.Mutex

	framesSent atomic.Uint64
	closed     atomic.Bool
}

// NewTransmitter builds the primitive waveforms and returns a ready
// transmitter. The transmit pin should already be in output mode at idle
// level.
//
// Parameters:
//   - player: Waveform engine (normally *pigpiod.Client)
//   - txPin: BCM GPIO driving the bus
//   - tc: Timing constants; HalfBit sets the cell durations
//
// Returns:
//   - *Transmitter: Ready for Send
//   - error: If any waveform fails to build
func NewTransmitter(player WavePlayer, txPin uint32, tc TimingConstants) (*Transmitter, error) {
	if err := tc.Validate(); err != nil {
		return nil, err
	}

	if err := player.WaveClear(); err != nil {
		return nil, fmt.Errorf("clearing waveforms: %w", err)
	}

	te := uint32(tc.HalfBit / time.Microsecond)

	t := &Transmitter{
		player: player,
		txPin:  txPin,
		timing: tc,
	}

	var err error
	// Start and '1' cells share a shape but get separate ids so the chain
	// script stays readable in daemon logs.
	if t.waveStart, err = t.buildWave(
		pigpiod.OnPulse(txPin, te),
		pigpiod.OffPulse(txPin, te),
	); err != nil {
		return nil, fmt.Errorf("building start wave: %w", err)
	}
	if t.waveBit1, err = t.buildWave(
		pigpiod.OnPulse(txPin, te),
		pigpiod.OffPulse(txPin, te),
	); err != nil {
		return nil, fmt.Errorf("building bit-1 wave: %w", err)
	}
	if t.waveBit0, err = t.buildWave(
		pigpiod.OffPulse(txPin, te),
		pigpiod.OnPulse(txPin, te),
	); err != nil {
		return nil, fmt.Errorf("building bit-0 wave: %w", err)
	}
	if t.waveStop, err = t.buildWave(
		pigpiod.OffPulse(txPin, 2*te),
	); err != nil {
		return nil, fmt.Errorf("building stop wave: %w", err)
	}

	return t, nil
}

// buildWave adds pulses and finalises one waveform.
func (t *Transmitter) buildWave(pulses ...pigpiod.Pulse) (int, error) {
	if _, err := t.player.WaveAddGeneric(pulses); err != nil {
		return 0, err
	}
	return t.player.WaveCreate()
}

// FramesSent returns the number of frames transmitted since startup.
func (t *Transmitter) FramesSent() uint64 {
	return t.framesSent.Load()
}

// Send encodes and transmits one frame, blocking until playback completes
// and the line has settled.
//
// Validation happens before any hardware interaction: a value that does
// not fit the bit count is an error, never a truncation. Some DALI
// configuration commands must arrive twice within 100ms; repeats handles
// that by looping the data chain on the daemon without a round trip per
// repetition.
//
// Parameters:
//   - ctx: Cancels the wait for playback completion
//   - value: The frame value
//   - bits: The frame bit length (1-32)
//   - repeats: How many times to play the frame (1-255), each repetition
//     separated by the stop period
//
// Returns:
//   - error: Validation, hardware, or context error
func (t *Transmitter) Send(ctx context.Context, value uint32, bits, repeats int) error {
	if err := validateFrame(value, bits); err != nil {
		return err
	}
	if repeats < 1 || repeats > 255 {
		return fmt.Errorf("%w: got %d", ErrInvalidRepeat, repeats)
	}
	if t.closed.Load() {
		return ErrBridgeStopped
	}

	t.busMu.Lock()
	defer t.busMu.Unlock()

	chain := t.buildChain(value, bits, repeats)
	if err := t.player.WaveChain(chain); err != nil {
		return fmt.Errorf("starting transmission: %w", err)
	}

	if err := t.waitIdle(ctx); err != nil {
		return err
	}

	t.framesSent.Add(1)

	// Half-duplex settling before the mutex releases the bus.
	select {
	case <-time.After(t.timing.HalfBit):
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

// buildChain assembles the wave chain script: loop start, the frame's
// cells MSB first, the stop period, then loop-repeat with the count.
func (t *Transmitter) buildChain(value uint32, bits, repeats int) []byte {
	chain := make([]byte, 0, bits+8)
	chain = append(chain, 255, 0) // loop start
	chain = append(chain, byte(t.waveStart))
	for i := bits - 1; i >= 0; i-- {
		if value>>uint(i)&1 == 1 {
			chain = append(chain, byte(t.waveBit1))
		} else {
			chain = append(chain, byte(t.waveBit0))
		}
	}
	chain = append(chain, byte(t.waveStop))
	chain = append(chain, 255, 1, byte(repeats), 0) // loop repeat
	return chain
}

// waitIdle polls the daemon until playback finishes.
func (t *Transmitter) waitIdle(ctx context.Context) error {
	// Generous upper bound: full frame duration per repeat, doubled.
	frameTime := time.Duration(2+2*32+2) * t.timing.HalfBit
	deadline := time.Now().Add(2 * frameTime * 255)

	for {
		busy, err := t.player.WaveTxBusy()
		if err != nil {
			return fmt.Errorf("polling transmission: %w", err)
		}
		if !busy {
			return nil
		}
		if time.Now().After(deadline) {
			return ErrTxBusy
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(txBusyPollInterval):
		}
	}
}

// Close releases the primitive waveforms and idles the pin.
// Safe to call multiple times; Send fails afterwards.
func (t *Transmitter) Close() {
	if !t.closed.CompareAndSwap(false, true) {
		return
	}

	// Best effort; the waveforms die with the daemon connection anyway.
	t.busMu.Lock()
	defer t.busMu.Unlock()
	for _, id := range []int{t.waveStart, t.waveBit1, t.waveBit0, t.waveStop} {
		_ = t.player.WaveDelete(id) //nolint:errcheck
	}
	_ = t.player.WriteLevel(t.txPin, 0) //nolint:errcheck
}
