package dali

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/nerrad567/gray-logic-dali/internal/pigpiod"
)

// fakeWavePlayer implements WavePlayer in memory.
type fakeWavePlayer struct {
	mu      sync.Mutex
	waves   [][]pigpiod.Pulse
	pending []pigpiod.Pulse
	chains  [][]byte
	deleted []int
	levels  map[uint32]uint32

	// busyPolls answers WaveTxBusy true this many times before idle.
	busyPolls int
	chainErr  error
}

func newFakeWavePlayer() *fakeWavePlayer {
	return &fakeWavePlayer{levels: make(map[uint32]uint32)}
}

func (f *fakeWavePlayer) WaveClear() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.waves = nil
	f.pending = nil
	return nil
}

func (f *fakeWavePlayer) WaveAddGeneric(pulses []pigpiod.Pulse) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pending = append(f.pending, pulses...)
	return len(f.pending), nil
}

func (f *fakeWavePlayer) WaveCreate() (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.waves = append(f.waves, f.pending)
	f.pending = nil
	return len(f.waves) - 1, nil
}

func (f *fakeWavePlayer) WaveDelete(waveID int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, waveID)
	return nil
}

func (f *fakeWavePlayer) WaveChain(chain []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.chainErr != nil {
		return f.chainErr
	}
	f.chains = append(f.chains, chain)
	return nil
}

func (f *fakeWavePlayer) WaveTxBusy() (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.busyPolls > 0 {
		f.busyPolls--
		return true, nil
	}
	return false, nil
}

func (f *fakeWavePlayer) WriteLevel(gpio, level uint32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.levels[gpio] = level
	return nil
}

func newTestTransmitter(t *testing.T) (*Transmitter, *fakeWavePlayer) {
	t.Helper()
	player := newFakeWavePlayer()
	tx, err := NewTransmitter(player, 5, DefaultTiming())
	if err != nil {
		t.Fatalf("NewTransmitter() error: %v", err)
	}
	return tx, player
}

func TestTransmitterBuildsPrimitiveWaves(t *testing.T) {
	_, player := newTestTransmitter(t)

	// Start, bit-1, bit-0 and stop.
	if len(player.waves) != 4 {
		t.Fatalf("built %d waves, want 4", len(player.waves))
	}

	te := uint32(DefaultTiming().HalfBit.Microseconds())

	start := player.waves[0]
	if len(start) != 2 || start[0].GpioOn != 1<<5 || start[0].DelayUS != te {
		t.Errorf("start wave = %+v, want high-then-low at %dus", start, te)
	}

	bit0 := player.waves[2]
	if len(bit0) != 2 || bit0[0].GpioOff != 1<<5 || bit0[1].GpioOn != 1<<5 {
		t.Errorf("bit-0 wave = %+v, want low-then-high", bit0)
	}

	stop := player.waves[3]
	if len(stop) != 1 || stop[0].GpioOff != 1<<5 || stop[0].DelayUS != 2*te {
		t.Errorf("stop wave = %+v, want low for %dus", stop, 2*te)
	}
}

func TestTransmitterSendChain(t *testing.T) {
	tx, player := newTestTransmitter(t)

	if err := tx.Send(context.Background(), 0xFE00, 16, 1); err != nil {
		t.Fatalf("Send() error: %v", err)
	}

	if len(player.chains) != 1 {
		t.Fatalf("played %d chains, want 1", len(player.chains))
	}
	chain := player.chains[0]

	// Loop start, start cell, 16 data cells, stop, loop repeat x1.
	if len(chain) != 2+1+16+1+4 {
		t.Fatalf("chain length = %d, want 24: %v", len(chain), chain)
	}
	if chain[0] != 255 || chain[1] != 0 {
		t.Errorf("chain should open with loop start, got %v", chain[:2])
	}
	if chain[2] != byte(tx.waveStart) {
		t.Errorf("chain[2] = %d, want start wave %d", chain[2], tx.waveStart)
	}

	// 0xFE00: seven leading ones, then nine zeros.
	for i := 0; i < 7; i++ {
		if chain[3+i] != byte(tx.waveBit1) {
			t.Errorf("cell %d = %d, want bit-1 wave", i, chain[3+i])
		}
	}
	for i := 7; i < 16; i++ {
		if chain[3+i] != byte(tx.waveBit0) {
			t.Errorf("cell %d = %d, want bit-0 wave", i, chain[3+i])
		}
	}

	tail := chain[len(chain)-4:]
	if tail[0] != 255 || tail[1] != 1 || tail[2] != 1 || tail[3] != 0 {
		t.Errorf("chain tail = %v, want loop repeat x1", tail)
	}

	if got := tx.FramesSent(); got != 1 {
		t.Errorf("FramesSent() = %d, want 1", got)
	}
}

func TestTransmitterRepeats(t *testing.T) {
	tx, player := newTestTransmitter(t)

	if err := tx.Send(context.Background(), 0x0120, 16, 2); err != nil {
		t.Fatalf("Send() error: %v", err)
	}

	chain := player.chains[0]
	tail := chain[len(chain)-4:]
	if tail[2] != 2 {
		t.Errorf("repeat count in chain = %d, want 2", tail[2])
	}
}

func TestTransmitterValidatesBeforeHardware(t *testing.T) {
	tx, player := newTestTransmitter(t)

	tests := []struct {
		name    string
		value   uint32
		bits    int
		repeats int
		wantErr error
	}{
		{"value too wide", 0x1FFFF, 16, 1, ErrValueRange},
		{"zero bits", 0, 0, 1, ErrInvalidBitCount},
		{"zero repeats", 1, 8, 0, ErrInvalidRepeat},
		{"too many repeats", 1, 8, 256, ErrInvalidRepeat},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tx.Send(context.Background(), tt.value, tt.bits, tt.repeats)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Send() error = %v, want %v", err, tt.wantErr)
			}
		})
	}

	// No rejected frame touched the waveform engine.
	if len(player.chains) != 0 {
		t.Errorf("rejected sends played %d chains, want 0", len(player.chains))
	}
}

func TestTransmitterWaitsForPlayback(t *testing.T) {
	tx, player := newTestTransmitter(t)
	player.busyPolls = 3

	if err := tx.Send(context.Background(), 0xFF, 8, 1); err != nil {
		t.Fatalf("Send() error: %v", err)
	}
	if player.busyPolls != 0 {
		t.Errorf("Send() returned with %d busy polls remaining", player.busyPolls)
	}
}

func TestTransmitterContextCancel(t *testing.T) {
	tx, player := newTestTransmitter(t)
	player.busyPolls = 1 << 30 // never idle

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := tx.Send(ctx, 0xFF, 8, 1)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Send() error = %v, want context.Canceled", err)
	}
}

func TestTransmitterChainError(t *testing.T) {
	tx, player := newTestTransmitter(t)
	player.chainErr = errors.New("daemon rejected chain")

	if err := tx.Send(context.Background(), 0xFF, 8, 1); err == nil {
		t.Error("Send() should surface chain errors")
	}
	if got := tx.FramesSent(); got != 0 {
		t.Errorf("FramesSent() = %d after failed send, want 0", got)
	}
}

func TestTransmitterClose(t *testing.T) {
	tx, player := newTestTransmitter(t)

	tx.Close()
	tx.Close() // idempotent

	if len(player.deleted) != 4 {
		t.Errorf("deleted %d waves, want 4", len(player.deleted))
	}
	if player.levels[5] != 0 {
		t.Error("tx pin should be idled low on close")
	}

	if err := tx.Send(context.Background(), 0xFF, 8, 1); !errors.Is(err, ErrBridgeStopped) {
		t.Errorf("Send() after close error = %v, want ErrBridgeStopped", err)
	}
}
