package dali

import "errors"

// Sentinel errors for the DALI bridge.
//
// These errors can be checked using errors.Is() for programmatic handling.
// All errors include descriptive context when wrapped.
var (
	// ErrInvalidBitCount indicates a frame bit length outside 1-32.
	ErrInvalidBitCount = errors.New("dali: bit count must be between 1 and 32")

	// ErrValueRange indicates a frame value that does not fit the declared
	// bit length. Values are rejected before any hardware interaction.
	ErrValueRange = errors.New("dali: value does not fit bit count")

	// ErrInvalidRepeat indicates a transmit repeat count outside 1-255.
	ErrInvalidRepeat = errors.New("dali: repeat count must be between 1 and 255")

	// ErrInvalidTiming indicates timing constants that are not internally
	// consistent (overlapping or inverted windows).
	ErrInvalidTiming = errors.New("dali: invalid timing constants")

	// ErrNotConnected indicates an operation attempted while the pigpio
	// daemon connection is unavailable.
	ErrNotConnected = errors.New("dali: not connected to pigpio daemon")

	// ErrBridgeStopped indicates an operation attempted after Stop().
	ErrBridgeStopped = errors.New("dali: bridge has been stopped")

	// ErrInvalidConfig indicates missing or invalid bridge configuration.
	ErrInvalidConfig = errors.New("dali: invalid configuration")

	// ErrTxBusy indicates the bus transmitter did not become idle within
	// the allowed window.
	ErrTxBusy = errors.New("dali: transmitter busy")
)
