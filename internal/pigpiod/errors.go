package pigpiod

import "errors"

// Domain-specific errors for pigpiod operations.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrConnectionFailed is returned when the initial connection attempt fails.
	ErrConnectionFailed = errors.New("pigpiod: connection failed")

	// ErrNotConnected is returned when attempting operations on a closed client.
	ErrNotConnected = errors.New("pigpiod: client not connected")

	// ErrCommandFailed is returned when the daemon reports an error status
	// for a command. The wrapped message carries the daemon's error code.
	ErrCommandFailed = errors.New("pigpiod: command failed")

	// ErrShortResponse is returned when the daemon response is truncated.
	ErrShortResponse = errors.New("pigpiod: short response")
)
