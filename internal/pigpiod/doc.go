// Package pigpiod is a socket client for the pigpio daemon.
//
// The pigpio daemon exposes Raspberry Pi GPIO over TCP. Every command is a
// 16-byte little-endian exchange (cmd, p1, p2, p3), with optional extension
// bytes for variable-length commands. The daemon replies with the same
// 16-byte layout where the final word carries the result (negative values
// are daemon error codes).
//
// The bridge uses two connections:
//
//   - A command connection for pin modes, writes, waveforms, the glitch
//     filter and the per-pin watchdog. Exchanges are serialised by a mutex
//     so callers can share one Client.
//   - A notification connection (opened by Listen) that streams 12-byte
//     edge reports: sequence number, flags, microsecond tick and the level
//     bank. Watchdog expiry arrives in-band as a flagged report.
//
// # Usage
//
//	client, err := pigpiod.Connect(ctx, pigpiod.Config{Host: "localhost", Port: 8888})
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.SetMode(6, pigpiod.ModeInput)
//	listener, err := client.Listen(1 << 6)
//	for report := range listener.Reports() {
//	    // edge or watchdog report
//	}
//
// Only the commands the DALI bridge needs are implemented.
package pigpiod
