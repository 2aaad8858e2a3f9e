// Package dali implements the DALI link-layer codec and the bridge that
// connects a DALI lighting bus to the Gray Logic MQTT fabric.
//
// # Wire Format
//
// DALI frames are Manchester coded at a half-bit period of 416.7us. A
// frame is one '1' start cell, the data bits MSB first (high-then-low
// for '1', low-then-high for '0'), and a stop of sustained idle for at
// least two half-bit periods. The bus is half-duplex; roughly 1800us of
// silence separates frames.
//
// # Receive Path
//
// The pigpio daemon reports every bus transition with a microsecond
// tick. The bridge turns consecutive ticks into segment durations, the
// timing classifier sorts each duration into short (~1 half bit), long
// (~2 half bits) or invalid, and the Decoder pairs segments into bit
// cells. There is no length field on the wire, so frame end is detected
// by a re-armable silence watchdog; when it fires mid-accumulation the
// frame is delivered with however many bits arrived. Anything outside
// tolerance aborts the attempt silently; the abort counters are the only
// trace, because line noise on a shared bus is normal and must never
// destabilise the receive loop.
//
// # Transmit Path
//
// Encode produces a declarative pulse train, validated before any
// hardware interaction (a value that does not fit its bit count is an
// error, not a truncation). The Transmitter plays frames through the
// daemon's waveform engine: four primitive waveforms built once, chained
// per frame, with half-duplex locking and a half-bit of line settling
// between transmissions.
//
// # Components
//
//   - TimingConstants / Classify: the single source of timing truth
//   - Decoder: edge-driven receive state machine
//   - Encode / PulseTrain: pure frame encoder
//   - Transmitter: waveform playback with repeat support
//   - Bridge: lifecycle, MQTT topics, delivery queues
//   - FrameRecorder: SQLite record of observed traffic
//   - HealthReporter: periodic retained health publishing
package dali
