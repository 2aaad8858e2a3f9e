// Package influxdb provides time-series telemetry for the Gray Logic DALI bridge.
//
// This package wraps influxdb-client-go/v2 to record bus activity:
// every frame observation and the decoder's abort counters.
//
// # Features
//
//   - Non-blocking batched writes (no bus-path latency impact)
//   - Async error reporting via callback
//   - Health check via server ping
//   - Optional: the bridge runs fine with InfluxDB disabled
//
// # Measurements
//
//	dali_frames  one point per frame (direction tag, value/bits fields)
//	dali_bus     periodic decoder counters (frames, aborts)
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // telemetry off, carry on
//	}
//	defer client.Close()
//
//	client.WriteFrame("rx", 0xFE00, 16)
package influxdb
