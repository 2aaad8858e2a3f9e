package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WriteFrame records a single bus frame observation.
//
// The write is non-blocking; data is batched and sent asynchronously.
//
// Parameters:
//   - direction: "rx" for frames decoded off the bus, "tx" for sent frames
//   - value: The frame value
//   - bits: The frame bit length
//
// Example:
//
//	client.WriteFrame("rx", 0xFE00, 16)
func (c *Client) WriteFrame(direction string, value uint32, bits int) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"dali_frames",
		map[string]string{
			"direction": direction,
		},
		map[string]interface{}{
			"value": int64(value),
			"bits":  int64(bits),
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteBusCounters records the decoder's cumulative counters.
//
// Called periodically by the health reporter so counter trends are
// visible in dashboards.
//
// Parameters:
//   - framesDelivered: Total frames delivered since startup
//   - glitchAborts: Decode attempts abandoned on invalid timing
//   - malformedAborts: Decode attempts abandoned on impossible symbol pairs
//   - overflowAborts: Decode attempts abandoned on frame overflow
func (c *Client) WriteBusCounters(framesDelivered, glitchAborts, malformedAborts, overflowAborts uint64) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"dali_bus",
		map[string]string{},
		map[string]interface{}{
			"frames_delivered": int64(framesDelivered),
			"glitch_aborts":    int64(glitchAborts),
			"malformed_aborts": int64(malformedAborts),
			"overflow_aborts":  int64(overflowAborts),
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WritePoint writes a custom point with full control over tags and fields.
//
// Use this for custom measurements that don't fit the helper methods.
//
// Parameters:
//   - measurement: The measurement name (table)
//   - tags: Key-value pairs for indexing (low cardinality)
//   - fields: Key-value pairs for the actual data
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, time.Now())
	c.writeAPI.WritePoint(point)
}

// WritePointWithTime writes a custom point with a specific timestamp.
//
// Use this when the timestamp is not "now" (e.g., delayed data).
//
// Parameters:
//   - measurement: The measurement name
//   - tags: Key-value pairs for indexing
//   - fields: Key-value pairs for the data
//   - timestamp: The exact time for this data point
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]interface{}, timestamp time.Time) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, timestamp)
	c.writeAPI.WritePoint(point)
}
