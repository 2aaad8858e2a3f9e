package dali

import "time"

// MQTT message types for communication between Gray Logic Core and the
// DALI bridge.

// ProtocolDALI is the protocol identifier used in message payloads.
const ProtocolDALI = "dali"

// FrameMessage is published for every frame seen on the bus.
// Topic: graylogic/frame/dali
type FrameMessage struct {
	// Timestamp is when the frame terminated (UTC, ISO8601).
	Timestamp time.Time `json:"timestamp"`

	// Direction is "rx" for frames decoded off the bus, "tx" for frames
	// this bridge transmitted.
	Direction string `json:"direction"`

	// Value is the frame value.
	Value uint32 `json:"value"`

	// Bits is the frame bit length. Received frames shorter than a full
	// command mean the bus went quiet early.
	Bits int `json:"bits"`

	// EdgeCount is the number of raw edges in the receive trace.
	// Zero for transmitted frames.
	EdgeCount int `json:"edge_count,omitempty"`

	// Protocol is the protocol identifier ("dali").
	Protocol string `json:"protocol"`
}

// SendMessage is received from Core to transmit a frame.
// Topic: graylogic/send/dali
type SendMessage struct {
	// ID uniquely identifies this command for correlation with the ack.
	ID string `json:"id"`

	// Timestamp is when the command was issued (UTC, ISO8601).
	Timestamp time.Time `json:"timestamp"`

	// Value is the frame value to transmit.
	Value uint32 `json:"value"`

	// Bits is the frame bit length (16 for standard commands, 24 for
	// device type extensions).
	Bits int `json:"bits"`

	// Repeat is how many times to play the frame. Zero means once.
	// Configuration commands that must arrive twice set 2.
	Repeat int `json:"repeat,omitempty"`
}

// AckStatus represents the acknowledgment status of a send command.
type AckStatus string

const (
	// AckSent indicates the frame was transmitted onto the bus.
	AckSent AckStatus = "sent"

	// AckFailed indicates the frame could not be transmitted.
	AckFailed AckStatus = "failed"
)

// AckMessage is published after every send command.
// Topic: graylogic/ack/dali
type AckMessage struct {
	// CommandID is the ID from the original send command.
	CommandID string `json:"command_id"`

	// Timestamp is when the acknowledgment was sent (UTC, ISO8601).
	Timestamp time.Time `json:"timestamp"`

	// Status indicates the acknowledgment status.
	Status AckStatus `json:"status"`

	// Protocol is the protocol identifier ("dali").
	Protocol string `json:"protocol"`

	// Error contains details if status is "failed".
	Error *AckError `json:"error,omitempty"`
}

// AckError contains error details for failed send commands.
type AckError struct {
	// Code is the error code (e.g., "VALUE_RANGE", "HARDWARE_ERROR").
	Code string `json:"code"`

	// Message is a human-readable error description.
	Message string `json:"message"`
}

// Error codes for send failures.
const (
	ErrCodeBadPayload    = "BAD_PAYLOAD"
	ErrCodeInvalidBits   = "INVALID_BIT_COUNT"
	ErrCodeValueRange    = "VALUE_RANGE"
	ErrCodeInvalidRepeat = "INVALID_REPEAT"
	ErrCodeHardwareError = "HARDWARE_ERROR"
	ErrCodeBridgeStopped = "BRIDGE_STOPPED"
)

// AbortMessage is published when the decoder discards an attempt.
// Topic: graylogic/abort/dali
// QoS: 0, not retained; aborts are diagnostics, not state.
type AbortMessage struct {
	// Timestamp is when the abort occurred (UTC, ISO8601).
	Timestamp time.Time `json:"timestamp"`

	// Reason is the abort classification ("glitch", "malformed",
	// "overflow").
	Reason string `json:"reason"`

	// EdgeCount is how many edges the attempt had consumed.
	EdgeCount int `json:"edge_count"`

	// Protocol is the protocol identifier ("dali").
	Protocol string `json:"protocol"`
}

// HealthStatus represents the operational status of the bridge.
type HealthStatus string

const (
	// HealthHealthy indicates the bridge is operating normally.
	HealthHealthy HealthStatus = "healthy"

	// HealthDegraded indicates the bridge is operating with issues.
	HealthDegraded HealthStatus = "degraded"

	// HealthUnhealthy indicates the bridge is not operating correctly.
	HealthUnhealthy HealthStatus = "unhealthy"

	// HealthOffline indicates the bridge is not connected (from LWT).
	HealthOffline HealthStatus = "offline"

	// HealthStarting indicates the bridge is starting up.
	HealthStarting HealthStatus = "starting"

	// HealthStopping indicates the bridge is shutting down.
	HealthStopping HealthStatus = "stopping"
)

// HealthMessage reports the bridge's operational status.
// Topic: graylogic/health/dali
// QoS: 1, Retained: Yes
type HealthMessage struct {
	// Bridge is the bridge identifier ("dali").
	Bridge string `json:"bridge"`

	// Timestamp is when the health status was generated (UTC, ISO8601).
	Timestamp time.Time `json:"timestamp"`

	// Status indicates the current operational status.
	Status HealthStatus `json:"status"`

	// Version is the bridge software version.
	Version string `json:"version"`

	// UptimeSeconds is how long the bridge has been running.
	UptimeSeconds int64 `json:"uptime_seconds"`

	// Connection contains pigpio daemon connection details.
	Connection *ConnectionStatus `json:"connection,omitempty"`

	// Statistics contains operational metrics.
	Statistics *BridgeStatistics `json:"statistics,omitempty"`

	// Reason explains the status (especially for degraded).
	Reason string `json:"reason,omitempty"`
}

// ConnectionStatus describes the pigpio daemon connection state.
type ConnectionStatus struct {
	// Status is the connection status ("connected", "disconnected").
	Status string `json:"status"`

	// Address is the daemon endpoint.
	Address string `json:"address"`

	// ConnectedSince is when the connection was established.
	ConnectedSince *time.Time `json:"connected_since,omitempty"`
}

// BridgeStatistics contains operational metrics.
type BridgeStatistics struct {
	// FramesReceived is the total number of frames decoded off the bus.
	FramesReceived uint64 `json:"frames_received"`

	// FramesSent is the total number of frames transmitted.
	FramesSent uint64 `json:"frames_sent"`

	// GlitchAborts counts decode attempts abandoned on invalid timing.
	GlitchAborts uint64 `json:"glitch_aborts"`

	// MalformedAborts counts attempts abandoned on impossible symbol pairs.
	MalformedAborts uint64 `json:"malformed_aborts"`

	// OverflowAborts counts attempts abandoned on frame overflow.
	OverflowAborts uint64 `json:"overflow_aborts"`

	// DroppedFrames counts decoded frames discarded because the delivery
	// queue was full.
	DroppedFrames uint64 `json:"dropped_frames"`

	// DroppedReports counts hardware edge reports discarded because the
	// edge loop fell behind.
	DroppedReports uint64 `json:"dropped_reports"`
}
