package mqtt

import "fmt"

// Topic prefixes per the Gray Logic MQTT scheme.
//
// All bridge topics use the flat scheme: graylogic/{category}/{protocol}
// matching the other Gray Logic bridges so Core subscribers work unchanged.
const (
	// TopicPrefixBridge is the base for all bridge topics.
	TopicPrefixBridge = "graylogic"

	// TopicPrefixSystem is the base for system topics.
	TopicPrefixSystem = "graylogic/system"

	// ProtocolDALI is the protocol segment for all DALI bridge topics.
	ProtocolDALI = "dali"
)

// Topics provides builders for the DALI bridge's MQTT topics.
// Using these helpers ensures consistent topic naming across the codebase.
//
//	topics := mqtt.Topics{}
//	frameTopic := topics.Frame()
//	// Returns: "graylogic/frame/dali"
type Topics struct{}

// Frame returns the topic where every frame decoded off the bus is published.
//
// Example: graylogic/frame/dali
func (Topics) Frame() string {
	return fmt.Sprintf("%s/frame/%s", TopicPrefixBridge, ProtocolDALI)
}

// Send returns the topic the bridge subscribes to for transmit requests.
//
// Example: graylogic/send/dali
func (Topics) Send() string {
	return fmt.Sprintf("%s/send/%s", TopicPrefixBridge, ProtocolDALI)
}

// SendAck returns the topic for transmit acknowledgements.
//
// Example: graylogic/ack/dali
func (Topics) SendAck() string {
	return fmt.Sprintf("%s/ack/%s", TopicPrefixBridge, ProtocolDALI)
}

// Health returns the topic for periodic bridge health status.
//
// Example: graylogic/health/dali
func (Topics) Health() string {
	return fmt.Sprintf("%s/health/%s", TopicPrefixBridge, ProtocolDALI)
}

// Abort returns the topic for decode abort diagnostics.
//
// Example: graylogic/abort/dali
func (Topics) Abort() string {
	return fmt.Sprintf("%s/abort/%s", TopicPrefixBridge, ProtocolDALI)
}

// SystemStatus returns the system status topic used for LWT and
// online/offline announcements.
//
// Example: graylogic/system/status
func (Topics) SystemStatus() string {
	return fmt.Sprintf("%s/status", TopicPrefixSystem)
}

// SystemShutdown returns the shutdown signal topic.
//
// Example: graylogic/system/shutdown
func (Topics) SystemShutdown() string {
	return fmt.Sprintf("%s/shutdown", TopicPrefixSystem)
}

// AllBridgeHealth returns a pattern matching health updates from every bridge.
//
// Pattern: graylogic/health/+
func (Topics) AllBridgeHealth() string {
	return fmt.Sprintf("%s/health/+", TopicPrefixBridge)
}
