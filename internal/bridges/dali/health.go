package dali

import (
	"encoding/json"
	"sync"
	"time"
)

// HealthPublisher is the subset of the MQTT client the health reporter
// needs. Implemented by *mqtt.Client; tests substitute a fake.
type HealthPublisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	IsConnected() bool
}

// CounterSink receives the decoder's cumulative counters on every health
// cycle so counter trends end up in dashboards. Implemented by the
// InfluxDB client; nil-safe in the reporter.
type CounterSink interface {
	WriteBusCounters(framesDelivered, glitchAborts, malformedAborts, overflowAborts uint64)
}

// HealthReporter periodically publishes the bridge's operational status
// as a retained MQTT message, so Core and dashboards always see the last
// known state even across their own restarts.
type HealthReporter struct {
	bridge    *Bridge
	publisher HealthPublisher
	sink      CounterSink
	topic     string
	interval  time.Duration
	version   string

	startTime time.Time

	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewHealthReporter creates a health reporter for the bridge.
//
// Parameters:
//   - bridge: The bridge to report on
//   - publisher: MQTT publisher for the health topic
//   - sink: Optional counter sink (nil disables counter export)
//   - interval: How often to publish (typically 30s)
//   - version: Bridge software version included in reports
func NewHealthReporter(bridge *Bridge, publisher HealthPublisher, sink CounterSink, interval time.Duration, version string) *HealthReporter {
	return &HealthReporter{
		bridge:    bridge,
		publisher: publisher,
		sink:      sink,
		topic:     bridge.topics.Health(),
		interval:  interval,
		version:   version,
		startTime: time.Now(),
		done:      make(chan struct{}),
	}
}

// Start begins periodic health reporting.
func (h *HealthReporter) Start() {
	h.wg.Add(1)
	go h.reportLoop()
}

// Stop halts reporting and publishes a final "stopping" status.
func (h *HealthReporter) Stop() {
	h.stopOnce.Do(func() {
		close(h.done)
		h.wg.Wait()
		h.publishStatus(HealthStopping, "bridge shutting down")
	})
}

// PublishStarting publishes an immediate "starting" status.
// Called once during bridge startup, before the first report cycle.
func (h *HealthReporter) PublishStarting() {
	h.publishStatus(HealthStarting, "")
}

// PublishNow publishes the current status outside the regular cycle.
// Used after connection state changes so consumers see transitions
// promptly rather than at the next interval.
func (h *HealthReporter) PublishNow() {
	status, reason := h.determineStatus()
	h.publishStatus(status, reason)
}

// reportLoop publishes health at the configured interval.
func (h *HealthReporter) reportLoop() {
	defer h.wg.Done()

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	// First report immediately rather than waiting a full interval.
	h.PublishNow()

	for {
		select {
		case <-h.done:
			return
		case <-ticker.C:
			h.PublishNow()
		}
	}
}

// determineStatus derives the current health from connection state.
func (h *HealthReporter) determineStatus() (HealthStatus, string) {
	daemonUp := h.bridge.DaemonConnected()
	mqttUp := h.publisher.IsConnected()

	switch {
	case daemonUp && mqttUp:
		return HealthHealthy, ""
	case !daemonUp && mqttUp:
		return HealthDegraded, "pigpio daemon unreachable"
	case daemonUp && !mqttUp:
		// Nobody will see this until the broker comes back, but the
		// retained message is correct the moment it does.
		return HealthDegraded, "mqtt broker unreachable"
	default:
		return HealthUnhealthy, "pigpio daemon and mqtt broker unreachable"
	}
}

// publishStatus builds and publishes one health message, and pushes the
// counters to the sink.
func (h *HealthReporter) publishStatus(status HealthStatus, reason string) {
	stats := h.bridge.GetStatistics()

	if h.sink != nil {
		h.sink.WriteBusCounters(
			stats.FramesReceived,
			stats.GlitchAborts,
			stats.MalformedAborts,
			stats.OverflowAborts,
		)
	}

	msg := HealthMessage{
		Bridge:        ProtocolDALI,
		Timestamp:     time.Now().UTC(),
		Status:        status,
		Version:       h.version,
		UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
		Connection:    h.bridge.ConnectionStatus(),
		Statistics:    &stats,
		Reason:        reason,
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		h.bridge.logError("marshalling health message", err)
		return
	}

	if err := h.publisher.Publish(h.topic, payload, 1, true); err != nil {
		h.bridge.logDebug("publishing health", "error", err)
	}
}
