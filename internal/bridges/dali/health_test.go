package dali

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-dali/internal/infrastructure/mqtt"
)

// fakeCounterSink records counter snapshots.
type fakeCounterSink struct {
	mu    sync.Mutex
	calls int
}

func (f *fakeCounterSink) WriteBusCounters(_, _, _, _ uint64) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
}

func (f *fakeCounterSink) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func TestHealthReportsHealthy(t *testing.T) {
	_, broker, _, _ := newTestBridge(t)

	msgs := broker.waitForTopic(t, mqtt.Topics{}.Health(), 2)

	// First message is "starting", then the report loop takes over.
	var first, second HealthMessage
	if err := json.Unmarshal(msgs[0].payload, &first); err != nil {
		t.Fatalf("parsing health message: %v", err)
	}
	_ = json.Unmarshal(msgs[1].payload, &second)

	if first.Status != HealthStarting {
		t.Errorf("first status = %q, want %q", first.Status, HealthStarting)
	}
	if second.Status != HealthHealthy {
		t.Errorf("second status = %q, want %q", second.Status, HealthHealthy)
	}
	if second.Bridge != ProtocolDALI || second.Version != "test" {
		t.Errorf("health identity = %q/%q, want dali/test", second.Bridge, second.Version)
	}
	if second.Connection == nil || second.Connection.Status != "connected" {
		t.Error("health should report the daemon connected")
	}
	if second.Statistics == nil {
		t.Error("health should carry statistics")
	}

	// Health is retained so late subscribers see the last state.
	if !msgs[1].retained {
		t.Error("health messages should be retained")
	}
	if msgs[1].qos != 1 {
		t.Errorf("health qos = %d, want 1", msgs[1].qos)
	}
}

func TestHealthDegradedWhenBrokerDown(t *testing.T) {
	b, broker, _, _ := newTestBridge(t)

	broker.mu.Lock()
	broker.connected = false
	broker.mu.Unlock()

	b.health.PublishNow()

	msgs := broker.onTopic(mqtt.Topics{}.Health())
	var last HealthMessage
	_ = json.Unmarshal(msgs[len(msgs)-1].payload, &last)
	if last.Status != HealthDegraded {
		t.Errorf("status = %q, want %q", last.Status, HealthDegraded)
	}
	if last.Reason == "" {
		t.Error("degraded status should carry a reason")
	}
}

func TestHealthDegradedWhenDaemonDown(t *testing.T) {
	b, broker, _, edges := newTestBridge(t)

	// Killing the edge stream marks the daemon as lost.
	_ = edges.Close()

	deadline := time.Now().Add(2 * time.Second)
	for b.DaemonConnected() && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if b.DaemonConnected() {
		t.Fatal("daemon should be marked disconnected after stream close")
	}

	b.health.PublishNow()

	msgs := broker.onTopic(mqtt.Topics{}.Health())
	var last HealthMessage
	_ = json.Unmarshal(msgs[len(msgs)-1].payload, &last)
	if last.Status != HealthDegraded {
		t.Errorf("status = %q, want %q", last.Status, HealthDegraded)
	}
	if last.Connection == nil || last.Connection.Status != "disconnected" {
		t.Error("health should report the daemon disconnected")
	}
}

func TestHealthPushesCounters(t *testing.T) {
	broker := newFakeMQTT()
	gpio := newFakeGPIO()
	edges := newFakeEdges()
	sink := &fakeCounterSink{}

	b, err := NewBridge(BridgeOptions{
		Config:  testConfig(),
		Daemon:  gpio,
		Edges:   edges,
		MQTT:    broker,
		Metrics: &countingMetrics{sink: sink},
		Version: "test",
	})
	if err != nil {
		t.Fatalf("NewBridge() error: %v", err)
	}
	if err := b.Start(); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	defer b.Stop()

	broker.waitForTopic(t, mqtt.Topics{}.Health(), 2)
	if sink.count() == 0 {
		t.Error("health cycle should push counters to the sink")
	}
}

// countingMetrics adapts fakeCounterSink to the MetricsSink interface.
type countingMetrics struct {
	sink *fakeCounterSink
}

func (m *countingMetrics) WriteFrame(string, uint32, int) {}

func (m *countingMetrics) WriteBusCounters(a, b, c, d uint64) {
	m.sink.WriteBusCounters(a, b, c, d)
}

func TestHealthStopPublishesStopping(t *testing.T) {
	b, broker, _, _ := newTestBridge(t)

	b.Stop()

	msgs := broker.onTopic(mqtt.Topics{}.Health())
	if len(msgs) == 0 {
		t.Fatal("no health messages")
	}
	var last HealthMessage
	_ = json.Unmarshal(msgs[len(msgs)-1].payload, &last)
	if last.Status != HealthStopping {
		t.Errorf("final status = %q, want %q", last.Status, HealthStopping)
	}
}
