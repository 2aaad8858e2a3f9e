package dali

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/gray-logic-dali/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-dali/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-dali/internal/pigpiod"
)

// Logger is the minimal logging interface the bridge needs.
// Satisfied by *logging.Logger (and by *slog.Logger).
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// MQTTClient is the subset of the MQTT client the bridge needs.
// Implemented by *mqtt.Client; tests substitute a fake.
type MQTTClient interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
	IsConnected() bool
}

// Daemon is the subset of the pigpio client the bridge needs for pin
// setup and transmission. Implemented by *pigpiod.Client.
type Daemon interface {
	WavePlayer
	SetMode(gpio, mode uint32) error
	SetGlitchFilter(gpio, steadyUS uint32) error
	SetWatchdog(gpio, timeoutMS uint32) error
}

// EdgeSource streams bus edge reports. Implemented by *pigpiod.Listener;
// tests feed canned reports through a channel.
type EdgeSource interface {
	Reports() <-chan pigpiod.Report
	Dropped() uint64
	Close() error
}

// MetricsSink receives frame observations and counter snapshots.
// Implemented by the InfluxDB client; nil disables metrics export.
type MetricsSink interface {
	WriteFrame(direction string, value uint32, bits int)
	WriteBusCounters(framesDelivered, glitchAborts, malformedAborts, overflowAborts uint64)
}

// sendTimeout bounds one transmit including repeats and bus settling.
const sendTimeout = 10 * time.Second

// BridgeOptions contains the dependencies for creating a Bridge.
type BridgeOptions struct {
	// Config is the loaded bridge configuration. Required.
	Config *config.Config

	// Daemon is the pigpio command connection. Required.
	Daemon Daemon

	// Edges streams bus transitions and watchdog expiries. Required.
	Edges EdgeSource

	// MQTT is the broker connection. Required.
	MQTT MQTTClient

	// DB enables frame and abort recording. Optional.
	DB *sql.DB

	// Metrics enables time-series export. Optional.
	Metrics MetricsSink

	// Logger receives bridge log output. Optional.
	Logger Logger

	// Version is reported in health messages.
	Version string
}

// Bridge connects a DALI bus to the Gray Logic MQTT fabric.
//
// The receive path is driven by the pigpio notification stream: every
// edge report feeds the decoder, and decoded frames hand off to a
// bounded queue so publishing never blocks edge processing. The transmit
// path subscribes to the send topic and plays frames through the
// waveform engine, acknowledging each command.
//
// Lifecycle: NewBridge, Start, Stop. Stop is deterministic; the watchdog
// is cancelled and the edge stream closed before the hardware handles
// are released, so no timer fires into freed state.
type Bridge struct {
	cfg        *config.Config
	daemon     Daemon
	edges      EdgeSource
	mqttClient MQTTClient
	metrics    MetricsSink
	topics     mqtt.Topics
	version    string

	timing      TimingConstants
	decoder     *Decoder
	transmitter *Transmitter
	recorder    *FrameRecorder
	health      *HealthReporter

	logger   Logger
	loggerMu sync.RWMutex

	frameQueue    chan Frame
	abortQueue    chan AbortMessage
	droppedFrames atomic.Uint64

	daemonUp       atomic.Bool
	connectedSince time.Time

	ctx       context.Context
	ctxCancel context.CancelFunc
	stopOnce  sync.Once
	started   atomic.Bool
	wg        sync.WaitGroup
}

// NewBridge creates a bridge from its dependencies.
//
// Returns:
//   - *Bridge: Ready for Start
//   - error: ErrInvalidConfig if a required dependency is missing or the
//     timing configuration is inconsistent
func NewBridge(opts BridgeOptions) (*Bridge, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("%w: config is required", ErrInvalidConfig)
	}
	if opts.Daemon == nil {
		return nil, fmt.Errorf("%w: daemon connection is required", ErrInvalidConfig)
	}
	if opts.Edges == nil {
		return nil, fmt.Errorf("%w: edge source is required", ErrInvalidConfig)
	}
	if opts.MQTT == nil {
		return nil, fmt.Errorf("%w: mqtt client is required", ErrInvalidConfig)
	}

	timing := TimingFromConfig(opts.Config.Bus.Timing)
	if err := timing.Validate(); err != nil {
		return nil, err
	}

	queueSize := opts.Config.Bus.QueueSize
	if queueSize < 1 {
		queueSize = 16
	}

	ctx, cancel := context.WithCancel(context.Background())

	b := &Bridge{
		cfg:        opts.Config,
		daemon:     opts.Daemon,
		edges:      opts.Edges,
		mqttClient: opts.MQTT,
		metrics:    opts.Metrics,
		logger:     opts.Logger,
		version:    opts.Version,
		timing:     timing,
		frameQueue: make(chan Frame, queueSize),
		abortQueue: make(chan AbortMessage, queueSize),
		ctx:        ctx,
		ctxCancel:  cancel,
	}

	// The pigpio per-pin watchdog delivers expiry in-band after the last
	// edge, which is exactly the cancel-on-edge, re-arm-after semantics
	// the decoder needs; no software timer is wired.
	b.decoder = NewDecoder(timing, nil, b.enqueueFrame)
	b.decoder.SetAbortHandler(b.enqueueAbort)

	if opts.DB != nil {
		b.recorder = NewFrameRecorder(opts.DB)
	}

	return b, nil
}

// SetLogger sets the logger for the bridge and its recorder.
func (b *Bridge) SetLogger(logger Logger) {
	b.loggerMu.Lock()
	b.logger = logger
	b.loggerMu.Unlock()
	if b.recorder != nil {
		b.recorder.SetLogger(logger)
	}
}

// Start configures the bus pins, builds the transmit waveforms, arms the
// inter-frame watchdog and begins processing edges and send commands.
func (b *Bridge) Start() error {
	if !b.started.CompareAndSwap(false, true) {
		return nil
	}

	bus := b.cfg.Bus
	rx := uint32(bus.RxPin)
	tx := uint32(bus.TxPin)

	if err := b.daemon.SetMode(rx, pigpiod.ModeInput); err != nil {
		return fmt.Errorf("configuring rx pin: %w", err)
	}
	if err := b.daemon.SetMode(tx, pigpiod.ModeOutput); err != nil {
		return fmt.Errorf("configuring tx pin: %w", err)
	}
	if err := b.daemon.WriteLevel(tx, 0); err != nil {
		return fmt.Errorf("idling tx pin: %w", err)
	}

	// Sub-minimum pulses never reach the decoder.
	if bus.GlitchFilterUS > 0 {
		if err := b.daemon.SetGlitchFilter(rx, uint32(bus.GlitchFilterUS)); err != nil {
			return fmt.Errorf("setting glitch filter: %w", err)
		}
	}

	timeoutMS := uint32(b.timing.FrameTimeout / time.Millisecond)
	if timeoutMS < 1 {
		timeoutMS = 1
	}
	if err := b.daemon.SetWatchdog(rx, timeoutMS); err != nil {
		return fmt.Errorf("arming frame watchdog: %w", err)
	}

	transmitter, err := NewTransmitter(b.daemon, tx, b.timing)
	if err != nil {
		return fmt.Errorf("building transmitter: %w", err)
	}
	b.transmitter = transmitter

	if b.recorder != nil {
		if err := b.recorder.Start(); err != nil {
			return fmt.Errorf("starting frame recorder: %w", err)
		}
	}

	if err := b.mqttClient.Subscribe(b.topics.Send(), 1, b.handleSendCommand); err != nil {
		return fmt.Errorf("subscribing to send topic: %w", err)
	}

	b.daemonUp.Store(true)
	b.connectedSince = time.Now()

	// The health reporter must exist before the edge loop starts; the
	// loop publishes a status change if the daemon stream dies.
	interval := b.cfg.GetHealthInterval()
	if interval <= 0 {
		interval = 30 * time.Second
	}
	var sink CounterSink
	if b.metrics != nil {
		sink = b.metrics
	}
	b.health = NewHealthReporter(b, b.mqttClient, sink, interval, b.version)
	b.health.PublishStarting()

	b.wg.Add(2)
	go b.edgeLoop()
	go b.deliveryLoop()

	b.health.Start()

	b.logInfo("dali bridge started",
		"rx_pin", bus.RxPin,
		"tx_pin", bus.TxPin,
		"frame_timeout_ms", timeoutMS,
	)
	return nil
}

// Stop shuts the bridge down deterministically. The watchdog is
// cancelled and the edge stream closed before anything else is released.
// Safe to call multiple times.
func (b *Bridge) Stop() {
	b.stopOnce.Do(func() {
		b.logInfo("stopping dali bridge")

		_ = b.mqttClient.Unsubscribe(b.topics.Send()) //nolint:errcheck // Shutting down regardless

		if err := b.daemon.SetWatchdog(uint32(b.cfg.Bus.RxPin), 0); err != nil {
			b.logDebug("cancelling watchdog", "error", err)
		}
		_ = b.edges.Close() //nolint:errcheck

		b.ctxCancel()
		b.wg.Wait()

		if b.transmitter != nil {
			b.transmitter.Close()
		}
		if b.recorder != nil {
			b.recorder.Stop()
		}
		if b.health != nil {
			b.health.Stop()
		}

		b.logInfo("dali bridge stopped")
	})
}

// edgeLoop is the single writer of decoder state. It turns raw pigpio
// reports into edge events: the tick delta to the previous edge becomes
// the duration (uint32 subtraction handles tick wraparound), watchdog
// expiries become frame timeouts, keepalives are dropped.
func (b *Bridge) edgeLoop() {
	defer b.wg.Done()

	rx := uint32(b.cfg.Bus.RxPin)

	var (
		lastTick  uint32
		lastLevel bool
		havePrev  bool
	)

	for {
		select {
		case <-b.ctx.Done():
			return
		case report, ok := <-b.edges.Reports():
			if !ok {
				// Notification stream died; the daemon is gone.
				b.daemonUp.Store(false)
				if b.health != nil {
					b.health.PublishNow()
				}
				b.logError("edge stream closed", errors.New("pigpiod notification connection lost"))
				return
			}

			switch {
			case report.IsWatchdog(rx):
				b.decoder.HandleTimeout()

			case report.IsAlive() || report.IsEvent():
				// Keepalives arrive only on a quiet bus; nothing to do.

			default:
				level := report.LevelOf(rx)
				if havePrev && level == lastLevel {
					continue
				}

				var duration time.Duration
				if havePrev {
					duration = time.Duration(report.Tick-lastTick) * time.Microsecond
				}

				b.decoder.HandleEdge(Edge{
					Rising:   level,
					Tick:     report.Tick,
					Duration: duration,
				})

				lastTick = report.Tick
				lastLevel = level
				havePrev = true
			}
		}
	}
}

// enqueueFrame hands a decoded frame to the delivery queue.
// Runs on the edge goroutine; never blocks. A full queue drops the frame
// and counts it, because a stalled consumer must not cost bus edges.
func (b *Bridge) enqueueFrame(frame Frame) {
	select {
	case b.frameQueue <- frame:
	default:
		b.droppedFrames.Add(1)
		b.logDebug("frame delivery queue full, dropping frame",
			"value", frame.Value,
			"bits", frame.Bits,
		)
	}
}

// enqueueAbort hands a discarded decode attempt to the delivery queue.
func (b *Bridge) enqueueAbort(reason AbortReason, edgeCount int) {
	msg := AbortMessage{
		Timestamp: time.Now().UTC(),
		Reason:    string(reason),
		EdgeCount: edgeCount,
		Protocol:  ProtocolDALI,
	}
	select {
	case b.abortQueue <- msg:
	default:
		// Diagnostics only; dropping under pressure is fine.
	}
}

// deliveryLoop publishes decoded frames and aborts, and records them.
// Consumer work lives here so the edge loop never waits on MQTT or
// SQLite.
func (b *Bridge) deliveryLoop() {
	defer b.wg.Done()

	for {
		select {
		case <-b.ctx.Done():
			return
		case frame := <-b.frameQueue:
			b.deliverFrame(frame)
		case abort := <-b.abortQueue:
			b.deliverAbort(abort)
		}
	}
}

// deliverFrame publishes and records one received frame.
func (b *Bridge) deliverFrame(frame Frame) {
	b.logDebug("frame received",
		"value", fmt.Sprintf("%#x", frame.Value),
		"bits", frame.Bits,
		"edges", len(frame.Trace),
	)

	msg := FrameMessage{
		Timestamp: frame.Received.UTC(),
		Direction: "rx",
		Value:     frame.Value,
		Bits:      frame.Bits,
		EdgeCount: len(frame.Trace),
		Protocol:  ProtocolDALI,
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		b.logError("marshalling frame message", err)
		return
	}
	if err := b.mqttClient.Publish(b.topics.Frame(), payload, 1, false); err != nil {
		b.logDebug("publishing frame", "error", err)
	}

	if b.recorder != nil {
		b.recorder.RecordFrame("rx", frame.Value, frame.Bits)
	}
	if b.metrics != nil {
		b.metrics.WriteFrame("rx", frame.Value, frame.Bits)
	}
}

// deliverAbort publishes and records one discarded decode attempt.
func (b *Bridge) deliverAbort(msg AbortMessage) {
	payload, err := json.Marshal(msg)
	if err != nil {
		b.logError("marshalling abort message", err)
		return
	}
	if err := b.mqttClient.Publish(b.topics.Abort(), payload, 0, false); err != nil {
		b.logDebug("publishing abort", "error", err)
	}

	if b.recorder != nil {
		b.recorder.RecordAbort(AbortReason(msg.Reason), msg.EdgeCount)
	}
}

// handleSendCommand processes one send command from the MQTT fabric:
// validate, transmit, acknowledge.
func (b *Bridge) handleSendCommand(topic string, payload []byte) error {
	var cmd SendMessage
	if err := json.Unmarshal(payload, &cmd); err != nil {
		b.publishAck("", AckFailed, &AckError{
			Code:    ErrCodeBadPayload,
			Message: err.Error(),
		})
		return fmt.Errorf("parsing send command: %w", err)
	}

	repeats := cmd.Repeat
	if repeats == 0 {
		repeats = 1
	}

	ctx, cancel := context.WithTimeout(b.ctx, sendTimeout)
	defer cancel()

	if err := b.transmitter.Send(ctx, cmd.Value, cmd.Bits, repeats); err != nil {
		b.publishAck(cmd.ID, AckFailed, sendError(err))
		return fmt.Errorf("transmitting frame: %w", err)
	}

	b.logDebug("frame transmitted",
		"value", fmt.Sprintf("%#x", cmd.Value),
		"bits", cmd.Bits,
		"repeats", repeats,
	)

	b.publishAck(cmd.ID, AckSent, nil)
	b.publishTxFrame(cmd.Value, cmd.Bits)

	if b.recorder != nil {
		b.recorder.RecordFrame("tx", cmd.Value, cmd.Bits)
	}
	if b.metrics != nil {
		b.metrics.WriteFrame("tx", cmd.Value, cmd.Bits)
	}
	return nil
}

// sendError maps a transmit failure to an ack error.
func sendError(err error) *AckError {
	code := ErrCodeHardwareError
	switch {
	case errors.Is(err, ErrInvalidBitCount):
		code = ErrCodeInvalidBits
	case errors.Is(err, ErrValueRange):
		code = ErrCodeValueRange
	case errors.Is(err, ErrInvalidRepeat):
		code = ErrCodeInvalidRepeat
	case errors.Is(err, ErrBridgeStopped):
		code = ErrCodeBridgeStopped
	}
	return &AckError{Code: code, Message: err.Error()}
}

// publishAck publishes a command acknowledgment.
func (b *Bridge) publishAck(commandID string, status AckStatus, ackErr *AckError) {
	msg := AckMessage{
		CommandID: commandID,
		Timestamp: time.Now().UTC(),
		Status:    status,
		Protocol:  ProtocolDALI,
		Error:     ackErr,
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		b.logError("marshalling ack message", err)
		return
	}
	if err := b.mqttClient.Publish(b.topics.SendAck(), payload, 1, false); err != nil {
		b.logDebug("publishing ack", "error", err)
	}
}

// publishTxFrame mirrors a transmitted frame onto the frame topic so
// consumers see bus traffic in both directions on one subscription.
func (b *Bridge) publishTxFrame(value uint32, bits int) {
	msg := FrameMessage{
		Timestamp: time.Now().UTC(),
		Direction: "tx",
		Value:     value,
		Bits:      bits,
		Protocol:  ProtocolDALI,
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		b.logError("marshalling frame message", err)
		return
	}
	if err := b.mqttClient.Publish(b.topics.Frame(), payload, 1, false); err != nil {
		b.logDebug("publishing tx frame", "error", err)
	}
}

// DaemonConnected reports whether the pigpio daemon link is up.
func (b *Bridge) DaemonConnected() bool {
	return b.daemonUp.Load()
}

// ConnectionStatus returns the daemon connection details for health
// reporting.
func (b *Bridge) ConnectionStatus() *ConnectionStatus {
	status := "disconnected"
	var since *time.Time
	if b.daemonUp.Load() {
		status = "connected"
		t := b.connectedSince
		since = &t
	}
	return &ConnectionStatus{
		Status:         status,
		Address:        fmt.Sprintf("%s:%d", b.cfg.Bus.Pigpiod.Host, b.cfg.Bus.Pigpiod.Port),
		ConnectedSince: since,
	}
}

// GetStatistics returns a snapshot of the bridge's operational counters.
func (b *Bridge) GetStatistics() BridgeStatistics {
	stats := b.decoder.Stats()

	var sent uint64
	if b.transmitter != nil {
		sent = b.transmitter.FramesSent()
	}

	return BridgeStatistics{
		FramesReceived:  stats.FramesDelivered,
		FramesSent:      sent,
		GlitchAborts:    stats.GlitchAborts,
		MalformedAborts: stats.MalformedAborts,
		OverflowAborts:  stats.OverflowAborts,
		DroppedFrames:   b.droppedFrames.Load(),
		DroppedReports:  b.edges.Dropped(),
	}
}

// Nil-safe logging helpers.

func (b *Bridge) logInfo(msg string, args ...any) {
	b.loggerMu.RLock()
	logger := b.logger
	b.loggerMu.RUnlock()
	if logger != nil {
		logger.Info(msg, args...)
	}
}

func (b *Bridge) logError(msg string, err error) {
	b.loggerMu.RLock()
	logger := b.logger
	b.loggerMu.RUnlock()
	if logger != nil {
		logger.Error(msg, "error", err)
	}
}

func (b *Bridge) logDebug(msg string, args ...any) {
	b.loggerMu.RLock()
	logger := b.logger
	b.loggerMu.RUnlock()
	if logger != nil {
		logger.Debug(msg, args...)
	}
}
