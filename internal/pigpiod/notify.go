package pigpiod

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

// Notification report flags.
const (
	// flagWatchdog marks a watchdog expiry report. The low five flag bits
	// carry the GPIO the watchdog fired on.
	flagWatchdog = 1 << 5

	// flagAlive marks a keepalive report (no edge occurred).
	flagAlive = 1 << 6

	// flagEvent marks an event report.
	flagEvent = 1 << 7

	// flagGpioMask extracts the GPIO number from watchdog report flags.
	flagGpioMask = 0x1F

	// reportSize is the wire size of one notification report.
	reportSize = 12

	// reportQueueSize is the buffer of the report delivery channel.
	// Edges arrive at most every few hundred microseconds; the reader
	// must keep up or reports are dropped.
	reportQueueSize = 512

	// notifyReadTimeout is the read timeout for the notification stream.
	// The daemon sends keepalives roughly once a minute, so a longer
	// timeout means the connection died.
	notifyReadTimeout = 90 * time.Second
)

// Report is one notification from the daemon: an edge, a watchdog expiry,
// or a keepalive.
type Report struct {
	// SeqNo increments per report (wraps at 65535). Gaps mean the daemon
	// dropped reports.
	SeqNo uint16

	// Flags qualifies the report; zero for a plain edge report.
	Flags uint16

	// Tick is the daemon's microsecond timestamp. Wraps every ~72 minutes;
	// compute differences with uint32 subtraction.
	Tick uint32

	// Level is the bank of GPIO 0-31 levels at the time of the report.
	Level uint32
}

// IsWatchdog reports whether this is a watchdog expiry for the given GPIO.
func (r Report) IsWatchdog(gpio uint32) bool {
	return r.Flags&flagWatchdog != 0 && uint32(r.Flags&flagGpioMask) == gpio
}

// IsAlive reports whether this is a keepalive report.
func (r Report) IsAlive() bool {
	return r.Flags&flagAlive != 0
}

// IsEvent reports whether this is an event report.
func (r Report) IsEvent() bool {
	return r.Flags&flagEvent != 0
}

// LevelOf returns the level of a single GPIO from the bank snapshot.
func (r Report) LevelOf(gpio uint32) bool {
	return r.Level&(1<<gpio) != 0
}

// Listener is a notification connection streaming GPIO reports.
//
// Reports are delivered on a buffered channel. If the consumer falls
// behind, reports are dropped and counted rather than blocking the
// read loop.
type Listener struct {
	client *Client
	conn   net.Conn
	handle uint32
	bits   uint32

	reports chan Report
	dropped atomic.Uint64

	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// Listen opens a notification connection and starts streaming reports for
// the GPIOs in the given bitmask.
//
// The pigpio protocol requires the NOIB handshake on the notification
// connection itself; the returned handle is then activated with a
// notify-begin on the same connection.
//
// Parameters:
//   - bits: Bitmask of GPIOs to watch (1 << gpio)
//
// Returns:
//   - *Listener: Active listener; read from Reports()
//   - error: If the dial or handshake fails
func (c *Client) Listen(bits uint32) (*Listener, error) {
	if c.isClosed() {
		return nil, ErrNotConnected
	}

	conn, err := dial(nil, c.cfg)
	if err != nil {
		return nil, err
	}

	// NOIB must be sent on the connection that will carry the stream.
	res, err := exchange(conn, cmdNOIB, 0, 0, nil)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("notify open: %w", err)
	}
	if res < 0 {
		conn.Close()
		return nil, fmt.Errorf("%w: notify open returned %d", ErrCommandFailed, res)
	}
	handle := uint32(res)

	// Activate the handle for the requested GPIOs on the same connection.
	res, err = exchange(conn, cmdNB, handle, bits, nil)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("notify begin: %w", err)
	}
	if res < 0 {
		conn.Close()
		return nil, fmt.Errorf("%w: notify begin returned %d", ErrCommandFailed, res)
	}

	l := &Listener{
		client:  c,
		conn:    conn,
		handle:  handle,
		bits:    bits,
		reports: make(chan Report, reportQueueSize),
		done:    make(chan struct{}),
	}

	l.wg.Add(1)
	go l.receiveLoop()

	return l, nil
}

// Reports returns the report delivery channel.
// The channel is closed when the listener stops.
func (l *Listener) Reports() <-chan Report {
	return l.reports
}

// Dropped returns the number of reports discarded because the consumer
// fell behind.
func (l *Listener) Dropped() uint64 {
	return l.dropped.Load()
}

// Close stops the listener and closes the notification connection.
// Safe to call multiple times.
func (l *Listener) Close() error {
	l.stopOnce.Do(func() {
		close(l.done)

		// Best effort: tell the daemon the handle is gone. This must go
		// over the command connection; the notification connection only
		// streams reports after the handshake.
		_ = l.client.notifyClose(l.handle) //nolint:errcheck // Handle dies with the connection anyway

		l.conn.Close()
		l.wg.Wait()
	})
	return nil
}

// receiveLoop reads 12-byte reports until the connection closes.
func (l *Listener) receiveLoop() {
	defer l.wg.Done()
	defer close(l.reports)

	buf := make([]byte, reportSize)

	for {
		select {
		case <-l.done:
			return
		default:
		}

		if err := l.conn.SetReadDeadline(time.Now().Add(notifyReadTimeout)); err != nil {
			return
		}

		if _, err := io.ReadFull(l.conn, buf); err != nil {
			if l.isClosed() || err == io.EOF {
				return
			}
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				// No keepalive for the whole window: connection is dead.
				return
			}
			return
		}

		report := Report{
			SeqNo: binary.LittleEndian.Uint16(buf[0:2]),
			Flags: binary.LittleEndian.Uint16(buf[2:4]),
			Tick:  binary.LittleEndian.Uint32(buf[4:8]),
			Level: binary.LittleEndian.Uint32(buf[8:12]),
		}

		select {
		case l.reports <- report:
		default:
			// Consumer stalled; dropping is better than blocking the
			// daemon's notification pipe.
			l.dropped.Add(1)
		}
	}
}

// isClosed returns true if Close has been called.
func (l *Listener) isClosed() bool {
	select {
	case <-l.done:
		return true
	default:
		return false
	}
}
