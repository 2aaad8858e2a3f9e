package pigpiod

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"sync"
	"time"
)

// pigpio socket command codes.
// See http://abyz.me.uk/rpi/pigpio/sif.html for the full table.
const (
	cmdModes = 0  // set GPIO mode
	cmdWrite = 4  // write GPIO level
	cmdWdog  = 9  // set watchdog
	cmdBR1   = 10 // read bank 1 levels
	cmdTick  = 16 // current tick
	cmdNB    = 19 // notify begin
	cmdNC    = 21 // notify close
	cmdWvClr = 27 // clear waveforms
	cmdWvAG  = 28 // add generic pulses
	cmdWvBsy = 32 // wave transmit busy
	cmdWvHlt = 33 // wave transmit stop
	cmdWvCre = 49 // create waveform
	cmdWvDel = 50 // delete waveform
	cmdWvCha = 93 // transmit wave chain
	cmdFG    = 97 // set glitch filter
	cmdNOIB  = 99 // notify open in-band
)

// GPIO modes for SetMode.
const (
	ModeInput  = 0
	ModeOutput = 1
)

// Default timeouts for daemon communication.
const (
	// defaultConnectTimeout is the maximum time to wait for initial connection.
	defaultConnectTimeout = 10 * time.Second

	// defaultCommandTimeout is the timeout for a single command exchange.
	defaultCommandTimeout = 5 * time.Second

	// commandSize is the fixed size of a command or response in bytes.
	commandSize = 16
)

// Config holds pigpio daemon connection configuration.
type Config struct {
	// Host is the daemon hostname or IP address.
	Host string

	// Port is the daemon TCP port (pigpiod default is 8888).
	Port int
}

// Client is a command connection to the pigpio daemon.
//
// Thread Safety:
//   - All methods are safe for concurrent use. Command exchanges are
//     serialised so responses cannot interleave.
type Client struct {
	cfg  Config
	conn net.Conn

	// mu serialises command/response exchanges on the socket.
	mu sync.Mutex

	// closed tracks lifecycle state.
	closedMu sync.RWMutex
	closed   bool
}

// Connect establishes a command connection to the pigpio daemon.
//
// Parameters:
//   - ctx: Context for cancellation of the initial dial
//   - cfg: Daemon endpoint configuration
//
// Returns:
//   - *Client: Connected client ready for use
//   - error: If the dial fails
func Connect(ctx context.Context, cfg Config) (*Client, error) {
	conn, err := dial(ctx, cfg)
	if err != nil {
		return nil, err
	}

	return &Client{
		cfg:  cfg,
		conn: conn,
	}, nil
}

// dial opens a TCP connection to the daemon with a timeout.
func dial(ctx context.Context, cfg Config) (net.Conn, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	dialCtx, cancel := context.WithTimeout(ctx, defaultConnectTimeout)
	defer cancel()

	address := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	var dialer net.Dialer
	conn, err := dialer.DialContext(dialCtx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %w", ErrConnectionFailed, address, err)
	}
	return conn, nil
}

// Close closes the command connection.
// Safe to call multiple times.
func (c *Client) Close() error {
	c.closedMu.Lock()
	if c.closed {
		c.closedMu.Unlock()
		return nil
	}
	c.closed = true
	c.closedMu.Unlock()

	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// isClosed returns true if Close has been called.
func (c *Client) isClosed() bool {
	c.closedMu.RLock()
	defer c.closedMu.RUnlock()
	return c.closed
}

// command performs one command exchange: a 16-byte request, optional
// extension bytes, and a 16-byte response. The result word is returned
// as a signed value; negative results are daemon error codes.
func (c *Client) command(cmd, p1, p2 uint32, ext []byte) (int32, error) {
	if c.isClosed() {
		return 0, ErrNotConnected
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	res, err := exchange(c.conn, cmd, p1, p2, ext)
	if err != nil {
		return 0, err
	}
	return res, nil
}

// commandChecked performs a command exchange and maps negative results
// to ErrCommandFailed.
func (c *Client) commandChecked(cmd, p1, p2 uint32, ext []byte) (int32, error) {
	res, err := c.command(cmd, p1, p2, ext)
	if err != nil {
		return 0, err
	}
	if res < 0 {
		return 0, fmt.Errorf("%w: command %d returned %d", ErrCommandFailed, cmd, res)
	}
	return res, nil
}

// exchange writes one command and reads its response on the given connection.
// The caller must hold any serialisation lock for conn.
func exchange(conn net.Conn, cmd, p1, p2 uint32, ext []byte) (int32, error) {
	deadline := time.Now().Add(defaultCommandTimeout)
	if err := conn.SetDeadline(deadline); err != nil {
		return 0, fmt.Errorf("set deadline: %w", err)
	}

	// Request: cmd, p1, p2, p3 where p3 is the extension length.
	req := make([]byte, commandSize, commandSize+len(ext))
	binary.LittleEndian.PutUint32(req[0:4], cmd)
	binary.LittleEndian.PutUint32(req[4:8], p1)
	binary.LittleEndian.PutUint32(req[8:12], p2)
	binary.LittleEndian.PutUint32(req[12:16], uint32(len(ext)))
	req = append(req, ext...)

	if _, err := conn.Write(req); err != nil {
		return 0, fmt.Errorf("write command %d: %w", cmd, err)
	}

	// Response mirrors the request layout; the last word is the result.
	resp := make([]byte, commandSize)
	if _, err := io.ReadFull(conn, resp); err != nil {
		if err == io.ErrUnexpectedEOF {
			return 0, fmt.Errorf("%w: command %d", ErrShortResponse, cmd)
		}
		return 0, fmt.Errorf("read response for command %d: %w", cmd, err)
	}

	res := int32(binary.LittleEndian.Uint32(resp[12:16]))
	return res, nil
}

// SetMode sets a GPIO to input or output.
//
// Parameters:
//   - gpio: BCM GPIO number
//   - mode: ModeInput or ModeOutput
func (c *Client) SetMode(gpio, mode uint32) error {
	_, err := c.commandChecked(cmdModes, gpio, mode, nil)
	return err
}

// WriteLevel sets a GPIO output level (0 or 1).
func (c *Client) WriteLevel(gpio, level uint32) error {
	_, err := c.commandChecked(cmdWrite, gpio, level, nil)
	return err
}

// ReadBank1 returns the levels of GPIO 0-31 as a bitmask.
func (c *Client) ReadBank1() (uint32, error) {
	// BR1 returns the bank as an unsigned value which may have the top
	// bit set, so it bypasses the negative-result check.
	res, err := c.command(cmdBR1, 0, 0, nil)
	if err != nil {
		return 0, err
	}
	return uint32(res), nil
}

// Tick returns the daemon's microsecond tick counter.
// The tick wraps around roughly every 72 minutes; callers must compute
// differences with unsigned arithmetic.
func (c *Client) Tick() (uint32, error) {
	res, err := c.command(cmdTick, 0, 0, nil)
	if err != nil {
		return 0, err
	}
	return uint32(res), nil
}

// SetWatchdog arms a watchdog on a GPIO. After timeoutMS milliseconds
// without an edge the daemon emits a notification report flagged as a
// watchdog event. A timeout of 0 cancels the watchdog.
func (c *Client) SetWatchdog(gpio, timeoutMS uint32) error {
	_, err := c.commandChecked(cmdWdog, gpio, timeoutMS, nil)
	return err
}

// SetGlitchFilter requires a level to be stable for steadyUS microseconds
// before an edge is reported. Edges shorter than the filter are invisible
// to notifications.
func (c *Client) SetGlitchFilter(gpio, steadyUS uint32) error {
	_, err := c.commandChecked(cmdFG, gpio, steadyUS, nil)
	return err
}

// notifyBegin starts notifications for the given GPIO bitmask on an
// open notification handle.
func (c *Client) notifyBegin(handle, bits uint32) error {
	_, err := c.commandChecked(cmdNB, handle, bits, nil)
	return err
}

// notifyClose closes a notification handle.
func (c *Client) notifyClose(handle uint32) error {
	_, err := c.commandChecked(cmdNC, handle, 0, nil)
	return err
}
