package pigpiod

import (
	"context"
	"encoding/binary"
	"errors"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"
)

// fakeDaemon is an in-process stand-in for pigpiod. It answers the 16-byte
// command protocol and can stream notification reports on connections that
// perform the NOIB handshake.
type fakeDaemon struct {
	listener net.Listener

	mu       sync.Mutex
	commands []fakeCommand
	// results maps command code to a fixed result value.
	results map[uint32]int32
	// reports are streamed after a notify-begin on a NOIB connection.
	reports []Report

	wg sync.WaitGroup
}

type fakeCommand struct {
	cmd, p1, p2 uint32
	ext         []byte
}

func newFakeDaemon(t *testing.T) *fakeDaemon {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("starting fake daemon: %v", err)
	}

	d := &fakeDaemon{
		listener: listener,
		results:  make(map[uint32]int32),
	}

	d.wg.Add(1)
	go d.acceptLoop()

	t.Cleanup(func() {
		listener.Close()
		d.wg.Wait()
	})

	return d
}

func (d *fakeDaemon) config() Config {
	addr := d.listener.Addr().String()
	host, portStr, _ := net.SplitHostPort(addr)
	port, _ := strconv.Atoi(portStr)
	return Config{Host: host, Port: port}
}

func (d *fakeDaemon) setResult(cmd uint32, res int32) {
	d.mu.Lock()
	d.results[cmd] = res
	d.mu.Unlock()
}

func (d *fakeDaemon) setReports(reports []Report) {
	d.mu.Lock()
	d.reports = reports
	d.mu.Unlock()
}

func (d *fakeDaemon) recorded() []fakeCommand {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]fakeCommand, len(d.commands))
	copy(out, d.commands)
	return out
}

func (d *fakeDaemon) acceptLoop() {
	defer d.wg.Done()

	for {
		conn, err := d.listener.Accept()
		if err != nil {
			return
		}
		d.wg.Add(1)
		go d.serve(conn)
	}
}

func (d *fakeDaemon) serve(conn net.Conn) {
	defer d.wg.Done()
	defer conn.Close()

	buf := make([]byte, 16)
	notify := false

	for {
		if _, err := io.ReadFull(conn, buf); err != nil {
			return
		}

		cmd := binary.LittleEndian.Uint32(buf[0:4])
		p1 := binary.LittleEndian.Uint32(buf[4:8])
		p2 := binary.LittleEndian.Uint32(buf[8:12])
		extLen := binary.LittleEndian.Uint32(buf[12:16])

		var ext []byte
		if extLen > 0 {
			ext = make([]byte, extLen)
			if _, err := io.ReadFull(conn, ext); err != nil {
				return
			}
		}

		d.mu.Lock()
		d.commands = append(d.commands, fakeCommand{cmd: cmd, p1: p1, p2: p2, ext: ext})
		res, ok := d.results[cmd]
		d.mu.Unlock()
		if !ok {
			res = 0
		}

		resp := make([]byte, 16)
		copy(resp, buf)
		binary.LittleEndian.PutUint32(resp[12:16], uint32(res))
		if _, err := conn.Write(resp); err != nil {
			return
		}

		if cmd == cmdNOIB {
			notify = true
		}

		// After notify-begin on a NOIB connection, stream the canned reports.
		if notify && cmd == cmdNB {
			d.mu.Lock()
			reports := d.reports
			d.mu.Unlock()

			out := make([]byte, reportSize)
			for _, r := range reports {
				binary.LittleEndian.PutUint16(out[0:2], r.SeqNo)
				binary.LittleEndian.PutUint16(out[2:4], r.Flags)
				binary.LittleEndian.PutUint32(out[4:8], r.Tick)
				binary.LittleEndian.PutUint32(out[8:12], r.Level)
				if _, err := conn.Write(out); err != nil {
					return
				}
			}
			// Keep the connection open for further reads until closed.
		}
	}
}

func connectTest(t *testing.T, d *fakeDaemon) *Client {
	t.Helper()

	client, err := Connect(context.Background(), d.config())
	if err != nil {
		t.Fatalf("Connect() unexpected error: %v", err)
	}
	t.Cleanup(func() {
		_ = client.Close()
	})
	return client
}

func TestSetModeAndWrite(t *testing.T) {
	daemon := newFakeDaemon(t)
	client := connectTest(t, daemon)

	if err := client.SetMode(6, ModeInput); err != nil {
		t.Fatalf("SetMode() error: %v", err)
	}
	if err := client.WriteLevel(5, 0); err != nil {
		t.Fatalf("WriteLevel() error: %v", err)
	}

	cmds := daemon.recorded()
	if len(cmds) != 2 {
		t.Fatalf("recorded %d commands, want 2", len(cmds))
	}
	if cmds[0].cmd != cmdModes || cmds[0].p1 != 6 || cmds[0].p2 != ModeInput {
		t.Errorf("first command = %+v, want MODES gpio 6 input", cmds[0])
	}
	if cmds[1].cmd != cmdWrite || cmds[1].p1 != 5 || cmds[1].p2 != 0 {
		t.Errorf("second command = %+v, want WRITE gpio 5 low", cmds[1])
	}
}

func TestWatchdogAndGlitchFilter(t *testing.T) {
	daemon := newFakeDaemon(t)
	client := connectTest(t, daemon)

	if err := client.SetWatchdog(6, 2); err != nil {
		t.Fatalf("SetWatchdog() error: %v", err)
	}
	if err := client.SetGlitchFilter(6, 150); err != nil {
		t.Fatalf("SetGlitchFilter() error: %v", err)
	}

	cmds := daemon.recorded()
	if cmds[0].cmd != cmdWdog || cmds[0].p2 != 2 {
		t.Errorf("watchdog command = %+v, want WDOG timeout 2", cmds[0])
	}
	if cmds[1].cmd != cmdFG || cmds[1].p2 != 150 {
		t.Errorf("glitch filter command = %+v, want FG steady 150", cmds[1])
	}
}

func TestWaveLifecycle(t *testing.T) {
	daemon := newFakeDaemon(t)
	daemon.setResult(cmdWvCre, 7)
	daemon.setResult(cmdWvAG, 4)
	client := connectTest(t, daemon)

	if err := client.WaveClear(); err != nil {
		t.Fatalf("WaveClear() error: %v", err)
	}

	pulses := []Pulse{
		OnPulse(5, 417),
		OffPulse(5, 417),
	}
	n, err := client.WaveAddGeneric(pulses)
	if err != nil {
		t.Fatalf("WaveAddGeneric() error: %v", err)
	}
	if n != 4 {
		t.Errorf("WaveAddGeneric() = %d pulses, want 4", n)
	}

	id, err := client.WaveCreate()
	if err != nil {
		t.Fatalf("WaveCreate() error: %v", err)
	}
	if id != 7 {
		t.Errorf("WaveCreate() = %d, want 7", id)
	}

	if err := client.WaveChain([]byte{255, 0, 7, 255, 1, 1, 0}); err != nil {
		t.Fatalf("WaveChain() error: %v", err)
	}

	busy, err := client.WaveTxBusy()
	if err != nil {
		t.Fatalf("WaveTxBusy() error: %v", err)
	}
	if busy {
		t.Error("WaveTxBusy() = true, want false")
	}

	if err := client.WaveDelete(7); err != nil {
		t.Fatalf("WaveDelete() error: %v", err)
	}

	// Verify the pulse extension encoding: 12 bytes per pulse.
	cmds := daemon.recorded()
	var agExt []byte
	for _, c := range cmds {
		if c.cmd == cmdWvAG {
			agExt = c.ext
		}
	}
	if len(agExt) != 24 {
		t.Fatalf("WVAG extension length = %d, want 24", len(agExt))
	}
	if on := binary.LittleEndian.Uint32(agExt[0:4]); on != 1<<5 {
		t.Errorf("first pulse gpioOn = %#x, want %#x", on, uint32(1<<5))
	}
	if delay := binary.LittleEndian.Uint32(agExt[8:12]); delay != 417 {
		t.Errorf("first pulse delay = %d, want 417", delay)
	}
}

func TestCommandError(t *testing.T) {
	daemon := newFakeDaemon(t)
	daemon.setResult(cmdModes, -3) // PI_BAD_MODE
	client := connectTest(t, daemon)

	err := client.SetMode(6, 99)
	if !errors.Is(err, ErrCommandFailed) {
		t.Errorf("SetMode() error = %v, want ErrCommandFailed", err)
	}
	if err == nil || !strings.Contains(err.Error(), "-3") {
		t.Errorf("SetMode() error should carry daemon code, got %v", err)
	}
}

func TestClosedClient(t *testing.T) {
	daemon := newFakeDaemon(t)
	client := connectTest(t, daemon)

	if err := client.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}
	if err := client.Close(); err != nil {
		t.Fatalf("second Close() error: %v", err)
	}

	if err := client.SetMode(6, ModeInput); !errors.Is(err, ErrNotConnected) {
		t.Errorf("SetMode() after close error = %v, want ErrNotConnected", err)
	}
}

func TestListen(t *testing.T) {
	daemon := newFakeDaemon(t)
	daemon.setReports([]Report{
		{SeqNo: 1, Flags: 0, Tick: 1000, Level: 1 << 6},
		{SeqNo: 2, Flags: 0, Tick: 1417, Level: 0},
		{SeqNo: 3, Flags: flagWatchdog | 6, Tick: 3417, Level: 0},
	})
	client := connectTest(t, daemon)

	listener, err := client.Listen(1 << 6)
	if err != nil {
		t.Fatalf("Listen() error: %v", err)
	}
	defer listener.Close()

	var got []Report
	timeout := time.After(2 * time.Second)
	for len(got) < 3 {
		select {
		case r, ok := <-listener.Reports():
			if !ok {
				t.Fatalf("reports channel closed after %d reports", len(got))
			}
			got = append(got, r)
		case <-timeout:
			t.Fatalf("timed out after %d reports", len(got))
		}
	}

	if !got[0].LevelOf(6) {
		t.Error("first report should show gpio 6 high")
	}
	if got[1].LevelOf(6) {
		t.Error("second report should show gpio 6 low")
	}
	if !got[2].IsWatchdog(6) {
		t.Error("third report should be a watchdog for gpio 6")
	}
	if got[2].IsWatchdog(5) {
		t.Error("watchdog report should not match gpio 5")
	}
}

func TestReportFlags(t *testing.T) {
	tests := []struct {
		name     string
		report   Report
		wantWdog bool
		wantKeep bool
	}{
		{
			name:     "plain edge",
			report:   Report{Flags: 0},
			wantWdog: false,
		},
		{
			name:     "watchdog on gpio 6",
			report:   Report{Flags: flagWatchdog | 6},
			wantWdog: true,
		},
		{
			name:     "keepalive",
			report:   Report{Flags: flagAlive},
			wantKeep: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.report.IsWatchdog(6); got != tt.wantWdog {
				t.Errorf("IsWatchdog(6) = %v, want %v", got, tt.wantWdog)
			}
			if got := tt.report.IsAlive(); got != tt.wantKeep {
				t.Errorf("IsAlive() = %v, want %v", got, tt.wantKeep)
			}
		})
	}
}

func TestConnectFailure(t *testing.T) {
	_, err := Connect(context.Background(), Config{Host: "127.0.0.1", Port: 1})
	if !errors.Is(err, ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}
