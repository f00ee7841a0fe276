// Package serialport implements the Serial Channel contract (§4.1): a
// byte-oriented, full-duplex port with configurable baud and a
// per-operation timeout, no framing, no CRC. It opens the underlying tty
// the same way seedhammer's mjolnir driver does
// (driver/mjolnir/device.go) — a tarm/serial.Config keyed by device
// path and baud rate — generalized to re-open on changed parameters and
// track read/write/timeout statistics.
package serialport

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/tarm/serial"
)

// Sentinel errors returned by Channel methods, matching the Ok/
// InvalidArg/Error outcome set of §4.1.
var (
	ErrInvalidArg = errors.New("serialport: invalid argument")
	ErrNotOpen    = errors.New("serialport: not open")
)

// Channel is a serial port opened for byte-oriented read/write.
type Channel struct {
	mu sync.Mutex

	devicePath string
	baud       int
	timeoutMs  int

	port io.ReadWriteCloser

	// pending holds bytes pulled from the port by an Available probe
	// that ReadBytes hasn't consumed yet, so a probe never drops data.
	pending []byte

	bytesWritten uint64
	bytesRead    uint64
	timeouts     uint64
}

// New returns an unopened Channel.
func New() *Channel {
	return &Channel{}
}

// Initialize opens the port at rxPin (the device path; txPin is accepted
// for contract symmetry with split-duplex hardware and recorded but
// unused on a single tty device) with the given baud and default
// timeout. Re-initializing with identical parameters on an already-open
// channel is a no-op; changed parameters tear down and reopen the port.
func (c *Channel) Initialize(rxPin, txPin string, baud, defaultTimeoutMs int) error {
	devicePath := rxPin
	if devicePath == "" {
		devicePath = txPin
	}
	if devicePath == "" || baud <= 0 || defaultTimeoutMs <= 0 {
		return ErrInvalidArg
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.port != nil {
		if c.devicePath == devicePath && c.baud == baud && c.timeoutMs == defaultTimeoutMs {
			return nil
		}
		_ = c.port.Close()
		c.port = nil
	}

	cfg := &serial.Config{
		Name:        devicePath,
		Baud:        baud,
		ReadTimeout: time.Duration(defaultTimeoutMs) * time.Millisecond,
	}
	port, err := serial.OpenPort(cfg)
	if err != nil {
		return fmt.Errorf("serialport: open %s: %w", devicePath, err)
	}

	c.port = port
	c.devicePath = devicePath
	c.baud = baud
	c.timeoutMs = defaultTimeoutMs
	return nil
}

// SetTimeout changes the per-read timeout. tarm/serial has no live
// timeout knob on an open port, so a changed timeout reopens the port
// with the new value — the same "changed parameters reopen" rule
// Initialize applies.
func (c *Channel) SetTimeout(ms int) error {
	c.mu.Lock()
	devicePath, baud := c.devicePath, c.baud
	c.mu.Unlock()
	if devicePath == "" {
		return ErrNotOpen
	}
	return c.Initialize(devicePath, "", baud, ms)
}

// Timeout returns the channel's current per-read timeout in milliseconds.
func (c *Channel) Timeout() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.timeoutMs
}

// Write writes buf in a single call and returns the number of bytes
// written.
func (c *Channel) Write(buf []byte) (int, error) {
	c.mu.Lock()
	port := c.port
	c.mu.Unlock()
	if port == nil {
		return 0, ErrNotOpen
	}
	n, err := port.Write(buf)
	c.mu.Lock()
	c.bytesWritten += uint64(n)
	c.mu.Unlock()
	return n, err
}

// ReadBytes reads up to len(dst) bytes, blocking up to the channel's
// current timeout. It returns a partial or zero count on timeout rather
// than an error, matching the §4.1 contract. Bytes an earlier Available
// probe pulled off the port but didn't hand out yet are served first.
func (c *Channel) ReadBytes(dst []byte) (int, error) {
	c.mu.Lock()
	if len(c.pending) > 0 {
		n := copy(dst, c.pending)
		c.pending = c.pending[n:]
		c.bytesRead += uint64(n)
		c.mu.Unlock()
		return n, nil
	}
	port := c.port
	c.mu.Unlock()
	if port == nil {
		return 0, ErrNotOpen
	}
	n, err := port.Read(dst)
	if err != nil && !errors.Is(err, io.EOF) {
		c.mu.Lock()
		c.timeouts++
		c.mu.Unlock()
		return n, nil
	}
	c.mu.Lock()
	c.bytesRead += uint64(n)
	c.mu.Unlock()
	return n, nil
}

// availableProbeSize bounds a single Available probe read.
const availableProbeSize = 256

// availableProbeWindow is how long Available waits for the probe read
// to return before concluding nothing is available right now.
const availableProbeWindow = time.Millisecond

// Available reports how many bytes can be read immediately without
// blocking (§4.1). tarm/serial exposes no byte-count query on the
// underlying tty, so this probes with a short-lived read on a
// background goroutine and stashes whatever arrives in pending for
// ReadBytes to serve first; the probe goroutine is bounded by the
// port's own configured read timeout even if this call returns early.
func (c *Channel) Available() (int, error) {
	c.mu.Lock()
	if len(c.pending) > 0 {
		n := len(c.pending)
		c.mu.Unlock()
		return n, nil
	}
	port := c.port
	c.mu.Unlock()
	if port == nil {
		return 0, ErrNotOpen
	}

	type probeResult struct {
		buf []byte
		err error
	}
	done := make(chan probeResult, 1)
	go func() {
		buf := make([]byte, availableProbeSize)
		n, err := port.Read(buf)
		done <- probeResult{buf[:n], err}
	}()

	select {
	case r := <-done:
		if r.err != nil && !errors.Is(r.err, io.EOF) {
			return 0, nil
		}
		if len(r.buf) == 0 {
			return 0, nil
		}
		c.mu.Lock()
		c.pending = append(c.pending, r.buf...)
		n := len(c.pending)
		c.mu.Unlock()
		return n, nil
	case <-time.After(availableProbeWindow):
		return 0, nil
	}
}

// Flush is a best-effort drain; the underlying io.ReadWriteCloser
// exposes no explicit TX-drain primitive so this is a no-op kept for
// contract symmetry with §4.1's flush().
func (c *Channel) Flush() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.port == nil {
		return ErrNotOpen
	}
	return nil
}

// Close tears down the underlying port.
func (c *Channel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.port == nil {
		return nil
	}
	err := c.port.Close()
	c.port = nil
	return err
}

// Stats reports cumulative byte counters, useful for CommsError alarm
// evaluation upstream.
type Stats struct {
	BytesWritten uint64
	BytesRead    uint64
	Timeouts     uint64
}

// Stats returns a snapshot of the channel's counters.
func (c *Channel) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{BytesWritten: c.bytesWritten, BytesRead: c.bytesRead, Timeouts: c.timeouts}
}
