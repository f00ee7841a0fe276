// Package canbus implements the CAN Channel contract (§4.2): a
// frame-oriented controller with TX/RX, bus-off detection/recovery and
// driver statistics, wrapping a swappable Driver the way gocanopen wraps
// brutella/can behind its Bus interface (bus.go, socketcan.go).
package canbus

import (
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// State is the bus-off recovery state machine's current state (§4.2).
type State int

const (
	StateRunning State = iota
	StateBusOff
	StateRecovering
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateBusOff:
		return "bus_off"
	case StateRecovering:
		return "recovering"
	default:
		return "unknown"
	}
}

// Sentinel errors matching the Ok/Timeout/Error outcome set of §4.2.
var (
	ErrTimeout = errors.New("canbus: timeout")
	ErrBusOff  = errors.New("canbus: bus off, transmit rejected")
)

// Stats are the per-channel counters owned by the driver (§3 BusStats).
type Stats struct {
	TxOK         uint64
	TxErr        uint64
	RxOK         uint64
	RxErr        uint64
	RxDropped    uint64
	BusOffEvents uint64
}

const rxQueueCapacity = 128

// Channel is the CAN Channel: TX passthrough to a Driver, a buffered RX
// queue fed by the driver's subscription callback, and the bus-off
// recovery FSM.
type Channel struct {
	driver Driver
	log    *logrus.Entry

	mu    sync.Mutex
	state State
	stats Stats

	rx chan Frame
}

// New wraps driver in a Channel. Initialize (via Connect) must still be
// called before Transmit/Receive are usable.
func New(driver Driver, log *logrus.Entry) *Channel {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Channel{
		driver: driver,
		log:    log.WithField("component", "canbus"),
		rx:     make(chan Frame, rxQueueCapacity),
	}
}

// Initialize connects the underlying driver and wires its subscription
// callback into the channel's RX queue. A full RX queue drops the new
// frame and counts it rather than blocking the driver's callback.
func (c *Channel) Initialize() error {
	c.driver.Subscribe(func(f Frame) {
		select {
		case c.rx <- f:
		default:
			c.mu.Lock()
			c.stats.RxDropped++
			c.mu.Unlock()
			c.log.Warn("canbus: rx queue full, frame dropped")
		}
	})
	return c.driver.Connect()
}

// Transmit sends frame. While the bus-off recovery FSM is not in
// StateRunning, Transmit returns ErrBusOff without touching the driver.
func (c *Channel) Transmit(frame Frame, timeout time.Duration) error {
	c.mu.Lock()
	state := c.state
	c.mu.Unlock()
	if state != StateRunning {
		return ErrBusOff
	}

	err := c.driver.Send(frame)
	c.mu.Lock()
	if err != nil {
		c.stats.TxErr++
	} else {
		c.stats.TxOK++
	}
	c.mu.Unlock()
	if err != nil {
		return err
	}
	return nil
}

// Receive blocks up to timeout for the next RX frame. While the bus-off
// recovery FSM is not in StateRunning, Receive returns ErrTimeout
// immediately.
func (c *Channel) Receive(timeout time.Duration) (Frame, error) {
	c.mu.Lock()
	state := c.state
	c.mu.Unlock()
	if state != StateRunning {
		return Frame{}, ErrTimeout
	}

	select {
	case f := <-c.rx:
		c.mu.Lock()
		c.stats.RxOK++
		c.mu.Unlock()
		return f, nil
	case <-time.After(timeout):
		return Frame{}, ErrTimeout
	}
}

// DrainAll pulls every currently queued RX frame without blocking,
// used by the CAN Publisher's keep-alive RX drain at the start of each
// cycle (§4.9).
func (c *Channel) DrainAll() []Frame {
	var frames []Frame
	for {
		select {
		case f := <-c.rx:
			c.mu.Lock()
			c.stats.RxOK++
			c.mu.Unlock()
			frames = append(frames, f)
		default:
			return frames
		}
	}
}

// NotifyBusOff transitions the channel into BUS_OFF and begins recovery,
// called when the driver reports a controller bus-off alert.
func (c *Channel) NotifyBusOff() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = StateBusOff
	c.stats.BusOffEvents++
	c.log.Warn("canbus: bus-off detected, entering recovery")
	c.state = StateRecovering
}

// NotifyRecoveryComplete restarts the controller and returns the channel
// to RUNNING, called when the driver reports a recovery-complete alert.
func (c *Channel) NotifyRecoveryComplete() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = StateRunning
	c.log.Info("canbus: recovery complete, resuming")
}

// NotifyRxQueueFull and NotifyTxFailed increment their respective
// counters without changing state (§4.2).
func (c *Channel) NotifyRxQueueFull() {
	c.mu.Lock()
	c.stats.RxDropped++
	c.mu.Unlock()
}

func (c *Channel) NotifyTxFailed() {
	c.mu.Lock()
	c.stats.TxErr++
	c.mu.Unlock()
}

// State returns the channel's current bus-off recovery state.
func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// GetStats returns a snapshot of the channel's counters.
func (c *Channel) GetStats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// ResetStats zeroes the channel's counters.
func (c *Channel) ResetStats() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stats = Stats{}
}

// Close tears down the underlying driver.
func (c *Channel) Close() error {
	return c.driver.Close()
}
