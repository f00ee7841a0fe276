//go:build linux

// SocketCAN driver wired through brutella/can, the same wrapper shape
// gocanopen uses in socketcan.go (Send → bus.Publish, Subscribe →
// bus.Subscribe(handler), Connect → bus.ConnectAndPublish in a
// goroutine). The optional GPIO standby/reset line follows
// seedhammer's periph.io GPIO usage (input/input.go): open the host
// once, look up the configured pin by name, drive it low to take the
// transceiver out of standby before the bus connects.
package canbus

import (
	"fmt"

	"github.com/brutella/can"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

// SocketCANDriver wraps a brutella/can.Bus bound to a Linux SocketCAN
// interface, with an optional GPIO standby/reset pin driven low before
// the bus connects.
type SocketCANDriver struct {
	bus        *can.Bus
	standbyPin gpio.PinIO
	handler    func(Frame)
}

// NewSocketCANDriver opens interfaceName (e.g. "can0"). If standbyPin is
// non-empty it is resolved via periph.io's GPIO registry and driven low
// on Connect to bring a CAN transceiver out of standby.
func NewSocketCANDriver(interfaceName, standbyPin string) (*SocketCANDriver, error) {
	bus, err := can.NewBusForInterfaceWithName(interfaceName)
	if err != nil {
		return nil, fmt.Errorf("canbus: open %s: %w", interfaceName, err)
	}

	d := &SocketCANDriver{bus: bus}
	if standbyPin != "" {
		if _, err := host.Init(); err != nil {
			return nil, fmt.Errorf("canbus: periph.io host init: %w", err)
		}
		pin := gpioreg.ByName(standbyPin)
		if pin == nil {
			return nil, fmt.Errorf("canbus: unknown GPIO pin %q", standbyPin)
		}
		d.standbyPin = pin
	}
	return d, nil
}

// Send publishes frame on the bus.
func (d *SocketCANDriver) Send(frame Frame) error {
	return d.bus.Publish(can.Frame{
		ID:     frame.ID,
		Length: frame.DLC,
		Data:   frame.Data,
	})
}

// Subscribe installs handler as the sole frame callback for this bus.
func (d *SocketCANDriver) Subscribe(handler func(Frame)) {
	d.handler = handler
	d.bus.Subscribe(d)
}

// Handle adapts a brutella/can.Frame to the bridge's Frame and forwards
// it to the installed handler; this is brutella/can's can.Handler
// interface.
func (d *SocketCANDriver) Handle(frame can.Frame) {
	if d.handler == nil {
		return
	}
	d.handler(Frame{ID: frame.ID, DLC: frame.Length, Data: frame.Data})
}

// Connect drives the standby pin low (if configured) then starts the
// bus's receive loop in the background, matching gocanopen's
// `go bus.ConnectAndPublish()` pattern.
func (d *SocketCANDriver) Connect() error {
	if d.standbyPin != nil {
		if err := d.standbyPin.Out(gpio.Low); err != nil {
			return fmt.Errorf("canbus: drive standby pin low: %w", err)
		}
	}
	go d.bus.ConnectAndPublish()
	return nil
}

// Close puts the transceiver back into standby (if configured) and
// disconnects the bus.
func (d *SocketCANDriver) Close() error {
	if d.standbyPin != nil {
		_ = d.standbyPin.Out(gpio.High)
	}
	return d.bus.Disconnect()
}
