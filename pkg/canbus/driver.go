package canbus

// Driver is the minimum a CAN transport must provide: publish a frame,
// and deliver received frames to a handler. Mirrors gocanopen's Bus
// interface (bus.go: Send/Subscribe/Connect), narrowed to the single
// concrete backend this bridge wires (brutella/can over SocketCAN) plus
// a fake used in tests — adding another backend means implementing this
// interface, same as gocanopen's "swap the Bus implementation" model.
type Driver interface {
	Send(frame Frame) error
	Subscribe(handler func(Frame))
	Connect() error
	Close() error
}
