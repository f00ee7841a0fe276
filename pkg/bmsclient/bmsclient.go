// Package bmsclient implements the BMS Client framed request/response
// protocol (§4.3, §6.1) over a Serial Channel: frame construction, CRC
// validation, retry/backoff and word decoding for both the TinyBMS
// native protocol and the legacy slave-addressed Modbus-function-0x03
// alternative. The transaction loop (drain RX, write once, read exact
// length, validate CRC, validate envelope, retry on failure, restore
// the channel timeout on exit) is carried over from
// original_source/src/uart/tinybms_uart_client.cpp's performTransaction,
// generalized to dispatch on the protocol selected by configuration.
package bmsclient

import (
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"tbvbridge/internal/crc"
)

// Protocol selects which wire protocol the client speaks.
type Protocol int

const (
	ProtocolNative Protocol = iota
	ProtocolModbus
)

// Outcome is the result of a single BMS transaction attempt.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeTimeout
	OutcomeCrcMismatch
	OutcomeWriteError
	OutcomeProtocolError
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeTimeout:
		return "timeout"
	case OutcomeCrcMismatch:
		return "crc_mismatch"
	case OutcomeWriteError:
		return "write_error"
	case OutcomeProtocolError:
		return "protocol_error"
	default:
		return "unknown"
	}
}

// ErrTransaction wraps a non-Success Outcome returned from a Client call.
var ErrTransaction = errors.New("bmsclient: transaction failed")

// Result carries a transaction's terminal outcome plus cumulative
// per-call counters, matching TransactionResult in the original client.
type Result struct {
	Outcome      Outcome
	Retries      int
	Timeouts     int
	CrcErrors    int
	WriteErrors  int
}

// Options configures a single transaction's retry/timeout behavior.
type Options struct {
	AttemptCount      int
	RetryDelay        time.Duration
	ResponseTimeout   time.Duration
	SendWakeupPulse   bool
	WakeupDelay       time.Duration
}

// DefaultOptions matches §6.4's tinybms defaults.
func DefaultOptions() Options {
	return Options{
		AttemptCount:    3,
		RetryDelay:      50 * time.Millisecond,
		ResponseTimeout: 200 * time.Millisecond,
	}
}

// Port is the subset of serialport.Channel the client needs; expressed
// as an interface so tests can exercise the protocol state machine
// without a real tty.
type Port interface {
	SetTimeout(ms int) error
	Timeout() int
	Write(buf []byte) (int, error)
	ReadBytes(dst []byte) (int, error)
	Available() (int, error)
}

const (
	nativePreamble      = 0xAA
	nativeCmdReadBlock  = 0x07
	nativeCmdReadList   = 0x09
	nativeCmdWriteBlock = 0x0B
	nativeCmdWriteList  = 0x0D
	nativeAck           = 0x01
	nativeNack          = 0x81

	modbusSlaveAddress  = 0x01
	modbusFuncReadHolds = 0x03
)

// Client drives one BMS wire protocol over a Port. The UART mutex
// described in §5 is this Client's mu: held only for the duration of
// one request/response transaction.
type Client struct {
	mu       sync.Mutex
	port     Port
	protocol Protocol
	log      *logrus.Entry
}

// New returns a Client speaking protocol over port.
func New(port Port, protocol Protocol, log *logrus.Entry) *Client {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Client{port: port, protocol: protocol, log: log.WithField("component", "bmsclient")}
}

// ReadRegisterBlock reads count contiguous 16-bit registers starting at
// start. Words are returned MSB-resolved into host uint16s regardless of
// protocol; the register-decoder layer is responsible for native's
// little-endian-word composition rules.
func (c *Client) ReadRegisterBlock(start uint16, count uint16, opts Options) ([]uint16, Result) {
	if c.protocol == ProtocolModbus {
		return c.readRegisterBlockModbus(start, count, opts)
	}
	return c.readRegisterBlockNative(start, count, opts)
}

// ReadRegisterList reads the possibly-noncontiguous registers named by
// addresses (native protocol only; the legacy Modbus alternative has no
// list-read command).
func (c *Client) ReadRegisterList(addresses []uint16, opts Options) ([]uint16, Result) {
	if c.protocol == ProtocolModbus {
		return nil, Result{Outcome: OutcomeProtocolError}
	}
	return c.readRegisterListNative(addresses, opts)
}

// WriteRegisterBlock writes values to count contiguous registers
// starting at start (native protocol only).
func (c *Client) WriteRegisterBlock(start uint16, values []uint16, opts Options) Result {
	if c.protocol == ProtocolModbus {
		return Result{Outcome: OutcomeProtocolError}
	}
	return c.writeRegisterBlockNative(start, values, opts)
}

// WriteRegisterList writes each (address, value) pair (native protocol
// only).
func (c *Client) WriteRegisterList(addresses, values []uint16, opts Options) Result {
	if c.protocol == ProtocolModbus {
		return Result{Outcome: OutcomeProtocolError}
	}
	return c.writeRegisterListNative(addresses, values, opts)
}

// transaction runs the shared write/read/CRC/retry loop: it writes
// request, reads exactly expectedRespLen bytes, validates the CRC over
// all but the trailing two bytes, then hands the CRC-stripped payload to
// validate. validate returns ok=true on a well-formed envelope.
func (c *Client) transaction(request []byte, expectedRespLen int, opts Options, validate func(payload []byte) bool) ([]byte, Result) {
	c.mu.Lock()
	defer c.mu.Unlock()

	attempts := opts.AttemptCount
	if attempts <= 0 {
		attempts = 1
	}

	previousTimeout := c.port.Timeout()
	if opts.ResponseTimeout > 0 {
		_ = c.port.SetTimeout(int(opts.ResponseTimeout.Milliseconds()))
	}
	defer func() { _ = c.port.SetTimeout(previousTimeout) }()

	var result Result
	result.Outcome = OutcomeProtocolError

	if opts.SendWakeupPulse {
		_, _ = c.port.Write(request)
		if opts.WakeupDelay > 0 {
			time.Sleep(opts.WakeupDelay)
		}
		drainAvailable(c.port)
	}

	response := make([]byte, expectedRespLen)

	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			result.Retries++
			if opts.RetryDelay > 0 {
				time.Sleep(opts.RetryDelay)
			}
		}

		drainAvailable(c.port)

		n, err := c.port.Write(request)
		if err != nil || n != len(request) {
			result.WriteErrors++
			result.Outcome = OutcomeWriteError
			continue
		}

		received, err := readExact(c.port, response)
		if err != nil || received != expectedRespLen {
			result.Timeouts++
			result.Outcome = OutcomeTimeout
			continue
		}

		if !crc.ValidLE(response) {
			result.CrcErrors++
			result.Outcome = OutcomeCrcMismatch
			continue
		}

		payload := response[:len(response)-2]
		if !validate(payload) {
			result.Outcome = OutcomeProtocolError
			continue
		}

		result.Outcome = OutcomeSuccess
		return payload, result
	}

	return nil, result
}

// readExact reads until dst is full, a read returns zero bytes (treated
// as a timeout), or an error occurs.
func readExact(port Port, dst []byte) (int, error) {
	total := 0
	for total < len(dst) {
		n, err := port.ReadBytes(dst[total:])
		if err != nil {
			return total, err
		}
		if n == 0 {
			return total, nil
		}
		total += n
	}
	return total, nil
}

// drainAvailable discards whatever the BMS has already queued before a
// new request goes out, so a stale reply from a prior timed-out attempt
// can't be mistaken for the next one's response. It asks the port how
// much is actually buffered rather than guessing at a scratch size.
func drainAvailable(port Port) {
	for {
		n, err := port.Available()
		if err != nil || n == 0 {
			return
		}
		scratch := make([]byte, n)
		read, err := port.ReadBytes(scratch)
		if err != nil || read == 0 {
			return
		}
	}
}
