package serialport

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
)

// fakePort is an in-memory io.ReadWriteCloser standing in for a real tty,
// used to exercise Channel's read/write/stats logic without hardware.
type fakePort struct {
	writes  bytes.Buffer
	toRead  []byte
	readErr error
	closed  bool
}

func (f *fakePort) Write(p []byte) (int, error) { return f.writes.Write(p) }

func (f *fakePort) Read(p []byte) (int, error) {
	if f.readErr != nil {
		return 0, f.readErr
	}
	n := copy(p, f.toRead)
	f.toRead = f.toRead[n:]
	return n, nil
}

func (f *fakePort) Close() error {
	f.closed = true
	return nil
}

func newTestChannel(p io.ReadWriteCloser) *Channel {
	c := New()
	c.port = p
	c.devicePath = "/dev/fake"
	c.baud = 115200
	c.timeoutMs = 1000
	return c
}

func TestInitializeRejectsInvalidArgs(t *testing.T) {
	c := New()
	assert.ErrorIs(t, c.Initialize("", "", 115200, 1000), ErrInvalidArg)
	assert.ErrorIs(t, c.Initialize("/dev/ttyUSB0", "", 0, 1000), ErrInvalidArg)
	assert.ErrorIs(t, c.Initialize("/dev/ttyUSB0", "", 115200, 0), ErrInvalidArg)
}

func TestWriteCountsBytesAndForwardsToPort(t *testing.T) {
	fp := &fakePort{}
	c := newTestChannel(fp)

	n, err := c.Write([]byte{0xAA, 0x07, 0x03})
	assert.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, []byte{0xAA, 0x07, 0x03}, fp.writes.Bytes())
	assert.Equal(t, uint64(3), c.Stats().BytesWritten)
}

func TestReadBytesReturnsDataAndCountsIt(t *testing.T) {
	fp := &fakePort{toRead: []byte{0x01, 0x02, 0x03, 0x04}}
	c := newTestChannel(fp)

	dst := make([]byte, 4)
	n, err := c.ReadBytes(dst)
	assert.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, []byte{0x01, 0x02, 0x03, 0x04}, dst)
	assert.Equal(t, uint64(4), c.Stats().BytesRead)
}

func TestReadBytesOnTimeoutReturnsZeroNotError(t *testing.T) {
	fp := &fakePort{readErr: errors.New("i/o timeout")}
	c := newTestChannel(fp)

	dst := make([]byte, 4)
	n, err := c.ReadBytes(dst)
	assert.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Equal(t, uint64(1), c.Stats().Timeouts)
}

func TestOperationsOnUnopenedChannelReturnErrNotOpen(t *testing.T) {
	c := New()
	_, err := c.Write([]byte{1})
	assert.ErrorIs(t, err, ErrNotOpen)

	_, err = c.ReadBytes(make([]byte, 1))
	assert.ErrorIs(t, err, ErrNotOpen)

	assert.ErrorIs(t, c.Flush(), ErrNotOpen)
	assert.ErrorIs(t, c.SetTimeout(500), ErrNotOpen)
}

func TestAvailableReportsBufferedByteCountAndReadBytesServesItFirst(t *testing.T) {
	fp := &fakePort{toRead: []byte{0xAA, 0x07, 0x03}}
	c := newTestChannel(fp)

	n, err := c.Available()
	assert.NoError(t, err)
	assert.Equal(t, 3, n)

	dst := make([]byte, 3)
	read, err := c.ReadBytes(dst)
	assert.NoError(t, err)
	assert.Equal(t, 3, read)
	assert.Equal(t, []byte{0xAA, 0x07, 0x03}, dst)
	assert.Equal(t, uint64(3), c.Stats().BytesRead)
}

func TestAvailableReturnsZeroWhenPortIsQuiet(t *testing.T) {
	fp := &fakePort{}
	c := newTestChannel(fp)

	n, err := c.Available()
	assert.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestAvailableOnUnopenedChannelReturnsErrNotOpen(t *testing.T) {
	c := New()
	_, err := c.Available()
	assert.ErrorIs(t, err, ErrNotOpen)
}

func TestCloseTearsDownPort(t *testing.T) {
	fp := &fakePort{}
	c := newTestChannel(fp)
	assert.NoError(t, c.Close())
	assert.True(t, fp.closed)
	assert.NoError(t, c.Close()) // idempotent
}
