package canbus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransmitAndReceiveLoopback(t *testing.T) {
	drv := NewFakeDriver(true)
	ch := New(drv, nil)
	require.NoError(t, ch.Initialize())

	err := ch.Transmit(Frame{ID: 0x351, DLC: 8}, time.Second)
	require.NoError(t, err)

	got, err := ch.Receive(time.Second)
	require.NoError(t, err)
	assert.Equal(t, uint32(0x351), got.ID)

	stats := ch.GetStats()
	assert.Equal(t, uint64(1), stats.TxOK)
	assert.Equal(t, uint64(1), stats.RxOK)
}

func TestReceiveTimesOutWhenNoFrame(t *testing.T) {
	drv := NewFakeDriver(false)
	ch := New(drv, nil)
	require.NoError(t, ch.Initialize())

	_, err := ch.Receive(20 * time.Millisecond)
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestTransmitFailureCountsTxErr(t *testing.T) {
	drv := NewFakeDriver(false)
	drv.SetFailSend(true)
	ch := New(drv, nil)
	require.NoError(t, ch.Initialize())

	err := ch.Transmit(Frame{ID: 0x305, DLC: 1}, time.Second)
	assert.Error(t, err)
	assert.Equal(t, uint64(1), ch.GetStats().TxErr)
}

func TestBusOffRejectsTransmitAndTimesOutReceive(t *testing.T) {
	drv := NewFakeDriver(true)
	ch := New(drv, nil)
	require.NoError(t, ch.Initialize())

	ch.NotifyBusOff()
	assert.Equal(t, StateRecovering, ch.State())

	err := ch.Transmit(Frame{ID: 0x351, DLC: 8}, time.Second)
	assert.ErrorIs(t, err, ErrBusOff)

	_, err = ch.Receive(10 * time.Millisecond)
	assert.ErrorIs(t, err, ErrTimeout)

	assert.Equal(t, uint64(1), ch.GetStats().BusOffEvents)
}

func TestRecoveryCompleteReturnsToRunning(t *testing.T) {
	drv := NewFakeDriver(true)
	ch := New(drv, nil)
	require.NoError(t, ch.Initialize())

	ch.NotifyBusOff()
	ch.NotifyRecoveryComplete()
	assert.Equal(t, StateRunning, ch.State())

	assert.NoError(t, ch.Transmit(Frame{ID: 0x351, DLC: 8}, time.Second))
}

func TestDrainAllReturnsAllQueuedFrames(t *testing.T) {
	drv := NewFakeDriver(false)
	ch := New(drv, nil)
	require.NoError(t, ch.Initialize())

	drv.Deliver(Frame{ID: 1})
	drv.Deliver(Frame{ID: 2})
	drv.Deliver(Frame{ID: 3})

	time.Sleep(10 * time.Millisecond)
	frames := ch.DrainAll()
	assert.Len(t, frames, 3)
	assert.Empty(t, ch.DrainAll())
}

func TestRxQueueFullDropsAndCounts(t *testing.T) {
	drv := NewFakeDriver(false)
	ch := New(drv, nil)
	require.NoError(t, ch.Initialize())

	for i := 0; i < rxQueueCapacity+10; i++ {
		drv.Deliver(Frame{ID: uint32(i)})
	}

	stats := ch.GetStats()
	assert.Greater(t, stats.RxDropped, uint64(0))
}

func TestResetStatsZeroesCounters(t *testing.T) {
	drv := NewFakeDriver(true)
	ch := New(drv, nil)
	require.NoError(t, ch.Initialize())
	require.NoError(t, ch.Transmit(Frame{ID: 1, DLC: 1}, time.Second))

	ch.ResetStats()
	assert.Equal(t, Stats{}, ch.GetStats())
}
