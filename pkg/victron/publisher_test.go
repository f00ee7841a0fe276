package victron

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tbvbridge/pkg/canbus"
	"tbvbridge/pkg/config"
	"tbvbridge/pkg/cvl"
	"tbvbridge/pkg/livedata"
)

type recordingChannel struct {
	events []livedata.Event
}

func (r *recordingChannel) Publish(ev livedata.Event) { r.events = append(r.events, ev) }

// S5 — Keep-alive loss: at t=0 ok, timeout=10000ms; an RX gap past
// timeout flips to !ok exactly once with one alarm, then a keep-alive
// frame recovers it with one status event.
func TestScenarioKeepAliveLossAndRecovery(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cfg := config.Victron{KeepaliveIntervalMs: 1000, KeepaliveTimeoutMs: 10000}
	alarms := &recordingChannel{}
	statuses := &recordingChannel{}

	k := NewKeepAliveMonitor(cfg, statuses, alarms, base)
	assert.True(t, k.Ok())

	k.Tick(base.Add(10001 * time.Millisecond))
	assert.False(t, k.Ok())
	require.Len(t, alarms.events, 1)
	assert.Equal(t, "can_keepalive_lost", alarms.events[0].Code)

	// Further ticks past timeout must not re-raise (exactly once).
	k.Tick(base.Add(15000 * time.Millisecond))
	assert.Len(t, alarms.events, 1)

	recoverAt := base.Add(10500 * time.Millisecond)
	k.ObserveRx(canbus.Frame{ID: pgnKeepAlive}, recoverAt)
	assert.True(t, k.Ok())
	require.Len(t, statuses.events, 1)
	assert.Equal(t, "keepalive_recovered", statuses.events[0].Code)
}

// P7: a steady RX stream at period < timeout keeps state ok.
func TestKeepAliveStaysOkUnderSteadyRx(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cfg := config.Victron{KeepaliveIntervalMs: 1000, KeepaliveTimeoutMs: 10000}
	k := NewKeepAliveMonitor(cfg, &recordingChannel{}, &recordingChannel{}, base)

	for i := 1; i <= 20; i++ {
		now := base.Add(time.Duration(i) * 500 * time.Millisecond)
		k.ObserveRx(canbus.Frame{ID: pgnKeepAlive}, now)
		k.Tick(now)
		assert.True(t, k.Ok())
	}
}

func TestShouldTxRespectsInterval(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cfg := config.Victron{KeepaliveIntervalMs: 1000, KeepaliveTimeoutMs: 10000}
	k := NewKeepAliveMonitor(cfg, &recordingChannel{}, &recordingChannel{}, base)
	k.MarkTx(base)

	assert.False(t, k.ShouldTx(base.Add(500*time.Millisecond)))
	assert.True(t, k.ShouldTx(base.Add(1000*time.Millisecond)))
}

func TestRunCycleSkipsPgnsWithoutSnapshotButStillSendsKeepAlive(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	drv := canbus.NewFakeDriver(false)
	ch := canbus.New(drv, nil)
	require.NoError(t, ch.Initialize())

	cfg := config.Victron{KeepaliveIntervalMs: 1000, KeepaliveTimeoutMs: 10000}
	k := NewKeepAliveMonitor(cfg, &recordingChannel{}, &recordingChannel{}, base)
	store := livedata.NewStore(8)

	p := NewPublisher(ch, store, k, cfg, &recordingChannel{}, &recordingChannel{},
		func() bool { return false }, func() cvl.Output { return cvl.Output{} }, nil)

	p.RunCycle(base)

	sent := drv.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, uint32(pgnKeepAlive), sent[0].ID)
}

func TestRunCycleEmitsFullPgnSetWhenSnapshotPresent(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	drv := canbus.NewFakeDriver(false)
	ch := canbus.New(drv, nil)
	require.NoError(t, ch.Initialize())

	cfg := config.Victron{KeepaliveIntervalMs: 1000, KeepaliveTimeoutMs: 10000,
		ManufacturerName: "TinyBMS", BatteryName: "Battery"}
	k := NewKeepAliveMonitor(cfg, &recordingChannel{}, &recordingChannel{}, base)
	store := livedata.NewStore(8)
	store.PublishLatest(livedata.Snapshot{PackVoltageV: 52, SOCPercent: 60, SOHPercent: 95})

	p := NewPublisher(ch, store, k, cfg, &recordingChannel{}, &recordingChannel{},
		func() bool { return false }, func() cvl.Output { return cvl.Output{CVL: 58.4, CCL: 45, DCL: 100} }, nil)

	p.RunCycle(base)

	sent := drv.Sent()
	ids := make(map[uint32]bool)
	for _, f := range sent {
		ids[f.ID] = true
	}
	for _, want := range EmissionSet {
		assert.True(t, ids[want], "expected pgn %#x to be sent", want)
	}
	assert.True(t, ids[uint32(pgnKeepAlive)])
}

func TestRunCycleSinglePgnFailureDoesNotAbortRemaining(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	drv := canbus.NewFakeDriver(false)
	ch := canbus.New(drv, nil)
	require.NoError(t, ch.Initialize())
	drv.SetFailSend(true)

	cfg := config.Victron{KeepaliveIntervalMs: 1000, KeepaliveTimeoutMs: 10000}
	k := NewKeepAliveMonitor(cfg, &recordingChannel{}, &recordingChannel{}, base)
	store := livedata.NewStore(8)
	store.PublishLatest(livedata.Snapshot{PackVoltageV: 52})

	p := NewPublisher(ch, store, k, cfg, &recordingChannel{}, &recordingChannel{},
		nil, func() cvl.Output { return cvl.Output{} }, nil)

	assert.NotPanics(t, func() { p.RunCycle(base) })
	assert.Equal(t, uint64(len(EmissionSet)+1), ch.GetStats().TxErr)
}
