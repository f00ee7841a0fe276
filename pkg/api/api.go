// Package api implements the thin collaborator-facing surface (§6.5):
// a latest-snapshot accessor, subscription interfaces for the bridge's
// four public event kinds, and read-only getters for channel
// statistics, keep-alive state and adaptive-poller metrics. It is
// deliberately not a web or MQTT server (§1 non-goal) — a façade like
// gocanopen's Network type (network.go), wrapping the bridge's owned
// components and handing out non-owning references/subscriptions
// rather than its own transport.
package api

import (
	"tbvbridge/pkg/canbus"
	"tbvbridge/pkg/cvl"
	"tbvbridge/pkg/eventbus"
	"tbvbridge/pkg/livedata"
	"tbvbridge/pkg/poller"
	"tbvbridge/pkg/serialport"
)

// PollerMetrics is a read-only copy of the Adaptive Poller's current
// pacing state, for collaborators that want to display it without
// reaching into the BMS task directly.
type PollerMetrics struct {
	CurrentIntervalMs  uint32
	LastLatencyMs      uint32
	MaxLatencyMs       uint32
	AverageLatencyMs   float64
	ConsecutiveFailures uint32
	ConsecutiveSuccesses uint32
}

// Facade is the object the bridge hands to a web or MQTT collaborator.
// It owns nothing; every field is a reference into components the
// Bridge Orchestrator created and keeps alive for the process lifetime.
type Facade struct {
	store *livedata.Store

	liveSnapshotEvents *eventbus.Channel[livedata.Snapshot]
	alarmEvents        *eventbus.Channel[livedata.Event]
	statusEvents       *eventbus.Channel[livedata.Event]
	cvlEvents          *eventbus.Channel[cvl.StateChange]

	victronChannel *canbus.Channel
	bmsPort        *serialport.Channel

	keepAliveOk func() bool
	pollerStats func() PollerMetrics
}

// New wires a Facade over the bridge's owned components. pollerStats
// and keepAliveOk are accessor closures rather than direct references
// because the Adaptive Poller and KeepAliveMonitor are not safe for
// concurrent use — the owning task snapshots its own state into the
// closure's captured variables under its own synchronization.
func New(
	store *livedata.Store,
	liveSnapshotEvents *eventbus.Channel[livedata.Snapshot],
	alarmEvents *eventbus.Channel[livedata.Event],
	statusEvents *eventbus.Channel[livedata.Event],
	cvlEvents *eventbus.Channel[cvl.StateChange],
	victronChannel *canbus.Channel,
	bmsPort *serialport.Channel,
	keepAliveOk func() bool,
	pollerStats func() PollerMetrics,
) *Facade {
	return &Facade{
		store:              store,
		liveSnapshotEvents: liveSnapshotEvents,
		alarmEvents:        alarmEvents,
		statusEvents:       statusEvents,
		cvlEvents:          cvlEvents,
		victronChannel:     victronChannel,
		bmsPort:            bmsPort,
		keepAliveOk:        keepAliveOk,
		pollerStats:        pollerStats,
	}
}

// LatestSnapshot returns the most recently published LiveSnapshot, and
// false if the BMS task hasn't published one yet.
func (f *Facade) LatestSnapshot() (livedata.Snapshot, bool) {
	var snap livedata.Snapshot
	ok := f.store.Latest(&snap)
	return snap, ok
}

// RecentEvents returns the bounded alarm/status history retained by the
// Live-Data Store.
func (f *Facade) RecentEvents() []livedata.Event {
	return f.store.RecentEvents()
}

// SubscribeLiveSnapshot registers fn for every future published
// snapshot.
func (f *Facade) SubscribeLiveSnapshot(fn eventbus.Handler[livedata.Snapshot]) *eventbus.Subscription {
	return f.liveSnapshotEvents.Subscribe(fn)
}

// SubscribeAlarm registers fn for every future alarm event.
func (f *Facade) SubscribeAlarm(fn eventbus.Handler[livedata.Event]) *eventbus.Subscription {
	return f.alarmEvents.Subscribe(fn)
}

// SubscribeStatusMessage registers fn for every future status (non-alarm
// informational) event.
func (f *Facade) SubscribeStatusMessage(fn eventbus.Handler[livedata.Event]) *eventbus.Subscription {
	return f.statusEvents.Subscribe(fn)
}

// SubscribeCVLStateChanged registers fn for every future CVL Supervisor
// state transition.
func (f *Facade) SubscribeCVLStateChanged(fn eventbus.Handler[cvl.StateChange]) *eventbus.Subscription {
	return f.cvlEvents.Subscribe(fn)
}

// VictronChannelStats returns the CAN channel's TX/RX/bus-off counters.
func (f *Facade) VictronChannelStats() canbus.Stats {
	return f.victronChannel.GetStats()
}

// BMSChannelStats returns the serial channel's byte/timeout counters.
func (f *Facade) BMSChannelStats() serialport.Stats {
	return f.bmsPort.Stats()
}

// KeepAliveOk reports the Victron keep-alive monitor's current state.
func (f *Facade) KeepAliveOk() bool {
	if f.keepAliveOk == nil {
		return false
	}
	return f.keepAliveOk()
}

// PollerMetrics returns the Adaptive Poller's current pacing snapshot.
func (f *Facade) PollerMetrics() PollerMetrics {
	if f.pollerStats == nil {
		return PollerMetrics{}
	}
	return f.pollerStats()
}

// PollerMetricsFrom adapts a *poller.Poller snapshot into PollerMetrics;
// exported as a free function so the Bridge Orchestrator's pollerStats
// closure can stay a one-liner around its own mutex.
func PollerMetricsFrom(p *poller.Poller) PollerMetrics {
	return PollerMetrics{
		CurrentIntervalMs:    p.CurrentInterval(),
		LastLatencyMs:        p.LastLatencyMs(),
		MaxLatencyMs:         p.MaxLatencyMs(),
		AverageLatencyMs:     p.AverageLatencyMs(),
		ConsecutiveFailures:  p.ConsecutiveFailures(),
		ConsecutiveSuccesses: p.ConsecutiveSuccesses(),
	}
}
