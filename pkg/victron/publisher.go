package victron

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"tbvbridge/pkg/canbus"
	"tbvbridge/pkg/config"
	"tbvbridge/pkg/cvl"
	"tbvbridge/pkg/eventbus"
	"tbvbridge/pkg/livedata"
)

const canTxTimeout = 20 * time.Millisecond

// KeepAliveMonitor is the bidirectional keep-alive state machine
// against the Victron peer (§4.9): `{ok, last_rx_ms, last_tx_ms}`,
// driven entirely by the CAN Publisher's cycle — it owns no goroutine
// of its own.
type KeepAliveMonitor struct {
	ok       bool
	lastRxMs int64
	lastTxMs int64

	timeout  time.Duration
	interval time.Duration

	statusEvents eventbusChannel
	alarmEvents  eventbusChannel
}

// eventbusChannel is the narrow interface Publisher and KeepAliveMonitor
// need from an eventbus.Channel[livedata.Event], so tests can use a
// bare struct without importing the generic instantiation twice.
type eventbusChannel interface {
	Publish(livedata.Event)
}

// EventChannelAdapter adapts an *eventbus.Channel[livedata.Event] (whose
// generic Publish returns an Envelope) to the bare eventbusChannel
// interface Publisher and KeepAliveMonitor consume.
type EventChannelAdapter struct {
	ch *eventbus.Channel[livedata.Event]
}

func (c *EventChannelAdapter) Publish(ev livedata.Event) { c.ch.Publish(ev) }

// NewEventChannelAdapter wraps ch for use as an eventbusChannel.
func NewEventChannelAdapter(ch *eventbus.Channel[livedata.Event]) *EventChannelAdapter {
	return &EventChannelAdapter{ch: ch}
}

// NewKeepAliveMonitor creates a monitor starting in the `ok` state as of
// now, matching S5's documented initial condition.
func NewKeepAliveMonitor(cfg config.Victron, statusEvents, alarmEvents eventbusChannel, now time.Time) *KeepAliveMonitor {
	return &KeepAliveMonitor{
		ok:           true,
		lastRxMs:     now.UnixMilli(),
		timeout:      time.Duration(cfg.KeepaliveTimeoutMs) * time.Millisecond,
		interval:     time.Duration(cfg.KeepaliveIntervalMs) * time.Millisecond,
		statusEvents: statusEvents,
		alarmEvents:  alarmEvents,
	}
}

// keepAliveFrameID is the identifier the Victron peer transmits its
// liveness heartbeat on, and the identifier this bridge replies on.
const keepAliveFrameID = pgnKeepAlive

// ObserveRx folds one drained RX frame into the monitor's RX liveness
// state. Frames on identifiers other than the keep-alive ID are
// ignored — the CAN Publisher drains the whole RX queue per cycle but
// only this identifier carries keep-alive semantics.
func (k *KeepAliveMonitor) ObserveRx(f canbus.Frame, now time.Time) {
	if f.ID != keepAliveFrameID {
		return
	}
	k.lastRxMs = now.UnixMilli()
	if !k.ok {
		k.ok = true
		if k.statusEvents != nil {
			k.statusEvents.Publish(livedata.Event{
				Source: "keepalive", Code: "keepalive_recovered",
				Severity: livedata.SeverityInfo, Message: "victron keep-alive recovered",
				AtUnixMs: now.UnixMilli(),
			})
		}
	}
}

// Tick re-evaluates the RX timeout against now, regardless of whether
// ObserveRx was called this cycle (§4.9: "regardless, if now -
// last_rx_ms > timeout while ok, transition to !ok").
func (k *KeepAliveMonitor) Tick(now time.Time) {
	if k.ok && now.UnixMilli()-k.lastRxMs > k.timeout.Milliseconds() {
		k.ok = false
		if k.alarmEvents != nil {
			k.alarmEvents.Publish(livedata.Event{
				Source: "keepalive", Code: "can_keepalive_lost",
				Severity: livedata.SeverityWarning, Message: "victron keep-alive timed out",
				AtUnixMs: now.UnixMilli(),
			})
		}
	}
}

// ShouldTx reports whether a keep-alive heartbeat is due (§4.8 step 3).
func (k *KeepAliveMonitor) ShouldTx(now time.Time) bool {
	return now.UnixMilli()-k.lastTxMs >= k.interval.Milliseconds()
}

// MarkTx records a keep-alive transmission at now.
func (k *KeepAliveMonitor) MarkTx(now time.Time) { k.lastTxMs = now.UnixMilli() }

// Ok reports the monitor's current liveness state.
func (k *KeepAliveMonitor) Ok() bool { return k.ok }

// Publisher is the CAN Publisher task (§4.8): on each cycle it drains
// RX, folds it into the keep-alive monitor, builds and transmits the
// fixed PGN set from the latest snapshot and the CVL Supervisor's most
// recent output, and sends a keep-alive heartbeat when due.
type Publisher struct {
	can       *canbus.Channel
	store     *livedata.Store
	keepAlive *KeepAliveMonitor

	cfgMu sync.Mutex
	cfg   config.Victron

	alarmEvents  eventbusChannel
	statusEvents eventbusChannel

	log *logrus.Entry

	// commsError reports whether a recent UART/CAN transaction failed,
	// folded into the CommsError alarm (§4.9).
	commsError func() bool
	// latestCVL returns the CVL Supervisor's most recent output; the
	// CVL task runs on a slower cadence (§5) so the publisher always
	// republishes whatever it last computed.
	latestCVL func() cvl.Output
}

// NewPublisher wires a Publisher. commsError and latestCVL are
// collaborator accessors owned elsewhere (the BMS task's last-outcome
// flag and the CVL Supervisor's cached output respectively).
func NewPublisher(can *canbus.Channel, store *livedata.Store, keepAlive *KeepAliveMonitor, cfg config.Victron,
	alarmEvents, statusEvents eventbusChannel, commsError func() bool, latestCVL func() cvl.Output, log *logrus.Entry) *Publisher {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Publisher{
		can: can, store: store, keepAlive: keepAlive, cfg: cfg,
		alarmEvents: alarmEvents, statusEvents: statusEvents,
		commsError: commsError, latestCVL: latestCVL,
		log: log.WithField("component", "victron_publisher"),
	}
}

// SetConfig replaces the Victron configuration section consulted by the
// next RunCycle, without racing the CAN task's concurrent read. Live
// threshold adoption (C.4) does not go through here: adopted thresholds
// travel in the snapshot's threshold fields that Evaluate reads.
func (p *Publisher) SetConfig(cfg config.Victron) {
	p.cfgMu.Lock()
	p.cfg = cfg
	p.cfgMu.Unlock()
}

func (p *Publisher) config() config.Victron {
	p.cfgMu.Lock()
	defer p.cfgMu.Unlock()
	return p.cfg
}

// RunCycle executes one CAN Publisher tick (§4.8).
func (p *Publisher) RunCycle(now time.Time) {
	for _, f := range p.can.DrainAll() {
		p.keepAlive.ObserveRx(f, now)
	}
	p.keepAlive.Tick(now)

	cfg := p.config()

	var snap livedata.Snapshot
	if p.store.Latest(&snap) {
		out := p.latestCVL()
		commsErr := p.commsError != nil && p.commsError()
		alarms := Evaluate(snap, cfg, commsErr, !p.keepAlive.Ok(), out.CCL, out.DCL)

		frames := []canbus.Frame{
			BuildVIT(snap),
			BuildSocSoh(snap),
			BuildCVL(out),
			BuildAlarms(alarms),
			BuildManufacturerName(cfg.ManufacturerName),
			BuildBatteryName(cfg.BatteryName),
		}
		for _, f := range frames {
			if err := p.can.Transmit(f, canTxTimeout); err != nil {
				p.log.WithError(err).WithField("pgn", f.ID).Warn("victron: pgn transmit failed")
			}
		}
	} else {
		p.log.Debug("victron: no snapshot yet, skipping pgn emission")
	}

	if p.keepAlive.ShouldTx(now) {
		if err := p.can.Transmit(BuildKeepAlive(), canTxTimeout); err != nil {
			p.log.WithError(err).Warn("victron: keep-alive transmit failed")
		}
		p.keepAlive.MarkTx(now)
	}
}
