// Package bridge implements the Bridge Orchestrator (§4.13): it creates
// every component, installs the serial and CAN drivers, applies
// configuration, arms the watchdog, and runs the BMS-poll, CAN-publish
// and CVL-supervise tasks for the process lifetime. Modeled on the
// teacher's Network type (network.go): one object owns every
// collaborator and hands out non-owning references (here, an
// api.Facade) rather than exposing its internals.
package bridge

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"tbvbridge/pkg/api"
	"tbvbridge/pkg/bmsclient"
	"tbvbridge/pkg/canbus"
	"tbvbridge/pkg/config"
	"tbvbridge/pkg/cvl"
	"tbvbridge/pkg/decoder"
	"tbvbridge/pkg/eventbus"
	"tbvbridge/pkg/livedata"
	"tbvbridge/pkg/poller"
	"tbvbridge/pkg/serialport"
	"tbvbridge/pkg/victron"
	"tbvbridge/pkg/watchdog"
)

const (
	taskBMS = "bms_poll"
	taskCAN = "can_publish"
	taskCVL = "cvl_supervise"

	eventRingSize = 64
)

// Bridge owns every long-lived component and the three tasks that drive
// them (§5). It is not safe to call Start twice or to use a Bridge
// after Stop.
type Bridge struct {
	cfg *config.Config
	log *logrus.Entry

	serial    *serialport.Channel
	bmsClient *bmsclient.Client
	can       *canbus.Channel

	store *livedata.Store

	liveSnapshotEvents *eventbus.Channel[livedata.Snapshot]
	alarmEvents        *eventbus.Channel[livedata.Event]
	statusEvents       *eventbus.Channel[livedata.Event]
	cvlEvents          *eventbus.Channel[cvl.StateChange]

	bmsPoller  *poller.Poller
	supervisor *cvl.Supervisor
	publisher  *victron.Publisher
	keepAlive  *victron.KeepAliveMonitor
	wd         *watchdog.Watchdog
	offline    *offlineTracker
	facade     *api.Facade

	readOpts bmsclient.Options

	mu             sync.Mutex
	commsError     bool
	lastCVLOutput  cvl.Output
	lastPollerSnap api.PollerMetrics

	stop chan struct{}
	wg   sync.WaitGroup

	// onWatchdogFault runs once when the watchdog monitor observes any
	// registered task missing its feed deadline (§4.12/§7: "any
	// registered task missing its feed deadline" is a fatal fault
	// triggering an intentional controller reset). Overridable so tests
	// can observe the fault without killing the test process.
	onWatchdogFault func(expired []string)
}

// New wires a Bridge from cfg, driving the CAN bus over canDriver (a
// canbus.Driver — SocketCAN in production, a fake in tests).
func New(cfg *config.Config, canDriver canbus.Driver, log *logrus.Entry) (*Bridge, error) {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	log = log.WithField("component", "bridge")

	serial := serialport.New()
	if err := serial.Initialize(cfg.Hardware.UARTRxPin, cfg.Hardware.UARTTxPin, cfg.Hardware.UARTBaud, cfg.Hardware.UARTTimeoutMs); err != nil {
		return nil, err
	}

	protocol := bmsclient.ProtocolNative
	if cfg.TinyBMS.Protocol == "modbus" {
		protocol = bmsclient.ProtocolModbus
	}
	bmsClient := bmsclient.New(serial, protocol, log)

	can := canbus.New(canDriver, log)
	if err := can.Initialize(); err != nil {
		return nil, err
	}

	store := livedata.NewStore(eventRingSize)
	liveSnapshotEvents := eventbus.NewChannel[livedata.Snapshot]()
	alarmEvents := eventbus.NewChannel[livedata.Event]()
	statusEvents := eventbus.NewChannel[livedata.Event]()
	cvlEvents := eventbus.NewChannel[cvl.StateChange]()

	now := time.Now()

	pollerCfg := poller.DefaultConfig()
	pollerCfg.BaseIntervalMs = uint32(cfg.TinyBMS.PollIntervalMs)
	bmsPoller := poller.New(pollerCfg)

	supervisor := cvl.New(cvlEvents, log, now)

	keepAlive := victron.NewKeepAliveMonitor(cfg.Victron,
		victron.NewEventChannelAdapter(statusEvents), victron.NewEventChannelAdapter(alarmEvents), now)

	wd := watchdog.New(time.Duration(cfg.Watchdog.TimeoutMs)*time.Millisecond, log)

	b := &Bridge{
		cfg: cfg, log: log,
		serial: serial, bmsClient: bmsClient, can: can,
		store:              store,
		liveSnapshotEvents: liveSnapshotEvents,
		alarmEvents:        alarmEvents,
		statusEvents:       statusEvents,
		cvlEvents:          cvlEvents,
		bmsPoller:          bmsPoller,
		supervisor:         supervisor,
		keepAlive:          keepAlive,
		wd:                 wd,
		offline:            newOfflineTracker(),
		readOpts: func() bmsclient.Options {
			o := bmsclient.DefaultOptions()
			o.AttemptCount = cfg.TinyBMS.UARTRetryCount
			o.RetryDelay = time.Duration(cfg.TinyBMS.UARTRetryDelayMs) * time.Millisecond
			return o
		}(),
		stop: make(chan struct{}),
	}

	b.publisher = victron.NewPublisher(can, store, keepAlive, cfg.Victron,
		victron.NewEventChannelAdapter(alarmEvents), victron.NewEventChannelAdapter(statusEvents),
		b.getCommsError, b.getLastCVLOutput, log)

	b.facade = api.New(store, liveSnapshotEvents, alarmEvents, statusEvents, cvlEvents, can, serial,
		keepAlive.Ok, b.getPollerMetrics)

	b.onWatchdogFault = b.defaultWatchdogFault

	return b, nil
}

// defaultWatchdogFault logs the missed-deadline task set and exits the
// process (logrus.Fatal calls os.Exit(1)) so a process supervisor
// restarts the bridge — the Go-process equivalent of the hardware
// controller reset §7 mandates.
func (b *Bridge) defaultWatchdogFault(expired []string) {
	b.log.WithField("expired_tasks", expired).Fatal("watchdog: task missed its feed deadline, resetting")
}

// Facade returns the collaborator-facing accessor surface (§6.5).
func (b *Bridge) Facade() *api.Facade { return b.facade }

func (b *Bridge) getCommsError() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.commsError
}

func (b *Bridge) setCommsError(v bool) {
	b.mu.Lock()
	b.commsError = v
	b.mu.Unlock()
}

func (b *Bridge) getLastCVLOutput() cvl.Output {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastCVLOutput
}

func (b *Bridge) setLastCVLOutput(out cvl.Output) {
	b.mu.Lock()
	b.lastCVLOutput = out
	b.mu.Unlock()
}

func (b *Bridge) getPollerMetrics() api.PollerMetrics {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastPollerSnap
}

func (b *Bridge) setPollerMetrics(m api.PollerMetrics) {
	b.mu.Lock()
	b.lastPollerSnap = m
	b.mu.Unlock()
}

// Start arms the watchdog and launches the three long-lived tasks
// (§4.13): BMS Poll, CAN Publish and CVL Supervise each run on their
// own goroutine (no CPU pinning is applied), alongside a fourth
// goroutine that checks the watchdog for expired tasks.
func (b *Bridge) Start() {
	now := time.Now()
	b.wd.Register(taskBMS, time.Duration(b.cfg.Watchdog.MinFeedIntervalMs)*time.Millisecond, now)
	b.wd.Register(taskCAN, time.Duration(b.cfg.Watchdog.MinFeedIntervalMs)*time.Millisecond, now)
	b.wd.Register(taskCVL, time.Duration(b.cfg.Watchdog.MinFeedIntervalMs)*time.Millisecond, now)

	b.wg.Add(4)
	go b.runBMSTask()
	go b.runCANTask()
	go b.runCVLTask()
	go b.runWatchdogMonitor()
}

// Stop signals every task goroutine at once through the shared stop
// channel, waits for all of them to return, then closes the CAN channel
// and the serial port. The tasks are not stopped one at a time, so
// there is no reverse-start-order teardown.
func (b *Bridge) Stop() {
	close(b.stop)
	b.wg.Wait()
	_ = b.can.Close()
	_ = b.serial.Close()
}

func (b *Bridge) runBMSTask() {
	defer b.wg.Done()
	for {
		start := time.Now()
		b.pollOnce(start)
		b.wd.Feed(taskBMS, time.Now())

		interval := time.Duration(b.bmsPoller.CurrentInterval()) * time.Millisecond
		select {
		case <-b.stop:
			return
		case <-time.After(interval):
		}
	}
}

func (b *Bridge) runCANTask() {
	defer b.wg.Done()
	ticker := time.NewTicker(time.Duration(b.cfg.Victron.PGNIntervalMs) * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-b.stop:
			return
		case now := <-ticker.C:
			b.publisher.RunCycle(now)
			b.wd.Feed(taskCAN, now)
		}
	}
}

// watchdogPollDivisor sets how many times within one watchdog timeout
// the monitor checks for a missed deadline.
const watchdogPollDivisor = 4

// runWatchdogMonitor polls Expired at a fraction of the configured
// timeout and fires onWatchdogFault the moment any registered task has
// missed its deadline (§4.12/§7). It only needs to fire once: the fault
// hook is expected to end the process (or, in tests, stop further
// polling itself).
func (b *Bridge) runWatchdogMonitor() {
	defer b.wg.Done()
	interval := time.Duration(b.cfg.Watchdog.TimeoutMs) * time.Millisecond / watchdogPollDivisor
	if interval <= 0 {
		interval = time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-b.stop:
			return
		case now := <-ticker.C:
			if expired := b.wd.Expired(now); len(expired) > 0 {
				b.onWatchdogFault(expired)
				return
			}
		}
	}
}

func (b *Bridge) runCVLTask() {
	defer b.wg.Done()
	ticker := time.NewTicker(time.Duration(b.cfg.Victron.CVLIntervalMs) * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-b.stop:
			return
		case now := <-ticker.C:
			b.superviseOnce(now)
			b.wd.Feed(taskCVL, now)
		}
	}
}

// superviseOnce runs one CVL Supervisor cycle from the latest snapshot,
// caching its output for the CAN Publisher and the facade.
func (b *Bridge) superviseOnce(now time.Time) {
	var snap livedata.Snapshot
	if !b.store.Latest(&snap) {
		return
	}
	in := cvl.Input{
		SocPercent:      snap.SOCPercent,
		CellImbalanceMv: snap.CellImbalanceMv,
		PackVoltageV:    snap.PackVoltageV,
		BaseCCLA:        snap.MaxChargeCurrentA,
		BaseDCLA:        snap.MaxDischargeCurrentA,
		MaxCellVoltageV: snap.MaxCellMv / 1000.0,
		SeriesCellCount: b.cfg.CVL.SeriesCellCount,
	}
	out := b.supervisor.Compute(b.cfg.CVL, in, now)
	b.setLastCVLOutput(out)
}

// pollOnce runs one BMS polling round (§4.3, §6.3): every scheduled
// block must succeed or the whole round is discarded (§4.5), in which
// case a single UartError alarm is raised for the round and the
// Adaptive Poller sees one failure sample.
func (b *Bridge) pollOnce(now time.Time) {
	regs := decoder.NewRegisterMap()

	for _, block := range decoder.ReadSchedule {
		words, result := b.bmsClient.ReadRegisterBlock(block.Start, uint16(block.Count), b.readOpts)
		if result.Outcome != bmsclient.OutcomeSuccess {
			latency := uint32(time.Since(now).Milliseconds())
			b.bmsPoller.RecordFailure(latency)
			b.setCommsError(true)
			b.raiseUartError(now, result)
			b.recordOffline(now, false)
			return
		}
		regs.AddBlock(block.Start, words)
	}

	snap, err := decoder.Decode(regs)
	if err != nil {
		latency := uint32(time.Since(now).Milliseconds())
		b.bmsPoller.RecordFailure(latency)
		b.setCommsError(true)
		b.alarmEvents.Publish(livedata.Event{
			Source: "bms", Code: "uart_error", Severity: livedata.SeverityWarning,
			Message: err.Error(), AtUnixMs: now.UnixMilli(),
		})
		b.recordOffline(now, false)
		return
	}

	decoder.GateThresholdAdoption(&snap, b.cfg.TinyBMS.AdoptBMSThresholds)

	b.store.PublishLatest(snap)
	b.liveSnapshotEvents.Publish(snap)
	b.setCommsError(false)
	b.recordOffline(now, true)

	latency := uint32(time.Since(now).Milliseconds())
	b.bmsPoller.RecordSuccess(latency)
	b.setPollerMetrics(api.PollerMetricsFrom(b.bmsPoller))
}

func (b *Bridge) raiseUartError(now time.Time, result bmsclient.Result) {
	b.alarmEvents.Publish(livedata.Event{
		Source: "bms", Code: "uart_error", Severity: livedata.SeverityWarning,
		Message:  result.Outcome.String(),
		AtUnixMs: now.UnixMilli(),
	})
}

func (b *Bridge) recordOffline(now time.Time, success bool) {
	raise, clear := b.offline.Record(success)
	switch {
	case raise:
		b.alarmEvents.Publish(livedata.Event{
			Source: "bms", Code: "bms_offline", Severity: livedata.SeverityAlarm,
			Message: "3 or more consecutive polling rounds failed", AtUnixMs: now.UnixMilli(),
		})
	case clear:
		b.statusEvents.Publish(livedata.Event{
			Source: "bms", Code: "bms_online", Severity: livedata.SeverityInfo,
			Message: "polling round succeeded after prior failures", AtUnixMs: now.UnixMilli(),
		})
	}
}
