// Package cvl implements the CVL Supervisor (§4.10): the low-frequency
// control loop that derives the charge-voltage limit, charge-current
// limit and discharge-current limit the bridge advertises to the
// inverter, driven by SOC, cell imbalance and the cell-overvoltage
// proportional guard.
package cvl

import (
	"math"
	"time"

	"github.com/sirupsen/logrus"

	"tbvbridge/pkg/config"
	"tbvbridge/pkg/eventbus"
)

// State is one of the five supervisor states.
type State int

const (
	StateBulk State = iota
	StateTransition
	StateFloatApproach
	StateFloat
	StateImbalanceHold
)

func (s State) String() string {
	switch s {
	case StateBulk:
		return "bulk"
	case StateTransition:
		return "transition"
	case StateFloatApproach:
		return "float_approach"
	case StateFloat:
		return "float"
	case StateImbalanceHold:
		return "imbalance_hold"
	default:
		return "unknown"
	}
}

// Input is what the supervisor needs from the current polling round and
// the BMS's own advertised limits to compute one cycle.
type Input struct {
	SocPercent       float64
	CellImbalanceMv  float64
	PackVoltageV     float64
	BaseCCLA         float64
	BaseDCLA         float64
	MaxCellVoltageV  float64
	SeriesCellCount  int
}

// Output is the supervisor's result for one cycle.
type Output struct {
	State State
	CVL   float64
	CCL   float64
	DCL   float64
}

// StateChange is published on a state transition (§4.10).
type StateChange struct {
	Old                 State
	New                 State
	NewCVL              float64
	NewCCL              float64
	NewDCL              float64
	DurationInOldStateMs int64
}

// Supervisor owns the state machine across cycles. Not safe for
// concurrent use; the CVL task owns it exclusively (§5).
type Supervisor struct {
	state          State
	enteredStateAt time.Time

	events *eventbus.Channel[StateChange]
	log    *logrus.Entry
}

// New creates a Supervisor starting in BULK, per §4.10's documented
// initial state.
func New(events *eventbus.Channel[StateChange], log *logrus.Entry, now time.Time) *Supervisor {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Supervisor{
		state:          StateBulk,
		enteredStateAt: now,
		events:         events,
		log:            log.WithField("component", "cvl"),
	}
}

// Compute runs one supervisor cycle and returns its output. Disabled
// mode bypasses the state machine and the guard entirely, returning
// the fixed {BULK, bulk_target, base_ccl, base_dcl} result without
// mutating the supervisor's tracked state (§4.10).
func (s *Supervisor) Compute(cfg config.CVL, in Input, now time.Time) Output {
	if !cfg.Enabled {
		return Output{
			State: StateBulk,
			CVL:   math.Max(cfg.BulkTargetV, 0),
			CCL:   math.Max(in.BaseCCLA, 0),
			DCL:   math.Max(in.BaseDCLA, 0),
		}
	}

	prev := s.state
	newState := s.nextState(cfg, in, prev)

	bulkTargetV := math.Max(cfg.BulkTargetV, 0)
	floatApproachV := math.Max(bulkTargetV-cfg.FloatApproachOffsetMv/1000, 0)
	floatV := math.Max(bulkTargetV-cfg.FloatOffsetMv/1000, 0)
	if floatV > floatApproachV {
		floatV, floatApproachV = floatApproachV, floatV
	}

	vMinPack := 3.20 * float64(in.SeriesCellCount)

	var cvl, ccl, dcl float64
	switch newState {
	case StateBulk, StateTransition:
		cvl, ccl, dcl = bulkTargetV, in.BaseCCLA, in.BaseDCLA
	case StateFloatApproach:
		cvl, ccl, dcl = floatApproachV, in.BaseCCLA, in.BaseDCLA
	case StateFloat:
		cvl, dcl = floatV, in.BaseDCLA
		if cfg.MinimumCCLInFloatA > 0 {
			ccl = math.Min(in.BaseCCLA, cfg.MinimumCCLInFloatA)
		} else {
			ccl = in.BaseCCLA
		}
	case StateImbalanceHold:
		cvl = math.Max(bulkTargetV-1.0, vMinPack)
		ccl, dcl = in.BaseCCLA, in.BaseDCLA
	}

	protectionCVL := cellOvervoltageGuard(in.MaxCellVoltageV, in.SeriesCellCount)
	cvl = math.Min(cvl, protectionCVL)

	cvl = math.Max(cvl, 0)
	ccl = math.Max(ccl, 0)
	dcl = math.Max(dcl, 0)

	if newState != prev {
		duration := now.Sub(s.enteredStateAt).Milliseconds()
		s.log.WithFields(logrus.Fields{"old": prev, "new": newState}).Info("cvl: state transition")
		if s.events != nil {
			s.events.Publish(StateChange{
				Old: prev, New: newState,
				NewCVL: cvl, NewCCL: ccl, NewDCL: dcl,
				DurationInOldStateMs: duration,
			})
		}
		s.enteredStateAt = now
	}
	s.state = newState

	return Output{State: newState, CVL: cvl, CCL: ccl, DCL: dcl}
}

// nextState applies the imbalance override/release and the SOC-driven
// transitions with their FLOAT exit / FLOAT_APPROACH relapse hysteresis
// (§4.10), given the previous cycle's state.
func (s *Supervisor) nextState(cfg config.CVL, in Input, prev State) State {
	if in.CellImbalanceMv > cfg.ImbalanceHoldThresholdMv {
		return StateImbalanceHold
	}

	if prev == StateImbalanceHold {
		if in.CellImbalanceMv < cfg.ImbalanceReleaseThresholdMv {
			return socDrivenState(in.SocPercent, cfg)
		}
		return StateImbalanceHold
	}

	next := socDrivenState(in.SocPercent, cfg)

	if prev == StateFloat && in.SocPercent <= cfg.FloatExitSoc {
		next = StateFloatApproach
	}

	if prev == StateFloatApproach && next == StateFloatApproach && in.SocPercent+0.25 < cfg.TransitionSocThreshold {
		next = StateTransition
	}

	return next
}

func socDrivenState(soc float64, cfg config.CVL) State {
	switch {
	case soc >= cfg.FloatSocThreshold:
		return StateFloat
	case soc >= cfg.TransitionSocThreshold:
		return StateFloatApproach
	case soc >= cfg.BulkSocThreshold:
		return StateTransition
	default:
		return StateBulk
	}
}

// cellOvervoltageGuard computes the proportional CVL ceiling (§4.10):
// full headroom below 3.50 V/cell, linearly reduced above it, clamped
// to [V_min_pack, V_absmax].
func cellOvervoltageGuard(maxCellVoltageV float64, seriesCellCount int) float64 {
	vAbsMax := 3.65 * float64(seriesCellCount)
	vMinPack := 3.20 * float64(seriesCellCount)

	protection := vAbsMax
	if maxCellVoltageV > 3.50 {
		protection = vAbsMax - 150*(maxCellVoltageV-3.50)
	}
	if protection < vMinPack {
		protection = vMinPack
	}
	if protection > vAbsMax {
		protection = vAbsMax
	}
	return protection
}

// State returns the supervisor's current state without advancing it.
func (s *Supervisor) State() State { return s.state }
