// Package victron implements the Victron VE.Can publisher side of the
// bridge: the PGN encoder (§4.7), the periodic CAN Publisher task and
// keep-alive monitor (§4.8/§4.9), and the alarm taxonomy that drives
// 0x35A and the bridge's own event history.
package victron

import (
	"tbvbridge/pkg/config"
	"tbvbridge/pkg/livedata"
)

// AlarmState is the evaluated alarm taxonomy for one CAN Publisher
// cycle (§4.9). Each field is true when its condition currently holds;
// nothing here is latched — Evaluate recomputes the full set every
// cycle from the latest snapshot and transport state.
type AlarmState struct {
	OverVoltage     bool
	UnderVoltage    bool
	OverTemperature bool
	LowTempCharge   bool
	CellImbalance   bool // warn-or-above; see CellImbalanceAlarm for the alarm-level split
	CommsError      bool
	CanKeepAliveLost bool
	LowSoc          bool
	Derate          bool

	// CellImbalanceAlarm distinguishes the alarm threshold from the
	// warn threshold recorded in CellImbalance, for 0x35A's two-bit
	// severity fields.
	CellImbalanceAlarm bool
}

// Any reports whether any condition in s is currently raised, used for
// 0x35A's summary bit (byte 7 bit 0).
func (s AlarmState) Any() bool {
	return s.OverVoltage || s.UnderVoltage || s.OverTemperature || s.LowTempCharge ||
		s.CellImbalance || s.CommsError || s.CanKeepAliveLost || s.LowSoc || s.Derate
}

// Evaluate applies the alarm taxonomy table (§4.9) to one snapshot and
// the transport-level flags the CAN Publisher already knows about:
// commsError (a recent UART or CAN fault) and keepAliveLost (the
// keep-alive monitor's current state). advertisedCCL/DCL are the
// current-limit values actually being transmitted on 0x351, since
// Derate is evaluated against what the inverter is told, not the BMS's
// raw limit registers.
func Evaluate(snap livedata.Snapshot, cfg config.Victron, commsError, keepAliveLost bool, advertisedCCLA, advertisedDCLA float64) AlarmState {
	var a AlarmState

	if snap.CellOvervoltageMv > 0 {
		a.OverVoltage = snap.MaxCellMv >= snap.CellOvervoltageMv
	} else {
		a.OverVoltage = snap.PackVoltageV > cfg.OvervoltageV
	}

	if snap.CellUndervoltageMv > 0 {
		a.UnderVoltage = snap.MinCellMv <= snap.CellUndervoltageMv
	} else {
		a.UnderVoltage = snap.PackVoltageV < cfg.UndervoltageV
	}

	overheat := cfg.OvertempC
	if snap.OverheatCutoffC > 0 {
		overheat = snap.OverheatCutoffC
	}
	a.OverTemperature = snap.PackTempMaxC > overheat

	a.LowTempCharge = snap.PackTempMinC < cfg.LowTempChargeC && snap.PackCurrentA > 3.0

	a.CellImbalance = snap.CellImbalanceMv >= cfg.ImbalanceWarnMv
	a.CellImbalanceAlarm = snap.CellImbalanceMv >= cfg.ImbalanceAlarmMv

	a.CanKeepAliveLost = keepAliveLost
	a.CommsError = commsError || keepAliveLost

	a.LowSoc = snap.SOCPercent <= cfg.SocLowPercent

	a.Derate = (advertisedCCLA > 0 && advertisedCCLA <= cfg.DerateCurrentA) ||
		(advertisedDCLA > 0 && advertisedDCLA <= cfg.DerateCurrentA)

	return a
}
