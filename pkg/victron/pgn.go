package victron

import (
	"tbvbridge/pkg/canbus"
	"tbvbridge/pkg/cvl"
	"tbvbridge/pkg/livedata"
)

// CAN identifiers for the fixed PGN emission set (§4.7).
const (
	pgnCVL          uint32 = 0x351
	pgnSocSoh       uint32 = 0x355
	pgnVIT          uint32 = 0x356
	pgnAlarms       uint32 = 0x35A
	pgnManufacturer uint32 = 0x35E
	pgnBatteryName  uint32 = 0x35F
	pgnKeepAlive    uint32 = 0x305
)

// EmissionSet is the fixed per-cycle PGN order (§4.8 step 2).
var EmissionSet = []uint32{pgnVIT, pgnSocSoh, pgnCVL, pgnAlarms, pgnManufacturer, pgnBatteryName}

func round(v float64) int64 {
	if v >= 0 {
		return int64(v + 0.5)
	}
	return int64(v - 0.5)
}

func putI16LE(b *[8]byte, offset int, raw int64) {
	u := uint16(int16(raw))
	b[offset] = byte(u)
	b[offset+1] = byte(u >> 8)
}

func putU16LE(b *[8]byte, offset int, raw int64) {
	if raw < 0 {
		raw = 0
	}
	u := uint16(raw)
	b[offset] = byte(u)
	b[offset+1] = byte(u >> 8)
}

// severity encodes the Victron 2-bit alarm level: 0=OK, 1=Warn, 2=Alarm.
// warn and alarm are independent booleans since some conditions (e.g.
// CellImbalance) have distinct warn/alarm thresholds; alarm implies warn
// is irrelevant to the encoding, just the higher value wins.
func severity(warn, alarm bool) byte {
	if alarm {
		return 2
	}
	if warn {
		return 1
	}
	return 0
}

// BuildVIT encodes 0x356: pack voltage (×0.01 V) @0 u16, pack current
// (×0.1 A) @2 i16, internal temperature (×0.1 °C) @4 i16.
func BuildVIT(snap livedata.Snapshot) canbus.Frame {
	var data [8]byte
	putU16LE(&data, 0, round(snap.PackVoltageV/0.01))
	putI16LE(&data, 2, round(snap.PackCurrentA/0.1))
	putI16LE(&data, 4, round(snap.InternalTempC/0.1))
	return canbus.Frame{ID: pgnVIT, DLC: 8, Data: data}
}

// BuildSocSoh encodes 0x355: SOC (×0.1 %) @0, SOH (×0.1 %) @2.
func BuildSocSoh(snap livedata.Snapshot) canbus.Frame {
	var data [8]byte
	putU16LE(&data, 0, round(snap.SOCPercent/0.1))
	putU16LE(&data, 2, round(snap.SOHPercent/0.1))
	return canbus.Frame{ID: pgnSocSoh, DLC: 8, Data: data}
}

// BuildCVL encodes 0x351 from the CVL Supervisor's latest output: CVL
// (×0.01 V) @0, CCL (×0.1 A) @2, DCL (×0.1 A) @4, zero @6..7.
func BuildCVL(out cvl.Output) canbus.Frame {
	var data [8]byte
	putU16LE(&data, 0, round(out.CVL/0.01))
	putU16LE(&data, 2, round(out.CCL/0.1))
	putU16LE(&data, 4, round(out.DCL/0.1))
	return canbus.Frame{ID: pgnCVL, DLC: 8, Data: data}
}

// BuildAlarms encodes 0x35A's 2-bit severity fields: byte0 {UV@0,
// OV@2, OT@4, LTCharge@6}, byte1 {Imbalance@0, Comms@2, LowSoc@4,
// Derate@6}, byte7 bit0 summary. Each field holds its severity in its
// own 2-bit slot, starting at the listed bit offset within the byte.
func BuildAlarms(a AlarmState) canbus.Frame {
	var data [8]byte

	data[0] = severity(a.UnderVoltage, false) |
		severity(a.OverVoltage, false)<<2 |
		severity(a.OverTemperature, false)<<4 |
		severity(a.LowTempCharge, false)<<6

	data[1] = severity(a.CellImbalance, a.CellImbalanceAlarm) |
		severity(a.CommsError, false)<<2 |
		severity(a.LowSoc, false)<<4 |
		severity(a.Derate, false)<<6

	if a.Any() {
		data[7] = 0x01
	}

	return canbus.Frame{ID: pgnAlarms, DLC: 8, Data: data}
}

func asciiPad8(s string) [8]byte {
	var data [8]byte
	n := copy(data[:], s)
	for i := n; i < 8; i++ {
		data[i] = 0
	}
	return data
}

// BuildManufacturerName encodes 0x35E: 8 ASCII bytes, padded with 0.
func BuildManufacturerName(name string) canbus.Frame {
	return canbus.Frame{ID: pgnManufacturer, DLC: 8, Data: asciiPad8(name)}
}

// BuildBatteryName encodes 0x35F: 8 ASCII bytes, padded with 0.
func BuildBatteryName(name string) canbus.Frame {
	return canbus.Frame{ID: pgnBatteryName, DLC: 8, Data: asciiPad8(name)}
}

// BuildKeepAlive encodes the 0x305 TX heartbeat: 1 byte 0x00, DLC=1.
func BuildKeepAlive() canbus.Frame {
	return canbus.Frame{ID: pgnKeepAlive, DLC: 1}
}
