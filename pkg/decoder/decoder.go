package decoder

import (
	"bytes"
	"fmt"

	"tbvbridge/pkg/livedata"
)

// RegisterMap accumulates the raw words read across a polling round's
// blocks, addressed by absolute register address, so bindings can pull
// whatever span they need regardless of which block call produced it.
type RegisterMap map[uint16]uint16

// NewRegisterMap returns an empty map sized for one poll round.
func NewRegisterMap() RegisterMap {
	return make(RegisterMap, 32)
}

// AddBlock records the words of one successful ReadRegisterBlock call,
// starting at start.
func (m RegisterMap) AddBlock(start uint16, words []uint16) {
	for i, w := range words {
		m[start+uint16(i)] = w
	}
}

func (m RegisterMap) words(address uint16, count int) ([]uint16, error) {
	out := make([]uint16, count)
	for i := 0; i < count; i++ {
		w, ok := m[address+uint16(i)]
		if !ok {
			return nil, fmt.Errorf("decoder: missing register %d (part of %d-word span at %d)", address+uint16(i), count, address)
		}
		out[i] = w
	}
	return out, nil
}

// Decode applies every Binding in Bindings against regs and returns a
// fully populated, finalized Snapshot. Decode is all-or-nothing at the
// register level: a single missing word fails the whole round, since a
// caller only reaches Decode after every scheduled block read in the
// round already succeeded (§4.5) — any earlier block failure must
// discard the round before Decode is ever called.
func Decode(regs RegisterMap) (livedata.Snapshot, error) {
	var snap livedata.Snapshot

	for _, b := range Bindings {
		words, err := regs.words(b.Address, b.WordCount)
		if err != nil {
			return livedata.Snapshot{}, err
		}

		switch b.Kind {
		case KindString:
			applyString(&snap, b.Dest, decodeString(words))
		case KindFirmwareVersion:
			applyString(&snap, b.Dest, fmt.Sprintf("%d.%d", words[0], words[1]))
		default:
			applyNumeric(&snap, b.Dest, decodeNumeric(b, words))
		}
	}

	snap.Finalize()
	return snap, nil
}

// GateThresholdAdoption implements the optional "live threshold
// adoption" step (config-from-telemetry refresh): when adopt is false,
// the BMS's own live-read protection-threshold registers are discarded
// from snap so downstream alarm evaluation falls back to the static
// configured thresholds instead of whatever the BMS currently reports.
// When adopt is true (the default) snap is left untouched and its
// decoded thresholds take precedence wherever the consumer prefers a
// present register value over its configured fallback.
func GateThresholdAdoption(snap *livedata.Snapshot, adopt bool) {
	if adopt {
		return
	}
	snap.CellOvervoltageMv = 0
	snap.CellUndervoltageMv = 0
	snap.DischargeOvercurrentA = 0
	snap.ChargeOvercurrentA = 0
	snap.OverheatCutoffC = 0
}

func decodeNumeric(b Binding, words []uint16) float64 {
	var raw int64
	switch {
	case b.Slice != SliceNone:
		raw = sliceByte(words[0], b.Slice, b.Signed)
	case b.Type == TypeUint8:
		raw = int64(words[0] & 0xFF)
	default:
		raw = composeWords(words, b.Signed)
	}
	return float64(raw) * b.Scale
}

func composeWords(words []uint16, signed bool) int64 {
	switch len(words) {
	case 1:
		if signed {
			return int64(int16(words[0]))
		}
		return int64(words[0])
	case 2:
		raw := uint32(words[0]) | uint32(words[1])<<16
		if signed {
			return int64(int32(raw))
		}
		return int64(raw)
	default:
		panic(fmt.Sprintf("decoder: unsupported word count %d", len(words)))
	}
}

func sliceByte(word uint16, slice Slice, signed bool) int64 {
	var b byte
	if slice == SliceHighByte {
		b = byte(word >> 8)
	} else {
		b = byte(word)
	}
	if signed {
		return int64(int8(b))
	}
	return int64(b)
}

func decodeString(words []uint16) string {
	buf := make([]byte, 0, len(words)*2)
	for _, w := range words {
		buf = append(buf, byte(w), byte(w>>8))
	}
	if idx := bytes.IndexByte(buf, 0); idx >= 0 {
		buf = buf[:idx]
	}
	return string(buf)
}

func applyNumeric(snap *livedata.Snapshot, field Field, value float64) {
	switch field {
	case FieldVoltage:
		snap.PackVoltageV = value
	case FieldCurrent:
		snap.PackCurrentA = value
	case FieldMinCellMv:
		snap.MinCellMv = value
	case FieldMaxCellMv:
		snap.MaxCellMv = value
	case FieldSohPercent:
		snap.SOHPercent = value
	case FieldSocPercent:
		snap.SOCPercent = value
	case FieldTemperature:
		snap.InternalTempC = value
	case FieldOnlineStatus:
		snap.OnlineStatus = uint16(value)
	case FieldBalancingBits:
		snap.BalancingBits = uint16(value)
	case FieldPackMinTemperature:
		snap.PackTempMinC = value
	case FieldPackMaxTemperature:
		snap.PackTempMaxC = value
	case FieldMaxDischargeCurrent:
		snap.MaxDischargeCurrentA = value
	case FieldMaxChargeCurrent:
		snap.MaxChargeCurrentA = value
	case FieldCellOvervoltageMv:
		snap.CellOvervoltageMv = value
	case FieldCellUndervoltageMv:
		snap.CellUndervoltageMv = value
	case FieldDischargeOvercurrentA:
		snap.DischargeOvercurrentA = value
	case FieldChargeOvercurrentA:
		snap.ChargeOvercurrentA = value
	case FieldOverheatCutoffC:
		snap.OverheatCutoffC = value
	case FieldLifetimeCounterS:
		snap.LifetimeCounterS = value
	case FieldCellImbalanceAlarm:
		snap.CellImbalanceAlarm = uint8(value)
	case FieldNone:
		// read but intentionally discarded
	}
}

func applyString(snap *livedata.Snapshot, field Field, value string) {
	switch field {
	case FieldManufacturerName:
		snap.ManufacturerName = value
	case FieldFirmwareVersion:
		snap.FirmwareVersion = value
	case FieldBatteryFamily:
		snap.BatteryFamily = value
	}
}
