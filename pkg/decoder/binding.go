// Package decoder implements the Register Decoder (§4.5): it turns the
// raw 16-bit words a polling round read off the BMS into a populated
// livedata.Snapshot, following the binding table below.
package decoder

// WireType documents how a binding's raw register word(s) are meant to
// be read before scaling. It mirrors TinyRegisterValueType from
// tiny_read_mapping.h; in the original firmware this also drives a
// display label, which this bridge doesn't need. Decoding is driven
// mainly by the Signed flag and word count; the one type that changes
// the result is TypeUint8, whose value is masked to the word's low byte.
type WireType int

const (
	TypeUint8 WireType = iota
	TypeUint16
	TypeUint32
	TypeInt8
	TypeInt16
	TypeFloat
	TypeString
)

// Slice selects which half of a single 16-bit word a binding reads,
// used for the two registers that pack two signed bytes into one word
// (pack min/max temperature at address 113).
type Slice int

const (
	SliceNone Slice = iota
	SliceLowByte
	SliceHighByte
)

// Kind distinguishes the three shapes a binding's decoded value can
// take: a scaled number, a null-terminated ASCII string, or the
// firmware-version "major.minor" pair.
type Kind int

const (
	KindNumeric Kind = iota
	KindString
	KindFirmwareVersion
)

// Field names the Snapshot field a binding writes into. FieldNone
// bindings are still read (they occupy a slot inside a polled block)
// but their value is discarded, matching TinyLiveDataField::None in
// the original table.
type Field int

const (
	FieldNone Field = iota
	FieldVoltage
	FieldCurrent
	FieldMinCellMv
	FieldMaxCellMv
	FieldSohPercent
	FieldSocPercent
	FieldTemperature
	FieldOnlineStatus
	FieldBalancingBits
	FieldPackMinTemperature
	FieldPackMaxTemperature
	FieldMaxDischargeCurrent
	FieldMaxChargeCurrent
	FieldCellOvervoltageMv
	FieldCellUndervoltageMv
	FieldDischargeOvercurrentA
	FieldChargeOvercurrentA
	FieldOverheatCutoffC
	FieldCellImbalanceAlarm // supplement: original leaves this register's dest as None
	FieldLifetimeCounterS   // supplement: original leaves this register's dest as None
	FieldManufacturerName
	FieldFirmwareVersion
	FieldBatteryFamily
)

// Binding describes one entry of the register map: where to read it,
// how wide it is, how to interpret its bits, what scale to apply, and
// where the result lands in a Snapshot.
type Binding struct {
	Address   uint16
	WordCount int
	Type      WireType
	Signed    bool
	Scale     float64
	Slice     Slice
	Kind      Kind
	Dest      Field
	Label     string
	Unit      string
}
