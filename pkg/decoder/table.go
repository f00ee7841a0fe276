package decoder

// Bindings is the full register map this bridge understands, ported
// entry-for-entry from original_source's g_bindings table
// (src/mappings/tiny_read_mapping.cpp). Two entries diverge from the
// original's destination (marked below): it leaves them as
// TinyLiveDataField::None, read but discarded, while this bridge has a
// use for them and binds them instead.
var Bindings = []Binding{
	{Address: 32, WordCount: 2, Type: TypeUint32, Signed: false, Scale: 1.0,
		Dest: FieldLifetimeCounterS, Label: "Lifetime Counter", Unit: "s"}, // diverges: original dest is None
	{Address: 36, WordCount: 1, Type: TypeFloat, Signed: false, Scale: 0.01,
		Dest: FieldVoltage, Label: "Battery Pack Voltage", Unit: "V"},
	{Address: 38, WordCount: 1, Type: TypeFloat, Signed: true, Scale: 0.1,
		Dest: FieldCurrent, Label: "Battery Pack Current", Unit: "A"},
	{Address: 40, WordCount: 1, Type: TypeUint16, Signed: false, Scale: 1.0,
		Dest: FieldMinCellMv, Label: "Min Cell Voltage", Unit: "mV"},
	{Address: 41, WordCount: 1, Type: TypeUint16, Signed: false, Scale: 1.0,
		Dest: FieldMaxCellMv, Label: "Max Cell Voltage", Unit: "mV"},
	{Address: 42, WordCount: 1, Type: TypeInt16, Signed: true, Scale: 0.1,
		Dest: FieldNone, Label: "External Temperature #1", Unit: "°C"},
	{Address: 43, WordCount: 1, Type: TypeInt16, Signed: true, Scale: 0.1,
		Dest: FieldNone, Label: "External Temperature #2", Unit: "°C"},
	{Address: 45, WordCount: 1, Type: TypeUint16, Signed: false, Scale: 0.1,
		Dest: FieldSohPercent, Label: "State Of Health", Unit: "%"},
	{Address: 46, WordCount: 1, Type: TypeUint16, Signed: false, Scale: 0.1,
		Dest: FieldSocPercent, Label: "State Of Charge", Unit: "%"},
	{Address: 48, WordCount: 1, Type: TypeInt16, Signed: true, Scale: 0.1,
		Dest: FieldTemperature, Label: "Internal Temperature", Unit: "°C"},
	{Address: 50, WordCount: 1, Type: TypeUint16, Signed: false, Scale: 1.0,
		Dest: FieldOnlineStatus, Label: "System Status", Unit: "-"},
	{Address: 51, WordCount: 1, Type: TypeUint16, Signed: false, Scale: 1.0,
		Dest: FieldBalancingBits, Label: "Need Balancing", Unit: "-"},
	{Address: 52, WordCount: 1, Type: TypeUint8, Signed: false, Scale: 1.0,
		Dest: FieldCellImbalanceAlarm, Label: "Cell Imbalance Alarm", Unit: "-"}, // diverges: original dest is None
	{Address: 113, WordCount: 1, Type: TypeInt8, Signed: true, Scale: 1.0, Slice: SliceLowByte,
		Dest: FieldPackMinTemperature, Label: "Pack Temperature Min", Unit: "°C"},
	{Address: 113, WordCount: 1, Type: TypeInt8, Signed: true, Scale: 1.0, Slice: SliceHighByte,
		Dest: FieldPackMaxTemperature, Label: "Pack Temperature Max", Unit: "°C"},
	{Address: 102, WordCount: 1, Type: TypeUint16, Signed: false, Scale: 0.1,
		Dest: FieldMaxDischargeCurrent, Label: "Max Discharge Current", Unit: "A"},
	{Address: 103, WordCount: 1, Type: TypeUint16, Signed: false, Scale: 0.1,
		Dest: FieldMaxChargeCurrent, Label: "Max Charge Current", Unit: "A"},
	{Address: 305, WordCount: 1, Type: TypeUint16, Signed: false, Scale: 1.0,
		Dest: FieldNone, Label: "Victron Keep-Alive", Unit: "-"},
	{Address: 306, WordCount: 1, Type: TypeUint16, Signed: false, Scale: 0.01,
		Dest: FieldNone, Label: "Battery Capacity", Unit: "Ah"},
	{Address: 307, WordCount: 1, Type: TypeUint16, Signed: false, Scale: 1.0,
		Dest: FieldNone, Label: "Identification Handshake", Unit: "-"},
	{Address: 315, WordCount: 1, Type: TypeUint16, Signed: false, Scale: 1.0,
		Dest: FieldCellOvervoltageMv, Label: "Overvoltage Cutoff", Unit: "mV"},
	{Address: 316, WordCount: 1, Type: TypeUint16, Signed: false, Scale: 1.0,
		Dest: FieldCellUndervoltageMv, Label: "Undervoltage Cutoff", Unit: "mV"},
	{Address: 317, WordCount: 1, Type: TypeUint16, Signed: false, Scale: 1.0,
		Dest: FieldDischargeOvercurrentA, Label: "Discharge Over-current Cutoff", Unit: "A"},
	{Address: 318, WordCount: 1, Type: TypeUint16, Signed: false, Scale: 1.0,
		Dest: FieldChargeOvercurrentA, Label: "Charge Over-current Cutoff", Unit: "A"},
	{Address: 319, WordCount: 1, Type: TypeUint16, Signed: false, Scale: 1.0,
		Dest: FieldOverheatCutoffC, Label: "Overheat Cutoff", Unit: "°C"},
	{Address: 500, WordCount: 4, Type: TypeString, Kind: KindString,
		Dest: FieldManufacturerName, Label: "Manufacturer Name"},
	{Address: 501, WordCount: 2, Type: TypeUint32, Kind: KindFirmwareVersion,
		Dest: FieldFirmwareVersion, Label: "Firmware Version"},
	{Address: 502, WordCount: 4, Type: TypeString, Kind: KindString,
		Dest: FieldBatteryFamily, Label: "Battery Family"},
}

// ReadSchedule groups Bindings' addresses into the contiguous register
// blocks the BMS Client actually reads per poll round (§4.3/§4.5): one
// ReadRegisterBlock call per entry here, covering every address any
// binding needs.
var ReadSchedule = []struct {
	Start uint16
	Count int
}{
	{Start: 32, Count: 21}, // covers 32..52 (lifetime counter through cell imbalance alarm)
	{Start: 102, Count: 2}, // max discharge/charge current
	{Start: 113, Count: 2}, // pack min/max temperature (low/high byte of word 113; word 114 unused)
	{Start: 305, Count: 3}, // keep-alive, capacity, identification handshake
	{Start: 315, Count: 5}, // protection thresholds (overvoltage..overheat cutoff)
	{Start: 500, Count: 6}, // manufacturer name, firmware version, battery family
}
