package decoder

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tbvbridge/pkg/livedata"
)

// fullRegisterMap builds a RegisterMap covering every address every
// Binding in Bindings needs, with one representative value per
// register, matching the six ReadSchedule blocks a real poll round
// would issue.
func fullRegisterMap() RegisterMap {
	m := NewRegisterMap()

	block1 := make([]uint16, 21) // addresses 32..52
	block1[0] = 34464            // 32: lifetime counter low word
	block1[1] = 1                // 33: lifetime counter high word (100000s total)
	block1[36-32] = 5240         // voltage raw: 52.40V
	block1[38-32] = uint16(int16(-123))
	block1[40-32] = 3280 // min cell mv
	block1[41-32] = 3320 // max cell mv
	block1[45-32] = 975  // SOH 97.5%
	block1[46-32] = 552  // SOC 55.2%
	block1[48-32] = 253  // internal temp 25.3C
	block1[50-32] = 0    // online status: zero, expect default substitution
	block1[51-32] = 5    // balancing bits
	block1[52-32] = 1    // cell imbalance alarm
	m.AddBlock(32, block1)

	m.AddBlock(102, []uint16{1205, 800}) // max discharge 120.5A, max charge 80.0A

	m.AddBlock(113, []uint16{11003}) // low byte -5 (0xFB), high byte 42

	m.AddBlock(305, []uint16{0, 0, 0})

	m.AddBlock(315, []uint16{3650, 2700, 150, 100, 60})

	m.AddBlock(500, []uint16{0x0041, 300, 77, 9999, 0, 0})

	return m
}

func TestDecodeFullRoundPopulatesSnapshot(t *testing.T) {
	snap, err := Decode(fullRegisterMap())
	require.NoError(t, err)

	assert.InDelta(t, 52.40, snap.PackVoltageV, 0.001)
	assert.InDelta(t, -12.3, snap.PackCurrentA, 0.001)
	assert.Equal(t, 3280.0, snap.MinCellMv)
	assert.Equal(t, 3320.0, snap.MaxCellMv)
	assert.InDelta(t, 97.5, snap.SOHPercent, 0.001)
	assert.InDelta(t, 55.2, snap.SOCPercent, 0.001)
	assert.InDelta(t, 25.3, snap.InternalTempC, 0.001)
	assert.Equal(t, uint16(5), snap.BalancingBits)
	assert.Equal(t, uint8(1), snap.CellImbalanceAlarm)
	assert.Equal(t, 120.5, snap.MaxDischargeCurrentA)
	assert.Equal(t, 80.0, snap.MaxChargeCurrentA)
	assert.Equal(t, -5.0, snap.PackTempMinC)
	assert.Equal(t, 42.0, snap.PackTempMaxC)
	assert.Equal(t, 3650.0, snap.CellOvervoltageMv)
	assert.Equal(t, 2700.0, snap.CellUndervoltageMv)
	assert.Equal(t, 150.0, snap.DischargeOvercurrentA)
	assert.Equal(t, 100.0, snap.ChargeOvercurrentA)
	assert.Equal(t, 60.0, snap.OverheatCutoffC)
	assert.Equal(t, 100000.0, snap.LifetimeCounterS)
	assert.Equal(t, "A", snap.ManufacturerName)
	assert.Equal(t, "300.77", snap.FirmwareVersion)
	assert.Equal(t, "M", snap.BatteryFamily)
}

func TestDecodeAppliesFinalizeOnlineStatusDefault(t *testing.T) {
	snap, err := Decode(fullRegisterMap())
	require.NoError(t, err)
	assert.Equal(t, livedata.DefaultOnlineStatus, snap.OnlineStatus)
}

func TestDecodeAppliesFinalizeImbalance(t *testing.T) {
	snap, err := Decode(fullRegisterMap())
	require.NoError(t, err)
	assert.Equal(t, 40.0, snap.CellImbalanceMv)
}

func TestDecodeMissingRegisterReturnsError(t *testing.T) {
	m := fullRegisterMap()
	delete(m, 46) // drop SOC register out of an otherwise complete round

	_, err := Decode(m)
	assert.Error(t, err)
}

func TestDecodeUnusedExternalTemperaturesAreDiscarded(t *testing.T) {
	m := fullRegisterMap()
	snap, err := Decode(m)
	require.NoError(t, err)
	// addresses 42/43 (external temperature probes) have FieldNone dest;
	// there is no Snapshot field for them, so this just confirms Decode
	// reads their bindings without error while storing them nowhere.
	_ = snap
}

func TestComposeWordsUnsignedU32LittleEndianWordOrder(t *testing.T) {
	got := composeWords([]uint16{0x1234, 0x0001}, false)
	assert.Equal(t, int64(0x00011234), got)
}

func TestComposeWordsSignedInt16(t *testing.T) {
	got := composeWords([]uint16{uint16(int16(-1))}, true)
	assert.Equal(t, int64(-1), got)
}

func TestSliceByteLowAndHighWithSignExtension(t *testing.T) {
	word := uint16(0x2AFB) // low=0xFB(-5 signed), high=0x2A(42 signed)
	assert.Equal(t, int64(-5), sliceByte(word, SliceLowByte, true))
	assert.Equal(t, int64(42), sliceByte(word, SliceHighByte, true))
}

func TestDecodeStringStopsAtFirstNullByte(t *testing.T) {
	words := []uint16{0x4241, 0x0043} // bytes A,B,C,\0
	assert.Equal(t, "ABC", decodeString(words))
}

func TestDecodeStringNoNullUsesAllBytes(t *testing.T) {
	words := []uint16{0x4241} // A,B, no terminator
	assert.Equal(t, "AB", decodeString(words))
}
