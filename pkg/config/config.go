// Package config loads the bridge's configuration surface from an ini
// file, following the section-per-concern / Key().String() reading
// idiom gocanopen uses to parse EDS files (pkg/od/parser_v1.go), swapped
// from object-dictionary sections to the hardware/tinybms/victron/cvl/
// watchdog sections this bridge needs.
package config

import (
	"fmt"

	"gopkg.in/ini.v1"
)

// Hardware holds the serial and CAN transport parameters (§6.4).
type Hardware struct {
	UARTRxPin     string
	UARTTxPin     string
	UARTBaud      int
	UARTTimeoutMs int
	CANTxPin      string
	CANRxPin      string
	CANBitrate    int
}

// TinyBMS holds BMS-polling-specific parameters.
type TinyBMS struct {
	PollIntervalMs     int
	UARTRetryCount     int
	UARTRetryDelayMs   int
	Protocol           string // "native" or "modbus"
	AdoptBMSThresholds bool
}

// Victron holds CAN-publisher cadence, keep-alive and alarm-threshold
// parameters.
type Victron struct {
	PGNIntervalMs       int
	CVLIntervalMs       int
	KeepaliveIntervalMs int
	KeepaliveTimeoutMs  int

	UndervoltageV    float64 // pack-voltage fallback used only when the BMS's cell-level register is absent
	OvervoltageV     float64 // pack-voltage fallback used only when the BMS's cell-level register is absent
	OvertempC        float64
	LowTempChargeC   float64
	ImbalanceWarnMv  float64
	ImbalanceAlarmMv float64
	SocLowPercent    float64
	SocHighPercent   float64
	DerateCurrentA   float64

	ManufacturerName string
	BatteryName      string
}

// CVL holds the charge-voltage supervisor's quasi-static parameters.
// BulkTargetV has no listed default in §6.4's enumerated CVL options but
// is required by every §4.10 formula and literal scenario value; 58.4 V
// matches a 16S LFP pack at 3.65 V/cell bulk target, the value every
// worked example in §8 assumes.
type CVL struct {
	Enabled bool

	BulkTargetV          float64
	BulkSocThreshold     float64
	TransitionSocThreshold float64
	FloatSocThreshold    float64
	FloatExitSoc         float64

	FloatApproachOffsetMv float64
	FloatOffsetMv         float64
	MinimumCCLInFloatA    float64

	ImbalanceHoldThresholdMv    float64
	ImbalanceReleaseThresholdMv float64

	SeriesCellCount int
}

// Watchdog holds the health-feed deadline parameters.
type Watchdog struct {
	TimeoutMs         int
	MinFeedIntervalMs int
}

// Config aggregates every configuration section consumed by the bridge.
type Config struct {
	Hardware Hardware
	TinyBMS  TinyBMS
	Victron  Victron
	CVL      CVL
	Watchdog Watchdog
}

// Default returns a Config populated with every default named in §6.4.
func Default() *Config {
	return &Config{
		Hardware: Hardware{
			UARTBaud:      115200,
			UARTTimeoutMs: 1000,
			CANBitrate:    250000,
		},
		TinyBMS: TinyBMS{
			PollIntervalMs:     100,
			UARTRetryCount:     3,
			UARTRetryDelayMs:   50,
			Protocol:           "native",
			AdoptBMSThresholds: true,
		},
		Victron: Victron{
			PGNIntervalMs:       1000,
			CVLIntervalMs:       20000,
			KeepaliveIntervalMs: 1000,
			KeepaliveTimeoutMs:  10000,
			ManufacturerName:    "TinyBMS",
			BatteryName:         "Battery",
		},
		CVL: CVL{
			Enabled:                true,
			BulkTargetV:            58.4,
			BulkSocThreshold:       90,
			TransitionSocThreshold: 95,
			FloatSocThreshold:      98,
			FloatExitSoc:           95,
			FloatApproachOffsetMv:  50,
			FloatOffsetMv:          100,
			MinimumCCLInFloatA:     5,
			ImbalanceHoldThresholdMv:    100,
			ImbalanceReleaseThresholdMv: 50,
			SeriesCellCount:        16,
		},
		Watchdog: Watchdog{
			TimeoutMs:         5000,
			MinFeedIntervalMs: 100,
		},
	}
}

// Load reads an ini file at path over top of Default(), so any section
// or key the file omits keeps its default value.
func Load(path string) (*Config, error) {
	cfg := Default()

	f, err := ini.Load(path)
	if err != nil {
		return nil, fmt.Errorf("config: load %s: %w", path, err)
	}

	if s, err := f.GetSection("hardware"); err == nil {
		readString(s, "uart_rx_pin", &cfg.Hardware.UARTRxPin)
		readString(s, "uart_tx_pin", &cfg.Hardware.UARTTxPin)
		readInt(s, "uart_baud", &cfg.Hardware.UARTBaud)
		readInt(s, "uart_timeout_ms", &cfg.Hardware.UARTTimeoutMs)
		readString(s, "can_tx_pin", &cfg.Hardware.CANTxPin)
		readString(s, "can_rx_pin", &cfg.Hardware.CANRxPin)
		readInt(s, "can_bitrate", &cfg.Hardware.CANBitrate)
	}

	if s, err := f.GetSection("tinybms"); err == nil {
		readInt(s, "poll_interval_ms", &cfg.TinyBMS.PollIntervalMs)
		readInt(s, "uart_retry_count", &cfg.TinyBMS.UARTRetryCount)
		readInt(s, "uart_retry_delay_ms", &cfg.TinyBMS.UARTRetryDelayMs)
		readString(s, "protocol", &cfg.TinyBMS.Protocol)
		readBool(s, "adopt_bms_thresholds", &cfg.TinyBMS.AdoptBMSThresholds)
	}

	if s, err := f.GetSection("victron"); err == nil {
		readInt(s, "pgn_interval_ms", &cfg.Victron.PGNIntervalMs)
		readInt(s, "cvl_interval_ms", &cfg.Victron.CVLIntervalMs)
		readInt(s, "keepalive_interval_ms", &cfg.Victron.KeepaliveIntervalMs)
		readInt(s, "keepalive_timeout_ms", &cfg.Victron.KeepaliveTimeoutMs)
		readFloat(s, "undervoltage_v", &cfg.Victron.UndervoltageV)
		readFloat(s, "overvoltage_v", &cfg.Victron.OvervoltageV)
		readFloat(s, "overtemp_c", &cfg.Victron.OvertempC)
		readFloat(s, "low_temp_charge_c", &cfg.Victron.LowTempChargeC)
		readFloat(s, "imbalance_warn_mv", &cfg.Victron.ImbalanceWarnMv)
		readFloat(s, "imbalance_alarm_mv", &cfg.Victron.ImbalanceAlarmMv)
		readFloat(s, "soc_low_percent", &cfg.Victron.SocLowPercent)
		readFloat(s, "soc_high_percent", &cfg.Victron.SocHighPercent)
		readFloat(s, "derate_current_a", &cfg.Victron.DerateCurrentA)
		readString(s, "manufacturer_name", &cfg.Victron.ManufacturerName)
		readString(s, "battery_name", &cfg.Victron.BatteryName)
	}

	if s, err := f.GetSection("cvl"); err == nil {
		readBool(s, "enabled", &cfg.CVL.Enabled)
		readFloat(s, "bulk_target_v", &cfg.CVL.BulkTargetV)
		readFloat(s, "bulk_soc_threshold", &cfg.CVL.BulkSocThreshold)
		readFloat(s, "transition_soc_threshold", &cfg.CVL.TransitionSocThreshold)
		readFloat(s, "float_soc_threshold", &cfg.CVL.FloatSocThreshold)
		readFloat(s, "float_exit_soc", &cfg.CVL.FloatExitSoc)
		readFloat(s, "float_approach_offset_mv", &cfg.CVL.FloatApproachOffsetMv)
		readFloat(s, "float_offset_mv", &cfg.CVL.FloatOffsetMv)
		readFloat(s, "minimum_ccl_in_float_a", &cfg.CVL.MinimumCCLInFloatA)
		readFloat(s, "imbalance_hold_threshold_mv", &cfg.CVL.ImbalanceHoldThresholdMv)
		readFloat(s, "imbalance_release_threshold_mv", &cfg.CVL.ImbalanceReleaseThresholdMv)
		readInt(s, "series_cell_count", &cfg.CVL.SeriesCellCount)
	}

	if s, err := f.GetSection("watchdog"); err == nil {
		readInt(s, "timeout_ms", &cfg.Watchdog.TimeoutMs)
		readInt(s, "min_feed_interval_ms", &cfg.Watchdog.MinFeedIntervalMs)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func readString(s *ini.Section, key string, dst *string) {
	if s.HasKey(key) {
		*dst = s.Key(key).String()
	}
}

func readInt(s *ini.Section, key string, dst *int) {
	if s.HasKey(key) {
		if v, err := s.Key(key).Int(); err == nil {
			*dst = v
		}
	}
}

func readFloat(s *ini.Section, key string, dst *float64) {
	if s.HasKey(key) {
		if v, err := s.Key(key).Float64(); err == nil {
			*dst = v
		}
	}
}

func readBool(s *ini.Section, key string, dst *bool) {
	if s.HasKey(key) {
		if v, err := s.Key(key).Bool(); err == nil {
			*dst = v
		}
	}
}

// Validate rejects only structurally impossible values; everything else
// (thresholds, offsets) is left to the caller's judgment since the bridge
// clamps these defensively wherever they're consumed.
func (c *Config) Validate() error {
	if c.Hardware.UARTBaud <= 0 {
		return fmt.Errorf("config: hardware.uart_baud must be positive, got %d", c.Hardware.UARTBaud)
	}
	if c.Hardware.UARTTimeoutMs <= 0 {
		return fmt.Errorf("config: hardware.uart_timeout_ms must be positive, got %d", c.Hardware.UARTTimeoutMs)
	}
	if c.Hardware.CANBitrate <= 0 {
		return fmt.Errorf("config: hardware.can_bitrate must be positive, got %d", c.Hardware.CANBitrate)
	}
	if c.TinyBMS.PollIntervalMs <= 0 {
		return fmt.Errorf("config: tinybms.poll_interval_ms must be positive, got %d", c.TinyBMS.PollIntervalMs)
	}
	if c.TinyBMS.Protocol != "native" && c.TinyBMS.Protocol != "modbus" {
		return fmt.Errorf("config: tinybms.protocol must be native or modbus, got %q", c.TinyBMS.Protocol)
	}
	if c.Victron.PGNIntervalMs <= 0 {
		return fmt.Errorf("config: victron.pgn_interval_ms must be positive, got %d", c.Victron.PGNIntervalMs)
	}
	if c.Victron.KeepaliveTimeoutMs < 2*c.Victron.KeepaliveIntervalMs {
		return fmt.Errorf("config: victron.keepalive_timeout_ms (%d) must be >= 2x keepalive_interval_ms (%d)",
			c.Victron.KeepaliveTimeoutMs, c.Victron.KeepaliveIntervalMs)
	}
	if c.CVL.SeriesCellCount <= 0 {
		return fmt.Errorf("config: cvl.series_cell_count must be positive, got %d", c.CVL.SeriesCellCount)
	}
	if c.Watchdog.TimeoutMs <= 0 {
		return fmt.Errorf("config: watchdog.timeout_ms must be positive, got %d", c.Watchdog.TimeoutMs)
	}
	if c.Watchdog.MinFeedIntervalMs*2 > c.Watchdog.TimeoutMs {
		return fmt.Errorf("config: watchdog.min_feed_interval_ms (%d) leaves no margin under timeout_ms (%d)",
			c.Watchdog.MinFeedIntervalMs, c.Watchdog.TimeoutMs)
	}
	return nil
}
