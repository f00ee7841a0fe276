package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultPassesValidate(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestLoadOverridesOnlyGivenKeys(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bridge.ini")
	contents := `
[tinybms]
poll_interval_ms = 250
protocol = modbus

[cvl]
bulk_target_v = 55.2
series_cell_count = 16
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 250, cfg.TinyBMS.PollIntervalMs)
	assert.Equal(t, "modbus", cfg.TinyBMS.Protocol)
	assert.Equal(t, 55.2, cfg.CVL.BulkTargetV)
	// Keys absent from the file keep their Default() value.
	assert.Equal(t, 115200, cfg.Hardware.UARTBaud)
	assert.Equal(t, 3, cfg.TinyBMS.UARTRetryCount)
}

func TestLoadRejectsUnknownProtocol(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bridge.ini")
	require.NoError(t, os.WriteFile(path, []byte("[tinybms]\nprotocol = legacy\n"), 0o600))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidateRejectsShortKeepaliveTimeout(t *testing.T) {
	cfg := Default()
	cfg.Victron.KeepaliveIntervalMs = 1000
	cfg.Victron.KeepaliveTimeoutMs = 1500
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsZeroBaud(t *testing.T) {
	cfg := Default()
	cfg.Hardware.UARTBaud = 0
	assert.Error(t, cfg.Validate())
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.ini"))
	assert.Error(t, err)
}
