package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("SENSOR_MACS", "")
	t.Setenv("FLUSH_THRESHOLD", "")
	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, uint32(144), cfg.FlushThreshold)
	assert.Equal(t, 10*time.Minute, cfg.TargetPeriod)
	assert.Equal(t, 3, cfg.ScanMaxAttempts)
	assert.Equal(t, 10*time.Second, cfg.ScanAttemptTimeout)
	assert.Equal(t, 500*time.Millisecond, cfg.ScanPollInterval)
	assert.Equal(t, 30*time.Second, cfg.WorkerTimeout)
	assert.Equal(t, 2000, cfg.NotifyMaxLen)
	require.Len(t, cfg.Registry, 1)
	assert.Equal(t, "DB:C3:58:D9:03:70", cfg.Registry[0].String())
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("SENSOR_MACS", "aa:bb:cc:dd:ee:01, AA:BB:CC:DD:EE:02,aa:bb:cc:dd:ee:01")
	t.Setenv("FLUSH_THRESHOLD", "6")
	t.Setenv("TARGET_PERIOD", "90s")
	t.Setenv("BATTERY_ADC_ADDRESS", "0x49")
	t.Setenv("BATTERY_ADC_ENABLED", "true")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Len(t, cfg.Registry, 2)
	assert.Equal(t, uint32(6), cfg.FlushThreshold)
	assert.Equal(t, 90*time.Second, cfg.TargetPeriod)
	assert.Equal(t, uint16(0x49), cfg.BatteryADCAddress)
	assert.True(t, cfg.BatteryADCEnabled)
}

func TestLoadConfigBadRegistry(t *testing.T) {
	t.Setenv("SENSOR_MACS", "not-a-mac")
	_, err := LoadConfig()
	assert.Error(t, err)
}

func TestDataPaths(t *testing.T) {
	cfg := &Config{DataDir: "/var/lib/ruuvigate", CheckpointBackend: "bolt"}
	assert.Equal(t, "/var/lib/ruuvigate/checkpoint.db", cfg.CheckpointPath())
	assert.Equal(t, "/var/lib/ruuvigate/documents", cfg.DocumentsDir())
	assert.Equal(t, "/var/lib/ruuvigate/journal.log", cfg.JournalPath())

	cfg.CheckpointBackend = "badger"
	assert.Equal(t, "/var/lib/ruuvigate/checkpoint.badger", cfg.CheckpointPath())
}

func TestValidate(t *testing.T) {
	t.Setenv("SENSOR_MACS", "")
	cfg, err := LoadConfig()
	require.NoError(t, err)

	cfg.FirebaseProjectID = ""
	cfg.SuspendMode = "hibernate"
	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "firebase")
	assert.Contains(t, err.Error(), "SUSPEND_MODE")

	cfg.FirebaseProjectID = "p"
	cfg.FirebaseServiceAccountJSON = "{}"
	cfg.SuspendMode = "oneshot"
	assert.NoError(t, cfg.Validate())
}
