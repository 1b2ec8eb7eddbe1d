package services

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"ruuvigate/models"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_WriteTextfile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ruuvigate.prom")
	m := NewMetrics(path, "gw1")

	m.ObserveCheckpoint(models.Checkpoint{BootCount: 12, RecoveryState: models.StatePreNetworkB})
	m.ObserveBattery(models.BatterySnapshot{VoltageMV: 3900, Level: 80})
	status := models.NewScanCycleStatus(2)
	status.Mark(tagA)
	status.Attempts = 3
	m.ObserveScan(status)
	m.ObserveFlush(models.FlushReport{Outcome: models.OutcomePartial, Total: 3, Sent: 2, Failed: 1}, time.Unix(1700000000, 0))

	assert.Equal(t, 12.0, testutil.ToFloat64(m.bootCount))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.recoveryState))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.scanCovered))

	require.NoError(t, m.Write())
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	body := string(data)
	assert.Contains(t, body, `ruuvigate_boot_count{gateway="gw1"} 12`)
	assert.Contains(t, body, `ruuvigate_last_flush_documents{gateway="gw1",result="failed"} 1`)
	assert.Contains(t, body, `ruuvigate_battery_millivolts{gateway="gw1"} 3900`)
}

func TestMetrics_WriteDisabled(t *testing.T) {
	assert.NoError(t, NewMetrics("", "gw").Write())
}
