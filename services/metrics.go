package services

import (
	"time"

	"ruuvigate/models"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds per-cycle gauges, written to a node_exporter textfile
// at the end of every cycle since the process sleeps between cycles
type Metrics struct {
	path     string
	registry *prometheus.Registry

	bootCount       prometheus.Gauge
	recoveryState   prometheus.Gauge
	errorFlag       prometheus.Gauge
	batteryMV       prometheus.Gauge
	batteryLevel    prometheus.Gauge
	scanCovered     prometheus.Gauge
	scanExpected    prometheus.Gauge
	scanAttempts    prometheus.Gauge
	scanDropped     prometheus.Gauge
	flushDocuments  *prometheus.GaugeVec
	lastFlush       prometheus.Gauge
	cycleDuration   prometheus.Gauge
	lastCycleFinish prometheus.Gauge
}

// NewMetrics registers the gateway gauges; an empty path disables Write
func NewMetrics(path, gatewayID string) *Metrics {
	reg := prometheus.NewRegistry()
	labels := prometheus.Labels{"gateway": gatewayID}
	gauge := func(name, help string) prometheus.Gauge {
		g := prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "ruuvigate",
			Name:        name,
			Help:        help,
			ConstLabels: labels,
		})
		reg.MustRegister(g)
		return g
	}

	m := &Metrics{
		path:            path,
		registry:        reg,
		bootCount:       gauge("boot_count", "Collection cycles since the last complete flush."),
		recoveryState:   gauge("recovery_state", "Persisted recovery state (0 normal, 1 startup, 2 flush)."),
		errorFlag:       gauge("error_flag", "1 when the next collection will be skipped."),
		batteryMV:       gauge("battery_millivolts", "Gateway battery voltage."),
		batteryLevel:    gauge("battery_level_percent", "Gateway battery level."),
		scanCovered:     gauge("scan_devices_covered", "Registered tags that reported in the last cycle."),
		scanExpected:    gauge("scan_devices_expected", "Registered tags."),
		scanAttempts:    gauge("scan_attempts", "Scan attempts used in the last cycle."),
		scanDropped:     gauge("scan_dropped_readings", "Readings lost to a full intake buffer in the last cycle."),
		lastFlush:       gauge("last_flush_timestamp_seconds", "Unix time of the last flush."),
		cycleDuration:   gauge("cycle_duration_seconds", "Wall time of the last duty cycle."),
		lastCycleFinish: gauge("last_cycle_timestamp_seconds", "Unix time the last duty cycle finished."),
	}
	m.flushDocuments = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace:   "ruuvigate",
		Name:        "last_flush_documents",
		Help:        "Documents in the last flush by result.",
		ConstLabels: labels,
	}, []string{"result"})
	reg.MustRegister(m.flushDocuments)
	return m
}

func (m *Metrics) ObserveCheckpoint(c models.Checkpoint) {
	m.bootCount.Set(float64(c.BootCount))
	m.recoveryState.Set(float64(c.RecoveryState))
	if c.ErrorFlag {
		m.errorFlag.Set(1)
	} else {
		m.errorFlag.Set(0)
	}
}

func (m *Metrics) ObserveBattery(b models.BatterySnapshot) {
	m.batteryMV.Set(float64(b.VoltageMV))
	m.batteryLevel.Set(float64(b.Level))
}

func (m *Metrics) ObserveScan(s *models.ScanCycleStatus) {
	m.scanCovered.Set(float64(len(s.Covered)))
	m.scanExpected.Set(float64(s.Expected))
	m.scanAttempts.Set(float64(s.Attempts))
	m.scanDropped.Set(float64(s.Dropped))
}

func (m *Metrics) ObserveFlush(r models.FlushReport, at time.Time) {
	m.flushDocuments.WithLabelValues("sent").Set(float64(r.Sent))
	m.flushDocuments.WithLabelValues("failed").Set(float64(r.Failed))
	m.lastFlush.Set(float64(at.Unix()))
}

func (m *Metrics) ObserveCycle(d time.Duration, at time.Time) {
	m.cycleDuration.Set(d.Seconds())
	m.lastCycleFinish.Set(float64(at.Unix()))
}

// Registry exposes the underlying registry for tests and tooling
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Write atomically replaces the textfile
func (m *Metrics) Write() error {
	if m.path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(m.path, m.registry)
}
