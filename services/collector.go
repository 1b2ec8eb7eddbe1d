package services

import (
	"context"
	"sync/atomic"
	"time"

	"ruuvigate/models"

	"go.uber.org/zap"
)

// CollectorConfig bounds one collection cycle
type CollectorConfig struct {
	MaxAttempts    int
	AttemptTimeout time.Duration
	PollInterval   time.Duration
	SettleDelay    time.Duration
	BufferSize     int
}

// progressEvery is how many poll ticks pass between progress log lines
const progressEvery = 5

// Collector fans readings from the registered tags into the accumulator,
// recording at most one reading per tag per cycle
type Collector struct {
	scanner Scanner
	cfg     CollectorConfig
	logger  *zap.Logger
}

// NewCollector creates a new fan-in collector
func NewCollector(scanner Scanner, cfg CollectorConfig, logger *zap.Logger) *Collector {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if cfg.BufferSize < 1 {
		cfg.BufferSize = 64
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 500 * time.Millisecond
	}
	return &Collector{scanner: scanner, cfg: cfg, logger: logger}
}

// Collect runs up to MaxAttempts scan attempts and returns once every
// registered tag has reported or the attempts are exhausted. onMeasurement
// is called on the caller's goroutine, once per newly covered tag.
func (c *Collector) Collect(ctx context.Context, registry []models.DeviceID, onMeasurement func(models.Measurement)) *models.ScanCycleStatus {
	status := models.NewScanCycleStatus(len(registry))
	if len(registry) == 0 {
		return status
	}

	known := make(map[models.DeviceID]bool, len(registry))
	for _, id := range registry {
		known[id] = true
	}

	intake := make(chan models.Measurement, c.cfg.BufferSize)
	var dropped atomic.Int64
	handle := func(m models.Measurement) {
		select {
		case intake <- m:
		default:
			dropped.Add(1)
		}
	}

	c.logger.Info("Starting collection",
		zap.Int("expected", status.Expected),
		zap.Int("max_attempts", c.cfg.MaxAttempts),
		zap.Duration("attempt_timeout", c.cfg.AttemptTimeout))

	for attempt := 1; attempt <= c.cfg.MaxAttempts; attempt++ {
		if attempt > 1 && !sleepCtx(ctx, c.cfg.SettleDelay) {
			break
		}
		status.Attempts = attempt
		status.ResetAttempt()

		if err := c.scanner.Start(ctx, handle); err != nil {
			c.logger.Error("Failed to start scan",
				zap.Int("attempt", attempt),
				zap.Error(err))
			continue
		}

		c.runAttempt(ctx, attempt, known, status, intake, onMeasurement)

		if err := c.scanner.Stop(); err != nil {
			c.logger.Warn("Failed to stop scan", zap.Int("attempt", attempt), zap.Error(err))
		}
		drain(intake)

		if status.Complete() || ctx.Err() != nil {
			break
		}
		c.logger.Info("Attempt ended with missing devices",
			zap.Int("attempt", attempt),
			zap.Int("covered", len(status.Covered)),
			zap.Int("expected", status.Expected),
			zap.Strings("missing", idStrings(status.Missing(registry))))
	}

	status.Dropped = int(dropped.Load())
	c.logger.Info("Collection finished",
		zap.Int("attempts", status.Attempts),
		zap.Int("covered", len(status.Covered)),
		zap.Int("expected", status.Expected),
		zap.Bool("complete", status.Complete()),
		zap.Int("dropped", status.Dropped))
	return status
}

func (c *Collector) runAttempt(ctx context.Context, attempt int, known map[models.DeviceID]bool, status *models.ScanCycleStatus, intake <-chan models.Measurement, onMeasurement func(models.Measurement)) {
	deadline := time.NewTimer(c.cfg.AttemptTimeout)
	defer deadline.Stop()
	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	ticks := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-deadline.C:
			return
		case <-ticker.C:
			ticks++
			if ticks%progressEvery == 0 {
				c.logger.Debug("Waiting for measurements",
					zap.Int("attempt", attempt),
					zap.Int("received", status.ReceivedCount),
					zap.Int("covered", len(status.Covered)),
					zap.Int("expected", status.Expected))
			}
		case m := <-intake:
			if !known[m.DeviceID] {
				continue
			}
			if !status.Mark(m.DeviceID) {
				continue
			}
			c.logger.Info("Measurement received",
				zap.String("device_id", m.DeviceID.String()),
				zap.Float64("temperature", m.Reading.Temperature),
				zap.Float64("humidity", m.Reading.Humidity),
				zap.Int16("rssi", m.RSSI),
				zap.Int("attempt", attempt))
			if onMeasurement != nil {
				onMeasurement(m)
			}
			if status.Complete() {
				return
			}
		}
	}
}

func drain(ch <-chan models.Measurement) {
	for {
		select {
		case <-ch:
		default:
			return
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func idStrings(ids []models.DeviceID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}
