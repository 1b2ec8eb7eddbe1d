package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"ruuvigate/models"

	"go.uber.org/zap"
	"tinygo.org/x/bluetooth"
)

// Scanner delivers decoded measurements until stopped. handle may be
// called from the radio stack's goroutine.
type Scanner interface {
	Start(ctx context.Context, handle func(models.Measurement)) error
	Stop() error
}

// BLEScanner wraps BlueZ passive scanning for Ruuvi advertisements
type BLEScanner struct {
	adapter *bluetooth.Adapter
	name    string
	logger  *zap.Logger

	mu      sync.Mutex
	enabled bool
	done    chan error
}

func NewBLEScanner(adapterName string, logger *zap.Logger) *BLEScanner {
	if adapterName == "" {
		adapterName = "hci0"
	}
	return &BLEScanner{
		adapter: bluetooth.NewAdapter(adapterName),
		name:    adapterName,
		logger:  logger,
	}
}

// Start enables the adapter on first use and begins scanning in the background
func (s *BLEScanner) Start(ctx context.Context, handle func(models.Measurement)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.done != nil {
		return errors.New("ble scan already running")
	}
	if !s.enabled {
		if err := s.adapter.Enable(); err != nil {
			return fmt.Errorf("ble enable (%s): %w", s.name, err)
		}
		s.enabled = true
		s.logger.Info("BLE adapter enabled", zap.String("adapter", s.name))
	}

	done := make(chan error, 1)
	s.done = done
	go func() {
		// adapter.Scan blocks until StopScan() or error
		err := s.adapter.Scan(func(_ *bluetooth.Adapter, r bluetooth.ScanResult) {
			if ctx.Err() != nil {
				return
			}
			s.dispatch(r, handle)
		})
		if err != nil {
			s.logger.Warn("BLE scan ended with error", zap.Error(err))
		}
		done <- err
	}()
	return nil
}

func (s *BLEScanner) dispatch(r bluetooth.ScanResult, handle func(models.Measurement)) {
	for _, md := range r.ManufacturerData() {
		if md.CompanyID != RuuviCompanyID {
			continue
		}
		id, err := models.ParseDeviceID(r.Address.String())
		if err != nil {
			return
		}
		sample, err := DecodeRuuviRAWv2(md.Data)
		if err != nil {
			s.logger.Debug("Ignoring Ruuvi payload", zap.String("device_id", id.String()), zap.Error(err))
			return
		}
		handle(models.Measurement{
			DeviceID: id,
			RSSI:     r.RSSI,
			Reading: models.Reading{
				Temperature: sample.Temperature,
				Humidity:    sample.Humidity,
				Timestamp:   time.Now(),
			},
		})
		return
	}
}

// Stop halts scanning and waits briefly for the scan loop to exit
func (s *BLEScanner) Stop() error {
	s.mu.Lock()
	done := s.done
	s.done = nil
	s.mu.Unlock()

	if done == nil {
		return nil
	}
	if err := s.adapter.StopScan(); err != nil {
		return fmt.Errorf("ble stop scan: %w", err)
	}
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		s.logger.Warn("BLE scan loop did not exit after StopScan")
	}
	return nil
}
