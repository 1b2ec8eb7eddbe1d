package services

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"ruuvigate/models"

	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/devices/v3/ads1x15"
	"periph.io/x/host/v3"
)

const (
	batteryMinMV = 3300
	batteryMaxMV = 4050
)

// ErrBatteryUnavailable is returned when no battery monitor is configured
var ErrBatteryUnavailable = errors.New("battery monitor unavailable")

// BatteryLevel maps a cell voltage onto 0-100 %
func BatteryLevel(mv int) int {
	level := (mv - batteryMinMV) * 100 / (batteryMaxMV - batteryMinMV)
	if level < 0 {
		return 0
	}
	if level > 100 {
		return 100
	}
	return level
}

// ADCBattery reads the battery rail through an ADS1115 behind a resistor divider
type ADCBattery struct {
	busName string
	address uint16
	divider float64

	mu sync.Mutex
}

func NewADCBattery(busName string, address uint16, divider float64) *ADCBattery {
	if divider <= 0 {
		divider = 2
	}
	return &ADCBattery{busName: busName, address: address, divider: divider}
}

// Read takes one single-shot conversion on channel 0
func (b *ADCBattery) Read(ctx context.Context) (models.BatterySnapshot, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return models.BatterySnapshot{}, err
	}
	if _, err := host.Init(); err != nil {
		return models.BatterySnapshot{}, fmt.Errorf("periph host init: %w", err)
	}
	bus, err := i2creg.Open(b.busName)
	if err != nil {
		return models.BatterySnapshot{}, fmt.Errorf("open i2c %q: %w", b.busName, err)
	}
	defer bus.Close()

	opts := ads1x15.DefaultOpts
	opts.I2cAddress = b.address
	adc, err := ads1x15.NewADS1115(bus, &opts)
	if err != nil {
		return models.BatterySnapshot{}, fmt.Errorf("ads1115: %w", err)
	}
	defer adc.Halt()

	pin, err := adc.PinForChannel(ads1x15.Channel0, 4096*physic.MilliVolt, 8*physic.Hertz, ads1x15.BestQuality)
	if err != nil {
		return models.BatterySnapshot{}, fmt.Errorf("ads1115 channel: %w", err)
	}
	defer pin.Halt()

	sample, err := pin.Read()
	if err != nil {
		return models.BatterySnapshot{}, fmt.Errorf("ads1115 read: %w", err)
	}

	mv := int(float64(sample.V) / float64(physic.MilliVolt) * b.divider)
	return BatterySnapshotFor(mv), nil
}

// StaticBattery reports a fixed snapshot, or ErrBatteryUnavailable when zero
type StaticBattery struct {
	Snapshot models.BatterySnapshot
}

func (s StaticBattery) Read(context.Context) (models.BatterySnapshot, error) {
	if s.Snapshot.VoltageMV == 0 {
		return models.BatterySnapshot{}, ErrBatteryUnavailable
	}
	return s.Snapshot, nil
}

// BatterySnapshotFor builds a snapshot from a measured voltage
func BatterySnapshotFor(mv int) models.BatterySnapshot {
	return models.BatterySnapshot{VoltageMV: mv, Level: BatteryLevel(mv)}
}
