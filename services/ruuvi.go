package services

import (
	"encoding/binary"
	"fmt"
)

// Ruuvi manufacturer data (company id already stripped), RAWv2 layout:
// format 0x05, temperature int16 BE in 0.005 C, humidity uint16 BE in 0.0025 %.
const (
	RuuviCompanyID    = 0x0499
	ruuviFormatRAWv2  = 0x05
	ruuviMinLen       = 14
	ruuviTempInvalid  = -32768
	ruuviHumidInvalid = 0xFFFF
)

// RuuviSample is the part of a RAWv2 frame the gateway stores
type RuuviSample struct {
	Temperature float64
	Humidity    float64
}

// DecodeRuuviRAWv2 parses manufacturer data from a Ruuvi advertisement.
// Returns an error if the payload is not RAWv2 or carries the "not available" markers.
func DecodeRuuviRAWv2(data []byte) (*RuuviSample, error) {
	if len(data) < ruuviMinLen {
		return nil, fmt.Errorf("payload too short: %d", len(data))
	}
	if data[0] != ruuviFormatRAWv2 {
		return nil, fmt.Errorf("unsupported data format: 0x%02X", data[0])
	}
	rawTemp := int16(binary.BigEndian.Uint16(data[1:3]))
	rawHum := binary.BigEndian.Uint16(data[3:5])
	if rawTemp == ruuviTempInvalid || rawHum == ruuviHumidInvalid {
		return nil, fmt.Errorf("sensor reports values unavailable")
	}
	return &RuuviSample{
		Temperature: float64(rawTemp) * 0.005,
		Humidity:    float64(rawHum) * 0.0025,
	}, nil
}
