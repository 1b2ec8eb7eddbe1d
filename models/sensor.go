package models

import (
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// DeviceID is the 6-byte radio address of a registered Ruuvi tag
type DeviceID [6]byte

// ParseDeviceID parses the colon separated form "DB:C3:58:D9:03:70".
// Underscores are accepted as separators so file tokens round trip.
func ParseDeviceID(s string) (DeviceID, error) {
	var id DeviceID
	clean := strings.NewReplacer(":", "", "_", "", "-", "").Replace(strings.TrimSpace(s))
	if len(clean) != 12 {
		return id, fmt.Errorf("invalid device id %q: want 6 bytes", s)
	}
	b, err := hex.DecodeString(clean)
	if err != nil {
		return id, fmt.Errorf("invalid device id %q: %w", s, err)
	}
	copy(id[:], b)
	return id, nil
}

// MustParseDeviceID is ParseDeviceID for compiled-in constants
func MustParseDeviceID(s string) DeviceID {
	id, err := ParseDeviceID(s)
	if err != nil {
		panic(err)
	}
	return id
}

func (d DeviceID) String() string {
	return d.join(":")
}

// Token returns the underscore form used in file names and remote keys
func (d DeviceID) Token() string {
	return d.join("_")
}

func (d DeviceID) join(sep string) string {
	parts := make([]string, len(d))
	for i, b := range d {
		parts[i] = fmt.Sprintf("%02X", b)
	}
	return strings.Join(parts, sep)
}

// Reading is one temperature/humidity sample
type Reading struct {
	Temperature float64   `json:"temperature"`
	Humidity    float64   `json:"humidity"`
	Timestamp   time.Time `json:"timestamp"`
}

// Measurement is a decoded advertisement from a registered tag
type Measurement struct {
	DeviceID DeviceID
	Reading  Reading
	RSSI     int16
}

// BatterySnapshot is the gateway's own battery state, shared by all documents written in a cycle
type BatterySnapshot struct {
	VoltageMV int `json:"voltage_mv"`
	Level     int `json:"level"`
}

// GetBatteryEmoji returns appropriate emoji for the battery level
func (b BatterySnapshot) GetBatteryEmoji() string {
	switch {
	case b.VoltageMV == 0:
		return "❔"
	case b.Level <= 20:
		return "🪫"
	default:
		return "🔋"
	}
}
