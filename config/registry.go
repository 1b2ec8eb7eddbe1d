package config

import (
	"fmt"
	"strings"

	"ruuvigate/models"
)

// DefaultRegistry is the compiled-in list of tags this gateway collects from
var DefaultRegistry = []string{
	"DB:C3:58:D9:03:70",
}

// ParseRegistry parses a comma separated MAC list. An empty list falls back to DefaultRegistry.
// Duplicates are collapsed so the expected count matches distinct devices.
func ParseRegistry(raw string) ([]models.DeviceID, error) {
	entries := DefaultRegistry
	if strings.TrimSpace(raw) != "" {
		entries = strings.Split(raw, ",")
	}

	seen := make(map[models.DeviceID]bool)
	var out []models.DeviceID
	for _, e := range entries {
		e = strings.TrimSpace(e)
		if e == "" {
			continue
		}
		id, err := models.ParseDeviceID(e)
		if err != nil {
			return nil, fmt.Errorf("sensor registry: %w", err)
		}
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out, nil
}
