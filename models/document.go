package models

import "time"

// DocumentReading is one entry of a device document's measurement list
type DocumentReading struct {
	Temperature float64   `json:"temperature"`
	Humidity    float64   `json:"humidity"`
	Timestamp   time.Time `json:"timestamp"`
}

// DeviceDocument accumulates a device's readings between flushes.
// Day is fixed when the document is created and names the remote record.
type DeviceDocument struct {
	DeviceID     string            `json:"tag_id"`
	Day          string            `json:"date"`
	BatteryMV    int               `json:"battery_voltage"`
	BatteryLevel int               `json:"battery_level"`
	Readings     []DocumentReading `json:"measurements"`
}

// UploadOutcome classifies a whole flush
type UploadOutcome string

const (
	OutcomeAllOK       UploadOutcome = "ALL_OK"
	OutcomePartial     UploadOutcome = "PARTIAL"
	OutcomeNoneSent    UploadOutcome = "NONE_SENT"
	OutcomeNoDocuments UploadOutcome = "NO_DOCUMENTS"
)

// FlushReport is the result of one batch upload
type FlushReport struct {
	Outcome UploadOutcome `json:"outcome"`
	Total   int           `json:"total"`
	Sent    int           `json:"sent"`
	Failed  int           `json:"failed"`
}

// GetOutcomeEmoji returns appropriate emoji for the flush outcome
func (r FlushReport) GetOutcomeEmoji() string {
	switch r.Outcome {
	case OutcomeAllOK:
		return "✅"
	case OutcomePartial:
		return "⚠️"
	case OutcomeNoneSent:
		return "❌"
	default:
		return "📭"
	}
}

// ClassifyOutcome maps sent/total counts onto an outcome
func ClassifyOutcome(sent, total int) UploadOutcome {
	switch {
	case total == 0:
		return OutcomeNoDocuments
	case sent == total:
		return OutcomeAllOK
	case sent == 0:
		return OutcomeNoneSent
	default:
		return OutcomePartial
	}
}
