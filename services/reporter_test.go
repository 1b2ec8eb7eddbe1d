package services

import (
	"strings"
	"testing"
	"time"

	"ruuvigate/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReporter_StartupMessage(t *testing.T) {
	r := NewReporter("gw<1>", 2000)
	now := time.Date(2024, 3, 9, 8, 15, 0, 0, time.UTC)

	msg := r.StartupMessage(now, &models.BatterySnapshot{VoltageMV: 3900, Level: 80}, 4)
	assert.Contains(t, msg, "2024-03-09 08:15:00 - Measurements started")
	assert.Contains(t, msg, "3900 mV, Level: 80%")
	assert.Contains(t, msg, "gw&lt;1&gt;")

	msg = r.StartupMessage(now, nil, 4)
	assert.Contains(t, msg, "unavailable")
}

func TestReporter_FlushMessage(t *testing.T) {
	r := NewReporter("gw", 2000)
	report := models.FlushReport{Outcome: models.OutcomePartial, Total: 3, Sent: 2, Failed: 1}

	msg := r.FlushMessage(time.Now(), report, nil, 24*time.Hour)
	assert.Contains(t, msg, "PARTIAL")
	assert.Contains(t, msg, "2 sent, 1 failed of 3")
	assert.Contains(t, msg, "24 hours")
	assert.Contains(t, msg, "retried at the next flush")
}

func TestReporter_JournalMessagesRespectLimit(t *testing.T) {
	r := NewReporter("gw", 200)
	var lines []string
	for i := 0; i < 30; i++ {
		lines = append(lines, strings.Repeat("e", 30)+" <tag>")
	}
	lines = append(lines, strings.Repeat("L", 500))

	msgs := r.JournalMessages(lines)
	require.NotEmpty(t, msgs)
	joined := strings.Join(msgs, "")
	for _, m := range msgs {
		assert.LessOrEqual(t, len(m), 200)
		assert.True(t, strings.HasPrefix(m, "<pre>"))
		assert.True(t, strings.HasSuffix(m, "</pre>"))
	}
	assert.Equal(t, 30, strings.Count(joined, "&lt;tag&gt;"), "every line delivered")
	assert.NotContains(t, joined, "<tag>")
}

func TestReporter_JournalMessagesEmpty(t *testing.T) {
	assert.Empty(t, NewReporter("gw", 2000).JournalMessages(nil))
}

func TestCutBytesKeepsEntitiesWhole(t *testing.T) {
	assert.Equal(t, "ab", cutBytes("ab&lt;cd", 5))
	assert.Equal(t, "ab&lt;", cutBytes("ab&lt;cd", 6))
	assert.Equal(t, "é", cutBytes("éé", 3))
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "45 seconds", formatDuration(45*time.Second))
	assert.Equal(t, "10 minutes", formatDuration(10*time.Minute))
	assert.Equal(t, "2 hours 5 minutes", formatDuration(125*time.Minute))
}
