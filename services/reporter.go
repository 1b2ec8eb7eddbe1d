package services

import (
	"fmt"
	"html"
	"strings"
	"time"
	"unicode/utf8"

	"ruuvigate/models"
)

// Reporter formats the operator messages sent during network phases
type Reporter struct {
	GatewayID string
	MaxLen    int
}

func NewReporter(gatewayID string, maxLen int) *Reporter {
	if maxLen <= 0 {
		maxLen = 2000
	}
	return &Reporter{GatewayID: gatewayID, MaxLen: maxLen}
}

// StartupMessage announces the first boot
func (r *Reporter) StartupMessage(now time.Time, battery *models.BatterySnapshot, tags int) string {
	var sb strings.Builder

	sb.WriteString("🟢 <b>RUUVIGATE Gateway Started</b>\n\n")
	sb.WriteString(fmt.Sprintf("📱 <b>Gateway:</b> %s\n", html.EscapeString(r.GatewayID)))
	sb.WriteString(fmt.Sprintf("🕐 <b>Time:</b> %s - Measurements started\n", now.Format("2006-01-02 15:04:05")))
	sb.WriteString(formatBattery(battery))
	sb.WriteString(fmt.Sprintf("📡 <b>Registered tags:</b> %d\n\n", tags))
	sb.WriteString("✅ Collection cycle is running")

	return sb.String()
}

// FlushMessage summarises a batch upload
func (r *Reporter) FlushMessage(now time.Time, report models.FlushReport, battery *models.BatterySnapshot, uptime time.Duration) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("%s <b>RUUVIGATE Upload %s</b>\n\n", report.GetOutcomeEmoji(), report.Outcome))
	sb.WriteString(fmt.Sprintf("📱 <b>Gateway:</b> %s\n", html.EscapeString(r.GatewayID)))
	sb.WriteString(fmt.Sprintf("🕐 <b>Time:</b> %s\n", now.Format("2006-01-02 15:04:05")))
	sb.WriteString(fmt.Sprintf("📤 <b>Documents:</b> %d sent, %d failed of %d\n", report.Sent, report.Failed, report.Total))
	sb.WriteString(formatBattery(battery))
	if uptime > 0 {
		sb.WriteString(fmt.Sprintf("⏱️ <b>Since last flush:</b> %s\n", formatDuration(uptime)))
	}
	if report.Outcome == models.OutcomePartial {
		sb.WriteString("\n💡 Failed documents are kept and retried at the next flush.")
	}

	return strings.TrimRight(sb.String(), "\n")
}

// JournalMessages packs journal lines into as few messages as fit within
// MaxLen, each wrapped in a <pre> block. A single over-long line is cut.
func (r *Reporter) JournalMessages(lines []string) []string {
	const preOpen, preClose = "<pre>", "</pre>"
	budget := r.MaxLen - len(preOpen) - len(preClose)
	if budget <= 0 {
		return nil
	}

	var out []string
	var cur strings.Builder
	flush := func() {
		if cur.Len() > 0 {
			out = append(out, preOpen+cur.String()+preClose)
			cur.Reset()
		}
	}

	for _, line := range lines {
		esc := html.EscapeString(line)
		if len(esc) > budget {
			esc = cutBytes(esc, budget)
		}
		need := len(esc)
		if cur.Len() > 0 {
			need++
		}
		if cur.Len()+need > budget {
			flush()
		}
		if cur.Len() > 0 {
			cur.WriteByte('\n')
		}
		cur.WriteString(esc)
	}
	flush()
	return out
}

func formatBattery(b *models.BatterySnapshot) string {
	if b == nil {
		return "❔ <b>Battery:</b> unavailable\n"
	}
	return fmt.Sprintf("%s <b>Battery:</b> %d mV, Level: %d%%\n", b.GetBatteryEmoji(), b.VoltageMV, b.Level)
}

// cutBytes shortens s to at most n bytes without splitting a rune or an HTML entity
func cutBytes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	s = s[:n]
	for !utf8.ValidString(s) {
		s = s[:len(s)-1]
	}
	if amp := strings.LastIndexByte(s, '&'); amp >= 0 && !strings.Contains(s[amp:], ";") {
		s = s[:amp]
	}
	return s
}

// formatDuration formats duration in a human-readable way
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%d seconds", int(d.Seconds()))
	} else if d < time.Hour {
		minutes := int(d.Minutes())
		seconds := int(d.Seconds()) % 60
		if seconds > 0 {
			return fmt.Sprintf("%d minutes %d seconds", minutes, seconds)
		}
		return fmt.Sprintf("%d minutes", minutes)
	} else {
		hours := int(d.Hours())
		minutes := int(d.Minutes()) % 60
		if minutes > 0 {
			return fmt.Sprintf("%d hours %d minutes", hours, minutes)
		}
		return fmt.Sprintf("%d hours", hours)
	}
}
