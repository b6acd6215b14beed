package commands

import (
	"fmt"
	"time"
)

// formatTimeAgo formats ts as "X ago" relative to now.
func formatTimeAgo(ts, now time.Time) string {
	if ts.IsZero() {
		return ""
	}
	return humanizeDuration(now.Sub(ts)) + " ago"
}

// formatTimeUntil formats ts as "in X" relative to now.
func formatTimeUntil(ts, now time.Time) string {
	d := ts.Sub(now)
	if d <= 0 {
		return "now"
	}
	return "in " + humanizeDuration(d)
}

func humanizeDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	secs := int(d.Seconds())
	if secs < 60 {
		return fmt.Sprintf("%ds", secs)
	}
	mins := secs / 60
	if mins < 60 {
		return fmt.Sprintf("%dm", mins)
	}
	hours := mins / 60
	if hours < 48 {
		return fmt.Sprintf("%dh", hours)
	}
	return fmt.Sprintf("%dd", hours/24)
}
