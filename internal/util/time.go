package util

import (
	"fmt"
	"time"
)

// humanTimeFormat is the layout for operator-facing timestamps.
const humanTimeFormat = "2 Jan 2006 15:04 MST"

// HumanTime returns the current local time formatted for notifications.
func HumanTime() string {
	return time.Now().Format(humanTimeFormat)
}

// FormatHumanTime converts an RFC3339 timestamp to the local human-readable
// form. Build metadata that never got stamped passes through as "unknown".
func FormatHumanTime(rfc3339 string) string {
	if rfc3339 == "" || rfc3339 == "unknown" {
		return "unknown"
	}
	t, err := time.Parse(time.RFC3339, rfc3339)
	if err != nil {
		return rfc3339
	}
	return t.Local().Format(humanTimeFormat)
}

// FormatDuration renders a millisecond count the way an operator reads it:
// "45s", "2m 34s", "1h 23m".
func FormatDuration(ms int64) string {
	d := time.Duration(ms) * time.Millisecond
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
	default:
		return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
	}
}

// FormatDB renders a loudness value for notifications, e.g. "-23.4 dB".
func FormatDB(db float64) string {
	return fmt.Sprintf("%.1f dB", db)
}
