package utils

import (
	"fmt"
	"time"
)

// DateLayout is the layout used for date-keyed storage directories.
const DateLayout = "2006-01-02"

// DateKey formats t as a UTC "2006-01-02" string.
func DateKey(t time.Time) string {
	return t.UTC().Format(DateLayout)
}

// ParseDateKey parses a "2006-01-02" string as a UTC date.
func ParseDateKey(s string) (time.Time, error) {
	return time.ParseInLocation(DateLayout, s, time.UTC)
}

// FileTimestamp formats t for use in file names: 2006-01-02T15-04-05.000Z.
func FileTimestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02T15-04-05.000Z")
}

// FormatDateTime formats a time.Time as "2006-01-02 15:04:05 MST" in loc.
// A nil loc means UTC.
func FormatDateTime(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format("2006-01-02 15:04:05 MST")
}

// FormatDuration returns a short human-readable duration: 1h2m, 3m4s, 850ms.
func FormatDuration(d time.Duration) string {
	switch {
	case d < time.Second:
		return fmt.Sprintf("%dms", d.Milliseconds())
	case d < time.Minute:
		return fmt.Sprintf("%.1fs", d.Seconds())
	case d < time.Hour:
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	default:
		return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
	}
}
