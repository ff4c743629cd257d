package util

import (
	"fmt"
	"time"
)

// TimestampLayout is the storage format of instants. Values are always UTC
// so they sort lexically.
const TimestampLayout = "2006-01-02T15:04:05Z"

// FormatTimestamp formats t in UTC for storage.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// ParseTimestamp parses a stored instant. It also accepts RFC3339 with an
// offset and the SQLite "YYYY-MM-DD HH:MM:SS" form.
func ParseTimestamp(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse("2006-01-02 15:04:05", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q", s)
	}
	return t.UTC(), nil
}

// FormatDuration renders seconds as "2h 05m", "45m" or "30s".
func FormatDuration(seconds int64) string {
	if seconds < 0 {
		return "-" + FormatDuration(-seconds)
	}
	h := seconds / 3600
	m := (seconds % 3600) / 60
	switch {
	case h > 0:
		return fmt.Sprintf("%dh %02dm", h, m)
	case m > 0:
		return fmt.Sprintf("%dm", m)
	default:
		return fmt.Sprintf("%ds", seconds)
	}
}

// FormatHours renders hours with two decimals, e.g. "1.50h".
func FormatHours(h float64) string {
	return fmt.Sprintf("%.2fh", h)
}
