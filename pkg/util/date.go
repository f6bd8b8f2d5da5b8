package util

import (
	"strconv"
	"time"
)

// ParseTime accepts RFC3339 (with or without fractional seconds), unix
// seconds and unix milliseconds. Results are UTC.
func ParseTime(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC(), true
	}
	ts, err := strconv.ParseInt(s, 10, 64)
	if err != nil || ts <= 0 {
		return time.Time{}, false
	}
	// anything past year 5138 in seconds is really milliseconds
	if ts > 1e11 {
		return time.UnixMilli(ts).UTC(), true
	}
	return time.Unix(ts, 0).UTC(), true
}

// ParseTimeDefault parses s or returns def if s is empty or invalid.
func ParseTimeDefault(s string, def time.Time) time.Time {
	if t, ok := ParseTime(s); ok {
		return t
	}
	return def
}

// StartOfDayUTC truncates t to midnight UTC.
func StartOfDayUTC(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
