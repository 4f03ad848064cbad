package util

import (
	"strconv"
	"strings"
	"time"
)

// epochMillisCutoff separates epoch seconds from epoch milliseconds.
// 1e11 seconds is the year 5138; 1e11 milliseconds is March 1973.
const epochMillisCutoff = 100_000_000_000

// layouts accepted besides epoch numbers, tried in order.
var layouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseTime accepts RFC3339 (with or without fraction), naive datetimes (UTC),
// and unix epochs in seconds or milliseconds. Returns (t, true) if any worked.
func ParseTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	if ts, err := strconv.ParseInt(s, 10, 64); err == nil {
		if ts <= 0 {
			return time.Time{}, false
		}
		return FromEpoch(ts), true
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f > 0 {
		return FromEpoch(int64(f)), true
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// FromEpoch converts seconds or milliseconds since the epoch to UTC.
func FromEpoch(v int64) time.Time {
	if v > epochMillisCutoff {
		return time.UnixMilli(v).UTC()
	}
	return time.Unix(v, 0).UTC()
}

// DateKey is the calendar day of t in loc, formatted YYYY-MM-DD.
// Keys sort lexically in date order.
func DateKey(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	return t.In(loc).Format("2006-01-02")
}
