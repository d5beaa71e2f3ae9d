package quiz

import (
	"strconv"
	"strings"
)

// ZeroTimeSpan is the time value the backend reports for attempts that never ran.
const ZeroTimeSpan = "00:00:00"

// ParseTimeSpan converts "[d.]HH:MM:SS[.fff]" into total seconds, keeping the
// fractional part. Without a day prefix hours may exceed 24. ok is false for
// empty or malformed input.
func ParseTimeSpan(raw string) (seconds float64, ok bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, false
	}
	parts := strings.Split(raw, ":")
	if len(parts) != 3 {
		return 0, false
	}

	days := 0
	hourPart := parts[0]
	if d, h, found := strings.Cut(hourPart, "."); found {
		var err error
		if days, err = strconv.Atoi(d); err != nil || days < 0 {
			return 0, false
		}
		hourPart = h
	}
	hours, err := strconv.Atoi(hourPart)
	if err != nil || hours < 0 || (days > 0 && hours > 23) {
		return 0, false
	}
	hours += days * 24
	minutes, err := strconv.Atoi(parts[1])
	if err != nil || minutes < 0 || minutes > 59 {
		return 0, false
	}
	secs, err := strconv.ParseFloat(parts[2], 64)
	if err != nil || secs < 0 || secs >= 60 {
		return 0, false
	}
	return float64(hours*3600+minutes*60) + secs, true
}
