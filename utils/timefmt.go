package utils

import "fmt"

// FormatMs renders a millisecond offset as [hh:]mm:ss.mmm, the format the
// editor displays and accepts for marker timestamps.
func FormatMs(ms int64) string {
	neg := ""
	if ms < 0 {
		neg = "-"
		ms = -ms
	}

	msec := ms % 1000
	sec := (ms / 1000) % 60
	min := (ms / 60000) % 60
	hour := ms / 3600000

	if hour > 0 {
		return fmt.Sprintf("%s%d:%02d:%02d.%03d", neg, hour, min, sec, msec)
	}
	return fmt.Sprintf("%s%d:%02d.%03d", neg, min, sec, msec)
}

// ClampMs bounds v to [lo, hi].
func ClampMs(v, lo, hi int64) int64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
