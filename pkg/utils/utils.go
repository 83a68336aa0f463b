package utils

import (
	"fmt"
	"strconv"
)

// FormatRoundedUnit renders a duration in seconds with its largest whole unit.
func FormatRoundedUnit(seconds int64) string {
	if seconds < 0 {
		seconds = -seconds
	}
	if seconds < 60 {
		return fmt.Sprintf("%ds", seconds)
	}
	if seconds > 3600 {
		return fmt.Sprintf("%dh", int64(seconds/3600))
	}
	return fmt.Sprintf("%dm", int64(seconds/60))
}

// FormatDistance renders meters as cm, m or km.
func FormatDistance(meters float64) string {
	if meters < 0 {
		meters = -meters
	}
	switch {
	case meters < 1:
		return fmt.Sprintf("%.0f cm", meters*100)
	case meters < 1000:
		return fmt.Sprintf("%.1f m", meters)
	default:
		return fmt.Sprintf("%.2f km", meters/1000)
	}
}

// FormatCount groups the digits of n by thousands: 1234567 -> "1,234,567".
func FormatCount(n int64) string {
	s := strconv.FormatInt(n, 10)
	sign := ""
	if n < 0 {
		sign, s = "-", s[1:]
	}

	out := make([]byte, 0, len(s)+len(s)/3)
	for i := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			out = append(out, ',')
		}
		out = append(out, s[i])
	}
	return sign + string(out)
}

// Percent returns part/total*100, or 0 when total is 0.
func Percent(part, total int64) float64 {
	if total == 0 {
		return 0
	}
	return float64(part) / float64(total) * 100
}
