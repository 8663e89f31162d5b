package certificate

import (
	"strconv"
	"time"
)

// Ordinal renders n with its English suffix: 1st, 2nd, 3rd, 4th, 11th.
func Ordinal(n int) string {
	abs := n
	if abs < 0 {
		abs = -abs
	}
	suffix := "th"
	if abs%100 < 11 || abs%100 > 13 {
		switch abs % 10 {
		case 1:
			suffix = "st"
		case 2:
			suffix = "nd"
		case 3:
			suffix = "rd"
		}
	}
	return strconv.Itoa(n) + suffix
}

// IssuanceDate renders t as "5th day of October, 2026".
func IssuanceDate(t time.Time) string {
	return Ordinal(t.Day()) + " day of " + t.Month().String() + ", " + strconv.Itoa(t.Year())
}
