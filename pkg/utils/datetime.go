package utils

import (
	"strconv"
	"strings"
	"time"
)

// ParseDateTimeLocal combines a YYYY-MM-DD date and a loosely written time of
// day into an instant in loc. Accepted clocks: H, HH, H:MM, HH:MM, H.MM,
// HH.MM, HMM and HHMM. It reports false for anything it cannot read or for a
// wall-clock time that does not exist in loc; whether a past result is
// acceptable is left to the caller.
func ParseDateTimeLocal(date, clock string, loc *time.Location) (time.Time, bool) {
	if loc == nil {
		loc = time.Local
	}

	y, m, d, ok := parseDate(date)
	if !ok {
		return time.Time{}, false
	}
	hh, mm, ok := ParseClock(clock)
	if !ok {
		return time.Time{}, false
	}

	t := time.Date(y, time.Month(m), d, hh, mm, 0, 0, loc)
	// time.Date normalises overflow (Feb 30, DST gaps); refuse instead
	if t.Year() != y || int(t.Month()) != m || t.Day() != d || t.Hour() != hh || t.Minute() != mm {
		return time.Time{}, false
	}
	return t, true
}

// ParseClock reads a time of day and returns hour and minute.
func ParseClock(clock string) (int, int, bool) {
	s := strings.TrimSpace(clock)
	s = strings.Replace(s, ".", ":", 1)

	var hPart, mPart string
	if i := strings.IndexByte(s, ':'); i >= 0 {
		hPart, mPart = s[:i], s[i+1:]
		if len(mPart) == 0 || len(mPart) > 2 {
			return 0, 0, false
		}
	} else {
		switch len(s) {
		case 1, 2:
			hPart, mPart = s, "0"
		case 3:
			hPart, mPart = s[:1], s[1:]
		case 4:
			hPart, mPart = s[:2], s[2:]
		default:
			return 0, 0, false
		}
	}
	if len(hPart) == 0 || len(hPart) > 2 {
		return 0, 0, false
	}

	hh, ok := atoiDigits(hPart)
	if !ok || hh > 23 {
		return 0, 0, false
	}
	mm, ok := atoiDigits(mPart)
	if !ok || mm > 59 {
		return 0, 0, false
	}
	return hh, mm, true
}

func parseDate(date string) (int, int, int, bool) {
	parts := strings.Split(strings.TrimSpace(date), "-")
	if len(parts) != 3 {
		return 0, 0, 0, false
	}
	y, ok := atoiDigits(parts[0])
	if !ok || y == 0 {
		return 0, 0, 0, false
	}
	m, ok := atoiDigits(parts[1])
	if !ok || m < 1 || m > 12 {
		return 0, 0, 0, false
	}
	d, ok := atoiDigits(parts[2])
	if !ok || d < 1 || d > 31 {
		return 0, 0, 0, false
	}
	return y, m, d, true
}

// atoiDigits accepts only ASCII digits (no sign, no spaces).
func atoiDigits(s string) (int, bool) {
	if s == "" {
		return 0, false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return n, true
}
