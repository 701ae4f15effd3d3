package domain

import (
	"strings"
	"time"
)

type DateRange string

const (
	RangeToday DateRange = "today"
	RangeWeek  DateRange = "week"
	RangeMonth DateRange = "month"
	RangeAll   DateRange = "all"
)

// ParseDateRange accepts any casing and falls back to RangeAll.
func ParseDateRange(s string) DateRange {
	switch r := DateRange(strings.ToLower(strings.TrimSpace(s))); r {
	case RangeToday, RangeWeek, RangeMonth:
		return r
	default:
		return RangeAll
	}
}

// Since returns the lower bound for created_at, at midnight of the start day,
// and false when the range is unbounded.
func (r DateRange) Since(now time.Time) (time.Time, bool) {
	y, m, d := now.Date()
	today := time.Date(y, m, d, 0, 0, 0, 0, now.Location())
	switch r {
	case RangeToday:
		return today, true
	case RangeWeek:
		return today.AddDate(0, 0, -7), true
	case RangeMonth:
		return today.AddDate(0, 0, -30), true
	default:
		return time.Time{}, false
	}
}

// MonthStart returns midnight on the first day of now's month.
func MonthStart(now time.Time) time.Time {
	y, m, _ := now.Date()
	return time.Date(y, m, 1, 0, 0, 0, 0, now.Location())
}
