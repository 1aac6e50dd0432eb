// Package time contains time related helpers
package time

import "time"

// Ptr returns a pointer to t or nil if t is zero
func Ptr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

// DayUTC truncates t to midnight UTC
func DayUTC(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// DaysBetween returns the whole days from a to b, negative when b precedes a
func DaysBetween(a, b time.Time) int {
	return int(DayUTC(b).Sub(DayUTC(a)) / (24 * time.Hour))
}

// Yesterday returns midnight UTC of the day before now
func Yesterday(now time.Time) time.Time {
	return DayUTC(now).AddDate(0, 0, -1)
}
