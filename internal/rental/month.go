// Package rental holds the pure rental-ledger logic: month keys, the paid
// month set, the calendar window shown to agents and the contiguous
// selection rules applied when months are picked for payment.
//
// Nothing in this package touches storage or the clock; callers pass "now".
package rental

import (
	"fmt"
	"time"
)

// MonthKey identifies a calendar month as "YYYY-MM".
type MonthKey string

const monthKeyLayout = "2006-01"

// KeyOf returns the month key of t.
func KeyOf(t time.Time) MonthKey {
	return MonthKey(t.Format(monthKeyLayout))
}

// ParseMonthKey validates s and returns it as a MonthKey.
func ParseMonthKey(s string) (MonthKey, error) {
	if _, err := time.Parse(monthKeyLayout, s); err != nil || len(s) != len(monthKeyLayout) {
		return "", fmt.Errorf("invalid month key %q", s)
	}
	return MonthKey(s), nil
}

// Valid reports whether k is a well-formed month key.
func (k MonthKey) Valid() bool {
	_, err := ParseMonthKey(string(k))
	return err == nil
}

// Time returns the first day of the month at midnight UTC. An invalid key
// yields the zero time.
func (k MonthKey) Time() time.Time {
	t, err := time.Parse(monthKeyLayout, string(k))
	if err != nil {
		return time.Time{}
	}
	return t
}

// End returns the last day of the month at midnight UTC.
func (k MonthKey) End() time.Time {
	return EndOfMonth(k.Time())
}

// StartOfMonth truncates t to the first day of its month, keeping t's location.
func StartOfMonth(t time.Time) time.Time {
	y, m, _ := t.Date()
	return time.Date(y, m, 1, 0, 0, 0, 0, t.Location())
}

// EndOfMonth returns the last day of t's month at midnight.
func EndOfMonth(t time.Time) time.Time {
	return StartOfMonth(t).AddDate(0, 1, -1)
}

// sameMonth compares two dates at month granularity.
func sameMonth(a, b time.Time) bool {
	ay, am, _ := a.Date()
	by, bm, _ := b.Date()
	return ay == by && am == bm
}

// civil drops the time-of-day and location so month arithmetic is done on
// calendar dates only.
func civil(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
