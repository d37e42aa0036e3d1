// Package clock is the single source of "now" for the whole service.
// Every date comparison (overdue checks, borrow windows, session
// expiry) goes through one Clock pinned to the library's reference
// timezone, so two components never disagree about what day it is.
package clock

import "time"

type Clock interface {
	// Now returns the current instant in the reference timezone.
	Now() time.Time
	// Today returns the current date in the reference timezone,
	// normalized to midnight UTC so it compares cleanly against
	// DATE columns scanned from postgres.
	Today() time.Time
}

type refClock struct {
	loc *time.Location
}

func New(tz string) (Clock, error) {
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, err
	}
	return &refClock{loc: loc}, nil
}

func (c *refClock) Now() time.Time { return time.Now().In(c.loc) }

func (c *refClock) Today() time.Time { return DateOf(c.Now()) }

// DateOf strips the time-of-day from t, keeping the calendar date as
// seen in t's location. The result is midnight UTC.
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DaysBetween returns the whole days from one date to another. Both
// arguments must be dates produced by DateOf or scanned from DATE
// columns (midnight UTC).
func DaysBetween(from, to time.Time) int {
	return int(to.Sub(from) / (24 * time.Hour))
}
