// Package calendar pins date arithmetic to the business's operating timezone so that
// "today", "future" and expiration judgements do not depend on the caller's clock zone.
package calendar

import (
	"time"
	_ "time/tzdata"
)

// Calendar resolves civil dates in a fixed location.
type Calendar struct {
	loc *time.Location
	now func() time.Time
}

// New creates a calendar for loc using the wall clock.
func New(loc *time.Location) *Calendar {
	return NewWithClock(loc, time.Now)
}

// NewWithClock creates a calendar with an injectable clock, for tests and replays.
func NewWithClock(loc *time.Location, now func() time.Time) *Calendar {
	if loc == nil {
		loc = time.UTC
	}
	if now == nil {
		now = time.Now
	}
	return &Calendar{loc: loc, now: now}
}

// Location returns the business timezone
func (c *Calendar) Location() *time.Location {
	return c.loc
}

// Now returns the current instant in the business timezone
func (c *Calendar) Now() time.Time {
	return c.now().In(c.loc)
}

// Today returns midnight of the current business day.
func (c *Calendar) Today() time.Time {
	return c.Date(c.now())
}

// Date truncates t to midnight of its civil date in the business timezone.
func (c *Calendar) Date(t time.Time) time.Time {
	y, m, d := t.In(c.loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, c.loc)
}

// Civil reinterprets the year/month/day of t (whatever its zone) as a business date.
// DATE columns come back from the driver as UTC midnight, which must not be shifted.
func Civil(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

// DaysBetween returns the number of whole calendar days from a to b (negative when b is earlier).
// Both are compared by their civil dates, so DST shifts never produce fractional days.
func DaysBetween(a, b time.Time) int {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	from := time.Date(ay, am, ad, 0, 0, 0, 0, time.UTC)
	to := time.Date(by, bm, bd, 0, 0, 0, 0, time.UTC)
	return int(to.Sub(from).Hours() / 24)
}

// AddYears shifts a civil date by n years. Feb 29 rolls to Mar 1 in non-leap years.
func AddYears(t time.Time, n int) time.Time {
	return t.AddDate(n, 0, 0)
}
