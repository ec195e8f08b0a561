// Package datemath implements calendar arithmetic for week, month and year grids.
//
// Every method on Calendar is pure. A Calendar is a value: copying it snapshots the
// week-start preference, so a settings change never affects a computation that is
// already running.
package datemath

import "time"

// Calendar carries the parameters all date computations depend on
type Calendar struct {
	WeekStart WeekStartDay
	// Location is the zone day boundaries are computed in. Nil means the
	// location of the time passed in.
	Location *time.Location
}

// New returns a Calendar for the given week start and location
func New(weekStart WeekStartDay, loc *time.Location) Calendar {
	return Calendar{WeekStart: weekStart, Location: loc}
}

func (c Calendar) in(t time.Time) time.Time {
	if c.Location == nil {
		return t
	}
	return t.In(c.Location)
}

// StartOfDay returns midnight of the day containing t
func (c Calendar) StartOfDay(t time.Time) time.Time {
	t = c.in(t)
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// EndOfDay returns the last instant before the following day starts
func (c Calendar) EndOfDay(t time.Time) time.Time {
	t = c.in(t)
	y, m, d := t.Date()
	return time.Date(y, m, d+1, 0, 0, 0, 0, t.Location()).Add(-time.Nanosecond)
}

// StartOfWeek returns the first instant of the week containing t
func (c Calendar) StartOfWeek(t time.Time) time.Time {
	day := c.StartOfDay(t)
	return c.AddDays(day, -c.weekdayIndex(day))
}

// EndOfWeek returns the end of the sixth day after StartOfWeek
func (c Calendar) EndOfWeek(t time.Time) time.Time {
	return c.EndOfDay(c.AddDays(c.StartOfWeek(t), 6))
}

// StartOfMonth returns midnight of the first day of t's month
func (c Calendar) StartOfMonth(t time.Time) time.Time {
	t = c.in(t)
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
}

// EndOfMonth returns the last instant of t's month
func (c Calendar) EndOfMonth(t time.Time) time.Time {
	t = c.in(t)
	return time.Date(t.Year(), t.Month()+1, 1, 0, 0, 0, 0, t.Location()).Add(-time.Nanosecond)
}

// StartOfYear returns midnight of January 1st of t's year
func (c Calendar) StartOfYear(t time.Time) time.Time {
	t = c.in(t)
	return time.Date(t.Year(), time.January, 1, 0, 0, 0, 0, t.Location())
}

// EndOfYear returns the last instant of t's year
func (c Calendar) EndOfYear(t time.Time) time.Time {
	t = c.in(t)
	return time.Date(t.Year()+1, time.January, 1, 0, 0, 0, 0, t.Location()).Add(-time.Nanosecond)
}

// DaysInMonth returns the number of days in t's month
func (c Calendar) DaysInMonth(t time.Time) int {
	t = c.in(t)
	return daysIn(t.Year(), t.Month())
}

func daysIn(year int, month time.Month) int {
	// Day 0 of the next month is the last day of this one.
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// FirstWeekdayOfMonth returns the column (0 = configured week start) of the
// first day of t's month
func (c Calendar) FirstWeekdayOfMonth(t time.Time) int {
	return c.weekdayIndex(c.StartOfMonth(t))
}

// WeekdayIndex returns the column of t in a week grid, 0 being the week start
func (c Calendar) WeekdayIndex(t time.Time) int {
	return c.weekdayIndex(c.in(t))
}

func (c Calendar) weekdayIndex(t time.Time) int {
	return (int(t.Weekday()) - int(c.WeekStart.Weekday()) + 7) % 7
}

// IsSameDay reports whether a and b fall on the same calendar day
func (c Calendar) IsSameDay(a, b time.Time) bool {
	return c.StartOfDay(a).Equal(c.StartOfDay(b))
}

// IsSameWeek reports whether a and b fall in the same grid week
func (c Calendar) IsSameWeek(a, b time.Time) bool {
	return c.StartOfWeek(a).Equal(c.StartOfWeek(b))
}

// IsSameMonth reports whether a and b fall in the same month of the same year
func (c Calendar) IsSameMonth(a, b time.Time) bool {
	a, b = c.in(a), c.in(b)
	return a.Year() == b.Year() && a.Month() == b.Month()
}

// IsSameYear reports whether a and b fall in the same year
func (c Calendar) IsSameYear(a, b time.Time) bool {
	return c.in(a).Year() == c.in(b).Year()
}

// AddDays moves t by n calendar days, keeping the wall clock time
func (c Calendar) AddDays(t time.Time, n int) time.Time {
	t = c.in(t)
	y, m, d := t.Date()
	hh, mm, ss := t.Clock()
	return time.Date(y, m, d+n, hh, mm, ss, t.Nanosecond(), t.Location())
}

// AddWeeks moves t by n weeks
func (c Calendar) AddWeeks(t time.Time, n int) time.Time {
	return c.AddDays(t, 7*n)
}

// AddMonths moves t by n months. The day of month is clamped to the length of
// the target month, so Jan 31 + 1 month is the last day of February.
func (c Calendar) AddMonths(t time.Time, n int) time.Time {
	t = c.in(t)
	y, m, d := t.Date()
	hh, mm, ss := t.Clock()

	total := int(m) - 1 + n
	ty := y + floorDiv(total, 12)
	tm := time.Month(floorMod(total, 12) + 1)

	if last := daysIn(ty, tm); d > last {
		d = last
	}
	return time.Date(ty, tm, d, hh, mm, ss, t.Nanosecond(), t.Location())
}

// AddYears moves t by n years with the same clamping rule as AddMonths
func (c Calendar) AddYears(t time.Time, n int) time.Time {
	return c.AddMonths(t, 12*n)
}

// Add moves t by n steps of the given unit
func (c Calendar) Add(t time.Time, unit Unit, n int) time.Time {
	switch unit {
	case Week:
		return c.AddWeeks(t, n)
	case Month:
		return c.AddMonths(t, n)
	case Year:
		return c.AddYears(t, n)
	default:
		return c.AddDays(t, n)
	}
}

// IsWeekend reports whether t is a Saturday or Sunday. Grid position is
// irrelevant here.
func (c Calendar) IsWeekend(t time.Time) bool {
	wd := c.in(t).Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

// WeekNumber returns the week-of-year label for t. Monday weeks follow ISO 8601;
// Sunday weeks count the week containing January 1st as week 1.
func (c Calendar) WeekNumber(t time.Time) int {
	t = c.in(t)
	if c.WeekStart == Monday {
		_, week := t.ISOWeek()
		return week
	}
	offset := c.weekdayIndex(c.StartOfYear(t))
	return (t.YearDay()-1+offset)/7 + 1
}

// NormalizeAllDay aligns an all-day span to day boundaries. An end that lies
// exactly on a midnight after the start is treated as exclusive, the way
// iCalendar DTEND values are written.
func (c Calendar) NormalizeAllDay(start, end time.Time) (time.Time, time.Time) {
	s := c.StartOfDay(start)
	if end.IsZero() || !end.After(start) {
		return s, c.EndOfDay(s)
	}
	e := c.in(end)
	if e.Equal(c.StartOfDay(e)) {
		e = c.AddDays(e, -1)
	}
	return s, c.EndOfDay(e)
}

// DaysBetween returns the number of day boundaries crossed from a to b
func (c Calendar) DaysBetween(a, b time.Time) int {
	sa, sb := c.StartOfDay(a), c.StartOfDay(b)
	ya, ma, da := sa.Date()
	yb, mb, db := sb.Date()
	ua := time.Date(ya, ma, da, 0, 0, 0, 0, time.UTC)
	ub := time.Date(yb, mb, db, 0, 0, 0, 0, time.UTC)
	return int(ub.Sub(ua).Hours() / 24)
}

func floorDiv(a, b int) int {
	q := a / b
	if a%b != 0 && (a < 0) != (b < 0) {
		q--
	}
	return q
}

func floorMod(a, b int) int {
	return a - floorDiv(a, b)*b
}
