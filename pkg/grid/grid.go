// Package grid lays out the days of a week, month or year view.
package grid

import (
	"fmt"
	"strings"
	"time"

	"github.com/venkytv/calendar-grid/internal/models"
	"github.com/venkytv/calendar-grid/pkg/datemath"
)

// ViewKind selects the active calendar view
type ViewKind int

const (
	WeekView ViewKind = iota
	MonthView
	YearView
)

func (v ViewKind) String() string {
	switch v {
	case MonthView:
		return "month"
	case YearView:
		return "year"
	default:
		return "week"
	}
}

// Unit returns the navigation step that matches the view
func (v ViewKind) Unit() datemath.Unit {
	switch v {
	case MonthView:
		return datemath.Month
	case YearView:
		return datemath.Year
	default:
		return datemath.Week
	}
}

// ParseViewKind parses "week", "month" or "year"
func ParseViewKind(s string) (ViewKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "week", "w":
		return WeekView, nil
	case "month", "m":
		return MonthView, nil
	case "year", "y":
		return YearView, nil
	default:
		return WeekView, fmt.Errorf("unknown view: %q", s)
	}
}

// MarshalText implements encoding.TextMarshaler
func (v ViewKind) MarshalText() ([]byte, error) {
	return []byte(v.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (v *ViewKind) UnmarshalText(text []byte) error {
	parsed, err := ParseViewKind(string(text))
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// Slot is one position of a month grid. Blank slots pad the first and last
// rows and carry no date.
type Slot struct {
	Date  time.Time
	Blank bool
}

// MonthID identifies a month of a year view
type MonthID struct {
	Year  int
	Month time.Month
}

// Date returns the first day of the month in loc
func (m MonthID) Date(loc *time.Location) time.Time {
	if loc == nil {
		loc = time.Local
	}
	return time.Date(m.Year, m.Month, 1, 0, 0, 0, 0, loc)
}

func (m MonthID) String() string {
	return fmt.Sprintf("%04d-%02d", m.Year, int(m.Month))
}

// DayCell is a rendered day of the active view
type DayCell struct {
	Date            time.Time `json:"date"`
	Blank           bool      `json:"blank,omitempty"`
	IsToday         bool      `json:"is_today"`
	IsWeekend       bool      `json:"is_weekend"`
	IsCurrentPeriod bool      `json:"is_current_period"`
}

// Builder derives grids from a calendar snapshot. It holds no state besides
// the snapshot and the clock, so a new Builder is cheap to create per call.
type Builder struct {
	cal datemath.Calendar
	now func() time.Time
}

// NewBuilder creates a Builder. A nil clock uses time.Now.
func NewBuilder(cal datemath.Calendar, now func() time.Time) *Builder {
	if now == nil {
		now = time.Now
	}
	return &Builder{cal: cal, now: now}
}

// Calendar returns the snapshot the builder computes with
func (b *Builder) Calendar() datemath.Calendar {
	return b.cal
}

// WeekDates returns the seven days of the week containing focus
func (b *Builder) WeekDates(focus time.Time) []time.Time {
	start := b.cal.StartOfWeek(focus)
	dates := make([]time.Time, 7)
	for i := range dates {
		dates[i] = b.cal.AddDays(start, i)
	}
	return dates
}

// MonthGrid returns the month containing focus padded with blanks to whole weeks
func (b *Builder) MonthGrid(focus time.Time) []Slot {
	first := b.cal.StartOfMonth(focus)
	lead := b.cal.FirstWeekdayOfMonth(first)
	days := b.cal.DaysInMonth(first)

	total := lead + days
	if rem := total % 7; rem != 0 {
		total += 7 - rem
	}

	slots := make([]Slot, total)
	for i := range slots {
		day := i - lead
		if day < 0 || day >= days {
			slots[i] = Slot{Blank: true}
			continue
		}
		slots[i] = Slot{Date: b.cal.AddDays(first, day)}
	}
	return slots
}

// YearMonths returns January through December of year
func (b *Builder) YearMonths(year int) []MonthID {
	months := make([]MonthID, 12)
	for i := range months {
		months[i] = MonthID{Year: year, Month: time.January + time.Month(i)}
	}
	return months
}

// Cells returns the day cells of the given view. Week views yield seven cells,
// month views a padded grid, and year views every month grid in order.
func (b *Builder) Cells(view ViewKind, focus time.Time) []DayCell {
	now := b.now()

	switch view {
	case MonthView:
		return b.cellsFor(view, b.MonthGrid(focus), now)
	case YearView:
		var cells []DayCell
		loc := b.cal.StartOfDay(focus).Location()
		for _, m := range b.YearMonths(b.cal.StartOfDay(focus).Year()) {
			cells = append(cells, b.cellsFor(view, b.MonthGrid(m.Date(loc)), now)...)
		}
		return cells
	default:
		dates := b.WeekDates(focus)
		slots := make([]Slot, len(dates))
		for i, d := range dates {
			slots[i] = Slot{Date: d}
		}
		return b.cellsFor(view, slots, now)
	}
}

func (b *Builder) cellsFor(view ViewKind, slots []Slot, now time.Time) []DayCell {
	cells := make([]DayCell, len(slots))
	for i, s := range slots {
		if s.Blank {
			cells[i] = DayCell{Blank: true}
			continue
		}
		cells[i] = DayCell{
			Date:            s.Date,
			IsToday:         b.cal.IsSameDay(s.Date, now),
			IsWeekend:       b.cal.IsWeekend(s.Date),
			IsCurrentPeriod: b.inCurrentPeriod(view, s.Date, now),
		}
	}
	return cells
}

// inCurrentPeriod reports whether d lies in the week, month or year of now,
// matching the granularity of the view.
func (b *Builder) inCurrentPeriod(view ViewKind, d, now time.Time) bool {
	switch view {
	case MonthView:
		return b.cal.IsSameMonth(d, now)
	case YearView:
		return b.cal.IsSameYear(d, now)
	default:
		return b.cal.IsSameWeek(d, now)
	}
}

// Range returns the span of instants covered by the view around focus. It is
// the window the surrounding app fetches events for.
func (b *Builder) Range(view ViewKind, focus time.Time) models.DateRange {
	switch view {
	case MonthView:
		return models.DateRange{
			Start: b.cal.StartOfWeek(b.cal.StartOfMonth(focus)),
			End:   b.cal.EndOfWeek(b.cal.EndOfMonth(focus)),
		}
	case YearView:
		return models.DateRange{
			Start: b.cal.StartOfYear(focus),
			End:   b.cal.EndOfYear(focus),
		}
	default:
		return models.DateRange{
			Start: b.cal.StartOfWeek(focus),
			End:   b.cal.EndOfWeek(focus),
		}
	}
}
