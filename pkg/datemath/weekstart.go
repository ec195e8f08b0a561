package datemath

import (
	"fmt"
	"strings"
	"time"
)

// WeekStartDay selects which weekday opens a calendar week
type WeekStartDay int

const (
	// Monday is the default when no preference has been stored
	Monday WeekStartDay = iota
	Sunday
)

// Weekday returns the time.Weekday that begins the week
func (w WeekStartDay) Weekday() time.Weekday {
	if w == Sunday {
		return time.Sunday
	}
	return time.Monday
}

func (w WeekStartDay) String() string {
	if w == Sunday {
		return "sunday"
	}
	return "monday"
}

// ParseWeekStartDay parses "monday" or "sunday" (case insensitive)
func ParseWeekStartDay(s string) (WeekStartDay, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "monday", "mon":
		return Monday, nil
	case "sunday", "sun":
		return Sunday, nil
	default:
		return Monday, fmt.Errorf("unknown week start day: %q", s)
	}
}

// MarshalText implements encoding.TextMarshaler
func (w WeekStartDay) MarshalText() ([]byte, error) {
	return []byte(w.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (w *WeekStartDay) UnmarshalText(text []byte) error {
	parsed, err := ParseWeekStartDay(string(text))
	if err != nil {
		return err
	}
	*w = parsed
	return nil
}

// Unit is a navigation step size
type Unit int

const (
	Day Unit = iota
	Week
	Month
	Year
)

func (u Unit) String() string {
	switch u {
	case Day:
		return "day"
	case Week:
		return "week"
	case Month:
		return "month"
	case Year:
		return "year"
	default:
		return fmt.Sprintf("unit(%d)", int(u))
	}
}

// ParseUnit parses a unit name such as "week"
func ParseUnit(s string) (Unit, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "day", "d":
		return Day, nil
	case "week", "w":
		return Week, nil
	case "month", "m":
		return Month, nil
	case "year", "y":
		return Year, nil
	default:
		return Day, fmt.Errorf("unknown unit: %q", s)
	}
}
