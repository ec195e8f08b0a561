package models

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrInvalidDateRange is returned when a range or event ends before it starts
var ErrInvalidDateRange = errors.New("invalid date range: end before start")

// CalendarEvent represents a single occurrence of a calendar event
type CalendarEvent struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	Start      time.Time `json:"start"`
	End        time.Time `json:"end"`
	IsAllDay   bool      `json:"is_all_day"`
	CalendarID string    `json:"calendar_id"`
	Location   string    `json:"location,omitempty"`
	Notes      string    `json:"notes,omitempty"`
	// SeriesID links expanded occurrences of a recurring event
	SeriesID string `json:"series_id,omitempty"`
}

// Validate checks the event's time span
func (e *CalendarEvent) Validate() error {
	if e.End.Before(e.Start) {
		return fmt.Errorf("event %q: %w", e.ID, ErrInvalidDateRange)
	}
	return nil
}

// Duration returns the length of the event
func (e *CalendarEvent) Duration() time.Duration {
	return e.End.Sub(e.Start)
}

// Overlaps returns true if the event intersects the given range. Both ends
// are inclusive so that instantaneous events at a boundary are kept.
func (e *CalendarEvent) Overlaps(r DateRange) bool {
	return !e.End.Before(r.Start) && !e.Start.After(r.End)
}

// DateRange is a closed interval of instants
type DateRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// NewDateRange creates a range, failing when end is before start
func NewDateRange(start, end time.Time) (DateRange, error) {
	if end.Before(start) {
		return DateRange{}, fmt.Errorf("%s - %s: %w",
			start.Format(time.RFC3339), end.Format(time.RFC3339), ErrInvalidDateRange)
	}
	return DateRange{Start: start, End: end}, nil
}

// Contains reports whether t lies within the range
func (r DateRange) Contains(t time.Time) bool {
	return !t.Before(r.Start) && !t.After(r.End)
}

func (r DateRange) String() string {
	return r.Start.Format("2006-01-02") + ".." + r.End.Format("2006-01-02")
}

// Recurrence is a simple repeat rule attached to new events
type Recurrence string

const (
	RecurrenceNone    Recurrence = ""
	RecurrenceDaily   Recurrence = "daily"
	RecurrenceWeekly  Recurrence = "weekly"
	RecurrenceMonthly Recurrence = "monthly"
	RecurrenceYearly  Recurrence = "yearly"
)

// ParseRecurrence parses a recurrence name; "none" and "" mean no repetition
func ParseRecurrence(s string) (Recurrence, error) {
	switch r := Recurrence(strings.ToLower(strings.TrimSpace(s))); r {
	case RecurrenceNone, RecurrenceDaily, RecurrenceWeekly, RecurrenceMonthly, RecurrenceYearly:
		return r, nil
	case "none":
		return RecurrenceNone, nil
	default:
		return RecurrenceNone, fmt.Errorf("unknown recurrence: %q", s)
	}
}

// RRule returns the iCalendar RRULE value, or "" for no recurrence
func (r Recurrence) RRule() string {
	if r == RecurrenceNone {
		return ""
	}
	return "FREQ=" + strings.ToUpper(string(r))
}

// EventFields is the payload for creating or updating an event
type EventFields struct {
	Title      string     `json:"title"`
	Start      time.Time  `json:"start"`
	End        time.Time  `json:"end"`
	IsAllDay   bool       `json:"is_all_day"`
	CalendarID string     `json:"calendar_id"`
	Location   string     `json:"location,omitempty"`
	Notes      string     `json:"notes,omitempty"`
	Recurrence Recurrence `json:"recurrence,omitempty"`
}

// Validate fails fast on an inverted span or a missing calendar id.
// Start and end are never swapped.
func (f *EventFields) Validate() error {
	if f.End.Before(f.Start) {
		return ErrInvalidDateRange
	}
	if f.CalendarID == "" {
		return errors.New("calendar id is required")
	}
	if _, err := ParseRecurrence(string(f.Recurrence)); err != nil {
		return err
	}
	return nil
}

// ToEvent builds an event with the given id from the fields
func (f *EventFields) ToEvent(id string) *CalendarEvent {
	return &CalendarEvent{
		ID:         id,
		Title:      f.Title,
		Start:      f.Start,
		End:        f.End,
		IsAllDay:   f.IsAllDay,
		CalendarID: f.CalendarID,
		Location:   f.Location,
		Notes:      f.Notes,
	}
}
