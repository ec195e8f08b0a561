package caldav

import (
	"fmt"
	"strings"
	"time"

	"github.com/emersion/go-ical"

	"github.com/venkytv/calendar-grid/internal/models"
	"github.com/venkytv/calendar-grid/pkg/calendar/recurrence"
	"github.com/venkytv/calendar-grid/pkg/datemath"
)

const productID = "-//calendar-grid//CalDAV//EN"

// decodeObject converts one calendar object resource into the series it
// holds. A resource carries a master VEVENT and optional overrides sharing
// its UID.
func decodeObject(cal *ical.Calendar, calendarID string, loc *time.Location) (*recurrence.Series, error) {
	var series *recurrence.Series
	var overrides []recurrence.Override

	for _, comp := range cal.Children {
		if comp.Name != ical.CompEvent {
			continue
		}

		event, err := decodeEvent(comp, calendarID, loc)
		if err != nil {
			return nil, err
		}

		if prop := comp.Props.Get(ical.PropRecurrenceID); prop != nil {
			rid, err := prop.DateTime(loc)
			if err != nil {
				return nil, fmt.Errorf("invalid RECURRENCE-ID: %w", err)
			}
			overrides = append(overrides, recurrence.Override{RecurrenceID: rid, Event: *event})
			continue
		}

		if series != nil {
			continue
		}
		series = &recurrence.Series{Master: *event}
		if prop := comp.Props.Get(ical.PropRecurrenceRule); prop != nil {
			series.Rule = prop.Value
		}
		for _, prop := range comp.Props[ical.PropExceptionDates] {
			for _, v := range strings.Split(prop.Value, ",") {
				single := prop
				single.Value = strings.TrimSpace(v)
				t, err := single.DateTime(loc)
				if err != nil {
					return nil, fmt.Errorf("invalid EXDATE: %w", err)
				}
				series.ExDates = append(series.ExDates, t)
			}
		}
	}

	if series == nil {
		return nil, fmt.Errorf("no VEVENT in calendar object")
	}
	series.Overrides = overrides
	return series, nil
}

func decodeEvent(comp *ical.Component, calendarID string, loc *time.Location) (*models.CalendarEvent, error) {
	e := &models.CalendarEvent{CalendarID: calendarID}

	if prop := comp.Props.Get(ical.PropUID); prop != nil {
		e.ID = prop.Value
	}
	if e.ID == "" {
		return nil, fmt.Errorf("event has no UID")
	}
	for name, field := range map[string]*string{
		ical.PropSummary:     &e.Title,
		ical.PropDescription: &e.Notes,
		ical.PropLocation:    &e.Location,
	} {
		v, err := comp.Props.Text(name)
		if err != nil {
			return nil, fmt.Errorf("event %s: invalid %s: %w", e.ID, name, err)
		}
		*field = v
	}

	start := comp.Props.Get(ical.PropDateTimeStart)
	if start == nil {
		return nil, fmt.Errorf("event %s has no DTSTART", e.ID)
	}
	t, err := start.DateTime(loc)
	if err != nil {
		return nil, fmt.Errorf("event %s: invalid DTSTART: %w", e.ID, err)
	}
	e.Start = t
	e.IsAllDay = start.Params.Get(ical.ParamValue) == string(ical.ValueDate)

	if end := comp.Props.Get(ical.PropDateTimeEnd); end != nil {
		t, err := end.DateTime(loc)
		if err != nil {
			return nil, fmt.Errorf("event %s: invalid DTEND: %w", e.ID, err)
		}
		e.End = t
	} else if !e.IsAllDay {
		e.End = e.Start.Add(time.Hour)
	}

	if e.IsAllDay {
		dm := datemath.New(datemath.Monday, loc)
		e.Start, e.End = dm.NormalizeAllDay(e.Start, e.End)
	}
	return e, nil
}

// encodeEvent builds the calendar object resource for an event
func encodeEvent(uid string, fields models.EventFields, now time.Time) *ical.Calendar {
	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, productID)

	vevent := ical.NewEvent()
	vevent.Props.SetText(ical.PropUID, uid)
	vevent.Props.SetText(ical.PropSummary, fields.Title)

	if fields.Notes != "" {
		vevent.Props.SetText(ical.PropDescription, fields.Notes)
	}
	if fields.Location != "" {
		vevent.Props.SetText(ical.PropLocation, fields.Location)
	}

	if fields.IsAllDay {
		dm := datemath.New(datemath.Monday, fields.Start.Location())
		start, end := dm.NormalizeAllDay(fields.Start, fields.End)
		vevent.Props.SetDate(ical.PropDateTimeStart, start)
		// DTEND of a DATE event is exclusive
		vevent.Props.SetDate(ical.PropDateTimeEnd, dm.AddDays(dm.StartOfDay(end), 1))
	} else {
		vevent.Props.SetDateTime(ical.PropDateTimeStart, fields.Start.UTC())
		vevent.Props.SetDateTime(ical.PropDateTimeEnd, fields.End.UTC())
	}

	if rule := fields.Recurrence.RRule(); rule != "" {
		prop := ical.NewProp(ical.PropRecurrenceRule)
		prop.Value = rule
		vevent.Props.Set(prop)
	}

	vevent.Props.SetDateTime(ical.PropDateTimeStamp, now.UTC())

	cal.Children = append(cal.Children, vevent.Component)
	return cal
}

// masterEvent returns the VEVENT without a RECURRENCE-ID
func masterEvent(cal *ical.Calendar) *ical.Component {
	for _, comp := range cal.Children {
		if comp.Name == ical.CompEvent && comp.Props.Get(ical.PropRecurrenceID) == nil {
			return comp
		}
	}
	return nil
}

// dropOverrides removes the overrides whose RECURRENCE-ID matches
func dropOverrides(cal *ical.Calendar, loc *time.Location, match func(time.Time) bool) {
	kept := cal.Children[:0]
	for _, comp := range cal.Children {
		if comp.Name == ical.CompEvent {
			if prop := comp.Props.Get(ical.PropRecurrenceID); prop != nil {
				if rid, err := prop.DateTime(loc); err == nil && match(rid) {
					continue
				}
			}
		}
		kept = append(kept, comp)
	}
	cal.Children = kept
}

// excludeOccurrence adds an EXDATE for the occurrence starting at start. It
// reports false when the object holds no recurring series.
func excludeOccurrence(cal *ical.Calendar, start time.Time, loc *time.Location) bool {
	master := masterEvent(cal)
	if master == nil || master.Props.Get(ical.PropRecurrenceRule) == nil {
		return false
	}

	prop := ical.NewProp(ical.PropExceptionDates)
	if dtstart := master.Props.Get(ical.PropDateTimeStart); dtstart != nil &&
		dtstart.Params.Get(ical.ParamValue) == string(ical.ValueDate) {
		prop.SetDate(start.In(loc))
	} else {
		prop.SetDateTime(start.UTC())
	}
	master.Props.Add(prop)

	dropOverrides(cal, loc, start.Equal)
	return true
}

// endSeriesBefore limits the series so that it stops before start and drops
// the overrides from start on. It reports false when start is the first
// occurrence or the object holds no recurring series.
func endSeriesBefore(cal *ical.Calendar, start time.Time, loc *time.Location) (bool, error) {
	master := masterEvent(cal)
	if master == nil {
		return false, nil
	}
	rule := master.Props.Get(ical.PropRecurrenceRule)
	if rule == nil {
		return false, nil
	}
	dtstart, err := master.Props.DateTime(ical.PropDateTimeStart, loc)
	if err != nil {
		return false, fmt.Errorf("invalid DTSTART: %w", err)
	}
	if !start.After(dtstart) {
		return false, nil
	}

	cut, err := recurrence.EndBefore(rule.Value, start)
	if err != nil {
		return false, err
	}
	rule.Value = cut

	dropOverrides(cal, loc, func(rid time.Time) bool { return !rid.Before(start) })
	return true, nil
}
