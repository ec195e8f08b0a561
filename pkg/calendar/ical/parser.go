package ical

import (
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"time"

	ics "github.com/arran4/golang-ical"

	"github.com/venkytv/calendar-grid/internal/models"
	"github.com/venkytv/calendar-grid/pkg/calendar/recurrence"
	"github.com/venkytv/calendar-grid/pkg/datemath"
)

const (
	propertyAppleColor ics.Property = "X-APPLE-CALENDAR-COLOR"

	dateFormat         = "20060102"
	timestampFormat    = "20060102T150405"
	timestampFormatUTC = "20060102T150405Z"
	defaultEventLength = time.Hour
)

// Feed is the content of one ICS document
type Feed struct {
	Name   string
	Color  string
	Series []recurrence.Series
}

// Parse reads an ICS document. Floating times and dates are interpreted in
// loc. Events that cannot be converted are skipped with a warning.
func Parse(r io.Reader, calendarID string, loc *time.Location, logger *slog.Logger) (*Feed, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if loc == nil {
		loc = time.Local
	}

	cal, err := ics.ParseCalendar(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse iCal data: %w", err)
	}

	feed := &Feed{}
	for _, p := range cal.CalendarProperties {
		switch ics.Property(p.IANAToken) {
		case ics.PropertyXWRCalName, ics.PropertyName:
			if feed.Name == "" {
				feed.Name = p.Value
			}
		case propertyAppleColor, ics.PropertyColor:
			if _, err := models.ParseHex(p.Value); err == nil {
				feed.Color = p.Value
			}
		}
	}

	masters := make(map[string]*recurrence.Series)
	var overrides []*ics.VEvent
	var order []string

	for _, event := range cal.Events() {
		if event.GetProperty(ics.ComponentPropertyRecurrenceId) != nil {
			overrides = append(overrides, event)
			continue
		}

		s, err := convertSeries(event, calendarID, loc)
		if err != nil {
			logger.Warn("Failed to convert event, skipping",
				"event_id", event.Id(),
				"calendar_id", calendarID,
				"error", err)
			continue
		}
		if _, dup := masters[s.Master.ID]; !dup {
			order = append(order, s.Master.ID)
		}
		masters[s.Master.ID] = s
	}

	for _, event := range overrides {
		uid := event.Id()
		s, ok := masters[uid]
		if !ok {
			logger.Debug("Ignoring override without master event",
				"event_id", uid,
				"calendar_id", calendarID)
			continue
		}
		recurrenceID, _, err := parseTimeProperty(event.GetProperty(ics.ComponentPropertyRecurrenceId), loc)
		if err != nil {
			logger.Warn("Invalid RECURRENCE-ID, skipping override",
				"event_id", uid,
				"error", err)
			continue
		}
		e, err := convertEvent(event, calendarID, loc)
		if err != nil {
			logger.Warn("Failed to convert override, skipping",
				"event_id", uid,
				"error", err)
			continue
		}
		s.Overrides = append(s.Overrides, recurrence.Override{RecurrenceID: recurrenceID, Event: *e})
	}

	for _, uid := range order {
		feed.Series = append(feed.Series, *masters[uid])
	}

	logger.Debug("Parsed iCal data",
		"calendar_id", calendarID,
		"series_count", len(feed.Series),
		"override_count", len(overrides))

	return feed, nil
}

func convertSeries(event *ics.VEvent, calendarID string, loc *time.Location) (*recurrence.Series, error) {
	e, err := convertEvent(event, calendarID, loc)
	if err != nil {
		return nil, err
	}

	s := &recurrence.Series{Master: *e}
	if p := event.GetProperty(ics.ComponentPropertyRrule); p != nil {
		s.Rule = p.Value
	}
	for _, p := range event.GetProperties(ics.ComponentPropertyExdate) {
		dates, err := parseTimeList(p, loc)
		if err != nil {
			return nil, fmt.Errorf("invalid EXDATE: %w", err)
		}
		s.ExDates = append(s.ExDates, dates...)
	}
	return s, nil
}

// convertEvent converts an ICS event to the internal model
func convertEvent(event *ics.VEvent, calendarID string, loc *time.Location) (*models.CalendarEvent, error) {
	uid := event.Id()
	if uid == "" {
		return nil, fmt.Errorf("event has no UID")
	}

	start, allDay, err := parseTimeProperty(event.GetProperty(ics.ComponentPropertyDtStart), loc)
	if err != nil {
		return nil, fmt.Errorf("invalid DTSTART: %w", err)
	}

	var end time.Time
	if p := event.GetProperty(ics.ComponentPropertyDtEnd); p != nil {
		end, _, err = parseTimeProperty(p, loc)
		if err != nil {
			return nil, fmt.Errorf("invalid DTEND: %w", err)
		}
	} else if !allDay {
		end = start.Add(defaultEventLength)
	}

	e := &models.CalendarEvent{
		ID:         uid,
		Title:      propertyValue(event, ics.ComponentPropertySummary),
		Start:      start,
		End:        end,
		IsAllDay:   allDay,
		CalendarID: calendarID,
		Location:   propertyValue(event, ics.ComponentPropertyLocation),
		Notes:      propertyValue(event, ics.ComponentPropertyDescription),
	}

	if allDay {
		cal := datemath.New(datemath.Monday, loc)
		e.Start, e.End = cal.NormalizeAllDay(start, end)
	}

	return e, nil
}

func propertyValue(event *ics.VEvent, prop ics.ComponentProperty) string {
	if p := event.GetProperty(prop); p != nil {
		return p.Value
	}
	return ""
}

// parseTimeProperty parses a DATE or DATE-TIME value. UTC values keep their
// zone, TZID values use that zone and floating values use loc.
func parseTimeProperty(p *ics.IANAProperty, loc *time.Location) (time.Time, bool, error) {
	if p == nil {
		return time.Time{}, false, fmt.Errorf("property missing")
	}
	zone, err := propertyLocation(p, loc)
	if err != nil {
		return time.Time{}, false, err
	}
	return parseTimeValue(p.Value, isDateValue(p), zone)
}

func parseTimeList(p *ics.IANAProperty, loc *time.Location) ([]time.Time, error) {
	zone, err := propertyLocation(p, loc)
	if err != nil {
		return nil, err
	}
	var out []time.Time
	for _, v := range strings.Split(p.Value, ",") {
		t, _, err := parseTimeValue(strings.TrimSpace(v), isDateValue(p), zone)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

func propertyLocation(p *ics.IANAProperty, loc *time.Location) (*time.Location, error) {
	tzid, ok := p.ICalParameters[string(ics.ParameterTzid)]
	if !ok || len(tzid) == 0 {
		return loc, nil
	}
	zone, err := time.LoadLocation(tzid[0])
	if err != nil {
		return nil, fmt.Errorf("unknown TZID %q: %w", tzid[0], err)
	}
	return zone, nil
}

func isDateValue(p *ics.IANAProperty) bool {
	v := p.ICalParameters[string(ics.ParameterValue)]
	return len(v) > 0 && strings.EqualFold(v[0], string(ics.ValueDataTypeDate))
}

func parseTimeValue(v string, date bool, loc *time.Location) (time.Time, bool, error) {
	switch {
	case date || len(v) == len(dateFormat):
		t, err := time.ParseInLocation(dateFormat, v, loc)
		return t, true, err
	case strings.HasSuffix(v, "Z"):
		t, err := time.ParseInLocation(timestampFormatUTC, v, time.UTC)
		return t, false, err
	default:
		t, err := time.ParseInLocation(timestampFormat, v, loc)
		return t, false, err
	}
}

// Encode writes events as an ICS document named name
func Encode(w io.Writer, name string, events []*models.CalendarEvent) error {
	cal := ics.NewCalendar()
	cal.SetMethod(ics.MethodPublish)
	if name != "" {
		cal.SetXWRCalName(name)
	}

	sorted := make([]*models.CalendarEvent, len(events))
	copy(sorted, events)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Start.Before(sorted[j].Start)
	})

	for _, e := range sorted {
		event := ics.NewEvent(e.ID)
		event.SetDtStampTime(time.Now())
		if e.IsAllDay {
			dm := datemath.New(datemath.Monday, e.Start.Location())
			event.SetAllDayStartAt(e.Start)
			// DTEND of a DATE event is exclusive
			event.SetAllDayEndAt(dm.AddDays(dm.StartOfDay(e.End), 1))
		} else {
			event.SetStartAt(e.Start)
			event.SetEndAt(e.End)
		}
		event.SetSummary(e.Title)
		if e.Location != "" {
			event.SetLocation(e.Location)
		}
		if e.Notes != "" {
			event.SetDescription(e.Notes)
		}
		cal.AddVEvent(event)
	}

	if err := cal.SerializeTo(w); err != nil {
		return fmt.Errorf("failed to serialize calendar: %w", err)
	}
	return nil
}
