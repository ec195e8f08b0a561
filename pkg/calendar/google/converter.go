package google

import (
	"fmt"
	"time"

	"google.golang.org/api/calendar/v3"

	"github.com/venkytv/calendar-grid/internal/models"
	"github.com/venkytv/calendar-grid/pkg/datemath"
)

const dateLayout = "2006-01-02"

// convertEvent converts a Google Calendar event to the internal model
func convertEvent(item *calendar.Event, calendarID string, loc *time.Location) (*models.CalendarEvent, error) {
	start, allDay, err := parseEventTime(item.Start, loc)
	if err != nil {
		return nil, fmt.Errorf("failed to parse start time: %w", err)
	}
	end, _, err := parseEventTime(item.End, loc)
	if err != nil {
		return nil, fmt.Errorf("failed to parse end time: %w", err)
	}

	event := &models.CalendarEvent{
		ID:         item.Id,
		Title:      item.Summary,
		Start:      start,
		End:        end,
		IsAllDay:   allDay,
		CalendarID: calendarID,
		Location:   item.Location,
		Notes:      item.Description,
		SeriesID:   item.RecurringEventId,
	}

	if allDay {
		dm := datemath.New(datemath.Monday, loc)
		event.Start, event.End = dm.NormalizeAllDay(start, end)
	}

	return event, nil
}

// parseEventTime parses Google Calendar event time (handles both dateTime and date fields)
func parseEventTime(eventTime *calendar.EventDateTime, loc *time.Location) (time.Time, bool, error) {
	if eventTime == nil {
		return time.Time{}, false, fmt.Errorf("event time is nil")
	}

	if eventTime.DateTime != "" {
		t, err := time.Parse(time.RFC3339, eventTime.DateTime)
		if err != nil {
			return time.Time{}, false, fmt.Errorf("failed to parse datetime: %w", err)
		}
		return t, false, nil
	}

	if eventTime.Date != "" {
		zone := loc
		if eventTime.TimeZone != "" {
			if l, err := time.LoadLocation(eventTime.TimeZone); err == nil {
				zone = l
			}
		}
		t, err := time.ParseInLocation(dateLayout, eventTime.Date, zone)
		if err != nil {
			return time.Time{}, false, fmt.Errorf("failed to parse date: %w", err)
		}
		// Dates name calendar days, so keep the wall date in the display zone
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc), true, nil
	}

	return time.Time{}, false, fmt.Errorf("no datetime or date field found")
}

// toGoogleEvent builds the request body for an insert or patch
func toGoogleEvent(fields models.EventFields) *calendar.Event {
	ev := &calendar.Event{
		Summary:     fields.Title,
		Description: fields.Notes,
		Location:    fields.Location,
	}

	if fields.IsAllDay {
		dm := datemath.New(datemath.Monday, fields.Start.Location())
		start, end := dm.NormalizeAllDay(fields.Start, fields.End)
		// The end date is exclusive
		ev.Start = &calendar.EventDateTime{Date: start.Format(dateLayout)}
		ev.End = &calendar.EventDateTime{Date: dm.AddDays(dm.StartOfDay(end), 1).Format(dateLayout)}
	} else {
		ev.Start = &calendar.EventDateTime{DateTime: fields.Start.Format(time.RFC3339)}
		ev.End = &calendar.EventDateTime{DateTime: fields.End.Format(time.RFC3339)}
	}

	if rule := fields.Recurrence.RRule(); rule != "" {
		ev.Recurrence = []string{"RRULE:" + rule}
	}

	return ev
}
