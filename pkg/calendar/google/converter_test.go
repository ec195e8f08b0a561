package google

import (
	"testing"
	"time"

	"google.golang.org/api/calendar/v3"

	"github.com/venkytv/calendar-grid/internal/models"
)

func TestParseEventTime(t *testing.T) {
	tests := []struct {
		name       string
		eventTime  *calendar.EventDateTime
		wantErr    bool
		wantAllDay bool
		expectHour int
		expectDay  int
	}{
		{
			name: "DateTime with timezone",
			eventTime: &calendar.EventDateTime{
				DateTime: "2025-10-27T14:00:00-07:00",
			},
			expectHour: 14,
			expectDay:  27,
		},
		{
			name: "All-day event with date only",
			eventTime: &calendar.EventDateTime{
				Date: "2025-10-27",
			},
			wantAllDay: true,
			expectDay:  27,
		},
		{
			name: "All-day event with timezone keeps the date",
			eventTime: &calendar.EventDateTime{
				Date:     "2025-10-27",
				TimeZone: "Pacific/Kiritimati",
			},
			wantAllDay: true,
			expectDay:  27,
		},
		{
			name:      "Nil event time",
			eventTime: nil,
			wantErr:   true,
		},
		{
			name:      "Empty event time",
			eventTime: &calendar.EventDateTime{},
			wantErr:   true,
		},
		{
			name:      "Invalid date",
			eventTime: &calendar.EventDateTime{Date: "27/10/2025"},
			wantErr:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, allDay, err := parseEventTime(tt.eventTime, time.UTC)
			if (err != nil) != tt.wantErr {
				t.Errorf("parseEventTime() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if tt.wantErr {
				return
			}
			if allDay != tt.wantAllDay {
				t.Errorf("parseEventTime() allDay = %v, want %v", allDay, tt.wantAllDay)
			}
			if got.Day() != tt.expectDay {
				t.Errorf("parseEventTime() day = %v, want %v", got.Day(), tt.expectDay)
			}
			if tt.expectHour > 0 && got.Hour() != tt.expectHour {
				t.Errorf("parseEventTime() hour = %v, want %v", got.Hour(), tt.expectHour)
			}
		})
	}
}

func TestConvertEvent(t *testing.T) {
	item := &calendar.Event{
		Id:               "abc_20251027T210000Z",
		Summary:          "Standup",
		Description:      "Daily",
		Location:         "Room 4",
		RecurringEventId: "abc",
		Start:            &calendar.EventDateTime{DateTime: "2025-10-27T14:00:00-07:00"},
		End:              &calendar.EventDateTime{DateTime: "2025-10-27T14:15:00-07:00"},
	}

	e, err := convertEvent(item, "work@example.com", time.UTC)
	if err != nil {
		t.Fatalf("convertEvent() unexpected error: %v", err)
	}
	if e.ID != item.Id || e.SeriesID != "abc" || e.CalendarID != "work@example.com" {
		t.Errorf("Unexpected identifiers %+v", e)
	}
	if e.Title != "Standup" || e.Notes != "Daily" || e.Location != "Room 4" {
		t.Errorf("Unexpected fields %+v", e)
	}
	if e.Duration() != 15*time.Minute || e.IsAllDay {
		t.Errorf("Unexpected span %v - %v", e.Start, e.End)
	}
}

func TestConvertAllDayEvent(t *testing.T) {
	item := &calendar.Event{
		Id:    "trip",
		Start: &calendar.EventDateTime{Date: "2025-03-07"},
		End:   &calendar.EventDateTime{Date: "2025-03-10"},
	}

	e, err := convertEvent(item, "home", time.UTC)
	if err != nil {
		t.Fatalf("convertEvent() unexpected error: %v", err)
	}
	if !e.IsAllDay {
		t.Fatal("Expected all-day event")
	}
	want := time.Date(2025, 3, 9, 23, 59, 59, 999999999, time.UTC)
	if !e.End.Equal(want) {
		t.Errorf("Expected exclusive end to become %v, got %v", want, e.End)
	}
}

func TestToGoogleEvent(t *testing.T) {
	timed := toGoogleEvent(models.EventFields{
		Title:      "Lunch",
		Start:      time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC),
		End:        time.Date(2025, 3, 10, 13, 0, 0, 0, time.UTC),
		Recurrence: models.RecurrenceMonthly,
	})
	if timed.Start.DateTime != "2025-03-10T12:00:00Z" || timed.End.DateTime != "2025-03-10T13:00:00Z" {
		t.Errorf("Unexpected times %+v %+v", timed.Start, timed.End)
	}
	if len(timed.Recurrence) != 1 || timed.Recurrence[0] != "RRULE:FREQ=MONTHLY" {
		t.Errorf("Unexpected recurrence %v", timed.Recurrence)
	}

	allDay := toGoogleEvent(models.EventFields{
		Title:    "Trip",
		Start:    time.Date(2025, 3, 7, 0, 0, 0, 0, time.UTC),
		End:      time.Date(2025, 3, 9, 23, 59, 59, 999999999, time.UTC),
		IsAllDay: true,
	})
	if allDay.Start.Date != "2025-03-07" || allDay.End.Date != "2025-03-10" {
		t.Errorf("Expected exclusive end date, got %s - %s", allDay.Start.Date, allDay.End.Date)
	}
	if allDay.Recurrence != nil {
		t.Errorf("Expected no recurrence, got %v", allDay.Recurrence)
	}
}

func TestToGoogleEvent_MidnightEndIsExclusive(t *testing.T) {
	fields := models.EventFields{
		Title:    "Holiday",
		Start:    time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC),
		End:      time.Date(2025, 3, 16, 0, 0, 0, 0, time.UTC),
		IsAllDay: true,
	}

	ev := toGoogleEvent(fields)
	if ev.Start.Date != "2025-03-14" || ev.End.Date != "2025-03-16" {
		t.Fatalf("Expected 2025-03-14 - 2025-03-16, got %s - %s", ev.Start.Date, ev.End.Date)
	}

	e, err := convertEvent(ev, "home", time.UTC)
	if err != nil {
		t.Fatalf("convertEvent() unexpected error: %v", err)
	}
	want := time.Date(2025, 3, 15, 23, 59, 59, 999999999, time.UTC)
	if !e.End.Equal(want) {
		t.Errorf("Expected end %v, got %v", want, e.End)
	}
}
