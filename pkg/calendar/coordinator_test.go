package calendar

import (
	"log/slog"
	"testing"
	"time"

	"github.com/venkytv/calendar-grid/internal/models"
)

func TestDefaultCoordinatorConfig(t *testing.T) {
	config := DefaultCoordinatorConfig()

	if !config.DeduplicationEnabled {
		t.Error("Expected deduplication to be enabled by default")
	}
	if config.DeduplicationWindow != 5*time.Minute {
		t.Errorf("Expected default deduplication window to be 5 minutes, got %v", config.DeduplicationWindow)
	}
}

func TestCoordinateEventsNoDuplicates(t *testing.T) {
	coordinator := NewEventCoordinator(nil, slog.Default())

	base := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	events := []*models.CalendarEvent{
		{ID: "event2", Title: "Design review", Start: base.Add(3 * time.Hour), CalendarID: "work"},
		{ID: "event1", Title: "Budget", Start: base.Add(1 * time.Hour), CalendarID: "home"},
	}

	result := coordinator.CoordinateEvents(events, nil)
	if len(result) != 2 {
		t.Fatalf("Expected 2 events, got %d", len(result))
	}
	if result[0].ID != "event1" {
		t.Errorf("Expected events sorted by start, got %s first", result[0].ID)
	}
	// Input order is untouched
	if events[0].ID != "event2" {
		t.Error("CoordinateEvents must not reorder its input")
	}
}

func TestCoordinateEventsWithDuplicates(t *testing.T) {
	coordinator := NewEventCoordinator(nil, slog.Default())

	base := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	events := []*models.CalendarEvent{
		{ID: "feed-1", Title: "Quarterly Planning", Start: base.Add(2 * time.Minute), CalendarID: "feed"},
		{ID: "work-1", Title: "quarterly planning", Start: base, CalendarID: "work", Notes: "agenda"},
		{ID: "home-1", Title: "Dinner", Start: base.Add(10 * time.Hour), CalendarID: "home"},
	}
	priorities := map[string]int{"work": 1, "feed": 2}

	result := coordinator.CoordinateEvents(events, priorities)
	if len(result) != 2 {
		t.Fatalf("Expected 2 events after deduplication, got %d", len(result))
	}
	if result[0].ID != "work-1" {
		t.Errorf("Expected the higher priority calendar to win, got %s", result[0].ID)
	}
	if result[0].Notes != "agenda" {
		t.Errorf("Expected notes to be kept, got %q", result[0].Notes)
	}
}

func TestCoordinateEventsSameCalendarKept(t *testing.T) {
	coordinator := NewEventCoordinator(nil, slog.Default())

	base := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	events := []*models.CalendarEvent{
		{ID: "a", Title: "Yoga", Start: base, CalendarID: "home"},
		{ID: "b", Title: "Yoga", Start: base, CalendarID: "home"},
	}

	if result := coordinator.CoordinateEvents(events, nil); len(result) != 2 {
		t.Errorf("Events of the same calendar must not be merged, got %d", len(result))
	}
}

func TestCoordinateEventsOutsideWindow(t *testing.T) {
	coordinator := NewEventCoordinator(nil, slog.Default())

	base := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	events := []*models.CalendarEvent{
		{ID: "a", Title: "Dentist", Start: base, CalendarID: "work"},
		{ID: "b", Title: "Dentist", Start: base.Add(time.Hour), CalendarID: "home"},
	}

	if result := coordinator.CoordinateEvents(events, nil); len(result) != 2 {
		t.Errorf("Expected events an hour apart to stay separate, got %d", len(result))
	}
}

func TestCoordinateEventsDisabled(t *testing.T) {
	config := &CoordinatorConfig{DeduplicationEnabled: false, DeduplicationWindow: 5 * time.Minute}
	coordinator := NewEventCoordinator(config, slog.Default())

	base := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	events := []*models.CalendarEvent{
		{ID: "a", Title: "Dentist", Start: base, CalendarID: "work"},
		{ID: "b", Title: "Dentist", Start: base, CalendarID: "home"},
	}
	if result := coordinator.CoordinateEvents(events, nil); len(result) != 2 {
		t.Errorf("Expected no deduplication, got %d events", len(result))
	}
}

func TestAreTitlesSimilar(t *testing.T) {
	coordinator := NewEventCoordinator(nil, slog.Default())

	tests := []struct {
		a, b     string
		expected bool
	}{
		{"Dentist", "dentist", true},
		{"Project Kickoff", "Kickoff project", true},
		{"Team Meeting", "Board Meeting", false},
		{"Lunch", "", false},
		{"Sync", "Standup", false},
	}

	for _, tt := range tests {
		if got := coordinator.areTitlesSimilar(tt.a, tt.b); got != tt.expected {
			t.Errorf("areTitlesSimilar(%q, %q) = %v, expected %v", tt.a, tt.b, got, tt.expected)
		}
	}
}

func TestAllDayAndTimedNotMerged(t *testing.T) {
	coordinator := NewEventCoordinator(nil, slog.Default())

	day := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	events := []*models.CalendarEvent{
		{ID: "a", Title: "Conference", Start: day, IsAllDay: true, CalendarID: "work"},
		{ID: "b", Title: "Conference", Start: day, CalendarID: "home"},
	}
	if result := coordinator.CoordinateEvents(events, nil); len(result) != 2 {
		t.Errorf("Expected all-day and timed events to stay separate, got %d", len(result))
	}
}

func TestGetCoordinationStats(t *testing.T) {
	coordinator := NewEventCoordinator(nil, slog.Default())

	original := []*models.CalendarEvent{
		{ID: "1", CalendarID: "work"},
		{ID: "2", CalendarID: "work"},
		{ID: "3", CalendarID: "home"},
	}
	stats := coordinator.GetCoordinationStats(original, original[:2])

	if stats.DuplicatesRemoved != 1 || stats.CalendarCounts["work"] != 2 {
		t.Errorf("Unexpected stats: %+v", stats)
	}
}
