package local

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/venkytv/calendar-grid/internal/models"
	"github.com/venkytv/calendar-grid/pkg/calendar"
	"github.com/venkytv/calendar-grid/pkg/calendar/recurrence"
)

var week = models.DateRange{
	Start: time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC),
	End:   time.Date(2025, 3, 16, 23, 59, 59, 0, time.UTC),
}

func newTestStore(t *testing.T, ids ...string) *Store {
	t.Helper()
	s := NewStore()
	s.now = func() time.Time { return time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC) }
	err := s.Initialize(context.Background(), calendar.StoreConfig{
		Name:        "Laptop",
		Path:        filepath.Join(t.TempDir(), "db", "calendar.db"),
		CalendarIDs: ids,
		Location:    time.UTC,
	})
	if err != nil {
		t.Fatalf("Initialize() unexpected error: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore_InitializeRequiresPath(t *testing.T) {
	s := NewStore()
	if err := s.Initialize(context.Background(), calendar.StoreConfig{}); err == nil {
		t.Error("Expected error without a path")
	}
	if _, err := s.Calendars(context.Background()); err == nil {
		t.Error("Expected error when not initialized")
	}
}

func TestStore_DefaultCalendar(t *testing.T) {
	s := newTestStore(t)

	cals, err := s.Calendars(context.Background())
	if err != nil {
		t.Fatalf("Calendars() unexpected error: %v", err)
	}
	if len(cals) != 1 || cals[0].ID != DefaultCalendarID {
		t.Fatalf("Expected default calendar, got %+v", cals)
	}
	if !cals[0].Writable || !cals[0].Primary || cals[0].AccountName != "Laptop" {
		t.Errorf("Unexpected calendar %+v", cals[0])
	}
}

func TestStore_ConfiguredCalendars(t *testing.T) {
	s := newTestStore(t, "work", "home")
	ctx := context.Background()

	if err := s.EnsureCalendar(ctx, "work", "Renamed", "#FF0000"); err != nil {
		t.Fatalf("EnsureCalendar() unexpected error: %v", err)
	}

	cals, err := s.Calendars(ctx)
	if err != nil {
		t.Fatalf("Calendars() unexpected error: %v", err)
	}
	if len(cals) != 2 {
		t.Fatalf("Expected 2 calendars, got %d", len(cals))
	}
	if cals[0].ID != "home" || cals[1].ID != "work" || cals[1].Name != "work" {
		t.Errorf("Unexpected calendars %+v %+v", cals[0], cals[1])
	}
}

func TestStore_CreateAndQuery(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	created, err := s.CreateEvent(ctx, models.EventFields{
		Title:      "Dentist",
		Start:      time.Date(2025, 3, 12, 9, 0, 0, 0, time.UTC),
		End:        time.Date(2025, 3, 12, 10, 0, 0, 0, time.UTC),
		CalendarID: DefaultCalendarID,
		Location:   "Main Street",
	})
	if err != nil {
		t.Fatalf("CreateEvent() unexpected error: %v", err)
	}
	if created.ID == "" {
		t.Fatal("Expected an id to be assigned")
	}

	_, err = s.CreateEvent(ctx, models.EventFields{
		Title:      "Next week",
		Start:      time.Date(2025, 3, 20, 9, 0, 0, 0, time.UTC),
		End:        time.Date(2025, 3, 20, 10, 0, 0, 0, time.UTC),
		CalendarID: DefaultCalendarID,
	})
	if err != nil {
		t.Fatalf("CreateEvent() unexpected error: %v", err)
	}

	events, err := s.QueryEvents(ctx, week, []string{DefaultCalendarID})
	if err != nil {
		t.Fatalf("QueryEvents() unexpected error: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("Expected 1 event in range, got %d", len(events))
	}
	got := events[0]
	if got.ID != created.ID || got.Title != "Dentist" || got.Location != "Main Street" {
		t.Errorf("Unexpected event %+v", got)
	}
	if !got.Start.Equal(created.Start) || !got.End.Equal(created.End) {
		t.Errorf("Times not preserved: %v - %v", got.Start, got.End)
	}

	other, err := s.QueryEvents(ctx, week, []string{"elsewhere"})
	if err != nil || len(other) != 0 {
		t.Errorf("Expected no events for another calendar, got %d (%v)", len(other), err)
	}
}

func TestStore_AllDayEvent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.CreateEvent(ctx, models.EventFields{
		Title:      "Holiday",
		Start:      time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC),
		End:        time.Date(2025, 3, 16, 0, 0, 0, 0, time.UTC),
		IsAllDay:   true,
		CalendarID: DefaultCalendarID,
	})
	if err != nil {
		t.Fatalf("CreateEvent() unexpected error: %v", err)
	}

	events, err := s.QueryEvents(ctx, week, []string{DefaultCalendarID})
	if err != nil {
		t.Fatalf("QueryEvents() unexpected error: %v", err)
	}
	if len(events) != 1 || !events[0].IsAllDay {
		t.Fatalf("Expected one all-day event, got %+v", events)
	}
	wantEnd := time.Date(2025, 3, 16, 0, 0, 0, 0, time.UTC).Add(-time.Nanosecond)
	if !events[0].End.Equal(wantEnd) {
		t.Errorf("Expected exclusive end to be normalized to %v, got %v", wantEnd, events[0].End)
	}
}

func TestStore_RecurringEvent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	created, err := s.CreateEvent(ctx, models.EventFields{
		Title:      "Standup",
		Start:      time.Date(2025, 3, 3, 9, 0, 0, 0, time.UTC),
		End:        time.Date(2025, 3, 3, 9, 15, 0, 0, time.UTC),
		CalendarID: DefaultCalendarID,
		Recurrence: models.RecurrenceDaily,
	})
	if err != nil {
		t.Fatalf("CreateEvent() unexpected error: %v", err)
	}

	events, err := s.QueryEvents(ctx, week, []string{DefaultCalendarID})
	if err != nil {
		t.Fatalf("QueryEvents() unexpected error: %v", err)
	}
	if len(events) != 7 {
		t.Fatalf("Expected 7 daily occurrences, got %d", len(events))
	}
	if events[0].SeriesID != created.ID {
		t.Errorf("Expected series id %s, got %s", created.ID, events[0].SeriesID)
	}

	// deleting through an occurrence only excludes that occurrence
	removed := events[3]
	if err := s.DeleteEvent(ctx, removed.ID); err != nil {
		t.Fatalf("DeleteEvent() unexpected error: %v", err)
	}
	events, err = s.QueryEvents(ctx, week, []string{DefaultCalendarID})
	if err != nil {
		t.Fatalf("QueryEvents() unexpected error: %v", err)
	}
	if len(events) != 6 {
		t.Fatalf("Expected 6 remaining occurrences, got %d", len(events))
	}
	for _, e := range events {
		if e.ID == removed.ID {
			t.Errorf("Deleted occurrence %s still listed", removed.ID)
		}
	}

	if err := s.DeleteEvent(ctx, created.ID); err != nil {
		t.Fatalf("DeleteEvent() unexpected error: %v", err)
	}
	events, err = s.QueryEvents(ctx, week, []string{DefaultCalendarID})
	if err != nil || len(events) != 0 {
		t.Errorf("Expected series to be gone, got %d (%v)", len(events), err)
	}
}

func TestStore_UpdateOccurrenceSplitsSeries(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	fields := models.EventFields{
		Title:      "Standup",
		Start:      time.Date(2025, 3, 3, 9, 0, 0, 0, time.UTC),
		End:        time.Date(2025, 3, 3, 9, 15, 0, 0, time.UTC),
		CalendarID: DefaultCalendarID,
		Recurrence: models.RecurrenceDaily,
	}
	created, err := s.CreateEvent(ctx, fields)
	if err != nil {
		t.Fatalf("CreateEvent() unexpected error: %v", err)
	}
	events, err := s.QueryEvents(ctx, week, []string{DefaultCalendarID})
	if err != nil || len(events) != 7 {
		t.Fatalf("Expected 7 occurrences, got %d (%v)", len(events), err)
	}

	split := events[2]
	fields.Title = "Standup (late)"
	fields.Start = split.Start.Add(30 * time.Minute)
	fields.End = split.End.Add(30 * time.Minute)
	updated, err := s.UpdateEvent(ctx, split.ID, fields)
	if err != nil {
		t.Fatalf("UpdateEvent() unexpected error: %v", err)
	}
	if updated.ID == created.ID {
		t.Error("Expected the remainder of the series to get a new id")
	}

	events, err = s.QueryEvents(ctx, week, []string{DefaultCalendarID})
	if err != nil {
		t.Fatalf("QueryEvents() unexpected error: %v", err)
	}
	counts := map[string]int{}
	for _, e := range events {
		counts[e.Title]++
		if e.Title == "Standup" && !e.Start.Before(split.Start) {
			t.Errorf("Original series still has an occurrence at %s", e.Start)
		}
	}
	if counts["Standup"] != 2 || counts["Standup (late)"] != 5 {
		t.Errorf("Unexpected occurrence counts %v", counts)
	}

	// the first occurrence rewrites the whole series in place
	fields.Title = "Daily"
	fields.Start = time.Date(2025, 3, 3, 8, 0, 0, 0, time.UTC)
	fields.End = fields.Start.Add(15 * time.Minute)
	first := recurrence.OccurrenceID(created.ID, time.Date(2025, 3, 3, 9, 0, 0, 0, time.UTC))
	updated, err = s.UpdateEvent(ctx, first, fields)
	if err != nil {
		t.Fatalf("UpdateEvent() unexpected error: %v", err)
	}
	if updated.ID != created.ID {
		t.Errorf("Expected series id %s to be kept, got %s", created.ID, updated.ID)
	}
}

func TestStore_UpdateEvent(t *testing.T) {
	s := newTestStore(t, "work", "home")
	ctx := context.Background()

	fields := models.EventFields{
		Title:      "Review",
		Start:      time.Date(2025, 3, 11, 14, 0, 0, 0, time.UTC),
		End:        time.Date(2025, 3, 11, 15, 0, 0, 0, time.UTC),
		CalendarID: "work",
	}
	created, err := s.CreateEvent(ctx, fields)
	if err != nil {
		t.Fatalf("CreateEvent() unexpected error: %v", err)
	}

	fields.Title = "Review (moved)"
	fields.CalendarID = "home"
	updated, err := s.UpdateEvent(ctx, created.ID, fields)
	if err != nil {
		t.Fatalf("UpdateEvent() unexpected error: %v", err)
	}
	if updated.ID != created.ID || updated.CalendarID != "home" {
		t.Errorf("Unexpected updated event %+v", updated)
	}

	events, err := s.QueryEvents(ctx, week, []string{"home"})
	if err != nil || len(events) != 1 || events[0].Title != "Review (moved)" {
		t.Errorf("Expected moved event in home calendar, got %+v (%v)", events, err)
	}
}

func TestStore_Errors(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	valid := models.EventFields{
		Title:      "x",
		Start:      time.Date(2025, 3, 11, 14, 0, 0, 0, time.UTC),
		End:        time.Date(2025, 3, 11, 15, 0, 0, 0, time.UTC),
		CalendarID: "missing",
	}
	if _, err := s.CreateEvent(ctx, valid); !errors.Is(err, calendar.ErrCalendarNotFound) {
		t.Errorf("Expected ErrCalendarNotFound, got %v", err)
	}

	inverted := valid
	inverted.CalendarID = DefaultCalendarID
	inverted.End = inverted.Start.Add(-time.Hour)
	if _, err := s.CreateEvent(ctx, inverted); !errors.Is(err, models.ErrInvalidDateRange) {
		t.Errorf("Expected ErrInvalidDateRange, got %v", err)
	}

	valid.CalendarID = DefaultCalendarID
	if _, err := s.UpdateEvent(ctx, "nope", valid); !errors.Is(err, calendar.ErrEventNotFound) {
		t.Errorf("Expected ErrEventNotFound on update, got %v", err)
	}
	if err := s.DeleteEvent(ctx, "nope"); !errors.Is(err, calendar.ErrEventNotFound) {
		t.Errorf("Expected ErrEventNotFound on delete, got %v", err)
	}

	bad := models.DateRange{Start: week.End, End: week.Start}
	if _, err := s.QueryEvents(ctx, bad, []string{DefaultCalendarID}); !errors.Is(err, models.ErrInvalidDateRange) {
		t.Errorf("Expected ErrInvalidDateRange for inverted range, got %v", err)
	}
}

func TestStore_Persistence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "calendar.db")
	ctx := context.Background()
	cfg := calendar.StoreConfig{Path: path, Location: time.UTC}

	first := NewStore()
	if err := first.Initialize(ctx, cfg); err != nil {
		t.Fatalf("Initialize() unexpected error: %v", err)
	}
	_, err := first.CreateEvent(ctx, models.EventFields{
		Title:      "Kept",
		Start:      time.Date(2025, 3, 13, 8, 0, 0, 0, time.UTC),
		End:        time.Date(2025, 3, 13, 9, 0, 0, 0, time.UTC),
		CalendarID: DefaultCalendarID,
	})
	if err != nil {
		t.Fatalf("CreateEvent() unexpected error: %v", err)
	}
	first.Close()

	second := NewStore()
	if err := second.Initialize(ctx, cfg); err != nil {
		t.Fatalf("Initialize() unexpected error: %v", err)
	}
	defer second.Close()

	if err := second.IsHealthy(ctx); err != nil {
		t.Errorf("IsHealthy() unexpected error: %v", err)
	}
	events, err := second.QueryEvents(ctx, week, []string{DefaultCalendarID})
	if err != nil || len(events) != 1 || events[0].Title != "Kept" {
		t.Errorf("Expected event to survive reopen, got %+v (%v)", events, err)
	}
}
