package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/venkytv/calendar-grid/internal/models"
	"github.com/venkytv/calendar-grid/pkg/datemath"
	"github.com/venkytv/calendar-grid/pkg/grid"
	"github.com/venkytv/calendar-grid/pkg/refresh"
)

func testSnapshot(view grid.ViewKind) refresh.Snapshot {
	cal := datemath.New(datemath.Monday, time.UTC)
	now := func() time.Time { return time.Date(2025, 3, 12, 10, 0, 0, 0, time.UTC) }
	b := grid.NewBuilder(cal, now)
	focus := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)

	return refresh.Snapshot{
		View:  view,
		Focus: focus,
		Range: b.Range(view, focus),
		Cells: b.Cells(view, focus),
		Events: []*models.CalendarEvent{
			{ID: "a", Title: "Dentist", CalendarID: "home",
				Start: time.Date(2025, 3, 12, 9, 0, 0, 0, time.UTC),
				End:   time.Date(2025, 3, 12, 10, 30, 0, 0, time.UTC)},
			{ID: "b", Title: "Conference", CalendarID: "work",
				Start: time.Date(2025, 3, 13, 14, 0, 0, 0, time.UTC),
				End:   time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC)},
		},
	}
}

func TestRender_WeekView(t *testing.T) {
	r := &renderer{cal: datemath.New(datemath.Monday, time.UTC), showWeekNumbers: true}

	var buf bytes.Buffer
	if err := r.Render(&buf, testSnapshot(grid.WeekView)); err != nil {
		t.Fatalf("Render() unexpected error: %v", err)
	}
	out := buf.String()

	for _, want := range []string{
		"Week 11, 10 Mar - 16 Mar 2025",
		"Mon 10 Mar",
		"Sun 16 Mar",
		"09:00-10:30",
		"Dentist",
		"14:00-24:00",
		"00:00-12:00",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected output to contain %q:\n%s", want, out)
		}
	}
	if strings.Count(out, "Conference") != 2 {
		t.Errorf("Expected the multi-day event on two days:\n%s", out)
	}
}

func TestRender_AllDayLabelOnlyForAllDayEvents(t *testing.T) {
	r := &renderer{cal: datemath.New(datemath.Monday, time.UTC)}

	snap := testSnapshot(grid.WeekView)
	snap.Events = []*models.CalendarEvent{
		{ID: "retreat", Title: "Retreat", CalendarID: "work",
			Start: time.Date(2025, 3, 10, 18, 0, 0, 0, time.UTC),
			End:   time.Date(2025, 3, 12, 10, 0, 0, 0, time.UTC)},
		{ID: "holiday", Title: "Holiday", CalendarID: "home", IsAllDay: true,
			Start: time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC),
			End:   time.Date(2025, 3, 15, 23, 59, 59, 999999999, time.UTC)},
	}

	var buf bytes.Buffer
	if err := r.Render(&buf, snap); err != nil {
		t.Fatalf("Render() unexpected error: %v", err)
	}
	out := buf.String()

	if strings.Count(out, "Retreat") != 3 {
		t.Errorf("Expected the retreat on three days:\n%s", out)
	}
	if strings.Count(out, "all day") != 1 {
		t.Errorf("Expected only the all-day event to be labelled all day:\n%s", out)
	}
}

func TestRender_MonthViewListsBusyDaysOnly(t *testing.T) {
	r := &renderer{cal: datemath.New(datemath.Monday, time.UTC)}

	var buf bytes.Buffer
	if err := r.Render(&buf, testSnapshot(grid.MonthView)); err != nil {
		t.Fatalf("Render() unexpected error: %v", err)
	}
	out := buf.String()

	if !strings.Contains(out, "March 2025") {
		t.Errorf("Expected month title:\n%s", out)
	}
	if strings.Contains(out, "Mon 10 Mar") {
		t.Errorf("Expected empty days to be skipped:\n%s", out)
	}
	if !strings.Contains(out, "Wed 12 Mar") || !strings.Contains(out, "Fri 14 Mar") {
		t.Errorf("Expected busy days to be listed:\n%s", out)
	}
}

func TestApplyCommands(t *testing.T) {
	app := newTestApp(t)

	start := app.navigator.Focus()
	if quit, err := app.apply("n"); quit || err != nil {
		t.Fatalf("apply(n) = %v, %v", quit, err)
	}
	if !app.navigator.Focus().Equal(start.AddDate(0, 0, 7)) {
		t.Errorf("Expected focus one week later, got %v", app.navigator.Focus())
	}

	if _, err := app.apply("g 2024-02-29"); err != nil {
		t.Fatalf("apply(g) unexpected error: %v", err)
	}
	if got := app.navigator.Focus(); !got.Equal(time.Date(2024, 2, 26, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("Expected start of week of Feb 29, got %v", got)
	}

	if _, err := app.apply("v month"); err != nil || app.navigator.View() != grid.MonthView {
		t.Errorf("Expected month view, got %v (%v)", app.navigator.View(), err)
	}

	if _, err := app.apply("w sunday"); err != nil || app.settings.WeekStartDay() != datemath.Sunday {
		t.Errorf("Expected Sunday week start, got %v (%v)", app.settings.WeekStartDay(), err)
	}

	for _, bad := range []string{"g", "g tomorrow", "v decade", "x"} {
		if _, err := app.apply(bad); err == nil {
			t.Errorf("Expected error for %q", bad)
		}
	}

	if quit, _ := app.apply("q"); !quit {
		t.Error("Expected q to quit")
	}
}
