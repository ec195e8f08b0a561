package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/venkytv/calendar-grid/internal/models"
	"github.com/venkytv/calendar-grid/pkg/datemath"
	"github.com/venkytv/calendar-grid/pkg/grid"
	"github.com/venkytv/calendar-grid/pkg/placement"
	"github.com/venkytv/calendar-grid/pkg/refresh"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Underline(true)
	dayStyle     = lipgloss.NewStyle().Bold(true)
	todayStyle   = lipgloss.NewStyle().Bold(true).Reverse(true)
	weekendStyle = lipgloss.NewStyle().Faint(true)
	labelStyle   = lipgloss.NewStyle().Width(12)
	bannerStyle  = lipgloss.NewStyle().Italic(true)
)

// renderer prints snapshots as plain text lists of days
type renderer struct {
	cal             datemath.Calendar
	colors          placement.ColorLookup
	showWeekNumbers bool
}

func (r *renderer) title(snap refresh.Snapshot) string {
	switch snap.View {
	case grid.MonthView:
		return snap.Focus.Format("January 2006")
	case grid.YearView:
		return snap.Focus.Format("2006")
	default:
		start := r.cal.StartOfWeek(snap.Focus)
		end := r.cal.AddDays(start, 6)
		span := start.Format("2 Jan") + " - " + end.Format("2 Jan 2006")
		if r.showWeekNumbers {
			return fmt.Sprintf("Week %d, %s", r.cal.WeekNumber(start), span)
		}
		return span
	}
}

func swatch(c models.RGB) lipgloss.Style {
	return lipgloss.NewStyle().Foreground(lipgloss.Color(fmt.Sprintf("#%02X%02X%02X", c.R, c.G, c.B)))
}

// Render writes the snapshot. Week views list every day; month and year
// views only list days that have events.
func (r *renderer) Render(w io.Writer, snap refresh.Snapshot) error {
	placer := placement.NewPlacer(r.cal, r.colors)

	var b strings.Builder
	b.WriteString(titleStyle.Render(r.title(snap)))
	b.WriteString("\n")

	for _, cell := range snap.Cells {
		if cell.Blank {
			continue
		}

		placements := placer.Layout(snap.Events, cell.Date)
		if snap.View != grid.WeekView && len(placements) == 0 {
			continue
		}

		style := dayStyle
		switch {
		case cell.IsToday:
			style = todayStyle
		case cell.IsWeekend:
			style = weekendStyle
		}
		b.WriteString("\n")
		b.WriteString(style.Render(cell.Date.Format("Mon 2 Jan")))
		b.WriteString("\n")

		if len(placements) == 0 {
			b.WriteString("  -\n")
			continue
		}
		for _, p := range placements {
			b.WriteString("  ")
			b.WriteString(swatch(p.Decision.Color).Render("●"))
			b.WriteString(" ")
			label := p.Decision.Label
			if p.Decision.Kind == placement.AllDay {
				label = "all day"
			}
			b.WriteString(labelStyle.Render(label))
			title := p.Decision.Title
			if p.Decision.Mode == placement.Banner {
				title = bannerStyle.Render(title)
			}
			b.WriteString(title)
			b.WriteString("\n")
		}
	}

	_, err := io.WriteString(w, b.String())
	return err
}
