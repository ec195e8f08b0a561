// Package placement decides how an event is drawn inside a day cell.
package placement

import (
	"sort"
	"time"

	"github.com/venkytv/calendar-grid/internal/models"
	"github.com/venkytv/calendar-grid/pkg/datemath"
)

// Mode is the shape an event takes in a day cell
type Mode int

const (
	// TimedRow is a row annotated with the event's clock range
	TimedRow Mode = iota
	// Banner spans the full width of the cell
	Banner
)

func (m Mode) String() string {
	if m == Banner {
		return "banner"
	}
	return "timed_row"
}

// Kind classifies an event by how its span relates to day boundaries
type Kind int

const (
	SingleDay Kind = iota
	AllDay
	MultiDay
)

func (k Kind) String() string {
	switch k {
	case AllDay:
		return "all_day"
	case MultiDay:
		return "multi_day"
	default:
		return "single_day"
	}
}

// Decision is the render instruction for one event on one day. An empty
// Label means no time annotation.
type Decision struct {
	Mode  Mode       `json:"mode"`
	Kind  Kind       `json:"kind"`
	Label string     `json:"label,omitempty"`
	Title string     `json:"title"`
	Color models.RGB `json:"color"`
}

// ColorLookup resolves the display colour of a calendar
type ColorLookup interface {
	ColorFor(calendarID string) models.RGB
}

// Placer maps (event, day) pairs to decisions
type Placer struct {
	cal    datemath.Calendar
	colors ColorLookup
}

// NewPlacer creates a Placer. colors may be nil, in which case the palette
// colour of the calendar id is used.
func NewPlacer(cal datemath.Calendar, colors ColorLookup) *Placer {
	return &Placer{cal: cal, colors: colors}
}

const clockLayout = "15:04"

// Classify returns the kind of the event
func (p *Placer) Classify(event *models.CalendarEvent) Kind {
	if event.IsAllDay {
		return AllDay
	}
	if p.cal.IsSameDay(event.Start, event.End) {
		return SingleDay
	}
	return MultiDay
}

// Occurs reports whether the event is drawn on day, which is any day in
// [startOfDay(start), startOfDay(end)]
func (p *Placer) Occurs(event *models.CalendarEvent, day time.Time) bool {
	d := p.cal.StartOfDay(day)
	return !d.Before(p.cal.StartOfDay(event.Start)) && !d.After(p.cal.StartOfDay(event.End))
}

// For returns the decision for event on day. The boolean is false when the
// event does not touch that day.
func (p *Placer) For(event *models.CalendarEvent, day time.Time) (Decision, bool) {
	if !p.Occurs(event, day) {
		return Decision{}, false
	}

	d := Decision{
		Kind:  p.Classify(event),
		Title: event.Title,
		Color: p.colorFor(event.CalendarID),
	}

	switch d.Kind {
	case SingleDay:
		d.Mode = TimedRow
		d.Label = p.clock(event.Start) + "-" + p.clock(event.End)
	case AllDay:
		d.Mode = Banner
	case MultiDay:
		d.Mode = Banner
		switch {
		case p.cal.IsSameDay(day, event.Start):
			d.Label = p.clock(event.Start) + "-24:00"
		case p.cal.IsSameDay(day, event.End):
			d.Label = "00:00-" + p.clock(event.End)
		}
	}
	return d, true
}

func (p *Placer) clock(t time.Time) string {
	if p.cal.Location != nil {
		t = t.In(p.cal.Location)
	}
	return t.Format(clockLayout)
}

func (p *Placer) colorFor(calendarID string) models.RGB {
	if p.colors != nil {
		if c := p.colors.ColorFor(calendarID); !c.IsZero() {
			return c
		}
	}
	return models.PaletteColor(calendarID)
}

// Placement pairs an event with its decision for a day
type Placement struct {
	Event    *models.CalendarEvent `json:"event"`
	Decision Decision              `json:"decision"`
}

// Layout places every event touching day. Banners come first, then timed
// rows; each group is ordered by start time and then title.
func (p *Placer) Layout(events []*models.CalendarEvent, day time.Time) []Placement {
	var out []Placement
	for _, e := range events {
		if d, ok := p.For(e, day); ok {
			out = append(out, Placement{Event: e, Decision: d})
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Decision.Mode != b.Decision.Mode {
			return a.Decision.Mode == Banner
		}
		if !a.Event.Start.Equal(b.Event.Start) {
			return a.Event.Start.Before(b.Event.Start)
		}
		return a.Event.Title < b.Event.Title
	})
	return out
}
