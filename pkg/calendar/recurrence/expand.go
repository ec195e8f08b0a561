// Package recurrence expands recurring events into the occurrences that fall
// inside a query range.
package recurrence

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/teambition/rrule-go"

	"github.com/venkytv/calendar-grid/internal/models"
	"github.com/venkytv/calendar-grid/pkg/datemath"
)

// DefaultMaxOccurrences caps the expansion of a single series
const DefaultMaxOccurrences = 5000

const occurrenceSep = "#"

// Series is a master event with an optional recurrence rule
type Series struct {
	// Master holds the first occurrence; its ID is the series UID
	Master models.CalendarEvent
	// Rule is an RRULE value such as "FREQ=WEEKLY;BYDAY=MO"; empty for a
	// single event
	Rule    string
	ExDates []time.Time
	// Overrides replace individual occurrences, keyed by RECURRENCE-ID
	Overrides []Override
}

// Override is a modified instance of a recurring event
type Override struct {
	RecurrenceID time.Time
	Event        models.CalendarEvent
}

// IsRecurring reports whether the series has a rule
func (s *Series) IsRecurring() bool {
	return s.Rule != ""
}

// OccurrenceID returns the id of the occurrence of uid starting at start
func OccurrenceID(uid string, start time.Time) string {
	return uid + occurrenceSep + start.UTC().Format("20060102T150405Z")
}

// SplitOccurrenceID returns the series uid of an occurrence id. ok is false
// when id does not name an occurrence.
func SplitOccurrenceID(id string) (uid string, start time.Time, ok bool) {
	i := strings.LastIndex(id, occurrenceSep)
	if i < 0 {
		return id, time.Time{}, false
	}
	t, err := time.Parse("20060102T150405Z", id[i+1:])
	if err != nil {
		return id, time.Time{}, false
	}
	return id[:i], t, true
}

// EndBefore returns rule limited so that no occurrence starts at or after t.
// COUNT is dropped because UNTIL takes its place.
func EndBefore(rule string, t time.Time) (string, error) {
	opt, err := rrule.StrToROption(strings.TrimPrefix(strings.TrimSpace(rule), "RRULE:"))
	if err != nil {
		return "", fmt.Errorf("failed to parse rule %q: %w", rule, err)
	}
	until := t.Add(-time.Second)
	if opt.Until.IsZero() || opt.Until.After(until) {
		opt.Until = until
	}
	opt.Count = 0
	return opt.RRuleString(), nil
}

// Expand returns the occurrences of s overlapping r, at most max of them
// (DefaultMaxOccurrences when max <= 0). truncated is true when the cap was hit.
func Expand(s Series, r models.DateRange, max int) (occurrences []*models.CalendarEvent, truncated bool, err error) {
	if r.End.Before(r.Start) {
		return nil, false, models.ErrInvalidDateRange
	}
	if max <= 0 {
		max = DefaultMaxOccurrences
	}

	if !s.IsRecurring() {
		e := s.Master
		if e.Overlaps(r) {
			return []*models.CalendarEvent{&e}, false, nil
		}
		return nil, false, nil
	}

	rule, err := rrule.StrToRRule(strings.TrimPrefix(strings.TrimSpace(s.Rule), "RRULE:"))
	if err != nil {
		return nil, false, fmt.Errorf("failed to parse rule %q: %w", s.Rule, err)
	}

	loc := s.Master.Start.Location()
	rule.DTStart(s.Master.Start)

	var set rrule.Set
	set.RRule(rule)
	for _, ex := range s.ExDates {
		set.ExDate(ex.In(loc))
	}

	// Occurrences starting before the range can still reach into it
	duration := s.Master.End.Sub(s.Master.Start)
	after := r.Start.Add(-duration).In(loc)
	starts := set.Between(after, r.End.In(loc), true)
	if len(starts) > max {
		starts = starts[:max]
		truncated = true
	}

	cal := datemath.New(datemath.Monday, loc)
	allDayDays := cal.DaysBetween(s.Master.Start, s.Master.End)

	for _, start := range starts {
		occ := s.Master
		occ.Start = start
		if s.Master.IsAllDay {
			occ.Start = cal.StartOfDay(start)
			occ.End = cal.EndOfDay(cal.AddDays(occ.Start, allDayDays))
		} else {
			occ.End = start.Add(duration)
		}

		if o, ok := findOverride(s.Overrides, start); ok {
			occ = o.Event
		}
		occ.ID = OccurrenceID(s.Master.ID, start)
		occ.SeriesID = s.Master.ID

		if occ.Overlaps(r) {
			e := occ
			occurrences = append(occurrences, &e)
		}
	}

	return occurrences, truncated, nil
}

func findOverride(overrides []Override, start time.Time) (Override, bool) {
	for _, o := range overrides {
		if o.RecurrenceID.Equal(start) {
			return o, true
		}
	}
	return Override{}, false
}

// ExpandAll expands every series, skipping those with an invalid rule. The
// uids of skipped and truncated series are returned for logging.
func ExpandAll(series []Series, r models.DateRange, max int) ([]*models.CalendarEvent, []string, error) {
	if r.End.Before(r.Start) {
		return nil, nil, models.ErrInvalidDateRange
	}
	var (
		out      []*models.CalendarEvent
		problems []string
	)
	for _, s := range series {
		occ, truncated, err := Expand(s, r, max)
		if err != nil {
			if errors.Is(err, models.ErrInvalidDateRange) {
				return nil, nil, err
			}
			problems = append(problems, s.Master.ID)
			continue
		}
		if truncated {
			problems = append(problems, s.Master.ID)
		}
		out = append(out, occ...)
	}
	return out, problems, nil
}
