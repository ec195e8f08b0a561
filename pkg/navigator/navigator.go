// Package navigator holds the focused date of the calendar and moves it.
package navigator

import (
	"log/slog"
	"sync"
	"time"

	"github.com/venkytv/calendar-grid/internal/models"
	"github.com/venkytv/calendar-grid/pkg/datemath"
	"github.com/venkytv/calendar-grid/pkg/grid"
)

// Listener receives focus changes in generation order. It is called outside
// the navigator's state lock, so it may read the focus, but it must not move
// the navigator and must not block for long.
type Listener func(models.FocusChange)

// Options configures a Navigator
type Options struct {
	// Calendar returns the current calendar snapshot. It is read once per
	// operation so a week-start change applies to the next move.
	Calendar func() datemath.Calendar
	Now      func() time.Time
	View     grid.ViewKind
	Logger   *slog.Logger
}

// Navigator owns the focus date. All mutations are serialized.
type Navigator struct {
	mu         sync.Mutex
	focus      time.Time
	view       grid.ViewKind
	generation uint64

	// notifyMu is taken before mu is released so deliveries keep the
	// order of generations
	notifyMu sync.Mutex

	calendar  func() datemath.Calendar
	now       func() time.Time
	listeners map[int]Listener
	nextID    int
	logger    *slog.Logger
}

// New creates a Navigator focused on the start of the current week
func New(opts Options) *Navigator {
	if opts.Calendar == nil {
		opts.Calendar = func() datemath.Calendar { return datemath.New(datemath.Monday, nil) }
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	n := &Navigator{
		view:      opts.View,
		calendar:  opts.Calendar,
		now:       opts.Now,
		listeners: make(map[int]Listener),
		logger:    opts.Logger,
	}
	n.focus = n.calendar().StartOfWeek(n.now())
	return n
}

// Focus returns the focused date
func (n *Navigator) Focus() time.Time {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.focus
}

// View returns the active view
func (n *Navigator) View() grid.ViewKind {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.view
}

// Generation returns the number of focus changes so far
func (n *Navigator) Generation() uint64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.generation
}

// GoNext moves the focus forward by one unit
func (n *Navigator) GoNext(unit datemath.Unit) {
	n.move(func(cal datemath.Calendar, focus time.Time, _ grid.ViewKind) time.Time {
		return cal.Add(focus, unit, 1)
	})
}

// GoPrevious moves the focus back by one unit
func (n *Navigator) GoPrevious(unit datemath.Unit) {
	n.move(func(cal datemath.Calendar, focus time.Time, _ grid.ViewKind) time.Time {
		return cal.Add(focus, unit, -1)
	})
}

// Next moves forward by the unit of the active view
func (n *Navigator) Next() {
	n.move(func(cal datemath.Calendar, focus time.Time, view grid.ViewKind) time.Time {
		return cal.Add(focus, view.Unit(), 1)
	})
}

// Previous moves back by the unit of the active view
func (n *Navigator) Previous() {
	n.move(func(cal datemath.Calendar, focus time.Time, view grid.ViewKind) time.Time {
		return cal.Add(focus, view.Unit(), -1)
	})
}

// GoToToday focuses the start of the current week
func (n *Navigator) GoToToday() {
	n.move(func(cal datemath.Calendar, _ time.Time, _ grid.ViewKind) time.Time {
		return cal.StartOfWeek(n.now())
	})
}

// GoToDate focuses d. Week views snap to the start of d's week; month and
// year views keep d as given.
func (n *Navigator) GoToDate(d time.Time) {
	n.move(func(cal datemath.Calendar, _ time.Time, view grid.ViewKind) time.Time {
		if view == grid.WeekView {
			return cal.StartOfWeek(d)
		}
		return d
	})
}

// SetView switches the active view without moving the focus
func (n *Navigator) SetView(view grid.ViewKind) {
	n.mu.Lock()
	if n.view == view {
		n.mu.Unlock()
		return
	}
	n.view = view
	change := n.changeLocked(n.calendar(), n.focus)
	listeners := n.snapshotListenersLocked()
	n.notifyMu.Lock()
	n.mu.Unlock()
	defer n.notifyMu.Unlock()

	n.logger.Debug("View changed", "view", view.String(), "generation", change.Generation)
	notify(listeners, change)
}

func (n *Navigator) move(step func(datemath.Calendar, time.Time, grid.ViewKind) time.Time) {
	cal := n.calendar()

	n.mu.Lock()
	previous := n.focus
	n.focus = step(cal, n.focus, n.view)
	change := n.changeLocked(cal, previous)
	listeners := n.snapshotListenersLocked()
	n.notifyMu.Lock()
	n.mu.Unlock()
	defer n.notifyMu.Unlock()

	n.logger.Debug("Focus moved",
		"from", previous.Format(time.DateOnly),
		"to", change.Current.Format(time.DateOnly),
		"view", change.View,
		"generation", change.Generation)
	notify(listeners, change)
}

func (n *Navigator) changeLocked(cal datemath.Calendar, previous time.Time) models.FocusChange {
	n.generation++
	r := grid.NewBuilder(cal, n.now).Range(n.view, n.focus)
	return models.FocusChange{
		Generation: n.generation,
		View:       n.view.String(),
		Previous:   previous,
		Current:    n.focus,
		RangeStart: r.Start,
		RangeEnd:   r.End,
	}
}

func (n *Navigator) snapshotListenersLocked() []Listener {
	out := make([]Listener, 0, len(n.listeners))
	for _, l := range n.listeners {
		out = append(out, l)
	}
	return out
}

func notify(listeners []Listener, change models.FocusChange) {
	for _, l := range listeners {
		l(change)
	}
}

// Subscribe registers a listener for focus changes and returns a function
// that removes it
func (n *Navigator) Subscribe(l Listener) func() {
	n.mu.Lock()
	defer n.mu.Unlock()
	id := n.nextID
	n.nextID++
	n.listeners[id] = l
	return func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		delete(n.listeners, id)
	}
}

// Builder returns a grid builder for the current calendar snapshot
func (n *Navigator) Builder() *grid.Builder {
	return grid.NewBuilder(n.calendar(), n.now)
}

// CurrentGrid returns the cells of view around the focused date. Grids are
// derived fresh on every call.
func (n *Navigator) CurrentGrid(view grid.ViewKind) []grid.DayCell {
	return n.Builder().Cells(view, n.Focus())
}

// VisibleRange returns the span covered by the active view
func (n *Navigator) VisibleRange() models.DateRange {
	n.mu.Lock()
	focus, view := n.focus, n.view
	n.mu.Unlock()
	return n.Builder().Range(view, focus)
}
