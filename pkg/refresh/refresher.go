// Package refresh keeps the events of the visible grid up to date. Fetches
// are triggered by navigation and by a cron schedule; a fetch whose focus
// has been superseded by the time it completes is dropped.
package refresh

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/venkytv/calendar-grid/internal/models"
	"github.com/venkytv/calendar-grid/pkg/grid"
	"github.com/venkytv/calendar-grid/pkg/navigator"
	"github.com/venkytv/calendar-grid/pkg/placement"
)

// ErrStale is returned by Refresh when the focus moved during the fetch
var ErrStale = errors.New("refresh superseded by a newer focus")

// EventSource supplies the events of a range
type EventSource interface {
	QueryEvents(ctx context.Context, r models.DateRange) ([]*models.CalendarEvent, error)
}

// FocusPublisher receives every focus change
type FocusPublisher interface {
	PublishFocusChange(ctx context.Context, change *models.FocusChange) error
}

// Config holds the refresher configuration
type Config struct {
	// Schedule is a standard five-field cron expression
	Schedule string        `yaml:"cron"`
	Timeout  time.Duration `yaml:"timeout"`
	Location *time.Location
}

// DefaultConfig returns the default refresher configuration
func DefaultConfig() *Config {
	return &Config{
		Schedule: "*/15 * * * *",
		Timeout:  time.Minute,
		Location: time.Local,
	}
}

// Snapshot is the result of one successful fetch
type Snapshot struct {
	Generation uint64                  `json:"generation"`
	View       grid.ViewKind           `json:"view"`
	Focus      time.Time               `json:"focus"`
	Range      models.DateRange        `json:"range"`
	Cells      []grid.DayCell          `json:"cells"`
	Events     []*models.CalendarEvent `json:"events"`
	FetchedAt  time.Time               `json:"fetched_at"`
}

// Refresher fetches the events of the navigator's visible range
type Refresher struct {
	config    *Config
	nav       *navigator.Navigator
	source    EventSource
	colors    placement.ColorLookup
	publisher FocusPublisher
	logger    *slog.Logger

	mu       sync.RWMutex
	latest   *Snapshot
	onUpdate func(Snapshot)

	trigger     chan struct{}
	cron        *cron.Cron
	unsubscribe func()
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	running     bool
}

// New creates a refresher. colors may be nil.
func New(config *Config, nav *navigator.Navigator, source EventSource, colors placement.ColorLookup, logger *slog.Logger) *Refresher {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Location == nil {
		config.Location = time.Local
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Refresher{
		config:  config,
		nav:     nav,
		source:  source,
		colors:  colors,
		logger:  logger,
		trigger: make(chan struct{}, 1),
	}
}

// SetPublisher sets the receiver of focus changes
func (r *Refresher) SetPublisher(p FocusPublisher) {
	r.publisher = p
}

// OnUpdate registers a callback run after each accepted snapshot
func (r *Refresher) OnUpdate(fn func(Snapshot)) {
	r.mu.Lock()
	r.onUpdate = fn
	r.mu.Unlock()
}

// Start fetches once and then refreshes on navigation and on schedule
func (r *Refresher) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return fmt.Errorf("refresher is already running")
	}

	c := cron.New(cron.WithLocation(r.config.Location))
	if _, err := c.AddFunc(r.config.Schedule, r.Trigger); err != nil {
		return fmt.Errorf("invalid refresh schedule %q: %w", r.config.Schedule, err)
	}

	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.cron = c
	r.unsubscribe = r.nav.Subscribe(func(change models.FocusChange) {
		r.publishFocus(ctx, change)
		r.Trigger()
	})
	r.running = true

	r.wg.Add(1)
	go r.loop(ctx)
	c.Start()
	r.Trigger()

	r.logger.Info("Starting refresher", "schedule", r.config.Schedule)
	return nil
}

// Stop halts the schedule and waits for an in-flight fetch to finish
func (r *Refresher) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	r.unsubscribe()
	r.cancel()
	cronDone := r.cron.Stop()
	r.mu.Unlock()

	<-cronDone.Done()
	r.wg.Wait()
	r.logger.Info("Refresher stopped")
}

// Trigger requests a refresh. Requests made while one is pending coalesce.
func (r *Refresher) Trigger() {
	select {
	case r.trigger <- struct{}{}:
	default:
	}
}

func (r *Refresher) loop(ctx context.Context) {
	defer r.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-r.trigger:
			err := r.Refresh(ctx)
			switch {
			case err == nil, errors.Is(err, ErrStale):
			case ctx.Err() != nil:
				return
			default:
				r.logger.Error("Failed to refresh events", "error", err)
			}
		}
	}
}

func (r *Refresher) publishFocus(ctx context.Context, change models.FocusChange) {
	if r.publisher == nil {
		return
	}
	if err := r.publisher.PublishFocusChange(ctx, &change); err != nil {
		r.logger.Warn("Failed to publish focus change",
			"generation", change.Generation,
			"error", err)
	}
}

// Refresh fetches the events of the current focus synchronously. The
// result is discarded with ErrStale when the focus changed meanwhile.
func (r *Refresher) Refresh(ctx context.Context) error {
	generation := r.nav.Generation()
	focus := r.nav.Focus()
	view := r.nav.View()
	builder := r.nav.Builder()
	rng := builder.Range(view, focus)

	fetchCtx := ctx
	if r.config.Timeout > 0 {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(ctx, r.config.Timeout)
		defer cancel()
	}

	start := time.Now()
	events, err := r.source.QueryEvents(fetchCtx, rng)
	if err != nil {
		return fmt.Errorf("failed to fetch events for %s: %w", rng, err)
	}

	if current := r.nav.Generation(); current != generation {
		r.logger.Debug("Discarding stale refresh",
			"generation", generation,
			"current_generation", current)
		return ErrStale
	}

	snap := Snapshot{
		Generation: generation,
		View:       view,
		Focus:      focus,
		Range:      rng,
		Cells:      builder.Cells(view, focus),
		Events:     events,
		FetchedAt:  time.Now(),
	}

	r.mu.Lock()
	if r.latest != nil && r.latest.Generation > generation {
		r.mu.Unlock()
		return ErrStale
	}
	r.latest = &snap
	onUpdate := r.onUpdate
	r.mu.Unlock()

	r.logger.Debug("Refreshed events",
		"generation", generation,
		"range", rng.String(),
		"event_count", len(events),
		"duration", time.Since(start))

	if onUpdate != nil {
		onUpdate(snap)
	}
	return nil
}

// Snapshot returns the latest accepted snapshot
func (r *Refresher) Snapshot() (Snapshot, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.latest == nil {
		return Snapshot{}, false
	}
	return *r.latest, true
}

// Placements lays out the events of the latest snapshot on day
func (r *Refresher) Placements(day time.Time) []placement.Placement {
	snap, ok := r.Snapshot()
	if !ok {
		return nil
	}
	placer := placement.NewPlacer(r.nav.Builder().Calendar(), r.colors)
	return placer.Layout(snap.Events, day)
}
