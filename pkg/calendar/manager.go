package calendar

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/venkytv/calendar-grid/internal/models"
	"github.com/venkytv/calendar-grid/pkg/settings"
)

// Manager coordinates multiple calendar stores and merges user
// customizations into their calendars
type Manager struct {
	mu          sync.RWMutex
	stores      map[string]Store
	priorities  map[string]int
	factory     StoreFactory
	coordinator *EventCoordinator
	settings    *settings.Settings
	publisher   ChangePublisher

	// calendarStore maps calendar ids to the name of the owning store
	calendarStore map[string]string
	// eventStore maps event ids seen in queries to the owning store
	eventStore map[string]string
	colors     map[string]models.RGB
	// storeColors holds calendar colours before customization
	storeColors map[string]models.RGB

	now    func() time.Time
	logger *slog.Logger
}

// NewManager creates a new calendar manager
func NewManager(factory StoreFactory, prefs *settings.Settings) *Manager {
	return NewManagerWithCoordinator(factory, prefs, nil, nil)
}

// NewManagerWithCoordinator creates a new calendar manager with custom coordinator and logger
func NewManagerWithCoordinator(factory StoreFactory, prefs *settings.Settings, coordinatorConfig *CoordinatorConfig, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}

	return &Manager{
		stores:        make(map[string]Store),
		priorities:    make(map[string]int),
		factory:       factory,
		coordinator:   NewEventCoordinator(coordinatorConfig, logger),
		settings:      prefs,
		calendarStore: make(map[string]string),
		eventStore:    make(map[string]string),
		colors:        make(map[string]models.RGB),
		storeColors:   make(map[string]models.RGB),
		now:           time.Now,
		logger:        logger,
	}
}

// SetPublisher sets the receiver of event change notifications
func (m *Manager) SetPublisher(p ChangePublisher) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.publisher = p
}

// AddStore adds a calendar store to the manager. Lower priority values win
// when the same event shows up in several stores.
func (m *Manager) AddStore(name string, store Store, priority int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stores[name] = store
	m.priorities[name] = priority
}

// CreateStore builds a store through the factory, initializes it and adds it
func (m *Manager) CreateStore(ctx context.Context, storeType string, cfg StoreConfig) error {
	if m.factory == nil {
		return errors.New("no store factory configured")
	}
	store, err := m.factory.CreateStore(storeType)
	if err != nil {
		return err
	}
	if ls, ok := store.(LoggerSetter); ok {
		ls.SetLogger(m.logger.With("store_name", cfg.Name))
	}
	if err := store.Initialize(ctx, cfg); err != nil {
		return fmt.Errorf("failed to initialize %s store %s: %w", storeType, cfg.Name, err)
	}
	m.AddStore(cfg.Name, store, cfg.Priority)
	m.logger.Info("Calendar store added",
		"store_name", cfg.Name,
		"store_type", storeType)
	return nil
}

// GetStore retrieves a calendar store by name
func (m *Manager) GetStore(name string) (Store, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	store, exists := m.stores[name]
	return store, exists
}

// GetStoreList returns the sorted names of all configured stores
func (m *Manager) GetStoreList() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.stores))
	for name := range m.stores {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Calendars returns every calendar of every store with customizations
// applied, sorted case-insensitively by display name. A failing store is
// skipped; an error is returned only when every store fails.
func (m *Manager) Calendars(ctx context.Context) ([]models.CalendarSource, error) {
	custom := map[string]models.Customization{}
	if m.settings != nil {
		c, err := m.settings.Customizations(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to load customizations: %w", err)
		}
		custom = c
	}

	var (
		sources  []models.CalendarSource
		owners   = make(map[string]string)
		colors   = make(map[string]models.RGB)
		base     = make(map[string]models.RGB)
		failures int
		lastErr  error
	)

	names := m.GetStoreList()
	for _, name := range names {
		store, _ := m.GetStore(name)

		calendars, err := store.Calendars(ctx)
		if err != nil {
			m.logger.Error("Failed to get calendars from store",
				"store_name", name,
				"store_type", store.Type(),
				"error", err)
			failures++
			lastErr = err
			continue
		}

		m.mu.RLock()
		priority := m.priorities[name]
		m.mu.RUnlock()

		for _, cal := range calendars {
			src := cal.Source(name, priority)
			base[src.ID] = src.Color
			if c, ok := custom[src.ID]; ok {
				src = c.Apply(src)
			}
			owners[src.ID] = name
			colors[src.ID] = src.Color
			sources = append(sources, src)
		}
	}

	if len(names) > 0 && failures == len(names) {
		return nil, fmt.Errorf("all calendar stores failed: %w", lastErr)
	}

	sort.SliceStable(sources, func(i, j int) bool {
		a, b := strings.ToLower(sources[i].DisplayName), strings.ToLower(sources[j].DisplayName)
		if a != b {
			return a < b
		}
		return sources[i].ID < sources[j].ID
	})

	m.mu.Lock()
	for id, store := range owners {
		m.calendarStore[id] = store
	}
	for id, c := range colors {
		m.colors[id] = c
	}
	for id, c := range base {
		m.storeColors[id] = c
	}
	m.mu.Unlock()

	return sources, nil
}

// VisibleCalendars returns the calendars that are not hidden
func (m *Manager) VisibleCalendars(ctx context.Context) ([]models.CalendarSource, error) {
	all, err := m.Calendars(ctx)
	if err != nil {
		return nil, err
	}
	visible := all[:0]
	for _, c := range all {
		if !c.IsHidden {
			visible = append(visible, c)
		}
	}
	return visible, nil
}

// QueryEvents retrieves events of all visible calendars overlapping r, with
// duplicates across calendars removed and the result sorted by start time.
// Events ending before they start are dropped.
func (m *Manager) QueryEvents(ctx context.Context, r models.DateRange) ([]*models.CalendarEvent, error) {
	if r.End.Before(r.Start) {
		return nil, models.ErrInvalidDateRange
	}

	visible, err := m.VisibleCalendars(ctx)
	if err != nil {
		return nil, err
	}

	byStore := make(map[string][]string)
	priorities := make(map[string]int)
	for _, c := range visible {
		byStore[c.StoreName] = append(byStore[c.StoreName], c.ID)
		priorities[c.ID] = c.Priority
	}

	m.logger.Debug("Fetching events from all stores",
		"store_count", len(byStore),
		"from", r.Start.Format(time.RFC3339),
		"to", r.End.Format(time.RFC3339))

	var all []*models.CalendarEvent
	owners := make(map[string]string)

	for _, name := range sortedKeys(byStore) {
		store, ok := m.GetStore(name)
		if !ok {
			continue
		}
		ids := byStore[name]

		events, err := store.QueryEvents(ctx, r, ids)
		if err != nil {
			m.logger.Error("Failed to get events from store",
				"store_name", name,
				"store_type", store.Type(),
				"error", err)
			return nil, err
		}

		kept := 0
		for _, event := range events {
			if err := event.Validate(); err != nil {
				m.logger.Warn("Dropping invalid event",
					"store_name", name,
					"event_id", event.ID,
					"error", err)
				continue
			}
			owners[event.ID] = name
			all = append(all, event)
			kept++
		}

		m.logger.Debug("Fetched events from store",
			"store_name", name,
			"store_type", store.Type(),
			"event_count", kept)
	}

	coordinated := m.coordinator.CoordinateEvents(all, priorities)

	m.mu.Lock()
	for id, store := range owners {
		m.eventStore[id] = store
	}
	m.mu.Unlock()

	m.logger.Debug("Event query completed",
		"raw_events", len(all),
		"coordinated_events", len(coordinated))

	return coordinated, nil
}

func sortedKeys(m map[string][]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// storeForCalendar resolves the store owning calendarID, refreshing the
// calendar list once when the id is unknown
func (m *Manager) storeForCalendar(ctx context.Context, calendarID string) (string, Store, error) {
	lookup := func() (string, Store, bool) {
		m.mu.RLock()
		defer m.mu.RUnlock()
		name, ok := m.calendarStore[calendarID]
		if !ok {
			return "", nil, false
		}
		store, ok := m.stores[name]
		return name, store, ok
	}

	if name, store, ok := lookup(); ok {
		return name, store, nil
	}
	if _, err := m.Calendars(ctx); err != nil {
		return "", nil, err
	}
	if name, store, ok := lookup(); ok {
		return name, store, nil
	}
	return "", nil, fmt.Errorf("%s: %w", calendarID, ErrCalendarNotFound)
}

func (m *Manager) storeForEvent(id string) (string, Store, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	name, ok := m.eventStore[id]
	if !ok {
		return "", nil, fmt.Errorf("%s: %w", id, ErrEventNotFound)
	}
	store, ok := m.stores[name]
	if !ok {
		return "", nil, fmt.Errorf("%s: %w", id, ErrEventNotFound)
	}
	return name, store, nil
}

func (m *Manager) withDefaultCalendar(fields models.EventFields) models.EventFields {
	if fields.CalendarID == "" && m.settings != nil {
		fields.CalendarID = m.settings.Snapshot().DefaultCalendarID
	}
	return fields
}

// CreateEvent validates fields and creates the event in the store owning its
// calendar. An empty calendar id selects the default calendar.
func (m *Manager) CreateEvent(ctx context.Context, fields models.EventFields) (*models.CalendarEvent, error) {
	fields = m.withDefaultCalendar(fields)
	if err := fields.Validate(); err != nil {
		return nil, err
	}

	name, store, err := m.storeForCalendar(ctx, fields.CalendarID)
	if err != nil {
		return nil, err
	}

	event, err := store.CreateEvent(ctx, fields)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.eventStore[event.ID] = name
	m.mu.Unlock()

	m.logger.Info("Event created",
		"store_name", name,
		"calendar_id", event.CalendarID,
		"event_id", event.ID)
	m.publish(ctx, models.EventCreated, event)
	return event, nil
}

// UpdateEvent validates fields and updates the event in its owning store.
// Events can only be moved between calendars of the same store.
func (m *Manager) UpdateEvent(ctx context.Context, id string, fields models.EventFields) (*models.CalendarEvent, error) {
	fields = m.withDefaultCalendar(fields)
	if err := fields.Validate(); err != nil {
		return nil, err
	}

	name, store, err := m.storeForEvent(id)
	if err != nil {
		return nil, err
	}
	target, _, err := m.storeForCalendar(ctx, fields.CalendarID)
	if err != nil {
		return nil, err
	}
	if target != name {
		return nil, fmt.Errorf("cannot move event %s from store %s to %s", id, name, target)
	}

	event, err := store.UpdateEvent(ctx, id, fields)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	if event.ID != id {
		delete(m.eventStore, id)
	}
	m.eventStore[event.ID] = name
	m.mu.Unlock()

	m.logger.Info("Event updated",
		"store_name", name,
		"calendar_id", event.CalendarID,
		"event_id", event.ID)
	m.publish(ctx, models.EventUpdated, event)
	return event, nil
}

// DeleteEvent removes the event from its owning store
func (m *Manager) DeleteEvent(ctx context.Context, id string) error {
	name, store, err := m.storeForEvent(id)
	if err != nil {
		return err
	}
	if err := store.DeleteEvent(ctx, id); err != nil {
		return err
	}

	m.mu.Lock()
	delete(m.eventStore, id)
	m.mu.Unlock()

	m.logger.Info("Event deleted", "store_name", name, "event_id", id)
	m.publish(ctx, models.EventDeleted, &models.CalendarEvent{ID: id})
	return nil
}

func (m *Manager) publish(ctx context.Context, action models.EventAction, event *models.CalendarEvent) {
	m.mu.RLock()
	p := m.publisher
	m.mu.RUnlock()
	if p == nil {
		return
	}
	if err := p.PublishEventChange(ctx, models.NewEventChange(action, event, m.now())); err != nil {
		m.logger.Error("Failed to publish event change",
			"action", string(action),
			"event_id", event.ID,
			"error", err)
	}
}

// UpdateCustomization stores a calendar customization and applies its
// colour to later placement lookups. Without a valid colour the store
// colour applies again.
func (m *Manager) UpdateCustomization(ctx context.Context, c models.Customization) error {
	if m.settings == nil {
		return errors.New("no settings store configured")
	}
	if err := m.settings.SetCustomization(ctx, c); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if c.ColorHex != nil {
		if rgb, err := models.ParseHex(*c.ColorHex); err == nil {
			m.colors[c.ID] = rgb
			return nil
		}
	}
	if rgb, ok := m.storeColors[c.ID]; ok {
		m.colors[c.ID] = rgb
	} else {
		delete(m.colors, c.ID)
	}
	return nil
}

// ColorFor returns the display colour of a calendar as of the last
// Calendars call, or the zero colour when unknown
func (m *Manager) ColorFor(calendarID string) models.RGB {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.colors[calendarID]
}

// Close closes all stores, returning the first error
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var firstErr error
	for name, store := range m.stores {
		if err := store.Close(); err != nil {
			m.logger.Error("Failed to close store", "store_name", name, "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// HealthCheck performs health checks on all stores
func (m *Manager) HealthCheck(ctx context.Context) map[string]error {
	m.mu.RLock()
	stores := make(map[string]Store, len(m.stores))
	for name, store := range m.stores {
		stores[name] = store
	}
	m.mu.RUnlock()

	results := make(map[string]error)
	for name, store := range stores {
		results[name] = store.IsHealthy(ctx)
	}
	return results
}

// GetCoordinatorConfig returns the current coordinator configuration
func (m *Manager) GetCoordinatorConfig() *CoordinatorConfig {
	return m.coordinator.config
}
