// Package google serves read/write calendars from the Google Calendar API.
package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/venkytv/calendar-grid/internal/models"
	calendarPkg "github.com/venkytv/calendar-grid/pkg/calendar"
	"github.com/venkytv/calendar-grid/pkg/calendar/recurrence"
	"github.com/venkytv/calendar-grid/pkg/retry"
)

// StoreType is the configuration type name of the Google store
const StoreType = "google"

// Store implements calendar.Store for Google Calendar
type Store struct {
	mu       sync.RWMutex
	name     string
	service  *calendar.Service
	location *time.Location
	only     []string
	// eventCalendars maps event ids seen in queries to their calendar
	eventCalendars map[string]string
	instances      map[string]instance
	retryer        *retry.Retryer
	breaker        *retry.CircuitBreaker
	logger         *slog.Logger
}

// instance locates an expanded occurrence within its recurring event
type instance struct {
	seriesID string
	start    time.Time
}

// NewStore creates an unconfigured Google Calendar store
func NewStore() *Store {
	logger := slog.Default()
	return &Store{
		name:           "Google Calendar",
		location:       time.Local,
		eventCalendars: make(map[string]string),
		instances:      make(map[string]instance),
		retryer:        retry.NewRetryer(nil, logger),
		breaker:        retry.NewCircuitBreaker(nil, logger),
		logger:         logger,
	}
}

// Name returns the configured store name
func (s *Store) Name() string {
	return s.name
}

// Type returns the store type identifier
func (s *Store) Type() string {
	return StoreType
}

// SetLogger sets the logger for this store
func (s *Store) SetLogger(logger *slog.Logger) {
	if logger == nil {
		return
	}
	s.logger = logger
	s.retryer = retry.NewRetryer(nil, logger)
	s.breaker = retry.NewCircuitBreaker(nil, logger)
}

// Initialize loads the OAuth2 token and creates the API service. URL
// overrides the API endpoint.
func (s *Store) Initialize(ctx context.Context, cfg calendarPkg.StoreConfig) error {
	if cfg.CredentialsPath == "" || cfg.TokenPath == "" {
		return errors.New("google store requires credentials_path and token_path")
	}

	tm, err := NewTokenManager(cfg.CredentialsPath, cfg.TokenPath, s.logger)
	if err != nil {
		return err
	}
	client, err := tm.GetClient(ctx)
	if err != nil {
		return err
	}
	if cfg.Timeout > 0 {
		client.Timeout = cfg.Timeout
	}

	opts := []option.ClientOption{option.WithHTTPClient(client)}
	if cfg.URL != "" {
		opts = append(opts, option.WithEndpoint(cfg.URL))
	}
	return s.initializeService(ctx, cfg, opts...)
}

func (s *Store) initializeService(ctx context.Context, cfg calendarPkg.StoreConfig, opts ...option.ClientOption) error {
	service, err := calendar.NewService(ctx, opts...)
	if err != nil {
		return fmt.Errorf("unable to create Calendar client: %w", err)
	}

	if cfg.Name != "" {
		s.name = cfg.Name
	}
	if cfg.Location != nil {
		s.location = cfg.Location
	}
	s.only = cfg.CalendarIDs
	s.service = service
	return nil
}

// call runs an API request through the circuit breaker with retries.
// googleapi errors are annotated with their status for retry classification.
func (s *Store) call(ctx context.Context, op retry.Operation) error {
	if s.service == nil {
		return errors.New("calendar service not initialized")
	}
	return s.breaker.Execute(ctx, func(ctx context.Context) error {
		return s.retryer.Do(ctx, func(ctx context.Context) error {
			err := op(ctx)
			var gerr *googleapi.Error
			if errors.As(err, &gerr) {
				return fmt.Errorf("%w: %w", retry.NewHTTPError(gerr.Code, http.StatusText(gerr.Code), ""), err)
			}
			return err
		})
	})
}

func isNotFound(err error) bool {
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && (gerr.Code == http.StatusNotFound || gerr.Code == http.StatusGone)
}

// Calendars returns the calendars in the user's calendar list
func (s *Store) Calendars(ctx context.Context) ([]*calendarPkg.Calendar, error) {
	var calendars []*calendarPkg.Calendar
	err := s.call(ctx, func(ctx context.Context) error {
		calendars = nil
		return s.service.CalendarList.List().Context(ctx).Pages(ctx, func(list *calendar.CalendarList) error {
			for _, item := range list.Items {
				if len(s.only) > 0 && !slices.Contains(s.only, item.Id) {
					continue
				}
				name := item.SummaryOverride
				if name == "" {
					name = item.Summary
				}
				calendars = append(calendars, &calendarPkg.Calendar{
					ID:          item.Id,
					Name:        name,
					Description: item.Description,
					Color:       item.BackgroundColor,
					TimeZone:    item.TimeZone,
					Primary:     item.Primary,
					Writable:    item.AccessRole == "owner" || item.AccessRole == "writer",
					AccountName: s.name,
				})
			}
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("unable to retrieve calendar list: %w", err)
	}
	return calendars, nil
}

// QueryEvents lists the expanded events of every requested calendar
func (s *Store) QueryEvents(ctx context.Context, r models.DateRange, calendarIDs []string) ([]*models.CalendarEvent, error) {
	var all []*models.CalendarEvent

	for _, calendarID := range calendarIDs {
		var items []*calendar.Event
		err := s.call(ctx, func(ctx context.Context) error {
			items = nil
			return s.service.Events.List(calendarID).
				Context(ctx).
				TimeMin(r.Start.Format(time.RFC3339)).
				TimeMax(r.End.Format(time.RFC3339)).
				SingleEvents(true).
				OrderBy("startTime").
				Pages(ctx, func(events *calendar.Events) error {
					items = append(items, events.Items...)
					return nil
				})
		})
		if err != nil {
			return nil, fmt.Errorf("unable to retrieve events for calendar %s: %w", calendarID, err)
		}

		s.mu.Lock()
		for _, item := range items {
			if item.Status == "cancelled" {
				continue
			}
			event, err := convertEvent(item, calendarID, s.location)
			if err != nil {
				s.logger.Warn("Skipping event that cannot be converted",
					"event_id", item.Id,
					"calendar_id", calendarID,
					"error", err)
				continue
			}
			s.eventCalendars[event.ID] = calendarID
			if item.RecurringEventId != "" && item.OriginalStartTime != nil {
				if start, _, err := parseEventTime(item.OriginalStartTime, s.location); err == nil {
					s.instances[event.ID] = instance{seriesID: item.RecurringEventId, start: start}
				}
			}
			all = append(all, event)
		}
		s.mu.Unlock()
	}

	return all, nil
}

// CreateEvent inserts an event
func (s *Store) CreateEvent(ctx context.Context, fields models.EventFields) (*models.CalendarEvent, error) {
	var created *calendar.Event
	err := s.call(ctx, func(ctx context.Context) error {
		var err error
		created, err = s.service.Events.Insert(fields.CalendarID, toGoogleEvent(fields)).Context(ctx).Do()
		return err
	})
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%s: %w", fields.CalendarID, calendarPkg.ErrCalendarNotFound)
		}
		return nil, fmt.Errorf("failed to create event: %w", err)
	}

	s.mu.Lock()
	s.eventCalendars[created.Id] = fields.CalendarID
	s.mu.Unlock()

	return fields.ToEvent(created.Id), nil
}

func (s *Store) calendarOf(id string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	calendarID, ok := s.eventCalendars[id]
	if !ok {
		return "", fmt.Errorf("%s: %w", id, calendarPkg.ErrEventNotFound)
	}
	return calendarID, nil
}

func (s *Store) forget(id string) {
	s.mu.Lock()
	delete(s.eventCalendars, id)
	delete(s.instances, id)
	s.mu.Unlock()
}

func (s *Store) instanceOf(id string) (instance, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	inst, ok := s.instances[id]
	return inst, ok
}

// splitSeries ends the recurring event of inst before it and inserts fields
// as a new event. It reports false, changing nothing, when inst is the first
// occurrence.
func (s *Store) splitSeries(ctx context.Context, calendarID string, inst instance, fields models.EventFields) (*models.CalendarEvent, bool, error) {
	var master *calendar.Event
	err := s.call(ctx, func(ctx context.Context) error {
		var err error
		master, err = s.service.Events.Get(calendarID, inst.seriesID).Context(ctx).Do()
		return err
	})
	if err != nil {
		return nil, false, err
	}

	first, _, err := parseEventTime(master.Start, s.location)
	if err != nil {
		return nil, false, fmt.Errorf("failed to parse start of %s: %w", inst.seriesID, err)
	}
	if !inst.start.After(first) {
		return nil, false, nil
	}

	rules := make([]string, 0, len(master.Recurrence))
	for _, line := range master.Recurrence {
		if strings.HasPrefix(line, "RRULE:") {
			cut, err := recurrence.EndBefore(line, inst.start)
			if err != nil {
				return nil, false, err
			}
			line = "RRULE:" + cut
		}
		rules = append(rules, line)
	}

	created, err := s.CreateEvent(ctx, fields)
	if err != nil {
		return nil, false, err
	}
	err = s.call(ctx, func(ctx context.Context) error {
		_, err := s.service.Events.Patch(calendarID, inst.seriesID, &calendar.Event{Recurrence: rules}).Context(ctx).Do()
		return err
	})
	if err != nil {
		return nil, false, fmt.Errorf("failed to end recurring event %s: %w", inst.seriesID, err)
	}

	s.logger.Debug("Split recurring event",
		"event_id", inst.seriesID,
		"new_event_id", created.ID)
	return created, true, nil
}

// UpdateEvent patches an event, moving it first when its calendar changes.
// Updating an occurrence of a recurring event changes that occurrence and
// all later ones; the first occurrence updates the whole series.
func (s *Store) UpdateEvent(ctx context.Context, id string, fields models.EventFields) (*models.CalendarEvent, error) {
	calendarID, err := s.calendarOf(id)
	if err != nil {
		return nil, err
	}

	if inst, ok := s.instanceOf(id); ok {
		created, split, err := s.splitSeries(ctx, calendarID, inst, fields)
		if err != nil {
			if isNotFound(err) {
				s.forget(id)
				return nil, fmt.Errorf("%s: %w", id, calendarPkg.ErrEventNotFound)
			}
			return nil, fmt.Errorf("failed to update event: %w", err)
		}
		if split {
			return created, nil
		}
		s.mu.Lock()
		s.eventCalendars[inst.seriesID] = calendarID
		s.mu.Unlock()
		id = inst.seriesID
	}

	err = s.call(ctx, func(ctx context.Context) error {
		if fields.CalendarID != calendarID {
			if _, err := s.service.Events.Move(calendarID, id, fields.CalendarID).Context(ctx).Do(); err != nil {
				return err
			}
			calendarID = fields.CalendarID
		}
		_, err := s.service.Events.Patch(calendarID, id, toGoogleEvent(fields)).Context(ctx).Do()
		return err
	})
	if err != nil {
		if isNotFound(err) {
			s.forget(id)
			return nil, fmt.Errorf("%s: %w", id, calendarPkg.ErrEventNotFound)
		}
		return nil, fmt.Errorf("failed to update event: %w", err)
	}

	s.mu.Lock()
	s.eventCalendars[id] = fields.CalendarID
	s.mu.Unlock()

	return fields.ToEvent(id), nil
}

// DeleteEvent deletes an event
func (s *Store) DeleteEvent(ctx context.Context, id string) error {
	calendarID, err := s.calendarOf(id)
	if err != nil {
		return err
	}

	err = s.call(ctx, func(ctx context.Context) error {
		return s.service.Events.Delete(calendarID, id).Context(ctx).Do()
	})
	if err != nil {
		if isNotFound(err) {
			s.forget(id)
			return fmt.Errorf("%s: %w", id, calendarPkg.ErrEventNotFound)
		}
		return fmt.Errorf("failed to delete event: %w", err)
	}

	s.forget(id)
	return nil
}

// IsHealthy performs a health check on the Google Calendar connection
func (s *Store) IsHealthy(ctx context.Context) error {
	err := s.call(ctx, func(ctx context.Context) error {
		_, err := s.service.CalendarList.List().Context(ctx).MaxResults(1).Do()
		return err
	})
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	return nil
}

// Close cleans up resources
func (s *Store) Close() error {
	s.service = nil
	return nil
}
