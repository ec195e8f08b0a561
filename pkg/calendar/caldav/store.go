// Package caldav serves read/write calendars from a CalDAV server.
package caldav

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/emersion/go-ical"
	"github.com/emersion/go-webdav"
	"github.com/emersion/go-webdav/caldav"
	"github.com/google/uuid"

	"github.com/venkytv/calendar-grid/internal/models"
	"github.com/venkytv/calendar-grid/pkg/calendar"
	"github.com/venkytv/calendar-grid/pkg/calendar/recurrence"
	"github.com/venkytv/calendar-grid/pkg/retry"
)

// StoreType is the configuration type name of the CalDAV store
const StoreType = "caldav"

// Store talks to one CalDAV account. Calendar ids are collection paths.
type Store struct {
	mu         sync.RWMutex
	name       string
	endpoint   *url.URL
	httpClient webdav.HTTPClient
	client     *caldav.Client
	location   *time.Location
	only       []string
	// objects maps a series uid to its resource path
	objects   map[string]string
	calendars map[string]*calendar.Calendar
	retryer   *retry.Retryer
	breaker   *retry.CircuitBreaker
	logger    *slog.Logger
	now       func() time.Time
}

// NewStore creates an unconfigured CalDAV store
func NewStore() *Store {
	logger := slog.Default()
	return &Store{
		name:      "CalDAV",
		location:  time.Local,
		objects:   make(map[string]string),
		calendars: make(map[string]*calendar.Calendar),
		retryer:   newRetryer(logger),
		breaker:   retry.NewCircuitBreaker(nil, logger),
		logger:    logger,
		now:       time.Now,
	}
}

func newRetryer(logger *slog.Logger) *retry.Retryer {
	cfg := retry.DefaultConfig()
	cfg.InitialDelay = 2 * time.Second
	return retry.NewRetryer(cfg, logger)
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
	s.retryer = newRetryer(logger)
	s.breaker = retry.NewCircuitBreaker(nil, logger)
}

// Initialize connects to the server. CalendarIDs, when set, restricts the
// store to those collection paths.
func (s *Store) Initialize(ctx context.Context, cfg calendar.StoreConfig) error {
	if cfg.URL == "" {
		return errors.New("CalDAV URL is required")
	}
	if cfg.Username == "" {
		return errors.New("CalDAV username is required")
	}
	if cfg.Password == "" {
		return errors.New("CalDAV password is required")
	}

	endpoint, err := url.Parse(cfg.URL)
	if err != nil {
		return fmt.Errorf("invalid CalDAV URL: %w", err)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	httpClient := webdav.HTTPClientWithBasicAuth(&http.Client{Timeout: timeout}, cfg.Username, cfg.Password)

	client, err := caldav.NewClient(httpClient, cfg.URL)
	if err != nil {
		return fmt.Errorf("failed to create CalDAV client: %w", err)
	}

	if cfg.Name != "" {
		s.name = cfg.Name
	}
	if cfg.Location != nil {
		s.location = cfg.Location
	}
	s.endpoint = endpoint
	s.httpClient = httpClient
	s.client = client
	s.only = cfg.CalendarIDs

	s.logger.Debug("CalDAV store initialized",
		"url", cfg.URL,
		"username", cfg.Username)
	return nil
}

// call runs a request through the circuit breaker with retries
func (s *Store) call(ctx context.Context, op retry.Operation) error {
	if s.client == nil {
		return errors.New("CalDAV store not initialized")
	}
	return s.breaker.Execute(ctx, func(ctx context.Context) error {
		return s.retryer.Do(ctx, op)
	})
}

// Calendars discovers the calendar collections of the account
func (s *Store) Calendars(ctx context.Context) ([]*calendar.Calendar, error) {
	var found []caldav.Calendar
	err := s.call(ctx, func(ctx context.Context) error {
		principal, err := s.client.FindCurrentUserPrincipal(ctx)
		if err != nil {
			return fmt.Errorf("failed to find principal: %w", err)
		}
		homeSet, err := s.client.FindCalendarHomeSet(ctx, principal)
		if err != nil {
			return fmt.Errorf("failed to find calendar home set: %w", err)
		}
		found, err = s.client.FindCalendars(ctx, homeSet)
		if err != nil {
			return fmt.Errorf("failed to find calendars: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	var result []*calendar.Calendar
	cache := make(map[string]*calendar.Calendar)
	for _, c := range found {
		if len(s.only) > 0 && !slices.Contains(s.only, c.Path) {
			continue
		}
		cal := &calendar.Calendar{
			ID:          c.Path,
			Name:        c.Name,
			Description: c.Description,
			TimeZone:    s.location.String(),
			Writable:    true,
			AccountName: s.name,
		}
		result = append(result, cal)
		cache[c.Path] = cal
	}

	s.mu.Lock()
	s.calendars = cache
	s.mu.Unlock()

	s.logger.Debug("Discovered CalDAV calendars", "calendar_count", len(result))
	return result, nil
}

func (s *Store) owns(calendarID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.calendars[calendarID]
	return ok
}

// QueryEvents runs a time-range calendar-query on every requested calendar
// and expands recurring events
func (s *Store) QueryEvents(ctx context.Context, r models.DateRange, calendarIDs []string) ([]*models.CalendarEvent, error) {
	var all []*models.CalendarEvent
	for _, id := range calendarIDs {
		if !s.owns(id) {
			continue
		}
		events, err := s.queryCalendar(ctx, id, r)
		if err != nil {
			return nil, err
		}
		all = append(all, events...)
	}
	return all, nil
}

func (s *Store) queryCalendar(ctx context.Context, calendarID string, r models.DateRange) ([]*models.CalendarEvent, error) {
	query := &caldav.CalendarQuery{
		CompFilter: caldav.CompFilter{
			Name: "VCALENDAR",
			Comps: []caldav.CompFilter{
				{
					Name:  "VEVENT",
					Start: r.Start.UTC(),
					End:   r.End.UTC(),
				},
			},
		},
	}

	var objects []caldav.CalendarObject
	err := s.call(ctx, func(ctx context.Context) error {
		var err error
		objects, err = s.client.QueryCalendar(ctx, calendarID, query)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query calendar %s: %w", calendarID, err)
	}

	var series []recurrence.Series
	s.mu.Lock()
	for _, obj := range objects {
		if obj.Data == nil {
			continue
		}
		sr, err := decodeObject(obj.Data, calendarID, s.location)
		if err != nil {
			s.logger.Warn("Skipping invalid calendar object",
				"path", obj.Path,
				"error", err)
			continue
		}
		s.objects[sr.Master.ID] = obj.Path
		series = append(series, *sr)
	}
	s.mu.Unlock()

	events, problems, err := recurrence.ExpandAll(series, r, recurrence.DefaultMaxOccurrences)
	if err != nil {
		return nil, err
	}
	if len(problems) > 0 {
		s.logger.Warn("Some recurring events could not be fully expanded",
			"calendar_id", calendarID,
			"event_ids", problems)
	}

	s.logger.Debug("Retrieved events from CalDAV calendar",
		"calendar_id", calendarID,
		"object_count", len(objects),
		"event_count", len(events))
	return events, nil
}

func objectPath(calendarID, uid string) string {
	return path.Join(calendarID, uid+".ics")
}

// CreateEvent stores a new resource at <calendar>/<uid>.ics
func (s *Store) CreateEvent(ctx context.Context, fields models.EventFields) (*models.CalendarEvent, error) {
	if !s.owns(fields.CalendarID) {
		return nil, fmt.Errorf("%s: %w", fields.CalendarID, calendar.ErrCalendarNotFound)
	}

	uid := uuid.NewString()
	p := objectPath(fields.CalendarID, uid)
	if err := s.put(ctx, p, uid, fields); err != nil {
		return nil, fmt.Errorf("failed to create event: %w", err)
	}

	s.mu.Lock()
	s.objects[uid] = p
	s.mu.Unlock()

	return fields.ToEvent(uid), nil
}

func (s *Store) put(ctx context.Context, p, uid string, fields models.EventFields) error {
	return s.putCalendar(ctx, p, encodeEvent(uid, fields, s.now()))
}

func (s *Store) putCalendar(ctx context.Context, p string, data *ical.Calendar) error {
	return s.call(ctx, func(ctx context.Context) error {
		_, err := s.client.PutCalendarObject(ctx, p, data)
		return err
	})
}

func (s *Store) get(ctx context.Context, p string) (*ical.Calendar, error) {
	var obj *caldav.CalendarObject
	err := s.call(ctx, func(ctx context.Context) error {
		var err error
		obj, err = s.client.GetCalendarObject(ctx, p)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", p, err)
	}
	return obj.Data, nil
}

// resolve returns the series uid and resource path of an event id
func (s *Store) resolve(ctx context.Context, id string) (string, string, error) {
	uid, _, _ := recurrence.SplitOccurrenceID(id)

	s.mu.RLock()
	p, ok := s.objects[uid]
	s.mu.RUnlock()
	if !ok {
		return "", "", fmt.Errorf("%s: %w", id, calendar.ErrEventNotFound)
	}

	exists, err := s.exists(ctx, p)
	if err != nil {
		return "", "", err
	}
	if !exists {
		s.mu.Lock()
		delete(s.objects, uid)
		s.mu.Unlock()
		return "", "", fmt.Errorf("%s: %w", id, calendar.ErrEventNotFound)
	}
	return uid, p, nil
}

// exists checks a resource with a HEAD request
func (s *Store) exists(ctx context.Context, p string) (bool, error) {
	target := s.endpoint.ResolveReference(&url.URL{Path: p})

	var found bool
	err := s.call(ctx, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodHead, target.String(), nil)
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		resp, err := s.httpClient.Do(req)
		if err != nil {
			return err
		}
		resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
			found = false
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			found = true
		default:
			return retry.NewHTTPError(resp.StatusCode, resp.Status, target.String())
		}
		return nil
	})
	return found, err
}

// UpdateEvent rewrites the series an event belongs to. An occurrence id
// other than the first one changes that occurrence and all later ones: the
// fields become a new event and the old series is ended before it. Moving to
// another calendar of the account writes the new resource first and then
// removes the old one.
func (s *Store) UpdateEvent(ctx context.Context, id string, fields models.EventFields) (*models.CalendarEvent, error) {
	uid, oldPath, err := s.resolve(ctx, id)
	if err != nil {
		return nil, err
	}
	if !s.owns(fields.CalendarID) {
		return nil, fmt.Errorf("%s: %w", fields.CalendarID, calendar.ErrCalendarNotFound)
	}

	if _, occurrence, ok := recurrence.SplitOccurrenceID(id); ok {
		data, err := s.get(ctx, oldPath)
		if err != nil {
			return nil, err
		}
		split, err := endSeriesBefore(data, occurrence, s.location)
		if err != nil {
			return nil, fmt.Errorf("failed to split event %s: %w", uid, err)
		}
		if split {
			created, err := s.CreateEvent(ctx, fields)
			if err != nil {
				return nil, err
			}
			if err := s.putCalendar(ctx, oldPath, data); err != nil {
				return nil, fmt.Errorf("failed to end event %s: %w", uid, err)
			}
			s.logger.Debug("Split recurring event", "event_id", uid, "new_event_id", created.ID)
			return created, nil
		}
	}

	newPath := oldPath
	if !strings.HasPrefix(oldPath, strings.TrimSuffix(fields.CalendarID, "/")+"/") {
		newPath = objectPath(fields.CalendarID, uid)
	}

	if err := s.put(ctx, newPath, uid, fields); err != nil {
		return nil, fmt.Errorf("failed to update event: %w", err)
	}
	if newPath != oldPath {
		if err := s.remove(ctx, oldPath); err != nil {
			return nil, fmt.Errorf("failed to remove moved event: %w", err)
		}
	}

	s.mu.Lock()
	s.objects[uid] = newPath
	s.mu.Unlock()

	return fields.ToEvent(uid), nil
}

// DeleteEvent removes the resource holding the event. An occurrence id of
// a recurring event only excludes that occurrence.
func (s *Store) DeleteEvent(ctx context.Context, id string) error {
	uid, p, err := s.resolve(ctx, id)
	if err != nil {
		return err
	}

	if _, occurrence, ok := recurrence.SplitOccurrenceID(id); ok {
		data, err := s.get(ctx, p)
		if err != nil {
			return err
		}
		if excludeOccurrence(data, occurrence, s.location) {
			if err := s.putCalendar(ctx, p, data); err != nil {
				return fmt.Errorf("failed to exclude occurrence: %w", err)
			}
			return nil
		}
	}
	if err := s.remove(ctx, p); err != nil {
		return fmt.Errorf("failed to delete event: %w", err)
	}

	s.mu.Lock()
	delete(s.objects, uid)
	s.mu.Unlock()
	return nil
}

func (s *Store) remove(ctx context.Context, p string) error {
	return s.call(ctx, func(ctx context.Context) error {
		return s.client.RemoveAll(ctx, p)
	})
}

// IsHealthy checks that the principal can be resolved
func (s *Store) IsHealthy(ctx context.Context) error {
	if s.breaker.State() == retry.CircuitOpen {
		return retry.ErrCircuitOpen
	}
	err := s.call(ctx, func(ctx context.Context) error {
		_, err := s.client.FindCurrentUserPrincipal(ctx)
		return err
	})
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	return nil
}

// Close is a no-op
func (s *Store) Close() error {
	return nil
}
