// Package ical serves read-only calendars from ICS feeds and files.
package ical

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/venkytv/calendar-grid/internal/models"
	"github.com/venkytv/calendar-grid/pkg/calendar"
	"github.com/venkytv/calendar-grid/pkg/calendar/recurrence"
	"github.com/venkytv/calendar-grid/pkg/retry"
)

// StoreType is the configuration type name of the ICS store
const StoreType = "ical"

const userAgent = "calendar-grid/1.0"

// Store reads one ICS document from a URL or a local file. Every query
// re-reads the source.
type Store struct {
	name     string
	source   string
	location *time.Location
	client   *http.Client
	retryer  *retry.Retryer
	logger   *slog.Logger
}

// NewStore creates an unconfigured ICS store
func NewStore() *Store {
	logger := slog.Default()
	return &Store{
		name: "iCal",
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
		location: time.Local,
		logger:   logger,
		retryer:  newRetryer(logger),
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
}

// Initialize configures the source. URL takes precedence over Path.
func (s *Store) Initialize(ctx context.Context, cfg calendar.StoreConfig) error {
	source := cfg.URL
	if source == "" {
		source = cfg.Path
	}
	if source == "" {
		return errors.New("ical store requires a url or path")
	}
	if cfg.Name != "" {
		s.name = cfg.Name
	}
	if cfg.Timeout > 0 {
		s.client.Timeout = cfg.Timeout
	}
	if cfg.Location != nil {
		s.location = cfg.Location
	}
	s.source = source
	s.logger.Debug("iCal store initialized", "source", source)
	return nil
}

func (s *Store) isRemote() bool {
	return strings.HasPrefix(s.source, "http://") || strings.HasPrefix(s.source, "https://")
}

// calendarID is the source itself, so it stays stable across restarts
func (s *Store) calendarID() string {
	return s.source
}

func (s *Store) load(ctx context.Context) (*Feed, error) {
	if s.source == "" {
		return nil, errors.New("ical store not initialized")
	}

	var data []byte
	var err error
	if s.isRemote() {
		data, err = s.fetch(ctx)
	} else {
		data, err = os.ReadFile(s.source)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", s.source, err)
	}

	return Parse(bytes.NewReader(data), s.calendarID(), s.location, s.logger)
}

func (s *Store) fetch(ctx context.Context) ([]byte, error) {
	return retry.DoWithResult(ctx, s.retryer, func(ctx context.Context) ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.source, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Accept", "text/calendar")
		req.Header.Set("User-Agent", userAgent)

		resp, err := s.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return nil, retry.NewHTTPError(resp.StatusCode, resp.Status, s.source)
		}

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to read response body: %w", err)
		}
		return body, nil
	})
}

// Calendars returns the single calendar of the feed
func (s *Store) Calendars(ctx context.Context) ([]*calendar.Calendar, error) {
	feed, err := s.load(ctx)
	if err != nil {
		return nil, err
	}

	return []*calendar.Calendar{{
		ID:       s.calendarID(),
		Name:     feed.Name,
		Color:    feed.Color,
		TimeZone: s.location.String(),
		Writable: false,
	}}, nil
}

// QueryEvents expands the feed within r
func (s *Store) QueryEvents(ctx context.Context, r models.DateRange, calendarIDs []string) ([]*models.CalendarEvent, error) {
	if len(calendarIDs) > 0 && !slices.Contains(calendarIDs, s.calendarID()) {
		return nil, nil
	}

	feed, err := s.load(ctx)
	if err != nil {
		return nil, err
	}

	events, problems, err := recurrence.ExpandAll(feed.Series, r, recurrence.DefaultMaxOccurrences)
	if err != nil {
		return nil, err
	}
	if len(problems) > 0 {
		s.logger.Warn("Some recurring events could not be fully expanded",
			"source", s.source,
			"event_ids", problems)
	}

	s.logger.Debug("Retrieved events from iCal source",
		"source", s.source,
		"range", r.String(),
		"event_count", len(events))

	return events, nil
}

// CreateEvent is not supported
func (s *Store) CreateEvent(ctx context.Context, fields models.EventFields) (*models.CalendarEvent, error) {
	return nil, calendar.ErrReadOnly
}

// UpdateEvent is not supported
func (s *Store) UpdateEvent(ctx context.Context, id string, fields models.EventFields) (*models.CalendarEvent, error) {
	return nil, calendar.ErrReadOnly
}

// DeleteEvent is not supported
func (s *Store) DeleteEvent(ctx context.Context, id string) error {
	return calendar.ErrReadOnly
}

// IsHealthy checks that the source can be read and parsed
func (s *Store) IsHealthy(ctx context.Context) error {
	if _, err := s.load(ctx); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	return nil
}

// Close releases idle connections
func (s *Store) Close() error {
	s.client.CloseIdleConnections()
	return nil
}
