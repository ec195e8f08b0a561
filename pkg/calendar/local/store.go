// Package local keeps calendars and events in a SQLite database on disk.
package local

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/venkytv/calendar-grid/internal/models"
	"github.com/venkytv/calendar-grid/pkg/calendar"
	"github.com/venkytv/calendar-grid/pkg/calendar/recurrence"
	"github.com/venkytv/calendar-grid/pkg/datemath"

	_ "github.com/mattn/go-sqlite3"
)

// StoreType is the configuration type name of the SQLite store
const StoreType = "local"

// DefaultCalendarID is created when the database holds no calendars
const DefaultCalendarID = "local"

// Store implements calendar.Store on top of SQLite
type Store struct {
	mu       sync.Mutex
	name     string
	db       *sql.DB
	location *time.Location
	logger   *slog.Logger
	now      func() time.Time
}

// NewStore creates an unopened SQLite store
func NewStore() *Store {
	return &Store{
		name:     "Local",
		location: time.Local,
		logger:   slog.Default(),
		now:      time.Now,
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
	if logger != nil {
		s.logger = logger
	}
}

// Initialize opens the database at cfg.Path and creates the calendars named
// in cfg.CalendarIDs
func (s *Store) Initialize(ctx context.Context, cfg calendar.StoreConfig) error {
	if cfg.Path == "" {
		return errors.New("local store requires a path")
	}
	if cfg.Name != "" {
		s.name = cfg.Name
	}
	if cfg.Location != nil {
		s.location = cfg.Location
	}

	dsn := cfg.Path
	if cfg.Path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0755); err != nil {
			return fmt.Errorf("failed to create database directory: %w", err)
		}
		dsn += "?_busy_timeout=5000&_foreign_keys=on"
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return fmt.Errorf("failed to open calendar database: %w", err)
	}
	// sqlite serialises writers anyway and :memory: is per connection
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return fmt.Errorf("failed to ping calendar database: %w", err)
	}
	s.db = db

	if err := s.migrate(ctx); err != nil {
		db.Close()
		s.db = nil
		return fmt.Errorf("failed to migrate calendar database: %w", err)
	}

	ids := cfg.CalendarIDs
	if len(ids) == 0 {
		var count int
		if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM calendars`).Scan(&count); err != nil {
			return fmt.Errorf("failed to count calendars: %w", err)
		}
		if count == 0 {
			ids = []string{DefaultCalendarID}
		}
	}
	for _, id := range ids {
		if err := s.EnsureCalendar(ctx, id, id, ""); err != nil {
			return err
		}
	}

	s.logger.Info("Opened local calendar database", "path", cfg.Path)
	return nil
}

func (s *Store) migrate(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS calendars (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			color TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS events (
			id TEXT PRIMARY KEY,
			calendar_id TEXT NOT NULL REFERENCES calendars(id) ON DELETE CASCADE,
			title TEXT NOT NULL,
			start_at INTEGER NOT NULL,
			end_at INTEGER NOT NULL,
			all_day INTEGER NOT NULL DEFAULT 0,
			location TEXT NOT NULL DEFAULT '',
			notes TEXT NOT NULL DEFAULT '',
			rrule TEXT NOT NULL DEFAULT '',
			updated_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_events_calendar_start ON events(calendar_id, start_at)`,
		`CREATE TABLE IF NOT EXISTS event_exdates (
			event_id TEXT NOT NULL REFERENCES events(id) ON DELETE CASCADE,
			occurrence_at INTEGER NOT NULL,
			PRIMARY KEY (event_id, occurrence_at)
		)`,
	}
	for _, m := range migrations {
		if _, err := s.db.ExecContext(ctx, m); err != nil {
			return err
		}
	}
	return nil
}

// EnsureCalendar creates a calendar unless one with the id exists
func (s *Store) EnsureCalendar(ctx context.Context, id, name, color string) error {
	if s.db == nil {
		return errors.New("local store not initialized")
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO calendars (id, name, color) VALUES (?, ?, ?) ON CONFLICT(id) DO NOTHING`,
		id, name, color)
	if err != nil {
		return fmt.Errorf("failed to create calendar %s: %w", id, err)
	}
	return nil
}

// Calendars lists every calendar in the database. All are writable.
func (s *Store) Calendars(ctx context.Context) ([]*calendar.Calendar, error) {
	if s.db == nil {
		return nil, errors.New("local store not initialized")
	}

	rows, err := s.db.QueryContext(ctx, `SELECT id, name, color FROM calendars ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list calendars: %w", err)
	}
	defer rows.Close()

	var calendars []*calendar.Calendar
	for rows.Next() {
		c := &calendar.Calendar{Writable: true, AccountName: s.name}
		if err := rows.Scan(&c.ID, &c.Name, &c.Color); err != nil {
			return nil, fmt.Errorf("failed to scan calendar: %w", err)
		}
		c.Primary = c.ID == DefaultCalendarID
		calendars = append(calendars, c)
	}
	return calendars, rows.Err()
}

// QueryEvents loads the candidate series of the requested calendars and
// expands them over r
func (s *Store) QueryEvents(ctx context.Context, r models.DateRange, calendarIDs []string) ([]*models.CalendarEvent, error) {
	if s.db == nil {
		return nil, errors.New("local store not initialized")
	}
	if r.End.Before(r.Start) {
		return nil, models.ErrInvalidDateRange
	}
	if len(calendarIDs) == 0 {
		return nil, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(calendarIDs)), ",")
	query := `SELECT id, calendar_id, title, start_at, end_at, all_day, location, notes, rrule,
			(SELECT group_concat(occurrence_at) FROM event_exdates x WHERE x.event_id = events.id)
		FROM events
		WHERE calendar_id IN (` + placeholders + `)
		AND start_at <= ?
		AND (rrule != '' OR end_at >= ?)
		ORDER BY start_at, id`

	args := make([]any, 0, len(calendarIDs)+2)
	for _, id := range calendarIDs {
		args = append(args, id)
	}
	args = append(args, r.End.Unix(), r.Start.Unix())

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var series []recurrence.Series
	for rows.Next() {
		sr, err := s.scanSeries(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		series = append(series, *sr)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	events, problems, err := recurrence.ExpandAll(series, r, recurrence.DefaultMaxOccurrences)
	if err != nil {
		return nil, err
	}
	if len(problems) > 0 {
		s.logger.Warn("Some recurring events could not be fully expanded", "event_ids", problems)
	}
	return events, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func (s *Store) scanSeries(row scanner) (*recurrence.Series, error) {
	var (
		e          models.CalendarEvent
		start, end int64
		rule       string
		exdates    sql.NullString
	)
	err := row.Scan(&e.ID, &e.CalendarID, &e.Title, &start, &end, &e.IsAllDay, &e.Location, &e.Notes, &rule, &exdates)
	if err != nil {
		return nil, err
	}
	e.Start = time.Unix(start, 0).In(s.location)
	e.End = time.Unix(end, 0).In(s.location)
	if e.IsAllDay {
		e.Start, e.End = datemath.New(datemath.Monday, s.location).NormalizeAllDay(e.Start, e.End)
	}

	sr := &recurrence.Series{Master: e, Rule: rule}
	if exdates.Valid {
		for _, v := range strings.Split(exdates.String, ",") {
			secs, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid excluded occurrence %q: %w", v, err)
			}
			sr.ExDates = append(sr.ExDates, time.Unix(secs, 0).In(s.location))
		}
	}
	return sr, nil
}

// seriesStart returns the stored start and rule of an event
func (s *Store) seriesStart(ctx context.Context, tx *sql.Tx, uid string) (int64, string, error) {
	var (
		start int64
		rule  string
	)
	err := tx.QueryRowContext(ctx, `SELECT start_at, rrule FROM events WHERE id = ?`, uid).Scan(&start, &rule)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, "", fmt.Errorf("%s: %w", uid, calendar.ErrEventNotFound)
	}
	return start, rule, err
}

func (s *Store) calendarExists(ctx context.Context, tx *sql.Tx, id string) error {
	var found string
	err := tx.QueryRowContext(ctx, `SELECT id FROM calendars WHERE id = ?`, id).Scan(&found)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", id, calendar.ErrCalendarNotFound)
	}
	return err
}

// normalize aligns all-day spans to the days of the store location
func (s *Store) normalize(fields models.EventFields) models.EventFields {
	if fields.IsAllDay {
		fields.Start, fields.End = datemath.New(datemath.Monday, s.location).NormalizeAllDay(fields.Start, fields.End)
	}
	return fields
}

// CreateEvent inserts an event with a fresh uuid
func (s *Store) CreateEvent(ctx context.Context, fields models.EventFields) (*models.CalendarEvent, error) {
	if s.db == nil {
		return nil, errors.New("local store not initialized")
	}
	if err := fields.Validate(); err != nil {
		return nil, err
	}
	fields = s.normalize(fields)
	id := uuid.NewString()

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if err := s.calendarExists(ctx, tx, fields.CalendarID); err != nil {
			return err
		}
		return s.insert(ctx, tx, id, fields)
	})
	if err != nil {
		if errors.Is(err, calendar.ErrCalendarNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to create event: %w", err)
	}

	s.logger.Debug("Created local event", "event_id", id, "calendar_id", fields.CalendarID)
	return fields.ToEvent(id), nil
}

func (s *Store) insert(ctx context.Context, tx *sql.Tx, id string, fields models.EventFields) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO events (id, calendar_id, title, start_at, end_at, all_day, location, notes, rrule, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, fields.CalendarID, fields.Title, fields.Start.Unix(), fields.End.Unix(), fields.IsAllDay,
		fields.Location, fields.Notes, fields.Recurrence.RRule(), s.now().Unix())
	return err
}

// UpdateEvent replaces an event. An occurrence id other than the first one
// changes that occurrence and all later ones: the series is ended before it
// and the fields are stored as a new event, whose id is returned.
func (s *Store) UpdateEvent(ctx context.Context, id string, fields models.EventFields) (*models.CalendarEvent, error) {
	if s.db == nil {
		return nil, errors.New("local store not initialized")
	}
	if err := fields.Validate(); err != nil {
		return nil, err
	}
	fields = s.normalize(fields)
	uid, occurrence, isOccurrence := recurrence.SplitOccurrenceID(id)
	resultID := uid

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if err := s.calendarExists(ctx, tx, fields.CalendarID); err != nil {
			return err
		}
		if isOccurrence {
			start, rule, err := s.seriesStart(ctx, tx, uid)
			if err != nil {
				return err
			}
			if rule != "" && occurrence.Unix() > start {
				cut, err := recurrence.EndBefore(rule, occurrence)
				if err != nil {
					return err
				}
				if _, err := tx.ExecContext(ctx,
					`UPDATE events SET rrule = ?, updated_at = ? WHERE id = ?`,
					cut, s.now().Unix(), uid); err != nil {
					return err
				}
				resultID = uuid.NewString()
				return s.insert(ctx, tx, resultID, fields)
			}
		}
		res, err := tx.ExecContext(ctx,
			`UPDATE events SET calendar_id = ?, title = ?, start_at = ?, end_at = ?, all_day = ?,
				location = ?, notes = ?, rrule = ?, updated_at = ?
			 WHERE id = ?`,
			fields.CalendarID, fields.Title, fields.Start.Unix(), fields.End.Unix(), fields.IsAllDay,
			fields.Location, fields.Notes, fields.Recurrence.RRule(), s.now().Unix(), uid)
		if err != nil {
			return err
		}
		return requireRow(res, id)
	})
	if err != nil {
		if errors.Is(err, calendar.ErrCalendarNotFound) || errors.Is(err, calendar.ErrEventNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to update event: %w", err)
	}
	if resultID != uid {
		s.logger.Debug("Split recurring event", "event_id", uid, "new_event_id", resultID)
	}
	return fields.ToEvent(resultID), nil
}

// DeleteEvent removes an event. An occurrence id of a recurring event only
// excludes that occurrence from the series.
func (s *Store) DeleteEvent(ctx context.Context, id string) error {
	if s.db == nil {
		return errors.New("local store not initialized")
	}
	uid, occurrence, isOccurrence := recurrence.SplitOccurrenceID(id)

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if isOccurrence {
			_, rule, err := s.seriesStart(ctx, tx, uid)
			if err != nil {
				return err
			}
			if rule != "" {
				_, err := tx.ExecContext(ctx,
					`INSERT INTO event_exdates (event_id, occurrence_at) VALUES (?, ?)
					 ON CONFLICT(event_id, occurrence_at) DO NOTHING`,
					uid, occurrence.Unix())
				return err
			}
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM event_exdates WHERE event_id = ?`, uid); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM events WHERE id = ?`, uid)
		if err != nil {
			return err
		}
		return requireRow(res, id)
	})
	if err != nil {
		if errors.Is(err, calendar.ErrEventNotFound) {
			return err
		}
		return fmt.Errorf("failed to delete event: %w", err)
	}
	return nil
}

func requireRow(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", id, calendar.ErrEventNotFound)
	}
	return nil
}

func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// IsHealthy pings the database
func (s *Store) IsHealthy(ctx context.Context) error {
	if s.db == nil {
		return errors.New("local store not initialized")
	}
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	return nil
}

// Close closes the database
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}
