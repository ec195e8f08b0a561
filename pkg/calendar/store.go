package calendar

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/venkytv/calendar-grid/internal/models"
)

var (
	// ErrCalendarNotFound is returned when no store owns a calendar id
	ErrCalendarNotFound = errors.New("calendar not found")
	// ErrEventNotFound is returned when an event id is unknown to its store
	ErrEventNotFound = errors.New("event not found")
	// ErrReadOnly is returned by stores that cannot be written to
	ErrReadOnly = errors.New("calendar store is read-only")
)

// StoreConfig carries the settings a store needs to connect
type StoreConfig struct {
	Name string
	// URL is the ICS feed or CalDAV endpoint
	URL      string
	Path     string
	Username string
	Password string
	// CredentialsPath points at OAuth2 client credentials
	CredentialsPath string
	TokenPath       string
	CalendarIDs     []string
	Timeout         time.Duration
	Priority        int
	// Location is the zone floating and all-day times are read in
	Location *time.Location
}

// Store defines the interface every calendar backend must satisfy
type Store interface {
	// Name returns the configured name of the store
	Name() string

	// Type returns the store type identifier (e.g., "google", "caldav")
	Type() string

	// Initialize connects the store using its configuration
	Initialize(ctx context.Context, cfg StoreConfig) error

	// Calendars lists the calendars this store serves
	Calendars(ctx context.Context) ([]*Calendar, error)

	// QueryEvents returns events overlapping r in the given calendars
	QueryEvents(ctx context.Context, r models.DateRange, calendarIDs []string) ([]*models.CalendarEvent, error)

	// CreateEvent stores a new event and returns it with its assigned id
	CreateEvent(ctx context.Context, fields models.EventFields) (*models.CalendarEvent, error)

	// UpdateEvent replaces the fields of an existing event
	UpdateEvent(ctx context.Context, id string, fields models.EventFields) (*models.CalendarEvent, error)

	// DeleteEvent removes an event
	DeleteEvent(ctx context.Context, id string) error

	// IsHealthy performs a health check on the store
	IsHealthy(ctx context.Context) error

	// Close cleans up any resources used by the store
	Close() error
}

// LoggerSetter is implemented by stores that accept a logger
type LoggerSetter interface {
	SetLogger(logger *slog.Logger)
}

// StoreFactory creates stores by type
type StoreFactory interface {
	// CreateStore creates a new, uninitialized store
	CreateStore(storeType string) (Store, error)

	// SupportedTypes returns the registered store types
	SupportedTypes() []string
}

// ChangePublisher receives event mutations
type ChangePublisher interface {
	PublishEventChange(ctx context.Context, change *models.EventChange) error
}
