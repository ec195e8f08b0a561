// Package settings persists user preferences and calendar customizations.
package settings

import (
	"context"
	"errors"

	"github.com/venkytv/calendar-grid/internal/models"
)

// ErrSettingUnavailable is returned when a preference has never been stored
var ErrSettingUnavailable = errors.New("setting unavailable")

// Keys of the stored preferences
const (
	KeyWeekStart         = "week_start"
	KeyLanguage          = "language"
	KeyDefaultCalendarID = "default_calendar_id"
	KeyShowWeekNumbers   = "show_week_numbers"
)

// Store is a key-value preference store with a separate table of
// customizations keyed by calendar id
type Store interface {
	// Get returns ErrSettingUnavailable when key has no value
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error

	// Customization returns ErrSettingUnavailable when id has no record
	Customization(ctx context.Context, id string) (models.Customization, error)
	SetCustomization(ctx context.Context, c models.Customization) error
	DeleteCustomization(ctx context.Context, id string) error
	// Customizations returns every record ordered by id
	Customizations(ctx context.Context) ([]models.Customization, error)

	Close() error
}
