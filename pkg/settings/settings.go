package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/venkytv/calendar-grid/internal/models"
	"github.com/venkytv/calendar-grid/pkg/datemath"
)

// Language is the interface language preference
type Language string

const (
	LanguageSystem     Language = "system"
	LanguageEnglish    Language = "en"
	LanguageGerman     Language = "de"
	LanguageFrench     Language = "fr"
	LanguageSpanish    Language = "es"
	LanguageItalian    Language = "it"
	LanguageDutch      Language = "nl"
	LanguagePortuguese Language = "pt"
	LanguageJapanese   Language = "ja"
	LanguageChinese    Language = "zh-Hans"
)

// Languages lists the supported languages in display order
var Languages = []Language{
	LanguageSystem, LanguageEnglish, LanguageGerman, LanguageFrench, LanguageSpanish,
	LanguageItalian, LanguageDutch, LanguagePortuguese, LanguageJapanese, LanguageChinese,
}

// ParseLanguage matches a language code case-insensitively
func ParseLanguage(s string) (Language, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return LanguageSystem, nil
	}
	for _, l := range Languages {
		if strings.EqualFold(string(l), s) {
			return l, nil
		}
	}
	return LanguageSystem, fmt.Errorf("unsupported language: %q", s)
}

// Snapshot is an immutable copy of the preferences that affect computation
type Snapshot struct {
	WeekStart         datemath.WeekStartDay `json:"week_start"`
	Language          Language              `json:"language"`
	DefaultCalendarID string                `json:"default_calendar_id,omitempty"`
	ShowWeekNumbers   bool                  `json:"show_week_numbers"`
}

// Load reads a Snapshot from store. Missing values fall back to defaults;
// a missing week start means Monday.
func Load(ctx context.Context, store Store, logger *slog.Logger) (Snapshot, error) {
	if logger == nil {
		logger = slog.Default()
	}
	snap := Snapshot{WeekStart: datemath.Monday, Language: LanguageSystem}

	v, err := store.Get(ctx, KeyWeekStart)
	switch {
	case errors.Is(err, ErrSettingUnavailable):
		logger.Debug("Week start not set, defaulting to monday")
	case err != nil:
		return snap, err
	default:
		ws, perr := datemath.ParseWeekStartDay(v)
		if perr != nil {
			logger.Warn("Ignoring invalid week start", "value", v, "error", perr)
		} else {
			snap.WeekStart = ws
		}
	}

	if v, err := store.Get(ctx, KeyLanguage); err == nil {
		if lang, perr := ParseLanguage(v); perr == nil {
			snap.Language = lang
		} else {
			logger.Warn("Ignoring invalid language", "value", v, "error", perr)
		}
	} else if !errors.Is(err, ErrSettingUnavailable) {
		return snap, err
	}

	if v, err := store.Get(ctx, KeyDefaultCalendarID); err == nil {
		snap.DefaultCalendarID = v
	} else if !errors.Is(err, ErrSettingUnavailable) {
		return snap, err
	}

	if v, err := store.Get(ctx, KeyShowWeekNumbers); err == nil {
		snap.ShowWeekNumbers, _ = strconv.ParseBool(v)
	} else if !errors.Is(err, ErrSettingUnavailable) {
		return snap, err
	}

	return snap, nil
}

// Settings wraps a Store with typed accessors and keeps the latest Snapshot
// available without touching the store
type Settings struct {
	store    Store
	location *time.Location
	current  atomic.Pointer[Snapshot]
	logger   *slog.Logger
}

// New loads the current preferences from store
func New(ctx context.Context, store Store, loc *time.Location, logger *slog.Logger) (*Settings, error) {
	if logger == nil {
		logger = slog.Default()
	}
	snap, err := Load(ctx, store, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to load settings: %w", err)
	}
	s := &Settings{store: store, location: loc, logger: logger}
	s.current.Store(&snap)
	return s, nil
}

// Store returns the underlying store
func (s *Settings) Store() Store {
	return s.store
}

// Snapshot returns the latest preferences
func (s *Settings) Snapshot() Snapshot {
	return *s.current.Load()
}

// Calendar returns a date-math snapshot for the current week start
func (s *Settings) Calendar() datemath.Calendar {
	return datemath.New(s.Snapshot().WeekStart, s.location)
}

func (s *Settings) update(fn func(*Snapshot)) {
	for {
		old := s.current.Load()
		next := *old
		fn(&next)
		if s.current.CompareAndSwap(old, &next) {
			return
		}
	}
}

// WeekStartDay returns the stored week start, Monday when unset
func (s *Settings) WeekStartDay() datemath.WeekStartDay {
	return s.Snapshot().WeekStart
}

// SetWeekStartDay persists the week start. Computations started after this
// returns use the new value.
func (s *Settings) SetWeekStartDay(ctx context.Context, ws datemath.WeekStartDay) error {
	if err := s.store.Set(ctx, KeyWeekStart, ws.String()); err != nil {
		return err
	}
	s.update(func(snap *Snapshot) { snap.WeekStart = ws })
	s.logger.Info("Week start changed", "week_start", ws.String())
	return nil
}

// SetLanguage persists the language
func (s *Settings) SetLanguage(ctx context.Context, lang Language) error {
	if _, err := ParseLanguage(string(lang)); err != nil {
		return err
	}
	if err := s.store.Set(ctx, KeyLanguage, string(lang)); err != nil {
		return err
	}
	s.update(func(snap *Snapshot) { snap.Language = lang })
	return nil
}

// SetDefaultCalendarID persists the calendar new events go to
func (s *Settings) SetDefaultCalendarID(ctx context.Context, id string) error {
	if err := s.store.Set(ctx, KeyDefaultCalendarID, id); err != nil {
		return err
	}
	s.update(func(snap *Snapshot) { snap.DefaultCalendarID = id })
	return nil
}

// SetShowWeekNumbers persists the week number preference
func (s *Settings) SetShowWeekNumbers(ctx context.Context, show bool) error {
	if err := s.store.Set(ctx, KeyShowWeekNumbers, strconv.FormatBool(show)); err != nil {
		return err
	}
	s.update(func(snap *Snapshot) { snap.ShowWeekNumbers = show })
	return nil
}

// Customization returns the record for id. The boolean is false when the
// calendar has never been customized.
func (s *Settings) Customization(ctx context.Context, id string) (models.Customization, bool, error) {
	c, err := s.store.Customization(ctx, id)
	if errors.Is(err, ErrSettingUnavailable) {
		return models.Customization{ID: id}, false, nil
	}
	if err != nil {
		return models.Customization{}, false, err
	}
	return c, true, nil
}

// SetCustomization stores c, replacing any previous record for its id
func (s *Settings) SetCustomization(ctx context.Context, c models.Customization) error {
	if c.ID == "" {
		return errors.New("customization id is required")
	}
	if c.ColorHex != nil {
		if _, err := models.ParseHex(*c.ColorHex); err != nil {
			return err
		}
	}
	return s.store.SetCustomization(ctx, c)
}

// Customizations returns every stored record keyed by calendar id
func (s *Settings) Customizations(ctx context.Context) (map[string]models.Customization, error) {
	list, err := s.store.Customizations(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]models.Customization, len(list))
	for _, c := range list {
		out[c.ID] = c
	}
	return out, nil
}

// HiddenCalendarIDs returns the sorted ids of hidden calendars
func (s *Settings) HiddenCalendarIDs(ctx context.Context) ([]string, error) {
	list, err := s.store.Customizations(ctx)
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, c := range list {
		if c.IsHidden {
			ids = append(ids, c.ID)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// SetHidden toggles the hidden flag of a calendar, keeping other overrides
func (s *Settings) SetHidden(ctx context.Context, id string, hidden bool) error {
	c, _, err := s.Customization(ctx, id)
	if err != nil {
		return err
	}
	c.IsHidden = hidden
	return s.store.SetCustomization(ctx, c)
}

// ExportCustomizations writes every customization as a flat JSON array
func (s *Settings) ExportCustomizations(ctx context.Context, w io.Writer) error {
	list, err := s.store.Customizations(ctx)
	if err != nil {
		return err
	}
	if list == nil {
		list = []models.Customization{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(list); err != nil {
		return fmt.Errorf("failed to encode customizations: %w", err)
	}
	return nil
}

// ImportCustomizations reads a JSON array written by ExportCustomizations and
// stores each record. It returns the number of records imported.
func (s *Settings) ImportCustomizations(ctx context.Context, r io.Reader) (int, error) {
	var list []models.Customization
	if err := json.NewDecoder(r).Decode(&list); err != nil {
		return 0, fmt.Errorf("failed to decode customizations: %w", err)
	}
	for i, c := range list {
		if err := s.SetCustomization(ctx, c); err != nil {
			return i, fmt.Errorf("failed to import customization %q: %w", c.ID, err)
		}
	}
	s.logger.Info("Imported customizations", "count", len(list))
	return len(list), nil
}

// Close closes the underlying store
func (s *Settings) Close() error {
	return s.store.Close()
}
