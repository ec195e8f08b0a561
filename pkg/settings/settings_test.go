package settings

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/venkytv/calendar-grid/internal/models"
	"github.com/venkytv/calendar-grid/pkg/datemath"
)

func strPtr(s string) *string { return &s }

// storeFactories lets every behavioural test run against both backends
var storeFactories = map[string]func(t *testing.T) Store{
	"memory": func(t *testing.T) Store { return NewMemoryStore() },
	"sqlite": func(t *testing.T) Store {
		s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "settings.db"))
		if err != nil {
			t.Fatalf("Failed to open sqlite store: %v", err)
		}
		t.Cleanup(func() { s.Close() })
		return s
	},
}

func TestStoreGetSet(t *testing.T) {
	ctx := context.Background()
	for name, newStore := range storeFactories {
		t.Run(name, func(t *testing.T) {
			s := newStore(t)

			if _, err := s.Get(ctx, KeyWeekStart); !errors.Is(err, ErrSettingUnavailable) {
				t.Errorf("Expected ErrSettingUnavailable, got %v", err)
			}
			if err := s.Set(ctx, KeyWeekStart, "sunday"); err != nil {
				t.Fatalf("Set failed: %v", err)
			}
			if err := s.Set(ctx, KeyWeekStart, "monday"); err != nil {
				t.Fatalf("Overwrite failed: %v", err)
			}
			v, err := s.Get(ctx, KeyWeekStart)
			if err != nil || v != "monday" {
				t.Errorf("Get = %q, %v", v, err)
			}
		})
	}
}

func TestStoreCustomizations(t *testing.T) {
	ctx := context.Background()
	for name, newStore := range storeFactories {
		t.Run(name, func(t *testing.T) {
			s := newStore(t)

			if _, err := s.Customization(ctx, "work"); !errors.Is(err, ErrSettingUnavailable) {
				t.Errorf("Expected ErrSettingUnavailable, got %v", err)
			}

			work := models.Customization{ID: "work", Nickname: strPtr("Office"), ColorHex: strPtr("#007AFF")}
			home := models.Customization{ID: "home", IsHidden: true}
			for _, c := range []models.Customization{work, home} {
				if err := s.SetCustomization(ctx, c); err != nil {
					t.Fatalf("SetCustomization failed: %v", err)
				}
			}

			got, err := s.Customization(ctx, "work")
			if err != nil {
				t.Fatalf("Customization failed: %v", err)
			}
			if got.Nickname == nil || *got.Nickname != "Office" || got.ColorHex == nil || *got.ColorHex != "#007AFF" {
				t.Errorf("Unexpected customization: %+v", got)
			}

			got, err = s.Customization(ctx, "home")
			if err != nil {
				t.Fatalf("Customization failed: %v", err)
			}
			if got.Nickname != nil || got.ColorHex != nil || !got.IsHidden {
				t.Errorf("Expected absent optional fields to stay nil: %+v", got)
			}

			list, err := s.Customizations(ctx)
			if err != nil {
				t.Fatalf("Customizations failed: %v", err)
			}
			if len(list) != 2 || list[0].ID != "home" || list[1].ID != "work" {
				t.Errorf("Expected records ordered by id, got %+v", list)
			}

			if err := s.DeleteCustomization(ctx, "home"); err != nil {
				t.Fatalf("DeleteCustomization failed: %v", err)
			}
			if _, err := s.Customization(ctx, "home"); !errors.Is(err, ErrSettingUnavailable) {
				t.Errorf("Expected deleted record to be gone, got %v", err)
			}
		})
	}
}

func TestSQLiteStorePersists(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "settings.db")

	s, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	if err := s.Set(ctx, KeyLanguage, "de"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	s.Close()

	s, err = NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("Failed to reopen store: %v", err)
	}
	defer s.Close()
	if v, err := s.Get(ctx, KeyLanguage); err != nil || v != "de" {
		t.Errorf("Expected persisted language, got %q, %v", v, err)
	}
}

func TestLoadDefaults(t *testing.T) {
	snap, err := Load(context.Background(), NewMemoryStore(), nil)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if snap.WeekStart != datemath.Monday {
		t.Errorf("Expected Monday default, got %v", snap.WeekStart)
	}
	if snap.Language != LanguageSystem || snap.ShowWeekNumbers || snap.DefaultCalendarID != "" {
		t.Errorf("Unexpected defaults: %+v", snap)
	}
}

func TestLoadStoredValues(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	store.Set(ctx, KeyWeekStart, "sunday")
	store.Set(ctx, KeyLanguage, "ZH-HANS")
	store.Set(ctx, KeyDefaultCalendarID, "work")
	store.Set(ctx, KeyShowWeekNumbers, "true")

	snap, err := Load(ctx, store, nil)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	expected := Snapshot{WeekStart: datemath.Sunday, Language: LanguageChinese, DefaultCalendarID: "work", ShowWeekNumbers: true}
	if snap != expected {
		t.Errorf("Expected %+v, got %+v", expected, snap)
	}
}

func TestLoadIgnoresInvalidValues(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	store.Set(ctx, KeyWeekStart, "friday")
	store.Set(ctx, KeyLanguage, "klingon")

	snap, err := Load(ctx, store, nil)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if snap.WeekStart != datemath.Monday || snap.Language != LanguageSystem {
		t.Errorf("Expected defaults for invalid values, got %+v", snap)
	}
}

func TestSettingsWeekStartChange(t *testing.T) {
	ctx := context.Background()
	s, err := New(ctx, NewMemoryStore(), time.UTC, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	cal := s.Calendar()
	if cal.WeekStart != datemath.Monday || cal.Location != time.UTC {
		t.Errorf("Unexpected calendar: %+v", cal)
	}

	if err := s.SetWeekStartDay(ctx, datemath.Sunday); err != nil {
		t.Fatalf("SetWeekStartDay failed: %v", err)
	}
	if s.Calendar().WeekStart != datemath.Sunday {
		t.Error("Expected new week start to be visible immediately")
	}
	// The earlier snapshot is unaffected
	if cal.WeekStart != datemath.Monday {
		t.Error("Existing snapshot must not change")
	}

	v, _ := s.Store().Get(ctx, KeyWeekStart)
	if v != "sunday" {
		t.Errorf("Expected persisted value sunday, got %q", v)
	}
}

func TestSettingsSetters(t *testing.T) {
	ctx := context.Background()
	s, err := New(ctx, NewMemoryStore(), nil, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	if err := s.SetLanguage(ctx, "tlh"); err == nil {
		t.Error("Expected unsupported language to be rejected")
	}
	if err := s.SetLanguage(ctx, LanguageFrench); err != nil {
		t.Fatalf("SetLanguage failed: %v", err)
	}
	if err := s.SetDefaultCalendarID(ctx, "home"); err != nil {
		t.Fatalf("SetDefaultCalendarID failed: %v", err)
	}
	if err := s.SetShowWeekNumbers(ctx, true); err != nil {
		t.Fatalf("SetShowWeekNumbers failed: %v", err)
	}

	snap := s.Snapshot()
	if snap.Language != LanguageFrench || snap.DefaultCalendarID != "home" || !snap.ShowWeekNumbers {
		t.Errorf("Unexpected snapshot: %+v", snap)
	}

	reloaded, err := Load(ctx, s.Store(), nil)
	if err != nil || reloaded != snap {
		t.Errorf("Expected stored values to reload to %+v, got %+v (%v)", snap, reloaded, err)
	}
}

func TestSettingsHiddenCalendars(t *testing.T) {
	ctx := context.Background()
	s, _ := New(ctx, NewMemoryStore(), nil, nil)

	if err := s.SetCustomization(ctx, models.Customization{ID: "work", Nickname: strPtr("Office")}); err != nil {
		t.Fatalf("SetCustomization failed: %v", err)
	}
	if err := s.SetHidden(ctx, "work", true); err != nil {
		t.Fatalf("SetHidden failed: %v", err)
	}
	if err := s.SetHidden(ctx, "birthdays", true); err != nil {
		t.Fatalf("SetHidden failed: %v", err)
	}

	ids, err := s.HiddenCalendarIDs(ctx)
	if err != nil {
		t.Fatalf("HiddenCalendarIDs failed: %v", err)
	}
	if strings.Join(ids, ",") != "birthdays,work" {
		t.Errorf("Unexpected hidden ids: %v", ids)
	}

	c, ok, err := s.Customization(ctx, "work")
	if err != nil || !ok {
		t.Fatalf("Customization lookup failed: %v %v", ok, err)
	}
	if c.Nickname == nil || *c.Nickname != "Office" {
		t.Error("SetHidden must keep the nickname")
	}

	_, ok, err = s.Customization(ctx, "unknown")
	if err != nil || ok {
		t.Errorf("Expected no record for unknown id, got %v %v", ok, err)
	}
}

func TestSetCustomizationValidates(t *testing.T) {
	ctx := context.Background()
	s, _ := New(ctx, NewMemoryStore(), nil, nil)

	if err := s.SetCustomization(ctx, models.Customization{}); err == nil {
		t.Error("Expected missing id to be rejected")
	}
	if err := s.SetCustomization(ctx, models.Customization{ID: "x", ColorHex: strPtr("red")}); err == nil {
		t.Error("Expected invalid colour to be rejected")
	}
}

func TestExportImportCustomizations(t *testing.T) {
	ctx := context.Background()
	src, _ := New(ctx, NewMemoryStore(), nil, nil)
	src.SetCustomization(ctx, models.Customization{ID: "work", ColorHex: strPtr("#34C759")})
	src.SetCustomization(ctx, models.Customization{ID: "home", Nickname: strPtr("Family"), IsHidden: true})

	var buf bytes.Buffer
	if err := src.ExportCustomizations(ctx, &buf); err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	if !strings.Contains(buf.String(), `"colorHex": "#34C759"`) || !strings.Contains(buf.String(), `"isHidden": true`) {
		t.Errorf("Unexpected export: %s", buf.String())
	}

	dst, _ := New(ctx, NewMemoryStore(), nil, nil)
	n, err := dst.ImportCustomizations(ctx, &buf)
	if err != nil {
		t.Fatalf("Import failed: %v", err)
	}
	if n != 2 {
		t.Errorf("Expected 2 imported records, got %d", n)
	}
	all, _ := dst.Customizations(ctx)
	if all["home"].Nickname == nil || *all["home"].Nickname != "Family" || !all["home"].IsHidden {
		t.Errorf("Unexpected imported record: %+v", all["home"])
	}

	if _, err := dst.ImportCustomizations(ctx, strings.NewReader("{")); err == nil {
		t.Error("Expected malformed JSON to fail")
	}
}

func TestExportEmpty(t *testing.T) {
	s, _ := New(context.Background(), NewMemoryStore(), nil, nil)
	var buf bytes.Buffer
	if err := s.ExportCustomizations(context.Background(), &buf); err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	if strings.TrimSpace(buf.String()) != "[]" {
		t.Errorf("Expected empty array, got %q", buf.String())
	}
}
