package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/venkytv/calendar-grid/pkg/grid"
)

func TestLoadConfig(t *testing.T) {
	tempDir := t.TempDir()
	configFile := filepath.Join(tempDir, "config.yaml")
	t.Setenv("CALDAV_PASSWORD", "s3cret")

	configContent := `
timezone: "Europe/Berlin"
week_start: "sunday"
language: "de"
view: "month"

stores:
  - name: "family"
    type: "ical"
    url: "https://example.com/family.ics"
  - name: "work"
    type: "caldav"
    url: "https://dav.example.com/"
    username: "me"
    password: "${CALDAV_PASSWORD}"
    timeout: "10s"
    priority: 1
  - name: "laptop"
    type: "local"
    path: "/tmp/calendar.db"
    calendar_ids: ["home", "todo"]

settings:
  backend: "sqlite"
  path: "/tmp/settings.db"

refresh:
  cron: "*/5 * * * *"

nats:
  enabled: true
  url: "nats://localhost:4222"
  subject: "calendar.grid"

logging:
  level: "debug"
  format: "text"
`

	if err := os.WriteFile(configFile, []byte(configContent), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	config, err := Load(configFile)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if len(config.Stores) != 3 {
		t.Fatalf("Expected 3 stores, got %d", len(config.Stores))
	}
	if config.Stores[0].Timeout != 30*time.Second {
		t.Errorf("Expected default timeout 30s, got %v", config.Stores[0].Timeout)
	}
	if config.Stores[1].Password != "s3cret" {
		t.Errorf("Expected password from environment, got %q", config.Stores[1].Password)
	}
	if config.Stores[1].Timeout != 10*time.Second || config.Stores[1].Priority != 1 {
		t.Errorf("Unexpected caldav store %+v", config.Stores[1])
	}
	if config.Location().String() != "Europe/Berlin" {
		t.Errorf("Expected Europe/Berlin, got %s", config.Location())
	}
	if config.ViewKind() != grid.MonthView {
		t.Errorf("Expected month view, got %v", config.ViewKind())
	}
	if config.Refresh.Cron != "*/5 * * * *" || config.Refresh.Timeout != time.Minute {
		t.Errorf("Unexpected refresh config %+v", config.Refresh)
	}
	if !config.Coordinator.DeduplicationEnabled || config.Coordinator.DeduplicationWindow != 5*time.Minute {
		t.Errorf("Expected default coordinator config, got %+v", config.Coordinator)
	}

	sc := config.Stores[2].ToStoreConfig(config.Location())
	if sc.Path != "/tmp/calendar.db" || len(sc.CalendarIDs) != 2 || sc.Location != config.Location() {
		t.Errorf("Unexpected store config %+v", sc)
	}
}

func TestConfigDefaults(t *testing.T) {
	config := Config{
		Stores: []StoreConfig{{Name: "feed", Type: "ical", Path: "/tmp/a.ics"}},
	}
	if err := config.validate(); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if config.Location() != time.Local {
		t.Errorf("Expected local time zone, got %s", config.Location())
	}
	if config.View != "week" {
		t.Errorf("Expected week view, got %s", config.View)
	}
	if config.Settings.Backend != "memory" {
		t.Errorf("Expected memory settings, got %s", config.Settings.Backend)
	}
	if config.Refresh.Cron != DefaultRefreshSchedule {
		t.Errorf("Expected default schedule, got %s", config.Refresh.Cron)
	}
	if config.Logging.Level != "info" || config.Logging.Format != "json" {
		t.Errorf("Unexpected logging defaults %+v", config.Logging)
	}
}

func TestConfigValidation(t *testing.T) {
	ical := StoreConfig{Name: "feed", Type: "ical", URL: "https://example.com/a.ics"}

	tests := []struct {
		name      string
		config    Config
		expectErr bool
	}{
		{
			name:   "valid config",
			config: Config{Stores: []StoreConfig{ical}},
		},
		{
			name:      "missing stores",
			config:    Config{},
			expectErr: true,
		},
		{
			name:      "missing store name",
			config:    Config{Stores: []StoreConfig{{Type: "ical", URL: "x"}}},
			expectErr: true,
		},
		{
			name:      "duplicate store names",
			config:    Config{Stores: []StoreConfig{ical, ical}},
			expectErr: true,
		},
		{
			name:      "unknown store type",
			config:    Config{Stores: []StoreConfig{{Name: "x", Type: "exchange"}}},
			expectErr: true,
		},
		{
			name:      "caldav without username",
			config:    Config{Stores: []StoreConfig{{Name: "x", Type: "caldav", URL: "https://dav"}}},
			expectErr: true,
		},
		{
			name:      "google without token path",
			config:    Config{Stores: []StoreConfig{{Name: "x", Type: "google", CredentialsPath: "c.json"}}},
			expectErr: true,
		},
		{
			name:      "local without path",
			config:    Config{Stores: []StoreConfig{{Name: "x", Type: "local"}}},
			expectErr: true,
		},
		{
			name:      "bad timezone",
			config:    Config{Timezone: "Mars/Olympus", Stores: []StoreConfig{ical}},
			expectErr: true,
		},
		{
			name:      "bad week start",
			config:    Config{WeekStart: "friday", Stores: []StoreConfig{ical}},
			expectErr: true,
		},
		{
			name:      "bad language",
			config:    Config{Language: "klingon", Stores: []StoreConfig{ical}},
			expectErr: true,
		},
		{
			name:      "bad view",
			config:    Config{View: "decade", Stores: []StoreConfig{ical}},
			expectErr: true,
		},
		{
			name:      "sqlite settings without path",
			config:    Config{Settings: SettingsConfig{Backend: "sqlite"}, Stores: []StoreConfig{ical}},
			expectErr: true,
		},
		{
			name:      "bad cron",
			config:    Config{Refresh: RefreshConfig{Cron: "every minute"}, Stores: []StoreConfig{ical}},
			expectErr: true,
		},
		{
			name:      "nats enabled without url",
			config:    Config{NATS: NATSConfig{Enabled: true}, Stores: []StoreConfig{ical}},
			expectErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.validate()
			if tt.expectErr && err == nil {
				t.Error("Expected validation error, got none")
			}
			if !tt.expectErr && err != nil {
				t.Errorf("Expected no validation error, got: %v", err)
			}
		})
	}
}
