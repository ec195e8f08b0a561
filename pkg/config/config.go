package config

import (
	"fmt"
	"os"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"github.com/venkytv/calendar-grid/pkg/calendar"
	"github.com/venkytv/calendar-grid/pkg/datemath"
	"github.com/venkytv/calendar-grid/pkg/grid"
	"github.com/venkytv/calendar-grid/pkg/settings"
)

// DefaultRefreshSchedule re-fetches the visible range every quarter hour
const DefaultRefreshSchedule = "*/15 * * * *"

type Config struct {
	Timezone    string                     `yaml:"timezone"`
	WeekStart   string                     `yaml:"week_start"`
	Language    string                     `yaml:"language"`
	View        string                     `yaml:"view"`
	Stores      []StoreConfig              `yaml:"stores"`
	Settings    SettingsConfig             `yaml:"settings"`
	Refresh     RefreshConfig              `yaml:"refresh"`
	NATS        NATSConfig                 `yaml:"nats"`
	Logging     LoggingConfig              `yaml:"logging"`
	Coordinator calendar.CoordinatorConfig `yaml:"coordinator"`

	location *time.Location
}

type StoreConfig struct {
	Name            string        `yaml:"name"`
	Type            string        `yaml:"type"`
	URL             string        `yaml:"url"`
	Path            string        `yaml:"path"`
	Username        string        `yaml:"username"`
	Password        string        `yaml:"password"`
	CredentialsPath string        `yaml:"credentials_path"`
	TokenPath       string        `yaml:"token_path"`
	CalendarIDs     []string      `yaml:"calendar_ids"`
	Timeout         time.Duration `yaml:"timeout"`
	Priority        int           `yaml:"priority"`
}

type SettingsConfig struct {
	// Backend is "memory" or "sqlite"
	Backend string `yaml:"backend"`
	Path    string `yaml:"path"`
}

type RefreshConfig struct {
	Cron    string        `yaml:"cron"`
	Timeout time.Duration `yaml:"timeout"`
}

type NATSConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
	Subject string `yaml:"subject"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

func (c *Config) validate() error {
	if len(c.Stores) == 0 {
		return fmt.Errorf("at least one store must be configured")
	}

	names := make(map[string]bool)
	for i, s := range c.Stores {
		if s.Name == "" {
			return fmt.Errorf("stores[%d]: name is required", i)
		}
		if names[s.Name] {
			return fmt.Errorf("stores[%d]: duplicate name %q", i, s.Name)
		}
		names[s.Name] = true

		switch s.Type {
		case "ical":
			if s.URL == "" && s.Path == "" {
				return fmt.Errorf("stores[%d]: url or path is required", i)
			}
		case "caldav":
			if s.URL == "" || s.Username == "" {
				return fmt.Errorf("stores[%d]: url and username are required", i)
			}
		case "google":
			if s.CredentialsPath == "" || s.TokenPath == "" {
				return fmt.Errorf("stores[%d]: credentials_path and token_path are required", i)
			}
		case "local":
			if s.Path == "" {
				return fmt.Errorf("stores[%d]: path is required", i)
			}
		case "":
			return fmt.Errorf("stores[%d]: type is required", i)
		default:
			return fmt.Errorf("stores[%d]: unknown type %q", i, s.Type)
		}

		if s.Timeout == 0 {
			c.Stores[i].Timeout = 30 * time.Second
		}
	}

	if c.Timezone == "" {
		c.location = time.Local
	} else {
		loc, err := time.LoadLocation(c.Timezone)
		if err != nil {
			return fmt.Errorf("timezone: %w", err)
		}
		c.location = loc
	}

	if c.WeekStart != "" {
		if _, err := datemath.ParseWeekStartDay(c.WeekStart); err != nil {
			return fmt.Errorf("week_start: %w", err)
		}
	}
	if _, err := settings.ParseLanguage(c.Language); err != nil {
		return fmt.Errorf("language: %w", err)
	}
	if c.View == "" {
		c.View = grid.WeekView.String()
	}
	if _, err := grid.ParseViewKind(c.View); err != nil {
		return fmt.Errorf("view: %w", err)
	}

	switch c.Settings.Backend {
	case "":
		c.Settings.Backend = "memory"
	case "memory":
	case "sqlite":
		if c.Settings.Path == "" {
			return fmt.Errorf("settings: path is required for the sqlite backend")
		}
	default:
		return fmt.Errorf("settings: unknown backend %q", c.Settings.Backend)
	}

	if c.Refresh.Cron == "" {
		c.Refresh.Cron = DefaultRefreshSchedule
	}
	if _, err := cron.ParseStandard(c.Refresh.Cron); err != nil {
		return fmt.Errorf("refresh.cron: %w", err)
	}
	if c.Refresh.Timeout == 0 {
		c.Refresh.Timeout = time.Minute
	}

	if c.NATS.Enabled {
		if c.NATS.URL == "" {
			return fmt.Errorf("NATS URL is required when NATS is enabled")
		}
		if c.NATS.Subject == "" {
			c.NATS.Subject = "calendar.grid"
		}
	}

	if c.Coordinator.DeduplicationWindow == 0 && !c.Coordinator.DeduplicationEnabled {
		c.Coordinator = *calendar.DefaultCoordinatorConfig()
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}

	return nil
}

// Location returns the zone named by timezone, time.Local when unset
func (c *Config) Location() *time.Location {
	if c.location == nil {
		return time.Local
	}
	return c.location
}

// ViewKind returns the parsed initial view
func (c *Config) ViewKind() grid.ViewKind {
	v, err := grid.ParseViewKind(c.View)
	if err != nil {
		return grid.WeekView
	}
	return v
}

// StoreConfig converts a store entry into the settings passed to the store
func (s StoreConfig) ToStoreConfig(loc *time.Location) calendar.StoreConfig {
	return calendar.StoreConfig{
		Name:            s.Name,
		URL:             s.URL,
		Path:            s.Path,
		Username:        s.Username,
		Password:        s.Password,
		CredentialsPath: s.CredentialsPath,
		TokenPath:       s.TokenPath,
		CalendarIDs:     s.CalendarIDs,
		Timeout:         s.Timeout,
		Priority:        s.Priority,
		Location:        loc,
	}
}
