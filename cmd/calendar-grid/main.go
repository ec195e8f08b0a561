package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/venkytv/calendar-grid/pkg/calendar"
	"github.com/venkytv/calendar-grid/pkg/calendar/ical"
	"github.com/venkytv/calendar-grid/pkg/calendar/providers"
	"github.com/venkytv/calendar-grid/pkg/config"
	"github.com/venkytv/calendar-grid/pkg/datemath"
	"github.com/venkytv/calendar-grid/pkg/grid"
	"github.com/venkytv/calendar-grid/pkg/nats"
	"github.com/venkytv/calendar-grid/pkg/navigator"
	"github.com/venkytv/calendar-grid/pkg/refresh"
	"github.com/venkytv/calendar-grid/pkg/settings"
)

const (
	defaultConfigPath = "config.yaml"
	gracefulTimeout   = 30 * time.Second
)

var (
	configPath = flag.String("config", defaultConfigPath, "Path to configuration file")
	viewFlag   = flag.String("view", "", "Initial view: week, month or year (overrides config)")
	dateFlag   = flag.String("date", "", "Focus date as YYYY-MM-DD (default today)")
	version    = flag.Bool("version", false, "Print version information")
	debug      = flag.Bool("debug", false, "Enable debug logging")
	watch      = flag.Bool("watch", false, "Keep running, refresh on schedule and read navigation commands from stdin")
	exportPath = flag.String("export", "", "Write the events of the visible range to an .ics file")
)

// Version information - can be set at build time
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

func main() {
	flag.Parse()

	if *version {
		printVersion()
		os.Exit(0)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)

	app, err := NewApp(ctx, *configPath, *debug)
	if err != nil {
		cancel()
		fmt.Fprintf(os.Stderr, "Failed to initialize application: %v\n", err)
		os.Exit(1)
	}

	code := app.Run(ctx, *viewFlag, *dateFlag, os.Stdin, os.Stdout)
	cancel()
	os.Exit(code)
}

// Run focuses the navigator, renders once or watches, and returns the exit
// code. The app is closed before Run returns.
func (a *App) Run(ctx context.Context, view, date string, in io.Reader, out io.Writer) int {
	defer a.Close()

	if err := a.Focus(view, date); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 2
	}

	var err error
	if *watch {
		err = a.Watch(ctx, in, out)
	} else {
		err = a.Once(ctx, out, *exportPath)
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		a.logger.Error("Calendar grid failed", "error", err)
		return 1
	}
	return 0
}

// App holds the main application components
type App struct {
	config    *config.Config
	logger    *slog.Logger
	settings  *settings.Settings
	manager   *calendar.Manager
	navigator *navigator.Navigator
	refresher *refresh.Refresher
	publisher *nats.Publisher
}

// NewApp creates a new application instance
func NewApp(ctx context.Context, configPath string, debugMode bool) (*App, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger := setupLogger(cfg.Logging, debugMode)
	logger.Info("Starting calendar grid",
		"version", Version,
		"commit", GitCommit,
		"build_time", BuildTime,
		"config_path", configPath)

	prefs, err := openSettings(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	factory := calendar.NewDefaultStoreFactory()
	providers.InitializeBuiltinStores(factory)
	manager := calendar.NewManagerWithCoordinator(factory, prefs, &cfg.Coordinator, logger)

	for _, storeCfg := range cfg.Stores {
		if err := manager.CreateStore(ctx, storeCfg.Type, storeCfg.ToStoreConfig(cfg.Location())); err != nil {
			manager.Close()
			prefs.Close()
			return nil, err
		}
	}

	publisher, err := nats.NewPublisher(&nats.Config{
		Enabled:         cfg.NATS.Enabled,
		URL:             cfg.NATS.URL,
		Subject:         cfg.NATS.Subject,
		ConnectTimeout:  5 * time.Second,
		ReconnectWait:   2 * time.Second,
		MaxReconnects:   10,
		PingInterval:    2 * time.Minute,
		MaxPingsOut:     2,
		ReconnectBuffer: 5 * 1024 * 1024,
	}, logger)
	if err != nil {
		manager.Close()
		prefs.Close()
		return nil, fmt.Errorf("failed to create NATS publisher: %w", err)
	}
	manager.SetPublisher(publisher)

	nav := navigator.New(navigator.Options{
		Calendar: prefs.Calendar,
		View:     cfg.ViewKind(),
		Logger:   logger,
	})

	refresher := refresh.New(&refresh.Config{
		Schedule: cfg.Refresh.Cron,
		Timeout:  cfg.Refresh.Timeout,
		Location: cfg.Location(),
	}, nav, manager, manager, logger)
	refresher.SetPublisher(publisher)

	return &App{
		config:    cfg,
		logger:    logger,
		settings:  prefs,
		manager:   manager,
		navigator: nav,
		refresher: refresher,
		publisher: publisher,
	}, nil
}

// openSettings opens the configured settings backend and seeds preferences
// that the store has never recorded from the config file
func openSettings(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*settings.Settings, error) {
	var store settings.Store
	switch cfg.Settings.Backend {
	case "sqlite":
		s, err := settings.NewSQLiteStore(cfg.Settings.Path)
		if err != nil {
			return nil, err
		}
		store = s
	default:
		store = settings.NewMemoryStore()
	}

	seeds := map[string]string{
		settings.KeyWeekStart: cfg.WeekStart,
		settings.KeyLanguage:  cfg.Language,
	}
	for key, value := range seeds {
		if value == "" {
			continue
		}
		if _, err := store.Get(ctx, key); errors.Is(err, settings.ErrSettingUnavailable) {
			if err := store.Set(ctx, key, value); err != nil {
				store.Close()
				return nil, fmt.Errorf("failed to seed setting %s: %w", key, err)
			}
		}
	}

	prefs, err := settings.New(ctx, store, cfg.Location(), logger)
	if err != nil {
		store.Close()
		return nil, err
	}
	return prefs, nil
}

// Focus applies the -view and -date flags
func (a *App) Focus(view, date string) error {
	if view != "" {
		v, err := grid.ParseViewKind(view)
		if err != nil {
			return err
		}
		a.navigator.SetView(v)
	}
	if date != "" {
		d, err := time.ParseInLocation(time.DateOnly, date, a.config.Location())
		if err != nil {
			return fmt.Errorf("invalid date %q: %w", date, err)
		}
		a.navigator.GoToDate(d)
	}
	return nil
}

func (a *App) renderer(ctx context.Context) *renderer {
	// refreshes the colour table used for placements
	if _, err := a.manager.Calendars(ctx); err != nil {
		a.logger.Warn("Failed to load calendars", "error", err)
	}
	return &renderer{
		cal:             a.settings.Calendar(),
		colors:          a.manager,
		showWeekNumbers: a.settings.Snapshot().ShowWeekNumbers,
	}
}

// Once fetches and prints the current grid, optionally exporting its events
func (a *App) Once(ctx context.Context, out io.Writer, exportPath string) error {
	if err := a.refresher.Refresh(ctx); err != nil {
		return err
	}
	snap, _ := a.refresher.Snapshot()

	if err := a.renderer(ctx).Render(out, snap); err != nil {
		return err
	}

	if exportPath != "" {
		if err := exportEvents(exportPath, snap); err != nil {
			return err
		}
		a.logger.Info("Exported events", "path", exportPath, "event_count", len(snap.Events))
	}
	return nil
}

func exportEvents(path string, snap refresh.Snapshot) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create export file: %w", err)
	}
	if err := ical.Encode(f, "calendar-grid "+snap.Range.String(), snap.Events); err != nil {
		f.Close()
		return fmt.Errorf("failed to export events: %w", err)
	}
	return f.Close()
}

// Watch runs the refresher and applies navigation commands read from in
// until "q", end of input or cancellation
func (a *App) Watch(ctx context.Context, in io.Reader, out io.Writer) error {
	r := a.renderer(ctx)
	a.refresher.OnUpdate(func(snap refresh.Snapshot) {
		r.cal = a.settings.Calendar()
		if err := r.Render(out, snap); err != nil {
			a.logger.Warn("Failed to render grid", "error", err)
		}
	})

	if err := a.refresher.Start(ctx); err != nil {
		return err
	}
	defer a.refresher.Stop()

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			quit, err := a.apply(line)
			if err != nil {
				fmt.Fprintf(out, "error: %v\n", err)
				continue
			}
			if quit {
				return nil
			}
		}
	}
}

// apply executes one navigation command
func (a *App) apply(line string) (quit bool, err error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false, nil
	}

	switch fields[0] {
	case "n", "next":
		a.navigator.Next()
	case "p", "prev":
		a.navigator.Previous()
	case "t", "today":
		a.navigator.GoToToday()
	case "g", "goto":
		if len(fields) != 2 {
			return false, errors.New("usage: g YYYY-MM-DD")
		}
		d, err := time.ParseInLocation(time.DateOnly, fields[1], a.config.Location())
		if err != nil {
			return false, fmt.Errorf("invalid date %q", fields[1])
		}
		a.navigator.GoToDate(d)
	case "v", "view":
		if len(fields) != 2 {
			return false, errors.New("usage: v week|month|year")
		}
		v, err := grid.ParseViewKind(fields[1])
		if err != nil {
			return false, err
		}
		a.navigator.SetView(v)
	case "w", "weekstart":
		if len(fields) != 2 {
			return false, errors.New("usage: w monday|sunday")
		}
		ws, err := datemath.ParseWeekStartDay(fields[1])
		if err != nil {
			return false, err
		}
		if err := a.settings.SetWeekStartDay(context.Background(), ws); err != nil {
			return false, err
		}
		a.refresher.Trigger()
	case "r", "refresh":
		a.refresher.Trigger()
	case "q", "quit":
		return true, nil
	default:
		return false, fmt.Errorf("unknown command %q", fields[0])
	}
	return false, nil
}

// Close releases every component
func (a *App) Close() {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), gracefulTimeout)
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := a.publisher.Close(); err != nil {
			a.logger.Error("Error closing NATS publisher", "error", err)
		}
		if err := a.manager.Close(); err != nil {
			a.logger.Error("Error closing calendar manager", "error", err)
		}
		if err := a.settings.Close(); err != nil {
			a.logger.Error("Error closing settings", "error", err)
		}
	}()

	select {
	case <-done:
	case <-shutdownCtx.Done():
		a.logger.Warn("Timed out during shutdown")
	}
}

// setupLogger configures the application logger. Logs go to stderr so the
// grid on stdout stays readable.
func setupLogger(cfg config.LoggingConfig, debugMode bool) *slog.Logger {
	var level slog.Level

	if debugMode {
		level = slog.LevelDebug
	} else {
		switch cfg.Level {
		case "debug":
			level = slog.LevelDebug
		case "warn":
			level = slog.LevelWarn
		case "error":
			level = slog.LevelError
		default:
			level = slog.LevelInfo
		}
	}

	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: level}

	switch cfg.Format {
	case "text":
		handler = slog.NewTextHandler(os.Stderr, opts)
	default:
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}

	return slog.New(handler)
}

// printVersion prints version information
func printVersion() {
	fmt.Printf("Calendar Grid %s\n", Version)
	fmt.Printf("Git Commit: %s\n", GitCommit)
	fmt.Printf("Build Time: %s\n", BuildTime)
}
