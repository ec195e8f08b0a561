package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/venkytv/calendar-grid/internal/models"
)

const (
	focusSuffix  = ".focus"
	eventsSuffix = ".events"
)

// ErrNotConnected is returned when publishing without a usable connection
var ErrNotConnected = errors.New("NATS connection is not available")

// connection is the subset of *nats.Conn the publisher uses
type connection interface {
	Publish(subject string, data []byte) error
	FlushTimeout(timeout time.Duration) error
	IsClosed() bool
	IsConnected() bool
	Close()
}

// Publisher publishes navigation and event change messages to NATS
type Publisher struct {
	conn    connection
	subject string
	logger  *slog.Logger
}

// Config holds NATS publisher configuration
type Config struct {
	Enabled         bool          `yaml:"enabled"`
	URL             string        `yaml:"url"`
	Subject         string        `yaml:"subject"`
	ConnectTimeout  time.Duration `yaml:"connect_timeout"`
	ReconnectWait   time.Duration `yaml:"reconnect_wait"`
	MaxReconnects   int           `yaml:"max_reconnects"`
	PingInterval    time.Duration `yaml:"ping_interval"`
	MaxPingsOut     int           `yaml:"max_pings_out"`
	ReconnectBuffer int           `yaml:"reconnect_buffer"`
}

// DefaultConfig returns a default NATS configuration
func DefaultConfig() *Config {
	return &Config{
		URL:             "nats://localhost:4222",
		Subject:         "calendar.grid",
		ConnectTimeout:  5 * time.Second,
		ReconnectWait:   2 * time.Second,
		MaxReconnects:   10,
		PingInterval:    2 * time.Minute,
		MaxPingsOut:     2,
		ReconnectBuffer: 5 * 1024 * 1024, // 5MB
	}
}

// NewPublisher connects to NATS. A disabled config yields a publisher whose
// methods do nothing.
func NewPublisher(config *Config, logger *slog.Logger) (*Publisher, error) {
	if config == nil {
		config = DefaultConfig()
	}

	if logger == nil {
		logger = slog.Default()
	}

	if !config.Enabled {
		logger.Debug("NATS publishing disabled")
		return &Publisher{subject: config.Subject, logger: logger}, nil
	}

	options := []nats.Option{
		nats.Name("calendar-grid"),
		nats.Timeout(config.ConnectTimeout),
		nats.ReconnectWait(config.ReconnectWait),
		nats.MaxReconnects(config.MaxReconnects),
		nats.PingInterval(config.PingInterval),
		nats.MaxPingsOutstanding(config.MaxPingsOut),
		nats.ReconnectBufSize(config.ReconnectBuffer),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			logger.Warn("NATS disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("NATS reconnected", "url", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			logger.Info("NATS connection closed")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			subject := ""
			if sub != nil {
				subject = sub.Subject
			}
			logger.Error("NATS error", "error", err, "subject", subject)
		}),
	}

	conn, err := nats.Connect(config.URL, options...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", config.URL, err)
	}

	logger.Info("NATS publisher initialized",
		"url", config.URL,
		"subject", config.Subject,
		"connected_url", conn.ConnectedUrl())

	return &Publisher{
		conn:    conn,
		subject: config.Subject,
		logger:  logger,
	}, nil
}

// Enabled reports whether messages are actually sent
func (p *Publisher) Enabled() bool {
	return p.conn != nil
}

func (p *Publisher) publish(ctx context.Context, subject string, v any) error {
	if p.conn == nil {
		return nil
	}
	if p.conn.IsClosed() {
		return ErrNotConnected
	}

	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	if err := p.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", subject, err)
	}
	return nil
}

// PublishFocusChange publishes a navigation change to <subject>.focus
func (p *Publisher) PublishFocusChange(ctx context.Context, change *models.FocusChange) error {
	if err := p.publish(ctx, p.subject+focusSuffix, change); err != nil {
		return err
	}
	p.logger.Debug("Published focus change",
		"generation", change.Generation,
		"view", change.View,
		"current", change.Current.Format(time.DateOnly))
	return nil
}

// PublishEventChange publishes an event mutation to <subject>.events
func (p *Publisher) PublishEventChange(ctx context.Context, change *models.EventChange) error {
	if err := p.publish(ctx, p.subject+eventsSuffix, change); err != nil {
		return err
	}
	p.logger.Debug("Published event change",
		"action", change.Action,
		"event_id", change.EventID,
		"calendar_id", change.CalendarID)
	return nil
}

// Flush ensures all published messages have been sent
func (p *Publisher) Flush(timeout time.Duration) error {
	if p.conn == nil {
		return nil
	}
	if p.conn.IsClosed() {
		return ErrNotConnected
	}
	if err := p.conn.FlushTimeout(timeout); err != nil {
		return fmt.Errorf("failed to flush NATS messages: %w", err)
	}
	return nil
}

// IsHealthy checks if the NATS connection is healthy. A disabled publisher
// is always healthy.
func (p *Publisher) IsHealthy() error {
	if p.conn == nil {
		return nil
	}
	if p.conn.IsClosed() {
		return errors.New("NATS connection is closed")
	}
	if !p.conn.IsConnected() {
		return errors.New("NATS is not connected")
	}
	return nil
}

// Close flushes pending messages and closes the connection
func (p *Publisher) Close() error {
	if p.conn != nil && !p.conn.IsClosed() {
		if err := p.Flush(5 * time.Second); err != nil {
			p.logger.Warn("Failed to flush messages on close", "error", err)
		}
		p.conn.Close()
		p.logger.Info("NATS publisher closed")
	}
	return nil
}
