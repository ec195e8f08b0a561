package nats

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/venkytv/calendar-grid/internal/models"
	"github.com/venkytv/calendar-grid/pkg/calendar"
)

var _ calendar.ChangePublisher = (*Publisher)(nil)

type message struct {
	subject string
	data    []byte
}

// MockConn records published messages
type MockConn struct {
	messages   []message
	closed     bool
	connected  bool
	flushed    int
	publishErr error
}

func (m *MockConn) Publish(subject string, data []byte) error {
	if m.publishErr != nil {
		return m.publishErr
	}
	m.messages = append(m.messages, message{subject: subject, data: data})
	return nil
}

func (m *MockConn) FlushTimeout(time.Duration) error {
	m.flushed++
	return nil
}

func (m *MockConn) IsClosed() bool    { return m.closed }
func (m *MockConn) IsConnected() bool { return m.connected && !m.closed }
func (m *MockConn) Close()            { m.closed = true }

func newMockPublisher() (*Publisher, *MockConn) {
	conn := &MockConn{connected: true}
	return &Publisher{conn: conn, subject: "test.grid", logger: slog.Default()}, conn
}

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	if config.Enabled {
		t.Error("Expected publishing to be disabled by default")
	}
	if config.URL != "nats://localhost:4222" {
		t.Errorf("Expected default URL to be 'nats://localhost:4222', got %s", config.URL)
	}
	if config.Subject != "calendar.grid" {
		t.Errorf("Expected default subject to be 'calendar.grid', got %s", config.Subject)
	}
	if config.ConnectTimeout != 5*time.Second {
		t.Errorf("Expected default connect timeout to be 5s, got %v", config.ConnectTimeout)
	}
}

func TestNewPublisher_Disabled(t *testing.T) {
	p, err := NewPublisher(&Config{Subject: "x"}, nil)
	if err != nil {
		t.Fatalf("NewPublisher() unexpected error: %v", err)
	}
	if p.Enabled() {
		t.Error("Expected disabled publisher")
	}

	ctx := context.Background()
	if err := p.PublishFocusChange(ctx, &models.FocusChange{}); err != nil {
		t.Errorf("Expected no-op focus publish, got %v", err)
	}
	if err := p.PublishEventChange(ctx, &models.EventChange{}); err != nil {
		t.Errorf("Expected no-op event publish, got %v", err)
	}
	if err := p.IsHealthy(); err != nil {
		t.Errorf("Expected disabled publisher to be healthy, got %v", err)
	}
	if err := p.Close(); err != nil {
		t.Errorf("Close() unexpected error: %v", err)
	}
}

func TestPublishFocusChange(t *testing.T) {
	p, conn := newMockPublisher()

	change := &models.FocusChange{
		Generation: 3,
		View:       "week",
		Previous:   time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC),
		Current:    time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC),
	}
	if err := p.PublishFocusChange(context.Background(), change); err != nil {
		t.Fatalf("PublishFocusChange() unexpected error: %v", err)
	}

	if len(conn.messages) != 1 {
		t.Fatalf("Expected 1 message, got %d", len(conn.messages))
	}
	if conn.messages[0].subject != "test.grid.focus" {
		t.Errorf("Expected subject test.grid.focus, got %s", conn.messages[0].subject)
	}

	var decoded models.FocusChange
	if err := json.Unmarshal(conn.messages[0].data, &decoded); err != nil {
		t.Fatalf("Failed to decode message: %v", err)
	}
	if decoded.Generation != 3 || decoded.View != "week" || !decoded.Current.Equal(change.Current) {
		t.Errorf("Unexpected decoded message %+v", decoded)
	}
}

func TestPublishEventChange(t *testing.T) {
	p, conn := newMockPublisher()

	event := &models.CalendarEvent{ID: "e1", Title: "Dentist", CalendarID: "home"}
	change := models.NewEventChange(models.EventDeleted, event, time.Now())
	if err := p.PublishEventChange(context.Background(), change); err != nil {
		t.Fatalf("PublishEventChange() unexpected error: %v", err)
	}

	if len(conn.messages) != 1 || conn.messages[0].subject != "test.grid.events" {
		t.Fatalf("Unexpected messages %+v", conn.messages)
	}

	var decoded map[string]any
	if err := json.Unmarshal(conn.messages[0].data, &decoded); err != nil {
		t.Fatalf("Failed to decode message: %v", err)
	}
	if decoded["action"] != "deleted" || decoded["event_id"] != "e1" {
		t.Errorf("Unexpected payload %v", decoded)
	}
}

func TestPublish_Errors(t *testing.T) {
	p, conn := newMockPublisher()

	conn.publishErr = errors.New("boom")
	if err := p.PublishEventChange(context.Background(), &models.EventChange{}); err == nil {
		t.Error("Expected publish error to be returned")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	conn.publishErr = nil
	if err := p.PublishFocusChange(ctx, &models.FocusChange{}); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}

	conn.closed = true
	if err := p.PublishFocusChange(context.Background(), &models.FocusChange{}); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Expected ErrNotConnected, got %v", err)
	}
}

func TestPublisherHealthCheck(t *testing.T) {
	p, conn := newMockPublisher()

	if err := p.IsHealthy(); err != nil {
		t.Errorf("Expected healthy publisher, got %v", err)
	}

	conn.connected = false
	if err := p.IsHealthy(); err == nil {
		t.Error("Expected error when not connected")
	}

	conn.connected = true
	if err := p.Close(); err != nil {
		t.Errorf("Close() unexpected error: %v", err)
	}
	if conn.flushed != 1 || !conn.closed {
		t.Errorf("Expected flush and close, got flushed=%d closed=%v", conn.flushed, conn.closed)
	}
	if err := p.IsHealthy(); err == nil {
		t.Error("Expected error after close")
	}
}
