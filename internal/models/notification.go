package models

import "time"

// FocusChange is emitted every time the navigator moves or switches view.
// Generation increases monotonically so consumers can drop stale work.
type FocusChange struct {
	Generation uint64    `json:"generation"`
	View       string    `json:"view"`
	Previous   time.Time `json:"previous"`
	Current    time.Time `json:"current"`
	RangeStart time.Time `json:"range_start"`
	RangeEnd   time.Time `json:"range_end"`
}

// EventAction names a mutation applied to an event
type EventAction string

const (
	EventCreated EventAction = "created"
	EventUpdated EventAction = "updated"
	EventDeleted EventAction = "deleted"
)

// EventChange represents the message sent to NATS after an event mutation
type EventChange struct {
	Action     EventAction `json:"action"`
	EventID    string      `json:"event_id"`
	CalendarID string      `json:"calendar_id"`
	Title      string      `json:"title,omitempty"`
	At         time.Time   `json:"at"`
}

// NewEventChange creates an EventChange for the given event
func NewEventChange(action EventAction, event *CalendarEvent, at time.Time) *EventChange {
	change := &EventChange{Action: action, At: at}
	if event != nil {
		change.EventID = event.ID
		change.CalendarID = event.CalendarID
		change.Title = event.Title
	}
	return change
}
