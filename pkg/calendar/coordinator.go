package calendar

import (
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/venkytv/calendar-grid/internal/models"
)

// CoordinatorConfig holds configuration for multi-calendar coordination
type CoordinatorConfig struct {
	DeduplicationEnabled bool          `yaml:"deduplication_enabled"`
	DeduplicationWindow  time.Duration `yaml:"deduplication_window"`
}

// DefaultCoordinatorConfig returns a default configuration for multi-calendar coordination
func DefaultCoordinatorConfig() *CoordinatorConfig {
	return &CoordinatorConfig{
		DeduplicationEnabled: true,
		DeduplicationWindow:  5 * time.Minute,
	}
}

// EventCoordinator merges the events of several calendars into one ordered list
type EventCoordinator struct {
	config *CoordinatorConfig
	logger *slog.Logger
}

// NewEventCoordinator creates a new event coordinator
func NewEventCoordinator(config *CoordinatorConfig, logger *slog.Logger) *EventCoordinator {
	if config == nil {
		config = DefaultCoordinatorConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &EventCoordinator{
		config: config,
		logger: logger,
	}
}

// CoordinateEvents removes events duplicated across calendars and sorts the
// rest by start time. priorities maps calendar ids to a rank, lower first;
// when duplicates are found the event of the best ranked calendar is kept.
func (c *EventCoordinator) CoordinateEvents(events []*models.CalendarEvent, priorities map[string]int) []*models.CalendarEvent {
	if len(events) == 0 {
		return events
	}

	c.logger.Debug("Coordinating events", "input_count", len(events))

	ordered := make([]*models.CalendarEvent, len(events))
	copy(ordered, events)
	c.prioritizeEvents(ordered, priorities)

	coordinated := ordered
	if c.config.DeduplicationEnabled {
		coordinated = c.deduplicateEvents(ordered)
	}

	sort.SliceStable(coordinated, func(i, j int) bool {
		if !coordinated[i].Start.Equal(coordinated[j].Start) {
			return coordinated[i].Start.Before(coordinated[j].Start)
		}
		return coordinated[i].ID < coordinated[j].ID
	})

	c.logger.Debug("Event coordination complete",
		"input_count", len(events),
		"output_count", len(coordinated),
		"duplicates_removed", len(events)-len(coordinated))

	return coordinated
}

// prioritizeEvents sorts events by the rank of their calendar
func (c *EventCoordinator) prioritizeEvents(events []*models.CalendarEvent, priorities map[string]int) {
	sort.SliceStable(events, func(i, j int) bool {
		calA := events[i].CalendarID
		calB := events[j].CalendarID

		priorityA, okA := priorities[calA]
		priorityB, okB := priorities[calB]

		if okA && okB && priorityA != priorityB {
			return priorityA < priorityB
		}
		if okA != okB {
			return okA
		}
		return strings.ToLower(calA) < strings.ToLower(calB)
	})
}

// deduplicateEvents keeps the first of every group of similar events
func (c *EventCoordinator) deduplicateEvents(events []*models.CalendarEvent) []*models.CalendarEvent {
	if len(events) <= 1 {
		return events
	}

	var deduplicated []*models.CalendarEvent
	processed := make(map[*models.CalendarEvent]bool)

	for _, event := range events {
		if processed[event] {
			continue
		}

		similar := c.findSimilarEvents(event, events, processed)
		merged := c.mergeEvents(similar)
		deduplicated = append(deduplicated, merged)
		for _, s := range similar {
			processed[s] = true
		}

		if len(similar) > 1 {
			c.logger.Debug("Merged duplicate events",
				"primary_event", event.ID,
				"calendar_id", event.CalendarID,
				"total_duplicates", len(similar))
		}
	}

	return deduplicated
}

// findSimilarEvents returns target and every unprocessed event duplicating it
func (c *EventCoordinator) findSimilarEvents(target *models.CalendarEvent, all []*models.CalendarEvent, processed map[*models.CalendarEvent]bool) []*models.CalendarEvent {
	similar := []*models.CalendarEvent{target}
	for _, event := range all {
		if event != target && !processed[event] && c.areEventsSimilar(target, event) {
			similar = append(similar, event)
		}
	}
	return similar
}

// areEventsSimilar determines if two events are likely the same event seen
// through different calendars
func (c *EventCoordinator) areEventsSimilar(a, b *models.CalendarEvent) bool {
	if a.CalendarID == b.CalendarID {
		return false
	}
	if a.ID == b.ID {
		return true
	}
	if a.IsAllDay != b.IsAllDay {
		return false
	}

	timeDiff := a.Start.Sub(b.Start)
	if timeDiff < 0 {
		timeDiff = -timeDiff
	}
	if timeDiff > c.config.DeduplicationWindow {
		return false
	}

	return c.areTitlesSimilar(a.Title, b.Title)
}

// areTitlesSimilar performs basic string similarity check
func (c *EventCoordinator) areTitlesSimilar(a, b string) bool {
	normA := strings.ToLower(strings.TrimSpace(a))
	normB := strings.ToLower(strings.TrimSpace(b))

	if len(normA) == 0 || len(normB) == 0 {
		return false
	}
	if normA == normB {
		return true
	}

	wordsA := meaningfulWords(normA)
	wordsB := meaningfulWords(normB)
	if len(wordsA) == 0 || len(wordsB) == 0 {
		return false
	}

	common := 0
	for w := range wordsA {
		if wordsB[w] {
			common++
		}
	}
	if common == 0 {
		return false
	}

	smaller := len(wordsA)
	if len(wordsB) < smaller {
		smaller = len(wordsB)
	}
	return float64(common)/float64(smaller) >= 0.7
}

var stopwords = map[string]bool{
	"meeting": true, "call": true, "sync": true, "standup": true,
	"the": true, "a": true, "an": true, "and": true, "or": true,
	"with": true, "for": true, "of": true, "in": true, "on": true,
}

func meaningfulWords(s string) map[string]bool {
	words := make(map[string]bool)
	for _, w := range strings.Fields(s) {
		if len(w) > 2 && !stopwords[w] {
			words[w] = true
		}
	}
	return words
}

// mergeEvents keeps the highest priority event, filling its empty optional
// fields from the duplicates. The id is preserved so the event stays editable.
func (c *EventCoordinator) mergeEvents(events []*models.CalendarEvent) *models.CalendarEvent {
	if len(events) == 1 {
		return events[0]
	}

	merged := *events[0]
	for _, event := range events[1:] {
		if merged.Location == "" {
			merged.Location = event.Location
		}
		if merged.Notes == "" {
			merged.Notes = event.Notes
		}
	}
	return &merged
}

// CoordinationStats holds statistics about the coordination process
type CoordinationStats struct {
	OriginalCount     int            `json:"original_count"`
	CoordinatedCount  int            `json:"coordinated_count"`
	DuplicatesRemoved int            `json:"duplicates_removed"`
	CalendarCounts    map[string]int `json:"calendar_counts"`
}

// GetCoordinationStats returns statistics about the coordination process
func (c *EventCoordinator) GetCoordinationStats(original, coordinated []*models.CalendarEvent) CoordinationStats {
	stats := CoordinationStats{
		OriginalCount:     len(original),
		CoordinatedCount:  len(coordinated),
		DuplicatesRemoved: len(original) - len(coordinated),
		CalendarCounts:    make(map[string]int),
	}
	for _, event := range coordinated {
		stats.CalendarCounts[event.CalendarID]++
	}
	return stats
}
