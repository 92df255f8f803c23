// Package events implements Server-Sent Events for real-time catalog updates.
package events

import (
	"time"

	"github.com/librarium/librarium-server/internal/domain"
)

// EventType represents the type of catalog event.
type EventType string

const (
	// EventBookAdded represents a book creation event.
	EventBookAdded EventType = "book.added"
	// EventAuthorUpdated represents an author update event.
	EventAuthorUpdated EventType = "author.updated"

	// EventHeartbeat represents a connection keepalive event.
	EventHeartbeat EventType = "heartbeat"
)

// Event represents a catalog event to be delivered to subscribers.
// The Data field contains the event payload as a JSON object for direct deserialization.
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
	Type      EventType `json:"type"`
}

// BookAddedEventData is the data payload for book.added events.
// Carries the fully resolved book so subscribers can render it without
// additional lookups.
type BookAddedEventData struct {
	Book *domain.ResolvedBook `json:"book"`
}

// AuthorUpdatedEventData is the data payload for author.updated events.
type AuthorUpdatedEventData struct {
	Author *domain.Author `json:"author"`
}

// HeartbeatEventData is the data payload for heartbeat events.
type HeartbeatEventData struct {
	ServerTime time.Time `json:"server_time"`
}

// NewBookAddedEvent creates a book.added event.
func NewBookAddedEvent(book *domain.ResolvedBook) Event {
	return Event{
		Type:      EventBookAdded,
		Data:      BookAddedEventData{Book: book},
		Timestamp: time.Now(),
	}
}

// NewAuthorUpdatedEvent creates an author.updated event.
func NewAuthorUpdatedEvent(author *domain.Author) Event {
	return Event{
		Type:      EventAuthorUpdated,
		Data:      AuthorUpdatedEventData{Author: author},
		Timestamp: time.Now(),
	}
}

// NewHeartbeatEvent creates a heartbeat event.
func NewHeartbeatEvent() Event {
	return Event{
		Type:      EventHeartbeat,
		Data:      HeartbeatEventData{ServerTime: time.Now()},
		Timestamp: time.Now(),
	}
}
